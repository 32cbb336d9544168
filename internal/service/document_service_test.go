package service

import (
	"bytes"
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
	"github.com/noah-isme/school-admin-api/pkg/storage"
)

type mockDocumentRepo struct {
	docs       map[string]models.Document
	lastFilter models.DocumentFilter
	createErr  error
}

func (m *mockDocumentRepo) Create(ctx context.Context, doc *models.Document) error {
	if m.createErr != nil {
		return m.createErr
	}
	doc.ID = "doc-new"
	m.docs[doc.ID] = *doc
	return nil
}

func (m *mockDocumentRepo) FindByID(ctx context.Context, id string) (*models.Document, error) {
	if doc, ok := m.docs[id]; ok && doc.DeletedAt == nil {
		return &doc, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockDocumentRepo) List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error) {
	m.lastFilter = filter
	out := make([]models.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, doc)
	}
	return out, len(out), nil
}

func (m *mockDocumentRepo) SoftDelete(ctx context.Context, id string, deletedAt time.Time) error {
	doc, ok := m.docs[id]
	if !ok || doc.DeletedAt != nil {
		return sql.ErrNoRows
	}
	doc.DeletedAt = &deletedAt
	m.docs[id] = doc
	return nil
}

const pdfHeader = "%PDF-1.4\n%\xe2\xe3\xcf\xd3\n1 0 obj\n<<>>\nendobj\n"

func newDocumentFixture(t *testing.T) (*DocumentService, *mockDocumentRepo, *recordingAudit) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	repo := &mockDocumentRepo{docs: map[string]models.Document{
		"doc-general": {ID: "doc-general", Scope: models.DocumentScopeGeneral, FilePath: "general/a.pdf"},
		"doc-s1":      {ID: "doc-s1", Scope: models.DocumentScopeStudent, RefID: strPtr("s1"), FilePath: "student/b.pdf"},
		"doc-s2":      {ID: "doc-s2", Scope: models.DocumentScopeStudent, RefID: strPtr("s2"), FilePath: "student/c.pdf"},
		"doc-class":   {ID: "doc-class", Scope: models.DocumentScopeClass, RefID: strPtr("c1"), FilePath: "class/d.pdf"},
	}}
	students := newMockStudentRepo(
		models.Student{ID: "s1", UserID: strPtr("u1"), Active: true},
		models.Student{ID: "s2", UserID: strPtr("u2"), Active: true},
	)
	classes := &mockClassReader{classes: map[string]models.Class{"c1": {ID: "c1"}}}
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	audit := &recordingAudit{}
	svc := NewDocumentService(repo, files, signer, students, classes, audit, nil, nil, DocumentServiceConfig{MaxFileSize: 1024})
	return svc, repo, audit
}

func TestDocumentServiceUploadAndDownload(t *testing.T) {
	svc, repo, audit := newDocumentFixture(t)
	ctx := context.Background()

	doc, err := svc.Upload(ctx, DocumentUploadRequest{Title: "Syllabus", Category: "curriculum", Scope: "general"},
		DocumentUpload{FileName: "syllabus.PDF", MimeType: "application/pdf", Content: strings.NewReader(pdfHeader)},
		models.RequestMeta{ActorID: "teacher-1"})
	require.NoError(t, err)
	assert.Equal(t, models.DocumentScopeGeneral, doc.Scope)
	assert.Equal(t, "syllabus.PDF", doc.FileName)
	assert.True(t, strings.HasPrefix(doc.FilePath, "general/"))
	assert.True(t, strings.HasSuffix(doc.FilePath, ".pdf"))
	assert.Equal(t, int64(len(pdfHeader)), doc.SizeBytes)
	assert.Len(t, doc.Checksum, 64)
	assert.Contains(t, repo.docs, "doc-new")
	assert.Equal(t, []string{models.AuditActionDocumentUpload}, audit.actions())

	actor := &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin}
	link, err := svc.DownloadURL(ctx, doc.ID, actor)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link.URL, "/api/v1/documents/doc-new/download?token="))

	token := link.URL[strings.Index(link.URL, "token=")+len("token="):]
	file, err := svc.Open(ctx, doc.ID, token)
	require.NoError(t, err)
	defer file.File.Close()
	content, err := io.ReadAll(file.File)
	require.NoError(t, err)
	assert.Equal(t, pdfHeader, string(content))
	assert.Equal(t, "application/pdf", file.MimeType)

	_, err = svc.Open(ctx, "doc-general", token)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	_, err = svc.Open(ctx, doc.ID, token+"x")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestDocumentServiceUploadValidation(t *testing.T) {
	svc, _, _ := newDocumentFixture(t)
	ctx := context.Background()
	pdf := func() DocumentUpload {
		return DocumentUpload{FileName: "a.pdf", MimeType: "application/pdf", Content: strings.NewReader(pdfHeader)}
	}

	cases := []struct {
		name   string
		req    DocumentUploadRequest
		upload DocumentUpload
	}{
		{"unknown scope", DocumentUploadRequest{Title: "x", Category: "y", Scope: "TERM"}, pdf()},
		{"general with ref", DocumentUploadRequest{Title: "x", Category: "y", Scope: "GENERAL", RefID: strPtr("c1")}, pdf()},
		{"class without ref", DocumentUploadRequest{Title: "x", Category: "y", Scope: "CLASS"}, pdf()},
		{"missing student", DocumentUploadRequest{Title: "x", Category: "y", Scope: "STUDENT", RefID: strPtr("ghost")}, pdf()},
		{"empty file", DocumentUploadRequest{Title: "x", Category: "y", Scope: "GENERAL"},
			DocumentUpload{FileName: "a.pdf", Content: strings.NewReader("")}},
		{"disallowed type", DocumentUploadRequest{Title: "x", Category: "y", Scope: "GENERAL"},
			DocumentUpload{FileName: "a.txt", Content: strings.NewReader("plain text notes")}},
		{"mismatched type", DocumentUploadRequest{Title: "x", Category: "y", Scope: "GENERAL"},
			DocumentUpload{FileName: "a.pdf", MimeType: "application/pdf", Content: strings.NewReader("<html><body>hi</body></html>")}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Upload(ctx, tc.req, tc.upload, models.RequestMeta{})
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrValidation), err.Error())
		})
	}

	oversized := DocumentUpload{FileName: "a.pdf", MimeType: "application/pdf", Content: bytes.NewReader(append([]byte(pdfHeader), make([]byte, 2048)...))}
	_, err := svc.Upload(ctx, DocumentUploadRequest{Title: "x", Category: "y", Scope: "GENERAL"}, oversized, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrPayloadTooLarge)
}

func TestDocumentServiceStudentVisibility(t *testing.T) {
	svc, repo, _ := newDocumentFixture(t)
	ctx := context.Background()
	student := &models.JWTClaims{UserID: "u1", Role: models.RoleStudent}

	_, _, err := svc.List(ctx, models.DocumentFilter{VisibleStudentID: "s2"}, student)
	require.NoError(t, err)
	assert.Equal(t, "s1", repo.lastFilter.VisibleStudentID)

	_, _, err = svc.List(ctx, models.DocumentFilter{VisibleStudentID: "s2"}, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	require.NoError(t, err)
	assert.Empty(t, repo.lastFilter.VisibleStudentID)

	_, err = svc.Get(ctx, "doc-general", student)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, "doc-s1", student)
	assert.NoError(t, err)
	_, err = svc.Get(ctx, "doc-s2", student)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	_, err = svc.Get(ctx, "doc-class", student)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
	_, err = svc.DownloadURL(ctx, "doc-s2", student)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestDocumentServiceDelete(t *testing.T) {
	svc, _, audit := newDocumentFixture(t)
	ctx := context.Background()

	require.NoError(t, svc.Delete(ctx, "doc-class", models.RequestMeta{ActorID: "admin"}))
	assert.Equal(t, []string{models.AuditActionDocumentDelete}, audit.actions())

	err := svc.Delete(ctx, "doc-class", models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))

	_, err = svc.Get(ctx, "doc-class", &models.JWTClaims{Role: models.RoleAdmin})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
