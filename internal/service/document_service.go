package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/models"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
	"github.com/noah-isme/school-admin-api/pkg/storage"
)

type documentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	FindByID(ctx context.Context, id string) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter) ([]models.Document, int, error)
	SoftDelete(ctx context.Context, id string, deletedAt time.Time) error
}

type documentFileStorage interface {
	SaveStream(relPath string, r io.Reader, limit int64) (storage.StoredFile, error)
	Open(relPath string) (*os.File, error)
	Delete(relPath string) error
}

type documentSigner interface {
	Generate(id, relPath string) (string, time.Time, error)
	Parse(token string) (id, relPath string, err error)
}

// DocumentUploadRequest carries the multipart form fields of an upload.
type DocumentUploadRequest struct {
	Title    string  `form:"title" validate:"required,max=200"`
	Category string  `form:"category" validate:"required,max=50"`
	Scope    string  `form:"scope" validate:"required,oneof=GENERAL CLASS STUDENT"`
	RefID    *string `form:"ref_id"`
}

// DocumentUpload is the file part of an upload.
type DocumentUpload struct {
	FileName string
	MimeType string
	Content  io.Reader
}

// DocumentFile is an opened document ready for streaming.
type DocumentFile struct {
	File      *os.File
	FileName  string
	MimeType  string
	SizeBytes int64
}

// DocumentServiceConfig holds upload validation parameters.
type DocumentServiceConfig struct {
	MaxFileSize  int64
	AllowedMIMEs []string
	APIPrefix    string
}

// DocumentService manages document metadata and file storage.
type DocumentService struct {
	repo      documentStore
	storage   documentFileStorage
	signer    documentSigner
	students  reportStudentReader
	classes   classReader
	audit     auditRecorder
	validator *validator.Validate
	logger    *zap.Logger
	cfg       DocumentServiceConfig
	mimeSet   map[string]struct{}
	now       func() time.Time
}

// NewDocumentService constructs the service with defaults.
func NewDocumentService(repo documentStore, files documentFileStorage, signer documentSigner, students reportStudentReader, classes classReader, audit auditRecorder, validate *validator.Validate, logger *zap.Logger, cfg DocumentServiceConfig) *DocumentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = nopAudit{}
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 * 1024 * 1024
	}
	if len(cfg.AllowedMIMEs) == 0 {
		cfg.AllowedMIMEs = []string{"application/pdf", "image/png", "image/jpeg"}
	}
	if cfg.APIPrefix == "" {
		cfg.APIPrefix = "/api/v1"
	}
	mimeSet := make(map[string]struct{}, len(cfg.AllowedMIMEs))
	for _, mt := range cfg.AllowedMIMEs {
		mimeSet[strings.ToLower(mt)] = struct{}{}
	}
	return &DocumentService{
		repo:      repo,
		storage:   files,
		signer:    signer,
		students:  students,
		classes:   classes,
		audit:     audit,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		mimeSet:   mimeSet,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Upload stores the file and its metadata.
func (s *DocumentService) Upload(ctx context.Context, req DocumentUploadRequest, upload DocumentUpload, meta models.RequestMeta) (*models.Document, error) {
	req.Scope = strings.ToUpper(strings.TrimSpace(req.Scope))
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid document payload")
	}
	refID, err := s.checkScope(ctx, models.DocumentScope(req.Scope), req.RefID)
	if err != nil {
		return nil, err
	}
	if upload.Content == nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "file is required")
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(upload.Content, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, internalError(err, "failed to inspect file")
	}
	if n == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "empty file")
	}
	head = head[:n]
	mimeType, err := s.resolveMime(upload.MimeType, head)
	if err != nil {
		return nil, err
	}

	relPath := fmt.Sprintf("%s/%s%s", strings.ToLower(req.Scope), uuid.NewString(), fileExtension(upload.FileName, mimeType))
	stored, err := s.storage.SaveStream(relPath, io.MultiReader(bytes.NewReader(head), upload.Content), s.cfg.MaxFileSize)
	if err != nil {
		if errors.Is(err, storage.ErrLimitExceeded) {
			return nil, appErrors.Clone(appErrors.ErrPayloadTooLarge, fmt.Sprintf("file exceeds %d bytes limit", s.cfg.MaxFileSize))
		}
		return nil, internalError(err, "failed to store document")
	}

	doc := &models.Document{
		Title:      strings.TrimSpace(req.Title),
		Category:   strings.TrimSpace(req.Category),
		Scope:      models.DocumentScope(req.Scope),
		RefID:      refID,
		FileName:   originalName(upload.FileName, relPath),
		FilePath:   stored.Path,
		MimeType:   mimeType,
		SizeBytes:  stored.Size,
		Checksum:   stored.Checksum,
		UploadedBy: meta.ActorID,
	}
	if err := s.repo.Create(ctx, doc); err != nil {
		if delErr := s.storage.Delete(stored.Path); delErr != nil {
			s.logger.Warn("failed to remove orphaned document file", zap.String("path", stored.Path), zap.Error(delErr))
		}
		return nil, internalError(err, "failed to create document metadata")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionDocumentUpload, "documents", doc.ID, nil, doc))
	return doc, nil
}

// List returns documents visible to the actor.
func (s *DocumentService) List(ctx context.Context, filter models.DocumentFilter, actor *models.JWTClaims) ([]models.Document, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	if filter.Scope != "" {
		filter.Scope = models.DocumentScope(strings.ToUpper(string(filter.Scope)))
		if !validScope(filter.Scope) {
			return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid scope")
		}
	}
	filter.VisibleStudentID = ""
	if actor.Role == models.RoleStudent {
		student, err := s.students.FindByUserID(ctx, actor.UserID)
		if err != nil {
			return nil, nil, lookupError(err, "no student profile linked to this account", "failed to load student")
		}
		filter.VisibleStudentID = student.ID
	}
	docs, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list documents")
	}
	if docs == nil {
		docs = []models.Document{}
	}
	return docs, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// Get returns document metadata if the actor may see it.
func (s *DocumentService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Document, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "document not found", "failed to load document")
	}
	if actor.Role == models.RoleStudent {
		if err := s.ensureStudentAccess(ctx, doc, actor.UserID); err != nil {
			return nil, err
		}
	}
	return doc, nil
}

// DownloadURL issues a signed, expiring link to the file.
func (s *DocumentService) DownloadURL(ctx context.Context, id string, actor *models.JWTClaims) (*models.DocumentDownload, error) {
	doc, err := s.Get(ctx, id, actor)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.signer.Generate(doc.ID, doc.FilePath)
	if err != nil {
		return nil, internalError(err, "failed to generate download token")
	}
	base := strings.TrimRight(s.cfg.APIPrefix, "/")
	return &models.DocumentDownload{
		URL:       fmt.Sprintf("%s/documents/%s/download?token=%s", base, doc.ID, token),
		ExpiresAt: expiresAt,
	}, nil
}

// Open validates a download token and opens the file it grants.
func (s *DocumentService) Open(ctx context.Context, id, token string) (*DocumentFile, error) {
	docID, relPath, err := s.signer.Parse(token)
	if err != nil || docID != id {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid or expired download token")
	}
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "document not found", "failed to load document")
	}
	if doc.FilePath != relPath {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "download token does not match document")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, internalError(err, "failed to open document file")
	}
	return &DocumentFile{File: file, FileName: doc.FileName, MimeType: doc.MimeType, SizeBytes: doc.SizeBytes}, nil
}

// Delete soft-deletes a document. The stored file is kept.
func (s *DocumentService) Delete(ctx context.Context, id string, meta models.RequestMeta) error {
	doc, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return lookupError(err, "document not found", "failed to load document")
	}
	if err := s.repo.SoftDelete(ctx, id, s.now()); err != nil {
		return lookupError(err, "document not found", "failed to delete document")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionDocumentDelete, "documents", id, doc, nil))
	return nil
}

func (s *DocumentService) checkScope(ctx context.Context, scope models.DocumentScope, ref *string) (*string, error) {
	refID := normalizeOptionalID(ref)
	switch scope {
	case models.DocumentScopeGeneral:
		if refID != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "ref_id must be empty for GENERAL scope")
		}
	case models.DocumentScopeClass:
		if refID == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "ref_id required for CLASS scope")
		}
		if _, err := s.classes.FindByID(ctx, *refID); err != nil {
			return nil, referenceError(err, "class not found", "failed to load class")
		}
	case models.DocumentScopeStudent:
		if refID == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "ref_id required for STUDENT scope")
		}
		if _, err := s.students.FindByID(ctx, *refID); err != nil {
			return nil, referenceError(err, "student not found", "failed to load student")
		}
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid scope")
	}
	return refID, nil
}

func (s *DocumentService) ensureStudentAccess(ctx context.Context, doc *models.Document, userID string) error {
	if doc.Scope == models.DocumentScopeGeneral {
		return nil
	}
	if doc.Scope == models.DocumentScopeStudent && doc.RefID != nil {
		student, err := s.students.FindByUserID(ctx, userID)
		if err != nil {
			return lookupError(err, "no student profile linked to this account", "failed to load student")
		}
		if student.ID == *doc.RefID {
			return nil
		}
	}
	return appErrors.Clone(appErrors.ErrForbidden, "document is not visible to this account")
}

// resolveMime prefers the declared type but refuses content whose sniffed
// type contradicts it. Office formats sniff as zip and are trusted.
func (s *DocumentService) resolveMime(declared string, head []byte) (string, error) {
	sniffed, _, _ := mime.ParseMediaType(http.DetectContentType(head))
	mimeType := sniffed
	if declared != "" {
		parsed, _, err := mime.ParseMediaType(declared)
		if err != nil {
			return "", appErrors.Clone(appErrors.ErrValidation, "invalid content type")
		}
		mimeType = strings.ToLower(parsed)
		if sniffed != mimeType && sniffed != "application/octet-stream" && sniffed != "application/zip" {
			return "", appErrors.Clone(appErrors.ErrValidation, "file content does not match its declared type")
		}
	}
	if _, ok := s.mimeSet[mimeType]; !ok {
		return "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("mime type %s not allowed", mimeType))
	}
	return mimeType, nil
}

func validScope(scope models.DocumentScope) bool {
	switch scope {
	case models.DocumentScopeGeneral, models.DocumentScopeClass, models.DocumentScopeStudent:
		return true
	}
	return false
}

func fileExtension(name, mimeType string) string {
	if ext := strings.ToLower(filepath.Ext(name)); len(ext) > 1 && len(ext) <= 6 && isAlnum(ext[1:]) {
		return ext
	}
	switch mimeType {
	case "application/pdf":
		return ".pdf"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return ".docx"
	case "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":
		return ".xlsx"
	}
	return ".bin"
}

func originalName(name, relPath string) string {
	base := filepath.Base(strings.TrimSpace(name))
	if base == "" || base == "." || base == "/" {
		return filepath.Base(relPath)
	}
	return base
}

func isAlnum(s string) bool {
	for _, r := range s {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}
