package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-admin-api/internal/grading"
	"github.com/noah-isme/school-admin-api/internal/middleware"
	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/service"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var appErr appErrors.Error
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w)["error"], &appErr))
	return appErr.Code
}

type gradeServiceMock struct {
	lastCard   service.ReportCardQuery
	lastBook   service.GradebookQuery
	lastFormat string
	card       *models.ReportCard
	book       *models.Gradebook
	err        error
}

func (m *gradeServiceMock) ReportCard(ctx context.Context, q service.ReportCardQuery) (*models.ReportCard, error) {
	m.lastCard = q
	return m.card, m.err
}

func (m *gradeServiceMock) Gradebook(ctx context.Context, q service.GradebookQuery) (*models.Gradebook, error) {
	m.lastBook = q
	return m.book, m.err
}

func (m *gradeServiceMock) ExportReportCard(ctx context.Context, q service.ReportCardQuery, format string) (*service.ExportFile, error) {
	m.lastCard = q
	m.lastFormat = format
	if m.err != nil {
		return nil, m.err
	}
	return &service.ExportFile{FileName: "report-card.csv", ContentType: "text/csv", Data: []byte("a,b\n")}, nil
}

func (m *gradeServiceMock) ExportGradebook(ctx context.Context, q service.GradebookQuery, format string) (*service.ExportFile, error) {
	m.lastBook = q
	m.lastFormat = format
	if m.err != nil {
		return nil, m.err
	}
	return &service.ExportFile{FileName: "gradebook.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}, nil
}

func TestGradeHandlerReportCard(t *testing.T) {
	mockSvc := &gradeServiceMock{card: &models.ReportCard{
		Subjects:       []models.SubjectGrade{{Summary: grading.Summary{FinalGrade: 90, LetterGrade: grading.LetterA}}},
		OverallAverage: 90,
		OverallLetter:  grading.LetterA,
	}}
	h := NewGradeHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/grades/report-card?studentId=s1&semesterId=sem-1", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	h.ReportCard(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ReportCardQuery{StudentID: "s1", SemesterID: "sem-1", ViewerID: "t1", ViewerRole: models.RoleTeacher}, mockSvc.lastCard)
	var card models.ReportCard
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, w)["data"], &card))
	assert.Equal(t, 90.0, card.OverallAverage)
	assert.Equal(t, "A", card.OverallLetter)
}

func TestGradeHandlerReportCardQueryValidation(t *testing.T) {
	h := NewGradeHandler(&gradeServiceMock{card: &models.ReportCard{}})

	c, w := newGinContext(http.MethodGet, "/grades/report-card?studentId=s1", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	h.ReportCard(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/grades/report-card?semesterId=sem-1", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "t1", Role: models.RoleTeacher})
	h.ReportCard(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/grades/report-card?semesterId=sem-1", nil)
	h.ReportCard(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGradeHandlerStudentDefaultsToSelf(t *testing.T) {
	mockSvc := &gradeServiceMock{card: &models.ReportCard{}}
	h := NewGradeHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/grades/report-card?semesterId=sem-1", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-student", Role: models.RoleStudent})
	h.ReportCard(c)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, mockSvc.lastCard.StudentID)
	assert.Equal(t, "u-student", mockSvc.lastCard.ViewerID)
}

func TestGradeHandlerForbiddenPassesThrough(t *testing.T) {
	h := NewGradeHandler(&gradeServiceMock{err: appErrors.Clone(appErrors.ErrForbidden, "students may only view their own report card")})

	c, w := newGinContext(http.MethodGet, "/grades/report-card?studentId=other&semesterId=sem-1", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "u-student", Role: models.RoleStudent})
	h.ReportCard(c)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, appErrors.ErrForbidden.Code, errorCode(t, w))
}

func TestGradeHandlerGradebook(t *testing.T) {
	mockSvc := &gradeServiceMock{book: &models.Gradebook{Statistics: models.GradebookStats{StudentCount: 3}}}
	h := NewGradeHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/grades/gradebook?classId=c1&subjectId=math&semesterId=sem-1", nil)
	h.Gradebook(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.GradebookQuery{ClassID: "c1", SubjectID: "math", SemesterID: "sem-1"}, mockSvc.lastBook)

	c, w = newGinContext(http.MethodGet, "/grades/gradebook?classId=c1", nil)
	h.Gradebook(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGradeHandlerExports(t *testing.T) {
	mockSvc := &gradeServiceMock{}
	h := NewGradeHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/grades/gradebook/export?classId=c1&subjectId=math&semesterId=sem-1&format=pdf", nil)
	h.ExportGradebook(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pdf", mockSvc.lastFormat)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), `filename="gradebook.pdf"`)

	c, w = newGinContext(http.MethodGet, "/grades/report-card/export?studentId=s1&semesterId=sem-1", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin", Role: models.RoleAdmin})
	h.ExportReportCard(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pdf", mockSvc.lastFormat)
	assert.Equal(t, "a,b\n", w.Body.String())
}
