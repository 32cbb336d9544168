package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/service"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
	"github.com/noah-isme/school-admin-api/pkg/response"
)

type gradeReportService interface {
	ReportCard(ctx context.Context, q service.ReportCardQuery) (*models.ReportCard, error)
	Gradebook(ctx context.Context, q service.GradebookQuery) (*models.Gradebook, error)
	ExportReportCard(ctx context.Context, q service.ReportCardQuery, format string) (*service.ExportFile, error)
	ExportGradebook(ctx context.Context, q service.GradebookQuery, format string) (*service.ExportFile, error)
}

// GradeHandler serves report cards and gradebooks computed from scores.
type GradeHandler struct {
	service gradeReportService
}

// NewGradeHandler constructs the handler.
func NewGradeHandler(svc gradeReportService) *GradeHandler {
	return &GradeHandler{service: svc}
}

// ReportCard godoc
// @Summary Student report card
// @Description Weighted grade per subject for one student and semester, plus the overall average. Students may only request their own card.
// @Tags Grades
// @Produce json
// @Param studentId query string false "Student ID (defaults to the caller's own profile for STUDENT users)"
// @Param semesterId query string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/report-card [get]
func (h *GradeHandler) ReportCard(c *gin.Context) {
	q, err := reportCardQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	card, err := h.service.ReportCard(c.Request.Context(), q)
	reply(c, http.StatusOK, card, err)
}

// Gradebook godoc
// @Summary Class gradebook for one subject
// @Description Weighted grade of every actively enrolled student plus class statistics
// @Tags Grades
// @Produce json
// @Param classId query string true "Class ID"
// @Param subjectId query string true "Subject ID"
// @Param semesterId query string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /grades/gradebook [get]
func (h *GradeHandler) Gradebook(c *gin.Context) {
	q, err := gradebookQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	book, err := h.service.Gradebook(c.Request.Context(), q)
	reply(c, http.StatusOK, book, err)
}

// ExportReportCard godoc
// @Summary Download a report card
// @Tags Grades
// @Produce application/pdf
// @Produce text/csv
// @Param studentId query string false "Student ID"
// @Param semesterId query string true "Semester ID"
// @Param format query string false "csv or pdf" default(pdf)
// @Success 200 {file} file
// @Security BearerAuth
// @Router /grades/report-card/export [get]
func (h *GradeHandler) ExportReportCard(c *gin.Context) {
	q, err := reportCardQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.service.ExportReportCard(c.Request.Context(), q, c.DefaultQuery("format", "pdf"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.FileName, file.ContentType, file.Data)
}

// ExportGradebook godoc
// @Summary Download a gradebook
// @Tags Grades
// @Produce application/pdf
// @Produce text/csv
// @Param classId query string true "Class ID"
// @Param subjectId query string true "Subject ID"
// @Param semesterId query string true "Semester ID"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Security BearerAuth
// @Router /grades/gradebook/export [get]
func (h *GradeHandler) ExportGradebook(c *gin.Context) {
	q, err := gradebookQuery(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	file, err := h.service.ExportGradebook(c.Request.Context(), q, c.DefaultQuery("format", "csv"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.FileName, file.ContentType, file.Data)
}

func reportCardQuery(c *gin.Context) (service.ReportCardQuery, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return service.ReportCardQuery{}, appErrors.ErrUnauthorized
	}
	q := service.ReportCardQuery{
		StudentID:  strings.TrimSpace(c.Query("studentId")),
		SemesterID: strings.TrimSpace(c.Query("semesterId")),
		ViewerID:   claims.UserID,
		ViewerRole: claims.Role,
	}
	if q.SemesterID == "" {
		return q, appErrors.Clone(appErrors.ErrValidation, "semesterId is required")
	}
	if q.StudentID == "" && claims.Role != models.RoleStudent {
		return q, appErrors.Clone(appErrors.ErrValidation, "studentId is required")
	}
	return q, nil
}

func gradebookQuery(c *gin.Context) (service.GradebookQuery, error) {
	q := service.GradebookQuery{
		ClassID:    strings.TrimSpace(c.Query("classId")),
		SubjectID:  strings.TrimSpace(c.Query("subjectId")),
		SemesterID: strings.TrimSpace(c.Query("semesterId")),
	}
	if q.ClassID == "" || q.SubjectID == "" || q.SemesterID == "" {
		return q, appErrors.Clone(appErrors.ErrValidation, "classId, subjectId and semesterId are required")
	}
	return q, nil
}
