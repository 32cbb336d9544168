package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-admin-api/internal/grading"
	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/service"
)

type scoreService interface {
	List(ctx context.Context, filter models.ScoreFilter) ([]models.ScoreDetail, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.Score, error)
	Create(ctx context.Context, req service.CreateScoreRequest, meta models.RequestMeta) (*models.Score, error)
	Update(ctx context.Context, id string, req service.UpdateScoreRequest, meta models.RequestMeta) (*models.Score, error)
	Delete(ctx context.Context, id string, meta models.RequestMeta) error
}

// ScoreHandler exposes score record endpoints.
type ScoreHandler struct {
	service scoreService
}

// NewScoreHandler constructs the handler.
func NewScoreHandler(svc scoreService) *ScoreHandler {
	return &ScoreHandler{service: svc}
}

// List godoc
// @Summary List score records
// @Tags Scores
// @Produce json
// @Param studentId query string false "Student filter"
// @Param subjectId query string false "Subject filter"
// @Param classId query string false "Class filter"
// @Param semesterId query string false "Semester filter"
// @Param category query string false "homework, quiz, midterm, final, project or participation"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /scores [get]
func (h *ScoreHandler) List(c *gin.Context) {
	var filter models.ScoreFilter
	filter.StudentID = c.Query("studentId")
	filter.SubjectID = c.Query("subjectId")
	filter.ClassID = c.Query("classId")
	filter.SemesterID = c.Query("semesterId")
	filter.Category = grading.Category(strings.ToLower(strings.TrimSpace(c.Query("category"))))
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	scores, pagination, err := h.service.List(c.Request.Context(), filter)
	replyPage(c, scores, pagination, err)
}

// Get godoc
// @Summary Get score record
// @Tags Scores
// @Produce json
// @Param id path string true "Score ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /scores/{id} [get]
func (h *ScoreHandler) Get(c *gin.Context) {
	score, err := h.service.Get(c.Request.Context(), c.Param("id"))
	reply(c, http.StatusOK, score, err)
}

// Create godoc
// @Summary Record a score
// @Description Rejects max_score <= 0, negative raw_score and weights outside [0,1]
// @Tags Scores
// @Accept json
// @Produce json
// @Param payload body service.CreateScoreRequest true "Score payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 412 {object} response.Envelope
// @Security BearerAuth
// @Router /scores [post]
func (h *ScoreHandler) Create(c *gin.Context) {
	var req service.CreateScoreRequest
	if !bindJSON(c, &req) {
		return
	}
	score, err := h.service.Create(c.Request.Context(), req, requestMeta(c))
	reply(c, http.StatusCreated, score, err)
}

// Update godoc
// @Summary Correct a score
// @Tags Scores
// @Accept json
// @Produce json
// @Param id path string true "Score ID"
// @Param payload body service.UpdateScoreRequest true "Score payload"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /scores/{id} [put]
func (h *ScoreHandler) Update(c *gin.Context) {
	var req service.UpdateScoreRequest
	if !bindJSON(c, &req) {
		return
	}
	score, err := h.service.Update(c.Request.Context(), c.Param("id"), req, requestMeta(c))
	reply(c, http.StatusOK, score, err)
}

// Delete godoc
// @Summary Delete score record
// @Tags Scores
// @Param id path string true "Score ID"
// @Success 204
// @Security BearerAuth
// @Router /scores/{id} [delete]
func (h *ScoreHandler) Delete(c *gin.Context) {
	replyEmpty(c, h.service.Delete(c.Request.Context(), c.Param("id"), requestMeta(c)))
}
