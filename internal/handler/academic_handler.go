package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/service"
)

// AcademicHandler exposes academic years, semesters and grade levels.
type AcademicHandler struct {
	years       *service.AcademicYearService
	semesters   *service.SemesterService
	gradeLevels *service.GradeLevelService
}

// NewAcademicHandler constructs the handler.
func NewAcademicHandler(years *service.AcademicYearService, semesters *service.SemesterService, gradeLevels *service.GradeLevelService) *AcademicHandler {
	return &AcademicHandler{years: years, semesters: semesters, gradeLevels: gradeLevels}
}

// ListYears godoc
// @Summary List academic years
// @Tags Academic
// @Produce json
// @Param active query bool false "Active filter"
// @Param search query string false "Search keyword"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /academic-years [get]
func (h *AcademicHandler) ListYears(c *gin.Context) {
	var filter models.AcademicYearFilter
	filter.Page, filter.PageSize = pageParams(c)
	filter.IsActive = optionalBool(c, "active")
	filter.Search = strings.TrimSpace(c.Query("search"))
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	years, pagination, err := h.years.List(c.Request.Context(), filter)
	replyPage(c, years, pagination, err)
}

// GetYear godoc
// @Summary Get academic year
// @Tags Academic
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /academic-years/{id} [get]
func (h *AcademicHandler) GetYear(c *gin.Context) {
	year, err := h.years.Get(c.Request.Context(), c.Param("id"))
	reply(c, http.StatusOK, year, err)
}

// CreateYear godoc
// @Summary Create academic year
// @Tags Academic
// @Accept json
// @Produce json
// @Param payload body service.AcademicYearRequest true "Academic year payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /academic-years [post]
func (h *AcademicHandler) CreateYear(c *gin.Context) {
	var req service.AcademicYearRequest
	if !bindJSON(c, &req) {
		return
	}
	year, err := h.years.Create(c.Request.Context(), req, requestMeta(c))
	reply(c, http.StatusCreated, year, err)
}

// UpdateYear godoc
// @Summary Update academic year
// @Tags Academic
// @Accept json
// @Produce json
// @Param id path string true "Academic year ID"
// @Param payload body service.AcademicYearRequest true "Academic year payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /academic-years/{id} [put]
func (h *AcademicHandler) UpdateYear(c *gin.Context) {
	var req service.AcademicYearRequest
	if !bindJSON(c, &req) {
		return
	}
	year, err := h.years.Update(c.Request.Context(), c.Param("id"), req, requestMeta(c))
	reply(c, http.StatusOK, year, err)
}

// DeleteYear godoc
// @Summary Delete academic year
// @Tags Academic
// @Param id path string true "Academic year ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /academic-years/{id} [delete]
func (h *AcademicHandler) DeleteYear(c *gin.Context) {
	replyEmpty(c, h.years.Delete(c.Request.Context(), c.Param("id"), requestMeta(c)))
}

// ActivateYear godoc
// @Summary Mark academic year as the active one
// @Tags Academic
// @Produce json
// @Param id path string true "Academic year ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /academic-years/{id}/activate [post]
func (h *AcademicHandler) ActivateYear(c *gin.Context) {
	year, err := h.years.Activate(c.Request.Context(), c.Param("id"), requestMeta(c))
	reply(c, http.StatusOK, year, err)
}

// ListSemesters godoc
// @Summary List semesters
// @Tags Academic
// @Produce json
// @Param academicYearId query string false "Academic year filter"
// @Param active query bool false "Active filter"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /semesters [get]
func (h *AcademicHandler) ListSemesters(c *gin.Context) {
	var filter models.SemesterFilter
	filter.Page, filter.PageSize = pageParams(c)
	filter.AcademicYearID = c.Query("academicYearId")
	filter.IsActive = optionalBool(c, "active")
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	semesters, pagination, err := h.semesters.List(c.Request.Context(), filter)
	replyPage(c, semesters, pagination, err)
}

// GetSemester godoc
// @Summary Get semester
// @Tags Academic
// @Produce json
// @Param id path string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /semesters/{id} [get]
func (h *AcademicHandler) GetSemester(c *gin.Context) {
	semester, err := h.semesters.Get(c.Request.Context(), c.Param("id"))
	reply(c, http.StatusOK, semester, err)
}

// CreateSemester godoc
// @Summary Create semester
// @Tags Academic
// @Accept json
// @Produce json
// @Param payload body service.SemesterRequest true "Semester payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /semesters [post]
func (h *AcademicHandler) CreateSemester(c *gin.Context) {
	var req service.SemesterRequest
	if !bindJSON(c, &req) {
		return
	}
	semester, err := h.semesters.Create(c.Request.Context(), req, requestMeta(c))
	reply(c, http.StatusCreated, semester, err)
}

// UpdateSemester godoc
// @Summary Update semester
// @Tags Academic
// @Accept json
// @Produce json
// @Param id path string true "Semester ID"
// @Param payload body service.SemesterRequest true "Semester payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /semesters/{id} [put]
func (h *AcademicHandler) UpdateSemester(c *gin.Context) {
	var req service.SemesterRequest
	if !bindJSON(c, &req) {
		return
	}
	semester, err := h.semesters.Update(c.Request.Context(), c.Param("id"), req, requestMeta(c))
	reply(c, http.StatusOK, semester, err)
}

// DeleteSemester godoc
// @Summary Delete semester
// @Tags Academic
// @Param id path string true "Semester ID"
// @Success 204
// @Security BearerAuth
// @Router /semesters/{id} [delete]
func (h *AcademicHandler) DeleteSemester(c *gin.Context) {
	replyEmpty(c, h.semesters.Delete(c.Request.Context(), c.Param("id"), requestMeta(c)))
}

// ActivateSemester godoc
// @Summary Mark semester as the active one of its year
// @Tags Academic
// @Produce json
// @Param id path string true "Semester ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /semesters/{id}/activate [post]
func (h *AcademicHandler) ActivateSemester(c *gin.Context) {
	semester, err := h.semesters.Activate(c.Request.Context(), c.Param("id"), requestMeta(c))
	reply(c, http.StatusOK, semester, err)
}

// ListGradeLevels godoc
// @Summary List grade levels
// @Tags Academic
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grade-levels [get]
func (h *AcademicHandler) ListGradeLevels(c *gin.Context) {
	levels, err := h.gradeLevels.List(c.Request.Context())
	reply(c, http.StatusOK, levels, err)
}

// CreateGradeLevel godoc
// @Summary Create grade level
// @Tags Academic
// @Accept json
// @Produce json
// @Param payload body service.GradeLevelRequest true "Grade level payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /grade-levels [post]
func (h *AcademicHandler) CreateGradeLevel(c *gin.Context) {
	var req service.GradeLevelRequest
	if !bindJSON(c, &req) {
		return
	}
	level, err := h.gradeLevels.Create(c.Request.Context(), req, requestMeta(c))
	reply(c, http.StatusCreated, level, err)
}

// UpdateGradeLevel godoc
// @Summary Update grade level
// @Tags Academic
// @Accept json
// @Produce json
// @Param id path string true "Grade level ID"
// @Param payload body service.GradeLevelRequest true "Grade level payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /grade-levels/{id} [put]
func (h *AcademicHandler) UpdateGradeLevel(c *gin.Context) {
	var req service.GradeLevelRequest
	if !bindJSON(c, &req) {
		return
	}
	level, err := h.gradeLevels.Update(c.Request.Context(), c.Param("id"), req, requestMeta(c))
	reply(c, http.StatusOK, level, err)
}

// DeleteGradeLevel godoc
// @Summary Delete grade level
// @Tags Academic
// @Param id path string true "Grade level ID"
// @Success 204
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /grade-levels/{id} [delete]
func (h *AcademicHandler) DeleteGradeLevel(c *gin.Context) {
	replyEmpty(c, h.gradeLevels.Delete(c.Request.Context(), c.Param("id"), requestMeta(c)))
}
