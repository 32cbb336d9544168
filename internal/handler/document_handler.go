package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/service"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
	"github.com/noah-isme/school-admin-api/pkg/response"
)

type documentService interface {
	Upload(ctx context.Context, req service.DocumentUploadRequest, upload service.DocumentUpload, meta models.RequestMeta) (*models.Document, error)
	List(ctx context.Context, filter models.DocumentFilter, actor *models.JWTClaims) ([]models.Document, *models.Pagination, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Document, error)
	DownloadURL(ctx context.Context, id string, actor *models.JWTClaims) (*models.DocumentDownload, error)
	Open(ctx context.Context, id, token string) (*service.DocumentFile, error)
	Delete(ctx context.Context, id string, meta models.RequestMeta) error
}

// DocumentHandler manages document HTTP endpoints.
type DocumentHandler struct {
	service documentService
}

// NewDocumentHandler constructs the handler.
func NewDocumentHandler(svc documentService) *DocumentHandler {
	return &DocumentHandler{service: svc}
}

// Upload godoc
// @Summary Upload document
// @Tags Documents
// @Accept multipart/form-data
// @Produce json
// @Param title formData string true "Title"
// @Param category formData string true "Category"
// @Param scope formData string true "GENERAL, CLASS or STUDENT"
// @Param ref_id formData string false "Class or student reference"
// @Param file formData file true "Document"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Security BearerAuth
// @Router /documents [post]
func (h *DocumentHandler) Upload(c *gin.Context) {
	var req service.DocumentUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid document payload"))
		return
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "file is required"))
		return
	}
	src, err := fileHeader.Open()
	if err != nil {
		response.Error(c, appErrors.WrapAs(appErrors.ErrInternal, err, "failed to open file"))
		return
	}
	defer src.Close() //nolint:errcheck

	doc, err := h.service.Upload(c.Request.Context(), req, service.DocumentUpload{
		FileName: fileHeader.Filename,
		MimeType: fileHeader.Header.Get("Content-Type"),
		Content:  src,
	}, requestMeta(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, doc)
}

// List godoc
// @Summary List documents
// @Description Students only see GENERAL documents and their own STUDENT documents
// @Tags Documents
// @Produce json
// @Param scope query string false "Scope filter"
// @Param category query string false "Category filter"
// @Param refId query string false "Class or student reference"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /documents [get]
func (h *DocumentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	filter := models.DocumentFilter{
		Scope:    models.DocumentScope(strings.TrimSpace(c.Query("scope"))),
		Category: strings.TrimSpace(c.Query("category")),
		RefID:    strings.TrimSpace(c.Query("refId")),
	}
	filter.Page, filter.PageSize = pageParams(c)

	docs, pagination, err := h.service.List(c.Request.Context(), filter, claims)
	replyPage(c, docs, pagination, err)
}

// Get godoc
// @Summary Get document metadata with a signed download link
// @Tags Documents
// @Produce json
// @Param id path string true "Document ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Security BearerAuth
// @Router /documents/{id} [get]
func (h *DocumentHandler) Get(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	doc, err := h.service.Get(c.Request.Context(), c.Param("id"), claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	link, err := h.service.DownloadURL(c.Request.Context(), doc.ID, claims)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, doc, nil, map[string]interface{}{
		"download_url": link.URL,
		"expires_at":   link.ExpiresAt,
	})
}

// Download godoc
// @Summary Download document via signed token
// @Tags Documents
// @Produce octet-stream
// @Param id path string true "Document ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /documents/{id}/download [get]
func (h *DocumentHandler) Download(c *gin.Context) {
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	file, err := h.service.Open(c.Request.Context(), c.Param("id"), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.File.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", file.FileName))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, file.SizeBytes, file.MimeType, file.File, nil)
}

// Delete godoc
// @Summary Soft delete a document
// @Tags Documents
// @Param id path string true "Document ID"
// @Success 204
// @Security BearerAuth
// @Router /documents/{id} [delete]
func (h *DocumentHandler) Delete(c *gin.Context) {
	replyEmpty(c, h.service.Delete(c.Request.Context(), c.Param("id"), requestMeta(c)))
}
