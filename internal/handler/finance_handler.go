package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/service"
	"github.com/noah-isme/school-admin-api/pkg/response"
)

type financeService interface {
	ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, *models.Pagination, error)
	CreateTransaction(ctx context.Context, req service.CreateTransactionRequest, meta models.RequestMeta) (*models.Transaction, error)
	Summary(ctx context.Context, from, to *time.Time) (*models.FinanceSummary, error)
	ListInvoices(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, *models.Pagination, error)
	GetInvoice(ctx context.Context, id string) (*models.Invoice, error)
	CreateInvoice(ctx context.Context, req service.CreateInvoiceRequest, meta models.RequestMeta) (*models.Invoice, error)
	BulkCreateInvoices(ctx context.Context, req service.BulkInvoiceRequest, meta models.RequestMeta) (*models.BulkInvoiceResult, error)
	PayInvoice(ctx context.Context, id string, req service.PayInvoiceRequest, meta models.RequestMeta) (*models.Invoice, error)
	CancelInvoice(ctx context.Context, id string, meta models.RequestMeta) (*models.Invoice, error)
}

// FinanceHandler exposes the ledger and invoice endpoints.
type FinanceHandler struct {
	service financeService
}

// NewFinanceHandler constructs the handler.
func NewFinanceHandler(svc financeService) *FinanceHandler {
	return &FinanceHandler{service: svc}
}

// ListTransactions godoc
// @Summary List ledger transactions
// @Tags Finance
// @Produce json
// @Param type query string false "INCOME or EXPENSE"
// @Param category query string false "Category"
// @Param studentId query string false "Student"
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /finance/transactions [get]
func (h *FinanceHandler) ListTransactions(c *gin.Context) {
	var filter models.TransactionFilter
	var err error
	filter.Type = models.TransactionType(strings.ToUpper(strings.TrimSpace(c.Query("type"))))
	filter.Category = strings.TrimSpace(c.Query("category"))
	filter.StudentID = c.Query("studentId")
	if filter.From, err = optionalDate(c, "from"); err != nil {
		response.Error(c, err)
		return
	}
	if filter.To, err = optionalDate(c, "to"); err != nil {
		response.Error(c, err)
		return
	}
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	transactions, pagination, err := h.service.ListTransactions(c.Request.Context(), filter)
	replyPage(c, transactions, pagination, err)
}

// CreateTransaction godoc
// @Summary Record a ledger transaction
// @Tags Finance
// @Accept json
// @Produce json
// @Param payload body service.CreateTransactionRequest true "Transaction payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /finance/transactions [post]
func (h *FinanceHandler) CreateTransaction(c *gin.Context) {
	var req service.CreateTransactionRequest
	if !bindJSON(c, &req) {
		return
	}
	txn, err := h.service.CreateTransaction(c.Request.Context(), req, requestMeta(c))
	reply(c, http.StatusCreated, txn, err)
}

// Summary godoc
// @Summary Income, expense, balance and outstanding totals
// @Tags Finance
// @Produce json
// @Param from query string false "From date (YYYY-MM-DD)"
// @Param to query string false "To date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /finance/summary [get]
func (h *FinanceHandler) Summary(c *gin.Context) {
	from, err := optionalDate(c, "from")
	if err != nil {
		response.Error(c, err)
		return
	}
	to, err := optionalDate(c, "to")
	if err != nil {
		response.Error(c, err)
		return
	}
	summary, err := h.service.Summary(c.Request.Context(), from, to)
	reply(c, http.StatusOK, summary, err)
}

// ListInvoices godoc
// @Summary List invoices
// @Tags Finance
// @Produce json
// @Param studentId query string false "Student"
// @Param status query string false "UNPAID, PAID or CANCELLED"
// @Param overdue query bool false "Only unpaid invoices past their due date"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /finance/invoices [get]
func (h *FinanceHandler) ListInvoices(c *gin.Context) {
	var filter models.InvoiceFilter
	filter.StudentID = c.Query("studentId")
	filter.Status = models.InvoiceStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	if overdue := optionalBool(c, "overdue"); overdue != nil {
		filter.OverdueOnly = *overdue
	}
	filter.Page, filter.PageSize = pageParams(c)
	filter.SortBy = c.Query("sort")
	filter.SortOrder = c.Query("order")

	invoices, pagination, err := h.service.ListInvoices(c.Request.Context(), filter)
	replyPage(c, invoices, pagination, err)
}

// GetInvoice godoc
// @Summary Get invoice
// @Tags Finance
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /finance/invoices/{id} [get]
func (h *FinanceHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.service.GetInvoice(c.Request.Context(), c.Param("id"))
	reply(c, http.StatusOK, invoice, err)
}

// CreateInvoice godoc
// @Summary Bill one student
// @Tags Finance
// @Accept json
// @Produce json
// @Param payload body service.CreateInvoiceRequest true "Invoice payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /finance/invoices [post]
func (h *FinanceHandler) CreateInvoice(c *gin.Context) {
	var req service.CreateInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}
	invoice, err := h.service.CreateInvoice(c.Request.Context(), req, requestMeta(c))
	reply(c, http.StatusCreated, invoice, err)
}

// BulkCreateInvoices godoc
// @Summary Bill every actively enrolled student of a class
// @Tags Finance
// @Accept json
// @Produce json
// @Param payload body service.BulkInvoiceRequest true "Bulk invoice payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /finance/invoices/bulk [post]
func (h *FinanceHandler) BulkCreateInvoices(c *gin.Context) {
	var req service.BulkInvoiceRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.BulkCreateInvoices(c.Request.Context(), req, requestMeta(c))
	reply(c, http.StatusCreated, result, err)
}

// PayInvoice godoc
// @Summary Settle an unpaid invoice
// @Description Records an INCOME transaction and marks the invoice PAID atomically
// @Tags Finance
// @Accept json
// @Produce json
// @Param id path string true "Invoice ID"
// @Param payload body service.PayInvoiceRequest false "Payment details"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /finance/invoices/{id}/pay [post]
func (h *FinanceHandler) PayInvoice(c *gin.Context) {
	var req service.PayInvoiceRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, bindError(err, "invalid payload"))
			return
		}
	}
	invoice, err := h.service.PayInvoice(c.Request.Context(), c.Param("id"), req, requestMeta(c))
	reply(c, http.StatusOK, invoice, err)
}

// CancelInvoice godoc
// @Summary Cancel an unpaid invoice
// @Tags Finance
// @Produce json
// @Param id path string true "Invoice ID"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Security BearerAuth
// @Router /finance/invoices/{id}/cancel [post]
func (h *FinanceHandler) CancelInvoice(c *gin.Context) {
	invoice, err := h.service.CancelInvoice(c.Request.Context(), c.Param("id"), requestMeta(c))
	reply(c, http.StatusOK, invoice, err)
}
