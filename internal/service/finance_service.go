package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/repository"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type transactionRepository interface {
	List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, int, error)
	Create(ctx context.Context, txn *models.Transaction) error
	Summary(ctx context.Context, from, to *time.Time) (*models.FinanceSummary, error)
}

type invoiceRepository interface {
	List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error)
	FindByID(ctx context.Context, id string) (*models.Invoice, error)
	ExistsOpenWithTitle(ctx context.Context, studentID, title string) (bool, error)
	Create(ctx context.Context, invoice *models.Invoice) error
	BulkCreate(ctx context.Context, invoices []models.Invoice) ([]models.Invoice, []string, error)
	Pay(ctx context.Context, id string, txn *models.Transaction) (*models.Invoice, error)
	Cancel(ctx context.Context, id string) error
}

// CreateTransactionRequest records a manual ledger entry.
type CreateTransactionRequest struct {
	Type        models.TransactionType `json:"type" validate:"required,oneof=INCOME EXPENSE"`
	Category    string                 `json:"category" validate:"required,max=50"`
	Amount      int64                  `json:"amount" validate:"gt=0"`
	Description string                 `json:"description" validate:"max=255"`
	StudentID   *string                `json:"student_id"`
	OccurredAt  *time.Time             `json:"occurred_at"`
}

// CreateInvoiceRequest bills one student.
type CreateInvoiceRequest struct {
	StudentID string    `json:"student_id" validate:"required"`
	Title     string    `json:"title" validate:"required,max=150"`
	Amount    int64     `json:"amount" validate:"gt=0"`
	DueDate   time.Time `json:"due_date" validate:"required"`
}

// BulkInvoiceRequest bills every actively enrolled student of a class.
type BulkInvoiceRequest struct {
	ClassID string    `json:"class_id" validate:"required"`
	Title   string    `json:"title" validate:"required,max=150"`
	Amount  int64     `json:"amount" validate:"gt=0"`
	DueDate time.Time `json:"due_date" validate:"required"`
}

// PayInvoiceRequest settles an invoice.
type PayInvoiceRequest struct {
	Category    string     `json:"category" validate:"omitempty,max=50"`
	Description string     `json:"description" validate:"max=255"`
	PaidAt      *time.Time `json:"paid_at"`
}

const defaultPaymentCategory = "TUITION"

// FinanceService manages the ledger and student invoices.
type FinanceService struct {
	transactions transactionRepository
	invoices     invoiceRepository
	students     studentReader
	roster       rosterReader
	classes      classReader
	audit        auditRecorder
	validator    *validator.Validate
	logger       *zap.Logger
	now          func() time.Time
}

// NewFinanceService constructs a FinanceService.
func NewFinanceService(transactions transactionRepository, invoices invoiceRepository, students studentReader, roster rosterReader, classes classReader, audit auditRecorder, validate *validator.Validate, logger *zap.Logger) *FinanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if audit == nil {
		audit = nopAudit{}
	}
	return &FinanceService{
		transactions: transactions,
		invoices:     invoices,
		students:     students,
		roster:       roster,
		classes:      classes,
		audit:        audit,
		validator:    validate,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// ListTransactions returns ledger entries.
func (s *FinanceService) ListTransactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, *models.Pagination, error) {
	if err := checkRange(filter.From, filter.To); err != nil {
		return nil, nil, err
	}
	txns, total, err := s.transactions.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list transactions")
	}
	if txns == nil {
		txns = []models.Transaction{}
	}
	return txns, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// CreateTransaction records a manual income or expense.
func (s *FinanceService) CreateTransaction(ctx context.Context, req CreateTransactionRequest, meta models.RequestMeta) (*models.Transaction, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid transaction payload")
	}
	studentID := normalizeOptionalID(req.StudentID)
	if studentID != nil {
		if _, err := s.students.FindByID(ctx, *studentID); err != nil {
			return nil, referenceError(err, "student not found", "failed to load student")
		}
	}
	txn := &models.Transaction{
		Type:        req.Type,
		Category:    strings.ToUpper(strings.TrimSpace(req.Category)),
		Amount:      req.Amount,
		Description: strings.TrimSpace(req.Description),
		StudentID:   studentID,
		RecordedBy:  meta.ActorID,
	}
	if req.OccurredAt != nil {
		txn.OccurredAt = req.OccurredAt.UTC()
	}
	if err := s.transactions.Create(ctx, txn); err != nil {
		return nil, internalError(err, "failed to create transaction")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionCreate, "transactions", txn.ID, nil, txn))
	return txn, nil
}

// Summary totals the ledger over an optional window.
func (s *FinanceService) Summary(ctx context.Context, from, to *time.Time) (*models.FinanceSummary, error) {
	if err := checkRange(from, to); err != nil {
		return nil, err
	}
	summary, err := s.transactions.Summary(ctx, from, to)
	if err != nil {
		return nil, internalError(err, "failed to compute finance summary")
	}
	return summary, nil
}

// ListInvoices returns invoices with the derived overdue flag.
func (s *FinanceService) ListInvoices(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, *models.Pagination, error) {
	switch filter.Status {
	case "", models.InvoiceUnpaid, models.InvoicePaid, models.InvoiceCancelled:
	default:
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "invalid invoice status")
	}
	if filter.Now.IsZero() {
		filter.Now = s.now()
	}
	invoices, total, err := s.invoices.List(ctx, filter)
	if err != nil {
		return nil, nil, internalError(err, "failed to list invoices")
	}
	if invoices == nil {
		invoices = []models.Invoice{}
	}
	return invoices, models.NewPagination(filter.Page, filter.PageSize, total), nil
}

// GetInvoice returns one invoice.
func (s *FinanceService) GetInvoice(ctx context.Context, id string) (*models.Invoice, error) {
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "invoice not found", "failed to load invoice")
	}
	invoice.MarkOverdue(s.now())
	return invoice, nil
}

// CreateInvoice bills one student.
func (s *FinanceService) CreateInvoice(ctx context.Context, req CreateInvoiceRequest, meta models.RequestMeta) (*models.Invoice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid invoice payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		return nil, referenceError(err, "student not found", "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student is inactive")
	}
	title := strings.TrimSpace(req.Title)
	exists, err := s.invoices.ExistsOpenWithTitle(ctx, student.ID, title)
	if err != nil {
		return nil, internalError(err, "failed to check invoice title")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student already has an invoice with this title")
	}

	now := s.now()
	invoice := &models.Invoice{
		InvoiceNumber: invoiceNumber(now),
		StudentID:     student.ID,
		Title:         title,
		Amount:        req.Amount,
		DueDate:       req.DueDate.UTC(),
		CreatedBy:     meta.ActorID,
	}
	if err := s.invoices.Create(ctx, invoice); err != nil {
		return nil, internalError(err, "failed to create invoice")
	}
	invoice.MarkOverdue(now)
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionInvoiceCreate, "invoices", invoice.ID, nil, invoice))
	return invoice, nil
}

// BulkCreateInvoices bills every actively enrolled student of a class in one
// database transaction. Students that already hold an invoice with the same
// title are reported as skipped.
func (s *FinanceService) BulkCreateInvoices(ctx context.Context, req BulkInvoiceRequest, meta models.RequestMeta) (*models.BulkInvoiceResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid bulk invoice payload")
	}
	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		return nil, lookupError(err, "class not found", "failed to load class")
	}
	roster, err := s.roster.ListActiveStudents(ctx, req.ClassID)
	if err != nil {
		return nil, internalError(err, "failed to load class roster")
	}
	if len(roster) == 0 {
		return &models.BulkInvoiceResult{Created: []models.Invoice{}, SkippedStudents: []string{}}, nil
	}

	now := s.now()
	title := strings.TrimSpace(req.Title)
	invoices := make([]models.Invoice, 0, len(roster))
	for _, student := range roster {
		invoices = append(invoices, models.Invoice{
			InvoiceNumber: invoiceNumber(now),
			StudentID:     student.ID,
			Title:         title,
			Amount:        req.Amount,
			DueDate:       req.DueDate.UTC(),
			CreatedBy:     meta.ActorID,
		})
	}
	created, skipped, err := s.invoices.BulkCreate(ctx, invoices)
	if err != nil {
		return nil, internalError(err, "failed to create invoices")
	}
	for i := range created {
		created[i].MarkOverdue(now)
	}

	s.logger.Info("bulk invoices created",
		zap.String("class_id", req.ClassID),
		zap.Int("created", len(created)),
		zap.Int("skipped", len(skipped)),
	)
	result := &models.BulkInvoiceResult{Created: created, SkippedStudents: skipped}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionInvoiceBulk, "invoices", req.ClassID, nil, map[string]interface{}{
		"title":    title,
		"amount":   req.Amount,
		"created":  len(created),
		"skipped":  skipped,
		"class_id": req.ClassID,
	}))
	return result, nil
}

// PayInvoice settles an UNPAID invoice and records the matching income.
func (s *FinanceService) PayInvoice(ctx context.Context, id string, req PayInvoiceRequest, meta models.RequestMeta) (*models.Invoice, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, validationError(err, "invalid payment payload")
	}
	current, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "invoice not found", "failed to load invoice")
	}
	category := strings.ToUpper(strings.TrimSpace(req.Category))
	if category == "" {
		category = defaultPaymentCategory
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = fmt.Sprintf("Payment for %s", current.InvoiceNumber)
	}
	txn := &models.Transaction{
		Category:    category,
		Description: description,
		RecordedBy:  meta.ActorID,
	}
	if req.PaidAt != nil {
		txn.OccurredAt = req.PaidAt.UTC()
	} else {
		txn.OccurredAt = s.now()
	}

	invoice, err := s.invoices.Pay(ctx, id, txn)
	if err != nil {
		return nil, invoiceStateError(err, "invoice is not unpaid", "failed to pay invoice")
	}
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionInvoicePay, "invoices", id, current, map[string]interface{}{
		"invoice":     invoice,
		"transaction": txn,
	}))
	return invoice, nil
}

// CancelInvoice cancels an UNPAID invoice.
func (s *FinanceService) CancelInvoice(ctx context.Context, id string, meta models.RequestMeta) (*models.Invoice, error) {
	invoice, err := s.invoices.FindByID(ctx, id)
	if err != nil {
		return nil, lookupError(err, "invoice not found", "failed to load invoice")
	}
	if err := s.invoices.Cancel(ctx, id); err != nil {
		return nil, invoiceStateError(err, "only unpaid invoices can be cancelled", "failed to cancel invoice")
	}
	before := *invoice
	invoice.Status = models.InvoiceCancelled
	invoice.Overdue = false
	s.audit.Record(ctx, newAuditEntry(meta, models.AuditActionInvoiceCancel, "invoices", id, before, invoice))
	return invoice, nil
}

// invoiceNumber builds INV-YYYYMM-XXXXXXXX from the issue month and a random suffix.
func invoiceNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return fmt.Sprintf("INV-%s-%s", now.Format("200601"), suffix)
}

func invoiceStateError(err error, conflict, failed string) error {
	if errors.Is(err, repository.ErrStateConflict) {
		return appErrors.Clone(appErrors.ErrConflict, conflict)
	}
	return lookupError(err, "invoice not found", failed)
}

func checkRange(from, to *time.Time) error {
	if from != nil && to != nil && to.Before(*from) {
		return appErrors.Clone(appErrors.ErrValidation, "to must not be before from")
	}
	return nil
}
