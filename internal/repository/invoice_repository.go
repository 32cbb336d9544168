package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-admin-api/internal/models"
)

const invoiceColumns = `id, invoice_number, student_id, title, amount, due_date, status, paid_at, transaction_id, created_by, created_at, updated_at`

const insertInvoice = `INSERT INTO invoices (id, invoice_number, student_id, title, amount, due_date, status, paid_at, transaction_id, created_by, created_at, updated_at)
VALUES (:id, :invoice_number, :student_id, :title, :amount, :due_date, :status, :paid_at, :transaction_id, :created_by, :created_at, :updated_at)`

// InvoiceRepository persists invoices and their settlement.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository constructs the repository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// List returns invoices matching the filter with the overdue flag derived
// against filter.Now.
func (r *InvoiceRepository) List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error) {
	now := filter.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	var conds conditions
	if filter.StudentID != "" {
		conds.add("student_id = $%d", filter.StudentID)
	}
	if filter.Status != "" {
		conds.add("status = $%d", filter.Status)
	}
	if filter.OverdueOnly {
		conds.add("status = 'UNPAID' AND due_date < $%d", now)
	}
	base := "FROM invoices" + conds.where("WHERE")
	order := orderBy(map[string]string{
		"due_date":   "due_date",
		"amount":     "amount",
		"created_at": "created_at",
	}, filter.SortBy, filter.SortOrder, "due_date", "ASC")
	limit, offset := paginate(filter.Page, filter.PageSize)

	var invoices []models.Invoice
	query := fmt.Sprintf("SELECT %s %s ORDER BY %s LIMIT %d OFFSET %d", invoiceColumns, base, order, limit, offset)
	if err := r.db.SelectContext(ctx, &invoices, query, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("list invoices: %w", err)
	}
	for i := range invoices {
		invoices[i].MarkOverdue(now)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("count invoices: %w", err)
	}
	return invoices, total, nil
}

// FindByID returns an invoice.
func (r *InvoiceRepository) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.db.GetContext(ctx, &invoice, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	invoice.MarkOverdue(time.Now().UTC())
	return &invoice, nil
}

// ExistsOpenWithTitle reports whether the student holds a non-cancelled
// invoice with the same title.
func (r *InvoiceRepository) ExistsOpenWithTitle(ctx context.Context, studentID, title string) (bool, error) {
	var exists bool
	const query = `SELECT EXISTS(SELECT 1 FROM invoices WHERE student_id = $1 AND LOWER(title) = LOWER($2) AND status <> 'CANCELLED')`
	if err := r.db.GetContext(ctx, &exists, query, studentID, title); err != nil {
		return false, fmt.Errorf("check invoice title: %w", err)
	}
	return exists, nil
}

// Create inserts a single invoice.
func (r *InvoiceRepository) Create(ctx context.Context, invoice *models.Invoice) error {
	prepareInvoice(invoice, time.Now().UTC())
	if _, err := r.db.NamedExecContext(ctx, insertInvoice, invoice); err != nil {
		return fmt.Errorf("create invoice: %w", err)
	}
	return nil
}

// BulkCreate inserts invoices in one transaction. Students that already hold
// a non-cancelled invoice with the same title are skipped and returned.
func (r *InvoiceRepository) BulkCreate(ctx context.Context, invoices []models.Invoice) (created []models.Invoice, skipped []string, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin bulk invoice tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	const dupQuery = `SELECT EXISTS(SELECT 1 FROM invoices WHERE student_id = $1 AND LOWER(title) = LOWER($2) AND status <> 'CANCELLED')`
	now := time.Now().UTC()
	created = make([]models.Invoice, 0, len(invoices))
	skipped = make([]string, 0)
	for i := range invoices {
		invoice := invoices[i]
		var exists bool
		if err = tx.GetContext(ctx, &exists, dupQuery, invoice.StudentID, invoice.Title); err != nil {
			return nil, nil, fmt.Errorf("check invoice title: %w", err)
		}
		if exists {
			skipped = append(skipped, invoice.StudentID)
			continue
		}
		prepareInvoice(&invoice, now)
		if _, err = tx.NamedExecContext(ctx, insertInvoice, &invoice); err != nil {
			return nil, nil, fmt.Errorf("create invoice: %w", err)
		}
		created = append(created, invoice)
	}

	if err = tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit bulk invoice tx: %w", err)
	}
	return created, skipped, nil
}

// Pay settles an UNPAID invoice: it inserts the INCOME transaction and marks
// the invoice PAID atomically. ErrStateConflict is returned when the invoice
// is no longer UNPAID.
func (r *InvoiceRepository) Pay(ctx context.Context, id string, txn *models.Transaction) (invoice *models.Invoice, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin pay tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var current models.Invoice
	if err = tx.GetContext(ctx, &current, `SELECT `+invoiceColumns+` FROM invoices WHERE id = $1 FOR UPDATE`, id); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("lock invoice: %w", err)
	}
	if current.Status != models.InvoiceUnpaid {
		err = ErrStateConflict
		return nil, err
	}

	prepareTransaction(txn)
	txn.Type = models.TransactionIncome
	txn.Amount = current.Amount
	txn.StudentID = &current.StudentID
	txn.InvoiceID = &current.ID
	if _, err = tx.NamedExecContext(ctx, insertTransaction, txn); err != nil {
		return nil, fmt.Errorf("create payment transaction: %w", err)
	}

	paidAt := txn.OccurredAt
	current.Status = models.InvoicePaid
	current.PaidAt = &paidAt
	current.TransactionID = &txn.ID
	current.UpdatedAt = time.Now().UTC()
	const update = `UPDATE invoices SET status = $2, paid_at = $3, transaction_id = $4, updated_at = $5 WHERE id = $1 AND status = 'UNPAID'`
	if _, err = tx.ExecContext(ctx, update, current.ID, current.Status, current.PaidAt, current.TransactionID, current.UpdatedAt); err != nil {
		return nil, fmt.Errorf("mark invoice paid: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit pay tx: %w", err)
	}
	return &current, nil
}

// Cancel moves an UNPAID invoice to CANCELLED.
func (r *InvoiceRepository) Cancel(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE invoices SET status = 'CANCELLED', updated_at = $2 WHERE id = $1 AND status = 'UNPAID'`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("cancel invoice: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("cancel invoice: %w", err)
	}
	if affected == 0 {
		return ErrStateConflict
	}
	return nil
}

func prepareInvoice(invoice *models.Invoice, now time.Time) {
	if invoice.ID == "" {
		invoice.ID = uuid.NewString()
	}
	if invoice.Status == "" {
		invoice.Status = models.InvoiceUnpaid
	}
	invoice.CreatedAt, invoice.UpdatedAt = now, now
}
