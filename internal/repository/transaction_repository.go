package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/school-admin-api/internal/models"
)

const transactionColumns = `id, type, category, amount, description, student_id, invoice_id, occurred_at, recorded_by, created_at`

const insertTransaction = `INSERT INTO transactions (id, type, category, amount, description, student_id, invoice_id, occurred_at, recorded_by, created_at)
VALUES (:id, :type, :category, :amount, :description, :student_id, :invoice_id, :occurred_at, :recorded_by, :created_at)`

// TransactionRepository persists ledger entries.
type TransactionRepository struct {
	db *sqlx.DB
}

// NewTransactionRepository constructs the repository.
func NewTransactionRepository(db *sqlx.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// List returns ledger entries matching the filter.
func (r *TransactionRepository) List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, int, error) {
	var conds conditions
	if filter.Type != "" {
		conds.add("type = $%d", filter.Type)
	}
	if filter.Category != "" {
		conds.add("LOWER(category) = LOWER($%d)", filter.Category)
	}
	if filter.StudentID != "" {
		conds.add("student_id = $%d", filter.StudentID)
	}
	if filter.From != nil {
		conds.add("occurred_at >= $%d", *filter.From)
	}
	if filter.To != nil {
		conds.add("occurred_at <= $%d", *filter.To)
	}
	base := "FROM transactions" + conds.where("WHERE")
	order := orderBy(map[string]string{
		"occurred_at": "occurred_at",
		"amount":      "amount",
		"created_at":  "created_at",
	}, filter.SortBy, filter.SortOrder, "occurred_at", "DESC")
	limit, offset := paginate(filter.Page, filter.PageSize)

	var txns []models.Transaction
	query := fmt.Sprintf("SELECT %s %s ORDER BY %s LIMIT %d OFFSET %d", transactionColumns, base, order, limit, offset)
	if err := r.db.SelectContext(ctx, &txns, query, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, conds.args...); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}
	return txns, total, nil
}

// Create inserts a ledger entry.
func (r *TransactionRepository) Create(ctx context.Context, txn *models.Transaction) error {
	prepareTransaction(txn)
	if _, err := r.db.NamedExecContext(ctx, insertTransaction, txn); err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

// Summary totals income and expense in the window plus the amount still
// owed on UNPAID invoices.
func (r *TransactionRepository) Summary(ctx context.Context, from, to *time.Time) (*models.FinanceSummary, error) {
	var conds conditions
	if from != nil {
		conds.add("occurred_at >= $%d", *from)
	}
	if to != nil {
		conds.add("occurred_at <= $%d", *to)
	}
	query := `SELECT
COALESCE(SUM(amount) FILTER (WHERE type = 'INCOME'), 0) AS income,
COALESCE(SUM(amount) FILTER (WHERE type = 'EXPENSE'), 0) AS expense,
(SELECT COALESCE(SUM(amount), 0) FROM invoices WHERE status = 'UNPAID') AS outstanding
FROM transactions` + conds.where("WHERE")

	summary := models.FinanceSummary{From: from, To: to}
	if err := r.db.GetContext(ctx, &summary, query, conds.args...); err != nil {
		return nil, fmt.Errorf("finance summary: %w", err)
	}
	summary.Balance = summary.Income - summary.Expense
	return &summary, nil
}

func prepareTransaction(txn *models.Transaction) {
	if txn.ID == "" {
		txn.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if txn.OccurredAt.IsZero() {
		txn.OccurredAt = now
	}
	txn.CreatedAt = now
}
