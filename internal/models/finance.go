package models

import "time"

// TransactionType distinguishes money in from money out.
type TransactionType string

const (
	TransactionIncome  TransactionType = "INCOME"
	TransactionExpense TransactionType = "EXPENSE"
)

// Transaction is a ledger entry. Amounts are in the smallest currency unit.
type Transaction struct {
	ID          string          `db:"id" json:"id"`
	Type        TransactionType `db:"type" json:"type"`
	Category    string          `db:"category" json:"category"`
	Amount      int64           `db:"amount" json:"amount"`
	Description string          `db:"description" json:"description"`
	StudentID   *string         `db:"student_id" json:"student_id,omitempty"`
	InvoiceID   *string         `db:"invoice_id" json:"invoice_id,omitempty"`
	OccurredAt  time.Time       `db:"occurred_at" json:"occurred_at"`
	RecordedBy  string          `db:"recorded_by" json:"recorded_by"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}

// TransactionFilter narrows ledger listings.
type TransactionFilter struct {
	Type      TransactionType
	Category  string
	StudentID string
	From      *time.Time
	To        *time.Time
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}

// InvoiceStatus tracks the payment state of an invoice.
type InvoiceStatus string

const (
	InvoiceUnpaid    InvoiceStatus = "UNPAID"
	InvoicePaid      InvoiceStatus = "PAID"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

// Invoice is an amount billed to a student.
type Invoice struct {
	ID            string        `db:"id" json:"id"`
	InvoiceNumber string        `db:"invoice_number" json:"invoice_number"`
	StudentID     string        `db:"student_id" json:"student_id"`
	Title         string        `db:"title" json:"title"`
	Amount        int64         `db:"amount" json:"amount"`
	DueDate       time.Time     `db:"due_date" json:"due_date"`
	Status        InvoiceStatus `db:"status" json:"status"`
	PaidAt        *time.Time    `db:"paid_at" json:"paid_at,omitempty"`
	TransactionID *string       `db:"transaction_id" json:"transaction_id,omitempty"`
	CreatedBy     string        `db:"created_by" json:"created_by"`
	CreatedAt     time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time     `db:"updated_at" json:"updated_at"`
	Overdue       bool          `db:"-" json:"overdue"`
}

// MarkOverdue derives the overdue flag relative to now.
func (i *Invoice) MarkOverdue(now time.Time) {
	i.Overdue = i.Status == InvoiceUnpaid && now.After(i.DueDate)
}

// InvoiceFilter narrows invoice listings.
type InvoiceFilter struct {
	StudentID   string
	Status      InvoiceStatus
	OverdueOnly bool
	Now         time.Time
	Page        int
	PageSize    int
	SortBy      string
	SortOrder   string
}

// BulkInvoiceResult reports the outcome of a class-wide invoice run.
type BulkInvoiceResult struct {
	Created         []Invoice `json:"created"`
	SkippedStudents []string  `json:"skipped_students"`
}

// FinanceSummary totals the ledger over a period.
type FinanceSummary struct {
	From        *time.Time `json:"from,omitempty"`
	To          *time.Time `json:"to,omitempty"`
	Income      int64      `db:"income" json:"income"`
	Expense     int64      `db:"expense" json:"expense"`
	Balance     int64      `db:"-" json:"balance"`
	Outstanding int64      `db:"outstanding" json:"outstanding"`
}
