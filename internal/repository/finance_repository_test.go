package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-admin-api/internal/models"
)

var invoiceRowColumns = []string{"id", "invoice_number", "student_id", "title", "amount", "due_date", "status", "paid_at", "transaction_id", "created_by", "created_at", "updated_at"}

func TestInvoicePayCreatesIncomeTransaction(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("FROM invoices WHERE id = $1 FOR UPDATE")).
		WithArgs("inv-1").
		WillReturnRows(sqlmock.NewRows(invoiceRowColumns).
			AddRow("inv-1", "INV-202409-abcdef12", "stu-1", "Tuition", int64(500000), now, "UNPAID", nil, nil, "admin", now, now))
	mock.ExpectExec("INSERT INTO transactions").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE invoices SET status = $2, paid_at = $3, transaction_id = $4, updated_at = $5 WHERE id = $1 AND status = 'UNPAID'")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	txn := &models.Transaction{Category: "tuition", RecordedBy: "finance-1"}
	invoice, err := repo.Pay(context.Background(), "inv-1", txn)
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, invoice.Status)
	require.NotNil(t, invoice.TransactionID)
	assert.Equal(t, txn.ID, *invoice.TransactionID)
	assert.Equal(t, models.TransactionIncome, txn.Type)
	assert.Equal(t, int64(500000), txn.Amount)
	require.NotNil(t, txn.InvoiceID)
	assert.Equal(t, "inv-1", *txn.InvoiceID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoicePayRejectsSettledInvoice(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("FOR UPDATE").
		WillReturnRows(sqlmock.NewRows(invoiceRowColumns).
			AddRow("inv-1", "INV-202409-abcdef12", "stu-1", "Tuition", int64(500000), now, "PAID", now, "txn-1", "admin", now, now))
	mock.ExpectRollback()

	_, err := repo.Pay(context.Background(), "inv-1", &models.Transaction{})
	assert.ErrorIs(t, err, ErrStateConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceBulkCreateSkipsExistingTitles(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").WithArgs("stu-1", "Tuition").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery("SELECT EXISTS").WithArgs("stu-2", "Tuition").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectExec("INSERT INTO invoices").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	created, skipped, err := repo.BulkCreate(context.Background(), []models.Invoice{
		{InvoiceNumber: "INV-1", StudentID: "stu-1", Title: "Tuition", Amount: 100},
		{InvoiceNumber: "INV-2", StudentID: "stu-2", Title: "Tuition", Amount: 100},
	})
	require.NoError(t, err)
	require.Len(t, created, 1)
	assert.Equal(t, "stu-2", created[0].StudentID)
	assert.Equal(t, models.InvoiceUnpaid, created[0].Status)
	assert.Equal(t, []string{"stu-1"}, skipped)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInvoiceListDerivesOverdue(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewInvoiceRepository(db)

	now := time.Date(2024, 10, 1, 0, 0, 0, 0, time.UTC)
	past := now.AddDate(0, 0, -3)
	mock.ExpectQuery(regexp.QuoteMeta("FROM invoices WHERE status = 'UNPAID' AND due_date < $1 ORDER BY due_date ASC")).
		WithArgs(now).
		WillReturnRows(sqlmock.NewRows(invoiceRowColumns).
			AddRow("inv-1", "INV-1", "stu-1", "Tuition", int64(100), past, "UNPAID", nil, nil, "admin", past, past))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM invoices")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	invoices, total, err := repo.List(context.Background(), models.InvoiceFilter{OverdueOnly: true, Now: now})
	require.NoError(t, err)
	require.Len(t, invoices, 1)
	assert.True(t, invoices[0].Overdue)
	assert.Equal(t, 1, total)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinanceSummaryComputesBalance(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewTransactionRepository(db)

	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("FROM transactions WHERE occurred_at >= $1")).
		WithArgs(from).
		WillReturnRows(sqlmock.NewRows([]string{"income", "expense", "outstanding"}).AddRow(int64(900), int64(400), int64(250)))

	summary, err := repo.Summary(context.Background(), &from, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(500), summary.Balance)
	assert.Equal(t, int64(250), summary.Outstanding)
	assert.Equal(t, &from, summary.From)
	assert.NoError(t, mock.ExpectationsWereMet())
}
