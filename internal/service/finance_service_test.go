package service

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/school-admin-api/internal/models"
	"github.com/noah-isme/school-admin-api/internal/repository"
	appErrors "github.com/noah-isme/school-admin-api/pkg/errors"
)

type mockTransactionRepo struct {
	created []models.Transaction
	summary models.FinanceSummary
}

func (m *mockTransactionRepo) List(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, int, error) {
	return m.created, len(m.created), nil
}

func (m *mockTransactionRepo) Create(ctx context.Context, txn *models.Transaction) error {
	txn.ID = "txn-new"
	m.created = append(m.created, *txn)
	return nil
}

func (m *mockTransactionRepo) Summary(ctx context.Context, from, to *time.Time) (*models.FinanceSummary, error) {
	summary := m.summary
	summary.From, summary.To = from, to
	summary.Balance = summary.Income - summary.Expense
	return &summary, nil
}

type mockInvoiceRepo struct {
	invoices  map[string]models.Invoice
	openTitle map[string]bool
	bulk      []models.Invoice
	paid      []models.Transaction
	payErr    error
	cancelErr error
}

func (m *mockInvoiceRepo) List(ctx context.Context, filter models.InvoiceFilter) ([]models.Invoice, int, error) {
	out := make([]models.Invoice, 0, len(m.invoices))
	for _, inv := range m.invoices {
		inv.MarkOverdue(filter.Now)
		out = append(out, inv)
	}
	return out, len(out), nil
}

func (m *mockInvoiceRepo) FindByID(ctx context.Context, id string) (*models.Invoice, error) {
	if inv, ok := m.invoices[id]; ok {
		return &inv, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockInvoiceRepo) ExistsOpenWithTitle(ctx context.Context, studentID, title string) (bool, error) {
	return m.openTitle[studentID+"/"+title], nil
}

func (m *mockInvoiceRepo) Create(ctx context.Context, invoice *models.Invoice) error {
	invoice.ID = "inv-new"
	invoice.Status = models.InvoiceUnpaid
	m.invoices[invoice.ID] = *invoice
	return nil
}

func (m *mockInvoiceRepo) BulkCreate(ctx context.Context, invoices []models.Invoice) ([]models.Invoice, []string, error) {
	m.bulk = invoices
	var created []models.Invoice
	var skipped []string
	for _, inv := range invoices {
		if m.openTitle[inv.StudentID+"/"+inv.Title] {
			skipped = append(skipped, inv.StudentID)
			continue
		}
		inv.Status = models.InvoiceUnpaid
		created = append(created, inv)
	}
	return created, skipped, nil
}

func (m *mockInvoiceRepo) Pay(ctx context.Context, id string, txn *models.Transaction) (*models.Invoice, error) {
	if m.payErr != nil {
		return nil, m.payErr
	}
	inv := m.invoices[id]
	txn.ID = "txn-pay"
	txn.Type = models.TransactionIncome
	txn.Amount = inv.Amount
	m.paid = append(m.paid, *txn)
	inv.Status = models.InvoicePaid
	inv.TransactionID = &txn.ID
	paidAt := txn.OccurredAt
	inv.PaidAt = &paidAt
	return &inv, nil
}

func (m *mockInvoiceRepo) Cancel(ctx context.Context, id string) error {
	return m.cancelErr
}

var fixedNow = time.Date(2024, 9, 15, 8, 0, 0, 0, time.UTC)

func newFinanceFixture() (*FinanceService, *mockTransactionRepo, *mockInvoiceRepo, *recordingAudit) {
	txns := &mockTransactionRepo{}
	invoices := &mockInvoiceRepo{
		invoices: map[string]models.Invoice{
			"inv-1": {ID: "inv-1", InvoiceNumber: "INV-202409-ABCDEF12", StudentID: "s1", Title: "SPP September",
				Amount: 350000, DueDate: fixedNow.AddDate(0, 0, -5), Status: models.InvoiceUnpaid},
		},
		openTitle: map[string]bool{"s1/SPP September": true},
	}
	students := newMockStudentRepo(
		models.Student{ID: "s1", Active: true},
		models.Student{ID: "s2", Active: true},
		models.Student{ID: "s-old", Active: false},
	)
	roster := &stubRoster{students: map[string][]models.StudentRef{
		"c1": {{ID: "s1"}, {ID: "s2"}},
	}}
	classes := &mockClassReader{classes: map[string]models.Class{"c1": {ID: "c1"}, "c-empty": {ID: "c-empty"}}}
	audit := &recordingAudit{}
	svc := NewFinanceService(txns, invoices, students, roster, classes, audit, nil, nil)
	svc.now = func() time.Time { return fixedNow }
	return svc, txns, invoices, audit
}

func TestFinanceServiceCreateTransaction(t *testing.T) {
	svc, txns, _, audit := newFinanceFixture()
	ctx := context.Background()

	txn, err := svc.CreateTransaction(ctx, CreateTransactionRequest{
		Type: models.TransactionExpense, Category: " utilities ", Amount: 125000, Description: "Electricity",
	}, models.RequestMeta{ActorID: "fin-1"})
	require.NoError(t, err)
	assert.Equal(t, "UTILITIES", txn.Category)
	assert.Equal(t, "fin-1", txn.RecordedBy)
	assert.Len(t, txns.created, 1)
	assert.Equal(t, []string{models.AuditActionCreate}, audit.actions())

	_, err = svc.CreateTransaction(ctx, CreateTransactionRequest{Type: models.TransactionIncome, Category: "x", Amount: 0}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.CreateTransaction(ctx, CreateTransactionRequest{Type: "REFUND", Category: "x", Amount: 10}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.CreateTransaction(ctx, CreateTransactionRequest{
		Type: models.TransactionIncome, Category: "x", Amount: 10, StudentID: strPtr("ghost"),
	}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestFinanceServiceSummary(t *testing.T) {
	svc, txns, _, _ := newFinanceFixture()
	txns.summary = models.FinanceSummary{Income: 1000, Expense: 400, Outstanding: 350}

	summary, err := svc.Summary(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(600), summary.Balance)
	assert.Equal(t, int64(350), summary.Outstanding)

	from := fixedNow
	to := fixedNow.AddDate(0, 0, -1)
	_, err = svc.Summary(context.Background(), &from, &to)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestFinanceServiceCreateInvoice(t *testing.T) {
	svc, _, invoices, audit := newFinanceFixture()
	ctx := context.Background()

	invoice, err := svc.CreateInvoice(ctx, CreateInvoiceRequest{
		StudentID: "s2", Title: "SPP September", Amount: 350000, DueDate: fixedNow.AddDate(0, 0, 10),
	}, models.RequestMeta{ActorID: "fin-1"})
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^INV-202409-[0-9A-F]{8}$`), invoice.InvoiceNumber)
	assert.False(t, invoice.Overdue)
	assert.Contains(t, invoices.invoices, "inv-new")
	assert.Equal(t, []string{models.AuditActionInvoiceCreate}, audit.actions())

	_, err = svc.CreateInvoice(ctx, CreateInvoiceRequest{
		StudentID: "s1", Title: "SPP September", Amount: 350000, DueDate: fixedNow,
	}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = svc.CreateInvoice(ctx, CreateInvoiceRequest{
		StudentID: "s-old", Title: "SPP", Amount: 1, DueDate: fixedNow,
	}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrPreconditionFailed))
}

func TestFinanceServiceBulkCreateInvoices(t *testing.T) {
	svc, _, invoices, audit := newFinanceFixture()
	ctx := context.Background()

	result, err := svc.BulkCreateInvoices(ctx, BulkInvoiceRequest{
		ClassID: "c1", Title: "SPP September", Amount: 350000, DueDate: fixedNow.AddDate(0, 0, 10),
	}, models.RequestMeta{ActorID: "fin-1"})
	require.NoError(t, err)
	assert.Len(t, invoices.bulk, 2)
	require.Len(t, result.Created, 1)
	assert.Equal(t, "s2", result.Created[0].StudentID)
	assert.Equal(t, []string{"s1"}, result.SkippedStudents)
	assert.NotEqual(t, invoices.bulk[0].InvoiceNumber, invoices.bulk[1].InvoiceNumber)
	assert.Equal(t, []string{models.AuditActionInvoiceBulk}, audit.actions())

	empty, err := svc.BulkCreateInvoices(ctx, BulkInvoiceRequest{
		ClassID: "c-empty", Title: "SPP", Amount: 1, DueDate: fixedNow,
	}, models.RequestMeta{})
	require.NoError(t, err)
	assert.Empty(t, empty.Created)

	_, err = svc.BulkCreateInvoices(ctx, BulkInvoiceRequest{
		ClassID: "missing", Title: "SPP", Amount: 1, DueDate: fixedNow,
	}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestFinanceServicePayInvoice(t *testing.T) {
	svc, _, invoices, audit := newFinanceFixture()
	ctx := context.Background()

	invoice, err := svc.PayInvoice(ctx, "inv-1", PayInvoiceRequest{}, models.RequestMeta{ActorID: "fin-1"})
	require.NoError(t, err)
	assert.Equal(t, models.InvoicePaid, invoice.Status)
	require.NotNil(t, invoice.TransactionID)
	require.Len(t, invoices.paid, 1)
	assert.Equal(t, defaultPaymentCategory, invoices.paid[0].Category)
	assert.Equal(t, "Payment for INV-202409-ABCDEF12", invoices.paid[0].Description)
	assert.Equal(t, fixedNow, invoices.paid[0].OccurredAt)
	assert.Equal(t, []string{models.AuditActionInvoicePay}, audit.actions())

	invoices.payErr = repository.ErrStateConflict
	_, err = svc.PayInvoice(ctx, "inv-1", PayInvoiceRequest{}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))

	_, err = svc.PayInvoice(ctx, "missing", PayInvoiceRequest{}, models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestFinanceServiceCancelInvoice(t *testing.T) {
	svc, _, invoices, audit := newFinanceFixture()
	ctx := context.Background()

	invoice, err := svc.CancelInvoice(ctx, "inv-1", models.RequestMeta{})
	require.NoError(t, err)
	assert.Equal(t, models.InvoiceCancelled, invoice.Status)
	assert.Equal(t, []string{models.AuditActionInvoiceCancel}, audit.actions())

	invoices.cancelErr = repository.ErrStateConflict
	_, err = svc.CancelInvoice(ctx, "inv-1", models.RequestMeta{})
	assert.True(t, errors.Is(err, appErrors.ErrConflict))
}

func TestFinanceServiceListInvoicesDerivesOverdue(t *testing.T) {
	svc, _, _, _ := newFinanceFixture()

	items, _, err := svc.ListInvoices(context.Background(), models.InvoiceFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.True(t, items[0].Overdue)

	_, _, err = svc.ListInvoices(context.Background(), models.InvoiceFilter{Status: "LATE"})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
