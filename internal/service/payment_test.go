package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"koperasi-backend/internal/domain"
	"koperasi-backend/internal/gateway"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPaymentService(t *testing.T, repo *fakePaymentRepo, loans *fakeLoanStore, rec *fakeReconciler, gw *fakeInvoiceGateway, cache *fakeCache) *PaymentService {
	t.Helper()
	return NewPaymentService(repo, loans, rec, gw, cache, &fakeNotifier{}, zap.NewNop())
}

func TestRecordManualPayment_Validation(t *testing.T) {
	svc := newPaymentService(t, &fakePaymentRepo{}, newFakeLoanStore(), &fakeReconciler{}, nil, nil)

	var vErr *ValidationError

	_, err := svc.RecordManualPayment(context.Background(), ManualPaymentInput{Amount: 100})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "loan_id", vErr.Field)

	_, err = svc.RecordManualPayment(context.Background(), ManualPaymentInput{LoanID: "loan-1", Amount: 0})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "amount", vErr.Field)

	_, err = svc.RecordManualPayment(context.Background(), ManualPaymentInput{LoanID: "loan-1", Amount: -500})
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "amount", vErr.Field)
}

func TestRecordManualPayment_UnknownLoan(t *testing.T) {
	svc := newPaymentService(t, &fakePaymentRepo{}, newFakeLoanStore(), &fakeReconciler{}, nil, nil)

	_, err := svc.RecordManualPayment(context.Background(), ManualPaymentInput{LoanID: "missing", Amount: 100})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRecordManualPayment_InsertsPaidAndReconciles(t *testing.T) {
	repo := &fakePaymentRepo{}
	loans := newFakeLoanStore(testLoan("loan-1", 100_000, "1.5", domain.LoanStatusActive))
	rec := &fakeReconciler{}
	svc := newPaymentService(t, repo, loans, rec, nil, nil)

	p, err := svc.RecordManualPayment(context.Background(), ManualPaymentInput{LoanID: "loan-1", Amount: 50_000})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentMethodManual, p.Method)
	assert.Equal(t, domain.PaymentStatusPaid, p.Status)
	require.NotNil(t, p.PaidAt)
	assert.NotEmpty(t, p.ID)

	assert.Equal(t, 1, rec.callCount())
	assert.Equal(t, []string{"loan-1"}, rec.calls)

	stored, err := repo.ListByLoan(context.Background(), "loan-1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, int64(50_000), stored[0].Amount)
}

func TestRecordManualPayment_ReconcileFailureDoesNotFailRecording(t *testing.T) {
	repo := &fakePaymentRepo{}
	loans := newFakeLoanStore(testLoan("loan-1", 100_000, "1.5", domain.LoanStatusActive))
	rec := &fakeReconciler{err: errors.New("db gone")}
	svc := newPaymentService(t, repo, loans, rec, nil, nil)

	p, err := svc.RecordManualPayment(context.Background(), ManualPaymentInput{LoanID: "loan-1", Amount: 50_000})
	require.NoError(t, err, "payment row is durable even if reconciliation fails")
	assert.Equal(t, domain.PaymentStatusPaid, p.Status)
}

func TestRecordManualPayment_IdempotentReplay(t *testing.T) {
	repo := &fakePaymentRepo{}
	loans := newFakeLoanStore(testLoan("loan-1", 100_000, "1.5", domain.LoanStatusActive))
	rec := &fakeReconciler{}
	cache := newFakeCache()
	svc := newPaymentService(t, repo, loans, rec, nil, cache)

	in := ManualPaymentInput{LoanID: "loan-1", Amount: 50_000, IdempotencyKey: "req-abc"}

	first, err := svc.RecordManualPayment(context.Background(), in)
	require.NoError(t, err)

	second, err := svc.RecordManualPayment(context.Background(), in)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID, "replay must return the original payment")

	stored, _ := repo.ListByLoan(context.Background(), "loan-1")
	assert.Len(t, stored, 1, "replay must not insert a second row")
	assert.Equal(t, 1, rec.callCount(), "replay must not reconcile again")
}

func TestRecordManualPayment_DistinctKeysInsertSeparately(t *testing.T) {
	repo := &fakePaymentRepo{}
	loans := newFakeLoanStore(testLoan("loan-1", 100_000, "1.5", domain.LoanStatusActive))
	cache := newFakeCache()
	svc := newPaymentService(t, repo, loans, &fakeReconciler{}, nil, cache)

	_, err := svc.RecordManualPayment(context.Background(), ManualPaymentInput{LoanID: "loan-1", Amount: 10_000, IdempotencyKey: "k1"})
	require.NoError(t, err)
	_, err = svc.RecordManualPayment(context.Background(), ManualPaymentInput{LoanID: "loan-1", Amount: 10_000, IdempotencyKey: "k2"})
	require.NoError(t, err)

	stored, _ := repo.ListByLoan(context.Background(), "loan-1")
	assert.Len(t, stored, 2)
}

func TestCreateInvoice_RecordsPendingPayment(t *testing.T) {
	repo := &fakePaymentRepo{}
	loans := newFakeLoanStore(testLoan("loan-1", 100_000, "1.5", domain.LoanStatusActive))
	gw := &fakeInvoiceGateway{invoice: &gateway.Invoice{
		ID:         "inv-1",
		Status:     "PENDING",
		InvoiceURL: "https://checkout.xendit.co/web/inv-1",
	}}
	svc := newPaymentService(t, repo, loans, &fakeReconciler{}, gw, nil)

	res, err := svc.CreateInvoice(context.Background(), InvoiceInput{LoanID: "loan-1", Amount: 101_500})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(res.ExternalID, "LOAN-loan-1-"), "external id %q", res.ExternalID)
	assert.Equal(t, "https://checkout.xendit.co/web/inv-1", res.InvoiceURL)
	assert.Equal(t, int64(101_500), gw.lastAmount)
	assert.Contains(t, gw.lastDescription, "Pembayaran pinjaman")

	stored, _ := repo.ListByLoan(context.Background(), "loan-1")
	require.Len(t, stored, 1)
	assert.Equal(t, domain.PaymentStatusPending, stored[0].Status)
	assert.Equal(t, domain.PaymentMethodXendit, stored[0].Method)
	require.NotNil(t, stored[0].XenditExternalID)
	assert.Equal(t, res.ExternalID, *stored[0].XenditExternalID)
}

func TestCreateInvoice_GatewayRejection(t *testing.T) {
	repo := &fakePaymentRepo{}
	loans := newFakeLoanStore(testLoan("loan-1", 100_000, "1.5", domain.LoanStatusActive))
	gw := &fakeInvoiceGateway{err: &gateway.APIError{StatusCode: 400, Body: `{"error_code":"INVALID_API_KEY"}`}}
	svc := newPaymentService(t, repo, loans, &fakeReconciler{}, gw, nil)

	_, err := svc.CreateInvoice(context.Background(), InvoiceInput{LoanID: "loan-1", Amount: 101_500})

	var gwErr *GatewayError
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, 400, gwErr.StatusCode)

	stored, _ := repo.ListByLoan(context.Background(), "loan-1")
	assert.Empty(t, stored, "no payment row on gateway failure")
}

func TestCreateInvoice_UnknownLoan(t *testing.T) {
	svc := newPaymentService(t, &fakePaymentRepo{}, newFakeLoanStore(), &fakeReconciler{}, &fakeInvoiceGateway{}, nil)

	_, err := svc.CreateInvoice(context.Background(), InvoiceInput{LoanID: "missing", Amount: 100})
	assert.ErrorIs(t, err, ErrNotFound)
}

func pendingXenditPayment(loanID, externalID string, amount int64) *domain.Payment {
	now := time.Now()
	invID := "inv-1"
	url := "https://checkout.xendit.co/web/inv-1"
	return &domain.Payment{
		ID:               "pay-1",
		LoanID:           loanID,
		Amount:           amount,
		Method:           domain.PaymentMethodXendit,
		Status:           domain.PaymentStatusPending,
		XenditInvoiceID:  &invID,
		XenditInvoiceURL: &url,
		XenditExternalID: &externalID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestHandleGatewayCallback_Paid(t *testing.T) {
	repo := &fakePaymentRepo{payments: []*domain.Payment{
		pendingXenditPayment("loan-1", "LOAN-loan-1-123", 101_500),
	}}
	rec := &fakeReconciler{}
	svc := newPaymentService(t, repo, newFakeLoanStore(), rec, nil, nil)

	method := "QRIS"
	paidAt := time.Now().Add(-time.Minute)
	updated, err := svc.HandleGatewayCallback(context.Background(), GatewayCallback{
		InvoiceID:     "inv-1",
		ExternalID:    "LOAN-loan-1-123",
		Status:        "PAID",
		PaymentMethod: &method,
		PaidAt:        &paidAt,
	})
	require.NoError(t, err)

	assert.Equal(t, domain.PaymentStatusPaid, updated.Status)
	require.NotNil(t, updated.PaidAt)
	assert.True(t, updated.PaidAt.Equal(paidAt))
	require.NotNil(t, updated.XenditPaymentMethod)
	assert.Equal(t, "QRIS", *updated.XenditPaymentMethod)

	assert.Equal(t, []string{"loan-1"}, rec.calls)
}

func TestHandleGatewayCallback_SettledMapsToPaid(t *testing.T) {
	repo := &fakePaymentRepo{payments: []*domain.Payment{
		pendingXenditPayment("loan-1", "LOAN-loan-1-123", 101_500),
	}}
	rec := &fakeReconciler{}
	svc := newPaymentService(t, repo, newFakeLoanStore(), rec, nil, nil)

	updated, err := svc.HandleGatewayCallback(context.Background(), GatewayCallback{
		ExternalID: "LOAN-loan-1-123",
		Status:     "SETTLED",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, updated.Status)
	assert.NotNil(t, updated.PaidAt, "paid_at defaults to now when the provider omits it")
}

func TestHandleGatewayCallback_ExpiredSkipsReconcile(t *testing.T) {
	repo := &fakePaymentRepo{payments: []*domain.Payment{
		pendingXenditPayment("loan-1", "LOAN-loan-1-123", 101_500),
	}}
	rec := &fakeReconciler{}
	svc := newPaymentService(t, repo, newFakeLoanStore(), rec, nil, nil)

	updated, err := svc.HandleGatewayCallback(context.Background(), GatewayCallback{
		ExternalID: "LOAN-loan-1-123",
		Status:     "EXPIRED",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusExpired, updated.Status)
	assert.Zero(t, rec.callCount())
}

func TestHandleGatewayCallback_UnknownStatusIsNoOp(t *testing.T) {
	repo := &fakePaymentRepo{payments: []*domain.Payment{
		pendingXenditPayment("loan-1", "LOAN-loan-1-123", 101_500),
	}}
	svc := newPaymentService(t, repo, newFakeLoanStore(), &fakeReconciler{}, nil, nil)

	updated, err := svc.HandleGatewayCallback(context.Background(), GatewayCallback{
		ExternalID: "LOAN-loan-1-123",
		Status:     "AWAITING_CAPTURE",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, updated.Status)
}

func TestHandleGatewayCallback_UnmatchedExternalID(t *testing.T) {
	svc := newPaymentService(t, &fakePaymentRepo{}, newFakeLoanStore(), &fakeReconciler{}, nil, nil)

	_, err := svc.HandleGatewayCallback(context.Background(), GatewayCallback{
		ExternalID: "LOAN-ghost-1",
		Status:     "PAID",
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHandleGatewayCallback_ReplayIsIdempotent(t *testing.T) {
	repo := &fakePaymentRepo{payments: []*domain.Payment{
		pendingXenditPayment("loan-1", "LOAN-loan-1-123", 101_500),
	}}
	rec := &fakeReconciler{}
	svc := newPaymentService(t, repo, newFakeLoanStore(), rec, nil, nil)

	cb := GatewayCallback{ExternalID: "LOAN-loan-1-123", Status: "PAID"}

	first, err := svc.HandleGatewayCallback(context.Background(), cb)
	require.NoError(t, err)
	require.Equal(t, domain.PaymentStatusPaid, first.Status)

	second, err := svc.HandleGatewayCallback(context.Background(), cb)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPaid, second.Status)
	assert.Equal(t, 1, rec.callCount(), "replay must not reconcile twice")
}

func TestHandleGatewayCallback_TerminalConflictIgnored(t *testing.T) {
	p := pendingXenditPayment("loan-1", "LOAN-loan-1-123", 101_500)
	p.Status = domain.PaymentStatusExpired
	repo := &fakePaymentRepo{payments: []*domain.Payment{p}}
	rec := &fakeReconciler{}
	svc := newPaymentService(t, repo, newFakeLoanStore(), rec, nil, nil)

	got, err := svc.HandleGatewayCallback(context.Background(), GatewayCallback{
		ExternalID: "LOAN-loan-1-123",
		Status:     "PAID",
	})
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusExpired, got.Status, "terminal state never transitions")
	assert.Zero(t, rec.callCount())
}

func TestMapGatewayStatus(t *testing.T) {
	assert.Equal(t, domain.PaymentStatusPaid, mapGatewayStatus("PAID"))
	assert.Equal(t, domain.PaymentStatusPaid, mapGatewayStatus("paid"))
	assert.Equal(t, domain.PaymentStatusPaid, mapGatewayStatus("SETTLED"))
	assert.Equal(t, domain.PaymentStatusExpired, mapGatewayStatus("EXPIRED"))
	assert.Equal(t, domain.PaymentStatusFailed, mapGatewayStatus("FAILED"))
	assert.Equal(t, domain.PaymentStatusPending, mapGatewayStatus("PENDING"))
	assert.Equal(t, domain.PaymentStatusPending, mapGatewayStatus("SOMETHING_NEW"))
}
