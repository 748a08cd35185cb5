package service

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"time"

	"koperasi-backend/internal/domain"
	"koperasi-backend/internal/gateway"
	"koperasi-backend/internal/repository"
)

type fakeLoanStore struct {
	mu    sync.Mutex
	loans map[string]*domain.Loan

	markPaidCalls int
	markPaidErr   error
}

func newFakeLoanStore(loans ...*domain.Loan) *fakeLoanStore {
	m := make(map[string]*domain.Loan, len(loans))
	for _, l := range loans {
		m[l.ID] = l
	}
	return &fakeLoanStore{loans: m}
}

func (f *fakeLoanStore) GetByID(ctx context.Context, id string) (*domain.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.loans[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLoanStore) MarkPaidIfUnpaid(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markPaidErr != nil {
		return f.markPaidErr
	}
	l, ok := f.loans[id]
	if !ok {
		return sql.ErrNoRows
	}
	f.markPaidCalls++
	if l.Status != domain.LoanStatusPaid {
		l.Status = domain.LoanStatusPaid
	}
	return nil
}

func (f *fakeLoanStore) List(ctx context.Context, filter repository.LoansFilter) ([]domain.Loan, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Loan
	for _, l := range f.loans {
		if filter.Category != nil && string(l.Category) != *filter.Category {
			continue
		}
		if filter.Status != nil && string(l.Status) != *filter.Status {
			continue
		}
		out = append(out, *l)
	}
	return out, nil
}

func (f *fakeLoanStore) Create(ctx context.Context, l *domain.Loan) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *l
	f.loans[l.ID] = &cp
	return nil
}

func (f *fakeLoanStore) UpdateStatus(ctx context.Context, id string, status domain.LoanStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.loans[id]
	if !ok {
		return sql.ErrNoRows
	}
	l.Status = status
	return nil
}

func (f *fakeLoanStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.loans[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.loans, id)
	return nil
}

func (f *fakeLoanStore) MarkOverdueBefore(ctx context.Context, t time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for _, l := range f.loans {
		if l.Status == domain.LoanStatusActive && l.DueDate.Before(t) {
			l.Status = domain.LoanStatusOverdue
			n++
		}
	}
	return n, nil
}

type fakePaymentSums struct {
	sums    map[string]int64
	sumErr  error
	sumCall int
}

func (f *fakePaymentSums) SumPaidByLoan(ctx context.Context, loanID string) (int64, error) {
	f.sumCall++
	if f.sumErr != nil {
		return 0, f.sumErr
	}
	return f.sums[loanID], nil
}

type notifyEvent struct {
	table string
	event string
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []notifyEvent
}

func (f *fakeNotifier) NotifyChange(table, event string, data any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, notifyEvent{table: table, event: event})
}

func (f *fakeNotifier) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakePaymentRepo struct {
	mu       sync.Mutex
	payments []*domain.Payment

	createErr error
}

func (f *fakePaymentRepo) Create(ctx context.Context, p *domain.Payment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	cp := *p
	f.payments = append(f.payments, &cp)
	return nil
}

func (f *fakePaymentRepo) List(ctx context.Context, filter repository.PaymentsFilter) ([]domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Payment, 0, len(f.payments))
	for _, p := range f.payments {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakePaymentRepo) ListByLoan(ctx context.Context, loanID string) ([]domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Payment
	for _, p := range f.payments {
		if p.LoanID == loanID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakePaymentRepo) GetByExternalID(ctx context.Context, externalID string) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.XenditExternalID != nil && *p.XenditExternalID == externalID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakePaymentRepo) ApplyGatewayStatus(ctx context.Context, externalID string, status domain.PaymentStatus, transactionID, paymentMethod *string, paidAt *time.Time) (*domain.Payment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.payments {
		if p.XenditExternalID != nil && *p.XenditExternalID == externalID && p.Status == domain.PaymentStatusPending {
			p.Status = status
			p.XenditTransactionID = transactionID
			p.XenditPaymentMethod = paymentMethod
			if paidAt != nil {
				p.PaidAt = paidAt
			}
			p.UpdatedAt = time.Now()
			cp := *p
			return &cp, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakePaymentRepo) SumPaidByLoan(ctx context.Context, loanID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sum int64
	for _, p := range f.payments {
		if p.LoanID == loanID && p.Status == domain.PaymentStatusPaid {
			sum += p.Amount
		}
	}
	return sum, nil
}

var errCacheMiss = errors.New("cache miss")

type fakeCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{data: make(map[string]string)}
}

func (f *fakeCache) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return "", errCacheMiss
	}
	return v, nil
}

func (f *fakeCache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := value.(string)
	if !ok {
		return errors.New("unexpected value type")
	}
	f.data[key] = s
	return nil
}

type fakeReconciler struct {
	mu     sync.Mutex
	calls  []string
	err    error
	result domain.LoanStatus
}

func (f *fakeReconciler) Reconcile(ctx context.Context, loanID string) (domain.LoanStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, loanID)
	if f.err != nil {
		return "", f.err
	}
	if f.result == "" {
		return domain.LoanStatusActive, nil
	}
	return f.result, nil
}

func (f *fakeReconciler) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeInvoiceGateway struct {
	invoice *gateway.Invoice
	err     error

	lastExternalID  string
	lastAmount      int64
	lastDescription string
}

func (f *fakeInvoiceGateway) CreateInvoice(ctx context.Context, externalID string, amount int64, description, payerEmail string) (*gateway.Invoice, error) {
	f.lastExternalID = externalID
	f.lastAmount = amount
	f.lastDescription = description
	if f.err != nil {
		return nil, f.err
	}
	inv := *f.invoice
	inv.ExternalID = externalID
	inv.Amount = amount
	return &inv, nil
}
