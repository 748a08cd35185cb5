package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"koperasi-backend/internal/domain"
	"koperasi-backend/internal/gateway"
	"koperasi-backend/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type PaymentStore interface {
	Create(ctx context.Context, p *domain.Payment) error
	List(ctx context.Context, f repository.PaymentsFilter) ([]domain.Payment, error)
	ListByLoan(ctx context.Context, loanID string) ([]domain.Payment, error)
	GetByExternalID(ctx context.Context, externalID string) (*domain.Payment, error)
	ApplyGatewayStatus(ctx context.Context, externalID string, status domain.PaymentStatus, transactionID, paymentMethod *string, paidAt *time.Time) (*domain.Payment, error)
	SumPaidByLoan(ctx context.Context, loanID string) (int64, error)
}

type LoanGetter interface {
	GetByID(ctx context.Context, id string) (*domain.Loan, error)
}

type Reconciler interface {
	Reconcile(ctx context.Context, loanID string) (domain.LoanStatus, error)
}

type InvoiceCreator interface {
	CreateInvoice(ctx context.Context, externalID string, amount int64, description, payerEmail string) (*gateway.Invoice, error)
}

// IdempotencyCache stores the result of a manual submission under the
// caller's idempotency token so a retried form post cannot double-credit.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
}

const idempotencyTTL = 24 * time.Hour

type PaymentService struct {
	repo       PaymentStore
	loans      LoanGetter
	reconciler Reconciler
	gw         InvoiceCreator
	cache      IdempotencyCache
	ws         ChangeNotifier
	log        *zap.Logger
}

func NewPaymentService(
	repo PaymentStore,
	loans LoanGetter,
	reconciler Reconciler,
	gw InvoiceCreator,
	cache IdempotencyCache,
	ws ChangeNotifier,
	log *zap.Logger,
) *PaymentService {
	return &PaymentService{
		repo:       repo,
		loans:      loans,
		reconciler: reconciler,
		gw:         gw,
		cache:      cache,
		ws:         ws,
		log:        log,
	}
}

type ManualPaymentInput struct {
	LoanID string
	Amount int64
	Notes  *string
	// IdempotencyKey is a client-generated token per submission attempt.
	IdempotencyKey string
}

// RecordManualPayment inserts an operator-entered payment as already settled
// and synchronously reconciles the loan.
func (s *PaymentService) RecordManualPayment(ctx context.Context, in ManualPaymentInput) (*domain.Payment, error) {
	if in.LoanID == "" {
		return nil, &ValidationError{Field: "loan_id", Message: "loan_id is required"}
	}
	if in.Amount <= 0 {
		return nil, &ValidationError{Field: "amount", Message: "amount must be positive"}
	}

	if p := s.cachedResult(ctx, in.IdempotencyKey); p != nil {
		s.log.Info("manual payment replayed from idempotency cache",
			zap.String("payment_id", p.ID), zap.String("key", in.IdempotencyKey))
		return p, nil
	}

	if _, err := s.loans.GetByID(ctx, in.LoanID); err != nil {
		return nil, notFoundOr(err)
	}

	now := time.Now()
	payment := &domain.Payment{
		ID:        uuid.NewString(),
		LoanID:    in.LoanID,
		Amount:    in.Amount,
		Method:    domain.PaymentMethodManual,
		Status:    domain.PaymentStatusPaid,
		Notes:     in.Notes,
		PaidAt:    &now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		return nil, fmt.Errorf("record manual payment: %w", err)
	}

	// Reconciliation failure is not a recording failure: the payment row is
	// durable and the next reconcile run will settle the loan.
	if _, err := s.reconciler.Reconcile(ctx, in.LoanID); err != nil {
		s.log.Warn("reconciliation after manual payment failed",
			zap.String("loan_id", in.LoanID),
			zap.String("payment_id", payment.ID),
			zap.Error(err),
		)
	}

	s.storeResult(ctx, in.IdempotencyKey, payment)

	if s.ws != nil {
		s.ws.NotifyChange("payments", "created", map[string]any{
			"id":      payment.ID,
			"loan_id": payment.LoanID,
		})
	}

	return payment, nil
}

type InvoiceInput struct {
	LoanID      string
	Amount      int64
	PayerEmail  string
	Description string
}

type InvoiceResult struct {
	PaymentID  string `json:"payment_id"`
	InvoiceURL string `json:"invoice_url"`
	ExternalID string `json:"external_id"`
}

// CreateInvoice asks Xendit for a hosted invoice and records a pending
// payment correlated to it. The invoice is created first; if the local
// insert then fails the invoice is orphaned at the provider, which is logged
// for manual reconciliation rather than retried.
func (s *PaymentService) CreateInvoice(ctx context.Context, in InvoiceInput) (*InvoiceResult, error) {
	if in.LoanID == "" {
		return nil, &ValidationError{Field: "loan_id", Message: "loan_id is required"}
	}
	if in.Amount <= 0 {
		return nil, &ValidationError{Field: "amount", Message: "amount must be positive"}
	}

	if _, err := s.loans.GetByID(ctx, in.LoanID); err != nil {
		return nil, notFoundOr(err)
	}

	// Unique per attempt, so repeated invoices on the same loan never
	// collide at the provider.
	externalID := fmt.Sprintf("LOAN-%s-%d", in.LoanID, time.Now().UnixMilli())

	description := in.Description
	if description == "" {
		description = "Pembayaran pinjaman #" + shortID(in.LoanID)
	}

	inv, err := s.gw.CreateInvoice(ctx, externalID, in.Amount, description, in.PayerEmail)
	if err != nil {
		var apiErr *gateway.APIError
		if errors.As(err, &apiErr) {
			return nil, &GatewayError{StatusCode: apiErr.StatusCode, Message: apiErr.Body}
		}
		return nil, &GatewayError{Message: err.Error()}
	}

	now := time.Now()
	payment := &domain.Payment{
		ID:               uuid.NewString(),
		LoanID:           in.LoanID,
		Amount:           in.Amount,
		Method:           domain.PaymentMethodXendit,
		Status:           domain.PaymentStatusPending,
		XenditInvoiceID:  &inv.ID,
		XenditInvoiceURL: &inv.InvoiceURL,
		XenditExternalID: &externalID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if err := s.repo.Create(ctx, payment); err != nil {
		s.log.Error("invoice created at gateway but payment row insert failed; orphaned invoice needs manual reconciliation",
			zap.String("invoice_id", inv.ID),
			zap.String("external_id", externalID),
			zap.String("loan_id", in.LoanID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("invoice %s created but payment not recorded: %w", inv.ID, err)
	}

	if s.ws != nil {
		s.ws.NotifyChange("payments", "created", map[string]any{
			"id":      payment.ID,
			"loan_id": payment.LoanID,
		})
	}

	return &InvoiceResult{
		PaymentID:  payment.ID,
		InvoiceURL: inv.InvoiceURL,
		ExternalID: externalID,
	}, nil
}

type GatewayCallback struct {
	InvoiceID     string
	ExternalID    string
	Status        string
	PaymentMethod *string
	PaidAt        *time.Time
}

// HandleGatewayCallback applies an asynchronous Xendit status notification.
// Safe to invoke repeatedly with the same payload: terminal payments are
// left alone and the reconciler re-sums rather than increments.
func (s *PaymentService) HandleGatewayCallback(ctx context.Context, cb GatewayCallback) (*domain.Payment, error) {
	if cb.ExternalID == "" {
		return nil, &ValidationError{Field: "external_id", Message: "external_id is required"}
	}

	payment, err := s.repo.GetByExternalID(ctx, cb.ExternalID)
	if err != nil {
		return nil, notFoundOr(err)
	}

	newStatus := mapGatewayStatus(cb.Status)
	if newStatus == domain.PaymentStatusPending {
		// Unknown or still-pending provider status; nothing to apply.
		s.log.Info("gateway callback left payment pending",
			zap.String("external_id", cb.ExternalID),
			zap.String("gateway_status", cb.Status),
		)
		return payment, nil
	}

	if payment.Status.Terminal() {
		if payment.Status != newStatus {
			s.log.Warn("gateway callback for already-terminal payment ignored",
				zap.String("external_id", cb.ExternalID),
				zap.String("current", string(payment.Status)),
				zap.String("reported", string(newStatus)),
			)
		}
		return payment, nil
	}

	paidAt := cb.PaidAt
	if paidAt == nil && newStatus == domain.PaymentStatusPaid {
		now := time.Now()
		paidAt = &now
	}

	updated, err := s.repo.ApplyGatewayStatus(ctx, cb.ExternalID, newStatus, strPtrOrNil(cb.InvoiceID), cb.PaymentMethod, paidAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// A concurrent delivery won the transition; report its result.
			return s.repo.GetByExternalID(ctx, cb.ExternalID)
		}
		return nil, fmt.Errorf("apply gateway status: %w", err)
	}

	if updated.Status == domain.PaymentStatusPaid {
		if _, err := s.reconciler.Reconcile(ctx, updated.LoanID); err != nil {
			s.log.Warn("reconciliation after gateway payment failed",
				zap.String("loan_id", updated.LoanID),
				zap.Error(err),
			)
		}
	}

	if s.ws != nil {
		s.ws.NotifyChange("payments", "updated", map[string]any{
			"id":      updated.ID,
			"loan_id": updated.LoanID,
			"status":  string(updated.Status),
		})
	}

	return updated, nil
}

func (s *PaymentService) ListPayments(ctx context.Context, f repository.PaymentsFilter) ([]domain.Payment, error) {
	return s.repo.List(ctx, f)
}

func (s *PaymentService) ListByLoan(ctx context.Context, loanID string) ([]domain.Payment, error) {
	return s.repo.ListByLoan(ctx, loanID)
}

func (s *PaymentService) TotalPaid(ctx context.Context, loanID string) (int64, error) {
	return s.repo.SumPaidByLoan(ctx, loanID)
}

func mapGatewayStatus(status string) domain.PaymentStatus {
	switch strings.ToUpper(status) {
	case "PAID", "SETTLED":
		return domain.PaymentStatusPaid
	case "EXPIRED":
		return domain.PaymentStatusExpired
	case "FAILED":
		return domain.PaymentStatusFailed
	default:
		return domain.PaymentStatusPending
	}
}

func (s *PaymentService) cachedResult(ctx context.Context, key string) *domain.Payment {
	if s.cache == nil || key == "" {
		return nil
	}
	data, err := s.cache.Get(ctx, "payment_idem:"+key)
	if err != nil {
		return nil
	}
	var p domain.Payment
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil
	}
	return &p
}

func (s *PaymentService) storeResult(ctx context.Context, key string, p *domain.Payment) {
	if s.cache == nil || key == "" {
		return
	}
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, "payment_idem:"+key, string(data), idempotencyTTL); err != nil {
		s.log.Warn("failed to store idempotency result", zap.Error(err))
	}
}

func strPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
