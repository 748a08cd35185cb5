package service

import (
	"context"
	"fmt"

	"koperasi-backend/internal/domain"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// SettlementLoanStore is the slice of the loan repository the reconciler
// needs.
type SettlementLoanStore interface {
	GetByID(ctx context.Context, id string) (*domain.Loan, error)
	MarkPaidIfUnpaid(ctx context.Context, id string) error
}

// SettlementPaymentStore reads the confirmed-payment total for a loan.
type SettlementPaymentStore interface {
	SumPaidByLoan(ctx context.Context, loanID string) (int64, error)
}

type ChangeNotifier interface {
	NotifyChange(table, event string, data any)
}

// SettlementService decides whether a loan's confirmed payments cover
// principal plus interest and, if so, marks the loan paid. Settlement is
// monotonic: it never moves a loan away from paid, and it leaves overdue
// untouched unless the threshold is met.
type SettlementService struct {
	loans    SettlementLoanStore
	payments SettlementPaymentStore
	ws       ChangeNotifier
	log      *zap.Logger
}

func NewSettlementService(loans SettlementLoanStore, payments SettlementPaymentStore, ws ChangeNotifier, log *zap.Logger) *SettlementService {
	return &SettlementService{loans: loans, payments: payments, ws: ws, log: log}
}

// Reconcile recomputes the settlement state of one loan and returns the
// resulting status. Either both reads succeed and at most one conditional
// write happens, or the operation fails with no write at all.
func (s *SettlementService) Reconcile(ctx context.Context, loanID string) (domain.LoanStatus, error) {
	loan, err := s.loans.GetByID(ctx, loanID)
	if err != nil {
		return "", notFoundOr(err)
	}

	if loan.Status == domain.LoanStatusPaid {
		return domain.LoanStatusPaid, nil
	}

	totalPaid, err := s.payments.SumPaidByLoan(ctx, loanID)
	if err != nil {
		return "", fmt.Errorf("sum paid payments for loan %s: %w", loanID, err)
	}

	totalDue := loan.TotalDue()
	if decimal.NewFromInt(totalPaid).LessThan(totalDue) {
		return loan.Status, nil
	}

	// The conditional write tolerates concurrent reconciliation runs: the
	// second writer's update matches zero rows.
	if err := s.loans.MarkPaidIfUnpaid(ctx, loanID); err != nil {
		return "", fmt.Errorf("mark loan %s paid: %w", loanID, err)
	}

	s.log.Info("loan settled",
		zap.String("loan_id", loanID),
		zap.Int64("total_paid", totalPaid),
		zap.String("total_due", totalDue.String()),
	)

	if s.ws != nil {
		s.ws.NotifyChange("loans", "updated", map[string]any{
			"id":     loanID,
			"status": string(domain.LoanStatusPaid),
		})
	}

	return domain.LoanStatusPaid, nil
}
