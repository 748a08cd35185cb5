package service

import (
	"context"
	"fmt"
	"time"

	"koperasi-backend/internal/domain"
	"koperasi-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type LoanStore interface {
	List(ctx context.Context, f repository.LoansFilter) ([]domain.Loan, error)
	GetByID(ctx context.Context, id string) (*domain.Loan, error)
	Create(ctx context.Context, l *domain.Loan) error
	UpdateStatus(ctx context.Context, id string, status domain.LoanStatus) error
	Delete(ctx context.Context, id string) error
	MarkOverdueBefore(ctx context.Context, t time.Time) (int64, error)
}

type LoanService struct {
	repo LoanStore
	ws   ChangeNotifier
	log  *zap.Logger
}

func NewLoanService(repo LoanStore, ws ChangeNotifier, log *zap.Logger) *LoanService {
	return &LoanService{repo: repo, ws: ws, log: log}
}

type LoanItemInput struct {
	Name     string
	Quantity int64
	Unit     string
	Price    int64
}

type LoanInput struct {
	MemberID        *string
	BorrowerName    *string
	BorrowerNIK     *string
	BorrowerPhone   *string
	BorrowerAddress *string
	Category        domain.LoanCategory
	TotalAmount     int64
	InterestRate    decimal.Decimal
	DueDate         time.Time
	Notes           *string
	KTPImageURL     *string
	Items           []LoanItemInput
}

func (s *LoanService) CreateLoan(ctx context.Context, in LoanInput) (*domain.Loan, error) {
	if !in.Category.Valid() {
		return nil, &ValidationError{Field: "category", Message: "unknown loan category"}
	}
	if in.MemberID == nil && (in.BorrowerName == nil || *in.BorrowerName == "") {
		return nil, &ValidationError{Field: "member_id", Message: "either member_id or borrower_name is required"}
	}
	if in.InterestRate.IsNegative() {
		return nil, &ValidationError{Field: "interest_rate", Message: "interest_rate must not be negative"}
	}
	if in.DueDate.IsZero() {
		return nil, &ValidationError{Field: "due_date", Message: "due_date is required"}
	}

	items := make([]domain.LoanItem, 0, len(in.Items))
	var itemsTotal int64
	for _, it := range in.Items {
		if it.Name == "" {
			return nil, &ValidationError{Field: "items", Message: "item name is required"}
		}
		if it.Quantity <= 0 || it.Price < 0 {
			return nil, &ValidationError{Field: "items", Message: "item quantity must be positive and price non-negative"}
		}
		item := domain.LoanItem{
			ID:       uuid.NewString(),
			Name:     it.Name,
			Quantity: it.Quantity,
			Unit:     it.Unit,
			Price:    it.Price,
		}
		itemsTotal += item.Subtotal()
		items = append(items, item)
	}

	total := in.TotalAmount
	if total == 0 && len(items) > 0 {
		total = itemsTotal
	}
	if total <= 0 {
		return nil, &ValidationError{Field: "total_amount", Message: "total_amount must be positive"}
	}

	now := time.Now()
	loan := &domain.Loan{
		ID:              uuid.NewString(),
		MemberID:        in.MemberID,
		BorrowerName:    in.BorrowerName,
		BorrowerNIK:     in.BorrowerNIK,
		BorrowerPhone:   in.BorrowerPhone,
		BorrowerAddress: in.BorrowerAddress,
		Category:        in.Category,
		TotalAmount:     total,
		InterestRate:    in.InterestRate,
		DueDate:         in.DueDate,
		Status:          domain.LoanStatusActive,
		Notes:           in.Notes,
		KTPImageURL:     in.KTPImageURL,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for i := range loan.Items {
		loan.Items[i].LoanID = loan.ID
	}

	if err := s.repo.Create(ctx, loan); err != nil {
		return nil, fmt.Errorf("create loan: %w", err)
	}

	s.log.Info("loan created",
		zap.String("loan_id", loan.ID),
		zap.String("category", string(loan.Category)),
		zap.Int64("total_amount", loan.TotalAmount),
	)

	if s.ws != nil {
		s.ws.NotifyChange("loans", "created", map[string]any{"id": loan.ID})
	}

	return loan, nil
}

func (s *LoanService) GetLoan(ctx context.Context, id string) (*domain.Loan, error) {
	loan, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return loan, nil
}

func (s *LoanService) ListLoans(ctx context.Context, f repository.LoansFilter) ([]domain.Loan, error) {
	return s.repo.List(ctx, f)
}

// UpdateStatus is the operator override. Unlike the reconciler it may move a
// loan in any direction, including paid back to active.
func (s *LoanService) UpdateStatus(ctx context.Context, id string, status domain.LoanStatus) (*domain.Loan, error) {
	if !status.Valid() {
		return nil, &ValidationError{Field: "status", Message: "status must be active, paid or overdue"}
	}

	if err := s.repo.UpdateStatus(ctx, id, status); err != nil {
		return nil, notFoundOr(err)
	}

	if s.ws != nil {
		s.ws.NotifyChange("loans", "updated", map[string]any{"id": id, "status": string(status)})
	}

	return s.repo.GetByID(ctx, id)
}

func (s *LoanService) DeleteLoan(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err)
	}

	if s.ws != nil {
		s.ws.NotifyChange("loans", "deleted", map[string]any{"id": id})
	}
	return nil
}

// MarkOverdueLoans flips active loans past their due date; run periodically
// from main.
func (s *LoanService) MarkOverdueLoans(ctx context.Context) error {
	n, err := s.repo.MarkOverdueBefore(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("mark overdue loans: %w", err)
	}
	if n > 0 {
		s.log.Info("loans marked overdue", zap.Int64("count", n))
		if s.ws != nil {
			s.ws.NotifyChange("loans", "updated", map[string]any{"overdue_count": n})
		}
	}
	return nil
}
