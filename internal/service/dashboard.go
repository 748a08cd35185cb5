package service

import (
	"context"
	"fmt"

	"koperasi-backend/internal/domain"
	"koperasi-backend/internal/repository"
)

type LoanStatsStore interface {
	StatusCounts(ctx context.Context) (map[domain.LoanStatus]int64, int64, error)
	ActiveByCategory(ctx context.Context) ([]repository.CategoryStat, error)
}

type MemberCounter interface {
	Count(ctx context.Context) (int64, error)
}

type CategoryBucket struct {
	Amount int64 `json:"amount"`
	Count  int64 `json:"count"`
}

type DashboardStats struct {
	TotalMembers    int64                     `json:"total_members"`
	TotalLoans      int64                     `json:"total_loans"`
	TotalLoanAmount int64                     `json:"total_loan_amount"`
	ActiveLoans     int64                     `json:"active_loans"`
	OverdueLoans    int64                     `json:"overdue_loans"`
	PaidLoans       int64                     `json:"paid_loans"`
	ByCategory      map[string]CategoryBucket `json:"by_category"`
}

// DashboardService computes the landing-page numbers with SQL aggregates
// instead of pulling every row.
type DashboardService struct {
	loans   LoanStatsStore
	members MemberCounter
}

func NewDashboardService(loans LoanStatsStore, members MemberCounter) *DashboardService {
	return &DashboardService{loans: loans, members: members}
}

func (s *DashboardService) Stats(ctx context.Context) (*DashboardStats, error) {
	memberCount, err := s.members.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}

	statusCounts, totalAmount, err := s.loans.StatusCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("loan status counts: %w", err)
	}

	categoryStats, err := s.loans.ActiveByCategory(ctx)
	if err != nil {
		return nil, fmt.Errorf("loan category stats: %w", err)
	}

	byCategory := make(map[string]CategoryBucket, len(categoryStats))
	for _, st := range categoryStats {
		byCategory[string(st.Category)] = CategoryBucket{Amount: st.Amount, Count: st.Count}
	}

	var totalLoans int64
	for _, n := range statusCounts {
		totalLoans += n
	}

	return &DashboardStats{
		TotalMembers:    memberCount,
		TotalLoans:      totalLoans,
		TotalLoanAmount: totalAmount,
		ActiveLoans:     statusCounts[domain.LoanStatusActive],
		OverdueLoans:    statusCounts[domain.LoanStatusOverdue],
		PaidLoans:       statusCounts[domain.LoanStatusPaid],
		ByCategory:      byCategory,
	}, nil
}
