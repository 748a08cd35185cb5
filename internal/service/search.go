package service

import (
	"context"
	"time"

	"koperasi-backend/internal/domain"

	"go.uber.org/zap"
)

const (
	searchMinLength = 2
	searchLimit     = 10
)

type LoanSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.Loan, error)
}

type MemberSearcher interface {
	Search(ctx context.Context, query string, limit int) ([]domain.Member, error)
}

type SearchResult struct {
	ID            string     `json:"id"`
	Type          string     `json:"type"` // "loan" or "member"
	Name          string     `json:"name"`
	NIK           string     `json:"nik,omitempty"`
	Phone         string     `json:"phone,omitempty"`
	Category      string     `json:"category,omitempty"`
	CategoryLabel string     `json:"category_label,omitempty"`
	Status        string     `json:"status,omitempty"`
	Amount        int64      `json:"amount,omitempty"`
	DueDate       *time.Time `json:"due_date,omitempty"`
}

// SearchService aggregates loans and members into one result list. The
// dashboard debounces typing on its side; every call here runs the queries.
type SearchService struct {
	loans   LoanSearcher
	members MemberSearcher
	log     *zap.Logger
}

func NewSearchService(loans LoanSearcher, members MemberSearcher, log *zap.Logger) *SearchService {
	return &SearchService{loans: loans, members: members, log: log}
}

func (s *SearchService) Search(ctx context.Context, query string) ([]SearchResult, error) {
	if len(query) < searchMinLength {
		return []SearchResult{}, nil
	}

	var results []SearchResult
	seen := make(map[string]bool)

	loans, err := s.loans.Search(ctx, query, searchLimit)
	if err != nil {
		return nil, err
	}
	for _, l := range loans {
		key := "loan:" + l.ID
		if seen[key] {
			continue
		}
		seen[key] = true

		dueDate := l.DueDate
		results = append(results, SearchResult{
			ID:            l.ID,
			Type:          "loan",
			Name:          l.DisplayName(),
			NIK:           derefStr(l.BorrowerNIK),
			Phone:         derefStr(l.BorrowerPhone),
			Category:      string(l.Category),
			CategoryLabel: domain.CategoryLabels[l.Category],
			Status:        string(l.Status),
			Amount:        l.TotalAmount,
			DueDate:       &dueDate,
		})
	}

	members, err := s.members.Search(ctx, query, searchLimit)
	if err != nil {
		return nil, err
	}
	for _, m := range members {
		key := "member:" + m.ID
		if seen[key] {
			continue
		}
		seen[key] = true

		results = append(results, SearchResult{
			ID:    m.ID,
			Type:  "member",
			Name:  m.Name,
			NIK:   m.NIK,
			Phone: derefStr(m.Phone),
		})
	}

	return results, nil
}

func derefStr(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
