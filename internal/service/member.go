package service

import (
	"context"
	"fmt"
	"time"

	"koperasi-backend/internal/domain"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type MemberStore interface {
	List(ctx context.Context) ([]domain.Member, error)
	GetByID(ctx context.Context, id string) (*domain.Member, error)
	Create(ctx context.Context, m *domain.Member) error
	Update(ctx context.Context, m *domain.Member) error
	Delete(ctx context.Context, id string) error
}

type MemberService struct {
	repo MemberStore
	ws   ChangeNotifier
	log  *zap.Logger
}

func NewMemberService(repo MemberStore, ws ChangeNotifier, log *zap.Logger) *MemberService {
	return &MemberService{repo: repo, ws: ws, log: log}
}

type MemberInput struct {
	Name    string
	NIK     string
	Address *string
	Phone   *string
}

func (in MemberInput) validate() error {
	if in.Name == "" {
		return &ValidationError{Field: "name", Message: "name is required"}
	}
	if in.NIK == "" {
		return &ValidationError{Field: "nik", Message: "nik is required"}
	}
	return nil
}

func (s *MemberService) CreateMember(ctx context.Context, in MemberInput) (*domain.Member, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := time.Now()
	m := &domain.Member{
		ID:        uuid.NewString(),
		Name:      in.Name,
		NIK:       in.NIK,
		Address:   in.Address,
		Phone:     in.Phone,
		JoinDate:  now,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.repo.Create(ctx, m); err != nil {
		return nil, fmt.Errorf("create member: %w", err)
	}

	s.log.Info("member created", zap.String("member_id", m.ID))
	if s.ws != nil {
		s.ws.NotifyChange("members", "created", map[string]any{"id": m.ID})
	}
	return m, nil
}

func (s *MemberService) UpdateMember(ctx context.Context, id string, in MemberInput) (*domain.Member, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err)
	}

	m.Name = in.Name
	m.NIK = in.NIK
	m.Address = in.Address
	m.Phone = in.Phone

	if err := s.repo.Update(ctx, m); err != nil {
		return nil, notFoundOr(err)
	}

	if s.ws != nil {
		s.ws.NotifyChange("members", "updated", map[string]any{"id": id})
	}
	return m, nil
}

func (s *MemberService) DeleteMember(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return notFoundOr(err)
	}

	if s.ws != nil {
		s.ws.NotifyChange("members", "deleted", map[string]any{"id": id})
	}
	return nil
}

func (s *MemberService) GetMember(ctx context.Context, id string) (*domain.Member, error) {
	m, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, notFoundOr(err)
	}
	return m, nil
}

func (s *MemberService) ListMembers(ctx context.Context) ([]domain.Member, error) {
	return s.repo.List(ctx)
}
