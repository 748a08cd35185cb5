package rest

import (
	"net/http"
	"time"

	"koperasi-backend/internal/domain"
	"koperasi-backend/internal/service"

	"github.com/go-chi/chi/v5"
)

type memberResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	NIK       string    `json:"nik"`
	Address   *string   `json:"address"`
	Phone     *string   `json:"phone"`
	JoinDate  time.Time `json:"join_date"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func toMemberResponse(m *domain.Member) memberResponse {
	return memberResponse{
		ID:        m.ID,
		Name:      m.Name,
		NIK:       m.NIK,
		Address:   m.Address,
		Phone:     m.Phone,
		JoinDate:  m.JoinDate,
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.members.ListMembers(r.Context())
	if err != nil {
		ServiceError(w, err)
		return
	}

	resp := make([]memberResponse, 0, len(members))
	for i := range members {
		resp = append(resp, toMemberResponse(&members[i]))
	}
	Success(w, "", resp)
}

func (h *Handler) getMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "member_id")
	if id == "" {
		ErrorBadRequest(w, "member_id is required")
		return
	}

	m, err := h.members.GetMember(r.Context(), id)
	if err != nil {
		ServiceError(w, err)
		return
	}
	Success(w, "", toMemberResponse(m))
}

func (h *Handler) createMember(w http.ResponseWriter, r *http.Request) {
	req, err := ValidateMemberRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	m, err := h.members.CreateMember(r.Context(), service.MemberInput{
		Name:    req.Name,
		NIK:     req.NIK,
		Address: req.Address,
		Phone:   req.Phone,
	})
	if err != nil {
		ServiceError(w, err)
		return
	}
	SuccessCreated(w, "Anggota terdaftar", toMemberResponse(m))
}

func (h *Handler) updateMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "member_id")
	if id == "" {
		ErrorBadRequest(w, "member_id is required")
		return
	}

	req, err := ValidateMemberRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	m, err := h.members.UpdateMember(r.Context(), id, service.MemberInput{
		Name:    req.Name,
		NIK:     req.NIK,
		Address: req.Address,
		Phone:   req.Phone,
	})
	if err != nil {
		ServiceError(w, err)
		return
	}
	Success(w, "Anggota diperbarui", toMemberResponse(m))
}

func (h *Handler) deleteMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "member_id")
	if id == "" {
		ErrorBadRequest(w, "member_id is required")
		return
	}

	if err := h.members.DeleteMember(r.Context(), id); err != nil {
		ServiceError(w, err)
		return
	}
	Success(w, "Anggota dihapus", nil)
}
