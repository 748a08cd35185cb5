package rest

import (
	"net/http"
	"time"

	"koperasi-backend/internal/domain"
	"koperasi-backend/internal/repository"
	"koperasi-backend/internal/service"

	"github.com/go-chi/chi/v5"
)

type loanItemResponse struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Unit     string `json:"unit"`
	Price    int64  `json:"price"`
	Subtotal int64  `json:"subtotal"`
}

type loanResponse struct {
	ID              string             `json:"id"`
	MemberID        *string            `json:"member_id"`
	MemberName      *string            `json:"member_name"`
	BorrowerName    *string            `json:"borrower_name"`
	BorrowerNIK     *string            `json:"borrower_nik"`
	BorrowerPhone   *string            `json:"borrower_phone"`
	BorrowerAddress *string            `json:"borrower_address"`
	DisplayName     string             `json:"display_name"`
	Category        string             `json:"category"`
	CategoryLabel   string             `json:"category_label"`
	TotalAmount     int64              `json:"total_amount"`
	InterestRate    string             `json:"interest_rate"`
	TotalDue        string             `json:"total_due"`
	DueDate         time.Time          `json:"due_date"`
	Status          string             `json:"status"`
	Notes           *string            `json:"notes"`
	KTPImageURL     *string            `json:"ktp_image_url"`
	Items           []loanItemResponse `json:"items"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func toLoanResponse(l *domain.Loan) loanResponse {
	items := make([]loanItemResponse, 0, len(l.Items))
	for _, it := range l.Items {
		items = append(items, loanItemResponse{
			ID:       it.ID,
			Name:     it.Name,
			Quantity: it.Quantity,
			Unit:     it.Unit,
			Price:    it.Price,
			Subtotal: it.Subtotal(),
		})
	}

	return loanResponse{
		ID:              l.ID,
		MemberID:        l.MemberID,
		MemberName:      l.MemberName,
		BorrowerName:    l.BorrowerName,
		BorrowerNIK:     l.BorrowerNIK,
		BorrowerPhone:   l.BorrowerPhone,
		BorrowerAddress: l.BorrowerAddress,
		DisplayName:     l.DisplayName(),
		Category:        string(l.Category),
		CategoryLabel:   domain.CategoryLabels[l.Category],
		TotalAmount:     l.TotalAmount,
		InterestRate:    l.InterestRate.String(),
		TotalDue:        l.TotalDue().String(),
		DueDate:         l.DueDate,
		Status:          string(l.Status),
		Notes:           l.Notes,
		KTPImageURL:     l.KTPImageURL,
		Items:           items,
		CreatedAt:       l.CreatedAt,
		UpdatedAt:       l.UpdatedAt,
	}
}

func (h *Handler) listLoans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.LoansFilter{}
	if v := q.Get("category"); v != "" {
		filter.Category = &v
	}
	if v := q.Get("status"); v != "" {
		filter.Status = &v
	}
	if v := q.Get("member_id"); v != "" {
		filter.MemberID = &v
	}

	loans, err := h.loans.ListLoans(r.Context(), filter)
	if err != nil {
		ServiceError(w, err)
		return
	}

	resp := make([]loanResponse, 0, len(loans))
	for i := range loans {
		resp = append(resp, toLoanResponse(&loans[i]))
	}
	Success(w, "", resp)
}

func (h *Handler) getLoan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "loan_id")
	if id == "" {
		ErrorBadRequest(w, "loan_id is required")
		return
	}

	loan, err := h.loans.GetLoan(r.Context(), id)
	if err != nil {
		ServiceError(w, err)
		return
	}
	Success(w, "", toLoanResponse(loan))
}

func (h *Handler) createLoan(w http.ResponseWriter, r *http.Request) {
	req, err := ValidateCreateLoanRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	dueDate, _ := time.Parse("2006-01-02", req.DueDate)

	items := make([]service.LoanItemInput, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, service.LoanItemInput{
			Name:     it.Name,
			Quantity: it.Quantity,
			Unit:     it.Unit,
			Price:    it.Price,
		})
	}

	loan, err := h.loans.CreateLoan(r.Context(), service.LoanInput{
		MemberID:        req.MemberID,
		BorrowerName:    req.BorrowerName,
		BorrowerNIK:     req.BorrowerNIK,
		BorrowerPhone:   req.BorrowerPhone,
		BorrowerAddress: req.BorrowerAddress,
		Category:        domain.LoanCategory(req.Category),
		TotalAmount:     req.TotalAmount,
		InterestRate:    req.InterestRate,
		DueDate:         dueDate,
		Notes:           req.Notes,
		KTPImageURL:     req.KTPImageURL,
		Items:           items,
	})
	if err != nil {
		ServiceError(w, err)
		return
	}
	SuccessCreated(w, "Pinjaman dibuat", toLoanResponse(loan))
}

type updateLoanStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) updateLoanStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "loan_id")
	if id == "" {
		ErrorBadRequest(w, "loan_id is required")
		return
	}

	var req updateLoanStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		ErrorBadRequest(w, "invalid JSON")
		return
	}
	if req.Status == "" {
		ErrorBadRequest(w, "status is required")
		return
	}

	loan, err := h.loans.UpdateStatus(r.Context(), id, domain.LoanStatus(req.Status))
	if err != nil {
		ServiceError(w, err)
		return
	}
	Success(w, "Status pinjaman diperbarui", toLoanResponse(loan))
}

func (h *Handler) deleteLoan(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "loan_id")
	if id == "" {
		ErrorBadRequest(w, "loan_id is required")
		return
	}

	if err := h.loans.DeleteLoan(r.Context(), id); err != nil {
		ServiceError(w, err)
		return
	}
	Success(w, "Pinjaman dihapus", nil)
}

func (h *Handler) listLoanPayments(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "loan_id")
	if id == "" {
		ErrorBadRequest(w, "loan_id is required")
		return
	}

	payments, err := h.payments.ListByLoan(r.Context(), id)
	if err != nil {
		ServiceError(w, err)
		return
	}

	totalPaid, err := h.payments.TotalPaid(r.Context(), id)
	if err != nil {
		ServiceError(w, err)
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for i := range payments {
		resp = append(resp, toPaymentResponse(&payments[i]))
	}
	Success(w, "", map[string]interface{}{
		"payments":   resp,
		"total_paid": totalPaid,
	})
}
