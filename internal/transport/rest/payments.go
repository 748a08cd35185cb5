package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"koperasi-backend/internal/domain"
	"koperasi-backend/internal/repository"
	"koperasi-backend/internal/service"
)

type paymentResponse struct {
	ID                  string     `json:"id"`
	LoanID              string     `json:"loan_id"`
	Amount              int64      `json:"amount"`
	Method              string     `json:"method"`
	Status              string     `json:"status"`
	XenditInvoiceID     *string    `json:"xendit_invoice_id,omitempty"`
	XenditInvoiceURL    *string    `json:"xendit_invoice_url,omitempty"`
	XenditExternalID    *string    `json:"xendit_external_id,omitempty"`
	XenditTransactionID *string    `json:"xendit_transaction_id,omitempty"`
	XenditPaymentMethod *string    `json:"xendit_payment_method,omitempty"`
	Notes               *string    `json:"notes"`
	PaidAt              *time.Time `json:"paid_at"`
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

func toPaymentResponse(p *domain.Payment) paymentResponse {
	return paymentResponse{
		ID:                  p.ID,
		LoanID:              p.LoanID,
		Amount:              p.Amount,
		Method:              string(p.Method),
		Status:              string(p.Status),
		XenditInvoiceID:     p.XenditInvoiceID,
		XenditInvoiceURL:    p.XenditInvoiceURL,
		XenditExternalID:    p.XenditExternalID,
		XenditTransactionID: p.XenditTransactionID,
		XenditPaymentMethod: p.XenditPaymentMethod,
		Notes:               p.Notes,
		PaidAt:              p.PaidAt,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
	}
}

func decodeJSON(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := repository.PaymentsFilter{}
	if v := q.Get("loan_id"); v != "" {
		filter.LoanID = &v
	}
	if v := q.Get("status"); v != "" {
		filter.Status = &v
	}
	if v := q.Get("method"); v != "" {
		filter.Method = &v
	}
	if v := q.Get("paid_from"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			ErrorBadRequest(w, "paid_from must be YYYY-MM-DD")
			return
		}
		filter.PaidFrom = &t
	}
	if v := q.Get("paid_to"); v != "" {
		t, err := time.Parse("2006-01-02", v)
		if err != nil {
			ErrorBadRequest(w, "paid_to must be YYYY-MM-DD")
			return
		}
		filter.PaidTo = &t
	}

	payments, err := h.payments.ListPayments(r.Context(), filter)
	if err != nil {
		ServiceError(w, err)
		return
	}

	resp := make([]paymentResponse, 0, len(payments))
	for i := range payments {
		resp = append(resp, toPaymentResponse(&payments[i]))
	}
	Success(w, "", resp)
}

func (h *Handler) recordManualPayment(w http.ResponseWriter, r *http.Request) {
	req, err := ValidateManualPaymentRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	payment, err := h.payments.RecordManualPayment(r.Context(), service.ManualPaymentInput{
		LoanID:         req.LoanID,
		Amount:         req.Amount,
		Notes:          req.Notes,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		ServiceError(w, err)
		return
	}
	SuccessCreated(w, "Pembayaran dicatat", toPaymentResponse(payment))
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	req, err := ValidateInvoiceRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	result, err := h.payments.CreateInvoice(r.Context(), service.InvoiceInput{
		LoanID:      req.LoanID,
		Amount:      req.Amount,
		PayerEmail:  req.PayerEmail,
		Description: req.Description,
	})
	if err != nil {
		ServiceError(w, err)
		return
	}
	SuccessCreated(w, "Invoice dibuat", result)
}
