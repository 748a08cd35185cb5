package rest

import (
	"log"
	"net/http"
	"time"

	"koperasi-backend/internal/service"
)

type xenditWebhookPayload struct {
	ID            string `json:"id"`
	ExternalID    string `json:"external_id"`
	Status        string `json:"status"`
	PaymentMethod string `json:"payment_method"`
	PaidAt        string `json:"paid_at"`
}

// xenditWebhook receives invoice status notifications from Xendit. The
// provider retries on non-2xx, so anything already applied must come back
// 200.
func (h *Handler) xenditWebhook(w http.ResponseWriter, r *http.Request) {
	if h.verifier == nil || !h.verifier.VerifyCallbackToken(r.Header.Get("x-callback-token")) {
		log.Printf("[HTTP] xendit webhook rejected: bad callback token from %s", r.RemoteAddr)
		ErrorUnauthorized(w, "invalid callback token")
		return
	}

	var payload xenditWebhookPayload
	if err := decodeJSON(r, &payload); err != nil {
		ErrorBadRequest(w, "invalid JSON")
		return
	}
	if payload.ExternalID == "" {
		ErrorBadRequest(w, "external_id is required")
		return
	}

	cb := service.GatewayCallback{
		InvoiceID:  payload.ID,
		ExternalID: payload.ExternalID,
		Status:     payload.Status,
	}
	if payload.PaymentMethod != "" {
		cb.PaymentMethod = &payload.PaymentMethod
	}
	if payload.PaidAt != "" {
		if t, err := time.Parse(time.RFC3339, payload.PaidAt); err == nil {
			cb.PaidAt = &t
		}
	}

	payment, err := h.payments.HandleGatewayCallback(r.Context(), cb)
	if err != nil {
		ServiceError(w, err)
		return
	}

	Success(w, "", map[string]interface{}{
		"payment_id": payment.ID,
		"status":     string(payment.Status),
	})
}
