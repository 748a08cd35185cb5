// Package gateway wraps the Xendit hosted-invoice API. Only the two calls
// the dashboard needs are implemented: invoice creation and callback-token
// verification.
package gateway

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.xendit.co"

// invoiceDuration is how long a hosted invoice stays payable, in seconds.
const invoiceDuration = 86400

type XenditClient struct {
	httpClient    *http.Client
	baseURL       string
	secretKey     string
	callbackToken string
}

type XenditConfig struct {
	BaseURL       string
	SecretKey     string
	CallbackToken string
	Timeout       time.Duration
}

func NewXenditClient(cfg XenditConfig) *XenditClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	return &XenditClient{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       baseURL,
		secretKey:     cfg.SecretKey,
		callbackToken: cfg.CallbackToken,
	}
}

type CreateInvoiceRequest struct {
	ExternalID  string `json:"external_id"`
	Amount      int64  `json:"amount"`
	Description string `json:"description"`
	Currency    string `json:"currency"`
	PayerEmail  string `json:"payer_email,omitempty"`
	// InvoiceDuration is serialized as a string, per the Xendit API.
	InvoiceDuration string `json:"invoice_duration"`
}

type Invoice struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id"`
	Status     string `json:"status"`
	InvoiceURL string `json:"invoice_url"`
	Amount     int64  `json:"amount"`
}

// CreateInvoice creates a hosted IDR invoice. A non-2xx response is surfaced
// with the provider's body so operators can see the rejection reason.
func (c *XenditClient) CreateInvoice(ctx context.Context, externalID string, amount int64, description, payerEmail string) (*Invoice, error) {
	body, err := json.Marshal(CreateInvoiceRequest{
		ExternalID:      externalID,
		Amount:          amount,
		Description:     description,
		Currency:        "IDR",
		PayerEmail:      payerEmail,
		InvoiceDuration: fmt.Sprintf("%d", invoiceDuration),
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v2/invoices", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	// Xendit uses basic auth with the secret key as username and no password.
	cred := base64.StdEncoding.EncodeToString([]byte(c.secretKey + ":"))
	req.Header.Set("Authorization", "Basic "+cred)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("xendit request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read xendit response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var inv Invoice
	if err := json.Unmarshal(respBody, &inv); err != nil {
		return nil, fmt.Errorf("decode xendit invoice: %w", err)
	}
	return &inv, nil
}

// VerifyCallbackToken checks the x-callback-token header of an incoming
// webhook in constant time. An empty configured token rejects everything.
func (c *XenditClient) VerifyCallbackToken(token string) bool {
	if c.callbackToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(c.callbackToken), []byte(token)) == 1
}

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("xendit API error [%d]: %s", e.StatusCode, e.Body)
}
