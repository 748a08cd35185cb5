package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateInvoice_RequestShape(t *testing.T) {
	var gotAuth string
	var gotBody CreateInvoiceRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v2/invoices", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")

		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(Invoice{
			ID:         "inv-1",
			ExternalID: gotBody.ExternalID,
			Status:     "PENDING",
			InvoiceURL: "https://checkout.xendit.co/web/inv-1",
			Amount:     gotBody.Amount,
		})
	}))
	defer srv.Close()

	client := NewXenditClient(XenditConfig{
		BaseURL:   srv.URL,
		SecretKey: "xnd_development_abc",
	})

	inv, err := client.CreateInvoice(context.Background(), "LOAN-loan-1-123", 101_500, "Pembayaran pinjaman #loan-1", "warga@desa.id")
	require.NoError(t, err)

	expectedAuth := "Basic " + base64.StdEncoding.EncodeToString([]byte("xnd_development_abc:"))
	assert.Equal(t, expectedAuth, gotAuth)

	assert.Equal(t, "LOAN-loan-1-123", gotBody.ExternalID)
	assert.Equal(t, int64(101_500), gotBody.Amount)
	assert.Equal(t, "IDR", gotBody.Currency)
	assert.Equal(t, "86400", gotBody.InvoiceDuration)
	assert.Equal(t, "warga@desa.id", gotBody.PayerEmail)

	assert.Equal(t, "inv-1", inv.ID)
	assert.Equal(t, "https://checkout.xendit.co/web/inv-1", inv.InvoiceURL)
}

func TestCreateInvoice_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error_code":"INVALID_API_KEY"}`))
	}))
	defer srv.Close()

	client := NewXenditClient(XenditConfig{BaseURL: srv.URL, SecretKey: "bad"})

	_, err := client.CreateInvoice(context.Background(), "LOAN-x-1", 1000, "", "")

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	assert.Contains(t, apiErr.Body, "INVALID_API_KEY")
}

func TestCreateInvoice_MalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer srv.Close()

	client := NewXenditClient(XenditConfig{BaseURL: srv.URL, SecretKey: "k"})

	_, err := client.CreateInvoice(context.Background(), "LOAN-x-1", 1000, "", "")
	require.Error(t, err)
}

func TestVerifyCallbackToken(t *testing.T) {
	client := NewXenditClient(XenditConfig{SecretKey: "k", CallbackToken: "secret-token"})

	assert.True(t, client.VerifyCallbackToken("secret-token"))
	assert.False(t, client.VerifyCallbackToken("wrong"))
	assert.False(t, client.VerifyCallbackToken(""))
}

func TestVerifyCallbackToken_EmptyConfigRejectsAll(t *testing.T) {
	client := NewXenditClient(XenditConfig{SecretKey: "k"})

	assert.False(t, client.VerifyCallbackToken("anything"))
	assert.False(t, client.VerifyCallbackToken(""))
}
