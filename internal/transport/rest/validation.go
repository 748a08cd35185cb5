package rest

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"time"

	"koperasi-backend/internal/repository"

	"github.com/shopspring/decimal"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

type MemberRequest struct {
	Name    string  `json:"name"`
	NIK     string  `json:"nik"`
	Address *string `json:"address"`
	Phone   *string `json:"phone"`
}

func ValidateMemberRequest(r *http.Request) (*MemberRequest, error) {
	var req MemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return nil, err
	}
	if req.Name == "" {
		return nil, &ValidationError{Field: "name", Message: "name is required"}
	}
	if req.NIK == "" {
		return nil, &ValidationError{Field: "nik", Message: "nik is required"}
	}
	return &req, nil
}

type LoanItemRequest struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Unit     string `json:"unit"`
	Price    int64  `json:"price"`
}

type CreateLoanRequest struct {
	MemberID        *string           `json:"member_id"`
	BorrowerName    *string           `json:"borrower_name"`
	BorrowerNIK     *string           `json:"borrower_nik"`
	BorrowerPhone   *string           `json:"borrower_phone"`
	BorrowerAddress *string           `json:"borrower_address"`
	Category        string            `json:"category"`
	TotalAmount     int64             `json:"total_amount"`
	InterestRate    decimal.Decimal   `json:"interest_rate"`
	DueDate         string            `json:"due_date"`
	Notes           *string           `json:"notes"`
	KTPImageURL     *string           `json:"ktp_image_url"`
	Items           []LoanItemRequest `json:"items"`
}

func ValidateCreateLoanRequest(r *http.Request) (*CreateLoanRequest, error) {
	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return nil, err
	}
	if req.Category == "" {
		return nil, &ValidationError{Field: "category", Message: "category is required"}
	}
	if req.DueDate == "" {
		return nil, &ValidationError{Field: "due_date", Message: "due_date is required"}
	}
	if _, err := time.Parse("2006-01-02", req.DueDate); err != nil {
		return nil, &ValidationError{Field: "due_date", Message: "due_date must be YYYY-MM-DD"}
	}
	return &req, nil
}

type ManualPaymentRequest struct {
	LoanID         string  `json:"loan_id"`
	Amount         int64   `json:"amount"`
	Notes          *string `json:"notes"`
	IdempotencyKey string  `json:"idempotency_key"`
}

func ValidateManualPaymentRequest(r *http.Request) (*ManualPaymentRequest, error) {
	var req ManualPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return nil, err
	}
	if req.LoanID == "" {
		return nil, &ValidationError{Field: "loan_id", Message: "loan_id is required"}
	}
	if req.Amount <= 0 {
		return nil, &ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	return &req, nil
}

type InvoiceRequest struct {
	LoanID      string `json:"loan_id"`
	Amount      int64  `json:"amount"`
	PayerEmail  string `json:"payer_email"`
	Description string `json:"description"`
}

func ValidateInvoiceRequest(r *http.Request) (*InvoiceRequest, error) {
	var req InvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		return nil, err
	}
	if req.LoanID == "" {
		return nil, &ValidationError{Field: "loan_id", Message: "loan_id is required"}
	}
	if req.Amount <= 0 {
		return nil, &ValidationError{Field: "amount", Message: "amount must be positive"}
	}
	return &req, nil
}

type LoansExportRequest struct {
	Fields   []string `json:"fields"`
	Category *string  `json:"-"`
	Status   *string  `json:"-"`
	MemberID *string  `json:"-"`
}

type rawLoansExportRequest struct {
	Fields   []string    `json:"fields"`
	Category interface{} `json:"category"`
	Status   interface{} `json:"status"`
	MemberID interface{} `json:"member_id"`
}

func ValidateLoansExportRequest(r *http.Request) (*LoansExportRequest, error) {
	var raw rawLoansExportRequest
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && err != io.EOF {
		return nil, err
	}

	category, err := toStringPtr(raw.Category)
	if err != nil {
		return nil, &ValidationError{Field: "category", Message: "category must be string or empty"}
	}
	status, err := toStringPtr(raw.Status)
	if err != nil {
		return nil, &ValidationError{Field: "status", Message: "status must be string or empty"}
	}
	memberID, err := toStringPtr(raw.MemberID)
	if err != nil {
		return nil, &ValidationError{Field: "member_id", Message: "member_id must be string or empty"}
	}

	return &LoansExportRequest{
		Fields:   raw.Fields,
		Category: category,
		Status:   status,
		MemberID: memberID,
	}, nil
}

func (r *LoansExportRequest) ToRepositoryFilter() repository.LoansFilter {
	return repository.LoansFilter{
		Category: r.Category,
		Status:   r.Status,
		MemberID: r.MemberID,
	}
}

type PaymentsExportRequest struct {
	Fields   []string   `json:"fields"`
	LoanID   *string    `json:"-"`
	Status   *string    `json:"-"`
	Method   *string    `json:"-"`
	PaidFrom *time.Time `json:"-"`
	PaidTo   *time.Time `json:"-"`
}

type rawPaymentsExportRequest struct {
	Fields []string    `json:"fields"`
	LoanID interface{} `json:"loan_id"`
	Status interface{} `json:"status"`
	Method interface{} `json:"method"`

	PaidStartDate interface{} `json:"paid_start_date"`
	PaidEndDate   interface{} `json:"paid_end_date"`
}

func ValidatePaymentsExportRequest(r *http.Request) (*PaymentsExportRequest, error) {
	var raw rawPaymentsExportRequest
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil && err != io.EOF {
		return nil, err
	}

	loanID, err := toStringPtr(raw.LoanID)
	if err != nil {
		return nil, &ValidationError{Field: "loan_id", Message: "loan_id must be string or empty"}
	}
	status, err := toStringPtr(raw.Status)
	if err != nil {
		return nil, &ValidationError{Field: "status", Message: "status must be string or empty"}
	}
	method, err := toStringPtr(raw.Method)
	if err != nil {
		return nil, &ValidationError{Field: "method", Message: "method must be string or empty"}
	}
	paidFrom, err := toDatePtr(raw.PaidStartDate)
	if err != nil {
		return nil, &ValidationError{Field: "paid_start_date", Message: "paid_start_date must be YYYY-MM-DD or empty"}
	}
	paidTo, err := toDatePtr(raw.PaidEndDate)
	if err != nil {
		return nil, &ValidationError{Field: "paid_end_date", Message: "paid_end_date must be YYYY-MM-DD or empty"}
	}

	return &PaymentsExportRequest{
		Fields:   raw.Fields,
		LoanID:   loanID,
		Status:   status,
		Method:   method,
		PaidFrom: paidFrom,
		PaidTo:   paidTo,
	}, nil
}

func (r *PaymentsExportRequest) ToRepositoryFilter() repository.PaymentsFilter {
	return repository.PaymentsFilter{
		LoanID:   r.LoanID,
		Status:   r.Status,
		Method:   r.Method,
		PaidFrom: r.PaidFrom,
		PaidTo:   r.PaidTo,
	}
}

func toStringPtr(v interface{}) (*string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		return &t, nil
	case float64:
		i := int64(t)
		s := strconv.FormatInt(i, 10)
		return &s, nil
	default:
		return nil, &ValidationError{Message: "invalid type for string field"}
	}
}

func toDatePtr(v interface{}) (*time.Time, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		if t == "" {
			return nil, nil
		}
		parsed, err := time.Parse("2006-01-02", t)
		if err != nil {
			return nil, err
		}
		return &parsed, nil
	default:
		return nil, &ValidationError{Message: "invalid type for date field"}
	}
}
