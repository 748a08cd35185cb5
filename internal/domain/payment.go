package domain

import "time"

type PaymentMethod string

const (
	PaymentMethodManual PaymentMethod = "manual"
	PaymentMethodXendit PaymentMethod = "xendit"
)

type PaymentStatus string

const (
	PaymentStatusPending PaymentStatus = "pending"
	PaymentStatusPaid    PaymentStatus = "paid"
	PaymentStatusExpired PaymentStatus = "expired"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// Terminal reports whether the status may never transition again through the
// gateway callback path. Only pending payments move.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentStatusPaid || s == PaymentStatusExpired || s == PaymentStatusFailed
}

type Payment struct {
	ID     string
	LoanID string

	// Amount in whole rupiah; always positive.
	Amount int64

	Method PaymentMethod
	Status PaymentStatus

	// Xendit correlation fields; nil for manual payments.
	XenditInvoiceID     *string
	XenditInvoiceURL    *string
	XenditExternalID    *string
	XenditTransactionID *string
	XenditPaymentMethod *string

	Notes *string

	PaidAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
