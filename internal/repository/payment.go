package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"koperasi-backend/internal/domain"
)

type PaymentsFilter struct {
	LoanID   *string
	Status   *string
	Method   *string
	PaidFrom *time.Time
	PaidTo   *time.Time
}

type PaymentRepository struct {
	db *sql.DB
}

func NewPaymentRepository(db *sql.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `
	id, loan_id, amount, payment_method, payment_status,
	xendit_invoice_id, xendit_invoice_url, xendit_external_id,
	xendit_transaction_id, xendit_payment_method,
	notes, paid_at, created_at, updated_at`

func scanPayment(row interface{ Scan(...any) error }) (*domain.Payment, error) {
	var p domain.Payment
	var method, status string
	var paidAt sql.NullTime
	if err := row.Scan(
		&p.ID,
		&p.LoanID,
		&p.Amount,
		&method,
		&status,
		&p.XenditInvoiceID,
		&p.XenditInvoiceURL,
		&p.XenditExternalID,
		&p.XenditTransactionID,
		&p.XenditPaymentMethod,
		&p.Notes,
		&paidAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	p.Method = domain.PaymentMethod(method)
	p.Status = domain.PaymentStatus(status)
	if paidAt.Valid {
		p.PaidAt = &paidAt.Time
	}
	return &p, nil
}

func (r *PaymentRepository) Create(ctx context.Context, p *domain.Payment) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO payments (
			id, loan_id, amount, payment_method, payment_status,
			xendit_invoice_id, xendit_invoice_url, xendit_external_id,
			notes, paid_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)`,
		p.ID, p.LoanID, p.Amount, string(p.Method), string(p.Status),
		p.XenditInvoiceID, p.XenditInvoiceURL, p.XenditExternalID,
		p.Notes, p.PaidAt, p.CreatedAt,
	)
	return err
}

func (r *PaymentRepository) List(ctx context.Context, f PaymentsFilter) ([]domain.Payment, error) {
	where := []string{"1=1"}
	args := []any{}
	i := 1

	if f.LoanID != nil && *f.LoanID != "" {
		where = append(where, fmt.Sprintf("loan_id = $%d", i))
		args = append(args, *f.LoanID)
		i++
	}
	if f.Status != nil && *f.Status != "" {
		where = append(where, fmt.Sprintf("payment_status = $%d", i))
		args = append(args, *f.Status)
		i++
	}
	if f.Method != nil && *f.Method != "" {
		where = append(where, fmt.Sprintf("payment_method = $%d", i))
		args = append(args, *f.Method)
		i++
	}
	if f.PaidFrom != nil {
		where = append(where, fmt.Sprintf("paid_at >= $%d", i))
		args = append(args, *f.PaidFrom)
		i++
	}
	if f.PaidTo != nil {
		where = append(where, fmt.Sprintf("paid_at <= $%d", i))
		args = append(args, *f.PaidTo)
		i++
	}

	query := `SELECT ` + paymentColumns + ` FROM payments WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at DESC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func (r *PaymentRepository) ListByLoan(ctx context.Context, loanID string) ([]domain.Payment, error) {
	return r.List(ctx, PaymentsFilter{LoanID: &loanID})
}

func (r *PaymentRepository) GetByExternalID(ctx context.Context, externalID string) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE xendit_external_id = $1`,
		externalID,
	)
	return scanPayment(row)
}

// SumPaidByLoan is the reconciler's read: confirmed payments only.
func (r *PaymentRepository) SumPaidByLoan(ctx context.Context, loanID string) (int64, error) {
	var sum int64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)
		FROM payments
		WHERE loan_id = $1 AND payment_status = 'paid'`,
		loanID,
	).Scan(&sum)
	return sum, err
}

// ApplyGatewayStatus moves a pending payment to its callback-reported state.
// The payment_status guard keeps redelivered callbacks from touching a row
// that already reached a terminal state. Returns sql.ErrNoRows when nothing
// was pending under that external id.
func (r *PaymentRepository) ApplyGatewayStatus(
	ctx context.Context,
	externalID string,
	status domain.PaymentStatus,
	transactionID, paymentMethod *string,
	paidAt *time.Time,
) (*domain.Payment, error) {
	row := r.db.QueryRowContext(ctx, `
		UPDATE payments
		SET payment_status = $2,
		    xendit_transaction_id = $3,
		    xendit_payment_method = $4,
		    paid_at = COALESCE($5, paid_at),
		    updated_at = $6
		WHERE xendit_external_id = $1 AND payment_status = 'pending'
		RETURNING `+paymentColumns,
		externalID, string(status), transactionID, paymentMethod, paidAt, time.Now(),
	)
	return scanPayment(row)
}
