package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"koperasi-backend/internal/domain"
)

type LoansFilter struct {
	Category *string
	Status   *string
	MemberID *string
}

type CategoryStat struct {
	Category domain.LoanCategory
	Amount   int64
	Count    int64
}

type LoanRepository struct {
	db *sql.DB
}

func NewLoanRepository(db *sql.DB) *LoanRepository {
	return &LoanRepository{db: db}
}

const loanSelect = `
	SELECT
		l.id,
		l.member_id,
		m.name AS member_name,
		l.borrower_name,
		l.borrower_nik,
		l.borrower_phone,
		l.borrower_address,
		l.category,
		l.total_amount,
		l.interest_rate,
		l.due_date,
		l.status,
		l.notes,
		l.ktp_image_url,
		l.created_at,
		l.updated_at
	FROM loans l
	LEFT JOIN members m ON m.id = l.member_id
`

func scanLoan(row interface{ Scan(...any) error }) (*domain.Loan, error) {
	var l domain.Loan
	var status string
	var category string
	if err := row.Scan(
		&l.ID,
		&l.MemberID,
		&l.MemberName,
		&l.BorrowerName,
		&l.BorrowerNIK,
		&l.BorrowerPhone,
		&l.BorrowerAddress,
		&category,
		&l.TotalAmount,
		&l.InterestRate,
		&l.DueDate,
		&status,
		&l.Notes,
		&l.KTPImageURL,
		&l.CreatedAt,
		&l.UpdatedAt,
	); err != nil {
		return nil, err
	}
	l.Category = domain.LoanCategory(category)
	l.Status = domain.LoanStatus(status)
	return &l, nil
}

func (r *LoanRepository) List(ctx context.Context, f LoansFilter) ([]domain.Loan, error) {
	where := []string{"1=1"}
	args := []any{}
	i := 1

	if f.Category != nil && *f.Category != "" {
		where = append(where, fmt.Sprintf("l.category = $%d", i))
		args = append(args, *f.Category)
		i++
	}
	if f.Status != nil && *f.Status != "" {
		where = append(where, fmt.Sprintf("l.status = $%d", i))
		args = append(args, *f.Status)
		i++
	}
	if f.MemberID != nil && *f.MemberID != "" {
		where = append(where, fmt.Sprintf("l.member_id = $%d", i))
		args = append(args, *f.MemberID)
		i++
	}

	query := loanSelect + " WHERE " + strings.Join(where, " AND ") + " ORDER BY l.created_at DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := r.attachItems(ctx, loans); err != nil {
		return nil, err
	}
	return loans, nil
}

func (r *LoanRepository) attachItems(ctx context.Context, loans []domain.Loan) error {
	if len(loans) == 0 {
		return nil
	}

	ids := make([]string, 0, len(loans))
	byID := make(map[string]*domain.Loan, len(loans))
	for idx := range loans {
		ids = append(ids, loans[idx].ID)
		byID[loans[idx].ID] = &loans[idx]
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, loan_id, name, quantity, unit, price
		FROM loan_items
		WHERE loan_id = ANY($1)
		ORDER BY name`,
		ids,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it domain.LoanItem
		if err := rows.Scan(&it.ID, &it.LoanID, &it.Name, &it.Quantity, &it.Unit, &it.Price); err != nil {
			return err
		}
		if l, ok := byID[it.LoanID]; ok {
			l.Items = append(l.Items, it)
		}
	}
	return rows.Err()
}

func (r *LoanRepository) GetByID(ctx context.Context, id string) (*domain.Loan, error) {
	row := r.db.QueryRowContext(ctx, loanSelect+" WHERE l.id = $1", id)
	l, err := scanLoan(row)
	if err != nil {
		return nil, err
	}

	loans := []domain.Loan{*l}
	if err := r.attachItems(ctx, loans); err != nil {
		return nil, err
	}
	return &loans[0], nil
}

// Create inserts the loan and its line items in one transaction.
func (r *LoanRepository) Create(ctx context.Context, l *domain.Loan) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO loans (
			id, member_id, borrower_name, borrower_nik, borrower_phone, borrower_address,
			category, total_amount, interest_rate, due_date, status, notes, ktp_image_url,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)`,
		l.ID, l.MemberID, l.BorrowerName, l.BorrowerNIK, l.BorrowerPhone, l.BorrowerAddress,
		string(l.Category), l.TotalAmount, l.InterestRate, l.DueDate, string(l.Status),
		l.Notes, l.KTPImageURL, l.CreatedAt,
	)
	if err != nil {
		return err
	}

	for _, it := range l.Items {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO loan_items (id, loan_id, name, quantity, unit, price)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			it.ID, l.ID, it.Name, it.Quantity, it.Unit, it.Price,
		)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (r *LoanRepository) UpdateStatus(ctx context.Context, id string, status domain.LoanStatus) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE loans SET status = $2, updated_at = $3 WHERE id = $1`,
		id, string(status), time.Now(),
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkPaidIfUnpaid is the settlement write. The status guard makes concurrent
// reconciliation runs idempotent: a stale writer cannot overwrite paid.
func (r *LoanRepository) MarkPaidIfUnpaid(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE loans SET status = 'paid', updated_at = $2
		WHERE id = $1 AND status <> 'paid'`,
		id, time.Now(),
	)
	return err
}

// MarkOverdueBefore flips active loans whose due date passed; returns how
// many changed.
func (r *LoanRepository) MarkOverdueBefore(ctx context.Context, t time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE loans SET status = 'overdue', updated_at = $2
		WHERE status = 'active' AND due_date < $1`,
		t, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Delete removes the loan and its line items. Payments are kept for the
// books.
func (r *LoanRepository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM loan_items WHERE loan_id = $1`, id); err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM loans WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}

	return tx.Commit()
}

// Search matches the borrower snapshot and the joined member fields.
func (r *LoanRepository) Search(ctx context.Context, query string, limit int) ([]domain.Loan, error) {
	pattern := "%" + query + "%"
	rows, err := r.db.QueryContext(ctx, loanSelect+`
		WHERE l.borrower_name ILIKE $1
		   OR l.borrower_nik ILIKE $1
		   OR l.borrower_phone ILIKE $1
		   OR m.name ILIKE $1
		   OR m.nik ILIKE $1
		   OR m.phone ILIKE $1
		ORDER BY l.created_at DESC
		LIMIT $2`,
		pattern, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var loans []domain.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, *l)
	}
	return loans, rows.Err()
}

// StatusCounts returns loan counts per status plus the overall principal sum.
func (r *LoanRepository) StatusCounts(ctx context.Context) (map[domain.LoanStatus]int64, int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*), COALESCE(SUM(total_amount), 0)
		FROM loans
		GROUP BY status`)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	counts := make(map[domain.LoanStatus]int64)
	var totalAmount int64
	for rows.Next() {
		var status string
		var count, amount int64
		if err := rows.Scan(&status, &count, &amount); err != nil {
			return nil, 0, err
		}
		counts[domain.LoanStatus(status)] = count
		totalAmount += amount
	}
	return counts, totalAmount, rows.Err()
}

// ActiveByCategory aggregates active loans per category for the dashboard
// cards.
func (r *LoanRepository) ActiveByCategory(ctx context.Context) ([]CategoryStat, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT category, COALESCE(SUM(total_amount), 0), COUNT(*)
		FROM loans
		WHERE status = 'active'
		GROUP BY category`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []CategoryStat
	for rows.Next() {
		var st CategoryStat
		var category string
		if err := rows.Scan(&category, &st.Amount, &st.Count); err != nil {
			return nil, err
		}
		st.Category = domain.LoanCategory(category)
		out = append(out, st)
	}
	return out, rows.Err()
}
