package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type LoanCategory string

const (
	CategoryUang          LoanCategory = "uang"
	CategorySembako       LoanCategory = "sembako"
	CategoryAlatPertanian LoanCategory = "alat_pertanian"
	CategoryObat          LoanCategory = "obat"
	CategoryBarang        LoanCategory = "barang"
	CategoryElektronik    LoanCategory = "elektronik"
	CategoryKendaraan     LoanCategory = "kendaraan"
)

// CategoryLabels maps a category to the label shown on receipts and reports.
var CategoryLabels = map[LoanCategory]string{
	CategoryUang:          "Pinjaman Uang",
	CategorySembako:       "Sembako",
	CategoryAlatPertanian: "Alat Pertanian",
	CategoryObat:          "Obat-obatan",
	CategoryBarang:        "Barang",
	CategoryElektronik:    "Elektronik",
	CategoryKendaraan:     "Kendaraan",
}

func (c LoanCategory) Valid() bool {
	_, ok := CategoryLabels[c]
	return ok
}

type LoanStatus string

const (
	LoanStatusActive  LoanStatus = "active"
	LoanStatusPaid    LoanStatus = "paid"
	LoanStatusOverdue LoanStatus = "overdue"
)

func (s LoanStatus) Valid() bool {
	switch s {
	case LoanStatusActive, LoanStatusPaid, LoanStatusOverdue:
		return true
	}
	return false
}

// LoanItem is a goods line of a non-cash loan (sembako, alat pertanian, ...).
type LoanItem struct {
	ID       string
	LoanID   string
	Name     string
	Quantity int64
	Unit     string
	// Price per unit in whole rupiah.
	Price int64
}

func (i LoanItem) Subtotal() int64 {
	return i.Quantity * i.Price
}

// Loan references either a registered member (MemberID) or carries a borrower
// snapshot for walk-in borrowers; the member fields are filled in by joins.
type Loan struct {
	ID string

	MemberID   *string
	MemberName *string

	BorrowerName    *string
	BorrowerNIK     *string
	BorrowerPhone   *string
	BorrowerAddress *string

	Category LoanCategory

	// TotalAmount is the principal in whole rupiah.
	TotalAmount int64
	// InterestRate is a flat percentage, e.g. 1.5 means 1.5%.
	InterestRate decimal.Decimal

	DueDate time.Time
	Status  LoanStatus
	Notes   *string

	KTPImageURL *string

	Items []LoanItem

	CreatedAt time.Time
	UpdatedAt time.Time
}

var oneHundred = decimal.NewFromInt(100)

// TotalDue is principal × (1 + interest_rate/100) in exact decimal
// arithmetic, so the settlement comparison cannot drift at the boundary.
func (l *Loan) TotalDue() decimal.Decimal {
	principal := decimal.NewFromInt(l.TotalAmount)
	factor := decimal.NewFromInt(1).Add(l.InterestRate.Div(oneHundred))
	return principal.Mul(factor)
}

// DisplayName prefers the joined member name over the borrower snapshot.
func (l *Loan) DisplayName() string {
	if l.MemberName != nil && *l.MemberName != "" {
		return *l.MemberName
	}
	if l.BorrowerName != nil {
		return *l.BorrowerName
	}
	return ""
}
