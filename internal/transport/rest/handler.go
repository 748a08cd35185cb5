package rest

import (
	"context"
	"net/http"
	"time"

	"koperasi-backend/internal/domain"
	"koperasi-backend/internal/repository"
	"koperasi-backend/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

type MemberService interface {
	ListMembers(ctx context.Context) ([]domain.Member, error)
	GetMember(ctx context.Context, id string) (*domain.Member, error)
	CreateMember(ctx context.Context, in service.MemberInput) (*domain.Member, error)
	UpdateMember(ctx context.Context, id string, in service.MemberInput) (*domain.Member, error)
	DeleteMember(ctx context.Context, id string) error
}

type LoanService interface {
	ListLoans(ctx context.Context, f repository.LoansFilter) ([]domain.Loan, error)
	GetLoan(ctx context.Context, id string) (*domain.Loan, error)
	CreateLoan(ctx context.Context, in service.LoanInput) (*domain.Loan, error)
	UpdateStatus(ctx context.Context, id string, status domain.LoanStatus) (*domain.Loan, error)
	DeleteLoan(ctx context.Context, id string) error
}

type PaymentService interface {
	ListPayments(ctx context.Context, f repository.PaymentsFilter) ([]domain.Payment, error)
	ListByLoan(ctx context.Context, loanID string) ([]domain.Payment, error)
	TotalPaid(ctx context.Context, loanID string) (int64, error)
	RecordManualPayment(ctx context.Context, in service.ManualPaymentInput) (*domain.Payment, error)
	CreateInvoice(ctx context.Context, in service.InvoiceInput) (*service.InvoiceResult, error)
	HandleGatewayCallback(ctx context.Context, cb service.GatewayCallback) (*domain.Payment, error)
}

type ReportService interface {
	StartLoansExport(ctx context.Context, selected []string, filter repository.LoansFilter, operatorID int64) (string, error)
	StartPaymentsExport(ctx context.Context, selected []string, filter repository.PaymentsFilter, operatorID int64) (string, error)
	ListReports(ctx context.Context, operatorID int64) ([]service.ReportStatus, error)
	GetReport(ctx context.Context, reportID string, operatorID int64) (*service.ReportStatus, error)
}

type SearchService interface {
	Search(ctx context.Context, query string) ([]service.SearchResult, error)
}

type DashboardService interface {
	Stats(ctx context.Context) (*service.DashboardStats, error)
}

// CallbackVerifier checks the x-callback-token header on gateway webhooks.
type CallbackVerifier interface {
	VerifyCallbackToken(token string) bool
}

type Handler struct {
	members   MemberService
	loans     LoanService
	payments  PaymentService
	reports   ReportService
	search    SearchService
	dashboard DashboardService
	verifier  CallbackVerifier
}

func NewHandler(
	members MemberService,
	loans LoanService,
	payments PaymentService,
	reports ReportService,
	search SearchService,
	dashboard DashboardService,
	verifier CallbackVerifier,
) *Handler {
	return &Handler{
		members:   members,
		loans:     loans,
		payments:  payments,
		reports:   reports,
		search:    search,
		dashboard: dashboard,
		verifier:  verifier,
	}
}

func (h *Handler) InitRouter() *chi.Mux {
	return h.InitRouterWithAuth(nil)
}

// InitRouterWithAuth builds the operator-facing API. Everything here requires
// a valid token; the gateway webhook lives on the public router instead.
func (h *Handler) InitRouterWithAuth(authMiddleware func(http.Handler) http.Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RequestID,
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)

	if authMiddleware != nil {
		r.Use(authMiddleware)
	}

	r.Route("/members", func(r chi.Router) {
		r.Get("/", h.listMembers)
		r.Post("/", h.createMember)
		r.Get("/{member_id}", h.getMember)
		r.Put("/{member_id}", h.updateMember)
		r.Delete("/{member_id}", h.deleteMember)
	})

	r.Route("/loans", func(r chi.Router) {
		r.Get("/", h.listLoans)
		r.Post("/", h.createLoan)
		r.Get("/{loan_id}", h.getLoan)
		r.Patch("/{loan_id}/status", h.updateLoanStatus)
		r.Delete("/{loan_id}", h.deleteLoan)
		r.Get("/{loan_id}/payments", h.listLoanPayments)
	})

	r.Route("/payments", func(r chi.Router) {
		r.Get("/", h.listPayments)
		r.Post("/manual", h.recordManualPayment)
		r.Post("/invoice", h.createInvoice)
	})

	r.Route("/reports", func(r chi.Router) {
		r.Get("/", h.listReports)
		r.Get("/{report_id}", h.getReport)
		r.Post("/loans", h.exportLoans)
		r.Post("/payments", h.exportPayments)
	})

	r.Get("/search", h.globalSearch)
	r.Get("/dashboard/stats", h.dashboardStats)

	return r
}

// InitPublicRouter holds the endpoints the payment provider calls. They are
// authenticated with the callback token instead of operator tokens.
func (h *Handler) InitPublicRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(
		middleware.RealIP,
		middleware.Logger,
		middleware.Recoverer,
		middleware.Timeout(30*time.Second),
	)

	r.Post("/webhooks/xendit", h.xenditWebhook)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	return r
}
