package rest

import (
	"net/http"

	"koperasi-backend/internal/transport/auth"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) exportLoans(w http.ResponseWriter, r *http.Request) {
	req, err := ValidateLoansExportRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	operatorID, err := auth.GetOperatorID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	reportID, err := h.reports.StartLoansExport(r.Context(), req.Fields, req.ToRepositoryFilter(), operatorID)
	if err != nil {
		ServiceError(w, err)
		return
	}

	SuccessAccepted(w, "Ekspor dimasukkan ke antrean", map[string]interface{}{
		"report_id": reportID,
	})
}

func (h *Handler) exportPayments(w http.ResponseWriter, r *http.Request) {
	req, err := ValidatePaymentsExportRequest(r)
	if err != nil {
		if _, ok := err.(*ValidationError); ok {
			ErrorBadRequest(w, err.Error())
			return
		}
		ErrorBadRequest(w, "invalid JSON")
		return
	}

	operatorID, err := auth.GetOperatorID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	reportID, err := h.reports.StartPaymentsExport(r.Context(), req.Fields, req.ToRepositoryFilter(), operatorID)
	if err != nil {
		ServiceError(w, err)
		return
	}

	SuccessAccepted(w, "Ekspor dimasukkan ke antrean", map[string]interface{}{
		"report_id": reportID,
	})
}

func (h *Handler) listReports(w http.ResponseWriter, r *http.Request) {
	operatorID, err := auth.GetOperatorID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	reports, err := h.reports.ListReports(r.Context(), operatorID)
	if err != nil {
		ServiceError(w, err)
		return
	}
	Success(w, "", reports)
}

func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	operatorID, err := auth.GetOperatorID(r.Context())
	if err != nil {
		ErrorUnauthorized(w, "Unauthorized")
		return
	}

	reportIDParam := chi.URLParam(r, "report_id")
	if reportIDParam == "" {
		ErrorBadRequest(w, "report_id is required")
		return
	}
	reportID := "reports:" + reportIDParam

	report, err := h.reports.GetReport(r.Context(), reportID, operatorID)
	if err != nil {
		ServiceError(w, err)
		return
	}
	Success(w, "", report)
}
