package rest

import (
	"net/http"
	"strings"
)

func (h *Handler) globalSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))

	results, err := h.search.Search(r.Context(), query)
	if err != nil {
		ServiceError(w, err)
		return
	}
	Success(w, "", results)
}
