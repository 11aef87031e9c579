package audit

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-kasir/internal/common"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

// Handler exposes the session journal over HTTP.
type Handler struct {
	Store Store
}

// SessionJournal lists the newest journal entries of a session.
func (h Handler) SessionJournal(w http.ResponseWriter, r *http.Request) {
	if h.Store == nil {
		common.JSONError(w, http.StatusServiceUnavailable, "AUDIT_NOT_CONFIGURED", "journal not configured", nil)
		return
	}
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil || limit <= 0 || limit > 200 {
		limit = 50
	}
	tenantID, _ := tenant.From(r.Context())
	rows, err := h.Store.ListBySession(r.Context(), tenantID, chi.URLParam(r, "sessionID"), limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch journal", nil)
		return
	}
	if rows == nil {
		rows = []Entry{}
	}
	common.Data(w, http.StatusOK, rows)
}
