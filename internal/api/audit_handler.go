package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/opsloom/codeterm/internal/store"
)

type auditHandler struct {
	store store.AuditStore
}

// query handles GET /api/v1/admin/audit, grounded on the teacher's
// audit_handler.go query-filter parsing and {data, total, limit, offset}
// envelope shape.
func (h *auditHandler) query(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.AuditFilter{
		UserEmail: q.Get("user_email"),
		RepoID:    q.Get("repo_id"),
		Action:    q.Get("action"),
		Limit:     50,
		Offset:    0,
	}

	if v := q.Get("after"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.After = t
		}
	}
	if v := q.Get("before"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			filter.Before = t
		}
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			filter.Limit = n
		}
	}
	if v := q.Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			filter.Offset = n
		}
	}

	records, total, err := h.store.QueryAuditRecords(r.Context(), filter)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to query audit records")
		return
	}

	if records == nil {
		records = []store.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"data":   records,
		"total":  total,
		"limit":  filter.Limit,
		"offset": filter.Offset,
	})
}
