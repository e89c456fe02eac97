package api

import (
	"net/http"
	"time"

	"github.com/opsloom/codeterm/internal/identity"
	"github.com/opsloom/codeterm/internal/session"
	"github.com/opsloom/codeterm/internal/store"
)

// dashboardHandler serves a caller's own activity overview, trimmed from
// the teacher's dashboard_handler.go down to the entities this domain
// actually has: sessions and audit records. There are no downstream
// servers, routing rules, or approvals to report on here.
type dashboardHandler struct {
	sessions   *session.Manager
	auditStore store.AuditStore // optional; nil omits RecentActivity
}

type dashboardResponse struct {
	ActiveSessions int                 `json:"activeSessions"`
	SessionList    []sessionView       `json:"sessions"`
	RecentActivity []store.AuditRecord `json:"recentActivity,omitempty"`
}

func (h *dashboardHandler) get(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())

	live := h.sessions.List(email)
	views := make([]sessionView, 0, len(live))
	for _, s := range live {
		views = append(views, toSessionView(s))
	}

	resp := dashboardResponse{
		ActiveSessions: len(views),
		SessionList:    views,
	}

	if h.auditStore != nil {
		records, _, err := h.auditStore.QueryAuditRecords(r.Context(), store.AuditFilter{
			UserEmail: email,
			After:     time.Now().Add(-24 * time.Hour),
			Limit:     20,
		})
		if err == nil {
			resp.RecentActivity = records
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
