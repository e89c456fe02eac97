package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/opsloom/codeterm/internal/audit"
	"github.com/opsloom/codeterm/internal/identity"
	"github.com/opsloom/codeterm/internal/session"
	"github.com/opsloom/codeterm/internal/store"
)

type sessionHandler struct {
	sessions *session.Manager
	audit    *audit.Logger // optional; nil disables audit recording
}

func (h *sessionHandler) record(r *http.Request, email, repoID, sessionID, action, outcome, message string) {
	if h.audit == nil {
		return
	}
	_ = h.audit.Record(r.Context(), &store.AuditRecord{
		UserEmail: email,
		RepoID:    repoID,
		SessionID: sessionID,
		Action:    action,
		Outcome:   outcome,
		Message:   message,
	})
}

// sessionView is the wire shape for a session, matching spec.md §6.2's
// response fields exactly.
type sessionView struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
	Branch    string    `json:"branch"`
}

func toSessionView(s *session.Session) sessionView {
	return sessionView{
		ID:        s.ID,
		Name:      s.Name,
		State:     s.State().String(),
		CreatedAt: s.CreatedAt,
		Branch:    s.Branch,
	}
}

// list handles GET /api/sessions?repoId=… — only the caller's sessions on
// the given repo.
func (h *sessionHandler) list(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())
	repoID := r.URL.Query().Get("repoId")

	tabs := make([]sessionView, 0)
	for _, s := range h.sessions.List(email) {
		if repoID != "" && s.RepoID != repoID {
			continue
		}
		tabs = append(tabs, toSessionView(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tabs": tabs})
}

// listAll handles GET /api/sessions/all — every session belonging to the
// caller across every repo.
func (h *sessionHandler) listAll(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())

	tabs := make([]sessionView, 0)
	for _, s := range h.sessions.List(email) {
		tabs = append(tabs, toSessionView(s))
	}
	writeJSON(w, http.StatusOK, map[string]any{"tabs": tabs})
}

type createSessionRequest struct {
	RepoID string `json:"repoId"`
	Name   string `json:"name,omitempty"`
	Branch string `json:"branch,omitempty"`
}

// create handles POST /api/sessions.
func (h *sessionHandler) create(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())

	var req createSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.RepoID == "" {
		writeError(w, http.StatusBadRequest, "repoId is required")
		return
	}
	s, err := h.sessions.Create(r.Context(), session.CreateParams{
		UserEmail:  email,
		RepoID:     req.RepoID,
		Name:       req.Name,
		BaseBranch: req.Branch,
	})
	if err != nil {
		h.record(r, email, req.RepoID, "", "session.create", "error", err.Error())
		switch {
		case errors.Is(err, session.ErrPerUserLimit):
			writeJSON(w, http.StatusTooManyRequests, map[string]string{"code": "MAX_SESSIONS_PER_USER"})
		case errors.Is(err, session.ErrGlobalLimit):
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"code": "SERVER_MAX_CAPACITY"})
		default:
			writeErrorDetail(w, http.StatusBadRequest, "failed to create session", err.Error())
		}
		return
	}
	h.record(r, email, req.RepoID, s.ID, "session.create", "ok", "")
	writeJSON(w, http.StatusCreated, toSessionView(s))
}

// delete handles DELETE /api/sessions/:id.
func (h *sessionHandler) delete(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())
	id := r.PathValue("id")

	if err := h.sessions.Terminate(id, email); err != nil {
		h.record(r, email, "", id, "session.terminate", "error", err.Error())
		writeSessionError(w, err)
		return
	}
	h.record(r, email, "", id, "session.terminate", "ok", "")
	w.WriteHeader(http.StatusNoContent)
}

type patchSessionRequest struct {
	Name string `json:"name"`
}

// patch handles PATCH /api/sessions/:id.
func (h *sessionHandler) patch(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())
	id := r.PathValue("id")

	var req patchSessionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.sessions.Rename(id, email, req.Name); err != nil {
		writeSessionError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func writeSessionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrForbidden):
		writeError(w, http.StatusNotFound, "session not found")
	default:
		writeErrorDetail(w, http.StatusInternalServerError, "session operation failed", err.Error())
	}
}
