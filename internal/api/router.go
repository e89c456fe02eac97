package api

import (
	"net/http"

	"github.com/opsloom/codeterm/internal/audit"
	"github.com/opsloom/codeterm/internal/identity"
	"github.com/opsloom/codeterm/internal/reporegistry"
	"github.com/opsloom/codeterm/internal/session"
	"github.com/opsloom/codeterm/internal/settings"
	"github.com/opsloom/codeterm/internal/store"
	"github.com/opsloom/codeterm/internal/tasks"
	"github.com/opsloom/codeterm/internal/termws"
	"github.com/opsloom/codeterm/internal/worktree"
)

// RouterDeps holds the dependencies needed by the HTTP API router.
type RouterDeps struct {
	Gate      *identity.Gate
	Sessions  *session.Manager
	Repos     *reporegistry.Registry
	Worktrees *worktree.Manager
	Settings  *settings.Service
	AuditDB   store.AuditStore
	Audit     *audit.Logger // optional; nil disables audit recording in handlers

	TermsWS *termws.Handler
	Tasks   *tasks.Handler // optional; nil when TASKS_ENABLED=false

	MaxFileSizeBytes int64
}

// NewRouter builds the full HTTP/WS surface, wrapping every REST route
// (other than /healthz) in the identity gate and mounting the two
// WebSocket endpoints directly, since their handlers already call
// Gate.VerifyRequest themselves as termws.ResolveUser.
func NewRouter(deps RouterDeps) http.Handler {
	mux := http.NewServeMux()

	health := &healthHandler{sessions: deps.Sessions}
	mux.HandleFunc("GET /healthz", health.check)

	wsH := &workspaceHandler{repos: deps.Repos, worktrees: deps.Worktrees, maxFileSize: deps.MaxFileSizeBytes, audit: deps.Audit}
	mux.Handle("GET /api/repos", authed(deps.Gate, http.HandlerFunc(wsH.discoverRepos)))
	mux.Handle("GET /api/tree", authed(deps.Gate, http.HandlerFunc(wsH.tree)))
	mux.Handle("GET /api/file", authed(deps.Gate, http.HandlerFunc(wsH.getFile)))
	mux.Handle("PUT /api/file", authed(deps.Gate, http.HandlerFunc(wsH.putFile)))
	mux.Handle("DELETE /api/file", authed(deps.Gate, http.HandlerFunc(wsH.deleteFile)))
	mux.Handle("POST /api/search", authed(deps.Gate, http.HandlerFunc(wsH.search)))
	mux.Handle("GET /api/git/status", authed(deps.Gate, http.HandlerFunc(wsH.gitStatus)))
	mux.Handle("GET /api/git/diff", authed(deps.Gate, http.HandlerFunc(wsH.gitDiff)))
	mux.Handle("GET /api/git/log", authed(deps.Gate, http.HandlerFunc(wsH.gitLog)))
	mux.Handle("GET /api/git/branches", authed(deps.Gate, http.HandlerFunc(wsH.gitBranches)))
	mux.Handle("POST /api/git/checkout", authed(deps.Gate, http.HandlerFunc(wsH.gitCheckout)))

	sh := &sessionHandler{sessions: deps.Sessions, audit: deps.Audit}
	mux.Handle("GET /api/sessions", authed(deps.Gate, http.HandlerFunc(sh.list)))
	mux.Handle("GET /api/sessions/all", authed(deps.Gate, http.HandlerFunc(sh.listAll)))
	mux.Handle("POST /api/sessions", authed(deps.Gate, http.HandlerFunc(sh.create)))
	mux.Handle("DELETE /api/sessions/{id}", authed(deps.Gate, http.HandlerFunc(sh.delete)))
	mux.Handle("PATCH /api/sessions/{id}", authed(deps.Gate, http.HandlerFunc(sh.patch)))

	if deps.AuditDB != nil {
		ah := &auditHandler{store: deps.AuditDB}
		mux.Handle("GET /api/v1/admin/audit", authed(deps.Gate, adminOnly(deps.Gate, http.HandlerFunc(ah.query))))
	}

	dash := &dashboardHandler{sessions: deps.Sessions, auditStore: deps.AuditDB}
	mux.Handle("GET /api/dashboard", authed(deps.Gate, http.HandlerFunc(dash.get)))

	if deps.Settings != nil {
		seth := &settingsHandler{settings: deps.Settings}
		mux.Handle("GET /api/admin/settings", authed(deps.Gate, adminOnly(deps.Gate, http.HandlerFunc(seth.get))))
		mux.Handle("PUT /api/admin/settings", authed(deps.Gate, adminOnly(deps.Gate, http.HandlerFunc(seth.update))))
	}

	mux.Handle("/ws/claude", deps.TermsWS)
	if deps.Tasks != nil {
		mux.Handle("/ws/tasks", deps.Tasks)
	}

	var handler http.Handler = mux
	handler = requireJSONContentTypeMiddleware(handler)
	handler = requestBodyLimitMiddleware(handler)
	handler = loggingMiddleware(handler)
	handler = requestIDMiddleware(handler)
	handler = corsMiddleware(handler)
	return handler
}

// authed verifies the caller's identity before delegating to next,
// stashing the verified email on the request context for handlers to
// read via identity.EmailFromContext.
func authed(gate *identity.Gate, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, err := gate.VerifyRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		ctx := identity.WithEmail(r.Context(), email)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// adminOnly must be chained inside authed so EmailFromContext is already
// populated; it rejects any verified caller who is not an admin.
func adminOnly(gate *identity.Gate, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		email, ok := identity.EmailFromContext(r.Context())
		if !ok || !gate.IsAdmin(email) {
			writeError(w, http.StatusForbidden, "admin access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}
