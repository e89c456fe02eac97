// Package termws implements the terminal WebSocket endpoint: frame
// dispatch for attach/input/resize/restart/ping, replay-on-attach,
// server-initiated heartbeats, and the endpoint's close-code contract.
// It is the WebSocket analog of the teacher's gateway.Server — a
// per-connection sequential dispatch loop over JSON frames — adapted
// from a JSON-RPC stdio pipe to a WebSocket session multiplexer.
package termws

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/opsloom/codeterm/internal/reporegistry"
	"github.com/opsloom/codeterm/internal/session"
)

// ResolveUser extracts the verified user email for the request, as
// established upstream by the identity gate. Handler takes this as a
// function rather than depending on the identity package directly, the
// same way the teacher's Server takes a ToolLister/Notifier interface
// instead of a concrete type.
type ResolveUser func(r *http.Request) (string, error)

// Handler upgrades and serves the terminal WebSocket endpoint.
type Handler struct {
	sessions    *session.Manager
	repos       *reporegistry.Registry
	resolveUser ResolveUser
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// NewHandler constructs a terminal WebSocket Handler.
func NewHandler(sessions *session.Manager, repos *reporegistry.Registry, resolveUser ResolveUser, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions:    sessions,
		repos:       repos,
		resolveUser: resolveUser,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Origin is not meaningful here: the endpoint sits behind the
			// identity gate, which authenticates every request regardless
			// of browser origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	repoID := r.URL.Query().Get("repoId")

	userEmail, userErr := h.resolveUser(r)

	var repoRoot string
	var repoErr error
	if repoID != "" {
		repoRoot, repoErr = h.repos.Resolve(repoID)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	switch {
	case repoID == "":
		closeWithCode(conn, CloseBadRequest, "missing repoId")
		return
	case userErr != nil || userEmail == "":
		closeWithCode(conn, CloseUnauthorized, "unauthorized")
		return
	case repoErr != nil:
		closeWithCode(conn, CloseNotFound, "repo not found")
		return
	}

	c := newConnState(conn, h.sessions, repoID, repoRoot, userEmail, h.logger)
	c.run()
}

func closeWithCode(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadlineNow())
}
