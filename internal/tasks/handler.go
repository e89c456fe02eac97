package tasks

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

func deadlineNow() time.Time { return time.Now().Add(5 * time.Second) }

// Close codes mirror internal/termws's private-use range, scoped to this
// endpoint.
const (
	closeBadRequest   = 4000
	closeUnauthorized = 4001
	closeNotFound     = 4004
)

// ResolveUser extracts the verified user email for the request, as
// established upstream by the identity gate. Matches termws.ResolveUser's
// shape so both WebSocket endpoints are gated the same way.
type ResolveUser func(r *http.Request) (string, error)

// Handler upgrades and serves the read-only /ws/tasks endpoint.
type Handler struct {
	manager     *Manager
	resolveUser ResolveUser
	logger      *slog.Logger
	upgrader    websocket.Upgrader
}

// NewHandler constructs a task-output WebSocket Handler.
func NewHandler(manager *Manager, resolveUser ResolveUser, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		manager:     manager,
		resolveUser: resolveUser,
		logger:      logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	runID := r.URL.Query().Get("runId")

	_, userErr := h.resolveUser(r)

	var frames <-chan Frame
	var unsub func()
	var subErr error
	if runID != "" && userErr == nil {
		frames, unsub, subErr = h.manager.Subscribe(runID)
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		if unsub != nil {
			unsub()
		}
		return
	}
	defer conn.Close()

	switch {
	case runID == "":
		closeWithCode(conn, closeBadRequest, "missing runId")
		return
	case userErr != nil:
		closeWithCode(conn, closeUnauthorized, "unauthorized")
		return
	case subErr != nil:
		closeWithCode(conn, closeNotFound, "run not found")
		return
	}
	defer unsub()

	// This endpoint is read-only: it discards anything the client sends
	// (including close frames) but still must drain the socket so
	// gorilla/websocket's control-frame handling (pings/close) keeps
	// working, matching the "read-only output + status" contract of
	// spec.md §6.4.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for f := range frames {
		if err := conn.WriteJSON(f); err != nil {
			return
		}
	}
}

func closeWithCode(conn *websocket.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	_ = conn.WriteControl(websocket.CloseMessage, msg, deadlineNow())
}
