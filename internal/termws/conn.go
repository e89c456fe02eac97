package termws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/opsloom/codeterm/internal/session"
)

const heartbeatInterval = 30 * time.Second

func deadlineNow() time.Time { return time.Now().Add(5 * time.Second) }

// connState holds the per-connection state for one attached WebSocket:
// which session (if any) it is attached to, the outbound client sink
// registered with that session, and the liveness bookkeeping for the
// heartbeat. Message handling off the socket is sequential, matching the
// one-in-flight-handler-at-a-time contract; the heartbeat and the
// session's output forwarder run on separate goroutines and serialize
// writes through writeMu.
type connState struct {
	conn      *websocket.Conn
	sessions  *session.Manager
	repoID    string
	repoRoot  string
	userEmail string
	logger    *slog.Logger

	writeMu sync.Mutex

	mu        sync.Mutex
	client    *session.Client
	sessionID string

	alive  atomic.Bool
	missed atomic.Int32

	closeOnce sync.Once
	closed    chan struct{}
}

func newConnState(conn *websocket.Conn, sessions *session.Manager, repoID, repoRoot, userEmail string, logger *slog.Logger) *connState {
	return &connState{
		conn:      conn,
		sessions:  sessions,
		repoID:    repoID,
		repoRoot:  repoRoot,
		userEmail: userEmail,
		logger:    logger,
		closed:    make(chan struct{}),
	}
}

func (c *connState) run() {
	c.conn.SetReadLimit(maxFramePayload)
	c.alive.Store(true)

	go c.heartbeatLoop()
	defer c.teardown()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.alive.Store(true)
		c.missed.Store(0)

		var f clientFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.writeFrame(errorFrame{Type: "error", Message: "invalid frame: " + err.Error()})
			continue
		}
		c.dispatch(f)
	}
}

func (c *connState) dispatch(f clientFrame) {
	switch f.Type {
	case frameAttach:
		c.handleAttach(f)
	case frameInput:
		c.handleInput(f)
	case frameResize:
		c.handleResize(f)
	case frameRestart:
		c.handleRestart()
	case framePing:
		// Liveness was already reset above; no response frame required.
	default:
		c.writeFrame(errorFrame{Type: "error", Message: fmt.Sprintf("unknown frame type: %q", f.Type)})
	}
}

func (c *connState) handleAttach(f clientFrame) {
	c.mu.Lock()
	if c.client != nil {
		c.mu.Unlock()
		c.writeFrame(errorFrame{Type: "error", Message: "already attached"})
		return
	}
	c.mu.Unlock()

	clientID := uuid.NewString()
	cl := session.NewClient(clientID)

	sessionID := f.SessionID
	if sessionID == "" {
		sess, err := c.sessions.Create(context.Background(), session.CreateParams{
			UserEmail:  c.userEmail,
			RepoID:     c.repoID,
			BaseBranch: f.Branch,
			Cols:       f.Cols,
			Rows:       f.Rows,
		})
		if err != nil {
			c.writeFrame(errorFrame{Type: "error", Message: err.Error()})
			return
		}
		sessionID = sess.ID
	}

	replay, err := c.sessions.Attach(sessionID, c.userEmail, cl)
	if err != nil {
		c.writeFrame(errorFrame{Type: "error", Message: err.Error()})
		return
	}

	c.mu.Lock()
	c.client = cl
	c.sessionID = sessionID
	c.mu.Unlock()

	go c.forwardLoop(cl)

	c.writeFrame(replayFrame{Type: "replay", Data: string(replay)})

	sess, err := c.sessions.Get(sessionID, c.userEmail)
	if err == nil {
		c.writeFrame(statusFrame{
			Type: "status", State: sess.State().String(), SessionID: sess.ID,
			SessionName: sess.Name, Branch: sess.Branch,
		})
	}
}

func (c *connState) handleInput(f clientFrame) {
	sessionID, ok := c.attachedSession()
	if !ok {
		c.writeFrame(errorFrame{Type: "error", Message: "Not attached"})
		return
	}
	if len(f.Data) > maxInputBytes {
		c.writeFrame(errorFrame{Type: "error", Message: "input frame too large"})
		return
	}
	if err := c.sessions.Input(sessionID, c.userEmail, []byte(f.Data)); err != nil {
		c.writeFrame(errorFrame{Type: "error", Message: err.Error()})
	}
}

func (c *connState) handleResize(f clientFrame) {
	sessionID, ok := c.attachedSession()
	if !ok {
		c.writeFrame(errorFrame{Type: "error", Message: "Not attached"})
		return
	}
	if f.Cols < 1 || f.Cols > 500 || f.Rows < 1 || f.Rows > 200 {
		c.writeFrame(errorFrame{Type: "error", Message: "resize out of bounds"})
		return
	}
	if err := c.sessions.Resize(sessionID, c.userEmail, f.Cols, f.Rows); err != nil {
		c.writeFrame(errorFrame{Type: "error", Message: err.Error()})
	}
}

func (c *connState) handleRestart() {
	sessionID, ok := c.attachedSession()
	if !ok {
		c.writeFrame(errorFrame{Type: "error", Message: "Not attached"})
		return
	}
	if err := c.sessions.Restart(context.Background(), sessionID, c.userEmail); err != nil {
		c.writeFrame(errorFrame{Type: "error", Message: err.Error()})
	}
}

func (c *connState) attachedSession() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID, c.client != nil
}

// forwardLoop relays frames broadcast by the session to this socket
// until the client's channel is closed (by detach, by the fan-out
// dropping a slow client, or by session termination), then closes the
// socket so the read loop ends and teardown runs.
func (c *connState) forwardLoop(cl *session.Client) {
	defer func() { _ = c.conn.Close() }()
	for frame := range cl.Out {
		switch v := frame.(type) {
		case session.OutputFrame:
			c.writeFrame(outputFrame{Type: "output", Data: string(v.Data)})
		case session.StatusFrame:
			c.writeFrame(statusFrame{
				Type: "status", State: v.State, SessionID: v.SessionID,
				SessionName: v.SessionName, Branch: v.Branch,
			})
		}
	}
}

func (c *connState) heartbeatLoop() {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			// The server-initiated pong is unconditional keep-alive,
			// independent of whether the client itself has sent anything;
			// only the close-on-timeout decision depends on client
			// activity.
			if c.alive.Swap(false) {
				c.missed.Store(0)
			} else if c.missed.Add(1) >= 2 {
				closeWithCode(c.conn, ClosePingTimeout, "ping timeout")
				// Unblocks the read loop's ReadMessage, which drives the
				// single teardown() call via run()'s deferred cleanup.
				_ = c.conn.Close()
				return
			}
			c.writeFrame(pongFrame{Type: "pong"})
		}
	}
}

func (c *connState) writeFrame(v any) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(deadlineNow())
	_ = c.conn.WriteJSON(v)
}

// teardown detaches this connection's client exactly once, regardless of
// whether the socket closed because the client disconnected or because
// the server closed it (ping timeout, session termination propagated
// through a closed channel).
func (c *connState) teardown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.mu.Lock()
		sessionID, cl := c.sessionID, c.client
		c.mu.Unlock()
		if cl != nil {
			c.sessions.Detach(sessionID, cl.ID)
			c.logger.Debug("websocket detached", "session_id", sessionID, "repo_root", c.repoRoot, "user", c.userEmail)
		}
	})
}
