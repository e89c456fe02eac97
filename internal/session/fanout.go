package session

import "log/slog"

// clientOutBuffer bounds how many unconsumed frames a client's outbound
// channel may hold before it is dropped as too slow.
const clientOutBuffer = 256

// Client is one attached websocket connection's outbound sink. A session
// may have zero (disconnected, still running) or many attached clients at
// once; all of them receive every frame broadcast to the session.
type Client struct {
	ID  string
	Out chan any
}

// NewClient creates a Client with a buffered outbound channel.
func NewClient(id string) *Client {
	return &Client{ID: id, Out: make(chan any, clientOutBuffer)}
}

// broadcast fans frame out to every attached client. Sends never block:
// a client whose buffer is full is dropped rather than allowed to stall
// delivery to the rest. This mirrors the audit bus's non-blocking
// publish — a slow subscriber loses frames, it never stalls the PTY
// reader goroutine.
func (s *Session) broadcast(frame any) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.clients {
		select {
		case c.Out <- frame:
		default:
			s.logger.Warn("dropping client, outbound buffer full", "session_id", s.ID, "client_id", id)
			delete(s.clients, id)
			close(c.Out)
		}
	}
}
