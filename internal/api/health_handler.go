package api

import (
	"net/http"
	"time"

	"github.com/opsloom/codeterm/internal/session"
)

var startTime = time.Now()

// healthHandler reports liveness plus the one number an operator actually
// wants from this gateway at a glance: how many PTY sessions it is
// currently holding open.
type healthHandler struct {
	sessions *session.Manager
}

type healthResponse struct {
	Status         string `json:"status"`
	Version        string `json:"version"`
	UptimeSeconds  int    `json:"uptimeSeconds"`
	ActiveSessions int    `json:"activeSessions"`
}

func (h *healthHandler) check(w http.ResponseWriter, _ *http.Request) {
	resp := healthResponse{
		Status:         "ok",
		Version:        "0.1.0",
		UptimeSeconds:  int(time.Since(startTime).Seconds()),
		ActiveSessions: h.sessions.Count(),
	}
	writeJSON(w, http.StatusOK, resp)
}
