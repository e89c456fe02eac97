package session

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/creack/pty"
)

// State is a session's position in its lifecycle.
type State int

const (
	StateStarting State = iota
	StateRunning
	StateExited
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateExited:
		return "exited"
	default:
		return "unknown"
	}
}

// StatusFrame reports a session's lifecycle state to attached clients.
type StatusFrame struct {
	State       string `json:"state"`
	SessionID   string `json:"sessionId"`
	SessionName string `json:"sessionName"`
	Branch      string `json:"branch"`
	ExitCode    *int   `json:"exitCode,omitempty"`
}

// ReplayFrame carries the buffered output sent once to a client on
// attach, before it starts receiving live OutputFrames.
type ReplayFrame struct {
	Data []byte `json:"data"`
}

// OutputFrame carries one chunk of live PTY output.
type OutputFrame struct {
	Data []byte `json:"data"`
}

// Session is one running (or recently exited) claude process attached to
// a pseudo-terminal, isolated in its own per-user git worktree. It is the
// PTY analog of the teacher's downstream.Instance: a managed external
// process with a request/output loop, a lifecycle state machine, and
// idle/exit bookkeeping — reshaped around a terminal instead of a JSON-RPC
// pipe.
type Session struct {
	ID           string
	UserEmail    string
	RepoID       string
	Branch       string
	Name         string
	WorktreePath string
	CreatedAt    time.Time

	logger *slog.Logger

	mu            sync.Mutex
	state         State
	pty           *os.File
	cmd           *exec.Cmd
	clients       map[string]*Client
	ring          *ring
	cols, rows    int
	lastActivity  time.Time
	disconnectedAt *time.Time
	exitCode      *int

	done chan struct{} // closed once the monitor goroutine observes exit
}

// newSession constructs a Session in StateStarting. The caller (Manager)
// is responsible for calling spawn to launch the PTY.
func newSession(id, userEmail, repoID, branch, name, worktreePath string, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		ID:           id,
		UserEmail:    userEmail,
		RepoID:       repoID,
		Branch:       branch,
		Name:         name,
		WorktreePath: worktreePath,
		CreatedAt:    time.Now().UTC(),
		logger:       logger,
		state:        StateStarting,
		clients:      make(map[string]*Client),
		ring:         newRing(),
		cols:         120,
		rows:         30,
		lastActivity: time.Now(),
		done:         make(chan struct{}),
	}
}

// spawn starts claudePath as a PTY-attached child process in the
// session's worktree, via `sh -c 'exec <claudePath> <args>'` so the PTY's
// controlling process is the target binary itself rather than a shell
// left sitting in between. The session is considered StateRunning the
// instant the PTY is successfully allocated and the process started —
// not on first output — matching the decision recorded for sessions
// whose wrapped command never produces immediate output.
func (s *Session) spawn(claudePath string, extraArgs []string) error {
	script := "exec " + shellQuote(claudePath)
	for _, a := range extraArgs {
		script += " " + shellQuote(a)
	}

	cmd := exec.Command("sh", "-c", script)
	cmd.Dir = s.WorktreePath
	cmd.Env = baselineEnv(os.Environ())

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: uint16(s.cols), Rows: uint16(s.rows)})
	if err != nil {
		return fmt.Errorf("start pty: %w", err)
	}

	s.mu.Lock()
	s.pty = f
	s.cmd = cmd
	s.state = StateRunning
	s.mu.Unlock()

	go s.readLoop()
	go s.monitor()

	s.broadcast(StatusFrame{State: StateRunning.String(), SessionID: s.ID, SessionName: s.Name, Branch: s.Branch})
	return nil
}

// readLoop copies PTY output into the replay ring and fans it out to
// every attached client until the PTY is closed.
func (s *Session) readLoop() {
	buf := make([]byte, 32*1024)
	for {
		n, err := s.pty.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			s.ring.Append(chunk)
			s.touch()
			s.broadcast(OutputFrame{Data: chunk})
		}
		if err != nil {
			return
		}
	}
}

// monitor waits for the child process to exit and transitions the
// session to StateExited. It never touches the worktree — cleanup of
// the worktree directory is the reap sweeper's responsibility alone, so
// that a crashed session's working tree survives for inspection or a
// quick restart.
func (s *Session) monitor() {
	err := s.cmd.Wait()

	code := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			code = exitErr.ExitCode()
		} else {
			code = -1
		}
	}

	s.mu.Lock()
	s.state = StateExited
	s.exitCode = &code
	s.mu.Unlock()

	s.broadcast(StatusFrame{
		State: StateExited.String(), SessionID: s.ID, SessionName: s.Name,
		Branch: s.Branch, ExitCode: &code,
	})
	close(s.done)
}

// Write sends client keystroke input to the PTY.
func (s *Session) Write(p []byte) error {
	s.mu.Lock()
	f, state := s.pty, s.state
	s.mu.Unlock()

	if state != StateRunning {
		return ErrNotRunning
	}
	s.touch()
	_, err := f.Write(p)
	return err
}

// Resize applies a new terminal size to the PTY and remembers it so a
// restart respawns the PTY at the current dimensions.
func (s *Session) Resize(cols, rows int) error {
	s.mu.Lock()
	f, state := s.pty, s.state
	s.mu.Unlock()

	if state != StateRunning {
		return ErrNotRunning
	}
	if err := pty.Setsize(f, &pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)}); err != nil {
		return err
	}

	s.mu.Lock()
	s.cols, s.rows = cols, rows
	s.mu.Unlock()
	return nil
}

// Kill forcibly terminates the PTY process, if still running.
func (s *Session) Kill() {
	s.mu.Lock()
	cmd := s.cmd
	s.mu.Unlock()
	if cmd != nil && cmd.Process != nil {
		_ = cmd.Process.Kill()
	}
}

// Attach registers a client and returns a snapshot of replay history to
// deliver before any live frames. Also clears disconnectedAt, since the
// session has a client again.
func (s *Session) Attach(c *Client) []byte {
	s.mu.Lock()
	s.clients[c.ID] = c
	s.disconnectedAt = nil
	s.mu.Unlock()
	return s.ring.Snapshot()
}

// Detach removes a client. If no clients remain, the session is marked
// disconnected (but kept running) starting the TTL clock the reap
// sweeper watches.
func (s *Session) Detach(clientID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.clients[clientID]; ok {
		delete(s.clients, clientID)
		close(c.Out)
	}
	if len(s.clients) == 0 {
		now := time.Now()
		s.disconnectedAt = &now
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// State returns the session's current lifecycle state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// idleSince reports how long the session has had zero attached clients,
// and whether it currently has none. A session with clients attached is
// never eligible for reaping regardless of inactivity.
func (s *Session) idleSince() (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disconnectedAt == nil {
		return 0, false
	}
	return time.Since(*s.disconnectedAt), true
}

func (s *Session) clientCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.clients)
}

func (s *Session) size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// shellQuote wraps s in single quotes for safe use inside a `sh -c`
// script, escaping any embedded single quote.
func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
