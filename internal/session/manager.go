// Package session implements the session manager: the component that
// spawns, tracks, and reaps per-user PTY-backed claude processes running
// inside isolated git worktrees.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/opsloom/codeterm/internal/reporegistry"
	"github.com/opsloom/codeterm/internal/worktree"
)

// Manager owns every live Session and enforces capacity limits and
// disconnected-session reaping. It mirrors the shape of the teacher's
// downstream.Manager (a mutex-guarded map keyed by id, lazy creation,
// a Shutdown that stops everything) generalized from a pool of MCP
// server processes to a pool of per-user terminal sessions.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session

	repos     *reporegistry.Registry
	worktrees *worktree.Manager
	logger    *slog.Logger

	claudePath      string
	claudeArgs      []string
	maxPerUser      int
	maxTotal        int
	disconnectedTTL time.Duration

	stop chan struct{}
	wg   sync.WaitGroup
}

// Config carries the Manager's tunables, sourced from internal/config.
type Config struct {
	ClaudePath             string
	ClaudeArgs             []string
	MaxSessionsPerUser     int
	MaxTotalSessions       int
	DisconnectedTTLMinutes int
}

// New constructs a Manager and starts its background reap sweeper.
func New(repos *reporegistry.Registry, worktrees *worktree.Manager, cfg Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		sessions:        make(map[string]*Session),
		repos:           repos,
		worktrees:       worktrees,
		logger:          logger,
		claudePath:      cfg.ClaudePath,
		claudeArgs:      cfg.ClaudeArgs,
		maxPerUser:      cfg.MaxSessionsPerUser,
		maxTotal:        cfg.MaxTotalSessions,
		disconnectedTTL: time.Duration(cfg.DisconnectedTTLMinutes) * time.Minute,
		stop:            make(chan struct{}),
	}
	m.wg.Add(1)
	go m.sweepLoop()
	return m
}

// CreateParams describes a new session request.
type CreateParams struct {
	UserEmail     string
	RepoID        string
	Name          string
	BaseBranch    string
	FromNewBranch bool
	Cols, Rows    int
}

// Create resolves the repo and worktree, enforces capacity limits, and
// spawns a new PTY session. Capacity is checked and reserved before any
// worktree or process work starts so a denied request never leaves
// filesystem side effects behind.
func (m *Manager) Create(ctx context.Context, p CreateParams) (*Session, error) {
	if err := m.reserveCapacity(p.UserEmail); err != nil {
		return nil, err
	}

	repoRoot, err := m.repos.Resolve(p.RepoID)
	if err != nil {
		m.releaseReservation()
		return nil, fmt.Errorf("resolve repo: %w", err)
	}

	var worktreePath string
	switch {
	case p.BaseBranch == "":
		// No branch named: the session runs directly against the repo
		// root, with no worktree isolation.
		worktreePath = repoRoot
	case p.FromNewBranch:
		worktreePath, err = m.worktrees.EnsureWorktreeFromNewBranch(ctx, repoRoot, p.UserEmail, p.BaseBranch)
	default:
		worktreePath, err = m.worktrees.EnsureWorktreeFromExisting(ctx, repoRoot, p.UserEmail, p.BaseBranch)
	}
	if err != nil {
		m.releaseReservation()
		return nil, fmt.Errorf("ensure worktree: %w", err)
	}

	id := uuid.NewString()
	name := p.Name
	if name == "" {
		name = p.BaseBranch
	}
	cols, rows := p.Cols, p.Rows
	if cols <= 0 {
		cols = 120
	}
	if rows <= 0 {
		rows = 30
	}

	s := newSession(id, p.UserEmail, p.RepoID, p.BaseBranch, name, worktreePath, m.logger)
	s.cols, s.rows = cols, rows

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	if err := s.spawn(m.claudePath, m.claudeArgs); err != nil {
		m.mu.Lock()
		delete(m.sessions, id)
		m.mu.Unlock()
		return nil, fmt.Errorf("spawn session: %w", err)
	}
	return s, nil
}

// reserveCapacity checks per-user and global limits against currently
// non-exited sessions. There is no separate "reservation" slot to release
// on later failure beyond recomputing the live count, since the session
// row itself (added right after this check, under the same caller) is
// what occupies the slot; releaseReservation exists only to document
// call sites that bail out before a session row is created.
func (m *Manager) reserveCapacity(userEmail string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	total, perUser := 0, 0
	for _, s := range m.sessions {
		if s.State() == StateExited {
			continue
		}
		total++
		if s.UserEmail == userEmail {
			perUser++
		}
	}
	if perUser >= m.maxPerUser {
		return ErrPerUserLimit
	}
	if total >= m.maxTotal {
		return ErrGlobalLimit
	}
	return nil
}

func (m *Manager) releaseReservation() {}

// Get returns the session by id, verifying ownership.
func (m *Manager) Get(sessionID, userEmail string) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNotFound
	}
	if s.UserEmail != userEmail {
		return nil, ErrForbidden
	}
	return s, nil
}

// Count returns the number of non-exited sessions across every user,
// for use by operational endpoints like the health check.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, s := range m.sessions {
		if s.State() != StateExited {
			n++
		}
	}
	return n
}

// List returns every live session belonging to userEmail.
func (m *Manager) List(userEmail string) []*Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Session
	for _, s := range m.sessions {
		if s.UserEmail == userEmail {
			out = append(out, s)
		}
	}
	return out
}

// Rename changes a session's display name, verifying ownership.
func (m *Manager) Rename(sessionID, userEmail, name string) error {
	s, err := m.Get(sessionID, userEmail)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.Name = name
	s.mu.Unlock()
	return nil
}

// Attach registers client on the session and returns the replay
// snapshot to deliver first.
func (m *Manager) Attach(sessionID, userEmail string, c *Client) ([]byte, error) {
	s, err := m.Get(sessionID, userEmail)
	if err != nil {
		return nil, err
	}
	return s.Attach(c), nil
}

// Detach removes a client from a session. Unknown session/client pairs
// are a no-op, since a client racing its own disconnect against a reap
// is expected, not an error.
func (m *Manager) Detach(sessionID, clientID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if ok {
		s.Detach(clientID)
	}
}

// Input forwards keystroke bytes to the session's PTY.
func (m *Manager) Input(sessionID, userEmail string, data []byte) error {
	s, err := m.Get(sessionID, userEmail)
	if err != nil {
		return err
	}
	return s.Write(data)
}

// Resize applies a new terminal size to the session's PTY.
func (m *Manager) Resize(sessionID, userEmail string, cols, rows int) error {
	s, err := m.Get(sessionID, userEmail)
	if err != nil {
		return err
	}
	return s.Resize(cols, rows)
}

// Restart kills the current PTY process and spawns a fresh one in the
// same worktree, clearing replay history. The worktree itself is left
// untouched — only the reap sweeper deletes worktrees.
func (m *Manager) Restart(ctx context.Context, sessionID, userEmail string) error {
	s, err := m.Get(sessionID, userEmail)
	if err != nil {
		return err
	}

	s.Kill()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
	}

	s.mu.Lock()
	s.ring.Reset()
	s.done = make(chan struct{})
	s.exitCode = nil
	s.state = StateStarting
	s.mu.Unlock()

	return s.spawn(m.claudePath, m.claudeArgs)
}

// Terminate kills a session's PTY process and removes it from the
// manager. The worktree directory is intentionally left in place —
// physical worktree cleanup happens only via the TTL reap path, so a
// just-terminated session's working tree remains available for a quick
// restart or for a new session to reattach to.
func (m *Manager) Terminate(sessionID, userEmail string) error {
	s, err := m.Get(sessionID, userEmail)
	if err != nil {
		return err
	}
	m.terminateInternal(s, false)
	return nil
}

// terminateInternal kills the PTY, broadcasts the final status, closes
// every attached client channel, and removes the session from the map.
// cleanupWorktree is true only when called from the reap sweeper.
func (m *Manager) terminateInternal(s *Session, cleanupWorktree bool) {
	s.Kill()
	select {
	case <-s.done:
	case <-time.After(5 * time.Second):
	}

	s.mu.Lock()
	for id, c := range s.clients {
		close(c.Out)
		delete(s.clients, id)
	}
	worktreePath, repoID := s.WorktreePath, s.RepoID
	s.mu.Unlock()

	m.mu.Lock()
	delete(m.sessions, s.ID)
	m.mu.Unlock()

	if cleanupWorktree {
		repoRoot, err := m.repos.Resolve(repoID)
		if err != nil {
			m.logger.Warn("reap: could not resolve repo for worktree cleanup", "session_id", s.ID, "error", err)
			return
		}
		if worktreePath == repoRoot {
			// A branch-less session runs in the repo root itself; there
			// is no worktree of its own to remove.
			return
		}
		m.worktrees.Cleanup(context.Background(), repoRoot, worktreePath)
	}
}

// sweepLoop periodically reaps sessions that have had zero attached
// clients for longer than the configured TTL.
func (m *Manager) sweepLoop() {
	defer m.wg.Done()
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.sweepOnce()
		}
	}
}

func (m *Manager) sweepOnce() {
	m.mu.Lock()
	var candidates []*Session
	for _, s := range m.sessions {
		if idle, disconnected := s.idleSince(); disconnected && idle >= m.disconnectedTTL {
			candidates = append(candidates, s)
		}
	}
	m.mu.Unlock()

	for _, s := range candidates {
		// Re-check client count right before acting: a client may have
		// reattached between the scan above and now.
		if s.clientCount() > 0 {
			continue
		}
		m.logger.Info("reaping disconnected session", "session_id", s.ID, "user", s.UserEmail, "repo_id", s.RepoID)
		m.terminateInternal(s, true)
	}
}

// Shutdown stops the reap sweeper and terminates every live session
// without touching any worktree, leaving them in place for the next
// process start to find via EnsureWorktreeFromExisting.
func (m *Manager) Shutdown() {
	close(m.stop)
	m.wg.Wait()

	m.mu.Lock()
	var all []*Session
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()

	for _, s := range all {
		m.terminateInternal(s, false)
	}
}
