package session

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/opsloom/codeterm/internal/reporegistry"
	"github.com/opsloom/codeterm/internal/worktree"
)

// setupManager builds a Manager backed by a real git repo under a temp
// reporegistry root, with claudePath pointed at a trivial shell command
// so sessions can actually spawn a PTY without depending on claude being
// installed in the test environment.
func setupManager(t *testing.T, cfg Config) (*Manager, string) {
	t.Helper()

	root := t.TempDir()
	repoDir := filepath.Join(root, "demo")
	if err := os.MkdirAll(repoDir, 0o755); err != nil {
		t.Fatal(err)
	}

	repo, err := git.PlainInit(repoDir, false)
	if err != nil {
		t.Fatalf("PlainInit: %v", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		t.Fatalf("Worktree: %v", err)
	}
	if err := os.WriteFile(filepath.Join(repoDir, "README.md"), []byte("hi\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Add("README.md"); err != nil {
		t.Fatal(err)
	}
	if _, err := wt.Commit("init", &git.CommitOptions{
		Author: &object.Signature{Name: "t", Email: "t@example.com"},
	}); err != nil {
		t.Fatal(err)
	}
	if out, err := exec.Command("git", "-C", repoDir, "branch", "-M", "main").CombinedOutput(); err != nil {
		t.Skipf("git CLI unavailable: %s", out)
	}

	// Registry roots are matched by basename, so the repoId clients pass
	// is "<basename of root>/demo".
	reposRoot := filepath.Dir(repoDir)
	registry := reporegistry.New([]string{reposRoot})
	wtMgr := worktree.New(nil)

	if cfg.ClaudePath == "" {
		cfg.ClaudePath = "sleep"
		cfg.ClaudeArgs = []string{"30"}
	}
	m := New(registry, wtMgr, cfg, nil)
	t.Cleanup(m.Shutdown)

	return m, filepath.Base(reposRoot) + "/demo"
}

func TestManager_CreateAndCapacity(t *testing.T) {
	m, repoID := setupManager(t, Config{MaxSessionsPerUser: 1, MaxTotalSessions: 2, DisconnectedTTLMinutes: 20})

	s, err := m.Create(context.Background(), CreateParams{
		UserEmail: "alice@example.com", RepoID: repoID, BaseBranch: "main",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.State() != StateRunning {
		t.Fatalf("state = %v, want running", s.State())
	}

	_, err = m.Create(context.Background(), CreateParams{
		UserEmail: "alice@example.com", RepoID: repoID, BaseBranch: "main", Name: "second",
	})
	if err != ErrPerUserLimit {
		t.Fatalf("err = %v, want ErrPerUserLimit", err)
	}

	if err := m.Terminate(s.ID, "alice@example.com"); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
	if _, err := m.Get(s.ID, "alice@example.com"); err != ErrNotFound {
		t.Fatalf("Get after Terminate: err = %v, want ErrNotFound", err)
	}
}

func TestManager_Create_NoBranchUsesRepoRootDirectly(t *testing.T) {
	root, repoID := setupManager(t, Config{MaxSessionsPerUser: 1, MaxTotalSessions: 1, DisconnectedTTLMinutes: 20})

	s, err := root.Create(context.Background(), CreateParams{
		UserEmail: "dave@example.com", RepoID: repoID,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if s.Branch != "" {
		t.Fatalf("Branch = %q, want empty", s.Branch)
	}

	repoRoot, err := root.repos.Resolve(repoID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if s.WorktreePath != repoRoot {
		t.Fatalf("WorktreePath = %q, want repo root %q (no worktree for a branch-less session)", s.WorktreePath, repoRoot)
	}
}

func TestManager_AttachDetachReplay(t *testing.T) {
	m, repoID := setupManager(t, Config{MaxSessionsPerUser: 3, MaxTotalSessions: 3, DisconnectedTTLMinutes: 20})

	s, err := m.Create(context.Background(), CreateParams{
		UserEmail: "bob@example.com", RepoID: repoID, BaseBranch: "main",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	c := NewClient("client-1")
	if _, err := m.Attach(s.ID, "bob@example.com", c); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	if s.clientCount() != 1 {
		t.Fatalf("clientCount = %d, want 1", s.clientCount())
	}

	m.Detach(s.ID, "client-1")
	if s.clientCount() != 0 {
		t.Fatalf("clientCount after Detach = %d, want 0", s.clientCount())
	}
	if _, disconnected := s.idleSince(); !disconnected {
		t.Fatal("expected session to be marked disconnected after last client detaches")
	}
}

func TestManager_Sweep_ReapsAfterTTL(t *testing.T) {
	m, repoID := setupManager(t, Config{MaxSessionsPerUser: 3, MaxTotalSessions: 3, DisconnectedTTLMinutes: 0})

	s, err := m.Create(context.Background(), CreateParams{
		UserEmail: "carol@example.com", RepoID: repoID, BaseBranch: "main",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	c := NewClient("client-1")
	if _, err := m.Attach(s.ID, "carol@example.com", c); err != nil {
		t.Fatalf("Attach: %v", err)
	}
	m.Detach(s.ID, "client-1")

	// disconnectedTTL is zero, so the session is immediately eligible.
	time.Sleep(10 * time.Millisecond)
	m.sweepOnce()

	if _, err := m.Get(s.ID, "carol@example.com"); err != ErrNotFound {
		t.Fatalf("Get after sweep: err = %v, want ErrNotFound", err)
	}
}
