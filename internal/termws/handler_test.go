package termws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/gorilla/websocket"

	"github.com/opsloom/codeterm/internal/reporegistry"
	"github.com/opsloom/codeterm/internal/session"
	"github.com/opsloom/codeterm/internal/worktree"
)

// testEnv wires a real session.Manager (backed by "cat" as the PTY
// command, so input is echoed straight back as output) to an httptest
// server running a termws Handler.
func testEnv(t *testing.T, resolveUser ResolveUser) (*httptest.Server, string) {
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

	registry := reporegistry.New([]string{root})
	wtMgr := worktree.New(nil)
	mgr := session.New(registry, wtMgr, session.Config{
		ClaudePath: "cat", MaxSessionsPerUser: 3, MaxTotalSessions: 3, DisconnectedTTLMinutes: 20,
	}, nil)
	t.Cleanup(mgr.Shutdown)

	h := NewHandler(mgr, registry, resolveUser, nil)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	return srv, filepath.Base(root) + "/demo"
}

func dial(t *testing.T, srv *httptest.Server, repoID string) *websocket.Conn {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	u.Scheme = "ws"
	u.Path = "/ws/claude"
	u.RawQuery = url.Values{"repoId": {repoID}}.Encode()

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), http.Header{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestHandler_AttachInputOutput(t *testing.T) {
	srv, repoID := testEnv(t, func(r *http.Request) (string, error) { return "alice@example.com", nil })
	conn := dial(t, srv, repoID)
	defer conn.Close()

	if err := conn.WriteJSON(clientFrame{Type: frameAttach, Branch: "main"}); err != nil {
		t.Fatalf("write attach: %v", err)
	}

	var replay replayFrame
	if err := conn.ReadJSON(&replay); err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if replay.Type != "replay" {
		t.Fatalf("first frame type = %q, want replay", replay.Type)
	}

	var status statusFrame
	if err := conn.ReadJSON(&status); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if status.State != "running" {
		t.Fatalf("status.State = %q, want running", status.State)
	}

	if err := conn.WriteJSON(clientFrame{Type: frameInput, Data: "hello\n"}); err != nil {
		t.Fatalf("write input: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	found := false
	for i := 0; i < 10 && !found; i++ {
		var out outputFrame
		if err := conn.ReadJSON(&out); err != nil {
			t.Fatalf("read output: %v", err)
		}
		if out.Type == "output" && strings.Contains(out.Data, "hello") {
			found = true
		}
	}
	if !found {
		t.Fatal("expected echoed input to appear in output frames")
	}
}

func TestHandler_MissingRepoID(t *testing.T) {
	srv, _ := testEnv(t, func(r *http.Request) (string, error) { return "alice@example.com", nil })

	u, _ := url.Parse(srv.URL)
	u.Scheme = "ws"
	u.Path = "/ws/claude"

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), http.Header{})
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	_, _, err = conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected CloseError, got %v", err)
	}
	if closeErr.Code != CloseBadRequest {
		t.Fatalf("close code = %d, want %d", closeErr.Code, CloseBadRequest)
	}
}

func TestHandler_Unauthorized(t *testing.T) {
	srv, repoID := testEnv(t, func(r *http.Request) (string, error) { return "", context.DeadlineExceeded })
	conn := dial(t, srv, repoID)
	defer conn.Close()

	_, _, err := conn.ReadMessage()
	closeErr, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected CloseError, got %v", err)
	}
	if closeErr.Code != CloseUnauthorized {
		t.Fatalf("close code = %d, want %d", closeErr.Code, CloseUnauthorized)
	}
}

func TestHandler_NotAttachedInput(t *testing.T) {
	srv, repoID := testEnv(t, func(r *http.Request) (string, error) { return "alice@example.com", nil })
	conn := dial(t, srv, repoID)
	defer conn.Close()

	if err := conn.WriteJSON(clientFrame{Type: frameInput, Data: "x"}); err != nil {
		t.Fatal(err)
	}
	var errFrame errorFrame
	if err := conn.ReadJSON(&errFrame); err != nil {
		t.Fatalf("read error frame: %v", err)
	}
	if errFrame.Message != "Not attached" {
		t.Fatalf("message = %q, want %q", errFrame.Message, "Not attached")
	}
}
