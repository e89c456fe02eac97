// Package worktree creates and tears down per-user git worktrees that
// isolate each user's sessions on a repo from every other user's.
package worktree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/opsloom/codeterm/internal/pathsafe"
)

var (
	// ErrBranchMissing means neither a local nor a remote-tracking base
	// branch exists.
	ErrBranchMissing = errors.New("base branch missing")

	// ErrBranchExists means the user's namespaced branch already exists
	// where a fresh one was requested.
	ErrBranchExists = errors.New("user branch already exists")
)

// Manager creates, locates, and cleans per-user isolated worktrees.
// Read-only git inspection goes through go-git; anything that mutates
// repository state shells out to the git binary with argv-only
// invocation, matching the split the teacher's git_operations.go draws
// between inspection and mutation.
type Manager struct {
	logger *slog.Logger
}

// New constructs a worktree Manager.
func New(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{logger: logger}
}

// EnsureWorktreeFromExisting returns the worktree path for user on
// baseBranch, creating it if necessary from an existing local or
// remote-tracking base branch.
func (m *Manager) EnsureWorktreeFromExisting(ctx context.Context, repoRoot, userEmail, baseBranch string) (string, error) {
	if err := ValidateBranchName(baseBranch); err != nil {
		return "", err
	}

	shortID := shortUserID(userEmail)
	userBranch := fmt.Sprintf("logpose/%s/%s", shortID, baseBranch)
	worktreePath := filepath.Join(repoRoot, ".worktrees", shortID, baseBranch)

	if _, err := os.Stat(worktreePath); err == nil {
		if err := m.verifyContainment(repoRoot, worktreePath); err != nil {
			return "", err
		}
		return worktreePath, nil
	}

	repo, err := git.PlainOpen(repoRoot)
	if err != nil {
		return "", fmt.Errorf("open repository: %w", err)
	}

	localBase := branchExistsLocally(repo, baseBranch)
	remoteBase := branchExistsOnRemote(repo, baseBranch)
	if !localBase && !remoteBase {
		return "", ErrBranchMissing
	}

	userBranchExists := branchExistsLocally(repo, userBranch)

	if err := addWorktree(ctx, repoRoot, worktreePath); err != nil {
		return "", err
	}

	if userBranchExists {
		if err := checkoutInWorktree(ctx, worktreePath, userBranch); err != nil {
			removeWorktreeDir(ctx, repoRoot, worktreePath)
			return "", err
		}
	} else {
		ref := baseBranch
		if !localBase {
			ref = "origin/" + baseBranch
		}
		if err := createBranchInWorktree(ctx, worktreePath, userBranch, ref); err != nil {
			removeWorktreeDir(ctx, repoRoot, worktreePath)
			return "", err
		}
	}

	if err := m.verifyContainment(repoRoot, worktreePath); err != nil {
		removeWorktreeDir(ctx, repoRoot, worktreePath)
		return "", err
	}
	return worktreePath, nil
}

// EnsureWorktreeFromNewBranch is like EnsureWorktreeFromExisting, but the
// user-namespaced branch is created from current HEAD rather than an
// existing base branch.
func (m *Manager) EnsureWorktreeFromNewBranch(ctx context.Context, repoRoot, userEmail, newBaseBranch string) (string, error) {
	if err := ValidateBranchName(newBaseBranch); err != nil {
		return "", err
	}

	shortID := shortUserID(userEmail)
	userBranch := fmt.Sprintf("logpose/%s/%s", shortID, newBaseBranch)
	worktreePath := filepath.Join(repoRoot, ".worktrees", shortID, newBaseBranch)

	if _, err := os.Stat(worktreePath); err == nil {
		if err := m.verifyContainment(repoRoot, worktreePath); err != nil {
			return "", err
		}
		return worktreePath, nil
	}

	repo, err := git.PlainOpen(repoRoot)
	if err != nil {
		return "", fmt.Errorf("open repository: %w", err)
	}

	if branchExistsLocally(repo, userBranch) {
		return "", ErrBranchExists
	}

	if err := addWorktree(ctx, repoRoot, worktreePath); err != nil {
		return "", err
	}

	if err := createBranchInWorktree(ctx, worktreePath, userBranch, "HEAD"); err != nil {
		removeWorktreeDir(ctx, repoRoot, worktreePath)
		return "", err
	}

	if err := m.verifyContainment(repoRoot, worktreePath); err != nil {
		removeWorktreeDir(ctx, repoRoot, worktreePath)
		return "", err
	}
	return worktreePath, nil
}

// Cleanup removes the worktree entry from git and best-effort removes the
// directory. It never returns an error to the caller — cleanup runs
// during session termination, where a failure here must not block the
// rest of the teardown.
func (m *Manager) Cleanup(ctx context.Context, repoRoot, worktreePath string) {
	cmd := exec.CommandContext(ctx, "git", "-C", repoRoot, "worktree", "remove", "--force", worktreePath)
	if output, err := cmd.CombinedOutput(); err != nil {
		m.logger.Warn("worktree remove failed, falling back to rmdir",
			"path", worktreePath, "error", err, "output", strings.TrimSpace(string(output)))
		if err := os.RemoveAll(worktreePath); err != nil {
			m.logger.Warn("worktree rmdir failed", "path", worktreePath, "error", err)
		}
	}
}

// ListForUser enumerates a user's worktree directories under
// <repoRoot>/.worktrees/<shortUserId>/.
func (m *Manager) ListForUser(repoRoot, userEmail string) ([]string, error) {
	dir := filepath.Join(repoRoot, ".worktrees", shortUserID(userEmail))
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out []string
	for _, e := range entries {
		if e.IsDir() {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// verifyContainment re-checks, after worktree creation, that the path B
// computed still passes A's containment check against the repo root —
// the invariant the two components share.
func (m *Manager) verifyContainment(repoRoot, worktreePath string) error {
	rel, err := filepath.Rel(repoRoot, worktreePath)
	if err != nil {
		return err
	}
	_, err = pathsafe.ResolveRepoPath(repoRoot, rel)
	return err
}

func branchExistsLocally(repo *git.Repository, name string) bool {
	_, err := repo.Reference(plumbing.NewBranchReferenceName(name), true)
	return err == nil
}

func branchExistsOnRemote(repo *git.Repository, name string) bool {
	_, err := repo.Reference(plumbing.NewRemoteReferenceName("origin", name), true)
	return err == nil
}

// addWorktree shells out to `git worktree add --no-checkout` to create the
// bare worktree entry. Checkout/branch creation happens as a follow-up
// step so that a failed checkout still leaves a removable worktree entry
// rather than a partially-populated directory tracked by neither git nor
// the caller.
func addWorktree(ctx context.Context, repoRoot, worktreePath string) error {
	if err := os.MkdirAll(filepath.Dir(worktreePath), 0o755); err != nil {
		return fmt.Errorf("create worktree parent: %w", err)
	}
	cmd := exec.CommandContext(ctx, "git", "-C", repoRoot, "worktree", "add", "--no-checkout", "--detach", worktreePath)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git worktree add: %s: %w", strings.TrimSpace(string(output)), err)
	}
	return nil
}

func checkoutInWorktree(ctx context.Context, worktreePath, ref string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", worktreePath, "checkout", ref)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git checkout %s: %s: %w", ref, strings.TrimSpace(string(output)), err)
	}
	return nil
}

func createBranchInWorktree(ctx context.Context, worktreePath, branch, startPoint string) error {
	cmd := exec.CommandContext(ctx, "git", "-C", worktreePath, "checkout", "-b", branch, startPoint)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("git checkout -b %s %s: %s: %w", branch, startPoint, strings.TrimSpace(string(output)), err)
	}
	return nil
}

func removeWorktreeDir(ctx context.Context, repoRoot, worktreePath string) {
	cmd := exec.CommandContext(ctx, "git", "-C", repoRoot, "worktree", "remove", "--force", worktreePath)
	_ = cmd.Run()
	_ = os.RemoveAll(worktreePath)
}
