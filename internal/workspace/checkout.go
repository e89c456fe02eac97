package workspace

import (
	"context"

	"github.com/opsloom/codeterm/internal/worktree"
)

// Checkout resolves or creates the caller's worktree for branch, via
// internal/worktree — the only git mutation the file/search/git surface
// performs, since every other operation here is read-only.
func Checkout(ctx context.Context, worktrees *worktree.Manager, repoRoot, userEmail, branch string, create bool) (string, error) {
	if create {
		return worktrees.EnsureWorktreeFromNewBranch(ctx, repoRoot, userEmail, branch)
	}
	return worktrees.EnsureWorktreeFromExisting(ctx, repoRoot, userEmail, branch)
}
