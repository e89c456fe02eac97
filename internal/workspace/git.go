package workspace

import (
	"context"
	"errors"
	"os/exec"
	"regexp"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// ErrNotGitRepo means root has no .git directory/metadata to inspect.
var ErrNotGitRepo = errors.New("not a git repository")

// commitHashPattern is checked before any commit-ish value reaches an
// exec.Command argv, per spec's subprocess-safety contract.
var commitHashPattern = regexp.MustCompile(`^[a-f0-9]{7,40}$`)

// ValidCommitHash reports whether s is safe to pass to a git subprocess
// as a commit-ish.
func ValidCommitHash(s string) bool {
	return commitHashPattern.MatchString(s)
}

// FileStatus is one entry of a working-tree status report.
type FileStatus struct {
	Path   string `json:"path"`
	Status string `json:"status"` // "modified" | "added" | "deleted" | "untracked" | "renamed"
}

// StatusReport is the result of GitStatus.
type StatusReport struct {
	Branch string       `json:"branch"`
	Clean  bool         `json:"clean"`
	Files  []FileStatus `json:"files"`
}

func openRepo(root string) (*git.Repository, error) {
	repo, err := git.PlainOpen(root)
	if err != nil {
		return nil, ErrNotGitRepo
	}
	return repo, nil
}

// GitStatus reports the current branch and working-tree status.
func GitStatus(root string) (*StatusReport, error) {
	repo, err := openRepo(root)
	if err != nil {
		return nil, err
	}

	head, err := repo.Head()
	branch := ""
	if err == nil && head.Name().IsBranch() {
		branch = head.Name().Short()
	}

	wt, err := repo.Worktree()
	if err != nil {
		return nil, err
	}
	st, err := wt.Status()
	if err != nil {
		return nil, err
	}

	files := make([]FileStatus, 0, len(st))
	for path, s := range st {
		files = append(files, FileStatus{Path: path, Status: statusLabel(s.Worktree, s.Staging)})
	}

	return &StatusReport{Branch: branch, Clean: st.IsClean(), Files: files}, nil
}

func statusLabel(worktree, staging git.StatusCode) string {
	switch {
	case worktree == git.Untracked || staging == git.Untracked:
		return "untracked"
	case worktree == git.Deleted || staging == git.Deleted:
		return "deleted"
	case worktree == git.Added || staging == git.Added:
		return "added"
	case worktree == git.Renamed || staging == git.Renamed:
		return "renamed"
	default:
		return "modified"
	}
}

// GitDiff returns the unified working-tree diff, optionally restricted
// to a single path. It shells out to the git binary (go-git has no
// textual-diff API equivalent to `git diff`), argv-only, no ref
// interpolation — path is validated by the caller via pathsafe before
// reaching here.
func GitDiff(ctx context.Context, root, path string) (string, error) {
	if _, err := openRepo(root); err != nil {
		return "", err
	}

	args := []string{"-C", root, "diff", "--no-color"}
	if path != "" {
		args = append(args, "--", path)
	}
	out, err := exec.CommandContext(ctx, "git", args...).Output()
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// CommitSummary is one entry of a capped git log.
type CommitSummary struct {
	Hash    string `json:"hash"`
	Author  string `json:"author"`
	Date    string `json:"date"`
	Message string `json:"message"`
}

// GitLog returns up to limit commits reachable from HEAD, most recent first.
func GitLog(root string, limit int) ([]CommitSummary, error) {
	repo, err := openRepo(root)
	if err != nil {
		return nil, err
	}

	head, err := repo.Head()
	if err != nil {
		return nil, err
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []CommitSummary
	err = iter.ForEach(func(c *object.Commit) error {
		if len(out) >= limit {
			return storerErrStop
		}
		out = append(out, CommitSummary{
			Hash:    c.Hash.String(),
			Author:  c.Author.Name,
			Date:    c.Author.When.Format("2006-01-02T15:04:05Z07:00"),
			Message: c.Message,
		})
		return nil
	})
	if err != nil && err != storerErrStop {
		return nil, err
	}
	if out == nil {
		out = []CommitSummary{}
	}
	return out, nil
}

// storerErrStop is a sentinel used only to break out of ForEach early;
// go-git treats any non-nil error from the callback as a hard stop and
// does not surface it further once swallowed above.
var storerErrStop = errors.New("stop")

// GitBranches lists local branch names.
func GitBranches(root string) ([]string, error) {
	repo, err := openRepo(root)
	if err != nil {
		return nil, err
	}

	refs, err := repo.Branches()
	if err != nil {
		return nil, err
	}
	defer refs.Close()

	var out []string
	err = refs.ForEach(func(ref *plumbing.Reference) error {
		out = append(out, ref.Name().Short())
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}
