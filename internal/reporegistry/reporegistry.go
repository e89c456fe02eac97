// Package reporegistry resolves opaque repo IDs to absolute on-disk paths
// under a fixed set of configured roots. It is stateless: every call
// re-reads the filesystem, and holds no cache beyond the immutable root
// list it was constructed with.
package reporegistry

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/opsloom/codeterm/internal/pathsafe"
)

// ErrNotFound means the repoId did not resolve to a configured root and
// sub-path.
var ErrNotFound = errors.New("repo not found")

// Repo is a discovered or resolved repository.
type Repo struct {
	RepoID      string // "<rootName>/<sub-path>"
	DisplayName string
	PathHint    string // absolute real path
}

// Registry resolves repoIds against a fixed set of root directories.
type Registry struct {
	roots []string
}

// New constructs a Registry over the given absolute root directories.
func New(roots []string) *Registry {
	return &Registry{roots: roots}
}

// Discover enumerates immediate children of each configured root,
// skipping dotfiles and unreadable entries. Results are sorted by
// DisplayName ascending, case-insensitive.
func (r *Registry) Discover() ([]Repo, error) {
	var out []Repo
	for _, root := range r.roots {
		entries, err := os.ReadDir(root)
		if err != nil {
			continue // an unreadable root yields no repos from it, not a hard error
		}
		rootName := filepath.Base(root)
		for _, e := range entries {
			if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
				continue
			}
			full := filepath.Join(root, e.Name())
			real, err := filepath.EvalSymlinks(full)
			if err != nil {
				continue
			}
			out = append(out, Repo{
				RepoID:      rootName + "/" + e.Name(),
				DisplayName: e.Name(),
				PathHint:    real,
			})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].DisplayName) < strings.ToLower(out[j].DisplayName)
	})
	return out, nil
}

// Resolve parses repoId as "rootName/sub", finds the unique root with
// matching basename, and returns its real on-disk path.
func (r *Registry) Resolve(repoID string) (string, error) {
	rootName, sub, ok := strings.Cut(repoID, "/")
	if !ok || rootName == "" || sub == "" {
		return "", ErrNotFound
	}

	var matched string
	for _, root := range r.roots {
		if filepath.Base(root) == rootName {
			matched = root
			break
		}
	}
	if matched == "" {
		return "", ErrNotFound
	}

	real, err := pathsafe.ResolveRepoPath(matched, sub)
	if err != nil {
		return "", ErrNotFound
	}
	return real, nil
}
