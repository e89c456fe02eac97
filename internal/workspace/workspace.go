// Package workspace implements the file/search/git surface (component G):
// tree listing, file read/write/delete, text search, and a safe git
// read/checkout allowlist, all scoped under a repo or worktree root
// resolved by the caller.
package workspace

import (
	"errors"
	"os"
	"path/filepath"
	"sort"

	"github.com/opsloom/codeterm/internal/pathsafe"
)

// ErrBinaryFile means the target's extension is on the binary denylist.
var ErrBinaryFile = errors.New("binary file")

// ErrTooLarge means the content length exceeds the configured file size bound.
var ErrTooLarge = errors.New("file too large")

// TreeEntry is one child of a directory listing.
type TreeEntry struct {
	Name string `json:"name"`
	Type string `json:"type"` // "file" | "dir"
}

// Tree lists root's children at relPath, eliding hidden files and known
// heavy/generated directories, sorted directories-first then name
// ascending.
func Tree(root, relPath string) ([]TreeEntry, error) {
	real, err := pathsafe.ResolveRepoPath(root, relPath)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(real)
	if err != nil {
		return nil, err
	}

	entries := make([]TreeEntry, 0, len(dirEntries))
	for _, e := range dirEntries {
		if elided(e.Name()) {
			continue
		}
		typ := "file"
		if e.IsDir() {
			typ = "dir"
		}
		entries = append(entries, TreeEntry{Name: e.Name(), Type: typ})
	}

	sort.Slice(entries, func(i, j int) bool {
		if (entries[i].Type == "dir") != (entries[j].Type == "dir") {
			return entries[i].Type == "dir"
		}
		return entries[i].Name < entries[j].Name
	})
	return entries, nil
}

// ReadFile returns relPath's content under root, refusing binary
// extensions and files over maxSize.
func ReadFile(root, relPath string, maxSize int64) ([]byte, error) {
	if pathsafe.IsBinaryByExtension(relPath) {
		return nil, ErrBinaryFile
	}

	real, err := pathsafe.ResolveFilePath(root, relPath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(real)
	if err != nil {
		return nil, err
	}
	if info.Size() > maxSize {
		return nil, ErrTooLarge
	}
	return os.ReadFile(real)
}

// WriteFile atomically writes content to relPath under root, refusing
// binary extensions and content over maxSize.
func WriteFile(root, relPath string, content []byte, maxSize int64) error {
	if pathsafe.IsBinaryByExtension(relPath) {
		return ErrBinaryFile
	}
	if int64(len(content)) > maxSize {
		return ErrTooLarge
	}

	real, err := pathsafe.ResolveFilePath(root, relPath)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(real), 0o755); err != nil {
		return err
	}

	tmp := real + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, real)
}

// DeleteFile removes relPath under root.
func DeleteFile(root, relPath string) error {
	real, err := pathsafe.ResolveFilePath(root, relPath)
	if err != nil {
		return err
	}
	return os.Remove(real)
}
