package worktree

import (
	"errors"
	"strings"
)

// ErrInvalidBranchName means a branch name failed validation before any
// git subprocess was invoked.
var ErrInvalidBranchName = errors.New("invalid branch name")

// ValidateBranchName accepts non-empty names containing no "..", no
// backslashes, none of "~^:*[]" or whitespace, not starting with "-", not
// exactly "@", and containing no "@{". Slashes are allowed for namespaced
// branches, but each "/"-delimited segment must be non-empty and must
// neither start nor end with ".".
func ValidateBranchName(name string) error {
	if name == "" {
		return ErrInvalidBranchName
	}
	if name == "@" {
		return ErrInvalidBranchName
	}
	if strings.Contains(name, "..") {
		return ErrInvalidBranchName
	}
	if strings.Contains(name, "@{") {
		return ErrInvalidBranchName
	}
	if strings.ContainsAny(name, "~^:*[]\\") {
		return ErrInvalidBranchName
	}
	if strings.ContainsFunc(name, isSpace) {
		return ErrInvalidBranchName
	}
	if strings.HasPrefix(name, "-") {
		return ErrInvalidBranchName
	}

	for _, seg := range strings.Split(name, "/") {
		if seg == "" {
			return ErrInvalidBranchName
		}
		if strings.HasPrefix(seg, ".") || strings.HasSuffix(seg, ".") {
			return ErrInvalidBranchName
		}
	}
	return nil
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// shortUserID derives the path-safe short id for a user's email:
// lowercase(local-part) with any character outside [a-z0-9] collapsed to
// "-", trimmed of leading/trailing "-".
func shortUserID(email string) string {
	local, _, _ := strings.Cut(email, "@")
	local = strings.ToLower(local)

	var b strings.Builder
	for _, r := range local {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
