package api

import (
	"errors"
	"net/http"

	"github.com/opsloom/codeterm/internal/audit"
	"github.com/opsloom/codeterm/internal/identity"
	"github.com/opsloom/codeterm/internal/pathsafe"
	"github.com/opsloom/codeterm/internal/reporegistry"
	"github.com/opsloom/codeterm/internal/store"
	"github.com/opsloom/codeterm/internal/workspace"
	"github.com/opsloom/codeterm/internal/worktree"
)

type workspaceHandler struct {
	repos       *reporegistry.Registry
	worktrees   *worktree.Manager
	maxFileSize int64
	audit       *audit.Logger // optional; nil disables audit recording
}

func (h *workspaceHandler) record(r *http.Request, email, repoID, action, outcome, message string) {
	if h.audit == nil {
		return
	}
	_ = h.audit.Record(r.Context(), &store.AuditRecord{
		UserEmail: email,
		RepoID:    repoID,
		Action:    action,
		Outcome:   outcome,
		Message:   message,
	})
}

// resolveRoot picks the filesystem root a request operates on: the repo
// root by default, or — when the caller names one of their own
// worktrees via ?worktreePath= — that worktree, so file/search/git
// operations observe the isolated per-user checkout rather than the
// shared repo, per spec.md §4.7 point 3.
func (h *workspaceHandler) resolveRoot(r *http.Request, email string) (string, error) {
	repoID := r.URL.Query().Get("repoId")
	repoRoot, err := h.repos.Resolve(repoID)
	if err != nil {
		return "", err
	}

	wt := r.URL.Query().Get("worktreePath")
	if wt == "" {
		return repoRoot, nil
	}

	owned, err := h.worktrees.ListForUser(repoRoot, email)
	if err != nil {
		return "", err
	}
	for _, p := range owned {
		if p == wt {
			return wt, nil
		}
	}
	return "", reporegistry.ErrNotFound
}

func (h *workspaceHandler) discoverRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.repos.Discover()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to discover repos")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"repos": repos})
}

func (h *workspaceHandler) tree(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())
	root, err := h.resolveRoot(r, email)
	if err != nil {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	}

	path := r.URL.Query().Get("path")
	entries, err := workspace.Tree(root, path)
	if err != nil {
		writePathError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"path": path, "entries": entries})
}

func (h *workspaceHandler) getFile(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())
	root, err := h.resolveRoot(r, email)
	if err != nil {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	}

	path := r.URL.Query().Get("path")
	content, err := workspace.ReadFile(root, path, h.maxFileSize)
	if err != nil {
		writeFileError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"content": string(content)})
}

type putFileRequest struct {
	Content string `json:"content"`
}

func (h *workspaceHandler) putFile(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())
	root, err := h.resolveRoot(r, email)
	if err != nil {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	}

	var req putFileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	path := r.URL.Query().Get("path")
	repoID := r.URL.Query().Get("repoId")
	if err := workspace.WriteFile(root, path, []byte(req.Content), h.maxFileSize); err != nil {
		h.record(r, email, repoID, "file.write", "error", err.Error())
		writeFileError(w, err)
		return
	}
	h.record(r, email, repoID, "file.write", "ok", path)
	w.WriteHeader(http.StatusNoContent)
}

func (h *workspaceHandler) deleteFile(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())
	root, err := h.resolveRoot(r, email)
	if err != nil {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	}

	path := r.URL.Query().Get("path")
	repoID := r.URL.Query().Get("repoId")
	if err := workspace.DeleteFile(root, path); err != nil {
		h.record(r, email, repoID, "file.delete", "error", err.Error())
		writeFileError(w, err)
		return
	}
	h.record(r, email, repoID, "file.delete", "ok", path)
	w.WriteHeader(http.StatusNoContent)
}

type searchRequest struct {
	RepoID string   `json:"repoId"`
	Query  string   `json:"query"`
	Paths  []string `json:"paths,omitempty"`
}

func (h *workspaceHandler) search(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())

	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	// resolveRoot reads repoId from the query string; search carries it
	// in the body, next to an optional ?worktreePath=.
	q := r.URL.Query()
	q.Set("repoId", req.RepoID)
	r.URL.RawQuery = q.Encode()
	root, err := h.resolveRoot(r, email)
	if err != nil {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	}

	matches, err := workspace.Search(r.Context(), root, req.Query, req.Paths)
	if err != nil {
		writeErrorDetail(w, http.StatusInternalServerError, "search failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"matches": matches})
}

func (h *workspaceHandler) gitStatus(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())
	root, err := h.resolveRoot(r, email)
	if err != nil {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	}

	status, err := workspace.GitStatus(root)
	if err != nil {
		writeGitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *workspaceHandler) gitDiff(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())
	root, err := h.resolveRoot(r, email)
	if err != nil {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	}

	path := r.URL.Query().Get("path")
	if path != "" {
		if verr := pathsafe.ValidateRelativePath(path); verr != nil {
			writeError(w, http.StatusBadRequest, "unsafe path")
			return
		}
	}

	diff, err := workspace.GitDiff(r.Context(), root, path)
	if err != nil {
		writeGitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"diff": diff})
}

const defaultGitLogLimit = 50
const maxGitLogLimit = 200

func (h *workspaceHandler) gitLog(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())
	root, err := h.resolveRoot(r, email)
	if err != nil {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	}

	limit := parseLimitOr(r, defaultGitLogLimit, maxGitLogLimit)
	commits, err := workspace.GitLog(root, limit)
	if err != nil {
		writeGitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commits": commits})
}

func (h *workspaceHandler) gitBranches(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())
	root, err := h.resolveRoot(r, email)
	if err != nil {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	}

	branches, err := workspace.GitBranches(root)
	if err != nil {
		writeGitError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"branches": branches})
}

type gitCheckoutRequest struct {
	RepoID string `json:"repoId"`
	Branch string `json:"branch"`
	Create bool   `json:"create,omitempty"`
}

func (h *workspaceHandler) gitCheckout(w http.ResponseWriter, r *http.Request) {
	email, _ := identity.EmailFromContext(r.Context())

	var req gitCheckoutRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	repoRoot, err := h.repos.Resolve(req.RepoID)
	if err != nil {
		writeError(w, http.StatusNotFound, "repo not found")
		return
	}

	worktreePath, err := workspace.Checkout(r.Context(), h.worktrees, repoRoot, email, req.Branch, req.Create)
	if err != nil {
		h.record(r, email, req.RepoID, "worktree.checkout", "error", err.Error())
		writeWorktreeError(w, err)
		return
	}
	h.record(r, email, req.RepoID, "worktree.checkout", "ok", req.Branch)
	writeJSON(w, http.StatusOK, map[string]string{"worktreePath": worktreePath, "branch": req.Branch})
}

func parseLimitOr(r *http.Request, def, max int) int {
	v := r.URL.Query().Get("limit")
	if v == "" {
		return def
	}
	n := 0
	for _, c := range v {
		if c < '0' || c > '9' {
			return def
		}
		n = n*10 + int(c-'0')
	}
	if n <= 0 || n > max {
		return def
	}
	return n
}

func writePathError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pathsafe.ErrUnsafePath):
		writeError(w, http.StatusBadRequest, "path traversal denied")
	case errors.Is(err, pathsafe.ErrPathEscape):
		writeError(w, http.StatusBadRequest, "path escapes repository root")
	default:
		writeErrorDetail(w, http.StatusInternalServerError, "tree listing failed", err.Error())
	}
}

func writeFileError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pathsafe.ErrUnsafePath):
		writeError(w, http.StatusBadRequest, "path traversal denied")
	case errors.Is(err, pathsafe.ErrPathEscape):
		writeError(w, http.StatusBadRequest, "path escapes repository root")
	case errors.Is(err, workspace.ErrBinaryFile):
		writeError(w, http.StatusBadRequest, "refusing to read/write a binary file")
	case errors.Is(err, workspace.ErrTooLarge):
		writeError(w, http.StatusBadRequest, "file exceeds the configured size limit")
	default:
		writeErrorDetail(w, http.StatusInternalServerError, "file operation failed", err.Error())
	}
}

func writeGitError(w http.ResponseWriter, err error) {
	if errors.Is(err, workspace.ErrNotGitRepo) {
		writeError(w, http.StatusBadRequest, "not a git repository")
		return
	}
	writeErrorDetail(w, http.StatusInternalServerError, "git operation failed", err.Error())
}

func writeWorktreeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, worktree.ErrBranchMissing):
		writeError(w, http.StatusNotFound, "base branch not found")
	case errors.Is(err, worktree.ErrBranchExists):
		writeError(w, http.StatusConflict, "branch already exists")
	case errors.Is(err, worktree.ErrInvalidBranchName):
		writeError(w, http.StatusBadRequest, "invalid branch name")
	default:
		writeErrorDetail(w, http.StatusInternalServerError, "checkout failed", err.Error())
	}
}
