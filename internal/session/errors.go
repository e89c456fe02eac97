package session

import "errors"

var (
	// ErrPerUserLimit means the calling user already has MAX_SESSIONS_PER_USER
	// live sessions.
	ErrPerUserLimit = errors.New("per-user session limit reached")

	// ErrGlobalLimit means the gateway already has MAX_TOTAL_SESSIONS live
	// sessions across all users.
	ErrGlobalLimit = errors.New("global session limit reached")

	// ErrNotFound means the requested sessionId does not exist.
	ErrNotFound = errors.New("session not found")

	// ErrForbidden means the session exists but belongs to a different
	// user or repo than the caller.
	ErrForbidden = errors.New("session not owned by caller")

	// ErrNotRunning means an operation that requires a live PTY (input,
	// resize) was attempted against a session that isn't running.
	ErrNotRunning = errors.New("session is not running")
)
