// Package settings implements the admin-maintained allowlist/admin-list
// store persisted to <data>/settings.json. It mirrors the teacher's
// internal/config.Service "mutate then refresh in-memory view" shape,
// adapted from a SQL-backed CRUD service to a single atomically-rewritten
// JSON file, the way internal/workspace.WriteFile already does its
// temp-then-rename.
package settings

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"
)

// WorktreeCleanupPolicy is fixed at "on-reap" for this implementation
// (see DESIGN.md open-question decision #2); it is exposed on Settings so
// admins can see the choice without reading source, per spec.md §4.3's
// open question.
const WorktreeCleanupPolicy = "on-reap"

// Settings is the persisted admin-maintained configuration, written to
// <data>/settings.json.
type Settings struct {
	AllowlistEmails       []string  `json:"allowlistEmails"`
	AdminEmails           []string  `json:"adminEmails"`
	WorktreeCleanupPolicy string    `json:"worktreeCleanupPolicy"`
	UpdatedAt             time.Time `json:"updatedAt"`
	UpdatedBy             string    `json:"updatedBy"`
}

// Service owns the in-memory Settings snapshot and its on-disk copy. Reads
// are lock-free (atomic.Pointer load); writes are atomic write-to-temp
// then os.Rename so a crash mid-write never leaves a half-written file,
// followed by an in-memory pointer swap so the next read sees it without
// re-parsing the file.
type Service struct {
	path string
	cur  atomic.Pointer[Settings]
}

// New constructs a Service backed by <dataDir>/settings.json, loading any
// existing file or seeding it from the boot-time allowlist/admin-email
// config on first run.
func New(dataDir string, seedAllowlist, seedAdmin []string) (*Service, error) {
	svc := &Service{path: filepath.Join(dataDir, "settings.json")}

	existing, err := loadFile(svc.path)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if existing != nil {
		svc.cur.Store(existing)
		return svc, nil
	}

	seed := &Settings{
		AllowlistEmails:       seedAllowlist,
		AdminEmails:           seedAdmin,
		WorktreeCleanupPolicy: WorktreeCleanupPolicy,
		UpdatedAt:             time.Now().UTC(),
		UpdatedBy:             "boot-config",
	}
	if err := svc.writeFile(seed); err != nil {
		return nil, fmt.Errorf("seed settings: %w", err)
	}
	svc.cur.Store(seed)
	return svc, nil
}

func loadFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	if s.WorktreeCleanupPolicy == "" {
		s.WorktreeCleanupPolicy = WorktreeCleanupPolicy
	}
	return &s, nil
}

// Current returns the in-memory snapshot of Settings.
func (s *Service) Current() Settings {
	return *s.cur.Load()
}

// Update replaces the allowlist/admin-email lists, persists atomically,
// and refreshes the in-memory snapshot. updatedBy is the admin email
// that performed the change, for audit purposes.
func (s *Service) Update(allowlist, admin []string, updatedBy string) (Settings, error) {
	next := &Settings{
		AllowlistEmails:       allowlist,
		AdminEmails:           admin,
		WorktreeCleanupPolicy: WorktreeCleanupPolicy,
		UpdatedAt:             time.Now().UTC(),
		UpdatedBy:             updatedBy,
	}
	if err := s.writeFile(next); err != nil {
		return Settings{}, err
	}
	s.cur.Store(next)
	return *next, nil
}

func (s *Service) writeFile(v *Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

// IsAllowed reports whether email is in the current allowlist. It
// satisfies internal/identity.AllowlistSource.
func (s *Service) IsAllowed(email string) bool {
	cur := s.cur.Load()
	for _, e := range cur.AllowlistEmails {
		if e == email {
			return true
		}
	}
	return false
}

// IsAdmin reports whether email is in the current admin list. It
// satisfies internal/identity.AllowlistSource.
func (s *Service) IsAdmin(email string) bool {
	cur := s.cur.Load()
	for _, e := range cur.AdminEmails {
		if e == email {
			return true
		}
	}
	return false
}
