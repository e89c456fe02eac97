package settings

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewSeedsFromBootConfig(t *testing.T) {
	dir := t.TempDir()

	svc, err := New(dir, []string{"a@x.com"}, []string{"a@x.com"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if !svc.IsAllowed("a@x.com") {
		t.Fatal("expected seeded allowlist email to be allowed")
	}
	if !svc.IsAdmin("a@x.com") {
		t.Fatal("expected seeded admin email to be admin")
	}
	if svc.Current().WorktreeCleanupPolicy != WorktreeCleanupPolicy {
		t.Fatalf("expected policy %q, got %q", WorktreeCleanupPolicy, svc.Current().WorktreeCleanupPolicy)
	}

	if _, err := os.Stat(filepath.Join(dir, "settings.json")); err != nil {
		t.Fatalf("expected settings.json to be written: %v", err)
	}
}

func TestUpdatePersistsAndReloads(t *testing.T) {
	dir := t.TempDir()

	svc, err := New(dir, nil, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if _, err := svc.Update([]string{"b@x.com"}, []string{"b@x.com"}, "admin@x.com"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !svc.IsAllowed("b@x.com") {
		t.Fatal("expected updated allowlist email to be allowed")
	}

	reloaded, err := New(dir, nil, nil)
	if err != nil {
		t.Fatalf("reload New: %v", err)
	}
	if !reloaded.IsAllowed("b@x.com") {
		t.Fatal("expected reloaded service to see the persisted update")
	}
	if reloaded.Current().UpdatedBy != "admin@x.com" {
		t.Fatalf("expected UpdatedBy to survive reload, got %q", reloaded.Current().UpdatedBy)
	}
}

func TestIsAllowedFalseForUnknownEmail(t *testing.T) {
	svc, err := New(t.TempDir(), []string{"a@x.com"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if svc.IsAllowed("stranger@x.com") {
		t.Fatal("expected unknown email to be denied")
	}
	if svc.IsAdmin("a@x.com") {
		t.Fatal("expected non-admin allowlisted email to not be admin")
	}
}
