package config

import "testing"

func TestLoad_Defaults(t *testing.T) {
	c := Load()

	if c.Host != "127.0.0.1" {
		t.Errorf("Host = %q; want 127.0.0.1", c.Host)
	}
	if c.Port != "3000" {
		t.Errorf("Port = %q; want 3000", c.Port)
	}
	if c.MaxSessionsPerUser != 3 {
		t.Errorf("MaxSessionsPerUser = %d; want 3", c.MaxSessionsPerUser)
	}
	if c.MaxTotalSessions != 20 {
		t.Errorf("MaxTotalSessions = %d; want 20", c.MaxTotalSessions)
	}
	if c.DisconnectedTTLMinutes != 20 {
		t.Errorf("DisconnectedTTLMinutes = %d; want 20", c.DisconnectedTTLMinutes)
	}
	if c.MaxFileSizeBytes != 2_000_000 {
		t.Errorf("MaxFileSizeBytes = %d; want 2000000", c.MaxFileSizeBytes)
	}
	if !c.TasksEnabled {
		t.Error("TasksEnabled = false; want true")
	}
}

func TestLoad_RepoRootsAndAllowlist(t *testing.T) {
	t.Setenv("REPO_ROOTS", "/r/one, /r/two")
	t.Setenv("ALLOWLIST_EMAILS", "Alice@Example.com,bob@example.com")
	t.Setenv("ADMIN_EMAILS", "Alice@Example.com")

	c := Load()

	if len(c.RepoRoots) != 2 || c.RepoRoots[0] != "/r/one" || c.RepoRoots[1] != "/r/two" {
		t.Fatalf("RepoRoots = %v", c.RepoRoots)
	}
	if len(c.AllowlistEmails) != 2 || c.AllowlistEmails[0] != "alice@example.com" {
		t.Fatalf("AllowlistEmails = %v", c.AllowlistEmails)
	}
	if len(c.AdminEmails) != 1 || c.AdminEmails[0] != "alice@example.com" {
		t.Fatalf("AdminEmails = %v", c.AdminEmails)
	}
}

func TestValidate_ProductionRequiresCFAccess(t *testing.T) {
	t.Setenv("NODE_ENV", "production")
	t.Setenv("REPO_ROOTS", "/r")

	c := Load()
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for missing CF_ACCESS_AUD/CF_ACCESS_TEAM_DOMAIN in production")
	}

	t.Setenv("CF_ACCESS_TEAM_DOMAIN", "team.cloudflareaccess.com")
	t.Setenv("CF_ACCESS_AUD", "aud-value")
	c = Load()
	if err := c.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_RequiresRepoRoots(t *testing.T) {
	c := Load()
	if err := c.Validate(); err == nil {
		t.Fatal("expected error for missing REPO_ROOTS")
	}
}
