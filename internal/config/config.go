// Package config loads and validates codeterm's boot-time configuration
// from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Host string // bind host
	Port string // bind port

	Env string // "development" | "production"

	RepoRoots []string // absolute paths searched for repositories

	AllowlistEmails []string // lowercase emails permitted to authenticate
	AdminEmails     []string // subset of AllowlistEmails with admin rights

	CFAccessTeamDomain string // required in production
	CFAccessAUD        string // required in production

	MaxSessionsPerUser      int
	MaxTotalSessions        int
	DisconnectedTTLMinutes  int
	MaxFileSizeBytes        int64
	TasksEnabled            bool
	ClaudePath              string

	DataDir  string // root for settings.json, audit/, and the sqlite index
	LogLevel slog.Level
}

// Load populates a Config from the process environment, applying the
// defaults from the recognized-options table.
func Load() *Config {
	return &Config{
		Host: envOr("HOST", "127.0.0.1"),
		Port: envOr("PORT", "3000"),

		Env: envOr("NODE_ENV", "development"),

		RepoRoots: envListOr("REPO_ROOTS", nil),

		AllowlistEmails: lowerAll(envListOr("ALLOWLIST_EMAILS", nil)),
		AdminEmails:     lowerAll(envListOr("ADMIN_EMAILS", nil)),

		CFAccessTeamDomain: envOr("CF_ACCESS_TEAM_DOMAIN", ""),
		CFAccessAUD:        envOr("CF_ACCESS_AUD", ""),

		MaxSessionsPerUser:     envIntOr("MAX_SESSIONS_PER_USER", 3),
		MaxTotalSessions:       envIntOr("MAX_TOTAL_SESSIONS", 20),
		DisconnectedTTLMinutes: envIntOr("DISCONNECTED_TTL_MINUTES", 20),
		MaxFileSizeBytes:       envInt64Or("MAX_FILE_SIZE_BYTES", 2_000_000),
		TasksEnabled:           envBoolOr("TASKS_ENABLED", true),
		ClaudePath:             envOr("CLAUDE_PATH", "claude"),

		DataDir:  envOr("CODETERM_DATA_DIR", defaultDataPath()),
		LogLevel: parseLogLevel(envOr("LOG_LEVEL", "info")),
	}
}

// Validate fails fast on configuration that would be unsafe to boot with.
// In production, the Cloudflare Access identifiers are mandatory — without
// them the Identity Gate cannot verify edge-issued tokens.
func (c *Config) Validate() error {
	if c.Env == "production" {
		if c.CFAccessTeamDomain == "" {
			return fmt.Errorf("CF_ACCESS_TEAM_DOMAIN is required in production")
		}
		if c.CFAccessAUD == "" {
			return fmt.Errorf("CF_ACCESS_AUD is required in production")
		}
	}
	if len(c.RepoRoots) == 0 {
		return fmt.Errorf("REPO_ROOTS must name at least one repository root")
	}
	return nil
}

// IsProduction reports whether Env is "production".
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func defaultDataPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".codeterm"
	}
	return home + "/.codeterm"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envListOr(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64Or(key string, fallback int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolOr(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func lowerAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}

func parseLogLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
