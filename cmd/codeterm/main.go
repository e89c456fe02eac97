// Command codeterm boots the interactive terminal gateway: it stands up
// the identity gate, repo registry, worktree manager, session manager,
// and optional task runner, then serves the REST/WebSocket surface over
// HTTP, following the teacher's cmd/mcplexer serve boot sequence.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opsloom/codeterm/internal/api"
	"github.com/opsloom/codeterm/internal/audit"
	"github.com/opsloom/codeterm/internal/config"
	"github.com/opsloom/codeterm/internal/identity"
	"github.com/opsloom/codeterm/internal/reporegistry"
	"github.com/opsloom/codeterm/internal/session"
	"github.com/opsloom/codeterm/internal/settings"
	"github.com/opsloom/codeterm/internal/store/sqlite"
	"github.com/opsloom/codeterm/internal/tasks"
	"github.com/opsloom/codeterm/internal/termws"
	"github.com/opsloom/codeterm/internal/worktree"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "codeterm: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	db, err := sqlite.New(ctx, filepath.Join(cfg.DataDir, "audit.db"))
	if err != nil {
		return fmt.Errorf("open audit index: %w", err)
	}
	defer func() { _ = db.Close() }()

	settingsSvc, err := settings.New(cfg.DataDir, cfg.AllowlistEmails, cfg.AdminEmails)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}

	auditBus := audit.NewBus()
	auditLogger := audit.NewLogger(cfg.DataDir, db, auditBus)

	gate, err := identity.New(identity.Config{
		TeamDomain: cfg.CFAccessTeamDomain,
		AUD:        cfg.CFAccessAUD,
		DevMode:    !cfg.IsProduction(),
	}, settingsSvc)
	if err != nil {
		return fmt.Errorf("build identity gate: %w", err)
	}

	repos := reporegistry.New(cfg.RepoRoots)
	worktrees := worktree.New(logger)

	sessions := session.New(repos, worktrees, session.Config{
		ClaudePath:             cfg.ClaudePath,
		MaxSessionsPerUser:     cfg.MaxSessionsPerUser,
		MaxTotalSessions:       cfg.MaxTotalSessions,
		DisconnectedTTLMinutes: cfg.DisconnectedTTLMinutes,
	}, logger)
	defer sessions.Shutdown()

	termHandler := termws.NewHandler(sessions, repos, gate.VerifyRequest, logger)

	var tasksHandler *tasks.Handler
	if cfg.TasksEnabled {
		taskMgr := tasks.New(tasks.Whitelist{}, logger)
		tasksHandler = tasks.NewHandler(taskMgr, gate.VerifyRequest, logger)
	}

	router := api.NewRouter(api.RouterDeps{
		Gate:             gate,
		Sessions:         sessions,
		Repos:            repos,
		Worktrees:        worktrees,
		Settings:         settingsSvc,
		AuditDB:          db,
		Audit:            auditLogger,
		TermsWS:          termHandler,
		Tasks:            tasksHandler,
		MaxFileSizeBytes: cfg.MaxFileSizeBytes,
	})

	srv := &http.Server{
		Addr:              cfg.Host + ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // long-lived WebSocket connections must not be cut off
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down http server")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
