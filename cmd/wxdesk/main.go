// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/olegiv/wxdesk/internal/apiclient"
	"github.com/olegiv/wxdesk/internal/config"
	"github.com/olegiv/wxdesk/internal/handler"
	"github.com/olegiv/wxdesk/internal/i18n"
	"github.com/olegiv/wxdesk/internal/kv"
	"github.com/olegiv/wxdesk/internal/logging"
	"github.com/olegiv/wxdesk/internal/metrics"
	"github.com/olegiv/wxdesk/internal/middleware"
	"github.com/olegiv/wxdesk/internal/oauth"
	"github.com/olegiv/wxdesk/internal/render"
	"github.com/olegiv/wxdesk/internal/scheduler"
	"github.com/olegiv/wxdesk/internal/session"
	"github.com/olegiv/wxdesk/internal/store"
	"github.com/olegiv/wxdesk/internal/version"
	"github.com/olegiv/wxdesk/web"
)

// Version information - injected at build time via ldflags
var (
	appVersion   = "dev"
	appGitCommit = "unknown"
	appBuildTime = "unknown"
)

// loginCleanupInterval is how often stale login-protection entries are dropped.
const loginCleanupInterval = 5 * time.Minute

func main() {
	// Parse CLI flags
	showVersion := flag.Bool("version", false, "Show version information")
	flag.BoolVar(showVersion, "v", false, "Show version information (shorthand)")
	showHelp := flag.Bool("help", false, "Show help information")
	flag.BoolVar(showHelp, "h", false, "Show help information (shorthand)")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "wxdesk - weather observation desk\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WXDESK_API_URL           Observation API base URL (required)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WXDESK_SESSION_SECRET    Session encryption key (required, min 32 bytes)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WXDESK_DB_PATH           SQLite database path (default: ./data/wxdesk.db)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WXDESK_SERVER_PORT       Server port (default: 8080)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WXDESK_ENV               Environment: development|production (default: development)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WXDESK_KV_BACKEND        Credential store: sqlite|redis (default: sqlite)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WXDESK_REDIS_URL         Redis URL when WXDESK_KV_BACKEND=redis\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WXDESK_GOOGLE_CLIENT_ID  Google OAuth client ID (enables Google sign-in)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WXDESK_TIME_ZONE         Observation time zone (default: Asia/Taipei)\n")
		_, _ = fmt.Fprintf(os.Stderr, "  WXDESK_REVALIDATE_SCHEDULE  Identity revalidation cron (default: */5 * * * *, empty disables)\n")
	}

	flag.Parse()

	if *showHelp {
		flag.Usage()
		os.Exit(0)
	}

	versionInfo := version.Info{
		Version:   appVersion,
		GitCommit: appGitCommit,
		BuildTime: appBuildTime,
	}

	if *showVersion {
		_, _ = fmt.Println(versionInfo.String())
		os.Exit(0)
	}

	if err := run(versionInfo); err != nil {
		slog.Error("application error", "error", err)
		os.Exit(1)
	}
}

func run(versionInfo version.Info) error {
	// Load .env files if present (development)
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logLevel := logging.ParseLevel(cfg.LogLevel)
	logger := slog.New(logging.NewContextHandlerWithLevel(
		slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel}), logLevel))
	slog.SetDefault(logger)

	if err := i18n.Init(logger); err != nil {
		return fmt.Errorf("initializing i18n: %w", err)
	}
	slog.Info("i18n system initialized", "languages", i18n.SupportedLanguages, "default", i18n.DefaultLanguage)

	// Ensure data directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	slog.Info("initializing database", "path", cfg.DBPath)
	db, err := store.NewDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer func(db *sql.DB) {
		if err := db.Close(); err != nil {
			slog.Error("error closing database connection", "error", err)
		}
	}(db)

	if err := store.Migrate(db); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	slog.Info("database ready")

	checks := map[string]handler.Pinger{"database": db}

	// Durable credential persistence
	var persistence kv.Store
	if cfg.UseRedis() {
		redisStore, err := kv.NewRedisStoreFromURL(cfg.RedisURL, cfg.KVPrefix)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		checks["kv"] = handler.PingerFunc(redisStore.Ping)
		persistence = redisStore
	} else {
		persistence = kv.NewSQLiteStore(db)
	}
	defer func() {
		if err := persistence.Close(); err != nil {
			slog.Error("error closing kv store", "error", err)
		}
	}()
	slog.Info("credential store initialized", "backend", cfg.KVBackend)

	// Metrics are nil-safe; a nil *Metrics records nothing.
	registry := prometheus.NewRegistry()
	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(registry)
	}

	api := apiclient.New(apiclient.Options{
		BaseURL: cfg.APIURL,
		Timeout: cfg.APITimeout,
		Logger:  logger,
		Metrics: m,
	})

	clock := clockwork.NewRealClock()
	sessions := session.New(session.Options{
		Backend:     api,
		Persistence: persistence,
		Clock:       clock,
		Logger:      logger,
		Metrics:     m,
	})
	api.SetTokenSource(sessions)
	api.OnUnauthorized(sessions.HandleUnauthorized)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Restore runs in the background; until it settles every guarded page
	// answers with the waiting placeholder.
	go func() {
		restoreCtx, cancel := context.WithTimeout(ctx, cfg.RestoreTimeout)
		defer cancel()
		sessions.Restore(restoreCtx)
		slog.Info("session restored", "state", sessions.Snapshot().State.String())
	}()

	browserSessions := session.NewBrowserSessions(db, cfg.IsDevelopment())

	templatesFS, err := fs.Sub(web.Templates, "templates")
	if err != nil {
		return fmt.Errorf("getting templates fs: %w", err)
	}
	renderer, err := render.New(render.Config{
		TemplatesFS:    templatesFS,
		SessionManager: browserSessions,
		Location:       cfg.Location(),
		Version:        versionInfo.Short(),
		IsDev:          cfg.IsDevelopment(),
	})
	if err != nil {
		return fmt.Errorf("initializing renderer: %w", err)
	}
	slog.Info("template renderer initialized", "time_zone", cfg.TimeZone)

	var provider handler.IdentityProvider
	if cfg.GoogleEnabled() {
		google, err := oauth.NewGoogle(oauth.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			CallbackURL:  cfg.GoogleCallbackURL,
		})
		if err != nil {
			return fmt.Errorf("initializing google sign-in: %w", err)
		}
		provider = google
		slog.Info("google sign-in enabled", "callback", cfg.GoogleCallbackURL)
	} else {
		slog.Warn("google sign-in disabled: WXDESK_GOOGLE_CLIENT_ID or WXDESK_GOOGLE_CLIENT_SECRET not set")
	}

	loginProtectionConfig := middleware.DefaultLoginProtectionConfig()
	loginProtectionConfig.Clock = clock
	loginProtectionConfig.Metrics = m
	loginProtection := middleware.NewLoginProtection(loginProtectionConfig)
	go loginProtection.Run(ctx, loginCleanupInterval)
	slog.Info("login protection initialized",
		"max_failed_attempts", loginProtectionConfig.MaxFailedAttempts,
		"lockout_duration", loginProtectionConfig.LockoutDuration.String(),
	)

	if cfg.RevalidateEnabled() {
		sched := scheduler.New(scheduler.Options{
			Sessions: sessions,
			Schedule: cfg.RevalidateSchedule,
			Logger:   logger,
			Metrics:  m,
		})
		if err := sched.Start(); err != nil {
			return fmt.Errorf("starting scheduler: %w", err)
		}
		defer sched.Stop()
	} else {
		slog.Info("identity revalidation disabled: WXDESK_REVALIDATE_SCHEDULE is empty")
	}

	router, err := newRouter(routerDeps{
		Config:          cfg,
		API:             api,
		Sessions:        sessions,
		BrowserSessions: browserSessions,
		Renderer:        renderer,
		Provider:        provider,
		LoginProtection: loginProtection,
		Metrics:         m,
		Gatherer:        registry,
		Checks:          checks,
		Version:         versionInfo.Short(),
		Clock:           clock,
	})
	if err != nil {
		return fmt.Errorf("building router: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.ServerAddr(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.WriteTimeout(),
		IdleTimeout:       60 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", cfg.ServerAddr(), "env", cfg.Env, "api", cfg.APIURL, "version", versionInfo.Short())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	slog.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	// Let in-flight remote logouts finish before the process exits.
	if err := sessions.Close(shutdownCtx); err != nil {
		slog.Warn("session store did not drain", "error", err)
	}

	slog.Info("server stopped")
	return nil
}
