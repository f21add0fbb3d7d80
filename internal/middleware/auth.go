// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package middleware provides HTTP middleware for route guarding,
// request context handling, and request hardening.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/olegiv/wxdesk/internal/guard"
	"github.com/olegiv/wxdesk/internal/metrics"
	"github.com/olegiv/wxdesk/internal/model"
	"github.com/olegiv/wxdesk/internal/session"
)

// ContextKey is a type for context keys to avoid collisions.
type ContextKey string

// Context keys for session data.
const (
	ContextKeySnapshot    ContextKey = "session_snapshot"
	ContextKeyRequestPath ContextKey = "request_path"
)

// Default navigation targets of the guard.
const (
	LoginPath   = "/login"
	DefaultPath = "/dashboard"
)

// SnapshotSource is the read side of the session store.
type SnapshotSource interface {
	Snapshot() session.Snapshot
}

// GuardConfig configures the route guard middleware.
type GuardConfig struct {
	Sessions SnapshotSource
	// Wait renders the placeholder shown while the session is resolving.
	// When nil a plain 503 with Retry-After is written.
	Wait        http.Handler
	LoginPath   string
	DefaultPath string
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
}

// retryAfterSeconds is sent with the waiting placeholder.
const retryAfterSeconds = 1

// Guard returns middleware that admits requests according to req.
// Every request is decided against a fresh snapshot of the session store.
func Guard(cfg GuardConfig, req guard.Requirement) func(http.Handler) http.Handler {
	if cfg.LoginPath == "" {
		cfg.LoginPath = LoginPath
	}
	if cfg.DefaultPath == "" {
		cfg.DefaultPath = DefaultPath
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			snap := cfg.Sessions.Snapshot()
			decision := guard.Authorize(snap, req)
			cfg.Metrics.Decision(decision.String())

			switch decision {
			case guard.Wait:
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
				w.Header().Set("Cache-Control", "no-store")
				if cfg.Wait != nil {
					cfg.Wait.ServeHTTP(w, r)
					return
				}
				http.Error(w, "Session is being restored, please retry", http.StatusServiceUnavailable)

			case guard.RedirectToLogin:
				http.Redirect(w, r, cfg.LoginPath, http.StatusSeeOther)

			case guard.RedirectToDefault:
				cfg.Logger.Warn("access denied",
					"method", r.Method,
					"path", r.URL.Path,
					"user_id", userID(snap.Identity),
					"required", req.String(),
					"remote_addr", r.RemoteAddr,
				)
				http.Redirect(w, r, cfg.DefaultPath, http.StatusSeeOther)

			default:
				ctx := context.WithValue(r.Context(), ContextKeySnapshot, snap)
				next.ServeHTTP(w, r.WithContext(ctx))
			}
		})
	}
}

// RequireAuth admits only authenticated sessions.
func RequireAuth(cfg GuardConfig) func(http.Handler) http.Handler {
	return Guard(cfg, guard.Authenticated)
}

// RequireAdmin admits only authenticated administrators.
func RequireAdmin(cfg GuardConfig) func(http.Handler) http.Handler {
	return Guard(cfg, guard.Admin)
}

// Public admits everything once the session has resolved, and still places
// the snapshot in the context so pages can adapt to the signed-in user.
func Public(cfg GuardConfig) func(http.Handler) http.Handler {
	return Guard(cfg, guard.Public)
}

func userID(u *model.User) int64 {
	if u == nil {
		return 0
	}
	return u.ID
}

// GetSnapshot retrieves the session snapshot the guard admitted the request with.
func GetSnapshot(r *http.Request) session.Snapshot {
	snap, _ := r.Context().Value(ContextKeySnapshot).(session.Snapshot)
	return snap
}

// GetUser retrieves the signed-in user from the request context.
// Returns nil if no user is in context.
func GetUser(r *http.Request) *model.User {
	return GetSnapshot(r).Identity
}

// GetUserID returns the current user's ID from context, or 0 if not found.
// Safe to use in logging where a zero-value is acceptable.
func GetUserID(r *http.Request) int64 {
	return userID(GetUser(r))
}

// GetUserEmail returns the current user's email from context, or empty string if not found.
func GetUserEmail(r *http.Request) string {
	if user := GetUser(r); user != nil {
		return user.Email
	}
	return ""
}

// IsAdmin reports whether the request was admitted for an administrator.
func IsAdmin(r *http.Request) bool {
	return GetSnapshot(r).IsAdmin()
}

// RequestPath creates middleware that stores the request path in the context.
// This is used by the logging handler to include the URL in error logs.
func RequestPath(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), ContextKeyRequestPath, r.URL.Path)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestPath retrieves the request path from the context.
func GetRequestPath(ctx context.Context) string {
	path, ok := ctx.Value(ContextKeyRequestPath).(string)
	if !ok {
		return ""
	}
	return path
}
