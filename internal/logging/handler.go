// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logging provides a slog handler that enriches warnings with the
// request path and keeps secrets out of the log.
package logging

import (
	"context"
	"log/slog"
	"strings"

	"github.com/olegiv/wxdesk/internal/middleware"
)

// Redacted replaces the value of sensitive attributes.
const Redacted = "[REDACTED]"

// sensitiveKeys are attribute keys whose values are never written.
var sensitiveKeys = map[string]bool{
	"access_token":  true,
	"token":         true,
	"credential":    true,
	"password":      true,
	"client_secret": true,
	"authorization": true,
	"code":          true,
}

// ContextHandler is a slog.Handler that wraps another handler. Records at or
// above its level get the request path from the context, and sensitive
// attributes are redacted at every level.
type ContextHandler struct {
	inner slog.Handler
	level slog.Level // Minimum level that gets the request path (default: WARN)
}

// NewContextHandler wraps inner.
func NewContextHandler(inner slog.Handler) *ContextHandler {
	return &ContextHandler{inner: inner, level: slog.LevelWarn}
}

// NewContextHandlerWithLevel wraps inner with a custom minimum level for path enrichment.
func NewContextHandlerWithLevel(inner slog.Handler, level slog.Level) *ContextHandler {
	return &ContextHandler{inner: inner, level: level}
}

// Enabled implements slog.Handler.
func (h *ContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *ContextHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(redact(a))
		return true
	})

	if r.Level >= h.level && ctx != nil {
		if path := middleware.GetRequestPath(ctx); path != "" {
			out.AddAttrs(slog.String("path", path))
		}
	}

	return h.inner.Handle(ctx, out)
}

// WithAttrs implements slog.Handler.
func (h *ContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clean := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		clean[i] = redact(a)
	}
	return &ContextHandler{inner: h.inner.WithAttrs(clean), level: h.level}
}

// WithGroup implements slog.Handler.
func (h *ContextHandler) WithGroup(name string) slog.Handler {
	return &ContextHandler{inner: h.inner.WithGroup(name), level: h.level}
}

func redact(a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, Redacted)
	}
	if a.Value.Kind() == slog.KindGroup {
		group := a.Value.Group()
		clean := make([]any, len(group))
		for i, g := range group {
			clean[i] = redact(g)
		}
		return slog.Group(a.Key, clean...)
	}
	return a
}

// ParseLevel maps a config string to a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
