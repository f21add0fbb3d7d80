// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package scheduler runs periodic background jobs. Its only job today is
// revalidating the signed-in identity against the API.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/olegiv/wxdesk/internal/metrics"
	"github.com/olegiv/wxdesk/internal/session"
)

// DefaultRevalidateTimeout bounds a single revalidation run.
const DefaultRevalidateTimeout = 30 * time.Second

// parser accepts standard five-field expressions and descriptors like @every 5m.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Revalidator is the part of the session store the job drives.
type Revalidator interface {
	Snapshot() session.Snapshot
	Refresh(ctx context.Context) bool
}

// Scheduler handles scheduled jobs.
type Scheduler struct {
	cron    *cron.Cron
	logger  *slog.Logger
	metrics *metrics.Metrics

	sessions Revalidator
	schedule string
	timeout  time.Duration
}

// Options configures a Scheduler.
type Options struct {
	Sessions Revalidator
	// Schedule is a cron expression; empty disables revalidation.
	Schedule string
	Timeout  time.Duration
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
}

// ValidateSchedule reports whether expr is a usable cron expression.
func ValidateSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// New creates a new scheduler instance.
func New(opts Options) *Scheduler {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultRevalidateTimeout
	}
	return &Scheduler{
		cron:     cron.New(cron.WithParser(parser), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		logger:   logger,
		metrics:  opts.Metrics,
		sessions: opts.Sessions,
		schedule: opts.Schedule,
		timeout:  timeout,
	}
}

// Start registers the revalidation job and starts the cron loop.
func (s *Scheduler) Start() error {
	if s.schedule != "" && s.sessions != nil {
		if _, err := s.cron.AddFunc(s.schedule, func() { s.Revalidate(context.Background()) }); err != nil {
			return fmt.Errorf("scheduling revalidation: %w", err)
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started", "jobs", len(s.cron.Entries()), "revalidate", s.schedule)
	return nil
}

// Stop gracefully stops the scheduler, waiting for a running job.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("scheduler stopped")
}

// Revalidate refreshes the signed-in identity once and returns the outcome:
// "skipped" when nobody is signed in, "ok" when the identity was updated,
// "signed_out" when the credential was rejected or expired, and "failed"
// when the API could not be reached.
func (s *Scheduler) Revalidate(ctx context.Context) string {
	snap := s.sessions.Snapshot()
	if snap.Resolving || !snap.Authenticated {
		s.metrics.Revalidated("skipped")
		return "skipped"
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	outcome := "ok"
	if !s.sessions.Refresh(ctx) {
		outcome = "failed"
		if !s.sessions.Snapshot().Authenticated {
			outcome = "signed_out"
			s.logger.Info("revalidation ended the session")
		}
	}

	s.metrics.Revalidated(outcome)
	s.logger.Debug("identity revalidated", "outcome", outcome)
	return outcome
}
