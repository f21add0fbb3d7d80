// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics holds the Prometheus instruments of the web client.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "wxdesk"

// Metrics holds the Prometheus counters, histograms and gauges.
type Metrics struct {
	SessionTransitions *prometheus.CounterVec // labels: event={restore,login,admin_login,logout,refresh,unauthorized,expired}, outcome
	GuardDecisions     *prometheus.CounterVec // labels: decision={render,redirect_login,redirect_default,wait}
	ForcedLogouts      prometheus.Counter
	Authenticated      prometheus.Gauge

	APIRequestDuration *prometheus.HistogramVec // labels: endpoint, status={2xx,4xx,5xx,error}

	LoginThrottled prometheus.Counter
	RevalidateRuns *prometheus.CounterVec // labels: outcome={ok,failed,signed_out,skipped}
}

// New creates the metrics and registers them with reg.
// Pass prometheus.NewRegistry() in tests to avoid duplicate registration panics.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_transitions_total",
			Help:      "Session store operations by event and outcome.",
		}, []string{"event", "outcome"}),
		GuardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_decisions_total",
			Help:      "Route guard decisions by outcome.",
		}, []string{"decision"}),
		ForcedLogouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "forced_logouts_total",
			Help:      "Sessions purged because the API rejected or expired the credential.",
		}),
		Authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "session_authenticated",
			Help:      "1 when a user is signed in, 0 otherwise.",
		}),
		APIRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "Observation API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint", "status"}),
		LoginThrottled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admin_login_throttled_total",
			Help:      "Administrative login attempts rejected by rate limiting or lockout.",
		}),
		RevalidateRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "revalidate_runs_total",
			Help:      "Scheduled identity revalidation runs.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.SessionTransitions,
		m.GuardDecisions,
		m.ForcedLogouts,
		m.Authenticated,
		m.APIRequestDuration,
		m.LoginThrottled,
		m.RevalidateRuns,
	)

	return m
}

// Transition records a session store event.
func (m *Metrics) Transition(event, outcome string) {
	if m == nil {
		return
	}
	m.SessionTransitions.WithLabelValues(event, outcome).Inc()
}

// SetAuthenticated updates the authenticated gauge.
func (m *Metrics) SetAuthenticated(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.Authenticated.Set(1)
	} else {
		m.Authenticated.Set(0)
	}
}

// ForcedLogout counts a purge caused by a rejected or expired credential.
func (m *Metrics) ForcedLogout() {
	if m == nil {
		return
	}
	m.ForcedLogouts.Inc()
}

// Decision records a route guard outcome.
func (m *Metrics) Decision(decision string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(decision).Inc()
}

// ObserveAPI records one API round trip. status is 0 for transport errors.
func (m *Metrics) ObserveAPI(endpoint string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.APIRequestDuration.WithLabelValues(endpoint, StatusClass(status)).Observe(d.Seconds())
}

// Throttled counts a rejected admin login attempt.
func (m *Metrics) Throttled() {
	if m == nil {
		return
	}
	m.LoginThrottled.Inc()
}

// Revalidated records a scheduled revalidation run.
func (m *Metrics) Revalidated(outcome string) {
	if m == nil {
		return
	}
	m.RevalidateRuns.WithLabelValues(outcome).Inc()
}

// StatusClass maps an HTTP status to its label value.
func StatusClass(status int) string {
	switch {
	case status <= 0:
		return "error"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
