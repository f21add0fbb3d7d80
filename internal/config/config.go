// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // time zones must resolve in minimal containers

	"github.com/caarlos0/env/v11"

	"github.com/olegiv/wxdesk/internal/scheduler"
)

// knownWeakSecrets contains default/example secrets that must be rejected.
var knownWeakSecrets = []string{
	"change-me-to-32-byte-secret-key!",
	"REPLACE_WITH_YOUR_OWN_SECRET_KEY!",
}

// KV backends for the durable session persistence.
const (
	KVBackendSQLite = "sqlite"
	KVBackendRedis  = "redis"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	APIURL        string        `env:"WXDESK_API_URL,required"`
	APITimeout    time.Duration `env:"WXDESK_API_TIMEOUT" envDefault:"10s"`
	SessionSecret string        `env:"WXDESK_SESSION_SECRET,required"`
	DBPath        string        `env:"WXDESK_DB_PATH" envDefault:"./data/wxdesk.db"`
	ServerHost    string        `env:"WXDESK_SERVER_HOST" envDefault:"localhost"`
	ServerPort    int           `env:"WXDESK_SERVER_PORT" envDefault:"8080"`
	Env           string        `env:"WXDESK_ENV" envDefault:"development"`
	LogLevel      string        `env:"WXDESK_LOG_LEVEL" envDefault:"info"`

	// Handler deadlines; CSV exports stream for longer than ordinary pages.
	RequestTimeout time.Duration `env:"WXDESK_REQUEST_TIMEOUT" envDefault:"30s"`
	ExportTimeout  time.Duration `env:"WXDESK_EXPORT_TIMEOUT" envDefault:"5m"`

	// Durable credential/profile persistence
	KVBackend string `env:"WXDESK_KV_BACKEND" envDefault:"sqlite"` // sqlite or redis
	RedisURL  string `env:"WXDESK_REDIS_URL"`                      // Required when KVBackend is redis
	KVPrefix  string `env:"WXDESK_KV_PREFIX" envDefault:"wxdesk:"`

	// Google OAuth (observer sign-in)
	GoogleClientID     string `env:"WXDESK_GOOGLE_CLIENT_ID"`
	GoogleClientSecret string `env:"WXDESK_GOOGLE_CLIENT_SECRET"`
	GoogleCallbackURL  string `env:"WXDESK_GOOGLE_CALLBACK_URL" envDefault:"http://localhost:8080/auth/callback"`

	// Session lifecycle
	RestoreTimeout     time.Duration `env:"WXDESK_RESTORE_TIMEOUT" envDefault:"15s"`
	RevalidateSchedule string        `env:"WXDESK_REVALIDATE_SCHEDULE"` // Unset means DefaultRevalidateSchedule, empty disables

	TimeZone       string `env:"WXDESK_TIME_ZONE" envDefault:"Asia/Taipei"` // Observation times are entered and shown in this zone
	PageSize       int    `env:"WXDESK_PAGE_SIZE" envDefault:"25"`
	MetricsEnabled bool   `env:"WXDESK_METRICS_ENABLED" envDefault:"true"`
}

// IsDevelopment returns true if the application is running in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// ServerAddr returns the full server address in host:port format.
func (c Config) ServerAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}

// UseRedis returns true if credentials are persisted in Redis.
func (c Config) UseRedis() bool {
	return c.KVBackend == KVBackendRedis
}

// GoogleEnabled returns true if Google sign-in is configured.
func (c Config) GoogleEnabled() bool {
	return c.GoogleClientID != "" && c.GoogleClientSecret != ""
}

// RevalidateEnabled returns true if periodic identity revalidation is scheduled.
func (c Config) RevalidateEnabled() bool {
	return strings.TrimSpace(c.RevalidateSchedule) != ""
}

// WriteTimeout is the server's response write deadline. It outlasts the
// longest handler deadline so a timed-out handler can still answer.
func (c Config) WriteTimeout() time.Duration {
	return max(c.RequestTimeout, c.ExportTimeout) + 15*time.Second
}

// Location returns the configured time zone. Load has already validated it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// DefaultRevalidateSchedule applies when WXDESK_REVALIDATE_SCHEDULE is unset.
const DefaultRevalidateSchedule = "*/5 * * * *"

// MinSessionSecretLength is the minimum required length for the session secret.
const MinSessionSecretLength = 32

// Load parses environment variables and returns a Config struct.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	// envDefault would also replace an explicitly empty value, which is how
	// revalidation is turned off.
	if _, ok := os.LookupEnv("WXDESK_REVALIDATE_SCHEDULE"); !ok {
		cfg.RevalidateSchedule = DefaultRevalidateSchedule
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if !hasMinimumEntropy(cfg.SessionSecret) {
		slog.Warn("WXDESK_SESSION_SECRET has low character diversity; " +
			"consider generating a random secret with: openssl rand -base64 32")
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if len(c.SessionSecret) < MinSessionSecretLength {
		return fmt.Errorf("WXDESK_SESSION_SECRET must be at least %d bytes long, got %d bytes; "+
			"generate a secure secret with: openssl rand -base64 32",
			MinSessionSecretLength, len(c.SessionSecret))
	}

	for _, weak := range knownWeakSecrets {
		if c.SessionSecret == weak {
			return fmt.Errorf("WXDESK_SESSION_SECRET is a known default value and must not be used; " +
				"generate a secure secret with: openssl rand -base64 32")
		}
	}

	u, err := url.Parse(c.APIURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("WXDESK_API_URL must be an absolute http(s) URL, got %q", c.APIURL)
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")

	switch c.KVBackend {
	case KVBackendSQLite:
	case KVBackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("WXDESK_REDIS_URL is required when WXDESK_KV_BACKEND=redis")
		}
	default:
		return fmt.Errorf("WXDESK_KV_BACKEND must be %q or %q, got %q", KVBackendSQLite, KVBackendRedis, c.KVBackend)
	}

	if c.APITimeout <= 0 {
		return fmt.Errorf("WXDESK_API_TIMEOUT must be positive, got %s", c.APITimeout)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("WXDESK_REQUEST_TIMEOUT must be positive, got %s", c.RequestTimeout)
	}
	if c.ExportTimeout < c.RequestTimeout {
		return fmt.Errorf("WXDESK_EXPORT_TIMEOUT must be at least WXDESK_REQUEST_TIMEOUT (%s), got %s", c.RequestTimeout, c.ExportTimeout)
	}
	if c.RestoreTimeout <= 0 {
		return fmt.Errorf("WXDESK_RESTORE_TIMEOUT must be positive, got %s", c.RestoreTimeout)
	}
	if _, err := time.LoadLocation(c.TimeZone); err != nil {
		return fmt.Errorf("WXDESK_TIME_ZONE %q is not a known time zone: %w", c.TimeZone, err)
	}
	if c.RevalidateEnabled() {
		if err := scheduler.ValidateSchedule(c.RevalidateSchedule); err != nil {
			return fmt.Errorf("WXDESK_REVALIDATE_SCHEDULE: %w", err)
		}
	}
	if c.PageSize < 1 || c.PageSize > 1000 {
		return fmt.Errorf("WXDESK_PAGE_SIZE must be between 1 and 1000, got %d", c.PageSize)
	}

	return nil
}

// hasMinimumEntropy checks that a secret contains at least 3 character classes
// (lowercase, uppercase, digits, special characters).
func hasMinimumEntropy(s string) bool {
	charTypes := 0
	if strings.ContainsAny(s, "abcdefghijklmnopqrstuvwxyz") {
		charTypes++
	}
	if strings.ContainsAny(s, "ABCDEFGHIJKLMNOPQRSTUVWXYZ") {
		charTypes++
	}
	if strings.ContainsAny(s, "0123456789") {
		charTypes++
	}
	if strings.ContainsAny(s, "!@#$%^&*()-_=+[]{}|;:,.<>?/~`'\"\\") {
		charTypes++
	}
	return charTypes >= 3
}
