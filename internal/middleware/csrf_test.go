// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

var testAuthKey = []byte("12345678901234567890123456789012")

func TestDefaultCSRFConfig_Development(t *testing.T) {
	cfg := DefaultCSRFConfig(testAuthKey, true, "localhost:8080")

	if len(cfg.AuthKey) != 32 {
		t.Errorf("expected 32-byte AuthKey, got %d bytes", len(cfg.AuthKey))
	}
	if len(cfg.TrustedOrigins) != 2 {
		t.Errorf("expected 2 TrustedOrigins in dev mode, got %v", cfg.TrustedOrigins)
	}
}

func TestDefaultCSRFConfig_DevelopmentCustomAddr(t *testing.T) {
	cfg := DefaultCSRFConfig(testAuthKey, true, "0.0.0.0:9000")

	found := false
	for _, origin := range cfg.TrustedOrigins {
		if origin == "0.0.0.0:9000" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected server address to be trusted in dev, got %v", cfg.TrustedOrigins)
	}
}

func TestDefaultCSRFConfig_Production(t *testing.T) {
	cfg := DefaultCSRFConfig(testAuthKey, false, "localhost:8080")

	if len(cfg.TrustedOrigins) != 0 {
		t.Errorf("expected no TrustedOrigins in production, got %d", len(cfg.TrustedOrigins))
	}
}

// TrustedOrigins must be host:port values; full URLs cause "origin invalid" errors.
func TestTrustedOriginsFormat(t *testing.T) {
	cfg := DefaultCSRFConfig(testAuthKey, true, "127.0.0.1:8080")

	for _, origin := range cfg.TrustedOrigins {
		if strings.HasPrefix(origin, "http://") || strings.HasPrefix(origin, "https://") {
			t.Errorf("TrustedOrigin %q should be host:port format, not full URL", origin)
		}
		if !strings.Contains(origin, ":") {
			t.Errorf("TrustedOrigin %q should include port", origin)
		}
	}
}

func newCSRFHandler(cfg CSRFConfig) http.Handler {
	return CSRF(cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
}

func TestCSRF_AllowsSameOriginPost(t *testing.T) {
	h := newCSRFHandler(DefaultCSRFConfig(testAuthKey, false, ""))

	req := httptest.NewRequest(http.MethodPost, "http://example.com/logout", nil)
	req.Header.Set("Sec-Fetch-Site", "same-origin")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("same-origin POST: status = %d, want 200", rec.Code)
	}
}

func TestCSRF_RejectsCrossSitePost(t *testing.T) {
	h := newCSRFHandler(DefaultCSRFConfig(testAuthKey, false, ""))

	req := httptest.NewRequest(http.MethodPost, "http://example.com/logout", nil)
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	req.Header.Set("Origin", "https://evil.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("cross-site POST: status = %d, want 403", rec.Code)
	}
}

func TestCSRF_AllowsSafeMethods(t *testing.T) {
	h := newCSRFHandler(DefaultCSRFConfig(testAuthKey, false, ""))

	req := httptest.NewRequest(http.MethodGet, "http://example.com/dashboard", nil)
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("cross-site GET: status = %d, want 200", rec.Code)
	}
}

func TestCSRF_WithCustomErrorHandler(t *testing.T) {
	cfg := DefaultCSRFConfig(testAuthKey, false, "")
	customCalled := false
	cfg.ErrorHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		customCalled = true
		http.Error(w, "custom", http.StatusTeapot)
	})
	h := newCSRFHandler(cfg)

	req := httptest.NewRequest(http.MethodPost, "http://example.com/logout", nil)
	req.Header.Set("Sec-Fetch-Site", "cross-site")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if !customCalled || rec.Code != http.StatusTeapot {
		t.Errorf("custom handler called=%v status=%d", customCalled, rec.Code)
	}
}

func TestSkipCSRF_SkipsSpecifiedPaths(t *testing.T) {
	inner := newCSRFHandler(DefaultCSRFConfig(testAuthKey, false, ""))
	h := SkipCSRF("/auth/callback")(inner)

	tests := []struct {
		path string
		want int
	}{
		{"/auth/callback", http.StatusOK},
		{"/logout", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "http://example.com"+tt.path, nil)
			req.Header.Set("Sec-Fetch-Site", "cross-site")
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestSkipCSRF_EmptyPaths(t *testing.T) {
	h := SkipCSRF()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/any/path", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
}
