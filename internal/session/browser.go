// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/alexedwards/scs/sqlite3store"
	"github.com/alexedwards/scs/v2"
)

// Browser session keys.
const (
	BrowserKeyFlash      = "flash"
	BrowserKeyFlashType  = "flash_type"
	BrowserKeyOAuthState = "oauth_state"
)

// NewBrowserSessions creates the cookie session manager used for flash
// messages and OAuth state, backed by the sessions table.
func NewBrowserSessions(db *sql.DB, isDev bool) *scs.SessionManager {
	sm := scs.New()
	sm.Store = sqlite3store.New(db)

	sm.Lifetime = 12 * time.Hour
	sm.IdleTimeout = 2 * time.Hour
	sm.Cookie.HttpOnly = true
	sm.Cookie.SameSite = http.SameSiteLaxMode
	sm.Cookie.Path = "/"
	sm.Cookie.Secure = !isDev
	if isDev {
		sm.Cookie.Name = "wxdesk_session"
	} else {
		sm.Cookie.Name = "__Host-wxdesk_session"
	}

	return sm
}
