// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/mileusna/useragent"

	"github.com/olegiv/wxdesk/internal/i18n"
	"github.com/olegiv/wxdesk/internal/middleware"
	"github.com/olegiv/wxdesk/internal/model"
	"github.com/olegiv/wxdesk/internal/oauth"
	"github.com/olegiv/wxdesk/internal/render"
	"github.com/olegiv/wxdesk/internal/session"
	"github.com/olegiv/wxdesk/internal/util"
)

// IdentityProvider is the third-party sign-in (Google).
type IdentityProvider interface {
	AuthCodeURL(state string) string
	Exchange(ctx context.Context, code string) (model.ProviderAssertion, error)
}

// LoginPage is the data of the login template.
type LoginPage struct {
	GoogleEnabled bool
	Username      string
}

// AuthHandler handles authentication routes.
type AuthHandler struct {
	store           *session.Store
	provider        IdentityProvider
	renderer        *render.Renderer
	sessionManager  *scs.SessionManager
	loginProtection *middleware.LoginProtection
}

// NewAuthHandler creates a new AuthHandler. provider may be nil when Google
// sign-in is not configured.
func NewAuthHandler(store *session.Store, provider IdentityProvider, renderer *render.Renderer,
	sm *scs.SessionManager, lp *middleware.LoginProtection) *AuthHandler {
	return &AuthHandler{
		store:           store,
		provider:        provider,
		renderer:        renderer,
		sessionManager:  sm,
		loginProtection: lp,
	}
}

// LoginForm renders the login page. Signed-in users go to the dashboard.
func (h *AuthHandler) LoginForm(w http.ResponseWriter, r *http.Request) {
	if h.store.Snapshot().Authenticated {
		http.Redirect(w, r, RouteDashboard, http.StatusSeeOther)
		return
	}

	lang := middleware.GetLang(r)
	renderPage(w, r, h.renderer, http.StatusOK, templateLogin, render.TemplateData{
		Title: i18n.T(lang, "auth.login"),
		Data:  LoginPage{GoogleEnabled: h.provider != nil},
	})
}

// GoogleStart redirects to the Google consent page.
func (h *AuthHandler) GoogleStart(w http.ResponseWriter, r *http.Request) {
	lang := middleware.GetLang(r)
	if h.provider == nil {
		flashError(w, r, h.renderer, RouteLogin, i18n.T(lang, "auth.google_disabled"))
		return
	}

	state := oauth.NewState()
	h.sessionManager.Put(r.Context(), session.BrowserKeyOAuthState, state)
	http.Redirect(w, r, h.provider.AuthCodeURL(state), http.StatusFound)
}

// GoogleCallback completes the Google sign-in.
func (h *AuthHandler) GoogleCallback(w http.ResponseWriter, r *http.Request) {
	lang := middleware.GetLang(r)
	q := r.URL.Query()

	if h.provider == nil {
		flashError(w, r, h.renderer, RouteLogin, i18n.T(lang, "auth.google_disabled"))
		return
	}

	expected := h.sessionManager.PopString(r.Context(), session.BrowserKeyOAuthState)

	if reason := q.Get("error"); reason != "" {
		slog.Info("google sign-in cancelled", "reason", reason)
		flashError(w, r, h.renderer, RouteLogin, i18n.T(lang, "auth.loginFailed"))
		return
	}

	if !oauth.StateMatches(expected, q.Get("state")) {
		slog.Warn("google callback with mismatched state", append(clientAttrs(r), "has_expected", expected != "")...)
		flashError(w, r, h.renderer, RouteLogin, i18n.T(lang, "auth.invalid_state"))
		return
	}

	assertion, err := h.provider.Exchange(r.Context(), q.Get("code"))
	if err != nil {
		slog.Warn("google code exchange failed", "error", err)
		flashError(w, r, h.renderer, RouteLogin, i18n.T(lang, "auth.loginFailed"))
		return
	}

	res := h.store.Login(r.Context(), assertion)
	if !res.Success {
		slog.Info("google sign-in rejected", append(clientAttrs(r), "kind", res.Kind, "reason", res.Reason)...)
		flashError(w, r, h.renderer, RouteLogin, failureMessage(lang, res))
		return
	}

	h.completeLogin(w, r, res.User)
}

// AdminLogin handles the administrator credential form.
func (h *AuthHandler) AdminLogin(w http.ResponseWriter, r *http.Request) {
	lang := middleware.GetLang(r)

	if !parseFormOrRedirect(w, r, h.renderer, RouteLogin) {
		return
	}

	username := strings.TrimSpace(r.FormValue("username"))
	password := r.FormValue("password")

	if username == "" || password == "" {
		flashError(w, r, h.renderer, RouteLogin, i18n.T(lang, "auth.username_password_required"))
		return
	}

	if h.loginProtection != nil {
		if locked, remaining := h.loginProtection.IsAccountLocked(username); locked {
			slog.Warn("login attempt on locked account", append(clientAttrs(r), "username", username)...)
			flashError(w, r, h.renderer, RouteLogin, i18n.T(lang, "auth.account_locked", formatDuration(lang, remaining)))
			return
		}
	}

	res := h.store.AdminLogin(r.Context(), username, password)
	if !res.Success {
		if res.Kind != session.KindInvalidCredentials {
			// The API could not decide; this is not a guess at the password.
			flashError(w, r, h.renderer, RouteLogin, failureMessage(lang, res))
			return
		}

		slog.Info("admin login failed", append(clientAttrs(r), "username", username)...)
		if h.loginProtection != nil {
			if locked, lockDuration := h.loginProtection.RecordFailedAttempt(username); locked {
				flashError(w, r, h.renderer, RouteLogin, i18n.T(lang, "auth.too_many_attempts", formatDuration(lang, lockDuration)))
				return
			}
			remaining := h.loginProtection.GetRemainingAttempts(username)
			if remaining <= 3 && remaining > 0 {
				flashError(w, r, h.renderer, RouteLogin, i18n.T(lang, "auth.attempts_remaining", remaining))
				return
			}
		}
		flashError(w, r, h.renderer, RouteLogin, failureMessage(lang, res))
		return
	}

	if h.loginProtection != nil {
		h.loginProtection.RecordSuccessfulLogin(username)
	}
	h.completeLogin(w, r, res.User)
}

func (h *AuthHandler) completeLogin(w http.ResponseWriter, r *http.Request, user *model.User) {
	lang := middleware.GetLang(r)

	// Regenerate the browser session ID to prevent session fixation
	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		logAndInternalError(w, "session renewal error", "error", err)
		return
	}

	slog.Info("user logged in", append(clientAttrs(r), "user_id", user.ID, "admin", user.IsAdmin)...)
	flashSuccess(w, r, h.renderer, RouteDashboard, i18n.T(lang, "auth.welcome_back", user.Name()))
}

// Logout ends the session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r)

	h.store.Logout(r.Context())

	if err := h.sessionManager.Destroy(r.Context()); err != nil {
		slog.Error("session destroy error", "error", err)
	}

	slog.Info("user logged out", "user_id", userID)

	lang := middleware.GetLang(r)
	flashAndRedirect(w, r, h.renderer, RouteLogin, i18n.T(lang, "auth.logged_out"), render.FlashInfo)
}

// SetLanguage changes the UI language preference.
// POST /language
func (h *AuthHandler) SetLanguage(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Redirect(w, r, RouteRoot, http.StatusSeeOther)
		return
	}

	if lang := i18n.Normalize(r.FormValue("lang")); lang != "" {
		middleware.SetLanguageCookie(w, lang)
	}

	http.Redirect(w, r, localRedirect(r.FormValue("return"), RouteRoot), http.StatusSeeOther)
}

// localRedirect returns target when it is a path on this site, else fallback.
func localRedirect(target, fallback string) string {
	if !strings.HasPrefix(target, "/") || strings.HasPrefix(target, "//") || strings.HasPrefix(target, "/\\") {
		return fallback
	}
	return target
}

// failureKeys maps login failure kinds to messages.
var failureKeys = map[session.FailureKind]string{
	session.KindInvalidAssertion:   "auth.loginFailed",
	session.KindInvalidCredentials: "auth.invalid_credentials",
	session.KindNetwork:            "error.network",
	session.KindServer:             "auth.server_error",
	session.KindStorage:            "auth.storage_error",
}

// failureMessage prefers the API's explanation of a rejected login, such as
// an inactive account, over the generic message for the kind.
func failureMessage(lang string, res session.Result) string {
	if res.Detail != "" && (res.Kind == session.KindInvalidCredentials || res.Kind == session.KindInvalidAssertion) {
		return res.Detail
	}
	if key, ok := failureKeys[res.Kind]; ok {
		return i18n.T(lang, key)
	}
	return i18n.T(lang, "auth.loginFailed")
}

// clientAttrs describes the requesting client for audit logs.
func clientAttrs(r *http.Request) []any {
	ua := useragent.Parse(r.UserAgent())
	device := "desktop"
	switch {
	case ua.Bot:
		device = "bot"
	case ua.Tablet:
		device = "tablet"
	case ua.Mobile:
		device = "mobile"
	}
	return []any{
		"ip", util.ClientIP(r),
		"browser", ua.Name,
		"os", ua.OS,
		"device", device,
	}
}

// formatDuration formats a duration into a human-readable string.
func formatDuration(lang string, d time.Duration) string {
	if d < time.Minute {
		return i18n.T(lang, "duration.seconds", int(d.Seconds()))
	}
	if d < time.Hour {
		return i18n.T(lang, "duration.minutes", int(d.Minutes()))
	}
	return i18n.T(lang, "duration.hours", int(d.Hours()))
}
