// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/wxdesk/internal/apiclient"
	"github.com/olegiv/wxdesk/internal/i18n"
	"github.com/olegiv/wxdesk/internal/middleware"
	"github.com/olegiv/wxdesk/internal/render"
)

// flashAndRedirect sets a flash message and redirects to the given URL.
// Uses http.StatusSeeOther (303) for POST redirects.
func flashAndRedirect(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, url, message, messageType string) {
	renderer.SetFlash(r, message, messageType)
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// flashError sets an error flash message and redirects to the given URL.
func flashError(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, url, message string) {
	flashAndRedirect(w, r, renderer, url, message, render.FlashError)
}

// flashSuccess sets a success flash message and redirects to the given URL.
func flashSuccess(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, url, message string) {
	flashAndRedirect(w, r, renderer, url, message, render.FlashSuccess)
}

// parseFormOrRedirect parses the request form and redirects with an error message on failure.
// Returns true if parsing succeeded, false if it failed (and redirect was performed).
func parseFormOrRedirect(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, redirectURL string) bool {
	if err := r.ParseForm(); err != nil {
		flashError(w, r, renderer, redirectURL, i18n.T(middleware.GetLang(r), "error.invalid_form"))
		return false
	}
	return true
}

// logAndHTTPError logs an error and writes an HTTP error response.
func logAndHTTPError(w http.ResponseWriter, message string, statusCode int, logMsg string, args ...any) {
	slog.Error(logMsg, args...)
	http.Error(w, message, statusCode)
}

// logAndInternalError logs an error and writes a 500 Internal Server Error response.
func logAndInternalError(w http.ResponseWriter, logMsg string, args ...any) {
	logAndHTTPError(w, "Internal Server Error", http.StatusInternalServerError, logMsg, args...)
}

// parseIDParam reads the {id} URL parameter.
func parseIDParam(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// renderPage renders a page and falls back to a plain 500 when the template fails.
func renderPage(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, status int, name string, data render.TemplateData) {
	if err := renderer.RenderStatus(w, r, status, name, data); err != nil {
		logAndInternalError(w, "render failed", "template", name, "error", err)
	}
}

// ErrorPage is the data of the generic error page.
type ErrorPage struct {
	Message string
	Detail  string
	BackURL string
}

// renderError renders the generic error page.
func renderError(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, status int, message, detail, backURL string) {
	lang := middleware.GetLang(r)
	renderPage(w, r, renderer, status, templateError, render.TemplateData{
		Title: i18n.T(lang, "error.title"),
		Data:  ErrorPage{Message: message, Detail: detail, BackURL: backURL},
	})
}

// NotFound renders the not-found page.
func NotFound(renderer *render.Renderer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lang := middleware.GetLang(r)
		renderPage(w, r, renderer, http.StatusNotFound, templateNotFound, render.TemplateData{
			Title: i18n.T(lang, "error.not_found"),
		})
	}
}

// handleAPIError answers a request whose call to the observation API failed.
//
//   - Unauthorized: the session has already been purged by the client's
//     unauthorized hook, so the user is sent to the login page.
//   - Forbidden: flash and back to the dashboard.
//   - NotFound: the not-found page.
//   - InvalidRequest: flash the backend detail and go back to backURL.
//   - Network and server failures: the error page with 502.
func handleAPIError(w http.ResponseWriter, r *http.Request, renderer *render.Renderer, err error, backURL string) {
	lang := middleware.GetLang(r)
	detail := apiclient.DetailOf(err)

	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		slog.Debug("client went away during API call", "path", r.URL.Path)
		return
	}

	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		flashError(w, r, renderer, RouteLogin, i18n.T(lang, "auth.session_expired"))
	case errors.Is(err, apiclient.ErrForbidden):
		slog.Warn("API refused operation", "path", r.URL.Path, "error", err)
		flashError(w, r, renderer, RouteDashboard, i18n.T(lang, "error.forbidden"))
	case errors.Is(err, apiclient.ErrNotFound):
		NotFound(renderer)(w, r)
	case errors.Is(err, apiclient.ErrInvalidRequest):
		msg := i18n.T(lang, "error.invalid_request")
		if detail != "" {
			msg = i18n.T(lang, "error.with_detail", detail)
		}
		flashError(w, r, renderer, backURL, msg)
	case errors.Is(err, apiclient.ErrNetwork):
		slog.Warn("observation API unreachable", "path", r.URL.Path, "error", err)
		renderError(w, r, renderer, http.StatusBadGateway, i18n.T(lang, "error.network"), "", backURL)
	default:
		slog.Error("observation API failed", "path", r.URL.Path, "error", err)
		renderError(w, r, renderer, http.StatusBadGateway, i18n.T(lang, "error.server"), detail, backURL)
	}
}
