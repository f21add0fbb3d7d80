// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/olegiv/wxdesk/internal/apiclient"
	"github.com/olegiv/wxdesk/internal/i18n"
	"github.com/olegiv/wxdesk/internal/middleware"
	"github.com/olegiv/wxdesk/internal/model"
	"github.com/olegiv/wxdesk/internal/render"
)

// recentLimit is how many of the user's own observations the dashboard lists.
const recentLimit = 5

// DashboardPage is the data of the dashboard template.
type DashboardPage struct {
	// Latest is nil until the first observation exists.
	Latest *model.DashboardData
	Recent []model.ObservationSummary
}

// DashboardHandler shows the latest reading.
type DashboardHandler struct {
	api      *apiclient.Client
	renderer *render.Renderer
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(api *apiclient.Client, renderer *render.Renderer) *DashboardHandler {
	return &DashboardHandler{api: api, renderer: renderer}
}

// Dashboard handles GET /dashboard.
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	lang := middleware.GetLang(r)
	var page DashboardPage

	latest, err := h.api.Dashboard(r.Context())
	switch {
	case err == nil:
		page.Latest = latest
	case errors.Is(err, apiclient.ErrNotFound):
		// No observations yet.
	default:
		handleAPIError(w, r, h.renderer, err, RouteObservations)
		return
	}

	if userID := middleware.GetUserID(r); userID > 0 {
		recent, err := h.api.UserObservations(r.Context(), userID, 0, recentLimit)
		switch {
		case err == nil:
			page.Recent = recent
		case errors.Is(err, apiclient.ErrUnauthorized):
			handleAPIError(w, r, h.renderer, err, RouteDashboard)
			return
		default:
			slog.Warn("loading recent observations", "user_id", userID, "error", err)
		}
	}

	renderPage(w, r, h.renderer, http.StatusOK, templateDashboard, render.TemplateData{
		Title: i18n.T(lang, "dashboard.title"),
		Data:  page,
	})
}

// Home redirects the root path to the dashboard.
func Home(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, RouteDashboard, http.StatusSeeOther)
}

// WaitPage is shown while the session is still being restored. The guard has
// already set Retry-After; the page refreshes itself.
func WaitPage(renderer *render.Renderer) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lang := middleware.GetLang(r)
		renderPage(w, r, renderer, http.StatusServiceUnavailable, templateWait, render.TemplateData{
			Title: i18n.T(lang, "app.loading"),
		})
	})
}
