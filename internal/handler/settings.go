// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"log/slog"
	"net/http"

	"github.com/olegiv/wxdesk/internal/apiclient"
	"github.com/olegiv/wxdesk/internal/i18n"
	"github.com/olegiv/wxdesk/internal/middleware"
	"github.com/olegiv/wxdesk/internal/model"
	"github.com/olegiv/wxdesk/internal/render"
	"github.com/olegiv/wxdesk/internal/session"
)

// maxFormalNameLength bounds the formal name field.
const maxFormalNameLength = 100

// SettingsHandler handles the personal settings page.
type SettingsHandler struct {
	api      *apiclient.Client
	store    *session.Store
	renderer *render.Renderer
}

// NewSettingsHandler creates a new SettingsHandler.
func NewSettingsHandler(api *apiclient.Client, store *session.Store, renderer *render.Renderer) *SettingsHandler {
	return &SettingsHandler{api: api, store: store, renderer: renderer}
}

// Show handles GET /settings.
func (h *SettingsHandler) Show(w http.ResponseWriter, r *http.Request) {
	lang := middleware.GetLang(r)
	renderPage(w, r, h.renderer, http.StatusOK, templateSettings, render.TemplateData{
		Title: i18n.T(lang, "settings.title"),
	})
}

// Update handles POST /settings. On success the session identity is
// refreshed so the new name shows everywhere.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	lang := middleware.GetLang(r)
	if !parseFormOrRedirect(w, r, h.renderer, RouteSettings) {
		return
	}

	formalName := model.StringPtr(r.FormValue("formal_name"))
	if formalName != nil && len([]rune(*formalName)) > maxFormalNameLength {
		flashError(w, r, h.renderer, RouteSettings, i18n.T(lang, "validation.too_long", maxFormalNameLength))
		return
	}

	if _, err := h.api.UpdateSettings(r.Context(), model.SettingsUpdate{FormalName: formalName}); err != nil {
		handleAPIError(w, r, h.renderer, err, RouteSettings)
		return
	}

	if !h.store.Refresh(r.Context()) {
		slog.Warn("identity not refreshed after settings update", "user_id", middleware.GetUserID(r))
	}

	flashSuccess(w, r, h.renderer, RouteSettings, i18n.T(lang, "settings.saved"))
}
