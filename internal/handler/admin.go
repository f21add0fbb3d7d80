// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/olegiv/wxdesk/internal/apiclient"
	"github.com/olegiv/wxdesk/internal/i18n"
	"github.com/olegiv/wxdesk/internal/middleware"
	"github.com/olegiv/wxdesk/internal/model"
	"github.com/olegiv/wxdesk/internal/render"
	"github.com/olegiv/wxdesk/internal/session"
)

// AdminUsers is the data of the user administration template.
type AdminUsers struct {
	Users []model.UserSummary
	// SelfID is the signed-in administrator, whose own row has no
	// self-demotion buttons.
	SelfID int64
}

// AdminHandler handles user administration.
type AdminHandler struct {
	api      *apiclient.Client
	store    *session.Store
	renderer *render.Renderer
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(api *apiclient.Client, store *session.Store, renderer *render.Renderer) *AdminHandler {
	return &AdminHandler{api: api, store: store, renderer: renderer}
}

// Users handles GET /admin.
func (h *AdminHandler) Users(w http.ResponseWriter, r *http.Request) {
	lang := middleware.GetLang(r)

	users, err := h.api.ListUsers(r.Context())
	if err != nil {
		handleAPIError(w, r, h.renderer, err, RouteDashboard)
		return
	}

	renderPage(w, r, h.renderer, http.StatusOK, templateAdminUsers, render.TemplateData{
		Title: i18n.T(lang, "user.title"),
		Data:  AdminUsers{Users: users, SelfID: middleware.GetUserID(r)},
	})
}

// UserAction handles POST /admin/users/{id}/{action}.
func (h *AdminHandler) UserAction(w http.ResponseWriter, r *http.Request) {
	lang := middleware.GetLang(r)

	id, ok := parseIDParam(r)
	action, known := apiclient.ParseUserAction(chi.URLParam(r, "action"))
	if !ok || !known {
		NotFound(h.renderer)(w, r)
		return
	}

	msg, err := h.api.ApplyUserAction(r.Context(), id, action)
	if err != nil {
		handleAPIError(w, r, h.renderer, err, RouteAdmin)
		return
	}

	slog.Info("user account changed", "target_user_id", id, "action", action, "user_id", middleware.GetUserID(r))

	// Changing one's own account changes the session identity.
	if id == middleware.GetUserID(r) {
		h.store.Refresh(r.Context())
	}

	if msg == "" {
		msg = i18n.T(lang, "user.updated")
	}
	flashSuccess(w, r, h.renderer, RouteAdmin, msg)
}

// UpdateName handles POST /admin/users/{id}/name.
func (h *AdminHandler) UpdateName(w http.ResponseWriter, r *http.Request) {
	lang := middleware.GetLang(r)

	id, ok := parseIDParam(r)
	if !ok {
		NotFound(h.renderer)(w, r)
		return
	}
	if !parseFormOrRedirect(w, r, h.renderer, RouteAdmin) {
		return
	}

	update := model.UserUpdate{DisplayName: model.StringPtr(r.FormValue("display_name"))}
	if update.DisplayName == nil {
		flashError(w, r, h.renderer, RouteAdmin, i18n.T(lang, "validation.required"))
		return
	}

	if _, err := h.api.UpdateUser(r.Context(), id, update); err != nil {
		handleAPIError(w, r, h.renderer, err, RouteAdmin)
		return
	}

	slog.Info("user display name changed", "target_user_id", id, "user_id", middleware.GetUserID(r))
	if id == middleware.GetUserID(r) {
		h.store.Refresh(r.Context())
	}
	flashSuccess(w, r, h.renderer, RouteAdmin, i18n.T(lang, "user.updated"))
}
