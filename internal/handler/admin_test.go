// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package handler

import (
	"net/http"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/olegiv/wxdesk/internal/model"
)

func TestAdminUsersList(t *testing.T) {
	h := newHarness(t, adminUser())
	h.api.HandleFunc("GET /users/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, []model.UserSummary{
			{ID: 1, Email: "admin@example.com", IsAdmin: true},
			{ID: 7, Email: "mei@example.com", DisplayName: model.StringPtr("Mei"), IsActive: model.BoolPtr(false)},
		})
	})

	ah := NewAdminHandler(h.client, h.store, h.renderer)
	res := h.serve(RouteAdmin, ah.Users, newRequest(http.MethodGet, RouteAdmin, nil))

	require.Equal(t, http.StatusOK, res.rec.Code)
	body := res.body()
	assert.Contains(t, body, "mei@example.com")
	assert.Contains(t, body, `action="/admin/users/7/activate"`)
	assert.Contains(t, body, `action="/admin/users/7/make-admin"`)
	assert.NotContains(t, body, `action="/admin/users/1/remove-admin"`, "no self-demotion")
	assert.Contains(t, body, "This is you")
}

func TestAdminUsersForbidden(t *testing.T) {
	h := newHarness(t, observerUser())
	h.api.HandleFunc("GET /users/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "Admin only"})
	})

	ah := NewAdminHandler(h.client, h.store, h.renderer)
	res := h.serve(RouteAdmin, ah.Users, newRequest(http.MethodGet, RouteAdmin, nil))

	assert.Equal(t, http.StatusSeeOther, res.rec.Code)
	assert.Equal(t, RouteDashboard, res.location())
}

func TestAdminUserAction(t *testing.T) {
	h := newHarness(t, adminUser())
	called := ""
	h.api.HandleFunc("POST /users/7/make-admin", func(w http.ResponseWriter, r *http.Request) {
		called = r.Method + " " + r.URL.Path
		writeJSON(w, http.StatusOK, map[string]string{"message": "User is now an admin"})
	})
	h.api.HandleFunc("DELETE /users/7", func(w http.ResponseWriter, r *http.Request) {
		called = r.Method + " " + r.URL.Path
		writeJSON(w, http.StatusOK, map[string]string{})
	})

	ah := NewAdminHandler(h.client, h.store, h.renderer)

	res := h.serve(RouteAdminUserAction, ah.UserAction, newRequest(http.MethodPost, "/admin/users/7/make-admin", url.Values{}))
	assert.Equal(t, "POST /users/7/make-admin", called)
	assert.Equal(t, http.StatusSeeOther, res.rec.Code)
	assert.Equal(t, RouteAdmin, res.location())
	assert.Equal(t, "User is now an admin", res.flash)

	res = h.serve(RouteAdminUserAction, ah.UserAction, newRequest(http.MethodPost, "/admin/users/7/deactivate", url.Values{}))
	assert.Equal(t, "DELETE /users/7", called)
	assert.Equal(t, "User updated.", res.flash, "empty API message falls back")
}

func TestAdminUserActionUnknown(t *testing.T) {
	h := newHarness(t, adminUser())
	ah := NewAdminHandler(h.client, h.store, h.renderer)

	res := h.serve(RouteAdminUserAction, ah.UserAction, newRequest(http.MethodPost, "/admin/users/7/promote", url.Values{}))
	assert.Equal(t, http.StatusNotFound, res.rec.Code)

	res = h.serve(RouteAdminUserAction, ah.UserAction, newRequest(http.MethodPost, "/admin/users/x/activate", url.Values{}))
	assert.Equal(t, http.StatusNotFound, res.rec.Code)
}

func TestAdminUpdateName(t *testing.T) {
	h := newHarness(t, adminUser())
	var got model.UserUpdate
	h.api.HandleFunc("PUT /users/7", func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, decodeJSON(r, &got))
		writeJSON(w, http.StatusOK, observerUser())
	})

	ah := NewAdminHandler(h.client, h.store, h.renderer)
	form := url.Values{"display_name": {" Mei L. "}}
	res := h.serve(RouteAdminUserName, ah.UpdateName, newRequest(http.MethodPost, "/admin/users/7/name", form))

	assert.Equal(t, http.StatusSeeOther, res.rec.Code)
	assert.Equal(t, "User updated.", res.flash)
	require.NotNil(t, got.DisplayName)
	assert.Equal(t, "Mei L.", *got.DisplayName)
	assert.Nil(t, got.IsAdmin)
	assert.Nil(t, got.IsActive)
}

func TestAdminUpdateNameRequired(t *testing.T) {
	h := newHarness(t, adminUser())
	ah := NewAdminHandler(h.client, h.store, h.renderer)

	res := h.serve(RouteAdminUserName, ah.UpdateName, newRequest(http.MethodPost, "/admin/users/7/name", url.Values{"display_name": {"  "}}))

	assert.Equal(t, http.StatusSeeOther, res.rec.Code)
	assert.Equal(t, "This field is required.", res.flash)
}

func TestAdminUpdateOwnNameRefreshesIdentity(t *testing.T) {
	h := newHarness(t, adminUser())
	h.api.HandleFunc("PUT /users/1", func(w http.ResponseWriter, _ *http.Request) {
		updated := adminUser()
		updated.DisplayName = model.StringPtr("Chief")
		h.setMe(updated)
		writeJSON(w, http.StatusOK, updated)
	})

	ah := NewAdminHandler(h.client, h.store, h.renderer)
	res := h.serve(RouteAdminUserName, ah.UpdateName, newRequest(http.MethodPost, "/admin/users/1/name", url.Values{"display_name": {"Chief"}}))

	assert.Equal(t, "User updated.", res.flash)
	assert.Equal(t, "Chief", h.store.Snapshot().Identity.Name())
}
