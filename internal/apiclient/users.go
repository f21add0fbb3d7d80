// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/olegiv/wxdesk/internal/model"
)

// UpdateSettings updates the signed-in user's own profile.
func (c *Client) UpdateSettings(ctx context.Context, in model.SettingsUpdate) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, "users.settings", http.MethodPut, "/users/me/settings", nil, in, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// ListUsers returns all users. Admin only.
func (c *Client) ListUsers(ctx context.Context) ([]model.UserSummary, error) {
	var users []model.UserSummary
	if err := c.do(ctx, "users.list", http.MethodGet, "/users/", nil, nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// UpdateUser applies an admin-side partial update.
func (c *Client) UpdateUser(ctx context.Context, id int64, in model.UserUpdate) (*model.User, error) {
	var u model.User
	if err := c.do(ctx, "users.update", http.MethodPut, fmt.Sprintf("/users/%d", id), nil, in, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// UserAction is an admin account action.
type UserAction string

// Admin account actions.
const (
	ActionDeactivate  UserAction = "deactivate"
	ActionActivate    UserAction = "activate"
	ActionMakeAdmin   UserAction = "make-admin"
	ActionRemoveAdmin UserAction = "remove-admin"
)

// ParseUserAction validates an action name.
func ParseUserAction(s string) (UserAction, bool) {
	switch a := UserAction(s); a {
	case ActionDeactivate, ActionActivate, ActionMakeAdmin, ActionRemoveAdmin:
		return a, true
	}
	return "", false
}

// ApplyUserAction runs an admin account action and returns the API's message.
func (c *Client) ApplyUserAction(ctx context.Context, id int64, action UserAction) (string, error) {
	var method, path string
	switch action {
	case ActionDeactivate:
		method, path = http.MethodDelete, fmt.Sprintf("/users/%d", id)
	case ActionActivate:
		method, path = http.MethodPost, fmt.Sprintf("/users/%d/activate", id)
	case ActionMakeAdmin:
		method, path = http.MethodPost, fmt.Sprintf("/users/%d/make-admin", id)
	case ActionRemoveAdmin:
		method, path = http.MethodDelete, fmt.Sprintf("/users/%d/remove-admin", id)
	default:
		return "", fmt.Errorf("unknown user action %q: %w", action, ErrInvalidRequest)
	}

	var msg Message
	if err := c.do(ctx, "users."+string(action), method, path, nil, nil, &msg); err != nil {
		return "", err
	}
	return msg.Message, nil
}
