// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package apiclient

import (
	"context"
	"net/http"

	"github.com/olegiv/wxdesk/internal/model"
)

// Me fetches the profile of the user owning credential.
func (c *Client) Me(ctx context.Context, credential string) (*model.User, error) {
	var u model.User
	if err := c.do(withCredential(ctx, credential), "users.me", http.MethodGet, "/users/me", nil, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// VerifyGoogle exchanges a provider assertion for a backend credential.
func (c *Client) VerifyGoogle(ctx context.Context, a model.ProviderAssertion) (*model.AuthResponse, error) {
	var out model.AuthResponse
	if err := c.do(withoutCredential(ctx), "auth.google_verify", http.MethodPost, "/auth/google/verify", nil, a, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AdminLogin exchanges static administrator credentials for a backend credential.
func (c *Client) AdminLogin(ctx context.Context, username, password string) (*model.AuthResponse, error) {
	var out model.AuthResponse
	in := model.AdminCredentials{Username: username, Password: password}
	if err := c.do(withoutCredential(ctx), "auth.admin_login", http.MethodPost, "/auth/admin/login", nil, in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout asks the API to invalidate credential.
func (c *Client) Logout(ctx context.Context, credential string) error {
	return c.do(withCredential(ctx, credential), "auth.logout", http.MethodPost, "/auth/logout", nil, nil, nil)
}
