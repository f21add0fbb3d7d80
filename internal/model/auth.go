// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package model

// ProviderAssertion is the identity asserted by the third-party provider
// (Google), exchanged with the API for a backend credential.
type ProviderAssertion struct {
	GoogleID string `json:"google_id"`
	Email    string `json:"email"`
	Name     string `json:"name"`
	Picture  string `json:"picture,omitempty"`
}

// Complete reports whether the fields the API requires are present.
func (a ProviderAssertion) Complete() bool {
	return a.GoogleID != "" && a.Email != "" && a.Name != ""
}

// AdminCredentials are the static credentials for administrative login.
type AdminCredentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// AuthResponse is returned by both login endpoints.
type AuthResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	User        User   `json:"user"`
}
