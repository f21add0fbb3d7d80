// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package oauth runs the Google OAuth 2.0 code flow and turns the signed-in
// Google account into the assertion the observation API verifies.
package oauth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/olegiv/wxdesk/internal/model"
)

// DefaultUserInfoURL is Google's OAuth2 v2 userinfo endpoint.
const DefaultUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

var (
	// ErrNotConfigured is returned when client credentials are missing.
	ErrNotConfigured = errors.New("google sign-in is not configured")
	// ErrExchange is returned when the authorization code cannot be redeemed.
	ErrExchange = errors.New("exchanging authorization code")
	// ErrProfile is returned when the Google profile is unusable.
	ErrProfile = errors.New("fetching google profile")
)

// Config configures the Google provider.
type Config struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string

	// Endpoint and UserInfoURL default to Google's production endpoints.
	Endpoint    oauth2.Endpoint
	UserInfoURL string
}

// Google is the OAuth client for observer sign-in.
type Google struct {
	config      *oauth2.Config
	userInfoURL string
}

// NewGoogle creates the provider.
func NewGoogle(cfg Config) (*Google, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, ErrNotConfigured
	}
	if cfg.CallbackURL == "" {
		return nil, fmt.Errorf("google sign-in: callback URL is required")
	}

	endpoint := cfg.Endpoint
	if endpoint.AuthURL == "" || endpoint.TokenURL == "" {
		endpoint = google.Endpoint
	}
	userInfo := cfg.UserInfoURL
	if userInfo == "" {
		userInfo = DefaultUserInfoURL
	}

	return &Google{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.CallbackURL,
			Scopes:       []string{"openid", "email", "profile"},
			Endpoint:     endpoint,
		},
		userInfoURL: userInfo,
	}, nil
}

// NewState returns a fresh anti-forgery state value.
func NewState() string {
	return uuid.NewString()
}

// StateMatches compares the state stored before the redirect with the one
// Google sent back, in constant time.
func StateMatches(expected, got string) bool {
	if expected == "" || got == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(expected), []byte(got)) == 1
}

// AuthCodeURL returns the consent page URL for state.
func (g *Google) AuthCodeURL(state string) string {
	return g.config.AuthCodeURL(state,
		oauth2.AccessTypeOnline,
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

type userInfo struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

// Exchange redeems code and fetches the Google profile behind it.
func (g *Google) Exchange(ctx context.Context, code string) (model.ProviderAssertion, error) {
	if code == "" {
		return model.ProviderAssertion{}, fmt.Errorf("%w: missing code", ErrExchange)
	}

	tok, err := g.config.Exchange(ctx, code)
	if err != nil {
		return model.ProviderAssertion{}, fmt.Errorf("%w: %w", ErrExchange, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.userInfoURL, nil)
	if err != nil {
		return model.ProviderAssertion{}, fmt.Errorf("%w: %w", ErrProfile, err)
	}
	resp, err := g.config.Client(ctx, tok).Do(req)
	if err != nil {
		return model.ProviderAssertion{}, fmt.Errorf("%w: %w", ErrProfile, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))
		return model.ProviderAssertion{}, fmt.Errorf("%w: status %d", ErrProfile, resp.StatusCode)
	}

	var info userInfo
	if err := json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&info); err != nil {
		return model.ProviderAssertion{}, fmt.Errorf("%w: %w", ErrProfile, err)
	}
	if !info.VerifiedEmail {
		return model.ProviderAssertion{}, fmt.Errorf("%w: email %s is not verified", ErrProfile, info.Email)
	}

	a := model.ProviderAssertion{
		GoogleID: info.ID,
		Email:    info.Email,
		Name:     info.Name,
		Picture:  info.Picture,
	}
	if a.Name == "" {
		a.Name = info.Email
	}
	if !a.Complete() {
		return model.ProviderAssertion{}, fmt.Errorf("%w: incomplete profile", ErrProfile)
	}
	return a, nil
}
