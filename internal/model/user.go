// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package model defines the records exchanged with the observation API:
// user profiles, observations, dashboard data and authentication payloads.
package model

import (
	"strings"
	"time"
)

// User is the profile record returned by the observation API.
// Optional name fields are pointers because the API sends null for unset values.
type User struct {
	ID             int64      `json:"id"`
	Email          string     `json:"email"`
	DisplayName    *string    `json:"display_name,omitempty"`
	FormalName     *string    `json:"formal_name,omitempty"`
	GoogleName     *string    `json:"google_name,omitempty"`
	GoogleID       *string    `json:"google_id,omitempty"`
	ProfilePicture *string    `json:"profile_picture,omitempty"`
	IsAdmin        bool       `json:"is_admin"`
	IsActive       bool       `json:"is_active"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      *time.Time `json:"updated_at,omitempty"`
}

// Name returns the name to show for the user.
// Precedence: formal name, display name, provider (Google) name, then email.
func (u *User) Name() string {
	if u == nil {
		return ""
	}
	for _, n := range []*string{u.FormalName, u.DisplayName, u.GoogleName} {
		if n != nil && strings.TrimSpace(*n) != "" {
			return strings.TrimSpace(*n)
		}
	}
	return u.Email
}

// UserSummary is the reduced record returned by the user listing endpoint.
type UserSummary struct {
	ID          int64   `json:"id"`
	Email       string  `json:"email"`
	DisplayName *string `json:"display_name,omitempty"`
	GoogleName  *string `json:"google_name,omitempty"`
	IsAdmin     bool    `json:"is_admin"`
	IsActive    *bool   `json:"is_active,omitempty"`
}

// Name returns the display name, falling back to the Google name and email.
func (u UserSummary) Name() string {
	for _, n := range []*string{u.DisplayName, u.GoogleName} {
		if n != nil && strings.TrimSpace(*n) != "" {
			return strings.TrimSpace(*n)
		}
	}
	return u.Email
}

// Active reports whether the account is enabled. Older API versions omit the
// field, which means active.
func (u UserSummary) Active() bool {
	return u.IsActive == nil || *u.IsActive
}

// UserUpdate is the admin-side partial update of another user.
type UserUpdate struct {
	DisplayName *string `json:"display_name,omitempty"`
	IsActive    *bool   `json:"is_active,omitempty"`
	IsAdmin     *bool   `json:"is_admin,omitempty"`
}

// SettingsUpdate is the self-service profile update.
type SettingsUpdate struct {
	FormalName *string `json:"formal_name,omitempty"`
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}
