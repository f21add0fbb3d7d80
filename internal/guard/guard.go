// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package guard decides whether a navigation renders, waits or redirects.
package guard

import "github.com/olegiv/wxdesk/internal/session"

// Requirement is what a view demands of the session.
type Requirement int

// View requirements.
const (
	Public Requirement = iota
	Authenticated
	Admin
)

func (r Requirement) String() string {
	switch r {
	case Public:
		return "public"
	case Authenticated:
		return "authenticated"
	case Admin:
		return "admin"
	default:
		return "unknown"
	}
}

// Decision is the outcome of Authorize.
type Decision int

// Guard decisions.
const (
	Render Decision = iota
	RedirectToLogin
	RedirectToDefault
	Wait
)

func (d Decision) String() string {
	switch d {
	case Render:
		return "render"
	case RedirectToLogin:
		return "redirect_login"
	case RedirectToDefault:
		return "redirect_default"
	case Wait:
		return "wait"
	default:
		return "unknown"
	}
}

// Authorize decides the outcome of a navigation to a view with requirement
// req, given the session snapshot. While the session is resolving nothing but
// Wait is returned, whatever the requirement.
func Authorize(snap session.Snapshot, req Requirement) Decision {
	switch {
	case snap.Resolving:
		return Wait
	case req >= Authenticated && !snap.Authenticated:
		return RedirectToLogin
	case req == Admin && !snap.IsAdmin():
		return RedirectToDefault
	default:
		return Render
	}
}
