// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"errors"

	"github.com/olegiv/wxdesk/internal/apiclient"
	"github.com/olegiv/wxdesk/internal/model"
)

// State is the conceptual state of the session.
type State int

// Session states.
const (
	StateUnresolved State = iota
	StateUnauthenticated
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateUnresolved:
		return "unresolved"
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Snapshot is a read-only copy of the session at one instant.
type Snapshot struct {
	Identity      *model.User
	Authenticated bool
	Resolving     bool
	State         State
}

// IsAdmin reports the administrative flag of the identity. It is false
// whenever no identity is present.
func (s Snapshot) IsAdmin() bool {
	return s.Identity != nil && s.Identity.IsAdmin
}

// FailureKind classifies a failed login.
type FailureKind string

// Login failure kinds.
const (
	KindInvalidAssertion   FailureKind = "invalid_assertion"
	KindInvalidCredentials FailureKind = "invalid_credentials"
	KindNetwork            FailureKind = "network_error"
	KindServer             FailureKind = "server_error"
	KindStorage            FailureKind = "storage_error"
)

var defaultReasons = map[FailureKind]string{
	KindInvalidAssertion:   "The identity provider's sign-in could not be verified.",
	KindInvalidCredentials: "Incorrect username or password.",
	KindNetwork:            "The observation service could not be reached. Please try again.",
	KindServer:             "The observation service failed to complete the sign-in.",
	KindStorage:            "The session could not be saved locally.",
}

// Result is the outcome of Login and AdminLogin.
type Result struct {
	Success bool
	User    *model.User
	Kind    FailureKind
	// Reason is a human-readable explanation of a failure.
	Reason string
	// Detail is the API's own explanation, empty when it gave none.
	Detail string
}

func failure(kind FailureKind, detail string) Result {
	reason := detail
	if reason == "" {
		reason = defaultReasons[kind]
	}
	return Result{Kind: kind, Reason: reason, Detail: detail}
}

// classify maps an API error to a failure kind. Rejections by the API use
// the caller's rejected kind.
func classify(err error, rejected FailureKind) FailureKind {
	switch {
	case errors.Is(err, apiclient.ErrNetwork):
		return KindNetwork
	case errors.Is(err, apiclient.ErrUnauthorized),
		errors.Is(err, apiclient.ErrForbidden),
		errors.Is(err, apiclient.ErrInvalidRequest):
		return rejected
	default:
		return KindServer
	}
}

// outcomeOf names an identity-fetch failure for metrics and logs.
func outcomeOf(err error) string {
	switch {
	case errors.Is(err, apiclient.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, apiclient.ErrForbidden):
		return "forbidden"
	case errors.Is(err, apiclient.ErrNetwork):
		return "network_error"
	default:
		return "server_error"
	}
}
