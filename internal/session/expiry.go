// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package session

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CredentialExpiry reads the exp claim of a JWT credential without verifying
// its signature. Only the API can verify it; the client uses exp to avoid
// calls that are bound to fail. ok is false for opaque or exp-less tokens.
func CredentialExpiry(token string) (exp time.Time, ok bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, false
	}
	t, err := claims.GetExpirationTime()
	if err != nil || t == nil {
		return time.Time{}, false
	}
	return t.Time, true
}

func (s *Store) expired(token string) bool {
	exp, ok := CredentialExpiry(token)
	return ok && !s.clock.Now().Before(exp)
}
