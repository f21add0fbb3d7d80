// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package util

import (
	"path/filepath"
	"strings"
)

// SanitizeFilename reduces an untrusted download name to a safe base name.
// Directory components are dropped and anything outside [A-Za-z0-9._-] is
// replaced with an underscore. fallback is returned when nothing usable is left.
func SanitizeFilename(filename, fallback string) string {
	base := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	if base == "." || base == ".." || base == "/" {
		return fallback
	}

	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}

	safe := strings.TrimLeft(b.String(), ".")
	if safe == "" {
		return fallback
	}
	return safe
}
