// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package kv provides durable key-value backends for the session store's
// persisted credential and cached profile.
package kv

import "context"

// Store is a string key-value store. All implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value for key and whether it was present.
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing an absent key is not an error.
	Remove(ctx context.Context, key string) error
	// Close releases resources owned by the store.
	Close() error
}

// Error represents an error type for KV operations.
type Error string

func (e Error) Error() string {
	return string(e)
}

// ErrClosed indicates the store has been closed.
const ErrClosed Error = "kv store closed"
