// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-idbridge.
//
// go-idbridge is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package storage provides the ephemeral key-value store used for sessions
// and credential records. It supports a Redis backend for deployments and an
// in-memory backend for testing.
package storage

import (
	"context"
	"time"
)

// KeepTTL preserves the key's current expiry on Set and Update.
const KeepTTL = time.Duration(-1)

// UpdateFunc transforms the current value of a key into its replacement.
// It is invoked with the value as stored; returning an error aborts the
// update and the error is surfaced unchanged.
type UpdateFunc func(current []byte) ([]byte, error)

// Backend defines the interface for ephemeral key-value backends.
// All implementations must be safe for concurrent use.
type Backend interface {
	// Get retrieves the value for the given key.
	// Returns ErrNotFound if the key does not exist or has expired.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores the value for the given key, overwriting any existing
	// value. A ttl of zero stores the key without expiry; KeepTTL
	// preserves the current expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Update atomically replaces the value for the given key. The update
	// function sees the current value and returns the replacement; if a
	// concurrent writer modifies the key mid-update the operation is
	// retried, and ErrConflict is returned once retries are exhausted.
	// Returns ErrNotFound if the key does not exist.
	Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error

	// Delete removes the key and its value.
	// Returns ErrNotFound if the key does not exist.
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the backend.
	Close() error
}
