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

package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSecretRequired is returned when a Manager is constructed without
	// a signing secret. A compiled-in default is deliberately not
	// provided.
	ErrSecretRequired = errors.New("session: signing secret is required")

	// ErrSessionNotFound is returned when a session id has no live record.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrConflict is returned when a step completion repeatedly loses the
	// race against a concurrent writer.
	ErrConflict = errors.New("session: concurrent modification")
)

// SessionError wraps an error with the operation that produced it.
type SessionError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *SessionError) Error() string {
	return fmt.Sprintf("session: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *SessionError) Unwrap() error {
	return e.Err
}

// wrapError wraps an error with an operation name if it is not nil.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &SessionError{Op: op, Err: err}
}
