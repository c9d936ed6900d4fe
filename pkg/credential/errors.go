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

package credential

import (
	"errors"
	"fmt"
)

// Sentinel errors for credential operations.
var (
	// ErrRecordNotFound is returned when no record matches the requested
	// id, username and kind. A kind or username mismatch is deliberately
	// indistinguishable from an absent row.
	ErrRecordNotFound = errors.New("credential record not found")

	// ErrVerificationFailed is returned when a challenge response or
	// one-time code does not verify. No diagnostic detail is attached.
	ErrVerificationFailed = errors.New("verification failed")

	// ErrDuplicateCredential is returned when a registration response
	// matches an authenticator the user already registered.
	ErrDuplicateCredential = errors.New("credential already registered")

	// ErrNoCredentials is returned when an authentication ceremony is
	// requested for a user with no durable credentials of that kind.
	ErrNoCredentials = errors.New("user has no registered credentials")

	// ErrTooManyAttempts is returned when a registration challenge has
	// been consumed by repeated failed verifications.
	ErrTooManyAttempts = errors.New("too many failed attempts")

	// ErrInvalidTransition is returned when a record promotion would move
	// backward or across kinds.
	ErrInvalidTransition = errors.New("invalid record transition")
)

// CredentialError wraps an error with the operation that produced it.
type CredentialError struct {
	Op  string
	Err error
}

// Error returns the error message.
func (e *CredentialError) Error() string {
	return fmt.Sprintf("credential: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying error.
func (e *CredentialError) Unwrap() error {
	return e.Err
}

// wrapError wraps an error with an operation name if it is not nil.
func wrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &CredentialError{Op: op, Err: err}
}

// IsNotFound returns true if the error indicates an absent record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRecordNotFound)
}

// IsVerificationFailed returns true if the error indicates a failed
// challenge verification.
func IsVerificationFailed(err error) bool {
	return errors.Is(err, ErrVerificationFailed)
}
