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

package hydra

import (
	"errors"
	"fmt"
)

// StatusError is returned when the admin API answers with a non-2xx status.
// Callers map server-side failures to a retryable outcome and client-side
// failures to a bad request.
type StatusError struct {
	// StatusCode is the upstream HTTP status.
	StatusCode int

	// Op is the admin API operation that failed.
	Op string

	// Body is the upstream error body, if any.
	Body string
}

// Error returns the error message.
func (e *StatusError) Error() string {
	return fmt.Sprintf("hydra: %s returned status %d", e.Op, e.StatusCode)
}

// IsServerError reports whether the upstream failure was a 5xx.
func (e *StatusError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode <= 599
}

// IsClientError reports whether the upstream failure was a 4xx.
func (e *StatusError) IsClientError() bool {
	return e.StatusCode >= 400 && e.StatusCode <= 499
}

// AsStatusError unwraps a StatusError from err, if present.
func AsStatusError(err error) (*StatusError, bool) {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr, true
	}
	return nil, false
}
