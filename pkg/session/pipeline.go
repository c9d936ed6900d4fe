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

import "context"

// Result is the three-way outcome of evaluating a request's session token:
// authenticated (Session set), anonymous (neither set), or failed (Err
// set). Routers short-circuit on Err and fall through to the next route
// rank on anonymous.
type Result struct {
	// Session is the resolved session, nil for anonymous requests.
	Session *Session

	// Err is set only for infrastructure failures; a missing or tampered
	// token is anonymous, not an error.
	Err error
}

// Authenticate evaluates a token into a Result.
func (m *Manager) Authenticate(ctx context.Context, token SignedToken) Result {
	if token == "" {
		return Result{}
	}
	sess, err := m.Resolve(ctx, token)
	if err != nil {
		return Result{Err: err}
	}
	return Result{Session: sess}
}

// Anonymous reports whether evaluation succeeded but no session exists.
func (r Result) Anonymous() bool {
	return r.Err == nil && r.Session == nil
}

// PartiallyAuthenticated reports whether any live session exists,
// regardless of remaining steps.
func (r Result) PartiallyAuthenticated() bool {
	return r.Err == nil && r.Session != nil
}

// FullyAuthenticated reports whether a live session exists with every
// required step completed.
func (r Result) FullyAuthenticated() bool {
	return r.PartiallyAuthenticated() && r.Session.FullyAuthenticated
}
