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

// Package session issues and verifies the signed browser session tokens and
// tracks multi-factor authentication progress.
package session

import (
	"time"
)

// StepKind names an authentication factor a session may require.
type StepKind string

const (
	// StepPassword is the primary password factor.
	StepPassword StepKind = "password"

	// StepWebAuthn is the WebAuthn second factor.
	StepWebAuthn StepKind = "webauthn"

	// StepTOTP is the time-based one-time password second factor.
	StepTOTP StepKind = "totp"
)

// Session is the server-side record of an authenticated (possibly
// partially) browser identity. It is stored in the ephemeral store keyed by
// its id; the id never appears in the serialized body.
type Session struct {
	ID                 string     `json:"-"`
	Username           string     `json:"username"`
	CreatedAt          time.Time  `json:"created_at"`
	FullyAuthenticated bool       `json:"fully_authenticated"`
	CompletedSteps     []StepKind `json:"completed_auth_steps"`
	MissingSteps       []StepKind `json:"missing_auth_steps"`
}

// HasCompleted reports whether the given step has been completed.
func (s *Session) HasCompleted(step StepKind) bool {
	return containsStep(s.CompletedSteps, step)
}

// completeStep moves step from missing to completed and recomputes the
// fully-authenticated flag. Completing an already-completed step is a no-op.
func (s *Session) completeStep(step StepKind) {
	if !containsStep(s.CompletedSteps, step) {
		s.CompletedSteps = append(s.CompletedSteps, step)
	}

	remaining := make([]StepKind, 0, len(s.MissingSteps))
	for _, missing := range s.MissingSteps {
		if missing != step {
			remaining = append(remaining, missing)
		}
	}
	s.MissingSteps = remaining
	s.FullyAuthenticated = len(s.MissingSteps) == 0
}

func containsStep(steps []StepKind, step StepKind) bool {
	for _, s := range steps {
		if s == step {
			return true
		}
	}
	return false
}
