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

// Package credential manages the lifecycle of second-factor credentials:
// short-lived WebAuthn/TOTP challenges and their promotion to durable
// credentials. Ephemeral and durable state share one tagged record keyed by
// (id, username, kind); a record only ever moves forward from ephemeral to
// durable, never back.
package credential

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind is the discriminant of a credential record.
type Kind string

const (
	// KindWebAuthnRegistration is an ephemeral WebAuthn registration
	// challenge.
	KindWebAuthnRegistration Kind = "webauthn_registration"

	// KindWebAuthnAuthentication is an ephemeral WebAuthn authentication
	// challenge.
	KindWebAuthnAuthentication Kind = "webauthn_authentication"

	// KindTOTPPending is an ephemeral TOTP enrollment awaiting its first
	// valid code.
	KindTOTPPending Kind = "totp_pending"

	// KindWebAuthnCredential is a durable WebAuthn public-key credential.
	KindWebAuthnCredential Kind = "webauthn_credential"

	// KindTOTPCredential is a durable TOTP secret.
	KindTOTPCredential Kind = "totp_credential"
)

// Valid reports whether the kind is a known discriminant. Checked on every
// read so a corrupted row cannot masquerade as a credential.
func (k Kind) Valid() bool {
	switch k {
	case KindWebAuthnRegistration, KindWebAuthnAuthentication,
		KindTOTPPending, KindWebAuthnCredential, KindTOTPCredential:
		return true
	}
	return false
}

// Durable reports whether the kind represents a usable credential rather
// than a pending challenge.
func (k Kind) Durable() bool {
	return k == KindWebAuthnCredential || k == KindTOTPCredential
}

// promotesTo reports whether an ephemeral kind may be promoted to the
// given durable kind.
func (k Kind) promotesTo(target Kind) bool {
	switch k {
	case KindWebAuthnRegistration:
		return target == KindWebAuthnCredential
	case KindTOTPPending:
		return target == KindTOTPCredential
	}
	return false
}

// Record is the unified tagged row backing both pending challenges and
// durable credentials. The Kind discriminant and Temporary flag always
// agree; Payload is interpreted according to Kind.
type Record struct {
	ID        uuid.UUID       `json:"id"`
	Username  string          `json:"username"`
	Label     string          `json:"label,omitempty"`
	Kind      Kind            `json:"kind"`
	Temporary bool            `json:"temporary"`
	Attempts  int             `json:"attempts,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

// promote transitions the record in place from its ephemeral kind to the
// durable target, replacing the payload. The transition only ever moves
// forward.
func (r *Record) promote(target Kind, payload json.RawMessage) error {
	if !r.Kind.promotesTo(target) {
		return ErrInvalidTransition
	}
	r.Kind = target
	r.Temporary = false
	r.Attempts = 0
	r.Payload = payload
	return nil
}
