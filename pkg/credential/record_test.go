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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindValid(t *testing.T) {
	for _, kind := range []Kind{
		KindWebAuthnRegistration,
		KindWebAuthnAuthentication,
		KindTOTPPending,
		KindWebAuthnCredential,
		KindTOTPCredential,
	} {
		assert.True(t, kind.Valid(), kind)
	}
	assert.False(t, Kind("").Valid())
	assert.False(t, Kind("password").Valid())
}

func TestKindDurable(t *testing.T) {
	assert.True(t, KindWebAuthnCredential.Durable())
	assert.True(t, KindTOTPCredential.Durable())
	assert.False(t, KindWebAuthnRegistration.Durable())
	assert.False(t, KindWebAuthnAuthentication.Durable())
	assert.False(t, KindTOTPPending.Durable())
}

func TestRecordPromote(t *testing.T) {
	rec := &Record{Kind: KindWebAuthnRegistration, Temporary: true, Attempts: 2}

	require.NoError(t, rec.promote(KindWebAuthnCredential, []byte(`{}`)))
	assert.Equal(t, KindWebAuthnCredential, rec.Kind)
	assert.False(t, rec.Temporary)
	assert.Zero(t, rec.Attempts)

	// Promotion is forward-only: a durable record cannot transition again.
	assert.ErrorIs(t, rec.promote(KindWebAuthnCredential, nil), ErrInvalidTransition)
}

func TestRecordPromote_InvalidTransitions(t *testing.T) {
	tests := []struct {
		name   string
		from   Kind
		target Kind
	}{
		{"registration to totp", KindWebAuthnRegistration, KindTOTPCredential},
		{"pending totp to webauthn", KindTOTPPending, KindWebAuthnCredential},
		{"authentication challenge", KindWebAuthnAuthentication, KindWebAuthnCredential},
		{"durable to durable", KindTOTPCredential, KindTOTPCredential},
		{"to ephemeral", KindWebAuthnRegistration, KindWebAuthnRegistration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &Record{Kind: tt.from, Temporary: true}
			assert.ErrorIs(t, rec.promote(tt.target, nil), ErrInvalidTransition)
		})
	}
}
