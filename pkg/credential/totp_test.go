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
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func currentCode(t *testing.T, secret string) string {
	t.Helper()
	code, err := totp.GenerateCodeCustom(secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    totpPeriod,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	return code
}

func TestTOTPEnrollment_Confirm(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	enrollment, err := manager.BeginTOTP(ctx, "alice", "phone")
	require.NoError(t, err)
	assert.NotEmpty(t, enrollment.Secret)
	assert.Contains(t, enrollment.URL, "otpauth://totp/")

	// A wrong code leaves the pending row untouched, secret intact.
	err = manager.ConfirmTOTP(ctx, enrollment.ID, "alice", "000000")
	assert.ErrorIs(t, err, ErrVerificationFailed)

	records, err := manager.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, records, "pending enrollment must not be listed as durable")

	// The correct code against the same secret promotes the row.
	require.NoError(t, manager.ConfirmTOTP(ctx, enrollment.ID, "alice", currentCode(t, enrollment.Secret)))

	records, err = manager.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, KindTOTPCredential, records[0].Kind)
	assert.False(t, records[0].Temporary)
	assert.Equal(t, "phone", records[0].Label)
}

func TestTOTPEnrollment_CrossUserAccessDenied(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	enrollment, err := manager.BeginTOTP(ctx, "alice", "phone")
	require.NoError(t, err)

	err = manager.ConfirmTOTP(ctx, enrollment.ID, "mallory", currentCode(t, enrollment.Secret))
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestTOTPEnrollment_UnknownRecord(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	err := manager.ConfirmTOTP(ctx, uuid.New(), "alice", "123456")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestVerifyTOTP(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	enrollment, err := manager.BeginTOTP(ctx, "alice", "phone")
	require.NoError(t, err)
	require.NoError(t, manager.ConfirmTOTP(ctx, enrollment.ID, "alice", currentCode(t, enrollment.Secret)))

	require.NoError(t, manager.VerifyTOTP(ctx, "alice", currentCode(t, enrollment.Secret)))

	err = manager.VerifyTOTP(ctx, "alice", "000000")
	assert.ErrorIs(t, err, ErrVerificationFailed)
}

func TestVerifyTOTP_PendingSecretNotUsable(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	// An unconfirmed enrollment must not satisfy the MFA step.
	enrollment, err := manager.BeginTOTP(ctx, "alice", "phone")
	require.NoError(t, err)

	err = manager.VerifyTOTP(ctx, "alice", currentCode(t, enrollment.Secret))
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestVerifyTOTP_NoCredentials(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	err := manager.VerifyTOTP(ctx, "nobody", "123456")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestHasSecondFactor_TOTP(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	enrollment, err := manager.BeginTOTP(ctx, "alice", "phone")
	require.NoError(t, err)
	require.NoError(t, manager.ConfirmTOTP(ctx, enrollment.ID, "alice", currentCode(t, enrollment.Secret)))

	hasWebAuthn, hasTOTP, err := manager.HasSecondFactor(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, hasWebAuthn)
	assert.True(t, hasTOTP)
}
