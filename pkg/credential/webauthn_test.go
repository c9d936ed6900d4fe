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
	"encoding/json"
	"testing"

	"github.com/descope/virtualwebauthn"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-idbridge/pkg/storage"
)

func testConfig() *Config {
	return &Config{
		RPID:          "example.com",
		RPDisplayName: "Example Corp",
		RPOrigins:     []string{"https://example.com"},
	}
}

func newTestManager(t *testing.T) (*Manager, *storage.MemoryBackend) {
	t.Helper()
	store := storage.NewMemory()
	manager, err := NewManager(ManagerParams{
		Store:  store,
		Config: testConfig(),
	})
	require.NoError(t, err)
	return manager, store
}

func testRelyingParty() virtualwebauthn.RelyingParty {
	return virtualwebauthn.RelyingParty{
		Name:   "Example Corp",
		ID:     "example.com",
		Origin: "https://example.com",
	}
}

func parseAttestationResponse(t *testing.T, attestation string) *protocol.ParsedCredentialCreationData {
	t.Helper()
	var ccr protocol.CredentialCreationResponse
	require.NoError(t, json.Unmarshal([]byte(attestation), &ccr))
	parsed, err := ccr.Parse()
	require.NoError(t, err)
	return parsed
}

func parseAssertionResponse(t *testing.T, assertion string) *protocol.ParsedCredentialAssertionData {
	t.Helper()
	var car protocol.CredentialAssertionResponse
	require.NoError(t, json.Unmarshal([]byte(assertion), &car))
	parsed, err := car.Parse()
	require.NoError(t, err)
	return parsed
}

// registerCredential drives a full registration ceremony for the user and
// returns the authenticator holding the new credential.
func registerCredential(t *testing.T, manager *Manager, username string) (virtualwebauthn.Authenticator, virtualwebauthn.Credential) {
	t.Helper()
	ctx := context.Background()

	rp := testRelyingParty()
	authenticator := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	options, recordID, err := manager.BeginWebAuthnRegistration(ctx, username, "security key")
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)

	attestation := virtualwebauthn.CreateAttestationResponse(rp, authenticator, cred, *parsedOptions)
	response := parseAttestationResponse(t, attestation)

	require.NoError(t, manager.FinishWebAuthnRegistration(ctx, recordID, username, response))
	authenticator.AddCredential(cred)
	return authenticator, cred
}

func TestWebAuthnRegistration_Promotion(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	registerCredential(t, manager, "alice")

	// The challenge row was promoted in place to a durable credential.
	records, err := manager.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, KindWebAuthnCredential, records[0].Kind)
	assert.False(t, records[0].Temporary)
	assert.Equal(t, "security key", records[0].Label)
}

func TestWebAuthnRegistration_CrossUserAccessDenied(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	rp := testRelyingParty()
	authenticator := virtualwebauthn.NewAuthenticator()
	cred := virtualwebauthn.NewCredential(virtualwebauthn.KeyTypeEC2)

	options, recordID, err := manager.BeginWebAuthnRegistration(ctx, "alice", "key")
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAttestationOptions(string(optionsJSON))
	require.NoError(t, err)
	attestation := virtualwebauthn.CreateAttestationResponse(rp, authenticator, cred, *parsedOptions)
	response := parseAttestationResponse(t, attestation)

	// Another user cannot finish alice's challenge.
	err = manager.FinishWebAuthnRegistration(ctx, recordID, "mallory", response)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	// The row is still there for alice.
	require.NoError(t, manager.FinishWebAuthnRegistration(ctx, recordID, "alice", response))
}

func TestWebAuthnRegistration_UnknownRecord(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	err := manager.FinishWebAuthnRegistration(ctx, uuid.New(), "alice", &protocol.ParsedCredentialCreationData{})
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestWebAuthnRegistration_BoundedRetries(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	_, recordID, err := manager.BeginWebAuthnRegistration(ctx, "alice", "key")
	require.NoError(t, err)

	// A garbage response fails verification but leaves the row for a
	// bounded number of retries.
	garbage := &protocol.ParsedCredentialCreationData{}

	err = manager.FinishWebAuthnRegistration(ctx, recordID, "alice", garbage)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	err = manager.FinishWebAuthnRegistration(ctx, recordID, "alice", garbage)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	err = manager.FinishWebAuthnRegistration(ctx, recordID, "alice", garbage)
	assert.ErrorIs(t, err, ErrTooManyAttempts)

	// The budget is spent; the row is gone.
	err = manager.FinishWebAuthnRegistration(ctx, recordID, "alice", garbage)
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestWebAuthnAuthentication_Flow(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	authenticator, cred := registerCredential(t, manager, "alice")
	rp := testRelyingParty()

	options, recordID, err := manager.BeginWebAuthnAuthentication(ctx, "alice")
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)

	assertion := virtualwebauthn.CreateAssertionResponse(rp, authenticator, cred, *parsedOptions)
	response := parseAssertionResponse(t, assertion)

	require.NoError(t, manager.FinishWebAuthnAuthentication(ctx, recordID, "alice", response))
}

func TestWebAuthnAuthentication_SingleUse(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	authenticator, cred := registerCredential(t, manager, "alice")
	rp := testRelyingParty()

	options, recordID, err := manager.BeginWebAuthnAuthentication(ctx, "alice")
	require.NoError(t, err)

	optionsJSON, err := json.Marshal(options.Response)
	require.NoError(t, err)
	parsedOptions, err := virtualwebauthn.ParseAssertionOptions(string(optionsJSON))
	require.NoError(t, err)
	assertion := virtualwebauthn.CreateAssertionResponse(rp, authenticator, cred, *parsedOptions)
	response := parseAssertionResponse(t, assertion)

	require.NoError(t, manager.FinishWebAuthnAuthentication(ctx, recordID, "alice", response))

	// A consumed challenge must fail as not-found, not as a verification
	// failure.
	err = manager.FinishWebAuthnAuthentication(ctx, recordID, "alice", response)
	assert.ErrorIs(t, err, ErrRecordNotFound)
	assert.False(t, IsVerificationFailed(err))
}

func TestWebAuthnAuthentication_ConsumedEvenOnFailure(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	registerCredential(t, manager, "alice")

	_, recordID, err := manager.BeginWebAuthnAuthentication(ctx, "alice")
	require.NoError(t, err)

	// Garbage response: verification fails, but the challenge is
	// consumed regardless of outcome.
	err = manager.FinishWebAuthnAuthentication(ctx, recordID, "alice", &protocol.ParsedCredentialAssertionData{})
	assert.ErrorIs(t, err, ErrVerificationFailed)

	err = manager.FinishWebAuthnAuthentication(ctx, recordID, "alice", &protocol.ParsedCredentialAssertionData{})
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestWebAuthnAuthentication_NoCredentials(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	_, _, err := manager.BeginWebAuthnAuthentication(ctx, "nobody")
	assert.ErrorIs(t, err, ErrNoCredentials)
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	registerCredential(t, manager, "alice")

	records, err := manager.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, records, 1)

	// Another user cannot delete alice's credential.
	err = manager.Delete(ctx, "mallory", records[0].ID)
	assert.ErrorIs(t, err, ErrRecordNotFound)

	require.NoError(t, manager.Delete(ctx, "alice", records[0].ID))

	records, err = manager.List(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestHasSecondFactor(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(t)

	hasWebAuthn, hasTOTP, err := manager.HasSecondFactor(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, hasWebAuthn)
	assert.False(t, hasTOTP)

	registerCredential(t, manager, "alice")

	hasWebAuthn, hasTOTP, err = manager.HasSecondFactor(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, hasWebAuthn)
	assert.False(t, hasTOTP)
}
