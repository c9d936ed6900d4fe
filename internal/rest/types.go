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

package rest

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-idbridge/pkg/session"
)

// ErrorResponse is the standard error payload.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

// LoginPromptResponse is returned when the user must authenticate locally
// against a pending login challenge.
type LoginPromptResponse struct {
	Status         string   `json:"status"` // authentication_required
	Challenge      string   `json:"challenge"`
	ClientID       string   `json:"client_id,omitempty"`
	ClientName     string   `json:"client_name,omitempty"`
	RequestedScope []string `json:"requested_scope,omitempty"`
}

// LoginRequest is the password login payload.
type LoginRequest struct {
	Username       string `json:"username"`
	Password       string `json:"password"`
	LoginChallenge string `json:"login_challenge,omitempty"`
}

// LoginResponse reports the outcome of a password login or an MFA step.
type LoginResponse struct {
	Status       string             `json:"status"` // ok, mfa_required
	Username     string             `json:"username,omitempty"`
	MissingSteps []session.StepKind `json:"missing_auth_steps,omitempty"`
	RedirectTo   string             `json:"redirect_to,omitempty"`
}

// RedirectResponse carries an authorization-server redirect back to the
// browser.
type RedirectResponse struct {
	RedirectTo string `json:"redirect_to"`
}

// ConsentPromptResponse describes a pending consent challenge for display.
type ConsentPromptResponse struct {
	Challenge      string   `json:"challenge"`
	ClientID       string   `json:"client_id,omitempty"`
	ClientName     string   `json:"client_name,omitempty"`
	ClientURI      string   `json:"client_uri,omitempty"`
	RequestedScope []string `json:"requested_scope"`
}

// ConsentDecisionRequest is the consent accept/reject payload.
type ConsentDecisionRequest struct {
	ConsentChallenge string   `json:"consent_challenge"`
	GrantScope       []string `json:"grant_scope,omitempty"`
}

// WebAuthnBeginRequest starts a WebAuthn registration ceremony.
type WebAuthnBeginRequest struct {
	Label string `json:"label"`
}

// WebAuthnChallengeResponse carries WebAuthn ceremony options to the
// browser. Options is the publicKey options object produced by the
// WebAuthn library, passed through verbatim.
type WebAuthnChallengeResponse struct {
	ID      uuid.UUID   `json:"id"`
	Options interface{} `json:"options"`
}

// WebAuthnFinishRequest completes a WebAuthn ceremony. Credential is the
// browser's PublicKeyCredential JSON.
type WebAuthnFinishRequest struct {
	ID             uuid.UUID       `json:"id"`
	Credential     json.RawMessage `json:"credential"`
	LoginChallenge string          `json:"login_challenge,omitempty"`
}

// TOTPBeginRequest starts a TOTP enrollment.
type TOTPBeginRequest struct {
	Label string `json:"label"`
}

// TOTPEnrollResponse carries the generated secret and its otpauth URL for
// QR rendering.
type TOTPEnrollResponse struct {
	ID     uuid.UUID `json:"id"`
	Secret string    `json:"secret"`
	URL    string    `json:"url"`
}

// TOTPConfirmRequest confirms a TOTP enrollment.
type TOTPConfirmRequest struct {
	ID   uuid.UUID `json:"id"`
	Code string    `json:"code"`
}

// TOTPVerifyRequest is the TOTP MFA login payload.
type TOTPVerifyRequest struct {
	Code           string `json:"code"`
	LoginChallenge string `json:"login_challenge,omitempty"`
}

// CredentialResponse is one durable credential in a listing.
type CredentialResponse struct {
	ID        uuid.UUID `json:"id"`
	Label     string    `json:"label,omitempty"`
	Kind      string    `json:"kind"`
	CreatedAt time.Time `json:"created_at"`
}

// ProfileResponse is the user's directory profile.
type ProfileResponse struct {
	Username  string   `json:"username"`
	Name      string   `json:"name"`
	FirstName string   `json:"first_name"`
	LastName  string   `json:"last_name"`
	Email     string   `json:"email"`
	Groups    []string `json:"groups,omitempty"`
	Admin     bool     `json:"admin"`
}

// ProfileUpdateRequest is the profile self-edit payload.
type ProfileUpdateRequest struct {
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// StatusResponse is a minimal acknowledgement payload.
type StatusResponse struct {
	Status string `json:"status"`
}
