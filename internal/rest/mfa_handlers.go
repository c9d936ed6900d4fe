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
	"bytes"
	"net/http"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/jeremyhahn/go-idbridge/pkg/session"
)

// BeginWebAuthnLoginHandler starts a WebAuthn assertion ceremony for the
// MFA step on a partially authenticated session.
func (h *HandlerContext) BeginWebAuthnLoginHandler(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())

	options, id, err := h.credentials.BeginWebAuthnAuthentication(r.Context(), sess.Username)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, WebAuthnChallengeResponse{ID: id, Options: options}, http.StatusOK)
}

// FinishWebAuthnLoginHandler verifies the assertion and completes the
// webauthn step. The challenge is single-use; a failed attempt requires a
// fresh ceremony.
func (h *HandlerContext) FinishWebAuthnLoginHandler(w http.ResponseWriter, r *http.Request) {
	var req WebAuthnFinishRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	response, err := protocol.ParseCredentialRequestResponseBody(bytes.NewReader(req.Credential))
	if err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	sess := SessionFromContext(r.Context())
	if err := h.credentials.FinishWebAuthnAuthentication(r.Context(), req.ID, sess.Username, response); err != nil {
		h.handleError(w, err)
		return
	}

	h.completeStep(w, r, session.StepWebAuthn, req.LoginChallenge)
}

// VerifyTOTPHandler checks a TOTP code and completes the totp step.
func (h *HandlerContext) VerifyTOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req TOTPVerifyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	sess := SessionFromContext(r.Context())
	if err := h.credentials.VerifyTOTP(r.Context(), sess.Username, req.Code); err != nil {
		h.handleError(w, err)
		return
	}

	h.completeStep(w, r, session.StepTOTP, req.LoginChallenge)
}
