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

	"github.com/go-chi/chi/v5"
	"github.com/go-webauthn/webauthn/protocol"
	"github.com/google/uuid"
)

// ListCredentialsHandler returns the user's durable credentials.
func (h *HandlerContext) ListCredentialsHandler(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())

	records, err := h.credentials.List(r.Context(), sess.Username)
	if err != nil {
		h.handleError(w, err)
		return
	}

	resp := make([]CredentialResponse, 0, len(records))
	for _, rec := range records {
		resp = append(resp, CredentialResponse{
			ID:        rec.ID,
			Label:     rec.Label,
			Kind:      string(rec.Kind),
			CreatedAt: rec.CreatedAt,
		})
	}
	writeJSON(w, resp, http.StatusOK)
}

// DeleteCredentialHandler removes one durable credential.
func (h *HandlerContext) DeleteCredentialHandler(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	sess := SessionFromContext(r.Context())
	if err := h.credentials.Delete(r.Context(), sess.Username, id); err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, StatusResponse{Status: "ok"}, http.StatusOK)
}

// BeginWebAuthnRegistrationHandler starts a WebAuthn registration ceremony
// for a new authenticator.
func (h *HandlerContext) BeginWebAuthnRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	var req WebAuthnBeginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	sess := SessionFromContext(r.Context())
	options, id, err := h.credentials.BeginWebAuthnRegistration(r.Context(), sess.Username, req.Label)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, WebAuthnChallengeResponse{ID: id, Options: options}, http.StatusOK)
}

// FinishWebAuthnRegistrationHandler verifies the attestation and promotes
// the challenge to a durable credential.
func (h *HandlerContext) FinishWebAuthnRegistrationHandler(w http.ResponseWriter, r *http.Request) {
	var req WebAuthnFinishRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	response, err := protocol.ParseCredentialCreationResponseBody(bytes.NewReader(req.Credential))
	if err != nil {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	sess := SessionFromContext(r.Context())
	if err := h.credentials.FinishWebAuthnRegistration(r.Context(), req.ID, sess.Username, response); err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, StatusResponse{Status: "ok"}, http.StatusCreated)
}

// BeginTOTPHandler generates a TOTP secret pending its first valid code.
func (h *HandlerContext) BeginTOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req TOTPBeginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}

	sess := SessionFromContext(r.Context())
	enrollment, err := h.credentials.BeginTOTP(r.Context(), sess.Username, req.Label)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, TOTPEnrollResponse{
		ID:     enrollment.ID,
		Secret: enrollment.Secret,
		URL:    enrollment.URL,
	}, http.StatusOK)
}

// ConfirmTOTPHandler proves possession of the enrolled secret and promotes
// it to a durable credential.
func (h *HandlerContext) ConfirmTOTPHandler(w http.ResponseWriter, r *http.Request) {
	var req TOTPConfirmRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if req.Code == "" {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	sess := SessionFromContext(r.Context())
	if err := h.credentials.ConfirmTOTP(r.Context(), req.ID, sess.Username, req.Code); err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, StatusResponse{Status: "ok"}, http.StatusCreated)
}
