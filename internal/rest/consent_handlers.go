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
	"net/http"
)

// BeginConsentHandler resolves a consent challenge. A remembered consent
// redirects immediately; otherwise the client identity and the recognized
// requested scopes are returned for display.
func (h *HandlerContext) BeginConsentHandler(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("consent_challenge")
	if challenge == "" {
		writeError(w, ErrMissingChallenge, http.StatusBadRequest)
		return
	}

	prompt, err := h.bridge.BeginConsent(r.Context(), challenge)
	if err != nil {
		h.handleError(w, err)
		return
	}
	if prompt.RedirectTo != "" {
		writeJSON(w, RedirectResponse{RedirectTo: prompt.RedirectTo}, http.StatusOK)
		return
	}

	writeJSON(w, ConsentPromptResponse{
		Challenge:      prompt.Challenge,
		ClientID:       prompt.Client.ClientID,
		ClientName:     prompt.Client.ClientName,
		ClientURI:      prompt.Client.ClientURI,
		RequestedScope: prompt.RequestedScopes,
	}, http.StatusOK)
}

// AcceptConsentHandler accepts a consent challenge with the granted scopes.
func (h *HandlerContext) AcceptConsentHandler(w http.ResponseWriter, r *http.Request) {
	var req ConsentDecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if req.ConsentChallenge == "" {
		writeError(w, ErrMissingChallenge, http.StatusBadRequest)
		return
	}

	redirect, err := h.bridge.AcceptConsent(r.Context(), req.ConsentChallenge, req.GrantScope)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, RedirectResponse{RedirectTo: redirect}, http.StatusOK)
}

// RejectConsentHandler rejects a consent challenge on the user's behalf.
func (h *HandlerContext) RejectConsentHandler(w http.ResponseWriter, r *http.Request) {
	var req ConsentDecisionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if req.ConsentChallenge == "" {
		writeError(w, ErrMissingChallenge, http.StatusBadRequest)
		return
	}

	redirect, err := h.bridge.RejectConsent(r.Context(), req.ConsentChallenge)
	if err != nil {
		h.handleError(w, err)
		return
	}
	writeJSON(w, RedirectResponse{RedirectTo: redirect}, http.StatusOK)
}
