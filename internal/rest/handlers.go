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
	"net/http"
	"time"

	"github.com/jeremyhahn/go-idbridge/pkg/adapters/logger"
	"github.com/jeremyhahn/go-idbridge/pkg/bridge"
	"github.com/jeremyhahn/go-idbridge/pkg/credential"
	"github.com/jeremyhahn/go-idbridge/pkg/directory"
	"github.com/jeremyhahn/go-idbridge/pkg/session"
)

// HandlerContext holds dependencies for REST handlers.
type HandlerContext struct {
	sessions     *session.Manager
	credentials  *credential.Manager
	bridge       *bridge.Bridge
	directory    directory.Directory
	logger       logger.Logger
	sessionTTL   time.Duration
	adminGroupDN string
}

// NewHandlerContext creates a new handler context.
func NewHandlerContext(
	sessions *session.Manager,
	credentials *credential.Manager,
	idp *bridge.Bridge,
	dir directory.Directory,
	log logger.Logger,
	sessionTTL time.Duration,
	adminGroupDN string,
) *HandlerContext {
	return &HandlerContext{
		sessions:     sessions,
		credentials:  credentials,
		bridge:       idp,
		directory:    dir,
		logger:       log,
		sessionTTL:   sessionTTL,
		adminGroupDN: adminGroupDN,
	}
}

// decodeJSON decodes the request body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return ErrInvalidRequest
	}
	return nil
}

// HealthHandler reports liveness.
func (h *HandlerContext) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, StatusResponse{Status: "ok"}, http.StatusOK)
}

// BeginLoginHandler resolves a login challenge. A remembered subject is
// redirected immediately; an existing fully-authenticated session accepts
// on the spot; otherwise the client is told to authenticate.
func (h *HandlerContext) BeginLoginHandler(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("login_challenge")
	if challenge == "" {
		writeError(w, ErrMissingChallenge, http.StatusBadRequest)
		return
	}

	result, err := h.bridge.BeginLogin(r.Context(), challenge)
	if err != nil {
		h.handleError(w, err)
		return
	}
	if result.RedirectTo != "" {
		writeJSON(w, RedirectResponse{RedirectTo: result.RedirectTo}, http.StatusOK)
		return
	}

	if auth := AuthResultFromContext(r.Context()); auth.FullyAuthenticated() {
		redirect, err := h.bridge.AcceptLogin(r.Context(), challenge, auth.Session.Username)
		if err != nil {
			h.handleError(w, err)
			return
		}
		writeJSON(w, RedirectResponse{RedirectTo: redirect}, http.StatusOK)
		return
	}

	writeJSON(w, LoginPromptResponse{
		Status:         "authentication_required",
		Challenge:      result.Request.Challenge,
		ClientID:       result.Request.Client.ClientID,
		ClientName:     result.Request.Client.ClientName,
		RequestedScope: result.Request.RequestedScope,
	}, http.StatusOK)
}

// LoginHandler checks the primary password factor and creates a session.
// Every enrolled second factor becomes a missing step; a user with none is
// fully authenticated immediately.
func (h *HandlerContext) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err, http.StatusBadRequest)
		return
	}
	if req.Username == "" || req.Password == "" {
		writeError(w, ErrInvalidRequest, http.StatusBadRequest)
		return
	}

	ok, err := h.directory.Bind(r.Context(), req.Username, req.Password)
	if err != nil {
		h.handleError(w, err)
		return
	}
	if !ok {
		writeError(w, ErrInvalidCredentials, http.StatusUnauthorized)
		return
	}

	hasWebAuthn, hasTOTP, err := h.credentials.HasSecondFactor(r.Context(), req.Username)
	if err != nil {
		h.handleError(w, err)
		return
	}
	var missing []session.StepKind
	if hasWebAuthn {
		missing = append(missing, session.StepWebAuthn)
	}
	if hasTOTP {
		missing = append(missing, session.StepTOTP)
	}

	sess, token, err := h.sessions.Create(r.Context(), req.Username,
		[]session.StepKind{session.StepPassword}, missing)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.setSessionCookie(w, token, h.sessionTTL)

	h.logger.Info("password factor verified",
		logger.String("username", req.Username),
		logger.Bool("fully_authenticated", sess.FullyAuthenticated))

	h.writeLoginOutcome(w, r, sess, req.LoginChallenge)
}

// LogoutHandler deletes the session and clears the cookie.
func (h *HandlerContext) LogoutHandler(w http.ResponseWriter, r *http.Request) {
	sess := SessionFromContext(r.Context())
	if err := h.sessions.Delete(r.Context(), sess.ID); err != nil {
		h.handleError(w, err)
		return
	}
	h.clearSessionCookie(w)
	writeJSON(w, StatusResponse{Status: "ok"}, http.StatusOK)
}

// writeLoginOutcome reports the state of a session after a completed
// authentication step. A fully authenticated session resolves its pending
// login challenge, or falls back to the stored redirect target.
func (h *HandlerContext) writeLoginOutcome(w http.ResponseWriter, r *http.Request, sess *session.Session, loginChallenge string) {
	if !sess.FullyAuthenticated {
		writeJSON(w, LoginResponse{
			Status:       "mfa_required",
			Username:     sess.Username,
			MissingSteps: sess.MissingSteps,
		}, http.StatusOK)
		return
	}

	resp := LoginResponse{Status: "ok", Username: sess.Username}
	if loginChallenge != "" {
		redirect, err := h.bridge.AcceptLogin(r.Context(), loginChallenge, sess.Username)
		if err != nil {
			h.handleError(w, err)
			return
		}
		resp.RedirectTo = redirect
	} else if target := consumeRedirectCookie(w, r); target != "" {
		resp.RedirectTo = target
	}
	writeJSON(w, resp, http.StatusOK)
}

// completeStep marks an MFA step complete and reports the login outcome.
func (h *HandlerContext) completeStep(w http.ResponseWriter, r *http.Request, step session.StepKind, loginChallenge string) {
	sess := SessionFromContext(r.Context())
	updated, err := h.sessions.CompleteStep(r.Context(), sess, step)
	if err != nil {
		h.handleError(w, err)
		return
	}
	h.logger.Info("authentication step completed",
		logger.String("username", updated.Username),
		logger.String("step", string(step)),
		logger.Bool("fully_authenticated", updated.FullyAuthenticated))
	h.writeLoginOutcome(w, r, updated, loginChallenge)
}
