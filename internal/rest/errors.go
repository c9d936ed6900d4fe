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
	"errors"
	"log"
	"net/http"

	"github.com/jeremyhahn/go-idbridge/pkg/credential"
	"github.com/jeremyhahn/go-idbridge/pkg/directory"
	"github.com/jeremyhahn/go-idbridge/pkg/hydra"
	"github.com/jeremyhahn/go-idbridge/pkg/session"
)

// Common errors
var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingChallenge   = errors.New("missing challenge parameter")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrMFARequired        = errors.New("additional authentication steps required")
	ErrInternalError      = errors.New("internal server error")
	ErrServiceUnavailable = errors.New("authorization server unavailable")
)

// writeError writes an error response to the client.
func writeError(w http.ResponseWriter, err error, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := ErrorResponse{
		Error: err.Error(),
		Code:  statusCode,
	}

	if encErr := json.NewEncoder(w).Encode(resp); encErr != nil {
		log.Printf("Failed to encode error response: %v", encErr)
	}
}

// mapErrorToStatusCode maps errors to HTTP status codes. Verification
// failures stay opaque: the client learns the outcome, never the reason.
func mapErrorToStatusCode(err error) int {
	if statusErr, ok := hydra.AsStatusError(err); ok {
		if statusErr.IsServerError() {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadRequest
	}

	switch {
	case errors.Is(err, credential.ErrRecordNotFound),
		errors.Is(err, credential.ErrNoCredentials),
		errors.Is(err, directory.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, credential.ErrVerificationFailed),
		errors.Is(err, credential.ErrTooManyAttempts):
		return http.StatusForbidden
	case errors.Is(err, credential.ErrDuplicateCredential):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, ErrMissingChallenge):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// sanitizeError strips internal detail from errors that map to 5xx so
// storage and directory failures never leak to the client.
func sanitizeError(err error, statusCode int) error {
	switch statusCode {
	case http.StatusInternalServerError:
		return ErrInternalError
	case http.StatusServiceUnavailable:
		return ErrServiceUnavailable
	}
	return err
}

// handleError maps the error to a status code and writes the response.
func (h *HandlerContext) handleError(w http.ResponseWriter, err error) {
	statusCode := mapErrorToStatusCode(err)
	if statusCode >= http.StatusInternalServerError {
		h.logger.WithError(err).Error("request failed")
	}
	writeError(w, sanitizeError(err, statusCode), statusCode)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Printf("Failed to encode JSON response: %v", err)
	}
}
