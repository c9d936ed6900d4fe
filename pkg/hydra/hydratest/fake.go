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

// Package hydratest provides an in-memory AdminAPI fake for tests.
package hydratest

import (
	"context"
	"net/http"
	"sync"

	"github.com/jeremyhahn/go-idbridge/pkg/hydra"
)

// Fake is an in-memory hydra.AdminAPI implementation. Challenges are
// registered up front; accept/reject calls are recorded for assertions.
type Fake struct {
	mu sync.Mutex

	// LoginRequests maps challenge to the pending login request.
	LoginRequests map[string]*hydra.LoginRequest

	// ConsentRequests maps challenge to the pending consent request.
	ConsentRequests map[string]*hydra.ConsentRequest

	// AcceptedLogins records accept payloads by challenge.
	AcceptedLogins map[string]*hydra.AcceptLoginRequest

	// AcceptedConsents records accept payloads by challenge.
	AcceptedConsents map[string]*hydra.AcceptConsentRequest

	// RejectedConsents records reject payloads by challenge.
	RejectedConsents map[string]*hydra.RejectRequest

	// RedirectTo is returned from every accept/reject call.
	RedirectTo string

	// Err, when set, is returned by every operation.
	Err error
}

var _ hydra.AdminAPI = (*Fake)(nil)

// New creates an empty fake admin API.
func New() *Fake {
	return &Fake{
		LoginRequests:    make(map[string]*hydra.LoginRequest),
		ConsentRequests:  make(map[string]*hydra.ConsentRequest),
		AcceptedLogins:   make(map[string]*hydra.AcceptLoginRequest),
		AcceptedConsents: make(map[string]*hydra.AcceptConsentRequest),
		RejectedConsents: make(map[string]*hydra.RejectRequest),
		RedirectTo:       "https://client.example/callback",
	}
}

func (f *Fake) notFound(op string) error {
	return &hydra.StatusError{StatusCode: http.StatusNotFound, Op: op}
}

// GetLoginRequest returns the registered login request.
func (f *Fake) GetLoginRequest(ctx context.Context, challenge string) (*hydra.LoginRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	req, ok := f.LoginRequests[challenge]
	if !ok {
		return nil, f.notFound("GET /oauth2/auth/requests/login")
	}
	return req, nil
}

// AcceptLoginRequest records the accept payload.
func (f *Fake) AcceptLoginRequest(ctx context.Context, challenge string, accept *hydra.AcceptLoginRequest) (*hydra.CompletedRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if _, ok := f.LoginRequests[challenge]; !ok {
		return nil, f.notFound("PUT /oauth2/auth/requests/login/accept")
	}
	f.AcceptedLogins[challenge] = accept
	return &hydra.CompletedRequest{RedirectTo: f.RedirectTo}, nil
}

// GetConsentRequest returns the registered consent request.
func (f *Fake) GetConsentRequest(ctx context.Context, challenge string) (*hydra.ConsentRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	req, ok := f.ConsentRequests[challenge]
	if !ok {
		return nil, f.notFound("GET /oauth2/auth/requests/consent")
	}
	return req, nil
}

// AcceptConsentRequest records the accept payload.
func (f *Fake) AcceptConsentRequest(ctx context.Context, challenge string, accept *hydra.AcceptConsentRequest) (*hydra.CompletedRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if _, ok := f.ConsentRequests[challenge]; !ok {
		return nil, f.notFound("PUT /oauth2/auth/requests/consent/accept")
	}
	f.AcceptedConsents[challenge] = accept
	return &hydra.CompletedRequest{RedirectTo: f.RedirectTo}, nil
}

// RejectConsentRequest records the reject payload.
func (f *Fake) RejectConsentRequest(ctx context.Context, challenge string, reject *hydra.RejectRequest) (*hydra.CompletedRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	if _, ok := f.ConsentRequests[challenge]; !ok {
		return nil, f.notFound("PUT /oauth2/auth/requests/consent/reject")
	}
	f.RejectedConsents[challenge] = reject
	return &hydra.CompletedRequest{RedirectTo: f.RedirectTo}, nil
}
