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

// Package bridge brokers login and consent challenges between the
// authorization server and the local authentication state. It owns the
// scope-to-claims mapping; the REST layer owns cookies and error codes.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jeremyhahn/go-idbridge/pkg/adapters/logger"
	"github.com/jeremyhahn/go-idbridge/pkg/directory"
	"github.com/jeremyhahn/go-idbridge/pkg/hydra"
)

// Config holds the bridge configuration.
type Config struct {
	// RememberConsent asks the authorization server to remember accepted
	// consents so returning users skip the consent screen.
	RememberConsent bool

	// RememberFor bounds how long a remembered consent or login is valid.
	// Zero means remember indefinitely.
	RememberFor time.Duration
}

// Bridge drives the login and consent handshakes.
type Bridge struct {
	admin     hydra.AdminAPI
	directory directory.Directory
	logger    logger.Logger
	config    Config
}

// Params contains dependencies for creating a Bridge.
type Params struct {
	// Admin is the authorization server admin client (required).
	Admin hydra.AdminAPI

	// Directory resolves subject attributes for claims (required).
	Directory directory.Directory

	// Logger receives handshake events. Defaults to a no-op logger.
	Logger logger.Logger

	// Config is the bridge configuration.
	Config Config
}

// New creates a new Bridge.
func New(params Params) (*Bridge, error) {
	if params.Admin == nil {
		return nil, errors.New("bridge: admin client is required")
	}
	if params.Directory == nil {
		return nil, errors.New("bridge: directory is required")
	}
	if params.Logger == nil {
		params.Logger = logger.Noop()
	}
	return &Bridge{
		admin:     params.Admin,
		directory: params.Directory,
		logger:    params.Logger,
		config:    params.Config,
	}, nil
}

// LoginResult is the outcome of BeginLogin. Exactly one of RedirectTo and
// Request is set: RedirectTo when the challenge was accepted without local
// interaction, Request when the user must authenticate locally.
type LoginResult struct {
	RedirectTo string
	Request    *hydra.LoginRequest
}

// BeginLogin fetches a login challenge. When the authorization server
// remembers the subject the challenge is accepted immediately, without
// touching local session state; otherwise the pending request is returned
// for the REST layer to collect credentials against.
func (b *Bridge) BeginLogin(ctx context.Context, challenge string) (*LoginResult, error) {
	req, err := b.admin.GetLoginRequest(ctx, challenge)
	if err != nil {
		return nil, fmt.Errorf("bridge: get login request: %w", err)
	}

	if req.Skip {
		completed, err := b.acceptLogin(ctx, challenge, req.Subject)
		if err != nil {
			return nil, err
		}
		b.logger.Debug("login challenge skipped",
			logger.String("subject", req.Subject),
			logger.String("client_id", req.Client.ClientID))
		return &LoginResult{RedirectTo: completed}, nil
	}

	return &LoginResult{Request: req}, nil
}

// AcceptLogin accepts a login challenge for an authenticated subject and
// returns the redirect URL, which the caller passes back to the browser
// verbatim.
func (b *Bridge) AcceptLogin(ctx context.Context, challenge, subject string) (string, error) {
	redirect, err := b.acceptLogin(ctx, challenge, subject)
	if err != nil {
		return "", err
	}
	b.logger.Info("login challenge accepted",
		logger.String("subject", subject))
	return redirect, nil
}

func (b *Bridge) acceptLogin(ctx context.Context, challenge, subject string) (string, error) {
	completed, err := b.admin.AcceptLoginRequest(ctx, challenge, &hydra.AcceptLoginRequest{
		Subject:     subject,
		Remember:    b.config.RememberConsent,
		RememberFor: int64(b.config.RememberFor.Seconds()),
	})
	if err != nil {
		return "", fmt.Errorf("bridge: accept login request: %w", err)
	}
	return completed.RedirectTo, nil
}

// ConsentPrompt is the outcome of BeginConsent. When RedirectTo is set the
// challenge was accepted without interaction; otherwise Client and
// RequestedScopes describe what to ask the user.
type ConsentPrompt struct {
	RedirectTo      string
	Challenge       string
	Client          hydra.OAuth2Client
	RequestedScopes []string
}

// BeginConsent fetches a consent challenge. A remembered consent is
// re-accepted with freshly derived claims; otherwise the prompt carries the
// client identity and the recognized subset of the requested scopes.
func (b *Bridge) BeginConsent(ctx context.Context, challenge string) (*ConsentPrompt, error) {
	req, err := b.admin.GetConsentRequest(ctx, challenge)
	if err != nil {
		return nil, fmt.Errorf("bridge: get consent request: %w", err)
	}

	if req.Skip {
		redirect, err := b.acceptConsent(ctx, req, req.RequestedScope)
		if err != nil {
			return nil, err
		}
		b.logger.Debug("consent challenge skipped",
			logger.String("subject", req.Subject),
			logger.String("client_id", req.Client.ClientID))
		return &ConsentPrompt{RedirectTo: redirect}, nil
	}

	return &ConsentPrompt{
		Challenge:       req.Challenge,
		Client:          req.Client,
		RequestedScopes: recognizedScopes(req.RequestedScope),
	}, nil
}

// AcceptConsent accepts a consent challenge with the scopes the user
// granted. Claims are derived from the subject's directory entry at accept
// time so a stale remembered consent never discloses stale attributes.
func (b *Bridge) AcceptConsent(ctx context.Context, challenge string, grantedScopes []string) (string, error) {
	req, err := b.admin.GetConsentRequest(ctx, challenge)
	if err != nil {
		return "", fmt.Errorf("bridge: get consent request: %w", err)
	}
	redirect, err := b.acceptConsent(ctx, req, grantedScopes)
	if err != nil {
		return "", err
	}
	b.logger.Info("consent challenge accepted",
		logger.String("subject", req.Subject),
		logger.Strings("granted_scope", grantedScopes))
	return redirect, nil
}

func (b *Bridge) acceptConsent(ctx context.Context, req *hydra.ConsentRequest, grantedScopes []string) (string, error) {
	attrs, err := b.directory.UserAttributes(ctx, req.Subject)
	if err != nil {
		return "", fmt.Errorf("bridge: resolve subject attributes: %w", err)
	}

	accept := &hydra.AcceptConsentRequest{
		GrantScope:               grantedScopes,
		GrantAccessTokenAudience: req.RequestedAccessTokenAudience,
		Remember:                 b.config.RememberConsent,
		RememberFor:              int64(b.config.RememberFor.Seconds()),
		HandledAt:                time.Now().UTC(),
	}
	if claims := claimsForScopes(grantedScopes, attrs); len(claims) > 0 {
		accept.Session = &hydra.ConsentSession{IDToken: claims}
	}

	completed, err := b.admin.AcceptConsentRequest(ctx, req.Challenge, accept)
	if err != nil {
		return "", fmt.Errorf("bridge: accept consent request: %w", err)
	}
	return completed.RedirectTo, nil
}

// RejectConsent rejects a consent challenge on the user's behalf and
// returns the redirect URL carrying the denial back to the client.
func (b *Bridge) RejectConsent(ctx context.Context, challenge string) (string, error) {
	completed, err := b.admin.RejectConsentRequest(ctx, challenge, &hydra.RejectRequest{
		Error:            "access_denied",
		ErrorDescription: "The user rejected the request.",
	})
	if err != nil {
		return "", fmt.Errorf("bridge: reject consent request: %w", err)
	}
	b.logger.Info("consent challenge rejected")
	return completed.RedirectTo, nil
}
