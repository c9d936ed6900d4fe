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

// Package hydra provides a typed client for the ORY Hydra admin API,
// covering the login and consent challenge endpoints the bridge consumes.
package hydra

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// AdminAPI is the interface the bridge consumes. It is satisfied by Client
// and by test fakes.
type AdminAPI interface {
	// GetLoginRequest fetches a pending login challenge.
	GetLoginRequest(ctx context.Context, challenge string) (*LoginRequest, error)

	// AcceptLoginRequest accepts a login challenge for a subject.
	AcceptLoginRequest(ctx context.Context, challenge string, accept *AcceptLoginRequest) (*CompletedRequest, error)

	// GetConsentRequest fetches a pending consent challenge.
	GetConsentRequest(ctx context.Context, challenge string) (*ConsentRequest, error)

	// AcceptConsentRequest accepts a consent challenge with granted
	// scopes and derived claims.
	AcceptConsentRequest(ctx context.Context, challenge string, accept *AcceptConsentRequest) (*CompletedRequest, error)

	// RejectConsentRequest rejects a consent challenge.
	RejectConsentRequest(ctx context.Context, challenge string, reject *RejectRequest) (*CompletedRequest, error)
}

// Config configures the Hydra admin client.
type Config struct {
	// AdminURL is the base URL of the Hydra admin endpoint,
	// e.g. http://hydra:4445.
	AdminURL string

	// Timeout bounds each admin API call (default: 10s).
	Timeout time.Duration

	// HTTPClient overrides the default HTTP client. Mainly for tests.
	HTTPClient *http.Client
}

// Client is a thin typed client over the admin API. Connections are pooled
// by the underlying http.Client and checked out per request.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

var _ AdminAPI = (*Client)(nil)

// NewClient creates a new Hydra admin client.
func NewClient(config Config) (*Client, error) {
	if config.AdminURL == "" {
		return nil, fmt.Errorf("hydra admin url is required")
	}
	if _, err := url.Parse(config.AdminURL); err != nil {
		return nil, fmt.Errorf("invalid hydra admin url: %w", err)
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		timeout := config.Timeout
		if timeout == 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL:    strings.TrimSuffix(config.AdminURL, "/"),
		httpClient: httpClient,
	}, nil
}

// GetLoginRequest fetches a pending login challenge.
func (c *Client) GetLoginRequest(ctx context.Context, challenge string) (*LoginRequest, error) {
	var out LoginRequest
	err := c.do(ctx, http.MethodGet, "/oauth2/auth/requests/login",
		url.Values{"login_challenge": {challenge}}, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AcceptLoginRequest accepts a login challenge for a subject.
func (c *Client) AcceptLoginRequest(ctx context.Context, challenge string, accept *AcceptLoginRequest) (*CompletedRequest, error) {
	var out CompletedRequest
	err := c.do(ctx, http.MethodPut, "/oauth2/auth/requests/login/accept",
		url.Values{"login_challenge": {challenge}}, accept, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// GetConsentRequest fetches a pending consent challenge.
func (c *Client) GetConsentRequest(ctx context.Context, challenge string) (*ConsentRequest, error) {
	var out ConsentRequest
	err := c.do(ctx, http.MethodGet, "/oauth2/auth/requests/consent",
		url.Values{"consent_challenge": {challenge}}, nil, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// AcceptConsentRequest accepts a consent challenge.
func (c *Client) AcceptConsentRequest(ctx context.Context, challenge string, accept *AcceptConsentRequest) (*CompletedRequest, error) {
	var out CompletedRequest
	err := c.do(ctx, http.MethodPut, "/oauth2/auth/requests/consent/accept",
		url.Values{"consent_challenge": {challenge}}, accept, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// RejectConsentRequest rejects a consent challenge.
func (c *Client) RejectConsentRequest(ctx context.Context, challenge string, reject *RejectRequest) (*CompletedRequest, error) {
	var out CompletedRequest
	err := c.do(ctx, http.MethodPut, "/oauth2/auth/requests/consent/reject",
		url.Values{"consent_challenge": {challenge}}, reject, &out)
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// do performs a single admin API request and decodes the JSON response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out interface{}) error {
	op := method + " " + path

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("hydra: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	reqURL := c.baseURL + path
	if len(query) > 0 {
		reqURL += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, reqURL, reqBody)
	if err != nil {
		return fmt.Errorf("hydra: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("hydra: %s: %w", op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{
			StatusCode: resp.StatusCode,
			Op:         op,
			Body:       string(data),
		}
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("hydra: decode response: %w", err)
		}
	}
	return nil
}
