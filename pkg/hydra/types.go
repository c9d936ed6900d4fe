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

package hydra

import "time"

// OAuth2Client is the subset of the authorization server's client record
// the bridge displays on the consent screen.
type OAuth2Client struct {
	ClientID   string `json:"client_id"`
	ClientName string `json:"client_name"`
	ClientURI  string `json:"client_uri"`
	LogoURI    string `json:"logo_uri"`
}

// LoginRequest is the authorization server's view of a pending login
// challenge.
type LoginRequest struct {
	Challenge      string       `json:"challenge"`
	RequestedScope []string     `json:"requested_scope"`
	Skip           bool         `json:"skip"`
	Subject        string       `json:"subject"`
	Client         OAuth2Client `json:"client"`
	RequestURL     string       `json:"request_url"`
}

// AcceptLoginRequest is the payload for accepting a login challenge.
type AcceptLoginRequest struct {
	Subject     string `json:"subject"`
	Remember    bool   `json:"remember,omitempty"`
	RememberFor int64  `json:"remember_for,omitempty"`
	ACR         string `json:"acr,omitempty"`
}

// ConsentRequest is the authorization server's view of a pending consent
// challenge.
type ConsentRequest struct {
	Challenge                    string       `json:"challenge"`
	RequestedScope               []string     `json:"requested_scope"`
	RequestedAccessTokenAudience []string     `json:"requested_access_token_audience"`
	Skip                         bool         `json:"skip"`
	Subject                      string       `json:"subject"`
	Client                       OAuth2Client `json:"client"`
}

// ConsentSession carries the claims disclosed to the client. IDToken claims
// end up in the id_token; AccessToken claims in the access token
// introspection response.
type ConsentSession struct {
	IDToken     map[string]string `json:"id_token,omitempty"`
	AccessToken map[string]string `json:"access_token,omitempty"`
}

// AcceptConsentRequest is the payload for accepting a consent challenge.
type AcceptConsentRequest struct {
	GrantScope               []string        `json:"grant_scope"`
	GrantAccessTokenAudience []string        `json:"grant_access_token_audience,omitempty"`
	Remember                 bool            `json:"remember"`
	RememberFor              int64           `json:"remember_for"`
	HandledAt                time.Time       `json:"handled_at"`
	Session                  *ConsentSession `json:"session,omitempty"`
}

// RejectRequest is the payload for rejecting a login or consent challenge.
type RejectRequest struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// CompletedRequest is the authorization server's answer to an accept or
// reject call. RedirectTo must be passed back to the browser verbatim.
type CompletedRequest struct {
	RedirectTo string `json:"redirect_to"`
}
