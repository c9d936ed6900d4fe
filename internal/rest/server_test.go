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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeremyhahn/go-idbridge/pkg/adapters/logger"
	"github.com/jeremyhahn/go-idbridge/pkg/bridge"
	"github.com/jeremyhahn/go-idbridge/pkg/credential"
	"github.com/jeremyhahn/go-idbridge/pkg/directory/directorytest"
	"github.com/jeremyhahn/go-idbridge/pkg/hydra"
	"github.com/jeremyhahn/go-idbridge/pkg/hydra/hydratest"
	"github.com/jeremyhahn/go-idbridge/pkg/ratelimit"
	"github.com/jeremyhahn/go-idbridge/pkg/session"
	"github.com/jeremyhahn/go-idbridge/pkg/storage"
)

type testEnv struct {
	server      *Server
	sessions    *session.Manager
	credentials *credential.Manager
	admin       *hydratest.Fake
	directory   *directorytest.Fake
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := storage.NewMemory()
	sessions, err := session.NewManager(session.ManagerParams{
		Store:  store,
		Secret: []byte("test-secret"),
	})
	require.NoError(t, err)

	credentials, err := credential.NewManager(credential.ManagerParams{
		Store: store,
		Config: &credential.Config{
			RPID:          "example.com",
			RPDisplayName: "Example",
			RPOrigins:     []string{"https://example.com"},
		},
	})
	require.NoError(t, err)

	admin := hydratest.New()
	dir := directorytest.New()

	idp, err := bridge.New(bridge.Params{
		Admin:     admin,
		Directory: dir,
	})
	require.NoError(t, err)

	server, err := NewServer(&Config{
		Sessions:     sessions,
		Credentials:  credentials,
		Bridge:       idp,
		Directory:    dir,
		Logger:       logger.Noop(),
		AdminGroupDN: "cn=admins,ou=groups,dc=example,dc=com",
	})
	require.NoError(t, err)

	return &testEnv{
		server:      server,
		sessions:    sessions,
		credentials: credentials,
		admin:       admin,
		directory:   dir,
	}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == sessionCookieName {
			return cookie
		}
	}
	t.Fatal("no session cookie in response")
	return nil
}

// login authenticates alice with a password and returns the session cookie.
func (e *testEnv) login(t *testing.T) *http.Cookie {
	t.Helper()
	rec := e.request(t, http.MethodPost, "/api/v1/login", LoginRequest{
		Username: "alice",
		Password: "secret",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return sessionCookie(t, rec)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)
	rec := env.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_NoSecondFactor(t *testing.T) {
	env := newTestEnv(t)
	env.directory.AddUser("alice", "secret", nil)

	rec := env.request(t, http.MethodPost, "/api/v1/login", LoginRequest{
		Username: "alice",
		Password: "secret",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[LoginResponse](t, rec)
	assert.Equal(t, "ok", resp.Status)
	assert.Empty(t, resp.MissingSteps)

	cookie := sessionCookie(t, rec)
	assert.True(t, cookie.HttpOnly)
	assert.True(t, cookie.Secure)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	// The cookie admits the session to the fully-authenticated surface.
	rec = env.request(t, http.MethodGet, "/api/v1/credentials", nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.directory.AddUser("alice", "secret", nil)

	rec := env.request(t, http.MethodPost, "/api/v1/login", LoginRequest{
		Username: "alice",
		Password: "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_AcceptsChallengeWhenFullyAuthenticated(t *testing.T) {
	env := newTestEnv(t)
	env.directory.AddUser("alice", "secret", nil)
	env.admin.LoginRequests["c1"] = &hydra.LoginRequest{Challenge: "c1"}

	rec := env.request(t, http.MethodPost, "/api/v1/login", LoginRequest{
		Username:       "alice",
		Password:       "secret",
		LoginChallenge: "c1",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[LoginResponse](t, rec)
	assert.Equal(t, env.admin.RedirectTo, resp.RedirectTo)
	assert.Equal(t, "alice", env.admin.AcceptedLogins["c1"].Subject)
}

func TestLogin_TOTPStepUp(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	env.directory.AddUser("alice", "secret", nil)

	// Enroll a TOTP credential out of band.
	enrollment, err := env.credentials.BeginTOTP(ctx, "alice", "phone")
	require.NoError(t, err)
	code, err := totp.GenerateCodeCustom(enrollment.Secret, time.Now().UTC(), totp.ValidateOpts{
		Period: 30, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	require.NoError(t, env.credentials.ConfirmTOTP(ctx, enrollment.ID, "alice", code))

	rec := env.request(t, http.MethodPost, "/api/v1/login", LoginRequest{
		Username: "alice",
		Password: "secret",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	resp := decodeBody[LoginResponse](t, rec)
	assert.Equal(t, "mfa_required", resp.Status)
	assert.Equal(t, []session.StepKind{session.StepTOTP}, resp.MissingSteps)
	cookie := sessionCookie(t, rec)

	// A partial session is rejected from the fully-authenticated surface
	// with the remaining steps.
	rec = env.request(t, http.MethodGet, "/api/v1/credentials", nil, cookie)
	require.Equal(t, http.StatusForbidden, rec.Code)
	denied := decodeBody[LoginResponse](t, rec)
	assert.Equal(t, "mfa_required", denied.Status)

	// A wrong code is an opaque forbidden outcome.
	rec = env.request(t, http.MethodPost, "/api/v1/mfa/totp", TOTPVerifyRequest{Code: "000000"}, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// The correct code completes the step.
	code, err = totp.GenerateCodeCustom(enrollment.Secret, time.Now().UTC(), totp.ValidateOpts{
		Period: 30, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	rec = env.request(t, http.MethodPost, "/api/v1/mfa/totp", TOTPVerifyRequest{Code: code}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	stepped := decodeBody[LoginResponse](t, rec)
	assert.Equal(t, "ok", stepped.Status)

	rec = env.request(t, http.MethodGet, "/api/v1/credentials", nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGuards_Anonymous(t *testing.T) {
	env := newTestEnv(t)

	rec := env.request(t, http.MethodGet, "/api/v1/credentials", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// The guard leaves a redirect cookie pointing back at the request.
	var redirect *http.Cookie
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == redirectCookieName {
			redirect = cookie
		}
	}
	require.NotNil(t, redirect)
	assert.Equal(t, "/api/v1/credentials", redirect.Value)

	rec = env.request(t, http.MethodPost, "/api/v1/mfa/totp", TOTPVerifyRequest{Code: "123456"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGuards_TamperedCookieIsAnonymous(t *testing.T) {
	env := newTestEnv(t)
	env.directory.AddUser("alice", "secret", nil)
	cookie := env.login(t)

	tampered := *cookie
	last := tampered.Value[len(tampered.Value)-1]
	flipped := byte('0')
	if last == flipped {
		flipped = '1'
	}
	tampered.Value = tampered.Value[:len(tampered.Value)-1] + string(flipped)

	rec := env.request(t, http.MethodGet, "/api/v1/credentials", nil, &tampered)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	env.directory.AddUser("alice", "secret", nil)
	cookie := env.login(t)

	rec := env.request(t, http.MethodPost, "/api/v1/logout", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	// The session is gone; the old cookie no longer authenticates.
	rec = env.request(t, http.MethodGet, "/api/v1/credentials", nil, cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBeginLogin_Skip(t *testing.T) {
	env := newTestEnv(t)
	env.admin.LoginRequests["c1"] = &hydra.LoginRequest{
		Challenge: "c1",
		Skip:      true,
		Subject:   "alice",
	}

	// No local session needed for a remembered subject.
	rec := env.request(t, http.MethodGet, "/api/v1/login?login_challenge=c1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[RedirectResponse](t, rec)
	assert.Equal(t, env.admin.RedirectTo, resp.RedirectTo)
}

func TestBeginLogin_PromptAndMissingChallenge(t *testing.T) {
	env := newTestEnv(t)
	env.admin.LoginRequests["c1"] = &hydra.LoginRequest{
		Challenge:      "c1",
		RequestedScope: []string{"openid", "email"},
		Client:         hydra.OAuth2Client{ClientID: "app", ClientName: "My App"},
	}

	rec := env.request(t, http.MethodGet, "/api/v1/login?login_challenge=c1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	prompt := decodeBody[LoginPromptResponse](t, rec)
	assert.Equal(t, "authentication_required", prompt.Status)
	assert.Equal(t, "My App", prompt.ClientName)

	rec = env.request(t, http.MethodGet, "/api/v1/login", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestConsentFlow(t *testing.T) {
	env := newTestEnv(t)
	env.directory.AddUser("alice", "secret", map[string][]string{
		"mail": {"alice@example.com"},
	})
	cookie := env.login(t)

	env.admin.ConsentRequests["c2"] = &hydra.ConsentRequest{
		Challenge:      "c2",
		Subject:        "alice",
		RequestedScope: []string{"openid", "email"},
		Client:         hydra.OAuth2Client{ClientID: "app"},
	}

	rec := env.request(t, http.MethodGet, "/api/v1/consent?consent_challenge=c2", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	prompt := decodeBody[ConsentPromptResponse](t, rec)
	assert.Equal(t, []string{"email"}, prompt.RequestedScope)

	rec = env.request(t, http.MethodPost, "/api/v1/consent/accept", ConsentDecisionRequest{
		ConsentChallenge: "c2",
		GrantScope:       []string{"email"},
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	accepted := env.admin.AcceptedConsents["c2"]
	require.NotNil(t, accepted)
	assert.Equal(t, map[string]string{"email": "alice@example.com"}, accepted.Session.IDToken)
}

func TestConsentReject(t *testing.T) {
	env := newTestEnv(t)
	env.directory.AddUser("alice", "secret", nil)
	cookie := env.login(t)

	env.admin.ConsentRequests["c2"] = &hydra.ConsentRequest{Challenge: "c2", Subject: "alice"}

	rec := env.request(t, http.MethodPost, "/api/v1/consent/reject", ConsentDecisionRequest{
		ConsentChallenge: "c2",
	}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "access_denied", env.admin.RejectedConsents["c2"].Error)
}

func TestUpstreamErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	env.directory.AddUser("alice", "secret", nil)
	cookie := env.login(t)

	// Unknown challenge: the 404 from the authorization server surfaces
	// as a bad request.
	rec := env.request(t, http.MethodGet, "/api/v1/consent?consent_challenge=nope", nil, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// A 5xx surfaces as service unavailable without upstream detail.
	env.admin.Err = &hydra.StatusError{StatusCode: http.StatusInternalServerError, Op: "GET"}
	rec = env.request(t, http.MethodGet, "/api/v1/consent?consent_challenge=c2", nil, cookie)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeBody[ErrorResponse](t, rec)
	assert.Equal(t, ErrServiceUnavailable.Error(), resp.Error)
}

func TestTOTPEnrollmentFlow(t *testing.T) {
	env := newTestEnv(t)
	env.directory.AddUser("alice", "secret", nil)
	cookie := env.login(t)

	rec := env.request(t, http.MethodPost, "/api/v1/credentials/totp/begin",
		TOTPBeginRequest{Label: "phone"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	enrollment := decodeBody[TOTPEnrollResponse](t, rec)
	assert.NotEmpty(t, enrollment.Secret)

	// An unconfirmed enrollment is not listed.
	rec = env.request(t, http.MethodGet, "/api/v1/credentials", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeBody[[]CredentialResponse](t, rec))

	code, err := totp.GenerateCodeCustom(enrollment.Secret, time.Now().UTC(), totp.ValidateOpts{
		Period: 30, Digits: otp.DigitsSix, Algorithm: otp.AlgorithmSHA1,
	})
	require.NoError(t, err)
	rec = env.request(t, http.MethodPost, "/api/v1/credentials/totp/confirm",
		TOTPConfirmRequest{ID: enrollment.ID, Code: code}, cookie)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.request(t, http.MethodGet, "/api/v1/credentials", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decodeBody[[]CredentialResponse](t, rec)
	require.Len(t, listed, 1)
	assert.Equal(t, "totp_credential", listed[0].Kind)
	assert.Equal(t, "phone", listed[0].Label)

	rec = env.request(t, http.MethodDelete, "/api/v1/credentials/"+listed[0].ID.String(), nil, cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProfile(t *testing.T) {
	env := newTestEnv(t)
	env.directory.AddUser("alice", "secret", map[string][]string{
		"displayName": {"Alice Example"},
		"cn":          {"Alice"},
		"sn":          {"Example"},
		"mail":        {"alice@example.com"},
	})
	env.directory.Groups["alice"] = []string{"cn=admins,ou=groups,dc=example,dc=com"}
	cookie := env.login(t)

	rec := env.request(t, http.MethodGet, "/api/v1/profile", nil, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := decodeBody[ProfileResponse](t, rec)
	assert.Equal(t, "Alice Example", profile.Name)
	assert.Equal(t, "alice@example.com", profile.Email)
	assert.True(t, profile.Admin)

	rec = env.request(t, http.MethodPut, "/api/v1/profile",
		ProfileUpdateRequest{Email: "new@example.com"}, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"new@example.com"}, env.directory.Attributes["alice"]["mail"])
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t)
	env.directory.AddUser("alice", "secret", nil)

	server, err := NewServer(&Config{
		Sessions:    env.sessions,
		Credentials: env.credentials,
		Bridge:      env.server.handlers.bridge,
		Directory:   env.directory,
		Logger:      logger.Noop(),
		RateLimit: &ratelimit.Config{
			Enabled:           true,
			RequestsPerMinute: 60,
			Burst:             2,
		},
	})
	require.NoError(t, err)

	do := func() int {
		body, err := json.Marshal(LoginRequest{Username: "alice", Password: "wrong"})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/login", bytes.NewReader(body))
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusUnauthorized, do())
	assert.Equal(t, http.StatusUnauthorized, do())
	assert.Equal(t, http.StatusTooManyRequests, do())

	// Authenticated surfaces are not throttled.
	rec := env.request(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
