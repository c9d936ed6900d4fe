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
	"time"

	"github.com/jeremyhahn/go-idbridge/pkg/session"
)

const (
	// sessionCookieName carries the signed session token.
	sessionCookieName = "idbridge_session"

	// redirectCookieName carries the post-login redirect target. Plaintext
	// and not trust-bearing: it only restores the originating URL.
	redirectCookieName = "idbridge_redirect"
)

func (h *HandlerContext) setSessionCookie(w http.ResponseWriter, token session.SignedToken, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    string(token),
		Path:     "/",
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *HandlerContext) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func sessionToken(r *http.Request) session.SignedToken {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		return ""
	}
	return session.SignedToken(cookie.Value)
}

func setRedirectCookie(w http.ResponseWriter, target string) {
	http.SetCookie(w, &http.Cookie{
		Name:     redirectCookieName,
		Value:    target,
		Path:     "/",
		MaxAge:   int((10 * time.Minute).Seconds()),
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearRedirectCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     redirectCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})
}

// consumeRedirectCookie returns the stored redirect target, clearing the
// cookie. Empty when none was set.
func consumeRedirectCookie(w http.ResponseWriter, r *http.Request) string {
	cookie, err := r.Cookie(redirectCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	clearRedirectCookie(w)
	return cookie.Value
}
