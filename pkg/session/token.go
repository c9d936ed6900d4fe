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

package session

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

// SignedToken is the cookie value: the session id followed by the
// hex-encoded HMAC-SHA256 tag over the id. The tag authenticates only the
// id; the session contents live server-side.
type SignedToken string

const (
	sessionIDLength  = 32
	sessionIDCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	tokenSeparator   = "."
)

// newSessionID generates a fresh 32-character alphanumeric session id with
// a uniform draw over the charset.
func newSessionID() (string, error) {
	id := make([]byte, sessionIDLength)

	// Rejection sampling keeps the draw uniform: 62 does not divide 256.
	const limit = 256 - (256 % len(sessionIDCharset))
	buf := make([]byte, 1)
	for i := 0; i < sessionIDLength; {
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		if int(buf[0]) >= limit {
			continue
		}
		id[i] = sessionIDCharset[int(buf[0])%len(sessionIDCharset)]
		i++
	}
	return string(id), nil
}

// signSessionID computes the HMAC-SHA256 tag over the session id.
func signSessionID(secret []byte, id string) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(id))
	return mac.Sum(nil)
}

// encodeToken builds the cookie value for a session id.
func encodeToken(secret []byte, id string) SignedToken {
	return SignedToken(id + tokenSeparator + hex.EncodeToString(signSessionID(secret, id)))
}

// verifyToken splits and authenticates a token, returning the session id.
// Any malformed or tampered token yields ok=false; the caller treats that
// as an anonymous request, never as an error.
func verifyToken(secret []byte, token SignedToken) (id string, ok bool) {
	id, hexTag, found := strings.Cut(string(token), tokenSeparator)
	if !found || id == "" {
		return "", false
	}

	// Compare the encoded form so the tag has exactly one valid spelling;
	// hex decoding would accept upper- and lowercase alike.
	want := hex.EncodeToString(signSessionID(secret, id))
	if subtle.ConstantTimeCompare([]byte(hexTag), []byte(want)) != 1 {
		return "", false
	}
	return id, true
}
