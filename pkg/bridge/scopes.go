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

package bridge

// scopeClaims maps an OAuth2 scope to the id_token claims it discloses and
// the directory attribute each claim is read from.
var scopeClaims = map[string]map[string]string{
	"email": {
		"email": "mail",
	},
	"profile": {
		"name":               "displayName",
		"given_name":         "cn",
		"family_name":        "sn",
		"preferred_username": "uid",
	},
}

// recognizedScopes filters the requested scopes down to those the bridge
// knows how to satisfy. Order is preserved.
func recognizedScopes(requested []string) []string {
	recognized := make([]string, 0, len(requested))
	for _, scope := range requested {
		if _, ok := scopeClaims[scope]; ok {
			recognized = append(recognized, scope)
		}
	}
	return recognized
}

// claimsForScopes derives id_token claims from the granted scopes and the
// subject's directory attributes. A claim whose attribute is absent from the
// entry degrades to the empty string rather than being dropped.
func claimsForScopes(granted []string, attrs map[string][]string) map[string]string {
	claims := make(map[string]string)
	for _, scope := range granted {
		mapping, ok := scopeClaims[scope]
		if !ok {
			continue
		}
		for claim, attr := range mapping {
			value := ""
			if values := attrs[attr]; len(values) > 0 {
				value = values[0]
			}
			claims[claim] = value
		}
	}
	return claims
}
