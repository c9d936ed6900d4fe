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

// Package directory provides the LDAP directory collaborator. The bridge
// consumes it read-only except for profile self-edits.
package directory

import (
	"context"
	"errors"
)

var (
	// ErrUserNotFound is returned when a user entry cannot be located.
	ErrUserNotFound = errors.New("directory: user not found")
)

// Directory is the interface the bridge consumes for all directory access.
type Directory interface {
	// Bind verifies the user's password with a simple bind as
	// uid=<username>,<user base dn>. An invalid-credentials result is
	// reported as (false, nil); any other failure is an error.
	Bind(ctx context.Context, username, password string) (bool, error)

	// UserAttributes returns all attributes of the user's entry.
	// Returns ErrUserNotFound if the entry does not exist.
	UserAttributes(ctx context.Context, username string) (map[string][]string, error)

	// UserGroups returns the DNs of the groups the user is a member of.
	UserGroups(ctx context.Context, username string) ([]string, error)

	// ModifyUserAttributes replaces the given attributes on the user's
	// entry. Used by profile self-edit flows.
	ModifyUserAttributes(ctx context.Context, username string, changes map[string]string) error
}

// User is a directory entry projected onto the profile fields the bridge
// cares about. Absent attributes degrade to the empty string.
type User struct {
	Username  string `json:"username"`
	Name      string `json:"name"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
}

// UserFromAttributes builds a User from a raw attribute map.
func UserFromAttributes(username string, attrs map[string][]string) User {
	first := func(attr string) string {
		if values := attrs[attr]; len(values) > 0 {
			return values[0]
		}
		return ""
	}
	return User{
		Username:  username,
		Name:      first("displayName"),
		FirstName: first("cn"),
		LastName:  first("sn"),
		Email:     first("mail"),
	}
}
