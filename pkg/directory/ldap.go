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

package directory

import (
	"context"
	"fmt"
	"time"

	ldap "github.com/go-ldap/ldap/v3"
)

// LDAPConfig configures the LDAP directory client.
type LDAPConfig struct {
	// URL is the LDAP server URL (ldap:// or ldaps://).
	URL string

	// BindDN and BindPassword are the service credentials used for
	// searches and modifications. User password checks bind as the
	// user instead.
	BindDN       string
	BindPassword string

	// UserBaseDN is the base DN user entries live under. User DNs are
	// formed as uid=<username>,<UserBaseDN>.
	UserBaseDN string

	// GroupBaseDN is the base DN searched for group membership.
	GroupBaseDN string
}

// LDAPDirectory implements Directory against an LDAP server. A connection
// is dialed per operation and closed on every exit path; go-ldap does not
// pool, and a per-request connection mirrors how the bridge scopes all of
// its external resources.
type LDAPDirectory struct {
	config LDAPConfig
}

// compile-time interface check
var _ Directory = (*LDAPDirectory)(nil)

// NewLDAP creates a new LDAP directory client.
func NewLDAP(config LDAPConfig) (*LDAPDirectory, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("ldap url is required")
	}
	if config.UserBaseDN == "" {
		return nil, fmt.Errorf("ldap user base dn is required")
	}
	return &LDAPDirectory{config: config}, nil
}

// UserDN returns the distinguished name for the given username.
func (d *LDAPDirectory) UserDN(username string) string {
	return fmt.Sprintf("uid=%s,%s", ldap.EscapeDN(username), d.config.UserBaseDN)
}

func (d *LDAPDirectory) dial(ctx context.Context) (*ldap.Conn, error) {
	conn, err := ldap.DialURL(d.config.URL)
	if err != nil {
		return nil, fmt.Errorf("dial ldap: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetTimeout(time.Until(deadline))
	}
	return conn, nil
}

// dialService dials and binds with the service credentials.
func (d *LDAPDirectory) dialService(ctx context.Context) (*ldap.Conn, error) {
	conn, err := d.dial(ctx)
	if err != nil {
		return nil, err
	}
	if d.config.BindDN != "" {
		if err := conn.Bind(d.config.BindDN, d.config.BindPassword); err != nil {
			conn.Close()
			return nil, fmt.Errorf("service bind: %w", err)
		}
	}
	return conn, nil
}

// Bind verifies the user's password with a simple bind.
func (d *LDAPDirectory) Bind(ctx context.Context, username, password string) (bool, error) {
	conn, err := d.dial(ctx)
	if err != nil {
		return false, err
	}
	defer conn.Close()

	err = conn.Bind(d.UserDN(username), password)
	if err == nil {
		return true, nil
	}
	if ldap.IsErrorWithCode(err, ldap.LDAPResultInvalidCredentials) {
		return false, nil
	}
	return false, fmt.Errorf("user bind: %w", err)
}

// UserAttributes returns all attributes of the user's entry.
func (d *LDAPDirectory) UserAttributes(ctx context.Context, username string) (map[string][]string, error) {
	conn, err := d.dialService(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	req := ldap.NewSearchRequest(
		d.UserDN(username),
		ldap.ScopeBaseObject,
		ldap.NeverDerefAliases,
		0, 0, false,
		"(objectClass=inetOrgPerson)",
		[]string{"*"},
		nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("search user: %w", err)
	}
	if len(result.Entries) == 0 {
		return nil, ErrUserNotFound
	}

	attrs := make(map[string][]string)
	for _, attr := range result.Entries[0].Attributes {
		attrs[attr.Name] = attr.Values
	}
	return attrs, nil
}

// UserGroups returns the DNs of groups that list the user as a member.
func (d *LDAPDirectory) UserGroups(ctx context.Context, username string) ([]string, error) {
	conn, err := d.dialService(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	baseDN := d.config.GroupBaseDN
	if baseDN == "" {
		baseDN = d.config.UserBaseDN
	}

	filter := fmt.Sprintf(
		"(|(member=%s)(uniqueMember=%s))",
		ldap.EscapeFilter(d.UserDN(username)),
		ldap.EscapeFilter(d.UserDN(username)),
	)
	req := ldap.NewSearchRequest(
		baseDN,
		ldap.ScopeWholeSubtree,
		ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		[]string{"dn"},
		nil,
	)

	result, err := conn.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search groups: %w", err)
	}

	groups := make([]string, 0, len(result.Entries))
	for _, entry := range result.Entries {
		groups = append(groups, entry.DN)
	}
	return groups, nil
}

// ModifyUserAttributes replaces the given attributes on the user's entry.
func (d *LDAPDirectory) ModifyUserAttributes(ctx context.Context, username string, changes map[string]string) error {
	conn, err := d.dialService(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	req := ldap.NewModifyRequest(d.UserDN(username), nil)
	for attr, value := range changes {
		req.Replace(attr, []string{value})
	}

	if err := conn.Modify(req); err != nil {
		if ldap.IsErrorWithCode(err, ldap.LDAPResultNoSuchObject) {
			return ErrUserNotFound
		}
		return fmt.Errorf("modify user: %w", err)
	}
	return nil
}
