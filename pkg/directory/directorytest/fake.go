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

// Package directorytest provides an in-memory Directory fake for tests.
package directorytest

import (
	"context"
	"sync"

	"github.com/jeremyhahn/go-idbridge/pkg/directory"
)

// Fake is an in-memory directory.Directory implementation.
type Fake struct {
	mu sync.Mutex

	// Passwords maps username to password for Bind.
	Passwords map[string]string

	// Attributes maps username to its attribute map.
	Attributes map[string]map[string][]string

	// Groups maps username to group DNs.
	Groups map[string][]string

	// Err, when set, is returned by every operation.
	Err error
}

var _ directory.Directory = (*Fake)(nil)

// New creates an empty fake directory.
func New() *Fake {
	return &Fake{
		Passwords:  make(map[string]string),
		Attributes: make(map[string]map[string][]string),
		Groups:     make(map[string][]string),
	}
}

// AddUser registers a user with a password and attributes.
func (f *Fake) AddUser(username, password string, attrs map[string][]string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Passwords[username] = password
	if attrs == nil {
		attrs = make(map[string][]string)
	}
	f.Attributes[username] = attrs
}

// Bind verifies the user's password.
func (f *Fake) Bind(ctx context.Context, username, password string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return false, f.Err
	}
	stored, ok := f.Passwords[username]
	return ok && password != "" && stored == password, nil
}

// UserAttributes returns the registered attribute map.
func (f *Fake) UserAttributes(ctx context.Context, username string) (map[string][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	attrs, ok := f.Attributes[username]
	if !ok {
		return nil, directory.ErrUserNotFound
	}
	return attrs, nil
}

// UserGroups returns the registered group DNs.
func (f *Fake) UserGroups(ctx context.Context, username string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	return f.Groups[username], nil
}

// ModifyUserAttributes replaces attributes on the registered user.
func (f *Fake) ModifyUserAttributes(ctx context.Context, username string, changes map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	attrs, ok := f.Attributes[username]
	if !ok {
		return directory.ErrUserNotFound
	}
	for attr, value := range changes {
		attrs[attr] = []string{value}
	}
	return nil
}
