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
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jeremyhahn/go-idbridge/pkg/storage"
)

const keyPrefix = "session/"

// Manager issues and verifies session tokens and tracks step completion.
type Manager struct {
	store  storage.Backend
	secret []byte
	ttl    time.Duration
}

// ManagerParams contains dependencies for creating a session Manager.
type ManagerParams struct {
	// Store is the ephemeral key-value backend (required).
	Store storage.Backend

	// Secret is the HMAC signing secret (required). Sourced from
	// configuration; the manager refuses to run without one.
	Secret []byte

	// TTL is the session lifetime (default: 12h). The TTL is preserved,
	// not refreshed, on step completion.
	TTL time.Duration
}

// NewManager creates a new session Manager.
func NewManager(params ManagerParams) (*Manager, error) {
	if params.Store == nil {
		return nil, errors.New("session: store is required")
	}
	if len(params.Secret) == 0 {
		return nil, ErrSecretRequired
	}
	if params.TTL == 0 {
		params.TTL = 12 * time.Hour
	}
	return &Manager{
		store:  params.Store,
		secret: params.Secret,
		ttl:    params.TTL,
	}, nil
}

// Create persists a new session for the given username and returns it with
// the signed token for cookie placement. The session is fully authenticated
// iff no steps are missing.
func (m *Manager) Create(ctx context.Context, username string, completed, missing []StepKind) (*Session, SignedToken, error) {
	id, err := newSessionID()
	if err != nil {
		return nil, "", wrapError("generate id", err)
	}

	sess := &Session{
		ID:                 id,
		Username:           username,
		CreatedAt:          time.Now().UTC(),
		FullyAuthenticated: len(missing) == 0,
		CompletedSteps:     append([]StepKind(nil), completed...),
		MissingSteps:       append([]StepKind(nil), missing...),
	}

	data, err := json.Marshal(sess)
	if err != nil {
		return nil, "", wrapError("marshal", err)
	}
	if err := m.store.Set(ctx, keyPrefix+id, data, m.ttl); err != nil {
		return nil, "", wrapError("persist", err)
	}

	return sess, encodeToken(m.secret, id), nil
}

// Resolve verifies a token and loads its session. A malformed or tampered
// token, a store miss, or an undecodable record all yield (nil, nil): the
// request is simply anonymous. Only infrastructure failures return an error.
func (m *Manager) Resolve(ctx context.Context, token SignedToken) (*Session, error) {
	id, ok := verifyToken(m.secret, token)
	if !ok {
		return nil, nil
	}

	data, err := m.store.Get(ctx, keyPrefix+id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapError("load", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, nil
	}
	sess.ID = id
	return &sess, nil
}

// CompleteStep marks the given step as completed on the session and
// persists the result under the same id. Completing an already-completed
// step is a no-op. The read-modify-write runs transactionally on the store
// so concurrent completions of different steps cannot lose updates.
func (m *Manager) CompleteStep(ctx context.Context, sess *Session, step StepKind) (*Session, error) {
	var updated Session

	err := m.store.Update(ctx, keyPrefix+sess.ID, storage.KeepTTL, func(current []byte) ([]byte, error) {
		if err := json.Unmarshal(current, &updated); err != nil {
			return nil, err
		}
		updated.ID = sess.ID
		updated.completeStep(step)
		return json.Marshal(&updated)
	})
	if errors.Is(err, storage.ErrNotFound) {
		return nil, wrapError("complete step", ErrSessionNotFound)
	}
	if errors.Is(err, storage.ErrConflict) {
		return nil, wrapError("complete step", ErrConflict)
	}
	if err != nil {
		return nil, wrapError("complete step", err)
	}

	return &updated, nil
}

// Delete removes the session record. Used on logout; deleting an already
// expired session is not an error.
func (m *Manager) Delete(ctx context.Context, id string) error {
	err := m.store.Delete(ctx, keyPrefix+id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	return wrapError("delete", err)
}
