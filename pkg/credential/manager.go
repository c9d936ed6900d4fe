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

package credential

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-idbridge/pkg/storage"
)

const keyPrefix = "cred/"

// Config holds the credential manager configuration.
type Config struct {
	// RPID is the WebAuthn Relying Party ID (required), e.g. the bridge's
	// public hostname.
	RPID string

	// RPDisplayName is the human-readable Relying Party name (required).
	RPDisplayName string

	// RPOrigins are the allowed WebAuthn origins (required).
	RPOrigins []string

	// ChallengeTTL is the lifetime of a pending challenge record
	// (default: 5 minutes).
	ChallengeTTL time.Duration

	// MaxRegistrationAttempts bounds failed verifications against one
	// registration challenge before the row is discarded (default: 3).
	MaxRegistrationAttempts int

	// TOTPIssuer is the issuer name embedded in enrollment URLs
	// (default: RPDisplayName).
	TOTPIssuer string

	// TOTPAlgorithm selects the HMAC algorithm for generated secrets:
	// SHA1 (default), SHA256 or SHA512.
	TOTPAlgorithm string

	// TOTPDigits is the code length (default: 6).
	TOTPDigits int

	// TOTPSkew is the number of adjacent periods accepted (default: 1).
	TOTPSkew uint
}

// SetDefaults fills in default values.
func (c *Config) SetDefaults() {
	if c.ChallengeTTL == 0 {
		c.ChallengeTTL = 5 * time.Minute
	}
	if c.MaxRegistrationAttempts == 0 {
		c.MaxRegistrationAttempts = 3
	}
	if c.TOTPIssuer == "" {
		c.TOTPIssuer = c.RPDisplayName
	}
	if c.TOTPAlgorithm == "" {
		c.TOTPAlgorithm = "SHA1"
	}
	if c.TOTPDigits == 0 {
		c.TOTPDigits = 6
	}
	if c.TOTPSkew == 0 {
		c.TOTPSkew = 1
	}
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.RPID == "" {
		return fmt.Errorf("rp id is required")
	}
	if c.RPDisplayName == "" {
		return fmt.Errorf("rp display name is required")
	}
	if len(c.RPOrigins) == 0 {
		return fmt.Errorf("at least one rp origin is required")
	}
	if _, err := totpAlgorithm(c.TOTPAlgorithm); err != nil {
		return err
	}
	return nil
}

// Manager drives the credential challenge lifecycle against the ephemeral
// store.
type Manager struct {
	store    storage.Backend
	webauthn *webauthn.WebAuthn
	config   *Config
}

// ManagerParams contains dependencies for creating a credential Manager.
type ManagerParams struct {
	// Store is the ephemeral key-value backend (required).
	Store storage.Backend

	// Config is the credential configuration (required).
	Config *Config
}

// NewManager creates a new credential Manager.
func NewManager(params ManagerParams) (*Manager, error) {
	if params.Store == nil {
		return nil, errors.New("credential: store is required")
	}
	if params.Config == nil {
		return nil, errors.New("credential: config is required")
	}

	params.Config.SetDefaults()
	if err := params.Config.Validate(); err != nil {
		return nil, fmt.Errorf("credential: invalid config: %w", err)
	}

	wa, err := webauthn.New(&webauthn.Config{
		RPID:          params.Config.RPID,
		RPDisplayName: params.Config.RPDisplayName,
		RPOrigins:     params.Config.RPOrigins,
	})
	if err != nil {
		return nil, fmt.Errorf("credential: create webauthn instance: %w", err)
	}

	return &Manager{
		store:    params.Store,
		webauthn: wa,
		config:   params.Config,
	}, nil
}

func recordKey(username string, id uuid.UUID) string {
	return keyPrefix + username + "/" + id.String()
}

// getRecord loads a record filtered by (id, username, kind). A row whose
// username or discriminant does not match is reported as absent.
func (m *Manager) getRecord(ctx context.Context, username string, id uuid.UUID, kind Kind) (*Record, error) {
	data, err := m.store.Get(ctx, recordKey(username, id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, ErrRecordNotFound
	}
	if !rec.Kind.Valid() || rec.Username != username || rec.Kind != kind {
		return nil, ErrRecordNotFound
	}
	return &rec, nil
}

// saveRecord persists a record. Durable records are stored without expiry.
func (m *Manager) saveRecord(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	ttl := time.Duration(0)
	if rec.Temporary {
		ttl = m.config.ChallengeTTL
	}
	return m.store.Set(ctx, recordKey(rec.Username, rec.ID), data, ttl)
}

// userRecords loads every record for a user, skipping rows that fail the
// discriminant check.
func (m *Manager) userRecords(ctx context.Context, username string) ([]*Record, error) {
	keys, err := m.store.List(ctx, keyPrefix+username+"/")
	if err != nil {
		return nil, err
	}

	records := make([]*Record, 0, len(keys))
	for _, key := range keys {
		data, err := m.store.Get(ctx, key)
		if errors.Is(err, storage.ErrNotFound) {
			continue // expired between List and Get
		}
		if err != nil {
			return nil, err
		}
		var rec Record
		if err := json.Unmarshal(data, &rec); err != nil {
			continue
		}
		if !rec.Kind.Valid() || rec.Username != username {
			continue
		}
		records = append(records, &rec)
	}
	return records, nil
}

// durableRecords loads the user's durable credentials, optionally filtered
// by kind ("" for all).
func (m *Manager) durableRecords(ctx context.Context, username string, kind Kind) ([]*Record, error) {
	records, err := m.userRecords(ctx, username)
	if err != nil {
		return nil, err
	}
	durable := make([]*Record, 0, len(records))
	for _, rec := range records {
		if rec.Temporary || !rec.Kind.Durable() {
			continue
		}
		if kind != "" && rec.Kind != kind {
			continue
		}
		durable = append(durable, rec)
	}
	return durable, nil
}

// List returns the user's durable credentials.
func (m *Manager) List(ctx context.Context, username string) ([]*Record, error) {
	records, err := m.durableRecords(ctx, username, "")
	return records, wrapError("list", err)
}

// Delete removes a durable credential by (username, id). Pending challenge
// rows are not deletable through this path; they expire on their own.
func (m *Manager) Delete(ctx context.Context, username string, id uuid.UUID) error {
	data, err := m.store.Get(ctx, recordKey(username, id))
	if errors.Is(err, storage.ErrNotFound) {
		return wrapError("delete", ErrRecordNotFound)
	}
	if err != nil {
		return wrapError("delete", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return wrapError("delete", ErrRecordNotFound)
	}
	if rec.Username != username || !rec.Kind.Durable() {
		return wrapError("delete", ErrRecordNotFound)
	}

	if err := m.store.Delete(ctx, recordKey(username, id)); err != nil &&
		!errors.Is(err, storage.ErrNotFound) {
		return wrapError("delete", err)
	}
	return nil
}

// HasSecondFactor reports which step kinds the user has durable
// credentials for. Used at login to decide the missing MFA steps.
func (m *Manager) HasSecondFactor(ctx context.Context, username string) (hasWebAuthn, hasTOTP bool, err error) {
	records, err := m.durableRecords(ctx, username, "")
	if err != nil {
		return false, false, wrapError("has second factor", err)
	}
	for _, rec := range records {
		switch rec.Kind {
		case KindWebAuthnCredential:
			hasWebAuthn = true
		case KindTOTPCredential:
			hasTOTP = true
		}
	}
	return hasWebAuthn, hasTOTP, nil
}
