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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/webauthn"
	"github.com/google/uuid"

	"github.com/jeremyhahn/go-idbridge/pkg/storage"
)

// webauthnUser adapts a directory username and its durable credentials to
// the go-webauthn User interface. The username doubles as the user handle;
// the directory is the system of record for everything else.
type webauthnUser struct {
	username    string
	credentials []webauthn.Credential
}

func (u *webauthnUser) WebAuthnID() []byte                         { return []byte(u.username) }
func (u *webauthnUser) WebAuthnName() string                       { return u.username }
func (u *webauthnUser) WebAuthnDisplayName() string                { return u.username }
func (u *webauthnUser) WebAuthnCredentials() []webauthn.Credential { return u.credentials }

// webauthnCredentials decodes the user's durable WebAuthn credential
// payloads.
func (m *Manager) webauthnCredentials(ctx context.Context, username string) ([]webauthn.Credential, []*Record, error) {
	records, err := m.durableRecords(ctx, username, KindWebAuthnCredential)
	if err != nil {
		return nil, nil, err
	}

	creds := make([]webauthn.Credential, 0, len(records))
	kept := make([]*Record, 0, len(records))
	for _, rec := range records {
		var cred webauthn.Credential
		if err := json.Unmarshal(rec.Payload, &cred); err != nil {
			continue
		}
		creds = append(creds, cred)
		kept = append(kept, rec)
	}
	return creds, kept, nil
}

// BeginWebAuthnRegistration starts a registration ceremony. The challenge
// state is stored as an ephemeral record carrying the chosen label; the
// user's existing authenticators are excluded so they cannot re-register.
func (m *Manager) BeginWebAuthnRegistration(ctx context.Context, username, label string) (*protocol.CredentialCreation, uuid.UUID, error) {
	existing, _, err := m.webauthnCredentials(ctx, username)
	if err != nil {
		return nil, uuid.Nil, wrapError("begin webauthn registration", err)
	}

	exclusions := make([]protocol.CredentialDescriptor, len(existing))
	for i, cred := range existing {
		exclusions[i] = protocol.CredentialDescriptor{
			Type:         protocol.PublicKeyCredentialType,
			CredentialID: cred.ID,
			Transport:    cred.Transport,
		}
	}

	user := &webauthnUser{username: username, credentials: existing}
	options, sessionData, err := m.webauthn.BeginRegistration(user,
		webauthn.WithExclusions(exclusions),
	)
	if err != nil {
		return nil, uuid.Nil, wrapError("begin webauthn registration", err)
	}

	payload, err := json.Marshal(sessionData)
	if err != nil {
		return nil, uuid.Nil, wrapError("begin webauthn registration", err)
	}

	rec := &Record{
		ID:        uuid.New(),
		Username:  username,
		Label:     label,
		Kind:      KindWebAuthnRegistration,
		Temporary: true,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
	if err := m.saveRecord(ctx, rec); err != nil {
		return nil, uuid.Nil, wrapError("begin webauthn registration", err)
	}

	return options, rec.ID, nil
}

// FinishWebAuthnRegistration verifies a registration response against the
// stored challenge. On success the same row is promoted in place to a
// durable credential. On failure the row is kept for a bounded number of
// retries, then discarded.
func (m *Manager) FinishWebAuthnRegistration(ctx context.Context, id uuid.UUID, username string, response *protocol.ParsedCredentialCreationData) error {
	const op = "finish webauthn registration"

	rec, err := m.getRecord(ctx, username, id, KindWebAuthnRegistration)
	if err != nil {
		return wrapError(op, err)
	}

	var sessionData webauthn.SessionData
	if err := json.Unmarshal(rec.Payload, &sessionData); err != nil {
		return wrapError(op, ErrRecordNotFound)
	}

	existing, _, err := m.webauthnCredentials(ctx, username)
	if err != nil {
		return wrapError(op, err)
	}

	user := &webauthnUser{username: username, credentials: existing}
	cred, err := m.webauthn.CreateCredential(user, sessionData, response)
	if err != nil {
		return wrapError(op, m.registrationFailure(ctx, rec))
	}

	// Reject re-registration of an authenticator the user already has.
	for _, known := range existing {
		if bytes.Equal(known.ID, cred.ID) {
			return wrapError(op, ErrDuplicateCredential)
		}
	}

	payload, err := json.Marshal(cred)
	if err != nil {
		return wrapError(op, err)
	}
	if err := rec.promote(KindWebAuthnCredential, payload); err != nil {
		return wrapError(op, err)
	}
	if err := m.saveRecord(ctx, rec); err != nil {
		return wrapError(op, err)
	}
	return nil
}

// registrationFailure records a failed attempt against the challenge row.
// The row survives until the attempt budget is spent, then it is deleted
// and the ceremony must be restarted.
func (m *Manager) registrationFailure(ctx context.Context, rec *Record) error {
	rec.Attempts++
	if rec.Attempts >= m.config.MaxRegistrationAttempts {
		if err := m.store.Delete(ctx, recordKey(rec.Username, rec.ID)); err != nil &&
			!errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return ErrTooManyAttempts
	}

	err := m.store.Update(ctx, recordKey(rec.Username, rec.ID), storage.KeepTTL,
		func(current []byte) ([]byte, error) {
			var stored Record
			if err := json.Unmarshal(current, &stored); err != nil {
				return nil, err
			}
			stored.Attempts = rec.Attempts
			return json.Marshal(&stored)
		})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return ErrVerificationFailed
}

// BeginWebAuthnAuthentication starts an authentication ceremony built from
// the user's durable WebAuthn credentials.
func (m *Manager) BeginWebAuthnAuthentication(ctx context.Context, username string) (*protocol.CredentialAssertion, uuid.UUID, error) {
	const op = "begin webauthn authentication"

	existing, _, err := m.webauthnCredentials(ctx, username)
	if err != nil {
		return nil, uuid.Nil, wrapError(op, err)
	}
	if len(existing) == 0 {
		return nil, uuid.Nil, wrapError(op, ErrNoCredentials)
	}

	user := &webauthnUser{username: username, credentials: existing}
	options, sessionData, err := m.webauthn.BeginLogin(user)
	if err != nil {
		return nil, uuid.Nil, wrapError(op, err)
	}

	payload, err := json.Marshal(sessionData)
	if err != nil {
		return nil, uuid.Nil, wrapError(op, err)
	}

	rec := &Record{
		ID:        uuid.New(),
		Username:  username,
		Kind:      KindWebAuthnAuthentication,
		Temporary: true,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
	if err := m.saveRecord(ctx, rec); err != nil {
		return nil, uuid.Nil, wrapError(op, err)
	}

	return options, rec.ID, nil
}

// FinishWebAuthnAuthentication verifies an assertion. The challenge row is
// deleted before verification, closing the replay window: a failed attempt
// cannot be retried against the same challenge, and a second call with the
// same id fails as not-found.
func (m *Manager) FinishWebAuthnAuthentication(ctx context.Context, id uuid.UUID, username string, response *protocol.ParsedCredentialAssertionData) error {
	const op = "finish webauthn authentication"

	rec, err := m.getRecord(ctx, username, id, KindWebAuthnAuthentication)
	if err != nil {
		return wrapError(op, err)
	}

	// Consume the challenge first, regardless of the verification
	// outcome.
	if err := m.store.Delete(ctx, recordKey(username, id)); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return wrapError(op, ErrRecordNotFound)
		}
		return wrapError(op, err)
	}

	var sessionData webauthn.SessionData
	if err := json.Unmarshal(rec.Payload, &sessionData); err != nil {
		return wrapError(op, ErrRecordNotFound)
	}

	existing, records, err := m.webauthnCredentials(ctx, username)
	if err != nil {
		return wrapError(op, err)
	}

	user := &webauthnUser{username: username, credentials: existing}
	validated, err := m.webauthn.ValidateLogin(user, sessionData, response)
	if err != nil {
		return wrapError(op, ErrVerificationFailed)
	}

	// Persist the updated sign counter; best-effort, the login already
	// succeeded.
	for _, credRec := range records {
		var cred webauthn.Credential
		if err := json.Unmarshal(credRec.Payload, &cred); err != nil {
			continue
		}
		if !bytes.Equal(cred.ID, validated.ID) {
			continue
		}
		if payload, err := json.Marshal(validated); err == nil {
			credRec.Payload = payload
			_ = m.saveRecord(ctx, credRec)
		}
		break
	}
	return nil
}
