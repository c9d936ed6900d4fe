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
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const totpPeriod = 30

// totpSecret is the payload of totp_pending and totp_credential records.
// The secret and its parameters travel together so a later configuration
// change cannot invalidate enrolled credentials.
type totpSecret struct {
	Algorithm string `json:"algorithm"`
	Secret    string `json:"secret"`
	Digits    int    `json:"digits"`
	Period    uint   `json:"period"`
}

// TOTPEnrollment is returned from BeginTOTP. URL is the otpauth:// payload
// the client renders as a QR code.
type TOTPEnrollment struct {
	ID     uuid.UUID `json:"id"`
	Secret string    `json:"secret"`
	URL    string    `json:"url"`
}

func totpAlgorithm(name string) (otp.Algorithm, error) {
	switch name {
	case "", "SHA1":
		return otp.AlgorithmSHA1, nil
	case "SHA256":
		return otp.AlgorithmSHA256, nil
	case "SHA512":
		return otp.AlgorithmSHA512, nil
	default:
		return 0, fmt.Errorf("unsupported totp algorithm %q", name)
	}
}

// BeginTOTP generates a fresh secret and stores it as an ephemeral
// totp_pending record. The secret only becomes a usable credential once
// the user proves possession with ConfirmTOTP.
func (m *Manager) BeginTOTP(ctx context.Context, username, label string) (*TOTPEnrollment, error) {
	const op = "begin totp"

	alg, err := totpAlgorithm(m.config.TOTPAlgorithm)
	if err != nil {
		return nil, wrapError(op, err)
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      m.config.TOTPIssuer,
		AccountName: username,
		Period:      totpPeriod,
		Digits:      otp.Digits(m.config.TOTPDigits),
		Algorithm:   alg,
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	payload, err := json.Marshal(totpSecret{
		Algorithm: m.config.TOTPAlgorithm,
		Secret:    key.Secret(),
		Digits:    m.config.TOTPDigits,
		Period:    totpPeriod,
	})
	if err != nil {
		return nil, wrapError(op, err)
	}

	rec := &Record{
		ID:        uuid.New(),
		Username:  username,
		Label:     label,
		Kind:      KindTOTPPending,
		Temporary: true,
		CreatedAt: time.Now().UTC(),
		Payload:   payload,
	}
	if err := m.saveRecord(ctx, rec); err != nil {
		return nil, wrapError(op, err)
	}

	return &TOTPEnrollment{
		ID:     rec.ID,
		Secret: key.Secret(),
		URL:    key.URL(),
	}, nil
}

// ConfirmTOTP checks a code against the pending secret. On a match the row
// is promoted in place to a durable totp_credential; on a mismatch the row
// is left untouched with its secret intact so the user may retry.
func (m *Manager) ConfirmTOTP(ctx context.Context, id uuid.UUID, username, code string) error {
	const op = "confirm totp"

	rec, err := m.getRecord(ctx, username, id, KindTOTPPending)
	if err != nil {
		return wrapError(op, err)
	}

	ok, err := m.validateTOTP(rec, code)
	if err != nil {
		return wrapError(op, err)
	}
	if !ok {
		return wrapError(op, ErrVerificationFailed)
	}

	if err := rec.promote(KindTOTPCredential, rec.Payload); err != nil {
		return wrapError(op, err)
	}
	if err := m.saveRecord(ctx, rec); err != nil {
		return wrapError(op, err)
	}
	return nil
}

// VerifyTOTP checks a code against the user's durable TOTP credentials.
// Used as the MFA login step.
func (m *Manager) VerifyTOTP(ctx context.Context, username, code string) error {
	const op = "verify totp"

	records, err := m.durableRecords(ctx, username, KindTOTPCredential)
	if err != nil {
		return wrapError(op, err)
	}
	if len(records) == 0 {
		return wrapError(op, ErrNoCredentials)
	}

	for _, rec := range records {
		ok, err := m.validateTOTP(rec, code)
		if err != nil {
			continue
		}
		if ok {
			return nil
		}
	}
	return wrapError(op, ErrVerificationFailed)
}

// validateTOTP recomputes the time-based code from the record's stored
// secret and parameters.
func (m *Manager) validateTOTP(rec *Record, code string) (bool, error) {
	var secret totpSecret
	if err := json.Unmarshal(rec.Payload, &secret); err != nil {
		return false, ErrRecordNotFound
	}

	alg, err := totpAlgorithm(secret.Algorithm)
	if err != nil {
		return false, err
	}

	return totp.ValidateCustom(code, secret.Secret, time.Now().UTC(), totp.ValidateOpts{
		Period:    secret.Period,
		Skew:      m.config.TOTPSkew,
		Digits:    otp.Digits(secret.Digits),
		Algorithm: alg,
	})
}
