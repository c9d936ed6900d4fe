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

package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryBackend_SetGet(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()

	err := backend.Set(ctx, "key1", []byte("value1"), 0)
	require.NoError(t, err)

	value, err := backend.Get(ctx, "key1")
	require.NoError(t, err)
	assert.Equal(t, []byte("value1"), value)
}

func TestMemoryBackend_GetNotFound(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()

	_, err := backend.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackend_TTLExpiry(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()

	now := time.Now()
	backend.now = func() time.Time { return now }

	err := backend.Set(ctx, "short", []byte("v"), time.Minute)
	require.NoError(t, err)

	_, err = backend.Get(ctx, "short")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	_, err = backend.Get(ctx, "short")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackend_KeepTTL(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()

	now := time.Now()
	backend.now = func() time.Time { return now }

	require.NoError(t, backend.Set(ctx, "k", []byte("v1"), time.Minute))
	require.NoError(t, backend.Set(ctx, "k", []byte("v2"), KeepTTL))

	now = now.Add(2 * time.Minute)
	_, err := backend.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound, "KeepTTL must preserve the original expiry")
}

func TestMemoryBackend_Update(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()

	require.NoError(t, backend.Set(ctx, "k", []byte("a"), 0))

	err := backend.Update(ctx, "k", 0, func(current []byte) ([]byte, error) {
		assert.Equal(t, []byte("a"), current)
		return []byte("ab"), nil
	})
	require.NoError(t, err)

	value, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("ab"), value)
}

func TestMemoryBackend_UpdateMissing(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()

	err := backend.Update(ctx, "missing", 0, func(current []byte) ([]byte, error) {
		t.Fatal("update func must not be called for a missing key")
		return nil, nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryBackend_UpdateAborted(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()

	require.NoError(t, backend.Set(ctx, "k", []byte("a"), 0))

	wantErr := assert.AnError
	err := backend.Update(ctx, "k", 0, func(current []byte) ([]byte, error) {
		return nil, wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	value, err := backend.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("a"), value, "aborted update must leave the value untouched")
}

func TestMemoryBackend_Delete(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()

	require.NoError(t, backend.Set(ctx, "k", []byte("v"), 0))
	require.NoError(t, backend.Delete(ctx, "k"))

	_, err := backend.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, backend.Delete(ctx, "k"), ErrNotFound)
}

func TestMemoryBackend_List(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()

	require.NoError(t, backend.Set(ctx, "cred/alice/1", []byte("a"), 0))
	require.NoError(t, backend.Set(ctx, "cred/alice/2", []byte("b"), 0))
	require.NoError(t, backend.Set(ctx, "cred/bob/1", []byte("c"), 0))

	keys, err := backend.List(ctx, "cred/alice/")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cred/alice/1", "cred/alice/2"}, keys)
}

func TestMemoryBackend_Closed(t *testing.T) {
	ctx := context.Background()
	backend := NewMemory()
	require.NoError(t, backend.Close())

	_, err := backend.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, backend.Set(ctx, "k", nil, 0), ErrClosed)
}
