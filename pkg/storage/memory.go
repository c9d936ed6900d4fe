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
	"strings"
	"sync"
	"time"
)

// MemoryBackend provides an in-memory storage implementation with TTL
// support. This is useful for testing and single-node deployments.
// Thread-safe using a read-write mutex.
type MemoryBackend struct {
	data   map[string]memoryEntry
	mu     sync.RWMutex
	closed bool

	// now is swappable for expiry tests.
	now func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

// NewMemory creates a new in-memory storage backend.
func NewMemory() *MemoryBackend {
	return &MemoryBackend{
		data: make(map[string]memoryEntry),
		now:  time.Now,
	}
}

func (m *MemoryBackend) expired(e memoryEntry) bool {
	return !e.expiresAt.IsZero() && m.now().After(e.expiresAt)
}

// Get retrieves the value for the given key.
func (m *MemoryBackend) Get(ctx context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	entry, exists := m.data[key]
	if !exists || m.expired(entry) {
		return nil, ErrNotFound
	}

	// Return a copy to prevent modification
	result := make([]byte, len(entry.value))
	copy(result, entry.value)
	return result, nil
}

// Set stores the value for the given key.
func (m *MemoryBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	m.set(key, value, ttl)
	return nil
}

func (m *MemoryBackend) set(key string, value []byte, ttl time.Duration) {
	data := make([]byte, len(value))
	copy(data, value)

	var expiresAt time.Time
	switch {
	case ttl == KeepTTL:
		if existing, ok := m.data[key]; ok {
			expiresAt = existing.expiresAt
		}
	case ttl > 0:
		expiresAt = m.now().Add(ttl)
	}

	m.data[key] = memoryEntry{value: data, expiresAt: expiresAt}
}

// Update atomically replaces the value for the given key. The whole
// read-modify-write runs under the write lock, so concurrent updates
// serialize and ErrConflict is never returned by this backend.
func (m *MemoryBackend) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	entry, exists := m.data[key]
	if !exists || m.expired(entry) {
		return ErrNotFound
	}

	next, err := fn(entry.value)
	if err != nil {
		return err
	}

	m.set(key, next, ttl)
	return nil
}

// Delete removes the key and its value.
func (m *MemoryBackend) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	entry, exists := m.data[key]
	if !exists || m.expired(entry) {
		delete(m.data, key)
		return ErrNotFound
	}

	delete(m.data, key)
	return nil
}

// List returns all keys with the given prefix.
func (m *MemoryBackend) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	keys := make([]string, 0)
	for key, entry := range m.data {
		if m.expired(entry) {
			continue
		}
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// Close marks the backend as closed.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.data = nil
	return nil
}
