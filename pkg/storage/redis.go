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
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// updateRetries is how many times a Redis Update is retried when the
// watched key is modified by a concurrent writer.
const updateRetries = 3

// RedisBackend provides a Redis storage implementation. Each connection is
// checked out from the client's pool for the duration of a single operation.
type RedisBackend struct {
	client    redis.UniversalClient
	keyPrefix string
}

// RedisConfig contains configuration options for the Redis backend.
type RedisConfig struct {
	// Client is the Redis client to use. If nil, a default client is
	// created for Addr/DB.
	Client redis.UniversalClient

	// Addr is the Redis server address (default: localhost:6379).
	Addr string

	// Password is the optional Redis AUTH password.
	Password string

	// DB is the Redis database number.
	DB int

	// KeyPrefix is prepended to all keys written by this backend.
	KeyPrefix string
}

// NewRedis creates a new Redis-backed storage backend.
func NewRedis(config RedisConfig) *RedisBackend {
	client := config.Client
	if client == nil {
		addr := config.Addr
		if addr == "" {
			addr = "localhost:6379"
		}
		client = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: config.Password,
			DB:       config.DB,
		})
	}

	return &RedisBackend{
		client:    client,
		keyPrefix: config.KeyPrefix,
	}
}

func (b *RedisBackend) key(key string) string {
	return b.keyPrefix + key
}

func redisTTL(ttl time.Duration) time.Duration {
	if ttl == KeepTTL {
		return redis.KeepTTL
	}
	return ttl
}

// Get retrieves the value for the given key.
func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := b.client.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores the value for the given key.
func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return b.client.Set(ctx, b.key(key), value, redisTTL(ttl)).Err()
}

// Update atomically replaces the value for the given key using WATCH.
// If a concurrent writer modifies the key between the read and the write
// the transaction is retried; ErrConflict is returned once retries are
// exhausted.
func (b *RedisBackend) Update(ctx context.Context, key string, ttl time.Duration, fn UpdateFunc) error {
	fullKey := b.key(key)

	txn := func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, fullKey).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}

		next, err := fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fullKey, next, redisTTL(ttl))
			return nil
		})
		return err
	}

	for i := 0; i < updateRetries; i++ {
		err := b.client.Watch(ctx, txn, fullKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

// Delete removes the key and its value.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	deleted, err := b.client.Del(ctx, b.key(key)).Result()
	if err != nil {
		return err
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns all keys with the given prefix. SCAN is used instead of
// KEYS to avoid blocking the server on large keyspaces.
func (b *RedisBackend) List(ctx context.Context, prefix string) ([]string, error) {
	pattern := b.key(prefix) + "*"
	keys := make([]string, 0)

	iter := b.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), b.keyPrefix))
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return keys, nil
}

// Close closes the underlying Redis client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
