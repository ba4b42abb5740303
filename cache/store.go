// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cache

import (
	"context"
	"time"
)

// Store is the hash-oriented key-value capability the helpline needs.
// Absent keys read as empty maps; absent fields report ok=false.
type Store interface {
	GetHash(ctx context.Context, key string) (map[string]string, error)
	// SetHash merges fields into the hash.
	SetHash(ctx context.Context, key string, fields map[string]string) error
	// ReplaceHash atomically swaps the whole hash for fields.
	ReplaceHash(ctx context.Context, key string, fields map[string]string) error
	GetField(ctx context.Context, key, field string) (string, bool, error)
	SetField(ctx context.Context, key, field, value string) error
	DeleteField(ctx context.Context, key string, fields ...string) error
	// KeysExist and DeleteKeys report how many of keys were present.
	KeysExist(ctx context.Context, keys ...string) (int64, error)
	DeleteKeys(ctx context.Context, keys ...string) (int64, error)
	// Claim sets key only if it does not exist yet, expiring after ttl.
	// It reports whether this caller won the claim.
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}
