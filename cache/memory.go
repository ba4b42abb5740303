// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store in process. Used when no Redis URL is
// configured and in tests.
type MemoryStore struct {
	mu     sync.Mutex
	hashes map[string]map[string]string
	claims map[string]time.Time
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		hashes: make(map[string]map[string]string),
		claims: make(map[string]time.Time),
		now:    time.Now,
	}
}

func (s *MemoryStore) GetHash(_ context.Context, key string) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) SetHash(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(fields) == 0 {
		return nil
	}
	h := s.hashes[key]
	if h == nil {
		h = make(map[string]string, len(fields))
		s.hashes[key] = h
	}
	for k, v := range fields {
		h[k] = v
	}
	return nil
}

func (s *MemoryStore) ReplaceHash(_ context.Context, key string, fields map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(fields) == 0 {
		delete(s.hashes, key)
		return nil
	}
	h := make(map[string]string, len(fields))
	for k, v := range fields {
		h[k] = v
	}
	s.hashes[key] = h
	return nil
}

func (s *MemoryStore) GetField(_ context.Context, key, field string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.hashes[key][field]
	return v, ok, nil
}

func (s *MemoryStore) SetField(ctx context.Context, key, field, value string) error {
	return s.SetHash(ctx, key, map[string]string{field: value})
}

func (s *MemoryStore) DeleteField(_ context.Context, key string, fields ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := s.hashes[key]
	for _, f := range fields {
		delete(h, f)
	}
	if h != nil && len(h) == 0 {
		delete(s.hashes, key)
	}
	return nil
}

func (s *MemoryStore) KeysExist(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, k := range keys {
		if _, ok := s.hashes[k]; ok {
			n++
			continue
		}
		if exp, ok := s.claims[k]; ok && s.now().Before(exp) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteKeys(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, k := range keys {
		_, isHash := s.hashes[k]
		exp, isClaim := s.claims[k]
		if isHash || (isClaim && s.now().Before(exp)) {
			n++
		}
		delete(s.hashes, k)
		delete(s.claims, k)
	}
	return n, nil
}

func (s *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if exp, ok := s.claims[key]; ok && now.Before(exp) {
		return false, nil
	}
	s.claims[key] = now.Add(ttl)
	return true, nil
}
