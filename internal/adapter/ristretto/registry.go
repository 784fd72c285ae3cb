// Package ristretto provides an in-process read cache for the tool
// registry using dgraph-io/ristretto.
package ristretto

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/taskfleet/taskfleet/internal/port/toolregistry"
)

// CachedStore layers a ristretto L1 over a remote tool registry store.
// Enablement flags are hot on the dispatch path; the remote store is
// only consulted on cache misses.
type CachedStore struct {
	inner toolregistry.Store
	cache *ristretto.Cache[string, bool]
	ttl   time.Duration
}

// NewCachedStore wraps inner with an in-process cache. Entries expire
// after ttl so remote flips converge without explicit invalidation.
func NewCachedStore(inner toolregistry.Store, maxEntries int64, ttl time.Duration) (*CachedStore, error) {
	cache, err := ristretto.NewCache(&ristretto.Config[string, bool]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &CachedStore{inner: inner, cache: cache, ttl: ttl}, nil
}

// Enabled checks the L1 first and falls through to the remote store.
func (s *CachedStore) Enabled(ctx context.Context, key string) (bool, error) {
	if enabled, found := s.cache.Get(key); found {
		return enabled, nil
	}
	enabled, err := s.inner.Enabled(ctx, key)
	if err != nil {
		return false, err
	}
	s.cache.SetWithTTL(key, enabled, 1, s.ttl)
	return enabled, nil
}

// SetEnabled writes through to the remote store and updates the L1.
func (s *CachedStore) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if err := s.inner.SetEnabled(ctx, key, enabled); err != nil {
		return err
	}
	s.cache.SetWithTTL(key, enabled, 1, s.ttl)
	return nil
}

// Keys delegates to the remote store; listings are not cached.
func (s *CachedStore) Keys(ctx context.Context) ([]string, error) {
	return s.inner.Keys(ctx)
}

// Close releases cache resources.
func (s *CachedStore) Close() {
	s.cache.Close()
}
