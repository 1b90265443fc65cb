package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
	"github.com/JakeFAU/catalog-alerts/internal/storage"
)

// LinkCacheStore keeps the delivered-link cache in process memory.
type LinkCacheStore struct {
	mu    sync.RWMutex
	cache alert.LinkCache
}

// NewLinkCacheStore returns a store seeded with a copy of initial (may be nil).
func NewLinkCacheStore(initial alert.LinkCache) *LinkCacheStore {
	return &LinkCacheStore{cache: storage.Clone(initial)}
}

// ReadLinkCache returns a snapshot copy of the cache.
func (s *LinkCacheStore) ReadLinkCache(_ context.Context) (alert.LinkCache, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return storage.Clone(s.cache), nil
}

// WriteLinkCache replaces the entries for the given labels.
func (s *LinkCacheStore) WriteLinkCache(_ context.Context, linksByLabel map[string][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = storage.Merge(s.cache, linksByLabel)
	return nil
}
