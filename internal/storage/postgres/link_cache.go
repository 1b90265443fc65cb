package postgres

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

const (
	selectLinkCache = `SELECT label, links FROM link_cache`
	upsertLinkCache = `
INSERT INTO link_cache (label, links, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (label) DO UPDATE
SET links = EXCLUDED.links, updated_at = EXCLUDED.updated_at`
)

// LinkCacheStore keeps one row per label holding its delivered links.
type LinkCacheStore struct {
	db  DB
	now func() time.Time
}

// NewLinkCacheStore wraps an open pool.
func NewLinkCacheStore(db DB) (*LinkCacheStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &LinkCacheStore{db: db, now: time.Now}, nil
}

// ReadLinkCache loads every label row.
func (s *LinkCacheStore) ReadLinkCache(ctx context.Context) (alert.LinkCache, error) {
	rows, err := s.db.Query(ctx, selectLinkCache)
	if err != nil {
		return nil, fmt.Errorf("query link cache: %w", err)
	}
	defer rows.Close()

	cache := make(alert.LinkCache)
	for rows.Next() {
		var (
			label string
			links []string
		)
		if err := rows.Scan(&label, &links); err != nil {
			return nil, fmt.Errorf("scan link cache row: %w", err)
		}
		cache[label] = links
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate link cache: %w", err)
	}
	return cache, nil
}

// WriteLinkCache upserts the given labels in one transaction.
func (s *LinkCacheStore) WriteLinkCache(ctx context.Context, linksByLabel map[string][]string) error {
	if len(linksByLabel) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin link cache write: %w", err)
	}
	defer rollback(ctx, tx)

	at := s.now().UTC()
	for _, label := range slices.Sorted(maps.Keys(linksByLabel)) {
		links := linksByLabel[label]
		if links == nil {
			links = []string{}
		}
		if _, err := tx.Exec(ctx, upsertLinkCache, label, links, at); err != nil {
			return fmt.Errorf("upsert link cache %q: %w", label, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit link cache write: %w", err)
	}
	return nil
}
