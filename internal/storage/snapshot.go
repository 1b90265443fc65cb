// Package storage holds the encoding shared by the link cache backends that
// persist the whole cache as a single JSON document (local file, GCS object).
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

// SnapshotVersion is the document format written by EncodeSnapshot.
const SnapshotVersion = 1

// Snapshot is the persisted form of a link cache.
type Snapshot struct {
	Version   int                 `json:"version"`
	UpdatedAt time.Time           `json:"updated_at"`
	Labels    map[string][]string `json:"labels"`
}

// DecodeSnapshot parses a stored document. Empty input is an empty cache.
func DecodeSnapshot(data []byte) (alert.LinkCache, error) {
	if len(data) == 0 {
		return alert.LinkCache{}, nil
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode link cache snapshot: %w", err)
	}
	if snap.Version > SnapshotVersion {
		return nil, fmt.Errorf("unsupported link cache snapshot version %d", snap.Version)
	}
	cache := make(alert.LinkCache, len(snap.Labels))
	for label, links := range snap.Labels {
		cache[label] = append([]string(nil), links...)
	}
	return cache, nil
}

// EncodeSnapshot serialises cache with the given timestamp.
func EncodeSnapshot(cache alert.LinkCache, at time.Time) ([]byte, error) {
	labels := make(map[string][]string, len(cache))
	for label, links := range cache {
		if links == nil {
			links = []string{}
		}
		labels[label] = links
	}
	data, err := json.MarshalIndent(Snapshot{
		Version:   SnapshotVersion,
		UpdatedAt: at.UTC(),
		Labels:    labels,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode link cache snapshot: %w", err)
	}
	return data, nil
}

// Merge returns a copy of base with every label in updates replaced.
func Merge(base alert.LinkCache, updates map[string][]string) alert.LinkCache {
	out := Clone(base)
	for label, links := range updates {
		out[label] = append([]string(nil), links...)
	}
	return out
}

// Clone deep-copies a link cache. The result is never nil.
func Clone(cache alert.LinkCache) alert.LinkCache {
	out := make(alert.LinkCache, len(cache))
	for label, links := range cache {
		out[label] = append([]string(nil), links...)
	}
	return out
}
