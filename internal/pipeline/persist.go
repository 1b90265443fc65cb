package pipeline

import (
	"context"
	"fmt"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

// Persist writes this cycle's full link list for every label present. Labels
// absent from linksByLabel keep whatever the store already holds.
func Persist(ctx context.Context, store alert.LinkCacheStore, linksByLabel map[string][]string) error {
	if len(linksByLabel) == 0 {
		return nil
	}
	if err := store.WriteLinkCache(ctx, linksByLabel); err != nil {
		return fmt.Errorf("%w: %w", alert.ErrPersistence, err)
	}
	return nil
}

// MergeDegraded returns the links to persist when some boards were skipped.
// Labels routed through a skipped board keep their previously cached links
// alongside this cycle's, so a board that failed to load does not lose its
// delivered history. Other labels are returned unchanged.
func MergeDegraded(
	linksByLabel map[string][]string,
	cached alert.LinkCache,
	table alert.RoutingTable,
	skipped []string,
) map[string][]string {
	if len(skipped) == 0 {
		return linksByLabel
	}
	degraded := make(map[string]struct{})
	for _, board := range skipped {
		for _, labels := range table[board] {
			for _, label := range labels {
				degraded[label] = struct{}{}
			}
		}
	}

	out := make(map[string][]string, len(linksByLabel)+len(degraded))
	for label, links := range linksByLabel {
		out[label] = links
	}
	for _, label := range sortedKeys(degraded) {
		prior, ok := cached[label]
		if !ok {
			continue
		}
		current := out[label]
		seen := toSet(current)
		merged := append([]string(nil), current...)
		for _, link := range prior {
			if _, dup := seen[link]; dup {
				continue
			}
			seen[link] = struct{}{}
			merged = append(merged, link)
		}
		out[label] = merged
	}
	return out
}
