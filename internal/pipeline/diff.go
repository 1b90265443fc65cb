package pipeline

import (
	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

// Diff returns, per label, the links not yet present in the cache. A label
// with no cache entry has every link reported as new.
func Diff(linksByLabel map[string][]string, cached alert.LinkCache) map[string][]string {
	fresh := make(map[string][]string, len(linksByLabel))
	for _, label := range sortedKeys(linksByLabel) {
		links := linksByLabel[label]
		prior, ok := cached[label]
		if !ok {
			fresh[label] = append([]string(nil), links...)
			continue
		}
		seen := toSet(prior)
		var out []string
		for _, link := range links {
			if _, dup := seen[link]; !dup {
				out = append(out, link)
			}
		}
		fresh[label] = out
	}
	return fresh
}

// FilterByNovelty keeps only results whose link is new for their own label.
// Webhooks left without results are dropped from the output.
func FilterByNovelty(
	resultsByWebhook map[string][]alert.MatchResult,
	newLinksByLabel map[string][]string,
) map[string][]alert.MatchResult {
	fresh := make(map[string]map[string]struct{}, len(newLinksByLabel))
	for label, links := range newLinksByLabel {
		fresh[label] = toSet(links)
	}

	out := make(map[string][]alert.MatchResult)
	for _, webhook := range sortedKeys(resultsByWebhook) {
		var kept []alert.MatchResult
		for _, result := range resultsByWebhook[webhook] {
			if _, ok := fresh[result.Label][result.Link]; ok {
				kept = append(kept, result)
			}
		}
		if len(kept) > 0 {
			out[webhook] = kept
		}
	}
	return out
}

func toSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}
