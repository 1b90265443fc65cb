package pipeline

import (
	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

// Aggregation holds the per-label and per-webhook views of one cycle's matches.
type Aggregation struct {
	ResultsByLabel   map[string][]alert.MatchResult
	LinksByLabel     map[string][]string
	ResultsByWebhook map[string][]alert.MatchResult
}

// Aggregate folds per-board scan output into label and webhook groupings.
// Links are not deduplicated here; the same thread reached through two
// boards' configurations appears twice. A webhook subscribed to several
// labels receives one entry per (label, thread).
func Aggregate(perBoard map[string][]alert.MatchResult, doc alert.SubscriptionDocument) Aggregation {
	byLabel := make(map[string][]alert.MatchResult)
	for _, board := range sortedKeys(perBoard) {
		for _, result := range perBoard[board] {
			byLabel[result.Label] = append(byLabel[result.Label], result)
		}
	}

	links := make(map[string][]string, len(byLabel))
	byWebhook := make(map[string][]alert.MatchResult)
	for _, label := range sortedKeys(byLabel) {
		results := byLabel[label]
		labelLinks := make([]string, 0, len(results))
		for _, result := range results {
			labelLinks = append(labelLinks, result.Link)
		}
		links[label] = labelLinks

		for _, webhook := range doc[label].Subscribers {
			byWebhook[webhook] = append(byWebhook[webhook], results...)
		}
	}

	return Aggregation{
		ResultsByLabel:   byLabel,
		LinksByLabel:     links,
		ResultsByWebhook: byWebhook,
	}
}
