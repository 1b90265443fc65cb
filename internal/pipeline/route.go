package pipeline

import (
	"slices"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

// Route builds the board -> term -> labels table for the boards that are live
// and referenced by at least one label. Boards missing from the live list are
// dropped.
func Route(doc alert.SubscriptionDocument, boards alert.BoardList) alert.RoutingTable {
	live := make(map[string]struct{}, len(boards))
	for _, board := range boards {
		live[board] = struct{}{}
	}

	table := make(alert.RoutingTable)
	for _, label := range sortedKeys(doc) {
		sub := doc[label]
		for _, board := range sub.Boards {
			if _, ok := live[board]; !ok {
				continue
			}
			terms, ok := table[board]
			if !ok {
				terms = make(map[string][]string)
				table[board] = terms
			}
			for _, term := range sub.Terms {
				if slices.Contains(terms[term], label) {
					continue
				}
				terms[term] = append(terms[term], label)
			}
		}
	}
	return table
}

// Boards returns the routed boards in sorted order.
func Boards(table alert.RoutingTable) []string {
	return sortedKeys(table)
}
