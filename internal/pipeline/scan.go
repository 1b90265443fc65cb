package pipeline

import (
	"slices"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

type threadText struct {
	subject *string
	body    *string
}

// Scanner extracts matching threads from a single board catalog.
type Scanner struct {
	siteBase string
	matcher  alert.TermMatcher
}

// NewScanner returns a Scanner that builds links under siteBase.
func NewScanner(siteBase string, matcher alert.TermMatcher) *Scanner {
	if siteBase == "" {
		siteBase = alert.DefaultSiteBase
	}
	return &Scanner{siteBase: siteBase, matcher: matcher}
}

// Scan returns one MatchResult per (thread, label) pair that matched at least
// one term on board. Threads keep the order in which they first appear in the
// catalog; a thread listed twice takes the content of its last listing.
func (s *Scanner) Scan(catalog alert.Catalog, termsToLabels map[string][]string, board string) []alert.MatchResult {
	if len(termsToLabels) == 0 {
		return nil
	}
	order, threads := flatten(catalog)
	terms := sortedKeys(termsToLabels)

	var results []alert.MatchResult
	for _, id := range order {
		text := threads[id]
		matched := s.matchedTerms(text, terms)
		if len(matched) == 0 {
			continue
		}
		byLabel := invert(matched, termsToLabels)
		link := alert.ThreadLink(s.siteBase, board, id)
		for _, label := range sortedKeys(byLabel) {
			results = append(results, alert.MatchResult{
				Label:    label,
				Terms:    byLabel[label],
				Board:    board,
				ThreadID: id,
				Link:     link,
				Subject:  cloneString(text.subject),
				OPBody:   cloneString(text.body),
			})
		}
	}
	return results
}

func flatten(catalog alert.Catalog) ([]int64, map[int64]threadText) {
	var order []int64
	threads := make(map[int64]threadText)
	for _, page := range catalog {
		for _, thread := range page.Threads {
			if _, seen := threads[thread.No]; !seen {
				order = append(order, thread.No)
			}
			threads[thread.No] = threadText{subject: thread.Subject, body: thread.Comment}
		}
	}
	return order, threads
}

// matchedTerms returns the terms (in the given order) that hit any present
// field. A thread with no text is tested once against the empty string.
func (s *Scanner) matchedTerms(text threadText, terms []string) []string {
	var fields []string
	if text.subject != nil {
		fields = append(fields, *text.subject)
	}
	if text.body != nil {
		fields = append(fields, *text.body)
	}
	if len(fields) == 0 {
		fields = []string{""}
	}

	var matched []string
	for _, term := range terms {
		for _, field := range fields {
			if s.matcher.Matches(field, term) {
				matched = append(matched, term)
				break
			}
		}
	}
	return matched
}

func invert(matched []string, termsToLabels map[string][]string) map[string][]string {
	byLabel := make(map[string][]string)
	for _, term := range matched {
		for _, label := range termsToLabels[term] {
			if !slices.Contains(byLabel[label], term) {
				byLabel[label] = append(byLabel[label], term)
			}
		}
	}
	return byLabel
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
