package pipeline

import (
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
	"github.com/JakeFAU/catalog-alerts/internal/matcher"
)

const testSite = "https://boards.example.org"

func strPtr(s string) *string {
	return &s
}

func newTestScanner() *Scanner {
	return NewScanner(testSite, matcher.New(nil, zap.NewNop()))
}

func catalogOf(threads ...alert.Thread) alert.Catalog {
	return alert.Catalog{{Page: 1, Threads: threads}}
}
