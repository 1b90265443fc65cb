package alert

import (
	"context"
	"time"
)

// SubscriptionSource loads the label/term/webhook configuration document.
type SubscriptionSource interface {
	FetchSubscriptions(ctx context.Context) (SubscriptionDocument, error)
}

// BoardLister returns the boards currently live on the remote service.
type BoardLister interface {
	FetchBoards(ctx context.Context) (BoardList, error)
}

// CatalogFetcher retrieves a single board's catalog.
type CatalogFetcher interface {
	FetchCatalog(ctx context.Context, board string) (Catalog, error)
}

// LinkCacheStore persists the per-label set of delivered links.
// WriteLinkCache replaces the entries for the labels it is given and leaves
// every other label untouched.
type LinkCacheStore interface {
	ReadLinkCache(ctx context.Context) (LinkCache, error)
	WriteLinkCache(ctx context.Context, linksByLabel map[string][]string) error
}

// Dispatcher hands a webhook's results to the delivery transport.
// A nil error means the payload was accepted.
type Dispatcher interface {
	Dispatch(ctx context.Context, webhookID string, payload WebhookPayload) error
}

// TermMatcher tests text against a search term.
type TermMatcher interface {
	Matches(text, term string) bool
}

// CycleStore tracks requested cycles for the HTTP API.
type CycleStore interface {
	CreateCycle(ctx context.Context, cycle Cycle) error
	UpdateCycleStatus(ctx context.Context, cycleID string, status CycleStatus, errText string, report *CycleReport) error
	GetCycle(ctx context.Context, cycleID string) (Cycle, error)
}

// Queue provides enqueue/dequeue semantics for cycle requests.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces cycle IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// WebhookPayload is the message body delivered to one webhook.
type WebhookPayload struct {
	CycleID string        `json:"cycle_id"`
	Webhook string        `json:"webhook"`
	SentAt  time.Time     `json:"sent_at"`
	Results []MatchResult `json:"results"`
}
