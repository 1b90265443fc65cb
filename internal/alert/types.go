package alert

import (
	"fmt"
	"strings"
	"time"
)

// DefaultSiteBase is the public base URL used to build thread links.
const DefaultSiteBase = "https://boards.4chan.org"

// Subscription is one label's definition inside the subscription document.
type Subscription struct {
	Terms       []string `json:"terms" yaml:"terms" mapstructure:"terms"`
	Boards      []string `json:"boards" yaml:"boards" mapstructure:"boards"`
	Subscribers []string `json:"webhooks" yaml:"webhooks" mapstructure:"webhooks"`
}

// SubscriptionDocument maps a label to its subscription.
type SubscriptionDocument map[string]Subscription

// BoardList is the ordered set of boards currently live on the remote service.
type BoardList []string

// RoutingTable maps board -> term -> labels interested in that term on that board.
type RoutingTable map[string]map[string][]string

// Thread is one catalog entry. Subject and Comment are nil when the remote omits them.
type Thread struct {
	No      int64   `json:"no"`
	Subject *string `json:"sub,omitempty"`
	Comment *string `json:"com,omitempty"`
}

// CatalogPage is a single page of a board catalog.
type CatalogPage struct {
	Page    int      `json:"page"`
	Threads []Thread `json:"threads"`
}

// Catalog is the full paginated snapshot of a board.
type Catalog []CatalogPage

// MatchResult is one (board, label, thread) match with every term that hit.
type MatchResult struct {
	Label    string   `json:"label"`
	Terms    []string `json:"terms"`
	Board    string   `json:"board"`
	ThreadID int64    `json:"thread_id"`
	Link     string   `json:"link"`
	Subject  *string  `json:"subject,omitempty"`
	OPBody   *string  `json:"op_body,omitempty"`
}

// LinkCache maps a label to the links already delivered for it.
// A missing key means the label has never been cached.
type LinkCache map[string][]string

// ThreadLink builds the stable thread URL used as the deduplication key.
func ThreadLink(siteBase, board string, threadID int64) string {
	base := strings.TrimRight(siteBase, "/")
	if base == "" {
		base = DefaultSiteBase
	}
	return fmt.Sprintf("%s/%s/thread/%d", base, board, threadID)
}

// CycleStatus represents the lifecycle state of a poll cycle.
type CycleStatus string

// Cycle status values recorded in the cycle store.
const (
	CycleStatusQueued    CycleStatus = "queued"
	CycleStatusRunning   CycleStatus = "running"
	CycleStatusSucceeded CycleStatus = "succeeded"
	CycleStatusFailed    CycleStatus = "failed"
)

// LabelStats summarises one label's results for a cycle.
type LabelStats struct {
	Matches  int `json:"matches"`
	NewLinks int `json:"new_links"`
}

// CycleReport describes what a finished cycle did.
type CycleReport struct {
	CycleID          string                `json:"cycle_id"`
	StartedAt        time.Time             `json:"started_at"`
	FinishedAt       time.Time             `json:"finished_at"`
	BoardsRouted     []string              `json:"boards_routed"`
	BoardsSkipped    []string              `json:"boards_skipped,omitempty"`
	Labels           map[string]LabelStats `json:"labels"`
	WebhooksNotified []string              `json:"webhooks_notified"`
}

// Cycle is the record kept for each requested poll cycle.
type Cycle struct {
	ID        string       `json:"id"`
	Status    CycleStatus  `json:"status"`
	Submitted time.Time    `json:"submitted_at"`
	Started   *time.Time   `json:"started_at,omitempty"`
	Finished  *time.Time   `json:"finished_at,omitempty"`
	ErrorText string       `json:"error_text,omitempty"`
	Report    *CycleReport `json:"report,omitempty"`
}

// QueueItem wraps a cycle request waiting for the worker.
type QueueItem struct {
	CycleID   string
	Submitted int64
}
