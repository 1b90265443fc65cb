package postgres

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

const (
	selectSubscriptions = `SELECT label, terms, boards, webhooks FROM subscriptions`
	deleteSubscriptions = `DELETE FROM subscriptions`
	insertSubscription  = `INSERT INTO subscriptions (label, terms, boards, webhooks) VALUES ($1, $2, $3, $4)`
)

// SubscriptionStore reads the subscription document from the subscriptions table.
type SubscriptionStore struct {
	db DB
}

// NewSubscriptionStore wraps an open pool.
func NewSubscriptionStore(db DB) (*SubscriptionStore, error) {
	if db == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &SubscriptionStore{db: db}, nil
}

// FetchSubscriptions returns one entry per row.
func (s *SubscriptionStore) FetchSubscriptions(ctx context.Context) (alert.SubscriptionDocument, error) {
	rows, err := s.db.Query(ctx, selectSubscriptions)
	if err != nil {
		return nil, fmt.Errorf("query subscriptions: %w", err)
	}
	defer rows.Close()

	doc := make(alert.SubscriptionDocument)
	for rows.Next() {
		var (
			label string
			sub   alert.Subscription
		)
		if err := rows.Scan(&label, &sub.Terms, &sub.Boards, &sub.Subscribers); err != nil {
			return nil, fmt.Errorf("scan subscription row: %w", err)
		}
		doc[label] = sub
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return doc, nil
}

// ReplaceSubscriptions swaps the table contents for doc in one transaction.
func (s *SubscriptionStore) ReplaceSubscriptions(ctx context.Context, doc alert.SubscriptionDocument) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin subscriptions import: %w", err)
	}
	defer rollback(ctx, tx)

	if _, err := tx.Exec(ctx, deleteSubscriptions); err != nil {
		return fmt.Errorf("clear subscriptions: %w", err)
	}
	for _, label := range slices.Sorted(maps.Keys(doc)) {
		sub := doc[label]
		if _, err := tx.Exec(ctx, insertSubscription,
			label, nonNil(sub.Terms), nonNil(sub.Boards), nonNil(sub.Subscribers)); err != nil {
			return fmt.Errorf("insert subscription %q: %w", label, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit subscriptions import: %w", err)
	}
	return nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
