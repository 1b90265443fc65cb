// Package memory contains an in-memory dispatcher for development and tests.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

// Publisher stores dispatched payloads for inspection.
type Publisher struct {
	mu       sync.RWMutex
	messages []PublishedMessage
}

// PublishedMessage captures one dispatch call.
type PublishedMessage struct {
	Webhook string
	Payload alert.WebhookPayload
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Dispatch records the payload.
func (p *Publisher) Dispatch(_ context.Context, webhookID string, payload alert.WebhookPayload) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, PublishedMessage{Webhook: webhookID, Payload: payload})
	return nil
}

// Messages returns the recorded dispatches.
func (p *Publisher) Messages() []PublishedMessage {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]PublishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}
