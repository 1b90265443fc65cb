// Package pubsub implements a Google Cloud Pub/Sub dispatcher. Each webhook
// payload becomes one message; a downstream consumer performs delivery.
package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

// Message attribute keys.
const (
	AttrWebhookID = "webhook_id"
	AttrCycleID   = "cycle_id"
)

// Publisher wraps a Pub/Sub topic handle.
type Publisher struct {
	topic  *pubsub.Topic
	logger *zap.Logger
}

// New creates a Publisher for the provided topic.
func New(topic *pubsub.Topic, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{topic: topic, logger: logger}
}

// Dispatch marshals the payload to JSON and publishes it to the topic.
// It returns once the server has acknowledged the message.
func (p *Publisher) Dispatch(ctx context.Context, webhookID string, payload alert.WebhookPayload) error {
	if p.topic == nil {
		return fmt.Errorf("pubsub topic is not configured")
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	msg := &pubsub.Message{
		Data: data,
		Attributes: map[string]string{
			AttrWebhookID: webhookID,
			AttrCycleID:   payload.CycleID,
		},
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	result := p.topic.Publish(ctx, msg)
	id, err := result.Get(ctx)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	p.logger.Debug("webhook payload published",
		zap.String("webhook", webhookID),
		zap.String("message_id", id),
		zap.Int("results", len(payload.Results)),
	)
	return nil
}

// Close flushes pending messages.
func (p *Publisher) Close() {
	if p.topic != nil {
		p.topic.Stop()
	}
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
