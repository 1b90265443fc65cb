// Package webhook delivers webhook payloads directly with HTTP POST.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-alerts/internal/alert"
)

// Config maps webhook identifiers to endpoints and controls retries.
type Config struct {
	Endpoints    map[string]string
	RetryMax     int
	RetryWaitMin time.Duration
	RetryWaitMax time.Duration
	Timeout      time.Duration
	UserAgent    string
}

// Publisher posts JSON payloads to configured endpoints.
type Publisher struct {
	endpoints map[string]string
	client    *retryablehttp.Client
	userAgent string
	logger    *zap.Logger
}

// New validates cfg and builds a Publisher.
func New(cfg Config, logger *zap.Logger) (*Publisher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	// Webhook IDs are case-insensitive: config keys arrive lowercased while
	// subscription documents keep the operator's spelling.
	endpoints := make(map[string]string, len(cfg.Endpoints))
	for id, endpoint := range cfg.Endpoints {
		if strings.TrimSpace(endpoint) == "" {
			return nil, fmt.Errorf("webhook %q has no endpoint", id)
		}
		key := strings.ToLower(id)
		if _, dup := endpoints[key]; dup {
			return nil, fmt.Errorf("webhook %q is configured more than once (ids are case-insensitive)", id)
		}
		endpoints[key] = endpoint
	}

	client := retryablehttp.NewClient()
	client.Logger = leveledLogger{l: logger.Named("webhook").Sugar()}
	if cfg.RetryMax >= 0 {
		client.RetryMax = cfg.RetryMax
	}
	if cfg.RetryWaitMin > 0 {
		client.RetryWaitMin = cfg.RetryWaitMin
	}
	if cfg.RetryWaitMax > 0 {
		client.RetryWaitMax = cfg.RetryWaitMax
	}
	if cfg.Timeout > 0 {
		client.HTTPClient.Timeout = cfg.Timeout
	}

	return &Publisher{
		endpoints: endpoints,
		client:    client,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}, nil
}

// Dispatch posts payload to the endpoint registered for webhookID.
func (p *Publisher) Dispatch(ctx context.Context, webhookID string, payload alert.WebhookPayload) error {
	endpoint, ok := p.endpoints[strings.ToLower(webhookID)]
	if !ok {
		return fmt.Errorf("%w: unknown webhook %q", alert.ErrDispatch, webhookID)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.userAgent != "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook %q: %w", webhookID, err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post webhook %q: unexpected status %d", webhookID, resp.StatusCode)
	}
	p.logger.Debug("webhook delivered",
		zap.String("webhook", webhookID),
		zap.Int("status", resp.StatusCode),
		zap.Int("results", len(payload.Results)),
	)
	return nil
}

// leveledLogger adapts zap to retryablehttp.LeveledLogger.
type leveledLogger struct {
	l *zap.SugaredLogger
}

func (z leveledLogger) Error(msg string, kv ...any) { z.l.Errorw(msg, kv...) }
func (z leveledLogger) Warn(msg string, kv ...any)  { z.l.Warnw(msg, kv...) }
func (z leveledLogger) Info(msg string, kv ...any)  { z.l.Debugw(msg, kv...) }
func (z leveledLogger) Debug(msg string, kv ...any) { z.l.Debugw(msg, kv...) }
