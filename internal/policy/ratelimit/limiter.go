// Package ratelimit paces outbound API requests with a token bucket per host
// and holds a host off after it signals overload.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/catalog-alerts/internal/metrics"
)

// DefaultCooldown applies when a host throttles without a Retry-After hint.
const DefaultCooldown = 30 * time.Second

// Config holds rate limiter configuration.
type Config struct {
	DefaultRPS   float64
	DefaultBurst int
	// Cooldown is the hold-off used by Throttle when no explicit duration is given.
	Cooldown time.Duration
}

type hostState struct {
	bucket       *rate.Limiter
	blockedUntil time.Time
}

// Limiter manages per-host rate limits.
type Limiter struct {
	mu       sync.Mutex
	hosts    map[string]*hostState
	rps      rate.Limit
	burst    int
	cooldown time.Duration
}

// New creates a new Limiter. A non-positive rate disables token pacing;
// cooldowns still apply.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.DefaultRPS)
	if cfg.DefaultRPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.DefaultBurst
	if burst <= 0 {
		burst = 1
	}
	cooldown := cfg.Cooldown
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Limiter{
		hosts:    make(map[string]*hostState),
		rps:      r,
		burst:    burst,
		cooldown: cooldown,
	}
}

// Wait blocks until rawURL's host is out of cooldown and a token is available.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := metrics.SanitizeSite(rawURL)

	l.mu.Lock()
	st := l.state(host)
	bucket, blockedUntil := st.bucket, st.blockedUntil
	l.mu.Unlock()

	start := time.Now()
	if hold := time.Until(blockedUntil); hold > 0 {
		timer := time.NewTimer(hold)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit cooldown: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if err := bucket.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	// Immediate grants are not worth a histogram sample.
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

// Throttle holds off rawURL's host for d, or for the configured cooldown when
// d is not positive. An earlier deadline never shortens a later one.
func (l *Limiter) Throttle(rawURL string, d time.Duration) {
	if d <= 0 {
		d = l.cooldown
	}
	host := metrics.SanitizeSite(rawURL)
	until := time.Now().Add(d)

	l.mu.Lock()
	defer l.mu.Unlock()
	st := l.state(host)
	if until.After(st.blockedUntil) {
		st.blockedUntil = until
	}
}

// state returns the host entry, creating it. Callers hold l.mu.
func (l *Limiter) state(host string) *hostState {
	st, ok := l.hosts[host]
	if !ok {
		st = &hostState{bucket: rate.NewLimiter(l.rps, l.burst)}
		l.hosts[host] = st
	}
	return st
}
