// Package ratelimit implements the RateLimiter and NetworkMonitor (C7). The
// cap is a fixed window that resets to full every WindowDuration: up to
// MaxRequestsPerWindow calls are admitted immediately once the window opens,
// and the rest block until the next reset (§4.5, §8 scenario 5's worked
// example of 25 concurrent acquires against max=10/window=60s releasing in
// batches of 10, 10, 5 at t≈0s, 60s, 120s). golang.org/x/time/rate models a
// continuous per-second token refill instead, which trickles admissions one
// at a time rather than releasing a batch at each window boundary, so this
// is hand-rolled; the exponential backoff layered on top is hand-rolled for
// the same reason rate.Limiter would have been: neither has a notion of a
// provider-reported rate-limit response.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"findit/internal/logging"
	"findit/internal/metrics"
)

var log = logging.For("ratelimit")

// Config holds the RateLimiter's tunable parameters (§4.5).
type Config struct {
	MaxRequestsPerWindow int
	WindowDuration       time.Duration
	InitialBackoff       time.Duration
	MaxBackoff           time.Duration
	BackoffMultiplier    float64
}

// DefaultConfig fills in §4.5's defaults for every field except the two
// required ones, which the caller must set.
func DefaultConfig(maxRequestsPerWindow int, window time.Duration) Config {
	return Config{
		MaxRequestsPerWindow: maxRequestsPerWindow,
		WindowDuration:       window,
		InitialBackoff:       2 * time.Second,
		MaxBackoff:           60 * time.Second,
		BackoffMultiplier:    2,
	}
}

// RateLimiter guards calls to an external quota-constrained provider with a
// fixed-window cap plus exponential backoff after reported rate limits.
type RateLimiter struct {
	cfg Config

	mu           sync.Mutex
	windowStart  time.Time
	remaining    int
	backoff      time.Duration
	backoffUntil time.Time
}

// New builds a RateLimiter from cfg, defaulting any zero-valued optional
// field to §4.5's default.
func New(cfg Config) (*RateLimiter, error) {
	if cfg.MaxRequestsPerWindow <= 0 {
		return nil, fmt.Errorf("max_requests_per_window must be positive")
	}
	if cfg.WindowDuration <= 0 {
		return nil, fmt.Errorf("window_duration_seconds must be positive")
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = 2 * time.Second
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 60 * time.Second
	}
	if cfg.BackoffMultiplier <= 1 {
		cfg.BackoffMultiplier = 2
	}

	return &RateLimiter{cfg: cfg, backoff: cfg.InitialBackoff}, nil
}

// Acquire blocks until the call may proceed: it first waits out any active
// backoff from a previously reported rate limit, then waits for a slot in
// the current fixed window, retrying against the next window if the current
// one is exhausted.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	start := time.Now()
	defer func() { metrics.RateLimiterWaitSeconds.Observe(time.Since(start).Seconds()) }()

	for {
		r.mu.Lock()
		if wait := r.currentBackoffWaitLocked(); wait > 0 {
			r.mu.Unlock()
			if err := waitOut(ctx, wait); err != nil {
				return err
			}
			continue
		}

		now := time.Now()
		r.rollWindowLocked(now)
		if r.remaining > 0 {
			r.remaining--
			r.mu.Unlock()
			return nil
		}
		wait := r.windowStart.Add(r.cfg.WindowDuration).Sub(now)
		r.mu.Unlock()

		if err := waitOut(ctx, wait); err != nil {
			return err
		}
	}
}

// rollWindowLocked resets the window's remaining budget to full once
// WindowDuration has elapsed since it last opened. Callers hold r.mu.
func (r *RateLimiter) rollWindowLocked(now time.Time) {
	if r.windowStart.IsZero() || now.Sub(r.windowStart) >= r.cfg.WindowDuration {
		r.windowStart = now
		r.remaining = r.cfg.MaxRequestsPerWindow
	}
}

func waitOut(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// currentBackoffWaitLocked returns how long Acquire must still wait for an
// active backoff window; zero means no active backoff. Callers hold r.mu.
func (r *RateLimiter) currentBackoffWaitLocked() time.Duration {
	if r.backoffUntil.IsZero() {
		return 0
	}
	remaining := time.Until(r.backoffUntil)
	if remaining <= 0 {
		return 0
	}
	return remaining
}

// ReportSuccess resets the backoff to its initial value.
func (r *RateLimiter) ReportSuccess() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backoff = r.cfg.InitialBackoff
	r.backoffUntil = time.Time{}
	metrics.RateLimiterBackoffSeconds.Set(r.backoff.Seconds())
}

// ReportRateLimit records that the provider returned a rate-limit response.
// The next Acquire sleeps at least the current backoff, then the backoff
// doubles (capped at MaxBackoff) for the call after that.
func (r *RateLimiter) ReportRateLimit() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.backoffUntil = time.Now().Add(r.backoff)
	metrics.RateLimiterBackoffSeconds.Set(r.backoff.Seconds())
	metrics.RateLimitReportsTotal.Inc()
	log.Warn("rate limit reported, backing off %s", r.backoff)

	next := time.Duration(float64(r.backoff) * r.cfg.BackoffMultiplier)
	if next > r.cfg.MaxBackoff {
		next = r.cfg.MaxBackoff
	}
	r.backoff = next
}
