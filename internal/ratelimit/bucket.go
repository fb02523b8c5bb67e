package ratelimit

import (
	"math"
	"time"
)

const maxDuration = time.Duration(math.MaxInt64)

// bucket is the token state for a single key. It is only touched while the
// owning limiter's mutex is held.
type bucket struct {
	tokens     float64
	lastRefill time.Time
	lastAccess time.Time
}

func newBucket(capacity int, now time.Time) *bucket {
	return &bucket{
		tokens:     float64(capacity),
		lastRefill: now,
		lastAccess: now,
	}
}

// refill credits every whole RefillInterval elapsed since lastRefill. The
// partial interval is kept by advancing lastRefill in whole steps rather than
// snapping it to now.
func (b *bucket) refill(now time.Time, cfg Config) {
	if cfg.RefillRate == 0 {
		return
	}
	if now.Before(b.lastRefill) {
		// Clock went backwards: neither credit nor debit, restart the interval.
		b.lastRefill = now
		return
	}

	intervals := now.Sub(b.lastRefill) / cfg.RefillInterval
	if intervals <= 0 {
		return
	}

	b.tokens = math.Min(float64(cfg.MaxTokens), b.tokens+float64(intervals)*cfg.RefillRate)
	b.lastRefill = b.lastRefill.Add(intervals * cfg.RefillInterval)
}

// resetAt returns when the bucket will be full at the configured rate, or the
// zero time if it never will be.
func (b *bucket) resetAt(now time.Time, cfg Config) time.Time {
	missing := float64(cfg.MaxTokens) - b.tokens
	if missing <= 0 {
		return now
	}
	if cfg.RefillRate == 0 {
		return time.Time{}
	}
	return now.Add(scale(cfg.RefillInterval, missing/cfg.RefillRate))
}

// retryAfter returns the wait until the refill step that brings the bucket
// back to at least one whole token.
func (b *bucket) retryAfter(now time.Time, cfg Config) time.Duration {
	if b.tokens >= 1 || cfg.RefillRate == 0 {
		return 0
	}
	steps := math.Ceil((1 - b.tokens) / cfg.RefillRate)
	next := b.lastRefill.Add(scale(cfg.RefillInterval, steps))
	if wait := next.Sub(now); wait > 0 {
		return wait
	}
	return 0
}

// scale multiplies d by f, saturating instead of overflowing.
func scale(d time.Duration, f float64) time.Duration {
	v := float64(d) * f
	if v >= float64(maxDuration) {
		return maxDuration
	}
	return time.Duration(v)
}
