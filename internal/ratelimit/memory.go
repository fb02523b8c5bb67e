package ratelimit

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"xivtracker/internal/clock"
)

// MemoryLimiter is an in-process token bucket limiter. Each unique key gets its
// own bucket, created full on first use. A background goroutine evicts buckets
// that have been idle for longer than the configured TTL.
//
// Memory grows with the number of distinct keys seen between sweeps; a burst
// of unique keys is only reclaimed by the next sweep.
type MemoryLimiter struct {
	cfg    Config
	clock  clock.Clock
	logger *slog.Logger

	mu      sync.Mutex
	buckets map[string]*bucket

	done      chan struct{}
	closeOnce sync.Once
}

var _ Limiter = (*MemoryLimiter)(nil)

// Option configures a MemoryLimiter.
type Option func(*MemoryLimiter)

// WithClock sets the time source used for refill and eviction.
func WithClock(c clock.Clock) Option {
	return func(m *MemoryLimiter) {
		if c != nil {
			m.clock = c
		}
	}
}

// WithLogger sets the logger used by the background sweep.
func WithLogger(l *slog.Logger) Option {
	return func(m *MemoryLimiter) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMemoryLimiter validates cfg and returns a limiter with its eviction sweep
// running. Invalid configuration yields a *ConfigurationError. Call Close to
// stop the sweep.
func NewMemoryLimiter(cfg Config, opts ...Option) (*MemoryLimiter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	m := &MemoryLimiter{
		cfg:     cfg.withDefaults(),
		clock:   clock.Real{},
		logger:  slog.Default(),
		buckets: make(map[string]*bucket),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.sweep()
	return m, nil
}

// Config returns the effective configuration, defaults applied.
func (m *MemoryLimiter) Config() Config {
	return m.cfg
}

// TryConsume takes one token from the bucket for key if one is available.
func (m *MemoryLimiter) TryConsume(key string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	b := m.touch(key, now)

	if b.tokens >= 1 {
		b.tokens--
		return m.result(b, now, true)
	}
	return m.result(b, now, false)
}

// Status refills and reports the bucket for key without consuming.
func (m *MemoryLimiter) Status(key string) Result {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	b := m.touch(key, now)
	return m.result(b, now, b.tokens >= 1)
}

func (m *MemoryLimiter) Reset(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.buckets, key)
}

func (m *MemoryLimiter) ResetAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.buckets)
}

func (m *MemoryLimiter) BucketCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

// Cleanup evicts buckets whose last access is older than the bucket TTL.
func (m *MemoryLimiter) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	removed := 0
	for key, b := range m.buckets {
		if now.Sub(b.lastAccess) > m.cfg.BucketTTL {
			delete(m.buckets, key)
			removed++
		}
	}
	return removed
}

// Close stops the background sweep and drops all buckets. It is safe to call
// more than once.
func (m *MemoryLimiter) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.ResetAll()
}

// touch returns the bucket for key, creating it if needed, and brings it up
// to date. Must be called with m.mu held.
func (m *MemoryLimiter) touch(key string, now time.Time) *bucket {
	b, ok := m.buckets[key]
	if !ok {
		b = newBucket(m.cfg.MaxTokens, now)
		m.buckets[key] = b
	}
	b.lastAccess = now
	b.refill(now, m.cfg)
	return b
}

func (m *MemoryLimiter) result(b *bucket, now time.Time, allowed bool) Result {
	r := Result{
		Allowed:   allowed,
		Limit:     m.cfg.MaxTokens,
		Remaining: int(math.Floor(b.tokens)),
		ResetAt:   b.resetAt(now, m.cfg),
	}
	if !allowed {
		r.Remaining = 0
		r.RetryAfter = b.retryAfter(now, m.cfg)
	}
	return r
}

// sweep periodically evicts idle buckets until Close is called.
func (m *MemoryLimiter) sweep() {
	ticker := time.NewTicker(m.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			if removed := m.Cleanup(); removed > 0 {
				m.logger.Debug("Evicted idle rate limit buckets",
					"removed", removed,
					"remaining", m.BucketCount(),
				)
			}
		}
	}
}
