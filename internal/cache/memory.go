package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"xivtracker/internal/clock"
)

const (
	defaultTTL             = time.Hour
	defaultCleanupInterval = 10 * time.Minute
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process cache. When MaxSize is reached the entry closest
// to expiry is evicted.
type Memory struct {
	mu      sync.Mutex
	entries map[string]entry
	ttl     time.Duration
	maxSize int

	clock  clock.Clock
	logger *slog.Logger

	done      chan struct{}
	closeOnce sync.Once
}

type Option func(*Memory)

func WithClock(c clock.Clock) Option {
	return func(m *Memory) { m.clock = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Memory) {
		if l != nil {
			m.logger = l
		}
	}
}

// NewMemory starts a cache with a background sweep of expired entries.
// Zero ttl or cleanupInterval select the defaults; maxSize <= 0 is unbounded.
func NewMemory(ttl time.Duration, maxSize int, cleanupInterval time.Duration, opts ...Option) *Memory {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}

	m := &Memory{
		entries: make(map[string]entry),
		ttl:     ttl,
		maxSize: maxSize,
		clock:   clock.Real{},
		logger:  slog.Default(),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}

	go m.sweep(cleanupInterval)
	return m
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !m.clock.Now().Before(e.expiresAt) {
		delete(m.entries, key)
		return nil, false, nil
	}
	return append([]byte(nil), e.value...), true, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = m.ttl
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && m.maxSize > 0 && len(m.entries) >= m.maxSize {
		m.evictLocked()
	}
	m.entries[key] = entry{
		value:     append([]byte(nil), value...),
		expiresAt: m.clock.Now().Add(ttl),
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Len returns the number of stored entries, including expired ones not yet swept.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Cleanup removes expired entries and returns how many were removed.
func (m *Memory) Cleanup() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	removed := 0
	for k, e := range m.entries {
		if !now.Before(e.expiresAt) {
			delete(m.entries, k)
			removed++
		}
	}
	return removed
}

// Close stops the background sweep. It is safe to call more than once.
func (m *Memory) Close() error {
	m.closeOnce.Do(func() { close(m.done) })
	return nil
}

func (m *Memory) evictLocked() {
	var (
		victim  string
		soonest time.Time
	)
	for k, e := range m.entries {
		if victim == "" || e.expiresAt.Before(soonest) {
			victim, soonest = k, e.expiresAt
		}
	}
	delete(m.entries, victim)
}

func (m *Memory) sweep(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if n := m.Cleanup(); n > 0 {
				m.logger.Debug("Evicted expired cache entries", "count", n)
			}
		case <-m.done:
			return
		}
	}
}
