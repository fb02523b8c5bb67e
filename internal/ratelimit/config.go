package ratelimit

import (
	"time"

	"xivtracker/internal/models"
)

const (
	DefaultCleanupInterval = 5 * time.Minute
	DefaultBucketTTL       = 10 * time.Minute
)

// Config is shared by every bucket of a limiter and never changes after
// construction. Zero CleanupInterval and BucketTTL select the defaults.
type Config struct {
	MaxTokens       int           // Bucket capacity
	RefillRate      float64       // Tokens added per RefillInterval; 0 disables refill
	RefillInterval  time.Duration // Granularity of refill steps
	CleanupInterval time.Duration // Idle sweep period
	BucketTTL       time.Duration // Idle time after which a bucket is evicted
}

func (c Config) validate() error {
	if c.MaxTokens <= 0 {
		return &ConfigurationError{Field: "maxTokens", Message: "maxTokens must be greater than 0"}
	}
	// Written as a negated comparison so NaN is rejected too.
	if !(c.RefillRate >= 0) {
		return &ConfigurationError{Field: "refillRate", Message: "refillRate must not be negative"}
	}
	if c.RefillInterval <= 0 {
		return &ConfigurationError{Field: "refillInterval", Message: "refillInterval must be greater than 0"}
	}
	if c.CleanupInterval < 0 {
		return &ConfigurationError{Field: "cleanupInterval", Message: "cleanupInterval must not be negative"}
	}
	if c.BucketTTL < 0 {
		return &ConfigurationError{Field: "bucketTTL", Message: "bucketTTL must not be negative"}
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.CleanupInterval == 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.BucketTTL == 0 {
		c.BucketTTL = DefaultBucketTTL
	}
	return c
}

// ConfigFromModel converts the service rate limit settings.
func ConfigFromModel(rc models.RateLimitConfig) Config {
	return Config{
		MaxTokens:       rc.MaxTokens,
		RefillRate:      rc.RefillRate,
		RefillInterval:  rc.RefillInterval,
		CleanupInterval: rc.CleanupInterval,
		BucketTTL:       rc.BucketTTL,
	}
}
