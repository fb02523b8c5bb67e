package xivapi

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when XIVAPI has no record for the requested ID.
	ErrNotFound = errors.New("not found on xivapi")

	// ErrUpstream covers non-success responses and undecodable bodies.
	ErrUpstream = errors.New("xivapi request failed")

	// ErrRateLimitExceeded is matched by *RateLimitExceededError.
	ErrRateLimitExceeded = errors.New("xivapi rate limit exceeded")
)

// RateLimitExceededError is returned, without sending a request, when the
// outbound token bucket has no tokens left.
type RateLimitExceededError struct {
	Key        string
	RetryAfter time.Duration // zero when the bucket never refills
	ResetAt    time.Time     // zero when the bucket never refills
}

func (e *RateLimitExceededError) Error() string {
	if e.ResetAt.IsZero() {
		return fmt.Sprintf("xivapi rate limit exceeded for %s: quota exhausted", e.Key)
	}
	return fmt.Sprintf("xivapi rate limit exceeded for %s: retry after %s", e.Key, e.RetryAfter)
}

func (e *RateLimitExceededError) Is(target error) bool {
	return target == ErrRateLimitExceeded
}

// StatusError is an unexpected HTTP status from XIVAPI. It matches ErrUpstream,
// or ErrNotFound for 404.
type StatusError struct {
	StatusCode int
	Path       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("xivapi %s returned status %d", e.Path, e.StatusCode)
}

func (e *StatusError) Is(target error) bool {
	if e.StatusCode == 404 {
		return target == ErrNotFound
	}
	return target == ErrUpstream
}
