package ratelimit

import "errors"

// ErrInvalidConfig matches every *ConfigurationError via errors.Is.
var ErrInvalidConfig = errors.New("invalid rate limiter configuration")

// ConfigurationError reports an invalid Config field. It is only returned
// from NewMemoryLimiter.
type ConfigurationError struct {
	Field   string
	Message string
}

func (e *ConfigurationError) Error() string {
	return "ratelimit: " + e.Message
}

func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfig
}
