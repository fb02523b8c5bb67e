package ratelimit

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strings"

	"xivtracker/internal/models"
)

// KeyFunc derives the rate limit key for a request.
type KeyFunc func(r *http.Request) string

// Middleware returns HTTP middleware that takes one token per request from the
// bucket selected by keyFunc (ClientIP when nil). Rate limit headers are set
// on every response; denied requests get 429 with a JSON error body.
func Middleware(limiter Limiter, keyFunc KeyFunc) func(http.Handler) http.Handler {
	if keyFunc == nil {
		keyFunc = ClientIP
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			res := limiter.TryConsume(key)

			w.Header().Set("X-RateLimit-Limit", fmt.Sprintf("%d", res.Limit))
			w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", res.Remaining))
			if res.Refills() {
				w.Header().Set("X-RateLimit-Reset", fmt.Sprintf("%d", res.ResetAt.Unix()))
			}

			if !res.Allowed {
				errorResp := models.NewErrorResponse("Rate limit exceeded", models.ErrorCodeRateLimitExceeded)
				if res.Refills() {
					retryAfterSecs := RetryAfterSeconds(res)
					w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSecs))
					errorResp.Details = map[string]string{"retry_after_seconds": fmt.Sprintf("%d", retryAfterSecs)}
				}
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(errorResp)

				slog.Warn("Rate limit exceeded",
					"key", key,
					"limit", res.Limit,
					"retry_after", res.RetryAfter,
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RetryAfterSeconds rounds the result's RetryAfter up to whole seconds, with a
// minimum of one, for use in a Retry-After header.
func RetryAfterSeconds(res Result) int {
	secs := int(math.Ceil(res.RetryAfter.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}

// ClientIP extracts the client IP from the request, checking proxy headers
// before falling back to the connection address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		ips := strings.Split(xff, ",")
		if len(ips) > 0 {
			return strings.TrimSpace(ips[0])
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
