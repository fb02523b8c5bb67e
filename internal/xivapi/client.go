// Package xivapi is a client for the XIVAPI game data service. Every outbound
// request first takes a token from a shared rate limiter; when none is
// available the call fails with *RateLimitExceededError and nothing is sent.
package xivapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"

	"xivtracker/internal/cache"
	"xivtracker/internal/models"
	"xivtracker/internal/ratelimit"
	"xivtracker/internal/version"
)

const maxBodySize = 4 << 20

// Client talks to XIVAPI.
type Client struct {
	baseURL    *url.URL
	cfg        models.XIVAPIConfig
	httpClient *http.Client
	limiter    ratelimit.Limiter
	limitKey   string
	cache      cache.Cache
	cacheTTL   time.Duration
	userAgent  string
	logger     *slog.Logger
}

type Option func(*Client)

// WithHTTPClient replaces the default client built from the configured timeout.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithCache stores reference data (achievements, quests, class/jobs) in cc.
func WithCache(cc cache.Cache, ttl time.Duration) Option {
	return func(c *Client) {
		c.cache = cc
		c.cacheTTL = ttl
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewClient creates a client. The limiter is owned by the caller and is
// typically built once at startup from cfg.RateLimit.
func NewClient(cfg models.XIVAPIConfig, limiter ratelimit.Limiter, opts ...Option) (*Client, error) {
	if limiter == nil {
		return nil, errors.New("xivapi client requires a rate limiter")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("invalid xivapi base URL: %q", cfg.BaseURL)
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = version.GetInfo().UserAgent("")
	}

	c := &Client{
		baseURL:    base,
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		limitKey:   cfg.LimitKey(),
		cache:      cache.Noop{},
		userAgent:  userAgent,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// LimitKey is the bucket key consumed for every request.
func (c *Client) LimitKey() string {
	return c.limitKey
}

// LimitStatus reports the outbound budget without consuming a token.
func (c *Client) LimitStatus() ratelimit.Result {
	return c.limiter.Status(c.limitKey)
}

// get fetches path and decodes the JSON body into dest. Transient failures
// (network errors, 429 and 5xx) are retried with exponential backoff; each
// attempt consumes a token and a denial ends the retries.
func (c *Client) get(ctx context.Context, path string, query url.Values, dest any) error {
	endpoint := c.endpoint(path, query)

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++
		if err := c.acquire(path); err != nil {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, c.do(ctx, endpoint, path, dest)
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(c.newBackOff()),
		backoff.WithMaxTries(uint(max(c.cfg.MaxRetries, 0)+1)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			c.logger.Warn("Retrying xivapi request",
				"path", path,
				"attempt", attempt,
				"wait", wait,
				"error", err,
			)
		}),
	)
	return err
}

func (c *Client) acquire(path string) error {
	res := c.limiter.TryConsume(c.limitKey)
	if res.Allowed {
		return nil
	}

	c.logger.Warn("Outbound rate limit exceeded",
		"key", c.limitKey,
		"path", path,
		"retry_after", res.RetryAfter,
	)
	return &RateLimitExceededError{
		Key:        c.limitKey,
		RetryAfter: res.RetryAfter,
		ResetAt:    res.ResetAt,
	}
}

func (c *Client) do(ctx context.Context, endpoint, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return backoff.Permanent(fmt.Errorf("failed to build request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return backoff.Permanent(ctx.Err())
		}
		return fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Path: path}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests:
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				return errors.Join(statusErr, backoff.RetryAfter(secs))
			}
			return statusErr
		case resp.StatusCode >= 500:
			return statusErr
		default:
			return backoff.Permanent(statusErr)
		}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodySize)).Decode(dest); err != nil {
		return backoff.Permanent(fmt.Errorf("%w: decoding %s: %v", ErrUpstream, path, err))
	}
	return nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.baseURL
	u.Path = c.baseURL.Path + path

	q := url.Values{}
	for k, v := range query {
		q[k] = v
	}
	if c.cfg.PrivateKey != "" {
		q.Set("private_key", c.cfg.PrivateKey)
	}
	if c.cfg.Language != "" {
		q.Set("language", c.cfg.Language)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.cfg.RetryInitialInterval > 0 {
		b.InitialInterval = c.cfg.RetryInitialInterval
	}
	if c.cfg.RetryMaxInterval > 0 {
		b.MaxInterval = c.cfg.RetryMaxInterval
	}
	return b
}

// cached serves key from the cache or calls fetch and stores its result.
// Cache failures are logged and otherwise ignored.
func cached[T any](ctx context.Context, c *Client, key string, fetch func() (T, error)) (T, error) {
	var out T
	if ok, err := cache.GetJSON(ctx, c.cache, key, &out); err != nil {
		c.logger.Warn("Cache read failed", "key", key, "error", err)
	} else if ok {
		return out, nil
	}

	out, err := fetch()
	if err != nil {
		return out, err
	}
	if err := cache.SetJSON(ctx, c.cache, key, out, c.cacheTTL); err != nil {
		c.logger.Warn("Cache write failed", "key", key, "error", err)
	}
	return out, nil
}
