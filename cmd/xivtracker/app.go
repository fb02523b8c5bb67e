package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"xivtracker/internal/cache"
	"xivtracker/internal/config"
	"xivtracker/internal/logger"
	"xivtracker/internal/models"
	"xivtracker/internal/observability"
	"xivtracker/internal/ratelimit"
	"xivtracker/internal/storage"
	"xivtracker/internal/tracker"
	"xivtracker/internal/version"
	"xivtracker/internal/xivapi"
)

// app holds the components shared by serve and the one-shot commands.
type app struct {
	cfg      *models.Config
	logger   *slog.Logger
	otel     *observability.Provider
	storage  storage.Storage
	cache    cache.Cache
	outbound ratelimit.Limiter
	client   *xivapi.Client
	service  *tracker.Service

	closers []func()
}

// newApp wires configuration, logging, storage, cache, the outbound limiter,
// the XIVAPI client and the tracker service. Telemetry is only set up for
// the long-running server.
func newApp(configPath string, withTelemetry bool) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	a.cfg, err = config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	ver := version.GetInfo()
	var logCloser io.Closer
	a.logger, logCloser, err = logger.Setup(a.cfg.Logging, ver)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if logCloser != nil {
		a.onClose(func() { logCloser.Close() })
	}
	slog.SetDefault(a.logger)

	var instrumentOpts []observability.Option
	if withTelemetry {
		a.otel, err = observability.Setup(a.cfg.Metrics, a.cfg.Observability, ver)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize observability: %w", err)
		}
		a.onClose(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := a.otel.Shutdown(ctx); err != nil {
				a.logger.Error("Failed to shutdown observability", "error", err)
			}
		})
		instrumentOpts = append(instrumentOpts, observability.WithMeterProvider(a.otel.MeterProvider()))
	}
	instrumented := withTelemetry && a.cfg.Metrics.Enabled

	store, err := storage.NewFactory(a.logger).Create(a.cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.onClose(func() { store.Close() })
	a.storage = store
	if instrumented {
		a.storage, err = observability.NewInstrumentedStorage(store, instrumentOpts...)
		if err != nil {
			return nil, fmt.Errorf("failed to instrument storage: %w", err)
		}
	}

	a.cache, err = cache.New(a.cfg.Cache, a.logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}
	a.onClose(func() { a.cache.Close() })

	a.outbound, err = a.newLimiter(a.cfg.XIVAPI.RateLimit, "xivapi", instrumented, instrumentOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize xivapi rate limiter: %w", err)
	}

	a.client, err = xivapi.NewClient(a.cfg.XIVAPI, a.outbound,
		xivapi.WithCache(a.cache, a.cfg.Cache.TTL),
		xivapi.WithLogger(a.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize xivapi client: %w", err)
	}

	a.service = tracker.NewService(a.storage, a.client,
		tracker.WithLimiter(a.outbound),
		tracker.WithLogger(a.logger),
	)

	a.logger.Info("Tracker initialized",
		"storage", a.cfg.Storage.Type,
		"cache", cacheDescription(a.cfg.Cache),
		"xivapi", a.cfg.XIVAPI.BaseURL,
		"xivapi_limit_key", a.client.LimitKey(),
	)
	return a, nil
}

// newLimiter builds a token bucket limiter, instrumented when metrics are on.
func (a *app) newLimiter(rc models.RateLimitConfig, name string, instrumented bool, opts []observability.Option) (ratelimit.Limiter, error) {
	inner, err := ratelimit.NewMemoryLimiter(ratelimit.ConfigFromModel(rc), ratelimit.WithLogger(a.logger))
	if err != nil {
		return nil, err
	}
	var limiter ratelimit.Limiter = inner
	if instrumented {
		wrapped, err := observability.NewInstrumentedLimiter(inner, name, opts...)
		if err != nil {
			inner.Close()
			return nil, err
		}
		limiter = wrapped
	}
	a.onClose(limiter.Close)
	return limiter, nil
}

func (a *app) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases resources in reverse order of acquisition.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func cacheDescription(cc models.CacheConfig) string {
	if !cc.Enabled {
		return "disabled"
	}
	return cc.Type
}
