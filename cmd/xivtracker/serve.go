package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"xivtracker/internal/api"
	"xivtracker/internal/observability"
	"xivtracker/internal/ratelimit"
)

// runServe starts the API server and blocks until ctx is cancelled or the
// listener fails.
func runServe(ctx context.Context) error {
	a, err := newApp(configFile, true)
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.cfg
	handlerOpts := []api.HandlerOption{
		api.WithStorage(a.storage),
		api.WithLogger(a.logger),
	}

	routeOpts := []api.RouteOption{}
	if cfg.Observability.Tracing.Enabled {
		routeOpts = append(routeOpts, api.WithOTelMiddleware(cfg.Observability.ServiceName))
	}

	if cfg.RateLimit.Enabled {
		inbound, err := a.newLimiter(cfg.RateLimit, "inbound", cfg.Metrics.Enabled,
			[]observability.Option{observability.WithMeterProvider(a.otel.MeterProvider())})
		if err != nil {
			return fmt.Errorf("failed to initialize inbound rate limiter: %w", err)
		}
		handlerOpts = append(handlerOpts, api.WithInboundLimiter(inbound))
		routeOpts = append(routeOpts, api.WithRateLimiter(ratelimit.Middleware(inbound, ratelimit.ClientIP)))
	}

	handlers := api.NewHandlers(a.service, handlerOpts...)
	router := api.SetupRoutes(handlers, cfg, routeOpts...)

	var metricsServer *observability.MetricsServer
	if cfg.Metrics.Enabled {
		metricsServer = observability.NewMetricsServer(cfg.Metrics.Port, cfg.Metrics.Path, a.otel)
		go func() {
			if err := metricsServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.logger.Error("Metrics server failed", "error", err)
			}
		}()
	}

	if cfg.Server.TLSEnabled && (cfg.Server.TLSCertFile == "" || cfg.Server.TLSKeyFile == "") {
		return errors.New("TLS is enabled but cert file or key file is not specified")
	}

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ErrorLog:     slog.NewLogLogger(a.logger.Handler(), slog.LevelError),
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("Starting server", "addr", server.Addr, "tls", cfg.Server.TLSEnabled)
		if cfg.Server.TLSEnabled {
			serveErr <- server.ListenAndServeTLS(cfg.Server.TLSCertFile, cfg.Server.TLSKeyFile)
		} else {
			serveErr <- server.ListenAndServe()
		}
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down server")

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("Metrics server forced to shutdown", "error", err)
		}
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("Server forced to shutdown", "error", err)
	}

	a.logger.Info("Server shutdown complete")
	return nil
}
