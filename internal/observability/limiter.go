package observability

import (
	"context"

	"xivtracker/internal/ratelimit"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// InstrumentedLimiter wraps a ratelimit.Limiter and counts its decisions.
// Keys are not recorded as attributes since inbound keys are client IPs.
type InstrumentedLimiter struct {
	inner        ratelimit.Limiter
	decisions    metric.Int64Counter
	registration metric.Registration
	allowed      metric.MeasurementOption
	denied       metric.MeasurementOption
}

// NewInstrumentedLimiter instruments inner under the given limiter name
// (for example "inbound" or "xivapi"). It records a decision counter and an
// observable gauge of tracked buckets.
func NewInstrumentedLimiter(inner ratelimit.Limiter, name string, opts ...Option) (*InstrumentedLimiter, error) {
	o := buildOptions(opts)
	meter := o.meterProvider.Meter(instrumentationName + "/ratelimit")

	decisions, err := meter.Int64Counter(
		"ratelimit.decisions",
		metric.WithDescription("Token bucket decisions by outcome"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	buckets, err := meter.Int64ObservableGauge(
		"ratelimit.buckets",
		metric.WithDescription("Number of keys with a live token bucket"),
		metric.WithUnit("{bucket}"),
	)
	if err != nil {
		return nil, err
	}

	limiterAttr := attribute.String("limiter", name)
	registration, err := meter.RegisterCallback(func(_ context.Context, obs metric.Observer) error {
		obs.ObserveInt64(buckets, int64(inner.BucketCount()), metric.WithAttributes(limiterAttr))
		return nil
	}, buckets)
	if err != nil {
		return nil, err
	}

	return &InstrumentedLimiter{
		inner:        inner,
		decisions:    decisions,
		registration: registration,
		allowed:      metric.WithAttributes(limiterAttr, attribute.Bool("allowed", true)),
		denied:       metric.WithAttributes(limiterAttr, attribute.Bool("allowed", false)),
	}, nil
}

func (l *InstrumentedLimiter) TryConsume(key string) ratelimit.Result {
	res := l.inner.TryConsume(key)
	if res.Allowed {
		l.decisions.Add(context.Background(), 1, l.allowed)
	} else {
		l.decisions.Add(context.Background(), 1, l.denied)
	}
	return res
}

// Status is not counted; it never consumes.
func (l *InstrumentedLimiter) Status(key string) ratelimit.Result {
	return l.inner.Status(key)
}

func (l *InstrumentedLimiter) Reset(key string) { l.inner.Reset(key) }
func (l *InstrumentedLimiter) ResetAll()        { l.inner.ResetAll() }
func (l *InstrumentedLimiter) BucketCount() int { return l.inner.BucketCount() }
func (l *InstrumentedLimiter) Cleanup() int     { return l.inner.Cleanup() }

// Close unregisters the gauge callback and closes the wrapped limiter.
func (l *InstrumentedLimiter) Close() {
	l.registration.Unregister()
	l.inner.Close()
}

var _ ratelimit.Limiter = (*InstrumentedLimiter)(nil)
