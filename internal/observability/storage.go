package observability

import (
	"context"
	"errors"
	"time"

	"xivtracker/internal/models"
	"xivtracker/internal/storage"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "xivtracker"

// Option configures where instrumented wrappers send telemetry.
type Option func(*options)

type options struct {
	meterProvider  metric.MeterProvider
	tracerProvider trace.TracerProvider
}

// WithMeterProvider records metrics to mp instead of the global provider.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithTracerProvider records spans to tp instead of the global provider.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *options) { o.tracerProvider = tp }
}

func buildOptions(opts []Option) options {
	o := options{
		meterProvider:  otel.GetMeterProvider(),
		tracerProvider: otel.GetTracerProvider(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// InstrumentedStorage wraps a storage.Storage implementation with
// OpenTelemetry tracing and metrics instrumentation.
type InstrumentedStorage struct {
	inner    storage.Storage
	tracer   trace.Tracer
	duration metric.Float64Histogram
	errors   metric.Int64Counter
}

// NewInstrumentedStorage creates a new storage wrapper that records trace spans,
// operation latency histograms, and error counters for every storage method call.
// A lookup of an unknown character is not counted as an error.
func NewInstrumentedStorage(inner storage.Storage, opts ...Option) (*InstrumentedStorage, error) {
	o := buildOptions(opts)
	tracer := o.tracerProvider.Tracer(instrumentationName + "/storage")
	meter := o.meterProvider.Meter(instrumentationName + "/storage")

	duration, err := meter.Float64Histogram(
		"storage.operation.duration",
		metric.WithDescription("Duration of storage operations in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	errCounter, err := meter.Int64Counter(
		"storage.operation.errors",
		metric.WithDescription("Number of storage operation errors"),
		metric.WithUnit("{error}"),
	)
	if err != nil {
		return nil, err
	}

	return &InstrumentedStorage{
		inner:    inner,
		tracer:   tracer,
		duration: duration,
		errors:   errCounter,
	}, nil
}

func (s *InstrumentedStorage) startSpan(ctx context.Context, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	ctx, span := s.tracer.Start(ctx, "storage."+operation,
		trace.WithAttributes(append([]attribute.KeyValue{
			attribute.String("storage.operation", operation),
		}, attrs...)...),
	)
	return ctx, span
}

func (s *InstrumentedStorage) record(ctx context.Context, span trace.Span, operation string, start time.Time, err error) {
	elapsed := time.Since(start).Seconds()
	attrs := metric.WithAttributes(attribute.String("operation", operation))

	s.duration.Record(ctx, elapsed, attrs)

	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.errors.Add(ctx, 1, attrs)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.End()
}

func characterAttr(id string) attribute.KeyValue {
	return attribute.String("character_id", id)
}

func (s *InstrumentedStorage) Characters(ctx context.Context, filter models.CharacterFilter) ([]*models.Character, int, error) {
	ctx, span := s.startSpan(ctx, "Characters",
		attribute.String("world", filter.World),
		attribute.Int("limit", filter.Limit),
		attribute.Int("offset", filter.Offset),
	)
	start := time.Now()
	result, total, err := s.inner.Characters(ctx, filter)
	s.record(ctx, span, "Characters", start, err)
	return result, total, err
}

func (s *InstrumentedStorage) GetCharacter(ctx context.Context, id string) (*models.Character, error) {
	ctx, span := s.startSpan(ctx, "GetCharacter", characterAttr(id))
	start := time.Now()
	result, err := s.inner.GetCharacter(ctx, id)
	s.record(ctx, span, "GetCharacter", start, err)
	return result, err
}

func (s *InstrumentedStorage) SaveCharacter(ctx context.Context, character *models.Character) error {
	ctx, span := s.startSpan(ctx, "SaveCharacter", characterAttr(character.ID))
	start := time.Now()
	err := s.inner.SaveCharacter(ctx, character)
	s.record(ctx, span, "SaveCharacter", start, err)
	return err
}

func (s *InstrumentedStorage) DeleteCharacter(ctx context.Context, id string) error {
	ctx, span := s.startSpan(ctx, "DeleteCharacter", characterAttr(id))
	start := time.Now()
	err := s.inner.DeleteCharacter(ctx, id)
	s.record(ctx, span, "DeleteCharacter", start, err)
	return err
}

func (s *InstrumentedStorage) Jobs(ctx context.Context, characterID string) ([]models.CharacterJob, error) {
	ctx, span := s.startSpan(ctx, "Jobs", characterAttr(characterID))
	start := time.Now()
	result, err := s.inner.Jobs(ctx, characterID)
	s.record(ctx, span, "Jobs", start, err)
	return result, err
}

func (s *InstrumentedStorage) SaveJob(ctx context.Context, job *models.CharacterJob) error {
	ctx, span := s.startSpan(ctx, "SaveJob",
		characterAttr(job.CharacterID),
		attribute.Int("job_id", job.JobID),
	)
	start := time.Now()
	err := s.inner.SaveJob(ctx, job)
	s.record(ctx, span, "SaveJob", start, err)
	return err
}

func (s *InstrumentedStorage) Achievements(ctx context.Context, characterID string) ([]models.CharacterAchievement, error) {
	ctx, span := s.startSpan(ctx, "Achievements", characterAttr(characterID))
	start := time.Now()
	result, err := s.inner.Achievements(ctx, characterID)
	s.record(ctx, span, "Achievements", start, err)
	return result, err
}

func (s *InstrumentedStorage) SaveAchievement(ctx context.Context, achievement *models.CharacterAchievement) (bool, error) {
	ctx, span := s.startSpan(ctx, "SaveAchievement",
		characterAttr(achievement.CharacterID),
		attribute.Int("achievement_id", achievement.AchievementID),
	)
	start := time.Now()
	created, err := s.inner.SaveAchievement(ctx, achievement)
	span.SetAttributes(attribute.Bool("created", created))
	s.record(ctx, span, "SaveAchievement", start, err)
	return created, err
}

func (s *InstrumentedStorage) Quests(ctx context.Context, characterID string) ([]models.CharacterQuest, error) {
	ctx, span := s.startSpan(ctx, "Quests", characterAttr(characterID))
	start := time.Now()
	result, err := s.inner.Quests(ctx, characterID)
	s.record(ctx, span, "Quests", start, err)
	return result, err
}

func (s *InstrumentedStorage) SaveQuest(ctx context.Context, quest *models.CharacterQuest) (bool, error) {
	ctx, span := s.startSpan(ctx, "SaveQuest",
		characterAttr(quest.CharacterID),
		attribute.Int("quest_id", quest.QuestID),
	)
	start := time.Now()
	created, err := s.inner.SaveQuest(ctx, quest)
	span.SetAttributes(attribute.Bool("created", created))
	s.record(ctx, span, "SaveQuest", start, err)
	return created, err
}

func (s *InstrumentedStorage) Ping(ctx context.Context) error {
	ctx, span := s.startSpan(ctx, "Ping")
	start := time.Now()
	err := s.inner.Ping(ctx)
	s.record(ctx, span, "Ping", start, err)
	return err
}

func (s *InstrumentedStorage) Close() error {
	return s.inner.Close()
}

var _ storage.Storage = (*InstrumentedStorage)(nil)
