package observe

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// CacheSnapshot is the point-in-time cache state exported as gauges.
type CacheSnapshot struct {
	Entries     int64
	MemoryBytes int64
}

// Metrics records sampling, cache, and recovery metrics.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: must honor cancellation/deadlines and return quickly.
// - Errors: Record* methods must not panic.
type Metrics interface {
	// RecordCacheLookup records a cache hit or miss.
	RecordCacheLookup(ctx context.Context, templateID string, hit bool)

	// RecordEviction records one cache eviction (reason: ttl or lru).
	RecordEviction(ctx context.Context, reason string)

	// RecordSample records one call to the sampling backend.
	// errorType is empty on success.
	RecordSample(ctx context.Context, meta OpMeta, duration time.Duration, errorType string)

	// RecordRecoverySession records the outcome of a finished recovery session.
	RecordRecoverySession(ctx context.Context, outcome string, attempts int)

	// RecordRecoveryAttempt records one strategy application.
	RecordRecoveryAttempt(ctx context.Context, strategy string, success bool)

	// RecordSimilarRequest records a cache miss, flagging whether an
	// earlier request shared its similarity key.
	RecordSimilarRequest(ctx context.Context, templateID string, nearDuplicate bool)

	// ObserveCache registers gauges fed by fn at collection time.
	ObserveCache(fn func() CacheSnapshot) error
}

// metricsImpl is the concrete implementation of Metrics.
type metricsImpl struct {
	meter            metric.Meter
	cacheLookups     metric.Int64Counter
	cacheEvictions   metric.Int64Counter
	sampleDuration   metric.Float64Histogram
	sampleErrors     metric.Int64Counter
	recoverySessions metric.Int64Counter
	recoveryLength   metric.Int64Histogram
	recoveryAttempts metric.Int64Counter
	similarRequests  metric.Int64Counter
}

// NewMetrics creates a Metrics instance with the given meter.
func NewMetrics(meter metric.Meter) (Metrics, error) {
	return newMetrics(meter)
}

func newMetrics(meter metric.Meter) (*metricsImpl, error) {
	m := &metricsImpl{meter: meter}
	var err error

	if m.cacheLookups, err = meter.Int64Counter(
		"sampleops.cache.lookups",
		metric.WithDescription("Cache lookups by result"),
		metric.WithUnit("{lookup}"),
	); err != nil {
		return nil, err
	}

	if m.cacheEvictions, err = meter.Int64Counter(
		"sampleops.cache.evictions",
		metric.WithDescription("Cache evictions by reason"),
		metric.WithUnit("{entry}"),
	); err != nil {
		return nil, err
	}

	if m.sampleDuration, err = meter.Float64Histogram(
		"sampleops.sample.duration_ms",
		metric.WithDescription("Sampling backend call duration in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, err
	}

	if m.sampleErrors, err = meter.Int64Counter(
		"sampleops.sample.errors",
		metric.WithDescription("Failed sampling calls by error type"),
		metric.WithUnit("{error}"),
	); err != nil {
		return nil, err
	}

	if m.recoverySessions, err = meter.Int64Counter(
		"sampleops.recovery.sessions",
		metric.WithDescription("Finished recovery sessions by outcome"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, err
	}

	if m.recoveryLength, err = meter.Int64Histogram(
		"sampleops.recovery.session_attempts",
		metric.WithDescription("Recorded failures per recovery session"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, err
	}

	if m.recoveryAttempts, err = meter.Int64Counter(
		"sampleops.recovery.attempts",
		metric.WithDescription("Recovery strategy applications"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, err
	}

	if m.similarRequests, err = meter.Int64Counter(
		"sampleops.requests.similar",
		metric.WithDescription("Cache misses grouped by similarity key reuse"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *metricsImpl) RecordCacheLookup(ctx context.Context, templateID string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("result", result),
		attribute.String("template_id", templateID),
	))
}

func (m *metricsImpl) RecordEviction(ctx context.Context, reason string) {
	m.cacheEvictions.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *metricsImpl) RecordSample(ctx context.Context, meta OpMeta, duration time.Duration, errorType string) {
	attrs := []attribute.KeyValue{
		attribute.String("template_id", meta.TemplateID),
	}
	if meta.Strategy != "" {
		attrs = append(attrs, attribute.String("strategy", meta.Strategy))
	}
	opt := metric.WithAttributes(attrs...)

	m.sampleDuration.Record(ctx, float64(duration.Milliseconds()), opt)

	if errorType != "" {
		m.sampleErrors.Add(ctx, 1, metric.WithAttributes(append(attrs, attribute.String("error_type", errorType))...))
	}
}

func (m *metricsImpl) RecordRecoverySession(ctx context.Context, outcome string, attempts int) {
	opt := metric.WithAttributes(attribute.String("outcome", outcome))
	m.recoverySessions.Add(ctx, 1, opt)
	m.recoveryLength.Record(ctx, int64(attempts), opt)
}

func (m *metricsImpl) RecordRecoveryAttempt(ctx context.Context, strategy string, success bool) {
	m.recoveryAttempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("strategy", strategy),
		attribute.Bool("success", success),
	))
}

func (m *metricsImpl) RecordSimilarRequest(ctx context.Context, templateID string, nearDuplicate bool) {
	m.similarRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("template_id", templateID),
		attribute.Bool("near_duplicate", nearDuplicate),
	))
}

func (m *metricsImpl) ObserveCache(fn func() CacheSnapshot) error {
	entries, err := m.meter.Int64ObservableGauge(
		"sampleops.cache.entries",
		metric.WithDescription("Live cache entries"),
		metric.WithUnit("{entry}"),
	)
	if err != nil {
		return err
	}

	memory, err := m.meter.Int64ObservableGauge(
		"sampleops.cache.memory_bytes",
		metric.WithDescription("Estimated cache memory usage"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return err
	}

	_, err = m.meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		snap := fn()
		o.ObserveInt64(entries, snap.Entries)
		o.ObserveInt64(memory, snap.MemoryBytes)
		return nil
	}, entries, memory)
	return err
}

// noopMetrics is a metrics implementation that does nothing.
type noopMetrics struct{}

// NopMetrics returns a Metrics that records nothing.
func NopMetrics() Metrics {
	return noopMetrics{}
}

func (noopMetrics) RecordCacheLookup(context.Context, string, bool)              {}
func (noopMetrics) RecordEviction(context.Context, string)                       {}
func (noopMetrics) RecordSample(context.Context, OpMeta, time.Duration, string)  {}
func (noopMetrics) RecordRecoverySession(context.Context, string, int)           {}
func (noopMetrics) RecordRecoveryAttempt(context.Context, string, bool)          {}
func (noopMetrics) RecordSimilarRequest(context.Context, string, bool)           {}
func (noopMetrics) ObserveCache(func() CacheSnapshot) error                      { return nil }

var (
	_ Metrics = (*metricsImpl)(nil)
	_ Metrics = noopMetrics{}
)
