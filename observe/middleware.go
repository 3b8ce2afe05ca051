package observe

import (
	"context"
	"strconv"
	"time"

	"github.com/jonwraymond/sampleops/sampling"
)

// Middleware wraps a sampler with observability (tracing, metrics, logging).
//
// Contract:
//   - Concurrency: Wrap() returns a thread-safe Sampler.
//   - Context: Propagates context through tracing spans.
//   - Errors: Errors from the wrapped sampler are recorded and propagated unchanged.
//   - Ownership: Requests and responses are passed through without modification.
type Middleware struct {
	tracer   Tracer
	metrics  Metrics
	logger   Logger
	classify func(error) string
}

// NewMiddleware creates a new Middleware with the given observability components.
func NewMiddleware(tracer Tracer, metrics Metrics, logger Logger) *Middleware {
	if tracer == nil {
		tracer = NopTracer()
	}
	if metrics == nil {
		metrics = NopMetrics()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &Middleware{
		tracer:   tracer,
		metrics:  metrics,
		logger:   logger,
		classify: func(error) string { return "unknown" },
	}
}

// WithErrorClassifier sets the function used to label failed samples.
func (m *Middleware) WithErrorClassifier(fn func(error) string) *Middleware {
	if fn != nil {
		m.classify = fn
	}
	return m
}

// Wrap wraps a Sampler with tracing, metrics, and logging.
func (m *Middleware) Wrap(next sampling.Sampler) sampling.Sampler {
	return sampling.SamplerFunc(func(ctx context.Context, req sampling.Request) (sampling.Response, error) {
		meta := SampleMeta(req)

		ctx, span := m.tracer.StartSpan(ctx, meta)
		start := time.Now()

		resp, err := next.Sample(ctx, req)

		duration := time.Since(start)
		m.tracer.EndSpan(span, err)

		errorType := ""
		if err != nil {
			errorType = m.classify(err)
		}
		m.metrics.RecordSample(ctx, meta, duration, errorType)

		logger := m.logger.With(meta)
		fields := []Field{
			{Key: "duration_ms", Value: duration.Milliseconds()},
		}
		if meta.Attempt > 0 {
			fields = append(fields, Field{Key: "attempt", Value: meta.Attempt})
		}
		if meta.Strategy != "" {
			fields = append(fields, Field{Key: "strategy", Value: meta.Strategy})
		}

		if err != nil {
			fields = append(fields,
				Field{Key: "error", Value: err.Error()},
				Field{Key: "error_type", Value: errorType},
			)
			logger.Warn(ctx, "sample failed", fields...)
		} else {
			fields = append(fields, Field{Key: "tokens_used", Value: resp.TokensUsed})
			logger.Debug(ctx, "sample completed", fields...)
		}

		return resp, err
	})
}

// SampleMeta derives span metadata from a request and its annotations.
func SampleMeta(req sampling.Request) OpMeta {
	meta := OpMeta{
		Operation:  OpSample,
		TemplateID: req.TemplateID,
		SessionID:  req.Annotation(sampling.AnnotationSessionID),
		Strategy:   req.Annotation(sampling.AnnotationStrategy),
		Model:      req.Params.Model,
	}
	if n, err := strconv.Atoi(req.Annotation(sampling.AnnotationAttempt)); err == nil {
		meta.Attempt = n
	}
	return meta
}

// MiddlewareFromObserver creates a Middleware from an Observer.
func MiddlewareFromObserver(obs Observer) (*Middleware, error) {
	if obs == nil {
		return nil, ErrNilObserver
	}

	metrics, err := newMetrics(obs.Meter())
	if err != nil {
		return nil, err
	}

	return NewMiddleware(NewTracer(obs.Tracer()), metrics, obs.Logger()), nil
}
