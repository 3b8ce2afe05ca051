package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Span operation names.
const (
	OpGenerate        = "generate"
	OpSample          = "sample"
	OpRecovery        = "recovery"
	OpRecoveryAttempt = "recovery.attempt"
)

// OpMeta describes one instrumented operation.
type OpMeta struct {
	Operation  string // generate, sample, recovery, recovery.attempt (required)
	TemplateID string // Template the request was rendered from (optional)
	SessionID  string // Recovery session ID (optional)
	Strategy   string // Recovery strategy name (optional)
	Attempt    int    // Recovery attempt number (optional)
	Model      string // Requested model (optional)
}

// SpanName returns the deterministic span name for this operation.
// Format: sampleops.<operation>
func (m OpMeta) SpanName() string {
	return "sampleops." + m.Operation
}

// Validate checks that the operation is named.
func (m OpMeta) Validate() error {
	if m.Operation == "" {
		return ErrMissingOperation
	}
	return nil
}

func (m OpMeta) attributes() []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String("sampleops.op", m.Operation),
	}
	if m.TemplateID != "" {
		attrs = append(attrs, attribute.String("sampleops.template_id", m.TemplateID))
	}
	if m.SessionID != "" {
		attrs = append(attrs, attribute.String("sampleops.session_id", m.SessionID))
	}
	if m.Strategy != "" {
		attrs = append(attrs, attribute.String("sampleops.strategy", m.Strategy))
	}
	if m.Attempt > 0 {
		attrs = append(attrs, attribute.Int("sampleops.attempt", m.Attempt))
	}
	if m.Model != "" {
		attrs = append(attrs, attribute.String("sampleops.model", m.Model))
	}
	return attrs
}

// Tracer wraps OpenTelemetry tracing with operation-specific span management.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Errors: EndSpan must be best-effort and must not panic.
type Tracer interface {
	// StartSpan starts a new span for an operation.
	StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span)

	// EndSpan ends the span, recording any error.
	EndSpan(span trace.Span, err error)
}

// tracerImpl is the concrete implementation of Tracer.
type tracerImpl struct {
	tracer trace.Tracer
}

// NewTracer creates a Tracer wrapping the given OpenTelemetry tracer.
// A nil tracer yields a no-op Tracer.
func NewTracer(t trace.Tracer) Tracer {
	if t == nil {
		return NopTracer()
	}
	return &tracerImpl{tracer: t}
}

// StartSpan starts a new span with operation metadata as attributes.
func (t *tracerImpl) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, meta.SpanName(),
		trace.WithAttributes(append(meta.attributes(), attribute.Bool("sampleops.error", false))...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// EndSpan ends the span and records the error status if present.
func (t *tracerImpl) EndSpan(span trace.Span, err error) {
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.Bool("sampleops.error", true))
		span.RecordError(err)
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// noopTracer is a tracer that does nothing.
type noopTracer struct {
	noop trace.Tracer
}

// NopTracer returns a Tracer that records nothing.
func NopTracer() Tracer {
	return &noopTracer{
		noop: tracenoop.NewTracerProvider().Tracer("noop"),
	}
}

func (t *noopTracer) StartSpan(ctx context.Context, meta OpMeta) (context.Context, trace.Span) {
	return t.noop.Start(ctx, meta.SpanName())
}

func (t *noopTracer) EndSpan(span trace.Span, _ error) {
	span.End()
}
