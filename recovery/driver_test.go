package recovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/jonwraymond/sampleops/observe"
	"github.com/jonwraymond/sampleops/sampling"
)

func newTestDriver(clock *fakeClock, cfg Config) *Driver {
	cfg.Clock = clock.Now
	if cfg.Sleep == nil {
		cfg.Sleep = func(ctx context.Context, d time.Duration) error {
			clock.Advance(d)
			return ctx.Err()
		}
	}
	return NewDriver(cfg)
}

func abandonReasonOf(t *testing.T, res *Result) Reason {
	t.Helper()
	var ae *AbandonedError
	if !errors.As(res.Err(), &ae) {
		t.Fatalf("Err() = %v, want *AbandonedError", res.Err())
	}
	if ae.Reason != res.AbandonReason {
		t.Errorf("AbandonedError.Reason = %v, Result.AbandonReason = %v", ae.Reason, res.AbandonReason)
	}
	return ae.Reason
}

func TestDriver_RecoversOnFirstRetry(t *testing.T) {
	clock := newFakeClock()
	d := newTestDriver(clock, Config{})
	exec := &scriptedSampler{}

	res := d.Recover(context.Background(), testRequest(), errors.New("Unexpected token at position 4"), exec)

	if !res.Success || res.Err() != nil {
		t.Fatalf("Success = %v, Err = %v", res.Success, res.Err())
	}
	if res.State != StateSucceeded {
		t.Errorf("State = %v, want succeeded", res.State)
	}
	if res.SessionID == "" {
		t.Error("SessionID is empty")
	}
	if got := sampling.ArtifactString(res.Response.Artifact); got != "FROM python:3.12-slim" {
		t.Errorf("Artifact = %q", got)
	}

	if len(res.Attempts) != 1 {
		t.Fatalf("len(Attempts) = %d, want 1", len(res.Attempts))
	}
	a := res.Attempts[0]
	if a.Strategy != StrategyJSONRepair || !a.Success || a.Number != 1 || a.Confidence != 0.72 {
		t.Errorf("Attempt = %+v", a)
	}

	sent := exec.requests[0]
	if got := sent.Annotation(sampling.AnnotationSessionID); got != res.SessionID {
		t.Errorf("session_id annotation = %q, want %q", got, res.SessionID)
	}
	if got := sent.Annotation(sampling.AnnotationStrategy); got != StrategyJSONRepair {
		t.Errorf("strategy annotation = %q", got)
	}
	if !strings.Contains(sent.Prompt, "strictly valid JSON") {
		t.Errorf("prompt not repaired: %q", sent.Prompt)
	}

	if diff := cmp.Diff([]string{StrategyJSONRepair}, res.Context.StrategiesUsed); diff != "" {
		t.Errorf("StrategiesUsed mismatch (-want +got):\n%s", diff)
	}
	if res.Context.Metadata.TokensUsed != 120 {
		t.Errorf("TokensUsed = %d, want 120", res.Context.Metadata.TokensUsed)
	}
}

func TestDriver_CarriesParamsAcrossAttempts(t *testing.T) {
	clock := newFakeClock()
	d := newTestDriver(clock, Config{
		Registry: DefaultRegistry(StrategyOptions{FallbackModels: []string{"backup"}}),
	})
	exec := &scriptedSampler{errs: []error{
		errors.New("Unexpected token at position 4"),
		errors.New("Unexpected token at position 9"),
	}}
	req := testRequest()
	req.Params.Model = "primary"

	res := d.Recover(context.Background(), req, errors.New("model primary overloaded"), exec)
	if !res.Success {
		t.Fatalf("Success = false, Err = %v", res.Err())
	}

	var strategies []string
	for _, a := range res.Attempts {
		strategies = append(strategies, a.Strategy)
	}
	want := []string{StrategyModelFallback, StrategyJSONRepair, StrategyJSONRepair}
	if diff := cmp.Diff(want, strategies); diff != "" {
		t.Fatalf("strategies mismatch (-want +got):\n%s", diff)
	}

	if len(exec.requests) != 3 {
		t.Fatalf("calls = %d, want 3", len(exec.requests))
	}
	for i, sent := range exec.requests {
		if sent.Params.Model != "backup" {
			t.Errorf("call %d model = %q, want backup", i+1, sent.Params.Model)
		}
	}

	temps := []float64{0.2, 0.16, 0.128}
	for i, sent := range exec.requests {
		if diff := sent.Params.Temperature - temps[i]; diff > 1e-9 || diff < -1e-9 {
			t.Errorf("call %d temperature = %v, want %v", i+1, sent.Params.Temperature, temps[i])
		}
	}
	if got := exec.requests[2].Params.MaxTokens; got <= exec.requests[1].Params.MaxTokens {
		t.Errorf("call 3 max tokens = %d, want above %d", got, exec.requests[1].Params.MaxTokens)
	}

	if n := strings.Count(exec.requests[2].Prompt, "strictly valid JSON"); n != 1 {
		t.Errorf("repair instruction appears %d times in %q", n, exec.requests[2].Prompt)
	}
}

func TestDriver_AbandonsAfterSixFailures(t *testing.T) {
	clock := newFakeClock()
	d := newTestDriver(clock, Config{
		Registry: DefaultRegistry(StrategyOptions{MaxAttempts: 5}),
	})

	var errs []error
	for i := 2; i <= 6; i++ {
		errs = append(errs, fmt.Errorf("failure %d", i))
	}
	exec := &scriptedSampler{errs: append(errs, errors.New("never reached"))}

	res := d.Recover(context.Background(), testRequest(), errors.New("failure 1"), exec)

	if res.Success {
		t.Fatal("expected abandonment")
	}
	if got := abandonReasonOf(t, res); got != ReasonMaxAttempts {
		t.Errorf("Reason = %v, want max attempts", got)
	}
	if exec.Calls() != 5 {
		t.Errorf("executor calls = %d, want 5", exec.Calls())
	}
	if len(res.Attempts) != 5 {
		t.Errorf("len(Attempts) = %d, want 5", len(res.Attempts))
	}
	if res.Context.Attempt != 6 {
		t.Errorf("Context.Attempt = %d, want 6", res.Context.Attempt)
	}
	if res.State != StateAbandoned {
		t.Errorf("State = %v, want abandoned", res.State)
	}
	if !errors.Is(res.Err(), ErrAbandoned) {
		t.Error("errors.Is(err, ErrAbandoned) = false")
	}
	if !strings.Contains(res.Err().Error(), "failure 6") {
		t.Errorf("Err() = %q, want last error wrapped", res.Err())
	}
}

func TestDriver_UnexpectedTokenScenario(t *testing.T) {
	const msg = "Unexpected token at position 4"
	clock := newFakeClock()
	registry := DefaultRegistry(StrategyOptions{})
	d := newTestDriver(clock, Config{Registry: registry})
	exec := &scriptedSampler{errs: repeatErr(msg, 5)}

	res := d.Recover(context.Background(), testRequest(), errors.New(msg), exec)

	if got := abandonReasonOf(t, res); got != ReasonRepeatingError {
		t.Errorf("Reason = %v, want repeating error", got)
	}
	if exec.Calls() != 2 {
		t.Errorf("executor calls = %d, want 2", exec.Calls())
	}

	ec := res.Context
	if ec.ErrorType != ErrorParsing {
		t.Errorf("ErrorType = %v, want parsing", ec.ErrorType)
	}
	wantPatterns := []FailurePattern{{Type: PatternJSONSyntax, Confidence: 0.9, SuggestedFix: "return strictly valid JSON"}}
	if diff := cmp.Diff(wantPatterns, ec.Patterns); diff != "" {
		t.Errorf("Patterns mismatch (-want +got):\n%s", diff)
	}
	for _, a := range res.Attempts {
		if a.Strategy != StrategyJSONRepair {
			t.Errorf("attempt %d used %s, want json_repair", a.Number, a.Strategy)
		}
	}

	// Simplification is also eligible but ranks behind JSON repair.
	simplify, _ := registry.Get(StrategySimplify)
	fresh := NewErrorContext(testRequest(), errors.New(msg), clock.Now())
	if !Eligible(simplify, errors.New(msg), fresh) {
		t.Error("simplify should be eligible for parsing errors")
	}
	if s, _ := registry.Select(errors.New(msg), fresh); s.Name() != StrategyJSONRepair {
		t.Errorf("Select = %s, want json_repair", s.Name())
	}
}

func TestDriver_NoStrategy(t *testing.T) {
	clock := newFakeClock()
	d := newTestDriver(clock, Config{
		Registry: NewRegistry(&stubStrategy{name: "never", handle: func(error, *ErrorContext) bool { return false }}),
	})
	exec := &scriptedSampler{}

	res := d.Recover(context.Background(), testRequest(), errors.New("boom"), exec)

	if got := abandonReasonOf(t, res); got != ReasonNoStrategy {
		t.Errorf("Reason = %v, want no strategy", got)
	}
	if exec.Calls() != 0 {
		t.Errorf("executor calls = %d, want 0", exec.Calls())
	}
	if !strings.Contains(res.Err().Error(), "no strategy available") {
		t.Errorf("Err() = %q", res.Err())
	}
}

func TestDriver_Canceled(t *testing.T) {
	clock := newFakeClock()
	d := newTestDriver(clock, Config{})
	exec := &scriptedSampler{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := d.Recover(ctx, testRequest(), errors.New("boom"), exec)

	if got := abandonReasonOf(t, res); got != ReasonCanceled {
		t.Errorf("Reason = %v, want canceled", got)
	}
	if exec.Calls() != 0 {
		t.Errorf("executor calls = %d, want 0", exec.Calls())
	}
}

func TestDriver_HonorsDelay(t *testing.T) {
	clock := newFakeClock()
	var slept []time.Duration
	d := newTestDriver(clock, Config{
		Registry: NewRegistry(delayStrategy{&stubStrategy{name: "wait", limit: 5, delay: 250 * time.Millisecond}}),
		Sleep: func(_ context.Context, d time.Duration) error {
			slept = append(slept, d)
			return nil
		},
	})
	exec := &scriptedSampler{errs: []error{errors.New("busy")}}

	res := d.Recover(context.Background(), testRequest(), errors.New("idle"), exec)

	if !res.Success {
		t.Fatalf("Err() = %v", res.Err())
	}
	if diff := cmp.Diff([]time.Duration{250 * time.Millisecond, 250 * time.Millisecond}, slept); diff != "" {
		t.Errorf("sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestDriver_SleepInterrupted(t *testing.T) {
	clock := newFakeClock()
	d := newTestDriver(clock, Config{
		Registry: NewRegistry(delayStrategy{&stubStrategy{name: "wait", delay: time.Second}}),
		Sleep: func(context.Context, time.Duration) error {
			return context.Canceled
		},
	})
	exec := &scriptedSampler{}

	res := d.Recover(context.Background(), testRequest(), errors.New("boom"), exec)

	if got := abandonReasonOf(t, res); got != ReasonCanceled {
		t.Errorf("Reason = %v, want canceled", got)
	}
	if exec.Calls() != 0 {
		t.Errorf("executor calls = %d, want 0", exec.Calls())
	}
}

func TestDriver_TimeBudget(t *testing.T) {
	clock := newFakeClock()
	d := newTestDriver(clock, Config{
		Registry: NewRegistry(&stubStrategy{name: "any", limit: 10}),
	})
	exec := &scriptedSampler{
		errs:     []error{errors.New("e2"), errors.New("e3"), errors.New("e4")},
		onSample: func(int) { clock.Advance(31 * time.Second) },
	}

	res := d.Recover(context.Background(), testRequest(), errors.New("e1"), exec)

	if got := abandonReasonOf(t, res); got != ReasonMaxTime {
		t.Errorf("Reason = %v, want max time", got)
	}
	if exec.Calls() != 2 {
		t.Errorf("executor calls = %d, want 2", exec.Calls())
	}
	if res.Attempts[0].Duration != 31*time.Second {
		t.Errorf("attempt Duration = %v, want 31s", res.Attempts[0].Duration)
	}
}

func TestDriver_TokenBudget(t *testing.T) {
	clock := newFakeClock()
	d := newTestDriver(clock, Config{
		Registry:  NewRegistry(&stubStrategy{name: "any", limit: 10}),
		MaxTokens: 1000,
	})
	exec := &scriptedSampler{errs: []error{
		&sampling.Error{Message: "e2", TokensUsed: 600},
		&sampling.Error{Message: "e3", TokensUsed: 600},
		&sampling.Error{Message: "e4", TokensUsed: 600},
	}}

	res := d.Recover(context.Background(), testRequest(), errors.New("e1"), exec)

	if got := abandonReasonOf(t, res); got != ReasonMaxTokens {
		t.Errorf("Reason = %v, want max tokens", got)
	}
	if exec.Calls() != 2 {
		t.Errorf("executor calls = %d, want 2", exec.Calls())
	}
	var ae *AbandonedError
	errors.As(res.Err(), &ae)
	if ae.TokensUsed != 1200 {
		t.Errorf("TokensUsed = %d, want 1200", ae.TokensUsed)
	}
}

func TestDriver_InvalidInput(t *testing.T) {
	d := NewDriver(Config{})

	res := d.Recover(context.Background(), testRequest(), nil, &scriptedSampler{})
	if !errors.Is(res.Err(), ErrNoInitialError) {
		t.Errorf("nil initial error: Err() = %v", res.Err())
	}
	if res.State != StateIdle {
		t.Errorf("State = %v, want idle", res.State)
	}

	res = d.Recover(context.Background(), testRequest(), errors.New("boom"), nil)
	if !errors.Is(res.Err(), sampling.ErrNilSampler) {
		t.Errorf("nil executor: Err() = %v", res.Err())
	}
}

func TestNewDriver_LimitsClamped(t *testing.T) {
	d := NewDriver(Config{MaxAttempts: 10, MaxDuration: time.Hour, MaxTokens: 500})
	want := Limits{MaxAttempts: 5, MaxDuration: 60 * time.Second, MaxTokens: 500}
	if diff := cmp.Diff(want, d.Limits()); diff != "" {
		t.Errorf("Limits mismatch (-want +got):\n%s", diff)
	}
	if d.Registry() == nil {
		t.Error("Registry should default")
	}
}

func TestDriver_LogsTransitions(t *testing.T) {
	var buf bytes.Buffer
	clock := newFakeClock()
	d := newTestDriver(clock, Config{
		Logger: observe.NewLoggerWithWriter("debug", &buf),
	})
	exec := &scriptedSampler{errs: []error{errors.New("Unexpected token at position 4")}}

	res := d.Recover(context.Background(), testRequest(), errors.New("Unexpected token at position 4"), exec)
	if !res.Success {
		t.Fatalf("Err() = %v", res.Err())
	}

	var states []string
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("invalid log line %q: %v", line, err)
		}
		for _, key := range []string{"strategy", "attempt", "elapsed_ms", "session_id"} {
			if _, ok := entry[key]; !ok {
				t.Errorf("log line %q missing %q", entry["msg"], key)
			}
		}
		states = append(states, entry["state"].(string))
	}

	want := []string{"attempting", "failed_retry", "succeeded"}
	if diff := cmp.Diff(want, states); diff != "" {
		t.Errorf("states mismatch (-want +got):\n%s", diff)
	}
}

func TestDriver_Spans(t *testing.T) {
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	clock := newFakeClock()
	d := newTestDriver(clock, Config{Tracer: observe.NewTracer(tp.Tracer("test"))})

	res := d.Recover(context.Background(), testRequest(), errors.New("boom"), &scriptedSampler{})
	if !res.Success {
		t.Fatalf("Err() = %v", res.Err())
	}

	var names []string
	for _, s := range rec.Ended() {
		names = append(names, s.Name())
	}
	want := []string{"sampleops.recovery.attempt", "sampleops.recovery"}
	if diff := cmp.Diff(want, names); diff != "" {
		t.Errorf("span names mismatch (-want +got):\n%s", diff)
	}
}

func TestState_String(t *testing.T) {
	tests := map[State]string{
		StateIdle:        "idle",
		StateAttempting:  "attempting",
		StateSucceeded:   "succeeded",
		StateFailedRetry: "failed_retry",
		StateAbandoned:   "abandoned",
		State(9):         "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", int(s), got, want)
		}
	}
}
