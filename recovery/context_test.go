package recovery

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jonwraymond/sampleops/sampling"
)

func TestNewErrorContext(t *testing.T) {
	clock := newFakeClock()
	req := testRequest()
	req.Params.Model = "gpt-test"

	ec := NewErrorContext(req, errors.New("Unexpected token at position 4"), clock.Now())

	if ec.Attempt != 1 {
		t.Errorf("Attempt = %d, want 1", ec.Attempt)
	}
	if ec.ErrorType != ErrorParsing {
		t.Errorf("ErrorType = %v, want parsing", ec.ErrorType)
	}
	if !ec.HasPattern(PatternJSONSyntax) {
		t.Errorf("Patterns = %v, want json_syntax", ec.Patterns)
	}
	if !ec.Metadata.FirstErrorAt.Equal(clock.Now()) {
		t.Errorf("FirstErrorAt = %v, want %v", ec.Metadata.FirstErrorAt, clock.Now())
	}
	if diff := cmp.Diff([]string{"gpt-test"}, ec.Metadata.ModelsAttempted); diff != "" {
		t.Errorf("ModelsAttempted mismatch (-want +got):\n%s", diff)
	}
}

func TestErrorContext_Monotonic(t *testing.T) {
	clock := newFakeClock()
	req := testRequest()
	ec := NewErrorContext(req, errors.New("first"), clock.Now())

	for i := 2; i <= 6; i++ {
		clock.Advance(time.Second)
		prevErrors := len(ec.PreviousErrors)
		prevAttempt := ec.Attempt

		ec.Record(req, fmt.Errorf("failure %d", i), "simplify", clock.Now())

		if ec.Attempt != prevAttempt+1 {
			t.Fatalf("Attempt = %d, want %d", ec.Attempt, prevAttempt+1)
		}
		if len(ec.PreviousErrors) != prevErrors+1 {
			t.Fatalf("len(PreviousErrors) = %d, want %d", len(ec.PreviousErrors), prevErrors+1)
		}
		if ec.Attempt != len(ec.PreviousErrors) {
			t.Fatalf("Attempt %d != len(PreviousErrors) %d", ec.Attempt, len(ec.PreviousErrors))
		}
	}

	if got := ec.TimesUsed("simplify"); got != 5 {
		t.Errorf("TimesUsed = %d, want 5", got)
	}
	if got := ec.Elapsed(clock.Now()); got != 5*time.Second {
		t.Errorf("Elapsed = %v, want 5s", got)
	}
	if !ec.Metadata.LastErrorAt.Equal(clock.Now()) {
		t.Errorf("LastErrorAt = %v, want %v", ec.Metadata.LastErrorAt, clock.Now())
	}
}

func TestErrorContext_ErrorTypeSticks(t *testing.T) {
	now := newFakeClock().Now()
	req := testRequest()

	ec := NewErrorContext(req, errors.New("boom"), now)
	if ec.ErrorType != ErrorUnknown {
		t.Fatalf("ErrorType = %v, want unknown", ec.ErrorType)
	}

	ec.Record(req, errors.New("request timed out"), "simplify", now)
	if ec.ErrorType != ErrorTimeout {
		t.Fatalf("ErrorType = %v, want timeout", ec.ErrorType)
	}

	ec.Record(req, errors.New("invalid json"), "transient_backoff", now)
	if ec.ErrorType != ErrorTimeout {
		t.Errorf("ErrorType = %v, want timeout to stick", ec.ErrorType)
	}
	if !ec.HasPattern(PatternJSONSyntax) {
		t.Error("patterns should still accumulate")
	}
}

func TestErrorContext_SamplingErrorDetails(t *testing.T) {
	now := newFakeClock().Now()
	req := testRequest()

	err := &sampling.Error{
		Message:    "response truncated",
		Partial:    "FROM python:3.12\nRUN pip",
		TokensUsed: 700,
		Model:      "model-a",
	}
	ec := NewErrorContext(req, err, now)
	ec.Record(req, &sampling.Error{Message: "response truncated", TokensUsed: 300, Model: "model-b"}, "complete_response", now)
	ec.AddTokens(50)

	if got := sampling.ArtifactString(ec.PartialResult); got != "FROM python:3.12\nRUN pip" {
		t.Errorf("PartialResult = %q", got)
	}
	if ec.Metadata.TokensUsed != 1050 {
		t.Errorf("TokensUsed = %d, want 1050", ec.Metadata.TokensUsed)
	}
	if diff := cmp.Diff([]string{"model-a", "model-b"}, ec.Metadata.ModelsAttempted); diff != "" {
		t.Errorf("ModelsAttempted mismatch (-want +got):\n%s", diff)
	}
	if ec.LastError().Error() != "response truncated" {
		t.Errorf("LastError = %v", ec.LastError())
	}
}

func TestErrorContext_Repeating(t *testing.T) {
	now := newFakeClock().Now()
	req := testRequest()
	msg := "Unexpected token at position 4"

	ec := NewErrorContext(req, errors.New(msg), now)
	ec.Record(req, errors.New(msg), "json_repair", now)
	if ec.Repeating() {
		t.Fatal("two identical errors should not count as repeating")
	}

	ec.Record(req, errors.New(msg), "json_repair", now)
	if !ec.Repeating() {
		t.Fatal("three identical errors should count as repeating")
	}

	ec.Record(req, errors.New("different"), "simplify", now)
	if ec.Repeating() {
		t.Error("a different trailing error should reset repetition")
	}
}

func TestErrorContext_ShouldAbandon(t *testing.T) {
	tests := []struct {
		name  string
		setup func(ec *ErrorContext, clock *fakeClock)
		want  Reason
	}{
		{
			name:  "fresh",
			setup: func(*ErrorContext, *fakeClock) {},
			want:  ReasonNone,
		},
		{
			name: "five attempts",
			setup: func(ec *ErrorContext, clock *fakeClock) {
				for i := 2; i <= 5; i++ {
					ec.Record(testRequest(), fmt.Errorf("e%d", i), "s", clock.Now())
				}
			},
			want: ReasonNone,
		},
		{
			name: "six attempts",
			setup: func(ec *ErrorContext, clock *fakeClock) {
				for i := 2; i <= 6; i++ {
					ec.Record(testRequest(), fmt.Errorf("e%d", i), "s", clock.Now())
				}
			},
			want: ReasonMaxAttempts,
		},
		{
			name: "sixty seconds",
			setup: func(_ *ErrorContext, clock *fakeClock) {
				clock.Advance(60 * time.Second)
			},
			want: ReasonNone,
		},
		{
			name: "over sixty seconds",
			setup: func(_ *ErrorContext, clock *fakeClock) {
				clock.Advance(61 * time.Second)
			},
			want: ReasonMaxTime,
		},
		{
			name: "over token ceiling",
			setup: func(ec *ErrorContext, _ *fakeClock) {
				ec.AddTokens(10_001)
			},
			want: ReasonMaxTokens,
		},
		{
			name: "repeating",
			setup: func(ec *ErrorContext, clock *fakeClock) {
				ec.Record(testRequest(), errors.New("e1"), "s", clock.Now())
				ec.Record(testRequest(), errors.New("e1"), "s", clock.Now())
			},
			want: ReasonRepeatingError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clock := newFakeClock()
			ec := NewErrorContext(testRequest(), errors.New("e1"), clock.Now())
			tt.setup(ec, clock)

			if got := ec.abandonReason(clock.Now(), Limits{}); got != tt.want {
				t.Errorf("abandonReason = %v, want %v", got, tt.want)
			}
			if got := ec.ShouldAbandon(clock.Now()); got != (tt.want != ReasonNone) {
				t.Errorf("ShouldAbandon = %v, want %v", got, tt.want != ReasonNone)
			}
		})
	}
}

func TestLimits_Clamped(t *testing.T) {
	tests := []struct {
		name string
		in   Limits
		want Limits
	}{
		{"zero", Limits{}, DefaultLimits()},
		{"tighter", Limits{MaxAttempts: 3, MaxDuration: time.Second, MaxTokens: 500}, Limits{MaxAttempts: 3, MaxDuration: time.Second, MaxTokens: 500}},
		{"looser", Limits{MaxAttempts: 50, MaxDuration: time.Hour, MaxTokens: 1_000_000}, DefaultLimits()},
		{"negative", Limits{MaxAttempts: -1, MaxDuration: -time.Second, MaxTokens: -1}, DefaultLimits()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.in.clamped()); diff != "" {
				t.Errorf("clamped mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestErrorContext_Snapshot(t *testing.T) {
	now := newFakeClock().Now()
	ec := NewErrorContext(testRequest(), errors.New("invalid json"), now)
	ec.Record(testRequest(), errors.New("invalid json again"), "json_repair", now)

	snap := ec.Snapshot()
	ec.PreviousErrors[0] = "mutated"
	ec.StrategiesUsed[0] = "mutated"
	ec.Patterns[0].Confidence = 0

	if snap.PreviousErrors[0] != "invalid json" {
		t.Errorf("snapshot PreviousErrors shares memory: %v", snap.PreviousErrors)
	}
	if snap.StrategiesUsed[0] != "json_repair" {
		t.Errorf("snapshot StrategiesUsed shares memory: %v", snap.StrategiesUsed)
	}
	if snap.Patterns[0].Confidence != 0.9 {
		t.Errorf("snapshot Patterns shares memory: %v", snap.Patterns)
	}
}

func TestErrorContext_PatternTypes(t *testing.T) {
	now := newFakeClock().Now()
	ec := NewErrorContext(testRequest(), errors.New("Unexpected token; required field missing"), now)

	want := []string{"json_syntax", "missing_field"}
	if diff := cmp.Diff(want, ec.PatternTypes()); diff != "" {
		t.Errorf("PatternTypes mismatch (-want +got):\n%s", diff)
	}
}
