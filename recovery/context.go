package recovery

import (
	"slices"
	"time"

	"github.com/jonwraymond/sampleops/sampling"
)

// Hard ceilings applied by ShouldAbandon regardless of driver settings.
const (
	MaxAttemptsCeiling = 5
	MaxDurationCeiling = 60 * time.Second
	MaxTokensCeiling   = 10_000

	// repeatWindow is how many identical trailing errors count as no progress.
	repeatWindow = 3
)

// Metadata is the bookkeeping part of an ErrorContext.
type Metadata struct {
	FirstErrorAt    time.Time `json:"first_error_at"`
	LastErrorAt     time.Time `json:"last_error_at"`
	TokensUsed      int       `json:"tokens_used"`
	ModelsAttempted []string  `json:"models_attempted,omitempty"`
}

// ErrorContext is the failure history of one recovery session.
//
// Invariants: Attempt equals len(PreviousErrors) and grows by exactly one
// per Record. An ErrorContext is owned by one session and is not safe for
// concurrent use.
type ErrorContext struct {
	Attempt        int              `json:"attempt"`
	PreviousErrors []string         `json:"previous_errors"`
	ErrorType      ErrorType        `json:"error_type"`
	Patterns       []FailurePattern `json:"patterns,omitempty"`
	StrategiesUsed []string         `json:"strategies_used,omitempty"`
	PartialResult  any              `json:"-"`
	Metadata       Metadata         `json:"metadata"`

	lastErr error
}

// NewErrorContext opens a context for the first failure of req.
func NewErrorContext(req sampling.Request, err error, now time.Time) *ErrorContext {
	ec := &ErrorContext{
		Metadata: Metadata{FirstErrorAt: now},
	}
	ec.record(req, err, now)
	return ec
}

// Record adds one failed attempt made with the named strategy.
func (c *ErrorContext) Record(req sampling.Request, err error, strategy string, now time.Time) {
	if strategy != "" {
		c.StrategiesUsed = append(c.StrategiesUsed, strategy)
	}
	c.record(req, err, now)
}

func (c *ErrorContext) record(req sampling.Request, err error, now time.Time) {
	msg := "<nil>"
	if err != nil {
		msg = err.Error()
	}

	c.Attempt++
	c.PreviousErrors = append(c.PreviousErrors, msg)
	c.lastErr = err
	c.Metadata.LastErrorAt = now

	// A known type sticks; unknown is upgraded by the first specific one.
	if typ := Classify(err); c.ErrorType == ErrorUnknown {
		c.ErrorType = typ
	}

	c.Patterns = MergePatterns(c.Patterns, DetectPatterns(msg))

	if partial := sampling.PartialResult(err); partial != nil {
		c.PartialResult = partial
	}
	c.Metadata.TokensUsed += sampling.TokensUsed(err)

	model := sampling.ModelOf(err)
	if model == "" {
		model = req.Params.Model
	}
	if model != "" && !slices.Contains(c.Metadata.ModelsAttempted, model) {
		c.Metadata.ModelsAttempted = append(c.Metadata.ModelsAttempted, model)
	}
}

// AddTokens adds tokens spent outside of a recorded failure.
func (c *ErrorContext) AddTokens(n int) {
	c.Metadata.TokensUsed += n
}

// LastError returns the most recently recorded error.
func (c *ErrorContext) LastError() error {
	return c.lastErr
}

// Elapsed returns the time since the first failure.
func (c *ErrorContext) Elapsed(now time.Time) time.Duration {
	return now.Sub(c.Metadata.FirstErrorAt)
}

// TimesUsed returns how often the named strategy was recorded.
func (c *ErrorContext) TimesUsed(strategy string) int {
	n := 0
	for _, s := range c.StrategiesUsed {
		if s == strategy {
			n++
		}
	}
	return n
}

// HasPattern reports whether a pattern of type p was detected.
func (c *ErrorContext) HasPattern(p PatternType) bool {
	return slices.ContainsFunc(c.Patterns, func(fp FailurePattern) bool {
		return fp.Type == p
	})
}

// PatternTypes returns the names of the detected patterns, highest
// confidence first.
func (c *ErrorContext) PatternTypes() []string {
	out := make([]string, len(c.Patterns))
	for i, p := range c.Patterns {
		out[i] = p.Type.String()
	}
	return out
}

// Repeating reports whether the last three errors are textually identical.
func (c *ErrorContext) Repeating() bool {
	n := len(c.PreviousErrors)
	if n < repeatWindow {
		return false
	}
	last := c.PreviousErrors[n-1]
	for _, e := range c.PreviousErrors[n-repeatWindow : n-1] {
		if e != last {
			return false
		}
	}
	return true
}

// ShouldAbandon applies the hard ceilings: more than five attempts, more
// than 60s since the first failure, the same error three times in a row,
// or more than 10,000 tokens spent.
func (c *ErrorContext) ShouldAbandon(now time.Time) bool {
	return c.abandonReason(now, Limits{}) != ReasonNone
}

// abandonReason checks limits (tightened by the hard ceilings) in a fixed
// order: attempts, time, tokens, repetition.
func (c *ErrorContext) abandonReason(now time.Time, limits Limits) Reason {
	limits = limits.clamped()
	switch {
	case c.Attempt > limits.MaxAttempts:
		return ReasonMaxAttempts
	case c.Elapsed(now) > limits.MaxDuration:
		return ReasonMaxTime
	case c.Metadata.TokensUsed > limits.MaxTokens:
		return ReasonMaxTokens
	case c.Repeating():
		return ReasonRepeatingError
	default:
		return ReasonNone
	}
}

// Snapshot returns a deep copy safe to hand to callers.
func (c *ErrorContext) Snapshot() ErrorContext {
	out := *c
	out.PreviousErrors = slices.Clone(c.PreviousErrors)
	out.Patterns = slices.Clone(c.Patterns)
	out.StrategiesUsed = slices.Clone(c.StrategiesUsed)
	out.Metadata.ModelsAttempted = slices.Clone(c.Metadata.ModelsAttempted)
	return out
}

// Limits are per-session budgets. Zero fields take the ceiling value;
// values above a ceiling are lowered to it.
type Limits struct {
	MaxAttempts int
	MaxDuration time.Duration
	MaxTokens   int
}

// DefaultLimits returns the ceiling values.
func DefaultLimits() Limits {
	return Limits{
		MaxAttempts: MaxAttemptsCeiling,
		MaxDuration: MaxDurationCeiling,
		MaxTokens:   MaxTokensCeiling,
	}
}

func (l Limits) clamped() Limits {
	d := DefaultLimits()
	if l.MaxAttempts <= 0 || l.MaxAttempts > d.MaxAttempts {
		l.MaxAttempts = d.MaxAttempts
	}
	if l.MaxDuration <= 0 || l.MaxDuration > d.MaxDuration {
		l.MaxDuration = d.MaxDuration
	}
	if l.MaxTokens <= 0 || l.MaxTokens > d.MaxTokens {
		l.MaxTokens = d.MaxTokens
	}
	return l
}
