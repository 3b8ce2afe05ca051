package recovery

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/jonwraymond/sampleops/sampling"
)

// DefaultStrategyMaxAttempts is the reuse cap of a strategy that does not
// declare one.
const DefaultStrategyMaxAttempts = 3

// Strategy decides whether it applies to a failure and how to transform
// the next attempt's request.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use; all
// session state lives in the ErrorContext.
// - Purity: Recover must not mutate req or ec; it returns a derived request.
type Strategy interface {
	// Name identifies the strategy in StrategiesUsed and telemetry.
	Name() string

	// Priority orders strategies; lower is tried first.
	Priority() int

	// MaxAttempts caps how often the strategy may fire in one session.
	// Non-positive means DefaultStrategyMaxAttempts.
	MaxAttempts() int

	// CanHandle reports whether the strategy applies. The registry checks
	// the reuse cap before calling it.
	CanHandle(err error, ec *ErrorContext) bool

	// Recover returns the request for the next attempt.
	Recover(req sampling.Request, err error, ec *ErrorContext) sampling.Request
}

// Delayer is implemented by strategies that want the driver to wait
// before the next attempt.
type Delayer interface {
	Delay(ec *ErrorContext) time.Duration
}

// Registry is an ordered set of strategies.
type Registry struct {
	mu         sync.RWMutex
	strategies []Strategy
}

// NewRegistry creates a registry holding strategies. It panics on invalid
// or duplicate strategies, which are programming errors.
func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{}
	for _, s := range strategies {
		if err := r.Register(s); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds a strategy. Strategies with equal priority keep their
// registration order.
func (r *Registry) Register(s Strategy) error {
	if s == nil || s.Name() == "" {
		return ErrInvalidStrategy
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if slices.ContainsFunc(r.strategies, func(existing Strategy) bool { return existing.Name() == s.Name() }) {
		return fmt.Errorf("%w: %s", ErrDuplicateStrategy, s.Name())
	}

	r.strategies = append(r.strategies, s)
	slices.SortStableFunc(r.strategies, func(a, b Strategy) int {
		return cmp.Compare(a.Priority(), b.Priority())
	})
	return nil
}

// Unregister removes the named strategy.
func (r *Registry) Unregister(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	before := len(r.strategies)
	r.strategies = slices.DeleteFunc(r.strategies, func(s Strategy) bool { return s.Name() == name })
	return len(r.strategies) != before
}

// Get returns the named strategy.
func (r *Registry) Get(name string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.strategies {
		if s.Name() == name {
			return s, true
		}
	}
	return nil, false
}

// Strategies returns the registered strategies in priority order.
func (r *Registry) Strategies() []Strategy {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.strategies)
}

// Eligible reports whether s may handle the failure: its reuse cap is not
// exhausted and its own CanHandle agrees.
func Eligible(s Strategy, err error, ec *ErrorContext) bool {
	if ec.TimesUsed(s.Name()) >= strategyCap(s) {
		return false
	}
	return s.CanHandle(err, ec)
}

// Select returns the first eligible strategy in priority order.
func (r *Registry) Select(err error, ec *ErrorContext) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, s := range r.strategies {
		if Eligible(s, err, ec) {
			return s, true
		}
	}
	return nil, false
}

func strategyCap(s Strategy) int {
	if n := s.MaxAttempts(); n > 0 {
		return n
	}
	return DefaultStrategyMaxAttempts
}

// Confidence scores a selected strategy for telemetry: 0.7 minus 0.1 per
// attempt after the first, raised to 0.8 x the strongest pattern when
// patterns exist, minus 0.15 per earlier use of the strategy, clamped to
// [0.1, 1.0]. It never gates execution.
func Confidence(ec *ErrorContext, strategy string) float64 {
	score := 0.7 - 0.1*float64(ec.Attempt-1)
	if len(ec.Patterns) > 0 {
		score = max(score, MaxConfidence(ec.Patterns)*0.8)
	}
	score -= 0.15 * float64(ec.TimesUsed(strategy))

	// Round away float noise before clamping
	score = math.Round(score*1000) / 1000
	return min(max(score, 0.1), 1.0)
}

// Temperature and token adjustment bounds used by Adjust.
const (
	temperatureFactor = 0.8
	temperatureFloor  = 0.1
	maxTokensFactor   = 0.2
	maxTokensRaiseCap = 500
)

// Adjust applies the adjustments shared by every strategy. From the second
// attempt on it lowers temperature by 20% (not below 0.1) and raises max
// tokens by up to 20% (at most +500). It always annotates the request with
// the attempt, strategy, previous error, and pattern types; annotations
// are not part of the cache fingerprint.
func Adjust(req sampling.Request, ec *ErrorContext, strategy string) sampling.Request {
	out := req.Clone()

	if ec.Attempt > 1 {
		t := out.Params.Temperature
		if lowered := t * temperatureFactor; lowered >= temperatureFloor {
			out.Params.Temperature = lowered
		} else {
			out.Params.Temperature = min(t, temperatureFloor)
		}

		if mt := out.Params.MaxTokens; mt > 0 {
			out.Params.MaxTokens = mt + min(int(float64(mt)*maxTokensFactor), maxTokensRaiseCap)
		}
	}

	previous := ""
	if n := len(ec.PreviousErrors); n > 0 {
		previous = ec.PreviousErrors[n-1]
	}

	return out.
		WithAnnotation(sampling.AnnotationAttempt, ec.Attempt).
		WithAnnotation(sampling.AnnotationStrategy, strategy).
		WithAnnotation(sampling.AnnotationPreviousError, previous).
		WithAnnotation(sampling.AnnotationPatternTypes, ec.PatternTypes())
}
