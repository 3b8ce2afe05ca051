package resilience

import (
	"time"

	"github.com/jonwraymond/sampleops/sampling"
)

// Guard composes the resilience patterns around a sampler.
type Guard struct {
	circuitBreaker *CircuitBreaker
	rateLimiter    *RateLimiter
	bulkhead       *Bulkhead
	timeout        *Timeout
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// NewGuard creates a new guard. A guard with no options passes calls
// through unchanged.
func NewGuard(opts ...GuardOption) *Guard {
	g := &Guard{}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// GuardConfig is the declarative form of a Guard. Zero values disable the
// corresponding pattern.
type GuardConfig struct {
	// Timeout bounds each sample call.
	Timeout time.Duration

	// Rate is the sample calls allowed per second; Burst the bucket size.
	Rate  float64
	Burst int

	// WaitOnLimit waits up to MaxWait for a token instead of failing.
	WaitOnLimit bool
	MaxWait     time.Duration

	// MaxConcurrent bounds concurrent sample calls.
	MaxConcurrent int

	// BreakerFailures opens the circuit after this many consecutive
	// failures; BreakerReset is how long it stays open.
	BreakerFailures int
	BreakerReset    time.Duration
}

// NewGuardFromConfig builds a Guard with the patterns enabled in cfg.
func NewGuardFromConfig(cfg GuardConfig) *Guard {
	var opts []GuardOption
	if cfg.Rate > 0 {
		opts = append(opts, WithRateLimiter(NewRateLimiter(RateLimiterConfig{
			Rate:        cfg.Rate,
			Burst:       cfg.Burst,
			WaitOnLimit: cfg.WaitOnLimit,
			MaxWait:     cfg.MaxWait,
		})))
	}
	if cfg.MaxConcurrent > 0 {
		opts = append(opts, WithBulkhead(NewBulkhead(BulkheadConfig{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxWait:       cfg.MaxWait,
		})))
	}
	if cfg.BreakerFailures > 0 {
		opts = append(opts, WithCircuitBreaker(NewCircuitBreaker(CircuitBreakerConfig{
			MaxFailures:  cfg.BreakerFailures,
			ResetTimeout: cfg.BreakerReset,
		})))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, WithTimeout(cfg.Timeout))
	}
	return NewGuard(opts...)
}

// WithCircuitBreaker adds a circuit breaker to the guard.
func WithCircuitBreaker(cb *CircuitBreaker) GuardOption {
	return func(g *Guard) {
		g.circuitBreaker = cb
	}
}

// WithRateLimiter adds rate limiting to the guard.
func WithRateLimiter(rl *RateLimiter) GuardOption {
	return func(g *Guard) {
		g.rateLimiter = rl
	}
}

// WithBulkhead adds bulkhead isolation to the guard.
func WithBulkhead(b *Bulkhead) GuardOption {
	return func(g *Guard) {
		g.bulkhead = b
	}
}

// WithTimeout adds a per-call timeout to the guard.
func WithTimeout(timeout time.Duration) GuardOption {
	return func(g *Guard) {
		g.timeout = NewTimeout(TimeoutConfig{Timeout: timeout})
	}
}

// Wrap returns next guarded by all configured patterns.
//
// The call order is:
// 1. Rate Limiter (if configured) - limits call rate
// 2. Bulkhead (if configured) - limits concurrency
// 3. Circuit Breaker (if configured) - fails fast on a broken backend
// 4. Timeout (if configured) - bounds each call
func (g *Guard) Wrap(next sampling.Sampler) sampling.Sampler {
	s := next

	// Innermost first
	if g.timeout != nil {
		s = g.timeout.Wrap(s)
	}
	if g.circuitBreaker != nil {
		s = g.circuitBreaker.Wrap(s)
	}
	if g.bulkhead != nil {
		s = g.bulkhead.Wrap(s)
	}
	if g.rateLimiter != nil {
		s = g.rateLimiter.Wrap(s)
	}

	return s
}

// CircuitBreaker returns the configured circuit breaker, or nil.
func (g *Guard) CircuitBreaker() *CircuitBreaker {
	return g.circuitBreaker
}

// RateLimiter returns the configured rate limiter, or nil.
func (g *Guard) RateLimiter() *RateLimiter {
	return g.rateLimiter
}

// Bulkhead returns the configured bulkhead, or nil.
func (g *Guard) Bulkhead() *Bulkhead {
	return g.bulkhead
}
