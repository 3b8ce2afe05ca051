package resilience

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonwraymond/sampleops/sampling"
)

// State represents the circuit breaker state.
type State int

const (
	// StateClosed means the circuit is operating normally.
	StateClosed State = iota
	// StateOpen means the circuit is blocking all requests.
	StateOpen
	// StateHalfOpen means the circuit is testing if the backend recovered.
	StateHalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig configures the circuit breaker.
type CircuitBreakerConfig struct {
	// MaxFailures is the number of consecutive failures before opening.
	// Default: 5
	MaxFailures int

	// ResetTimeout is how long the circuit stays open before probing.
	// Default: 30 seconds
	ResetTimeout time.Duration

	// HalfOpenMaxRequests is the max probes allowed in half-open state.
	// Default: 1
	HalfOpenMaxRequests int

	// OnStateChange is called when the circuit state changes.
	// It runs with the breaker lock held and must not call back into it.
	OnStateChange func(from, to State)

	// IsFailure determines if an error should count as a failure.
	// Default: non-nil errors other than context.Canceled.
	IsFailure func(err error) bool

	// Clock returns the current time.
	// Default: time.Now
	Clock func() time.Time
}

// CircuitBreaker implements the circuit breaker pattern.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu            sync.Mutex
	state         State
	failures      int
	successes     int
	rejected      int64
	lastFailure   time.Time
	halfOpenCount int
}

// NewCircuitBreaker creates a new circuit breaker.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.MaxFailures <= 0 {
		config.MaxFailures = 5
	}
	if config.ResetTimeout <= 0 {
		config.ResetTimeout = 30 * time.Second
	}
	if config.HalfOpenMaxRequests <= 0 {
		config.HalfOpenMaxRequests = 1
	}
	if config.IsFailure == nil {
		config.IsFailure = func(err error) bool {
			return err != nil && !errors.Is(err, context.Canceled)
		}
	}
	if config.Clock == nil {
		config.Clock = time.Now
	}

	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
	}
}

// Wrap returns a sampler that fails fast with ErrCircuitOpen while the
// circuit is open.
func (cb *CircuitBreaker) Wrap(next sampling.Sampler) sampling.Sampler {
	return sampling.SamplerFunc(func(ctx context.Context, req sampling.Request) (sampling.Response, error) {
		if err := cb.Allow(); err != nil {
			return sampling.Response{}, err
		}
		resp, err := next.Sample(ctx, req)
		cb.Record(err)
		return resp, err
	})
}

// Allow reserves a call. It returns ErrCircuitOpen when the call must not
// proceed. Every successful Allow must be followed by Record.
func (cb *CircuitBreaker) Allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.currentStateLocked() {
	case StateOpen:
		cb.rejected++
		return ErrCircuitOpen
	case StateHalfOpen:
		if cb.halfOpenCount >= cb.config.HalfOpenMaxRequests {
			cb.rejected++
			return ErrCircuitOpen
		}
		cb.halfOpenCount++
	}

	return nil
}

// Record reports the outcome of a call admitted by Allow.
func (cb *CircuitBreaker) Record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	isFailure := cb.config.IsFailure(err)

	switch cb.state {
	case StateClosed:
		if isFailure {
			cb.failures++
			cb.lastFailure = cb.config.Clock()
			if cb.failures >= cb.config.MaxFailures {
				cb.setStateLocked(StateOpen)
			}
		} else {
			cb.failures = 0
			cb.successes++
		}

	case StateHalfOpen:
		if isFailure {
			cb.lastFailure = cb.config.Clock()
			cb.setStateLocked(StateOpen)
		} else {
			cb.failures = 0
			cb.successes++
			cb.setStateLocked(StateClosed)
		}
	}
}

// State returns the current circuit state.
func (cb *CircuitBreaker) State() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.currentStateLocked()
}

// Reset resets the circuit breaker to closed state.
func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	cb.successes = 0
	cb.setStateLocked(StateClosed)
}

func (cb *CircuitBreaker) currentStateLocked() State {
	if cb.state == StateOpen && cb.config.Clock().Sub(cb.lastFailure) >= cb.config.ResetTimeout {
		cb.setStateLocked(StateHalfOpen)
	}
	return cb.state
}

func (cb *CircuitBreaker) setStateLocked(state State) {
	old := cb.state
	cb.state = state
	if state == StateHalfOpen {
		cb.halfOpenCount = 0
	}
	if old != state && cb.config.OnStateChange != nil {
		cb.config.OnStateChange(old, state)
	}
}

// Metrics returns current circuit breaker metrics.
func (cb *CircuitBreaker) Metrics() CircuitBreakerMetrics {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	return CircuitBreakerMetrics{
		State:       cb.currentStateLocked(),
		Failures:    cb.failures,
		Successes:   cb.successes,
		Rejected:    cb.rejected,
		LastFailure: cb.lastFailure,
	}
}

// CircuitBreakerMetrics contains circuit breaker statistics.
type CircuitBreakerMetrics struct {
	State       State
	Failures    int
	Successes   int
	Rejected    int64
	LastFailure time.Time
}
