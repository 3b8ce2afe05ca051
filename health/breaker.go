package health

import (
	"context"

	"github.com/jonwraymond/sampleops/resilience"
)

// BreakerSource is the part of a circuit breaker the checker reads.
type BreakerSource interface {
	Metrics() resilience.CircuitBreakerMetrics
}

// BreakerChecker reports the sampler circuit breaker: unhealthy while
// open, degraded while half-open.
type BreakerChecker struct {
	name   string
	source BreakerSource
}

// NewBreakerChecker creates a breaker checker. An empty name defaults to
// "sampler".
func NewBreakerChecker(name string, source BreakerSource) *BreakerChecker {
	if name == "" {
		name = "sampler"
	}
	return &BreakerChecker{name: name, source: source}
}

// Name returns the name of this checker.
func (b *BreakerChecker) Name() string {
	return b.name
}

// Check performs the breaker health check.
func (b *BreakerChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	m := b.source.Metrics()
	details := map[string]any{
		"state":     m.State.String(),
		"failures":  m.Failures,
		"successes": m.Successes,
		"rejected":  m.Rejected,
	}
	if !m.LastFailure.IsZero() {
		details["last_failure"] = m.LastFailure
	}

	switch m.State {
	case resilience.StateOpen:
		return Unhealthy("circuit open", ErrCircuitOpen).WithDetails(details)
	case resilience.StateHalfOpen:
		return Degraded("circuit half-open").WithDetails(details)
	default:
		return Healthy("circuit closed").WithDetails(details)
	}
}
