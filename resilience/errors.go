package resilience

import "errors"

// Sentinel errors for resilience operations. Messages are chosen so the
// recovery classifier recognizes them even after wrapping.
var (
	// ErrCircuitOpen is returned when the circuit breaker is open.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open, network calls suspended")

	// ErrRateLimitExceeded is returned when the rate limit is exceeded.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")

	// ErrBulkheadFull is returned when the bulkhead is at capacity.
	ErrBulkheadFull = errors.New("resilience: bulkhead at capacity")

	// ErrTimeout is returned when a sample call times out.
	ErrTimeout = errors.New("resilience: sample timeout")
)
