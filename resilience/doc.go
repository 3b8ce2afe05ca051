// Package resilience guards calls to a sampling backend.
//
// Each pattern is a sampler middleware with a Wrap method:
//
//   - Timeout: bounds a single sample call; expiry surfaces as ErrTimeout.
//   - CircuitBreaker: stops calling a failing backend after a threshold.
//   - RateLimiter: token bucket (golang.org/x/time/rate), wait or reject.
//   - Bulkhead: bounds concurrent calls (golang.org/x/sync/semaphore).
//
// Guard composes them in a fixed order. Retries are not done here; the
// recovery driver owns the retry loop and uses Backoff for its delays.
//
//	guard := resilience.NewGuard(
//	    resilience.WithRateLimiter(resilience.NewRateLimiter(resilience.RateLimiterConfig{Rate: 5, Burst: 5})),
//	    resilience.WithCircuitBreaker(resilience.NewCircuitBreaker(resilience.CircuitBreakerConfig{})),
//	    resilience.WithTimeout(30*time.Second),
//	)
//	sampler := guard.Wrap(backend)
package resilience
