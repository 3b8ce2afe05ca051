package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGuard_NoOptionsPassesThrough(t *testing.T) {
	backend := &countingSampler{}
	resp, err := NewGuard().Wrap(backend).Sample(context.Background(), testReq)
	if err != nil || resp.Artifact != "ok:p" {
		t.Fatalf("Sample() = %v, %v", resp, err)
	}
}

func TestNewGuardFromConfig(t *testing.T) {
	g := NewGuardFromConfig(GuardConfig{
		Timeout:         time.Second,
		Rate:            5,
		Burst:           5,
		MaxConcurrent:   2,
		BreakerFailures: 3,
		BreakerReset:    time.Minute,
	})

	if g.CircuitBreaker() == nil || g.RateLimiter() == nil || g.Bulkhead() == nil || g.timeout == nil {
		t.Fatalf("expected all patterns enabled: %+v", g)
	}

	empty := NewGuardFromConfig(GuardConfig{})
	if empty.CircuitBreaker() != nil || empty.RateLimiter() != nil || empty.Bulkhead() != nil || empty.timeout != nil {
		t.Error("zero config should enable nothing")
	}
}

func TestGuard_BreakerCountsTimeouts(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 2, ResetTimeout: time.Hour})
	g := NewGuard(WithCircuitBreaker(cb), WithTimeout(5*time.Millisecond))
	s := g.Wrap(&countingSampler{delay: time.Second})

	for range 2 {
		if _, err := s.Sample(context.Background(), testReq); !errors.Is(err, ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
	}

	if _, err := s.Sample(context.Background(), testReq); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestGuard_RateLimitBeforeBreaker(t *testing.T) {
	cb := NewCircuitBreaker(CircuitBreakerConfig{MaxFailures: 1})
	rl := NewRateLimiter(RateLimiterConfig{Rate: 0.001, Burst: 1})
	s := NewGuard(WithRateLimiter(rl), WithCircuitBreaker(cb)).Wrap(&countingSampler{})

	_, _ = s.Sample(context.Background(), testReq)
	if _, err := s.Sample(context.Background(), testReq); !errors.Is(err, ErrRateLimitExceeded) {
		t.Fatalf("expected ErrRateLimitExceeded, got %v", err)
	}

	// A rejected call never reaches the breaker
	if cb.State() != StateClosed || cb.Metrics().Failures != 0 {
		t.Errorf("breaker should be untouched, got %+v", cb.Metrics())
	}
}
