package resilience

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/jonwraymond/sampleops/sampling"
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// Rate is the number of sample calls allowed per second.
	// Default: 10
	Rate float64

	// Burst is the maximum burst size.
	// Default: 10
	Burst int

	// WaitOnLimit waits for a token instead of returning an error.
	// Default: false
	WaitOnLimit bool

	// MaxWait is the maximum time to wait for a token.
	// Default: 1 second
	MaxWait time.Duration
}

// RateLimiter implements a token bucket rate limiter.
type RateLimiter struct {
	config   RateLimiterConfig
	limiter  *rate.Limiter
	rejected atomic.Int64
}

// NewRateLimiter creates a new rate limiter.
func NewRateLimiter(config RateLimiterConfig) *RateLimiter {
	if config.Rate <= 0 {
		config.Rate = 10
	}
	if config.Burst <= 0 {
		config.Burst = 10
	}
	if config.MaxWait <= 0 {
		config.MaxWait = time.Second
	}

	return &RateLimiter{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.Rate), config.Burst),
	}
}

// Allow reports whether a call may proceed now, consuming a token if so.
func (rl *RateLimiter) Allow() bool {
	if rl.limiter.Allow() {
		return true
	}
	rl.rejected.Add(1)
	return false
}

// Wait blocks until a token is available, MaxWait elapses, or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error {
	waitCtx, cancel := context.WithTimeout(ctx, rl.config.MaxWait)
	defer cancel()

	if err := rl.limiter.Wait(waitCtx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		rl.rejected.Add(1)
		return errors.Join(ErrRateLimitExceeded, err)
	}
	return nil
}

// Wrap returns a sampler that is subject to the rate limit.
func (rl *RateLimiter) Wrap(next sampling.Sampler) sampling.Sampler {
	return sampling.SamplerFunc(func(ctx context.Context, req sampling.Request) (sampling.Response, error) {
		if rl.config.WaitOnLimit {
			if err := rl.Wait(ctx); err != nil {
				return sampling.Response{}, err
			}
		} else if !rl.Allow() {
			return sampling.Response{}, ErrRateLimitExceeded
		}
		return next.Sample(ctx, req)
	})
}

// Tokens returns the current number of available tokens.
func (rl *RateLimiter) Tokens() float64 {
	return rl.limiter.Tokens()
}

// Rejected returns how many calls were refused.
func (rl *RateLimiter) Rejected() int64 {
	return rl.rejected.Load()
}
