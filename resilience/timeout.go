package resilience

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonwraymond/sampleops/sampling"
)

// TimeoutConfig configures the timeout wrapper.
type TimeoutConfig struct {
	// Timeout is the maximum duration of one sample call.
	// Default: 30 seconds
	Timeout time.Duration
}

// Timeout bounds the duration of sample calls.
type Timeout struct {
	config TimeoutConfig
}

// NewTimeout creates a new timeout wrapper.
func NewTimeout(config TimeoutConfig) *Timeout {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	return &Timeout{config: config}
}

type sampleResult struct {
	resp sampling.Response
	err  error
}

// Wrap returns a sampler whose calls are bounded by the timeout. A call
// that overruns returns an error wrapping ErrTimeout; cancellation of the
// caller's context is returned unchanged.
func (t *Timeout) Wrap(next sampling.Sampler) sampling.Sampler {
	return sampling.SamplerFunc(func(ctx context.Context, req sampling.Request) (sampling.Response, error) {
		callCtx, cancel := context.WithTimeout(ctx, t.config.Timeout)
		defer cancel()

		done := make(chan sampleResult, 1)
		go func() {
			resp, err := next.Sample(callCtx, req)
			done <- sampleResult{resp: resp, err: err}
		}()

		select {
		case r := <-done:
			if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) && ctx.Err() == nil {
				return r.resp, t.timeoutError(r.err)
			}
			return r.resp, r.err
		case <-callCtx.Done():
			if ctx.Err() != nil {
				return sampling.Response{}, ctx.Err()
			}
			return sampling.Response{}, t.timeoutError(nil)
		}
	})
}

func (t *Timeout) timeoutError(cause error) error {
	err := fmt.Errorf("%w after %s", ErrTimeout, t.config.Timeout)
	if cause != nil {
		return errors.Join(err, cause)
	}
	return err
}

// Config returns the timeout configuration.
func (t *Timeout) Config() TimeoutConfig {
	return t.config
}
