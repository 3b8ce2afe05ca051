package resilience

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonwraymond/sampleops/sampling"
)

type countingSampler struct {
	calls atomic.Int64
	err   error
	delay time.Duration
}

func (s *countingSampler) Sample(ctx context.Context, req sampling.Request) (sampling.Response, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return sampling.Response{}, ctx.Err()
		}
	}
	if s.err != nil {
		return sampling.Response{}, s.err
	}
	return sampling.Response{Artifact: "ok:" + req.Prompt}, nil
}

type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var testReq = sampling.Request{Prompt: "p"}
