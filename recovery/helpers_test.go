package recovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonwraymond/sampleops/sampling"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func testRequest() sampling.Request {
	return sampling.Request{
		Prompt:     "Generate a Dockerfile for a python web app",
		Params:     sampling.Params{Temperature: 0.2, MaxTokens: 1500},
		TemplateID: "dockerfile",
		Variables: map[string]any{
			"language":    "python",
			"port":        8080,
			"healthcheck": true,
		},
	}
}

// scriptedSampler returns the scripted errors in order, then succeeds.
type scriptedSampler struct {
	mu       sync.Mutex
	errs     []error
	calls    int
	requests []sampling.Request
	onSample func(n int)
}

func (s *scriptedSampler) Sample(_ context.Context, req sampling.Request) (sampling.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls++
	s.requests = append(s.requests, req)
	if s.onSample != nil {
		s.onSample(s.calls)
	}
	if s.calls <= len(s.errs) {
		return sampling.Response{}, s.errs[s.calls-1]
	}
	return sampling.Response{Artifact: "FROM python:3.12-slim", TokensUsed: 120, Model: "test-model"}, nil
}

func (s *scriptedSampler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func repeatErr(msg string, n int) []error {
	errs := make([]error, n)
	for i := range errs {
		errs[i] = errors.New(msg)
	}
	return errs
}

// stubStrategy handles every failure and leaves the request unchanged.
type stubStrategy struct {
	name     string
	priority int
	limit    int
	handle   func(err error, ec *ErrorContext) bool
	delay    time.Duration
}

func (s *stubStrategy) Name() string     { return s.name }
func (s *stubStrategy) Priority() int    { return s.priority }
func (s *stubStrategy) MaxAttempts() int { return s.limit }

func (s *stubStrategy) CanHandle(err error, ec *ErrorContext) bool {
	if s.handle == nil {
		return true
	}
	return s.handle(err, ec)
}

func (s *stubStrategy) Recover(req sampling.Request, _ error, _ *ErrorContext) sampling.Request {
	return req
}

type delayStrategy struct {
	*stubStrategy
}

func (s delayStrategy) Delay(*ErrorContext) time.Duration {
	return s.delay
}
