package generate

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/jonwraymond/sampleops/observe"
	"github.com/jonwraymond/sampleops/sampling"
)

// scriptedSampler returns outputs in order; an error entry fails the call.
// After the script is exhausted the last entry repeats.
type scriptedSampler struct {
	mu       sync.Mutex
	script   []any
	requests []sampling.Request
	calls    atomic.Int64
}

func newScripted(script ...any) *scriptedSampler {
	return &scriptedSampler{script: script}
}

func (s *scriptedSampler) Sample(_ context.Context, req sampling.Request) (sampling.Response, error) {
	n := int(s.calls.Add(1))
	s.mu.Lock()
	s.requests = append(s.requests, req)
	step := s.script[min(n, len(s.script))-1]
	s.mu.Unlock()

	if err, ok := step.(error); ok {
		return sampling.Response{}, err
	}
	return sampling.Response{Artifact: step, TokensUsed: 100, Model: "test-model"}, nil
}

func (s *scriptedSampler) request(i int) sampling.Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[i]
}

// countingMetrics counts cache lookups and near duplicates.
type countingMetrics struct {
	observe.Metrics
	lookups atomic.Int64
	hits    atomic.Int64
	similar atomic.Int64
}

func newCountingMetrics() *countingMetrics {
	return &countingMetrics{Metrics: observe.NopMetrics()}
}

func (m *countingMetrics) RecordCacheLookup(_ context.Context, _ string, hit bool) {
	m.lookups.Add(1)
	if hit {
		m.hits.Add(1)
	}
}

func (m *countingMetrics) RecordSimilarRequest(_ context.Context, _ string, nearDuplicate bool) {
	if nearDuplicate {
		m.similar.Add(1)
	}
}

const validDockerfile = "FROM python:3.11-slim\nWORKDIR /app\nCOPY . .\nUSER 1000\nCMD [\"python\", \"main.py\"]"

var errContentFilter = errors.New("content filter blocked the response")

func dockerfileRequest() sampling.Request {
	return sampling.Request{
		Prompt:     "Generate dockerfile for python",
		Params:     sampling.Params{Temperature: 0.2, MaxTokens: 1500},
		TemplateID: TemplateDockerfile,
		Variables:  map[string]any{"language": "python", "port": 8080},
	}
}
