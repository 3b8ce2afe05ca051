package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/jonwraymond/sampleops/recovery"
	"github.com/jonwraymond/sampleops/sampling"
)

func testRequest() sampling.Request {
	return sampling.Request{
		Prompt:     "Write a Dockerfile for a python service",
		TemplateID: "dockerfile",
		Params:     sampling.Params{Temperature: 0.2, MaxTokens: 800},
	}
}

func newServer(t *testing.T, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv
}

func completion(content, finish string, tokens int) map[string]any {
	return map[string]any{
		"model": "gpt-4o-mini-2024",
		"choices": []map[string]any{{
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": finish,
		}},
		"usage": map[string]int{"prompt_tokens": tokens / 2, "completion_tokens": tokens - tokens/2, "total_tokens": tokens},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestSampler_Sample(t *testing.T) {
	var got chatRequest
	var auth string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/chat/completions" {
			t.Errorf("request = %s %s, want POST /v1/chat/completions", r.Method, r.URL.Path)
		}
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		writeJSON(w, http.StatusOK, completion("FROM python:3.12-slim", "stop", 140))
	})

	s := New(Config{
		BaseURL:      srv.URL + "/v1/",
		APIKey:       "sk-test",
		Model:        "gpt-4o-mini",
		SystemPrompt: "You write infrastructure files.",
	})

	resp, err := s.Sample(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}

	if diff := cmp.Diff(sampling.Response{Artifact: "FROM python:3.12-slim", TokensUsed: 140, Model: "gpt-4o-mini-2024"}, resp); diff != "" {
		t.Errorf("Sample() mismatch (-want +got):\n%s", diff)
	}
	if auth != "Bearer sk-test" {
		t.Errorf("Authorization = %q, want bearer key", auth)
	}

	want := chatRequest{
		Model: "gpt-4o-mini",
		Messages: []chatMessage{
			{Role: "system", Content: "You write infrastructure files."},
			{Role: "user", Content: "Write a Dockerfile for a python service"},
		},
		Temperature: 0.2,
		MaxTokens:   800,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("request body mismatch (-want +got):\n%s", diff)
	}
}

func TestSampler_RequestModelOverridesDefault(t *testing.T) {
	var model string
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body chatRequest
		_ = json.NewDecoder(r.Body).Decode(&body)
		model = body.Model
		resp := completion("ok", "stop", 10)
		delete(resp, "model")
		writeJSON(w, http.StatusOK, resp)
	})

	req := testRequest()
	req.Params.Model = "gpt-4o"
	resp, err := New(Config{BaseURL: srv.URL, Model: "gpt-4o-mini"}).Sample(context.Background(), req)
	if err != nil {
		t.Fatalf("Sample() error = %v", err)
	}
	if model != "gpt-4o" || resp.Model != "gpt-4o" {
		t.Errorf("model sent = %q, response model = %q, want gpt-4o", model, resp.Model)
	}
}

func TestSampler_Failures(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        any
		wantType    recovery.ErrorType
		wantPartial any
		wantTokens  int
		wantStatus  int
	}{
		{
			name:       "rate limited",
			status:     http.StatusTooManyRequests,
			body:       map[string]any{"error": map[string]any{"message": "Rate limit reached for requests", "type": "requests"}},
			wantType:   recovery.ErrorRateLimit,
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "gateway timeout",
			status:     http.StatusGatewayTimeout,
			body:       "upstream took too long",
			wantType:   recovery.ErrorTimeout,
			wantStatus: http.StatusGatewayTimeout,
		},
		{
			name:       "content filter",
			status:     http.StatusBadRequest,
			body:       map[string]any{"error": map[string]any{"message": "The prompt was rejected", "code": "content_filter"}},
			wantType:   recovery.ErrorContentFilter,
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "unknown model",
			status:     http.StatusNotFound,
			body:       map[string]any{"error": map[string]any{"message": "The model does not exist"}},
			wantType:   recovery.ErrorModel,
			wantStatus: http.StatusNotFound,
		},
		{
			name:       "backend down",
			status:     http.StatusServiceUnavailable,
			body:       "overloaded",
			wantType:   recovery.ErrorModel,
			wantStatus: http.StatusServiceUnavailable,
		},
		{
			name:        "truncated",
			status:      http.StatusOK,
			body:        completion("FROM python:3.12-slim\nRUN pip", "length", 800),
			wantType:    recovery.ErrorUnknown,
			wantPartial: "FROM python:3.12-slim\nRUN pip",
			wantTokens:  800,
		},
		{
			name:        "filtered output",
			status:      http.StatusOK,
			body:        completion("FROM", "content_filter", 30),
			wantType:    recovery.ErrorContentFilter,
			wantPartial: "FROM",
			wantTokens:  30,
		},
		{
			name:       "no choices",
			status:     http.StatusOK,
			body:       map[string]any{"choices": []any{}, "usage": map[string]int{"total_tokens": 12}},
			wantType:   recovery.ErrorModel,
			wantTokens: 12,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
				if s, ok := tt.body.(string); ok {
					w.WriteHeader(tt.status)
					_, _ = w.Write([]byte(s))
					return
				}
				writeJSON(w, tt.status, tt.body)
			})

			_, err := New(Config{BaseURL: srv.URL, Model: "gpt-4o-mini"}).Sample(context.Background(), testRequest())
			var se *sampling.Error
			if !errors.As(err, &se) {
				t.Fatalf("Sample() error = %v, want *sampling.Error", err)
			}
			if got := recovery.Classify(err); got != tt.wantType {
				t.Errorf("Classify(%q) = %v, want %v", err, got, tt.wantType)
			}
			if se.Partial != tt.wantPartial {
				t.Errorf("Partial = %v, want %v", se.Partial, tt.wantPartial)
			}
			if se.TokensUsed != tt.wantTokens {
				t.Errorf("TokensUsed = %d, want %d", se.TokensUsed, tt.wantTokens)
			}

			var apiErr *APIError
			if tt.wantStatus == 0 {
				if errors.As(err, &apiErr) {
					t.Errorf("unexpected APIError %v", apiErr)
				}
				return
			}
			if !errors.As(err, &apiErr) || apiErr.StatusCode != tt.wantStatus {
				t.Errorf("APIError = %v, want status %d", apiErr, tt.wantStatus)
			}
		})
	}
}

func TestSampler_TruncatedOutputIsIncomplete(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, completion("apiVersion: apps/v1\nkind: Depl", "length", 500))
	})

	_, err := New(Config{BaseURL: srv.URL}).Sample(context.Background(), testRequest())
	patterns := recovery.DetectPatterns(err.Error())
	if len(patterns) == 0 || patterns[0].Type != recovery.PatternIncompleteResponse {
		t.Fatalf("DetectPatterns(%q) = %v, want incomplete_response first", err, patterns)
	}
}

func TestSampler_MalformedBody(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>proxy error</html>"))
	})

	_, err := New(Config{BaseURL: srv.URL}).Sample(context.Background(), testRequest())
	if !errors.Is(err, ErrMalformedResponse) {
		t.Fatalf("Sample() error = %v, want %v", err, ErrMalformedResponse)
	}
}

func TestSampler_ConnectionFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(Config{BaseURL: url}).Sample(context.Background(), testRequest())
	if got := recovery.Classify(err); got != recovery.ErrorNetwork {
		t.Fatalf("Classify(%q) = %v, want network", err, got)
	}
}

func TestSampler_InvalidRequest(t *testing.T) {
	_, err := New(Config{BaseURL: "http://127.0.0.1:1"}).Sample(context.Background(), sampling.Request{})
	if !errors.Is(err, sampling.ErrEmptyPrompt) {
		t.Fatalf("Sample() error = %v, want %v", err, sampling.ErrEmptyPrompt)
	}
}
