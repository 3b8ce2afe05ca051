package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/jonwraymond/sampleops/auth"
	"github.com/jonwraymond/sampleops/cache"
	"github.com/jonwraymond/sampleops/generate"
	"github.com/jonwraymond/sampleops/observe"
	"github.com/jonwraymond/sampleops/recovery"
	"github.com/jonwraymond/sampleops/sampling"
)

// GenerateRequest is the body of POST /v1/generate. Exactly one of
// TemplateID and Prompt is set; parameters override the template's.
type GenerateRequest struct {
	TemplateID  string         `json:"template_id,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	Prompt      string         `json:"prompt,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Model       string         `json:"model,omitempty"`
}

// ErrorResponse is the body of failed requests. Recovery is set when the
// failure ended a recovery session.
type ErrorResponse struct {
	Error    string           `json:"error"`
	Recovery *recovery.Result `json:"recovery,omitempty"`
}

// TemplateInfo describes one registered template.
type TemplateInfo struct {
	ID          string         `json:"id"`
	Description string         `json:"description,omitempty"`
	Required    []string       `json:"required,omitempty"`
	Defaults    map[string]any `json:"defaults,omitempty"`
}

// CleanupResponse is the body of POST /v1/cache/cleanup.
type CleanupResponse struct {
	Removed int         `json:"removed"`
	Stats   cache.Stats `json:"stats"`
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	var body GenerateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("%w: %v", ErrInvalidBody, err))
		return
	}

	req, err := s.buildRequest(body)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	ctx := r.Context()
	res, err := s.cfg.Generator.Generate(ctx, req)
	if err != nil {
		resp := ErrorResponse{Error: err.Error()}
		if res != nil {
			resp.Recovery = res.Recovery
		}
		s.logger.Warn(ctx, "generate failed",
			observe.Field{Key: "request_id", Value: RequestIDFromContext(ctx)},
			observe.Field{Key: "template_id", Value: req.TemplateID},
			observe.Field{Key: "error", Value: err.Error()},
		)
		writeJSON(w, statusFor(err), resp)
		return
	}

	s.logger.Debug(ctx, "generate served",
		observe.Field{Key: "request_id", Value: RequestIDFromContext(ctx)},
		observe.Field{Key: "subject", Value: auth.SubjectFromContext(ctx)},
		observe.Field{Key: "template_id", Value: req.TemplateID},
		observe.Field{Key: "cached", Value: res.Cached},
	)
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) buildRequest(body GenerateRequest) (sampling.Request, error) {
	var req sampling.Request
	switch {
	case body.TemplateID != "" && body.Prompt != "":
		return req, ErrBothPrompts
	case body.TemplateID != "":
		rendered, err := s.cfg.Generator.Render(body.TemplateID, body.Variables)
		if err != nil {
			return req, err
		}
		req = rendered
	case body.Prompt != "":
		req = sampling.Request{
			Prompt:    body.Prompt,
			Params:    sampling.Params{Temperature: s.cfg.Temperature},
			Variables: body.Variables,
		}
	default:
		return req, ErrMissingPrompt
	}

	p := req.Params
	if body.Temperature != nil {
		p.Temperature = *body.Temperature
	}
	if body.MaxTokens != 0 {
		p.MaxTokens = body.MaxTokens
	}
	if body.Model != "" {
		p.Model = body.Model
	}
	return req.WithParams(p), nil
}

func (s *Server) handleTemplates(w http.ResponseWriter, _ *http.Request) {
	templates := s.cfg.Generator.Templates()
	out := make([]TemplateInfo, 0)
	for _, id := range templates.IDs() {
		t, ok := templates.Get(id)
		if !ok {
			continue
		}
		out = append(out, TemplateInfo{
			ID:          t.ID,
			Description: t.Description,
			Required:    t.Required,
			Defaults:    t.Defaults,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.cfg.Cache.Stats())
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	s.cfg.Cache.Clear()
	s.logger.Info(r.Context(), "cache cleared",
		observe.Field{Key: "subject", Value: auth.SubjectFromContext(r.Context())},
	)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCacheCleanup(w http.ResponseWriter, _ *http.Request) {
	removed := s.cfg.Cache.Cleanup()
	writeJSON(w, http.StatusOK, CleanupResponse{Removed: removed, Stats: s.cfg.Cache.Stats()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, generate.ErrUnknownTemplate):
		return http.StatusNotFound
	case errors.Is(err, ErrMissingPrompt),
		errors.Is(err, ErrBothPrompts),
		errors.Is(err, generate.ErrMissingVariable),
		errors.Is(err, sampling.ErrEmptyPrompt),
		errors.Is(err, sampling.ErrInvalidTemperature),
		errors.Is(err, sampling.ErrInvalidMaxTokens):
		return http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, err error) {
	writeJSON(w, code, ErrorResponse{Error: err.Error()})
}
