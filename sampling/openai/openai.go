package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jonwraymond/sampleops/sampling"
)

const (
	// DefaultTimeout bounds a request when Config.HTTPClient is nil.
	DefaultTimeout = 2 * time.Minute

	completionsPath = "/chat/completions"
	maxResponseSize = 4 << 20
)

var (
	// ErrNoChoices is returned when the endpoint answers without a completion.
	ErrNoChoices = errors.New("openai: response has no choices")

	// ErrMalformedResponse is returned when a 2xx body cannot be decoded.
	ErrMalformedResponse = errors.New("openai: malformed response body")
)

// Config configures a Sampler.
type Config struct {
	// BaseURL is the API root, e.g. "https://api.openai.com/v1".
	BaseURL string

	// APIKey is sent as a bearer token. Empty sends no Authorization header.
	APIKey string

	// Model is used when a request does not name one.
	Model string

	// SystemPrompt is sent as the system message when non-empty.
	SystemPrompt string

	// HTTPClient performs requests.
	// Default: an http.Client with DefaultTimeout
	HTTPClient *http.Client
}

// Sampler calls a chat completions endpoint.
type Sampler struct {
	endpoint string
	apiKey   string
	model    string
	system   string
	client   *http.Client
}

// New creates a Sampler.
func New(cfg Config) *Sampler {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: DefaultTimeout}
	}
	return &Sampler{
		endpoint: strings.TrimRight(cfg.BaseURL, "/") + completionsPath,
		apiKey:   cfg.APIKey,
		model:    cfg.Model,
		system:   cfg.SystemPrompt,
		client:   client,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type errorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// APIError is a non-2xx answer from the endpoint.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("openai: status %d", e.StatusCode)
	}
	return fmt.Sprintf("openai: status %d: %s", e.StatusCode, e.Message)
}

// Sample sends req as a single user message and returns the first choice.
func (s *Sampler) Sample(ctx context.Context, req sampling.Request) (sampling.Response, error) {
	if err := req.Validate(); err != nil {
		return sampling.Response{}, err
	}

	model := req.Params.Model
	if model == "" {
		model = s.model
	}

	body := chatRequest{
		Model:       model,
		Temperature: req.Params.Temperature,
		MaxTokens:   req.Params.MaxTokens,
	}
	if s.system != "" {
		body.Messages = append(body.Messages, chatMessage{Role: "system", Content: s.system})
	}
	body.Messages = append(body.Messages, chatMessage{Role: "user", Content: req.Prompt})

	payload, err := json.Marshal(body)
	if err != nil {
		return sampling.Response{}, fmt.Errorf("openai: encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(payload))
	if err != nil {
		return sampling.Response{}, fmt.Errorf("openai: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return sampling.Response{}, &sampling.Error{
			Message: "connection to model endpoint failed",
			Model:   model,
			Err:     err,
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return sampling.Response{}, &sampling.Error{
			Message: "connection dropped while reading model response",
			Model:   model,
			Err:     err,
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return sampling.Response{}, statusError(resp.StatusCode, data, model)
	}

	var out chatResponse
	if err := json.Unmarshal(data, &out); err != nil {
		return sampling.Response{}, &sampling.Error{
			Message: "model endpoint returned an unreadable response",
			Model:   model,
			Err:     ErrMalformedResponse,
		}
	}
	if out.Model != "" {
		model = out.Model
	}
	tokens := out.Usage.TotalTokens
	if tokens == 0 {
		tokens = out.Usage.PromptTokens + out.Usage.CompletionTokens
	}

	if len(out.Choices) == 0 {
		return sampling.Response{}, &sampling.Error{
			Message:    "model produced no output",
			TokensUsed: tokens,
			Model:      model,
			Err:        ErrNoChoices,
		}
	}

	choice := out.Choices[0]
	content := choice.Message.Content
	switch choice.FinishReason {
	case "length":
		return sampling.Response{}, &sampling.Error{
			Message:    "incomplete response: output truncated at the max tokens limit",
			Partial:    content,
			TokensUsed: tokens,
			Model:      model,
		}
	case "content_filter":
		return sampling.Response{}, &sampling.Error{
			Message:    "content filter stopped the response",
			Partial:    content,
			TokensUsed: tokens,
			Model:      model,
		}
	}

	return sampling.Response{
		Artifact:   content,
		TokensUsed: tokens,
		Model:      model,
	}, nil
}

func statusError(status int, data []byte, model string) error {
	apiErr := &APIError{StatusCode: status}
	var body errorBody
	if json.Unmarshal(data, &body) == nil && body.Error.Message != "" {
		apiErr.Message = body.Error.Message
		apiErr.Type = body.Error.Type
		if body.Error.Code != nil {
			apiErr.Code = fmt.Sprint(body.Error.Code)
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(data))
	}

	return &sampling.Error{
		Message: statusMessage(apiErr),
		Model:   model,
		Err:     apiErr,
	}
}

func statusMessage(e *APIError) string {
	switch {
	case e.StatusCode == http.StatusTooManyRequests:
		return "rate limit exceeded"
	case e.StatusCode == http.StatusRequestTimeout || e.StatusCode == http.StatusGatewayTimeout:
		return "model endpoint timeout"
	case e.Code == "content_filter" || e.Type == "content_filter":
		return "content filter rejected the prompt"
	case e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden:
		return "sampler credentials rejected"
	case e.StatusCode == http.StatusNotFound:
		return "model not found"
	case e.StatusCode >= 500:
		return "model backend unavailable"
	default:
		return "model rejected the request"
	}
}

var _ sampling.Sampler = (*Sampler)(nil)
