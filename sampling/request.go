package sampling

import (
	"maps"
	"strings"
)

// Params are the sampling parameters sent with a request.
type Params struct {
	// Temperature controls randomness. Valid range: [0, 2].
	Temperature float64 `json:"temperature" yaml:"temperature"`

	// MaxTokens caps the response length. Zero means backend default.
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Model optionally pins a model.
	Model string `json:"model,omitempty" yaml:"model,omitempty"`
}

// Request is a single generation request.
//
// Treat a Request as immutable: use the With* methods to derive modified
// copies. Variables and Annotations maps are copied on write.
type Request struct {
	// Prompt is the rendered prompt text.
	Prompt string `json:"prompt"`

	// Params are the sampling parameters.
	Params Params `json:"params"`

	// TemplateID identifies the template the prompt was rendered from.
	TemplateID string `json:"template_id,omitempty"`

	// Variables is the variable bag used to render the template.
	Variables map[string]any `json:"variables,omitempty"`

	// Annotations carry observability context (attempt, strategy, ...).
	// They are excluded from cache fingerprints.
	Annotations map[string]any `json:"annotations,omitempty"`
}

// Validate checks the request for obviously unusable values.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Prompt) == "" {
		return ErrEmptyPrompt
	}
	if r.Params.Temperature < 0 || r.Params.Temperature > 2 {
		return ErrInvalidTemperature
	}
	if r.Params.MaxTokens < 0 {
		return ErrInvalidMaxTokens
	}
	return nil
}

// Clone returns a copy whose maps can be modified independently.
func (r Request) Clone() Request {
	out := r
	out.Variables = maps.Clone(r.Variables)
	out.Annotations = maps.Clone(r.Annotations)
	return out
}

// WithPrompt returns a copy with the prompt replaced.
func (r Request) WithPrompt(prompt string) Request {
	out := r.Clone()
	out.Prompt = prompt
	return out
}

// WithParams returns a copy with the sampling parameters replaced.
func (r Request) WithParams(p Params) Request {
	out := r.Clone()
	out.Params = p
	return out
}

// WithVariable returns a copy with one variable set.
func (r Request) WithVariable(key string, value any) Request {
	out := r.Clone()
	if out.Variables == nil {
		out.Variables = make(map[string]any, 1)
	}
	out.Variables[key] = value
	return out
}

// WithoutVariables returns a copy with the named variables removed.
func (r Request) WithoutVariables(keys ...string) Request {
	out := r.Clone()
	for _, k := range keys {
		delete(out.Variables, k)
	}
	return out
}

// WithAnnotation returns a copy with one annotation set.
func (r Request) WithAnnotation(key string, value any) Request {
	out := r.Clone()
	if out.Annotations == nil {
		out.Annotations = make(map[string]any, 1)
	}
	out.Annotations[key] = value
	return out
}

// Variable returns a variable as a string, or "" if absent.
func (r Request) Variable(key string) string {
	v, ok := r.Variables[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return strings.TrimSpace(toString(v))
}

// Annotation keys set by the recovery driver.
const (
	AnnotationAttempt       = "attempt"
	AnnotationStrategy      = "strategy"
	AnnotationPreviousError = "previous_error"
	AnnotationPatternTypes  = "pattern_types"
	AnnotationSessionID     = "session_id"
)

// Annotation returns an annotation as a string, or "" if absent.
func (r Request) Annotation(key string) string {
	v, ok := r.Annotations[key]
	if !ok || v == nil {
		return ""
	}
	return toString(v)
}
