package sampling

import (
	"context"
	"encoding/json"
	"fmt"
)

// Response is a successful sample.
type Response struct {
	// Artifact is the generated output (usually a string).
	Artifact any

	// TokensUsed is the number of tokens consumed, if reported.
	TokensUsed int

	// Model is the model that served the request, if reported.
	Model string
}

// Sampler produces an artifact for a request.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: implementations must honor cancellation/deadlines.
// - Errors: failures should be returned as errors, optionally *Error to
// report partial output and token usage. Retries are the caller's concern.
type Sampler interface {
	Sample(ctx context.Context, req Request) (Response, error)
}

// SamplerFunc adapts an ordinary function to a Sampler.
type SamplerFunc func(ctx context.Context, req Request) (Response, error)

// Sample calls f(ctx, req).
func (f SamplerFunc) Sample(ctx context.Context, req Request) (Response, error) {
	return f(ctx, req)
}

// ArtifactString renders an artifact as text. Structured artifacts are
// rendered as JSON.
func ArtifactString(artifact any) string {
	return toString(artifact)
}

func toString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case []byte:
		return string(val)
	case fmt.Stringer:
		return val.String()
	case error:
		return val.Error()
	case bool, int, int64, float64:
		return fmt.Sprint(val)
	default:
		if data, err := json.Marshal(val); err == nil {
			return string(data)
		}
		return fmt.Sprint(val)
	}
}

// Ensure SamplerFunc implements Sampler
var _ Sampler = SamplerFunc(nil)
