package sampling

import (
	"errors"
	"fmt"
)

// Sentinel errors for request validation.
var (
	ErrEmptyPrompt        = errors.New("sampling: prompt is empty")
	ErrInvalidTemperature = errors.New("sampling: temperature must be between 0 and 2")
	ErrInvalidMaxTokens   = errors.New("sampling: max tokens must not be negative")
	ErrNilSampler         = errors.New("sampling: sampler is nil")
)

// Error is a failed sample that may still carry useful output.
//
// Samplers return *Error when the backend produced something (a truncated
// artifact, a token count) before failing, so recovery can reason about it.
type Error struct {
	// Message describes the failure. When empty, Err's message is used.
	Message string

	// Partial is whatever output was produced before the failure.
	Partial any

	// TokensUsed is the number of tokens consumed by the failed call.
	TokensUsed int

	// Model is the model that produced the failure, if known.
	Model string

	// Err is the underlying cause.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	default:
		return "sampling: sample failed"
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// PartialResult returns the partial output carried by err, if any.
func PartialResult(err error) any {
	var se *Error
	if errors.As(err, &se) {
		return se.Partial
	}
	return nil
}

// TokensUsed returns the tokens reported by a failed sample, or zero.
func TokensUsed(err error) int {
	var se *Error
	if errors.As(err, &se) {
		return se.TokensUsed
	}
	return 0
}

// ModelOf returns the model reported by a failed sample, or "".
func ModelOf(err error) string {
	var se *Error
	if errors.As(err, &se) {
		return se.Model
	}
	return ""
}
