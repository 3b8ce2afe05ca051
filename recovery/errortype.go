package recovery

import (
	"context"
	"errors"
	"strings"

	"github.com/jonwraymond/sampleops/resilience"
)

// ErrorType is the coarse classification of a sampling failure.
type ErrorType int

const (
	ErrorUnknown ErrorType = iota
	ErrorParsing
	ErrorSchemaValidation
	ErrorTimeout
	ErrorRateLimit
	ErrorContentFilter
	ErrorNetwork
	ErrorModel
	ErrorTemplate
)

var errorTypeNames = [...]string{
	ErrorUnknown:          "unknown",
	ErrorParsing:          "parsing",
	ErrorSchemaValidation: "schema_validation",
	ErrorTimeout:          "timeout",
	ErrorRateLimit:        "rate_limit",
	ErrorContentFilter:    "content_filter",
	ErrorNetwork:          "network",
	ErrorModel:            "model",
	ErrorTemplate:         "template",
}

// String returns the snake_case name of the type.
func (t ErrorType) String() string {
	if t < 0 || int(t) >= len(errorTypeNames) {
		return "unknown"
	}
	return errorTypeNames[t]
}

// MarshalText encodes the type as its name.
func (t ErrorType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Transient reports whether the failure is likely to clear on its own.
func (t ErrorType) Transient() bool {
	switch t {
	case ErrorTimeout, ErrorRateLimit, ErrorNetwork:
		return true
	default:
		return false
	}
}

// classifyRule matches when the message contains every group, where a
// group matches if any of its keywords is present.
type classifyRule struct {
	typ    ErrorType
	groups [][]string
}

// First match wins.
var classifyRules = []classifyRule{
	{ErrorParsing, [][]string{{"json", "parse", "syntax", "unexpected token", "invalid character"}}},
	{ErrorSchemaValidation, [][]string{{"validation", "schema", "required"}}},
	{ErrorTimeout, [][]string{{"timeout", "timed out", "deadline exceeded"}}},
	{ErrorRateLimit, [][]string{{"rate limit", "ratelimit", "quota", "too many requests"}}},
	{ErrorContentFilter, [][]string{{"content"}, {"filter"}}},
	{ErrorNetwork, [][]string{{"network", "connection"}}},
	{ErrorModel, [][]string{{"model", "llm"}}},
	{ErrorTemplate, [][]string{{"template", "variable"}}},
}

// Classify returns the ErrorType of err. Errors raised by the resilience
// guard and context deadlines are recognized by identity; everything else
// falls back to ClassifyMessage.
func Classify(err error) ErrorType {
	switch {
	case err == nil:
		return ErrorUnknown
	case errors.Is(err, resilience.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return ErrorTimeout
	case errors.Is(err, resilience.ErrRateLimitExceeded), errors.Is(err, resilience.ErrBulkheadFull):
		return ErrorRateLimit
	case errors.Is(err, resilience.ErrCircuitOpen):
		return ErrorNetwork
	}
	return ClassifyMessage(err.Error())
}

// ClassifyMessage classifies an error message by ordered, case-insensitive
// keyword matching.
func ClassifyMessage(msg string) ErrorType {
	lower := strings.ToLower(msg)
	for _, rule := range classifyRules {
		if matchAll(lower, rule.groups) {
			return rule.typ
		}
	}
	return ErrorUnknown
}

func matchAll(lower string, groups [][]string) bool {
	for _, group := range groups {
		if !containsAny(lower, group) {
			return false
		}
	}
	return true
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
