package recovery

import (
	"cmp"
	"slices"
	"strings"
)

// PatternType identifies a recognizable failure shape.
type PatternType int

const (
	PatternJSONSyntax PatternType = iota
	PatternIncompleteResponse
	PatternWrongFormat
	PatternMissingField
	PatternInvalidValue
)

var patternTypeNames = [...]string{
	PatternJSONSyntax:         "json_syntax",
	PatternIncompleteResponse: "incomplete_response",
	PatternWrongFormat:        "wrong_format",
	PatternMissingField:       "missing_field",
	PatternInvalidValue:       "invalid_value",
}

// String returns the snake_case name of the pattern type.
func (p PatternType) String() string {
	if p < 0 || int(p) >= len(patternTypeNames) {
		return "unknown"
	}
	return patternTypeNames[p]
}

// MarshalText encodes the pattern type as its name.
func (p PatternType) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// FailurePattern is one pattern detected in an error message.
type FailurePattern struct {
	Type         PatternType `json:"type"`
	Confidence   float64     `json:"confidence"`
	SuggestedFix string      `json:"suggested_fix,omitempty"`
}

type patternRule struct {
	pattern FailurePattern
	groups  [][]string
}

var patternRules = []patternRule{
	{
		FailurePattern{PatternJSONSyntax, 0.9, "return strictly valid JSON"},
		[][]string{{"unexpected token", "invalid json", "invalid character"}},
	},
	{
		FailurePattern{PatternIncompleteResponse, 0.8, "return the complete output"},
		[][]string{{"truncated", "incomplete", "cut off", "unexpected end", "unexpected eof"}},
	},
	{
		FailurePattern{PatternWrongFormat, 0.7, "follow the requested output format"},
		[][]string{{"expected"}, {"format", "structure"}},
	},
	{
		FailurePattern{PatternMissingField, 0.8, "include all required fields"},
		[][]string{{"required"}, {"missing"}},
	},
	{
		FailurePattern{PatternInvalidValue, 0.7, "correct the invalid values"},
		[][]string{{"invalid"}, {"value"}},
	},
}

// DetectPatterns runs every pattern check against msg. Several patterns
// may fire for one message. The result is sorted by confidence, highest
// first.
func DetectPatterns(msg string) []FailurePattern {
	lower := strings.ToLower(msg)

	var out []FailurePattern
	for _, rule := range patternRules {
		if matchAll(lower, rule.groups) {
			out = append(out, rule.pattern)
		}
	}
	sortPatterns(out)
	return out
}

// MergePatterns combines pattern observations, keeping the highest
// confidence per type, sorted by confidence descending.
func MergePatterns(existing, observed []FailurePattern) []FailurePattern {
	best := make(map[PatternType]FailurePattern, len(existing)+len(observed))
	for _, list := range [][]FailurePattern{existing, observed} {
		for _, p := range list {
			if cur, ok := best[p.Type]; !ok || p.Confidence > cur.Confidence {
				best[p.Type] = p
			}
		}
	}

	out := make([]FailurePattern, 0, len(best))
	for _, p := range best {
		out = append(out, p)
	}
	sortPatterns(out)
	return out
}

func sortPatterns(ps []FailurePattern) {
	slices.SortFunc(ps, func(a, b FailurePattern) int {
		if c := cmp.Compare(b.Confidence, a.Confidence); c != 0 {
			return c
		}
		return cmp.Compare(a.Type, b.Type)
	})
}

// MaxConfidence returns the highest pattern confidence, or 0.
func MaxConfidence(ps []FailurePattern) float64 {
	var m float64
	for _, p := range ps {
		m = max(m, p.Confidence)
	}
	return m
}
