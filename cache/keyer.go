package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/jonwraymond/sampleops/sampling"
)

// Keyer derives cache keys from generation requests.
//
// Contract:
// - Determinism: same normalized request must produce the same key,
// regardless of map iteration order.
// - Concurrency: implementations must be safe for concurrent use.
type Keyer interface {
	// Fingerprint returns the authoritative cache key for req.
	Fingerprint(req sampling.Request) (string, error)

	// SimilarityKey returns a coarse key grouping near-duplicate requests.
	// It must never be used to serve a cache hit.
	SimilarityKey(req sampling.Request) string
}

// KeyerConfig configures the DefaultKeyer.
type KeyerConfig struct {
	// TemperaturePrecision is the rounding step applied to temperature.
	// Default: 0.01
	TemperaturePrecision float64

	// KeyLength is the number of hex characters kept from the digest.
	// 32 characters (128 bits) keeps the collision probability negligible
	// for fewer than 10^6 live entries.
	// Default: 32, allowed range [16, 64]
	KeyLength int

	// ExcludedPrefixes lists variable-key prefixes removed before hashing.
	// Matching is case-insensitive.
	// Default: "_", "debug", "internal"
	ExcludedPrefixes []string

	// SimilarityVariables is the whitelist of variables kept by SimilarityKey.
	// Default: language, framework, port, runtime, platform, kind
	SimilarityVariables []string
}

// DefaultKeyer generates SHA-256 based fingerprints.
type DefaultKeyer struct {
	config   KeyerConfig
	decimals int
}

// NewDefaultKeyer creates a keyer with default configuration.
func NewDefaultKeyer() *DefaultKeyer {
	return NewKeyer(KeyerConfig{})
}

// NewKeyer creates a keyer with the given configuration.
func NewKeyer(config KeyerConfig) *DefaultKeyer {
	// Apply defaults
	if config.TemperaturePrecision <= 0 {
		config.TemperaturePrecision = 0.01
	}
	if config.KeyLength <= 0 {
		config.KeyLength = 32
	}
	config.KeyLength = min(max(config.KeyLength, 16), sha256.Size*2)
	if config.ExcludedPrefixes == nil {
		config.ExcludedPrefixes = []string{"_", "debug", "internal"}
	}
	if config.SimilarityVariables == nil {
		config.SimilarityVariables = []string{"language", "framework", "port", "runtime", "platform", "kind"}
	}

	decimals := int(math.Ceil(-math.Log10(config.TemperaturePrecision)))
	if decimals < 0 {
		decimals = 0
	}

	return &DefaultKeyer{config: config, decimals: decimals}
}

// Fingerprint generates a deterministic cache key: the first KeyLength hex
// characters of SHA-256 over the canonical JSON form of the request.
// Annotations are never part of the canonical form.
func (k *DefaultKeyer) Fingerprint(req sampling.Request) (string, error) {
	canonical, err := canonicalize(k.normalize(req))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnkeyable, err)
	}

	hash := sha256.Sum256(canonical)
	return hex.EncodeToString(hash[:])[:k.config.KeyLength], nil
}

// normalize builds the value that is hashed for req.
func (k *DefaultKeyer) normalize(req sampling.Request) map[string]any {
	vars := make(map[string]any, len(req.Variables))
	for key, v := range req.Variables {
		if k.excluded(key) {
			continue
		}
		vars[key] = v
	}

	return map[string]any{
		"prompt":      collapseWhitespace(req.Prompt),
		"temperature": k.roundTemperature(req.Params.Temperature),
		"max_tokens":  req.Params.MaxTokens,
		"model":       req.Params.Model,
		"template_id": req.TemplateID,
		"variables":   vars,
	}
}

// roundTemperature returns the temperature rounded to the configured
// precision, rendered as a fixed-decimal string so float formatting can
// never fragment keys.
func (k *DefaultKeyer) roundTemperature(t float64) string {
	p := k.config.TemperaturePrecision
	rounded := math.Round(t/p) * p
	return strconv.FormatFloat(rounded, 'f', k.decimals, 64)
}

func (k *DefaultKeyer) excluded(key string) bool {
	lower := strings.ToLower(key)
	for _, prefix := range k.config.ExcludedPrefixes {
		if strings.HasPrefix(lower, strings.ToLower(prefix)) {
			return true
		}
	}
	return false
}

// SimilarityKey lowercases the prompt, strips punctuation, keeps only the
// whitelisted variables and buckets numeric parameters.
func (k *DefaultKeyer) SimilarityKey(req sampling.Request) string {
	var b strings.Builder
	b.WriteString(req.TemplateID)
	b.WriteByte('|')
	b.WriteString(looseText(req.Prompt))
	b.WriteByte('|')

	// Temperature in 0.5 buckets, max tokens in 1000s
	fmt.Fprintf(&b, "t%d|m%d|", int(math.Floor(req.Params.Temperature/0.5)), req.Params.MaxTokens/1000)

	names := slices.Clone(k.config.SimilarityVariables)
	slices.Sort(names)
	for _, name := range names {
		v := req.Variable(name)
		if v == "" {
			continue
		}
		fmt.Fprintf(&b, "%s=%s;", name, looseText(v))
	}

	hash := sha256.Sum256([]byte(b.String()))
	return "sim:" + hex.EncodeToString(hash[:8])
}

func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func looseText(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return unicode.ToLower(r)
		case unicode.IsSpace(r):
			return ' '
		default:
			return -1
		}
	}, s)
	return collapseWhitespace(s)
}

// canonicalize produces a deterministic JSON representation of the input.
// Maps are sorted by key to ensure consistent ordering.
func canonicalize(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return []byte("null"), nil
	case map[string]any:
		return canonicalizeMap(val)
	case []any:
		return canonicalizeSlice(val)
	case string, bool, int, int64, float64:
		return json.Marshal(val)
	default:
		// Round-trip through JSON so typed maps and structs get sorted keys too
		raw, err := json.Marshal(val)
		if err != nil {
			return nil, err
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return nil, err
		}
		switch generic.(type) {
		case map[string]any, []any:
			return canonicalize(generic)
		default:
			return raw, nil
		}
	}
}

func canonicalizeMap(m map[string]any) ([]byte, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	result := []byte("{")
	for i, k := range keys {
		if i > 0 {
			result = append(result, ',')
		}

		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		result = append(result, keyBytes...)
		result = append(result, ':')

		valBytes, err := canonicalize(m[k])
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, '}')

	return result, nil
}

func canonicalizeSlice(s []any) ([]byte, error) {
	result := []byte("[")
	for i, v := range s {
		if i > 0 {
			result = append(result, ',')
		}

		valBytes, err := canonicalize(v)
		if err != nil {
			return nil, err
		}
		result = append(result, valBytes...)
	}
	result = append(result, ']')

	return result, nil
}

// Ensure DefaultKeyer implements Keyer
var _ Keyer = (*DefaultKeyer)(nil)
