package recovery

import (
	"fmt"
	"maps"
	"regexp"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jonwraymond/sampleops/resilience"
	"github.com/jonwraymond/sampleops/sampling"
)

// Built-in strategy names.
const (
	StrategyJSONRepair       = "json_repair"
	StrategyContentRephrase  = "content_rephrase"
	StrategyCompleteResponse = "complete_response"
	StrategyFormatCorrection = "format_correction"
	StrategyFieldRepair      = "field_repair"
	StrategyTransientBackoff = "transient_backoff"
	StrategyModelFallback    = "model_fallback"
	StrategySimplify         = "simplify"
)

// StrategyOptions configures DefaultRegistry.
type StrategyOptions struct {
	// MaxAttempts is the reuse cap of every built-in strategy.
	// Default: 3
	MaxAttempts int

	// FallbackModels enables model_fallback, tried in order.
	FallbackModels []string

	// FormatHints maps template IDs to a description of the expected
	// output format. Entries override the built-in hints.
	FormatHints map[string]string

	// EssentialVariables are kept by simplify; every other variable is
	// dropped. Nil uses a built-in set.
	EssentialVariables []string

	// Backoff drives the delay of transient_backoff.
	Backoff resilience.Backoff
}

// DefaultRegistry returns a registry with every built-in strategy.
// model_fallback is only registered when fallback models are configured.
func DefaultRegistry(opts StrategyOptions) *Registry {
	capN := opts.MaxAttempts
	if capN <= 0 {
		capN = DefaultStrategyMaxAttempts
	}

	hints := maps.Clone(defaultFormatHints)
	maps.Copy(hints, opts.FormatHints)

	essential := opts.EssentialVariables
	if essential == nil {
		essential = defaultEssentialVariables
	}

	backoff := opts.Backoff
	if backoff.Initial <= 0 {
		backoff = resilience.Backoff{
			Initial: 500 * time.Millisecond,
			Max:     8 * time.Second,
			Jitter:  true,
		}
	}

	strategies := []Strategy{
		&JSONRepair{base: base{StrategyJSONRepair, 10, capN}},
		&ContentRephrase{base: base{StrategyContentRephrase, 15, capN}},
		&CompleteResponse{base: base{StrategyCompleteResponse, 20, capN}},
		&FormatCorrection{base: base{StrategyFormatCorrection, 30, capN}, Hints: hints},
		&FieldRepair{base: base{StrategyFieldRepair, 40, capN}},
		&TransientBackoff{base: base{StrategyTransientBackoff, 50, capN}, Backoff: backoff},
	}
	if len(opts.FallbackModels) > 0 {
		strategies = append(strategies, &ModelFallback{
			base:   base{StrategyModelFallback, 60, capN},
			Models: slices.Clone(opts.FallbackModels),
		})
	}
	strategies = append(strategies, &Simplify{
		base:      base{StrategySimplify, 100, capN},
		Essential: slices.Clone(essential),
	})

	return NewRegistry(strategies...)
}

// base carries the identity shared by the built-in strategies.
type base struct {
	name        string
	priority    int
	maxAttempts int
}

func (b base) Name() string     { return b.name }
func (b base) Priority() int    { return b.priority }
func (b base) MaxAttempts() int { return b.maxAttempts }

// appendInstruction adds a paragraph to the prompt.
func appendInstruction(req sampling.Request, instruction string) sampling.Request {
	prompt := strings.TrimRight(req.Prompt, "\n")
	return req.WithPrompt(prompt + "\n\n" + instruction)
}

// fragment returns at most n bytes of s, cut on a rune boundary.
func fragment(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "..."
}

// JSONRepair asks for strictly valid JSON and shows the invalid output.
type JSONRepair struct {
	base
}

// CanHandle accepts parsing failures and JSON syntax patterns.
func (s *JSONRepair) CanHandle(err error, ec *ErrorContext) bool {
	return Classify(err) == ErrorParsing ||
		ec.ErrorType == ErrorParsing ||
		ec.HasPattern(PatternJSONSyntax)
}

// Recover appends JSON-only instructions.
func (s *JSONRepair) Recover(req sampling.Request, err error, ec *ErrorContext) sampling.Request {
	var b strings.Builder
	b.WriteString("The previous response was not valid JSON")
	if err != nil {
		fmt.Fprintf(&b, " (%s)", fragment(err.Error(), 200))
	}
	b.WriteString(". Respond with strictly valid JSON only: no prose, no markdown fences, no trailing commas, every string quoted.")
	if partial := sampling.ArtifactString(ec.PartialResult); partial != "" {
		fmt.Fprintf(&b, "\nInvalid output to fix:\n%s", fragment(partial, 500))
	}
	return appendInstruction(req, b.String())
}

// ContentRephrase rewrites the request in neutral language after a
// content filter rejection.
type ContentRephrase struct {
	base
}

// CanHandle accepts content filter failures.
func (s *ContentRephrase) CanHandle(err error, ec *ErrorContext) bool {
	return Classify(err) == ErrorContentFilter || ec.ErrorType == ErrorContentFilter
}

// Recover prefixes a neutral-language instruction.
func (s *ContentRephrase) Recover(req sampling.Request, _ error, _ *ErrorContext) sampling.Request {
	return req.WithPrompt("Use neutral, professional technical language. Describe only the configuration artifact requested.\n\n" + req.Prompt)
}

// Token growth for complete_response.
const (
	completeTokensFactor = 0.5
	completeTokensCap    = 2000
)

// CompleteResponse raises the token budget after a truncated answer.
type CompleteResponse struct {
	base
}

// CanHandle accepts incomplete response patterns.
func (s *CompleteResponse) CanHandle(_ error, ec *ErrorContext) bool {
	return ec.HasPattern(PatternIncompleteResponse)
}

// Recover raises max tokens by 50% (at most +2000) and asks for a complete
// answer.
func (s *CompleteResponse) Recover(req sampling.Request, _ error, _ *ErrorContext) sampling.Request {
	out := appendInstruction(req, "The previous response was cut off. Return the complete output in one response and keep it concise.")
	if mt := out.Params.MaxTokens; mt > 0 {
		out.Params.MaxTokens = mt + min(int(float64(mt)*completeTokensFactor), completeTokensCap)
	}
	return out
}

var defaultFormatHints = map[string]string{
	"dockerfile":    "a single Dockerfile starting with a FROM instruction, with no surrounding explanation",
	"k8s-manifests": "Kubernetes manifests as YAML documents separated by ---, each with apiVersion, kind and metadata.name",
}

const genericFormatHint = "only the requested artifact, in the exact format asked for, with no surrounding explanation"

// FormatCorrection restates the expected output format for the template.
type FormatCorrection struct {
	base

	// Hints maps template IDs to format descriptions.
	Hints map[string]string
}

// CanHandle accepts wrong format patterns and schema validation failures
// that do not name individual fields.
func (s *FormatCorrection) CanHandle(err error, ec *ErrorContext) bool {
	if ec.HasPattern(PatternWrongFormat) {
		return true
	}
	if ec.HasPattern(PatternMissingField) || ec.HasPattern(PatternInvalidValue) {
		return false
	}
	return ec.ErrorType == ErrorSchemaValidation || Classify(err) == ErrorSchemaValidation
}

// Recover appends the template's format description.
func (s *FormatCorrection) Recover(req sampling.Request, _ error, _ *ErrorContext) sampling.Request {
	hint, ok := s.Hints[req.TemplateID]
	if !ok {
		hint = genericFormatHint
	}
	return appendInstruction(req, "The previous response had the wrong format. Return "+hint+".")
}

var fieldPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(?:field|property|key|value for)\s+["'\x60]?([A-Za-z_][\w.\-]*)`),
	regexp.MustCompile(`(?i)["'\x60]([A-Za-z_][\w.\-]*)["'\x60]\s+is\s+(?:required|missing|invalid)`),
}

// ExtractFields returns the field names mentioned in an error message, in
// order of first appearance.
func ExtractFields(msg string) []string {
	var fields []string
	for _, re := range fieldPatterns {
		for _, m := range re.FindAllStringSubmatch(msg, -1) {
			if !slices.Contains(fields, m[1]) {
				fields = append(fields, m[1])
			}
		}
	}
	return fields
}

// FieldRepair lists the fields to add or correct.
type FieldRepair struct {
	base
}

// CanHandle accepts missing field and invalid value patterns.
func (s *FieldRepair) CanHandle(_ error, ec *ErrorContext) bool {
	return ec.HasPattern(PatternMissingField) || ec.HasPattern(PatternInvalidValue)
}

// Recover names the fields parsed from the error.
func (s *FieldRepair) Recover(req sampling.Request, err error, _ *ErrorContext) sampling.Request {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	fields := ExtractFields(msg)

	instruction := "The previous response had missing or invalid fields"
	if len(fields) > 0 {
		instruction += ": " + strings.Join(fields, ", ")
	}
	instruction += ". Include every required field with a valid value."
	return appendInstruction(req, instruction)
}

const timeoutTokensFactor = 0.75

// TransientBackoff retries timeouts, rate limits and network failures
// after a backoff delay.
type TransientBackoff struct {
	base

	// Backoff computes the delay from the number of earlier uses.
	Backoff resilience.Backoff
}

// CanHandle accepts transient failures.
func (s *TransientBackoff) CanHandle(err error, _ *ErrorContext) bool {
	return Classify(err).Transient()
}

// Recover keeps the request, shortening max tokens after a timeout.
func (s *TransientBackoff) Recover(req sampling.Request, err error, _ *ErrorContext) sampling.Request {
	out := req.Clone()
	if Classify(err) == ErrorTimeout && out.Params.MaxTokens > 0 {
		out.Params.MaxTokens = max(1, int(float64(out.Params.MaxTokens)*timeoutTokensFactor))
	}
	return out
}

// Delay grows with each use of the strategy in the session.
func (s *TransientBackoff) Delay(ec *ErrorContext) time.Duration {
	return s.Backoff.Delay(ec.TimesUsed(s.Name()) + 1)
}

// repeatedFailureAttempt is the attempt from which model_fallback takes
// over failures of any type.
const repeatedFailureAttempt = 3

// ModelFallback switches to the next model that has not been tried.
type ModelFallback struct {
	base

	// Models are tried in order.
	Models []string
}

// CanHandle accepts model failures, or any failure from the third attempt,
// while an untried model remains.
func (s *ModelFallback) CanHandle(err error, ec *ErrorContext) bool {
	if s.next(ec) == "" {
		return false
	}
	return Classify(err) == ErrorModel || ec.Attempt >= repeatedFailureAttempt
}

// Recover pins the next untried model.
func (s *ModelFallback) Recover(req sampling.Request, _ error, ec *ErrorContext) sampling.Request {
	out := req.Clone()
	if model := s.next(ec); model != "" {
		out.Params.Model = model
	}
	return out
}

func (s *ModelFallback) next(ec *ErrorContext) string {
	for _, m := range s.Models {
		if !slices.Contains(ec.Metadata.ModelsAttempted, m) {
			return m
		}
	}
	return ""
}

var defaultEssentialVariables = []string{
	"name", "app_name", "language", "runtime", "base_image", "image",
	"port", "namespace", "replicas", "entrypoint",
}

// Simplify asks for a minimal artifact and drops optional variables.
type Simplify struct {
	base

	// Essential lists the variables that are kept.
	Essential []string
}

// CanHandle accepts everything except content filter failures.
func (s *Simplify) CanHandle(err error, ec *ErrorContext) bool {
	return Classify(err) != ErrorContentFilter && ec.ErrorType != ErrorContentFilter
}

// Recover removes non-essential variables and asks for a minimal artifact.
func (s *Simplify) Recover(req sampling.Request, _ error, _ *ErrorContext) sampling.Request {
	var drop []string
	for k := range req.Variables {
		if !slices.Contains(s.Essential, k) {
			drop = append(drop, k)
		}
	}
	out := req.WithoutVariables(drop...)
	return appendInstruction(out, "Produce the simplest working version of the artifact. Omit optional features and comments.")
}
