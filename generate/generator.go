package generate

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/jonwraymond/sampleops/cache"
	"github.com/jonwraymond/sampleops/observe"
	"github.com/jonwraymond/sampleops/recovery"
	"github.com/jonwraymond/sampleops/resilience"
	"github.com/jonwraymond/sampleops/sampling"
)

// Config configures a Generator.
type Config struct {
	// Sampler produces artifacts. Required.
	Sampler sampling.Sampler

	// Cache stores artifacts. Nil disables caching.
	Cache cache.Cache

	// Keyer fingerprints requests for coalescing and similarity tracking.
	// Default: the cache's keyer when it exposes one, else a DefaultKeyer
	Keyer cache.Keyer

	// Guard wraps Sampler with timeout, rate, concurrency and circuit
	// breaking. Nil leaves Sampler unguarded.
	Guard *resilience.Guard

	// Driver recovers failed samples.
	// Default: a driver with the built-in strategies
	Driver *recovery.Driver

	// Templates validate sampled output per template ID.
	// Default: DefaultTemplates()
	Templates *Templates

	// Defaults fill requests that leave MaxTokens or Model unset.
	Defaults sampling.Params

	// SimilarityWindow bounds the remembered similarity keys.
	// Default: 1024
	SimilarityWindow int

	Logger  observe.Logger
	Tracer  observe.Tracer
	Metrics observe.Metrics
}

// Result is the outcome of a generation.
type Result struct {
	Artifact    any    `json:"artifact"`
	TokensUsed  int    `json:"tokens_used"`
	Model       string `json:"model,omitempty"`
	Fingerprint string `json:"fingerprint,omitempty"`

	// Cached is set when the artifact was served from the cache.
	Cached bool `json:"cached"`

	// Shared is set when the result came from a concurrent identical call.
	Shared bool `json:"shared,omitempty"`

	// Recovery is the recovery session trail when the first sample failed.
	Recovery *recovery.Result `json:"recovery,omitempty"`
}

// Generator is the cache-first generation pipeline.
//
// Contract:
//   - Concurrency: safe for concurrent use.
//   - Context: cancellation aborts sampling and recovery. Concurrent
//     identical misses share the first caller's context.
//   - Errors: cache problems never fail a generation.
type Generator struct {
	cache     cache.Cache
	keyer     cache.Keyer
	sampler   sampling.Sampler
	driver    *recovery.Driver
	templates *Templates
	defaults  sampling.Params
	similar   *similarityTracker
	group     singleflight.Group

	logger  observe.Logger
	tracer  observe.Tracer
	metrics observe.Metrics
}

type keyerSource interface {
	Keyer() cache.Keyer
}

// NewGenerator creates a Generator. The sampler chain is, outermost first:
// observability, output validation, then the guard around Sampler.
func NewGenerator(cfg Config) (*Generator, error) {
	if cfg.Sampler == nil {
		return nil, sampling.ErrNilSampler
	}

	g := &Generator{
		cache:     cfg.Cache,
		keyer:     cfg.Keyer,
		driver:    cfg.Driver,
		templates: cfg.Templates,
		defaults:  cfg.Defaults,
		similar:   newSimilarityTracker(cfg.SimilarityWindow),
		logger:    cfg.Logger,
		tracer:    cfg.Tracer,
		metrics:   cfg.Metrics,
	}
	if g.logger == nil {
		g.logger = observe.NopLogger()
	}
	if g.tracer == nil {
		g.tracer = observe.NopTracer()
	}
	if g.metrics == nil {
		g.metrics = observe.NopMetrics()
	}
	if g.keyer == nil {
		if ks, ok := cfg.Cache.(keyerSource); ok {
			g.keyer = ks.Keyer()
		} else {
			g.keyer = cache.NewDefaultKeyer()
		}
	}
	if g.templates == nil {
		g.templates = DefaultTemplates()
	}
	if g.driver == nil {
		g.driver = recovery.NewDriver(recovery.Config{
			Logger:  g.logger,
			Tracer:  g.tracer,
			Metrics: g.metrics,
		})
	}

	s := cfg.Sampler
	if cfg.Guard != nil {
		s = cfg.Guard.Wrap(s)
	}
	s = validating(s, g.templates)
	g.sampler = observe.NewMiddleware(g.tracer, g.metrics, g.logger).
		WithErrorClassifier(classify).
		Wrap(s)

	return g, nil
}

func classify(err error) string {
	return recovery.Classify(err).String()
}

// Templates returns the template registry.
func (g *Generator) Templates() *Templates {
	return g.templates
}

// Render builds a request from a template and fills the generator defaults.
func (g *Generator) Render(templateID string, vars map[string]any) (sampling.Request, error) {
	req, err := g.templates.Render(templateID, vars)
	if err != nil {
		return sampling.Request{}, err
	}
	return g.withDefaults(req), nil
}

// Generate returns the artifact for req: from the cache when a live entry
// exists, otherwise by sampling and, on failure, recovery. On failure the
// returned result still carries the recovery trail.
func (g *Generator) Generate(ctx context.Context, req sampling.Request) (*Result, error) {
	req = g.withDefaults(req)
	if err := req.Validate(); err != nil {
		return nil, err
	}

	meta := observe.OpMeta{
		Operation:  observe.OpGenerate,
		TemplateID: req.TemplateID,
		Model:      req.Params.Model,
	}
	ctx, span := g.tracer.StartSpan(ctx, meta)
	start := time.Now()

	res, err := g.generate(ctx, req)

	g.tracer.EndSpan(span, err)

	fields := []observe.Field{
		{Key: "duration_ms", Value: time.Since(start).Milliseconds()},
		{Key: "fingerprint", Value: res.Fingerprint},
		{Key: "cached", Value: res.Cached},
		{Key: "tokens_used", Value: res.TokensUsed},
	}
	if res.Recovery != nil {
		fields = append(fields,
			observe.Field{Key: "recovery_session", Value: res.Recovery.SessionID},
			observe.Field{Key: "recovery_attempts", Value: len(res.Recovery.Attempts)},
		)
	}
	logger := g.logger.With(meta)
	if err != nil {
		logger.Error(ctx, "generation failed", append(fields, observe.Field{Key: "error", Value: err.Error()})...)
		return res, err
	}
	logger.Info(ctx, "generation completed", fields...)
	return res, nil
}

func (g *Generator) generate(ctx context.Context, req sampling.Request) (*Result, error) {
	key, err := g.keyer.Fingerprint(req)
	if err != nil {
		g.logger.Warn(ctx, "fingerprint failed, generating uncached",
			observe.Field{Key: "error", Value: err.Error()},
		)
		out, err := g.produce(ctx, req, "", false)
		return &out, err
	}

	g.metrics.RecordSimilarRequest(ctx, req.TemplateID, g.similar.observe(g.keyer.SimilarityKey(req), key))

	if g.cache != nil {
		artifact, hit := g.cache.Get(ctx, req)
		g.metrics.RecordCacheLookup(ctx, req.TemplateID, hit)
		if hit {
			return &Result{Artifact: artifact, Fingerprint: key, Cached: true}, nil
		}
	}

	v, err, shared := g.group.Do(key, func() (any, error) {
		return g.produce(ctx, req, key, g.cache != nil)
	})
	out := v.(Result)
	out.Shared = shared
	return &out, err
}

// produce samples req and falls back to recovery. Successful artifacts,
// recovered ones included, are cached under the original request.
func (g *Generator) produce(ctx context.Context, req sampling.Request, key string, store bool) (Result, error) {
	resp, err := g.sampler.Sample(ctx, req)
	if err == nil {
		if store {
			g.store(ctx, req, resp.Artifact, true, resp.TokensUsed)
		}
		return Result{
			Artifact:    resp.Artifact,
			TokensUsed:  resp.TokensUsed,
			Model:       resp.Model,
			Fingerprint: key,
		}, nil
	}

	rec := g.driver.Recover(ctx, req, err, g.sampler)
	out := Result{
		Fingerprint: key,
		TokensUsed:  rec.Context.Metadata.TokensUsed,
		Recovery:    rec,
	}
	if !rec.Success {
		if partial := sampling.PartialResult(rec.FinalError); partial != nil && store {
			g.store(ctx, req, partial, false, out.TokensUsed)
		}
		return out, rec.Err()
	}

	out.Artifact = rec.Response.Artifact
	out.Model = rec.Response.Model
	if store {
		g.store(ctx, req, rec.Response.Artifact, true, rec.Response.TokensUsed)
	}
	return out, nil
}

func (g *Generator) store(ctx context.Context, req sampling.Request, artifact any, ok bool, tokens int) {
	if err := g.cache.Set(ctx, req, artifact, ok, tokens); err != nil {
		g.logger.Warn(ctx, "cache store failed",
			observe.Field{Key: "template_id", Value: req.TemplateID},
			observe.Field{Key: "error", Value: err.Error()},
		)
	}
}

func (g *Generator) withDefaults(req sampling.Request) sampling.Request {
	p := req.Params
	if p.MaxTokens == 0 {
		p.MaxTokens = g.defaults.MaxTokens
	}
	if p.Model == "" {
		p.Model = g.defaults.Model
	}
	if p == req.Params {
		return req
	}
	return req.WithParams(p)
}
