package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonwraymond/sampleops/cache"
	"github.com/jonwraymond/sampleops/config"
	"github.com/jonwraymond/sampleops/generate"
	"github.com/jonwraymond/sampleops/health"
	"github.com/jonwraymond/sampleops/observe"
	"github.com/jonwraymond/sampleops/recovery"
	"github.com/jonwraymond/sampleops/resilience"
	"github.com/jonwraymond/sampleops/sampling"
	"github.com/jonwraymond/sampleops/sampling/openai"
)

// app holds the components shared by serve and generate.
type app struct {
	cfg       *config.Config
	observer  observe.Observer
	logger    observe.Logger
	metrics   observe.Metrics
	cache     *cache.MemoryCache
	guard     *resilience.Guard
	generator *generate.Generator
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	obs, err := observe.NewObserver(ctx, cfg.ObserveConfig())
	if err != nil {
		return nil, fmt.Errorf("init observability: %w", err)
	}
	metrics, err := observe.NewMetrics(obs.Meter())
	if err != nil {
		return nil, errors.Join(fmt.Errorf("init metrics: %w", err), obs.Shutdown(ctx))
	}
	logger := obs.Logger()
	tracer := observe.NewTracer(obs.Tracer())

	a := &app{
		cfg:      cfg,
		observer: obs,
		logger:   logger,
		metrics:  metrics,
		guard:    resilience.NewGuardFromConfig(cfg.GuardConfig()),
	}

	a.cache = cache.NewMemoryCache(cfg.CachePolicy(),
		cache.WithKeyer(cache.NewKeyer(cfg.KeyerConfig())),
		cache.WithEvictionHook(func(reason cache.EvictionReason, _ cache.Entry) {
			metrics.RecordEviction(context.Background(), reason.String())
		}),
	)
	err = metrics.ObserveCache(func() observe.CacheSnapshot {
		stats := a.cache.Stats()
		return observe.CacheSnapshot{
			Entries:     int64(stats.TotalEntries),
			MemoryBytes: stats.MemoryUsageBytes,
		}
	})
	if err != nil {
		return nil, errors.Join(fmt.Errorf("register cache gauges: %w", err), obs.Shutdown(ctx))
	}

	rc := cfg.RecoveryConfig()
	rc.Logger = logger
	rc.Tracer = tracer
	rc.Metrics = metrics

	a.generator, err = generate.NewGenerator(generate.Config{
		Sampler: openai.New(openai.Config{
			BaseURL: cfg.Sampler.BaseURL,
			APIKey:  cfg.Sampler.APIKey,
			Model:   cfg.Sampler.Model,
		}),
		Cache:  a.cache,
		Guard:  a.guard,
		Driver: recovery.NewDriver(rc),
		Defaults: sampling.Params{
			MaxTokens: cfg.Sampler.MaxTokens,
			Model:     cfg.Sampler.Model,
		},
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
	})
	if err != nil {
		return nil, errors.Join(err, obs.Shutdown(ctx))
	}
	return a, nil
}

// health builds the aggregator for the cache and the sampler breaker.
func (a *app) health() *health.Aggregator {
	agg := health.NewAggregator()
	agg.Register(health.NewCacheChecker(a.cache, health.CacheCheckerConfig{}))
	if cb := a.guard.CircuitBreaker(); cb != nil {
		agg.Register(health.NewBreakerChecker("sampler", cb))
	}
	return agg
}

func (a *app) close(ctx context.Context) {
	if err := a.observer.Shutdown(ctx); err != nil {
		a.logger.Warn(ctx, "observability shutdown failed", observe.Field{Key: "error", Value: err.Error()})
	}
}
