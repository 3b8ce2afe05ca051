// Package health reports whether the generation service can serve.
//
// A Checker reports the status of one component: Healthy, Degraded, or
// Unhealthy. CacheChecker watches cache pressure against the policy's
// memory ceiling and BreakerChecker follows the sampler circuit breaker.
// An Aggregator runs checkers concurrently and reduces their results to
// the most severe status.
//
// # Usage
//
//	agg := health.NewAggregator()
//	agg.Register(health.NewCacheChecker(memCache, health.CacheCheckerConfig{}))
//	agg.Register(health.NewBreakerChecker("sampler", breaker))
//
//	mux := http.NewServeMux()
//	health.RegisterHandlers(mux, agg)
//
// RegisterHandlers serves /healthz (liveness), /readyz (readiness, degraded
// is still ready), /health (JSON detail) and /health/{name}.
package health
