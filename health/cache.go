package health

import (
	"context"
	"fmt"

	"github.com/jonwraymond/sampleops/cache"
)

// CacheSource is the part of a cache the checker reads.
type CacheSource interface {
	Stats() cache.Stats
	Policy() cache.Policy
}

// CacheCheckerConfig configures the cache health checker.
type CacheCheckerConfig struct {
	// WarningThreshold is the fraction of the memory ceiling that triggers
	// degraded status. Value should be between 0 and 1. Default: 0.8
	WarningThreshold float64

	// CriticalThreshold is the fraction of the memory ceiling that triggers
	// unhealthy status. Value should be between 0 and 1. Default: 0.95
	CriticalThreshold float64

	// MinHitRate degrades the check when the hit rate falls below it after
	// MinLookups lookups. Zero disables the hit rate check.
	MinHitRate float64

	// MinLookups is the number of lookups before MinHitRate applies.
	// Default: 100
	MinLookups int64
}

// CacheChecker reports cache pressure against the policy's memory ceiling.
// When the policy sets no memory ceiling the entry ceiling is used instead.
type CacheChecker struct {
	source CacheSource
	config CacheCheckerConfig
}

// NewCacheChecker creates a cache health checker.
func NewCacheChecker(source CacheSource, config CacheCheckerConfig) *CacheChecker {
	if config.WarningThreshold <= 0 || config.WarningThreshold >= 1 {
		config.WarningThreshold = 0.8
	}
	if config.CriticalThreshold <= 0 || config.CriticalThreshold >= 1 {
		config.CriticalThreshold = 0.95
	}
	if config.CriticalThreshold < config.WarningThreshold {
		config.CriticalThreshold = min(config.WarningThreshold+0.1, 0.99)
	}
	if config.MinLookups <= 0 {
		config.MinLookups = 100
	}
	return &CacheChecker{source: source, config: config}
}

// Name returns the name of this checker.
func (c *CacheChecker) Name() string {
	return "cache"
}

// Check performs the cache health check.
func (c *CacheChecker) Check(ctx context.Context) Result {
	if err := ctx.Err(); err != nil {
		return Unhealthy("context cancelled", err)
	}

	stats := c.source.Stats()
	policy := c.source.Policy()

	details := map[string]any{
		"entries":            stats.TotalEntries,
		"memory_usage_bytes": stats.MemoryUsageBytes,
		"hit_rate":           stats.HitRate,
		"ttl_evictions":      stats.TTLEvictions,
		"lru_evictions":      stats.LRUEvictions,
		"tokens_saved":       stats.TokensSaved,
	}

	if !policy.ShouldCache() {
		return Healthy("cache disabled").WithDetails(details)
	}

	usage, bound := usageRatio(stats, policy)
	details["usage_percent"] = usage * 100
	details["bound"] = bound

	switch {
	case usage >= c.config.CriticalThreshold:
		return Unhealthy(fmt.Sprintf("cache %s usage critical: %.1f%%", bound, usage*100), ErrCheckFailed).
			WithDetails(details)
	case usage >= c.config.WarningThreshold:
		return Degraded(fmt.Sprintf("cache %s usage high: %.1f%%", bound, usage*100)).
			WithDetails(details)
	}

	lookups := stats.Hits + stats.Misses
	if c.config.MinHitRate > 0 && lookups >= c.config.MinLookups && stats.HitRate < c.config.MinHitRate {
		return Degraded(fmt.Sprintf("cache hit rate low: %.1f%%", stats.HitRate*100)).WithDetails(details)
	}

	return Healthy(fmt.Sprintf("cache usage normal: %.1f%%", usage*100)).WithDetails(details)
}

func usageRatio(stats cache.Stats, policy cache.Policy) (float64, string) {
	switch {
	case policy.MaxMemoryBytes > 0:
		return float64(stats.MemoryUsageBytes) / float64(policy.MaxMemoryBytes), "memory"
	case policy.MaxEntries > 0:
		return float64(stats.TotalEntries) / float64(policy.MaxEntries), "entries"
	default:
		return 0, "unbounded"
	}
}
