package cache

import "time"

// Policy configures caching behavior.
type Policy struct {
	// Enabled turns caching on. When false every Set is a no-op and every
	// Get misses.
	Enabled bool

	// DefaultTTL is the TTL used when no template override applies.
	// If zero, caching is disabled.
	DefaultTTL time.Duration

	// MaxTTL is the maximum allowed TTL. Overrides are clamped to this.
	// If zero, no maximum is enforced.
	MaxTTL time.Duration

	// TemplateTTLs overrides DefaultTTL per template ID.
	TemplateTTLs map[string]time.Duration

	// MaxEntries bounds the number of live entries. Zero means unbounded.
	MaxEntries int

	// MaxMemoryBytes bounds the estimated memory of all entries.
	// Zero means unbounded.
	MaxMemoryBytes int64

	// CacheFailures keeps artifacts from unsuccessful generations.
	CacheFailures bool

	// CleanupInterval is the period of the background expiry sweep.
	// Default: 5 minutes
	CleanupInterval time.Duration
}

// DefaultPolicy returns the default caching policy.
// DefaultTTL: 1 hour, MaxTTL: 24 hours, MaxEntries: 1000,
// MaxMemoryBytes: 50 MiB, CleanupInterval: 5 minutes.
func DefaultPolicy() Policy {
	return Policy{
		Enabled:         true,
		DefaultTTL:      time.Hour,
		MaxTTL:          24 * time.Hour,
		MaxEntries:      1000,
		MaxMemoryBytes:  50 << 20,
		CleanupInterval: 5 * time.Minute,
	}
}

// NoCachePolicy returns a policy that disables caching entirely.
func NoCachePolicy() Policy {
	return Policy{}
}

// ShouldCache returns true if caching is enabled by this policy.
func (p Policy) ShouldCache() bool {
	return p.Enabled && p.DefaultTTL > 0
}

// EffectiveTTL returns the TTL for a template, applying overrides and clamping.
func (p Policy) EffectiveTTL(templateID string) time.Duration {
	ttl := p.DefaultTTL
	if override, ok := p.TemplateTTLs[templateID]; ok && override > 0 {
		ttl = override
	}

	if p.MaxTTL > 0 && ttl > p.MaxTTL {
		ttl = p.MaxTTL
	}

	return ttl
}

func (p Policy) cleanupInterval() time.Duration {
	if p.CleanupInterval <= 0 {
		return 5 * time.Minute
	}
	return p.CleanupInterval
}
