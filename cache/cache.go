package cache

import (
	"context"
	"errors"
	"time"

	"github.com/jonwraymond/sampleops/sampling"
)

// Sentinel errors for cache operations.
var (
	ErrUnkeyable     = errors.New("cache: request cannot be fingerprinted")
	ErrEntryTooLarge = errors.New("cache: entry exceeds memory ceiling")
)

// Cache is the interface for caching generated artifacts by request.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: methods should honor cancellation/deadlines where applicable.
// - Errors: Get never errors; it returns (nil, false) on miss or expiry.
type Cache interface {
	// Get returns the live artifact cached for req.
	Get(ctx context.Context, req sampling.Request) (any, bool)

	// Set stores an artifact for req. It is a no-op when the policy
	// disables caching or refuses unsuccessful results.
	Set(ctx context.Context, req sampling.Request, artifact any, wasSuccessful bool, tokensUsed int) error

	// Delete removes the entry for req and reports whether one existed.
	Delete(ctx context.Context, req sampling.Request) bool

	// Clear removes every entry.
	Clear()

	// Cleanup sweeps expired entries and returns how many were removed.
	Cleanup() int

	// Stats returns a snapshot of cache statistics.
	Stats() Stats
}

// Entry is a cached artifact with its bookkeeping.
type Entry struct {
	Key            string
	Artifact       any
	TemplateID     string
	CreatedAt      time.Time
	ExpiresAt      time.Time
	LastAccessedAt time.Time
	AccessCount    int64
	SizeBytes      int64
	TokensUsed     int
	WasSuccessful  bool
}

// Expired reports whether the entry is no longer visible at now.
// Get and the background sweep both use this predicate.
func (e *Entry) Expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

// Stats is a snapshot of cache statistics.
type Stats struct {
	Hits             int64            `json:"hits"`
	Misses           int64            `json:"misses"`
	HitRate          float64          `json:"hit_rate"`
	TotalEntries     int              `json:"total_entries"`
	MemoryUsageBytes int64            `json:"memory_usage_bytes"`
	TTLEvictions     int64            `json:"ttl_evictions"`
	LRUEvictions     int64            `json:"lru_evictions"`
	TokensSaved      int64            `json:"tokens_saved"`
	TopTemplates     []TemplateAccess `json:"top_templates,omitempty"`
}

// TemplateAccess is the number of accesses to live entries of one template.
type TemplateAccess struct {
	TemplateID string `json:"template_id"`
	Accesses   int64  `json:"accesses"`
}

// EvictionReason says why an entry left the cache involuntarily.
type EvictionReason int

const (
	// EvictionTTL means the entry expired.
	EvictionTTL EvictionReason = iota
	// EvictionLRU means the entry was the least recently used when a bound was exceeded.
	EvictionLRU
)

// String returns the string representation of the reason.
func (r EvictionReason) String() string {
	switch r {
	case EvictionTTL:
		return "ttl"
	case EvictionLRU:
		return "lru"
	default:
		return "unknown"
	}
}
