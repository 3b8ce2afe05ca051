package cache

import (
	"cmp"
	"container/list"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/jonwraymond/sampleops/sampling"
)

// topTemplatesLimit is the number of templates reported in Stats.
const topTemplatesLimit = 5

// MemoryCache is a bounded in-memory cache with TTL expiry and LRU eviction.
//
// Entries are kept in a recency list (front = most recently used). Get and
// Set move an entry to the front, so eviction from the back removes the
// least recently accessed entry, with never-accessed entries ordered by
// insertion.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
	memory  int64

	policy  Policy
	keyer   Keyer
	now     func() time.Time
	onEvict func(reason EvictionReason, entry Entry)

	hits         int64
	misses       int64
	ttlEvictions int64
	lruEvictions int64
	tokensSaved  int64
}

// Option configures a MemoryCache.
type Option func(*MemoryCache)

// WithKeyer sets the keyer used to fingerprint requests.
func WithKeyer(k Keyer) Option {
	return func(c *MemoryCache) {
		if k != nil {
			c.keyer = k
		}
	}
}

// WithClock sets the time source. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(c *MemoryCache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithEvictionHook registers a callback invoked for every TTL or LRU
// eviction. The callback runs with the cache lock held and must not call
// back into the cache.
func WithEvictionHook(fn func(reason EvictionReason, entry Entry)) Option {
	return func(c *MemoryCache) {
		c.onEvict = fn
	}
}

// NewMemoryCache creates a new in-memory cache with the given policy.
func NewMemoryCache(policy Policy, opts ...Option) *MemoryCache {
	c := &MemoryCache{
		entries: make(map[string]*list.Element),
		order:   list.New(),
		policy:  policy,
		keyer:   NewDefaultKeyer(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the cache policy.
func (c *MemoryCache) Policy() Policy {
	return c.policy
}

// Keyer returns the keyer used by the cache.
func (c *MemoryCache) Keyer() Keyer {
	return c.keyer
}

// Get returns the live artifact for req. Found-but-expired entries are
// removed before reporting a miss.
func (c *MemoryCache) Get(_ context.Context, req sampling.Request) (any, bool) {
	if !c.policy.ShouldCache() {
		return nil, false
	}

	key, err := c.keyer.Fingerprint(req)
	if err != nil {
		c.mu.Lock()
		c.misses++
		c.mu.Unlock()
		return nil, false
	}

	return c.GetKey(key)
}

// GetKey is Get for a precomputed fingerprint.
func (c *MemoryCache) GetKey(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		c.misses++
		return nil, false
	}

	now := c.now()
	entry := elem.Value.(*Entry)
	if entry.Expired(now) {
		c.removeLocked(elem)
		c.ttlEvictions++
		c.notifyLocked(EvictionTTL, entry)
		c.misses++
		return nil, false
	}

	entry.AccessCount++
	entry.LastAccessedAt = now
	c.order.MoveToFront(elem)
	c.hits++
	c.tokensSaved += int64(entry.TokensUsed)

	return entry.Artifact, true
}

// Set stores artifact for req, evicting least recently used entries until
// both the entry-count and memory ceilings hold. Replacing an existing key
// releases the old entry first, so it is never counted twice.
func (c *MemoryCache) Set(_ context.Context, req sampling.Request, artifact any, wasSuccessful bool, tokensUsed int) error {
	if !c.policy.ShouldCache() {
		return nil
	}
	if !wasSuccessful && !c.policy.CacheFailures {
		return nil
	}

	key, err := c.keyer.Fingerprint(req)
	if err != nil {
		return err
	}

	return c.SetKey(key, req.TemplateID, artifact, wasSuccessful, tokensUsed)
}

// SetKey is Set for a precomputed fingerprint. Policy checks on
// wasSuccessful are the caller's responsibility.
func (c *MemoryCache) SetKey(key, templateID string, artifact any, wasSuccessful bool, tokensUsed int) error {
	ttl := c.policy.EffectiveTTL(templateID)
	if ttl <= 0 {
		return nil
	}

	size := estimateSize(key, templateID, artifact)

	c.mu.Lock()
	defer c.mu.Unlock()

	// A rejected write still drops the entry it would have replaced.
	if elem, ok := c.entries[key]; ok {
		c.removeLocked(elem)
	}
	if c.policy.MaxMemoryBytes > 0 && size > c.policy.MaxMemoryBytes {
		return ErrEntryTooLarge
	}

	for c.overLimitLocked(size) {
		oldest := c.order.Back()
		if oldest == nil {
			break
		}
		entry := oldest.Value.(*Entry)
		c.removeLocked(oldest)
		c.lruEvictions++
		c.notifyLocked(EvictionLRU, entry)
	}

	now := c.now()
	entry := &Entry{
		Key:            key,
		Artifact:       artifact,
		TemplateID:     templateID,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
		LastAccessedAt: now,
		SizeBytes:      size,
		TokensUsed:     tokensUsed,
		WasSuccessful:  wasSuccessful,
	}
	c.entries[key] = c.order.PushFront(entry)
	c.memory += size

	return nil
}

// Delete removes the entry for req. Idempotent - reports false on miss.
func (c *MemoryCache) Delete(_ context.Context, req sampling.Request) bool {
	key, err := c.keyer.Fingerprint(req)
	if err != nil {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return false
	}
	c.removeLocked(elem)
	return true
}

// Clear removes every entry. Counters are reset as well.
func (c *MemoryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*list.Element)
	c.order.Init()
	c.memory = 0
	c.hits, c.misses = 0, 0
	c.ttlEvictions, c.lruEvictions = 0, 0
	c.tokensSaved = 0
}

// Cleanup sweeps all expired entries and returns how many were removed.
func (c *MemoryCache) Cleanup() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for elem := c.order.Back(); elem != nil; {
		prev := elem.Prev()
		entry := elem.Value.(*Entry)
		if entry.Expired(now) {
			c.removeLocked(elem)
			c.ttlEvictions++
			c.notifyLocked(EvictionTTL, entry)
			removed++
		}
		elem = prev
	}
	return removed
}

// Run sweeps expired entries every policy.CleanupInterval until ctx is done.
func (c *MemoryCache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.policy.cleanupInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Cleanup()
		}
	}
}

// Inspect returns a copy of the entry for a fingerprint without touching
// access metadata or counters.
func (c *MemoryCache) Inspect(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[key]
	if !ok {
		return Entry{}, false
	}
	return *elem.Value.(*Entry), true
}

// Len returns the number of stored entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Stats returns a snapshot of cache statistics.
func (c *MemoryCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := Stats{
		Hits:             c.hits,
		Misses:           c.misses,
		TotalEntries:     len(c.entries),
		MemoryUsageBytes: c.memory,
		TTLEvictions:     c.ttlEvictions,
		LRUEvictions:     c.lruEvictions,
		TokensSaved:      c.tokensSaved,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}

	now := c.now()
	byTemplate := make(map[string]int64)
	for elem := c.order.Front(); elem != nil; elem = elem.Next() {
		entry := elem.Value.(*Entry)
		if entry.Expired(now) {
			continue
		}
		byTemplate[entry.TemplateID] += entry.AccessCount
	}
	for id, n := range byTemplate {
		stats.TopTemplates = append(stats.TopTemplates, TemplateAccess{TemplateID: id, Accesses: n})
	}
	slices.SortFunc(stats.TopTemplates, func(a, b TemplateAccess) int {
		if n := cmp.Compare(b.Accesses, a.Accesses); n != 0 {
			return n
		}
		return cmp.Compare(a.TemplateID, b.TemplateID)
	})
	if len(stats.TopTemplates) > topTemplatesLimit {
		stats.TopTemplates = stats.TopTemplates[:topTemplatesLimit]
	}

	return stats
}

func (c *MemoryCache) overLimitLocked(incoming int64) bool {
	if c.policy.MaxEntries > 0 && len(c.entries)+1 > c.policy.MaxEntries {
		return true
	}
	if c.policy.MaxMemoryBytes > 0 && c.memory+incoming > c.policy.MaxMemoryBytes {
		return true
	}
	return false
}

func (c *MemoryCache) removeLocked(elem *list.Element) {
	entry := elem.Value.(*Entry)
	c.order.Remove(elem)
	delete(c.entries, entry.Key)
	c.memory -= entry.SizeBytes
}

func (c *MemoryCache) notifyLocked(reason EvictionReason, entry *Entry) {
	if c.onEvict != nil {
		c.onEvict(reason, *entry)
	}
}

// Ensure MemoryCache implements Cache
var _ Cache = (*MemoryCache)(nil)
