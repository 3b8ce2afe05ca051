// Package cache provides the response cache that sits in front of AI
// sampling calls.
//
// It provides request fingerprinting (Keyer), a bounded in-memory store with
// TTL expiry and LRU eviction (MemoryCache), and the Policy that configures
// both. Fingerprints are SHA-256 digests of a canonicalized request: sorted
// variable keys, whitespace-normalized prompt, rounded temperature, and with
// internal/debug variables removed.
//
// The cache is single-node and memory-only. Expiry is checked lazily on Get
// and swept periodically by Run; both use the same predicate.
package cache
