package config

import "errors"

// Sentinel errors returned by Load and Validate.
var (
	ErrReadConfig  = errors.New("config: cannot read file")
	ErrParseConfig = errors.New("config: cannot parse YAML")
	ErrResolve     = errors.New("config: cannot resolve value")

	ErrInvalidTTL        = errors.New("config: cache TTL must not be negative")
	ErrInvalidCacheLimit = errors.New("config: cache limits must not be negative")
	ErrInvalidKeyLength  = errors.New("config: cache key length must be between 16 and 64")
	ErrInvalidPrecision  = errors.New("config: temperature precision must be between 0 and 1")

	ErrInvalidRecoveryLimit = errors.New("config: recovery limits must not be negative")

	ErrInvalidBaseURL     = errors.New("config: sampler base_url must be an absolute http(s) URL")
	ErrInvalidSamplerTune = errors.New("config: sampler limits must not be negative")
	ErrInvalidSampleParam = errors.New("config: sampler defaults are out of range")

	ErrMissingListen  = errors.New("config: server listen address is required")
	ErrInvalidTimeout = errors.New("config: server timeouts must not be negative")
	ErrWeakJWTSecret  = errors.New("config: jwt secret must be at least 32 bytes")
	ErrInvalidObserve = errors.New("config: invalid observe section")
)
