package config

import (
	"time"

	"github.com/jonwraymond/sampleops/auth"
	"github.com/jonwraymond/sampleops/cache"
	"github.com/jonwraymond/sampleops/observe"
	"github.com/jonwraymond/sampleops/recovery"
	"github.com/jonwraymond/sampleops/resilience"
)

// MinJWTSecretBytes is the shortest accepted HMAC secret.
const MinJWTSecretBytes = 32

// Config holds all sampleops configuration.
type Config struct {
	Cache    CacheConfig    `yaml:"cache"`
	Recovery RecoveryConfig `yaml:"recovery"`
	Sampler  SamplerConfig  `yaml:"sampler"`
	Observe  observe.Config `yaml:"observe"`
	Server   ServerConfig   `yaml:"server"`
}

// CacheConfig controls the artifact cache and its fingerprinting.
type CacheConfig struct {
	Enabled              bool                     `yaml:"enabled"`
	DefaultTTL           time.Duration            `yaml:"default_ttl"`
	MaxTTL               time.Duration            `yaml:"max_ttl"`
	TemplateTTLs         map[string]time.Duration `yaml:"template_ttls"`
	MaxEntries           int                      `yaml:"max_entries"`
	MaxMemoryBytes       int64                    `yaml:"max_memory_bytes"`
	CacheFailures        bool                     `yaml:"cache_failures"`
	CleanupInterval      time.Duration            `yaml:"cleanup_interval"`
	TemperaturePrecision float64                  `yaml:"temperature_precision"`
	KeyLength            int                      `yaml:"key_length"`
}

// RecoveryConfig controls recovery sessions. Limits above the hard
// ceilings are lowered to them by the driver.
type RecoveryConfig struct {
	MaxAttempts         int               `yaml:"max_attempts"`
	MaxDuration         time.Duration     `yaml:"max_duration"`
	MaxTokens           int               `yaml:"max_tokens"`
	StrategyMaxAttempts int               `yaml:"strategy_max_attempts"`
	FallbackModels      []string          `yaml:"fallback_models"`
	FormatHints         map[string]string `yaml:"format_hints"`
}

// SamplerConfig configures the upstream model endpoint and the guard
// around it.
type SamplerConfig struct {
	BaseURL string `yaml:"base_url"`
	APIKey  string `yaml:"api_key"`
	Model   string `yaml:"model"`

	// Temperature and MaxTokens fill requests that leave them unset.
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`

	Timeout         time.Duration `yaml:"timeout"`
	Rate            float64       `yaml:"rate"`
	Burst           int           `yaml:"burst"`
	WaitOnLimit     bool          `yaml:"wait_on_limit"`
	MaxWait         time.Duration `yaml:"max_wait"`
	MaxConcurrent   int           `yaml:"max_concurrent"`
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Listen          string        `yaml:"listen"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	JWT             JWTConfig     `yaml:"jwt"`
}

// JWTConfig enables bearer authentication on /v1 routes when Secret is set.
type JWTConfig struct {
	Secret    string        `yaml:"secret"`
	Issuer    string        `yaml:"issuer"`
	Audience  string        `yaml:"audience"`
	Leeway    time.Duration `yaml:"leeway"`
	AdminRole string        `yaml:"admin_role"`
}

// Enabled reports whether a secret is configured.
func (j JWTConfig) Enabled() bool {
	return j.Secret != ""
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	policy := cache.DefaultPolicy()
	return &Config{
		Cache: CacheConfig{
			Enabled:              policy.Enabled,
			DefaultTTL:           policy.DefaultTTL,
			MaxTTL:               policy.MaxTTL,
			MaxEntries:           policy.MaxEntries,
			MaxMemoryBytes:       policy.MaxMemoryBytes,
			CleanupInterval:      policy.CleanupInterval,
			TemperaturePrecision: 0.01,
			KeyLength:            32,
		},
		Recovery: RecoveryConfig{
			MaxAttempts:         recovery.MaxAttemptsCeiling,
			MaxDuration:         recovery.MaxDurationCeiling,
			MaxTokens:           recovery.MaxTokensCeiling,
			StrategyMaxAttempts: recovery.DefaultStrategyMaxAttempts,
		},
		Sampler: SamplerConfig{
			BaseURL:         "https://api.openai.com/v1",
			Model:           "gpt-4o-mini",
			Temperature:     0.2,
			MaxTokens:       2048,
			Timeout:         60 * time.Second,
			WaitOnLimit:     true,
			MaxWait:         5 * time.Second,
			MaxConcurrent:   8,
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
		},
		Observe: observe.Config{
			ServiceName: "sampleops",
			Metrics:     observe.MetricsConfig{Enabled: true, Exporter: "prometheus"},
			Logging:     observe.LoggingConfig{Enabled: true, Level: "info"},
		},
		Server: ServerConfig{
			Listen:          ":8080",
			ShutdownTimeout: 15 * time.Second,
			JWT:             JWTConfig{AdminRole: "admin"},
		},
	}
}

// CachePolicy maps the cache section to a cache.Policy.
func (c *Config) CachePolicy() cache.Policy {
	return cache.Policy{
		Enabled:         c.Cache.Enabled,
		DefaultTTL:      c.Cache.DefaultTTL,
		MaxTTL:          c.Cache.MaxTTL,
		TemplateTTLs:    c.Cache.TemplateTTLs,
		MaxEntries:      c.Cache.MaxEntries,
		MaxMemoryBytes:  c.Cache.MaxMemoryBytes,
		CacheFailures:   c.Cache.CacheFailures,
		CleanupInterval: c.Cache.CleanupInterval,
	}
}

// KeyerConfig maps the cache section to a cache.KeyerConfig.
func (c *Config) KeyerConfig() cache.KeyerConfig {
	return cache.KeyerConfig{
		TemperaturePrecision: c.Cache.TemperaturePrecision,
		KeyLength:            c.Cache.KeyLength,
	}
}

// RecoveryConfig maps the recovery section to a driver configuration with
// the built-in strategy registry. Logger, tracer and metrics are left for
// the caller.
func (c *Config) RecoveryConfig() recovery.Config {
	return recovery.Config{
		Registry: recovery.DefaultRegistry(recovery.StrategyOptions{
			MaxAttempts:    c.Recovery.StrategyMaxAttempts,
			FallbackModels: c.Recovery.FallbackModels,
			FormatHints:    c.Recovery.FormatHints,
		}),
		MaxAttempts: c.Recovery.MaxAttempts,
		MaxDuration: c.Recovery.MaxDuration,
		MaxTokens:   c.Recovery.MaxTokens,
	}
}

// GuardConfig maps the sampler section to a resilience.GuardConfig.
func (c *Config) GuardConfig() resilience.GuardConfig {
	return resilience.GuardConfig{
		Timeout:         c.Sampler.Timeout,
		Rate:            c.Sampler.Rate,
		Burst:           c.Sampler.Burst,
		WaitOnLimit:     c.Sampler.WaitOnLimit,
		MaxWait:         c.Sampler.MaxWait,
		MaxConcurrent:   c.Sampler.MaxConcurrent,
		BreakerFailures: c.Sampler.BreakerFailures,
		BreakerReset:    c.Sampler.BreakerReset,
	}
}

// ObserveConfig returns the observe section.
func (c *Config) ObserveConfig() observe.Config {
	return c.Observe
}

// JWTConfig maps the server jwt section to an auth.JWTConfig.
func (c *Config) JWTConfig() auth.JWTConfig {
	return auth.JWTConfig{
		Issuer:   c.Server.JWT.Issuer,
		Audience: c.Server.JWT.Audience,
		Leeway:   c.Server.JWT.Leeway,
	}
}
