package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration and returns the first problem found.
func (c *Config) Validate() error {
	if err := c.validateCache(); err != nil {
		return err
	}
	if err := c.validateRecovery(); err != nil {
		return err
	}
	if err := c.validateSampler(); err != nil {
		return err
	}

	if c.Server.Listen == "" {
		return ErrMissingListen
	}
	if c.Server.ShutdownTimeout < 0 || c.Server.JWT.Leeway < 0 {
		return ErrInvalidTimeout
	}
	if c.Server.JWT.Enabled() && len(c.Server.JWT.Secret) < MinJWTSecretBytes {
		return fmt.Errorf("%w: got %d", ErrWeakJWTSecret, len(c.Server.JWT.Secret))
	}

	if err := c.Observe.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidObserve, err)
	}
	return nil
}

func (c *Config) validateCache() error {
	cc := c.Cache
	if cc.DefaultTTL < 0 || cc.MaxTTL < 0 {
		return ErrInvalidTTL
	}
	for id, ttl := range cc.TemplateTTLs {
		if ttl < 0 {
			return fmt.Errorf("%w: template %q", ErrInvalidTTL, id)
		}
	}
	if cc.MaxEntries < 0 || cc.MaxMemoryBytes < 0 || cc.CleanupInterval < 0 {
		return ErrInvalidCacheLimit
	}
	if cc.KeyLength != 0 && (cc.KeyLength < 16 || cc.KeyLength > 64) {
		return fmt.Errorf("%w: got %d", ErrInvalidKeyLength, cc.KeyLength)
	}
	if cc.TemperaturePrecision < 0 || cc.TemperaturePrecision > 1 {
		return fmt.Errorf("%w: got %g", ErrInvalidPrecision, cc.TemperaturePrecision)
	}
	return nil
}

func (c *Config) validateRecovery() error {
	rc := c.Recovery
	if rc.MaxAttempts < 0 || rc.MaxDuration < 0 || rc.MaxTokens < 0 || rc.StrategyMaxAttempts < 0 {
		return ErrInvalidRecoveryLimit
	}
	return nil
}

func (c *Config) validateSampler() error {
	sc := c.Sampler
	if sc.BaseURL != "" {
		u, err := url.Parse(sc.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: %q", ErrInvalidBaseURL, sc.BaseURL)
		}
	}
	if sc.Timeout < 0 || sc.Rate < 0 || sc.Burst < 0 || sc.MaxWait < 0 ||
		sc.MaxConcurrent < 0 || sc.BreakerFailures < 0 || sc.BreakerReset < 0 {
		return ErrInvalidSamplerTune
	}
	if sc.Temperature < 0 || sc.Temperature > 2 || sc.MaxTokens < 0 {
		return ErrInvalidSampleParam
	}
	return nil
}
