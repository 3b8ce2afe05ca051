package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/jonwraymond/sampleops/secret"
)

// Load reads a YAML config file over Default(), then expands and resolves
// its string values. A nil resolver resolves env references and file
// references relative to the config file's directory.
func Load(ctx context.Context, path string, resolver *secret.Resolver) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrReadConfig, err)
	}

	if resolver == nil {
		dir, err := filepath.Abs(filepath.Dir(path))
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReadConfig, err)
		}
		resolver = secret.NewResolver(true, secret.NewEnvProvider(), secret.NewFileProvider(dir))
	}

	return Parse(ctx, data, resolver)
}

// Parse decodes YAML over Default() and resolves it. Unknown keys are
// rejected. A nil resolver only resolves env references.
func Parse(ctx context.Context, data []byte, resolver *secret.Resolver) (*Config, error) {
	cfg := Default()

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: %w", ErrParseConfig, err)
	}

	if resolver == nil {
		resolver = secret.NewResolver(true, secret.NewEnvProvider())
	}
	if err := cfg.resolve(ctx, resolver); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) resolve(ctx context.Context, resolver *secret.Resolver) error {
	fields := []struct {
		name  string
		value *string
	}{
		{"sampler.base_url", &c.Sampler.BaseURL},
		{"sampler.api_key", &c.Sampler.APIKey},
		{"sampler.model", &c.Sampler.Model},
		{"server.listen", &c.Server.Listen},
		{"server.jwt.secret", &c.Server.JWT.Secret},
		{"server.jwt.issuer", &c.Server.JWT.Issuer},
		{"server.jwt.audience", &c.Server.JWT.Audience},
		{"observe.service_name", &c.Observe.ServiceName},
	}
	for _, f := range fields {
		resolved, err := resolver.ResolveValue(ctx, *f.value)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrResolve, f.name, err)
		}
		*f.value = resolved
	}

	if len(c.Recovery.FallbackModels) > 0 {
		models, err := resolver.ResolveSlice(ctx, c.Recovery.FallbackModels)
		if err != nil {
			return fmt.Errorf("%w: recovery.fallback_models: %w", ErrResolve, err)
		}
		c.Recovery.FallbackModels = models
	}

	hints, err := resolver.ResolveMap(ctx, c.Recovery.FormatHints)
	if err != nil {
		return fmt.Errorf("%w: recovery.format_hints: %w", ErrResolve, err)
	}
	c.Recovery.FormatHints = hints

	return nil
}
