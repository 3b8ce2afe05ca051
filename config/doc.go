// Package config loads sampleops configuration from YAML.
//
// [Default] returns a complete configuration; [Load] overlays a YAML file on
// top of it, expands ${VAR} references strictly and resolves secretref:
// values (for example "secretref:env:OPENAI_API_KEY" or
// "secretref:file:jwt.key") through package secret. [Config.Validate]
// reports the first invalid setting as a wrapped sentinel error.
//
// The mapping helpers translate sections into the option structs of the
// packages they configure: [Config.CachePolicy], [Config.KeyerConfig],
// [Config.RecoveryConfig], [Config.GuardConfig], [Config.ObserveConfig] and
// [Config.JWTConfig].
package config
