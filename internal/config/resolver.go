package config

import (
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
)

// Resolver reads individual options at call time. Bound environment variables
// are looked up on every call, so operators can change thresholds without a
// restart when the process environment is updated. It never fails: missing
// values yield the supplied default and unparsable ones are logged first.
type Resolver struct {
	v      *viper.Viper
	logger zerolog.Logger
}

// NewResolver wraps a viper instance.
func NewResolver(v *viper.Viper, logger zerolog.Logger) *Resolver {
	if v == nil {
		v = viper.New()
	}
	return &Resolver{v: v, logger: logger.With().Str("component", "config_resolver").Logger()}
}

// Resolver returns a request-time resolver over this configuration's sources.
func (c *Config) Resolver(logger zerolog.Logger) *Resolver {
	return NewResolver(c.Source(), logger)
}

// Float resolves a float64 option.
func (r *Resolver) Float(key string, def float64) float64 {
	return resolve(r, key, def)
}

// String resolves a string option.
func (r *Resolver) String(key, def string) string {
	value := resolve(r, key, def)
	if value == "" {
		return def
	}
	return value
}

// Bool resolves a boolean option.
func (r *Resolver) Bool(key string, def bool) bool {
	return resolve(r, key, def)
}

// Duration resolves a duration option.
func (r *Resolver) Duration(key string, def time.Duration) time.Duration {
	return resolve(r, key, def)
}

func resolve[T any](r *Resolver, key string, def T) T {
	raw := r.v.Get(key)
	if raw == nil {
		return def
	}
	if s, ok := raw.(string); ok && s == "" {
		return def
	}
	value, err := coerce(raw, def)
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Interface("default", def).Msg("unparsable option, using default")
		return def
	}
	typed, ok := value.(T)
	if !ok {
		return def
	}
	return typed
}
