// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package config loads, layers, and validates gatehouse configuration.
//
// Configuration resolves from three layers, lowest priority first:
// built-in defaults, a YAML config file, and command-line flags. Flag
// names mirror config paths, so --log.level overrides log.level.
package config

import (
	_ "embed"
	"time"

	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/internal/ratelimit"
)

// ExampleConfig is a fully commented configuration file with every knob
// at its built-in default. `gatehouse config init` writes it out.
//
//go:embed gatehouse.example.yaml
var ExampleConfig string

// Config is the complete gatehouse configuration.
type Config struct {
	Database DatabaseConfig `koanf:"database" json:"database,omitempty"`
	Log      LogConfig      `koanf:"log" json:"log,omitempty"`
	Session  SessionConfig  `koanf:"session" json:"session,omitempty"`
	Login    LoginConfig    `koanf:"login" json:"login,omitempty"`
	Password PasswordConfig `koanf:"password" json:"password,omitempty"`
	Redis    RedisConfig    `koanf:"redis" json:"redis,omitempty"`
	Metrics  MetricsConfig  `koanf:"metrics" json:"metrics,omitempty"`
}

// DatabaseConfig selects the PostgreSQL instance gatehouse connects to.
type DatabaseConfig struct {
	// URL is a pgx-compatible DSN. It may carry credentials, so it is
	// never logged or attached to errors.
	URL string `koanf:"url" json:"url"`
}

// LogConfig controls the structured logger.
type LogConfig struct {
	Format string `koanf:"format" json:"format,omitempty" jsonschema:"enum=json,enum=text"`
	Level  string `koanf:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error"`
}

// SessionConfig controls session lifetime.
type SessionConfig struct {
	// IdleTTL is how long a session survives without activity.
	IdleTTL time.Duration `koanf:"idle-ttl" json:"idle-ttl,omitempty" jsonschema:"oneof_type=string;integer"`

	// SweepInterval is how often expired sessions are deleted.
	SweepInterval time.Duration `koanf:"sweep-interval" json:"sweep-interval,omitempty" jsonschema:"oneof_type=string;integer"`
}

// LoginConfig bounds login attempts per source address and per account.
type LoginConfig struct {
	IPLimit    RateLimitConfig `koanf:"ip-limit" json:"ip-limit,omitempty"`
	EmailLimit RateLimitConfig `koanf:"email-limit" json:"email-limit,omitempty"`

	// Exempt lists glob patterns for identifiers that bypass rate
	// limiting, such as health-check source addresses.
	Exempt []string `koanf:"exempt" json:"exempt,omitempty"`
}

// RateLimitConfig is one sliding-window limit.
type RateLimitConfig struct {
	MaxRequests   int           `koanf:"max-requests" json:"max-requests,omitempty" jsonschema:"minimum=1"`
	Window        time.Duration `koanf:"window" json:"window,omitempty" jsonschema:"oneof_type=string;integer"`
	BlockDuration time.Duration `koanf:"block-duration" json:"block-duration,omitempty" jsonschema:"oneof_type=string;integer"`
}

// Limit converts to the rate limiter's config type.
func (r RateLimitConfig) Limit() ratelimit.Config {
	return ratelimit.Config{
		MaxRequests:   r.MaxRequests,
		Window:        r.Window,
		BlockDuration: r.BlockDuration,
	}
}

// PasswordConfig sets the password policy applied at registration and
// password change.
type PasswordConfig struct {
	MinLength    int  `koanf:"min-length" json:"min-length,omitempty" jsonschema:"minimum=1"`
	MaxLength    int  `koanf:"max-length" json:"max-length,omitempty" jsonschema:"minimum=1"`
	RequireUpper bool `koanf:"require-upper" json:"require-upper,omitempty"`
	RequireLower bool `koanf:"require-lower" json:"require-lower,omitempty"`
	RequireDigit bool `koanf:"require-digit" json:"require-digit,omitempty"`
}

// Policy converts to the auth package's password policy.
func (p PasswordConfig) Policy() auth.PasswordPolicy {
	return auth.PasswordPolicy{
		MinLength:    p.MinLength,
		MaxLength:    p.MaxLength,
		RequireUpper: p.RequireUpper,
		RequireLower: p.RequireLower,
		RequireDigit: p.RequireDigit,
	}
}

// RedisConfig enables the Redis-backed rate limiter. When disabled,
// limits are tracked in process memory.
type RedisConfig struct {
	Enabled  bool   `koanf:"enabled" json:"enabled,omitempty"`
	Addr     string `koanf:"addr" json:"addr,omitempty"`
	Password string `koanf:"password" json:"password,omitempty"`
	DB       int    `koanf:"db" json:"db,omitempty"`
}

// MetricsConfig controls the Prometheus metrics and health endpoints.
type MetricsConfig struct {
	Enabled bool   `koanf:"enabled" json:"enabled,omitempty"`
	Addr    string `koanf:"addr" json:"addr,omitempty"`
}

// Default returns the built-in defaults. Load starts from these before
// applying the config file and flags.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			URL: "postgres://localhost:5432/gatehouse?sslmode=disable",
		},
		Log: LogConfig{
			Format: "json",
			Level:  "info",
		},
		Session: SessionConfig{
			IdleTTL:       auth.DefaultSessionIdleTTL,
			SweepInterval: 5 * time.Minute,
		},
		Login: LoginConfig{
			IPLimit:    fromLimit(auth.DefaultIPLoginLimit),
			EmailLimit: fromLimit(auth.DefaultEmailLoginLimit),
		},
		Password: fromPolicy(auth.DefaultPasswordPolicy()),
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    "127.0.0.1:9090",
		},
	}
}

func fromLimit(c ratelimit.Config) RateLimitConfig {
	return RateLimitConfig{
		MaxRequests:   c.MaxRequests,
		Window:        c.Window,
		BlockDuration: c.BlockDuration,
	}
}

func fromPolicy(p auth.PasswordPolicy) PasswordConfig {
	return PasswordConfig{
		MinLength:    p.MinLength,
		MaxLength:    p.MaxLength,
		RequireUpper: p.RequireUpper,
		RequireLower: p.RequireLower,
		RequireDigit: p.RequireDigit,
	}
}

// Load resolves configuration from an optional YAML file and optional
// command-line flags layered over the defaults. Flags win over the
// file, the file wins over defaults. Flag defaults only apply when the
// key is absent from the file, so flags registered with Default()
// values never mask file settings.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.Code("CONFIG_READ_FAILED").
				With("path", path).
				Wrapf(err, "loading config file")
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.Code("CONFIG_FLAG_FAILED").
				Wrapf(err, "applying command-line flags")
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, oops.Code("CONFIG_PARSE_FAILED").
			With("path", path).
			Wrapf(err, "decoding configuration")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks semantic constraints the schema cannot express.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return oops.Code("CONFIG_INVALID").Errorf("database.url is required")
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return oops.Code("CONFIG_INVALID").
			Errorf("log.format must be json or text, got %q", c.Log.Format)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return oops.Code("CONFIG_INVALID").
			Errorf("log.level must be debug, info, warn, or error, got %q", c.Log.Level)
	}
	if c.Session.IdleTTL <= 0 {
		return oops.Code("CONFIG_INVALID").
			Errorf("session.idle-ttl must be positive, got %s", c.Session.IdleTTL)
	}
	if c.Session.SweepInterval <= 0 {
		return oops.Code("CONFIG_INVALID").
			Errorf("session.sweep-interval must be positive, got %s", c.Session.SweepInterval)
	}
	if err := c.Login.IPLimit.validate("login.ip-limit"); err != nil {
		return err
	}
	if err := c.Login.EmailLimit.validate("login.email-limit"); err != nil {
		return err
	}
	for _, pattern := range c.Login.Exempt {
		if _, err := glob.Compile(pattern); err != nil {
			return oops.Code("CONFIG_INVALID").
				With("pattern", pattern).
				Wrapf(err, "login.exempt pattern does not compile")
		}
	}
	if c.Password.MinLength < 1 {
		return oops.Code("CONFIG_INVALID").
			Errorf("password.min-length must be at least 1, got %d", c.Password.MinLength)
	}
	if c.Password.MaxLength < c.Password.MinLength {
		return oops.Code("CONFIG_INVALID").
			Errorf("password.max-length %d is below password.min-length %d",
				c.Password.MaxLength, c.Password.MinLength)
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("redis.addr is required when redis is enabled")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return oops.Code("CONFIG_INVALID").Errorf("metrics.addr is required when metrics are enabled")
	}
	return nil
}

func (r RateLimitConfig) validate(key string) error {
	if r.MaxRequests < 1 {
		return oops.Code("CONFIG_INVALID").
			Errorf("%s.max-requests must be at least 1, got %d", key, r.MaxRequests)
	}
	if r.Window <= 0 {
		return oops.Code("CONFIG_INVALID").
			Errorf("%s.window must be positive, got %s", key, r.Window)
	}
	if r.BlockDuration < 0 {
		return oops.Code("CONFIG_INVALID").
			Errorf("%s.block-duration cannot be negative, got %s", key, r.BlockDuration)
	}
	return nil
}
