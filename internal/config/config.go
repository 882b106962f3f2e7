// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package config loads sessiongate settings from an optional YAML file and
// command-line flags.
package config

import (
	"errors"
	"io/fs"
	"os"
	"slices"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"
)

// Account store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

// Duplicate-account policies as spelled in configuration.
const (
	PolicyReject   = "reject"
	PolicyGhost    = "ghost"
	PolicyAllowAll = "allow-all"
)

// Config holds every setting for the serve command.
type Config struct {
	ListenAddr     string        `koanf:"listen-addr"`
	MetricsAddr    string        `koanf:"metrics-addr"`
	ControlSocket  string        `koanf:"control-socket"`
	GRPCHealthAddr string        `koanf:"grpc-health-addr"`
	LogFormat      string        `koanf:"log-format"`
	LogLevel       string        `koanf:"log-level"`
	Policy         string        `koanf:"duplicate-policy"`
	LoginTimeout   time.Duration `koanf:"login-timeout"`
	TickInterval   time.Duration `koanf:"tick-interval"`
	CloseOnTimeout bool          `koanf:"close-on-timeout"`
	Workers        int           `koanf:"workers"`
	RateBurst      int           `koanf:"rate-burst"`
	RatePerSecond  float64       `koanf:"rate-per-second"`
	AccountStore   string        `koanf:"account-store"`
	DatabaseURL    string        `koanf:"database-url"`
	RedisAddr      string        `koanf:"redis-addr"`
	RedisPrefix    string        `koanf:"redis-prefix"`
	SeedFile       string        `koanf:"seed-file"`
	AutoMigrate    bool          `koanf:"auto-migrate"`
}

// Defaults returns the configuration used when nothing overrides it.
func Defaults() Config {
	return Config{
		ListenAddr:     "127.0.0.1:4201",
		MetricsAddr:    "127.0.0.1:9102",
		GRPCHealthAddr: "",
		LogFormat:      "json",
		LogLevel:       "info",
		Policy:         PolicyReject,
		LoginTimeout:   30 * time.Second,
		TickInterval:   time.Second,
		CloseOnTimeout: true,
		Workers:        64,
		RateBurst:      20,
		RatePerSecond:  5,
		AccountStore:   StoreMemory,
		RedisPrefix:    "sessiongate",
		AutoMigrate:    true,
	}
}

// RegisterFlags adds one flag per configuration key to fs, defaulted from
// Defaults.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Defaults()
	fs.String("listen-addr", d.ListenAddr, "TCP listen address for clients")
	fs.String("metrics-addr", d.MetricsAddr, "metrics/health HTTP address (empty = disabled)")
	fs.String("control-socket", d.ControlSocket, "control socket path (default: XDG_RUNTIME_DIR/sessiongate/control.sock)")
	fs.String("grpc-health-addr", d.GRPCHealthAddr, "gRPC health service address (empty = disabled)")
	fs.String("log-format", d.LogFormat, "log format (json or text)")
	fs.String("log-level", d.LogLevel, "log level (debug, info, warn, error)")
	fs.String("duplicate-policy", d.Policy, "duplicate account policy (reject, ghost, allow-all)")
	fs.Duration("login-timeout", d.LoginTimeout, "time a connection may stay unauthenticated (0 = never)")
	fs.Duration("tick-interval", d.TickInterval, "pending-login sweep interval")
	fs.Bool("close-on-timeout", d.CloseOnTimeout, "close connections whose login timed out")
	fs.Int("workers", d.Workers, "message handler pool size")
	fs.Int("rate-burst", d.RateBurst, "messages a connection may send back to back")
	fs.Float64("rate-per-second", d.RatePerSecond, "sustained messages per second per connection (0 = unlimited)")
	fs.String("account-store", d.AccountStore, "account store (memory, postgres, redis)")
	fs.String("database-url", d.DatabaseURL, "PostgreSQL URL (account-store=postgres)")
	fs.String("redis-addr", d.RedisAddr, "Redis address (account-store=redis)")
	fs.String("redis-prefix", d.RedisPrefix, "Redis key prefix")
	fs.String("seed-file", d.SeedFile, "YAML file with accounts to create at startup")
	fs.Bool("auto-migrate", d.AutoMigrate, "apply database migrations at startup")
}

// Load reads path (when non-empty) and then flags. Explicitly set flags win
// over the file; flag defaults only fill keys the file leaves unset. A
// missing file is an error only when required is true.
func Load(path string, required bool, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			if !errors.Is(err, fs.ErrNotExist) || required {
				return nil, oops.In("config").Code("CONFIG_READ_FAILED").With("path", path).Wrap(err)
			}
		} else if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, oops.In("config").Code("CONFIG_INVALID").With("path", path).Wrap(err)
		}
	}

	if flags != nil {
		if err := k.Load(posflag.Provider(flags, ".", k), nil); err != nil {
			return nil, oops.In("config").Code("CONFIG_INVALID").Wrapf(err, "load flags")
		}
	}

	cfg := Defaults()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.In("config").Code("CONFIG_INVALID").Wrapf(err, "decode configuration")
	}
	return &cfg, nil
}

func invalid(key string, value any, format string, args ...any) error {
	return oops.In("config").Code("CONFIG_INVALID").With("key", key).With("value", value).Errorf(format, args...)
}

// Validate reports the first setting that cannot be used.
func (c *Config) Validate() error {
	if c.ListenAddr == "" {
		return invalid("listen-addr", c.ListenAddr, "listen-addr is required")
	}
	if !slices.Contains([]string{"json", "text"}, c.LogFormat) {
		return invalid("log-format", c.LogFormat, "log-format must be 'json' or 'text', got %q", c.LogFormat)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.LogLevel) {
		return invalid("log-level", c.LogLevel, "unknown log-level %q", c.LogLevel)
	}
	if !slices.Contains([]string{PolicyReject, PolicyGhost, PolicyAllowAll}, c.Policy) {
		return invalid("duplicate-policy", c.Policy, "unknown duplicate-policy %q", c.Policy)
	}
	if c.LoginTimeout < 0 {
		return invalid("login-timeout", c.LoginTimeout, "login-timeout must not be negative")
	}
	if c.LoginTimeout > 0 && c.TickInterval <= 0 {
		return invalid("tick-interval", c.TickInterval, "tick-interval must be positive when login-timeout is set")
	}
	if c.Workers < 1 {
		return invalid("workers", c.Workers, "workers must be at least 1")
	}
	if c.RatePerSecond < 0 {
		return invalid("rate-per-second", c.RatePerSecond, "rate-per-second must not be negative")
	}
	if c.RatePerSecond > 0 && c.RateBurst < 1 {
		return invalid("rate-burst", c.RateBurst, "rate-burst must be at least 1 when rate-per-second is set")
	}
	switch c.AccountStore {
	case StoreMemory:
	case StorePostgres:
		if c.DatabaseURL == "" {
			return invalid("database-url", c.DatabaseURL, "database-url is required for account-store=postgres")
		}
	case StoreRedis:
		if c.RedisAddr == "" {
			return invalid("redis-addr", c.RedisAddr, "redis-addr is required for account-store=redis")
		}
	default:
		return invalid("account-store", c.AccountStore, "unknown account-store %q", c.AccountStore)
	}
	return nil
}
