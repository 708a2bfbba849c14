// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Tandem Contributors

package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"

	tanderr "github.com/tandem-dev/tandem/pkg/errors"
)

// Config is the top-level Tandem configuration.
type Config struct {
	Server  ServerConfig `mapstructure:"server"`
	Sync    SyncConfig   `mapstructure:"sync"`
	Serve   ServeConfig  `mapstructure:"serve"`
	DataDir string       `mapstructure:"data_dir"`
	Verbose bool         `mapstructure:"verbose"`
}

// ServerConfig points the client at the loop backend.
type ServerConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// SyncConfig holds the reconciliation tuning windows. The defaults are the
// empirically chosen values the protocol was designed around; they are
// configuration rather than constants because no principled derivation for
// them exists.
type SyncConfig struct {
	// FastPoll is the refresh interval while a loop is running.
	FastPoll time.Duration `mapstructure:"fast_poll"`
	// SlowPoll is the refresh interval while a loop is paused, to detect
	// server-side resumption.
	SlowPoll time.Duration `mapstructure:"slow_poll"`
	// Debounce is how long a continuous-input edit waits for further
	// keystrokes before committing. Discrete inputs commit immediately.
	Debounce time.Duration `mapstructure:"debounce"`
	// CommitGrace is how long a committed edit stays guarded after the
	// server acknowledges it, covering a pre-commit read still in flight.
	CommitGrace time.Duration `mapstructure:"commit_grace"`
	// StaleGuard is the window after which a pending edit no longer blocks
	// refreshes, so a lost acknowledgment cannot lock an entity forever.
	StaleGuard time.Duration `mapstructure:"stale_guard"`
	// Backstop is the absolute polling cutoff for a single arm; after it,
	// polling state is force-cleared and a timeout is reported.
	Backstop time.Duration `mapstructure:"backstop"`
}

// ServeConfig configures the bundled reference server.
type ServeConfig struct {
	Listen       string        `mapstructure:"listen"`
	CORSOrigins  []string      `mapstructure:"cors_origins"`
	TurnInterval time.Duration `mapstructure:"turn_interval"`
}

// SetDefaults registers all default values on the given viper.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.url", "http://127.0.0.1:8787")
	v.SetDefault("server.timeout", 5*time.Second)

	v.SetDefault("sync.fast_poll", 500*time.Millisecond)
	v.SetDefault("sync.slow_poll", 2*time.Second)
	v.SetDefault("sync.debounce", 500*time.Millisecond)
	v.SetDefault("sync.commit_grace", 500*time.Millisecond)
	v.SetDefault("sync.stale_guard", 2*time.Second)
	v.SetDefault("sync.backstop", 5*time.Minute)

	v.SetDefault("serve.listen", "127.0.0.1:8787")
	v.SetDefault("serve.turn_interval", time.Second)
}

// SetupEnv binds the TANDEM_ environment prefix.
func SetupEnv(v *viper.Viper) {
	v.SetEnvPrefix("TANDEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
}

// Load reads configuration from the given path (or defaults) with
// environment variable overrides.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)
	SetupEnv(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, tanderr.Errorf(tanderr.CodeConfigLoadReadFailure, "reading config %s: %w", path, err)
		}
	}

	return FromViper(v)
}

// FromViper unmarshals and validates a populated viper instance.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, tanderr.Errorf(tanderr.CodeConfigValidateInvalidValue, "unmarshalling config: %w", err)
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, tanderr.Errorf(tanderr.CodeConfigValidateInvalidValue, "validating config: %w", errors.Join(errs...))
	}

	return &cfg, nil
}

// Validate checks the configuration for logical errors. It returns all
// validation errors found rather than stopping at the first one.
func (c *Config) Validate() []error {
	var errs []error

	if c.Server.URL == "" {
		errs = append(errs, tanderr.New(tanderr.CodeConfigValidateInvalidValue, "config: server.url must not be empty"))
	}
	if c.Server.Timeout <= 0 {
		errs = append(errs, tanderr.New(tanderr.CodeConfigValidateInvalidValue, "config: server.timeout must be positive"))
	}

	errs = append(errs, c.Sync.validate()...)

	if c.Serve.Listen == "" {
		errs = append(errs, tanderr.New(tanderr.CodeConfigValidateInvalidValue, "config: serve.listen must not be empty"))
	}
	if c.Serve.TurnInterval <= 0 {
		errs = append(errs, tanderr.New(tanderr.CodeConfigValidateInvalidValue, "config: serve.turn_interval must be positive"))
	}

	return errs
}

func (s SyncConfig) validate() []error {
	var errs []error

	positive := []struct {
		name string
		d    time.Duration
	}{
		{"sync.fast_poll", s.FastPoll},
		{"sync.slow_poll", s.SlowPoll},
		{"sync.debounce", s.Debounce},
		{"sync.commit_grace", s.CommitGrace},
		{"sync.stale_guard", s.StaleGuard},
		{"sync.backstop", s.Backstop},
	}
	for _, p := range positive {
		if p.d <= 0 {
			errs = append(errs, tanderr.Errorf(tanderr.CodeConfigValidateInvalidValue,
				"config: %s must be positive, got %s", p.name, p.d))
		}
	}

	if s.FastPoll > s.SlowPoll {
		errs = append(errs, tanderr.Errorf(tanderr.CodeConfigValidateInvalidValue,
			"config: sync.fast_poll (%s) must not exceed sync.slow_poll (%s)", s.FastPoll, s.SlowPoll))
	}
	// A guard that goes stale before its own debounce fires can never
	// protect a commit.
	if s.StaleGuard <= s.Debounce {
		errs = append(errs, tanderr.Errorf(tanderr.CodeConfigValidateInvalidValue,
			"config: sync.stale_guard (%s) must exceed sync.debounce (%s)", s.StaleGuard, s.Debounce))
	}

	return errs
}
