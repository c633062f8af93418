// Package config loads rulecore settings from the environment.
//
// Command line flags are layered on top by the cli package: a flag that is
// set explicitly wins over the variable.
package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
)

// Config holds the settings shared by all commands.
type Config struct {
	// DBPath is the trace database used by run and trace. Empty means
	// runs are not persisted.
	DBPath string `env:"RULECORE_DB"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `env:"RULECORE_LOG_LEVEL" envDefault:"info"`

	// Format is the output format, text or json.
	Format string `env:"RULECORE_FORMAT" envDefault:"text"`

	// Parallel bounds how many scenarios the test command runs at once.
	Parallel int `env:"RULECORE_PARALLEL" envDefault:"4"`

	// MaxCycles overrides the engine's settle bound when positive.
	MaxCycles int `env:"RULECORE_MAX_CYCLES"`
}

// Load parses the environment into a Config and checks it.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return err
	}
	switch c.Format {
	case "text", "json":
	default:
		return fmt.Errorf("invalid format %q: must be text or json", c.Format)
	}
	if c.Parallel < 1 {
		return fmt.Errorf("parallel must be at least 1, got %d", c.Parallel)
	}
	if c.MaxCycles < 0 {
		return fmt.Errorf("max cycles must be non-negative, got %d", c.MaxCycles)
	}
	return nil
}

// ParseLevel maps a level name to a slog.Level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("invalid log level %q", name)
}
