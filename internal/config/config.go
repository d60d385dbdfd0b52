// Package config reads simk settings from the environment. Command-line
// flags override these values in the CLI.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/caarlos0/env/v11"

	"github.com/roach88/simkernel/internal/world"
)

// Config holds environment-driven settings.
type Config struct {
	// DBPath is the SQLite event log. Empty disables recording.
	DBPath string `env:"SIMK_DB_PATH"`

	LogLevel slog.Level `env:"SIMK_LOG_LEVEL" envDefault:"warn"`

	MaxPublishDepth int `env:"SIMK_MAX_PUBLISH_DEPTH" envDefault:"64"`

	// ViewAddr is the listen address for the websocket viewer stream.
	// Empty disables it.
	ViewAddr string `env:"SIMK_VIEW_ADDR"`

	Ticks int `env:"SIMK_TICKS" envDefault:"1"`

	// TablesDir holds YAML/JSON lookup tables. Defaults to the content
	// directory's "tables" subdirectory.
	TablesDir string `env:"SIMK_TABLES_DIR"`
}

// Load parses the environment and validates the result.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	var errs []error
	if c.MaxPublishDepth <= 0 {
		errs = append(errs, fmt.Errorf("SIMK_MAX_PUBLISH_DEPTH must be positive, got %d", c.MaxPublishDepth))
	}
	if c.Ticks < 0 {
		errs = append(errs, fmt.Errorf("SIMK_TICKS must not be negative, got %d", c.Ticks))
	}
	return errors.Join(errs...)
}

// Logger builds a text logger at the configured level.
func (c Config) Logger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: c.LogLevel}))
}

// WorldOptions returns the world options these settings imply.
func (c Config) WorldOptions() []world.Option {
	return []world.Option{world.WithMaxPublishDepth(c.MaxPublishDepth)}
}
