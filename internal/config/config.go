// Package config loads process configuration from environment variables
// using caarlos0/env and godotenv (priority: real env vars > .env file
// > struct defaults).
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

// Config holds all process configuration.
//
// Tags:
//
//	env: Environment variable name
//	envDefault: Default value if not set
type Config struct {
	HTTPAddr    string `env:"TASKD_HTTP_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"TASKD_DATABASE_URL" envDefault:"postgres://localhost:5432/taskflow?sslmode=disable"`

	QueueCapacity     int           `env:"TASKD_QUEUE_CAPACITY" envDefault:"20"`
	HeartbeatInterval time.Duration `env:"TASKD_HEARTBEAT_INTERVAL" envDefault:"1s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	Environment string `env:"ENVIRONMENT" envDefault:"development"`
}

// Load reads configuration from a .env file (if present) and the
// environment, applies defaults, and validates the result.
func Load(logger *zerolog.Logger) (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if logger != nil {
			logger.Info().Msg("no .env file found, using environment variables only")
		}
	} else if logger != nil {
		logger.Info().Msg("loaded configuration from .env file")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validate: %w", err)
	}

	return cfg, nil
}

// Validate checks configuration for obviously invalid values.
func (c *Config) Validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("TASKD_HTTP_ADDR is required")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("TASKD_DATABASE_URL is required")
	}
	if c.QueueCapacity < 1 {
		return fmt.Errorf("TASKD_QUEUE_CAPACITY must be > 0, got %d", c.QueueCapacity)
	}
	if c.HeartbeatInterval < 0 {
		return fmt.Errorf("TASKD_HEARTBEAT_INTERVAL must be >= 0, got %s", c.HeartbeatInterval)
	}

	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", c.LogLevel)
	}

	validLogFormats := map[string]bool{"json": true, "text": true, "pretty": true}
	if !validLogFormats[c.LogFormat] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, text, pretty (got: %s)", c.LogFormat)
	}

	return nil
}

// LogConfig logs the loaded configuration via structured logging.
func (c *Config) LogConfig(logger zerolog.Logger) {
	logger.Info().
		Str("environment", c.Environment).
		Str("http_addr", c.HTTPAddr).
		Int("queue_capacity", c.QueueCapacity).
		Dur("heartbeat_interval", c.HeartbeatInterval).
		Str("log_level", c.LogLevel).
		Str("log_format", c.LogFormat).
		Msg("configuration loaded")
}
