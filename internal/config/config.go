// Package config handles application configuration loading from environment
// variables. It provides a centralized Config struct used across the application.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds all configuration for the backend client handle, loaded from
// the environment. An empty backend URL or API key is accepted: the handle is
// still constructed and requests fail at call time instead of at startup.
type Config struct {
	// Hosted backend settings
	BackendURL string `env:"PLUME_BACKEND_URL"`
	APIKey     string `env:"PLUME_API_KEY"`

	// Realtime change channel (Redis protocol)
	RealtimeAddr     string `env:"PLUME_REALTIME_ADDR" envDefault:"localhost:6379"`
	RealtimePassword string `env:"PLUME_REALTIME_PASSWORD"`

	// HTTPTimeoutSeconds bounds every request against the backend's REST surface.
	HTTPTimeoutSeconds int `env:"PLUME_HTTP_TIMEOUT" envDefault:"15"`

	Env string `env:"PLUME_ENV" envDefault:"development"` // "development", "production"
}

// Load parses environment variables and returns a Config struct.
// Missing backend credentials are logged as a warning, never an error.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.BackendURL == "" || cfg.APIKey == "" {
		slog.Warn("backend URL or API key not configured — requests will fail",
			"url_set", cfg.BackendURL != "",
			"key_set", cfg.APIKey != "",
		)
	}

	if cfg.HTTPTimeoutSeconds <= 0 {
		cfg.HTTPTimeoutSeconds = 15
	}

	return cfg, nil
}

// HTTPTimeout returns the request timeout as a duration.
func (c *Config) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// IsDev returns true if the application is running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "development"
}
