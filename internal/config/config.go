// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"net"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/hosseinMsh/QRCodeRenderSystem/internal/options"
)

// Config holds the application configuration
type Config struct {
	// Server configuration
	Host            string        `env:"HOST" envDefault:"0.0.0.0"`
	Port            string        `env:"PORT" envDefault:"3001"`
	BodyLimitMB     int           `env:"BODY_LIMIT_MB" envDefault:"20"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"15s"`

	// Rendering
	FormatProfile string `env:"FORMAT_PROFILE" envDefault:"full"`
	JPEGQuality   int    `env:"JPEG_QUALITY" envDefault:"92"`

	// Embedded image fetching
	ImageFetchTimeout      time.Duration `env:"IMAGE_FETCH_TIMEOUT" envDefault:"10s"`
	ImageConnectTimeout    time.Duration `env:"IMAGE_CONNECT_TIMEOUT" envDefault:"3s"`
	ImageMaxBytes          int64         `env:"IMAGE_MAX_BYTES" envDefault:"10485760"`
	ImageBlockPrivateHosts bool          `env:"IMAGE_BLOCK_PRIVATE_HOSTS" envDefault:"false"`
	ImageAllowedHosts      []string      `env:"IMAGE_ALLOWED_HOSTS" envSeparator:","`
	ImageMaxTrackedHosts   int           `env:"IMAGE_MAX_TRACKED_HOSTS" envDefault:"1024"`

	// Circuit breaker configuration for image hosts
	CBFailureThreshold int           `env:"CB_FAILURE_THRESHOLD" envDefault:"5"`
	CBSuccessThreshold int           `env:"CB_SUCCESS_THRESHOLD" envDefault:"1"`
	CBRecoveryTimeout  time.Duration `env:"CB_RECOVERY_TIMEOUT" envDefault:"30s"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogJSON  bool   `env:"LOG_JSON" envDefault:"false"`
}

// Load loads configuration from environment variables with defaults
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if _, err := cfg.Profile(); err != nil {
		return nil, err
	}
	if cfg.BodyLimitMB <= 0 {
		return nil, fmt.Errorf("BODY_LIMIT_MB must be positive, got %d", cfg.BodyLimitMB)
	}
	return cfg, nil
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// BodyLimit returns the request body limit in bytes
func (c *Config) BodyLimit() int {
	return c.BodyLimitMB * 1024 * 1024
}

// Profile returns the parsed format profile
func (c *Config) Profile() (options.Profile, error) {
	return options.ParseProfile(c.FormatProfile)
}
