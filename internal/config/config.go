// Package config provides application configuration management.
// Configuration is loaded from environment variables following 12-factor principles.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all application configuration.
// All fields are populated from environment variables.
type Config struct {
	// Application settings
	AppEnv  string `env:"APP_ENV" envDefault:"development"`
	AppPort int    `env:"APP_PORT" envDefault:"8080"`

	// Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// Cache (Redis)
	RedisURL string `env:"REDIS_URL,required"`

	// Membership API (Patreon)
	PatreonAccessToken string `env:"PATREON_ACCESS_TOKEN,required"`
	// Optional; resolved from the API on first use when empty.
	PatreonCampaignID string        `env:"PATREON_CAMPAIGN_ID"`
	VerifyTimeout     time.Duration `env:"VERIFY_TIMEOUT" envDefault:"25s"`

	// File catalog
	CatalogPath string `env:"CATALOG_PATH" envDefault:"catalog.yaml"`

	// Trial claims. Trials are disabled when the URL is empty.
	TrialFileURL  string `env:"TRIAL_FILE_URL"`
	TrialFileName string `env:"TRIAL_FILE_NAME" envDefault:"Trial Pack"`

	// Chat gateway the courier delivers through
	CourierGatewayURL    string        `env:"COURIER_GATEWAY_URL,required"`
	CourierSigningSecret string        `env:"COURIER_SIGNING_SECRET,required"`
	DeliveryBatchDelay   time.Duration `env:"DELIVERY_BATCH_DELAY" envDefault:"2s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Server timeouts
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Rate limiting
	RateLimitAPIEnabled bool `env:"RATE_LIMIT_API_ENABLED" envDefault:"true"`
	RateLimitAPIRPM     int  `env:"RATE_LIMIT_API_RPM" envDefault:"120"`
	RateLimitAPIBurst   int  `env:"RATE_LIMIT_API_BURST" envDefault:"30"`
	VerifyRateRPM       int  `env:"VERIFY_RATE_RPM" envDefault:"3"`
	VerifyRateBurst     int  `env:"VERIFY_RATE_BURST" envDefault:"3"`

	// Request body size limit in bytes (default 1MB)
	MaxRequestBodySize int64 `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// TrialEnabled reports whether trial claims are configured.
func (c *Config) TrialEnabled() bool {
	return c.TrialFileURL != ""
}

// Load parses environment variables and returns a Config.
// Returns an error if required variables are missing.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}
