// Package config loads relay configuration from the environment, with
// optional .env file support for local development.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting of the relay server.
type Config struct {
	// Address is the listen address of the HTTP/WebSocket server.
	Address string `env:"RELAY_ADDRESS" envDefault:":8080"`

	// UpstreamURL is the realtime speech API WebSocket endpoint.
	UpstreamURL string `env:"OPENAI_REALTIME_URL" envDefault:"wss://api.openai.com/v1/realtime"`

	// Model is appended to the upstream URL as the model query parameter.
	Model string `env:"OPENAI_REALTIME_MODEL" envDefault:"gpt-4o-realtime-preview-2024-10-01"`

	// APIKey authenticates the upstream connection. Required.
	APIKey string `env:"OPENAI_API_KEY"`

	// AllowedOrigins restricts WebSocket upgrades by Origin header.
	// Empty means any origin is accepted.
	AllowedOrigins []string `env:"RELAY_ALLOWED_ORIGINS" envSeparator:","`

	// HandshakeTimeout bounds the upstream WebSocket dial.
	HandshakeTimeout time.Duration `env:"RELAY_HANDSHAKE_TIMEOUT" envDefault:"10s"`

	// IngestSampleRate is the sample rate of raw PCM binary frames sent by
	// clients on the binary ingest path. Frames are resampled to the
	// upstream rate when the two differ.
	IngestSampleRate int `env:"RELAY_INGEST_SAMPLE_RATE" envDefault:"24000"`
}

// ErrMissingAPIKey is returned by Load when OPENAI_API_KEY is unset.
var ErrMissingAPIKey = errors.New("OPENAI_API_KEY is required")

// Load reads a .env file if present, then parses the environment into a
// Config and validates it.
func Load() (*Config, error) {
	// A missing .env file is not an error; system environment wins.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks settings that have no usable zero value.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return ErrMissingAPIKey
	}
	if c.IngestSampleRate <= 0 {
		return fmt.Errorf("invalid ingest sample rate %d", c.IngestSampleRate)
	}
	if c.HandshakeTimeout <= 0 {
		return fmt.Errorf("invalid handshake timeout %s", c.HandshakeTimeout)
	}
	return nil
}
