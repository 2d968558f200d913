package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/teemow/gmailauth/internal/google"
)

// DefaultTimeout is how long the automated flow waits for the browser redirect.
const DefaultTimeout = 2 * time.Minute

// Config holds the authorization settings.
type Config struct {
	// ClientID is the OAuth client id from the Google Cloud console.
	ClientID string `env:"GMAIL_OAUTH_CLIENT_ID"`

	// ClientSecret is the matching OAuth client secret.
	ClientSecret string `env:"GMAIL_OAUTH_CLIENT_SECRET"`

	// Timeout bounds the automated flow. The manual flow waits indefinitely.
	Timeout time.Duration `env:"GMAIL_OAUTH_TIMEOUT" envDefault:"2m"`

	// ListenHost is the loopback host the callback listener binds to.
	ListenHost string `env:"GMAIL_OAUTH_LISTEN_HOST" envDefault:"localhost"`

	// NoBrowser disables the automatic browser launch.
	NoBrowser bool `env:"GMAIL_OAUTH_NO_BROWSER"`
}

// Load parses the configuration from environment variables.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}

// Credentials returns the OAuth client credentials.
func (c Config) Credentials() google.Credentials {
	return google.Credentials{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
	}
}

// Validate checks that the configuration can drive an authorization.
func (c Config) Validate() error {
	if err := c.Credentials().Validate(); err != nil {
		return fmt.Errorf("%w (set GMAIL_OAUTH_CLIENT_ID/GMAIL_OAUTH_CLIENT_SECRET or pass --client-id/--client-secret)", err)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be greater than 0, got %s", c.Timeout)
	}
	if c.ListenHost == "" {
		return errors.New("listen host is required")
	}
	return nil
}
