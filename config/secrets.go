package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Secrets are read from the environment, optionally seeded from .env files.
type Secrets struct {
	AlpacaKey     string `env:"ALPACA_API_KEY"`
	AlpacaSecret  string `env:"ALPACA_SECRET_KEY"`
	AlpacaBaseURL string `env:"ALPACA_BASE_URL"`
	RedisPassword string `env:"REDIS_PASSWORD"`
}

// LoadSecrets loads the given .env files (missing files are skipped; values
// already in the environment win) and parses Secrets.
func LoadSecrets(files ...string) (Secrets, error) {
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Secrets{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var s Secrets
	if err := env.Parse(&s); err != nil {
		return Secrets{}, fmt.Errorf("parse environment: %w", err)
	}
	return s, nil
}

// RequireAlpaca reports an error when the Alpaca credentials are missing.
func (s Secrets) RequireAlpaca() error {
	if s.AlpacaKey == "" || s.AlpacaSecret == "" {
		return fmt.Errorf("ALPACA_API_KEY and ALPACA_SECRET_KEY must be set")
	}
	return nil
}
