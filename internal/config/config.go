// Package config reads server settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string `env:"HTTP_ADDR"    envDefault:":8080"`
	DBDriver    string `env:"DB_DRIVER"    envDefault:"sqlite"`
	DatabaseURL string `env:"DATABASE_URL" envDefault:"data/roulette.sqlite3"`
	LogLevel    string `env:"LOG_LEVEL"    envDefault:"info"`

	IdleTimeout       time.Duration `env:"IDLE_TIMEOUT"        envDefault:"300s"`
	MinPlayers        int           `env:"MIN_PLAYERS"         envDefault:"2"`
	Chambers          int           `env:"CHAMBERS"            envDefault:"6"`
	Bullets           int           `env:"BULLETS"             envDefault:"1"`
	DefaultEntryFee   int64         `env:"DEFAULT_ENTRY_FEE"   envDefault:"100"`
	DefaultMaxPlayers int           `env:"DEFAULT_MAX_PLAYERS" envDefault:"6"`
	RefundOnCancel    bool          `env:"REFUND_ON_CANCEL"    envDefault:"true"`

	PayoutAttempts   int           `env:"PAYOUT_ATTEMPTS"    envDefault:"5"`
	PayoutBackoffMin time.Duration `env:"PAYOUT_BACKOFF_MIN" envDefault:"50ms"`
	PayoutBackoffMax time.Duration `env:"PAYOUT_BACKOFF_MAX" envDefault:"2s"`
}

// Load reads the given .env files (".env" when none are named), then the
// process environment. Missing files are skipped; variables already set in
// the environment win.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.DBDriver {
	case "postgres", "sqlite", "memory":
	default:
		return fmt.Errorf("DB_DRIVER %q: want postgres, sqlite or memory", c.DBDriver)
	}
	if c.DBDriver != "memory" && c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("IDLE_TIMEOUT %s must be positive", c.IdleTimeout)
	}
	if c.MinPlayers < 1 {
		return fmt.Errorf("MIN_PLAYERS %d must be at least 1", c.MinPlayers)
	}
	if c.Bullets < 1 || c.Bullets > c.Chambers {
		return fmt.Errorf("BULLETS %d must be in [1, CHAMBERS=%d]", c.Bullets, c.Chambers)
	}
	if c.DefaultEntryFee <= 0 || c.DefaultMaxPlayers <= 0 {
		return errors.New("DEFAULT_ENTRY_FEE and DEFAULT_MAX_PLAYERS must be positive")
	}
	if c.PayoutAttempts < 1 {
		return fmt.Errorf("PAYOUT_ATTEMPTS %d must be at least 1", c.PayoutAttempts)
	}
	if c.PayoutBackoffMin <= 0 || c.PayoutBackoffMax < c.PayoutBackoffMin {
		return errors.New("PAYOUT_BACKOFF_MIN must be positive and not above PAYOUT_BACKOFF_MAX")
	}
	return nil
}
