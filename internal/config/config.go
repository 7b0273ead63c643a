// Package config loads simulator settings from the environment, optionally
// seeded from .env files.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/Rhymond/go-money"
	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"local"`
	Port   string `env:"PORT" envDefault:"8080"`

	DatabaseURL string `env:"DATABASE_URL"`
	RedisURL    string `env:"REDIS_URL"`

	AlphaVantageKey string        `env:"ALPHA_VANTAGE_API_KEY"`
	AlphaVantageURL string        `env:"ALPHA_VANTAGE_URL" envDefault:"https://www.alphavantage.co/query"`
	QuoteTimeout    time.Duration `env:"QUOTE_TIMEOUT" envDefault:"10s"`
	QuoteCacheTTL   time.Duration `env:"QUOTE_CACHE_TTL" envDefault:"60s"`
	// QuoteCacheMaxSymbols caps the in-process price cache; 0 means unbounded.
	QuoteCacheMaxSymbols int `env:"QUOTE_CACHE_MAX_SYMBOLS" envDefault:"0"`

	InitialBalance decimal.Decimal `env:"INITIAL_BALANCE" envDefault:"10000"`
	Currency       string          `env:"CURRENCY" envDefault:"USD"`
	HistoryLimit   int             `env:"HISTORY_LIMIT" envDefault:"10"`

	StoreCacheTTL time.Duration `env:"STORE_CACHE_TTL" envDefault:"30s"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaTopic   string   `env:"KAFKA_TOPIC" envDefault:"trades"`
}

// Load reads the given .env files (default ".env"; missing files are
// skipped) and overlays the process environment, which always wins.
func Load(dotenvFiles ...string) (Config, error) {
	if len(dotenvFiles) == 0 {
		dotenvFiles = []string{".env"}
	}

	environ := make(map[string]string)
	for _, f := range dotenvFiles {
		vars, err := godotenv.Read(f)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", f, err)
		}
		for k, v := range vars {
			if _, seen := environ[k]; !seen {
				environ[k] = v
			}
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			environ[k] = v
		}
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges that struct tags cannot express.
func (c Config) Validate() error {
	switch {
	case !c.InitialBalance.IsPositive():
		return fmt.Errorf("config: INITIAL_BALANCE must be positive, got %s", c.InitialBalance)
	case c.QuoteCacheTTL <= 0:
		return fmt.Errorf("config: QUOTE_CACHE_TTL must be positive, got %s", c.QuoteCacheTTL)
	case c.QuoteTimeout <= 0:
		return fmt.Errorf("config: QUOTE_TIMEOUT must be positive, got %s", c.QuoteTimeout)
	case c.QuoteCacheMaxSymbols < 0:
		return fmt.Errorf("config: QUOTE_CACHE_MAX_SYMBOLS must not be negative, got %d", c.QuoteCacheMaxSymbols)
	case c.HistoryLimit <= 0:
		return fmt.Errorf("config: HISTORY_LIMIT must be positive, got %d", c.HistoryLimit)
	case money.GetCurrency(c.Currency) == nil:
		return fmt.Errorf("config: unknown CURRENCY %q", c.Currency)
	}
	return nil
}

// IsLocal reports whether the process runs in a developer environment.
func (c Config) IsLocal() bool { return c.AppEnv == "local" }
