// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"btcpulse/internal/coingecko"
	"btcpulse/internal/indicator"
	"btcpulse/internal/logger"
	"btcpulse/internal/notification"
	"btcpulse/internal/store/postgres"
	"btcpulse/internal/store/redis"
	"btcpulse/internal/store/sqlite"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	App         AppConfig           `envPrefix:"APP_"`
	Store       StoreConfig         `envPrefix:"STORE_"`
	SQLite      sqlite.Config       `envPrefix:"SQLITE_"`
	Postgres    postgres.Config     `envPrefix:"PG_"`
	Redis       RedisConfig         `envPrefix:"REDIS_"`
	CoinGecko   coingecko.Config    `envPrefix:"COINGECKO_"`
	Aggregation AggregationConfig   `envPrefix:"AGG_"`
	Indicators  IndicatorConfig     `envPrefix:"INDICATORS_"`
	Notify      notification.Config `envPrefix:"NOTIFY_"`
}

// AppConfig holds process-level settings.
type AppConfig struct {
	Name        string `env:"NAME" envDefault:"btcpulse"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
}

// StoreConfig selects the tick/bucket store.
type StoreConfig struct {
	Driver string `env:"DRIVER" envDefault:"sqlite"`
}

// RedisConfig enables the dashboard cache.
type RedisConfig struct {
	Enabled bool `env:"ENABLED" envDefault:"false"`
	redis.Config
}

// AggregationConfig drives the hourly aggregation loop.
type AggregationConfig struct {
	LookbackDays int           `env:"LOOKBACK_DAYS" envDefault:"7"`
	BatchSize    int           `env:"BATCH_SIZE" envDefault:"100"`
	Interval     time.Duration `env:"INTERVAL" envDefault:"5m"`
	HistoryDays  int           `env:"HISTORY_DAYS" envDefault:"0"` // refresh on startup when > 0
}

// IndicatorConfig lists the indicators computed for the dashboard,
// e.g. "MA:24,RSI:14,BB:20:2,MACD:12:26:9".
type IndicatorConfig struct {
	Specs string `env:"SPECS" envDefault:"MA:24,RSI:14,BB:20:2,MACD:12:26:9"`
}

// Load reads an optional .env file and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints env tags cannot express.
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverSQLite:
		if c.SQLite.DBPath == "" {
			return fmt.Errorf("config: SQLITE_PATH is empty")
		}
	case DriverPostgres:
	default:
		return fmt.Errorf("config: STORE_DRIVER %q, want %s or %s", c.Store.Driver, DriverSQLite, DriverPostgres)
	}
	if c.Aggregation.LookbackDays < 1 {
		return fmt.Errorf("config: AGG_LOOKBACK_DAYS %d, must be >= 1", c.Aggregation.LookbackDays)
	}
	if c.Aggregation.BatchSize < 1 {
		return fmt.Errorf("config: AGG_BATCH_SIZE %d, must be >= 1", c.Aggregation.BatchSize)
	}
	if c.Aggregation.Interval <= 0 {
		return fmt.Errorf("config: AGG_INTERVAL must be positive")
	}
	if c.CoinGecko.PollInterval <= 0 {
		return fmt.Errorf("config: COINGECKO_POLL_INTERVAL must be positive")
	}
	if _, err := c.LogLevel(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if _, err := c.Specs(); err != nil {
		return fmt.Errorf("config: INDICATORS_SPECS: %w", err)
	}
	return nil
}

// Production reports whether the service runs in production mode.
func (c *Config) Production() bool {
	return c.App.Environment == "production"
}

// LogLevel parses App.LogLevel.
func (c *Config) LogLevel() (slog.Level, error) {
	return logger.ParseLevel(c.App.LogLevel)
}

// Specs parses the configured indicator list.
func (c *Config) Specs() ([]indicator.Spec, error) {
	return indicator.ParseSpecs(c.Indicators.Specs)
}
