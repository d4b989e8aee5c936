package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btcpulse/internal/indicator"
)

func TestLoad_Defaults(t *testing.T) {

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "btcpulse", cfg.App.Name)
	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, "data/btcpulse.db", cfg.SQLite.DBPath)
	assert.Equal(t, "localhost", cfg.Postgres.Host)
	assert.Equal(t, 5432, cfg.Postgres.Port)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, 2*time.Hour, cfg.Redis.TTL)
	assert.Equal(t, time.Minute, cfg.CoinGecko.PollInterval)
	assert.Equal(t, 7, cfg.Aggregation.LookbackDays)
	assert.Equal(t, 100, cfg.Aggregation.BatchSize)
	assert.Equal(t, 15*time.Minute, cfg.Notify.Cooldown)
	assert.Empty(t, cfg.Notify.WebhookURL)
	assert.False(t, cfg.Production())

	specs, err := cfg.Specs()
	require.NoError(t, err)
	assert.Equal(t, indicator.DefaultSpecs(), specs)

	lvl, err := cfg.LogLevel()
	require.NoError(t, err)
	assert.Equal(t, slog.LevelInfo, lvl)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("APP_ENVIRONMENT", "production")
	t.Setenv("APP_LOG_LEVEL", "debug")
	t.Setenv("STORE_DRIVER", "postgres")
	t.Setenv("PG_HOST", "db.internal")
	t.Setenv("PG_MAX_CONNS", "20")
	t.Setenv("REDIS_ENABLED", "true")
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("COINGECKO_API_KEY", "demo-key")
	t.Setenv("AGG_LOOKBACK_DAYS", "30")
	t.Setenv("AGG_INTERVAL", "15m")
	t.Setenv("INDICATORS_SPECS", "MA:12,RSI:7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Production())
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "db.internal", cfg.Postgres.Host)
	assert.EqualValues(t, 20, cfg.Postgres.MaxConns)
	assert.True(t, cfg.Redis.Enabled)
	assert.Equal(t, "cache:6380", cfg.Redis.Addr)
	assert.Equal(t, "demo-key", cfg.CoinGecko.APIKey)
	assert.Equal(t, 30, cfg.Aggregation.LookbackDays)
	assert.Equal(t, 15*time.Minute, cfg.Aggregation.Interval)

	specs, err := cfg.Specs()
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, indicator.KindMA, specs[0].Kind)
	assert.Equal(t, indicator.KindRSI, specs[1].Kind)

	lvl, _ := cfg.LogLevel()
	assert.Equal(t, slog.LevelDebug, lvl)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name, key, value string
	}{
		{"unknown driver", "STORE_DRIVER", "mysql"},
		{"zero lookback", "AGG_LOOKBACK_DAYS", "0"},
		{"zero batch", "AGG_BATCH_SIZE", "0"},
		{"bad log level", "APP_LOG_LEVEL", "loud"},
		{"bad indicator", "INDICATORS_SPECS", "MA:0"},
		{"unparsable duration", "AGG_INTERVAL", "soon"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}
