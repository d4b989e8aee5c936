// Package postgres is the relational (Amazon RDS) store for raw ticks and
// hourly buckets, backed by a pgx connection pool.
package postgres

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"btcpulse/internal/model"
)

// Config is the PostgreSQL store configuration.
type Config struct {
	// URL, when set, is used as the connection string and the discrete
	// fields below are ignored.
	URL string `env:"URL"`

	Host     string `env:"HOST" envDefault:"localhost"`
	Port     int    `env:"PORT" envDefault:"5432"`
	Database string `env:"DATABASE" envDefault:"bitcoin"`
	Username string `env:"USERNAME" envDefault:"postgres"`
	Password string `env:"PASSWORD" envDefault:""`
	SSLMode  string `env:"SSL_MODE" envDefault:"prefer"`

	// Pool sizing. The source system used a 1..10 pool.
	MaxConns        int32         `env:"MAX_CONNS" envDefault:"10"`
	MinConns        int32         `env:"MIN_CONNS" envDefault:"1"`
	MaxConnLifetime time.Duration `env:"MAX_CONN_LIFETIME" envDefault:"1h"`
	MaxConnIdleTime time.Duration `env:"MAX_CONN_IDLE_TIME" envDefault:"10m"`
	ConnectTimeout  time.Duration `env:"CONNECT_TIMEOUT" envDefault:"5s"`

	ApplicationName string `env:"APPLICATION_NAME" envDefault:"btcpulse"`
}

// Store hands out sessions backed by pooled connections.
type Store struct {
	pool *pgxpool.Pool

	// OnCommit, if set, observes the duration of every write transaction.
	OnCommit func(d time.Duration)
}

var _ model.SessionProvider = (*Store)(nil)

// New connects, pings and migrates the schema.
func New(ctx context.Context, cfg Config) (*Store, error) {
	pgxConfig, err := pgxpool.ParseConfig(connString(cfg))
	if err != nil {
		return nil, fmt.Errorf("postgres parse config: %w", err)
	}

	if cfg.MaxConns > 0 {
		pgxConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pgxConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		pgxConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		pgxConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		pgxConfig.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	// date_trunc('hour', ...) must bucket in UTC.
	pgxConfig.ConnConfig.RuntimeParams["timezone"] = "UTC"
	if cfg.ApplicationName != "" {
		pgxConfig.ConnConfig.RuntimeParams["application_name"] = cfg.ApplicationName
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxConfig)
	if err != nil {
		return nil, fmt.Errorf("postgres create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	if err := migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres schema: %w", err)
	}

	slog.Info("postgres store opened",
		"host", pgxConfig.ConnConfig.Host,
		"database", pgxConfig.ConnConfig.Database,
		"max_conns", pgxConfig.MaxConns,
	)
	return &Store{pool: pool}, nil
}

// connString builds a postgres:// URL from cfg.
func connString(cfg Config) string {
	if cfg.URL != "" {
		return cfg.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// schema keeps the source system's table and column names. NUMERIC columns are
// unconstrained so decimals round-trip exactly.
const schema = `
	CREATE TABLE IF NOT EXISTS raw_bitcoin_prices (
		id             SERIAL PRIMARY KEY,
		timestamp      TIMESTAMPTZ NOT NULL UNIQUE,
		price_usd      NUMERIC     NOT NULL,
		volume_usd     NUMERIC     NOT NULL,
		market_cap_usd NUMERIC,
		created_at     TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS hourly_bitcoin_prices (
		timestamp       TIMESTAMPTZ PRIMARY KEY,
		open_price_usd  NUMERIC NOT NULL,
		high_price_usd  NUMERIC NOT NULL,
		low_price_usd   NUMERIC NOT NULL,
		close_price_usd NUMERIC NOT NULL,
		volume_usd      NUMERIC NOT NULL,
		created_at      TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
	);

	ALTER TABLE hourly_bitcoin_prices ADD COLUMN IF NOT EXISTS tick_count INTEGER NOT NULL DEFAULT 0;
	ALTER TABLE hourly_bitcoin_prices ADD COLUMN IF NOT EXISTS updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP;

	CREATE INDEX IF NOT EXISTS idx_hourly_bitcoin_prices_close ON hourly_bitcoin_prices (close_price_usd);
`

func migrate(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schema)
	return err
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Stats returns pool statistics for health reporting.
func (s *Store) Stats() *pgxpool.Stat { return s.pool.Stat() }

// Close closes the pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Session acquires a pooled connection. The caller must Release it.
func (s *Store) Session(ctx context.Context) (model.Session, error) {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("postgres acquire: %w", err)
	}
	return &session{conn: conn, onCommit: s.OnCommit}, nil
}

// truncate empties both tables. Used by tests.
func (s *Store) truncate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `TRUNCATE raw_bitcoin_prices, hourly_bitcoin_prices`)
	return err
}

// session is an acquired connection.
type session struct {
	conn     *pgxpool.Conn
	onCommit func(time.Duration)
}

var _ model.Session = (*session)(nil)

// Release returns the connection to the pool. Calling it twice is harmless.
func (s *session) Release() {
	if s.conn != nil {
		s.conn.Release()
		s.conn = nil
	}
}

// inTx runs fn in a transaction, rolling back on error.
func (s *session) inTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	start := time.Now()
	err := pgx.BeginFunc(ctx, s.conn, fn)
	if err == nil && s.onCommit != nil {
		s.onCommit(time.Since(start))
	}
	return err
}
