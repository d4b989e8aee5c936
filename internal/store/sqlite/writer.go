// Package sqlite is the local, single-file store for raw ticks and hourly
// buckets. Timestamps are stored as Unix milliseconds and decimals as text so
// prices round-trip without float loss.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"btcpulse/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string `env:"PATH" envDefault:"data/btcpulse.db"`
}

// Store hands out sessions backed by a single SQLite connection. Sessions are
// serialised: a second Session call waits until the first is released.
type Store struct {
	db *sql.DB

	// OnCommit, if set, observes the duration of every write transaction.
	OnCommit func(d time.Duration)
}

var _ model.SessionProvider = (*Store)(nil)

// New opens the database in WAL mode and creates the schema.
func New(cfg Config) (*Store, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	slog.Info("sqlite store opened", "path", cfg.DBPath)
	return &Store{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS raw_bitcoin_prices (
			ts         INTEGER PRIMARY KEY,
			price      TEXT    NOT NULL,
			volume     TEXT    NOT NULL,
			market_cap TEXT    NOT NULL DEFAULT '0'
		);

		CREATE TABLE IF NOT EXISTS hourly_bitcoin_prices (
			hour       INTEGER PRIMARY KEY,
			open       TEXT    NOT NULL,
			high       TEXT    NOT NULL,
			low        TEXT    NOT NULL,
			close      TEXT    NOT NULL,
			volume     TEXT    NOT NULL,
			ticks      INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	return err
}

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Session borrows the connection. The caller must Release it.
func (s *Store) Session(ctx context.Context) (model.Session, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite conn: %w", err)
	}
	return &session{conn: conn, onCommit: s.OnCommit}, nil
}

// session is a borrowed connection.
type session struct {
	conn     *sql.Conn
	onCommit func(time.Duration)
}

var _ model.Session = (*session)(nil)

// Release returns the connection to the pool. Calling it twice is harmless.
func (s *session) Release() {
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
}

// inTx runs fn in a transaction, rolling back on error.
func (s *session) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	start := time.Now()
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if s.onCommit != nil {
		s.onCommit(time.Since(start))
	}
	return nil
}

// InsertTick stores a tick, ignoring a duplicate timestamp.
func (s *session) InsertTick(ctx context.Context, t model.Tick) (bool, error) {
	res, err := s.conn.ExecContext(ctx, `
		INSERT OR IGNORE INTO raw_bitcoin_prices (ts, price, volume, market_cap)
		VALUES (?, ?, ?, ?)
	`, t.TS.UnixMilli(), t.Price.String(), t.Volume.String(), t.MarketCap.String())
	if err != nil {
		return false, fmt.Errorf("sqlite insert tick: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite insert tick: %w", err)
	}
	return n == 1, nil
}

// ReplaceTicks deletes ticks in [from, to) and inserts the given ticks that
// fall inside the range, in one transaction.
func (s *session) ReplaceTicks(ctx context.Context, from, to time.Time, ticks []model.Tick) (int, error) {
	inserted := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM raw_bitcoin_prices WHERE ts >= ? AND ts < ?`,
			from.UnixMilli(), to.UnixMilli(),
		); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR IGNORE INTO raw_bitcoin_prices (ts, price, volume, market_cap)
			VALUES (?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, t := range ticks {
			if t.TS.Before(from) || !t.TS.Before(to) {
				continue
			}
			res, err := stmt.ExecContext(ctx, t.TS.UnixMilli(), t.Price.String(), t.Volume.String(), t.MarketCap.String())
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 1 {
				inserted++
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sqlite replace ticks: %w", err)
	}
	return inserted, nil
}

// UpsertBuckets creates or overwrites buckets by hour in a single transaction.
func (s *session) UpsertBuckets(ctx context.Context, buckets []model.HourBucket) error {
	if len(buckets) == 0 {
		return nil
	}
	now := time.Now().UnixMilli()
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO hourly_bitcoin_prices (hour, open, high, low, close, volume, ticks, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (hour) DO UPDATE SET
				open = excluded.open,
				high = excluded.high,
				low = excluded.low,
				close = excluded.close,
				volume = excluded.volume,
				ticks = excluded.ticks,
				updated_at = excluded.updated_at
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, b := range buckets {
			_, err := stmt.ExecContext(ctx, b.Hour.UnixMilli(),
				b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume.String(),
				b.Ticks, now)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("sqlite upsert buckets: %w", err)
	}
	return nil
}

// DeleteEmptyBuckets removes buckets in [from, to) whose hour has no ticks left.
func (s *session) DeleteEmptyBuckets(ctx context.Context, from, to time.Time) (int, error) {
	res, err := s.conn.ExecContext(ctx, `
		DELETE FROM hourly_bitcoin_prices
		WHERE hour >= ? AND hour < ?
		  AND NOT EXISTS (
			SELECT 1 FROM raw_bitcoin_prices r
			WHERE r.ts >= hourly_bitcoin_prices.hour AND r.ts < hourly_bitcoin_prices.hour + ?
		  )
	`, from.UnixMilli(), to.UnixMilli(), hourMillis)
	if err != nil {
		return 0, fmt.Errorf("sqlite delete empty buckets: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite delete empty buckets: %w", err)
	}
	return int(n), nil
}
