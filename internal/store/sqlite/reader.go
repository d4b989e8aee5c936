package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"btcpulse/internal/model"
)

const hourMillis = int64(time.Hour / time.Millisecond)

// TicksBetween returns ticks with from <= ts < to ordered by ts ascending.
func (s *session) TicksBetween(ctx context.Context, from, to time.Time) ([]model.Tick, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT ts, price, volume, market_cap
		FROM raw_bitcoin_prices
		WHERE ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []model.Tick
	for rows.Next() {
		t, err := scanTick(rows)
		if err != nil {
			return nil, err
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// LatestTick returns the most recent tick or model.ErrNoData.
func (s *session) LatestTick(ctx context.Context) (model.Tick, error) {
	row := s.conn.QueryRowContext(ctx, `
		SELECT ts, price, volume, market_cap
		FROM raw_bitcoin_prices
		ORDER BY ts DESC
		LIMIT 1
	`)
	t, err := scanTick(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Tick{}, model.ErrNoData
	}
	return t, err
}

// MissingHours returns the hours in [from, to) that have ticks and no bucket.
func (s *session) MissingHours(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT DISTINCT r.ts - (r.ts % ?) AS h
		FROM raw_bitcoin_prices r
		LEFT JOIN hourly_bitcoin_prices b ON b.hour = r.ts - (r.ts % ?)
		WHERE r.ts >= ? AND r.ts < ? AND b.hour IS NULL
		ORDER BY h ASC
	`, hourMillis, hourMillis, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite query missing hours: %w", err)
	}
	defer rows.Close()

	var hours []time.Time
	for rows.Next() {
		var ms int64
		if err := rows.Scan(&ms); err != nil {
			return nil, fmt.Errorf("sqlite scan missing hour: %w", err)
		}
		hours = append(hours, time.UnixMilli(ms).UTC())
	}
	return hours, rows.Err()
}

// BucketsBetween returns buckets with from <= hour < to ordered by hour.
func (s *session) BucketsBetween(ctx context.Context, from, to time.Time) ([]model.HourBucket, error) {
	rows, err := s.conn.QueryContext(ctx, `
		SELECT hour, open, high, low, close, volume, ticks
		FROM hourly_bitcoin_prices
		WHERE hour >= ? AND hour < ?
		ORDER BY hour ASC
	`, from.UnixMilli(), to.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("sqlite query buckets: %w", err)
	}
	defer rows.Close()

	var buckets []model.HourBucket
	for rows.Next() {
		var (
			ms                              int64
			open, high, low, closeP, volume string
			b                               model.HourBucket
		)
		if err := rows.Scan(&ms, &open, &high, &low, &closeP, &volume, &b.Ticks); err != nil {
			return nil, fmt.Errorf("sqlite scan bucket: %w", err)
		}
		b.Hour = time.UnixMilli(ms).UTC()
		if err := parseDecimals(b.Hour,
			field{"open", open, &b.Open},
			field{"high", high, &b.High},
			field{"low", low, &b.Low},
			field{"close", closeP, &b.Close},
			field{"volume", volume, &b.Volume},
		); err != nil {
			return nil, err
		}
		buckets = append(buckets, b)
	}
	return buckets, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanTick(sc scanner) (model.Tick, error) {
	var (
		ms                       int64
		price, volume, marketCap string
		t                        model.Tick
	)
	if err := sc.Scan(&ms, &price, &volume, &marketCap); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return t, err
		}
		return t, fmt.Errorf("sqlite scan tick: %w", err)
	}
	t.TS = time.UnixMilli(ms).UTC()
	err := parseDecimals(t.TS,
		field{"price", price, &t.Price},
		field{"volume", volume, &t.Volume},
		field{"market_cap", marketCap, &t.MarketCap},
	)
	return t, err
}

type field struct {
	name string
	text string
	dst  *decimal.Decimal
}

// parseDecimals parses stored decimal text. Unparseable text is an error,
// never coerced to zero.
func parseDecimals(ts time.Time, fields ...field) error {
	for _, f := range fields {
		d, err := decimal.NewFromString(f.text)
		if err != nil {
			return fmt.Errorf("sqlite: row %s: %s %q is not a decimal: %w", ts.Format(time.RFC3339), f.name, f.text, err)
		}
		*f.dst = d
	}
	return nil
}
