package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"btcpulse/internal/model"
)

const insertTickSQL = `
	INSERT INTO raw_bitcoin_prices (timestamp, price_usd, volume_usd, market_cap_usd)
	VALUES ($1, $2::numeric, $3::numeric, $4::numeric)
	ON CONFLICT (timestamp) DO NOTHING`

const upsertBucketSQL = `
	INSERT INTO hourly_bitcoin_prices
		(timestamp, open_price_usd, high_price_usd, low_price_usd, close_price_usd, volume_usd, tick_count, updated_at)
	VALUES ($1, $2::numeric, $3::numeric, $4::numeric, $5::numeric, $6::numeric, $7, CURRENT_TIMESTAMP)
	ON CONFLICT (timestamp) DO UPDATE SET
		open_price_usd = EXCLUDED.open_price_usd,
		high_price_usd = EXCLUDED.high_price_usd,
		low_price_usd = EXCLUDED.low_price_usd,
		close_price_usd = EXCLUDED.close_price_usd,
		volume_usd = EXCLUDED.volume_usd,
		tick_count = EXCLUDED.tick_count,
		updated_at = CURRENT_TIMESTAMP`

func tickArgs(t model.Tick) []any {
	return []any{t.TS.UTC(), t.Price.String(), t.Volume.String(), t.MarketCap.String()}
}

// InsertTick stores a tick, ignoring a duplicate timestamp.
func (s *session) InsertTick(ctx context.Context, t model.Tick) (bool, error) {
	tag, err := s.conn.Exec(ctx, insertTickSQL, tickArgs(t)...)
	if err != nil {
		return false, fmt.Errorf("postgres insert tick: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ReplaceTicks deletes ticks in [from, to) and inserts the given ticks that
// fall inside the range, in one transaction.
func (s *session) ReplaceTicks(ctx context.Context, from, to time.Time, ticks []model.Tick) (int, error) {
	inserted := 0
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`DELETE FROM raw_bitcoin_prices WHERE timestamp >= $1 AND timestamp < $2`,
			from.UTC(), to.UTC(),
		); err != nil {
			return err
		}

		batch := &pgx.Batch{}
		for _, t := range ticks {
			if t.TS.Before(from) || !t.TS.Before(to) {
				continue
			}
			batch.Queue(insertTickSQL, tickArgs(t)...)
		}
		if batch.Len() == 0 {
			return nil
		}
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			tag, err := br.Exec()
			if err != nil {
				br.Close()
				return err
			}
			inserted += int(tag.RowsAffected())
		}
		return br.Close()
	})
	if err != nil {
		return 0, fmt.Errorf("postgres replace ticks: %w", err)
	}
	return inserted, nil
}

// UpsertBuckets creates or overwrites buckets by hour in a single transaction.
func (s *session) UpsertBuckets(ctx context.Context, buckets []model.HourBucket) error {
	if len(buckets) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, b := range buckets {
		batch.Queue(upsertBucketSQL, b.Hour.UTC(),
			b.Open.String(), b.High.String(), b.Low.String(), b.Close.String(), b.Volume.String(), b.Ticks)
	}
	err := s.inTx(ctx, func(tx pgx.Tx) error {
		return tx.SendBatch(ctx, batch).Close()
	})
	if err != nil {
		return fmt.Errorf("postgres upsert buckets: %w", err)
	}
	return nil
}

// DeleteEmptyBuckets removes buckets in [from, to) whose hour has no ticks left.
func (s *session) DeleteEmptyBuckets(ctx context.Context, from, to time.Time) (int, error) {
	tag, err := s.conn.Exec(ctx, `
		DELETE FROM hourly_bitcoin_prices h
		WHERE h.timestamp >= $1 AND h.timestamp < $2
		  AND NOT EXISTS (
			SELECT 1 FROM raw_bitcoin_prices r
			WHERE r.timestamp >= h.timestamp AND r.timestamp < h.timestamp + interval '1 hour'
		  )
	`, from.UTC(), to.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres delete empty buckets: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// TicksBetween returns ticks with from <= ts < to ordered by ts ascending.
func (s *session) TicksBetween(ctx context.Context, from, to time.Time) ([]model.Tick, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT timestamp, price_usd::text, volume_usd::text, COALESCE(market_cap_usd, 0)::text
		FROM raw_bitcoin_prices
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY timestamp ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres query ticks: %w", err)
	}
	ticks, err := pgx.CollectRows(rows, scanTick)
	if err != nil {
		return nil, fmt.Errorf("postgres read ticks: %w", err)
	}
	return ticks, nil
}

// LatestTick returns the most recent tick or model.ErrNoData.
func (s *session) LatestTick(ctx context.Context) (model.Tick, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT timestamp, price_usd::text, volume_usd::text, COALESCE(market_cap_usd, 0)::text
		FROM raw_bitcoin_prices
		ORDER BY timestamp DESC
		LIMIT 1
	`)
	if err != nil {
		return model.Tick{}, fmt.Errorf("postgres query latest tick: %w", err)
	}
	t, err := pgx.CollectExactlyOneRow(rows, scanTick)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Tick{}, model.ErrNoData
	}
	if err != nil {
		return model.Tick{}, fmt.Errorf("postgres read latest tick: %w", err)
	}
	return t, nil
}

// MissingHours returns the hours in [from, to) that have ticks and no bucket.
func (s *session) MissingHours(ctx context.Context, from, to time.Time) ([]time.Time, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT DISTINCT date_trunc('hour', r.timestamp) AS hour
		FROM raw_bitcoin_prices r
		LEFT JOIN hourly_bitcoin_prices h ON h.timestamp = date_trunc('hour', r.timestamp)
		WHERE r.timestamp >= $1 AND r.timestamp < $2 AND h.timestamp IS NULL
		ORDER BY hour ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres query missing hours: %w", err)
	}
	hours, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (time.Time, error) {
		var h time.Time
		err := row.Scan(&h)
		return h.UTC(), err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres read missing hours: %w", err)
	}
	return hours, nil
}

// BucketsBetween returns buckets with from <= hour < to ordered by hour.
func (s *session) BucketsBetween(ctx context.Context, from, to time.Time) ([]model.HourBucket, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT timestamp, open_price_usd::text, high_price_usd::text, low_price_usd::text,
		       close_price_usd::text, volume_usd::text, tick_count
		FROM hourly_bitcoin_prices
		WHERE timestamp >= $1 AND timestamp < $2
		ORDER BY timestamp ASC
	`, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres query buckets: %w", err)
	}
	buckets, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.HourBucket, error) {
		var (
			b                               model.HourBucket
			open, high, low, closeP, volume string
		)
		if err := row.Scan(&b.Hour, &open, &high, &low, &closeP, &volume, &b.Ticks); err != nil {
			return b, err
		}
		b.Hour = b.Hour.UTC()
		return b, parseDecimals(b.Hour,
			field{"open", open, &b.Open},
			field{"high", high, &b.High},
			field{"low", low, &b.Low},
			field{"close", closeP, &b.Close},
			field{"volume", volume, &b.Volume},
		)
	})
	if err != nil {
		return nil, fmt.Errorf("postgres read buckets: %w", err)
	}
	return buckets, nil
}

func scanTick(row pgx.CollectableRow) (model.Tick, error) {
	var (
		t                        model.Tick
		price, volume, marketCap string
	)
	if err := row.Scan(&t.TS, &price, &volume, &marketCap); err != nil {
		return t, err
	}
	t.TS = t.TS.UTC()
	return t, parseDecimals(t.TS,
		field{"price", price, &t.Price},
		field{"volume", volume, &t.Volume},
		field{"market_cap", marketCap, &t.MarketCap},
	)
}

type field struct {
	name string
	text string
	dst  *decimal.Decimal
}

func parseDecimals(ts time.Time, fields ...field) error {
	for _, f := range fields {
		d, err := decimal.NewFromString(f.text)
		if err != nil {
			return fmt.Errorf("row %s: %s %q is not a decimal: %w", ts.Format(time.RFC3339), f.name, f.text, err)
		}
		*f.dst = d
	}
	return nil
}
