// Package aggregate rolls raw Bitcoin price ticks up into hourly OHLCV buckets.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"btcpulse/internal/logger"
	"btcpulse/internal/model"
)

// DefaultBatchSize is the number of buckets upserted per transaction.
const DefaultBatchSize = 100

// ErrInvalidRange is returned for a non-positive lookback or an empty rebuild range.
var ErrInvalidRange = errors.New("aggregate: invalid range")

// Options configures an Aggregator. Zero values select the defaults.
type Options struct {
	BatchSize int
	Now       func() time.Time
	Logger    *slog.Logger

	// Metrics hooks (optional)
	OnBatch func(buckets int, d time.Duration)
	OnRun   func(r Result, err error)
}

// Result describes one aggregation run.
type Result struct {
	RunID    string        `json:"run_id"`
	From     time.Time     `json:"from"`
	To       time.Time     `json:"to"`
	Missing  int           `json:"missing"` // hours selected for (re)computation
	Buckets  int           `json:"buckets"` // buckets committed
	Batches  int           `json:"batches"` // batches committed
	Deleted  int           `json:"deleted"` // buckets dropped because their hour lost all ticks
	Duration time.Duration `json:"duration"`
}

// Aggregator computes hourly buckets from stored ticks. It holds no open
// connection between runs: every run borrows a session and releases it.
type Aggregator struct {
	provider model.SessionProvider
	batch    int
	now      func() time.Time
	log      *slog.Logger

	onBatch func(int, time.Duration)
	onRun   func(Result, error)
}

// New creates an Aggregator over the given session provider.
func New(provider model.SessionProvider, opts Options) *Aggregator {
	a := &Aggregator{
		provider: provider,
		batch:    opts.BatchSize,
		now:      opts.Now,
		log:      opts.Logger,
		onBatch:  opts.OnBatch,
		onRun:    opts.OnRun,
	}
	if a.batch <= 0 {
		a.batch = DefaultBatchSize
	}
	if a.now == nil {
		a.now = time.Now
	}
	if a.log == nil {
		a.log = slog.Default()
	}
	return a
}

// Run aggregates every hour in [now - lookbackDays*24h, now) that has ticks
// and no bucket yet. Hours already aggregated are left alone, so a run that
// fails part way resumes where it stopped.
func (a *Aggregator) Run(ctx context.Context, lookbackDays int) (Result, error) {
	if lookbackDays < 1 {
		return Result{}, fmt.Errorf("%w: lookback %d days, must be >= 1", ErrInvalidRange, lookbackDays)
	}
	to := a.now().UTC()
	from := to.Add(-time.Duration(lookbackDays) * 24 * time.Hour)

	return a.run(ctx, "aggregate", from, to, func(ctx context.Context, sess model.Session, _ *Result) ([]model.HourBucket, error) {
		hours, err := sess.MissingHours(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("aggregate: missing hours: %w", err)
		}
		if len(hours) == 0 {
			return nil, nil
		}
		// Whole hours, so a boundary hour sees all of its ticks.
		ticks, err := sess.TicksBetween(ctx, hours[0], hours[len(hours)-1].Add(time.Hour))
		if err != nil {
			return nil, fmt.Errorf("aggregate: read ticks: %w", err)
		}
		return buildBuckets(hours, GroupByHour(ticks)), nil
	})
}

// Rebuild recomputes and overwrites the bucket of every hour that has ticks
// in [from, to), whether or not it was aggregated before. Buckets in the range
// whose hour no longer has ticks are deleted.
func (a *Aggregator) Rebuild(ctx context.Context, from, to time.Time) (Result, error) {
	from, to = from.UTC().Truncate(time.Hour), ceilHour(to)
	if !from.Before(to) {
		return Result{}, fmt.Errorf("%w: rebuild [%s, %s)", ErrInvalidRange, from.Format(time.RFC3339), to.Format(time.RFC3339))
	}

	return a.run(ctx, "rebuild", from, to, func(ctx context.Context, sess model.Session, res *Result) ([]model.HourBucket, error) {
		n, err := sess.DeleteEmptyBuckets(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("aggregate: delete empty buckets: %w", err)
		}
		res.Deleted = n
		ticks, err := sess.TicksBetween(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("aggregate: read ticks: %w", err)
		}
		groups := GroupByHour(ticks)
		return buildBuckets(sortedHours(groups), groups), nil
	})
}

type planFunc func(ctx context.Context, sess model.Session, res *Result) ([]model.HourBucket, error)

func (a *Aggregator) run(ctx context.Context, op string, from, to time.Time, plan planFunc) (res Result, err error) {
	start := time.Now()
	res = Result{RunID: uuid.NewString(), From: from, To: to}
	ctx = logger.WithTraceID(ctx, res.RunID)
	log := a.log.With(slog.String("op", op))

	defer func() {
		res.Duration = time.Since(start)
		if a.onRun != nil {
			a.onRun(res, err)
		}
	}()

	sess, err := a.provider.Session(ctx)
	if err != nil {
		return res, fmt.Errorf("aggregate: open session: %w", err)
	}
	defer sess.Release()

	buckets, err := plan(ctx, sess, &res)
	if err != nil {
		log.Error("aggregation failed", append(logger.LogWithTrace(ctx), "error", err)...)
		return res, err
	}
	res.Missing = len(buckets)
	if len(buckets) == 0 {
		log.Debug("nothing to aggregate", append(logger.LogWithTrace(ctx),
			"from", from, "to", to, "deleted", res.Deleted)...)
		return res, nil
	}

	for i := 0; i < len(buckets); i += a.batch {
		batch := buckets[i:min(i+a.batch, len(buckets))]
		bstart := time.Now()
		if err := sess.UpsertBuckets(ctx, batch); err != nil {
			first, last := batch[0].Hour, batch[len(batch)-1].Hour
			log.Error("bucket batch failed", append(logger.LogWithTrace(ctx),
				"batch", res.Batches+1,
				"first_hour", first,
				"last_hour", last,
				"committed", res.Buckets,
				"error", err,
			)...)
			return res, fmt.Errorf("aggregate: upsert hours %s..%s: %w",
				first.Format(time.RFC3339), last.Format(time.RFC3339), err)
		}
		if a.onBatch != nil {
			a.onBatch(len(batch), time.Since(bstart))
		}
		res.Buckets += len(batch)
		res.Batches++
	}

	log.Info("hourly buckets upserted", append(logger.LogWithTrace(ctx),
		"buckets", res.Buckets,
		"batches", res.Batches,
		"deleted", res.Deleted,
		"from", from,
		"to", to,
	)...)
	return res, nil
}
