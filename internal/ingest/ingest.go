// Package ingest moves CoinGecko observations into the tick store.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"btcpulse/internal/coingecko"
	"btcpulse/internal/logger"
	"btcpulse/internal/model"
)

// Source is the market data feed.
type Source interface {
	Current(ctx context.Context) (coingecko.Quote, error)
	History(ctx context.Context, days int) ([]model.Tick, error)
}

// Poller stores the current quote on a fixed interval.
type Poller struct {
	src      Source
	store    model.SessionProvider
	interval time.Duration
	log      *slog.Logger

	// OnPoll, if set, observes every poll.
	OnPoll func(q coingecko.Quote, inserted bool, err error)
}

// NewPoller creates a poller. A non-positive interval defaults to one minute.
func NewPoller(src Source, store model.SessionProvider, interval time.Duration, logger *slog.Logger) *Poller {
	if interval <= 0 {
		interval = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{src: src, store: store, interval: interval, log: logger}
}

// PollOnce fetches the current quote and stores it as a tick. inserted is
// false when a tick with the same timestamp already exists.
func (p *Poller) PollOnce(ctx context.Context) (q coingecko.Quote, inserted bool, err error) {
	if p.OnPoll != nil {
		defer func() { p.OnPoll(q, inserted, err) }()
	}

	q, err = p.src.Current(ctx)
	if err != nil {
		return q, false, fmt.Errorf("ingest: fetch current: %w", err)
	}

	sess, err := p.store.Session(ctx)
	if err != nil {
		return q, false, fmt.Errorf("ingest: open session: %w", err)
	}
	defer sess.Release()

	inserted, err = sess.InsertTick(ctx, q.Tick)
	if err != nil {
		return q, false, fmt.Errorf("ingest: store tick: %w", err)
	}
	return q, inserted, nil
}

// Run polls immediately and then every interval until ctx is cancelled.
// A failed poll is logged and retried on the next tick.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		pctx := logger.WithTraceID(ctx, logger.GenerateTraceID("poll", time.Now()))
		q, inserted, err := p.PollOnce(pctx)
		switch {
		case err != nil && ctx.Err() == nil:
			p.log.Warn("poll failed", append(logger.LogWithTrace(pctx), "error", err)...)
		case err == nil:
			p.log.Debug("polled bitcoin price", append(logger.LogWithTrace(pctx),
				"price", q.Tick.Price.String(),
				"ts", q.Tick.TS,
				"inserted", inserted,
			)...)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// HistoryResult describes a history refresh.
type HistoryResult struct {
	From     time.Time `json:"from"`
	To       time.Time `json:"to"`
	Days     int       `json:"days"`
	Fetched  int       `json:"fetched"`
	Inserted int       `json:"inserted"`
}

// RefreshHistory replaces the stored ticks of the last days (capped at
// coingecko.MaxHistoryDays) with freshly fetched history. Only ticks in
// [now - days, now) are deleted; older and newer ticks are kept.
func RefreshHistory(ctx context.Context, src Source, store model.SessionProvider, days int, now time.Time) (HistoryResult, error) {
	if days < 1 {
		return HistoryResult{}, fmt.Errorf("ingest: history days %d, must be >= 1", days)
	}
	days = min(days, coingecko.MaxHistoryDays)
	res := HistoryResult{
		To:   now.UTC(),
		From: now.UTC().Add(-time.Duration(days) * 24 * time.Hour),
		Days: days,
	}

	ticks, err := src.History(ctx, days)
	if err != nil {
		return res, fmt.Errorf("ingest: fetch history: %w", err)
	}
	res.Fetched = len(ticks)
	if len(ticks) == 0 {
		// Never wipe a range the feed returned nothing for.
		return res, nil
	}

	sess, err := store.Session(ctx)
	if err != nil {
		return res, fmt.Errorf("ingest: open session: %w", err)
	}
	defer sess.Release()

	res.Inserted, err = sess.ReplaceTicks(ctx, res.From, res.To, ticks)
	if err != nil {
		return res, fmt.Errorf("ingest: replace ticks: %w", err)
	}

	slog.Info("history refreshed",
		"days", res.Days,
		"fetched", res.Fetched,
		"inserted", res.Inserted,
		"from", res.From,
		"to", res.To,
	)
	return res, nil
}
