// Package dashboard computes the headline summary and chart data served to
// the dashboard from stored ticks and hourly buckets.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"btcpulse/internal/indicator"
	"btcpulse/internal/model"
)

// MaxDays bounds the lookback window of a single request.
const MaxDays = 365

// ErrInvalidDays is returned for a lookback outside [1, MaxDays].
var ErrInvalidDays = errors.New("dashboard: invalid days")

// SummaryWriter caches and publishes a computed summary.
type SummaryWriter interface {
	WriteSummary(ctx context.Context, s *model.Summary) error
}

// Service reads the store and applies the indicator engine. It holds no
// connection between calls.
type Service struct {
	store  model.SessionProvider
	engine *indicator.Engine
	now    func() time.Time
	log    *slog.Logger

	// Cache, if set, receives every published summary.
	Cache SummaryWriter
	// OnSummary, if set, observes every published summary.
	OnSummary func(s model.Summary)
}

// New creates a dashboard service.
func New(store model.SessionProvider, engine *indicator.Engine, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:  store,
		engine: engine,
		now:    time.Now,
		log:    logger,
	}
}

// Engine returns the indicator engine used for summaries.
func (s *Service) Engine() *indicator.Engine { return s.engine }

// Summary describes the last days of raw ticks: latest, lowest and highest
// price, latest and average volume, and the latest value of every configured
// indicator column. It returns model.ErrNoData when the window is empty.
func (s *Service) Summary(ctx context.Context, days int) (model.Summary, error) {
	series, err := s.load(ctx, days, false)
	if err != nil {
		return model.Summary{}, err
	}
	tbl, err := s.engine.Process(series)
	if err != nil {
		return model.Summary{}, fmt.Errorf("dashboard: indicators: %w", err)
	}
	return summarize(tbl, days), nil
}

// Chart returns the series of the last days, raw or hourly, with the given
// indicators appended. Empty specs select the service's configured engine.
func (s *Service) Chart(ctx context.Context, days int, hourly bool, specs []indicator.Spec) (*indicator.Table, error) {
	series, err := s.load(ctx, days, hourly)
	if err != nil {
		return nil, err
	}
	var tbl *indicator.Table
	if len(specs) == 0 {
		tbl, err = s.engine.Process(series)
	} else {
		tbl, err = indicator.Apply(series, specs...)
	}
	if err != nil {
		return nil, fmt.Errorf("dashboard: indicators: %w", err)
	}
	return tbl, nil
}

// Publish computes the summary and hands it to the cache and the OnSummary
// hook. A cache failure is logged and does not fail the call.
func (s *Service) Publish(ctx context.Context, days int) (model.Summary, error) {
	sum, err := s.Summary(ctx, days)
	if err != nil {
		return sum, err
	}
	if s.Cache != nil {
		if err := s.Cache.WriteSummary(ctx, &sum); err != nil {
			s.log.Warn("summary cache write failed", "error", err)
		}
	}
	if s.OnSummary != nil {
		s.OnSummary(sum)
	}
	return sum, nil
}

func (s *Service) load(ctx context.Context, days int, hourly bool) (indicator.Series, error) {
	if days < 1 || days > MaxDays {
		return nil, fmt.Errorf("%w: %d, want 1..%d", ErrInvalidDays, days, MaxDays)
	}
	to := s.now().UTC()
	from := to.Add(-time.Duration(days) * 24 * time.Hour)

	sess, err := s.store.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("dashboard: open session: %w", err)
	}
	defer sess.Release()

	var series indicator.Series
	if hourly {
		buckets, err := sess.BucketsBetween(ctx, from.Truncate(time.Hour), to)
		if err != nil {
			return nil, fmt.Errorf("dashboard: read buckets: %w", err)
		}
		series = indicator.SeriesFromBuckets(buckets)
	} else {
		ticks, err := sess.TicksBetween(ctx, from, to)
		if err != nil {
			return nil, fmt.Errorf("dashboard: read ticks: %w", err)
		}
		series = indicator.SeriesFromTicks(ticks)
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("dashboard: %d days before %s: %w", days, to.Format(time.RFC3339), model.ErrNoData)
	}
	return series, nil
}

// summarize expects a non-empty table.
func summarize(tbl *indicator.Table, days int) model.Summary {
	rows := tbl.Series
	first, last := rows[0], rows[len(rows)-1]
	sum := model.Summary{
		AsOf:         last.TS.UTC(),
		Days:         days,
		Points:       len(rows),
		LatestPrice:  last.Price,
		LowestPrice:  first.Price,
		HighestPrice: first.Price,
		LatestVolume: last.Volume,
		Indicators:   make(map[string]*float64),
	}
	var vol float64
	for _, p := range rows {
		sum.LowestPrice = min(sum.LowestPrice, p.Price)
		sum.HighestPrice = max(sum.HighestPrice, p.Price)
		vol += p.Volume
	}
	sum.AvgVolume = vol / float64(len(rows))
	if first.Price != 0 {
		sum.ChangePct = (last.Price - first.Price) / first.Price * 100
	}
	for _, name := range tbl.Names() {
		col, _ := tbl.Column(name)
		if v, ok := col.Last(); ok {
			sum.Indicators[name] = &v
		} else {
			sum.Indicators[name] = nil
		}
	}
	return sum
}
