// Package service wires the ingestion poller, the hourly aggregator, the
// dashboard API and the websocket gateway into one long-running process.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"golang.org/x/sync/errgroup"

	"btcpulse/config"
	"btcpulse/internal/aggregate"
	"btcpulse/internal/api"
	"btcpulse/internal/coingecko"
	"btcpulse/internal/dashboard"
	"btcpulse/internal/gateway"
	"btcpulse/internal/indicator"
	"btcpulse/internal/ingest"
	"btcpulse/internal/metrics"
	"btcpulse/internal/model"
	"btcpulse/internal/notification"
	redisstore "btcpulse/internal/store/redis"
)

// Service is the top-level orchestrator. It owns every connection it opens.
type Service struct {
	cfg    *config.Config
	log    *slog.Logger
	prom   *metrics.Metrics
	health *metrics.HealthStatus
	notify notification.Notifier

	store      Store
	closeStore func()
	rdb        *goredis.Client
	cache      *redisstore.Writer

	feed   *coingecko.Client
	poller *ingest.Poller
	agg    *aggregate.Aggregator
	dash   *dashboard.Service
	hub    *gateway.Hub
	router http.Handler

	now func() time.Time
}

// New connects the store and, when enabled, Redis, and wires all components.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	specs, err := cfg.Specs()
	if err != nil {
		return nil, err
	}

	s := &Service{
		cfg:    cfg,
		log:    logger,
		prom:   metrics.NewMetrics(),
		health: metrics.NewHealthStatus(cfg.Store.Driver, cfg.Redis.Enabled),
		notify: notification.New(cfg.Notify, logger),
		now:    time.Now,
	}

	s.store, s.closeStore, err = OpenStore(ctx, cfg, func(d time.Duration) {
		s.prom.StoreCommitDur.Observe(d.Seconds())
	})
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}

	if cfg.Redis.Enabled {
		s.rdb, err = redisstore.NewClient(ctx, cfg.Redis.Config)
		if err != nil {
			s.closeStore()
			return nil, err
		}
		s.cache = redisstore.NewWriter(s.rdb, cfg.Redis.Config)
		s.cache.Breaker().OnStateChange = func(_, to redisstore.State) {
			s.prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				s.prom.RedisCircuitBreakerTrips.Inc()
				go s.alert(notification.AlertWarning, "redis circuit open",
					"dashboard cache writes are failing and will be skipped during the cool-down")
			}
		}
	}

	s.feed = coingecko.New(cfg.CoinGecko)
	s.feed.OnRequest = func(endpoint string, d time.Duration, _ error) {
		s.prom.FeedLatency.WithLabelValues(endpoint).Observe(d.Seconds())
	}

	s.poller = ingest.NewPoller(s.feed, s.store, cfg.CoinGecko.PollInterval, logger)
	s.poller.OnPoll = s.observePoll

	s.agg = aggregate.New(s.store, aggregate.Options{
		BatchSize: cfg.Aggregation.BatchSize,
		Logger:    logger,
		OnBatch: func(n int, d time.Duration) {
			s.prom.BucketsUpserted.Add(float64(n))
			s.prom.BucketBatchDur.Observe(d.Seconds())
		},
		OnRun: s.observeRun,
	})

	engine, err := indicator.NewEngine(specs)
	if err != nil {
		s.Close()
		return nil, err
	}
	engine.OnCompute = func(d time.Duration) { s.prom.IndicatorComputeDur.Observe(d.Seconds()) }

	s.hub = gateway.NewHub(logger)
	s.hub.OnClients = func(n int) { s.prom.WSClients.Set(float64(n)) }
	s.hub.OnBroadcast = func(string) { s.prom.WSBroadcasts.Inc() }

	s.dash = dashboard.New(s.store, engine, logger)
	if s.cache != nil {
		// Summaries reach the hub through Redis pub/sub, see Run.
		s.dash.Cache = cacheWriter{w: s.cache, errs: s.prom}
	} else {
		s.dash.OnSummary = func(sum model.Summary) {
			s.hub.Broadcast(redisstore.SummaryChannel, sum.JSON())
		}
	}

	s.router = api.NewRouter(api.Deps{
		Dashboard:   s.dash,
		Aggregator:  s.agg,
		DefaultDays: cfg.Aggregation.LookbackDays,
		Health:      s.health,
		Metrics:     s.prom,
		Hub:         s.hub,
		Logger:      logger,
	})
	return s, nil
}

// Handler returns the HTTP handler serving the API, metrics and websocket.
func (s *Service) Handler() http.Handler { return s.router }

// Metrics returns the service metrics.
func (s *Service) Metrics() *metrics.Metrics { return s.prom }

// Run starts all subsystems and blocks until ctx is cancelled or one of them
// fails.
func (s *Service) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              s.cfg.App.HTTPAddr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	g.Go(func() error {
		s.log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		s.hub.Close()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	g.Go(func() error {
		return s.health.RunLivenessChecker(ctx, s.store, s.rdb, 10*time.Second)
	})

	if s.cfg.Aggregation.HistoryDays > 0 {
		if _, err := s.RefreshHistory(ctx, s.cfg.Aggregation.HistoryDays); err != nil {
			s.log.Warn("startup history refresh failed", "error", err)
		}
	}

	g.Go(func() error { return s.poller.Run(ctx) })
	g.Go(func() error { return s.aggregateLoop(ctx) })

	if s.rdb != nil {
		reader := redisstore.NewReader(s.rdb)
		g.Go(func() error {
			// Losing the relay degrades the stream only.
			if err := s.hub.Relay(ctx, reader, redisstore.SummaryChannel, redisstore.BucketChannel); err != nil {
				s.log.Error("pub/sub relay stopped", "error", err)
			}
			return nil
		})
	}

	s.log.Info("btcpulse running",
		"store", s.cfg.Store.Driver,
		"redis", s.rdb != nil,
		"poll_interval", s.cfg.CoinGecko.PollInterval,
		"agg_interval", s.cfg.Aggregation.Interval,
	)
	return g.Wait()
}

func (s *Service) aggregateLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.Aggregation.Interval)
	defer ticker.Stop()
	for {
		if err := s.AggregateOnce(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("aggregation cycle failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// AggregateOnce fills missing buckets over the lookback window, rebuilds the
// previous and current hour so they pick up late ticks, then publishes the
// fresh buckets and summary.
func (s *Service) AggregateOnce(ctx context.Context) error {
	if _, err := s.agg.Run(ctx, s.cfg.Aggregation.LookbackDays); err != nil {
		return err
	}
	now := s.now().UTC()
	from := now.Truncate(time.Hour).Add(-time.Hour)
	if _, err := s.agg.Rebuild(ctx, from, now); err != nil {
		return err
	}
	if err := s.publishBuckets(ctx, from, now); err != nil {
		return err
	}
	if _, err := s.dash.Publish(ctx, s.cfg.Aggregation.LookbackDays); err != nil && !errors.Is(err, model.ErrNoData) {
		return err
	}
	return nil
}

func (s *Service) publishBuckets(ctx context.Context, from, to time.Time) error {
	sess, err := s.store.Session(ctx)
	if err != nil {
		return err
	}
	buckets, err := sess.BucketsBetween(ctx, from, to.Add(time.Hour))
	sess.Release()
	if err != nil || len(buckets) == 0 {
		return err
	}

	if s.cache != nil {
		if err := s.cache.WriteBuckets(ctx, buckets); err != nil {
			s.prom.RedisWriteErrors.Inc()
			s.log.Warn("bucket cache write failed", "error", err)
		}
		return nil
	}
	latest := buckets[len(buckets)-1]
	s.hub.Broadcast(redisstore.BucketChannel, latest.JSON())
	return nil
}

// RefreshHistory replaces the last days of stored ticks with CoinGecko
// history and rebuilds the affected buckets.
func (s *Service) RefreshHistory(ctx context.Context, days int) (ingest.HistoryResult, error) {
	res, err := ingest.RefreshHistory(ctx, s.feed, s.store, days, s.now())
	if err != nil {
		return res, err
	}
	s.prom.HistoryInserted.Add(float64(res.Inserted))
	if res.Inserted > 0 {
		if _, err := s.agg.Rebuild(ctx, res.From, res.To); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *Service) observePoll(q coingecko.Quote, inserted bool, err error) {
	switch {
	case err != nil:
		s.prom.PollsTotal.WithLabelValues("error").Inc()
	case inserted:
		s.prom.PollsTotal.WithLabelValues("inserted").Inc()
		s.prom.LatestPrice.Set(q.Tick.Price.InexactFloat64())
		s.health.SetLastTickTime(q.Tick.TS)
	default:
		s.prom.PollsTotal.WithLabelValues("duplicate").Inc()
	}
}

func (s *Service) observeRun(r aggregate.Result, err error) {
	if err != nil {
		s.prom.AggregationRuns.WithLabelValues("error").Inc()
		go s.alert(notification.AlertCritical, "aggregation failed", err.Error())
		return
	}
	s.prom.AggregationRuns.WithLabelValues("ok").Inc()
	s.prom.AggregationDur.Observe(r.Duration.Seconds())
	done := s.now()
	s.prom.LastAggregationTS.Set(float64(done.Unix()))
	s.health.SetLastAggregation(done)
}

func (s *Service) alert(level notification.AlertLevel, title, msg string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.notify.Send(ctx, notification.Alert{Level: level, Title: title, Message: msg}); err != nil {
		s.log.Warn("alert delivery failed", "title", title, "error", err)
	}
}

// Close releases Redis and the store.
func (s *Service) Close() {
	if s.rdb != nil {
		s.rdb.Close()
	}
	if s.closeStore != nil {
		s.closeStore()
	}
}

// cacheWriter counts failed summary writes.
type cacheWriter struct {
	w    *redisstore.Writer
	errs *metrics.Metrics
}

func (c cacheWriter) WriteSummary(ctx context.Context, sum *model.Summary) error {
	err := c.w.WriteSummary(ctx, sum)
	if err != nil {
		c.errs.RedisWriteErrors.Inc()
	}
	return err
}
