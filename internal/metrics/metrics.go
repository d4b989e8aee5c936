// Package metrics exposes Prometheus metrics and the health probe.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion
	PollsTotal      *prometheus.CounterVec   // labels: result=inserted|duplicate|error
	FeedLatency     *prometheus.HistogramVec // labels: endpoint
	LatestPrice     prometheus.Gauge
	HistoryInserted prometheus.Counter

	// Aggregation
	AggregationRuns   *prometheus.CounterVec // labels: result=ok|error
	AggregationDur    prometheus.Histogram
	BucketsUpserted   prometheus.Counter
	BucketBatchDur    prometheus.Histogram
	StoreCommitDur    prometheus.Histogram
	LastAggregationTS prometheus.Gauge

	// Indicators
	IndicatorComputeDur prometheus.Histogram

	// Redis
	RedisWriteErrors         prometheus.Counter
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter

	// HTTP / websocket
	HTTPRequests *prometheus.CounterVec // labels: route, code
	WSClients    prometheus.Gauge
	WSBroadcasts prometheus.Counter
}

// NewMetrics creates the metrics on a private registry together with the Go
// runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		PollsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "btcpulse_polls_total",
			Help: "CoinGecko price polls by result",
		}, []string{"result"}),
		FeedLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "btcpulse_feed_request_duration_seconds",
			Help:    "CoinGecko request latency by endpoint",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"endpoint"}),
		LatestPrice: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "btcpulse_latest_price_usd",
			Help: "Most recent polled Bitcoin price in USD",
		}),
		HistoryInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "btcpulse_history_ticks_inserted_total",
			Help: "Ticks inserted by history refreshes",
		}),

		AggregationRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "btcpulse_aggregation_runs_total",
			Help: "Hourly aggregation runs by result",
		}, []string{"result"}),
		AggregationDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "btcpulse_aggregation_duration_seconds",
			Help:    "Hourly aggregation run latency",
			Buckets: prometheus.DefBuckets,
		}),
		BucketsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "btcpulse_buckets_upserted_total",
			Help: "Hourly buckets created or overwritten",
		}),
		BucketBatchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "btcpulse_bucket_batch_duration_seconds",
			Help:    "Latency of one bucket upsert batch",
			Buckets: prometheus.DefBuckets,
		}),
		StoreCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "btcpulse_store_commit_duration_seconds",
			Help:    "Store write transaction latency",
			Buckets: prometheus.DefBuckets,
		}),
		LastAggregationTS: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "btcpulse_last_aggregation_timestamp_seconds",
			Help: "Unix time of the last successful aggregation run",
		}),

		IndicatorComputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "btcpulse_indicator_compute_duration_seconds",
			Help:    "Indicator engine latency per series",
			Buckets: []float64{0.00001, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),

		RedisWriteErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "btcpulse_redis_write_errors_total",
			Help: "Failed Redis cache writes",
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "btcpulse_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "btcpulse_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),

		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "btcpulse_http_requests_total",
			Help: "API requests by route and status code",
		}, []string{"route", "code"}),
		WSClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "btcpulse_ws_clients",
			Help: "Connected websocket clients",
		}),
		WSBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "btcpulse_ws_broadcasts_total",
			Help: "Messages broadcast to websocket clients",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.PollsTotal,
		m.FeedLatency,
		m.LatestPrice,
		m.HistoryInserted,
		m.AggregationRuns,
		m.AggregationDur,
		m.BucketsUpserted,
		m.BucketBatchDur,
		m.StoreCommitDur,
		m.LastAggregationTS,
		m.IndicatorComputeDur,
		m.RedisWriteErrors,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.HTTPRequests,
		m.WSClients,
		m.WSBroadcasts,
	)
	return m
}

// Registry returns the registry the metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
