// Package redis caches the latest dashboard summary and hourly bucket in
// Redis and fans them out over Pub/Sub so every service instance and
// websocket gateway sees the same updates.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"btcpulse/internal/model"
)

// Keys and channels.
const (
	SummaryKey     = "btc:summary:latest"
	SummaryStream  = "btc:summary:stream"
	SummaryChannel = "pub:btc:summary"
	BucketKey      = "btc:bucket:latest"
	BucketChannel  = "pub:btc:bucket"
)

// Config configures the Redis connection and cache policy.
type Config struct {
	Addr         string        `env:"ADDR" envDefault:"localhost:6379"`
	Password     string        `env:"PASSWORD"`
	DB           int           `env:"DB" envDefault:"0"`
	TTL          time.Duration `env:"TTL" envDefault:"2h"`
	StreamMaxLen int64         `env:"STREAM_MAXLEN" envDefault:"1000"`
}

// NewClient connects to Redis and pings it.
func NewClient(ctx context.Context, cfg Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	slog.Info("redis connected", "addr", cfg.Addr, "db", cfg.DB)
	return client, nil
}

// Writer publishes summaries and buckets. Writes go through a circuit
// breaker so an unreachable Redis fails fast instead of stalling callers.
type Writer struct {
	client *goredis.Client
	ttl    time.Duration
	maxLen int64
	cb     *CircuitBreaker
}

// NewWriter creates a Writer over an existing client.
func NewWriter(client *goredis.Client, cfg Config) *Writer {
	w := &Writer{
		client: client,
		ttl:    cfg.TTL,
		maxLen: cfg.StreamMaxLen,
		cb:     NewCircuitBreaker(5, 10*time.Second),
	}
	if w.maxLen <= 0 {
		w.maxLen = 1000
	}
	return w
}

// Breaker exposes the circuit breaker so callers can observe transitions.
func (w *Writer) Breaker() *CircuitBreaker { return w.cb }

// Client returns the underlying Redis client for health checks.
func (w *Writer) Client() *goredis.Client { return w.client }

// WriteSummary stores s as the latest summary, appends it to the summary
// stream and publishes it, in one pipeline.
func (w *Writer) WriteSummary(ctx context.Context, s *model.Summary) error {
	data := string(s.JSON())
	return w.exec(ctx, "summary", func(pipe goredis.Pipeliner) {
		pipe.Set(ctx, SummaryKey, data, w.ttl)
		pipe.XAdd(ctx, &goredis.XAddArgs{
			Stream: SummaryStream,
			MaxLen: w.maxLen,
			Approx: true,
			Values: map[string]interface{}{"data": data},
		})
		pipe.Publish(ctx, SummaryChannel, data)
	})
}

// WriteBuckets publishes every bucket and stores the latest one.
func (w *Writer) WriteBuckets(ctx context.Context, buckets []model.HourBucket) error {
	if len(buckets) == 0 {
		return nil
	}
	latest := buckets[0]
	return w.exec(ctx, "buckets", func(pipe goredis.Pipeliner) {
		for i := range buckets {
			pipe.Publish(ctx, BucketChannel, string(buckets[i].JSON()))
			if buckets[i].Hour.After(latest.Hour) {
				latest = buckets[i]
			}
		}
		pipe.Set(ctx, BucketKey, string(latest.JSON()), w.ttl)
	})
}

func (w *Writer) exec(ctx context.Context, what string, queue func(goredis.Pipeliner)) error {
	err := w.cb.Execute(func() error {
		pipe := w.client.Pipeline()
		queue(pipe)
		_, err := pipe.Exec(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("redis write %s: %w", what, err)
	}
	return nil
}
