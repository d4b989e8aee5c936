// cmd/backfill replaces the last N days of stored ticks with CoinGecko
// history and rebuilds the affected hourly buckets.
//
// Usage:
//
//	go run ./cmd/backfill --days=30
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"btcpulse/config"
	"btcpulse/internal/aggregate"
	"btcpulse/internal/coingecko"
	"btcpulse/internal/ingest"
	"btcpulse/internal/logger"
	"btcpulse/internal/service"
)

func main() {
	days := flag.Int("days", 30, "Days of history to fetch (capped at 90)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatal("config load failed", err)
	}
	level, _ := cfg.LogLevel()
	log, sync := logger.Init("backfill", level, cfg.Production())
	defer sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := service.OpenStore(ctx, cfg, nil)
	if err != nil {
		fatal("open store failed", err)
	}
	defer closeStore()

	res, err := ingest.RefreshHistory(ctx, coingecko.New(cfg.CoinGecko), store, *days, time.Now())
	if err != nil {
		closeStore()
		fatal("history refresh failed", err)
	}

	agg := aggregate.New(store, aggregate.Options{BatchSize: cfg.Aggregation.BatchSize, Logger: log})
	built, err := agg.Rebuild(ctx, res.From, res.To)
	if err != nil {
		closeStore()
		fatal("bucket rebuild failed", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(map[string]any{"history": res, "buckets": built})
}

func fatal(msg string, err error) {
	os.Stderr.WriteString(msg + ": " + err.Error() + "\n")
	os.Exit(1)
}
