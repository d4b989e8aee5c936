// cmd/aggregate runs one hourly aggregation pass, or rebuilds a range.
//
// Usage:
//
//	go run ./cmd/aggregate --days=7
//	go run ./cmd/aggregate --from=2025-04-01T00:00:00Z --to=2025-04-02T00:00:00Z
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"btcpulse/config"
	"btcpulse/internal/aggregate"
	"btcpulse/internal/logger"
	"btcpulse/internal/service"
)

func main() {
	days := flag.Int("days", 0, "Lookback window in days (default AGG_LOOKBACK_DAYS)")
	batch := flag.Int("batch", 0, "Buckets per transaction (default AGG_BATCH_SIZE)")
	fromStr := flag.String("from", "", "Rebuild range start, RFC3339")
	toStr := flag.String("to", "", "Rebuild range end, RFC3339 (default now)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fatal("config load failed", err)
	}
	level, _ := cfg.LogLevel()
	log, sync := logger.Init("aggregate", level, cfg.Production())
	defer sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, closeStore, err := service.OpenStore(ctx, cfg, nil)
	if err != nil {
		fatal("open store failed", err)
	}
	defer closeStore()

	if *batch <= 0 {
		*batch = cfg.Aggregation.BatchSize
	}
	agg := aggregate.New(store, aggregate.Options{BatchSize: *batch, Logger: log})

	var res aggregate.Result
	if *fromStr != "" {
		from, to, perr := parseRange(*fromStr, *toStr)
		if perr != nil {
			closeStore()
			fatal("invalid range", perr)
		}
		res, err = agg.Rebuild(ctx, from, to)
	} else {
		if *days <= 0 {
			*days = cfg.Aggregation.LookbackDays
		}
		res, err = agg.Run(ctx, *days)
	}
	if err != nil {
		closeStore()
		fatal("aggregation failed", err)
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(res)
}

// parseRange parses RFC3339 bounds; an empty to means now.
func parseRange(fromStr, toStr string) (from, to time.Time, err error) {
	if from, err = time.Parse(time.RFC3339, fromStr); err != nil {
		return from, to, fmt.Errorf("--from: %w", err)
	}
	to = time.Now()
	if toStr != "" {
		if to, err = time.Parse(time.RFC3339, toStr); err != nil {
			return from, to, fmt.Errorf("--to: %w", err)
		}
	}
	return from, to, nil
}

func fatal(msg string, err error) {
	os.Stderr.WriteString(msg + ": " + err.Error() + "\n")
	os.Exit(1)
}
