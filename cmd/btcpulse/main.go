// cmd/btcpulse runs the long-lived service: CoinGecko polling, hourly
// aggregation, the dashboard API and the websocket stream.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"btcpulse/config"
	"btcpulse/internal/logger"
	"btcpulse/internal/service"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "error", err)
		os.Exit(1)
	}
	level, _ := cfg.LogLevel()
	log, sync := logger.Init(cfg.App.Name, level, cfg.Production())
	defer sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := service.New(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer svc.Close()

	if err := svc.Run(ctx); err != nil {
		log.Error("service stopped", "error", err)
		svc.Close()
		sync()
		os.Exit(1)
	}
	log.Info("shutdown complete")
}
