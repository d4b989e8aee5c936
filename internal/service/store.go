package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"btcpulse/config"
	"btcpulse/internal/model"
	"btcpulse/internal/store/postgres"
	"btcpulse/internal/store/sqlite"
)

// Store is an opened tick and bucket store.
type Store interface {
	model.SessionProvider
	Ping(ctx context.Context) error
}

// OpenStore opens the store selected by cfg.Store.Driver. The returned func
// closes it. onCommit may be nil.
func OpenStore(ctx context.Context, cfg *config.Config, onCommit func(time.Duration)) (Store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverPostgres:
		s, err := postgres.New(ctx, cfg.Postgres)
		if err != nil {
			return nil, nil, err
		}
		s.OnCommit = onCommit
		return s, s.Close, nil
	case config.DriverSQLite:
		if dir := filepath.Dir(cfg.SQLite.DBPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("sqlite dir: %w", err)
			}
		}
		s, err := sqlite.New(cfg.SQLite)
		if err != nil {
			return nil, nil, err
		}
		s.OnCommit = onCommit
		return s, func() { s.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
}
