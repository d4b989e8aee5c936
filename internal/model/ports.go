package model

import (
	"context"
	"errors"
	"time"
)

// ErrNoData is returned by lookups that find no matching rows.
var ErrNoData = errors.New("no data")

// ── Storage Port Interfaces ──
// These interfaces decouple the aggregator, ingestion and dashboard from the
// concrete stores (PostgreSQL, SQLite). There is no process-wide pool: callers
// borrow a Session from an explicitly constructed SessionProvider and must
// Release it on every exit path.

// SessionProvider hands out scoped storage sessions.
type SessionProvider interface {
	// Session borrows a connection. The caller must call Release exactly once.
	Session(ctx context.Context) (Session, error)
}

// Session is a borrowed storage connection. All ranges are half-open [from, to).
type Session interface {
	TickReader
	TickWriter
	BucketStore

	// Release returns the connection to its pool. Safe to call on any exit path.
	Release()
}

// TickReader reads raw ticks.
type TickReader interface {
	// TicksBetween returns ticks with from <= TS < to ordered by TS ascending.
	TicksBetween(ctx context.Context, from, to time.Time) ([]Tick, error)

	// LatestTick returns the most recent tick or ErrNoData.
	LatestTick(ctx context.Context) (Tick, error)
}

// TickWriter writes raw ticks.
type TickWriter interface {
	// InsertTick stores a tick. A tick whose TS already exists is ignored and
	// reported as inserted=false.
	InsertTick(ctx context.Context, t Tick) (inserted bool, err error)

	// ReplaceTicks deletes the stored ticks in [from, to) and inserts ticks in
	// one transaction, returning the number inserted. Stored ticks outside the
	// range are never touched; given ticks outside the range are skipped.
	ReplaceTicks(ctx context.Context, from, to time.Time, ticks []Tick) (int, error)
}

// BucketStore reads and upserts hourly buckets.
type BucketStore interface {
	// MissingHours returns the distinct truncated hours that have at least one
	// tick with from <= TS < to and no bucket yet, ascending.
	MissingHours(ctx context.Context, from, to time.Time) ([]time.Time, error)

	// UpsertBuckets creates or overwrites buckets keyed by Hour in a single
	// transaction.
	UpsertBuckets(ctx context.Context, buckets []HourBucket) error

	// DeleteEmptyBuckets deletes the buckets with from <= Hour < to whose hour
	// no longer holds any tick, returning the number deleted.
	DeleteEmptyBuckets(ctx context.Context, from, to time.Time) (int, error)

	// BucketsBetween returns buckets with from <= Hour < to ascending.
	BucketsBetween(ctx context.Context, from, to time.Time) ([]HourBucket, error)
}
