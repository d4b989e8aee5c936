package metrics

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Pinger is a dependency that can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus tracks dependency health for the /api/v1/health probe.
type HealthStatus struct {
	mu sync.RWMutex

	StoreDriver     string
	StoreOK         bool
	StoreLatencyMs  float64
	RedisEnabled    bool
	RedisConnected  bool
	RedisLatencyMs  float64
	LastTickTime    time.Time
	LastAggregation time.Time
	LastCheckAt     time.Time
	StartedAt       time.Time

	now func() time.Time
}

// NewHealthStatus returns a health status for the given store driver.
func NewHealthStatus(storeDriver string, redisEnabled bool) *HealthStatus {
	return &HealthStatus{
		StoreDriver:  storeDriver,
		RedisEnabled: redisEnabled,
		StartedAt:    time.Now(),
		now:          time.Now,
	}
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastAggregation(t time.Time) {
	h.mu.Lock()
	h.LastAggregation = t
	h.mu.Unlock()
}

// CheckStore pings the store and records latency and health.
func (h *HealthStatus) CheckStore(ctx context.Context, store Pinger) {
	start := time.Now()
	err := store.Ping(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.StoreOK = err == nil
	h.StoreLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency and connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = h.now()
	h.mu.Unlock()
}

// Check probes every configured dependency once.
func (h *HealthStatus) Check(ctx context.Context, store Pinger, rdb *goredis.Client) {
	probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if store != nil {
		h.CheckStore(probeCtx, store)
	}
	if rdb != nil {
		h.CheckRedis(probeCtx, rdb)
	}
}

// RunLivenessChecker probes dependencies immediately and then every interval
// until ctx is cancelled.
func (h *HealthStatus) RunLivenessChecker(ctx context.Context, store Pinger, rdb *goredis.Client, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		h.Check(ctx, store, rdb)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

type healthResponse struct {
	Status          string  `json:"status"`
	Uptime          string  `json:"uptime"`
	StoreDriver     string  `json:"store_driver"`
	StoreOK         bool    `json:"store_ok"`
	StoreLatencyMs  float64 `json:"store_latency_ms"`
	RedisEnabled    bool    `json:"redis_enabled"`
	RedisConnected  bool    `json:"redis_connected"`
	RedisLatencyMs  float64 `json:"redis_latency_ms"`
	LastTickTime    string  `json:"last_tick_time,omitempty"`
	TickAge         string  `json:"tick_age,omitempty"`
	LastAggregation string  `json:"last_aggregation,omitempty"`
	LastCheckAt     string  `json:"last_check_at,omitempty"`
}

// ServeHTTP reports "healthy", "degraded" (Redis down) or "unhealthy"
// (store down). Anything but healthy answers 503.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	now := h.now()
	resp := healthResponse{
		Status:         "healthy",
		Uptime:         now.Sub(h.StartedAt).Round(time.Second).String(),
		StoreDriver:    h.StoreDriver,
		StoreOK:        h.StoreOK,
		StoreLatencyMs: h.StoreLatencyMs,
		RedisEnabled:   h.RedisEnabled,
		RedisConnected: h.RedisConnected,
		RedisLatencyMs: h.RedisLatencyMs,
	}
	httpCode := http.StatusOK
	switch {
	case !h.StoreOK:
		resp.Status = "unhealthy"
		httpCode = http.StatusServiceUnavailable
	case h.RedisEnabled && !h.RedisConnected:
		resp.Status = "degraded"
		httpCode = http.StatusServiceUnavailable
	}

	if !h.LastTickTime.IsZero() {
		resp.LastTickTime = h.LastTickTime.Format(time.RFC3339)
		resp.TickAge = now.Sub(h.LastTickTime).Round(time.Millisecond).String()
	}
	if !h.LastAggregation.IsZero() {
		resp.LastAggregation = h.LastAggregation.Format(time.RFC3339)
	}
	if !h.LastCheckAt.IsZero() {
		resp.LastCheckAt = h.LastCheckAt.Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpCode)
	json.NewEncoder(w).Encode(resp)
}
