package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btcpulse/internal/model"
)

func setup(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func summary(price float64) *model.Summary {
	ma := 101.5
	return &model.Summary{
		AsOf:        time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC),
		Days:        7,
		Points:      168,
		LatestPrice: price,
		Indicators:  map[string]*float64{"ma_24": &ma, "rsi_14": nil},
	}
}

func TestNewClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client, err := NewClient(context.Background(), Config{Addr: mr.Addr()})
	require.NoError(t, err)
	client.Close()

	addr := mr.Addr()
	mr.Close()
	_, err = NewClient(context.Background(), Config{Addr: addr})
	assert.Error(t, err)
}

func TestWriteSummary_LatestWithTTL(t *testing.T) {
	mr, client := setup(t)
	w := NewWriter(client, Config{TTL: time.Hour})
	r := NewReader(client)
	ctx := context.Background()

	_, err := r.LatestSummary(ctx)
	assert.ErrorIs(t, err, model.ErrNoData)

	require.NoError(t, w.WriteSummary(ctx, summary(100)))
	require.NoError(t, w.WriteSummary(ctx, summary(105)))

	got, err := r.LatestSummary(ctx)
	require.NoError(t, err)
	assert.Equal(t, 105.0, got.LatestPrice)
	require.NotNil(t, got.Indicators["ma_24"])
	assert.Equal(t, 101.5, *got.Indicators["ma_24"])
	assert.Nil(t, got.Indicators["rsi_14"])
	assert.Equal(t, time.Hour, mr.TTL(SummaryKey))

	recent, err := r.RecentSummaries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, 105.0, recent[0].LatestPrice, "newest first")
}

func TestWriteBuckets_StoresLatest(t *testing.T) {
	_, client := setup(t)
	w := NewWriter(client, Config{})
	r := NewReader(client)
	ctx := context.Background()

	h := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	buckets := []model.HourBucket{
		{Hour: h.Add(time.Hour), Close: decimal.NewFromInt(2)},
		{Hour: h, Close: decimal.NewFromInt(1)},
	}
	require.NoError(t, w.WriteBuckets(ctx, buckets))
	require.NoError(t, w.WriteBuckets(ctx, nil))

	got, err := r.LatestBucket(ctx)
	require.NoError(t, err)
	assert.True(t, got.Hour.Equal(h.Add(time.Hour)))
	assert.True(t, got.Close.Equal(decimal.NewFromInt(2)))
}

func TestSubscribe_ReceivesPublishedSummary(t *testing.T) {
	_, client := setup(t)
	w := NewWriter(client, Config{TTL: time.Minute})
	r := NewReader(client)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu   sync.Mutex
		msgs []string
	)
	done := make(chan error, 1)
	go func() {
		done <- r.Subscribe(ctx, func(channel string, payload []byte) {
			mu.Lock()
			msgs = append(msgs, channel)
			mu.Unlock()
		}, SummaryChannel)
	}()

	// Publish until the subscriber has confirmed and seen one message.
	require.Eventually(t, func() bool {
		_ = w.WriteSummary(context.Background(), summary(1))
		mu.Lock()
		defer mu.Unlock()
		return len(msgs) > 0
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Subscribe did not return after cancel")
	}
	mu.Lock()
	assert.Equal(t, SummaryChannel, msgs[0])
	mu.Unlock()
}

func TestWriter_BreakerOpensWhenRedisIsDown(t *testing.T) {
	mr, client := setup(t)
	w := NewWriter(client, Config{})
	mr.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		assert.Error(t, w.WriteSummary(ctx, summary(1)))
	}
	assert.Equal(t, StateOpen, w.Breaker().CurrentState())
	assert.ErrorIs(t, w.WriteSummary(ctx, summary(1)), ErrCircuitOpen)
}
