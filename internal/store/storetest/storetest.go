// Package storetest holds behavioural tests every model.SessionProvider
// implementation must pass.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btcpulse/internal/model"
)

// Factory returns an empty store. Cleanup is registered on t.
type Factory func(t *testing.T) model.SessionProvider

// Base is the first hour used by the fixtures.
var Base = time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

func tick(ts time.Time, price string) model.Tick {
	return model.Tick{
		TS:        ts,
		Price:     decimal.RequireFromString(price),
		Volume:    decimal.RequireFromString("1000.5"),
		MarketCap: decimal.RequireFromString("1300000000000"),
	}
}

func bucket(h time.Time, price string) model.HourBucket {
	d := decimal.RequireFromString(price)
	return model.HourBucket{Hour: h, Open: d, High: d, Low: d, Close: d, Volume: d, Ticks: 1}
}

func session(t *testing.T, p model.SessionProvider) model.Session {
	t.Helper()
	sess, err := p.Session(context.Background())
	require.NoError(t, err)
	t.Cleanup(sess.Release)
	return sess
}

// Run executes the contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("InsertTickIgnoresDuplicates", func(t *testing.T) {
		sess := session(t, newStore(t))
		ctx := context.Background()

		ok, err := sess.InsertTick(ctx, tick(Base, "67012.123456789"))
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = sess.InsertTick(ctx, tick(Base, "1"))
		require.NoError(t, err)
		assert.False(t, ok, "duplicate timestamp must be ignored")

		got, err := sess.LatestTick(ctx)
		require.NoError(t, err)
		assert.True(t, got.TS.Equal(Base))
		assert.Equal(t, "67012.123456789", got.Price.String(), "decimal precision preserved")
		assert.True(t, got.MarketCap.Equal(decimal.RequireFromString("1300000000000")))
	})

	t.Run("LatestTickEmpty", func(t *testing.T) {
		sess := session(t, newStore(t))
		_, err := sess.LatestTick(context.Background())
		assert.ErrorIs(t, err, model.ErrNoData)
	})

	t.Run("TicksBetweenHalfOpenAndOrdered", func(t *testing.T) {
		sess := session(t, newStore(t))
		ctx := context.Background()
		for _, m := range []int{50, 10, 30, 60} {
			_, err := sess.InsertTick(ctx, tick(Base.Add(time.Duration(m)*time.Minute), "100"))
			require.NoError(t, err)
		}

		ticks, err := sess.TicksBetween(ctx, Base.Add(10*time.Minute), Base.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, ticks, 3, "from inclusive, to exclusive")
		for i := 1; i < len(ticks); i++ {
			assert.True(t, ticks[i-1].TS.Before(ticks[i].TS))
		}
		assert.Equal(t, time.UTC, ticks[0].TS.Location())
	})

	t.Run("MissingHours", func(t *testing.T) {
		sess := session(t, newStore(t))
		ctx := context.Background()
		for h := 0; h < 4; h++ {
			for _, m := range []int{5, 40} {
				_, err := sess.InsertTick(ctx, tick(Base.Add(time.Duration(h)*time.Hour+time.Duration(m)*time.Minute), "100"))
				require.NoError(t, err)
			}
		}
		require.NoError(t, sess.UpsertBuckets(ctx, []model.HourBucket{bucket(Base.Add(time.Hour), "1")}))

		hours, err := sess.MissingHours(ctx, Base, Base.Add(4*time.Hour))
		require.NoError(t, err)
		want := []time.Time{Base, Base.Add(2 * time.Hour), Base.Add(3 * time.Hour)}
		require.Len(t, hours, len(want))
		for i := range want {
			assert.True(t, hours[i].Equal(want[i]), "hour %d: %s != %s", i, hours[i], want[i])
		}

		// A window starting mid-hour still reports that hour.
		hours, err = sess.MissingHours(ctx, Base.Add(30*time.Minute), Base.Add(time.Hour))
		require.NoError(t, err)
		require.Len(t, hours, 1)
		assert.True(t, hours[0].Equal(Base))
	})

	t.Run("UpsertBucketsOverwrites", func(t *testing.T) {
		sess := session(t, newStore(t))
		ctx := context.Background()

		require.NoError(t, sess.UpsertBuckets(ctx, []model.HourBucket{bucket(Base, "100"), bucket(Base.Add(time.Hour), "200")}))
		b := bucket(Base, "150.25")
		b.High = decimal.RequireFromString("151")
		b.Ticks = 7
		require.NoError(t, sess.UpsertBuckets(ctx, []model.HourBucket{b}))

		got, err := sess.BucketsBetween(ctx, Base, Base.Add(2*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.True(t, got[0].SameOHLCV(b), "got %+v", got[0])
		assert.Equal(t, 7, got[0].Ticks)
		assert.True(t, got[1].Close.Equal(decimal.RequireFromString("200")))

		require.NoError(t, sess.UpsertBuckets(ctx, nil))
	})

	t.Run("ReplaceTicksIsRangeScoped", func(t *testing.T) {
		sess := session(t, newStore(t))
		ctx := context.Background()
		for h := 0; h < 5; h++ {
			_, err := sess.InsertTick(ctx, tick(Base.Add(time.Duration(h)*time.Hour), "100"))
			require.NoError(t, err)
		}

		from, to := Base.Add(time.Hour), Base.Add(3*time.Hour)
		fresh := []model.Tick{
			tick(from.Add(15*time.Minute), "101"),
			tick(from.Add(75*time.Minute), "102"),
			tick(to.Add(time.Hour), "999"), // outside the range
		}
		n, err := sess.ReplaceTicks(ctx, from, to, fresh)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		all, err := sess.TicksBetween(ctx, Base, Base.Add(10*time.Hour))
		require.NoError(t, err)
		var prices []string
		for _, tk := range all {
			prices = append(prices, tk.Price.String())
		}
		assert.Equal(t, []string{"100", "101", "102", "100", "100"}, prices)
	})

	t.Run("DeleteEmptyBuckets", func(t *testing.T) {
		sess := session(t, newStore(t))
		ctx := context.Background()
		_, err := sess.InsertTick(ctx, tick(Base.Add(59*time.Minute), "100"))
		require.NoError(t, err)
		require.NoError(t, sess.UpsertBuckets(ctx, []model.HourBucket{
			bucket(Base.Add(-time.Hour), "90"), // outside the range
			bucket(Base, "100"),
			bucket(Base.Add(time.Hour), "110"),
			bucket(Base.Add(2*time.Hour), "120"),
		}))

		n, err := sess.DeleteEmptyBuckets(ctx, Base, Base.Add(2*time.Hour))
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := sess.BucketsBetween(ctx, Base.Add(-time.Hour), Base.Add(3*time.Hour))
		require.NoError(t, err)
		var hours []int64
		for _, b := range got {
			hours = append(hours, b.Hour.Unix())
		}
		assert.Equal(t, []int64{Base.Add(-time.Hour).Unix(), Base.Unix(), Base.Add(2 * time.Hour).Unix()}, hours)
	})

	t.Run("SessionsAreReusable", func(t *testing.T) {
		p := newStore(t)
		for i := 0; i < 3; i++ {
			sess, err := p.Session(context.Background())
			require.NoError(t, err)
			_, err = sess.InsertTick(context.Background(), tick(Base.Add(time.Duration(i)*time.Minute), "1"))
			require.NoError(t, err)
			sess.Release()
		}
		sess := session(t, p)
		ticks, err := sess.TicksBetween(context.Background(), Base, Base.Add(time.Hour))
		require.NoError(t, err)
		assert.Len(t, ticks, 3)
	})
}
