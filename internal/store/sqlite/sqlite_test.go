package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"btcpulse/internal/model"
	"btcpulse/internal/store/storetest"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{DBPath: filepath.Join(t.TempDir(), "btc.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) model.SessionProvider { return newTestStore(t) })
}

func TestCorruptDecimalIsAnError(t *testing.T) {
	s := newTestStore(t)
	_, err := s.DB().Exec(`INSERT INTO raw_bitcoin_prices (ts, price, volume) VALUES (?, 'abc', '1')`,
		storetest.Base.UnixMilli())
	require.NoError(t, err)

	sess, err := s.Session(context.Background())
	require.NoError(t, err)
	defer sess.Release()

	_, err = sess.LatestTick(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), `price "abc"`)
}

func TestOnCommitObservesWrites(t *testing.T) {
	s := newTestStore(t)
	var commits int
	s.OnCommit = func(time.Duration) { commits++ }

	sess, err := s.Session(context.Background())
	require.NoError(t, err)
	defer sess.Release()

	require.NoError(t, sess.UpsertBuckets(context.Background(), []model.HourBucket{{Hour: storetest.Base}}))
	assert.Equal(t, 1, commits)
}

func TestReleaseTwice(t *testing.T) {
	s := newTestStore(t)
	sess, err := s.Session(context.Background())
	require.NoError(t, err)
	sess.Release()
	sess.Release()

	// The single connection is back in the pool.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	again, err := s.Session(ctx)
	require.NoError(t, err)
	again.Release()
}
