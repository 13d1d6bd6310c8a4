package redisledger_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/keygate/pkg/licensing"
	"github.com/dmitrymomot/keygate/pkg/licensing/redisledger"
)

func newLedger(t *testing.T) (*redisledger.Ledger, *miniredis.Miniredis) {
	t.Helper()
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return redisledger.New(client, redisledger.WithPrefix("test")), srv
}

func TestLedger(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("claim once", func(t *testing.T) {
		t.Parallel()
		l, srv := newLedger(t)

		state, err := l.Claim(ctx, "evt_1", 2*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, licensing.ClaimAcquired, state)
		assert.True(t, srv.Exists("test:webhook:evt_1"))
		assert.Equal(t, 2*time.Minute, srv.TTL("test:webhook:evt_1"))

		state, err = l.Claim(ctx, "evt_1", 2*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, licensing.ClaimPending, state)
	})

	t.Run("complete keeps the id", func(t *testing.T) {
		t.Parallel()
		l, srv := newLedger(t)

		_, err := l.Claim(ctx, "evt_1", time.Minute)
		require.NoError(t, err)
		require.NoError(t, l.Complete(ctx, "evt_1", time.Hour))

		val, err := srv.Get("test:webhook:evt_1")
		require.NoError(t, err)
		assert.Equal(t, "done", val)
		assert.Equal(t, time.Hour, srv.TTL("test:webhook:evt_1"))

		require.NoError(t, l.Release(ctx, "evt_1"))
		state, err := l.Claim(ctx, "evt_1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, licensing.ClaimDone, state, "completed ids are not released")
	})

	t.Run("release allows retry", func(t *testing.T) {
		t.Parallel()
		l, _ := newLedger(t)

		_, err := l.Claim(ctx, "evt_1", time.Hour)
		require.NoError(t, err)
		require.NoError(t, l.Release(ctx, "evt_1"))

		state, err := l.Claim(ctx, "evt_1", time.Hour)
		require.NoError(t, err)
		assert.Equal(t, licensing.ClaimAcquired, state)
	})

	t.Run("abandoned claim lapses before done ttl", func(t *testing.T) {
		t.Parallel()
		l, srv := newLedger(t)

		_, err := l.Claim(ctx, "evt_1", time.Minute)
		require.NoError(t, err)
		srv.FastForward(2 * time.Minute)

		state, err := l.Claim(ctx, "evt_1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, licensing.ClaimAcquired, state)

		require.NoError(t, l.Complete(ctx, "evt_1", 72*time.Hour))
		srv.FastForward(time.Hour)
		state, err = l.Claim(ctx, "evt_1", time.Minute)
		require.NoError(t, err)
		assert.Equal(t, licensing.ClaimDone, state)
	})

	t.Run("concurrent claims", func(t *testing.T) {
		t.Parallel()
		l, _ := newLedger(t)

		var won atomic.Int32
		var wg sync.WaitGroup
		for range 20 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if state, err := l.Claim(ctx, "evt_race", time.Hour); err == nil && state == licensing.ClaimAcquired {
					won.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), won.Load())
	})

	t.Run("server down", func(t *testing.T) {
		t.Parallel()
		l, srv := newLedger(t)
		srv.Close()

		_, err := l.Claim(ctx, "evt_1", time.Hour)
		assert.Error(t, err)
	})
}
