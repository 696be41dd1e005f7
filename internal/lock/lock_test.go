package lock

import (
	"context"
	"errors"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLocal(t *testing.T) {
	ctx := context.Background()
	l := NewLocal()

	unlock, err := l.Lock(ctx, "ws-1")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "ws-1")
	require.ErrorIs(t, err, ErrLocked)

	other, err := l.Lock(ctx, "ws-2")
	require.NoError(t, err, "keys are independent")
	require.NoError(t, other(ctx))

	require.NoError(t, unlock(ctx))
	require.NoError(t, unlock(ctx), "unlock is idempotent")

	again, err := l.Lock(ctx, "ws-1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedis(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	l := NewRedis(client, "wshealth-test:", time.Minute, nil)

	unlock, err := l.Lock(ctx, "ws-1")
	require.NoError(t, err)

	_, err = l.Lock(ctx, "ws-1")
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, unlock(ctx))

	again, err := l.Lock(ctx, "ws-1")
	require.NoError(t, err)
	require.NoError(t, again(ctx))
}

func TestRedisRenewsHeldLock(t *testing.T) {
	addr := os.Getenv("REDIS_TEST_ADDR")
	if addr == "" {
		t.Skip("REDIS_TEST_ADDR not set")
	}

	ctx := context.Background()
	client, err := NewRedisClient(ctx, addr, "", 0)
	require.NoError(t, err)
	defer client.Close()

	l := NewRedis(client, "wshealth-test:", 300*time.Millisecond, nil)

	unlock, err := l.Lock(ctx, "ws-renew")
	require.NoError(t, err)

	time.Sleep(time.Second)
	_, err = l.Lock(ctx, "ws-renew")
	require.ErrorIs(t, err, ErrLocked, "a held lock outlives its ttl")

	require.NoError(t, unlock(ctx))
	exists, err := client.Exists(ctx, "wshealth-test:ws-renew").Result()
	require.NoError(t, err)
	require.Zero(t, exists)
}

func TestKeepAlive(t *testing.T) {
	t.Run("extends until done", func(t *testing.T) {
		var calls atomic.Int32
		done := make(chan struct{})
		result := make(chan error, 1)
		go func() {
			result <- keepAlive(context.Background(), 5*time.Millisecond, done, func(context.Context) (bool, error) {
				calls.Add(1)
				return true, nil
			})
		}()

		require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
		close(done)
		require.NoError(t, <-result)
	})

	t.Run("stops when the lock is lost", func(t *testing.T) {
		err := keepAlive(context.Background(), time.Millisecond, make(chan struct{}), func(context.Context) (bool, error) {
			return false, nil
		})
		require.ErrorIs(t, err, errLockLost)
	})

	t.Run("stops on extend error", func(t *testing.T) {
		boom := errors.New("connection refused")
		err := keepAlive(context.Background(), time.Millisecond, make(chan struct{}), func(context.Context) (bool, error) {
			return false, boom
		})
		require.ErrorIs(t, err, boom)
	})

	t.Run("stops with the context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := keepAlive(ctx, time.Hour, make(chan struct{}), func(context.Context) (bool, error) {
			t.Fatal("extend called after cancel")
			return false, nil
		})
		require.NoError(t, err)
	})
}
