package runlock

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client, mr
}

func TestRunLock_AcquireRelease(t *testing.T) {
	client, _ := newTestClient(t)
	logger := slog.Default()

	lock := New(client, "chainboot:run:bundleA", DefaultConfig(), logger)

	ok, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, lock.IsAcquired())

	require.NoError(t, lock.Release(context.Background()))
	require.False(t, lock.IsAcquired())
}

func TestRunLock_SecondHolderBlocked(t *testing.T) {
	client, _ := newTestClient(t)
	logger := slog.Default()
	cfg := DefaultConfig()

	first := New(client, "chainboot:run:bundleB", cfg, logger)
	ok, err := first.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	second := New(client, "chainboot:run:bundleB", cfg, logger)
	ok, err = second.AcquireWithRetry(context.Background(), 1)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, first.Release(context.Background()))
}

func TestRunLock_ReleaseDoesNotStealOtherHolder(t *testing.T) {
	client, mr := newTestClient(t)
	logger := slog.Default()
	cfg := DefaultConfig()

	first := New(client, "chainboot:run:bundleC", cfg, logger)
	ok, err := first.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(cfg.TTL + time.Second)

	second := New(client, "chainboot:run:bundleC", cfg, logger)
	ok, err = second.Acquire(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	// first's release must not remove second's lock since the value no
	// longer matches.
	require.NoError(t, first.Release(context.Background()))
	require.True(t, second.IsAcquired())
}

func TestManager_AcquireForBundle(t *testing.T) {
	client, _ := newTestClient(t)
	logger := slog.Default()

	mgr := NewManager(client, DefaultConfig(), logger)

	_, err := mgr.AcquireForBundle(context.Background(), "bundleD")
	require.NoError(t, err)

	_, err = mgr.AcquireForBundle(context.Background(), "bundleD")
	require.Error(t, err)

	require.NoError(t, mgr.ReleaseAll(context.Background()))
}
