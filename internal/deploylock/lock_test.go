package deploylock

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/docpublisher/internal/config"
	"git.home.luguber.info/inful/docpublisher/internal/retry"
)

func fastOptions() Options {
	return Options{
		TTL:     time.Minute,
		Backoff: retry.NewPolicy(config.RetryBackoffFixed, 5*time.Millisecond, 5*time.Millisecond, 0),
	}
}

func newSQLite(t *testing.T, path string) *SQLiteLocker {
	t.Helper()
	l, err := NewSQLiteLocker(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func lockers(t *testing.T) map[string]Locker {
	return map[string]Locker{
		"memory": NewMemoryLocker(),
		"sqlite": newSQLite(t, filepath.Join(t.TempDir(), "locks.db")),
	}
}

func TestTryAcquireExclusive(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ok, err := l.TryAcquire(ctx, "prod", "run-a", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = l.TryAcquire(ctx, "prod", "run-b", time.Minute)
			require.NoError(t, err)
			require.False(t, ok)

			// Other groups are independent.
			ok, err = l.TryAcquire(ctx, "staging", "run-b", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			// Re-entrant for the same holder.
			ok, err = l.TryAcquire(ctx, "prod", "run-a", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)

			// Release by a non-owner is a no-op.
			require.NoError(t, l.Release(ctx, "prod", "run-b"))
			ok, err = l.TryAcquire(ctx, "prod", "run-b", time.Minute)
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, l.Release(ctx, "prod", "run-a"))
			ok, err = l.TryAcquire(ctx, "prod", "run-b", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}

func TestExpiredLeaseIsTakenOver(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ok, err := l.TryAcquire(ctx, "prod", "crashed", -time.Second)
			require.NoError(t, err)
			require.True(t, ok)

			ok, err = l.TryAcquire(ctx, "prod", "run-b", time.Minute)
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}

func TestSQLiteLeaseSharedBetweenHandles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locks.db")
	first := newSQLite(t, path)
	second := newSQLite(t, path)
	ctx := context.Background()

	ok, err := first.TryAcquire(ctx, "prod", "run-a", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = second.TryAcquire(ctx, "prod", "run-b", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	holder, held, err := second.Holder(ctx, "prod")
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, "run-a", holder)
}

func TestAcquireWaitsForRelease(t *testing.T) {
	l := NewMemoryLocker()
	ctx := context.Background()

	first, err := Acquire(ctx, l, "prod", "run-a", fastOptions())
	require.NoError(t, err)

	acquired := make(chan *Lease, 1)
	go func() {
		lease, err := Acquire(ctx, l, "prod", "run-b", fastOptions())
		if err == nil {
			acquired <- lease
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a held lease")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, first.Release())
	select {
	case lease := <-acquired:
		require.NotNil(t, lease)
		require.Equal(t, "run-b", lease.Holder)
		require.Positive(t, lease.Waited)
	case <-time.After(2 * time.Second):
		t.Fatal("waiter never acquired the lease")
	}
}

func TestAcquireGivesUpWhenContextEnds(t *testing.T) {
	l := NewMemoryLocker()
	_, err := Acquire(context.Background(), l, "prod", "run-a", fastOptions())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = Acquire(ctx, l, "prod", "run-b", fastOptions())
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestNewFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Repository.Path = t.TempDir()
	cfg.Publish.Lock = config.LockConfig{Backend: config.LockMemory}
	l, err := New(cfg)
	require.NoError(t, err)
	require.IsType(t, &MemoryLocker{}, l)

	cfg.Publish.Lock = config.LockConfig{Backend: config.LockSQLite, Path: "state/locks.db"}
	l, err = New(cfg)
	require.NoError(t, err)
	require.IsType(t, &SQLiteLocker{}, l)
	require.NoError(t, l.Close())
	require.FileExists(t, filepath.Join(cfg.Repository.Path, "state", "locks.db"))

	opts := OptionsFromConfig(config.LockConfig{Poll: "1s", TTL: "5m"}, nil)
	require.Equal(t, 5*time.Minute, opts.TTL)
	require.Equal(t, time.Second, opts.Backoff.Delay(1))
	require.Equal(t, 8*time.Second, opts.Backoff.Delay(10))
}

func TestHeldLeaseIsRenewedPastItsTTL(t *testing.T) {
	for name, l := range lockers(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			opts := fastOptions()
			opts.TTL = 150 * time.Millisecond

			lease, err := Acquire(ctx, l, "prod", "run-a", opts)
			require.NoError(t, err)

			// a deploy outlasting several TTLs keeps the group
			time.Sleep(4 * opts.TTL)
			ok, err := l.TryAcquire(ctx, "prod", "run-b", opts.TTL)
			require.NoError(t, err)
			require.False(t, ok)

			require.NoError(t, lease.Release())
			require.NoError(t, lease.Release(), "release is idempotent")
			ok, err = l.TryAcquire(ctx, "prod", "run-b", opts.TTL)
			require.NoError(t, err)
			require.True(t, ok)
		})
	}
}
