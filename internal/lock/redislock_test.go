package lock_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/backend-kasir/internal/lock"
)

func newClient(t *testing.T) *redis.Client {
	client, _ := newServer(t)
	return client
}

func newServer(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestWithLockSerialises(t *testing.T) {
	locker := lock.Locker{R: newClient(t), RetryBackoff: 5 * time.Millisecond}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	var order []string
	var mu sync.Mutex
	firstDone := make(chan struct{})
	releaseFirst := make(chan struct{})
	errs := make(chan error, 2)

	go func() {
		errs <- locker.WithLock(ctx, "pos:session:1:lock", time.Second, func(context.Context, *lock.Lease) error {
			mu.Lock()
			order = append(order, "first")
			mu.Unlock()
			close(firstDone)
			<-releaseFirst
			return nil
		})
	}()

	<-firstDone

	go func() {
		errs <- locker.WithLock(ctx, "pos:session:1:lock", time.Second, func(context.Context, *lock.Lease) error {
			mu.Lock()
			order = append(order, "second")
			mu.Unlock()
			return nil
		})
	}()

	close(releaseFirst)
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []string{"first", "second"}, order)
}

func TestWithLockBusy(t *testing.T) {
	client := newClient(t)
	require.NoError(t, client.Set(context.Background(), "held", "other", time.Minute).Err())

	locker := lock.Locker{R: client, RetryBackoff: 5 * time.Millisecond, MaxWait: 30 * time.Millisecond}
	called := false
	err := locker.WithLock(context.Background(), "held", time.Second, func(context.Context, *lock.Lease) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, lock.ErrBusy)
	require.False(t, called)

	val, err := client.Get(context.Background(), "held").Result()
	require.NoError(t, err)
	require.Equal(t, "other", val)
}

func TestWithLockNotConfigured(t *testing.T) {
	err := lock.Locker{}.WithLock(context.Background(), "k", time.Second, func(context.Context, *lock.Lease) error { return nil })
	require.ErrorIs(t, err, lock.ErrNotConfigured)
}

func TestLeaseExtendAndRelease(t *testing.T) {
	client, mr := newServer(t)
	ctx := context.Background()
	locker := lock.Locker{R: client}

	lease, err := locker.Acquire(ctx, "pos:session:7:lock", time.Second)
	require.NoError(t, err)
	require.NoError(t, lease.Extend(ctx, time.Minute))
	require.Equal(t, time.Minute, mr.TTL("pos:session:7:lock"))

	require.NoError(t, lease.Release(ctx))
	require.False(t, mr.Exists("pos:session:7:lock"))
	require.ErrorIs(t, lease.Release(ctx), lock.ErrLost)
}

func TestExpiredLeaseIsNotReleasedByOldHolder(t *testing.T) {
	client, mr := newServer(t)
	ctx := context.Background()
	locker := lock.Locker{R: client, MaxWait: 10 * time.Millisecond}

	stale, err := locker.Acquire(ctx, "pos:session:8:lock", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	fresh, err := locker.Acquire(ctx, "pos:session:8:lock", time.Second)
	require.NoError(t, err)

	require.ErrorIs(t, stale.Release(ctx), lock.ErrLost)
	require.ErrorIs(t, stale.Extend(ctx, time.Minute), lock.ErrLost)
	require.True(t, mr.Exists("pos:session:8:lock"), "the new holder keeps its lease")
	require.NoError(t, fresh.Release(ctx))
}

func TestWithLockKeepsLeaseAlive(t *testing.T) {
	client, mr := newServer(t)
	locker := lock.Locker{R: client}
	const key = "pos:session:9:lock"

	err := locker.WithLock(context.Background(), key, 300*time.Millisecond, func(ctx context.Context, _ *lock.Lease) error {
		mr.FastForward(250 * time.Millisecond)
		require.Eventually(t, func() bool { return mr.TTL(key) == 300*time.Millisecond }, time.Second, 5*time.Millisecond)
		return ctx.Err()
	})
	require.NoError(t, err)
	require.False(t, mr.Exists(key))
}

func TestWithLockCancelsWorkWhenLeaseIsLost(t *testing.T) {
	client, mr := newServer(t)
	locker := lock.Locker{R: client}
	const key = "pos:session:10:lock"

	err := locker.WithLock(context.Background(), key, 60*time.Millisecond, func(ctx context.Context, _ *lock.Lease) error {
		require.NoError(t, mr.Set(key, "other"))
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
			return errors.New("lease loss not noticed")
		}
		require.ErrorIs(t, context.Cause(ctx), lock.ErrLost)
		return context.Cause(ctx)
	})
	require.ErrorIs(t, err, lock.ErrLost)

	val, err := mr.Get(key)
	require.NoError(t, err)
	require.Equal(t, "other", val)
}

func TestSetIfHeldRefusesStaleLease(t *testing.T) {
	client, mr := newServer(t)
	ctx := context.Background()
	locker := lock.Locker{R: client, MaxWait: 10 * time.Millisecond}

	stale, err := locker.Acquire(ctx, "pos:session:11:lock", time.Second)
	require.NoError(t, err)
	require.NoError(t, stale.SetIfHeld(ctx, "pos:session:11", []byte("v1"), time.Minute))
	got, err := mr.Get("pos:session:11")
	require.NoError(t, err)
	require.Equal(t, "v1", got)

	mr.FastForward(2 * time.Second)
	fresh, err := locker.Acquire(ctx, "pos:session:11:lock", time.Second)
	require.NoError(t, err)
	defer func() { _ = fresh.Release(ctx) }()

	require.ErrorIs(t, stale.SetIfHeld(ctx, "pos:session:11", []byte("v2"), time.Minute), lock.ErrLost)
	got, err = mr.Get("pos:session:11")
	require.NoError(t, err)
	require.Equal(t, "v1", got)
}
