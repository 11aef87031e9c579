// Package lock serialises writers of one POS session across API replicas.
// A lock is a Redis key holding a random token with an expiry, so a crashed
// holder cannot wedge the session for longer than the TTL.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-kasir/internal/resilience"
)

var (
	ErrNotConfigured = errors.New("lock: redis client not configured")
	// ErrBusy means another writer held the lock for longer than MaxWait.
	ErrBusy = errors.New("lock: resource busy")
	// ErrLost means the lease expired or was taken over before release.
	ErrLost = errors.New("lock: lease lost")
)

var (
	releaseLease = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0`)
	extendLease = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0`)
	setIfHeld = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
	return 1
end
return 0`)
)

// Locker hands out leases on Redis keys.
type Locker struct {
	R *redis.Client
	// RetryBackoff is the pause between attempts on a held key, jittered
	// by 20%.
	RetryBackoff time.Duration
	// MaxWait bounds the wait for a held key. Zero waits until ctx is done.
	MaxWait time.Duration
}

// Lease is a held lock.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire takes key for ttl, waiting while another holder has it.
func (l Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	if l.R == nil {
		return nil, ErrNotConfigured
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	pause := l.RetryBackoff
	if pause <= 0 {
		pause = 50 * time.Millisecond
	}
	var deadline time.Time
	if l.MaxWait > 0 {
		deadline = time.Now().Add(l.MaxWait)
	}

	lease := &Lease{client: l.R, key: key, token: uuid.NewString()}
	for {
		ok, err := l.R.SetNX(ctx, key, lease.token, ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("lock %s: %w", key, err)
		}
		if ok {
			return lease, nil
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, ErrBusy
		}
		t := time.NewTimer(resilience.Backoff(pause, 1, 0.2))
		select {
		case <-ctx.Done():
			t.Stop()
			return nil, ctx.Err()
		case <-t.C:
		}
	}
}

// Release frees the lease if it is still ours.
func (le *Lease) Release(ctx context.Context) error {
	n, err := releaseLease.Run(ctx, le.client, []string{le.key}, le.token).Int64()
	if err != nil {
		return fmt.Errorf("release %s: %w", le.key, err)
	}
	if n == 0 {
		return ErrLost
	}
	return nil
}

// Extend pushes the expiry to ttl from now if the lease is still ours.
func (le *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	n, err := extendLease.Run(ctx, le.client, []string{le.key}, le.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("extend %s: %w", le.key, err)
	}
	if n == 0 {
		return ErrLost
	}
	return nil
}

// SetIfHeld writes value to key with the given expiry only while the lease
// is still ours. The check and the write are one atomic script, so a holder
// whose lease expired cannot overwrite the next holder's state.
func (le *Lease) SetIfHeld(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	n, err := setIfHeld.Run(ctx, le.client, []string{le.key, key}, le.token, value, ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	if n == 0 {
		return ErrLost
	}
	return nil
}

// WithLock runs fn while holding key. The lease is extended every ttl/3
// until fn returns; if an extension finds the lease gone, fn's context is
// cancelled with ErrLost as its cause. The lease is released when fn
// returns, even if ctx was cancelled meanwhile.
func (l Locker) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(context.Context, *Lease) error) error {
	if fn == nil {
		return errors.New("lock: callback not provided")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	lease, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	defer func() { _ = lease.Release(context.WithoutCancel(ctx)) }()

	held, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		lease.keepAlive(held, ttl, done, cancel)
	}()

	err = fn(held, lease)
	close(done)
	<-stopped
	if errors.Is(context.Cause(held), ErrLost) && !errors.Is(err, ErrLost) && err != nil {
		return fmt.Errorf("%w: %w", ErrLost, err)
	}
	return err
}

func (le *Lease) keepAlive(ctx context.Context, ttl time.Duration, done <-chan struct{}, lost context.CancelCauseFunc) {
	tick := time.NewTicker(max(ttl/3, time.Millisecond))
	defer tick.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-tick.C:
			// Transient Redis errors are retried on the next tick; only a
			// lease that is verifiably gone stops the holder.
			if err := le.Extend(ctx, ttl); errors.Is(err, ErrLost) {
				lost(ErrLost)
				return
			}
		}
	}
}
