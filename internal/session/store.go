// Package session persists the working state of a POS terminal session in
// Redis so a cart survives page reloads and process restarts.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-kasir/internal/cart"
	"github.com/noah-isme/backend-kasir/internal/lock"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

// DefaultTTL bounds how long an idle session is kept.
const DefaultTTL = 12 * time.Hour

var (
	// ErrNotFound indicates the session does not exist or expired.
	ErrNotFound = errors.New("session not found")
	// ErrStoreUnavailable is returned when no Redis client is configured.
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// State is everything a terminal keeps between requests.
type State struct {
	ID            string         `json:"id"`
	Cart          cart.Cart      `json:"cart"`
	Customer      *cart.Customer `json:"customer,omitempty"`
	WorkerID      string         `json:"workerId,omitempty"`
	PaymentMethod string         `json:"paymentMethod,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// DefaultLockTTL is the session lock lease. It is renewed while an update
// runs, so it only bounds how long a crashed holder blocks the session.
const DefaultLockTTL = 10 * time.Second

// Store keeps session state as JSON documents in Redis.
type Store struct {
	client  *redis.Client
	ttl     time.Duration
	lockTTL time.Duration
	locker  lock.Locker
	now     func() time.Time
}

// NewStore constructs a store. A non-positive ttl selects DefaultTTL.
func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		client:  client,
		ttl:     ttl,
		lockTTL: DefaultLockTTL,
		locker:  lock.Locker{R: client, RetryBackoff: 10 * time.Millisecond, MaxWait: 5 * time.Second},
		now:     time.Now,
	}
}

// WithLockTTL overrides the session lock lease.
func (s *Store) WithLockTTL(ttl time.Duration) *Store {
	if ttl > 0 {
		s.lockTTL = ttl
	}
	return s
}

// Key returns the tenant-scoped Redis key of a session.
func Key(ctx context.Context, id string) string {
	return tenant.ScopedKey(ctx, "pos:session:"+id)
}

func lockKey(ctx context.Context, id string) string {
	return Key(ctx, id) + ":lock"
}

// Create starts an empty session.
func (s *Store) Create(ctx context.Context) (*State, error) {
	now := s.now().UTC()
	st := &State{ID: uuid.NewString(), CreatedAt: now, UpdatedAt: now}
	if err := s.write(ctx, st); err != nil {
		return nil, err
	}
	return st, nil
}

// Load fetches a session.
func (s *Store) Load(ctx context.Context, id string) (*State, error) {
	if s == nil || s.client == nil {
		return nil, ErrStoreUnavailable
	}
	data, err := s.client.Get(ctx, Key(ctx, id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &st, nil
}

// Update loads a session, applies fn and saves the result while holding a
// per-session lock. When fn fails nothing is written. The save is refused
// with lock.ErrLost if the lock was lost while fn ran, so a stale holder
// never overwrites a newer writer.
func (s *Store) Update(ctx context.Context, id string, fn func(*State) error) (*State, error) {
	if s == nil || s.client == nil {
		return nil, ErrStoreUnavailable
	}
	var out *State
	err := s.locker.WithLock(ctx, lockKey(ctx, id), s.lockTTL, func(ctx context.Context, lease *lock.Lease) error {
		st, err := s.Load(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(st); err != nil {
			return err
		}
		st.UpdatedAt = s.now().UTC()
		data, err := json.Marshal(st)
		if err != nil {
			return fmt.Errorf("encode session: %w", err)
		}
		if err := lease.SetIfHeld(ctx, Key(ctx, id), data, s.ttl); err != nil {
			if errors.Is(context.Cause(ctx), lock.ErrLost) {
				return lock.ErrLost
			}
			return err
		}
		out = st
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Reset empties the cart and selections of an existing session, keeping its id.
func (s *Store) Reset(ctx context.Context, id string) (*State, error) {
	return s.Update(ctx, id, func(st *State) error {
		*st = State{ID: st.ID, CreatedAt: st.CreatedAt}
		return nil
	})
}

// Delete removes a session.
func (s *Store) Delete(ctx context.Context, id string) error {
	if s == nil || s.client == nil {
		return ErrStoreUnavailable
	}
	return s.client.Del(ctx, Key(ctx, id)).Err()
}

func (s *Store) write(ctx context.Context, st *State) error {
	if s == nil || s.client == nil {
		return ErrStoreUnavailable
	}
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return s.client.Set(ctx, Key(ctx, st.ID), data, s.ttl).Err()
}
