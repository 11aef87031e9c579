package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-kasir/internal/tenant"
)

// slidingWindow trims entries older than the window and records the call
// only when there is budget left, so rejected scans do not extend a
// terminal's lockout. Scores are Unix milliseconds.
var slidingWindow = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
local count = redis.call('ZCARD', key)
local allowed = 0
if count < limit then
	redis.call('ZADD', key, now, ARGV[4])
	count = count + 1
	allowed = 1
end
local reset = now + window
local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
if oldest[2] then
	reset = tonumber(oldest[2]) + window
end
redis.call('PEXPIRE', key, window)
return {allowed, limit - count, reset}
`)

// Decision is the outcome of one Allow call.
type Decision struct {
	Allowed   bool
	Remaining int
	// ResetAt is when the oldest counted call leaves the window.
	ResetAt time.Time
}

// RetryAfter is the whole seconds until ResetAt, never negative.
func (d Decision) RetryAfter(now time.Time) int {
	secs := d.ResetAt.Sub(now).Seconds()
	if secs <= 0 {
		return 0
	}
	return int(secs + 0.999)
}

// Limiter is a sliding window log kept in a Redis sorted set per key.
type Limiter struct {
	Client *redis.Client
	Prefix string
	Now    func() time.Time
}

func (l Limiter) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now()
}

// Allow counts one call against key. Keys are namespaced by the tenant on
// ctx. A nil client or a non-positive limit disables limiting.
func (l Limiter) Allow(ctx context.Context, key string, window time.Duration, limit int) (Decision, error) {
	now := l.now()
	if l.Client == nil || limit <= 0 || window <= 0 {
		return Decision{Allowed: true, Remaining: max(limit, 0), ResetAt: now.Add(window)}, nil
	}

	tenantID, _ := tenant.From(ctx)
	redisKey := l.Prefix + tenant.PrefixKey(tenantID, key)
	res, err := slidingWindow.Run(ctx, l.Client, []string{redisKey},
		now.UnixMilli(), window.Milliseconds(), limit, uuid.NewString()).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("ratelimit: %w", err)
	}
	if len(res) != 3 {
		return Decision{}, fmt.Errorf("ratelimit: unexpected script reply %v", res)
	}
	return Decision{
		Allowed:   res[0] == 1,
		Remaining: max(int(res[1]), 0),
		ResetAt:   time.UnixMilli(res[2]).UTC(),
	}, nil
}
