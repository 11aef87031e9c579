package scan

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/noah-isme/backend-kasir/internal/obs"
	"github.com/noah-isme/backend-kasir/internal/tenant"
)

// Lookup cache defaults.
const (
	DefaultCacheSize = 50
	DefaultCacheTTL  = 5 * time.Minute
)

// LookupCache memoises successful lookups. Entries expire after the TTL and
// the oldest inserted entry is evicted once the cache is full; reads do not
// refresh an entry's position.
type LookupCache[T any] struct {
	lru *expirable.LRU[string, T]
}

// NewLookupCache constructs a cache holding at most size entries for ttl.
func NewLookupCache[T any](size int, ttl time.Duration) *LookupCache[T] {
	if size <= 0 {
		size = DefaultCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &LookupCache[T]{lru: expirable.NewLRU[string, T](size, nil, ttl)}
}

// Get returns the cached value for key.
func (c *LookupCache[T]) Get(key string) (T, bool) {
	return c.lru.Peek(key)
}

// Add stores value under key.
func (c *LookupCache[T]) Add(key string, value T) {
	c.lru.Add(key, value)
}

// Len reports the number of live entries.
func (c *LookupCache[T]) Len() int {
	return c.lru.Len()
}

// Purge drops every entry.
func (c *LookupCache[T]) Purge() {
	c.lru.Purge()
}

// Cached wraps lookup so that successful results are served from cache.
// Keys are namespaced by the tenant carried on the context.
func Cached[T any](cache *LookupCache[T], lookup LookupFunc[T]) LookupFunc[T] {
	return func(ctx context.Context, code string) (T, error) {
		key := code
		if id, ok := tenant.From(ctx); ok {
			key = tenant.PrefixKey(id, code)
		}
		if v, ok := cache.Get(key); ok {
			obs.ObserveLookupCache(true)
			return v, nil
		}
		obs.ObserveLookupCache(false)
		v, err := lookup(ctx, code)
		if err != nil {
			return v, err
		}
		cache.Add(key, v)
		return v, nil
	}
}
