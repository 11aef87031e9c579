package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/noah-isme/backend-kasir/internal/tenant"
)

// Cache stores directory lists in Redis under a per-tenant generation.
// Invalidate bumps the generation, which orphans every list of the tenant at
// once; orphans age out with the TTL. A nil Cache disables caching.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func (c *Cache) enabled() bool {
	return c != nil && c.client != nil && c.ttl > 0
}

func generationKey(tenantID string) string {
	return tenant.PrefixKey(tenantID, "directory:gen")
}

func (c *Cache) listKey(ctx context.Context, tenantID, list string) (string, error) {
	gen, err := c.client.Get(ctx, generationKey(tenantID)).Int64()
	if err != nil && !errors.Is(err, redis.Nil) {
		return "", err
	}
	return tenant.PrefixKey(tenantID, "directory:"+strconv.FormatInt(gen, 10)+":"+list), nil
}

// get decodes a cached list into dst and reports whether it was present.
func (c *Cache) get(ctx context.Context, tenantID, list string, dst any) (bool, error) {
	if !c.enabled() {
		return false, nil
	}
	key, err := c.listKey(ctx, tenantID, list)
	if err != nil {
		return false, err
	}
	raw, err := c.client.Get(ctx, key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", list, err)
	}
	return true, nil
}

func (c *Cache) put(ctx context.Context, tenantID, list string, v any) error {
	if !c.enabled() {
		return nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	key, err := c.listKey(ctx, tenantID, list)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, raw, c.ttl).Err()
}

// Invalidate drops every cached list of the tenant on ctx.
func (c *Cache) Invalidate(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	tenantID, _ := tenant.From(ctx)
	return c.client.Incr(ctx, generationKey(tenantID)).Err()
}
