package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/storefront/internal/authz"
)

const cachePrefix = "storefront:content"

// Cache is a read-through Redis cache with one version counter per section.
// Writes bump the counter so stale keys simply stop being read and expire.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper. A nil client disables caching.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Cache{client: client, ttl: ttl}
}

func versionKey(kind authz.Resource) string {
	return cachePrefix + ":" + kind.String() + ":version"
}

// Version returns the current version of kind, initialising when missing.
func (c *Cache) Version(ctx context.Context, kind authz.Resource) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(kind)).Int64()
	if errors.Is(err, redis.Nil) {
		// SETNX so concurrent initialisers never reset a bumped counter.
		if err := c.client.SetNX(ctx, versionKey(kind), 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, versionKey(kind)).Int64()
	}
	return ver, err
}

// BuildKey composes a versioned key for kind.
func (c *Cache) BuildKey(ctx context.Context, kind authz.Resource, parts ...string) (string, error) {
	ver, err := c.Version(ctx, kind)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%s:%d:%s", cachePrefix, kind, ver, strings.Join(parts, ":")), nil
}

// FetchJSON loads a cached value into dest or populates it with loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			return err
		}
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates every cached read of kind.
func (c *Cache) Bump(ctx context.Context, kind authz.Resource) error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Incr(ctx, versionKey(kind)).Err()
}
