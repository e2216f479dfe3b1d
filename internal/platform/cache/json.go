package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const bumpChannel = "cache.bump"

// JSONCache wraps Redis based caching of JSON payloads with a global version
// used for coarse invalidation. A nil client degrades to pass-through.
type JSONCache struct {
	client     *redis.Client
	ttl        time.Duration
	versionKey string
}

// NewJSONCache instantiates the cache helper. The namespace isolates the
// version counter of independent caches (e.g. "metrics", "sheets").
func NewJSONCache(client *redis.Client, namespace string, ttl time.Duration) *JSONCache {
	return &JSONCache{client: client, ttl: ttl, versionKey: namespace + ":version"}
}

// Version returns the current cache version, initialising when missing.
func (c *JSONCache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, c.versionKey).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, c.versionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, c.versionKey, ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *JSONCache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	if c == nil || c.client == nil {
		return strings.Join(parts, ":"), nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:%d", strings.Join(parts, ":"), ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *JSONCache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("cache: loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if err != redis.Nil {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates the cache by incrementing the version and publishing the
// new value so other processes can follow along.
func (c *JSONCache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, c.versionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, strconv.FormatInt(ver, 10)).Err()
}
