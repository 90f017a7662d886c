package connector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// FetchFunc loads a profile from the session server on a cache miss.
type FetchFunc func(ctx context.Context) (*Profile, error)

// ProfileCache stores verified profiles keyed by undashed UUID. Entries
// never expire; failed fetches are not stored.
type ProfileCache interface {
	GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (*Profile, error)
	Clear(ctx context.Context) error
	ItemCount(ctx context.Context) (int, error)
}

// MemoryProfileCache keeps profiles in process memory. Concurrent misses for
// the same key share a single fetch.
type MemoryProfileCache struct {
	cache *cache.Cache
	group singleflight.Group
}

// NewMemoryProfileCache creates an empty in-memory profile cache.
func NewMemoryProfileCache() *MemoryProfileCache {
	return &MemoryProfileCache{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

// GetOrFetch returns the cached profile for key or runs fetch once for all
// concurrent callers.
func (c *MemoryProfileCache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (*Profile, error) {
	if v, found := c.cache.Get(key); found {
		return v.(*Profile), nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		// Another caller may have filled the entry while we waited.
		if v, found := c.cache.Get(key); found {
			return v, nil
		}
		profile, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.cache.Set(key, profile, cache.NoExpiration)
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Profile), nil
}

// Clear removes every cached profile.
func (c *MemoryProfileCache) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.cache.Flush()
	return nil
}

// ItemCount returns the number of cached profiles.
func (c *MemoryProfileCache) ItemCount(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return c.cache.ItemCount(), nil
}

// RedisProfileCache shares profiles between server instances through Redis.
// Values are JSON documents stored under prefix+key without a TTL.
type RedisProfileCache struct {
	client *redis.Client
	prefix string
	group  singleflight.Group
}

// NewRedisProfileCache wraps an existing Redis client.
func NewRedisProfileCache(client *redis.Client, prefix string) *RedisProfileCache {
	return &RedisProfileCache{client: client, prefix: prefix}
}

// GetOrFetch returns the profile stored in Redis or fetches and stores it.
func (c *RedisProfileCache) GetOrFetch(ctx context.Context, key string, fetch FetchFunc) (*Profile, error) {
	fullKey := c.prefix + key

	if profile, err := c.get(ctx, fullKey); err != nil || profile != nil {
		return profile, err
	}

	v, err, _ := c.group.Do(fullKey, func() (interface{}, error) {
		profile, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(profile)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal profile: %w", err)
		}
		if err := c.client.Set(ctx, fullKey, data, 0).Err(); err != nil {
			return nil, fmt.Errorf("failed to cache profile: %w", err)
		}
		return profile, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Profile), nil
}

// get returns nil, nil on a cache miss.
func (c *RedisProfileCache) get(ctx context.Context, fullKey string) (*Profile, error) {
	val, err := c.client.Get(ctx, fullKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get error: %w", err)
	}

	var profile Profile
	if err := json.Unmarshal(val, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached profile: %w", err)
	}
	return &profile, nil
}

// Clear deletes every key under the cache prefix.
func (c *RedisProfileCache) Clear(ctx context.Context) error {
	keys, err := c.keys(ctx)
	if err != nil {
		return err
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// ItemCount returns the number of keys under the cache prefix.
func (c *RedisProfileCache) ItemCount(ctx context.Context) (int, error) {
	keys, err := c.keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (c *RedisProfileCache) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan keys: %w", err)
	}
	return keys, nil
}
