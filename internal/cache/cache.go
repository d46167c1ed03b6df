// Package cache keeps computed aggregate responses in Redis. Entries are
// keyed by a store generation that every write bumps, so a lookup after a
// completed write can never see a result computed before it.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	generationKey = "readings:generation"
	keyPrefix     = "readings:agg"
)

// Key addresses one cached result. The zero Key means "do not cache".
type Key string

// Cache stores derived results. Implementations never hold source data.
type Cache interface {
	// Lookup decodes the entry for op and params into dest. The returned Key
	// is bound to the generation current at lookup time and must be passed
	// to Store once the result is computed.
	Lookup(ctx context.Context, op, params string, dest any) (Key, bool, error)
	Store(ctx context.Context, key Key, value any) error
	// Invalidate makes every existing entry unreachable.
	Invalidate(ctx context.Context) error
	Close() error
}

// RedisCache is a Cache backed by go-redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Dial connects to addr and checks the connection.
func Dial(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", addr, err)
	}
	return NewRedisCache(client, ttl), nil
}

func (c *RedisCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisCache) Lookup(ctx context.Context, op, params string, dest any) (Key, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return "", false, fmt.Errorf("reading cache generation: %w", err)
	}
	key := Key(fmt.Sprintf("%s:%d:%s:%s", keyPrefix, gen, op, params))

	raw, err := c.client.Get(ctx, string(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return key, false, nil
	}
	if err != nil {
		return key, false, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dest); err != nil {
		return key, false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return key, true, nil
}

func (c *RedisCache) Store(ctx context.Context, key Key, value any) error {
	if key == "" {
		return nil
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	return c.client.Set(ctx, string(key), raw, c.ttl).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, generationKey).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// Noop is the Cache used when no Redis is configured.
type Noop struct{}

func (Noop) Lookup(context.Context, string, string, any) (Key, bool, error) { return "", false, nil }
func (Noop) Store(context.Context, Key, any) error                        { return nil }
func (Noop) Invalidate(context.Context) error                             { return nil }
func (Noop) Close() error                                                 { return nil }
