package taskstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultRedisKeyPrefix = "onetask:tasks:"

// RedisCache shares collection snapshots between processes through Redis.
// Redis expiry only reclaims space; validity is still judged by CapturedAt.
type RedisCache struct {
	client *redis.Client
	prefix string
	expiry time.Duration
}

// NewRedisCache creates a Redis backed cache. expiry <= 0 keeps keys until invalidated.
func NewRedisCache(client *redis.Client, expiry time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		prefix: defaultRedisKeyPrefix,
		expiry: expiry,
	}
}

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

func (c *RedisCache) key(userID uuid.UUID) string {
	return c.prefix + userID.String()
}

func (c *RedisCache) Get(ctx context.Context, userID uuid.UUID) (*Entry, error) {
	data, err := c.client.Get(ctx, c.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("failed to decode cache entry: %w", err)
	}
	return &entry, nil
}

func (c *RedisCache) Put(ctx context.Context, userID uuid.UUID, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}
	expiry := c.expiry
	if expiry < 0 {
		expiry = 0
	}
	if err := c.client.Set(ctx, c.key(userID), data, expiry).Err(); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

func (c *RedisCache) Invalidate(ctx context.Context, userID uuid.UUID) error {
	if err := c.client.Del(ctx, c.key(userID)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate cache entry: %w", err)
	}
	return nil
}
