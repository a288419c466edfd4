package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ymliu/convo/internal/config"
)

// RedisHistoryCache implements HistoryCache on Redis.
type RedisHistoryCache struct {
	client *redis.Client
	prefix string
}

// NewRedisHistoryCache connects to Redis and returns a history cache.
func NewRedisHistoryCache(cfg config.RedisConfig, prefix string) (*RedisHistoryCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisHistoryCache{
		client: client,
		prefix: prefix,
	}, nil
}

func (c *RedisHistoryCache) BuildKey(roomID uint, skip, limit int) string {
	return fmt.Sprintf("%s:%d:%d:%d", c.prefix, roomID, skip, limit)
}

func (c *RedisHistoryCache) Get(ctx context.Context, key string) (*HistoryPage, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var page HistoryPage
	if err := json.Unmarshal(data, &page); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	return &page, nil
}

func (c *RedisHistoryCache) Set(ctx context.Context, key string, page *HistoryPage, ttl time.Duration) error {
	data, err := json.Marshal(page)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}
	return nil
}

func (c *RedisHistoryCache) Close() error {
	return c.client.Close()
}
