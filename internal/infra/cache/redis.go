package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"souq-backend/internal/domain"
	"souq-backend/internal/infra/metrics"
)

// RedisCache — общий ярус кэша, видимый всем экземплярам процесса.
type RedisCache struct {
	client *redis.Client
}

// NewRedis создаёт кэш.
func NewRedis(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

// Get возвращает значение и продлевает скользящий TTL.
// Отсутствие ключа — domain.ErrCacheMiss.
func (c *RedisCache) Get(ctx context.Context, key string, ttl time.Duration) ([]byte, error) {
	start := time.Now()
	data, err := c.client.GetEx(ctx, key, ttl).Bytes()
	metrics.ObserveNetworkRequest("redis", "cache_getex", "reco", start, err)
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrCacheMiss
	}
	return data, err
}

// Set задаёт значение с TTL.
func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	start := time.Now()
	err := c.client.Set(ctx, key, value, ttl).Err()
	metrics.ObserveNetworkRequest("redis", "cache_set", "reco", start, err)
	return err
}
