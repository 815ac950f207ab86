package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"caixa/backend/internal/domain"
)

const generationKey = "caixa:recon:generation"

type RedisReconciliationCache struct {
	client *redis.Client
}

// NewRedisReconciliationCache accepts a redis:// or rediss:// URL.
func NewRedisReconciliationCache(url string) (*RedisReconciliationCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return &RedisReconciliationCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisReconciliationCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReconciliationCache) Close() error {
	return c.client.Close()
}

func (c *RedisReconciliationCache) Get(ctx context.Context, key string) (*domain.Reconciliation, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var rec domain.Reconciliation
	if err := json.Unmarshal(val, &rec); err != nil {
		return nil, false, err
	}
	return &rec, true, nil
}

func (c *RedisReconciliationCache) Set(ctx context.Context, key string, value *domain.Reconciliation, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisReconciliationCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *RedisReconciliationCache) Bump(ctx context.Context) error {
	return c.client.Incr(ctx, generationKey).Err()
}
