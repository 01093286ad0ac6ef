package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"sentiment-backend/internal/core/types"
)

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(redisURL string, ttl time.Duration) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

func (c *RedisCache) Get(ctx context.Context, key string) (types.Prediction, error) {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return types.Prediction{}, ErrMiss
		}
		return types.Prediction{}, fmt.Errorf("redis get failed: %w", err)
	}

	var pred types.Prediction
	if err := json.Unmarshal(data, &pred); err != nil {
		return types.Prediction{}, fmt.Errorf("invalid cached prediction: %w", err)
	}
	return pred, nil
}

func (c *RedisCache) Put(ctx context.Context, key string, pred types.Prediction) error {
	data, err := json.Marshal(pred)
	if err != nil {
		return fmt.Errorf("could not marshal prediction: %w", err)
	}

	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
