package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/songzhibin97/walletopt/internal/models"
)

const keyPrefix = "walletopt:recommendation:"

// RedisStore shares cached responses between replicas. Size is bounded by
// the server's maxmemory policy; entries expire after ttl.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (r *RedisStore) Name() string { return "redis" }

func (r *RedisStore) Get(ctx context.Context, key string) (*models.OptimizationResponse, bool, error) {
	b, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}

	var resp models.OptimizationResponse
	if err := json.Unmarshal(b, &resp); err != nil {
		return nil, false, fmt.Errorf("decode cached response: %w", err)
	}
	return &resp, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key string, resp *models.OptimizationResponse) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("encode response: %w", err)
	}
	if err := r.client.Set(ctx, keyPrefix+key, b, r.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
