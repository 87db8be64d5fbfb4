package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"marketsim/internal/domain"
	"marketsim/internal/port"
)

var _ port.DepthCache = (*RedisCache)(nil)

// RedisCache publishes the latest depth snapshot so observers outside the
// process can watch a run without touching the engine.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(addr, password string, db int, ttl time.Duration) *RedisCache {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisCache{client: rdb, ttl: ttl}
}

func key(runID string) string { return "depth:" + runID }

func (c *RedisCache) SetDepth(ctx context.Context, runID string, snap *domain.DepthSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(runID), b, c.ttl).Err()
}

func (c *RedisCache) GetDepth(ctx context.Context, runID string) (*domain.DepthSnapshot, error) {
	b, err := c.client.Get(ctx, key(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var snap domain.DepthSnapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, runID string) error {
	return c.client.Del(ctx, key(runID)).Err()
}
