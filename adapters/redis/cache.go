package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scoreboard/core"
	"scoreboard/engine"
)

// Cache implements engine.Cache over plain keys with TTLs.
type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func scoreKey(actor core.ActorID) string {
	return "score:" + string(actor)
}

func snapshotKey(key string) string {
	return "lbsnap:" + key
}

func (c *Cache) GetScore(ctx context.Context, actor core.ActorID) (int64, bool, error) {
	score, err := c.client.Get(ctx, scoreKey(actor)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("cache get score: %w", err)
	}
	return score, true, nil
}

func (c *Cache) SetScore(ctx context.Context, actor core.ActorID, score int64, ttl time.Duration) error {
	if err := c.client.Set(ctx, scoreKey(actor), score, ttl).Err(); err != nil {
		return fmt.Errorf("cache set score: %w", err)
	}
	return nil
}

func (c *Cache) GetSnapshot(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := c.client.Get(ctx, snapshotKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get snapshot: %w", err)
	}
	return data, true, nil
}

func (c *Cache) SetSnapshot(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, snapshotKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("cache set snapshot: %w", err)
	}
	return nil
}

func (c *Cache) InvalidateSnapshots(ctx context.Context) error {
	keys, err := c.client.Keys(ctx, snapshotKey("*")).Result()
	if err != nil {
		return fmt.Errorf("cache invalidate snapshots: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("cache invalidate snapshots: %w", err)
	}
	return nil
}

var _ engine.Cache = (*Cache)(nil)
