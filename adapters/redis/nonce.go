package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"scoreboard/token"
)

// NonceStore records consumed nonces with SETNX, giving a single atomic
// winner across concurrent validators on any number of nodes.
type NonceStore struct {
	client *redis.Client
}

func NewNonceStore(client *redis.Client) *NonceStore {
	return &NonceStore{client: client}
}

func nonceKey(nonce string) string {
	return "nonce:" + nonce
}

func (s *NonceStore) MarkUsed(ctx context.Context, nonce string, ttl time.Duration) (bool, error) {
	first, err := s.client.SetNX(ctx, nonceKey(nonce), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark nonce used: %w", err)
	}
	return first, nil
}

var _ token.NonceStore = (*NonceStore)(nil)
