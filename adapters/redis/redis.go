// Package redis backs the cache-shaped collaborators with Redis: the
// consumed-nonce set, the fixed-window rate limiter, a ZSET ranked board,
// and the score/snapshot cache.
//
// Key layout:
//   - nonce:{nonce}        -> "1", TTL = remaining token validity
//   - rl:{actor}|{class}   -> counter, TTL = rate window
//   - board                -> ZSET of actor -> score
//   - score:{actor}        -> int64 current score, short TTL
//   - lbsnap:{query}       -> JSON snapshot, short TTL
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds Redis connection configuration
type Config struct {
	Addr         string        `json:"addr" env:"SCOREBOARD_REDIS_ADDR"`
	Password     string        `json:"password" env:"SCOREBOARD_REDIS_PASSWORD"`
	DB           int           `json:"db" env:"SCOREBOARD_REDIS_DB"`
	PoolSize     int           `json:"pool_size" env:"SCOREBOARD_REDIS_POOL_SIZE"`
	MinIdleConns int           `json:"min_idle_conns" env:"SCOREBOARD_REDIS_MIN_IDLE_CONNS"`
	DialTimeout  time.Duration `json:"dial_timeout" env:"SCOREBOARD_REDIS_DIAL_TIMEOUT"`
	ReadTimeout  time.Duration `json:"read_timeout" env:"SCOREBOARD_REDIS_READ_TIMEOUT"`
	WriteTimeout time.Duration `json:"write_timeout" env:"SCOREBOARD_REDIS_WRITE_TIMEOUT"`
}

// DefaultConfig returns sensible defaults for Redis configuration
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	}
}

// Connect opens a client with the provided configuration and verifies the
// connection with a ping.
func Connect(config Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         config.Addr,
		Password:     config.Password,
		DB:           config.DB,
		PoolSize:     config.PoolSize,
		MinIdleConns: config.MinIdleConns,
		DialTimeout:  config.DialTimeout,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}
