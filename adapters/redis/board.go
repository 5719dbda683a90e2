package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/redis/go-redis/v9"

	"scoreboard/core"
	"scoreboard/rank"
)

const boardKey = "board"

// Board is a rank.Board backed by a Redis sorted set, for deployments where
// the ranked index is shared across nodes. Rank is computed with ZCOUNT over
// an exclusive lower bound, matching the strictly-greater-score rule. Ties
// within a fetched page are re-sorted by ascending actor id; tie order across
// page boundaries follows the sorted set's member ordering.
type Board struct {
	client *redis.Client
}

func NewBoard(client *redis.Client) *Board {
	return &Board{client: client}
}

func (b *Board) Upsert(ctx context.Context, actor core.ActorID, score int64) error {
	err := b.client.ZAdd(ctx, boardKey, redis.Z{Score: float64(score), Member: string(actor)}).Err()
	if err != nil {
		return fmt.Errorf("board upsert: %w", err)
	}
	return nil
}

func (b *Board) Remove(ctx context.Context, actor core.ActorID) error {
	if err := b.client.ZRem(ctx, boardKey, string(actor)).Err(); err != nil {
		return fmt.Errorf("board remove: %w", err)
	}
	return nil
}

func (b *Board) RankOf(ctx context.Context, actor core.ActorID) (int, bool, error) {
	score, err := b.client.ZScore(ctx, boardKey, string(actor)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("board rank: %w", err)
	}
	greater, err := b.client.ZCount(ctx, boardKey, fmt.Sprintf("(%d", int64(score)), "+inf").Result()
	if err != nil {
		return 0, false, fmt.Errorf("board rank: %w", err)
	}
	return int(greater), true, nil
}

func (b *Board) ScoreOf(ctx context.Context, actor core.ActorID) (int64, bool, error) {
	score, err := b.client.ZScore(ctx, boardKey, string(actor)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("board score: %w", err)
	}
	return int64(score), true, nil
}

func (b *Board) TopN(ctx context.Context, n int) ([]rank.Entry, error) {
	if n <= 0 {
		return nil, nil
	}
	zs, err := b.client.ZRevRangeWithScores(ctx, boardKey, 0, int64(n-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("board top: %w", err)
	}
	return sortedEntries(zs), nil
}

func (b *Board) WindowAround(ctx context.Context, actor core.ActorID, radius int) ([]rank.Entry, error) {
	if radius < 0 {
		return nil, nil
	}
	pos, err := b.client.ZRevRank(ctx, boardKey, string(actor)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("board window: %w", err)
	}
	start := pos - int64(radius)
	if start < 0 {
		start = 0
	}
	zs, err := b.client.ZRevRangeWithScores(ctx, boardKey, start, start+int64(2*radius)).Result()
	if err != nil {
		return nil, fmt.Errorf("board window: %w", err)
	}
	return sortedEntries(zs), nil
}

func (b *Board) Count(ctx context.Context) (int, error) {
	n, err := b.client.ZCard(ctx, boardKey).Result()
	if err != nil {
		return 0, fmt.Errorf("board count: %w", err)
	}
	return int(n), nil
}

// sortedEntries converts ZSET members and re-sorts ties by ascending actor id.
func sortedEntries(zs []redis.Z) []rank.Entry {
	out := make([]rank.Entry, 0, len(zs))
	for _, z := range zs {
		actor, _ := z.Member.(string)
		out = append(out, rank.Entry{Actor: core.ActorID(actor), Score: int64(z.Score)})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Actor < out[j].Actor
		}
		return out[i].Score > out[j].Score
	})
	return out
}

var _ rank.Board = (*Board)(nil)
