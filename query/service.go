// Package query serves read-only leaderboard views over the ranked board,
// fronted by a short-TTL snapshot cache. The pipeline invalidates the cache
// on every successful mutation, so staleness never exceeds the TTL.
package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"scoreboard/core"
	"scoreboard/engine"
	"scoreboard/rank"
)

// DefaultTTL bounds snapshot staleness.
const DefaultTTL = 30 * time.Second

// Snapshot is a cached, time-boxed view of the top of the leaderboard.
type Snapshot struct {
	Entries []rank.Entry `json:"entries"`
	Total   int          `json:"total"`
	TakenAt time.Time    `json:"taken_at"`
}

// Position locates one actor on the leaderboard.
type Position struct {
	Actor core.ActorID `json:"actor_id"`
	Rank  int          `json:"rank"`
	Score int64        `json:"score"`
	Total int          `json:"total"`
}

// Stats aggregates the whole board.
type Stats struct {
	Total  int     `json:"total"`
	Max    int64   `json:"max"`
	Mean   float64 `json:"mean"`
	Median float64 `json:"median"`
}

// ErrUnknownActor is returned when an actor has no ranked score.
var ErrUnknownActor = fmt.Errorf("actor not ranked")

// Service answers leaderboard reads.
type Service struct {
	board rank.Board
	cache engine.Cache
	ttl   time.Duration
	log   *slog.Logger
}

func NewService(board rank.Board, cache engine.Cache, ttl time.Duration, log *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{board: board, cache: cache, ttl: ttl, log: log}
}

// TopUsers returns the top n entries plus the total actor count,
// cache-first keyed by query shape.
func (s *Service) TopUsers(ctx context.Context, n int) (Snapshot, error) {
	if n <= 0 {
		return Snapshot{}, fmt.Errorf("limit must be positive")
	}
	key := fmt.Sprintf("top:%d", n)
	if snap, ok := s.cachedSnapshot(ctx, key); ok {
		return snap, nil
	}

	entries, err := s.board.TopN(ctx, n)
	if err != nil {
		return Snapshot{}, fmt.Errorf("top users: %w", err)
	}
	total, err := s.board.Count(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("top users: %w", err)
	}
	snap := Snapshot{Entries: entries, Total: total, TakenAt: time.Now().UTC()}
	s.storeSnapshot(ctx, key, snap)
	return snap, nil
}

// PositionOf returns the actor's rank, score, and the board's total size.
func (s *Service) PositionOf(ctx context.Context, actor core.ActorID) (Position, error) {
	actor, err := core.NormalizeActorID(actor)
	if err != nil {
		return Position{}, err
	}
	r, ok, err := s.board.RankOf(ctx, actor)
	if err != nil {
		return Position{}, fmt.Errorf("position: %w", err)
	}
	if !ok {
		return Position{}, ErrUnknownActor
	}
	score, _, err := s.board.ScoreOf(ctx, actor)
	if err != nil {
		return Position{}, fmt.Errorf("position: %w", err)
	}
	total, err := s.board.Count(ctx)
	if err != nil {
		return Position{}, fmt.Errorf("position: %w", err)
	}
	return Position{Actor: actor, Rank: r, Score: score, Total: total}, nil
}

// Around returns the entries surrounding the actor's position.
func (s *Service) Around(ctx context.Context, actor core.ActorID, radius int) ([]rank.Entry, error) {
	actor, err := core.NormalizeActorID(actor)
	if err != nil {
		return nil, err
	}
	entries, err := s.board.WindowAround(ctx, actor, radius)
	if err != nil {
		return nil, fmt.Errorf("around: %w", err)
	}
	return entries, nil
}

// Stats aggregates every score on the board, cache-first.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	const key = "stats"
	if data, ok, err := s.cache.GetSnapshot(ctx, key); err == nil && ok {
		var st Stats
		if err := json.Unmarshal(data, &st); err == nil {
			return st, nil
		}
	}

	total, err := s.board.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}
	if total == 0 {
		return Stats{}, nil
	}
	entries, err := s.board.TopN(ctx, total)
	if err != nil {
		return Stats{}, fmt.Errorf("stats: %w", err)
	}

	st := Stats{Total: total}
	var sum int64
	for _, e := range entries {
		sum += e.Score
	}
	st.Max = entries[0].Score
	st.Mean = float64(sum) / float64(len(entries))
	// entries are already score-descending
	mid := len(entries) / 2
	if len(entries)%2 == 1 {
		st.Median = float64(entries[mid].Score)
	} else {
		st.Median = float64(entries[mid-1].Score+entries[mid].Score) / 2
	}

	if data, err := json.Marshal(st); err == nil {
		if err := s.cache.SetSnapshot(ctx, key, data, s.ttl); err != nil {
			s.log.Warn("stats snapshot cache set failed", "error", err)
		}
	}
	return st, nil
}

func (s *Service) cachedSnapshot(ctx context.Context, key string) (Snapshot, bool) {
	data, ok, err := s.cache.GetSnapshot(ctx, key)
	if err != nil {
		s.log.Warn("snapshot cache read failed", "key", key, "error", err)
		return Snapshot{}, false
	}
	if !ok {
		return Snapshot{}, false
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return Snapshot{}, false
	}
	return snap, true
}

func (s *Service) storeSnapshot(ctx context.Context, key string, snap Snapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := s.cache.SetSnapshot(ctx, key, data, s.ttl); err != nil {
		s.log.Warn("snapshot cache set failed", "key", key, "error", err)
	}
}
