package query

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoreboard/adapters/memory"
	"scoreboard/core"
	"scoreboard/rank"
)

func newTestService(t *testing.T) (*Service, *rank.SkipList, *memory.Cache) {
	t.Helper()
	board := rank.NewSkipList()
	cache := memory.NewCache()
	return NewService(board, cache, time.Minute, nil), board, cache
}

func seed(t *testing.T, board *rank.SkipList, scores map[core.ActorID]int64) {
	t.Helper()
	for actor, score := range scores {
		require.NoError(t, board.Upsert(context.Background(), actor, score))
	}
}

func TestTopUsers(t *testing.T) {
	svc, board, _ := newTestService(t)
	seed(t, board, map[core.ActorID]int64{"a": 30, "b": 20, "c": 10})
	ctx := context.Background()

	snap, err := svc.TopUsers(ctx, 2)
	require.NoError(t, err)
	require.Len(t, snap.Entries, 2)
	assert.Equal(t, core.ActorID("a"), snap.Entries[0].Actor)
	assert.Equal(t, core.ActorID("b"), snap.Entries[1].Actor)
	assert.Equal(t, 3, snap.Total)
	assert.False(t, snap.TakenAt.IsZero())

	_, err = svc.TopUsers(ctx, 0)
	assert.Error(t, err)
}

func TestTopUsersServedFromCacheUntilInvalidated(t *testing.T) {
	svc, board, cache := newTestService(t)
	seed(t, board, map[core.ActorID]int64{"a": 30})
	ctx := context.Background()

	snap1, err := svc.TopUsers(ctx, 10)
	require.NoError(t, err)

	// A board change without invalidation is hidden by the cache.
	require.NoError(t, board.Upsert(ctx, "b", 99))
	snap2, err := svc.TopUsers(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, snap1.Entries, snap2.Entries)

	// After invalidation (what the pipeline does on mutation) the change shows.
	require.NoError(t, cache.InvalidateSnapshots(ctx))
	snap3, err := svc.TopUsers(ctx, 10)
	require.NoError(t, err)
	require.Len(t, snap3.Entries, 2)
	assert.Equal(t, core.ActorID("b"), snap3.Entries[0].Actor)
}

func TestPositionOf(t *testing.T) {
	svc, board, _ := newTestService(t)
	seed(t, board, map[core.ActorID]int64{"a": 30, "b": 20, "c": 10})
	ctx := context.Background()

	pos, err := svc.PositionOf(ctx, "B")
	require.NoError(t, err)
	assert.Equal(t, core.ActorID("b"), pos.Actor)
	assert.Equal(t, 1, pos.Rank)
	assert.Equal(t, int64(20), pos.Score)
	assert.Equal(t, 3, pos.Total)

	_, err = svc.PositionOf(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUnknownActor)
}

func TestAround(t *testing.T) {
	svc, board, _ := newTestService(t)
	seed(t, board, map[core.ActorID]int64{"a": 50, "b": 40, "c": 30, "d": 20, "e": 10})
	ctx := context.Background()

	win, err := svc.Around(ctx, "c", 1)
	require.NoError(t, err)
	require.Len(t, win, 3)
	assert.Equal(t, core.ActorID("b"), win[0].Actor)
	assert.Equal(t, core.ActorID("c"), win[1].Actor)
	assert.Equal(t, core.ActorID("d"), win[2].Actor)
}

func TestStats(t *testing.T) {
	svc, board, _ := newTestService(t)
	ctx := context.Background()

	st, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{}, st)

	seed(t, board, map[core.ActorID]int64{"a": 10, "b": 20, "c": 30, "d": 40})
	st, err = svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, int64(40), st.Max)
	assert.InDelta(t, 25.0, st.Mean, 0.001)
	assert.InDelta(t, 25.0, st.Median, 0.001)
}
