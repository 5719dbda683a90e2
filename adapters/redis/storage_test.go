package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoreboard/core"
	"scoreboard/rank"
)

// newTestClient spins up a miniredis server and returns a client plus cleanup.
func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestNonceStoreSingleWinner(t *testing.T) {
	client, _ := newTestClient(t)
	store := NewNonceStore(client)
	ctx := context.Background()

	const attempts = 16
	var wg sync.WaitGroup
	var winners int64
	var mu sync.Mutex
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			first, err := store.MarkUsed(ctx, "nonce-1", time.Minute)
			require.NoError(t, err)
			if first {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1), winners)
}

func TestNonceStoreExpiry(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewNonceStore(client)
	ctx := context.Background()

	first, err := store.MarkUsed(ctx, "n1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)

	first, err = store.MarkUsed(ctx, "n1", time.Minute)
	require.NoError(t, err)
	assert.False(t, first)

	mr.FastForward(2 * time.Minute)
	first, err = store.MarkUsed(ctx, "n1", time.Minute)
	require.NoError(t, err)
	assert.True(t, first)
}

func TestLimiterFixedWindow(t *testing.T) {
	client, mr := newTestClient(t)
	lim := NewLimiter(client, 10, time.Minute)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		remaining, allowed, err := lim.Check(ctx, "u1", core.ActionBonusCollect)
		require.NoError(t, err)
		require.True(t, allowed, "request %d", i+1)
		assert.Equal(t, 9-i, remaining)
	}
	_, allowed, err := lim.Check(ctx, "u1", core.ActionBonusCollect)
	require.NoError(t, err)
	assert.False(t, allowed)

	// Denial does not consume: the count stays at the max, so expiry still
	// opens a fresh window.
	mr.FastForward(61 * time.Second)
	remaining, allowed, err := lim.Check(ctx, "u1", core.ActionBonusCollect)
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.Equal(t, 9, remaining)
}

func TestLimiterIndependentKeys(t *testing.T) {
	client, _ := newTestClient(t)
	lim := NewLimiter(client, 1, time.Minute)
	ctx := context.Background()

	_, allowed, err := lim.Check(ctx, "u1", core.ActionBonusCollect)
	require.NoError(t, err)
	require.True(t, allowed)

	_, allowed, err = lim.Check(ctx, "u1", core.ActionBonusCollect)
	require.NoError(t, err)
	require.False(t, allowed)

	_, allowed, err = lim.Check(ctx, "u2", core.ActionBonusCollect)
	require.NoError(t, err)
	assert.True(t, allowed)

	_, allowed, err = lim.Check(ctx, "u1", core.ActionPeriodicCheckin)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestBoardRankAndTop(t *testing.T) {
	client, _ := newTestClient(t)
	board := NewBoard(client)
	ctx := context.Background()

	require.NoError(t, board.Upsert(ctx, "a", 100))
	require.NoError(t, board.Upsert(ctx, "b", 200))
	require.NoError(t, board.Upsert(ctx, "c", 100))
	require.NoError(t, board.Upsert(ctx, "d", 50))

	rnk, ok, err := board.RankOf(ctx, "b")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, rnk)

	for _, actor := range []core.ActorID{"a", "c"} {
		rnk, ok, err = board.RankOf(ctx, actor)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, 1, rnk, string(actor))
	}

	_, ok, err = board.RankOf(ctx, "ghost")
	require.NoError(t, err)
	assert.False(t, ok)

	top, err := board.TopN(ctx, 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, []rank.Entry{{Actor: "b", Score: 200}, {Actor: "a", Score: 100}, {Actor: "c", Score: 100}}, top)

	n, err := board.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	// Re-upsert moves rather than duplicates.
	require.NoError(t, board.Upsert(ctx, "d", 300))
	rnk, ok, err = board.RankOf(ctx, "d")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 0, rnk)

	require.NoError(t, board.Remove(ctx, "d"))
	n, err = board.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestBoardWindowAround(t *testing.T) {
	client, _ := newTestClient(t)
	board := NewBoard(client)
	ctx := context.Background()

	for i, actor := range []core.ActorID{"u0", "u1", "u2", "u3", "u4", "u5"} {
		require.NoError(t, board.Upsert(ctx, actor, int64(100-i*10)))
	}
	win, err := board.WindowAround(ctx, "u3", 1)
	require.NoError(t, err)
	require.Len(t, win, 3)
	assert.Equal(t, core.ActorID("u2"), win[0].Actor)
	assert.Equal(t, core.ActorID("u4"), win[2].Actor)

	win, err = board.WindowAround(ctx, "ghost", 1)
	require.NoError(t, err)
	assert.Empty(t, win)
}

func TestCacheScoreAndSnapshots(t *testing.T) {
	client, mr := newTestClient(t)
	cache := NewCache(client)
	ctx := context.Background()

	_, ok, err := cache.GetScore(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, cache.SetScore(ctx, "u1", 42, time.Minute))
	score, ok, err := cache.GetScore(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), score)

	mr.FastForward(2 * time.Minute)
	_, ok, err = cache.GetScore(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.SetSnapshot(ctx, "top:10", []byte(`{}`), time.Minute))
	require.NoError(t, cache.SetSnapshot(ctx, "top:25", []byte(`{}`), time.Minute))
	data, ok, err := cache.GetSnapshot(ctx, "top:10")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte(`{}`), data)

	require.NoError(t, cache.InvalidateSnapshots(ctx))
	_, ok, err = cache.GetSnapshot(ctx, "top:10")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = cache.GetSnapshot(ctx, "top:25")
	require.NoError(t, err)
	assert.False(t, ok)
}
