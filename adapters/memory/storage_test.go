package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoreboard/core"
)

func TestStoreApplyScore(t *testing.T) {
	s := New()
	ctx := context.Background()

	entry := core.NewAuditEntry("u1", core.ActionBonusCollect, 50)
	entry.PrevScore = 0
	entry.NewScore = 50
	entry.Success = true
	require.NoError(t, s.ApplyScore(ctx, "u1", 50, entry))

	score, ok, err := s.GetScore(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(50), score)

	log := s.AuditFor("u1")
	require.Len(t, log, 1)
	assert.True(t, log[0].Success)
	assert.Equal(t, int64(50), log[0].NewScore)
}

func TestStoreGetScoreAbsent(t *testing.T) {
	s := New()
	_, ok, err := s.GetScore(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreIdempotentApply(t *testing.T) {
	s := New()
	ctx := context.Background()

	entry := core.NewAuditEntry("u1", core.ActionBonusCollect, 50)
	entry.NewScore = 50
	entry.Success = true
	entry.IdempotencyKey = "u1:nonce-1"

	require.NoError(t, s.ApplyScore(ctx, "u1", 50, entry))
	// Retried persist with the same key is a no-op.
	require.NoError(t, s.ApplyScore(ctx, "u1", 999, entry))

	score, ok, err := s.GetScore(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(50), score)
	assert.Len(t, s.AuditFor("u1"), 1)
}

func TestStoreAppendAuditFailurePath(t *testing.T) {
	s := New()
	ctx := context.Background()

	entry := core.NewAuditEntry("u1", core.ActionBonusCollect, -5)
	entry.Success = false
	entry.Reason = core.ReasonInvalidDelta
	require.NoError(t, s.AppendAudit(ctx, entry))

	log := s.AuditFor("u1")
	require.Len(t, log, 1)
	assert.False(t, log[0].Success)
	assert.Equal(t, core.ReasonInvalidDelta, log[0].Reason)

	// No score record was created by the failed attempt.
	_, ok, err := s.GetScore(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreLoadAll(t *testing.T) {
	s := New()
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		actor := core.ActorID(fmt.Sprintf("u%d", i))
		entry := core.NewAuditEntry(actor, core.ActionBonusCollect, int64(i))
		entry.Success = true
		require.NoError(t, s.ApplyScore(ctx, actor, int64(i*10), entry))
	}
	all, err := s.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestStoreConcurrentApplies(t *testing.T) {
	s := New()
	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				actor := core.ActorID(fmt.Sprintf("u%d", w))
				entry := core.NewAuditEntry(actor, core.ActionBonusCollect, 1)
				entry.Success = true
				_ = s.ApplyScore(ctx, actor, int64(i+1), entry)
			}
		}(w)
	}
	wg.Wait()
	assert.Len(t, s.AuditLog(), 400)
}

func TestCacheScoreTTL(t *testing.T) {
	now := time.Now()
	clock := func() time.Time { return now }
	c := NewCacheAt(clock)
	ctx := context.Background()

	require.NoError(t, c.SetScore(ctx, "u1", 42, time.Minute))
	score, ok, err := c.GetScore(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(42), score)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.GetScore(ctx, "u1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCacheSnapshotInvalidation(t *testing.T) {
	c := NewCache()
	ctx := context.Background()

	require.NoError(t, c.SetSnapshot(ctx, "top:10", []byte(`{"entries":[]}`), time.Minute))
	data, ok, err := c.GetSnapshot(ctx, "top:10")
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, data)

	require.NoError(t, c.InvalidateSnapshots(ctx))
	_, ok, err = c.GetSnapshot(ctx, "top:10")
	require.NoError(t, err)
	assert.False(t, ok)
}
