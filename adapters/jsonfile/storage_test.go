package jsonfile

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scoreboard/core"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.json")
	ctx := context.Background()

	s, err := New(path)
	require.NoError(t, err)

	entry := core.NewAuditEntry("u1", core.ActionBonusCollect, 100)
	entry.NewScore = 100
	entry.Success = true
	entry.IdempotencyKey = "u1:n1"
	require.NoError(t, s.ApplyScore(ctx, "u1", 100, entry))

	// Reopen from disk: scores, audit, and consumed keys survive.
	s2, err := New(path)
	require.NoError(t, err)

	score, ok, err := s2.GetScore(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(100), score)

	require.Len(t, s2.AuditLog(), 1)

	// Replayed idempotency key is still a no-op after reload.
	require.NoError(t, s2.ApplyScore(ctx, "u1", 999, entry))
	score, _, err = s2.GetScore(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), score)

	all, err := s2.LoadAll(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestStoreMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "scores.json")
	s, err := New(path)
	require.NoError(t, err)

	_, ok, err := s.GetScore(context.Background(), "ghost")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreAuditFailurePersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scores.json")
	s, err := New(path)
	require.NoError(t, err)

	entry := core.NewAuditEntry("u1", core.ActionBonusCollect, 5000)
	entry.Success = false
	entry.Reason = core.ReasonInvalidDelta
	require.NoError(t, s.AppendAudit(context.Background(), entry))

	s2, err := New(path)
	require.NoError(t, err)
	log := s2.AuditLog()
	require.Len(t, log, 1)
	assert.False(t, log[0].Success)
	assert.Equal(t, core.ReasonInvalidDelta, log[0].Reason)
}
