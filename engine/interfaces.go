package engine

import (
	"context"
	"time"

	"scoreboard/core"
)

// ScoreStore abstracts durable persistence. It is the source of truth; the
// ranked board is a derived index rebuildable from LoadAll.
type ScoreStore interface {
	// ApplyScore persists the actor's new score and appends the audit entry as
	// a single atomic unit. A previously applied entry.IdempotencyKey makes
	// the call a no-op, so retried persists after a partial success are safe.
	ApplyScore(ctx context.Context, actor core.ActorID, newScore int64, entry core.AuditEntry) error
	// GetScore reads the actor's current score. ok is false when the actor has
	// never had a successful mutation.
	GetScore(ctx context.Context, actor core.ActorID) (score int64, ok bool, err error)
	// AppendAudit records an attempt outside any score transaction. Used for
	// rejected requests, which must be audited too.
	AppendAudit(ctx context.Context, entry core.AuditEntry) error
	// LoadAll returns every actor score, for rebuilding the ranked board.
	LoadAll(ctx context.Context) ([]core.ActorScore, error)
}

// Cache is the fast-read collaborator: per-actor current scores plus
// serialized leaderboard snapshots, both with TTLs. Implementations must
// tolerate concurrent access; callers treat errors as cache misses.
type Cache interface {
	GetScore(ctx context.Context, actor core.ActorID) (score int64, ok bool, err error)
	SetScore(ctx context.Context, actor core.ActorID, score int64, ttl time.Duration) error
	GetSnapshot(ctx context.Context, key string) (data []byte, ok bool, err error)
	SetSnapshot(ctx context.Context, key string, data []byte, ttl time.Duration) error
	// InvalidateSnapshots drops every cached snapshot. Called on each
	// successful mutation; staleness is otherwise bounded by the TTL.
	InvalidateSnapshots(ctx context.Context) error
}
