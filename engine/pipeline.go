// Package engine orchestrates score updates: validation, durable
// persistence, ranked board maintenance, and event fan-out.
package engine

import (
	"context"
	"errors"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"

	"scoreboard/core"
	"scoreboard/rank"
	"scoreboard/ratelimit"
	"scoreboard/token"
)

const lockStripes = 128

// Limits bounds a single score update and the pipeline's collaborator calls.
type Limits struct {
	// MaxDelta is the largest delta a single action may apply.
	MaxDelta int64
	// VisibleWindow is the leaderboard size watched for membership changes.
	VisibleWindow int
	// ScoreTTL bounds staleness of the per-actor score cache.
	ScoreTTL time.Duration
	// OpTimeout caps each durable store or cache call.
	OpTimeout time.Duration
	// PersistRetries is how many times a failed durable write is retried
	// before giving up. Retries are safe: the store is idempotent per
	// audit-entry idempotency key.
	PersistRetries int
	// RetryBackoff is the base delay between persist retries.
	RetryBackoff time.Duration
}

// DefaultLimits returns the production defaults.
func DefaultLimits() Limits {
	return Limits{
		MaxDelta:       1000,
		VisibleWindow:  10,
		ScoreTTL:       5 * time.Minute,
		OpTimeout:      3 * time.Second,
		PersistRetries: 2,
		RetryBackoff:   50 * time.Millisecond,
	}
}

// ApplyRequest is one attempted score change.
type ApplyRequest struct {
	Actor  core.ActorID
	Action core.ActionKind
	Delta  int64
	Token  string
}

// ApplyResult reports a successful score change. OldRank is -1 when the
// actor was not ranked before the update.
type ApplyResult struct {
	Actor     core.ActorID `json:"actor_id"`
	NewScore  int64        `json:"new_score"`
	OldRank   int          `json:"old_rank"`
	NewRank   int          `json:"new_rank"`
	Remaining int          `json:"remaining"`
}

// Pipeline applies score updates. All collaborators are constructor-supplied;
// there is no late wiring and no ambient global state.
type Pipeline struct {
	store   ScoreStore
	board   rank.Board
	cache   Cache
	tokens  *token.Validator
	limiter ratelimit.Limiter
	bus     *EventBus
	limits  Limits
	log     *slog.Logger

	// Per-actor mutual exclusion across the read-modify-persist-update
	// sequence. Striping keeps the lock table bounded; two actors sharing a
	// stripe serialize against each other, which is harmless.
	locks [lockStripes]sync.Mutex
}

func NewPipeline(store ScoreStore, board rank.Board, cache Cache, tokens *token.Validator, limiter ratelimit.Limiter, bus *EventBus, limits Limits, log *slog.Logger) *Pipeline {
	if store == nil || board == nil || cache == nil || tokens == nil || limiter == nil || bus == nil {
		panic("NewPipeline requires non-nil collaborators")
	}
	if limits.MaxDelta <= 0 {
		limits.MaxDelta = DefaultLimits().MaxDelta
	}
	if limits.VisibleWindow <= 0 {
		limits.VisibleWindow = DefaultLimits().VisibleWindow
	}
	if limits.ScoreTTL <= 0 {
		limits.ScoreTTL = DefaultLimits().ScoreTTL
	}
	if limits.OpTimeout <= 0 {
		limits.OpTimeout = DefaultLimits().OpTimeout
	}
	if limits.PersistRetries < 0 {
		limits.PersistRetries = 0
	}
	if limits.RetryBackoff <= 0 {
		limits.RetryBackoff = DefaultLimits().RetryBackoff
	}
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		store:   store,
		board:   board,
		cache:   cache,
		tokens:  tokens,
		limiter: limiter,
		bus:     bus,
		limits:  limits,
		log:     log,
	}
}

// Subscribe registers an event handler on the pipeline's bus.
func (p *Pipeline) Subscribe(typ core.EventType, handler func(context.Context, core.Event)) func() {
	return p.bus.Subscribe(typ, handler)
}

// Close stops the event bus workers.
func (p *Pipeline) Close() { p.bus.Close() }

func (p *Pipeline) stripe(actor core.ActorID) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(actor))
	return &p.locks[h.Sum32()%lockStripes]
}

// Apply validates and applies one score change. Precondition checks run in
// order (delta bounds, then rate limit, then token) and short-circuit on the
// first failure. Every attempt, rejected or not, produces exactly one audit
// entry.
func (p *Pipeline) Apply(ctx context.Context, req ApplyRequest) (ApplyResult, error) {
	actor, err := core.NormalizeActorID(req.Actor)
	if err != nil {
		return ApplyResult{}, p.reject(ctx, core.NewAuditEntry(req.Actor, req.Action, req.Delta), core.ErrInvalidActor)
	}
	entry := core.NewAuditEntry(actor, req.Action, req.Delta)

	if req.Delta <= 0 || req.Delta > p.limits.MaxDelta {
		return ApplyResult{}, p.reject(ctx, entry, core.ErrInvalidDelta)
	}

	remaining, allowed, err := p.limiter.Check(ctx, actor, req.Action)
	if err != nil {
		return ApplyResult{}, p.reject(ctx, entry, core.NewPersistenceError(err))
	}
	if !allowed {
		return ApplyResult{}, p.reject(ctx, entry, core.ErrRateLimited)
	}

	claims, err := p.tokens.Validate(ctx, req.Token, actor)
	if err != nil {
		var ue *core.UpdateError
		if !errors.As(err, &ue) {
			ue = core.NewPersistenceError(err)
		}
		return ApplyResult{}, p.reject(ctx, entry, ue)
	}
	if claims.Action != req.Action {
		return ApplyResult{}, p.reject(ctx, entry, core.NewTokenError(core.TokenActionMismatch, nil))
	}
	entry.IdempotencyKey = core.IdempotencyKey(actor, claims.Nonce)

	mu := p.stripe(actor)
	mu.Lock()
	defer mu.Unlock()

	current, err := p.currentScore(ctx, actor)
	if err != nil {
		return ApplyResult{}, p.reject(ctx, entry, core.NewPersistenceError(err))
	}
	newScore, err := core.AddSafe(current, req.Delta)
	if err != nil {
		return ApplyResult{}, p.reject(ctx, entry, core.ErrInvalidDelta)
	}

	oldRank := -1
	if r, ok, rerr := p.board.RankOf(ctx, actor); rerr == nil && ok {
		oldRank = r
	}
	oldWindow, _ := p.board.TopN(ctx, p.limits.VisibleWindow)

	entry.PrevScore = current
	entry.NewScore = newScore
	entry.Success = true

	err = p.persist(ctx, actor, newScore, entry)
	if err != nil {
		// The board stays untouched; record the failed attempt best-effort so
		// an audit write failure never masks the persistence error.
		entry.Success = false
		entry.Reason = core.ReasonPersistence
		p.appendAudit(ctx, entry)
		return ApplyResult{}, core.NewPersistenceError(err)
	}

	// Durable write succeeded; now update the derived index and caches.
	if err := p.board.Upsert(ctx, actor, newScore); err != nil {
		p.log.Warn("board upsert failed; index stale until rebuild", "actor", actor, "error", err)
	}
	cacheCtx, cancel := context.WithTimeout(ctx, p.limits.OpTimeout)
	if err := p.cache.SetScore(cacheCtx, actor, newScore, p.limits.ScoreTTL); err != nil {
		p.log.Warn("score cache set failed", "actor", actor, "error", err)
	}
	if err := p.cache.InvalidateSnapshots(cacheCtx); err != nil {
		p.log.Warn("snapshot invalidation failed", "error", err)
	}
	cancel()

	newRank := 0
	if r, ok, rerr := p.board.RankOf(ctx, actor); rerr == nil && ok {
		newRank = r
	}

	p.bus.Publish(ctx, core.NewPersonalScoreChanged(actor, newScore, oldRank, newRank))
	newWindow, _ := p.board.TopN(ctx, p.limits.VisibleWindow)
	if windowChanged(oldWindow, newWindow) {
		p.bus.Publish(ctx, core.NewLeaderboardChanged())
	}

	return ApplyResult{Actor: actor, NewScore: newScore, OldRank: oldRank, NewRank: newRank, Remaining: remaining}, nil
}

// persist writes the score and audit entry, retrying a bounded number of
// times. The idempotency key makes a retry after a partial success a no-op.
func (p *Pipeline) persist(ctx context.Context, actor core.ActorID, newScore int64, entry core.AuditEntry) error {
	var err error
	for attempt := 0; attempt <= p.limits.PersistRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * p.limits.RetryBackoff):
			}
			p.log.Warn("retrying durable write", "actor", actor, "attempt", attempt, "error", err)
		}
		persistCtx, cancel := context.WithTimeout(ctx, p.limits.OpTimeout)
		err = p.store.ApplyScore(persistCtx, actor, newScore, entry)
		cancel()
		if err == nil {
			return nil
		}
	}
	return err
}

// currentScore reads cache-first with a durable fallback. A cache miss never
// fabricates zero unless the durable store has no record either.
func (p *Pipeline) currentScore(ctx context.Context, actor core.ActorID) (int64, error) {
	cacheCtx, cancel := context.WithTimeout(ctx, p.limits.OpTimeout)
	score, ok, err := p.cache.GetScore(cacheCtx, actor)
	cancel()
	if err == nil && ok {
		return score, nil
	}
	if err != nil {
		p.log.Warn("score cache read failed; falling back to store", "actor", actor, "error", err)
	}
	storeCtx, cancel := context.WithTimeout(ctx, p.limits.OpTimeout)
	defer cancel()
	score, ok, err = p.store.GetScore(storeCtx, actor)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return score, nil
}

// reject audits a failed attempt and returns the rejection.
func (p *Pipeline) reject(ctx context.Context, entry core.AuditEntry, cause *core.UpdateError) error {
	entry.Success = false
	entry.Reason = cause.Reason
	p.appendAudit(ctx, entry)
	return cause
}

func (p *Pipeline) appendAudit(ctx context.Context, entry core.AuditEntry) {
	auditCtx, cancel := context.WithTimeout(ctx, p.limits.OpTimeout)
	defer cancel()
	if err := p.store.AppendAudit(auditCtx, entry); err != nil {
		p.log.Error("audit append failed", "actor", entry.Actor, "reason", entry.Reason, "error", err)
	}
}

// windowChanged reports whether the visible top window changed membership or
// order.
func windowChanged(before, after []rank.Entry) bool {
	if len(before) != len(after) {
		return true
	}
	for i := range before {
		if before[i] != after[i] {
			return true
		}
	}
	return false
}

// RebuildBoard repopulates the derived ranked index from the durable store.
// Run at startup or after the board is lost; the store is the source of truth.
func RebuildBoard(ctx context.Context, store ScoreStore, board rank.Board) error {
	scores, err := store.LoadAll(ctx)
	if err != nil {
		return err
	}
	for _, s := range scores {
		if err := board.Upsert(ctx, s.Actor, s.Score); err != nil {
			return err
		}
	}
	return nil
}
