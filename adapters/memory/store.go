// Package memory provides process-local implementations of the durable store
// and cache collaborators. Useful for tests, the demo server, and single-node
// deployments.
package memory

import (
	"context"
	"sync"
	"time"

	"scoreboard/core"
	"scoreboard/engine"
)

// Store is a concurrent in-memory ScoreStore with an append-only audit log.
type Store struct {
	actors sync.Map // map[core.ActorID]*actorRecord

	mu      sync.Mutex
	audit   []core.AuditEntry
	applied map[string]struct{} // consumed idempotency keys
}

type actorRecord struct {
	mu    sync.Mutex
	score core.ActorScore
	set   bool
}

func New() *Store {
	return &Store{applied: map[string]struct{}{}}
}

func (s *Store) getOrCreate(actor core.ActorID) *actorRecord {
	if v, ok := s.actors.Load(actor); ok {
		return v.(*actorRecord)
	}
	rec := &actorRecord{score: core.ActorScore{Actor: actor}}
	actual, _ := s.actors.LoadOrStore(actor, rec)
	return actual.(*actorRecord)
}

func (s *Store) ApplyScore(_ context.Context, actor core.ActorID, newScore int64, entry core.AuditEntry) error {
	if entry.IdempotencyKey != "" {
		s.mu.Lock()
		if _, done := s.applied[entry.IdempotencyKey]; done {
			s.mu.Unlock()
			return nil
		}
		s.applied[entry.IdempotencyKey] = struct{}{}
		s.mu.Unlock()
	}

	rec := s.getOrCreate(actor)
	rec.mu.Lock()
	rec.score.Score = newScore
	rec.score.Updated = time.Now().UTC()
	rec.set = true
	rec.mu.Unlock()

	s.mu.Lock()
	s.audit = append(s.audit, entry)
	s.mu.Unlock()
	return nil
}

func (s *Store) GetScore(_ context.Context, actor core.ActorID) (int64, bool, error) {
	v, ok := s.actors.Load(actor)
	if !ok {
		return 0, false, nil
	}
	rec := v.(*actorRecord)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !rec.set {
		return 0, false, nil
	}
	return rec.score.Score, true, nil
}

func (s *Store) AppendAudit(_ context.Context, entry core.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entry)
	return nil
}

func (s *Store) LoadAll(_ context.Context) ([]core.ActorScore, error) {
	var out []core.ActorScore
	s.actors.Range(func(_, v any) bool {
		rec := v.(*actorRecord)
		rec.mu.Lock()
		if rec.set {
			out = append(out, rec.score)
		}
		rec.mu.Unlock()
		return true
	})
	return out, nil
}

// AuditLog returns a copy of every recorded entry, oldest first.
func (s *Store) AuditLog() []core.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.AuditEntry, len(s.audit))
	copy(out, s.audit)
	return out
}

// AuditFor returns the entries recorded for one actor, oldest first.
func (s *Store) AuditFor(actor core.ActorID) []core.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []core.AuditEntry
	for _, e := range s.audit {
		if e.Actor == actor {
			out = append(out, e)
		}
	}
	return out
}

var _ engine.ScoreStore = (*Store)(nil)
