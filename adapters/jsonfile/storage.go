// Package jsonfile persists scores and the audit log to a single JSON file.
// Suitable for demos and small single-node deployments; the ranked board is
// rebuilt from this file at startup via LoadAll.
package jsonfile

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"scoreboard/core"
	"scoreboard/engine"
)

type fileState struct {
	Scores  map[string]core.ActorScore `json:"scores"`
	Audit   []core.AuditEntry          `json:"audit"`
	Applied map[string]bool            `json:"applied"`
}

// Store implements engine.ScoreStore over an atomically rewritten JSON file.
type Store struct {
	path string
	mu   sync.Mutex
	// in-memory cache for speed
	state fileState
}

func New(path string) (*Store, error) {
	s := &Store{path: path, state: fileState{
		Scores:  map[string]core.ActorScore{},
		Applied: map[string]bool{},
	}}
	if err := s.load(); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) load() error {
	b, err := os.ReadFile(s.path)
	if err != nil {
		return err
	}
	var raw fileState
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	if raw.Scores == nil {
		raw.Scores = map[string]core.ActorScore{}
	}
	if raw.Applied == nil {
		raw.Applied = map[string]bool{}
	}
	s.state = raw
	return nil
}

func (s *Store) persist() error {
	tmp := s.path + ".tmp"
	b, err := json.MarshalIndent(s.state, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *Store) ApplyScore(_ context.Context, actor core.ActorID, newScore int64, entry core.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.IdempotencyKey != "" && s.state.Applied[entry.IdempotencyKey] {
		return nil
	}
	s.state.Scores[string(actor)] = core.ActorScore{Actor: actor, Score: newScore, Updated: time.Now().UTC()}
	s.state.Audit = append(s.state.Audit, entry)
	if entry.IdempotencyKey != "" {
		s.state.Applied[entry.IdempotencyKey] = true
	}
	return s.persist()
}

func (s *Store) GetScore(_ context.Context, actor core.ActorID) (int64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.state.Scores[string(actor)]
	if !ok {
		return 0, false, nil
	}
	return rec.Score, true, nil
}

func (s *Store) AppendAudit(_ context.Context, entry core.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Audit = append(s.state.Audit, entry)
	return s.persist()
}

func (s *Store) LoadAll(_ context.Context) ([]core.ActorScore, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.ActorScore, 0, len(s.state.Scores))
	for _, rec := range s.state.Scores {
		out = append(out, rec)
	}
	return out, nil
}

// AuditLog returns a copy of every recorded entry, oldest first.
func (s *Store) AuditLog() []core.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]core.AuditEntry, len(s.state.Audit))
	copy(out, s.state.Audit)
	return out
}

var _ engine.ScoreStore = (*Store)(nil)
