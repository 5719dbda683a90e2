package audit

import (
	"context"

	"scoreboard/core"
	"scoreboard/engine"
)

// RecordingStore decorates a ScoreStore so every audit entry it accepts is
// mirrored into a Recorder. The recorder only sees entries the store took;
// a failed persist is not recorded here, the retry will carry the entry back.
type RecordingStore struct {
	engine.ScoreStore
	rec *Recorder
}

// NewRecordingStore wraps store, mirroring accepted audit entries into rec.
func NewRecordingStore(store engine.ScoreStore, rec *Recorder) *RecordingStore {
	return &RecordingStore{ScoreStore: store, rec: rec}
}

// Recorder returns the recorder entries are mirrored into.
func (s *RecordingStore) Recorder() *Recorder { return s.rec }

func (s *RecordingStore) ApplyScore(ctx context.Context, actor core.ActorID, newScore int64, entry core.AuditEntry) error {
	if err := s.ScoreStore.ApplyScore(ctx, actor, newScore, entry); err != nil {
		return err
	}
	s.rec.Record(entry)
	return nil
}

func (s *RecordingStore) AppendAudit(ctx context.Context, entry core.AuditEntry) error {
	if err := s.ScoreStore.AppendAudit(ctx, entry); err != nil {
		return err
	}
	s.rec.Record(entry)
	return nil
}

var _ engine.ScoreStore = (*RecordingStore)(nil)
