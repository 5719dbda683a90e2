package core

import (
	"time"

	"github.com/google/uuid"
)

// AuditEntry records one attempted score change, success or failure.
// Entries are append-only; nothing in the core mutates or deletes them.
type AuditEntry struct {
	ID             string        `json:"id"`
	Actor          ActorID       `json:"actor_id"`
	Action         ActionKind    `json:"action"`
	Delta          int64         `json:"delta"`
	PrevScore      int64         `json:"prev_score"`
	NewScore       int64         `json:"new_score"`
	Time           time.Time     `json:"time"`
	Success        bool          `json:"success"`
	Reason         FailureReason `json:"reason,omitempty"`
	IdempotencyKey string        `json:"idempotency_key,omitempty"`
}

// NewAuditEntry stamps a fresh entry with a generated id and the current time.
func NewAuditEntry(actor ActorID, action ActionKind, delta int64) AuditEntry {
	return AuditEntry{
		ID:     uuid.NewString(),
		Actor:  actor,
		Action: action,
		Delta:  delta,
		Time:   time.Now().UTC(),
	}
}

// IdempotencyKey derives the per-request idempotency key from actor and nonce,
// so a retried persist after a partial success is a no-op at the store.
func IdempotencyKey(actor ActorID, nonce string) string {
	return string(actor) + ":" + nonce
}
