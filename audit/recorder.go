package audit

import (
	"sync"
	"time"

	"scoreboard/core"
)

// Recorder keeps a bounded window of recent audit entries for inspection
// without touching the durable store. It is a ring buffer: once full, the
// oldest entry is overwritten.
type Recorder struct {
	mu      sync.RWMutex
	entries []core.AuditEntry
	next    int
	full    bool
}

// NewRecorder creates a recorder holding up to capacity entries.
func NewRecorder(capacity int) *Recorder {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Recorder{entries: make([]core.AuditEntry, capacity)}
}

// Record appends an entry, evicting the oldest when full.
func (r *Recorder) Record(entry core.AuditEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[r.next] = entry
	r.next++
	if r.next == len(r.entries) {
		r.next = 0
		r.full = true
	}
}

// Len reports how many entries are currently held.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.full {
		return len(r.entries)
	}
	return r.next
}

// Recent returns up to n entries, newest first.
func (r *Recorder) Recent(n int) []core.AuditEntry {
	return r.query(n, Filter{})
}

// Query returns up to n filtered entries, newest first.
func (r *Recorder) Query(n int, f Filter) []core.AuditEntry {
	return r.query(n, f)
}

// Since returns every held entry at or after t, newest first.
func (r *Recorder) Since(t time.Time) []core.AuditEntry {
	return r.query(r.Len(), Filter{Since: t})
}

func (r *Recorder) query(n int, f Filter) []core.AuditEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	held := r.next
	if r.full {
		held = len(r.entries)
	}
	var out []core.AuditEntry
	for i := 0; i < held && len(out) < n; i++ {
		// walk backwards from the most recent slot
		idx := (r.next - 1 - i + len(r.entries)) % len(r.entries)
		if f.Matches(r.entries[idx]) {
			out = append(out, r.entries[idx])
		}
	}
	return out
}
