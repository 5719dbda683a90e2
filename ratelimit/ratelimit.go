// Package ratelimit bounds the frequency of score-changing requests per
// actor and action class. It is a pure rate gate with no score semantics.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"scoreboard/core"
)

const (
	// DefaultMax is the allowed request count per window.
	DefaultMax = 10
	// DefaultWindow is the fixed window length.
	DefaultWindow = 60 * time.Second
)

// Limiter gates requests per (actor, action class) key with a fixed window.
// The first request in a window starts its expiry; later requests increment
// the counter without resetting it. A denial does not consume the count.
type Limiter interface {
	Check(ctx context.Context, actor core.ActorID, class core.ActionKind) (remaining int, allowed bool, err error)
}

type window struct {
	count   int
	expires time.Time
}

// Memory is a process-local fixed-window Limiter. Counter updates for the
// same key are serialized under a single mutex so concurrent requests never
// undercount.
type Memory struct {
	max     int
	span    time.Duration
	mu      sync.Mutex
	windows map[string]*window
	now     func() time.Time
}

func NewMemory(max int, span time.Duration) *Memory {
	if max <= 0 {
		max = DefaultMax
	}
	if span <= 0 {
		span = DefaultWindow
	}
	return &Memory{max: max, span: span, windows: map[string]*window{}, now: time.Now}
}

// NewMemoryAt uses a custom clock, for tests.
func NewMemoryAt(max int, span time.Duration, now func() time.Time) *Memory {
	m := NewMemory(max, span)
	m.now = now
	return m
}

// Key builds the counter key for an actor and action class.
func Key(actor core.ActorID, class core.ActionKind) string {
	return string(actor) + "|" + string(class)
}

func (m *Memory) Check(_ context.Context, actor core.ActorID, class core.ActionKind) (int, bool, error) {
	key := Key(actor, class)
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	w, ok := m.windows[key]
	if !ok || !w.expires.After(now) {
		w = &window{count: 0, expires: now.Add(m.span)}
		m.windows[key] = w
	}
	if w.count >= m.max {
		return 0, false, nil
	}
	w.count++
	return m.max - w.count, true, nil
}

var _ Limiter = (*Memory)(nil)
