package token

import (
	"context"
	"sync"
	"time"
)

// NonceStore records consumed nonces. MarkUsed is an atomic check-and-set:
// it returns true only for the single first caller within the ttl window.
type NonceStore interface {
	MarkUsed(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}

// MemoryNonceStore is a process-local NonceStore with per-entry expiry.
type MemoryNonceStore struct {
	mu    sync.Mutex
	used  map[string]time.Time
	now   func() time.Time
	sweep int
}

func NewMemoryNonceStore() *MemoryNonceStore {
	return &MemoryNonceStore{used: map[string]time.Time{}, now: time.Now}
}

// NewMemoryNonceStoreAt uses a custom clock, for tests.
func NewMemoryNonceStoreAt(now func() time.Time) *MemoryNonceStore {
	return &MemoryNonceStore{used: map[string]time.Time{}, now: now}
}

func (s *MemoryNonceStore) MarkUsed(_ context.Context, nonce string, ttl time.Duration) (bool, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if exp, ok := s.used[nonce]; ok && exp.After(now) {
		return false, nil
	}
	s.used[nonce] = now.Add(ttl)

	// Amortized cleanup of expired entries.
	s.sweep++
	if s.sweep >= 1024 {
		s.sweep = 0
		for n, exp := range s.used {
			if !exp.After(now) {
				delete(s.used, n)
			}
		}
	}
	return true, nil
}

var _ NonceStore = (*MemoryNonceStore)(nil)
