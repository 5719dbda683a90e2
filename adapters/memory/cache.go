package memory

import (
	"context"
	"sync"
	"time"

	"scoreboard/core"
	"scoreboard/engine"
)

type scoreItem struct {
	score   int64
	expires time.Time
}

type snapItem struct {
	data    []byte
	expires time.Time
}

// Cache is a process-local engine.Cache with per-entry TTLs.
type Cache struct {
	mu     sync.RWMutex
	scores map[core.ActorID]scoreItem
	snaps  map[string]snapItem
	now    func() time.Time
}

func NewCache() *Cache {
	return &Cache{scores: map[core.ActorID]scoreItem{}, snaps: map[string]snapItem{}, now: time.Now}
}

// NewCacheAt uses a custom clock, for tests.
func NewCacheAt(now func() time.Time) *Cache {
	c := NewCache()
	c.now = now
	return c
}

func (c *Cache) GetScore(_ context.Context, actor core.ActorID) (int64, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.scores[actor]
	if !ok || !item.expires.After(c.now()) {
		return 0, false, nil
	}
	return item.score, true, nil
}

func (c *Cache) SetScore(_ context.Context, actor core.ActorID, score int64, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.scores[actor] = scoreItem{score: score, expires: c.now().Add(ttl)}
	return nil
}

func (c *Cache) GetSnapshot(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.snaps[key]
	if !ok || !item.expires.After(c.now()) {
		return nil, false, nil
	}
	return item.data, true, nil
}

func (c *Cache) SetSnapshot(_ context.Context, key string, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps[key] = snapItem{data: data, expires: c.now().Add(ttl)}
	return nil
}

func (c *Cache) InvalidateSnapshots(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = map[string]snapItem{}
	return nil
}

var _ engine.Cache = (*Cache)(nil)
