package rank

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"math/rand/v2"
	"sync"

	"scoreboard/core"
)

// A skip list keyed by (score desc, actor asc) with per-level span counts so
// rank lookups and positional seeks are O(log n), not linear scans.

const maxLevel = 16
const pFactor = 0.25

type node struct {
	e    Entry
	next [maxLevel]*node
	span [maxLevel]int
}

type SkipList struct {
	mu      sync.RWMutex
	head    *node
	lvl     int
	length  int
	byActor map[core.ActorID]*node
	rng     *rand.Rand
}

func NewSkipList() *SkipList {
	// Use crypto/rand to generate a secure seed for PCG
	var seed [16]byte
	if _, err := cryptorand.Read(seed[:]); err != nil {
		// Fallback to zero seed if crypto/rand fails (extremely unlikely)
		seed = [16]byte{}
	}
	seed1 := binary.BigEndian.Uint64(seed[:8])
	seed2 := binary.BigEndian.Uint64(seed[8:])

	return &SkipList{
		head:    &node{},
		lvl:     1,
		byActor: map[core.ActorID]*node{},
		rng:     rand.New(rand.NewPCG(seed1, seed2)),
	}
}

func (s *SkipList) randomLevel() int {
	lvl := 1
	for lvl < maxLevel && s.rng.Float64() < pFactor {
		lvl++
	}
	return lvl
}

// less orders entries higher score first; ties break on ascending actor id.
func less(a, b Entry) bool {
	if a.Score == b.Score {
		return a.Actor < b.Actor
	}
	return a.Score > b.Score
}

// Upsert inserts or moves the actor to its new score.
func (s *SkipList) Upsert(_ context.Context, actor core.ActorID, score int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.byActor[actor]; ok {
		s.removeLocked(actor, old.e)
	}
	e := Entry{Actor: actor, Score: score}
	var update [maxLevel]*node
	var rankAt [maxLevel]int
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		if i == s.lvl-1 {
			rankAt[i] = 0
		} else {
			rankAt[i] = rankAt[i+1]
		}
		for cur.next[i] != nil && less(cur.next[i].e, e) {
			rankAt[i] += cur.span[i]
			cur = cur.next[i]
		}
		update[i] = cur
	}
	lvl := s.randomLevel()
	if lvl > s.lvl {
		for i := s.lvl; i < lvl; i++ {
			rankAt[i] = 0
			update[i] = s.head
			update[i].span[i] = s.length
		}
		s.lvl = lvl
	}
	n := &node{e: e}
	for i := 0; i < lvl; i++ {
		n.next[i] = update[i].next[i]
		update[i].next[i] = n
		n.span[i] = update[i].span[i] - (rankAt[0] - rankAt[i])
		update[i].span[i] = rankAt[0] - rankAt[i] + 1
	}
	for i := lvl; i < s.lvl; i++ {
		update[i].span[i]++
	}
	s.length++
	s.byActor[actor] = n
	return nil
}

func (s *SkipList) removeLocked(actor core.ActorID, e Entry) {
	var update [maxLevel]*node
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].e, e) {
			cur = cur.next[i]
		}
		update[i] = cur
	}
	target := update[0].next[0]
	if target == nil || target.e.Actor != actor {
		return
	}
	for i := 0; i < s.lvl; i++ {
		if update[i].next[i] == target {
			update[i].span[i] += target.span[i] - 1
			update[i].next[i] = target.next[i]
		} else {
			update[i].span[i]--
		}
	}
	delete(s.byActor, actor)
	s.length--
	for s.lvl > 1 && s.head.next[s.lvl-1] == nil {
		s.lvl--
	}
}

func (s *SkipList) Remove(_ context.Context, actor core.ActorID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n, ok := s.byActor[actor]; ok {
		s.removeLocked(actor, n.e)
	}
	return nil
}

// countBefore returns the number of entries ordered strictly before e.
func (s *SkipList) countBefore(e Entry) int {
	pos := 0
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && less(cur.next[i].e, e) {
			pos += cur.span[i]
			cur = cur.next[i]
		}
	}
	return pos
}

// RankOf returns the count of actors with strictly greater score.
func (s *SkipList) RankOf(_ context.Context, actor core.ActorID) (int, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byActor[actor]
	if !ok {
		return 0, false, nil
	}
	// The empty actor id sorts before any real actor at the same score, so
	// this counts exactly the entries with a strictly greater score.
	return s.countBefore(Entry{Score: n.e.Score}), true, nil
}

func (s *SkipList) ScoreOf(_ context.Context, actor core.ActorID) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.byActor[actor]; ok {
		return n.e.Score, true, nil
	}
	return 0, false, nil
}

func (s *SkipList) TopN(_ context.Context, n int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n <= 0 {
		return nil, nil
	}
	out := make([]Entry, 0, n)
	cur := s.head.next[0]
	for cur != nil && len(out) < n {
		out = append(out, cur.e)
		cur = cur.next[0]
	}
	return out, nil
}

// nodeAt seeks the node at 0-based position pos using spans.
func (s *SkipList) nodeAt(pos int) *node {
	if pos < 0 || pos >= s.length {
		return nil
	}
	target := pos + 1
	traversed := 0
	cur := s.head
	for i := s.lvl - 1; i >= 0; i-- {
		for cur.next[i] != nil && traversed+cur.span[i] <= target {
			traversed += cur.span[i]
			cur = cur.next[i]
		}
		if traversed == target {
			return cur
		}
	}
	return nil
}

// WindowAround returns up to 2*radius+1 entries centered on the actor's
// position in the total order, clamped at the top of the board.
func (s *SkipList) WindowAround(_ context.Context, actor core.ActorID, radius int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.byActor[actor]
	if !ok || radius < 0 {
		return nil, nil
	}
	pos := s.countBefore(n.e)
	start := pos - radius
	if start < 0 {
		start = 0
	}
	cur := s.nodeAt(start)
	out := make([]Entry, 0, 2*radius+1)
	for cur != nil && len(out) < 2*radius+1 {
		out = append(out, cur.e)
		cur = cur.next[0]
	}
	return out, nil
}

func (s *SkipList) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.length, nil
}

var _ Board = (*SkipList)(nil)
