package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"scoreboard/core"
)

// Hub fans events out to subscribers. Subscriptions are either global
// (every event) or scoped to a single actor's personal events; slow
// subscribers have events dropped rather than blocking the publisher.
type Hub struct {
	mu   sync.RWMutex
	subs map[int]*subscriber
	next int
}

type subscriber struct {
	ch    chan core.Event
	actor core.ActorID // empty for global subscriptions
}

func NewHub() *Hub { return &Hub{subs: map[int]*subscriber{}} }

// Subscribe registers a global subscription receiving every event.
func (h *Hub) Subscribe(buffer int) (int, <-chan core.Event) {
	return h.subscribe("", buffer)
}

// SubscribeActor registers a subscription scoped to one actor's personal
// events plus the global leaderboard-changed events.
func (h *Hub) SubscribeActor(actor core.ActorID, buffer int) (int, <-chan core.Event) {
	return h.subscribe(actor, buffer)
}

func (h *Hub) subscribe(actor core.ActorID, buffer int) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	sub := &subscriber{ch: make(chan core.Event, buffer), actor: actor}
	h.subs[id] = sub
	return id, sub.ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	h.mu.RLock()
	// copy to avoid holding lock during send
	receivers := make([]chan core.Event, 0, len(h.subs))
	for _, sub := range h.subs {
		if sub.actor != "" && ev.Actor != "" && ev.Actor != sub.actor {
			continue
		}
		receivers = append(receivers, sub.ch)
	}
	h.mu.RUnlock()
	for _, ch := range receivers {
		select {
		case ch <- ev:
		default: /* drop if full */
		}
	}
}

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
