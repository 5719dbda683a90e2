package engine

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"scoreboard/core"
)

func TestEventBusSync(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	bus.Subscribe(core.EventPersonalScoreChanged, func(ctx context.Context, e core.Event) { count++ })
	bus.Publish(context.Background(), core.NewPersonalScoreChanged("u", 1, -1, 0))
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}

func TestEventBusAsync(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	defer bus.Close()
	ch := make(chan struct{})
	bus.Subscribe(core.EventPersonalScoreChanged, func(ctx context.Context, e core.Event) { close(ch) })
	bus.Publish(context.Background(), core.NewPersonalScoreChanged("u", 1, -1, 0))
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timeout")
	}
}

func TestEventBusCloseDrainsQueue(t *testing.T) {
	bus := NewEventBus(DispatchAsync)
	var delivered atomic.Int64
	bus.Subscribe(core.EventPersonalScoreChanged, func(ctx context.Context, e core.Event) {
		delivered.Add(1)
	})
	const n = 200
	for i := 0; i < n; i++ {
		bus.Publish(context.Background(), core.NewPersonalScoreChanged("u", int64(i), -1, 0))
	}
	bus.Close()
	if got := delivered.Load(); got != n {
		t.Fatalf("want %d delivered after Close, got %d", n, got)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	bus := NewEventBus(DispatchSync)
	count := 0
	off := bus.Subscribe(core.EventLeaderboardChanged, func(ctx context.Context, e core.Event) { count++ })
	bus.Publish(context.Background(), core.NewLeaderboardChanged())
	off()
	bus.Publish(context.Background(), core.NewLeaderboardChanged())
	if count != 1 {
		t.Fatalf("want 1 got %d", count)
	}
}
