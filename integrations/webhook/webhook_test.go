package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"scoreboard/core"
)

func TestSink_OnEventPostsToEndpoints(t *testing.T) {
	var hits int32
	var got core.Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		body, _ := io.ReadAll(r.Body)
		_ = r.Body.Close()
		_ = json.Unmarshal(body, &got)
	}))
	defer srv.Close()

	sink := New([]string{srv.URL})
	sink.OnEvent(context.Background(), core.NewPersonalScoreChanged("u1", 42, -1, 0))

	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", hits)
	}
	if got.Actor != "u1" || got.NewScore != 42 {
		t.Fatalf("unexpected payload: %+v", got)
	}
}

func TestSink_OnEventSurvivesDeadEndpoint(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
	}))
	defer srv.Close()

	sink := New([]string{"http://127.0.0.1:1/unreachable", srv.URL})
	sink.OnEvent(context.Background(), core.NewLeaderboardChanged())

	if atomic.LoadInt32(&hits) != 1 {
		t.Fatalf("expected the live endpoint to still be hit, got %d", hits)
	}
}
