// Demo server: in-memory backends, a throwaway signing key, and a token
// minting endpoint so the whole update flow can be exercised with curl:
//
//	curl 'localhost:8080/token?actor=alice&action=primary-action-complete'
//	curl -X POST localhost:8080/scores -d '{"actor_id":"alice","action":"primary-action-complete","delta":100,"token":"..."}'
//	curl localhost:8080/leaderboard/top
package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"

	mem "scoreboard/adapters/memory"
	"scoreboard/api/httpapi"
	"scoreboard/core"
	"scoreboard/engine"
	"scoreboard/query"
	"scoreboard/rank"
	"scoreboard/ratelimit"
	"scoreboard/realtime"
	"scoreboard/token"
)

func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	slog.SetDefault(slog.New(textHandler))

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		slog.Error("keygen failed", "error", err)
		os.Exit(1)
	}
	const issuer = "scoreboard-demo"
	signer := token.NewSigner(priv, issuer, token.DefaultValidity)
	validator, err := token.NewValidator(pub, issuer, token.NewMemoryNonceStore(), nil)
	if err != nil {
		slog.Error("validator setup failed", "error", err)
		os.Exit(1)
	}

	store := mem.New()
	board := rank.NewSkipList()
	cache := mem.NewCache()
	hub := realtime.NewHub()
	bus := engine.NewEventBus(engine.DispatchAsync)

	pipeline := engine.NewPipeline(store, board, cache, validator,
		ratelimit.NewMemory(ratelimit.DefaultMax, ratelimit.DefaultWindow),
		bus, engine.DefaultLimits(), nil)
	defer pipeline.Close()

	for _, typ := range []core.EventType{core.EventPersonalScoreChanged, core.EventLeaderboardChanged} {
		pipeline.Subscribe(typ, hub.Broadcast)
	}

	queries := query.NewService(board, cache, query.DefaultTTL, nil)

	seed(pipeline, signer)

	mux := http.NewServeMux()
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		actor := core.ActorID(r.URL.Query().Get("actor"))
		kind := core.ActionKind(r.URL.Query().Get("action"))
		if !core.KnownActionKind(kind) {
			http.Error(w, "unknown action", http.StatusBadRequest)
			return
		}
		normalized, err := core.NormalizeActorID(actor)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		tok, err := signer.Issue(normalized, kind, uuid.NewString())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"token": tok})
	})
	mux.Handle("/", httpapi.NewMux(pipeline, queries, hub, httpapi.Options{}))

	slog.Info("starting demo server on :8080")

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}

// seed applies a few updates so the leaderboard is not empty on first load.
func seed(pipeline *engine.Pipeline, signer *token.Signer) {
	ctx := context.Background()
	for _, s := range []struct {
		actor core.ActorID
		delta int64
	}{
		{"alice", 320},
		{"bob", 250},
		{"carol", 180},
		{"dave", 90},
	} {
		tok, err := signer.Issue(s.actor, core.ActionPrimaryComplete, uuid.NewString())
		if err != nil {
			slog.Warn("seed token failed", "actor", s.actor, "error", err)
			continue
		}
		if _, err := pipeline.Apply(ctx, engine.ApplyRequest{
			Actor:  s.actor,
			Action: core.ActionPrimaryComplete,
			Delta:  s.delta,
			Token:  tok,
		}); err != nil {
			slog.Warn("seed apply failed", "actor", s.actor, "error", err)
		}
	}
}
