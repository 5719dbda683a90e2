// Package httpapi exposes the scoreboard over REST and WebSocket.
package httpapi

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"

	wsadapter "scoreboard/adapters/websocket"
	"scoreboard/audit"
	"scoreboard/core"
	"scoreboard/engine"
	"scoreboard/query"
	"scoreboard/realtime"
)

// Options configures the HTTP API surface.
type Options struct {
	// PathPrefix, if set, is prepended to all routes (e.g., "/api").
	PathPrefix string
	// AllowCORSOrigin, if non-empty, enables basic CORS with the given origin (use "*" for any).
	AllowCORSOrigin string
	// APIKeys, if non-empty, enables static API key auth via Authorization: Bearer or X-API-Key.
	APIKeys []string
	// RateLimitEnabled toggles per-client HTTP rate limiting. This gates raw
	// request volume per caller; the per-actor action limit lives in the
	// update pipeline and is enforced regardless.
	RateLimitEnabled bool
	// RateLimitRPM is the allowed requests per minute per client key.
	RateLimitRPM int
	// RateLimitBurst defines burst capacity.
	RateLimitBurst int
	// Audit, if set, exposes recent audit entries at GET {prefix}/audit/recent.
	Audit *audit.Recorder
}

// applyPayload is the POST /scores request body.
type applyPayload struct {
	Actor  string `json:"actor_id"`
	Action string `json:"action"`
	Delta  int64  `json:"delta"`
	Token  string `json:"token"`
}

// NewMux builds an http.Handler exposing the scoreboard REST API and
// WebSocket stream. Routes:
//   - POST {prefix}/scores
//   - GET  {prefix}/leaderboard/top?limit=10
//   - GET  {prefix}/leaderboard/position/{actor}
//   - GET  {prefix}/leaderboard/around/{actor}?radius=2
//   - GET  {prefix}/leaderboard/stats
//   - GET  {prefix}/audit/recent?actor=a&outcome=failed&limit=50 (when enabled)
//   - GET  {prefix}/healthz
//   - WS   {prefix}/ws
func NewMux(pipeline *engine.Pipeline, queries *query.Service, hub *realtime.Hub, opts Options) http.Handler {
	root := mux.NewRouter()
	r := root
	if opts.PathPrefix != "" && opts.PathPrefix != "/" {
		r = root.PathPrefix(strings.TrimSuffix(opts.PathPrefix, "/")).Subrouter()
	}

	r.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		healthCheck(w, req, queries)
	}).Methods(http.MethodGet)

	if hub != nil {
		r.Handle("/ws", wsadapter.Handler(hub))
	}

	r.HandleFunc("/scores", func(w http.ResponseWriter, req *http.Request) {
		var payload applyPayload
		if err := json.NewDecoder(req.Body).Decode(&payload); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "request body must be JSON", nil)
			return
		}
		res, err := pipeline.Apply(req.Context(), engine.ApplyRequest{
			Actor:  core.ActorID(payload.Actor),
			Action: core.ActionKind(payload.Action),
			Delta:  payload.Delta,
			Token:  payload.Token,
		})
		if err != nil {
			writeUpdateError(w, err)
			return
		}
		writeJSON(w, res)
	}).Methods(http.MethodPost)

	r.HandleFunc("/leaderboard/top", func(w http.ResponseWriter, req *http.Request) {
		limit := 10
		if raw := req.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer", nil)
				return
			}
			limit = n
		}
		snap, err := queries.TopUsers(req.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		writeJSON(w, snap)
	}).Methods(http.MethodGet)

	r.HandleFunc("/leaderboard/position/{actor}", func(w http.ResponseWriter, req *http.Request) {
		actor := core.ActorID(mux.Vars(req)["actor"])
		pos, err := queries.PositionOf(req.Context(), actor)
		if err != nil {
			if errors.Is(err, query.ErrUnknownActor) {
				writeError(w, http.StatusNotFound, "unknown_actor", "actor not ranked", nil)
				return
			}
			writeError(w, http.StatusBadRequest, "invalid_actor", err.Error(), nil)
			return
		}
		writeJSON(w, pos)
	}).Methods(http.MethodGet)

	r.HandleFunc("/leaderboard/around/{actor}", func(w http.ResponseWriter, req *http.Request) {
		actor := core.ActorID(mux.Vars(req)["actor"])
		radius := 2
		if raw := req.URL.Query().Get("radius"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, "invalid_radius", "radius must be a non-negative integer", nil)
				return
			}
			radius = n
		}
		entries, err := queries.Around(req.Context(), actor, radius)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor", err.Error(), nil)
			return
		}
		writeJSON(w, map[string]any{"entries": entries})
	}).Methods(http.MethodGet)

	r.HandleFunc("/leaderboard/stats", func(w http.ResponseWriter, req *http.Request) {
		st, err := queries.Stats(req.Context())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
			return
		}
		writeJSON(w, st)
	}).Methods(http.MethodGet)

	if opts.Audit != nil {
		r.HandleFunc("/audit/recent", func(w http.ResponseWriter, req *http.Request) {
			limit := 50
			if raw := req.URL.Query().Get("limit"); raw != "" {
				n, err := strconv.Atoi(raw)
				if err != nil || n <= 0 {
					writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer", nil)
					return
				}
				limit = n
			}
			f := audit.Filter{Actor: core.ActorID(req.URL.Query().Get("actor"))}
			switch req.URL.Query().Get("outcome") {
			case "", "any":
			case "failed":
				f.OnlyFailed = true
			case "success":
				f.OnlySuccess = true
			default:
				writeError(w, http.StatusBadRequest, "invalid_outcome", "outcome must be failed, success, or any", nil)
				return
			}
			writeJSON(w, map[string]any{"entries": opts.Audit.Query(limit, f)})
		}).Methods(http.MethodGet)
	}

	root.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusNotFound, "not_found", "route not found", nil)
	})
	root.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed", nil)
	})

	var handler http.Handler = root
	if opts.AllowCORSOrigin != "" {
		handler = withCORS(handler, opts.AllowCORSOrigin)
	}
	if len(opts.APIKeys) > 0 {
		handler = withAPIKeyAuth(handler, opts.APIKeys)
	}
	if opts.RateLimitEnabled && opts.RateLimitRPM > 0 && opts.RateLimitBurst > 0 {
		handler = withRateLimit(handler, opts.RateLimitRPM, opts.RateLimitBurst)
	}
	return handler
}

// Helpers

// healthCheck verifies the ranked board is reachable with a lightweight read.
func healthCheck(w http.ResponseWriter, r *http.Request, queries *query.Service) {
	_, err := queries.Stats(r.Context())

	status := map[string]any{
		"status": "healthy",
		"checks": map[string]any{
			"board": "ok",
		},
	}
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		status["status"] = "unhealthy"
		status["checks"].(map[string]any)["board"] = "failed"
		_ = json.NewEncoder(w).Encode(status)
		return
	}
	writeJSON(w, status)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func writeError(w http.ResponseWriter, status int, code, msg string, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(apiError{Code: code, Message: msg, Details: details})
}

// writeUpdateError maps pipeline rejections to HTTP statuses.
func writeUpdateError(w http.ResponseWriter, err error) {
	reason := core.ReasonOf(err)
	switch reason {
	case core.ReasonInvalidActor, core.ReasonInvalidDelta:
		writeError(w, http.StatusBadRequest, string(reason), err.Error(), nil)
	case core.ReasonRateLimited:
		writeError(w, http.StatusTooManyRequests, string(reason), err.Error(), nil)
	case core.ReasonTokenRejected:
		status := http.StatusForbidden
		switch core.TokenReasonOf(err) {
		case core.TokenMalformed, core.TokenExpired:
			status = http.StatusUnauthorized
		case core.TokenAlreadyUsed:
			status = http.StatusConflict
		}
		writeError(w, status, string(reason), err.Error(), map[string]any{"token_reason": string(core.TokenReasonOf(err))})
	case core.ReasonPersistence, core.ReasonCacheUnavailable:
		writeError(w, http.StatusServiceUnavailable, string(reason), "temporarily unable to apply the update", nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal", err.Error(), nil)
	}
}

// withCORS wraps a handler with a minimal CORS policy.
func withCORS(next http.Handler, origin string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Vary", "Origin")
		if r.Method == http.MethodOptions {
			w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type,Authorization")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withAPIKeyAuth enforces a shared API key list.
func withAPIKeyAuth(next http.Handler, apiKeys []string) http.Handler {
	allowed := make(map[string]struct{}, len(apiKeys))
	for _, k := range apiKeys {
		k = strings.TrimSpace(k)
		if k != "" {
			allowed[k] = struct{}{}
		}
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := extractAPIKey(r)
		if key == "" {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing API key", nil)
			return
		}
		if _, ok := allowed[key]; !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "invalid API key", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withRateLimit applies a simple token-bucket limiter per client key.
func withRateLimit(next http.Handler, rpm int, burst int) http.Handler {
	limiter := newRateLimiter(rpm, burst)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		if !limiter.allow(key) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func extractAPIKey(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	return ""
}

// clientKey uses API key if present, otherwise remote IP.
func clientKey(r *http.Request) string {
	if key := extractAPIKey(r); key != "" {
		return key
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type rateLimiter struct {
	rpm   float64
	burst float64
	mu    sync.Mutex
	b     map[string]*bucket
}

type bucket struct {
	tokens float64
	last   time.Time
}

func newRateLimiter(rpm, burst int) *rateLimiter {
	return &rateLimiter{
		rpm:   float64(rpm),
		burst: float64(burst),
		b:     make(map[string]*bucket),
	}
}

func (l *rateLimiter) allow(key string) bool {
	now := time.Now()
	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.b[key]
	if !ok {
		l.b[key] = &bucket{tokens: l.burst - 1, last: now}
		return true
	}

	elapsed := now.Sub(b.last).Minutes()
	b.tokens += elapsed * l.rpm
	if b.tokens > l.burst {
		b.tokens = l.burst
	}
	if b.tokens < 1 {
		b.last = now
		return false
	}
	b.tokens--
	b.last = now
	return true
}
