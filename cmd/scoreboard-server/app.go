package main

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	jsonfileAdapter "scoreboard/adapters/jsonfile"
	mem "scoreboard/adapters/memory"
	redisAdapter "scoreboard/adapters/redis"
	sqlxAdapter "scoreboard/adapters/sqlx"
	"scoreboard/api/httpapi"
	"scoreboard/audit"
	"scoreboard/config"
	"scoreboard/core"
	"scoreboard/engine"
	"scoreboard/integrations/webhook"
	"scoreboard/query"
	"scoreboard/rank"
	"scoreboard/ratelimit"
	"scoreboard/realtime"
	"scoreboard/token"
)

// App aggregates the assembled server components.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Hub      *realtime.Hub
	Backends *Backends
	Pipeline *engine.Pipeline
	Queries  *query.Service
	Handler  http.Handler
	Server   *http.Server
}

// Backends groups the pipeline collaborators chosen by configuration: a
// durable score store plus the board, cache, nonce set, and rate limiter,
// Redis-backed when configured and process-local otherwise.
type Backends struct {
	Store   engine.ScoreStore
	Board   rank.Board
	Cache   engine.Cache
	Nonces  token.NonceStore
	Limiter ratelimit.Limiter
	Audit   *audit.Recorder

	closers []func() error
}

// Close releases backend resources (SQL pools, Redis clients).
func (b *Backends) Close() error {
	var lastErr error
	for _, c := range b.closers {
		if err := c(); err != nil {
			lastErr = err
		}
	}
	return lastErr
}

func provideConfig(_ context.Context) (*config.Config, error) {
	if path := os.Getenv("SCOREBOARD_CONFIG_FILE"); path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func provideLogger(cfg *config.Config) *slog.Logger {
	return setupLogging(cfg)
}

func provideHub() *realtime.Hub {
	return realtime.NewHub()
}

func provideBackends(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backends, error) {
	b := &Backends{}

	store, closer, err := setupStore(cfg)
	if err != nil {
		return nil, err
	}
	// mirror audit entries into a bounded in-memory recorder for /audit/recent
	b.Audit = audit.NewRecorder(0)
	b.Store = audit.NewRecordingStore(store, b.Audit)
	if closer != nil {
		b.closers = append(b.closers, closer)
	}

	if cfg.Storage.UseRedis {
		client, err := redisAdapter.Connect(cfg.Storage.Redis)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		b.closers = append(b.closers, client.Close)
		b.Board = redisAdapter.NewBoard(client)
		b.Cache = redisAdapter.NewCache(client)
		b.Nonces = redisAdapter.NewNonceStore(client)
		b.Limiter = redisAdapter.NewLimiter(client, cfg.RateLimit.Max, cfg.RateLimit.Window)
	} else {
		b.Board = rank.NewSkipList()
		b.Cache = mem.NewCache()
		b.Nonces = token.NewMemoryNonceStore()
		b.Limiter = ratelimit.NewMemory(cfg.RateLimit.Max, cfg.RateLimit.Window)
	}

	// The board is a derived index; the durable store is the source of truth.
	if err := engine.RebuildBoard(ctx, b.Store, b.Board); err != nil {
		return nil, fmt.Errorf("rebuild board: %w", err)
	}
	logger.Info("backends ready",
		"storage_adapter", cfg.Storage.Adapter,
		"redis", cfg.Storage.UseRedis)
	return b, nil
}

func setupStore(cfg *config.Config) (engine.ScoreStore, func() error, error) {
	switch cfg.Storage.Adapter {
	case "memory":
		return mem.New(), nil, nil
	case "sql":
		store, err := sqlxAdapter.New(cfg.Storage.SQL)
		if err != nil {
			return nil, nil, err
		}
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Limits.OpTimeout)
		defer cancel()
		if err := store.EnsureSchema(ctx); err != nil {
			_ = store.Close()
			return nil, nil, fmt.Errorf("ensure schema: %w", err)
		}
		return store, store.Close, nil
	case "file":
		store, err := jsonfileAdapter.New(cfg.Storage.File.Path)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage adapter: %s", cfg.Storage.Adapter)
	}
}

func provideValidator(cfg *config.Config, b *Backends, logger *slog.Logger) (*token.Validator, error) {
	if cfg.Token.PublicKey == "" {
		if cfg.Environment == config.EnvProduction {
			return nil, errors.New("token.public_key is required in production")
		}
		pub, _, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		logger.Warn("no token public key configured; generated a throwaway key, no externally issued token will validate",
			"public_key", base64.StdEncoding.EncodeToString(pub))
		return token.NewValidator(pub, cfg.Token.Issuer, b.Nonces, nil)
	}
	raw, err := base64.StdEncoding.DecodeString(cfg.Token.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("decode token public key: %w", err)
	}
	return token.NewValidator(ed25519.PublicKey(raw), cfg.Token.Issuer, b.Nonces, nil)
}

func providePipeline(cfg *config.Config, b *Backends, validator *token.Validator, hub *realtime.Hub, logger *slog.Logger) *engine.Pipeline {
	bus := engine.NewEventBus(engine.DispatchAsync)
	limits := engine.DefaultLimits()
	limits.MaxDelta = cfg.Limits.MaxDelta
	limits.VisibleWindow = cfg.Limits.VisibleWindow
	limits.ScoreTTL = cfg.Limits.ScoreTTL
	limits.OpTimeout = cfg.Limits.OpTimeout
	pipeline := engine.NewPipeline(b.Store, b.Board, b.Cache, validator, b.Limiter, bus, limits, logger)

	for _, typ := range []core.EventType{core.EventPersonalScoreChanged, core.EventLeaderboardChanged} {
		pipeline.Subscribe(typ, hub.Broadcast)
	}
	if len(cfg.Notify.WebhookEndpoints) > 0 {
		sink := webhook.New(cfg.Notify.WebhookEndpoints)
		for _, typ := range []core.EventType{core.EventPersonalScoreChanged, core.EventLeaderboardChanged} {
			pipeline.Subscribe(typ, sink.OnEvent)
		}
	}
	return pipeline
}

func provideQueries(cfg *config.Config, b *Backends, logger *slog.Logger) *query.Service {
	return query.NewService(b.Board, b.Cache, cfg.Limits.SnapshotTTL, logger)
}

func provideHandler(pipeline *engine.Pipeline, queries *query.Service, hub *realtime.Hub, b *Backends, cfg *config.Config) http.Handler {
	return httpapi.NewMux(pipeline, queries, hub, httpapi.Options{
		PathPrefix:       cfg.Server.PathPrefix,
		AllowCORSOrigin:  cfg.Server.CORSOrigin,
		APIKeys:          cfg.Security.APIKeys,
		RateLimitEnabled: cfg.Security.EnableHTTPRateLimit,
		RateLimitRPM:     cfg.Security.HTTPRateLimit.RequestsPerMinute,
		RateLimitBurst:   cfg.Security.HTTPRateLimit.BurstSize,
		Audit:            b.Audit,
	})
}

func provideServer(cfg *config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Server.Address,
		Handler:           handler,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
}

// setupLogging configures the logger based on configuration.
func setupLogging(cfg *config.Config) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.Logging.Level),
	}

	out := os.Stdout
	if cfg.Logging.Output == "stderr" {
		out = os.Stderr
	}

	switch cfg.Logging.Format {
	case "text":
		handler = slog.NewTextHandler(out, opts)
	default:
		handler = slog.NewJSONHandler(out, opts)
	}

	if len(cfg.Logging.Attributes) > 0 {
		handler = handler.WithAttrs(convertAttributes(cfg.Logging.Attributes))
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// convertAttributes converts map[string]string to []slog.Attr.
func convertAttributes(attrs map[string]string) []slog.Attr {
	var result []slog.Attr
	for k, v := range attrs {
		result = append(result, slog.String(k, v))
	}
	return result
}
