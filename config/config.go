// Package config assembles the application configuration from defaults, an
// optional JSON file, and environment variables, in that order of precedence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"scoreboard/adapters/redis"
	"scoreboard/adapters/sqlx"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvStaging     Environment = "staging"
	EnvProduction  Environment = "production"
)

// Config holds the complete application configuration
type Config struct {
	// Environment and profile settings
	Environment Environment `json:"environment" env:"SCOREBOARD_ENV"`
	Profile     string      `json:"profile" env:"SCOREBOARD_PROFILE"`

	// Server configuration
	Server ServerConfig `json:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage"`

	// Action token verification
	Token TokenConfig `json:"token"`

	// Update pipeline limits
	Limits LimitsConfig `json:"limits"`

	// Per-actor action rate limiting
	RateLimit RateLimitConfig `json:"rate_limit"`

	// Logging configuration
	Logging LoggingConfig `json:"logging"`

	// Security configuration
	Security SecurityConfig `json:"security"`

	// Event delivery to external systems
	Notify NotifyConfig `json:"notify"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address           string        `json:"address" env:"SCOREBOARD_SERVER_ADDR"`
	PathPrefix        string        `json:"path_prefix" env:"SCOREBOARD_SERVER_PATH_PREFIX"`
	CORSOrigin        string        `json:"cors_origin" env:"SCOREBOARD_SERVER_CORS_ORIGIN"`
	ReadTimeout       time.Duration `json:"read_timeout" env:"SCOREBOARD_SERVER_READ_TIMEOUT"`
	WriteTimeout      time.Duration `json:"write_timeout" env:"SCOREBOARD_SERVER_WRITE_TIMEOUT"`
	IdleTimeout       time.Duration `json:"idle_timeout" env:"SCOREBOARD_SERVER_IDLE_TIMEOUT"`
	ReadHeaderTimeout time.Duration `json:"read_header_timeout" env:"SCOREBOARD_SERVER_READ_HEADER_TIMEOUT"`
	ShutdownTimeout   time.Duration `json:"shutdown_timeout" env:"SCOREBOARD_SERVER_SHUTDOWN_TIMEOUT"`
}

// StorageConfig holds storage adapter configuration. The adapter selects the
// durable score store; Redis additionally backs the board, rate limiter,
// nonce set, and cache when configured.
type StorageConfig struct {
	Adapter  string       `json:"adapter" env:"SCOREBOARD_STORAGE_ADAPTER"`
	UseRedis bool         `json:"use_redis" env:"SCOREBOARD_STORAGE_USE_REDIS"`
	Redis    redis.Config `json:"redis,omitempty"`
	SQL      sqlx.Config  `json:"sql,omitempty"`
	File     FileConfig   `json:"file,omitempty"`
}

// FileConfig holds JSON file storage configuration
type FileConfig struct {
	Path string `json:"path" env:"SCOREBOARD_STORAGE_FILE_PATH"`
}

// TokenConfig holds action token verification settings. PublicKey is the
// issuer's ed25519 public key, base64 (std encoding).
type TokenConfig struct {
	PublicKey string `json:"public_key" env:"SCOREBOARD_TOKEN_PUBLIC_KEY"`
	Issuer    string `json:"issuer" env:"SCOREBOARD_TOKEN_ISSUER"`
}

// LimitsConfig bounds individual score updates and read staleness.
type LimitsConfig struct {
	MaxDelta      int64         `json:"max_delta" env:"SCOREBOARD_LIMITS_MAX_DELTA"`
	VisibleWindow int           `json:"visible_window" env:"SCOREBOARD_LIMITS_VISIBLE_WINDOW"`
	ScoreTTL      time.Duration `json:"score_ttl" env:"SCOREBOARD_LIMITS_SCORE_TTL"`
	OpTimeout     time.Duration `json:"op_timeout" env:"SCOREBOARD_LIMITS_OP_TIMEOUT"`
	SnapshotTTL   time.Duration `json:"snapshot_ttl" env:"SCOREBOARD_LIMITS_SNAPSHOT_TTL"`
}

// RateLimitConfig holds the per-actor action rate limit.
type RateLimitConfig struct {
	Max    int           `json:"max" env:"SCOREBOARD_RATE_LIMIT_MAX"`
	Window time.Duration `json:"window" env:"SCOREBOARD_RATE_LIMIT_WINDOW"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string            `json:"level" env:"SCOREBOARD_LOG_LEVEL"`
	Format     string            `json:"format" env:"SCOREBOARD_LOG_FORMAT"`
	Output     string            `json:"output" env:"SCOREBOARD_LOG_OUTPUT"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// SecurityConfig holds security-related configuration
type SecurityConfig struct {
	EnableHTTPRateLimit bool              `json:"enable_http_rate_limit" env:"SCOREBOARD_SECURITY_HTTP_RATE_LIMIT_ENABLED"`
	HTTPRateLimit       HTTPRateLimitData `json:"http_rate_limit,omitempty"`
	APIKeys             []string          `json:"api_keys,omitempty" env:"SCOREBOARD_SECURITY_API_KEYS"`
}

// HTTPRateLimitData holds per-client HTTP rate limiting configuration
type HTTPRateLimitData struct {
	RequestsPerMinute int `json:"requests_per_minute" env:"SCOREBOARD_SECURITY_HTTP_RATE_LIMIT_RPM"`
	BurstSize         int `json:"burst_size" env:"SCOREBOARD_SECURITY_HTTP_RATE_LIMIT_BURST"`
}

// NotifyConfig configures outbound event delivery.
type NotifyConfig struct {
	WebhookEndpoints []string `json:"webhook_endpoints,omitempty" env:"SCOREBOARD_NOTIFY_WEBHOOK_ENDPOINTS"`
}

// Load loads configuration from environment variables and validates it
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// validateConfigPath validates that the config file path is safe
func validateConfigPath(path string) error {
	if path == "" {
		return errors.New("config file path cannot be empty")
	}

	cleanPath := filepath.Clean(path)

	if !strings.HasSuffix(strings.ToLower(cleanPath), ".json") {
		return errors.New("config file must have .json extension")
	}

	if _, err := os.Stat(cleanPath); err != nil {
		return fmt.Errorf("config file not accessible: %w", err)
	}

	return nil
}

// LoadFromFile loads configuration from a JSON file. Environment variables
// override file values.
func LoadFromFile(path string) (*Config, error) {
	if err := validateConfigPath(path); err != nil {
		return nil, fmt.Errorf("invalid config file path: %w", err)
	}

	file, err := os.Open(path) // #nosec G304 - Path validated above
	if err != nil {
		return nil, fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// DefaultConfig returns a configuration with sensible defaults for development
func DefaultConfig() *Config {
	return &Config{
		Environment: EnvDevelopment,
		Profile:     "default",
		Server: ServerConfig{
			Address:           ":8080",
			PathPrefix:        "/api",
			CORSOrigin:        "*",
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Storage: StorageConfig{
			Adapter: "memory",
			Redis:   redis.DefaultConfig(),
			SQL:     sqlx.DefaultConfig(sqlx.DriverPostgres),
			File: FileConfig{
				Path: "./data/scoreboard.json",
			},
		},
		Token: TokenConfig{
			Issuer: "scoreboard-issuer",
		},
		Limits: LimitsConfig{
			MaxDelta:      1000,
			VisibleWindow: 10,
			ScoreTTL:      5 * time.Minute,
			OpTimeout:     3 * time.Second,
			SnapshotTTL:   30 * time.Second,
		},
		RateLimit: RateLimitConfig{
			Max:    10,
			Window: time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			EnableHTTPRateLimit: false,
			HTTPRateLimit: HTTPRateLimitData{
				RequestsPerMinute: 60,
				BurstSize:         10,
			},
			APIKeys: []string{},
		},
	}
}

// Validate validates the configuration and returns detailed error messages
func (c *Config) Validate() error {
	var errs []string

	if c.Environment == "" {
		errs = append(errs, "environment cannot be empty")
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}

	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("storage config: %v", err))
	}

	if err := c.Token.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("token config: %v", err))
	}

	if err := c.Limits.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("limits config: %v", err))
	}

	if err := c.RateLimit.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("rate limit config: %v", err))
	}

	if err := c.Logging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("logging config: %v", err))
	}

	if err := c.Security.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("security config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// String returns a JSON representation of the config (with secrets redacted)
func (c *Config) String() string {
	cfg := *c

	if cfg.Storage.SQL.DSN != "" {
		cfg.Storage.SQL.DSN = "[REDACTED]"
	}
	if cfg.Storage.Redis.Password != "" {
		cfg.Storage.Redis.Password = "[REDACTED]"
	}
	if len(cfg.Security.APIKeys) > 0 {
		cfg.Security.APIKeys = []string{"[REDACTED]"}
	}

	data, _ := json.MarshalIndent(cfg, "", "  ")
	return string(data)
}
