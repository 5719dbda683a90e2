package config

import (
	"encoding/base64"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, EnvDevelopment, cfg.Environment)
	assert.Equal(t, ":8080", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Storage.Adapter)
	assert.Equal(t, int64(1000), cfg.Limits.MaxDelta)
	assert.Equal(t, 10, cfg.Limits.VisibleWindow)
	assert.Equal(t, 10, cfg.RateLimit.Max)
	assert.Equal(t, time.Minute, cfg.RateLimit.Window)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	os.Setenv("SCOREBOARD_LIMITS_MAX_DELTA", "250")
	os.Setenv("SCOREBOARD_RATE_LIMIT_MAX", "3")
	defer os.Unsetenv("SCOREBOARD_LIMITS_MAX_DELTA")
	defer os.Unsetenv("SCOREBOARD_RATE_LIMIT_MAX")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, int64(250), cfg.Limits.MaxDelta)
	assert.Equal(t, 3, cfg.RateLimit.Max)
}

func TestLoadFromFile(t *testing.T) {
	configContent := `{
		"environment": "testing",
		"server": {
			"address": ":9090"
		},
		"storage": {
			"adapter": "memory"
		},
		"limits": {
			"max_delta": 500
		}
	}`

	tmpFile, err := os.CreateTemp("", "config_test_*.json")
	require.NoError(t, err)
	defer os.Remove(tmpFile.Name())

	_, err = tmpFile.WriteString(configContent)
	require.NoError(t, err)
	tmpFile.Close()

	cfg, err := LoadFromFile(tmpFile.Name())
	require.NoError(t, err)
	require.NotNil(t, cfg)

	assert.Equal(t, EnvTesting, cfg.Environment)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "memory", cfg.Storage.Adapter)
	assert.Equal(t, int64(500), cfg.Limits.MaxDelta)
	// Sections absent from the file keep their defaults.
	assert.Equal(t, 10, cfg.RateLimit.Max)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return DefaultConfig() }

	tests := []struct {
		name        string
		mutate      func(*Config)
		expectError bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"invalid environment", func(c *Config) { c.Environment = "" }, true},
		{"invalid server timeout", func(c *Config) { c.Server.ReadTimeout = 0 }, true},
		{"unknown adapter", func(c *Config) { c.Storage.Adapter = "cassandra" }, true},
		{"sql adapter without dsn", func(c *Config) { c.Storage.Adapter = "sql" }, true},
		{"zero max delta", func(c *Config) { c.Limits.MaxDelta = 0 }, true},
		{"zero rate limit window", func(c *Config) { c.RateLimit.Window = 0 }, true},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, true},
		{"empty api key", func(c *Config) { c.Security.APIKeys = []string{"  "} }, true},
		{"bad public key encoding", func(c *Config) { c.Token.PublicKey = "!!!" }, true},
		{"short public key", func(c *Config) {
			c.Token.PublicKey = base64.StdEncoding.EncodeToString([]byte("short"))
		}, true},
		{"valid public key", func(c *Config) {
			c.Token.PublicKey = base64.StdEncoding.EncodeToString(make([]byte, 32))
		}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.expectError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStringRedactsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Storage.SQL.DSN = "postgres://user:hunter2@db/scores"
	cfg.Storage.Redis.Password = "hunter2"
	cfg.Security.APIKeys = []string{"topsecret"}

	out := cfg.String()
	assert.NotContains(t, out, "hunter2")
	assert.NotContains(t, out, "topsecret")
	assert.Contains(t, out, "[REDACTED]")
}

func TestValidateConfigPath(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "config_test_*.json")
	require.NoError(t, err)
	tmpFile.WriteString("{}")
	tmpFile.Close()
	defer os.Remove(tmpFile.Name())

	assert.NoError(t, validateConfigPath(tmpFile.Name()))
	assert.Error(t, validateConfigPath(""))
	assert.Error(t, validateConfigPath("nonexistent.json"))
	assert.Error(t, validateConfigPath("config.txt"))
}
