package config

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	var errs []string

	if s.Address == "" {
		errs = append(errs, "address cannot be empty")
	}

	if s.ReadTimeout <= 0 {
		errs = append(errs, "read_timeout must be positive")
	}

	if s.WriteTimeout <= 0 {
		errs = append(errs, "write_timeout must be positive")
	}

	if s.IdleTimeout <= 0 {
		errs = append(errs, "idle_timeout must be positive")
	}

	if s.ReadHeaderTimeout <= 0 {
		errs = append(errs, "read_header_timeout must be positive")
	}

	if s.ShutdownTimeout <= 0 {
		errs = append(errs, "shutdown_timeout must be positive")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates storage configuration
func (s *StorageConfig) Validate() error {
	var errs []string

	// Redis is not a durable adapter here: the ranked board it backs is a
	// rebuildable index, toggled separately via use_redis.
	validAdapters := []string{"memory", "sql", "file"}
	isValidAdapter := false
	for _, adapter := range validAdapters {
		if s.Adapter == adapter {
			isValidAdapter = true
			break
		}
	}

	if !isValidAdapter {
		errs = append(errs, fmt.Sprintf("adapter must be one of: %s", strings.Join(validAdapters, ", ")))
	}

	switch s.Adapter {
	case "sql":
		if s.SQL.DSN == "" {
			errs = append(errs, "sql config: dsn cannot be empty")
		}
	case "file":
		if err := s.File.Validate(); err != nil {
			errs = append(errs, fmt.Sprintf("file config: %v", err))
		}
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates file storage configuration
func (f *FileConfig) Validate() error {
	if f.Path == "" {
		return errors.New("path cannot be empty")
	}
	return nil
}

// Validate validates token verification settings. An empty public key is
// allowed for the memory adapter's demo mode, where a throwaway keypair is
// generated at startup.
func (t *TokenConfig) Validate() error {
	if t.PublicKey == "" {
		return nil
	}
	raw, err := base64.StdEncoding.DecodeString(t.PublicKey)
	if err != nil {
		return fmt.Errorf("public_key must be base64: %w", err)
	}
	if len(raw) != 32 {
		return fmt.Errorf("public_key must decode to 32 bytes, got %d", len(raw))
	}
	return nil
}

// Validate validates pipeline limits
func (l *LimitsConfig) Validate() error {
	var errs []string

	if l.MaxDelta <= 0 {
		errs = append(errs, "max_delta must be positive")
	}

	if l.VisibleWindow <= 0 {
		errs = append(errs, "visible_window must be positive")
	}

	if l.ScoreTTL <= 0 {
		errs = append(errs, "score_ttl must be positive")
	}

	if l.OpTimeout <= 0 {
		errs = append(errs, "op_timeout must be positive")
	}

	if l.SnapshotTTL <= 0 {
		errs = append(errs, "snapshot_ttl must be positive")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates the per-actor action rate limit
func (r *RateLimitConfig) Validate() error {
	var errs []string

	if r.Max <= 0 {
		errs = append(errs, "max must be positive")
	}

	if r.Window <= 0 {
		errs = append(errs, "window must be positive")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	var errs []string

	validLevels := []string{"debug", "info", "warn", "error"}
	isValidLevel := false
	for _, level := range validLevels {
		if l.Level == level {
			isValidLevel = true
			break
		}
	}

	if !isValidLevel {
		errs = append(errs, fmt.Sprintf("level must be one of: %s", strings.Join(validLevels, ", ")))
	}

	validFormats := []string{"json", "text"}
	isValidFormat := false
	for _, format := range validFormats {
		if l.Format == format {
			isValidFormat = true
			break
		}
	}

	if !isValidFormat {
		errs = append(errs, fmt.Sprintf("format must be one of: %s", strings.Join(validFormats, ", ")))
	}

	validOutputs := []string{"stdout", "stderr"}
	isValidOutput := false
	for _, output := range validOutputs {
		if l.Output == output {
			isValidOutput = true
			break
		}
	}

	if !isValidOutput {
		errs = append(errs, fmt.Sprintf("output must be one of: %s", strings.Join(validOutputs, ", ")))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// Validate validates security settings.
func (s SecurityConfig) Validate() error {
	var errs []string
	if s.EnableHTTPRateLimit {
		if s.HTTPRateLimit.RequestsPerMinute <= 0 {
			errs = append(errs, "http_rate_limit.requests_per_minute must be > 0 when rate limiting is enabled")
		}
		if s.HTTPRateLimit.BurstSize <= 0 {
			errs = append(errs, "http_rate_limit.burst_size must be > 0 when rate limiting is enabled")
		}
	}
	for i, key := range s.APIKeys {
		if strings.TrimSpace(key) == "" {
			errs = append(errs, fmt.Sprintf("api_keys[%d] is empty", i))
		}
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
