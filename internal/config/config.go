// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// Config holds the application configuration. Values that individual
// commands require (gateway URL, bot token) are validated where they
// are used, not at load time.
type Config struct {
	GatewayURL       string
	TelegramBotToken string
	DatabasePath     string
	LogLevel         string
	ExportRoot       string
	QuotaStatePath   string
	AMQPURL          string
	AMQPQueue        string

	BatchSize           int
	BatchDelay          time.Duration
	RateLimitDelay      time.Duration
	MaxRetries          int
	MaxBatchesPerSource int
	MaxBatchesBulk      int
	SourceDelay         time.Duration

	HourlyLimit      int
	DailyLimit       int
	ReadOnlyMode     bool
	MaxSourcesPerDay int
	Cooldown         time.Duration
}

// Load reads configuration from environment variables, applying
// defaults for everything unset. Durations use Go syntax ("10s",
// "1h30m").
func Load() (*Config, error) {
	cfg := &Config{
		GatewayURL:       os.Getenv("GATEWAY_URL"),
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabasePath:     envString("DATABASE_PATH", "./data/ingest.db"),
		LogLevel:         envString("LOG_LEVEL", "info"),
		ExportRoot:       envString("EXPORT_ROOT", "./data"),
		QuotaStatePath:   os.Getenv("QUOTA_STATE_PATH"),
		AMQPURL:          os.Getenv("AMQP_URL"),
		AMQPQueue:        envString("AMQP_QUEUE", "ingest.accepted"),
	}

	var err error
	if cfg.BatchSize, err = envInt("BATCH_SIZE", 10); err != nil {
		return nil, err
	}
	if cfg.BatchDelay, err = envDuration("BATCH_DELAY", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RateLimitDelay, err = envDuration("RATE_LIMIT_DELAY", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.MaxRetries, err = envInt("MAX_RETRIES", 2); err != nil {
		return nil, err
	}
	if cfg.MaxBatchesPerSource, err = envInt("MAX_BATCHES_PER_SOURCE", 3); err != nil {
		return nil, err
	}
	if cfg.MaxBatchesBulk, err = envInt("MAX_BATCHES_BULK", 2); err != nil {
		return nil, err
	}
	if cfg.SourceDelay, err = envDuration("SOURCE_DELAY", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.HourlyLimit, err = envInt("HOURLY_LIMIT", 20); err != nil {
		return nil, err
	}
	if cfg.DailyLimit, err = envInt("DAILY_LIMIT", 100); err != nil {
		return nil, err
	}
	if cfg.ReadOnlyMode, err = envBool("READ_ONLY_MODE", false); err != nil {
		return nil, err
	}
	if cfg.MaxSourcesPerDay, err = envInt("MAX_SOURCES_PER_DAY", 10); err != nil {
		return nil, err
	}
	if cfg.Cooldown, err = envDuration("COOLDOWN_PERIOD", time.Hour); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ExportsDir is where single-source run exports land.
func (c *Config) ExportsDir() string { return filepath.Join(c.ExportRoot, "exports") }

// BulkExportsDir is where bulk run exports and summaries land.
func (c *Config) BulkExportsDir() string { return filepath.Join(c.ExportRoot, "bulk_exports") }

// RealtimeDir is where the rolling daily realtime files land.
func (c *Config) RealtimeDir() string { return filepath.Join(c.ExportRoot, "realtime") }

// SearchResultsDir is where exported search results land.
func (c *Config) SearchResultsDir() string { return filepath.Join(c.ExportRoot, "search_results") }

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}

func envBool(key string, fallback bool) (bool, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
}
