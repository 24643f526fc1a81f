// Package config loads the YAML-driven configuration described in
// SPEC_FULL.md §6, adapted from the teacher's internal/config/providers.go
// (yaml-tagged structs) and src/infrastructure/datafacade/factory.go's
// DefaultConfig.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level document. Every enumerated knob of spec.md §6
// (cache root, retry count, max_concurrent, timeouts, deadlines,
// archive_publish_lag_hours, cache_expiry_minutes) lives here.
type Config struct {
	Cache   CacheConfig             `yaml:"cache"`
	Archive ArchiveConfig           `yaml:"archive"`
	Live    LiveConfig              `yaml:"live"`
	Funding FundingConfig           `yaml:"funding"`
	Router  RouterConfig            `yaml:"router"`
}

// CacheConfig configures the Cache Store.
type CacheConfig struct {
	RootPath            string `yaml:"root_path"`
	ExpiryMinutesRecent int    `yaml:"expiry_minutes_recent"`
	RedisAddr           string `yaml:"redis_addr"` // empty = in-process metadata index only
}

// ArchiveConfig configures the Archive Fetcher.
type ArchiveConfig struct {
	BaseURL       string        `yaml:"base_url"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	RetryCount    int           `yaml:"retry_count"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	Compression   string        `yaml:"compression"` // "gzip" (default) or "lz4"
}

// LiveConfig configures the Live Fetcher.
type LiveConfig struct {
	BaseURL        string        `yaml:"base_url"`
	Host           string        `yaml:"host"`
	MaxConcurrent  int           `yaml:"max_concurrent"`
	RestMaxChunks  int           `yaml:"rest_max_chunks"`
	ChunkSize      int           `yaml:"chunk_size"`
	RetryCount     int           `yaml:"retry_count"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	RPS            float64       `yaml:"rps"`
	Burst          int           `yaml:"burst"`
	DailyBudget    int64         `yaml:"daily_budget"`
}

// FundingConfig configures the Funding Fetcher; shares the Live transport
// stack but may target a different endpoint family.
type FundingConfig struct {
	BaseURL string `yaml:"base_url"`
}

// RouterConfig configures the Source Router.
type RouterConfig struct {
	ArchivePublishLagHours int `yaml:"archive_publish_lag_hours"`
}

// OverallDeadline is the implementation-default overall deadline for the
// public get() operation (spec §5), not itself part of the YAML document
// since callers set it per-call via options.
const OverallDeadline = 60 * time.Second

// Default returns sane defaults grounded on the teacher's
// factory.go DefaultConfig (per-venue retry/timeout/concurrency tuning).
func Default() Config {
	return Config{
		Cache: CacheConfig{
			RootPath:            "./data/cache",
			ExpiryMinutesRecent: 60,
		},
		Archive: ArchiveConfig{
			BaseURL:        "https://data.example-archive.invalid",
			MaxConcurrent:  4,
			RetryCount:     3,
			RequestTimeout: 30 * time.Second,
			Compression:    "gzip",
		},
		Live: LiveConfig{
			BaseURL:        "https://api.example-live.invalid",
			Host:           "api.example-live.invalid",
			MaxConcurrent:  5,
			RestMaxChunks:  10,
			ChunkSize:      1000,
			RetryCount:     3,
			RequestTimeout: 10 * time.Second,
			RPS:            10,
			Burst:          20,
			DailyBudget:    100000,
		},
		Funding: FundingConfig{
			BaseURL: "https://api.example-live.invalid",
		},
		Router: RouterConfig{
			ArchivePublishLagHours: 48,
		},
	}
}

// Load reads and parses a YAML config file, filling any zero-valued
// sections from Default().
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return cfg, nil
}
