package config

import (
	"encoding/json"
	"os"
)

// Config is the top-level engine configuration loaded from file/env.
// Durations are expressed in milliseconds to keep the JSON form flat.
type Config struct {
	// DefaultVisibilityTimeoutMs applies when a queue or receive call does
	// not specify one.
	DefaultVisibilityTimeoutMs int64 `json:"defaultVisibilityTimeoutMs"`
	// MaxVisibilityTimeoutMs caps per-receive and change-visibility values.
	MaxVisibilityTimeoutMs int64 `json:"maxVisibilityTimeoutMs"`
	// DefaultRetentionPeriodMs applies when a queue does not specify one.
	DefaultRetentionPeriodMs int64 `json:"defaultRetentionPeriodMs"`
	// DefaultDedupWindowMs is the FIFO deduplication window.
	DefaultDedupWindowMs int64 `json:"defaultDedupWindowMs"`
	// MaxDelayMs caps per-message delivery delay.
	MaxDelayMs int64 `json:"maxDelayMs"`
	// MaxWaitMs caps the long-poll wait on receive.
	MaxWaitMs int64 `json:"maxWaitMs"`
	// SweepIntervalMs is the delivery scheduler tick.
	SweepIntervalMs int64 `json:"sweepIntervalMs"`
	// SweepBatch bounds work done per queue per tick.
	SweepBatch int `json:"sweepBatch"`
	// QueueNameRegex constrains queue names at creation.
	QueueNameRegex string `json:"queueNameRegex"`
}

// Default returns built-in defaults.
func Default() Config {
	return Config{
		DefaultVisibilityTimeoutMs: 30_000,
		MaxVisibilityTimeoutMs:     12 * 60 * 60 * 1000,
		DefaultRetentionPeriodMs:   14 * 24 * 60 * 60 * 1000,
		DefaultDedupWindowMs:       5 * 60 * 1000,
		MaxDelayMs:                 900_000,
		MaxWaitMs:                  20_000,
		SweepIntervalMs:            250,
		SweepBatch:                 1024,
		QueueNameRegex:             `^[a-zA-Z0-9_-]{1,80}(\.fifo)?$`,
	}
}

// Load reads configuration from a JSON file and overlays QUILL_* environment
// variables. If path is empty, returns defaults (plus env overlays).
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, err
		}
		if err := json.Unmarshal(b, &cfg); err != nil {
			return Config{}, err
		}
	}
	FromEnv(&cfg)
	return cfg, nil
}
