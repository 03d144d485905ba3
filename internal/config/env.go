package config

import (
	"os"
	"strconv"
)

// FromEnv overlays QUILL_* environment variables onto cfg.
func FromEnv(cfg *Config) {
	overlayInt64(&cfg.DefaultVisibilityTimeoutMs, "QUILL_DEFAULT_VISIBILITY_TIMEOUT_MS")
	overlayInt64(&cfg.MaxVisibilityTimeoutMs, "QUILL_MAX_VISIBILITY_TIMEOUT_MS")
	overlayInt64(&cfg.DefaultRetentionPeriodMs, "QUILL_DEFAULT_RETENTION_PERIOD_MS")
	overlayInt64(&cfg.DefaultDedupWindowMs, "QUILL_DEFAULT_DEDUP_WINDOW_MS")
	overlayInt64(&cfg.MaxDelayMs, "QUILL_MAX_DELAY_MS")
	overlayInt64(&cfg.MaxWaitMs, "QUILL_MAX_WAIT_MS")
	overlayInt64(&cfg.SweepIntervalMs, "QUILL_SWEEP_INTERVAL_MS")
	if v := os.Getenv("QUILL_SWEEP_BATCH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SweepBatch = n
		}
	}
	if v := os.Getenv("QUILL_QUEUE_NAME_REGEX"); v != "" {
		cfg.QueueNameRegex = v
	}
}

func overlayInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}
