package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.DefaultVisibilityTimeoutMs != 30_000 {
		t.Fatalf("visibility default = %d", cfg.DefaultVisibilityTimeoutMs)
	}
	if cfg.MaxWaitMs != 20_000 {
		t.Fatalf("max wait default = %d", cfg.MaxWaitMs)
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "quill.json")
	if err := os.WriteFile(path, []byte(`{"maxDelayMs": 1000, "sweepBatch": 16}`), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.MaxDelayMs != 1000 || cfg.SweepBatch != 16 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	// untouched fields keep defaults
	if cfg.MaxWaitMs != Default().MaxWaitMs {
		t.Fatalf("default lost on partial file")
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv("QUILL_MAX_WAIT_MS", "5000")
	t.Setenv("QUILL_SWEEP_BATCH", "7")
	cfg := Default()
	FromEnv(&cfg)
	if cfg.MaxWaitMs != 5000 || cfg.SweepBatch != 7 {
		t.Fatalf("env overlay not applied: %+v", cfg)
	}
}
