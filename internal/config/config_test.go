package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"postforge/internal/config"
)

func TestDefaultValidates(t *testing.T) {
	cfg := config.Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
	if cfg.Governor.Image.PerMinute != 5 {
		t.Fatalf("unexpected image per-minute default: %d", cfg.Governor.Image.PerMinute)
	}
	if cfg.Analysis.MinConfidence != 20 {
		t.Fatalf("unexpected min confidence default: %d", cfg.Analysis.MinConfidence)
	}
	if cfg.Cache.TTLHours != 24 {
		t.Fatalf("unexpected cache TTL default: %d", cfg.Cache.TTLHours)
	}
}

func TestLoadAppliesOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[paths]
state_dir = "` + dir + `/state"
log_dir = "` + dir + `/logs"
api_bind = "127.0.0.1:9000"

[governor.image]
per_minute = 7
concurrency = 3
min_spacing_ms = 100

[analysis]
min_confidence = 35
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if !exists || resolved == "" {
		t.Fatalf("expected config file to be found, got exists=%v path=%q", exists, resolved)
	}
	if cfg.Governor.Image.PerMinute != 7 {
		t.Fatalf("override not applied: %d", cfg.Governor.Image.PerMinute)
	}
	if cfg.Analysis.MinConfidence != 35 {
		t.Fatalf("override not applied: %d", cfg.Analysis.MinConfidence)
	}
	if cfg.Governor.Text.PerMinute != 30 {
		t.Fatalf("default lost after override: %d", cfg.Governor.Text.PerMinute)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[cache]
ttl_hours = 0
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected validation error for zero TTL")
	}
	if !strings.Contains(err.Error(), "cache.ttl_hours") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("create sample: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("sample config should load: %v", err)
	}
	if !exists {
		t.Fatal("sample config file missing")
	}
	if cfg.VideoPoll.IntervalSeconds != 10 {
		t.Fatalf("unexpected poll interval: %d", cfg.VideoPoll.IntervalSeconds)
	}
}
