package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := Default()

	if cfg.Input != "urls" {
		t.Errorf("expected default input 'urls', got %q", cfg.Input)
	}
	if cfg.StateKey != "state" {
		t.Errorf("expected default state key 'state', got %q", cfg.StateKey)
	}
	if cfg.Commit != "before" {
		t.Errorf("expected default commit 'before', got %q", cfg.Commit)
	}
	if cfg.Pacing.Floor != 20*time.Millisecond || cfg.Pacing.Span != 20*time.Millisecond {
		t.Errorf("unexpected default pacing %+v", cfg.Pacing)
	}
	if cfg.Pacing.IncrementMin != 5*time.Millisecond || cfg.Pacing.IncrementMax != 20*time.Millisecond {
		t.Errorf("unexpected default increments %+v", cfg.Pacing)
	}
	if cfg.Retry.MaxRetryAfter != 377 {
		t.Errorf("expected default max retry-after 377, got %d", cfg.Retry.MaxRetryAfter)
	}
	if cfg.MaxBodySize != 64*1024*1024 {
		t.Errorf("expected default max body size 64MiB, got %d", cfg.MaxBodySize)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Setenv("ITCHY_TEST_BUCKET", "s3://crawl-out?region=eu-west-2")

	yamlContent := `
input: games.txt
bucket: ${ITCHY_TEST_BUCKET}
prefix: run1/
state_key: cursor
commit: after
timeout: 10s
max_body_size: 8MiB
max_consecutive_failures: 25
progress: true
log_level: debug
pacing:
  floor: 50ms
  span: 100ms
  increment_min: 10ms
  increment_max: 40ms
retry:
  max_retry_after: 120
`
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(yamlContent), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	cfg, err := LoadFromFile(configPath)
	if err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}

	if cfg.Input != "games.txt" {
		t.Errorf("expected input games.txt, got %q", cfg.Input)
	}
	if cfg.Bucket != "s3://crawl-out?region=eu-west-2" {
		t.Errorf("expected expanded bucket URL, got %q", cfg.Bucket)
	}
	if cfg.Prefix != "run1/" || cfg.StateKey != "cursor" || cfg.Commit != "after" {
		t.Errorf("unexpected strings: prefix=%q state_key=%q commit=%q", cfg.Prefix, cfg.StateKey, cfg.Commit)
	}
	if cfg.StateDir != "." {
		t.Errorf("expected default state dir to survive, got %q", cfg.StateDir)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("expected timeout 10s, got %v", cfg.Timeout)
	}
	if cfg.MaxBodySize != 8*1024*1024 {
		t.Errorf("expected max body size 8MiB, got %d", cfg.MaxBodySize)
	}
	if cfg.MaxConsecutiveFailures != 25 {
		t.Errorf("expected max consecutive failures 25, got %d", cfg.MaxConsecutiveFailures)
	}
	if !cfg.Progress {
		t.Error("expected progress true")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected log level debug, got %q", cfg.LogLevel)
	}
	if cfg.Pacing.Floor != 50*time.Millisecond || cfg.Pacing.Span != 100*time.Millisecond {
		t.Errorf("unexpected pacing %+v", cfg.Pacing)
	}
	if cfg.Pacing.IncrementMin != 10*time.Millisecond || cfg.Pacing.IncrementMax != 40*time.Millisecond {
		t.Errorf("unexpected increments %+v", cfg.Pacing)
	}
	if cfg.Retry.MaxRetryAfter != 120 {
		t.Errorf("expected max retry-after 120, got %d", cfg.Retry.MaxRetryAfter)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config should be valid: %v", err)
	}
}

func TestLoadFromYAMLInvalidDuration(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("pacing:\n  floor: soon\n"), 0644); err != nil {
		t.Fatalf("write config file: %v", err)
	}

	if _, err := LoadFromFile(configPath); err == nil {
		t.Error("expected error for invalid duration")
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("ITCHY_INPUT", "list.txt")
	t.Setenv("ITCHY_STATE_BUCKET", "mem://")
	t.Setenv("ITCHY_COMMIT", "after")
	t.Setenv("ITCHY_TIMEOUT", "5s")
	t.Setenv("ITCHY_MAX_BODY_SIZE", "1MiB")
	t.Setenv("ITCHY_PROGRESS", "1")
	t.Setenv("ITCHY_PACING_FLOOR", "30ms")
	t.Setenv("ITCHY_PACING_INCREMENT_MAX", "50ms")
	t.Setenv("ITCHY_MAX_CONSECUTIVE_FAILURES", "3")
	t.Setenv("ITCHY_RETRY_MAX_AFTER", "60")

	cfg := Default()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}

	if cfg.Input != "list.txt" {
		t.Errorf("expected input list.txt, got %q", cfg.Input)
	}
	if cfg.StateBucket != "mem://" {
		t.Errorf("expected state bucket mem://, got %q", cfg.StateBucket)
	}
	if cfg.Commit != "after" {
		t.Errorf("expected commit after, got %q", cfg.Commit)
	}
	if cfg.Timeout != 5*time.Second {
		t.Errorf("expected timeout 5s, got %v", cfg.Timeout)
	}
	if cfg.MaxBodySize != 1024*1024 {
		t.Errorf("expected max body size 1MiB, got %d", cfg.MaxBodySize)
	}
	if !cfg.Progress {
		t.Error("expected progress true")
	}
	if cfg.Pacing.Floor != 30*time.Millisecond {
		t.Errorf("expected floor 30ms, got %v", cfg.Pacing.Floor)
	}
	if cfg.Pacing.IncrementMax != 50*time.Millisecond {
		t.Errorf("expected increment max 50ms, got %v", cfg.Pacing.IncrementMax)
	}
	if cfg.MaxConsecutiveFailures != 3 {
		t.Errorf("expected max consecutive failures 3, got %d", cfg.MaxConsecutiveFailures)
	}
	if cfg.Retry.MaxRetryAfter != 60 {
		t.Errorf("expected max retry-after 60, got %d", cfg.Retry.MaxRetryAfter)
	}
}

func TestLoadFromEnvInvalid(t *testing.T) {
	tests := map[string]string{
		"ITCHY_TIMEOUT":                  "forever",
		"ITCHY_MAX_CONSECUTIVE_FAILURES": "many",
		"ITCHY_MAX_BODY_SIZE":            "huge",
	}

	for env, value := range tests {
		t.Run(env, func(t *testing.T) {
			t.Setenv(env, value)
			cfg := Default()
			if err := cfg.LoadFromEnv(); err == nil {
				t.Errorf("expected error for %s=%s", env, value)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{"valid config", func(c *Config) {}, false},
		{"bucket instead of dir", func(c *Config) { c.OutputDir = ""; c.Bucket = "mem://" }, false},
		{"missing input", func(c *Config) { c.Input = "" }, true},
		{"missing output", func(c *Config) { c.OutputDir = "" }, true},
		{"missing state location", func(c *Config) { c.StateDir = "" }, true},
		{"missing state key", func(c *Config) { c.StateKey = "" }, true},
		{"bad commit", func(c *Config) { c.Commit = "never" }, true},
		{"zero timeout", func(c *Config) { c.Timeout = 0 }, true},
		{"zero body size", func(c *Config) { c.MaxBodySize = 0 }, true},
		{"negative failures", func(c *Config) { c.MaxConsecutiveFailures = -1 }, true},
		{"zero floor", func(c *Config) { c.Pacing.Floor = 0 }, true},
		{"inverted increments", func(c *Config) { c.Pacing.IncrementMax = c.Pacing.IncrementMin }, true},
		{"zero retry-after bound", func(c *Config) { c.Retry.MaxRetryAfter = 0 }, true},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, true},
		{"upper-case log level", func(c *Config) { c.LogLevel = "WARN" }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(&cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestMerge(t *testing.T) {
	base := Default()
	override := Config{
		Input:   "other.txt",
		Commit:  "after",
		Timeout: time.Minute,
		Pacing:  PacingConfig{Span: 5 * time.Millisecond},
	}

	result := base.Merge(override)

	if result.Input != "other.txt" {
		t.Errorf("expected input other.txt, got %q", result.Input)
	}
	if result.Commit != "after" {
		t.Errorf("expected commit after, got %q", result.Commit)
	}
	if result.Timeout != time.Minute {
		t.Errorf("expected timeout 1m, got %v", result.Timeout)
	}
	if result.Pacing.Span != 5*time.Millisecond {
		t.Errorf("expected span 5ms, got %v", result.Pacing.Span)
	}
	if result.Pacing.Floor != base.Pacing.Floor {
		t.Errorf("expected floor unchanged, got %v", result.Pacing.Floor)
	}
	if result.StateKey != base.StateKey {
		t.Errorf("expected state key unchanged, got %q", result.StateKey)
	}
	if base.Input != "urls" {
		t.Error("Merge must not modify the receiver")
	}
}
