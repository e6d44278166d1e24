package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/extua/itchy-crawler/internal/progress"
)

// Config defines configuration for the itchy-crawler CLI.
type Config struct {
	Input       string `yaml:"input"`
	OutputDir   string `yaml:"output_dir"`
	Bucket      string `yaml:"bucket"`
	Prefix      string `yaml:"prefix"`
	StateDir    string `yaml:"state_dir"`
	StateBucket string `yaml:"state_bucket"`
	StateKey    string `yaml:"state_key"`
	Commit      string `yaml:"commit"`

	UserAgent   string        `yaml:"user_agent"`
	Timeout     time.Duration `yaml:"timeout"`
	MaxBodySize int64         `yaml:"max_body_size"`

	MaxConsecutiveFailures int `yaml:"max_consecutive_failures"`

	Progress    bool   `yaml:"progress"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`

	Pacing PacingConfig `yaml:"pacing"`
	Retry  RetryConfig  `yaml:"retry"`
}

// PacingConfig defines the inter-request delay ratchet.
type PacingConfig struct {
	Floor        time.Duration `yaml:"floor"`
	Span         time.Duration `yaml:"span"`
	IncrementMin time.Duration `yaml:"increment_min"`
	IncrementMax time.Duration `yaml:"increment_max"`
}

// RetryConfig defines rate-limit handling.
type RetryConfig struct {
	// MaxRetryAfter is the exclusive bound, in seconds, for honouring a
	// Retry-After header.
	MaxRetryAfter int `yaml:"max_retry_after"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	return Config{
		Input:       "urls",
		OutputDir:   "out",
		StateDir:    ".",
		StateKey:    "state",
		Commit:      "before",
		UserAgent:   "itchy-crawler (+https://github.com/extua/itchy-crawler)",
		Timeout:     30 * time.Second,
		MaxBodySize: 64 * 1024 * 1024, // 64MiB
		LogLevel:    "info",
		Pacing: PacingConfig{
			Floor:        20 * time.Millisecond,
			Span:         20 * time.Millisecond,
			IncrementMin: 5 * time.Millisecond,
			IncrementMax: 20 * time.Millisecond,
		},
		Retry: RetryConfig{
			MaxRetryAfter: 377,
		},
	}
}

// yamlConfig is used for YAML unmarshaling with string durations and sizes.
type yamlConfig struct {
	Input                  string           `yaml:"input"`
	OutputDir              string           `yaml:"output_dir"`
	Bucket                 string           `yaml:"bucket"`
	Prefix                 string           `yaml:"prefix"`
	StateDir               string           `yaml:"state_dir"`
	StateBucket            string           `yaml:"state_bucket"`
	StateKey               string           `yaml:"state_key"`
	Commit                 string           `yaml:"commit"`
	UserAgent              string           `yaml:"user_agent"`
	Timeout                string           `yaml:"timeout"`
	MaxBodySize            string           `yaml:"max_body_size"`
	MaxConsecutiveFailures int              `yaml:"max_consecutive_failures"`
	Progress               bool             `yaml:"progress"`
	MetricsAddr            string           `yaml:"metrics_addr"`
	LogLevel               string           `yaml:"log_level"`
	Pacing                 yamlPacingConfig `yaml:"pacing"`
	Retry                  RetryConfig      `yaml:"retry"`
}

type yamlPacingConfig struct {
	Floor        string `yaml:"floor"`
	Span         string `yaml:"span"`
	IncrementMin string `yaml:"increment_min"`
	IncrementMax string `yaml:"increment_max"`
}

// LoadFromFile loads configuration from a YAML file. Environment variable
// references in the file are expanded before parsing.
func LoadFromFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	var yc yamlConfig
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &yc); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}

	cfg := Default()
	cfg = cfg.Merge(Config{
		Input:                  yc.Input,
		OutputDir:              yc.OutputDir,
		Bucket:                 yc.Bucket,
		Prefix:                 yc.Prefix,
		StateDir:               yc.StateDir,
		StateBucket:            yc.StateBucket,
		StateKey:               yc.StateKey,
		Commit:                 yc.Commit,
		UserAgent:              yc.UserAgent,
		MaxConsecutiveFailures: yc.MaxConsecutiveFailures,
		Progress:               yc.Progress,
		MetricsAddr:            yc.MetricsAddr,
		LogLevel:               yc.LogLevel,
		Retry:                  yc.Retry,
	})

	durations := []struct {
		name  string
		value string
		dst   *time.Duration
	}{
		{"timeout", yc.Timeout, &cfg.Timeout},
		{"pacing.floor", yc.Pacing.Floor, &cfg.Pacing.Floor},
		{"pacing.span", yc.Pacing.Span, &cfg.Pacing.Span},
		{"pacing.increment_min", yc.Pacing.IncrementMin, &cfg.Pacing.IncrementMin},
		{"pacing.increment_max", yc.Pacing.IncrementMax, &cfg.Pacing.IncrementMax},
	}
	for _, d := range durations {
		if d.value == "" {
			continue
		}
		v, err := time.ParseDuration(d.value)
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.name, err)
		}
		*d.dst = v
	}

	if yc.MaxBodySize != "" {
		size, err := progress.ParseBytes(yc.MaxBodySize)
		if err != nil {
			return Config{}, fmt.Errorf("parse max_body_size: %w", err)
		}
		cfg.MaxBodySize = size
	}

	return cfg, nil
}

// LoadFromEnv loads configuration from environment variables.
// Environment variables use the ITCHY_ prefix.
func (c *Config) LoadFromEnv() error {
	strs := []struct {
		env string
		dst *string
	}{
		{"ITCHY_INPUT", &c.Input},
		{"ITCHY_OUTPUT_DIR", &c.OutputDir},
		{"ITCHY_BUCKET", &c.Bucket},
		{"ITCHY_PREFIX", &c.Prefix},
		{"ITCHY_STATE_DIR", &c.StateDir},
		{"ITCHY_STATE_BUCKET", &c.StateBucket},
		{"ITCHY_STATE_KEY", &c.StateKey},
		{"ITCHY_COMMIT", &c.Commit},
		{"ITCHY_USER_AGENT", &c.UserAgent},
		{"ITCHY_METRICS_ADDR", &c.MetricsAddr},
		{"ITCHY_LOG_LEVEL", &c.LogLevel},
	}
	for _, s := range strs {
		if v := os.Getenv(s.env); v != "" {
			*s.dst = v
		}
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"ITCHY_TIMEOUT", &c.Timeout},
		{"ITCHY_PACING_FLOOR", &c.Pacing.Floor},
		{"ITCHY_PACING_SPAN", &c.Pacing.Span},
		{"ITCHY_PACING_INCREMENT_MIN", &c.Pacing.IncrementMin},
		{"ITCHY_PACING_INCREMENT_MAX", &c.Pacing.IncrementMax},
	}
	for _, d := range durations {
		if v := os.Getenv(d.env); v != "" {
			parsed, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", d.env, err)
			}
			*d.dst = parsed
		}
	}

	ints := []struct {
		env string
		dst *int
	}{
		{"ITCHY_MAX_CONSECUTIVE_FAILURES", &c.MaxConsecutiveFailures},
		{"ITCHY_RETRY_MAX_AFTER", &c.Retry.MaxRetryAfter},
	}
	for _, i := range ints {
		if v := os.Getenv(i.env); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("parse %s: %w", i.env, err)
			}
			*i.dst = n
		}
	}

	if v := os.Getenv("ITCHY_MAX_BODY_SIZE"); v != "" {
		size, err := progress.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("parse ITCHY_MAX_BODY_SIZE: %w", err)
		}
		c.MaxBodySize = size
	}
	if v := os.Getenv("ITCHY_PROGRESS"); v != "" {
		c.Progress = v == "true" || v == "1"
	}

	return nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Input == "" {
		return errors.New("config: input is required")
	}
	if c.Bucket == "" && c.OutputDir == "" {
		return errors.New("config: bucket or output_dir is required")
	}
	if c.StateBucket == "" && c.StateDir == "" {
		return errors.New("config: state_bucket or state_dir is required")
	}
	if c.StateKey == "" {
		return errors.New("config: state_key is required")
	}
	if c.Commit != "before" && c.Commit != "after" {
		return fmt.Errorf("config: commit must be 'before' or 'after', got %q", c.Commit)
	}
	if c.Timeout <= 0 {
		return errors.New("config: timeout must be positive")
	}
	if c.MaxBodySize <= 0 {
		return errors.New("config: max_body_size must be positive")
	}
	if c.MaxConsecutiveFailures < 0 {
		return errors.New("config: max_consecutive_failures cannot be negative")
	}
	if c.Pacing.Floor <= 0 || c.Pacing.Span <= 0 {
		return errors.New("config: pacing floor and span must be positive")
	}
	if c.Pacing.IncrementMin <= 0 || c.Pacing.IncrementMax <= c.Pacing.IncrementMin {
		return errors.New("config: pacing increments must satisfy 0 < increment_min < increment_max")
	}
	if c.Retry.MaxRetryAfter <= 0 {
		return errors.New("config: retry.max_retry_after must be positive")
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: unknown log_level %q", c.LogLevel)
	}
	return nil
}

// Merge merges override values into c, returning a new Config.
// Zero values in override are ignored.
func (c Config) Merge(override Config) Config {
	mergeString(&c.Input, override.Input)
	mergeString(&c.OutputDir, override.OutputDir)
	mergeString(&c.Bucket, override.Bucket)
	mergeString(&c.Prefix, override.Prefix)
	mergeString(&c.StateDir, override.StateDir)
	mergeString(&c.StateBucket, override.StateBucket)
	mergeString(&c.StateKey, override.StateKey)
	mergeString(&c.Commit, override.Commit)
	mergeString(&c.UserAgent, override.UserAgent)
	mergeString(&c.MetricsAddr, override.MetricsAddr)
	mergeString(&c.LogLevel, override.LogLevel)

	if override.Timeout != 0 {
		c.Timeout = override.Timeout
	}
	if override.MaxBodySize != 0 {
		c.MaxBodySize = override.MaxBodySize
	}
	if override.MaxConsecutiveFailures != 0 {
		c.MaxConsecutiveFailures = override.MaxConsecutiveFailures
	}
	if override.Progress {
		c.Progress = override.Progress
	}
	if override.Pacing.Floor != 0 {
		c.Pacing.Floor = override.Pacing.Floor
	}
	if override.Pacing.Span != 0 {
		c.Pacing.Span = override.Pacing.Span
	}
	if override.Pacing.IncrementMin != 0 {
		c.Pacing.IncrementMin = override.Pacing.IncrementMin
	}
	if override.Pacing.IncrementMax != 0 {
		c.Pacing.IncrementMax = override.Pacing.IncrementMax
	}
	if override.Retry.MaxRetryAfter != 0 {
		c.Retry.MaxRetryAfter = override.Retry.MaxRetryAfter
	}
	return c
}

func mergeString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
