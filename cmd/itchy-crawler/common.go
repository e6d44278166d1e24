package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/extua/itchy-crawler/internal/config"
	"github.com/extua/itchy-crawler/internal/resume"
)

// commonFlags are shared by every subcommand.
type commonFlags struct {
	configPath  string
	input       string
	stateDir    string
	stateBucket string
	stateKey    string
	debug       bool
}

func (f *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&f.configPath, "config", "", "YAML config file")
	fs.StringVar(&f.input, "input", "", "Line-delimited target list (default \"urls\")")
	fs.StringVar(&f.stateDir, "state-dir", "", "Local directory holding the cursor (default \".\")")
	fs.StringVar(&f.stateBucket, "state-bucket", "", "Bucket URL holding the cursor, overrides -state-dir")
	fs.StringVar(&f.stateKey, "state-key", "", "Object key of the cursor (default \"state\")")
	fs.BoolVar(&f.debug, "debug", false, "Enable debug logging")
}

// loadConfig layers defaults, the optional config file, the environment and
// finally the explicitly set flags.
func loadConfig(f *commonFlags, override config.Config) (config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		cfg, err = config.LoadFromFile(f.configPath)
		if err != nil {
			return config.Config{}, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	override.Input = f.input
	override.StateDir = f.stateDir
	override.StateBucket = f.stateBucket
	override.StateKey = f.stateKey
	if f.debug {
		override.LogLevel = "debug"
	}
	cfg = cfg.Merge(override)

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func newLogger(level string) *slog.Logger {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      l,
		TimeFormat: time.RFC3339,
	}))
}

// openBucket opens url when set, otherwise a file bucket rooted at dir.
func openBucket(ctx context.Context, url, dir string) (*blob.Bucket, error) {
	if url != "" {
		bkt, err := blob.OpenBucket(ctx, url)
		if err != nil {
			return nil, fmt.Errorf("open bucket %s: %w", url, err)
		}
		return bkt, nil
	}
	bkt, err := fileblob.OpenBucket(dir, &fileblob.Options{CreateDir: true, NoTempDir: true})
	if err != nil {
		return nil, fmt.Errorf("open directory %s: %w", dir, err)
	}
	return bkt, nil
}

func openTracker(ctx context.Context, cfg config.Config) (*resume.Tracker, func(), error) {
	bkt, err := openBucket(ctx, cfg.StateBucket, cfg.StateDir)
	if err != nil {
		return nil, nil, err
	}
	return resume.NewTracker(bkt, cfg.StateKey), func() { bkt.Close() }, nil
}
