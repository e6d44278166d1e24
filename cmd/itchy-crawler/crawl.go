package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/extua/itchy-crawler/internal/config"
	"github.com/extua/itchy-crawler/internal/downloader"
	crawlhttp "github.com/extua/itchy-crawler/internal/http"
	"github.com/extua/itchy-crawler/internal/metrics"
	"github.com/extua/itchy-crawler/internal/pacing"
	"github.com/extua/itchy-crawler/internal/progress"
	"github.com/extua/itchy-crawler/internal/retry"
	"github.com/extua/itchy-crawler/internal/store"
	"github.com/extua/itchy-crawler/internal/targets"
)

// runCrawl fetches the page and data resource of every target in the input
// list, resuming from the saved cursor.
func runCrawl(args []string) int {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)

	var common commonFlags
	common.register(fs)
	bucket := fs.String("bucket", "", "Output bucket URL, overrides -output-dir")
	outputDir := fs.String("output-dir", "", "Local output directory (default \"out\")")
	prefix := fs.String("prefix", "", "Key prefix for stored artifacts")
	commit := fs.String("commit", "", "When to persist the cursor: before or after an item (default \"before\")")
	userAgent := fs.String("user-agent", "", "User-Agent sent with every request")
	timeout := fs.Duration("timeout", 0, "Per-request timeout (default 30s)")
	maxFailures := fs.Int("max-consecutive-failures", 0, "Abort after N consecutive failed items (0 disables)")
	showProgress := fs.Bool("progress", false, "Show progress output")
	metricsAddr := fs.String("metrics-addr", "", "Serve /metrics and /healthz on this address")

	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, `Usage: itchy-crawler run [options]

Fetch each target and target/data.json sequentially, storing <index>.html and
<index>.json. An interrupted run resumes from the saved cursor.

Options:`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return ExitSuccess
		}
		return ExitInvalidArgs
	}

	cfg, err := loadConfig(&common, config.Config{
		Bucket:                 *bucket,
		OutputDir:              *outputDir,
		Prefix:                 *prefix,
		Commit:                 *commit,
		UserAgent:              *userAgent,
		Timeout:                *timeout,
		MaxConsecutiveFailures: *maxFailures,
		Progress:               *showProgress,
		MetricsAddr:            *metricsAddr,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return ExitInvalidArgs
	}

	logger := newLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	list, err := targets.ReadFile(cfg.Input)
	if err != nil {
		logger.Error("Failed to read targets", "error", err)
		return ExitInputError
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := openBucket(ctx, cfg.Bucket, cfg.OutputDir)
	if err != nil {
		logger.Error("Failed to open output", "error", err)
		return ExitStorageError
	}
	defer out.Close()

	tracker, closeTracker, err := openTracker(ctx, cfg)
	if err != nil {
		logger.Error("Failed to open state", "error", err)
		return ExitStorageError
	}
	defer closeTracker()

	if cfg.MetricsAddr != "" {
		srv := metrics.NewServer(cfg.MetricsAddr, logger)
		if err := srv.Start(); err != nil {
			logger.Error("Failed to start metrics server", "error", err)
			return ExitGeneralError
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		}()
	}

	client := crawlhttp.NewClient(crawlhttp.Options{
		UserAgent:   cfg.UserAgent,
		Timeout:     cfg.Timeout,
		MaxBodySize: cfg.MaxBodySize,
	})
	policy := retry.DefaultPolicy()
	policy.MaxRetryAfter = cfg.Retry.MaxRetryAfter
	fetcher := retry.New(client, retry.Options{Policy: policy, Logger: logger})

	pacer := pacing.New(pacing.Options{
		Floor:        cfg.Pacing.Floor,
		Span:         cfg.Pacing.Span,
		IncrementMin: cfg.Pacing.IncrementMin,
		IncrementMax: cfg.Pacing.IncrementMax,
	})

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(progress.Options{
			TotalItems:     len(list.Targets),
			UpdateInterval: 5 * time.Second,
			Source:         cfg.Input,
		})
		reporter.Start()
		defer reporter.Stop()
	}

	summary, err := downloader.Run(ctx, list, downloader.Options{
		Fetcher:                fetcher,
		Pacer:                  pacer,
		Tracker:                tracker,
		Storage:                store.New(out, cfg.Prefix),
		Commit:                 downloader.CommitMode(cfg.Commit),
		MaxConsecutiveFailures: cfg.MaxConsecutiveFailures,
		Progress:               reporter,
		Logger:                 logger,
	})
	printSummary(summary)

	if err != nil {
		var cbErr *downloader.CircuitBreakerError
		switch {
		case ctx.Err() != nil:
			fmt.Fprintln(os.Stderr, "[itchy] Run interrupted, cursor saved for resume")
			return ExitInterrupted
		case errors.As(err, &cbErr):
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitCircuitBreaker
		default:
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return ExitStorageError
		}
	}

	return ExitSuccess
}

func printSummary(s *downloader.Summary) {
	if s == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "[itchy] Run %s: cursor %d -> %d, %d processed, %d skipped, %d stored (%s), %d failed fetches in %s\n",
		s.RunID, s.StartCursor, s.FinalCursor, s.Processed, s.Skipped, s.Stored,
		progress.FormatBytes(s.Bytes), len(s.Failures), s.Duration.Round(time.Millisecond))
	for _, f := range s.Failures {
		fmt.Fprintf(os.Stderr, "[itchy]   #%d %s %s: %v\n", f.Index, f.Resource, f.URL, f.Error)
	}
	if !s.Complete() {
		fmt.Fprintln(os.Stderr, "[itchy] Some fetches failed; reset the cursor to retry them")
	}
	if s.Ratchet > 0 {
		fmt.Fprintf(os.Stderr, "[itchy] Delay ratchet ended at %s\n", s.Ratchet)
	}
}
