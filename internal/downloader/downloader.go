package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/extua/itchy-crawler/internal/metrics"
	"github.com/extua/itchy-crawler/internal/progress"
	"github.com/extua/itchy-crawler/internal/retry"
	"github.com/extua/itchy-crawler/internal/store"
	"github.com/extua/itchy-crawler/internal/targets"
)

// Fetcher retrieves one URL, retrying on rate-limit signals.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (retry.Result, error)
}

// Pacer supplies inter-request delays and learns from retried fetches.
type Pacer interface {
	NextDelay() time.Duration
	Record(retried bool)
	Ratchet() time.Duration
}

// Tracker persists the progress cursor.
type Tracker interface {
	Load(ctx context.Context) (int, error)
	Save(ctx context.Context, cursor int) error
}

// Storage persists fetched bodies.
type Storage interface {
	Key(cursor int, ext string) string
	Store(ctx context.Context, key string, data []byte) error
}

// CommitMode selects when the cursor is persisted for an item.
type CommitMode string

const (
	// CommitBefore saves the item's index before fetching it. An item
	// interrupted mid-fetch is processed again on restart, and completed
	// items are never refetched.
	CommitBefore CommitMode = "before"

	// CommitAfter saves index+1 once both fetches of the item finished.
	CommitAfter CommitMode = "after"
)

// Options configures a run.
type Options struct {
	Fetcher Fetcher
	Pacer   Pacer
	Tracker Tracker
	Storage Storage

	// Commit selects when the cursor is persisted.
	// Default: CommitBefore
	Commit CommitMode

	// MaxConsecutiveFailures is the number of consecutive items with at
	// least one failed fetch before the circuit breaker trips and stops the
	// run. Set to 0 to disable (default).
	MaxConsecutiveFailures int

	// Sleep is used for the paced delays between requests.
	// Default: retry.Sleep
	Sleep retry.SleepFunc

	// Progress is an optional progress reporter.
	Progress *progress.Reporter

	// Logger receives per-item events.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Resource names used in logs, metrics and FailedFetch.
const (
	ResourcePage = "page"
	ResourceData = "data"
)

// FailedFetch records a fetch that did not produce an artifact.
type FailedFetch struct {
	Index    int    // Input line of the target
	Resource string // ResourcePage or ResourceData
	URL      string
	Error    error
}

// CircuitBreakerError is returned when too many consecutive items fail.
//
// Use errors.As to extract this error and inspect FailedFetches for details.
type CircuitBreakerError struct {
	ConsecutiveFailures int           // Number of consecutive failed items
	FailedFetches       []FailedFetch // Failures of those items
}

func (e *CircuitBreakerError) Error() string {
	return fmt.Sprintf("circuit breaker tripped: %d consecutive failed items", e.ConsecutiveFailures)
}

// Summary describes a finished or interrupted run.
type Summary struct {
	RunID       string
	StartCursor int
	// FinalCursor is the last cursor value persisted by this run.
	FinalCursor int
	Processed   int
	Skipped     int
	Stored      int
	Bytes       int64
	Failures    []FailedFetch
	Ratchet     time.Duration
	Duration    time.Duration
}

// Complete reports whether every processed item produced both artifacts.
func (s *Summary) Complete() bool {
	return len(s.Failures) == 0
}

// Run crawls list sequentially.
//
// The returned Summary is always non-nil and reflects the work done up to the
// point of any error.
func Run(ctx context.Context, list *targets.List, opts Options) (*Summary, error) {
	if opts.Commit == "" {
		opts.Commit = CommitBefore
	}
	if opts.Sleep == nil {
		opts.Sleep = retry.Sleep
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	r := &run{
		opts: opts,
		summary: &Summary{
			RunID: uuid.NewString(),
		},
	}
	r.logger = opts.Logger.With("run_id", r.summary.RunID)

	if err := r.validate(); err != nil {
		return r.summary, err
	}

	start := time.Now()
	err := r.loop(ctx, list)
	r.summary.Duration = time.Since(start)
	r.summary.Ratchet = opts.Pacer.Ratchet()
	return r.summary, err
}

type run struct {
	opts    Options
	logger  *slog.Logger
	summary *Summary

	consecutiveFailures int
	recentFailures      []FailedFetch
}

func (r *run) validate() error {
	switch {
	case r.opts.Fetcher == nil:
		return errors.New("downloader: fetcher is required")
	case r.opts.Pacer == nil:
		return errors.New("downloader: pacer is required")
	case r.opts.Tracker == nil:
		return errors.New("downloader: tracker is required")
	case r.opts.Storage == nil:
		return errors.New("downloader: storage is required")
	case r.opts.Commit != CommitBefore && r.opts.Commit != CommitAfter:
		return fmt.Errorf("downloader: unknown commit mode %q", r.opts.Commit)
	}
	return nil
}

func (r *run) loop(ctx context.Context, list *targets.List) error {
	first := true

	for _, tgt := range list.Targets {
		if err := ctx.Err(); err != nil {
			return err
		}

		cursor, err := r.opts.Tracker.Load(ctx)
		if err != nil {
			return fmt.Errorf("load cursor: %w", err)
		}
		if first {
			r.summary.StartCursor = cursor
			r.summary.FinalCursor = cursor
			first = false
		}

		if tgt.Index < cursor {
			r.summary.Skipped++
			metrics.ItemsTotal.WithLabelValues("skipped").Inc()
			if r.opts.Progress != nil {
				r.opts.Progress.ItemSkipped()
			}
			continue
		}

		if r.opts.Commit == CommitBefore {
			if err := r.save(ctx, tgt.Index); err != nil {
				return err
			}
		}

		r.logger.Info("Processing target", "index", tgt.Index, "cursor", cursor, "url", tgt.URL)
		failed, err := r.processItem(ctx, tgt)
		if err != nil {
			return err
		}

		if r.opts.Commit == CommitAfter {
			if err := r.save(ctx, tgt.Index+1); err != nil {
				return err
			}
		}

		r.summary.Processed++
		metrics.ItemsTotal.WithLabelValues("processed").Inc()
		if r.opts.Progress != nil {
			r.opts.Progress.ItemDone()
		}

		if err := r.checkCircuit(failed); err != nil {
			return err
		}
	}

	// Mark the whole input as done so a rerun is a no-op.
	cursor, err := r.opts.Tracker.Load(ctx)
	if err != nil {
		return fmt.Errorf("load cursor: %w", err)
	}
	if first {
		r.summary.StartCursor = cursor
		r.summary.FinalCursor = cursor
	}
	if list.Lines > cursor {
		if err := r.save(ctx, list.Lines); err != nil {
			return err
		}
	}
	return nil
}

// processItem fetches both resources of tgt. It reports whether either fetch
// failed; a non-nil error aborts the run.
func (r *run) processItem(ctx context.Context, tgt targets.Target) (bool, error) {
	delay := r.opts.Pacer.NextDelay()

	resources := []struct {
		name string
		url  string
		ext  string
	}{
		{ResourcePage, tgt.URL, store.PageExt},
		{ResourceData, tgt.DataURL(), store.DataExt},
	}

	failed := false
	for _, res := range resources {
		ok, err := r.fetch(ctx, tgt.Index, res.name, res.url, res.ext)
		if err != nil {
			return failed, err
		}
		if !ok {
			failed = true
		}

		r.logger.Debug("Sleeping", "delay", delay)
		if err := r.opts.Sleep(ctx, delay); err != nil {
			return failed, err
		}
	}
	return failed, nil
}

// fetch retrieves one resource and stores it. It reports whether an artifact
// was stored; only cancellation and storage errors are returned.
func (r *run) fetch(ctx context.Context, index int, resource, url, ext string) (bool, error) {
	r.logger.Info("Downloading", "resource", resource, "url", url)

	result, err := r.opts.Fetcher.Fetch(ctx, url)
	r.opts.Pacer.Record(result.Retried)
	if r.opts.Progress != nil {
		r.opts.Progress.SetPace(r.opts.Pacer.Ratchet())
	}

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}

		r.logger.Warn("Fetch failed",
			"index", index,
			"resource", resource,
			"url", url,
			"status", result.StatusCode,
			"retries", result.Attempts,
			"error", err,
		)
		f := FailedFetch{Index: index, Resource: resource, URL: url, Error: err}
		r.summary.Failures = append(r.summary.Failures, f)
		r.recentFailures = append(r.recentFailures, f)
		metrics.FetchesTotal.WithLabelValues(resource, "failed").Inc()
		if r.opts.Progress != nil {
			r.opts.Progress.FetchFailed()
		}
		return false, nil
	}

	key := r.opts.Storage.Key(index, ext)
	if err := r.opts.Storage.Store(ctx, key, result.Body); err != nil {
		return false, fmt.Errorf("store %s: %w", key, err)
	}

	r.summary.Stored++
	r.summary.Bytes += int64(len(result.Body))
	metrics.FetchesTotal.WithLabelValues(resource, "stored").Inc()
	if r.opts.Progress != nil {
		r.opts.Progress.FetchCompleted(len(result.Body))
	}
	if result.Retried {
		r.logger.Info("Fetched after retries", "resource", resource, "retries", result.Attempts, "ratchet", r.opts.Pacer.Ratchet())
	}
	return true, nil
}

func (r *run) save(ctx context.Context, cursor int) error {
	if err := r.opts.Tracker.Save(ctx, cursor); err != nil {
		return fmt.Errorf("save cursor: %w", err)
	}
	r.summary.FinalCursor = cursor
	return nil
}

func (r *run) checkCircuit(itemFailed bool) error {
	if !itemFailed {
		r.consecutiveFailures = 0
		r.recentFailures = r.recentFailures[:0]
		return nil
	}

	r.consecutiveFailures++
	if r.opts.MaxConsecutiveFailures > 0 && r.consecutiveFailures >= r.opts.MaxConsecutiveFailures {
		failures := make([]FailedFetch, len(r.recentFailures))
		copy(failures, r.recentFailures)
		return &CircuitBreakerError{
			ConsecutiveFailures: r.consecutiveFailures,
			FailedFetches:       failures,
		}
	}
	return nil
}
