package progress

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// TotalItems is the number of targets in the input.
	TotalItems int

	// Output is where to write progress output.
	// Default: os.Stdout
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 5s
	UpdateInterval time.Duration

	// Source names the input being crawled (for display).
	Source string
}

// Reporter outputs human-readable progress information.
type Reporter struct {
	opts Options

	mu        sync.Mutex
	processed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	stored    atomic.Int64
	bytes     atomic.Int64
	pace      atomic.Int64
	startTime time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	stopped   bool
}

// NewReporter creates a new progress reporter.
func NewReporter(opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 5 * time.Second
	}

	return &Reporter{
		opts:   opts,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	r.startTime = time.Now()
	r.started = true
	r.mu.Unlock()

	fmt.Fprintf(r.opts.Output, "[itchy] Crawling: %s (%d targets)\n", r.opts.Source, r.opts.TotalItems)

	go r.updateLoop()
}

// Stop stops the reporter and prints the final status. It blocks until the
// final status has been written.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if r.stopped || !r.started {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

// ItemSkipped marks an item as already processed by a previous run.
func (r *Reporter) ItemSkipped() {
	r.skipped.Add(1)
}

// ItemDone marks an item as processed in this run.
func (r *Reporter) ItemDone() {
	r.processed.Add(1)
}

// FetchCompleted records a stored artifact of size bytes.
func (r *Reporter) FetchCompleted(size int) {
	r.stored.Add(1)
	r.bytes.Add(int64(size))
}

// FetchFailed records a failed fetch.
func (r *Reporter) FetchFailed() {
	r.failed.Add(1)
}

// SetPace records the current pacing baseline.
func (r *Reporter) SetPace(d time.Duration) {
	r.pace.Store(int64(d))
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Processed int
	Skipped   int
	Failed    int
	Stored    int
	Bytes     int64
	Pace      time.Duration
}

// Snapshot returns the current counters.
func (r *Reporter) Snapshot() Snapshot {
	return Snapshot{
		Processed: int(r.processed.Load()),
		Skipped:   int(r.skipped.Load()),
		Failed:    int(r.failed.Load()),
		Stored:    int(r.stored.Load()),
		Bytes:     r.bytes.Load(),
		Pace:      time.Duration(r.pace.Load()),
	}
}

// updateLoop periodically updates the progress display.
func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printFinalStatus()
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

// printProgress outputs the current progress.
func (r *Reporter) printProgress() {
	s := r.Snapshot()
	elapsed := time.Since(r.startTime)

	remaining := r.opts.TotalItems - s.Skipped
	if remaining < 0 {
		remaining = 0
	}

	var percent float64
	if remaining > 0 {
		percent = float64(s.Processed) / float64(remaining) * 100
	}

	rate := 0.0
	if elapsed > 0 {
		rate = float64(s.Processed) / elapsed.Seconds()
	}

	eta := "calculating..."
	if rate > 0 {
		left := float64(remaining - s.Processed)
		eta = formatDuration(time.Duration(left / rate * float64(time.Second)))
	}

	fmt.Fprintf(r.opts.Output, "[itchy] Progress: %.1f%% | %d/%d items | %d skipped | %d failed | %s | Rate: %.1f/s | Pace: %s | ETA: %s\n",
		percent,
		s.Processed,
		remaining,
		s.Skipped,
		s.Failed,
		formatBytes(s.Bytes),
		rate,
		s.Pace.Round(time.Millisecond),
		eta,
	)
}

// printFinalStatus outputs the final status.
func (r *Reporter) printFinalStatus() {
	s := r.Snapshot()
	duration := time.Since(r.startTime)

	fmt.Fprintf(r.opts.Output, "[itchy] Done: %d items processed | %d skipped | %d artifacts (%s) | %d failed fetches\n",
		s.Processed,
		s.Skipped,
		s.Stored,
		formatBytes(s.Bytes),
		s.Failed,
	)
	fmt.Fprintf(r.opts.Output, "[itchy] Total time: %s | Final pace: %s\n",
		formatDuration(duration),
		s.Pace.Round(time.Millisecond),
	)
}

// formatBytes formats bytes as a human-readable string using binary units.
func formatBytes(b int64) string {
	const (
		KiB = 1024
		MiB = KiB * 1024
		GiB = MiB * 1024
		TiB = GiB * 1024
	)

	switch {
	case b >= TiB:
		return formatUnit(float64(b)/TiB, "TiB")
	case b >= GiB:
		return formatUnit(float64(b)/GiB, "GiB")
	case b >= MiB:
		return formatUnit(float64(b)/MiB, "MiB")
	case b >= KiB:
		return formatUnit(float64(b)/KiB, "KiB")
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatUnit prints whole values without a decimal and others with one.
func formatUnit(v float64, unit string) string {
	if v >= 100 {
		return fmt.Sprintf("%.0f %s", v, unit)
	}
	return fmt.Sprintf("%.1f %s", v, unit)
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}

// FormatBytes is exported for use by other packages.
func FormatBytes(b int64) string {
	return formatBytes(b)
}

// ParseBytes parses a human-readable byte string such as "64MiB" or "10MB".
// Binary suffixes (KiB, MiB, GiB, TiB) and SI suffixes (KB, MB, GB, TB) are
// accepted.
func ParseBytes(s string) (int64, error) {
	s = strings.TrimSpace(s)

	units := []struct {
		suffix     string
		multiplier int64
	}{
		{"TiB", 1 << 40},
		{"GiB", 1 << 30},
		{"MiB", 1 << 20},
		{"KiB", 1 << 10},
		{"TB", 1000 * 1000 * 1000 * 1000},
		{"GB", 1000 * 1000 * 1000},
		{"MB", 1000 * 1000},
		{"KB", 1000},
		{"B", 1},
	}

	multiplier := int64(1)
	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			multiplier = u.multiplier
			s = strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			break
		}
	}

	value, err := strconv.ParseFloat(s, 64)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("invalid byte string: %q", s)
	}

	return int64(value * float64(multiplier)), nil
}
