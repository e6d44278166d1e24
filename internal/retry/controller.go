package retry

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	crawlhttp "github.com/extua/itchy-crawler/internal/http"
	"github.com/extua/itchy-crawler/internal/metrics"
)

// Transport performs one request and returns the response or a transport
// failure.
type Transport interface {
	Send(ctx context.Context, url string) (*crawlhttp.Response, error)
}

// SleepFunc blocks for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Options configures a Controller.
type Options struct {
	// Policy holds the backoff schedule.
	// Default: DefaultPolicy()
	Policy Policy

	// Sleep is used for backoff waits.
	// Default: Sleep
	Sleep SleepFunc

	// Logger receives backoff and failure events.
	// Default: slog.Default()
	Logger *slog.Logger
}

// Result describes a finished fetch. It is meaningful on failure too.
type Result struct {
	Body       []byte
	StatusCode int
	// Attempts is the number of retries taken.
	Attempts int
	// Retried is true iff at least one retry was taken.
	Retried bool
	// Final is the state the machine stopped in.
	Final State
}

// Controller runs fetches through the backoff state machine.
type Controller struct {
	transport Transport
	policy    Policy
	sleep     SleepFunc
	logger    *slog.Logger
}

// New creates a Controller around transport.
func New(transport Transport, opts Options) *Controller {
	if len(opts.Policy.Schedule) == 0 {
		opts.Policy.Schedule = DefaultSchedule
	}
	opts.Policy.Schedule = slices.Clone(opts.Policy.Schedule)
	if opts.Policy.MaxRetryAfter <= 0 {
		opts.Policy.MaxRetryAfter = DefaultMaxRetryAfter
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Controller{
		transport: transport,
		policy:    opts.Policy,
		sleep:     opts.Sleep,
		logger:    opts.Logger,
	}
}

// Fetch retrieves url, backing off on rate-limit signals.
func (c *Controller) Fetch(ctx context.Context, url string) (Result, error) {
	var (
		state    = StateAttempting
		attempt  int
		decision Decision
		resp     *crawlhttp.Response
	)

	for {
		switch state {
		case StateAttempting:
			var err error
			resp, err = c.transport.Send(ctx, url)
			decision = c.policy.Classify(resp, err, attempt)
			c.observe(url, attempt, resp, decision)
			state = decision.Next

		case StateBackingOff:
			if decision.Wait > 0 {
				metrics.BackoffSeconds.Add(decision.Wait.Seconds())
				if err := c.sleep(ctx, decision.Wait); err != nil {
					decision = Decision{Kind: KindCanceled, Next: StateFailed, Err: err}
					state = StateFailed
					continue
				}
			}
			attempt++
			state = StateAttempting

		case StateSucceeded:
			return Result{
				Body:       resp.Body,
				StatusCode: resp.StatusCode,
				Attempts:   attempt,
				Retried:    attempt > 0,
				Final:      StateSucceeded,
			}, nil

		case StateFailed:
			res := Result{
				Attempts: attempt,
				Retried:  attempt > 0,
				Final:    StateFailed,
			}
			if resp != nil {
				res.StatusCode = resp.StatusCode
			}
			return res, fmt.Errorf("fetch %s: %w", url, decision.Err)

		default:
			return Result{Attempts: attempt, Retried: attempt > 0, Final: StateFailed},
				fmt.Errorf("fetch %s: invalid state %s", url, state)
		}
	}
}

func (c *Controller) observe(url string, attempt int, resp *crawlhttp.Response, d Decision) {
	switch d.Kind {
	case KindRateLimited:
		metrics.RetrySignalsTotal.WithLabelValues(d.Kind.String()).Inc()
		c.logger.Warn("Got a 429 response, backing off", "url", url, "attempt", attempt+1, "backoff", d.Wait)
	case KindRetryAfter:
		metrics.RetrySignalsTotal.WithLabelValues(d.Kind.String()).Inc()
		c.logger.Warn("Got a Retry-After response, backing off", "url", url, "status", resp.StatusCode, "attempt", attempt+1, "backoff", d.Wait)
	case KindMalformedRetrySignal:
		metrics.RetrySignalsTotal.WithLabelValues(d.Kind.String()).Inc()
		c.logger.Warn("Ignoring malformed Retry-After", "url", url, "status", resp.StatusCode, "attempt", attempt+1, "error", d.Err)
	case KindExhausted:
		metrics.RetrySignalsTotal.WithLabelValues(d.Kind.String()).Inc()
		c.logger.Error("Backoff schedule exhausted", "url", url, "retries", attempt)
	case KindBodyTooLarge:
		c.logger.Warn("Response body too large", "url", url, "error", d.Err)
	case KindSuccess:
		c.logger.Debug("Fetched", "url", url, "status", resp.StatusCode, "bytes", len(resp.Body), "retries", attempt)
	}
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
