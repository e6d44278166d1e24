package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"time"

	crawlhttp "github.com/extua/itchy-crawler/internal/http"
)

// DefaultSchedule is the backoff consumed by consecutive rate-limit responses.
var DefaultSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	3 * time.Second,
	5 * time.Second,
	8 * time.Second,
	13 * time.Second,
	21 * time.Second,
	34 * time.Second,
	55 * time.Second,
	89 * time.Second,
	144 * time.Second,
	233 * time.Second,
	377 * time.Second,
}

// DefaultMaxRetryAfter is the exclusive upper bound, in seconds, for a
// Retry-After value to be honoured.
const DefaultMaxRetryAfter = 377

var (
	// ErrRateLimited is returned when rate-limit signals exhaust the schedule.
	ErrRateLimited = errors.New("retry: rate limit schedule exhausted")

	// ErrClientError matches a StatusError carrying a 4xx status.
	ErrClientError = errors.New("retry: client error")

	// ErrServerError matches a StatusError carrying a 5xx status.
	ErrServerError = errors.New("retry: server error")

	// ErrTransport is returned when no response was obtained.
	ErrTransport = crawlhttp.ErrTransport

	// ErrBodyTooLarge is returned when a successful body exceeds the
	// transport's size limit.
	ErrBodyTooLarge = crawlhttp.ErrBodyTooLarge
)

// StatusError reports a non-retryable HTTP status.
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status code: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// Is reports whether target is the class sentinel for this status.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrClientError:
		return e.StatusCode >= 400 && e.StatusCode < 500
	case ErrServerError:
		return e.StatusCode >= 500 && e.StatusCode < 600
	}
	return false
}

// State is a state of the fetch state machine.
type State int

const (
	StateAttempting State = iota
	StateBackingOff
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAttempting:
		return "attempting"
	case StateBackingOff:
		return "backing_off"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Kind names the rule that classified a transport outcome.
type Kind int

const (
	KindSuccess Kind = iota
	KindRateLimited
	KindRetryAfter
	KindMalformedRetrySignal
	KindExhausted
	KindStatus
	KindTransport
	KindCanceled
	KindBodyTooLarge
)

func (k Kind) String() string {
	switch k {
	case KindSuccess:
		return "success"
	case KindRateLimited:
		return "rate_limited"
	case KindRetryAfter:
		return "retry_after"
	case KindMalformedRetrySignal:
		return "malformed_retry_after"
	case KindExhausted:
		return "exhausted"
	case KindStatus:
		return "status"
	case KindTransport:
		return "transport"
	case KindCanceled:
		return "canceled"
	case KindBodyTooLarge:
		return "body_too_large"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Decision is the outcome of classifying one transport result.
type Decision struct {
	Kind Kind
	Next State
	// Wait is the backoff to sleep before the next attempt. Zero for a
	// malformed Retry-After.
	Wait time.Duration
	// Err is set when Next is StateFailed, and carries the parse or range
	// problem for KindMalformedRetrySignal.
	Err error
}

// Policy holds the backoff schedule and Retry-After bound.
type Policy struct {
	Schedule      []time.Duration
	MaxRetryAfter int
}

// DefaultPolicy returns the standard schedule and bound.
func DefaultPolicy() Policy {
	return Policy{
		Schedule:      slices.Clone(DefaultSchedule),
		MaxRetryAfter: DefaultMaxRetryAfter,
	}
}

// Classify decides what to do with one transport result given the number of
// retries already taken.
func (p Policy) Classify(resp *crawlhttp.Response, err error, attempt int) Decision {
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Decision{Kind: KindCanceled, Next: StateFailed, Err: err}
		}
		if errors.Is(err, ErrBodyTooLarge) {
			return Decision{Kind: KindBodyTooLarge, Next: StateFailed, Err: err}
		}
		if !errors.Is(err, ErrTransport) {
			err = fmt.Errorf("%w: %v", ErrTransport, err)
		}
		return Decision{Kind: KindTransport, Next: StateFailed, Err: err}
	}

	inSchedule := attempt < len(p.Schedule)
	retryAfter, hasRetryAfter := resp.RetryAfter()

	switch {
	case crawlhttp.IsSuccess(resp.StatusCode):
		return Decision{Kind: KindSuccess, Next: StateSucceeded}

	case resp.StatusCode == http.StatusTooManyRequests && inSchedule:
		return Decision{Kind: KindRateLimited, Next: StateBackingOff, Wait: p.Schedule[attempt]}

	case hasRetryAfter && inSchedule:
		secs, perr := crawlhttp.ParseRetryAfter(retryAfter)
		if perr == nil && secs >= p.MaxRetryAfter {
			perr = fmt.Errorf("retry-after %d outside [0, %d)", secs, p.MaxRetryAfter)
		}
		if perr != nil {
			return Decision{Kind: KindMalformedRetrySignal, Next: StateBackingOff, Err: perr}
		}
		return Decision{Kind: KindRetryAfter, Next: StateBackingOff, Wait: time.Duration(secs+1) * time.Second}

	case resp.StatusCode == http.StatusTooManyRequests || hasRetryAfter:
		return Decision{
			Kind: KindExhausted,
			Next: StateFailed,
			Err:  fmt.Errorf("%w after %d retries (last status %d)", ErrRateLimited, attempt, resp.StatusCode),
		}

	default:
		return Decision{Kind: KindStatus, Next: StateFailed, Err: &StatusError{StatusCode: resp.StatusCode}}
	}
}
