// Package pacing computes inter-request pauses from a delay ratchet that only
// ever increases during a run.
//
// Every fetch that needed a retry nudges the ratchet up by a small random
// increment, so sustained rate limiting slows the whole remaining run down.
// The ratchet is not persisted and starts again at the floor on restart.
package pacing

import (
	"math/rand/v2"
	"time"

	"github.com/extua/itchy-crawler/internal/metrics"
)

// Options configures a Controller.
type Options struct {
	// Floor is the initial ratchet value.
	// Default: 20ms
	Floor time.Duration

	// Span is the width of the window NextDelay draws from.
	// Default: Floor
	Span time.Duration

	// IncrementMin and IncrementMax bound the ratchet increase applied after
	// a retried fetch, as [IncrementMin, IncrementMax).
	// Default: 5ms, 20ms
	IncrementMin time.Duration
	IncrementMax time.Duration

	// Rand is the random source. Default: a randomly seeded PCG.
	Rand *rand.Rand
}

// DefaultOptions returns options with the standard pacing constants.
func DefaultOptions() Options {
	return Options{
		Floor:        20 * time.Millisecond,
		Span:         20 * time.Millisecond,
		IncrementMin: 5 * time.Millisecond,
		IncrementMax: 20 * time.Millisecond,
	}
}

// Controller owns the delay ratchet. It is not safe for concurrent use.
type Controller struct {
	opts    Options
	rng     *rand.Rand
	ratchet time.Duration
}

// New creates a Controller with the ratchet at opts.Floor.
func New(opts Options) *Controller {
	defaults := DefaultOptions()
	if opts.Floor <= 0 {
		opts.Floor = defaults.Floor
	}
	if opts.Span <= 0 {
		opts.Span = opts.Floor
	}
	if opts.IncrementMin <= 0 {
		opts.IncrementMin = defaults.IncrementMin
	}
	if opts.IncrementMax <= opts.IncrementMin {
		opts.IncrementMax = opts.IncrementMin + defaults.IncrementMax - defaults.IncrementMin
	}

	rng := opts.Rand
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	c := &Controller{
		opts:    opts,
		rng:     rng,
		ratchet: opts.Floor,
	}
	metrics.DelayRatchetSeconds.Set(c.ratchet.Seconds())
	return c
}

// NextDelay draws a pause uniformly from [ratchet, ratchet+span).
func (c *Controller) NextDelay() time.Duration {
	return c.ratchet + time.Duration(c.rng.Int64N(int64(c.opts.Span)))
}

// Record notes the outcome of one fetch call. A retried fetch raises the
// ratchet.
func (c *Controller) Record(retried bool) {
	if !retried {
		return
	}
	width := int64(c.opts.IncrementMax - c.opts.IncrementMin)
	c.ratchet += c.opts.IncrementMin + time.Duration(c.rng.Int64N(width))
	metrics.DelayRatchetSeconds.Set(c.ratchet.Seconds())
}

// Ratchet returns the current baseline.
func (c *Controller) Ratchet() time.Duration {
	return c.ratchet
}

// Floor returns the initial baseline.
func (c *Controller) Floor() time.Duration {
	return c.opts.Floor
}

// Span returns the width of the NextDelay window.
func (c *Controller) Span() time.Duration {
	return c.opts.Span
}
