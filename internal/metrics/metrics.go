// Package metrics exposes prometheus instrumentation for a crawl run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FetchesTotal tracks completed fetch calls per resource and outcome
	FetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itchy_fetches_total",
			Help: "Total number of fetch calls by resource and outcome",
		},
		[]string{"resource", "outcome"},
	)

	// RetrySignalsTotal tracks rate-limit signals seen by the retry controller
	RetrySignalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itchy_retry_signals_total",
			Help: "Total number of rate-limit signals by kind",
		},
		[]string{"kind"},
	)

	// BackoffSeconds tracks time spent sleeping in retry backoff
	BackoffSeconds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "itchy_backoff_seconds_total",
			Help: "Total seconds spent in retry backoff",
		},
	)

	// ItemsTotal tracks input items by result (processed, skipped)
	ItemsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "itchy_items_total",
			Help: "Total number of input items by result",
		},
		[]string{"result"},
	)

	// DelayRatchetSeconds is the current pacing baseline
	DelayRatchetSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "itchy_delay_ratchet_seconds",
			Help: "Current inter-request pacing baseline in seconds",
		},
	)

	// Cursor is the last persisted progress cursor
	Cursor = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "itchy_cursor",
			Help: "Last persisted progress cursor",
		},
	)
)
