// Package metrics exposes the Prometheus instruments shared by the API and
// the batch recompute job.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recompute triggers.
const (
	TriggerManual   = "manual"
	TriggerFinalize = "finalize"
	TriggerRevert   = "revert"
	TriggerAdjust   = "adjust"
	TriggerMerge    = "merge"
	TriggerBatch    = "batch"
)

var (
	Recomputations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "patio_mileage_recomputations_total",
			Help: "Average daily distance recomputations by trigger and outcome",
		},
		[]string{"trigger", "outcome"}, // outcome: estimated, absent, rejected, error
	)

	RecomputeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "patio_mileage_recompute_duration_seconds",
			Help:    "Duration of one vehicle recomputation including database round-trips",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"trigger"},
	)

	CacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patio_profile_cache_hits_total",
		Help: "Mileage profile cache hits",
	})

	CacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "patio_profile_cache_misses_total",
		Help: "Mileage profile cache misses",
	})

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "patio_api_request_duration_seconds",
			Help:    "HTTP request latency by route and status",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route", "status"},
	)
)

// RecordRecompute counts one recomputation and its duration.
func RecordRecompute(trigger string, estimated bool, err error, d time.Duration) {
	outcome := "absent"
	switch {
	case err != nil:
		outcome = "error"
	case estimated:
		outcome = "estimated"
	}
	Recomputations.WithLabelValues(trigger, outcome).Inc()
	RecomputeDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

// RecordRejected counts a recomputation refused before any write because the
// request itself was invalid.
func RecordRejected(trigger string, d time.Duration) {
	Recomputations.WithLabelValues(trigger, "rejected").Inc()
	RecomputeDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

// RecordAPIRequest observes one HTTP request.
func RecordAPIRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	APIRequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}
