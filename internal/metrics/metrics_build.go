package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	bundleBuildFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gwbundle_bundle_build_failed_total",
			Help: "Number of times a bundle has failed to build",
		},
		[]string{"bundle", "error_type"},
	)

	bundleBuildCount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gwbundle_bundle_build_count_total",
			Help: "Total number of times a bundle has been built",
		},
	)

	bundleBuildDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gwbundle_bundle_build_duration_seconds",
			Help:    "Bundle build duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 1.5, 2, 5, 10, 30, 60},
		},
		[]string{"bundle", "mode"},
	)

	lastBundleBuildEnd = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gwbundle_last_bundle_build_end_timestamp",
			Help: "Unix timestamp of when the last bundle build ended",
		},
		[]string{"bundle"},
	)

	bundleItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gwbundle_bundle_items",
			Help: "Number of items in the last built bundle, by entity kind",
		},
		[]string{"bundle", "kind"},
	)

	unresolvedReferences = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gwbundle_unresolved_references_total",
			Help: "Number of references that could not be resolved while building",
		},
		[]string{"bundle"},
	)
)

// BundleBuildSucceeded records a successful build started at start.
func BundleBuildSucceeded(bundle, mode string, start time.Time) {
	bundleBuildCount.Inc()
	bundleBuildDuration.WithLabelValues(bundle, mode).Observe(time.Since(start).Seconds())
	lastBundleBuildEnd.WithLabelValues(bundle).SetToCurrentTime()
}

// BundleBuildFailed records a failed build; state names the stage that
// failed.
func BundleBuildFailed(bundle, state string) {
	bundleBuildCount.Inc()
	bundleBuildFailed.WithLabelValues(bundle, state).Inc()
}

// BundleItems records the item count per kind of a built bundle.
func BundleItems(bundle string, counts map[string]int) {
	for kind, n := range counts {
		bundleItems.WithLabelValues(bundle, kind).Set(float64(n))
	}
}

func UnresolvedReferences(bundle string, n int) {
	unresolvedReferences.WithLabelValues(bundle).Add(float64(n))
}
