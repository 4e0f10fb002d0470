package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decompileCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gwbundle_decompile_count_total",
			Help: "Total number of decompiled bundles",
		},
		[]string{"result"},
	)

	decompileDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "gwbundle_decompile_duration_seconds",
			Help:    "Decompile duration in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.2, 0.5, 1, 2, 5, 10, 30},
		},
	)

	linkerWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gwbundle_linker_warnings_total",
			Help: "Number of policy fragments left untouched because a reference could not be resolved",
		},
	)
)

func Decompiled(start time.Time, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	decompileCount.WithLabelValues(result).Inc()
	decompileDuration.Observe(time.Since(start).Seconds())
}

func LinkerWarnings(n int) {
	linkerWarnings.Add(float64(n))
}
