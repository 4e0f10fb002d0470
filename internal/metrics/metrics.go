// Package metrics collects run metrics in the default Prometheus registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WriteToTextfile writes the current metrics in the text exposition format,
// for pickup by a node exporter textfile collector.
func WriteToTextfile(path string) error {
	return prometheus.WriteToTextfile(path, prometheus.DefaultGatherer)
}
