package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "timpact"

// Metrics holds the collectors of one analysis run. Every run owns a private
// registry so the CLI can dump it to a textfile and tests stay isolated.
type Metrics struct {
	Registry *prometheus.Registry

	FilesResolved      *prometheus.CounterVec
	ResolveDuration    prometheus.Histogram
	SuitesSelected     *prometheus.CounterVec
	ObservationsMerged prometheus.Counter
	MergeConflicts     prometheus.Counter
	StoreCommits       *prometheus.CounterVec
	MappedSuites       prometheus.Gauge
}

// New registers all collectors on a fresh registry
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		FilesResolved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fingerprint",
			Name:      "files_resolved_total",
			Help:      "Source files resolved into method deltas, by outcome",
		}, []string{"outcome"}),
		ResolveDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fingerprint",
			Name:      "resolve_duration_seconds",
			Help:      "Time spent parsing and diffing one source file",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
		SuitesSelected: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "selector",
			Name:      "suites_total",
			Help:      "Test suites considered by the selector, by decision",
		}, []string{"decision"}),
		ObservationsMerged: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coverage",
			Name:      "observations_merged_total",
			Help:      "Coverage observations merged by the aggregator",
		}),
		MergeConflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "coverage",
			Name:      "merge_conflicts_total",
			Help:      "Observations that disagreed on a class source path",
		}),
		StoreCommits: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "commits_total",
			Help:      "Impact store commits, by status",
		}, []string{"status"}),
		MappedSuites: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "mapped_suites",
			Help:      "Test suites recorded in the last committed mapping",
		}),
	}
}

// WriteTextfile writes the registry in the node-exporter textfile format
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.Registry)
}
