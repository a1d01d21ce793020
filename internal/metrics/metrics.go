// Package metrics counts what an analysis run did. Each run registers its
// collectors on a private registry, which the CLI can dump in the Prometheus
// text format for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "gcg"

// Metrics holds the collectors of one process.
type Metrics struct {
	Registry *prometheus.Registry

	// FilesParsed counts source files by result (ok, error).
	FilesParsed *prometheus.CounterVec
	// Edges counts call graph edges by kind.
	Edges *prometheus.CounterVec
	// SkippedCalls counts call sites dropped by reason.
	SkippedCalls *prometheus.CounterVec
	// Violations counts reported chains by rule.
	Violations *prometheus.CounterVec
	// Nodes is the node count of the last graph.
	Nodes prometheus.Gauge
	// RunDuration observes analysis wall time by phase.
	RunDuration *prometheus.HistogramVec
	// LastRun is the unix time the last run finished.
	LastRun prometheus.Gauge
}

// New creates collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		FilesParsed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "parse",
			Name:      "files_total",
			Help:      "Source files parsed by result",
		}, []string{"result"}),
		Edges: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "callgraph",
			Name:      "edges_total",
			Help:      "Call graph edges by kind",
		}, []string{"kind"}),
		SkippedCalls: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "callgraph",
			Name:      "skipped_calls_total",
			Help:      "Call sites without an edge by reason",
		}, []string{"reason"}),
		Violations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "checker",
			Name:      "violations_total",
			Help:      "Reported call chains by rule",
		}, []string{"rule"}),
		Nodes: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "callgraph",
			Name:      "nodes",
			Help:      "Nodes in the last built call graph",
		}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "duration_seconds",
			Help:      "Analysis phase duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60},
		}, []string{"phase"}),
		LastRun: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "run",
			Name:      "last_timestamp_seconds",
			Help:      "Unix time the last analysis finished",
		}),
	}
}

// ObservePhase records how long phase took since start.
func (m *Metrics) ObservePhase(phase string, start time.Time) {
	m.RunDuration.WithLabelValues(phase).Observe(time.Since(start).Seconds())
}

// WriteTextfile writes every collector to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
