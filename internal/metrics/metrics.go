// Package metrics exposes transform run metrics through Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors recorded by the transform pipeline.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	FilesTotal    *prometheus.CounterVec // labels: domain, status=ok|failed|skipped
	RowsMerged    *prometheus.CounterVec // labels: domain, table
	RunsTotal     *prometheus.CounterVec // labels: status
	RunDuration   prometheus.Histogram
	LastRunFinish prometheus.Gauge
}

// New registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		FilesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finetl_transform_files_total",
			Help: "Raw payload files processed, by domain and outcome",
		}, []string{"domain", "status"}),
		RowsMerged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finetl_rows_merged_total",
			Help: "Rows upserted into processed tables",
		}, []string{"domain", "table"}),
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "finetl_transform_runs_total",
			Help: "Transform runs, by final status",
		}, []string{"status"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "finetl_transform_run_duration_seconds",
			Help:    "Wall time of a transform run",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}),
		LastRunFinish: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "finetl_transform_last_run_timestamp_seconds",
			Help: "Unix time the last transform run finished",
		}),
	}

	m.registry.MustRegister(
		m.FilesTotal,
		m.RowsMerged,
		m.RunsTotal,
		m.RunDuration,
		m.LastRunFinish,
		collectors.NewGoCollector(),
	)
	return m
}

// ObserveFile counts one processed file.
func (m *Metrics) ObserveFile(domain, status string) {
	if m == nil {
		return
	}
	m.FilesTotal.WithLabelValues(domain, status).Inc()
}

// ObserveRows counts rows written by a merge.
func (m *Metrics) ObserveRows(domain, table string, rows int) {
	if m == nil || rows <= 0 {
		return
	}
	m.RowsMerged.WithLabelValues(domain, table).Add(float64(rows))
}

// ObserveRun records the outcome of a finished run.
func (m *Metrics) ObserveRun(status string, started, finished time.Time) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	m.RunDuration.Observe(finished.Sub(started).Seconds())
	m.LastRunFinish.Set(float64(finished.Unix()))
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// WriteTextfile dumps the registry for the node exporter textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	return prometheus.WriteToTextfile(path, m.registry)
}

// Gatherer exposes the registry, mainly for tests.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}
