// Package metrics provides Prometheus metrics for logscanner.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/star-labs/logscanner/internal/models"
)

const (
	namespace = "logscanner"
)

// HTTP metrics
var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration tracks HTTP request latency.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path"},
	)

	// HTTPRequestsInFlight tracks concurrent HTTP requests.
	HTTPRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being processed",
		},
	)
)

// Ingestion metrics
var (
	// IngestJobsActive tracks jobs that are queued or processing.
	IngestJobsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "jobs_active",
			Help:      "Number of jobs queued or being processed",
		},
	)

	// IngestJobsTotal counts finished jobs by terminal state.
	IngestJobsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "jobs_total",
			Help:      "Total finished ingestion jobs",
		},
		[]string{"state"},
	)

	// IngestJobDuration tracks end-to-end job processing time.
	IngestJobDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "job_duration_seconds",
			Help:      "Job processing time in seconds",
			Buckets:   []float64{.1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		},
	)

	// IngestEntriesTotal counts entries written to the entry store.
	IngestEntriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "entries_total",
			Help:      "Total log entries indexed",
		},
	)

	// IngestEntriesDroppedTotal counts entries lost to insert failures.
	IngestEntriesDroppedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "entries_dropped_total",
			Help:      "Total log entries dropped after failed inserts",
		},
	)
)

// Storage metrics
var (
	// StorageQueryDuration tracks query latency.
	StorageQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "query_duration_seconds",
			Help:      "Storage query latency in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"operation", "backend"},
	)

	// StorageErrors counts storage operation errors.
	StorageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "errors_total",
			Help:      "Total storage operation errors",
		},
		[]string{"operation", "backend"},
	)
)

// Info metric
var (
	// BuildInfo exposes build information.
	BuildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "build_info",
			Help:      "Build information",
		},
		[]string{"version", "commit", "build_time"},
	)
)

// SetBuildInfo sets the build info metric.
func SetBuildInfo(version, commit, buildTime string) {
	BuildInfo.WithLabelValues(version, commit, buildTime).Set(1)
}

// IngestRecorder feeds ingestion pipeline events into the metrics. It
// satisfies the ingest controller's recorder contract.
type IngestRecorder struct{}

func (IngestRecorder) JobQueued() {
	IngestJobsActive.Inc()
}

func (IngestRecorder) JobFinished(state models.JobState, elapsed time.Duration) {
	IngestJobsActive.Dec()
	IngestJobsTotal.WithLabelValues(string(state)).Inc()
	if elapsed > 0 {
		IngestJobDuration.Observe(elapsed.Seconds())
	}
}

func (IngestRecorder) EntriesIndexed(n int64) {
	IngestEntriesTotal.Add(float64(n))
}

func (IngestRecorder) EntriesDropped(n int64) {
	IngestEntriesDroppedTotal.Add(float64(n))
}
