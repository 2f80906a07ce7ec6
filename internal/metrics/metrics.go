// Package metrics provides Prometheus instrumentation for mediatag.
//
// All metrics are registered with the default registry through promauto and
// prefixed with "mediatag_". Mount Handler on /metrics to expose them.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Record metrics
var (
	RecordReadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediatag_record_reads_total",
			Help: "Total number of metadata record reads",
		},
		[]string{"status"},
	)

	RecordWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediatag_record_writes_total",
			Help: "Total number of metadata record write-backs",
		},
		[]string{"operation", "status"},
	)

	TagSearchesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediatag_tag_searches_total",
			Help: "Total number of tag vocabulary searches",
		},
	)

	TagIndexSize = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "mediatag_tag_index_size",
			Help: "Number of distinct tags in the current index",
		},
	)
)

// Scan metrics
var (
	ScanDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "mediatag_scan_duration_seconds",
			Help:    "Duration of library scans in seconds",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		},
	)

	ScanFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediatag_scan_files_total",
			Help: "Files seen by library scans, by outcome",
		},
		[]string{"outcome"}, // "indexed", "unchanged", "removed", "failed"
	)
)

// HTTP metrics
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediatag_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mediatag_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// Status maps an error to a status label.
func Status(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// Initialize pre-populates the expected label combinations so every metric
// is exported from the first scrape.
func Initialize() {
	for _, s := range []string{StatusSuccess, StatusError} {
		RecordReadsTotal.WithLabelValues(s)
		for _, op := range []string{"tags", "date", "all"} {
			RecordWritesTotal.WithLabelValues(op, s)
		}
	}
	for _, o := range []string{"indexed", "unchanged", "removed", "failed"} {
		ScanFilesTotal.WithLabelValues(o)
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
