// Package metrics exposes Prometheus collectors for the admission and
// scheduling service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	jobsSubmittedTotal   *prometheus.CounterVec
	jobsCompletedTotal   *prometheus.CounterVec
	admissionQueueDepth  prometheus.Gauge
	admissionWaitSeconds prometheus.Histogram
	clusterUtilization   prometheus.Gauge
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		jobsSubmittedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlctl_jobs_submitted_total",
				Help: "Total number of jobs accepted at intake.",
			},
			[]string{"user_id"},
		)

		jobsCompletedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawlctl_admission_jobs_completed_total",
				Help: "Total number of jobs that reached a terminal state, labeled by status.",
			},
			[]string{"status"},
		)

		admissionQueueDepth = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawlctl_admission_queue_depth",
				Help: "Number of jobs currently pending in the priority engine.",
			},
		)

		admissionWaitSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawlctl_admission_wait_seconds",
				Help:    "Time a job spent pending before being admitted.",
				Buckets: []float64{0.1, 1, 5, 15, 30, 60, 120, 300},
			},
		)

		clusterUtilization = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawlctl_cluster_thread_utilization",
				Help: "Fraction of cluster thread capacity currently in use.",
			},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveJobSubmitted increments the intake counter for userID.
func ObserveJobSubmitted(userID string) {
	if userID == "" {
		userID = "unknown"
	}
	jobsSubmittedTotal.WithLabelValues(userID).Inc()
}

// ObserveJobCompleted increments the completion counter for status
// ("SUCCEEDED" or "FAILED") and records how long the job waited before
// admission.
func ObserveJobCompleted(status string, waited time.Duration) {
	jobsCompletedTotal.WithLabelValues(status).Inc()
	admissionWaitSeconds.Observe(waited.Seconds())
}

// SetAdmissionQueueDepth records the priority engine's current pending count.
func SetAdmissionQueueDepth(depth int) {
	admissionQueueDepth.Set(float64(depth))
}

// SetClusterUtilization records the ledger's current thread utilization rate.
func SetClusterUtilization(rate float64) {
	clusterUtilization.Set(rate)
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
