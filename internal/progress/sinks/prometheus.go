package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clearwell/crawlctl/internal/progress"
)

// PrometheusSink exports job lifecycle metrics via Prometheus. It owns all
// collectors for jobs started/completed/running and per-job URL throughput.
type PrometheusSink struct {
	jobsStarted   prometheus.Counter
	jobsCompleted *prometheus.CounterVec
	jobsRunning   prometheus.Gauge
	jobRuntime    *prometheus.HistogramVec
	urlsProcessed *prometheus.CounterVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		jobsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawlctl_jobs_started_total",
			Help: "Total jobs that have started running.",
		}),
		jobsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawlctl_jobs_completed_total",
			Help: "Total jobs completed partitioned by result.",
		}, []string{"result"}),
		jobsRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawlctl_jobs_running",
			Help: "Current number of running jobs.",
		}),
		jobRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawlctl_job_runtime_seconds",
			Help:    "Wall time per completed job.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		}, []string{"result"}),
		urlsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawlctl_urls_processed_total",
			Help: "URLs processed within a job, partitioned by result.",
		}, []string{"result"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.jobsStarted,
		s.jobsCompleted,
		s.jobsRunning,
		s.jobRuntime,
		s.urlsProcessed,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	latest := make(map[string]progress.Event, len(batch))
	for _, evt := range batch {
		s.handleLifecycle(evt)
		latest[evt.JobID] = evt
	}
	for jobID, evt := range latest {
		s.recordURLTotals(jobID, evt)
		if evt.Stage == progress.StageJobDone || evt.Stage == progress.StageJobError {
			s.tracker.forget(jobID)
		}
	}
	return nil
}

func (s *PrometheusSink) handleLifecycle(evt progress.Event) {
	switch evt.Stage {
	case progress.StageJobStart:
		s.jobsStarted.Inc()
		if s.tracker.start(evt.JobID) {
			s.jobsRunning.Inc()
		}
	case progress.StageJobDone:
		s.jobsCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
		if s.tracker.complete(evt.JobID) {
			s.jobsRunning.Dec()
		}
	case progress.StageJobError:
		s.jobsCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
		if s.tracker.complete(evt.JobID) {
			s.jobsRunning.Dec()
		}
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.jobRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

// recordURLTotals derives success/failure deltas from the event's
// cumulative counters against the last totals seen for this job, since
// events always carry running totals rather than per-URL deltas.
func (s *PrometheusSink) recordURLTotals(jobID string, evt progress.Event) {
	prevSucceeded, prevFailed := s.tracker.swapTotals(jobID, evt.URLsSucceeded, evt.URLsFailed)
	if delta := evt.URLsSucceeded - prevSucceeded; delta > 0 {
		s.urlsProcessed.WithLabelValues("success").Add(float64(delta))
	}
	if delta := evt.URLsFailed - prevFailed; delta > 0 {
		s.urlsProcessed.WithLabelValues("error").Add(float64(delta))
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type urlTotals struct {
	succeeded int
	failed    int
}

type jobTracker struct {
	mu      sync.Mutex
	running map[string]struct{}
	totals  map[string]urlTotals
}

func newJobTracker() *jobTracker {
	return &jobTracker{
		running: make(map[string]struct{}),
		totals:  make(map[string]urlTotals),
	}
}

func (t *jobTracker) start(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}

// swapTotals returns the previously recorded cumulative counters for id and
// stores current in their place.
func (t *jobTracker) swapTotals(id string, succeeded, failed int) (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	prev := t.totals[id]
	t.totals[id] = urlTotals{succeeded: succeeded, failed: failed}
	return prev.succeeded, prev.failed
}

// forget drops the retained URL totals for a job that has reached a
// terminal stage.
func (t *jobTracker) forget(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.totals, id)
}
