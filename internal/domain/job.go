// Package domain defines the core types shared across the admission and
// scheduling pipeline: jobs, task messages, resource estimates and the
// worker-capacity/usage bundles the priority engine scores against.
package domain

import "time"

// JobStatus represents the lifecycle state of a submitted job.
type JobStatus string

// Job status values persisted in the durable job store. Transitions form the
// DAG PENDING -> RUNNING -> {SUCCEEDED, FAILED}; no other edge is legal.
const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusSucceeded JobStatus = "SUCCEEDED"
	JobStatusFailed    JobStatus = "FAILED"
)

// Job is the authoritative record of a submitted batch of URLs.
type Job struct {
	ID                  string
	Status              JobStatus
	UserID              string
	URLsSubmitted       int
	URLsSucceeded       int
	URLsFailed          int
	ResultArtifact      string
	ExecutionDurationMs int64
	CreatedAt           time.Time
	StartedAt           *time.Time
	CompletedAt         *time.Time
}

// TaskMessage is the wire record published to the work-queue transport at
// submit time and consumed exactly once by intake.
type TaskMessage struct {
	JobID  string   `json:"jobId"`
	URLs   []string `json:"urls"`
	UserID string   `json:"userId,omitempty"`
}

// ResourceEstimate is computed once at intake from the URL count and recent
// job history; it never changes for the lifetime of the task.
type ResourceEstimate struct {
	EstimatedThreads    int
	EstimatedDurationMs int64
	ResourceScore       float64
}

// PrioritizedTask is the APE's in-memory record for one pending job. URLs are
// intentionally not embedded here so that scoring stays cheap; callers look
// them up from the parallel URL map by JobID.
type PrioritizedTask struct {
	JobID         string
	UserID        string
	URLCount      int
	Estimate      ResourceEstimate
	SubmitTime    time.Time
	PriorityScore float64
	CanExecute    bool
}

// LiveStatus is the volatile per-job progress snapshot held in the live
// status cache while a job is RUNNING.
type LiveStatus struct {
	Status        JobStatus `json:"status"`
	Message       string    `json:"message"`
	URLsSubmitted int       `json:"urlsSubmitted"`
	URLsSucceeded int       `json:"urlsSucceeded"`
	URLsFailed    int       `json:"urlsFailed"`
}

// WorkerCapacity is process-wide, immutable cluster sizing configuration.
type WorkerCapacity struct {
	TotalInstances       int
	MaxThreadsPerInstance int
}

// TotalThreads returns the cluster-wide thread budget.
func (w WorkerCapacity) TotalThreads() int {
	return w.TotalInstances * w.MaxThreadsPerInstance
}

// WorkerResourceStatus is a point-in-time snapshot of cluster usage, as
// returned by the resource ledger's read path.
type WorkerResourceStatus struct {
	TotalThreads     int
	TotalInstances   int
	UsedThreads      int
	UsedInstances    int
	UtilizationRate  float64
}

// AvailableThreads returns the remaining thread budget, never negative.
func (s WorkerResourceStatus) AvailableThreads() int {
	if avail := s.TotalThreads - s.UsedThreads; avail > 0 {
		return avail
	}
	return 0
}

// AvailableInstances returns the remaining instance budget, never negative.
func (s WorkerResourceStatus) AvailableInstances() int {
	if avail := s.TotalInstances - s.UsedInstances; avail > 0 {
		return avail
	}
	return 0
}

// UserUsage is a per-user snapshot of sliding-window resource consumption.
type UserUsage struct {
	ThreadsInUse        int
	JobsStartedInWindow int
}

// UserLimits is the configured per-user quota over the sliding window.
type UserLimits struct {
	MaxThreadsPerWindow int
	MaxJobsPerWindow    int
}
