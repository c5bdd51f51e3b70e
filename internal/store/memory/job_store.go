// Package memory provides an in-process Durable Job Store used by tests and
// local/dev runs that have no Postgres instance available.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/clearwell/crawlctl/internal/apierr"
	"github.com/clearwell/crawlctl/internal/domain"
	"github.com/clearwell/crawlctl/internal/store"
)

// JobStore is a mutex-guarded map satisfying store.JobStore.
type JobStore struct {
	mu   sync.RWMutex
	jobs map[string]domain.Job
}

// New constructs an empty in-memory JobStore.
func New() *JobStore {
	return &JobStore{jobs: make(map[string]domain.Job)}
}

// CreateJob inserts the initial PENDING row.
func (s *JobStore) CreateJob(ctx context.Context, job domain.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job.Status = domain.JobStatusPending
	s.jobs[job.ID] = job
	return nil
}

// MarkRunning transitions a job to RUNNING and records its start time.
func (s *JobStore) MarkRunning(ctx context.Context, jobID string, startedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return apierr.New(apierr.KindJobNotFound, "job not found").WithDetails(jobID)
	}
	job.Status = domain.JobStatusRunning
	ts := startedAt
	job.StartedAt = &ts
	s.jobs[jobID] = job
	return nil
}

// CompleteSucceeded writes the terminal SUCCEEDED row.
func (s *JobStore) CompleteSucceeded(ctx context.Context, jobID, resultArtifact string, counters store.Counters, executionDurationMs int64, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return apierr.New(apierr.KindJobNotFound, "job not found").WithDetails(jobID)
	}
	job.Status = domain.JobStatusSucceeded
	job.ResultArtifact = resultArtifact
	job.URLsSucceeded = counters.Succeeded
	job.URLsFailed = counters.Failed
	job.ExecutionDurationMs = executionDurationMs
	ts := completedAt
	job.CompletedAt = &ts
	s.jobs[jobID] = job
	return nil
}

// CompleteFailed writes the terminal FAILED row.
func (s *JobStore) CompleteFailed(ctx context.Context, jobID string, counters store.Counters, completedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return apierr.New(apierr.KindJobNotFound, "job not found").WithDetails(jobID)
	}
	job.Status = domain.JobStatusFailed
	job.URLsSucceeded = counters.Succeeded
	job.URLsFailed = counters.Failed
	ts := completedAt
	job.CompletedAt = &ts
	s.jobs[jobID] = job
	return nil
}

// GetJob returns the stored row for jobID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[jobID]
	if !ok {
		return domain.Job{}, apierr.New(apierr.KindJobNotFound, "job not found").WithDetails(jobID)
	}
	return job, nil
}

// RecentSucceeded returns up to limit SUCCEEDED jobs, newest completed first,
// optionally filtered by userID.
func (s *JobStore) RecentSucceeded(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []domain.Job
	for _, job := range s.jobs {
		if job.Status != domain.JobStatusSucceeded {
			continue
		}
		if userID != "" && job.UserID != userID {
			continue
		}
		matches = append(matches, job)
	}
	sort.Slice(matches, func(i, j int) bool {
		ti, tj := completedTime(matches[i]), completedTime(matches[j])
		return ti.After(tj)
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func completedTime(job domain.Job) time.Time {
	if job.CompletedAt != nil {
		return *job.CompletedAt
	}
	return job.CreatedAt
}
