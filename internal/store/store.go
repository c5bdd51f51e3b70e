// Package store defines the Durable Job Store contract shared by the
// Postgres and in-memory adapters.
package store

import (
	"context"
	"time"

	"github.com/clearwell/crawlctl/internal/domain"
)

// JobStore is the authoritative record of every job, backed by a relational
// store in production.
type JobStore interface {
	// CreateJob durably writes a new PENDING row. Must complete before the
	// task record is published, per §4.1's ordering contract.
	CreateJob(ctx context.Context, job domain.Job) error
	// MarkRunning transitions a job from PENDING to RUNNING.
	MarkRunning(ctx context.Context, jobID string, startedAt time.Time) error
	// CompleteSucceeded writes the terminal SUCCEEDED row.
	CompleteSucceeded(ctx context.Context, jobID, resultArtifact string, counters Counters, executionDurationMs int64, completedAt time.Time) error
	// CompleteFailed writes the terminal FAILED row.
	CompleteFailed(ctx context.Context, jobID string, counters Counters, completedAt time.Time) error
	// GetJob returns the persisted row for jobID, or apierr JobNotFound.
	GetJob(ctx context.Context, jobID string) (domain.Job, error)
	// RecentSucceeded returns up to limit of the most recently completed
	// SUCCEEDED jobs, optionally scoped to userID, newest first. Satisfies
	// estimate.History.
	RecentSucceeded(ctx context.Context, userID string, limit int) ([]domain.Job, error)
}

// Counters bundles the three URL counts mutated across a job's lifecycle.
type Counters struct {
	Submitted int
	Succeeded int
	Failed    int
}
