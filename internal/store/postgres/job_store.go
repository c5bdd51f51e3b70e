// Package postgres implements the Durable Job Store against a single `job`
// table using pgx/pgxpool, following the pooled-connection, parameterized
// query style of the codebase's other Postgres adapters.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clearwell/crawlctl/internal/apierr"
	"github.com/clearwell/crawlctl/internal/domain"
	"github.com/clearwell/crawlctl/internal/store"
)

// Config configures the connection pool.
type Config struct {
	DSN          string
	MaxOpenConns int32
	MaxIdleConns int32
}

// pool is the subset of *pgxpool.Pool the store uses, so tests can supply a
// pgxmock pool in its place.
type pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// JobStore is the pgxpool-backed Durable Job Store.
type JobStore struct {
	pool pool
}

// New opens a pool against cfg.DSN and returns a JobStore.
func New(ctx context.Context, cfg Config) (*JobStore, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolCfg.MaxConns = cfg.MaxOpenConns
	}
	if cfg.MaxIdleConns > 0 {
		poolCfg.MinConns = cfg.MaxIdleConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	return &JobStore{pool: pool}, nil
}

// NewFromPool wraps an already-constructed pool, used by tests with pgxmock.
func NewFromPool(p pool) *JobStore {
	return &JobStore{pool: p}
}

// Close releases the underlying connection pool.
func (s *JobStore) Close() {
	s.pool.Close()
}

// CreateJob inserts the initial PENDING row.
func (s *JobStore) CreateJob(ctx context.Context, job domain.Job) error {
	const q = `
		INSERT INTO job (id, status, urls_submitted, urls_succeeded, urls_failed, user_id, created_at, updated_at)
		VALUES ($1, $2, $3, 0, 0, $4, $5, $5)`
	_, err := s.pool.Exec(ctx, q, job.ID, domain.JobStatusPending, job.URLsSubmitted, nullableString(job.UserID), job.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// MarkRunning transitions a job to RUNNING and records its start time.
func (s *JobStore) MarkRunning(ctx context.Context, jobID string, startedAt time.Time) error {
	const q = `UPDATE job SET status = $2, started_at = $3, updated_at = $3 WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, jobID, domain.JobStatusRunning, startedAt)
	if err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierr.New(apierr.KindJobNotFound, "job not found").WithDetails(jobID)
	}
	return nil
}

// CompleteSucceeded writes the terminal SUCCEEDED row.
func (s *JobStore) CompleteSucceeded(ctx context.Context, jobID, resultArtifact string, counters store.Counters, executionDurationMs int64, completedAt time.Time) error {
	const q = `
		UPDATE job
		SET status = $2, result_html = $3, urls_succeeded = $4, urls_failed = $5,
		    execution_time_ms = $6, completed_at = $7, updated_at = $7
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, jobID, domain.JobStatusSucceeded, resultArtifact,
		counters.Succeeded, counters.Failed, executionDurationMs, completedAt)
	if err != nil {
		return fmt.Errorf("complete job succeeded: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierr.New(apierr.KindJobNotFound, "job not found").WithDetails(jobID)
	}
	return nil
}

// CompleteFailed writes the terminal FAILED row.
func (s *JobStore) CompleteFailed(ctx context.Context, jobID string, counters store.Counters, completedAt time.Time) error {
	const q = `
		UPDATE job
		SET status = $2, urls_succeeded = $3, urls_failed = $4, completed_at = $5, updated_at = $5
		WHERE id = $1`
	tag, err := s.pool.Exec(ctx, q, jobID, domain.JobStatusFailed, counters.Succeeded, counters.Failed, completedAt)
	if err != nil {
		return fmt.Errorf("complete job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apierr.New(apierr.KindJobNotFound, "job not found").WithDetails(jobID)
	}
	return nil
}

// GetJob returns the persisted row for jobID.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (domain.Job, error) {
	const q = `
		SELECT id, status, urls_submitted, urls_succeeded, urls_failed, user_id,
		       result_html, execution_time_ms, started_at, completed_at, created_at
		FROM job WHERE id = $1`
	row := s.pool.QueryRow(ctx, q, jobID)
	job, err := scanJob(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Job{}, apierr.New(apierr.KindJobNotFound, "job not found").WithDetails(jobID)
	}
	if err != nil {
		return domain.Job{}, fmt.Errorf("get job: %w", err)
	}
	return job, nil
}

// RecentSucceeded returns the most recently completed SUCCEEDED jobs, newest
// first, optionally filtered by userID.
func (s *JobStore) RecentSucceeded(ctx context.Context, userID string, limit int) ([]domain.Job, error) {
	var rows pgx.Rows
	var err error
	if userID != "" {
		const q = `
			SELECT id, status, urls_submitted, urls_succeeded, urls_failed, user_id,
			       result_html, execution_time_ms, started_at, completed_at, created_at
			FROM job WHERE status = $1 AND user_id = $2
			ORDER BY completed_at DESC LIMIT $3`
		rows, err = s.pool.Query(ctx, q, domain.JobStatusSucceeded, userID, limit)
	} else {
		const q = `
			SELECT id, status, urls_submitted, urls_succeeded, urls_failed, user_id,
			       result_html, execution_time_ms, started_at, completed_at, created_at
			FROM job WHERE status = $1
			ORDER BY completed_at DESC LIMIT $2`
		rows, err = s.pool.Query(ctx, q, domain.JobStatusSucceeded, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("query recent succeeded jobs: %w", err)
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan recent job: %w", err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate recent jobs: %w", err)
	}
	return jobs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanJob(row scanner) (domain.Job, error) {
	var (
		job            domain.Job
		userID         *string
		resultArtifact *string
		execDuration   *int64
		startedAt      *time.Time
		completedAt    *time.Time
	)
	err := row.Scan(
		&job.ID, &job.Status, &job.URLsSubmitted, &job.URLsSucceeded, &job.URLsFailed,
		&userID, &resultArtifact, &execDuration, &startedAt, &completedAt, &job.CreatedAt,
	)
	if err != nil {
		return domain.Job{}, err
	}
	if userID != nil {
		job.UserID = *userID
	}
	if resultArtifact != nil {
		job.ResultArtifact = *resultArtifact
	}
	if execDuration != nil {
		job.ExecutionDurationMs = *execDuration
	}
	job.StartedAt = startedAt
	job.CompletedAt = completedAt
	return job, nil
}

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
