package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/clearwell/crawlctl/internal/apierr"
	"github.com/clearwell/crawlctl/internal/domain"
	"github.com/clearwell/crawlctl/internal/store"
)

func TestCreateJobInsertsPendingRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewFromPool(mock)
	now := time.Unix(1700000000, 0).UTC()
	job := domain.Job{ID: "job-1", URLsSubmitted: 3, UserID: "user-1", CreatedAt: now}

	mock.ExpectExec("INSERT INTO job").
		WithArgs(job.ID, domain.JobStatusPending, job.URLsSubmitted, "user-1", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, s.CreateJob(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkRunningNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewFromPool(mock)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectExec("UPDATE job").
		WithArgs("missing", domain.JobStatusRunning, now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = s.MarkRunning(context.Background(), "missing", now)
	require.Error(t, err)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierr.KindJobNotFound, apiErr.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompleteSucceededUpdatesRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewFromPool(mock)
	now := time.Unix(1700000100, 0).UTC()
	counters := store.Counters{Succeeded: 3, Failed: 0}

	mock.ExpectExec("UPDATE job").
		WithArgs("job-1", domain.JobStatusSucceeded, "<html></html>", 3, 0, int64(4200), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err = s.CompleteSucceeded(context.Background(), "job-1", "<html></html>", counters, 4200, now)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewFromPool(mock)

	mock.ExpectQuery("SELECT (.|\n)* FROM job WHERE id = \\$1").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "status", "urls_submitted", "urls_succeeded", "urls_failed", "user_id",
			"result_html", "execution_time_ms", "started_at", "completed_at", "created_at",
		}))

	_, err = s.GetJob(context.Background(), "missing")
	require.Error(t, err)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierr.KindJobNotFound, apiErr.Kind)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetJobReturnsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	s := NewFromPool(mock)
	now := time.Unix(1700000000, 0).UTC()

	mock.ExpectQuery("SELECT (.|\n)* FROM job WHERE id = \\$1").
		WithArgs("job-1").
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "status", "urls_submitted", "urls_succeeded", "urls_failed", "user_id",
			"result_html", "execution_time_ms", "started_at", "completed_at", "created_at",
		}).AddRow("job-1", domain.JobStatusSucceeded, 3, 3, 0, "user-1", "<html></html>", int64(4200), &now, &now, now))

	job, err := s.GetJob(context.Background(), "job-1")
	require.NoError(t, err)
	require.Equal(t, "job-1", job.ID)
	require.Equal(t, domain.JobStatusSucceeded, job.Status)
	require.Equal(t, 3, job.URLsSucceeded)
	require.NoError(t, mock.ExpectationsWereMet())
}
