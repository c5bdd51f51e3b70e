package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clearwell/crawlctl/internal/apierr"
	"github.com/clearwell/crawlctl/internal/domain"
	"github.com/clearwell/crawlctl/internal/store"
)

func TestCreateAndGetJob(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	job := domain.Job{ID: "job-1", URLsSubmitted: 2, UserID: "user-1", CreatedAt: time.Now()}

	require.NoError(t, s.CreateJob(ctx, job))

	got, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusPending, got.Status)
	require.Equal(t, 2, got.URLsSubmitted)
}

func TestGetJobNotFound(t *testing.T) {
	t.Parallel()

	s := New()
	_, err := s.GetJob(context.Background(), "missing")
	require.Error(t, err)
	var apiErr *apierr.Error
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, apierr.KindJobNotFound, apiErr.Kind)
}

func TestLifecycleTransitions(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	start := time.Now()
	require.NoError(t, s.CreateJob(ctx, domain.Job{ID: "job-1", URLsSubmitted: 2, CreatedAt: start}))

	require.NoError(t, s.MarkRunning(ctx, "job-1", start.Add(time.Second)))
	running, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusRunning, running.Status)
	require.NotNil(t, running.StartedAt)

	done := start.Add(5 * time.Second)
	require.NoError(t, s.CompleteSucceeded(ctx, "job-1", "<html></html>", store.Counters{Succeeded: 2}, 4000, done))

	final, err := s.GetJob(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, domain.JobStatusSucceeded, final.Status)
	require.Equal(t, "<html></html>", final.ResultArtifact)
	require.Equal(t, int64(4000), final.ExecutionDurationMs)
}

func TestMarkRunningNotFound(t *testing.T) {
	t.Parallel()

	s := New()
	err := s.MarkRunning(context.Background(), "missing", time.Now())
	require.Error(t, err)
}

func TestRecentSucceededFiltersAndOrders(t *testing.T) {
	t.Parallel()

	s := New()
	ctx := context.Background()
	base := time.Now()

	for i, userID := range []string{"user-1", "user-2", "user-1"} {
		jobID := "job-" + string(rune('a'+i))
		require.NoError(t, s.CreateJob(ctx, domain.Job{ID: jobID, UserID: userID, CreatedAt: base}))
		completed := base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.CompleteSucceeded(ctx, jobID, "", store.Counters{Succeeded: 1}, 1000, completed))
	}

	recent, err := s.RecentSucceeded(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	require.Equal(t, "job-c", recent[0].ID)
	require.Equal(t, "job-a", recent[1].ID)
}
