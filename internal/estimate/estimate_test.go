package estimate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clearwell/crawlctl/internal/domain"
)

type fakeHistory struct {
	jobs []domain.Job
	err  error
}

func (f *fakeHistory) RecentSucceeded(context.Context, string, int) ([]domain.Job, error) {
	return f.jobs, f.err
}

func TestEstimateDefaultsWithNoHistory(t *testing.T) {
	t.Parallel()

	e := New(&fakeHistory{})
	est, err := e.Estimate(context.Background(), 3, "u1")
	require.NoError(t, err)
	require.Equal(t, 1, est.EstimatedThreads)
	require.Equal(t, int64(2000*3), est.EstimatedDurationMs)
}

func TestEstimateThreadsStepwiseTable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		urlCount int
		want     int
	}{
		{1, 1},
		{5, 1},
		{6, 1},
		{20, 3},
		{21, 4},
		{50, 6},
		{51, 8},
		{1000, 10},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, estimateThreads(tc.urlCount), "urlCount=%d", tc.urlCount)
	}
}

func TestEstimateUsesHistoricalMeanClamped(t *testing.T) {
	t.Parallel()

	history := &fakeHistory{jobs: []domain.Job{
		{URLsSubmitted: 10, ExecutionDurationMs: 1000000}, // 100000ms/url, clamps to 30000
		{URLsSubmitted: 10, ExecutionDurationMs: 1000000},
	}}
	e := New(history)
	est, err := e.Estimate(context.Background(), 10, "u1")
	require.NoError(t, err)
	require.Equal(t, int64(30000*10), est.EstimatedDurationMs)
	// threads=2 (10/7+1) -> normalizedThreads=0.2, duration capped -> normalizedDuration=1
	require.InDelta(t, 0.6*0.2+0.4*1.0, est.ResourceScore, 1e-9)
}

func TestEstimateResourceScoreWeighting(t *testing.T) {
	t.Parallel()

	e := New(&fakeHistory{})
	est, err := e.Estimate(context.Background(), 1, "")
	require.NoError(t, err)
	// threads=1 -> normalizedThreads=0.1, duration=2000ms -> normalizedDuration=2000/30000
	want := 0.6*0.1 + 0.4*(2000.0/30000.0)
	require.InDelta(t, want, est.ResourceScore, 1e-9)
}
