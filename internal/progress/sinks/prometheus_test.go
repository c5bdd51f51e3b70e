package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/clearwell/crawlctl/internal/progress"
)

func TestPrometheusSinkRecordsLifecycleAndThroughput(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	batch := []progress.Event{
		{JobID: "job-1", TS: time.Now(), Stage: progress.StageJobStart, URLsSubmitted: 2},
		{JobID: "job-1", TS: time.Now(), Stage: progress.StageURLDone, URLsSubmitted: 2, URLsSucceeded: 1},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsStarted))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 1.0, testutil.ToFloat64(sink.urlsProcessed.WithLabelValues("success")))

	final := []progress.Event{
		{JobID: "job-1", TS: time.Now(), Stage: progress.StageJobDone, URLsSubmitted: 2, URLsSucceeded: 2, Dur: 5 * time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), final))

	require.Equal(t, 1.0, testutil.ToFloat64(sink.jobsCompleted.WithLabelValues("success")))
	require.Equal(t, 0.0, testutil.ToFloat64(sink.jobsRunning))
	require.Equal(t, 2.0, testutil.ToFloat64(sink.urlsProcessed.WithLabelValues("success")))
}

func TestPrometheusSinkDoesNotDoubleCountWithinLaterBatch(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	sink, err := NewPrometheusSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "job-1", TS: time.Now(), Stage: progress.StageURLDone, URLsSubmitted: 5, URLsSucceeded: 3},
	}))
	require.NoError(t, sink.Consume(context.Background(), []progress.Event{
		{JobID: "job-1", TS: time.Now(), Stage: progress.StageURLDone, URLsSubmitted: 5, URLsSucceeded: 3},
	}))

	require.Equal(t, 3.0, testutil.ToFloat64(sink.urlsProcessed.WithLabelValues("success")))
}
