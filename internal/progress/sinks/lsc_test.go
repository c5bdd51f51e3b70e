package sinks

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clearwell/crawlctl/internal/domain"
	"github.com/clearwell/crawlctl/internal/progress"
)

type fakeCache struct {
	puts    map[string]domain.LiveStatus
	deletes []string
	failPut bool
}

func newFakeCache() *fakeCache {
	return &fakeCache{puts: make(map[string]domain.LiveStatus)}
}

func (c *fakeCache) Put(_ context.Context, jobID string, status domain.LiveStatus) error {
	if c.failPut {
		return errBoom
	}
	c.puts[jobID] = status
	return nil
}

func (c *fakeCache) Delete(_ context.Context, jobID string) error {
	c.deletes = append(c.deletes, jobID)
	return nil
}

type boomError string

func (e boomError) Error() string { return string(e) }

const errBoom = boomError("boom")

func TestLiveStatusSinkWritesLatestSnapshotPerJob(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	sink := NewLiveStatusSink(cache, nil)
	now := time.Now()

	batch := []progress.Event{
		{JobID: "job-1", TS: now, Stage: progress.StageJobStart, URLsSubmitted: 2},
		{JobID: "job-1", TS: now.Add(time.Second), Stage: progress.StageURLDone, URLsSubmitted: 2, URLsSucceeded: 1},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.Contains(t, cache.puts, "job-1")
	require.Equal(t, 1, cache.puts["job-1"].URLsSucceeded)
	require.Empty(t, cache.deletes)
}

func TestLiveStatusSinkDeletesOnTerminalStage(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	sink := NewLiveStatusSink(cache, nil)
	now := time.Now()

	batch := []progress.Event{
		{JobID: "job-1", TS: now, Stage: progress.StageJobDone, URLsSubmitted: 2, URLsSucceeded: 2, Dur: time.Second},
	}
	require.NoError(t, sink.Consume(context.Background(), batch))

	require.NotContains(t, cache.puts, "job-1")
	require.Equal(t, []string{"job-1"}, cache.deletes)
}

func TestLiveStatusSinkPropagatesPutErrors(t *testing.T) {
	t.Parallel()

	cache := newFakeCache()
	cache.failPut = true
	sink := NewLiveStatusSink(cache, nil)

	err := sink.Consume(context.Background(), []progress.Event{
		{JobID: "job-1", TS: time.Now(), Stage: progress.StageJobStart},
	})
	require.Error(t, err)
}
