package sinks

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/clearwell/crawlctl/internal/domain"
	"github.com/clearwell/crawlctl/internal/progress"
)

// liveStatusCache is the subset of statuscache.Cache this sink depends on.
type liveStatusCache interface {
	Put(ctx context.Context, jobID string, status domain.LiveStatus) error
	Delete(ctx context.Context, jobID string) error
}

// LiveStatusSink writes each progress event as a full snapshot into the live
// status cache, and clears the cache entry once a job reaches a terminal
// stage so readers fall back to the durable job store immediately rather
// than waiting out the cache TTL.
type LiveStatusSink struct {
	cache  liveStatusCache
	logger *zap.Logger
}

// NewLiveStatusSink wires a live status cache into the sink interface.
func NewLiveStatusSink(cache liveStatusCache, logger *zap.Logger) *LiveStatusSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LiveStatusSink{cache: cache, logger: logger}
}

// Consume writes the latest snapshot per job in the batch, then deletes the
// cache entry for any job that reached a terminal stage within this batch.
func (s *LiveStatusSink) Consume(ctx context.Context, batch []progress.Event) error {
	latest := make(map[string]progress.Event, len(batch))
	terminal := make(map[string]bool, len(batch))
	for _, evt := range batch {
		latest[evt.JobID] = evt
		if evt.Stage == progress.StageJobDone || evt.Stage == progress.StageJobError {
			terminal[evt.JobID] = true
		}
	}

	for jobID, evt := range latest {
		if terminal[jobID] {
			if err := s.cache.Delete(ctx, jobID); err != nil {
				s.logger.Warn("live status cache delete failed", zap.String("job_id", jobID), zap.Error(err))
			}
			continue
		}
		if err := s.cache.Put(ctx, jobID, evt.LiveStatus()); err != nil {
			return fmt.Errorf("put live status for %s: %w", jobID, err)
		}
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LiveStatusSink) Close(context.Context) error {
	return nil
}
