package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/clearwell/crawlctl/internal/progress"
)

// LogSink emits structured logs for debugging progress streams. It is useful
// during development or audits where a durable store is unavailable.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("job_id", evt.JobID),
			zap.String("user_id", evt.UserID),
			zap.String("stage", string(evt.Stage)),
			zap.Int("urls_submitted", evt.URLsSubmitted),
			zap.Int("urls_succeeded", evt.URLsSucceeded),
			zap.Int("urls_failed", evt.URLsFailed),
			zap.Duration("dur", evt.Dur),
			zap.String("message", evt.Message),
		}
		s.logger.Info("job progress", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
