// Package progress defines the event structures emitted while a job runs.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/clearwell/crawlctl/internal/domain"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageJobStart Stage = "JOB_START"
	StageURLDone  Stage = "URL_DONE"
	StageJobDone  Stage = "JOB_DONE"
	StageJobError Stage = "JOB_ERROR"
)

// Event captures one progress milestone for a running job. It always
// carries the job's cumulative URL counters rather than a delta, so a
// sink can write a complete live-status snapshot without tracking any
// state of its own.
type Event struct {
	// JobID identifies the job this event belongs to.
	JobID string
	// UserID is carried through for sinks; LogSink includes it in its output.
	UserID string
	// TS is the UTC timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle milestone occurred.
	Stage Stage
	// URLsSubmitted is the job's total URL count, fixed at submission.
	URLsSubmitted int
	// URLsSucceeded is the cumulative count of URLs fetched successfully so far.
	URLsSucceeded int
	// URLsFailed is the cumulative count of URLs that failed so far.
	URLsFailed int
	// Message is a short human-readable status line.
	Message string
	// Dur is the job's total runtime, set only on StageJobDone/StageJobError.
	Dur time.Duration
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.JobID == "" {
		return errors.New("job id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageJobStart, StageURLDone, StageJobDone, StageJobError:
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// LiveStatus projects the event into the snapshot shape the live status
// cache stores.
func (e Event) LiveStatus() domain.LiveStatus {
	status := domain.JobStatusRunning
	switch e.Stage {
	case StageJobDone:
		status = domain.JobStatusSucceeded
	case StageJobError:
		status = domain.JobStatusFailed
	}
	return domain.LiveStatus{
		Status:        status,
		Message:       e.Message,
		URLsSubmitted: e.URLsSubmitted,
		URLsSucceeded: e.URLsSucceeded,
		URLsFailed:    e.URLsFailed,
	}
}
