// Package intake implements Job Intake & Dispatch: validating submissions,
// writing the initial durable row, publishing a durable task record,
// consuming that record into the admission engine, and driving the
// execution lifecycle (start/finish/fail bookkeeping) against the durable
// store, the live status cache and the resource ledger.
package intake

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/clearwell/crawlctl/internal/apierr"
	"github.com/clearwell/crawlctl/internal/crawl"
	"github.com/clearwell/crawlctl/internal/domain"
	"github.com/clearwell/crawlctl/internal/estimate"
	"github.com/clearwell/crawlctl/internal/metrics"
	"github.com/clearwell/crawlctl/internal/priority"
	"github.com/clearwell/crawlctl/internal/progress"
	"github.com/clearwell/crawlctl/internal/store"
	"github.com/clearwell/crawlctl/internal/transport"
)

// IDGenerator mints new job identities.
type IDGenerator interface {
	NewID() (string, error)
}

// Clock abstracts wall-clock time so lifecycle timestamps are testable.
type Clock interface {
	Now() time.Time
}

// ResourceLedger is the subset of the Resource Ledger the dispatch loop
// needs: cluster snapshot reads plus per-job start/release bookkeeping.
type ResourceLedger interface {
	RegisterStart(ctx context.Context, jobID, userID string, threads int) error
	ReleaseCompletion(ctx context.Context, jobID, userID string, threads int) error
	GetCurrentResourceStatus(ctx context.Context, capacity domain.WorkerCapacity) (domain.WorkerResourceStatus, error)
}

// LiveStatusCache is the subset of the live status cache the admission core
// reads and clears directly, independent of the progress-event sink that
// writes the running-state snapshots.
type LiveStatusCache interface {
	Get(ctx context.Context, jobID string) (domain.LiveStatus, bool, error)
	Delete(ctx context.Context, jobID string) error
}

// Config bundles every collaborator a Service needs.
type Config struct {
	Store     store.JobStore
	Publisher transport.Publisher
	Engine    *priority.Engine
	Estimator *estimate.Estimator
	Ledger    ResourceLedger
	Cache     LiveStatusCache
	Fetcher   crawl.Fetcher
	Hub       *progress.Hub
	IDs       IDGenerator
	Clock     Clock
	Capacity  domain.WorkerCapacity
	Logger    *zap.Logger
}

// Service implements the Submit, Intake and Dispatch operations of §4.1.
type Service struct {
	store     store.JobStore
	publisher transport.Publisher
	engine    *priority.Engine
	estimator *estimate.Estimator
	ledger    ResourceLedger
	cache     LiveStatusCache
	fetcher   crawl.Fetcher
	hub       *progress.Hub
	ids       IDGenerator
	clock     Clock
	capacity  domain.WorkerCapacity
	logger    *zap.Logger
}

// New constructs a Service from its collaborators.
func New(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &Service{
		store:     cfg.Store,
		publisher: cfg.Publisher,
		engine:    cfg.Engine,
		estimator: cfg.Estimator,
		ledger:    cfg.Ledger,
		cache:     cfg.Cache,
		fetcher:   cfg.Fetcher,
		hub:       cfg.Hub,
		ids:       cfg.IDs,
		clock:     cfg.Clock,
		capacity:  cfg.Capacity,
		logger:    logger,
	}
}

// Submit validates a batch of URLs, assigns a job identity, durably writes
// the PENDING row, and publishes the task record. The DJS write always
// precedes the publish so a status query immediately after Submit returns
// finds the job, per §4.1's ordering contract.
func (s *Service) Submit(ctx context.Context, urls []string, userID string) (string, error) {
	if len(urls) == 0 {
		return "", apierr.New(apierr.KindInvalidInput, "Validation failed").WithDetails("urls must not be empty")
	}

	jobID, err := s.ids.NewID()
	if err != nil {
		return "", apierr.Wrap(apierr.KindInternal, "generate job id", err)
	}

	job := domain.Job{
		ID:            jobID,
		Status:        domain.JobStatusPending,
		UserID:        userID,
		URLsSubmitted: len(urls),
		CreatedAt:     s.clock.Now(),
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return "", apierr.Wrap(apierr.KindStore, "create job", err)
	}

	task := domain.TaskMessage{JobID: jobID, URLs: urls, UserID: userID}
	if err := s.publisher.Publish(ctx, jobID, task); err != nil {
		s.logger.Error("publish task record failed after durable write; job remains PENDING",
			zap.String("job_id", jobID), zap.Error(err))
		return "", apierr.Wrap(apierr.KindTransport, "publish task record", err)
	}
	return jobID, nil
}

// HandleDelivery implements the Intake operation as a transport.Subscriber
// handler: it parses the task record, computes a ResourceEstimate, and
// inserts a PrioritizedTask into the admission engine's pending set.
// Malformed messages are acknowledged and logged to avoid poison-pill
// redelivery loops; failures before the pending-set insertion are not
// acknowledged so the transport redelivers them.
func (s *Service) HandleDelivery(ctx context.Context, delivery transport.Delivery) error {
	task := delivery.Task
	if task.JobID == "" || len(task.URLs) == 0 {
		s.logger.Warn("discarding malformed task record", zap.String("job_id", task.JobID))
		delivery.Ack()
		return nil
	}

	est, err := s.estimator.Estimate(ctx, len(task.URLs), task.UserID)
	if err != nil {
		s.logger.Error("resource estimate failed, message will be redelivered",
			zap.String("job_id", task.JobID), zap.Error(err))
		delivery.Nack()
		return nil
	}

	s.engine.Add(domain.PrioritizedTask{
		JobID:      task.JobID,
		UserID:     task.UserID,
		URLCount:   len(task.URLs),
		Estimate:   est,
		SubmitTime: s.clock.Now(),
	}, task.URLs)

	delivery.Ack()
	return nil
}

// RunDispatchLoop ticks at the configured interval, asking the admission
// engine for the next executable task and starting its execution. It
// returns when ctx is canceled.
func (s *Service) RunDispatchLoop(ctx context.Context, tick time.Duration) {
	ticker := time.NewTicker(tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchOnce(ctx)
		}
	}
}

// dispatchOnce performs a single tick: it never propagates an error, per
// §7's "the dispatch tick never propagates" rule — failures are logged and
// the loop waits for the next tick.
func (s *Service) dispatchOnce(ctx context.Context) {
	status, err := s.ledger.GetCurrentResourceStatus(ctx, s.capacity)
	if err != nil {
		s.logger.Error("read cluster resource status failed", zap.Error(err))
		return
	}
	metrics.SetClusterUtilization(status.UtilizationRate)
	metrics.SetAdmissionQueueDepth(s.engine.PendingCount())

	task, urls, ok := s.engine.NextExecutable(status)
	if !ok {
		return
	}

	s.logger.Info("dispatching job",
		zap.String("job_id", task.JobID), zap.Int("url_count", task.URLCount),
		zap.Int("threads", task.Estimate.EstimatedThreads))

	// Execution is detached from the tick loop's context so an in-flight
	// crawl finishes even across a graceful-shutdown signal; the resource
	// ledger's TTLs bound leakage if the process dies anyway (§4.1).
	go s.execute(context.Background(), task, urls)
}

// execute drives one dispatched job from RL registration through its
// terminal DJS write, per steps 2-4 of §4.1's dispatch loop.
func (s *Service) execute(ctx context.Context, task domain.PrioritizedTask, urls []string) {
	threads := task.Estimate.EstimatedThreads
	if err := s.ledger.RegisterStart(ctx, task.JobID, task.UserID, threads); err != nil {
		s.logger.Error("register job start failed", zap.String("job_id", task.JobID), zap.Error(err))
		return
	}

	startedAt := s.clock.Now()
	if err := s.store.MarkRunning(ctx, task.JobID, startedAt); err != nil {
		s.logger.Error("mark job running failed", zap.String("job_id", task.JobID), zap.Error(err))
	}

	s.hub.Emit(progress.Event{
		JobID:         task.JobID,
		UserID:        task.UserID,
		TS:            startedAt,
		Stage:         progress.StageJobStart,
		URLsSubmitted: task.URLCount,
		Message:       fmt.Sprintf("starting crawl of %d urls", task.URLCount),
	})

	succeeded, failed, driverErr := s.crawlURLs(ctx, task, urls)

	completedAt := s.clock.Now()
	durationMs := completedAt.Sub(startedAt).Milliseconds()
	waited := startedAt.Sub(task.SubmitTime)
	counters := store.Counters{Submitted: task.URLCount, Succeeded: succeeded, Failed: failed}

	if driverErr != nil {
		s.finishFailed(ctx, task, counters, completedAt, durationMs, waited, driverErr)
		return
	}
	s.finishSucceeded(ctx, task, counters, completedAt, durationMs, waited)
}

// crawlURLs fetches every URL in order, emitting a progressive live-status
// update after each one (§12's per-URL granularity). Per-URL fetch failures
// are counted in urlsFailed and are not driver errors; only a panic in the
// driving loop itself is reported as a crash that fails the whole job.
func (s *Service) crawlURLs(ctx context.Context, task domain.PrioritizedTask, urls []string) (succeeded, failed int, driverErr error) {
	defer func() {
		if r := recover(); r != nil {
			driverErr = fmt.Errorf("crawl driver panic: %v", r)
		}
	}()

	for i, url := range urls {
		if _, err := s.fetcher.Fetch(ctx, url); err != nil {
			failed++
			s.logger.Warn("url fetch failed", zap.String("job_id", task.JobID), zap.String("url", url), zap.Error(err))
		} else {
			succeeded++
		}

		s.hub.Emit(progress.Event{
			JobID:         task.JobID,
			UserID:        task.UserID,
			TS:            s.clock.Now(),
			Stage:         progress.StageURLDone,
			URLsSubmitted: task.URLCount,
			URLsSucceeded: succeeded,
			URLsFailed:    failed,
			Message:       fmt.Sprintf("crawling %d/%d", i+1, task.URLCount),
		})
	}
	return succeeded, failed, nil
}

func (s *Service) finishSucceeded(ctx context.Context, task domain.PrioritizedTask, counters store.Counters, completedAt time.Time, durationMs int64, waited time.Duration) {
	artifact := fmt.Sprintf("crawled %d urls (%d succeeded, %d failed)", counters.Submitted, counters.Succeeded, counters.Failed)
	if err := s.store.CompleteSucceeded(ctx, task.JobID, artifact, counters, durationMs, completedAt); err != nil {
		s.logger.Error("write succeeded job failed", zap.String("job_id", task.JobID), zap.Error(err))
	}
	metrics.ObserveJobCompleted(string(domain.JobStatusSucceeded), waited)
	s.finalize(ctx, task, progress.StageJobDone, "crawl complete", counters, durationMs)
}

func (s *Service) finishFailed(ctx context.Context, task domain.PrioritizedTask, counters store.Counters, completedAt time.Time, durationMs int64, waited time.Duration, cause error) {
	if err := s.store.CompleteFailed(ctx, task.JobID, counters, completedAt); err != nil {
		s.logger.Error("write failed job failed", zap.String("job_id", task.JobID), zap.Error(err))
	}
	s.logger.Error("crawl driver crashed, job marked FAILED", zap.String("job_id", task.JobID), zap.Error(cause))
	metrics.ObserveJobCompleted(string(domain.JobStatusFailed), waited)
	s.finalize(ctx, task, progress.StageJobError, cause.Error(), counters, durationMs)
}

// finalize deletes the live status entry and releases RL credits. Both
// happen regardless of outcome, per §4.1's failure semantics.
func (s *Service) finalize(ctx context.Context, task domain.PrioritizedTask, stage progress.Stage, message string, counters store.Counters, durationMs int64) {
	if err := s.cache.Delete(ctx, task.JobID); err != nil {
		s.logger.Warn("delete live status entry failed", zap.String("job_id", task.JobID), zap.Error(err))
	}
	if err := s.ledger.ReleaseCompletion(ctx, task.JobID, task.UserID, task.Estimate.EstimatedThreads); err != nil {
		s.logger.Error("release resource ledger credits failed", zap.String("job_id", task.JobID), zap.Error(err))
	}

	s.hub.Emit(progress.Event{
		JobID:         task.JobID,
		UserID:        task.UserID,
		TS:            s.clock.Now(),
		Stage:         stage,
		URLsSubmitted: counters.Submitted,
		URLsSucceeded: counters.Succeeded,
		URLsFailed:    counters.Failed,
		Message:       message,
		Dur:           time.Duration(durationMs) * time.Millisecond,
	})
}

// JobStatusView is the projection the status endpoint serializes, following
// the reconciliation order of §4.5: the live cache's view during RUNNING,
// falling back to the durable store's persisted counts otherwise.
type JobStatusView struct {
	JobID         string
	Status        domain.JobStatus
	LiveMessage   *string
	URLsSubmitted int
	URLsSucceeded int
	URLsFailed    int
}

// GetStatus implements the canonical status query of §4.5.
func (s *Service) GetStatus(ctx context.Context, jobID string) (JobStatusView, error) {
	live, ok, err := s.cache.Get(ctx, jobID)
	if err != nil {
		s.logger.Warn("live status cache read failed, falling back to durable store",
			zap.String("job_id", jobID), zap.Error(err))
		ok = false
	}
	if ok {
		return JobStatusView{
			JobID:         jobID,
			Status:        live.Status,
			LiveMessage:   nonEmptyPtr(live.Message),
			URLsSubmitted: live.URLsSubmitted,
			URLsSucceeded: live.URLsSucceeded,
			URLsFailed:    live.URLsFailed,
		}, nil
	}

	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return JobStatusView{}, err
	}
	return JobStatusView{
		JobID:         jobID,
		Status:        job.Status,
		URLsSubmitted: job.URLsSubmitted,
		URLsSucceeded: job.URLsSucceeded,
		URLsFailed:    job.URLsFailed,
	}, nil
}

// GetResult implements the result-fetch operation of §4.5: DJS-only,
// JobNotFound if absent, JobNotCompleted if not SUCCEEDED, InternalError if
// SUCCEEDED with an empty artifact.
func (s *Service) GetResult(ctx context.Context, jobID string) (domain.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return domain.Job{}, err
	}
	if job.Status != domain.JobStatusSucceeded {
		return domain.Job{}, apierr.New(apierr.KindJobNotComplete, "Job not completed")
	}
	if job.ResultArtifact == "" {
		return domain.Job{}, apierr.New(apierr.KindInternal, "succeeded job missing result artifact")
	}
	return job, nil
}

func nonEmptyPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
