// Package ledger implements the Resource Ledger: cluster-wide running-job and
// thread counters plus per-user sliding-window thread/job usage, all backed
// by atomic Redis operations in a keyspace distinct from the live status
// cache.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/clearwell/crawlctl/internal/domain"
)

// Key prefixes, matching the admission specification's KV store contract.
const (
	keyRunningJobs = "crawler:worker:running:jobs"
	keyThreadUsage = "crawler:worker:thread:usage"
	keyUserThreads = "crawler:user:threads:"
	keyUserJobs    = "crawler:user:jobs:"

	clusterTTL = time.Hour
)

// Ledger is the Resource Ledger's Redis-backed implementation.
type Ledger struct {
	client *redis.Client
	logger *zap.Logger
	window time.Duration
	limits domain.UserLimits
}

// New constructs a Ledger against an existing Redis client. window is the
// configured per-user sliding-window duration; limits are the configured
// per-user thresholds used by CanAdmit.
func New(client *redis.Client, window time.Duration, limits domain.UserLimits, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{client: client, logger: logger, window: window, limits: limits}
}

// RegisterStart records a job start against both the cluster bundle and the
// per-user bundle: adds jobID to the running set, adds threads to the
// cluster counter, bumps the user's thread counter and job counter. The two
// cluster keys get the 1h cluster TTL per §5; the two user keys get the
// configured window as their TTL, refreshed on every start.
func (l *Ledger) RegisterStart(ctx context.Context, jobID, userID string, threads int) error {
	pipe := l.client.TxPipeline()
	pipe.SAdd(ctx, keyRunningJobs, jobID)
	pipe.Expire(ctx, keyRunningJobs, clusterTTL)
	pipe.IncrBy(ctx, keyThreadUsage, int64(threads))
	pipe.Expire(ctx, keyThreadUsage, clusterTTL)
	if userID != "" {
		pipe.IncrBy(ctx, keyUserThreads+userID, int64(threads))
		pipe.Expire(ctx, keyUserThreads+userID, l.window)
		pipe.Incr(ctx, keyUserJobs+userID)
		pipe.Expire(ctx, keyUserJobs+userID, l.window)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("register job start: %w", err)
	}
	return nil
}

// ReleaseCompletion releases the RL credits registered at start: removes
// jobID from the running set, decrements the cluster thread counter, and
// decrements (clamped at zero) the user's thread counter. The per-user job
// counter is never decremented; its window resets only via TTL expiry.
func (l *Ledger) ReleaseCompletion(ctx context.Context, jobID, userID string, threads int) error {
	pipe := l.client.TxPipeline()
	pipe.SRem(ctx, keyRunningJobs, jobID)
	pipe.DecrBy(ctx, keyThreadUsage, int64(threads))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("release cluster credits: %w", err)
	}
	if err := l.clampNonNegative(ctx, keyThreadUsage); err != nil {
		return err
	}

	if userID != "" {
		if _, err := l.client.DecrBy(ctx, keyUserThreads+userID, int64(threads)).Result(); err != nil {
			return fmt.Errorf("decrement user thread usage: %w", err)
		}
		if err := l.clampNonNegative(ctx, keyUserThreads+userID); err != nil {
			return err
		}
	}
	return nil
}

// clampNonNegative reads back a counter and, if it went negative (a user's
// threadsInUse must never be negative per the data-model invariant), resets
// it to zero and logs an anomaly.
func (l *Ledger) clampNonNegative(ctx context.Context, key string) error {
	val, err := l.client.Get(ctx, key).Int64()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read counter %s: %w", key, err)
	}
	if val < 0 {
		l.logger.Warn("resource counter went negative, clamping to zero",
			zap.String("key", key), zap.Int64("value", val))
		if err := l.client.Set(ctx, key, 0, redis.KeepTTL).Err(); err != nil {
			return fmt.Errorf("clamp counter %s: %w", key, err)
		}
	}
	return nil
}

// GetCurrentResourceStatus returns cluster totals and usage. If the
// authoritative thread counter is missing but the running set is non-empty,
// it falls back to an estimate of 2x the running-job count, per §4.3.
func (l *Ledger) GetCurrentResourceStatus(ctx context.Context, capacity domain.WorkerCapacity) (domain.WorkerResourceStatus, error) {
	runningCount, err := l.client.SCard(ctx, keyRunningJobs).Result()
	if err != nil && err != redis.Nil {
		return domain.WorkerResourceStatus{}, fmt.Errorf("read running set cardinality: %w", err)
	}

	usedThreads, err := l.client.Get(ctx, keyThreadUsage).Int64()
	switch {
	case err == redis.Nil:
		usedThreads = 2 * runningCount
	case err != nil:
		return domain.WorkerResourceStatus{}, fmt.Errorf("read thread usage: %w", err)
	}
	if usedThreads < 0 {
		usedThreads = 0
	}

	status := domain.WorkerResourceStatus{
		TotalThreads:   capacity.TotalThreads(),
		TotalInstances: capacity.TotalInstances,
		UsedThreads:    int(usedThreads),
		UsedInstances:  int(runningCount),
	}
	if status.TotalThreads > 0 {
		status.UtilizationRate = float64(status.UsedThreads) / float64(status.TotalThreads)
	}
	return status, nil
}

// GetUserResourceUsage returns a user's current sliding-window usage.
func (l *Ledger) GetUserResourceUsage(ctx context.Context, userID string) (domain.UserUsage, error) {
	threads, err := l.client.Get(ctx, keyUserThreads+userID).Int64()
	if err != nil && err != redis.Nil {
		return domain.UserUsage{}, fmt.Errorf("read user thread usage: %w", err)
	}
	if threads < 0 {
		threads = 0
	}
	jobs, err := l.client.Get(ctx, keyUserJobs+userID).Int64()
	if err != nil && err != redis.Nil {
		return domain.UserUsage{}, fmt.Errorf("read user job count: %w", err)
	}
	return domain.UserUsage{ThreadsInUse: int(threads), JobsStartedInWindow: int(jobs)}, nil
}

// CanAdmit implements priority.QuotaChecker: a user may admit another task
// requiring requiredThreads only if projected thread usage and the job count
// both stay within the configured per-user window limits.
func (l *Ledger) CanAdmit(userID string, requiredThreads int) (bool, error) {
	usage, err := l.GetUserResourceUsage(context.Background(), userID)
	if err != nil {
		return false, err
	}
	if usage.ThreadsInUse+requiredThreads > l.limits.MaxThreadsPerWindow {
		return false, nil
	}
	if usage.JobsStartedInWindow >= l.limits.MaxJobsPerWindow {
		return false, nil
	}
	return true, nil
}
