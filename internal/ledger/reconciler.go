package ledger

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Reconciler periodically refreshes the TTLs of the cluster-wide running-set
// and thread-counter keys while the running set is non-empty, so a busy
// cluster keeps its ledger entries. It does not recompute the thread counter
// from the running set. Grounded on the original service's fixed-rate
// cleanup of its local resource caches against Redis.
type Reconciler struct {
	ledger   *Ledger
	interval time.Duration
	logger   *zap.Logger
}

// NewReconciler constructs a Reconciler that runs on the given interval
// (§6 default: 300000ms).
func NewReconciler(ledger *Ledger, interval time.Duration, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{ledger: ledger, interval: interval, logger: logger}
}

// Run blocks until ctx is canceled, reconciling on each tick.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.reconcileOnce(ctx); err != nil {
				r.logger.Warn("resource ledger reconciliation failed", zap.Error(err))
			}
		}
	}
}

// reconcileOnce re-reads the running-job set cardinality and refreshes the
// cluster keys' TTLs so an active cluster never silently loses its ledger
// entries to the bounding TTL while jobs are genuinely still in flight.
func (r *Reconciler) reconcileOnce(ctx context.Context) error {
	running, err := r.ledger.client.SCard(ctx, keyRunningJobs).Result()
	if err != nil {
		return err
	}
	if running == 0 {
		return nil
	}
	pipe := r.ledger.client.TxPipeline()
	pipe.Expire(ctx, keyRunningJobs, clusterTTL)
	pipe.Expire(ctx, keyThreadUsage, clusterTTL)
	_, err = pipe.Exec(ctx)
	return err
}
