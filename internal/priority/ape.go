// Package priority implements the Admission & Priority Engine: the in-memory
// pending set, the resource/age scoring policy, and execution gating against
// a resource-ledger snapshot and per-user quotas.
package priority

import (
	"sort"
	"sync"
	"time"

	"github.com/clearwell/crawlctl/internal/domain"
)

// MaxWaitMs bounds the age-normalization term in the scoring function.
const MaxWaitMs = 300_000

// Resource-score and wait-time weights from the admission specification.
const (
	resourceScoreWeight = 0.7
	waitTimeWeight       = 0.3
	blockedScore         = 1000.0
)

// QuotaChecker reports whether userID may currently admit another task
// requiring the given thread count, per the resource ledger's quota bundle.
type QuotaChecker interface {
	CanAdmit(userID string, requiredThreads int) (bool, error)
}

// Clock abstracts wall-clock time for testability.
type Clock interface {
	Now() time.Time
}

// Engine holds the pending task set and URL lookup, safe for concurrent
// insert/remove/snapshot from multiple intake and dispatch goroutines.
type Engine struct {
	mu       sync.Mutex
	pending  map[string]*domain.PrioritizedTask
	urls     map[string][]string
	quota    QuotaChecker
	clock    Clock
}

// New constructs an Engine. quota is consulted during scoring and gating;
// clock is used to compute task age.
func New(quota QuotaChecker, clock Clock) *Engine {
	return &Engine{
		pending: make(map[string]*domain.PrioritizedTask),
		urls:    make(map[string][]string),
		quota:   quota,
		clock:   clock,
	}
}

// Add inserts a new pending task and its URL list. It is safe to call
// concurrently with NextExecutable.
func (e *Engine) Add(task domain.PrioritizedTask, urls []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	t := task
	e.pending[task.JobID] = &t
	e.urls[task.JobID] = urls
}

// Remove deletes a pending task and its URL list without returning them.
// Nothing in the service calls it today; dispatch removes tasks through
// NextExecutable.
func (e *Engine) Remove(jobID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.pending, jobID)
	delete(e.urls, jobID)
}

// PendingCount returns the number of tasks currently awaiting dispatch.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

// URLsFor returns the URL list registered alongside a pending task.
func (e *Engine) URLsFor(jobID string) ([]string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	urls, ok := e.urls[jobID]
	return urls, ok
}

// NextExecutable snapshots the pending set, scores every task against status,
// and returns the first gated-executable task in priority order, removing it
// from the pending set atomically with respect to concurrent Add calls. It
// returns ok=false when no task is currently executable.
func (e *Engine) NextExecutable(status domain.WorkerResourceStatus) (domain.PrioritizedTask, []string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.clock.Now()
	tasks := make([]*domain.PrioritizedTask, 0, len(e.pending))
	for _, t := range e.pending {
		scored := e.score(*t, now)
		tasks = append(tasks, &scored)
	}

	sort.Slice(tasks, func(i, j int) bool {
		if tasks[i].PriorityScore != tasks[j].PriorityScore {
			return tasks[i].PriorityScore < tasks[j].PriorityScore
		}
		if !tasks[i].SubmitTime.Equal(tasks[j].SubmitTime) {
			return tasks[i].SubmitTime.Before(tasks[j].SubmitTime)
		}
		return tasks[i].JobID < tasks[j].JobID
	})

	for _, t := range tasks {
		if !e.canExecuteNow(*t, status) {
			continue
		}
		urls := e.urls[t.JobID]
		delete(e.pending, t.JobID)
		delete(e.urls, t.JobID)
		return *t, urls, true
	}
	return domain.PrioritizedTask{}, nil, false
}

// score computes the priority score and quota-gated CanExecute flag for a
// single task, following DefaultTaskPriorityStrategy's weighting.
func (e *Engine) score(t domain.PrioritizedTask, now time.Time) domain.PrioritizedTask {
	admissible, err := e.quotaOK(t)
	if err != nil || !admissible {
		t.PriorityScore = blockedScore
		t.CanExecute = false
		return t
	}

	waitMs := float64(now.Sub(t.SubmitTime).Milliseconds())
	waitNorm := waitMs / MaxWaitMs
	if waitNorm > 1 {
		waitNorm = 1
	}
	if waitNorm < 0 {
		waitNorm = 0
	}
	t.PriorityScore = resourceScoreWeight*t.Estimate.ResourceScore - waitTimeWeight*waitNorm
	t.CanExecute = true
	return t
}

func (e *Engine) quotaOK(t domain.PrioritizedTask) (bool, error) {
	if e.quota == nil {
		return true, nil
	}
	return e.quota.CanAdmit(t.UserID, t.Estimate.EstimatedThreads)
}

// canExecuteNow applies the capacity gate (cluster threads/instances) on top
// of the quota gate already folded into CanExecute during scoring.
func (e *Engine) canExecuteNow(t domain.PrioritizedTask, status domain.WorkerResourceStatus) bool {
	if !t.CanExecute {
		return false
	}
	if status.AvailableThreads() < t.Estimate.EstimatedThreads {
		return false
	}
	if status.AvailableInstances() <= 0 {
		return false
	}
	return true
}
