package priority

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/clearwell/crawlctl/internal/domain"
)

type fixedClock struct{ t time.Time }

func (f fixedClock) Now() time.Time { return f.t }

type alwaysAdmit struct{}

func (alwaysAdmit) CanAdmit(string, int) (bool, error) { return true, nil }

type denyUser struct{ userID string }

func (d denyUser) CanAdmit(userID string, _ int) (bool, error) { return userID != d.userID, nil }

func ample() domain.WorkerResourceStatus {
	return domain.WorkerResourceStatus{TotalThreads: 100, TotalInstances: 10}
}

func TestNextExecutablePriorityOrder(t *testing.T) {
	t.Parallel()

	now := time.Now()
	clock := fixedClock{t: now}
	eng := New(alwaysAdmit{}, clock)

	// A: urls=5 user=u1 age=0s -> threads=1, score depends only on resourceScore
	// B: urls=80 user=u2 age=0s -> higher resourceScore
	// C: urls=5 user=u1 age=10s -> same resourceScore as A but older, lower score
	a := domain.PrioritizedTask{JobID: "a", UserID: "u1", Estimate: domain.ResourceEstimate{EstimatedThreads: 1, ResourceScore: 0.1}, SubmitTime: now}
	b := domain.PrioritizedTask{JobID: "b", UserID: "u2", Estimate: domain.ResourceEstimate{EstimatedThreads: 8, ResourceScore: 0.9}, SubmitTime: now}
	c := domain.PrioritizedTask{JobID: "c", UserID: "u1", Estimate: domain.ResourceEstimate{EstimatedThreads: 1, ResourceScore: 0.1}, SubmitTime: now.Add(-10 * time.Second)}

	eng.Add(a, []string{"u1"})
	eng.Add(b, []string{"u2"})
	eng.Add(c, []string{"u3"})

	first, _, ok := eng.NextExecutable(ample())
	require.True(t, ok)
	require.Equal(t, "c", first.JobID)

	second, _, ok := eng.NextExecutable(ample())
	require.True(t, ok)
	require.Equal(t, "a", second.JobID)

	third, _, ok := eng.NextExecutable(ample())
	require.True(t, ok)
	require.Equal(t, "b", third.JobID)

	_, _, ok = eng.NextExecutable(ample())
	require.False(t, ok)
}

func TestNextExecutableQuotaBlocksUser(t *testing.T) {
	t.Parallel()

	now := time.Now()
	eng := New(denyUser{userID: "blocked"}, fixedClock{t: now})

	blocked := domain.PrioritizedTask{JobID: "blocked-job", UserID: "blocked", Estimate: domain.ResourceEstimate{EstimatedThreads: 1, ResourceScore: 0.1}, SubmitTime: now}
	eng.Add(blocked, []string{"x"})

	_, _, ok := eng.NextExecutable(ample())
	require.False(t, ok, "blocked user's task must stay in the pending set")
	require.Equal(t, 1, eng.PendingCount())
}

func TestNextExecutableCapacityGate(t *testing.T) {
	t.Parallel()

	now := time.Now()
	eng := New(alwaysAdmit{}, fixedClock{t: now})

	task := domain.PrioritizedTask{JobID: "big", UserID: "u1", Estimate: domain.ResourceEstimate{EstimatedThreads: 20, ResourceScore: 0.5}, SubmitTime: now}
	eng.Add(task, []string{"u1"})

	tight := domain.WorkerResourceStatus{TotalThreads: 10, TotalInstances: 1}
	_, _, ok := eng.NextExecutable(tight)
	require.False(t, ok)

	roomy := domain.WorkerResourceStatus{TotalThreads: 20, TotalInstances: 1}
	_, _, ok = eng.NextExecutable(roomy)
	require.True(t, ok)
}
