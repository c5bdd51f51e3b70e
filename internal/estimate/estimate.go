// Package estimate computes a ResourceEstimate for a pending job from its URL
// count and the durable store's recent execution history.
package estimate

import (
	"context"
	"fmt"

	"github.com/clearwell/crawlctl/internal/domain"
)

const (
	defaultDurationPerURLMs = 2000
	minDurationPerURLMs     = 100
	maxDurationPerURLMs     = 30000
	maxDurationMs           = 30000
	historySampleSize       = 100
)

// History is the subset of the durable job store the estimator reads from:
// the most recently completed SUCCEEDED jobs, optionally scoped to a user.
type History interface {
	RecentSucceeded(ctx context.Context, userID string, limit int) ([]domain.Job, error)
}

// Estimator derives ResourceEstimate values for pending tasks.
type Estimator struct {
	history History
}

// New constructs an Estimator backed by the given history source.
func New(history History) *Estimator {
	return &Estimator{history: history}
}

// Estimate computes the ResourceEstimate for a job with the given URL count
// and optional userID, following the stepwise thread table and the
// resource-score weighting from the admission specification.
func (e *Estimator) Estimate(ctx context.Context, urlCount int, userID string) (domain.ResourceEstimate, error) {
	durationPerURL, err := e.durationPerURLMs(ctx, userID)
	if err != nil {
		return domain.ResourceEstimate{}, fmt.Errorf("estimate duration per url: %w", err)
	}

	threads := estimateThreads(urlCount)
	totalDuration := durationPerURL * int64(urlCount)
	if totalDuration < 0 {
		totalDuration = 0
	}

	normalizedThreads := float64(threads) / 10.0
	normalizedDuration := float64(totalDuration) / maxDurationMs
	if normalizedDuration > 1 {
		normalizedDuration = 1
	}
	score := 0.6*normalizedThreads + 0.4*normalizedDuration

	return domain.ResourceEstimate{
		EstimatedThreads:    threads,
		EstimatedDurationMs: totalDuration,
		ResourceScore:       score,
	}, nil
}

// durationPerURLMs is the unweighted mean of (executionDurationMs /
// urlsSubmitted) over the most recently completed SUCCEEDED jobs, clamped to
// [minDurationPerURLMs, maxDurationPerURLMs], defaulting when no samples
// exist.
func (e *Estimator) durationPerURLMs(ctx context.Context, userID string) (int64, error) {
	if e.history == nil {
		return defaultDurationPerURLMs, nil
	}
	jobs, err := e.history.RecentSucceeded(ctx, userID, historySampleSize)
	if err != nil {
		return 0, err
	}
	if len(jobs) == 0 {
		return defaultDurationPerURLMs, nil
	}

	var sum float64
	var count int
	for _, job := range jobs {
		if job.URLsSubmitted <= 0 {
			continue
		}
		sum += float64(job.ExecutionDurationMs) / float64(job.URLsSubmitted)
		count++
	}
	if count == 0 {
		return defaultDurationPerURLMs, nil
	}

	mean := int64(sum / float64(count))
	return clamp(mean, minDurationPerURLMs, maxDurationPerURLMs), nil
}

// estimateThreads applies the stepwise thread table from the admission
// specification to a URL count.
func estimateThreads(urlCount int) int {
	switch {
	case urlCount <= 5:
		return 1
	case urlCount <= 20:
		return min(3, urlCount/7+1)
	case urlCount <= 50:
		return min(6, urlCount/10+2)
	default:
		return min(10, urlCount/10+3)
	}
}

func clamp(v, lo, hi int64) int64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
