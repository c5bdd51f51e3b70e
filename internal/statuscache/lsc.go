// Package statuscache implements the Live Status Cache: a keyed,
// write-through channel from worker-side progress reporters to the status
// read path, backed by Redis with a bounded TTL so a silent crash lets status
// fall back to the durable job store.
package statuscache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clearwell/crawlctl/internal/domain"
)

const (
	keyPrefix = "scraping:job:live:status:"
	ttl       = time.Hour
)

// Cache is the Redis-backed Live Status Cache.
type Cache struct {
	client *redis.Client
}

// New constructs a Cache against an existing Redis client.
func New(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func buildKey(jobID string) string {
	return keyPrefix + jobID
}

// Put writes the full progress snapshot for jobID, refreshing its TTL.
func (c *Cache) Put(ctx context.Context, jobID string, status domain.LiveStatus) error {
	payload, err := json.Marshal(status)
	if err != nil {
		return fmt.Errorf("marshal live status: %w", err)
	}
	if err := c.client.Set(ctx, buildKey(jobID), payload, ttl).Err(); err != nil {
		return fmt.Errorf("write live status: %w", err)
	}
	return nil
}

// Get reads the live status for jobID. ok is false when the key is absent.
// A malformed payload is reported as an error so callers can log and fall
// back to the durable store per §4.5.
func (c *Cache) Get(ctx context.Context, jobID string) (domain.LiveStatus, bool, error) {
	raw, err := c.client.Get(ctx, buildKey(jobID)).Bytes()
	if err == redis.Nil {
		return domain.LiveStatus{}, false, nil
	}
	if err != nil {
		return domain.LiveStatus{}, false, fmt.Errorf("read live status: %w", err)
	}
	var status domain.LiveStatus
	if err := json.Unmarshal(raw, &status); err != nil {
		return domain.LiveStatus{}, false, fmt.Errorf("unmarshal live status: %w", err)
	}
	return status, true, nil
}

// Delete removes the live status entry for jobID. Terminal DJS writes must
// call this so a finished job's live view disappears immediately rather than
// waiting out the TTL.
func (c *Cache) Delete(ctx context.Context, jobID string) error {
	if err := c.client.Del(ctx, buildKey(jobID)).Err(); err != nil {
		return fmt.Errorf("delete live status: %w", err)
	}
	return nil
}
