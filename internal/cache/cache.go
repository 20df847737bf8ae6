// Package cache holds the optional Redis read cache for terminal job
// records. Active jobs are never cached; their counters change under them.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/foliolabs/folio/internal/store"
)

const jobTTL = time.Hour

// JobCache caches the latest terminal job per document. A nil *JobCache is
// valid and disables caching, so callers never branch on configuration.
type JobCache struct {
	client *redis.Client
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, addr, password string, db int) (*JobCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to cache: %w", err)
	}
	return &JobCache{client: client}, nil
}

func jobKey(documentID string) string {
	return "folio:job:latest:" + documentID
}

// GetJob returns the cached terminal job for a document, or nil on miss.
func (c *JobCache) GetJob(ctx context.Context, documentID string) *store.GenerationJob {
	if c == nil {
		return nil
	}
	raw, err := c.client.Get(ctx, jobKey(documentID)).Bytes()
	if err != nil {
		return nil
	}
	var job store.GenerationJob
	if err := json.Unmarshal(raw, &job); err != nil {
		return nil
	}
	return &job
}

// SetJob caches a job record. Non-terminal jobs are ignored.
func (c *JobCache) SetJob(ctx context.Context, job *store.GenerationJob) {
	if c == nil || !job.Status.Terminal() {
		return
	}
	raw, err := json.Marshal(job)
	if err != nil {
		return
	}
	c.client.Set(ctx, jobKey(job.DocumentID), raw, jobTTL)
}

// Invalidate drops the cached job for a document. Called when a new job is
// accepted so stale terminal state cannot mask it.
func (c *JobCache) Invalidate(ctx context.Context, documentID string) {
	if c == nil {
		return
	}
	c.client.Del(ctx, jobKey(documentID))
}

// Close releases the Redis connection.
func (c *JobCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
