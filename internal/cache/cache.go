// Package cache provides a small bounded LRU in front of JobStore's GetJob,
// invalidated on every job mutation rather than by TTL — the store remains
// the source of truth, this only spares repeat dashboard job lookups a
// round trip. ListJobsByChat (and so /status) is not cached. Grounded on
// internal/infra/llm/factory.go's use of hashicorp/golang-lru/v2 for a
// bounded response cache.
package cache

import (
	"context"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/onewithdev/peterbot/internal/store"
)

const defaultSize = 256

// JobCache wraps a store.JobStore, caching GetJob results and dropping a
// job's cache entry on every write path that changes it
// (ReconcileStuckRunning, which can touch many jobs, clears the whole cache).
type JobCache struct {
	store.JobStore
	jobs *lru.Cache[string, *store.Job]
}

func Wrap(backing store.JobStore) *JobCache {
	c, err := lru.New[string, *store.Job](defaultSize)
	if err != nil {
		// Only returns an error for a non-positive size, which defaultSize
		// never is.
		panic(err)
	}
	return &JobCache{JobStore: backing, jobs: c}
}

func (c *JobCache) GetJob(ctx context.Context, id string) (*store.Job, error) {
	if j, ok := c.jobs.Get(id); ok {
		return j, nil
	}
	j, err := c.JobStore.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	c.jobs.Add(id, j)
	return j, nil
}

func (c *JobCache) ClaimNextPending(ctx context.Context) (*store.Job, error) {
	j, err := c.JobStore.ClaimNextPending(ctx)
	if j != nil {
		c.jobs.Remove(j.ID)
	}
	return j, err
}

func (c *JobCache) ReconcileStuckRunning(ctx context.Context, olderThan time.Duration) (int, error) {
	c.jobs.Purge()
	return c.JobStore.ReconcileStuckRunning(ctx, olderThan)
}

func (c *JobCache) CompleteJob(ctx context.Context, id, output string) error {
	c.jobs.Remove(id)
	return c.JobStore.CompleteJob(ctx, id, output)
}

func (c *JobCache) FailJob(ctx context.Context, id, reason string, incrementRetry bool) error {
	c.jobs.Remove(id)
	return c.JobStore.FailJob(ctx, id, reason, incrementRetry)
}

func (c *JobCache) MarkDelivered(ctx context.Context, id string) error {
	c.jobs.Remove(id)
	return c.JobStore.MarkDelivered(ctx, id)
}

func (c *JobCache) CancelJob(ctx context.Context, id, reason string) error {
	c.jobs.Remove(id)
	return c.JobStore.CancelJob(ctx, id, reason)
}
