package cache

import (
	"context"
	"testing"

	"github.com/onewithdev/peterbot/internal/store"
)

type countingStore struct {
	store.JobStore
	getCalls int
	job      *store.Job
}

func (s *countingStore) GetJob(ctx context.Context, id string) (*store.Job, error) {
	s.getCalls++
	return s.job, nil
}

func (s *countingStore) CompleteJob(ctx context.Context, id, output string) error { return nil }

func TestJobCache_GetJobCachesAfterFirstCall(t *testing.T) {
	backing := &countingStore{job: &store.Job{ID: "abc", Status: store.JobPending}}
	c := Wrap(backing)

	if _, err := c.GetJob(context.Background(), "abc"); err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if _, err := c.GetJob(context.Background(), "abc"); err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if backing.getCalls != 1 {
		t.Fatalf("expected 1 underlying call, got %d", backing.getCalls)
	}
}

func TestJobCache_CompleteJobInvalidatesCacheEntry(t *testing.T) {
	backing := &countingStore{job: &store.Job{ID: "abc", Status: store.JobPending}}
	c := Wrap(backing)

	c.GetJob(context.Background(), "abc")
	c.CompleteJob(context.Background(), "abc", "done")
	c.GetJob(context.Background(), "abc")

	if backing.getCalls != 2 {
		t.Fatalf("expected cache to be invalidated, got %d underlying calls", backing.getCalls)
	}
}
