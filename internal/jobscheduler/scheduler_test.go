package jobscheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/onewithdev/peterbot/internal/store"
)

// fakeStore is a minimal in-memory store.JobStore sufficient to drive the
// scheduler's tick logic without a real database.
type fakeStore struct {
	mu           sync.Mutex
	schedules    map[string]store.Schedule
	jobs         []store.Job
	failCreate   bool
	failAdvance  bool
	advanceCalls int
	createCalls  int
}

func newFakeStore() *fakeStore {
	return &fakeStore{schedules: map[string]store.Schedule{}}
}

func (f *fakeStore) CreateJob(ctx context.Context, jobType store.JobType, input, chatID string, scheduleID *string) (*store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.failCreate {
		return nil, errors.New("boom")
	}
	j := store.Job{ID: uuid.NewString(), Type: jobType, Status: store.JobPending, Input: input, ChatID: chatID, ScheduleID: scheduleID}
	f.jobs = append(f.jobs, j)
	return &j, nil
}

func (f *fakeStore) DueSchedules(ctx context.Context, now time.Time) ([]store.Schedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var due []store.Schedule
	for _, s := range f.schedules {
		if s.Enabled && !s.NextRunAt.After(now) {
			due = append(due, s)
		}
	}
	return due, nil
}

func (f *fakeStore) AdvanceSchedule(ctx context.Context, id string, nextRunAt, lastRunAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.advanceCalls++
	if f.failAdvance {
		return errors.New("advance boom")
	}
	s := f.schedules[id]
	s.NextRunAt = nextRunAt
	s.LastRunAt = &lastRunAt
	f.schedules[id] = s
	return nil
}

func (f *fakeStore) SetScheduleEnabled(ctx context.Context, id string, enabled bool, nextRunAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.schedules[id]
	s.Enabled = enabled
	if nextRunAt != nil {
		s.NextRunAt = *nextRunAt
	}
	f.schedules[id] = s
	return nil
}

// Unused JobStore methods, stubbed to satisfy the interface.
func (f *fakeStore) GetJob(ctx context.Context, id string) (*store.Job, error) { return nil, store.ErrNotFound }
func (f *fakeStore) FindJobByPrefix(ctx context.Context, p string) (*store.Job, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) ListJobsByChat(ctx context.Context, chatID string, limit int) ([]store.Job, error) {
	return nil, nil
}
func (f *fakeStore) ClaimNextPending(ctx context.Context) (*store.Job, error)        { return nil, nil }
func (f *fakeStore) CompleteJob(ctx context.Context, id, output string) error       { return nil }
func (f *fakeStore) FailJob(ctx context.Context, id, reason string, incr bool) error { return nil }
func (f *fakeStore) MarkDelivered(ctx context.Context, id string) error             { return nil }
func (f *fakeStore) ListUndelivered(ctx context.Context) ([]store.Job, error)       { return nil, nil }
func (f *fakeStore) ReconcileStuckRunning(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}
func (f *fakeStore) CancelJob(ctx context.Context, id, reason string) error { return nil }
func (f *fakeStore) CreateSchedule(ctx context.Context, s store.Schedule) (*store.Schedule, error) {
	return nil, nil
}
func (f *fakeStore) GetSchedule(ctx context.Context, id string) (*store.Schedule, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) ListSchedules(ctx context.Context, includeDisabled bool) ([]store.Schedule, error) {
	return nil, nil
}
func (f *fakeStore) Close() error { return nil }

func TestTick_FiresDueScheduleAndAdvances(t *testing.T) {
	fs := newFakeStore()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	id := uuid.NewString()
	fs.schedules[id] = store.Schedule{ID: id, Enabled: true, ParsedCron: "0 * * * *", Prompt: "check email", NextRunAt: now.Add(-time.Minute)}

	s := New(fs, "default-chat", time.Second)
	s.tick(context.Background())

	if fs.createCalls != 1 {
		t.Fatalf("expected 1 createJob call, got %d", fs.createCalls)
	}
	if fs.advanceCalls != 1 {
		t.Fatalf("expected 1 advanceSchedule call, got %d", fs.advanceCalls)
	}
	if len(fs.jobs) != 1 || fs.jobs[0].Input != "check email" || fs.jobs[0].ChatID != "default-chat" {
		t.Fatalf("unexpected job created: %+v", fs.jobs)
	}
}

func TestFire_InvalidCronDisablesSchedule(t *testing.T) {
	fs := newFakeStore()
	id := uuid.NewString()
	sc := store.Schedule{ID: id, Enabled: true, ParsedCron: "not-a-cron", Prompt: "x"}
	fs.schedules[id] = sc

	s := New(fs, "default-chat", time.Second)
	s.fire(context.Background(), sc, time.Now())

	if fs.createCalls != 0 {
		t.Fatalf("expected no job created for unparseable cron, got %d calls", fs.createCalls)
	}
	if fs.schedules[id].Enabled {
		t.Fatal("expected schedule to be disabled after unparseable cron")
	}
}

func TestFire_AdvanceFailureRecoversWithOneHourPush(t *testing.T) {
	fs := newFakeStore()
	fs.failAdvance = true
	id := uuid.NewString()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	sc := store.Schedule{ID: id, Enabled: true, ParsedCron: "0 * * * *", Prompt: "x", NextRunAt: now}
	fs.schedules[id] = sc

	s := New(fs, "default-chat", time.Second)
	s.fire(context.Background(), sc, now)

	got := fs.schedules[id]
	if !got.Enabled {
		t.Fatal("expected schedule to remain enabled after advance-failure recovery")
	}
	want := now.Add(time.Hour)
	if !got.NextRunAt.Equal(want) {
		t.Fatalf("expected nextRunAt pushed to %v, got %v", want, got.NextRunAt)
	}
}

func TestFire_CreateFailureRecoversWithoutAdvancing(t *testing.T) {
	fs := newFakeStore()
	fs.failCreate = true
	id := uuid.NewString()
	now := time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)
	sc := store.Schedule{ID: id, Enabled: true, ParsedCron: "0 * * * *", Prompt: "x", NextRunAt: now}
	fs.schedules[id] = sc

	s := New(fs, "default-chat", time.Second)
	s.fire(context.Background(), sc, now)

	if fs.advanceCalls != 0 {
		t.Fatalf("advanceSchedule should not be called when createJob fails, got %d calls", fs.advanceCalls)
	}
	if fs.schedules[id].NextRunAt.Before(now.Add(59 * time.Minute)) {
		t.Fatal("expected recovery to push nextRunAt about an hour out")
	}
}

func TestValidateCron(t *testing.T) {
	cases := map[string]bool{
		"0 9 * * *":  true,
		"0 * * * *":  true,
		"* * * * *":  true,
		"not-a-cron": false,
		"":           false,
	}
	for expr, want := range cases {
		if got := ValidateCron(expr); got != want {
			t.Errorf("ValidateCron(%q) = %v, want %v", expr, got, want)
		}
	}
}
