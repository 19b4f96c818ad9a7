package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/onewithdev/peterbot/internal/bus"
	"github.com/onewithdev/peterbot/internal/chatgateway"
	"github.com/onewithdev/peterbot/internal/store"
)

type fakeStore struct {
	mu          sync.Mutex
	jobs        map[string]*store.Job
	claimQueue  []string
	undelivered []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[string]*store.Job{}}
}

func (f *fakeStore) addPending(input, chatID string) string {
	id := uuid.NewString()
	f.jobs[id] = &store.Job{ID: id, Status: store.JobPending, Input: input, ChatID: chatID}
	f.claimQueue = append(f.claimQueue, id)
	return id
}

func (f *fakeStore) ClaimNextPending(ctx context.Context) (*store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.claimQueue) == 0 {
		return nil, nil
	}
	id := f.claimQueue[0]
	f.claimQueue = f.claimQueue[1:]
	f.jobs[id].Status = store.JobRunning
	cp := *f.jobs[id]
	return &cp, nil
}

func (f *fakeStore) CompleteJob(ctx context.Context, id, output string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Status = store.JobCompleted
	f.jobs[id].Output = &output
	return nil
}

func (f *fakeStore) FailJob(ctx context.Context, id, reason string, incr bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Status = store.JobFailed
	f.jobs[id].Output = &reason
	return nil
}

func (f *fakeStore) MarkDelivered(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[id].Delivered = true
	return nil
}

func (f *fakeStore) ListUndelivered(ctx context.Context) ([]store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Job
	for _, id := range f.undelivered {
		out = append(out, *f.jobs[id])
	}
	return out, nil
}

func (f *fakeStore) ReconcileStuckRunning(ctx context.Context, olderThan time.Duration) (int, error) {
	return 0, nil
}

// Unused JobStore methods.
func (f *fakeStore) CreateJob(ctx context.Context, jobType store.JobType, input, chatID string, scheduleID *string) (*store.Job, error) {
	return nil, nil
}
func (f *fakeStore) GetJob(ctx context.Context, id string) (*store.Job, error) { return nil, store.ErrNotFound }
func (f *fakeStore) FindJobByPrefix(ctx context.Context, p string) (*store.Job, error) {
	return nil, store.ErrNotFound
}
func (f *fakeStore) ListJobsByChat(ctx context.Context, chatID string, limit int) ([]store.Job, error) {
	return nil, nil
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
func (f *fakeStore) DueSchedules(ctx context.Context, now time.Time) ([]store.Schedule, error) {
	return nil, nil
}
func (f *fakeStore) AdvanceSchedule(ctx context.Context, id string, nextRunAt, lastRunAt time.Time) error {
	return nil
}
func (f *fakeStore) SetScheduleEnabled(ctx context.Context, id string, enabled bool, nextRunAt *time.Time) error {
	return nil
}
func (f *fakeStore) Close() error { return nil }

type fakeGateway struct {
	mu       sync.Mutex
	sent     []string
	failNext bool
}

func (g *fakeGateway) Name() string { return "fake" }
func (g *fakeGateway) Start(ctx context.Context, h chatgateway.InboundHandler) error {
	return nil
}
func (g *fakeGateway) SendMessage(ctx context.Context, chatID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failNext {
		g.failNext = false
		return errors.New("send failed")
	}
	g.sent = append(g.sent, text)
	return nil
}
func (g *fakeGateway) SendTyping(ctx context.Context, chatID string) {}

type fakeCompleter struct {
	result string
	err    error
}

func (c fakeCompleter) Complete(ctx context.Context, prompt, system string) (string, error) {
	return c.result, c.err
}

func TestExecute_CompletesAndDelivers(t *testing.T) {
	fs := newFakeStore()
	id := fs.addPending("2+2", "chat-1")
	gw := &fakeGateway{}
	w := New(fs, gw, fakeCompleter{result: "4"}, bus.New(), "system")

	job, err := fs.ClaimNextPending(context.Background())
	if err != nil || job == nil {
		t.Fatalf("claim failed: %v", err)
	}
	w.execute(context.Background(), *job)

	if fs.jobs[id].Status != store.JobCompleted {
		t.Fatalf("expected completed, got %s", fs.jobs[id].Status)
	}
	if !fs.jobs[id].Delivered {
		t.Fatal("expected job delivered")
	}
	if len(gw.sent) != 1 || gw.sent[0] != "4" {
		t.Fatalf("unexpected sent messages: %v", gw.sent)
	}
}

func TestExecute_CompletionFailureMarksJobFailed(t *testing.T) {
	fs := newFakeStore()
	id := fs.addPending("broken input", "chat-1")
	gw := &fakeGateway{}
	w := New(fs, gw, fakeCompleter{err: errors.New("model unavailable")}, bus.New(), "system")

	job, _ := fs.ClaimNextPending(context.Background())
	w.execute(context.Background(), *job)

	if fs.jobs[id].Status != store.JobFailed {
		t.Fatalf("expected failed, got %s", fs.jobs[id].Status)
	}
	if len(gw.sent) != 1 {
		t.Fatalf("expected one apology message sent, got %v", gw.sent)
	}
}

func TestDeliver_SendFailureLeavesUndelivered(t *testing.T) {
	fs := newFakeStore()
	id := fs.addPending("hello", "chat-1")
	gw := &fakeGateway{failNext: true}
	w := New(fs, gw, fakeCompleter{result: "hi"}, bus.New(), "system")

	job, _ := fs.ClaimNextPending(context.Background())
	w.execute(context.Background(), *job)

	if fs.jobs[id].Delivered {
		t.Fatal("expected job to remain undelivered after send failure")
	}
	if fs.jobs[id].Status != store.JobCompleted {
		t.Fatalf("job status should still be completed, got %s", fs.jobs[id].Status)
	}
}
