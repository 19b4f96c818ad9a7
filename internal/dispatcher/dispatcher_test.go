package dispatcher

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/onewithdev/peterbot/internal/blocklist"
	"github.com/onewithdev/peterbot/internal/chatgateway"
	"github.com/onewithdev/peterbot/internal/store"
)

type fakeStore struct {
	mu          sync.Mutex
	jobs        map[string]*store.Job
	createCalls int
}

func newFakeStore() *fakeStore {
	return &fakeStore{jobs: map[string]*store.Job{}}
}

func (f *fakeStore) CreateJob(ctx context.Context, jobType store.JobType, input, chatID string, scheduleID *string) (*store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	j := &store.Job{ID: uuid.NewString(), Type: jobType, Status: store.JobPending, Input: input, ChatID: chatID}
	f.jobs[j.ID] = j
	return j, nil
}

func (f *fakeStore) FindJobByPrefix(ctx context.Context, prefix string) (*store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var match *store.Job
	for id, j := range f.jobs {
		if len(id) >= len(prefix) && id[:len(prefix)] == prefix {
			if match != nil {
				return nil, store.ErrAmbiguousPrefix
			}
			match = j
		}
	}
	if match == nil {
		return nil, store.ErrNotFound
	}
	return match, nil
}

func (f *fakeStore) ListJobsByChat(ctx context.Context, chatID string, limit int) ([]store.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Job
	for _, j := range f.jobs {
		if j.ChatID == chatID {
			out = append(out, *j)
		}
	}
	return out, nil
}

// Unused JobStore methods.
func (f *fakeStore) GetJob(ctx context.Context, id string) (*store.Job, error) { return nil, store.ErrNotFound }
func (f *fakeStore) ClaimNextPending(ctx context.Context) (*store.Job, error)  { return nil, nil }
func (f *fakeStore) CompleteJob(ctx context.Context, id, output string) error { return nil }
func (f *fakeStore) FailJob(ctx context.Context, id, reason string, incr bool) error { return nil }
func (f *fakeStore) MarkDelivered(ctx context.Context, id string) error       { return nil }
func (f *fakeStore) ListUndelivered(ctx context.Context) ([]store.Job, error) { return nil, nil }
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
	mu   sync.Mutex
	sent []string
}

func (g *fakeGateway) Name() string { return "fake" }
func (g *fakeGateway) Start(ctx context.Context, h chatgateway.InboundHandler) error {
	return nil
}
func (g *fakeGateway) SendMessage(ctx context.Context, chatID, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
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

const authorizedChat = "auth-chat"

func newDispatcherForTest(fs *fakeStore, gw *fakeGateway, c fakeCompleter) *Dispatcher {
	return New(fs, gw, c, authorizedChat, func() string { return "system" })
}

func TestHandle_UnauthorizedChatRejected(t *testing.T) {
	fs := newFakeStore()
	gw := &fakeGateway{}
	d := newDispatcherForTest(fs, gw, fakeCompleter{result: "4"})

	d.Handle(context.Background(), "someone-else", "hello")

	if fs.createCalls != 0 {
		t.Fatal("expected no job created for unauthorized chat")
	}
	if len(gw.sent) != 1 {
		t.Fatalf("expected one rejection message, got %v", gw.sent)
	}
}

func TestHandle_QuickIntentSendsCompletion(t *testing.T) {
	fs := newFakeStore()
	gw := &fakeGateway{}
	d := newDispatcherForTest(fs, gw, fakeCompleter{result: "4"})

	d.Handle(context.Background(), authorizedChat, "what's 2+2?")

	if fs.createCalls != 0 {
		t.Fatal("quick intent should not create a job")
	}
	if len(gw.sent) != 1 || gw.sent[0] != "4" {
		t.Fatalf("expected completion reply '4', got %v", gw.sent)
	}
}

func TestHandle_QuickIntentCompletionErrorSendsApology(t *testing.T) {
	fs := newFakeStore()
	gw := &fakeGateway{}
	d := newDispatcherForTest(fs, gw, fakeCompleter{err: errors.New("boom")})

	d.Handle(context.Background(), authorizedChat, "hi there")

	if len(gw.sent) != 1 || gw.sent[0] == "" {
		t.Fatalf("expected an apology message, got %v", gw.sent)
	}
}

func TestHandle_TaskIntentCreatesJobAndAcks(t *testing.T) {
	fs := newFakeStore()
	gw := &fakeGateway{}
	d := newDispatcherForTest(fs, gw, fakeCompleter{})

	d.Handle(context.Background(), authorizedChat, "please research quantum annealing")

	if fs.createCalls != 1 {
		t.Fatalf("expected 1 job created, got %d", fs.createCalls)
	}
	if len(gw.sent) != 1 {
		t.Fatalf("expected 1 ack message, got %v", gw.sent)
	}
}

func TestHandleGet_RunningJobRejected(t *testing.T) {
	fs := newFakeStore()
	job, _ := fs.CreateJob(context.Background(), store.JobTypeTask, "x", authorizedChat, nil)
	job.Status = store.JobRunning
	gw := &fakeGateway{}
	d := newDispatcherForTest(fs, gw, fakeCompleter{})

	d.Handle(context.Background(), authorizedChat, "/get "+job.ID[:8])

	if len(gw.sent) != 1 {
		t.Fatalf("expected one reply, got %v", gw.sent)
	}
	if gw.sent[0] == "" {
		t.Fatal("expected a non-empty rejection reply")
	}
}

func TestHandle_BlocklistStrictRuleDropsMessage(t *testing.T) {
	fs := newFakeStore()
	gw := &fakeGateway{}
	d := newDispatcherForTest(fs, gw, fakeCompleter{result: "4"})

	ev, err := blocklist.Load(`{"strict": [{"name": "no-secrets", "expr": "message.contains('secret')"}], "warn": []}`)
	if err != nil {
		t.Fatalf("blocklist.Load: %v", err)
	}
	d.SetBlocklist(ev)

	d.Handle(context.Background(), authorizedChat, "here is a secret")

	if fs.createCalls != 0 {
		t.Fatal("blocked message should never create a job")
	}
	if len(gw.sent) != 0 {
		t.Fatalf("blocked message should get no reply, got %v", gw.sent)
	}
}

func TestHandle_BlocklistWarnRuleStillProcessesMessage(t *testing.T) {
	fs := newFakeStore()
	gw := &fakeGateway{}
	d := newDispatcherForTest(fs, gw, fakeCompleter{result: "4"})

	ev, err := blocklist.Load(`{"strict": [], "warn": [{"name": "mentions-money", "expr": "message.contains('invoice')"}]}`)
	if err != nil {
		t.Fatalf("blocklist.Load: %v", err)
	}
	d.SetBlocklist(ev)

	d.Handle(context.Background(), authorizedChat, "where's the invoice?")

	if len(gw.sent) != 1 {
		t.Fatalf("warn rule should not prevent the normal reply, got %v", gw.sent)
	}
}

func TestHandleRetry_CreatesDistinctJobSameInputAndChat(t *testing.T) {
	fs := newFakeStore()
	orig, _ := fs.CreateJob(context.Background(), store.JobTypeTask, "research X", authorizedChat, nil)
	orig.Status = store.JobFailed
	createsBefore := fs.createCalls
	gw := &fakeGateway{}
	d := newDispatcherForTest(fs, gw, fakeCompleter{})

	d.Handle(context.Background(), authorizedChat, "/retry "+orig.ID[:8])

	if got := fs.createCalls - createsBefore; got != 1 {
		t.Fatalf("expected 1 new job created by retry, got %d", got)
	}
	var newJob *store.Job
	for id, j := range fs.jobs {
		if id != orig.ID {
			newJob = j
		}
	}
	if newJob == nil {
		t.Fatal("expected a distinct retry job")
	}
	if newJob.Input != orig.Input || newJob.ChatID != orig.ChatID {
		t.Fatalf("retry job should share input/chatId: got %+v", newJob)
	}
	if orig.Status != store.JobFailed {
		t.Fatal("original job should be unchanged")
	}
}
