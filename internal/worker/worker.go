// Package worker drains the pending job queue. Grounded on the teacher's
// internal/cron.Service execution loop shape (ticker-driven poll, execute
// outside any lock, record outcome) but polling store.JobStore's
// claimNextPending instead of an in-memory due-job scan, per spec.md §4.5.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/onewithdev/peterbot/internal/archive"
	"github.com/onewithdev/peterbot/internal/bus"
	"github.com/onewithdev/peterbot/internal/chatfmt"
	"github.com/onewithdev/peterbot/internal/chatgateway"
	"github.com/onewithdev/peterbot/internal/completion"
	"github.com/onewithdev/peterbot/internal/store"
	"github.com/onewithdev/peterbot/internal/tracing"
)

const (
	DefaultPollInterval  = 1 * time.Second
	DefaultStuckThreshold = 10 * time.Minute
)

// Worker claims pending jobs, runs them through the Completer and delivers
// the results. The system prompt given to New is passed as is to every
// Completion call; the worker does not read soul.md or memory.md itself.
type Worker struct {
	store          store.JobStore
	gateway        chatgateway.ChatGateway
	completer      completion.Completer
	events         *bus.EventBus
	systemPrompt   string
	pollInterval   time.Duration
	stuckThreshold time.Duration
	wake           <-chan struct{}
	archiver       *archive.Archiver
}

// SetArchiver wires the optional S3 archival step (nil is fine and leaves
// deliver's archive call a no-op).
func (w *Worker) SetArchiver(a *archive.Archiver) {
	w.archiver = a
}

// SetWakeChannel wires an optional low-latency nudge (internal/notify) that
// lets Run skip ahead of the poll ticker when a job was just created. Purely
// an optimization: Run still falls back to polling if wake is nil or closed.
func (w *Worker) SetWakeChannel(wake <-chan struct{}) {
	w.wake = wake
}

func New(js store.JobStore, gw chatgateway.ChatGateway, c completion.Completer, events *bus.EventBus, systemPrompt string) *Worker {
	return &Worker{
		store:          js,
		gateway:        gw,
		completer:      c,
		events:         events,
		systemPrompt:   systemPrompt,
		pollInterval:   DefaultPollInterval,
		stuckThreshold: DefaultStuckThreshold,
	}
}

// Reconcile transitions jobs left running by a crashed prior instance back
// to pending (spec.md §4.5 Supervision) and attempts delivery of any
// completed/failed job that was never delivered (Delivery recovery). Call
// once at startup, before Run.
func (w *Worker) Reconcile(ctx context.Context) {
	n, err := w.store.ReconcileStuckRunning(ctx, w.stuckThreshold)
	if err != nil {
		slog.Error("worker: reconcile stuck running failed", "error", err)
	} else if n > 0 {
		slog.Info("worker: reconciled stuck jobs", "count", n)
	}

	undelivered, err := w.store.ListUndelivered(ctx)
	if err != nil {
		slog.Error("worker: list undelivered failed", "error", err)
		return
	}
	for _, job := range undelivered {
		w.deliver(ctx, job)
	}
}

// Run polls claimNextPending until ctx is canceled, sleeping pollInterval
// between empty polls.
func (w *Worker) Run(ctx context.Context) {
	slog.Info("worker started", "poll_interval", w.pollInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopping")
			return
		default:
		}

		job, err := w.store.ClaimNextPending(ctx)
		if err != nil {
			slog.Error("worker: claimNextPending failed", "error", err)
			w.sleepOrWake(ctx)
			continue
		}
		if job == nil {
			w.sleepOrWake(ctx)
			continue
		}

		w.events.Broadcast(bus.Event{Type: bus.EventJobClaimed, JobID: job.ID, Status: string(store.JobRunning)})
		w.execute(ctx, *job)
	}
}

func (w *Worker) execute(ctx context.Context, job store.Job) {
	ctx, span := tracing.StartJobSpan(ctx, job.ID, string(job.Type))
	defer span.End()

	output, err := w.completer.Complete(ctx, job.Input, w.systemPrompt)
	if err != nil {
		span.RecordError(err)
		reason := "Error: " + err.Error()
		if failErr := w.store.FailJob(ctx, job.ID, reason, true); failErr != nil {
			slog.Error("worker: failJob failed", "job_id", job.ID, "error", failErr)
			return
		}
		w.events.Broadcast(bus.Event{Type: bus.EventJobFailed, JobID: job.ID, Status: string(store.JobFailed)})
		job.Status = store.JobFailed
		job.Output = &reason
		w.deliver(ctx, job)
		return
	}

	if err := w.store.CompleteJob(ctx, job.ID, output); err != nil {
		slog.Error("worker: completeJob failed", "job_id", job.ID, "error", err)
		return
	}
	w.events.Broadcast(bus.Event{Type: bus.EventJobCompleted, JobID: job.ID, Status: string(store.JobCompleted)})
	job.Status = store.JobCompleted
	job.Output = &output
	w.deliver(ctx, job)
}

// deliver sends the formatted result and marks the job delivered on
// success. A send failure is logged and left undelivered for the next
// startup's Reconcile to retry (spec.md §4.5 Delivery recovery).
func (w *Worker) deliver(ctx context.Context, job store.Job) {
	text := formatResult(job)
	if err := w.gateway.SendMessage(ctx, job.ChatID, text); err != nil {
		slog.Warn("worker: delivery failed, will retry on next startup", "job_id", job.ID, "error", err)
		return
	}
	if err := w.store.MarkDelivered(ctx, job.ID); err != nil {
		slog.Error("worker: markDelivered failed", "job_id", job.ID, "error", err)
		return
	}
	w.events.Broadcast(bus.Event{Type: bus.EventJobDelivered, JobID: job.ID, Status: string(job.Status)})
	w.archiver.Archive(ctx, job)
}

// formatResult produces the user-facing text for a completed or failed job
// (spec.md §4.5 Result formatting).
func formatResult(job store.Job) string {
	output := ""
	if job.Output != nil {
		output = *job.Output
	}
	if job.Status == store.JobFailed {
		return chatfmt.FailureMessage(output)
	}
	return output
}

// sleepOrWake waits for the poll interval to elapse, but returns early if a
// wake signal arrives first (internal/notify's Redis-backed nudge).
func (w *Worker) sleepOrWake(ctx context.Context) {
	t := time.NewTimer(w.pollInterval)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	case _, ok := <-w.wake:
		if !ok {
			// The wake source has closed: stop selecting on it and wait
			// out the rest of the poll interval.
			w.wake = nil
			select {
			case <-ctx.Done():
			case <-t.C:
			}
		}
	}
}
