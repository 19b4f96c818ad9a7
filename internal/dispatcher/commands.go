package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/onewithdev/peterbot/internal/chatfmt"
	"github.com/onewithdev/peterbot/internal/store"
)

const welcomeMessage = "Hi, I'm online. Send me anything — quick questions get an instant answer, bigger asks become a tracked job. /status shows what's running."

// handleCommand dispatches a "/xxx ..." message. Parsed as the enumerated
// sum type spec.md §9 describes (Start | Status | Get | Retry | Unknown),
// modeled here as a plain switch over the command word.
func (d *Dispatcher) handleCommand(ctx context.Context, chatID, text string) {
	fields := strings.Fields(text)
	cmd := strings.ToLower(fields[0])
	var arg string
	if len(fields) > 1 {
		arg = fields[1]
	}

	switch cmd {
	case "/start":
		d.send(ctx, chatID, welcomeMessage)
	case "/status":
		d.handleStatus(ctx, chatID)
	case "/get":
		d.handleGet(ctx, chatID, arg)
	case "/retry":
		d.handleRetry(ctx, chatID, arg)
	default:
		// Any other /xxx is ignored (spec.md §6).
	}
}

func (d *Dispatcher) handleStatus(ctx context.Context, chatID string) {
	jobs, err := d.store.ListJobsByChat(ctx, chatID, 20)
	if err != nil {
		slog.Error("dispatcher: listJobsByChat failed", "error", err)
		d.send(ctx, chatID, chatfmt.ApologyMessage)
		return
	}
	if len(jobs) == 0 {
		d.send(ctx, chatID, "No jobs yet.")
		return
	}

	byStatus := map[store.JobStatus][]store.Job{}
	for _, j := range jobs {
		byStatus[j.Status] = append(byStatus[j.Status], j)
	}

	var b strings.Builder
	for _, status := range []store.JobStatus{store.JobRunning, store.JobPending, store.JobCompleted, store.JobFailed} {
		group := byStatus[status]
		if len(group) == 0 {
			continue
		}
		fmt.Fprintf(&b, "%s:\n", strings.ToUpper(string(status)))
		for _, j := range group {
			fmt.Fprintf(&b, "  %s — %s\n", shortID(j.ID), preview(j.Input))
		}
	}
	d.send(ctx, chatID, b.String())
}

func (d *Dispatcher) handleGet(ctx context.Context, chatID, prefix string) {
	if prefix == "" {
		d.send(ctx, chatID, "Usage: /get <jobId>")
		return
	}
	job, err := d.store.FindJobByPrefix(ctx, prefix)
	if err != nil {
		d.send(ctx, chatID, notFoundOrAmbiguous(err, prefix))
		return
	}
	if job.Status != store.JobCompleted {
		d.send(ctx, chatID, fmt.Sprintf("Job %s is %s, not completed yet.", shortID(job.ID), job.Status))
		return
	}
	output := ""
	if job.Output != nil {
		output = *job.Output
	}
	d.send(ctx, chatID, chatfmt.TruncateForGet(output))
}

func (d *Dispatcher) handleRetry(ctx context.Context, chatID, prefix string) {
	if prefix == "" {
		d.send(ctx, chatID, "Usage: /retry <jobId>")
		return
	}
	job, err := d.store.FindJobByPrefix(ctx, prefix)
	if err != nil {
		d.send(ctx, chatID, notFoundOrAmbiguous(err, prefix))
		return
	}
	if job.Status != store.JobFailed {
		d.send(ctx, chatID, fmt.Sprintf("Job %s is %s, not failed — nothing to retry.", shortID(job.ID), job.Status))
		return
	}

	newJob, err := d.store.CreateJob(ctx, store.JobTypeTask, job.Input, job.ChatID, nil)
	if err != nil {
		slog.Error("dispatcher: retry createJob failed", "error", err)
		d.send(ctx, chatID, chatfmt.ApologyMessage)
		return
	}
	d.notifier.Publish(ctx)
	d.send(ctx, chatID, chatfmt.AckMessage(newJob.ID))
}

func notFoundOrAmbiguous(err error, prefix string) string {
	if errors.Is(err, store.ErrAmbiguousPrefix) {
		return fmt.Sprintf("`%s` matches more than one job — use a longer prefix.", prefix)
	}
	return fmt.Sprintf("No job found matching `%s`.", prefix)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func preview(input string) string {
	return runewidth.Truncate(input, 60, "…")
}
