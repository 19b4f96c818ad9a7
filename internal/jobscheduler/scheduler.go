// Package jobscheduler drives the recurrence engine: a ticking loop that
// scans due schedules and turns each one into a job, grounded on
// itsddvn-goclaw's internal/cron.Service runLoop/checkJobs/computeNextRun
// shape but replacing its JSON-file Store with store.JobStore so schedules
// and jobs live in the same durable backend.
package jobscheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"

	"github.com/onewithdev/peterbot/internal/store"
)

// DefaultTickInterval is how often Run scans for due schedules.
const DefaultTickInterval = 30 * time.Second

type Scheduler struct {
	store        store.JobStore
	tickInterval time.Duration
	defaultChat  string
	stopCh       chan struct{}
	doneCh       chan struct{}
}

// New builds a Scheduler. Every scheduler-fired job is attributed to
// defaultChatID: the system has exactly one authorized chat, so there is no
// per-schedule chat routing to resolve.
func New(js store.JobStore, defaultChatID string, tickInterval time.Duration) *Scheduler {
	if tickInterval <= 0 {
		tickInterval = DefaultTickInterval
	}
	return &Scheduler{
		store:        js,
		tickInterval: tickInterval,
		defaultChat:  defaultChatID,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}
}

// Run blocks until ctx is canceled, ticking at the configured interval. A
// tick in flight is allowed to finish its current schedule before Run
// returns — no schedule is ever left partially advanced.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()
	defer close(s.doneCh)

	slog.Info("scheduler started", "tick_interval", s.tickInterval)
	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopping")
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop requests Run to return after its current tick finishes.
func (s *Scheduler) Stop() {
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) tick(ctx context.Context) {
	now := time.Now()
	due, err := s.store.DueSchedules(ctx, now)
	if err != nil {
		slog.Error("scheduler: dueSchedules failed", "error", err)
		return
	}
	for _, sc := range due {
		s.fire(ctx, sc, now)
	}
}

func (s *Scheduler) fire(ctx context.Context, sc store.Schedule, now time.Time) {
	nextRunAt, err := cronNext(sc.ParsedCron, now)
	if err != nil {
		slog.Warn("scheduler: cron expression can no longer produce a future time, disabling",
			"schedule_id", sc.ID, "expr", sc.ParsedCron, "error", err)
		if disableErr := s.store.SetScheduleEnabled(ctx, sc.ID, false, nil); disableErr != nil {
			slog.Error("scheduler: failed to disable unparseable schedule", "schedule_id", sc.ID, "error", disableErr)
		}
		return
	}

	if _, err := s.store.CreateJob(ctx, store.JobTypeTask, sc.Prompt, s.defaultChat, &sc.ID); err != nil {
		slog.Error("scheduler: createJob failed, recovering schedule", "schedule_id", sc.ID, "error", err)
		s.recover(ctx, sc.ID, now)
		return
	}

	if err := s.store.AdvanceSchedule(ctx, sc.ID, nextRunAt, now); err != nil {
		slog.Error("scheduler: advanceSchedule failed after job creation, recovering", "schedule_id", sc.ID, "error", err)
		s.recover(ctx, sc.ID, now)
		return
	}

	slog.Info("scheduler fired job", "schedule_id", sc.ID, "next_run_at", nextRunAt)
}

// recover implements spec.md §4.2(c) / I6: if createJob+advanceSchedule did
// not both succeed, push nextRunAt an hour out rather than leave the
// schedule due on the very next tick, accepting at most one duplicate job.
func (s *Scheduler) recover(ctx context.Context, scheduleID string, now time.Time) {
	safe := now.Add(1 * time.Hour)
	if err := s.store.SetScheduleEnabled(ctx, scheduleID, true, &safe); err != nil {
		slog.Error("scheduler: recovery setScheduleEnabled failed", "schedule_id", scheduleID, "error", err)
	}
}

// ErrUnparseableCron is returned by cronNext for an empty expression.
var ErrUnparseableCron = errors.New("cron expression cannot produce a future time")

// cronNext returns the smallest time strictly after now satisfying expr.
func cronNext(expr string, now time.Time) (time.Time, error) {
	if expr == "" {
		return time.Time{}, ErrUnparseableCron
	}
	next, err := gronx.NextTickAfter(expr, now, false)
	if err != nil {
		return time.Time{}, err
	}
	return next, nil
}

// ValidateCron reports whether expr is a well-formed 5-field cron
// expression, for use at schedule-creation time (dashboard / CLI).
func ValidateCron(expr string) bool {
	return gronx.New().IsValid(expr)
}

// NextRun is cronNext exported for schedule-creation callers (dashboard /
// CLI) that need to compute the initial NextRunAt before the first tick.
func NextRun(expr string, from time.Time) (time.Time, error) {
	return cronNext(expr, from)
}
