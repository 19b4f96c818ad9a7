// Package store defines the durable job/schedule model shared by every
// JobStore backend (internal/store/sqlitestore, internal/store/pgstore).
package store

import (
	"context"
	"errors"
	"time"
)

// JobType distinguishes the two request shapes the dispatcher produces.
// Only "task" is ever persisted; "quick" replies never reach the store.
type JobType string

const (
	JobTypeTask  JobType = "task"
	JobTypeQuick JobType = "quick"
)

// JobStatus is a node in the state machine described in spec.md §3.2 (I1):
// pending -> running -> {completed, failed}. No edge is ever reversed.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job is a unit of work tracked by the JobStore.
type Job struct {
	ID         string
	Type       JobType
	Status     JobStatus
	Input      string
	Output     *string
	ChatID     string
	ScheduleID *string
	Delivered  bool
	RetryCount int
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Schedule is a recurring job template driven by the Scheduler.
type Schedule struct {
	ID              string
	Description     string
	NaturalSchedule string
	ParsedCron      string
	Prompt          string
	Enabled         bool
	LastRunAt       *time.Time
	NextRunAt       time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Sentinel errors per spec.md §7's taxonomy. Backends wrap these with
// fmt.Errorf("...: %w", ...) so callers can still errors.Is against them.
var (
	// ErrStorageFailure marks a transient or unexpected backend error.
	// Never swallowed; always surfaced to the caller.
	ErrStorageFailure = errors.New("storage failure")
	// ErrNotFound marks a missing job/schedule row.
	ErrNotFound = errors.New("not found")
)

// JobStore is the durable persistence and state-transition API for Jobs and
// Schedules (spec.md §4.1). Implementations must enforce I1-I6 themselves;
// callers never bypass this interface to touch rows directly.
type JobStore interface {
	// Jobs

	CreateJob(ctx context.Context, jobType JobType, input, chatID string, scheduleID *string) (*Job, error)
	GetJob(ctx context.Context, id string) (*Job, error)
	// FindJobByPrefix resolves a full ID or unique short prefix to a Job.
	// Returns ErrNotFound if no job matches, and ErrAmbiguousPrefix if more
	// than one job shares the prefix.
	FindJobByPrefix(ctx context.Context, prefix string) (*Job, error)
	ListJobsByChat(ctx context.Context, chatID string, limit int) ([]Job, error)
	// ClaimNextPending atomically transitions the oldest pending job to
	// running and returns it. Returns (nil, nil) if no job is pending.
	ClaimNextPending(ctx context.Context) (*Job, error)
	CompleteJob(ctx context.Context, id, output string) error
	FailJob(ctx context.Context, id, reason string, incrementRetry bool) error
	MarkDelivered(ctx context.Context, id string) error
	ListUndelivered(ctx context.Context) ([]Job, error)
	// ReconcileStuckRunning transitions any job that has been running for
	// longer than olderThan back to pending, bumping retryCount (spec.md §4.5).
	// Returns the number of jobs reconciled.
	ReconcileStuckRunning(ctx context.Context, olderThan time.Duration) (int, error)
	// CancelJob transitions a pending or running job to failed with the
	// given reason (dashboard POST /api/jobs/:id/cancel). Rejects other
	// statuses with ErrNotFound-shaped semantics handled by the caller.
	CancelJob(ctx context.Context, id, reason string) error

	// Schedules

	CreateSchedule(ctx context.Context, s Schedule) (*Schedule, error)
	GetSchedule(ctx context.Context, id string) (*Schedule, error)
	ListSchedules(ctx context.Context, includeDisabled bool) ([]Schedule, error)
	DueSchedules(ctx context.Context, now time.Time) ([]Schedule, error)
	AdvanceSchedule(ctx context.Context, id string, nextRunAt, lastRunAt time.Time) error
	SetScheduleEnabled(ctx context.Context, id string, enabled bool, nextRunAt *time.Time) error

	Close() error
}

// ErrAmbiguousPrefix is returned by FindJobByPrefix when more than one job
// shares the given prefix.
var ErrAmbiguousPrefix = errors.New("ambiguous job id prefix")
