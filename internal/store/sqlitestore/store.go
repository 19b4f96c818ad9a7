// Package sqlitestore is the default JobStore backend: a single-file
// SQLite database, opened with the pure-Go modernc.org/sqlite driver so the
// binary stays cgo-free. Schema ref: itsddvn-goclaw's internal/memory/sqlite.go.
package sqlitestore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/onewithdev/peterbot/internal/store"
)

// Store implements store.JobStore backed by SQLite.
type Store struct {
	db *sqlx.DB
}

// Open creates (or opens) a SQLite database at path and applies the schema.
// WAL journaling and a busy timeout are enabled the same way
// internal/memory/sqlite.go configures them in the teacher.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open sqlite: %v", store.ErrStorageFailure, err)
	}
	db := sqlx.NewDb(sqlDB, "sqlite")
	db.SetMaxOpenConns(1) // modernc/sqlite + WAL: single writer avoids SQLITE_BUSY storms

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", store.ErrStorageFailure, err)
	}
	slog.Info("jobstore opened", "backend", "sqlite", "path", path)
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id TEXT PRIMARY KEY,
			type TEXT NOT NULL,
			status TEXT NOT NULL,
			input TEXT NOT NULL,
			output TEXT,
			chat_id TEXT NOT NULL,
			schedule_id TEXT,
			delivered INTEGER NOT NULL DEFAULT 0,
			retry_count INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_chat_id ON jobs(chat_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)`,
		`CREATE INDEX IF NOT EXISTS idx_jobs_delivered ON jobs(delivered) WHERE delivered = 0`,
		`CREATE TABLE IF NOT EXISTS schedules (
			id TEXT PRIMARY KEY,
			description TEXT NOT NULL,
			natural_schedule TEXT NOT NULL,
			parsed_cron TEXT NOT NULL,
			prompt TEXT NOT NULL,
			enabled INTEGER NOT NULL DEFAULT 1,
			last_run_at INTEGER,
			next_run_at INTEGER NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules(enabled, next_run_at)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:min(len(stmt), 60)], err)
		}
	}
	return nil
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func (s *Store) Close() error { return s.db.Close() }

// --- row mapping ---

type jobRow struct {
	ID         string         `db:"id"`
	Type       string         `db:"type"`
	Status     string         `db:"status"`
	Input      string         `db:"input"`
	Output     sql.NullString `db:"output"`
	ChatID     string         `db:"chat_id"`
	ScheduleID sql.NullString `db:"schedule_id"`
	Delivered  bool           `db:"delivered"`
	RetryCount int            `db:"retry_count"`
	CreatedAt  int64          `db:"created_at"`
	UpdatedAt  int64          `db:"updated_at"`
}

func (r jobRow) toJob() store.Job {
	j := store.Job{
		ID:         r.ID,
		Type:       store.JobType(r.Type),
		Status:     store.JobStatus(r.Status),
		Input:      r.Input,
		ChatID:     r.ChatID,
		Delivered:  r.Delivered,
		RetryCount: r.RetryCount,
		CreatedAt:  time.UnixMilli(r.CreatedAt),
		UpdatedAt:  time.UnixMilli(r.UpdatedAt),
	}
	if r.Output.Valid {
		j.Output = &r.Output.String
	}
	if r.ScheduleID.Valid {
		j.ScheduleID = &r.ScheduleID.String
	}
	return j
}

type scheduleRow struct {
	ID              string        `db:"id"`
	Description     string        `db:"description"`
	NaturalSchedule string        `db:"natural_schedule"`
	ParsedCron      string        `db:"parsed_cron"`
	Prompt          string        `db:"prompt"`
	Enabled         bool          `db:"enabled"`
	LastRunAt       sql.NullInt64 `db:"last_run_at"`
	NextRunAt       int64         `db:"next_run_at"`
	CreatedAt       int64         `db:"created_at"`
	UpdatedAt       int64         `db:"updated_at"`
}

func (r scheduleRow) toSchedule() store.Schedule {
	sc := store.Schedule{
		ID:              r.ID,
		Description:     r.Description,
		NaturalSchedule: r.NaturalSchedule,
		ParsedCron:      r.ParsedCron,
		Prompt:          r.Prompt,
		Enabled:         r.Enabled,
		NextRunAt:       time.UnixMilli(r.NextRunAt),
		CreatedAt:       time.UnixMilli(r.CreatedAt),
		UpdatedAt:       time.UnixMilli(r.UpdatedAt),
	}
	if r.LastRunAt.Valid {
		t := time.UnixMilli(r.LastRunAt.Int64)
		sc.LastRunAt = &t
	}
	return sc
}

func nowMS() int64 { return time.Now().UnixMilli() }

// --- Jobs ---

func (s *Store) CreateJob(ctx context.Context, jobType store.JobType, input, chatID string, scheduleID *string) (*store.Job, error) {
	if err := store.ValidateUserID(chatID); err != nil {
		return nil, err
	}
	id := uuid.New().String()
	now := nowMS()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, type, status, input, output, chat_id, schedule_id, delivered, retry_count, created_at, updated_at)
		 VALUES (?, ?, ?, ?, NULL, ?, ?, 0, 0, ?, ?)`,
		id, string(jobType), string(store.JobPending), input, chatID, scheduleID, now, now)
	if err != nil {
		return nil, fmt.Errorf("%w: create job: %v", store.ErrStorageFailure, err)
	}
	return s.GetJob(ctx, id)
}

func (s *Store) GetJob(ctx context.Context, id string) (*store.Job, error) {
	var row jobRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM jobs WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get job: %v", store.ErrStorageFailure, err)
	}
	j := row.toJob()
	return &j, nil
}

func (s *Store) FindJobByPrefix(ctx context.Context, prefix string) (*store.Job, error) {
	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM jobs WHERE id LIKE ? || '%' LIMIT 2`, prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: find job by prefix: %v", store.ErrStorageFailure, err)
	}
	if len(rows) == 0 {
		return nil, store.ErrNotFound
	}
	if len(rows) > 1 {
		return nil, store.ErrAmbiguousPrefix
	}
	j := rows[0].toJob()
	return &j, nil
}

func (s *Store) ListJobsByChat(ctx context.Context, chatID string, limit int) ([]store.Job, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM jobs WHERE chat_id = ? ORDER BY created_at DESC LIMIT ?`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list jobs: %v", store.ErrStorageFailure, err)
	}
	jobs := make([]store.Job, len(rows))
	for i, r := range rows {
		jobs[i] = r.toJob()
	}
	return jobs, nil
}

// ClaimNextPending performs the conditional update spec.md §4.1 and §4.5
// describe: UPDATE ... WHERE status='pending' targeting the single oldest
// row, relying on SQLite's single-writer serialization (MaxOpenConns=1) for
// the same guarantee a Postgres row lock would give under real concurrency.
func (s *Store) ClaimNextPending(ctx context.Context) (*store.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin claim tx: %v", store.ErrStorageFailure, err)
	}
	defer tx.Rollback()

	var id string
	err = tx.GetContext(ctx, &id,
		`SELECT id FROM jobs WHERE status = ? ORDER BY created_at ASC LIMIT 1`, string(store.JobPending))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select pending: %v", store.ErrStorageFailure, err)
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE jobs SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(store.JobRunning), nowMS(), id, string(store.JobPending))
	if err != nil {
		return nil, fmt.Errorf("%w: claim job: %v", store.ErrStorageFailure, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		// Another claimant won between the select and the update (I2).
		return nil, nil
	}

	var row jobRow
	if err := tx.GetContext(ctx, &row, `SELECT * FROM jobs WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("%w: reload claimed job: %v", store.ErrStorageFailure, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit claim: %v", store.ErrStorageFailure, err)
	}
	j := row.toJob()
	return &j, nil
}

func (s *Store) CompleteJob(ctx context.Context, id, output string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, output = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(store.JobCompleted), output, nowMS(), id, string(store.JobRunning))
	if err != nil {
		return fmt.Errorf("%w: complete job: %v", store.ErrStorageFailure, err)
	}
	return nil
}

func (s *Store) FailJob(ctx context.Context, id, reason string, incrementRetry bool) error {
	var err error
	if incrementRetry {
		_, err = s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, output = ?, retry_count = retry_count + 1, updated_at = ? WHERE id = ?`,
			string(store.JobFailed), reason, nowMS(), id)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE jobs SET status = ?, output = ?, updated_at = ? WHERE id = ?`,
			string(store.JobFailed), reason, nowMS(), id)
	}
	if err != nil {
		return fmt.Errorf("%w: fail job: %v", store.ErrStorageFailure, err)
	}
	return nil
}

func (s *Store) MarkDelivered(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE jobs SET delivered = 1, updated_at = ? WHERE id = ?`, nowMS(), id)
	if err != nil {
		return fmt.Errorf("%w: mark delivered: %v", store.ErrStorageFailure, err)
	}
	return nil
}

func (s *Store) ListUndelivered(ctx context.Context) ([]store.Job, error) {
	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM jobs WHERE delivered = 0 AND status IN (?, ?) ORDER BY created_at ASC`,
		string(store.JobCompleted), string(store.JobFailed))
	if err != nil {
		return nil, fmt.Errorf("%w: list undelivered: %v", store.ErrStorageFailure, err)
	}
	jobs := make([]store.Job, len(rows))
	for i, r := range rows {
		jobs[i] = r.toJob()
	}
	return jobs, nil
}

func (s *Store) ReconcileStuckRunning(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan).UnixMilli()
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, retry_count = retry_count + 1, updated_at = ?
		 WHERE status = ? AND updated_at < ?`,
		string(store.JobPending), nowMS(), string(store.JobRunning), cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: reconcile stuck: %v", store.ErrStorageFailure, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) CancelJob(ctx context.Context, id, reason string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = ?, output = ?, updated_at = ? WHERE id = ? AND status IN (?, ?)`,
		string(store.JobFailed), reason, nowMS(), id, string(store.JobPending), string(store.JobRunning))
	if err != nil {
		return fmt.Errorf("%w: cancel job: %v", store.ErrStorageFailure, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// --- Schedules ---

func (s *Store) CreateSchedule(ctx context.Context, sc store.Schedule) (*store.Schedule, error) {
	if sc.ID == "" {
		sc.ID = uuid.New().String()
	}
	now := nowMS()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, description, natural_schedule, parsed_cron, prompt, enabled, last_run_at, next_run_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, NULL, ?, ?, ?)`,
		sc.ID, sc.Description, sc.NaturalSchedule, sc.ParsedCron, sc.Prompt, sc.Enabled, sc.NextRunAt.UnixMilli(), now, now)
	if err != nil {
		return nil, fmt.Errorf("%w: create schedule: %v", store.ErrStorageFailure, err)
	}
	return s.GetSchedule(ctx, sc.ID)
}

func (s *Store) GetSchedule(ctx context.Context, id string) (*store.Schedule, error) {
	var row scheduleRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM schedules WHERE id = ?`, id)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get schedule: %v", store.ErrStorageFailure, err)
	}
	sc := row.toSchedule()
	return &sc, nil
}

func (s *Store) ListSchedules(ctx context.Context, includeDisabled bool) ([]store.Schedule, error) {
	q := `SELECT * FROM schedules`
	if !includeDisabled {
		q += ` WHERE enabled = 1`
	}
	q += ` ORDER BY created_at ASC`
	var rows []scheduleRow
	if err := s.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, fmt.Errorf("%w: list schedules: %v", store.ErrStorageFailure, err)
	}
	out := make([]store.Schedule, len(rows))
	for i, r := range rows {
		out[i] = r.toSchedule()
	}
	return out, nil
}

// DueSchedules returns enabled schedules whose nextRunAt <= now, ordered by
// id to give the scheduler a stable processing order within a tick.
func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]store.Schedule, error) {
	var rows []scheduleRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM schedules WHERE enabled = 1 AND next_run_at <= ? ORDER BY id ASC`, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("%w: due schedules: %v", store.ErrStorageFailure, err)
	}
	out := make([]store.Schedule, len(rows))
	for i, r := range rows {
		out[i] = r.toSchedule()
	}
	return out, nil
}

func (s *Store) AdvanceSchedule(ctx context.Context, id string, nextRunAt, lastRunAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET next_run_at = ?, last_run_at = ?, updated_at = ? WHERE id = ?`,
		nextRunAt.UnixMilli(), lastRunAt.UnixMilli(), nowMS(), id)
	if err != nil {
		return fmt.Errorf("%w: advance schedule: %v", store.ErrStorageFailure, err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SetScheduleEnabled(ctx context.Context, id string, enabled bool, nextRunAt *time.Time) error {
	var err error
	if nextRunAt != nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE schedules SET enabled = ?, next_run_at = ?, updated_at = ? WHERE id = ?`,
			enabled, nextRunAt.UnixMilli(), nowMS(), id)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE schedules SET enabled = ?, updated_at = ? WHERE id = ?`,
			enabled, nowMS(), id)
	}
	if err != nil {
		return fmt.Errorf("%w: set schedule enabled: %v", store.ErrStorageFailure, err)
	}
	return nil
}
