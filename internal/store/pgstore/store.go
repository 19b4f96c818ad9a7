// Package pgstore is the Postgres JobStore backend, for deployments that
// want a networked database instead of the default SQLite file. Grounded on
// itsddvn-goclaw's internal/store/pg (same pgx stdlib driver, same
// query/scan idiom), extended with golang-migrate schema versioning since a
// shared Postgres instance is the path that actually needs forward
// migrations across deploys.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onewithdev/peterbot/internal/store"
)

type Store struct {
	db *sqlx.DB
}

// Open connects to Postgres via dsn (DATABASE_URL) and applies migrations.
func Open(dsn string) (*Store, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open postgres: %v", store.ErrStorageFailure, err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%w: ping postgres: %v", store.ErrStorageFailure, err)
	}
	if err := runMigrations(sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("%w: %v", store.ErrStorageFailure, err)
	}
	slog.Info("jobstore opened", "backend", "postgres")
	return &Store{db: sqlx.NewDb(sqlDB, "pgx")}, nil
}

func (s *Store) Close() error { return s.db.Close() }

type jobRow struct {
	ID         uuid.UUID      `db:"id"`
	Type       string         `db:"type"`
	Status     string         `db:"status"`
	Input      string         `db:"input"`
	Output     sql.NullString `db:"output"`
	ChatID     string         `db:"chat_id"`
	ScheduleID uuid.NullUUID  `db:"schedule_id"`
	Delivered  bool           `db:"delivered"`
	RetryCount int            `db:"retry_count"`
	CreatedAt  time.Time      `db:"created_at"`
	UpdatedAt  time.Time      `db:"updated_at"`
}

func (r jobRow) toJob() store.Job {
	j := store.Job{
		ID:         r.ID.String(),
		Type:       store.JobType(r.Type),
		Status:     store.JobStatus(r.Status),
		Input:      r.Input,
		ChatID:     r.ChatID,
		Delivered:  r.Delivered,
		RetryCount: r.RetryCount,
		CreatedAt:  r.CreatedAt,
		UpdatedAt:  r.UpdatedAt,
	}
	if r.Output.Valid {
		j.Output = &r.Output.String
	}
	if r.ScheduleID.Valid {
		id := r.ScheduleID.UUID.String()
		j.ScheduleID = &id
	}
	return j
}

type scheduleRow struct {
	ID              uuid.UUID    `db:"id"`
	Description     string       `db:"description"`
	NaturalSchedule string       `db:"natural_schedule"`
	ParsedCron      string       `db:"parsed_cron"`
	Prompt          string       `db:"prompt"`
	Enabled         bool         `db:"enabled"`
	LastRunAt       sql.NullTime `db:"last_run_at"`
	NextRunAt       time.Time    `db:"next_run_at"`
	CreatedAt       time.Time    `db:"created_at"`
	UpdatedAt       time.Time    `db:"updated_at"`
}

func (r scheduleRow) toSchedule() store.Schedule {
	sc := store.Schedule{
		ID:              r.ID.String(),
		Description:     r.Description,
		NaturalSchedule: r.NaturalSchedule,
		ParsedCron:      r.ParsedCron,
		Prompt:          r.Prompt,
		Enabled:         r.Enabled,
		NextRunAt:       r.NextRunAt,
		CreatedAt:       r.CreatedAt,
		UpdatedAt:       r.UpdatedAt,
	}
	if r.LastRunAt.Valid {
		t := r.LastRunAt.Time
		sc.LastRunAt = &t
	}
	return sc
}

func parseUUID(s string) (uuid.UUID, error) {
	return uuid.Parse(s)
}

// --- Jobs ---

func (s *Store) CreateJob(ctx context.Context, jobType store.JobType, input, chatID string, scheduleID *string) (*store.Job, error) {
	if err := store.ValidateUserID(chatID); err != nil {
		return nil, err
	}
	id := uuid.New()
	var sched any
	if scheduleID != nil {
		sid, err := parseUUID(*scheduleID)
		if err != nil {
			return nil, fmt.Errorf("invalid schedule id: %w", err)
		}
		sched = sid
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, type, status, input, chat_id, schedule_id, delivered, retry_count)
		 VALUES ($1, $2, $3, $4, $5, $6, FALSE, 0)`,
		id, string(jobType), string(store.JobPending), input, chatID, sched)
	if err != nil {
		return nil, fmt.Errorf("%w: create job: %v", store.ErrStorageFailure, err)
	}
	return s.GetJob(ctx, id.String())
}

func (s *Store) GetJob(ctx context.Context, id string) (*store.Job, error) {
	jid, err := parseUUID(id)
	if err != nil {
		return nil, store.ErrNotFound
	}
	var row jobRow
	err = s.db.GetContext(ctx, &row, `SELECT * FROM jobs WHERE id = $1`, jid)
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
	err := s.db.SelectContext(ctx, &rows, `SELECT * FROM jobs WHERE id::text LIKE $1 LIMIT 2`, prefix+"%")
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
		`SELECT * FROM jobs WHERE chat_id = $1 ORDER BY created_at DESC LIMIT $2`, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list jobs: %v", store.ErrStorageFailure, err)
	}
	jobs := make([]store.Job, len(rows))
	for i, r := range rows {
		jobs[i] = r.toJob()
	}
	return jobs, nil
}

// ClaimNextPending uses Postgres row locking (SELECT ... FOR UPDATE SKIP
// LOCKED) so multiple worker processes can safely race for the same queue,
// the networked-store analogue of the sqlite backend's single-connection
// serialization.
func (s *Store) ClaimNextPending(ctx context.Context) (*store.Job, error) {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: begin claim tx: %v", store.ErrStorageFailure, err)
	}
	defer tx.Rollback()

	var row jobRow
	err = tx.GetContext(ctx, &row,
		`SELECT * FROM jobs WHERE status = $1 ORDER BY created_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED`,
		string(store.JobPending))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: select pending: %v", store.ErrStorageFailure, err)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE jobs SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`,
		string(store.JobRunning), row.ID, string(store.JobPending))
	if err != nil {
		return nil, fmt.Errorf("%w: claim job: %v", store.ErrStorageFailure, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("%w: commit claim: %v", store.ErrStorageFailure, err)
	}
	row.Status = string(store.JobRunning)
	j := row.toJob()
	return &j, nil
}

func (s *Store) CompleteJob(ctx context.Context, id, output string) error {
	jid, err := parseUUID(id)
	if err != nil {
		return store.ErrNotFound
	}
	_, err = s.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, output = $2, updated_at = now() WHERE id = $3 AND status = $4`,
		string(store.JobCompleted), output, jid, string(store.JobRunning))
	if err != nil {
		return fmt.Errorf("%w: complete job: %v", store.ErrStorageFailure, err)
	}
	return nil
}

func (s *Store) FailJob(ctx context.Context, id, reason string, incrementRetry bool) error {
	jid, err := parseUUID(id)
	if err != nil {
		return store.ErrNotFound
	}
	if incrementRetry {
		_, err = s.db.ExecContext(ctx,
			`UPDATE jobs SET status = $1, output = $2, retry_count = retry_count + 1, updated_at = now() WHERE id = $3`,
			string(store.JobFailed), reason, jid)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE jobs SET status = $1, output = $2, updated_at = now() WHERE id = $3`,
			string(store.JobFailed), reason, jid)
	}
	if err != nil {
		return fmt.Errorf("%w: fail job: %v", store.ErrStorageFailure, err)
	}
	return nil
}

func (s *Store) MarkDelivered(ctx context.Context, id string) error {
	jid, err := parseUUID(id)
	if err != nil {
		return store.ErrNotFound
	}
	_, err = s.db.ExecContext(ctx, `UPDATE jobs SET delivered = TRUE, updated_at = now() WHERE id = $1`, jid)
	if err != nil {
		return fmt.Errorf("%w: mark delivered: %v", store.ErrStorageFailure, err)
	}
	return nil
}

func (s *Store) ListUndelivered(ctx context.Context) ([]store.Job, error) {
	var rows []jobRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM jobs WHERE delivered = FALSE AND status IN ($1, $2) ORDER BY created_at ASC`,
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
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, retry_count = retry_count + 1, updated_at = now()
		 WHERE status = $2 AND updated_at < now() - $3::interval`,
		string(store.JobPending), string(store.JobRunning), fmt.Sprintf("%d seconds", int(olderThan.Seconds())))
	if err != nil {
		return 0, fmt.Errorf("%w: reconcile stuck: %v", store.ErrStorageFailure, err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *Store) CancelJob(ctx context.Context, id, reason string) error {
	jid, err := parseUUID(id)
	if err != nil {
		return store.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET status = $1, output = $2, updated_at = now() WHERE id = $3 AND status IN ($4, $5)`,
		string(store.JobFailed), reason, jid, string(store.JobPending), string(store.JobRunning))
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
	id := uuid.New()
	if sc.ID != "" {
		if parsed, err := parseUUID(sc.ID); err == nil {
			id = parsed
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, description, natural_schedule, parsed_cron, prompt, enabled, next_run_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		id, sc.Description, sc.NaturalSchedule, sc.ParsedCron, sc.Prompt, sc.Enabled, sc.NextRunAt)
	if err != nil {
		return nil, fmt.Errorf("%w: create schedule: %v", store.ErrStorageFailure, err)
	}
	return s.GetSchedule(ctx, id.String())
}

func (s *Store) GetSchedule(ctx context.Context, id string) (*store.Schedule, error) {
	sid, err := parseUUID(id)
	if err != nil {
		return nil, store.ErrNotFound
	}
	var row scheduleRow
	err = s.db.GetContext(ctx, &row, `SELECT * FROM schedules WHERE id = $1`, sid)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get schedule: %v", store.ErrStorageFailure, err)
	}
	out := row.toSchedule()
	return &out, nil
}

func (s *Store) ListSchedules(ctx context.Context, includeDisabled bool) ([]store.Schedule, error) {
	q := `SELECT * FROM schedules`
	if !includeDisabled {
		q += ` WHERE enabled = TRUE`
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

func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]store.Schedule, error) {
	var rows []scheduleRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM schedules WHERE enabled = TRUE AND next_run_at <= $1 ORDER BY id ASC`, now)
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
	sid, err := parseUUID(id)
	if err != nil {
		return store.ErrNotFound
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE schedules SET next_run_at = $1, last_run_at = $2, updated_at = now() WHERE id = $3`,
		nextRunAt, lastRunAt, sid)
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
	sid, err := parseUUID(id)
	if err != nil {
		return store.ErrNotFound
	}
	if nextRunAt != nil {
		_, err = s.db.ExecContext(ctx,
			`UPDATE schedules SET enabled = $1, next_run_at = $2, updated_at = now() WHERE id = $3`,
			enabled, *nextRunAt, sid)
	} else {
		_, err = s.db.ExecContext(ctx,
			`UPDATE schedules SET enabled = $1, updated_at = now() WHERE id = $2`, enabled, sid)
	}
	if err != nil {
		return fmt.Errorf("%w: set schedule enabled: %v", store.ErrStorageFailure, err)
	}
	return nil
}
