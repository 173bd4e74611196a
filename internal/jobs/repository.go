package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/garnizeh/fixbuddy/internal/db"
)

// Repository persists jobs. Timestamps are unix seconds, matching the
// table defaults.
type Repository struct {
	db *db.DB
}

func NewRepository(d *db.DB) *Repository { return &Repository{db: d} }

// Stats is a snapshot of the queue.
type Stats struct {
	Queued     int64 `json:"queued"`
	Running    int64 `json:"running"`
	Retry      int64 `json:"retry"`
	DeadLetter int64 `json:"dead_letter"`
}

// Enqueue inserts a job into the jobs table and returns the new ID
func (r *Repository) Enqueue(ctx context.Context, j *Job) (int64, error) {
	if j.MaxAttempts <= 0 {
		j.MaxAttempts = 5
	}
	if j.ScheduledAt.IsZero() {
		j.ScheduledAt = time.Now()
	}
	now := time.Now().UTC().Unix()
	res, err := r.db.Exec(ctx, `INSERT INTO jobs(type, payload, status, attempts, max_attempts, priority, scheduled_at, created, updated) VALUES(?,?,?,?,?,?,?,?,?)`,
		j.Type, string(j.Payload), StatusQueued, j.Attempts, j.MaxAttempts, j.Priority, j.ScheduledAt.UTC().Unix(), now, now)
	if err != nil {
		return 0, fmt.Errorf("enqueue failed: %w", err)
	}
	return res.LastInsertId()
}

// Claim marks the next due job as running and returns it, or nil when the
// queue is empty. Lower priority values run first.
func (r *Repository) Claim(ctx context.Context) (*Job, error) {
	now := time.Now().UTC().Unix()
	row := r.db.QueryRow(ctx, `UPDATE jobs SET status = ?, updated = ?
		WHERE id = (
			SELECT id FROM jobs
			WHERE status IN (?, ?) AND (next_try_at IS NULL OR next_try_at <= ?) AND scheduled_at <= ?
			ORDER BY priority ASC, scheduled_at ASC, id ASC LIMIT 1)
		RETURNING id, type, payload, attempts, max_attempts, priority, scheduled_at, next_try_at, last_error, created, updated`,
		StatusRunning, now, StatusQueued, StatusRetry, now, now)

	var (
		j           Job
		payload     sql.NullString
		scheduledAt int64
		nextTry     sql.NullInt64
		lastError   sql.NullString
		created     int64
		updated     int64
	)
	if err := row.Scan(&j.ID, &j.Type, &payload, &j.Attempts, &j.MaxAttempts, &j.Priority, &scheduledAt, &nextTry, &lastError, &created, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("claim job: %w", err)
	}
	j.Status = StatusRunning
	j.ScheduledAt = time.Unix(scheduledAt, 0)
	j.Created = time.Unix(created, 0)
	j.Updated = time.Unix(updated, 0)
	if payload.Valid {
		j.Payload = json.RawMessage(payload.String)
	}
	if nextTry.Valid {
		t := time.Unix(nextTry.Int64, 0)
		j.NextTryAt = &t
	}
	j.LastError = lastError.String
	return &j, nil
}

// UpdateJob updates attempts, status, next_try_at, last_error
func (r *Repository) UpdateJob(ctx context.Context, j *Job) error {
	var nextTry any
	if j.NextTryAt != nil {
		nextTry = j.NextTryAt.UTC().Unix()
	}
	_, err := r.db.Exec(ctx, `UPDATE jobs SET status = ?, attempts = ?, next_try_at = ?, last_error = ?, updated = ? WHERE id = ?`,
		j.Status, j.Attempts, nextTry, j.LastError, time.Now().UTC().Unix(), j.ID)
	return err
}

// Complete removes a finished job.
func (r *Repository) Complete(ctx context.Context, id int64) error {
	_, err := r.db.Exec(ctx, `DELETE FROM jobs WHERE id = ?`, id)
	return err
}

// MoveToDeadLetter moves a job to dead_letter_jobs and deletes the original
func (r *Repository) MoveToDeadLetter(ctx context.Context, j *Job) error {
	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `INSERT INTO dead_letter_jobs(job_id, type, payload, attempts, last_error, failed_at) VALUES(?,?,?,?,?,?)`,
		j.ID, j.Type, string(j.Payload), j.Attempts, j.LastError, time.Now().UTC().Unix()); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM jobs WHERE id = ?`, j.ID); err != nil {
		return err
	}
	return tx.Commit()
}

// RequeueStale puts jobs left running by a crashed process back in the queue.
func (r *Repository) RequeueStale(ctx context.Context) (int64, error) {
	res, err := r.db.Exec(ctx, `UPDATE jobs SET status = ?, updated = ? WHERE status = ?`, StatusQueued, time.Now().UTC().Unix(), StatusRunning)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *Repository) Stats(ctx context.Context) (Stats, error) {
	var s Stats
	// One query: the pool holds a single connection.
	err := r.db.QueryRow(ctx, `SELECT
		(SELECT COUNT(*) FROM jobs WHERE status = ?),
		(SELECT COUNT(*) FROM jobs WHERE status = ?),
		(SELECT COUNT(*) FROM jobs WHERE status = ?),
		(SELECT COUNT(*) FROM dead_letter_jobs)`,
		StatusQueued, StatusRunning, StatusRetry).Scan(&s.Queued, &s.Running, &s.Retry, &s.DeadLetter)
	return s, err
}
