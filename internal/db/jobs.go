package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kukicivan/ai-hub-sub002/internal/engine"
	"github.com/kukicivan/ai-hub-sub002/internal/models"
)

const jobColumns = `
	id, job_type, message_id, thread_id, status, attempts, last_error,
	next_attempt_at, started_at, completed_at, created_at`

func scanJob(row pgx.Row) (*models.ProcessingJob, error) {
	var j models.ProcessingJob
	err := row.Scan(
		&j.ID,
		&j.Type,
		&j.MessageID,
		&j.ThreadID,
		&j.Status,
		&j.Attempts,
		&j.LastError,
		&j.NextAttemptAt,
		&j.StartedAt,
		&j.CompletedAt,
		&j.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, engine.ErrNoPendingJobs
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return &j, nil
}

// EnqueueJob adds a pending processing job. Enqueueing the same message again
// while a pending job for it already exists is a no-op, so a flurry of content
// updates produces a single analysis pass.
func EnqueueJob(ctx context.Context, pool *pgxpool.Pool, job *models.ProcessingJob) error {
	err := pool.QueryRow(ctx, `
		INSERT INTO processing_jobs (
			job_type, message_id, thread_id, status, attempts, next_attempt_at
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (job_type, message_id, thread_id) WHERE status = 'pending'
		DO UPDATE SET next_attempt_at = LEAST(processing_jobs.next_attempt_at, EXCLUDED.next_attempt_at)
		RETURNING id, created_at
	`,
		job.Type,
		job.MessageID,
		job.ThreadID,
		models.AIStatusPending,
		job.Attempts,
		job.NextAttemptAt,
	).Scan(&job.ID, &job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}
	return nil
}

// ClaimNextJob atomically claims the oldest due pending job. SKIP LOCKED keeps
// concurrent workers from fighting over the same row. Returns
// engine.ErrNoPendingJobs when nothing is due.
func ClaimNextJob(ctx context.Context, pool *pgxpool.Pool, now time.Time) (*models.ProcessingJob, error) {
	row := pool.QueryRow(ctx, `
		UPDATE processing_jobs SET
			status = 'processing',
			attempts = attempts + 1,
			started_at = $1
		WHERE id = (
			SELECT id FROM processing_jobs
			WHERE status = 'pending' AND next_attempt_at <= $1
			ORDER BY next_attempt_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, now)
	return scanJob(row)
}

// UpdateJob writes back a job's status, error, scheduling, and completion
// fields after a processing attempt.
func UpdateJob(ctx context.Context, pool *pgxpool.Pool, job *models.ProcessingJob) error {
	tag, err := pool.Exec(ctx, `
		UPDATE processing_jobs SET
			status = $2,
			attempts = $3,
			last_error = $4,
			next_attempt_at = $5,
			started_at = $6,
			completed_at = $7
		WHERE id = $1
	`,
		job.ID,
		job.Status,
		job.Attempts,
		job.LastError,
		job.NextAttemptAt,
		job.StartedAt,
		job.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("job %s not found", job.ID)
	}
	return nil
}

// ReapOrphanJobs returns any job stuck in processing since before the cutoff
// to the pending state for another attempt. Returns the number of jobs reaped.
func ReapOrphanJobs(ctx context.Context, pool *pgxpool.Pool, startedBefore time.Time) (int, error) {
	tag, err := pool.Exec(ctx, `
		UPDATE processing_jobs SET
			status = 'pending',
			started_at = NULL,
			next_attempt_at = now()
		WHERE status = 'processing' AND started_at < $1
	`, startedBefore)
	if err != nil {
		return 0, fmt.Errorf("failed to reap orphan jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
