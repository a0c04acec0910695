package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/greenlanehq/greenlane/internal/models"
)

const defaultMaxAttempts = 5

type NotificationStore struct {
	pool *pgxpool.Pool
}

func NewNotificationStore(pool *pgxpool.Pool) *NotificationStore {
	return &NotificationStore{pool: pool}
}

func (s *NotificationStore) Enqueue(ctx context.Context, job *models.NotificationJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = models.NotificationPending
	}
	if job.Priority == "" {
		job.Priority = models.PriorityNormal
	}
	if job.MaxAttempts <= 0 {
		job.MaxAttempts = defaultMaxAttempts
	}
	if job.ScheduledAt.IsZero() {
		job.ScheduledAt = time.Now()
	}

	query := `
		INSERT INTO notification_jobs (
			id, channel, kind, recipient, order_id, update_type, update_message,
			priority, status, attempts, max_attempts, scheduled_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 0, $10, $11)
		RETURNING created_at
	`
	return s.pool.QueryRow(ctx, query,
		job.ID, job.Channel, job.Kind, job.Recipient, job.OrderID,
		job.UpdateType, job.UpdateMessage, job.Priority, job.Status,
		job.MaxAttempts, job.ScheduledAt,
	).Scan(&job.CreatedAt)
}

// Due returns the next batch of workable jobs: pending (or processing
// past the staleness window, so a crashed worker's jobs self-heal),
// due by schedule, under the attempt limit. Highest priority first,
// oldest schedule first.
func (s *NotificationStore) Due(ctx context.Context, limit int, staleAfter time.Duration) ([]*models.NotificationJob, error) {
	query := `
		SELECT id, channel, kind, recipient, order_id, update_type, update_message,
		       priority, status, attempts, max_attempts,
		       scheduled_at, last_attempt_at, completed_at, last_error, created_at
		FROM notification_jobs
		WHERE (
			status = 'pending'
			OR (status = 'processing' AND last_attempt_at < $2)
		)
		AND scheduled_at <= NOW()
		AND attempts < max_attempts
		ORDER BY
			CASE priority WHEN 'high' THEN 3 WHEN 'normal' THEN 2 ELSE 1 END DESC,
			scheduled_at ASC
		LIMIT $1
	`
	staleCutoff := time.Now().Add(-staleAfter)
	rows, err := s.pool.Query(ctx, query, limit, staleCutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.NotificationJob
	for rows.Next() {
		var (
			job           models.NotificationJob
			lastAttemptAt pgtype.Timestamptz
			completedAt   pgtype.Timestamptz
		)
		if err := rows.Scan(
			&job.ID, &job.Channel, &job.Kind, &job.Recipient, &job.OrderID,
			&job.UpdateType, &job.UpdateMessage, &job.Priority, &job.Status,
			&job.Attempts, &job.MaxAttempts,
			&job.ScheduledAt, &lastAttemptAt, &completedAt, &job.LastError, &job.CreatedAt,
		); err != nil {
			return nil, err
		}
		if lastAttemptAt.Valid {
			job.LastAttemptAt = &lastAttemptAt.Time
		}
		if completedAt.Valid {
			job.CompletedAt = &completedAt.Time
		}
		jobs = append(jobs, &job)
	}
	return jobs, rows.Err()
}

// MarkProcessing claims a job and bumps its attempt counter in one
// statement, returning the new attempt count. Terminal or exhausted
// jobs are never claimed, which keeps re-polling from double-sending.
func (s *NotificationStore) MarkProcessing(ctx context.Context, jobID uuid.UUID) (int, error) {
	query := `
		UPDATE notification_jobs
		SET status = 'processing', attempts = attempts + 1, last_attempt_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'processing') AND attempts < max_attempts
		RETURNING attempts
	`
	var attempts int
	if err := s.pool.QueryRow(ctx, query, jobID).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, fmt.Errorf("%w: job not claimable", ErrInvalidStatusTransition)
		}
		return 0, err
	}
	return attempts, nil
}

func (s *NotificationStore) MarkSent(ctx context.Context, jobID uuid.UUID) error {
	query := `
		UPDATE notification_jobs
		SET status = 'sent', completed_at = NOW(), last_error = ''
		WHERE id = $1 AND status = 'processing'
	`
	cmdTag, err := s.pool.Exec(ctx, query, jobID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected processing", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *NotificationStore) Reschedule(ctx context.Context, jobID uuid.UUID, at time.Time, lastError string) error {
	query := `
		UPDATE notification_jobs
		SET status = 'pending', scheduled_at = $2, last_error = $3
		WHERE id = $1 AND status = 'processing'
	`
	cmdTag, err := s.pool.Exec(ctx, query, jobID, at, lastError)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected processing", ErrInvalidStatusTransition)
	}
	return nil
}

func (s *NotificationStore) MarkFailed(ctx context.Context, jobID uuid.UUID, lastError string) error {
	query := `
		UPDATE notification_jobs
		SET status = 'failed', completed_at = NOW(), last_error = $2
		WHERE id = $1 AND status IN ('pending', 'processing')
	`
	cmdTag, err := s.pool.Exec(ctx, query, jobID, lastError)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("%w: expected pending/processing", ErrInvalidStatusTransition)
	}
	return nil
}

// FailExhausted finalizes processing jobs that have used their last
// attempt and gone quiet past the staleness cutoff. Due skips jobs at
// the attempt limit, so a worker crashing mid-final-attempt would
// otherwise leave them in processing forever.
func (s *NotificationStore) FailExhausted(ctx context.Context, staleBefore time.Time) (int64, error) {
	query := `
		UPDATE notification_jobs
		SET status = 'failed', completed_at = NOW(), last_error = 'abandoned mid-attempt'
		WHERE status = 'processing' AND last_attempt_at < $1 AND attempts >= max_attempts
	`
	cmdTag, err := s.pool.Exec(ctx, query, staleBefore)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

// DeleteTerminalBefore removes sent and failed jobs whose terminal
// timestamp predates the cutoff.
func (s *NotificationStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		DELETE FROM notification_jobs
		WHERE status IN ('sent', 'failed') AND completed_at < $1
	`
	cmdTag, err := s.pool.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, err
	}
	return cmdTag.RowsAffected(), nil
}

func (s *NotificationStore) CountByStatus(ctx context.Context, status models.NotificationStatus) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM notification_jobs WHERE status = $1`, status).Scan(&count)
	return count, err
}
