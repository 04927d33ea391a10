package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/animus-ai/animus/pkg/types"
)

// StuckJobMessage is the user-visible error attached to jobs the sweeper
// gives up on. Phrasing signals that a retry is worthwhile.
const StuckJobMessage = "Job timed out — worker may have restarted."

var (
	// ErrJobNotFound is returned for operations on an unknown job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidTransition is returned when a state update would move a job
	// backwards in its lifecycle.
	ErrInvalidTransition = errors.New("invalid job state transition")
)

// Store persists job lifecycle state and final results in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wraps an existing pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Migrate creates the job tables. Idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS jobs (
			id           TEXT PRIMARY KEY,
			type         TEXT NOT NULL,
			request_id   TEXT NOT NULL,
			state        TEXT NOT NULL,
			error        TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at   TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS jobs_state_updated_idx ON jobs (state, updated_at)`,
		`CREATE INDEX IF NOT EXISTS jobs_request_idx ON jobs (request_id)`,

		`CREATE TABLE IF NOT EXISTS job_results (
			job_id       TEXT PRIMARY KEY REFERENCES jobs (id) ON DELETE CASCADE,
			request_id   TEXT NOT NULL,
			status       TEXT NOT NULL,
			payload      JSONB NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
			delivered_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS job_results_created_at_idx ON job_results (created_at)`,
	}
	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("jobs: migrate: %w", err)
		}
	}
	return nil
}

// CreateJobs inserts the planned job set in one transaction. Re-inserting an
// existing id is a no-op, keeping planning idempotent under redelivery.
func (s *Store) CreateJobs(ctx context.Context, planned []types.Job) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("jobs: create jobs: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, job := range planned {
		_, err := tx.Exec(ctx, `
			INSERT INTO jobs (id, type, request_id, state, created_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO NOTHING`,
			job.ID, string(job.Type), job.RequestID, string(job.State), job.CreatedAt)
		if err != nil {
			return fmt.Errorf("jobs: create job %s: %w", job.ID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("jobs: create jobs: commit: %w", err)
	}
	return nil
}

// UpdateState moves a job to the given state, enforcing the forward-only
// lifecycle. errMsg is stored for failed states and cleared otherwise.
func (s *Store) UpdateState(ctx context.Context, jobID string, state types.JobState, errMsg string) error {
	var current string
	err := s.pool.QueryRow(ctx, `SELECT state FROM jobs WHERE id = $1`, jobID).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("jobs: update state %s: %w", jobID, ErrJobNotFound)
	}
	if err != nil {
		return fmt.Errorf("jobs: update state %s: %w", jobID, err)
	}
	if !types.JobState(current).CanTransitionTo(state) {
		return fmt.Errorf("jobs: update state %s: %s -> %s: %w",
			jobID, current, state, ErrInvalidTransition)
	}

	_, err = s.pool.Exec(ctx, `
		UPDATE jobs SET state = $2, error = $3, updated_at = now() WHERE id = $1`,
		jobID, string(state), errMsg)
	if err != nil {
		return fmt.Errorf("jobs: update state %s: %w", jobID, err)
	}
	return nil
}

// GetState returns the current lifecycle state of a job.
func (s *Store) GetState(ctx context.Context, jobID string) (types.JobState, error) {
	var state string
	err := s.pool.QueryRow(ctx, `SELECT state FROM jobs WHERE id = $1`, jobID).Scan(&state)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", fmt.Errorf("jobs: get state %s: %w", jobID, ErrJobNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("jobs: get state %s: %w", jobID, err)
	}
	return types.JobState(state), nil
}

// SaveResult persists a final generation result with PENDING_DELIVERY status
// and marks the job completed or failed accordingly.
func (s *Store) SaveResult(ctx context.Context, result types.GenerationResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("jobs: save result %s: marshal: %w", result.JobID, err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("jobs: save result %s: begin: %w", result.JobID, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO job_results (job_id, request_id, status, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (job_id) DO NOTHING`,
		result.JobID, result.RequestID, string(types.ResultPendingDelivery), payload)
	if err != nil {
		return fmt.Errorf("jobs: save result %s: %w", result.JobID, err)
	}

	state := types.JobCompleted
	errMsg := ""
	if !result.Success {
		state = types.JobFailed
		errMsg = result.Error
	}
	_, err = tx.Exec(ctx, `
		UPDATE jobs SET state = $2, error = $3, updated_at = now()
		WHERE id = $1 AND state = 'active'`,
		result.JobID, string(state), errMsg)
	if err != nil {
		return fmt.Errorf("jobs: save result %s: update state: %w", result.JobID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("jobs: save result %s: commit: %w", result.JobID, err)
	}
	return nil
}

// ConfirmDelivery marks a result delivered. Idempotent: confirming an
// already-delivered job succeeds without touching the row again. Unknown
// jobs return [ErrJobNotFound].
func (s *Store) ConfirmDelivery(ctx context.Context, jobID string) error {
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT status FROM job_results WHERE job_id = $1`, jobID).Scan(&status)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("jobs: confirm delivery %s: %w", jobID, ErrJobNotFound)
	}
	if err != nil {
		return fmt.Errorf("jobs: confirm delivery %s: %w", jobID, err)
	}
	if status == string(types.ResultDelivered) {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("jobs: confirm delivery %s: begin: %w", jobID, err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		UPDATE job_results SET status = $2, delivered_at = now() WHERE job_id = $1`,
		jobID, string(types.ResultDelivered))
	if err != nil {
		return fmt.Errorf("jobs: confirm delivery %s: %w", jobID, err)
	}
	_, err = tx.Exec(ctx, `
		UPDATE jobs SET state = 'delivered', updated_at = now()
		WHERE id = $1 AND state IN ('completed', 'failed')`, jobID)
	if err != nil {
		return fmt.Errorf("jobs: confirm delivery %s: update state: %w", jobID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("jobs: confirm delivery %s: commit: %w", jobID, err)
	}
	return nil
}

// FailStuck marks jobs that have sat in the active state longer than maxAge
// as failed with [StuckJobMessage], up to batchSize at a time. Returns the
// ids of the jobs it failed.
func (s *Store) FailStuck(ctx context.Context, maxAge time.Duration, batchSize int) ([]string, error) {
	if batchSize <= 0 {
		batchSize = 500
	}
	rows, err := s.pool.Query(ctx, `
		UPDATE jobs SET state = 'failed', error = $1, updated_at = now()
		WHERE id IN (
			SELECT id FROM jobs
			WHERE state = 'active' AND updated_at < now() - $2::interval
			ORDER BY updated_at
			LIMIT $3
		)
		RETURNING id`,
		StuckJobMessage, fmt.Sprintf("%d seconds", int(maxAge.Seconds())), batchSize)
	if err != nil {
		return nil, fmt.Errorf("jobs: fail stuck: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (string, error) {
		var id string
		err := row.Scan(&id)
		return id, err
	})
	if err != nil {
		return nil, fmt.Errorf("jobs: fail stuck: scan: %w", err)
	}
	return ids, nil
}

// DeleteOldResults removes delivered results older than daysToKeep days.
// Used by the retention cleanup task.
func (s *Store) DeleteOldResults(ctx context.Context, daysToKeep int) (int64, error) {
	if err := types.ValidateDaysToKeep(daysToKeep); err != nil {
		return 0, fmt.Errorf("jobs: delete old results: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM job_results
		WHERE status = 'DELIVERED' AND created_at < now() - ($1 || ' days')::interval`,
		fmt.Sprintf("%d", daysToKeep))
	if err != nil {
		return 0, fmt.Errorf("jobs: delete old results: %w", err)
	}
	return tag.RowsAffected(), nil
}
