package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ImportState is the lifecycle state of an import job.
type ImportState string

const (
	ImportQueued     ImportState = "queued"
	ImportInProgress ImportState = "in_progress"
	ImportCompleted  ImportState = "completed"
	ImportFailed     ImportState = "failed"
)

// ErrImportNotFound is returned when an import job id is unknown.
var ErrImportNotFound = errors.New("jobs: import job not found")

// ImportJob is the persisted record of one memory archive ingestion.
type ImportJob struct {
	ID            string
	RequestID     string
	UserID        string
	PersonalityID string
	State         ImportState
	Error         string

	// TotalMemories and ImportedMemories track ingestion progress.
	TotalMemories    int
	ImportedMemories int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ImportStore persists import-job lifecycle state in Postgres, separate from
// the generation job table because import jobs track progress counters and
// follow a different state machine.
type ImportStore struct {
	pool *pgxpool.Pool
}

// NewImportStore wraps a pgx pool.
func NewImportStore(pool *pgxpool.Pool) *ImportStore {
	return &ImportStore{pool: pool}
}

// MigrateImports creates the import_jobs table.
func MigrateImports(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS import_jobs (
			id                UUID PRIMARY KEY,
			request_id        TEXT NOT NULL,
			user_id           TEXT NOT NULL,
			personality_id    UUID NOT NULL,
			state             TEXT NOT NULL DEFAULT 'queued',
			error             TEXT NOT NULL DEFAULT '',
			total_memories    INT NOT NULL DEFAULT 0,
			imported_memories INT NOT NULL DEFAULT 0,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT now(),
			updated_at        TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE INDEX IF NOT EXISTS import_jobs_user_idx
			ON import_jobs (user_id, created_at DESC);
	`)
	if err != nil {
		return fmt.Errorf("jobs: migrate imports: %w", err)
	}
	return nil
}

// Create inserts a new queued import job. Idempotent on id.
func (s *ImportStore) Create(ctx context.Context, job ImportJob) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO import_jobs (id, request_id, user_id, personality_id, state)
		VALUES ($1, $2, $3, $4, 'queued')
		ON CONFLICT (id) DO NOTHING
	`, job.ID, job.RequestID, job.UserID, job.PersonalityID)
	if err != nil {
		return fmt.Errorf("jobs: create import %s: %w", job.ID, err)
	}
	return nil
}

// Start moves an import job to in_progress and records the archive size.
func (s *ImportStore) Start(ctx context.Context, id string, totalMemories int) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE import_jobs
		SET state = 'in_progress', total_memories = $2, updated_at = now()
		WHERE id = $1 AND state = 'queued'
	`, id, totalMemories)
	if err != nil {
		return fmt.Errorf("jobs: start import %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("jobs: start import %s: %w", id, ErrImportNotFound)
	}
	return nil
}

// Complete marks an import job finished with its final counter.
func (s *ImportStore) Complete(ctx context.Context, id string, imported int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_jobs
		SET state = 'completed', imported_memories = $2, updated_at = now()
		WHERE id = $1
	`, id, imported)
	if err != nil {
		return fmt.Errorf("jobs: complete import %s: %w", id, err)
	}
	return nil
}

// Fail marks an import job failed, keeping whatever partial progress was made.
func (s *ImportStore) Fail(ctx context.Context, id, errMsg string, imported int) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE import_jobs
		SET state = 'failed', error = $2, imported_memories = $3, updated_at = now()
		WHERE id = $1
	`, id, errMsg, imported)
	if err != nil {
		return fmt.Errorf("jobs: fail import %s: %w", id, err)
	}
	return nil
}

// Get fetches one import job.
func (s *ImportStore) Get(ctx context.Context, id string) (ImportJob, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, request_id, user_id, personality_id, state, error,
		       total_memories, imported_memories, created_at, updated_at
		FROM import_jobs WHERE id = $1
	`, id)
	if err != nil {
		return ImportJob{}, fmt.Errorf("jobs: get import %s: %w", id, err)
	}
	job, err := pgx.CollectOneRow(rows, func(row pgx.CollectableRow) (ImportJob, error) {
		var j ImportJob
		err := row.Scan(&j.ID, &j.RequestID, &j.UserID, &j.PersonalityID, &j.State,
			&j.Error, &j.TotalMemories, &j.ImportedMemories, &j.CreatedAt, &j.UpdatedAt)
		return j, err
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return ImportJob{}, fmt.Errorf("jobs: get import %s: %w", id, ErrImportNotFound)
	}
	if err != nil {
		return ImportJob{}, fmt.Errorf("jobs: get import %s: %w", id, err)
	}
	return job, nil
}
