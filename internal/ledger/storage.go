package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

// Storage handles all database operations for the job ledger
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// Create appends a new PENDING job record
func (s *Storage) Create(ctx context.Context, job *Job) error {
	query := `
		INSERT INTO jobs (
			job_id, source_id, source_name, payload, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, NOW(), NOW()
		)
	`

	_, err := s.db.ExecContext(ctx, query,
		job.JobID,
		job.SourceID,
		job.SourceName,
		job.Payload,
		JobStatusPending,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

// MarkRunning transitions PENDING -> RUNNING using a guarded update so a
// concurrent transition cannot regress the status
func (s *Storage) MarkRunning(ctx context.Context, jobID string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    started_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $2
		  AND status = $3
	`

	result, err := s.db.ExecContext(ctx, query, JobStatusRunning, jobID, JobStatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark job running: %w", err)
	}

	return s.requireTransition(result, jobID, JobStatusRunning)
}

// Complete transitions RUNNING -> COMPLETED with the result summary
func (s *Storage) Complete(ctx context.Context, jobID string, summary ResultSummary) error {
	resultJSON, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal result summary: %w", err)
	}

	query := `
		UPDATE jobs
		SET status = $1,
		    result = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query, JobStatusCompleted, resultJSON, jobID, JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	return s.requireTransition(result, jobID, JobStatusCompleted)
}

// Fail transitions RUNNING -> FAILED with the error message
func (s *Storage) Fail(ctx context.Context, jobID, errorMessage string) error {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_message = $2,
		    completed_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
	`

	result, err := s.db.ExecContext(ctx, query, JobStatusFailed, errorMessage, jobID, JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}

	return s.requireTransition(result, jobID, JobStatusFailed)
}

// GetByID retrieves one job for observability reads
func (s *Storage) GetByID(ctx context.Context, jobID string) (*Job, error) {
	query := `
		SELECT job_id, source_id, source_name, payload, status,
		       result, error_message, created_at, started_at, completed_at, updated_at
		FROM jobs
		WHERE job_id = $1
	`

	var job Job
	err := s.db.GetContext(ctx, &job, query, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

// Filter narrows job listings
type Filter struct {
	SourceID int64
	Status   string
	PageSize int
	Cursor   *Cursor
}

// Cursor is a (created_at, job_id) pagination position
type Cursor struct {
	CreatedAt time.Time
	JobID     string
}

// List returns jobs newest-first with cursor pagination. One extra row is
// fetched so callers can detect whether more results exist.
func (s *Storage) List(ctx context.Context, filter Filter) ([]Job, error) {
	query := `
		SELECT job_id, source_id, source_name, payload, status,
		       result, error_message, created_at, started_at, completed_at, updated_at
		FROM jobs
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.SourceID > 0 {
		query += fmt.Sprintf(" AND source_id = $%d", argIdx)
		args = append(args, filter.SourceID)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// requireTransition maps a zero-row guarded update onto ErrStatusRegression
func (s *Storage) requireTransition(result sql.Result, jobID, target string) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Job status transition rejected",
			slog.String("job_id", jobID),
			slog.String("target_status", target),
		)
		return fmt.Errorf("%w: job %s to %s", ErrStatusRegression, jobID, target)
	}

	return nil
}
