package ledger

import (
	"database/sql"
	"errors"
	"time"
)

// Job status constants. Transitions are monotonic:
// PENDING -> RUNNING -> COMPLETED | FAILED. Terminal states are immutable.
const (
	JobStatusPending   = "PENDING"
	JobStatusRunning   = "RUNNING"
	JobStatusCompleted = "COMPLETED"
	JobStatusFailed    = "FAILED"
)

var (
	// ErrJobNotFound is returned when a job cannot be found in the ledger
	ErrJobNotFound = errors.New("job not found")

	// ErrStatusRegression is returned when a transition would move a job
	// backwards or mutate a terminal state
	ErrStatusRegression = errors.New("job status transition not allowed")
)

// Job is one tracked unit of orchestration work
type Job struct {
	JobID        string         `db:"job_id"`
	SourceID     int64          `db:"source_id"`
	SourceName   string         `db:"source_name"`
	Payload      string         `db:"payload"`
	Status       string         `db:"status"`
	Result       sql.NullString `db:"result"`
	ErrorMessage sql.NullString `db:"error_message"`
	CreatedAt    time.Time      `db:"created_at"`
	StartedAt    sql.NullTime   `db:"started_at"`
	CompletedAt  sql.NullTime   `db:"completed_at"`
	UpdatedAt    time.Time      `db:"updated_at"`
}

// ResultSummary is the per-source outcome written on completion
type ResultSummary struct {
	ItemsDiscovered int `json:"items_discovered"`
	ItemsExtracted  int `json:"items_extracted"`
	ItemsPersisted  int `json:"items_persisted"`
	ItemsRejected   int `json:"items_rejected"`
	Duplicates      int `json:"duplicates"`
	ExploreErrors   int `json:"explore_errors"`
	ExtractErrors   int `json:"extract_errors"`
	ValidateErrors  int `json:"validate_errors"`
	PersistErrors   int `json:"persist_errors"`
}
