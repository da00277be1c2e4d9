package handler

import (
	"context"
	"log/slog"

	"github.com/dealerscan/ingest-be/internal/ledger"
	"github.com/dealerscan/ingest-be/internal/scheduler"
)

// BatchRunner is the scheduler surface the trigger endpoints use
type BatchRunner interface {
	RunBatch(ctx context.Context, sel scheduler.Selector, limit int) (scheduler.BatchResult, error)
	ReassignRotationRanks(ctx context.Context) (int, error)
}

// JobReader reads the job ledger
type JobReader interface {
	GetByID(ctx context.Context, jobID string) (*ledger.Job, error)
	List(ctx context.Context, filter ledger.Filter) ([]ledger.Job, error)
}

// HealthChecker reports backing-store health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger        *slog.Logger
	Runner        BatchRunner
	Jobs          JobReader
	Health        HealthChecker
	TriggerSecret string
}

// IngestHandler handles scheduling-trigger HTTP requests
type IngestHandler struct {
	logger *slog.Logger
	runner BatchRunner
}

// NewIngestHandler creates a new IngestHandler instance
func NewIngestHandler(deps *Dependencies) *IngestHandler {
	return &IngestHandler{
		logger: deps.Logger,
		runner: deps.Runner,
	}
}

// JobHandler handles job-ledger read requests
type JobHandler struct {
	logger *slog.Logger
	jobs   JobReader
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger: deps.Logger,
		jobs:   deps.Jobs,
	}
}
