package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dealerscan/ingest-be/internal/ledger"
	"github.com/dealerscan/ingest-be/internal/pipeline"
	"github.com/dealerscan/ingest-be/internal/registry"
)

// SourceStore is the registry surface the scheduler needs
type SourceStore interface {
	ListActive(ctx context.Context) ([]registry.Source, error)
	UpdateLastProcessed(ctx context.Context, sourceID int64, processedAt time.Time) error
	ReassignRotationRanks(ctx context.Context) (int, error)
}

// JobLedger records scheduled and executed work
type JobLedger interface {
	Create(ctx context.Context, job *ledger.Job) error
	MarkRunning(ctx context.Context, jobID string) error
	Complete(ctx context.Context, jobID string, summary ledger.ResultSummary) error
	Fail(ctx context.Context, jobID, errorMessage string) error
}

// SourceRunner executes the stage chain for one source
type SourceRunner interface {
	RunOne(ctx context.Context, src registry.Source) (pipeline.Result, error)
}

// EventPublisher emits job-outcome events; nil disables publishing
type EventPublisher interface {
	Publish(ctx context.Context, body []byte) error
}

// Selector picks the rotation starting point for a batch. A nil Rank means
// "current hour bucket".
type Selector struct {
	Rank *int
}

// BatchResult aggregates one invocation's counts
type BatchResult struct {
	SourcesAttempted int
	SourcesFailed    int
	ItemsDiscovered  int
	ItemsExtracted   int
	ItemsPersisted   int
	ItemsRejected    int
	Duplicates       int
	ExploreErrors    int
	ExtractErrors    int
	ValidateErrors   int
	PersistErrors    int
}

// Config holds batch scheduler configuration
type Config struct {
	DefaultLimit  int
	MaxLimit      int
	SourceTimeout time.Duration
}

// Scheduler selects due sources and drives the orchestrator over them
// sequentially
type Scheduler struct {
	sources SourceStore
	jobs    JobLedger
	runner  SourceRunner
	events  EventPublisher
	logger  *slog.Logger
	cfg     Config
	now     func() time.Time
}

// New wires the scheduler's collaborators. events may be nil.
func New(sources SourceStore, jobs JobLedger, runner SourceRunner, events EventPublisher, cfg Config, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		sources: sources,
		jobs:    jobs,
		runner:  runner,
		events:  events,
		logger:  logger,
		cfg:     cfg,
		now:     time.Now,
	}
}

// RunBatch processes up to limit due sources for the selector. Source-level
// failures are contained; only a failure before any source work begins (the
// registry being unreachable) is returned as an error.
func (s *Scheduler) RunBatch(ctx context.Context, sel Selector, limit int) (BatchResult, error) {
	var res BatchResult

	if limit <= 0 {
		limit = s.cfg.DefaultLimit
	}
	if s.cfg.MaxLimit > 0 && limit > s.cfg.MaxLimit {
		limit = s.cfg.MaxLimit
	}

	sources, err := s.sources.ListActive(ctx)
	if err != nil {
		return res, fmt.Errorf("source registry unavailable: %w", err)
	}

	now := s.now()

	startRank := registry.HourBucket(now, len(sources))
	if sel.Rank != nil {
		startRank = *sel.Rank
	}

	due := registry.SelectDue(sources, startRank, limit, now)

	s.logger.Info("Batch selected",
		slog.Int("active_sources", len(sources)),
		slog.Int("start_rank", startRank),
		slog.Int("due", len(due)),
		slog.Int("limit", limit),
	)

	for _, src := range due {
		if ctx.Err() != nil {
			// Invocation cut off externally: remaining work stays
			// "not yet completed", no timestamps are touched
			s.logger.Warn("Batch canceled before all sources ran",
				slog.Int("attempted", res.SourcesAttempted),
				slog.Int("remaining", len(due)-res.SourcesAttempted),
			)
			break
		}

		s.runSource(ctx, src, &res)
	}

	return res, nil
}

// runSource executes one source run end to end: job record, orchestrator
// invocation under the per-source timeout, ledger finalization, and the
// last-processed stamp
func (s *Scheduler) runSource(ctx context.Context, src registry.Source, res *BatchResult) {
	job := &ledger.Job{
		JobID:      uuid.New().String(),
		SourceID:   src.ID,
		SourceName: src.Name,
		Payload:    sourceSnapshot(src),
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		res.SourcesAttempted++
		res.SourcesFailed++
		s.logger.Error("Failed to create job record, skipping source",
			slog.Int64("source_id", src.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.jobs.MarkRunning(ctx, job.JobID); err != nil {
		res.SourcesAttempted++
		res.SourcesFailed++
		s.logger.Error("Failed to mark job running, skipping source",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		return
	}

	srcCtx, cancel := context.WithTimeout(ctx, s.cfg.SourceTimeout)
	runRes, runErr := s.runner.RunOne(srcCtx, src)
	cancel()

	if ctx.Err() != nil {
		// Parent cancellation mid-run: leave the job RUNNING and the
		// source's last-processed timestamp untouched
		return
	}

	res.SourcesAttempted++
	res.ItemsDiscovered += runRes.Discovered
	res.ItemsExtracted += runRes.Extracted
	res.ItemsPersisted += runRes.Persisted
	res.ItemsRejected += runRes.Rejected
	res.Duplicates += runRes.Duplicates
	res.ExploreErrors += runRes.ExploreErrors
	res.ExtractErrors += runRes.ExtractErrors
	res.ValidateErrors += runRes.ValidateErrors
	res.PersistErrors += runRes.PersistErrors

	summary := ledger.ResultSummary{
		ItemsDiscovered: runRes.Discovered,
		ItemsExtracted:  runRes.Extracted,
		ItemsPersisted:  runRes.Persisted,
		ItemsRejected:   runRes.Rejected,
		Duplicates:      runRes.Duplicates,
		ExploreErrors:   runRes.ExploreErrors,
		ExtractErrors:   runRes.ExtractErrors,
		ValidateErrors:  runRes.ValidateErrors,
		PersistErrors:   runRes.PersistErrors,
	}

	status := ledger.JobStatusCompleted
	if runErr != nil {
		status = ledger.JobStatusFailed
		res.SourcesFailed++
		s.logger.Error("Source run failed",
			slog.String("job_id", job.JobID),
			slog.Int64("source_id", src.ID),
			slog.String("error", runErr.Error()),
		)
		if err := s.jobs.Fail(ctx, job.JobID, runErr.Error()); err != nil {
			s.logger.Error("Failed to record job failure",
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()),
			)
		}
	} else {
		if err := s.jobs.Complete(ctx, job.JobID, summary); err != nil {
			s.logger.Error("Failed to record job completion",
				slog.String("job_id", job.JobID),
				slog.String("error", err.Error()),
			)
		}
	}

	// The last-processed stamp moves exactly once per completed run,
	// success or failure, so the rotation keeps advancing
	if err := s.sources.UpdateLastProcessed(ctx, src.ID, s.now()); err != nil {
		s.logger.Error("Failed to update last-processed timestamp",
			slog.Int64("source_id", src.ID),
			slog.String("error", err.Error()),
		)
	}

	s.publishOutcome(ctx, job, status, summary)
}

// ReassignRotationRanks rewrites sequential ranks over all active sources
func (s *Scheduler) ReassignRotationRanks(ctx context.Context) (int, error) {
	return s.sources.ReassignRotationRanks(ctx)
}

// sourceSnapshot captures the stage-chain input recorded on the job
func sourceSnapshot(src registry.Source) string {
	snapshot, err := json.Marshal(map[string]interface{}{
		"source_id":     src.ID,
		"source_name":   src.Name,
		"entry_urls":    []string(src.EntryURLs),
		"cadence":       string(src.Cadence),
		"rotation_rank": src.RotationRank,
	})
	if err != nil {
		return "{}"
	}
	return string(snapshot)
}
