package scheduler

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/dealerscan/ingest-be/internal/ledger"
)

// JobOutcomeEvent is the fire-and-forget message published after each source
// run for downstream consumers
type JobOutcomeEvent struct {
	JobID      string               `json:"job_id"`
	SourceID   int64                `json:"source_id"`
	SourceName string               `json:"source_name"`
	Status     string               `json:"status"`
	Summary    ledger.ResultSummary `json:"summary"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// publishOutcome emits the outcome event. Publishing is best-effort: a
// broker failure never affects the batch result.
func (s *Scheduler) publishOutcome(ctx context.Context, job *ledger.Job, status string, summary ledger.ResultSummary) {
	if s.events == nil {
		return
	}

	event := JobOutcomeEvent{
		JobID:      job.JobID,
		SourceID:   job.SourceID,
		SourceName: job.SourceName,
		Status:     status,
		Summary:    summary,
		OccurredAt: s.now().UTC(),
	}

	body, err := json.Marshal(event)
	if err != nil {
		s.logger.Error("Failed to marshal outcome event",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
		return
	}

	if err := s.events.Publish(ctx, body); err != nil {
		s.logger.Warn("Failed to publish outcome event",
			slog.String("job_id", job.JobID),
			slog.String("error", err.Error()),
		)
	}
}
