package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
)

// Storage handles all database operations for the source registry
type Storage struct {
	db     *sqlx.DB
	logger *slog.Logger

	// Serializes concurrent rank maintenance calls. Batch-time reads need
	// no locking because ranks are read-only during a batch.
	rankMu sync.Mutex
}

// NewStorage creates a new Storage instance
func NewStorage(db *sqlx.DB, logger *slog.Logger) *Storage {
	return &Storage{
		db:     db,
		logger: logger,
	}
}

// ListActive returns all active sources ordered by rotation rank
func (s *Storage) ListActive(ctx context.Context) ([]Source, error) {
	query := `
		SELECT id, name, entry_urls, rotation_rank, cadence, last_processed_at, active
		FROM sources
		WHERE active = true
		ORDER BY rotation_rank, id
	`

	var sources []Source
	if err := s.db.SelectContext(ctx, &sources, query); err != nil {
		return nil, fmt.Errorf("failed to list active sources: %w", err)
	}

	return sources, nil
}

// UpdateLastProcessed stamps a source's last completed run. Called exactly
// once per completed source run, after persistence attempts finish.
func (s *Storage) UpdateLastProcessed(ctx context.Context, sourceID int64, processedAt time.Time) error {
	query := `
		UPDATE sources
		SET last_processed_at = $1,
		    updated_at = NOW()
		WHERE id = $2
	`

	result, err := s.db.ExecContext(ctx, query, processedAt, sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last processed: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		s.logger.Warn("Last-processed update matched no source",
			slog.Int64("source_id", sourceID),
		)
	}

	return nil
}

// ReassignRotationRanks re-enumerates active sources and rewrites sequential
// ranks 1..N. Idempotent and safe to re-run. Ranks are zeroed first so the
// rewrite never collides with the unique index on assigned ranks.
func (s *Storage) ReassignRotationRanks(ctx context.Context) (int, error) {
	s.rankMu.Lock()
	defer s.rankMu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ids []int64
	if err := tx.SelectContext(ctx, &ids, `SELECT id FROM sources WHERE active = true ORDER BY id`); err != nil {
		return 0, fmt.Errorf("failed to enumerate active sources: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE sources SET rotation_rank = 0 WHERE active = true`); err != nil {
		return 0, fmt.Errorf("failed to clear ranks: %w", err)
	}

	for i, id := range ids {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sources SET rotation_rank = $1, updated_at = NOW() WHERE id = $2`,
			i+1, id,
		); err != nil {
			return 0, fmt.Errorf("failed to assign rank %d: %w", i+1, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit rank reassignment: %w", err)
	}

	s.logger.Info("Rotation ranks reassigned",
		slog.Int("active_sources", len(ids)),
	)

	return len(ids), nil
}
