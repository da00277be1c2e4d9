package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/dealerscan/ingest-be/internal/pipeline"
)

// ErrIncompleteRecord is returned when Persist receives a record missing a
// required field. The quality gate should have filtered these already.
var ErrIncompleteRecord = errors.New("record missing required fields")

// Storage persists quality-gated listings with fingerprint deduplication
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

// Persist writes one extracted record with provenance. The fingerprint check
// is authoritative: an existing fingerprint yields PersistDuplicate and no
// write, regardless of the validator's own duplicate flag.
func (s *Storage) Persist(ctx context.Context, rec pipeline.ExtractedRecord, prov pipeline.Provenance) (pipeline.PersistOutcome, error) {
	if len(rec.MissingRequired()) > 0 {
		return "", ErrIncompleteRecord
	}

	mileage := 0.0
	if rec.Mileage != nil {
		mileage = *rec.Mileage
	}

	fingerprint := Fingerprint(*rec.Brand, *rec.Model, *rec.Year, *rec.Price, mileage)

	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM listings WHERE fingerprint = $1)`, fingerprint)
	if err != nil {
		return "", fmt.Errorf("failed to check fingerprint: %w", err)
	}
	if exists {
		return pipeline.PersistDuplicate, nil
	}

	brandID, err := s.findOrCreateBrand(ctx, *rec.Brand)
	if err != nil {
		return "", err
	}

	modelID, err := s.findOrCreateModel(ctx, brandID, *rec.Model)
	if err != nil {
		return "", err
	}

	query := `
		INSERT INTO listings (
			brand_id, model_id, condition, year, price, mileage,
			description, features, image_urls,
			source_id, source_url, discovered_at, fingerprint,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6,
			$7, $8, $9,
			$10, $11, $12, $13,
			NOW()
		)
	`

	_, err = s.db.ExecContext(ctx, query,
		brandID,
		modelID,
		rec.Condition,
		*rec.Year,
		*rec.Price,
		rec.Mileage,
		rec.Description,
		pq.StringArray(rec.Features),
		pq.StringArray(rec.ImageURLs),
		prov.SourceID,
		prov.SourceURL,
		prov.DiscoveredAt,
		fingerprint,
	)
	if err != nil {
		// A concurrent run may have inserted the same fingerprint between
		// the existence check and this insert
		if isUniqueViolation(err) {
			return pipeline.PersistDuplicate, nil
		}
		return "", fmt.Errorf("failed to insert listing: %w", err)
	}

	s.logger.Info("Listing persisted",
		slog.Int64("source_id", prov.SourceID),
		slog.String("source_url", prov.SourceURL),
		slog.String("fingerprint", fingerprint[:12]),
	)

	return pipeline.PersistCreated, nil
}

// findOrCreateBrand resolves a brand id by normalized name, creating the row
// when absent. A unique-constraint race means another run created it first,
// so re-read instead of failing.
func (s *Storage) findOrCreateBrand(ctx context.Context, name string) (int64, error) {
	normalized := normalizeName(name)

	var id int64
	err := s.db.GetContext(ctx, &id, `SELECT id FROM brands WHERE normalized_name = $1`, normalized)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up brand: %w", err)
	}

	err = s.db.GetContext(ctx, &id,
		`INSERT INTO brands (name, normalized_name, created_at) VALUES ($1, $2, NOW()) RETURNING id`,
		name, normalized)
	if err != nil {
		if isUniqueViolation(err) {
			if rerr := s.db.GetContext(ctx, &id, `SELECT id FROM brands WHERE normalized_name = $1`, normalized); rerr != nil {
				return 0, fmt.Errorf("failed to re-read brand after conflict: %w", rerr)
			}
			return id, nil
		}
		return 0, fmt.Errorf("failed to create brand: %w", err)
	}

	return id, nil
}

// findOrCreateModel resolves a model id under a brand, creating when absent
// with the same conflict-as-already-exists handling as brands
func (s *Storage) findOrCreateModel(ctx context.Context, brandID int64, name string) (int64, error) {
	normalized := normalizeName(name)

	var id int64
	err := s.db.GetContext(ctx, &id,
		`SELECT id FROM models WHERE brand_id = $1 AND normalized_name = $2`, brandID, normalized)
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up model: %w", err)
	}

	err = s.db.GetContext(ctx, &id,
		`INSERT INTO models (brand_id, name, normalized_name, created_at) VALUES ($1, $2, $3, NOW()) RETURNING id`,
		brandID, name, normalized)
	if err != nil {
		if isUniqueViolation(err) {
			if rerr := s.db.GetContext(ctx, &id,
				`SELECT id FROM models WHERE brand_id = $1 AND normalized_name = $2`, brandID, normalized); rerr != nil {
				return 0, fmt.Errorf("failed to re-read model after conflict: %w", rerr)
			}
			return id, nil
		}
		return 0, fmt.Errorf("failed to create model: %w", err)
	}

	return id, nil
}

// isUniqueViolation distinguishes unique-constraint conflicts from other
// database errors
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
