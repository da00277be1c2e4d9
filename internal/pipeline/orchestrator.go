package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dealerscan/ingest-be/internal/inference"
	"github.com/dealerscan/ingest-be/internal/registry"
)

// Config holds orchestrator configuration
type Config struct {
	CandidateCap     int
	QualityThreshold int
}

// Orchestrator sequences Explore, Extract, Validate and Persist for one
// source. Stages run strictly sequentially; candidate items are processed in
// discovery order.
type Orchestrator struct {
	fetcher   PageFetcher
	generator Generator
	store     RecordStore
	logger    *slog.Logger
	cfg       Config
}

// NewOrchestrator wires the stage collaborators
func NewOrchestrator(fetcher PageFetcher, generator Generator, store RecordStore, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		fetcher:   fetcher,
		generator: generator,
		store:     store,
		logger:    logger,
		cfg:       cfg,
	}
}

// RunOne executes the stage chain for one source. A returned error means the
// source run as a whole failed (explore never yielded candidates); candidate
// level failures are contained and reflected in the Result counts.
func (o *Orchestrator) RunOne(ctx context.Context, src registry.Source) (Result, error) {
	var res Result

	if len(src.EntryURLs) == 0 {
		return res, fmt.Errorf("source %d has no entry URLs", src.ID)
	}

	items, err := o.explore(ctx, src)
	if err != nil {
		res.ExploreErrors++
		return res, err
	}

	res.Discovered = len(items)

	for _, item := range items {
		if ctx.Err() != nil {
			return res, fmt.Errorf("source run canceled: %w", ctx.Err())
		}

		o.processItem(ctx, src, item, &res)
	}

	o.logger.Info("Source run finished",
		slog.Int64("source_id", src.ID),
		slog.Int("discovered", res.Discovered),
		slog.Int("extracted", res.Extracted),
		slog.Int("persisted", res.Persisted),
		slog.Int("rejected", res.Rejected),
	)

	return res, nil
}

// explore runs the Explore stage over the source's entry URLs until one
// yields candidates
func (o *Orchestrator) explore(ctx context.Context, src registry.Source) ([]CandidateItem, error) {
	var lastErr error
	for _, entryURL := range src.EntryURLs {
		out, err := Explore(ctx, o.fetcher, o.generator, entryURL, o.cfg.CandidateCap)
		if err != nil {
			lastErr = err
			o.logger.Warn("Explore failed for entry URL",
				slog.Int64("source_id", src.ID),
				slog.String("entry_url", entryURL),
				slog.String("error", err.Error()),
			)
			continue
		}
		return out.Items, nil
	}
	return nil, fmt.Errorf("explore yielded no candidates: %w", lastErr)
}

// processItem walks one candidate through Extract, Validate, the quality
// gate, and Persist. Failures skip the item and never abort the source run.
func (o *Orchestrator) processItem(ctx context.Context, src registry.Source, item CandidateItem, res *Result) {
	rec, err := Extract(ctx, o.fetcher, o.generator, item)
	if err != nil {
		res.ExtractErrors++
		o.logger.Warn("Extract failed, skipping item",
			slog.Int64("source_id", src.ID),
			slog.String("url", item.URL),
			slog.String("error", err.Error()),
		)
		return
	}
	res.Extracted++

	outcome, err := Validate(ctx, o.generator, rec)
	if err != nil {
		if errors.Is(err, inference.ErrMalformed) {
			outcome = FallbackValidate(rec)
		} else {
			res.ValidateErrors++
			o.logger.Warn("Validate failed, skipping item",
				slog.Int64("source_id", src.ID),
				slog.String("url", item.URL),
				slog.String("error", err.Error()),
			)
			return
		}
	}

	if !o.passesGate(outcome) {
		res.Rejected++
		o.logger.Debug("Item rejected by quality gate",
			slog.Int64("source_id", src.ID),
			slog.String("url", item.URL),
			slog.Bool("is_valid", outcome.IsValid),
			slog.Int("quality_score", outcome.QualityScore),
			slog.Bool("is_duplicate", outcome.IsDuplicate),
		)
		return
	}

	prov := Provenance{
		SourceID:     src.ID,
		SourceName:   src.Name,
		SourceURL:    item.URL,
		DiscoveredAt: time.Now().UTC(),
	}

	persistOutcome, err := o.store.Persist(ctx, rec, prov)
	if err != nil {
		res.PersistErrors++
		o.logger.Error("Persist failed",
			slog.Int64("source_id", src.ID),
			slog.String("url", item.URL),
			slog.String("error", err.Error()),
		)
		return
	}

	switch persistOutcome {
	case PersistCreated:
		res.Persisted++
	case PersistDuplicate:
		res.Duplicates++
	}
}

// passesGate applies the admission check: valid, score at or above the
// configured threshold (boundary inclusive), and not flagged duplicate
func (o *Orchestrator) passesGate(outcome ValidationOutcome) bool {
	return outcome.IsValid &&
		outcome.QualityScore >= o.cfg.QualityThreshold &&
		!outcome.IsDuplicate
}
