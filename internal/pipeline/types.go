package pipeline

import (
	"context"
	"math"
	"time"
)

const (
	minSaneYear = 1950
	maxSaneYear = 2100
)

// CandidateItem is one discovered detail-page URL within a source. It exists
// only within a single pipeline run.
type CandidateItem struct {
	URL         string   `json:"url"`
	Title       string   `json:"title,omitempty"`
	Price       *float64 `json:"price,omitempty"`
	Opportunity string   `json:"opportunity,omitempty"`
}

// ExploreOutput is the structured result of the Explore stage
type ExploreOutput struct {
	Items        []CandidateItem `json:"items"`
	HasMorePages bool            `json:"has_more_pages"`
	Notes        string          `json:"notes,omitempty"`
}

// ExtractedRecord is the typed output of the Extract stage. Absent fields are
// nil, never inferred.
type ExtractedRecord struct {
	Brand       *string  `json:"brand"`
	Model       *string  `json:"model"`
	Condition   *string  `json:"condition"`
	Year        *int     `json:"year"`
	Price       *float64 `json:"price"`
	Mileage     *float64 `json:"mileage"`
	Description *string  `json:"description"`
	Features    []string `json:"features"`
	ImageURLs   []string `json:"image_urls"`
}

// Normalize drops numeric values that violate the record invariants:
// negative numbers and years outside the sane range become absent.
func (r *ExtractedRecord) Normalize() {
	if r.Year != nil && (*r.Year < minSaneYear || *r.Year > maxSaneYear) {
		r.Year = nil
	}
	if r.Price != nil && (*r.Price < 0 || math.IsNaN(*r.Price)) {
		r.Price = nil
	}
	if r.Mileage != nil && (*r.Mileage < 0 || math.IsNaN(*r.Mileage)) {
		r.Mileage = nil
	}
}

// MissingRequired lists absent required fields (brand, model, year, price)
func (r *ExtractedRecord) MissingRequired() []string {
	var missing []string
	if r.Brand == nil || *r.Brand == "" {
		missing = append(missing, "brand")
	}
	if r.Model == nil || *r.Model == "" {
		missing = append(missing, "model")
	}
	if r.Year == nil {
		missing = append(missing, "year")
	}
	if r.Price == nil {
		missing = append(missing, "price")
	}
	return missing
}

// ValidationOutcome is the Validate stage's judgment on one record
type ValidationOutcome struct {
	IsValid      bool     `json:"is_valid"`
	Completeness float64  `json:"completeness"`
	Accuracy     float64  `json:"accuracy"`
	Consistency  float64  `json:"consistency"`
	QualityScore int      `json:"quality_score"`
	IsDuplicate  bool     `json:"is_duplicate"`
	Issues       []string `json:"issues,omitempty"`
}

// scoreFromParts combines the three sub-scores into a 0-100 quality score
func scoreFromParts(completeness, accuracy, consistency float64) int {
	clamp := func(v float64) float64 {
		if v < 0 {
			return 0
		}
		if v > 1 {
			return 1
		}
		return v
	}
	avg := (clamp(completeness) + clamp(accuracy) + clamp(consistency)) / 3
	return int(math.Round(avg * 100))
}

// Provenance records where a persisted item came from
type Provenance struct {
	SourceID     int64
	SourceName   string
	SourceURL    string
	DiscoveredAt time.Time
}

// PersistOutcome classifies the result of a persistence attempt
type PersistOutcome string

const (
	PersistCreated   PersistOutcome = "created"
	PersistDuplicate PersistOutcome = "duplicate"
)

// Generator produces a structured result from a prompt
type Generator interface {
	Generate(ctx context.Context, prompt string, out any) error
}

// PageFetcher retrieves one page body
type PageFetcher interface {
	GetPage(ctx context.Context, url string) ([]byte, error)
}

// RecordStore persists quality-gated records with dedup enforcement
type RecordStore interface {
	Persist(ctx context.Context, rec ExtractedRecord, prov Provenance) (PersistOutcome, error)
}

// Result aggregates one source run's counts
type Result struct {
	Discovered     int
	Extracted      int
	Persisted      int
	Rejected       int
	Duplicates     int
	ExploreErrors  int
	ExtractErrors  int
	ValidateErrors int
	PersistErrors  int
}
