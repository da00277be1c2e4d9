package registry

import (
	"time"

	"github.com/lib/pq"
)

// Cadence is how often a source should be re-ingested
type Cadence string

const (
	CadenceHourly Cadence = "hourly"
	CadenceDaily  Cadence = "daily"
	CadenceWeekly Cadence = "weekly"
)

// Threshold returns the staleness duration after which a source is due again.
// Unknown cadences fall back to daily.
func (c Cadence) Threshold() time.Duration {
	switch c {
	case CadenceHourly:
		return time.Hour
	case CadenceWeekly:
		return 7 * 24 * time.Hour
	default:
		return 24 * time.Hour
	}
}

// Source is one external listing origin subject to periodic re-ingestion
type Source struct {
	ID              int64          `db:"id"`
	Name            string         `db:"name"`
	EntryURLs       pq.StringArray `db:"entry_urls"`
	RotationRank    int            `db:"rotation_rank"`
	Cadence         Cadence        `db:"cadence"`
	LastProcessedAt *time.Time     `db:"last_processed_at"`
	Active          bool           `db:"active"`
}

// DueNow reports whether the source should be ingested at the given instant.
// A source that has never been processed is always due. The cadence boundary
// is inclusive: exactly at the threshold counts as due.
func (s Source) DueNow(now time.Time) bool {
	if s.LastProcessedAt == nil {
		return true
	}
	return now.Sub(*s.LastProcessedAt) >= s.Cadence.Threshold()
}

// Staleness returns how long the source has been waiting since its last run.
// Never-processed sources report the maximum duration so they sort first.
func (s Source) Staleness(now time.Time) time.Duration {
	if s.LastProcessedAt == nil {
		return time.Duration(1<<63 - 1)
	}
	return now.Sub(*s.LastProcessedAt)
}
