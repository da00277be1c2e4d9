package registry

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func activeSource(id int64, rank int, last *time.Time) Source {
	return Source{
		ID:              id,
		Name:            "source",
		EntryURLs:       pq.StringArray{"https://example.test/inventory"},
		RotationRank:    rank,
		Cadence:         CadenceHourly,
		LastProcessedAt: last,
		Active:          true,
	}
}

func TestHourBucket(t *testing.T) {
	tests := []struct {
		name        string
		hour        int
		activeCount int
		want        int
	}{
		{name: "hour zero maps to rank one", hour: 0, activeCount: 5, want: 1},
		{name: "hour wraps modulo active count", hour: 7, activeCount: 5, want: 3},
		{name: "no active sources defaults to rank one", hour: 13, activeCount: 0, want: 1},
		{name: "more sources than hours", hour: 23, activeCount: 100, want: 24},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := time.Date(2025, 6, 15, tt.hour, 30, 0, 0, time.UTC)
			assert.Equal(t, tt.want, HourBucket(now, tt.activeCount))
		})
	}
}

func TestSelectDue_RotationOrder(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	sources := []Source{
		activeSource(1, 1, nil),
		activeSource(2, 2, nil),
		activeSource(3, 3, nil),
		activeSource(4, 4, nil),
	}

	selected := SelectDue(sources, 3, 10, now)

	require.Len(t, selected, 4)
	assert.Equal(t, int64(3), selected[0].ID)
	assert.Equal(t, int64(4), selected[1].ID)
	assert.Equal(t, int64(1), selected[2].ID)
	assert.Equal(t, int64(2), selected[3].ID)
}

func TestSelectDue_TruncatesToLimit(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	var sources []Source
	for i := int64(1); i <= 8; i++ {
		sources = append(sources, activeSource(i, int(i), nil))
	}

	selected := SelectDue(sources, 1, 3, now)

	require.Len(t, selected, 3)
	assert.Equal(t, int64(1), selected[0].ID)
	assert.Equal(t, int64(3), selected[2].ID)
}

func TestSelectDue_SkipsNotDueAndInactive(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	fresh := activeSource(1, 1, timePtr(now.Add(-time.Minute)))
	stale := activeSource(2, 2, timePtr(now.Add(-2*time.Hour)))
	inactive := activeSource(3, 3, nil)
	inactive.Active = false

	selected := SelectDue([]Source{fresh, stale, inactive}, 1, 10, now)

	require.Len(t, selected, 1)
	assert.Equal(t, int64(2), selected[0].ID)
}

func TestSelectDue_NeverSelectsSourceWithoutEntryURL(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	noURL := activeSource(1, 1, nil)
	noURL.EntryURLs = nil
	withURL := activeSource(2, 2, nil)

	selected := SelectDue([]Source{noURL, withURL}, 1, 10, now)

	require.Len(t, selected, 1)
	assert.Equal(t, int64(2), selected[0].ID)
}

func TestSelectDue_TiesBrokenByStaleness(t *testing.T) {
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	// Both unranked: rotation offset ties, the staler one wins
	older := activeSource(1, 0, timePtr(now.Add(-30*time.Hour)))
	newer := activeSource(2, 0, timePtr(now.Add(-3*time.Hour)))

	selected := SelectDue([]Source{newer, older}, 1, 10, now)

	require.Len(t, selected, 2)
	assert.Equal(t, int64(1), selected[0].ID)
	assert.Equal(t, int64(2), selected[1].ID)
}

func TestSelectDue_NoActiveSources(t *testing.T) {
	now := time.Now()
	assert.Nil(t, SelectDue(nil, 1, 5, now))

	inactive := activeSource(1, 1, nil)
	inactive.Active = false
	assert.Nil(t, SelectDue([]Source{inactive}, 1, 5, now))
}
