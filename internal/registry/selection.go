package registry

import (
	"sort"
	"time"
)

// HourBucket maps a wall-clock hour onto the rotation-rank space. Ranks are
// 1-based, so hour 0 with N active sources selects rank 1.
func HourBucket(now time.Time, activeCount int) int {
	if activeCount <= 0 {
		return 1
	}
	return now.Hour()%activeCount + 1
}

// SelectDue resolves a starting rank to the ordered set of sources eligible
// for this invocation. Sources without an entry URL are never selected.
// Ordering is rotation offset from startRank ascending, ties broken by
// staleness descending; the result is truncated to limit.
func SelectDue(sources []Source, startRank, limit int, now time.Time) []Source {
	rankSpace := 0
	for _, s := range sources {
		if s.Active {
			rankSpace++
		}
	}
	if rankSpace == 0 {
		return nil
	}

	var due []Source
	for _, s := range sources {
		if !s.Active || len(s.EntryURLs) == 0 {
			continue
		}
		if s.DueNow(now) {
			due = append(due, s)
		}
	}

	offset := func(rank int) int {
		if rank <= 0 {
			// Unassigned ranks rotate last
			return rankSpace
		}
		return ((rank - startRank) % rankSpace + rankSpace) % rankSpace
	}

	sort.SliceStable(due, func(i, j int) bool {
		oi, oj := offset(due[i].RotationRank), offset(due[j].RotationRank)
		if oi != oj {
			return oi < oj
		}
		return due[i].Staleness(now) > due[j].Staleness(now)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}

	return due
}
