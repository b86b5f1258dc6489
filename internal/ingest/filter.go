package ingest

import (
	"sort"
	"time"

	"trainlog/internal/activity"
)

// FilterStats counts why records were dropped.
type FilterStats struct {
	Undated int
	Generic int
	Stale   int
}

// FilterNew keeps records that have a start time, are not of the generic
// type and start strictly after mostRecent, which is read in loc. Starts
// are compared at whole-second precision, like the stored timestamp. A nil
// or unparsable mostRecent admits every dated record. The result is sorted
// by start time, oldest first.
func FilterNew(raws []activity.Raw, mostRecent *activity.Key, loc *time.Location) []activity.Raw {
	admitted, _ := filterNew(raws, mostRecent, loc)
	return admitted
}

func filterNew(raws []activity.Raw, mostRecent *activity.Key, loc *time.Location) ([]activity.Raw, FilterStats) {
	var (
		cutoff    time.Time
		hasCutoff bool
		stats     FilterStats
	)
	if mostRecent != nil {
		cutoff, hasCutoff = mostRecent.Time(loc)
	}

	admitted := make([]activity.Raw, 0, len(raws))
	for _, raw := range raws {
		start, ok := raw.StartTime()
		switch {
		case !ok:
			stats.Undated++
		case raw.IsGeneric():
			stats.Generic++
		case hasCutoff && !start.Truncate(time.Second).After(cutoff):
			stats.Stale++
		default:
			admitted = append(admitted, raw)
		}
	}

	sort.SliceStable(admitted, func(i, j int) bool {
		return *admitted[i].StartMillis < *admitted[j].StartMillis
	})
	return admitted, stats
}
