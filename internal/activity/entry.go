// Package activity defines the training log domain: completed workouts,
// raw provider records, planned sessions and weekly progress rows, plus the
// row codec used at the spreadsheet boundary.
package activity

import (
	"strings"
	"time"
)

const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Entry is one completed workout in the activity log.
type Entry struct {
	// StartedAt carries the reporting location. Zero means unknown.
	StartedAt      time.Time
	ExerciseType   string
	Duration       Span
	DistanceKM     Metric
	AvgHR          Metric
	MaxHR          Metric
	Z2Percent      Metric
	AboveZ2Percent Metric
	BelowZ2Percent Metric
	MAFZonePercent Metric
	Pace           Span
	Route          string
	Notes          string
	Incomplete     bool
	ItemID         string
	Source         string
}

// Key identifies an entry inside the log.
type Key struct {
	Date      string
	Timestamp string
}

func (k Key) String() string {
	return k.Date + "T" + k.Timestamp
}

// Time parses the key in loc. ok is false for "N/A" or malformed keys.
func (k Key) Time(loc *time.Location) (time.Time, bool) {
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(DateLayout+"T"+TimeLayout, k.String(), loc)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (e Entry) Key() Key {
	if e.StartedAt.IsZero() {
		return Key{Date: NotAvailable, Timestamp: NotAvailable}
	}
	return Key{
		Date:      e.StartedAt.Format(DateLayout),
		Timestamp: e.StartedAt.Format(TimeLayout),
	}
}

// IsRun reports whether the exercise type names a run of any kind.
func (e Entry) IsRun() bool {
	return strings.Contains(strings.ToLower(e.ExerciseType), "run")
}

// EntryPatch lists the fields the edit path may overwrite.
type EntryPatch struct {
	ExerciseType *string
	Notes        *string
}

func (p EntryPatch) Empty() bool {
	return p.ExerciseType == nil && p.Notes == nil
}

func (p EntryPatch) Apply(e Entry) Entry {
	if p.ExerciseType != nil {
		e.ExerciseType = *p.ExerciseType
	}
	if p.Notes != nil {
		e.Notes = *p.Notes
	}
	return e
}

// PlanEntry is a planned workout from the training plan region.
type PlanEntry struct {
	Date               time.Time
	ExerciseType       string
	DurationPlannedMin int
	DurationPlannedMax *int
	Notes              string
}

// Progress metric types written by the weekly aggregator.
const (
	MetricWeeklyZ2Average = "weekly_z2_average"
	MetricWeeklyPace      = "weekly_pace"
)

// ProgressMetric is one weekly aggregate row.
type ProgressMetric struct {
	WeekStart string
	Type      string
	Value     string
}
