package activity

import (
	"strings"
	"time"
)

// Raw is a provider record before normalization. Pointer fields are nil when
// the provider omitted them.
type Raw struct {
	ItemID         string
	Source         string
	StartMillis    *int64
	DurationSec    *float64
	DistanceKM     *float64
	AvgHeartRate   *float64
	Classification string
	Activity       string
	GPS            *GPS
}

// GPS is the optional track payload. Only lap heart-rate data is used.
type GPS struct {
	Sport string
	Laps  []Lap
}

// Lap holds one lap's peak heart rate and its sampled readings. NaN marks a
// sample point without a heart-rate reading.
type Lap struct {
	MaxHeart   float64
	HeartRates []float64
}

// ExerciseType resolves the label: the provider's specific classification
// unless empty or "Other", then the generic activity field, then the GPS
// sport, then "Unknown".
func (r Raw) ExerciseType() string {
	if c := strings.TrimSpace(r.Classification); c != "" && c != "Other" {
		return c
	}
	if a := strings.TrimSpace(r.Activity); a != "" {
		return a
	}
	if r.GPS != nil {
		if s := strings.TrimSpace(r.GPS.Sport); s != "" {
			return s
		}
	}
	return "Unknown"
}

// IsGeneric reports whether the resolved type is the excluded "Generic".
func (r Raw) IsGeneric() bool {
	return strings.EqualFold(r.ExerciseType(), "generic")
}

// StartTime converts the epoch-millisecond start. ok is false when absent.
func (r Raw) StartTime() (time.Time, bool) {
	if r.StartMillis == nil || *r.StartMillis <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(*r.StartMillis), true
}
