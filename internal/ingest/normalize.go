// Package ingest turns provider records into activity log rows: it filters
// out records already logged, normalizes the rest and appends them.
package ingest

import (
	"errors"
	"time"

	"trainlog/internal/activity"
	"trainlog/internal/units"
)

// IncompleteNote is written to entries whose record had no track payload.
const IncompleteNote = "Incomplete GPS data"

// ErrMissingTimestamp is returned with entries that have no usable start
// time. Such entries must not be written.
var ErrMissingTimestamp = errors.New("activity has no start timestamp")

// Default heart-rate bands.
var (
	DefaultZone2 = units.Band{Min: 123, Max: 133}
	DefaultMAF   = units.Band{Min: 128, Max: 138}
)

// Normalizer derives log entries from raw records. It holds no state.
type Normalizer struct {
	Zone2    units.Band
	MAF      units.Band
	Location *time.Location
}

func (n Normalizer) location() *time.Location {
	if n.Location == nil {
		return time.UTC
	}
	return n.Location
}

// Normalize maps raw into an entry. Values that cannot be derived are left
// unavailable. The entry is still returned alongside ErrMissingTimestamp.
func (n Normalizer) Normalize(raw activity.Raw) (activity.Entry, error) {
	e := activity.Entry{
		ExerciseType: raw.ExerciseType(),
		ItemID:       raw.ItemID,
		Source:       raw.Source,
	}

	if raw.DurationSec != nil && *raw.DurationSec >= 0 {
		e.Duration = activity.MeasuredSpan(time.Duration(*raw.DurationSec * float64(time.Second)).Truncate(time.Second))
	}
	if raw.DistanceKM != nil && *raw.DistanceKM >= 0 {
		e.DistanceKM = activity.Measured(*raw.DistanceKM)
	}
	if d, ok := e.Duration.Value(); ok && raw.DistanceKM != nil {
		if pace, ok := units.PacePerKM(d, *raw.DistanceKM); ok {
			e.Pace = activity.MeasuredSpan(pace)
		}
	}
	if raw.AvgHeartRate != nil && *raw.AvgHeartRate > 0 {
		e.AvgHR = activity.Measured(*raw.AvgHeartRate)
	}

	if raw.GPS == nil {
		e.Incomplete = true
		e.Notes = IncompleteNote
	} else {
		n.heartRate(&e, raw.GPS)
	}

	start, ok := raw.StartTime()
	if !ok {
		return e, ErrMissingTimestamp
	}
	e.StartedAt = start.In(n.location())
	return e, nil
}

func (n Normalizer) heartRate(e *activity.Entry, gps *activity.GPS) {
	var peak float64
	for _, lap := range gps.Laps {
		if lap.MaxHeart > peak {
			peak = lap.MaxHeart
		}
	}
	if peak > 0 {
		e.MaxHR = activity.Measured(peak)
	}

	if len(gps.Laps) == 0 {
		return
	}
	samples := gps.Laps[0].HeartRates

	z2 := units.SplitZones(samples, n.zone2())
	if in, ok := units.Percent(z2.In, z2.Total, 2); ok {
		above, _ := units.Percent(z2.Above, z2.Total, 2)
		below, _ := units.Percent(z2.Below, z2.Total, 2)
		e.Z2Percent = activity.Measured(in)
		e.AboveZ2Percent = activity.Measured(above)
		e.BelowZ2Percent = activity.Measured(below)
	}

	maf := units.SplitZones(samples, n.maf())
	if in, ok := units.Percent(maf.In, maf.Total, 1); ok {
		e.MAFZonePercent = activity.Measured(in)
	}
}

func (n Normalizer) zone2() units.Band {
	if n.Zone2 == (units.Band{}) {
		return DefaultZone2
	}
	return n.Zone2
}

func (n Normalizer) maf() units.Band {
	if n.MAF == (units.Band{}) {
		return DefaultMAF
	}
	return n.MAF
}
