// Package units holds the small numeric conversions shared by ingestion,
// manual logging and weekly aggregation: clock strings, pace, week starts and
// heart-rate zone splits.
package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrMalformedClock is returned when a clock string is not H:MM:SS or M:SS.
var ErrMalformedClock = errors.New("malformed clock value")

// ParseClock parses "HH:MM:SS" (hours may exceed two digits) or the legacy
// "M:SS" pace form into a duration.
func ParseClock(value string) (time.Duration, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedClock, value)
	}

	nums := make([]int, len(parts))
	for i, p := range parts {
		if p == "" {
			return 0, fmt.Errorf("%w: %q", ErrMalformedClock, value)
		}
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q", ErrMalformedClock, value)
		}
		nums[i] = n
	}

	var hours, minutes, seconds int
	if len(nums) == 3 {
		hours, minutes, seconds = nums[0], nums[1], nums[2]
		if minutes >= 60 {
			return 0, fmt.Errorf("%w: %q", ErrMalformedClock, value)
		}
	} else {
		minutes, seconds = nums[0], nums[1]
	}
	if seconds >= 60 {
		return 0, fmt.Errorf("%w: %q", ErrMalformedClock, value)
	}

	total := hours*3600 + minutes*60 + seconds
	return time.Duration(total) * time.Second, nil
}

// FormatClock renders d as HH:MM:SS, dropping sub-second precision.
// Negative durations render as 00:00:00.
func FormatClock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	hours := total / 3600
	minutes := (total % 3600) / 60
	seconds := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
}

// ParsePace parses a per-kilometre pace string.
func ParsePace(value string) (time.Duration, error) {
	return ParseClock(value)
}

// FormatPace renders a pace rounded to the nearest second.
func FormatPace(d time.Duration) string {
	return FormatClock(d.Round(time.Second))
}

// PacePerKM divides duration by distance and truncates the result to whole
// seconds. ok is false when distance or duration is not positive.
func PacePerKM(duration time.Duration, distanceKM float64) (pace time.Duration, ok bool) {
	if distanceKM <= 0 || duration <= 0 || math.IsNaN(distanceKM) || math.IsInf(distanceKM, 0) {
		return 0, false
	}
	perKM := time.Duration(float64(duration) / distanceKM)
	return perKM.Truncate(time.Second), true
}

// WeekStart returns midnight of the Monday of t's ISO week, in t's location.
func WeekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	y, m, d := t.Date()
	return time.Date(y, m, d-offset, 0, 0, 0, 0, t.Location())
}

// Round rounds v to the given number of decimal places, halves away from zero.
func Round(v float64, places int) float64 {
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}

// Band is an inclusive heart-rate range in beats per minute.
type Band struct {
	Min float64
	Max float64
}

func (b Band) Validate() error {
	if b.Min <= 0 || b.Max <= 0 {
		return fmt.Errorf("heart-rate band bounds must be positive: [%v,%v]", b.Min, b.Max)
	}
	if b.Min > b.Max {
		return fmt.Errorf("heart-rate band min %v exceeds max %v", b.Min, b.Max)
	}
	return nil
}

func (b Band) String() string {
	return fmt.Sprintf("[%g,%g]", b.Min, b.Max)
}

// ZoneSplit counts samples below, inside and above a band. Total includes
// samples that carried no heart rate, so the three buckets may not sum to it.
type ZoneSplit struct {
	Below int
	In    int
	Above int
	Total int
}

// SplitZones classifies heart-rate samples against band. NaN marks a sample
// with no reading.
func SplitZones(samples []float64, band Band) ZoneSplit {
	split := ZoneSplit{Total: len(samples)}
	for _, hr := range samples {
		switch {
		case math.IsNaN(hr):
		case hr < band.Min:
			split.Below++
		case hr > band.Max:
			split.Above++
		default:
			split.In++
		}
	}
	return split
}

// Percent returns count/total*100 rounded to places. ok is false when total
// is zero.
func Percent(count, total, places int) (float64, bool) {
	if total <= 0 {
		return 0, false
	}
	return Round(float64(count)/float64(total)*100, places), true
}
