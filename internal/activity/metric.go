package activity

import (
	"strconv"
	"strings"
	"time"

	"trainlog/internal/units"
)

// NotAvailable is the storage-boundary spelling of an unknown value.
const NotAvailable = "N/A"

// Metric is a numeric field that was either measured or is unavailable.
// The zero value is Unavailable.
type Metric struct {
	value float64
	ok    bool
}

// Measured wraps a known value.
func Measured(v float64) Metric {
	return Metric{value: v, ok: true}
}

// Unavailable is the unknown Metric.
var Unavailable = Metric{}

// Value returns the measured value and whether it exists.
func (m Metric) Value() (float64, bool) {
	return m.value, m.ok
}

func (m Metric) Valid() bool {
	return m.ok
}

// Format renders the metric with a fixed number of decimals, or "N/A".
func (m Metric) Format(places int) string {
	if !m.ok {
		return NotAvailable
	}
	return strconv.FormatFloat(m.value, 'f', places, 64)
}

// ParseMetric reads a stored cell. Blank cells and "N/A" become Unavailable;
// anything else that is not a number is reported as !ok.
func ParseMetric(cell string) (Metric, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, NotAvailable) {
		return Unavailable, true
	}
	cell = strings.TrimSuffix(cell, "%")
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return Unavailable, false
	}
	return Measured(v), true
}

// Span is a clock-style duration (workout duration or pace) that may be
// unavailable.
type Span struct {
	d  time.Duration
	ok bool
}

func MeasuredSpan(d time.Duration) Span {
	return Span{d: d, ok: true}
}

// UnavailableSpan is the unknown Span.
var UnavailableSpan = Span{}

func (s Span) Value() (time.Duration, bool) {
	return s.d, s.ok
}

func (s Span) Valid() bool {
	return s.ok
}

// Format renders HH:MM:SS or "N/A".
func (s Span) Format() string {
	if !s.ok {
		return NotAvailable
	}
	return units.FormatClock(s.d)
}

// ParseSpan reads a stored clock cell. Blank and "N/A" are Unavailable.
func ParseSpan(cell string) (Span, bool) {
	cell = strings.TrimSpace(cell)
	if cell == "" || strings.EqualFold(cell, NotAvailable) {
		return UnavailableSpan, true
	}
	d, err := units.ParseClock(cell)
	if err != nil {
		return UnavailableSpan, false
	}
	return MeasuredSpan(d), true
}
