package activity

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"trainlog/internal/units"
)

// ValidationError reports a manual entry field that failed validation.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Number is an optional numeric form value. It accepts JSON numbers, numeric
// strings, empty strings and null.
type Number struct {
	Value float64
	Set   bool
}

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = Number{}
		return nil
	}
	raw := string(data)
	if strings.HasPrefix(raw, `"`) {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" || strings.EqualFold(raw, NotAvailable) {
			*n = Number{}
			return nil
		}
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return &ValidationError{Message: fmt.Sprintf("%q is not a valid number", raw)}
	}
	*n = Number{Value: v, Set: true}
	return nil
}

func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Set {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

func (n Number) metric() Metric {
	if !n.Set {
		return Unavailable
	}
	return Measured(n.Value)
}

// ManualEntry is the body of the manual activity form.
type ManualEntry struct {
	Date           string `json:"date"`
	Timestamp      string `json:"timestamp"`
	ExerciseType   string `json:"exercise_type"`
	Duration       string `json:"duration"`
	Distance       Number `json:"distance"`
	AvgHR          Number `json:"avg_hr"`
	MaxHR          Number `json:"max_hr"`
	Z2Percent      Number `json:"z2_percent"`
	AboveZ2Percent Number `json:"above_z2_percent"`
	BelowZ2Percent Number `json:"below_z2_percent"`
	MAFZonePercent Number `json:"maf_zone_percent"`
	Pace           string `json:"pace"`
	Notes          string `json:"notes"`
	Source         string `json:"source"`
	ItemID         string `json:"itemId"`
}

// zoneSumTolerance absorbs two-decimal rounding across the three buckets.
const zoneSumTolerance = 0.5

// Validate checks the manual form rules: required fields, HH:MM:SS clocks,
// non-negative numbers, percentages within 0..100 and a zone triple that is
// either complete and sums to 100 or absent.
func (m ManualEntry) Validate() error {
	if strings.TrimSpace(m.Date) == "" || strings.TrimSpace(m.Timestamp) == "" ||
		strings.TrimSpace(m.ExerciseType) == "" || strings.TrimSpace(m.Duration) == "" {
		return &ValidationError{Message: "date, timestamp, exercise_type and duration are required"}
	}
	if _, err := time.Parse(DateLayout, m.Date); err != nil {
		return &ValidationError{Field: ColDate, Message: "must be YYYY-MM-DD"}
	}
	if _, err := time.Parse(TimeLayout, m.Timestamp); err != nil {
		return &ValidationError{Field: ColTimestamp, Message: "must be HH:MM:SS"}
	}
	if !isStrictClock(m.Duration) {
		return &ValidationError{Field: ColDuration, Message: "must be in HH:MM:SS format"}
	}
	if m.Pace != "" && !isStrictClock(m.Pace) {
		return &ValidationError{Field: ColPace, Message: "must be in HH:MM:SS format"}
	}

	for col, n := range map[string]Number{ColDistance: m.Distance, ColAvgHR: m.AvgHR, ColMaxHR: m.MaxHR} {
		if n.Set && n.Value < 0 {
			return &ValidationError{Field: col, Message: "must not be negative"}
		}
	}

	zones := []struct {
		col string
		n   Number
	}{
		{ColZ2Percent, m.Z2Percent},
		{ColAboveZ2Percent, m.AboveZ2Percent},
		{ColBelowZ2Percent, m.BelowZ2Percent},
		{ColMAFZonePercent, m.MAFZonePercent},
	}
	for _, z := range zones {
		if z.n.Set && (z.n.Value < 0 || z.n.Value > 100) {
			return &ValidationError{Field: z.col, Message: "percentages must be between 0 and 100"}
		}
	}

	set := 0
	for _, z := range zones[:3] {
		if z.n.Set {
			set++
		}
	}
	switch set {
	case 0:
	case 3:
		sum := m.Z2Percent.Value + m.AboveZ2Percent.Value + m.BelowZ2Percent.Value
		if math.Abs(sum-100) > zoneSumTolerance {
			return &ValidationError{Field: ColZ2Percent, Message: fmt.Sprintf("zone percentages must sum to 100, got %.2f", sum)}
		}
	default:
		return &ValidationError{Field: ColZ2Percent, Message: "z2, above and below percentages must be provided together"}
	}
	return nil
}

// Entry converts a validated form into a log entry in loc.
func (m ManualEntry) Entry(loc *time.Location) (Entry, error) {
	if err := m.Validate(); err != nil {
		return Entry{}, err
	}
	start, ok := (Key{Date: m.Date, Timestamp: m.Timestamp}).Time(loc)
	if !ok {
		return Entry{}, &ValidationError{Field: ColDate, Message: "invalid date or timestamp"}
	}
	duration, err := units.ParseClock(m.Duration)
	if err != nil {
		return Entry{}, &ValidationError{Field: ColDuration, Message: err.Error()}
	}

	e := Entry{
		StartedAt:      start,
		ExerciseType:   strings.TrimSpace(m.ExerciseType),
		Duration:       MeasuredSpan(duration),
		DistanceKM:     m.Distance.metric(),
		AvgHR:          m.AvgHR.metric(),
		MaxHR:          m.MaxHR.metric(),
		Z2Percent:      m.Z2Percent.metric(),
		AboveZ2Percent: m.AboveZ2Percent.metric(),
		BelowZ2Percent: m.BelowZ2Percent.metric(),
		MAFZonePercent: m.MAFZonePercent.metric(),
		Notes:          m.Notes,
		ItemID:         m.ItemID,
		Source:         m.Source,
	}
	if m.Pace != "" {
		pace, err := units.ParsePace(m.Pace)
		if err != nil {
			return Entry{}, &ValidationError{Field: ColPace, Message: err.Error()}
		}
		e.Pace = MeasuredSpan(pace)
	} else if km, ok := e.DistanceKM.Value(); ok {
		if pace, ok := units.PacePerKM(duration, km); ok {
			e.Pace = MeasuredSpan(pace)
		}
	}
	if e.Source == "" {
		e.Source = "Manual"
	}
	return e, nil
}

func isStrictClock(v string) bool {
	parts := strings.Split(v, ":")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if len(p) != 2 {
			return false
		}
	}
	_, err := units.ParseClock(v)
	return err == nil
}
