package activity

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCodecRoundTripsThroughShuffledHeader(t *testing.T) {
	loc := time.UTC
	entry := Entry{
		StartedAt:      time.Date(2024, 6, 1, 7, 0, 0, 0, loc),
		ExerciseType:   "Run",
		Duration:       MeasuredSpan(45 * time.Minute),
		DistanceKM:     Measured(8.2),
		AvgHR:          Measured(131),
		MaxHR:          Unavailable,
		Z2Percent:      Measured(40),
		AboveZ2Percent: Measured(40),
		BelowZ2Percent: Measured(20),
		MAFZonePercent: Measured(55.5),
		Pace:           MeasuredSpan(5*time.Minute + 29*time.Second),
		Notes:          "easy",
		ItemID:         "item-1",
		Source:         "Garmin",
	}

	codec := Codec{Location: loc}
	fields := codec.Encode(entry)
	require.Equal(t, "2024-06-01", fields[ColDate])
	require.Equal(t, "07:00:00", fields[ColTimestamp])
	require.Equal(t, "8.20", fields[ColDistance])
	require.Equal(t, "N/A", fields[ColMaxHR])
	require.Equal(t, "40.00", fields[ColZ2Percent])
	require.Equal(t, "55.5", fields[ColMAFZonePercent])
	require.Equal(t, "00:05:29", fields[ColPace])
	require.Equal(t, "false", fields[ColIncomplete])

	// A legacy header without maf_zone_percent and with columns moved around.
	layout := NewLayout([]string{"source", "date", "timestamp", "pace", "exercise_type", "z2_percent", "above_z2_percent", "below_z2_percent", "duration", "extra"})
	row := layout.Row(fields)
	require.Equal(t, "Garmin", row[0])
	require.Equal(t, "", row[9])

	decoded, coerced := codec.Decode(layout.Fields(row))
	require.Empty(t, coerced)
	require.Equal(t, entry.StartedAt, decoded.StartedAt)
	require.Equal(t, entry.Pace, decoded.Pace)
	require.Equal(t, entry.Z2Percent, decoded.Z2Percent)
	require.False(t, decoded.MAFZonePercent.Valid())
	require.Equal(t, entry.Key(), decoded.Key())
}

func TestCodecCoercesMalformedCells(t *testing.T) {
	codec := Codec{}
	entry, coerced := codec.Decode(Fields{
		ColDate:      "2024-06-01",
		ColTimestamp: "07:00:00",
		ColPace:      "fast",
		ColAvgHR:     "N/A",
		ColDistance:  "5.00",
		ColZ2Percent: "abc",
	})
	require.ElementsMatch(t, []string{ColPace, ColZ2Percent}, coerced)
	require.False(t, entry.Pace.Valid())
	require.False(t, entry.AvgHR.Valid())
	require.False(t, entry.Z2Percent.Valid())
	km, ok := entry.DistanceKM.Value()
	require.True(t, ok)
	require.Equal(t, 5.0, km)
}

func TestUnknownStartRendersNotAvailable(t *testing.T) {
	fields := Codec{}.Encode(Entry{ExerciseType: "Run"})
	require.Equal(t, NotAvailable, fields[ColDate])
	require.Equal(t, NotAvailable, fields[ColTimestamp])
	require.Equal(t, "0.00", fields[ColDistance])
	require.Equal(t, NotAvailable, fields[ColPace])
}

func TestLayoutAcceptsLegacyAliases(t *testing.T) {
	layout := NewLayout([]string{"Date", "timestamp", "mafZonePercent", "ItemId"})
	require.True(t, layout.Has(ColDate))
	require.True(t, layout.Has(ColMAFZonePercent))
	require.True(t, layout.Has(ColItemID))
}

func TestRawExerciseTypeResolution(t *testing.T) {
	require.Equal(t, "Running", Raw{Classification: "Running", Activity: "Run"}.ExerciseType())
	require.Equal(t, "Run", Raw{Classification: "Other", Activity: "Run"}.ExerciseType())
	require.Equal(t, "Cycling", Raw{GPS: &GPS{Sport: "Cycling"}}.ExerciseType())
	require.Equal(t, "Unknown", Raw{}.ExerciseType())
	require.True(t, Raw{Activity: "GENERIC"}.IsGeneric())
}

func TestManualEntryValidation(t *testing.T) {
	var m ManualEntry
	body := `{"date":"2024-06-03","timestamp":"06:30:00","exercise_type":"Run","duration":"00:40:00",
		"distance":"8","avg_hr":130,"z2_percent":"60","above_z2_percent":30,"below_z2_percent":10,"maf_zone_percent":""}`
	require.NoError(t, json.Unmarshal([]byte(body), &m))
	require.NoError(t, m.Validate())

	entry, err := m.Entry(time.UTC)
	require.NoError(t, err)
	require.Equal(t, "Manual", entry.Source)
	require.Equal(t, "00:05:00", entry.Pace.Format())
	require.False(t, entry.MAFZonePercent.Valid())

	cases := map[string]ManualEntry{
		"missing":      {Date: "2024-06-03"},
		"duration":     {Date: "2024-06-03", Timestamp: "06:30:00", ExerciseType: "Run", Duration: "40:00"},
		"pace":         {Date: "2024-06-03", Timestamp: "06:30:00", ExerciseType: "Run", Duration: "00:40:00", Pace: "5:00"},
		"percent":      {Date: "2024-06-03", Timestamp: "06:30:00", ExerciseType: "Run", Duration: "00:40:00", MAFZonePercent: Number{Value: 120, Set: true}},
		"partial zone": {Date: "2024-06-03", Timestamp: "06:30:00", ExerciseType: "Run", Duration: "00:40:00", Z2Percent: Number{Value: 50, Set: true}},
		"zone sum": {Date: "2024-06-03", Timestamp: "06:30:00", ExerciseType: "Run", Duration: "00:40:00",
			Z2Percent: Number{Value: 50, Set: true}, AboveZ2Percent: Number{Value: 30, Set: true}, BelowZ2Percent: Number{Value: 30, Set: true}},
	}
	for name, c := range cases {
		err := c.Validate()
		var verr *ValidationError
		require.True(t, errors.As(err, &verr), name)
	}
}

func TestNumberRejectsGarbage(t *testing.T) {
	var m ManualEntry
	err := json.Unmarshal([]byte(`{"distance":"far"}`), &m)
	require.Error(t, err)
}
