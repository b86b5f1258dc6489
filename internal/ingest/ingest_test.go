package ingest

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"trainlog/internal/activity"
	"trainlog/internal/storage"
	"trainlog/internal/units"
	"trainlog/internal/weekly"
	"trainlog/internal/workbook"
)

func millis(t time.Time) *int64 {
	ms := t.UnixMilli()
	return &ms
}

func float(v float64) *float64 {
	return &v
}

func rawAt(id string, t time.Time, kind string) activity.Raw {
	return activity.Raw{ItemID: id, StartMillis: millis(t), Classification: kind}
}

func TestFilterNewAdmitsStrictlyNewer(t *testing.T) {
	raws := []activity.Raw{
		rawAt("next-day", time.Date(2024, 6, 2, 6, 0, 0, 0, time.UTC), "Running"),
		rawAt("earlier", time.Date(2024, 6, 1, 6, 59, 59, 0, time.UTC), "Running"),
		rawAt("later", time.Date(2024, 6, 1, 7, 0, 1, 0, time.UTC), "Running"),
		rawAt("same", time.Date(2024, 6, 1, 7, 0, 0, 400_000_000, time.UTC), "Running"),
	}
	latest := activity.Key{Date: "2024-06-01", Timestamp: "07:00:00"}

	admitted := FilterNew(raws, &latest, time.UTC)
	require.Len(t, admitted, 2)
	require.Equal(t, "later", admitted[0].ItemID)
	require.Equal(t, "next-day", admitted[1].ItemID)
}

func TestFilterNewExcludesGenericAndUndated(t *testing.T) {
	recent := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	raws := []activity.Raw{
		rawAt("generic", recent, "GENERIC"),
		{ItemID: "generic-activity", StartMillis: millis(recent), Classification: "Other", Activity: "Generic"},
		{ItemID: "undated", Classification: "Running"},
		rawAt("run", recent, "Running"),
	}

	admitted, stats := filterNew(raws, nil, time.UTC)
	require.Len(t, admitted, 1)
	require.Equal(t, "run", admitted[0].ItemID)
	require.Equal(t, FilterStats{Undated: 1, Generic: 2}, stats)
}

func TestNormalizeZones(t *testing.T) {
	n := Normalizer{Zone2: units.Band{Min: 123, Max: 133}, MAF: units.Band{Min: 128, Max: 138}, Location: time.UTC}
	raw := activity.Raw{
		ItemID:       "i-1",
		Source:       "Garmin",
		StartMillis:  millis(time.Date(2024, 6, 1, 7, 30, 15, 0, time.UTC)),
		DurationSec:  float(1800),
		DistanceKM:   float(5.2),
		AvgHeartRate: float(131),
		Activity:     "Running",
		GPS: &activity.GPS{Laps: []activity.Lap{
			{MaxHeart: 150, HeartRates: []float64{110, 125, 130, 140, 150}},
			{MaxHeart: 161},
		}},
	}

	e, err := n.Normalize(raw)
	require.NoError(t, err)
	require.Equal(t, activity.Key{Date: "2024-06-01", Timestamp: "07:30:15"}, e.Key())
	require.Equal(t, "Running", e.ExerciseType)

	fields := activity.Codec{}.Encode(e)
	require.Equal(t, "40.00", fields[activity.ColZ2Percent])
	require.Equal(t, "20.00", fields[activity.ColBelowZ2Percent])
	require.Equal(t, "40.00", fields[activity.ColAboveZ2Percent])
	require.Equal(t, "20.0", fields[activity.ColMAFZonePercent])
	require.Equal(t, "161", fields[activity.ColMaxHR])
	require.Equal(t, "131", fields[activity.ColAvgHR])
	require.Equal(t, "00:30:00", fields[activity.ColDuration])
	require.Equal(t, "5.20", fields[activity.ColDistance])
	require.Equal(t, "00:05:46", fields[activity.ColPace])
	require.Equal(t, "false", fields[activity.ColIncomplete])
	require.Equal(t, "Garmin", fields[activity.ColSource])
}

func TestNormalizeMissingSamplesCountInTotal(t *testing.T) {
	raw := activity.Raw{
		StartMillis: millis(time.Date(2024, 6, 1, 7, 0, 0, 0, time.UTC)),
		GPS:         &activity.GPS{Laps: []activity.Lap{{HeartRates: []float64{120, math.NaN(), 130, 130}}}},
	}
	e, err := Normalizer{}.Normalize(raw)
	require.NoError(t, err)

	z2, _ := e.Z2Percent.Value()
	below, _ := e.BelowZ2Percent.Value()
	require.Equal(t, 50.0, z2)
	require.Equal(t, 25.0, below)
	require.False(t, e.MaxHR.Valid())
}

func TestNormalizeIncompleteAndUnavailable(t *testing.T) {
	raw := activity.Raw{ItemID: "x", Classification: "Strength"}
	e, err := Normalizer{}.Normalize(raw)
	require.ErrorIs(t, err, ErrMissingTimestamp)
	require.True(t, e.Incomplete)
	require.Equal(t, IncompleteNote, e.Notes)

	fields := activity.Codec{}.Encode(e)
	require.Equal(t, activity.NotAvailable, fields[activity.ColDate])
	require.Equal(t, activity.NotAvailable, fields[activity.ColDuration])
	require.Equal(t, "0.00", fields[activity.ColDistance])
	require.Equal(t, activity.NotAvailable, fields[activity.ColPace])
	require.Equal(t, activity.NotAvailable, fields[activity.ColZ2Percent])
	require.Equal(t, activity.NotAvailable, fields[activity.ColMAFZonePercent])
	require.Equal(t, activity.NotAvailable, fields[activity.ColMaxHR])
}

func newPipeline(t *testing.T, fetch FetcherFunc) (*Pipeline, *workbook.Book) {
	t.Helper()
	table, err := storage.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = table.Close() })
	require.NoError(t, table.InitSchema(context.Background()))

	book := workbook.New(table, time.UTC)
	return &Pipeline{
		Provider: "test",
		Fetcher:  fetch,
		Book:     book,
		Weekly:   &weekly.Aggregator{Book: book},
		Source:   "FitnessSyncer",
	}, book
}

func TestSyncIsIdempotent(t *testing.T) {
	ctx := context.Background()
	raws := []activity.Raw{
		{
			ItemID: "a", StartMillis: millis(time.Date(2024, 6, 3, 7, 0, 0, 0, time.UTC)),
			DurationSec: float(1800), DistanceKM: float(5), Activity: "Running",
			GPS: &activity.GPS{Laps: []activity.Lap{{HeartRates: []float64{125, 130}}}},
		},
		{ItemID: "b", StartMillis: millis(time.Date(2024, 6, 4, 7, 0, 0, 0, time.UTC)), Classification: "Generic"},
		{ItemID: "c", StartMillis: millis(time.Date(2024, 6, 2, 7, 0, 0, 0, time.UTC)), Activity: "Strength", Source: "Garmin"},
	}
	p, book := newPipeline(t, func(context.Context) ([]activity.Raw, error) { return raws, nil })

	res, err := p.Sync(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, res.NewActivities)
	require.Equal(t, 3, res.Fetched)
	require.NotEmpty(t, res.RunID)

	entries, err := book.Activities(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.Equal(t, "c", entries[0].ItemID)
	require.Equal(t, "Garmin", entries[0].Source)
	require.Equal(t, "a", entries[1].ItemID)
	require.Equal(t, "FitnessSyncer", entries[1].Source)

	metrics, err := book.ProgressMetrics(ctx)
	require.NoError(t, err)
	require.Len(t, metrics, 2)

	res, err = p.Sync(ctx)
	require.NoError(t, err)
	require.Zero(t, res.NewActivities)
	require.Equal(t, 2, res.Skipped.Stale)

	entries, err = book.Activities(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)
}

func TestSyncFetchErrorWritesNothing(t *testing.T) {
	boom := errors.New("provider down")
	p, book := newPipeline(t, func(context.Context) ([]activity.Raw, error) { return nil, boom })

	_, err := p.Sync(context.Background())
	require.ErrorIs(t, err, boom)

	entries, err := book.Activities(context.Background())
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSyncSurvivesCancelledFirstCaller(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var runErr error
	raws := []activity.Raw{{
		ItemID: "a", StartMillis: millis(time.Date(2024, 6, 3, 7, 0, 0, 0, time.UTC)),
		DurationSec: float(1800), DistanceKM: float(5), Activity: "Running",
	}}
	p, book := newPipeline(t, func(ctx context.Context) ([]activity.Raw, error) {
		once.Do(func() { close(started) })
		<-release
		runErr = ctx.Err()
		return raws, nil
	})

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := p.Sync(firstCtx)
		firstDone <- err
	}()
	<-started

	type outcome struct {
		res Result
		err error
	}
	secondDone := make(chan outcome, 1)
	go func() {
		res, err := p.Sync(context.Background())
		secondDone <- outcome{res, err}
	}()

	cancelFirst()
	require.ErrorIs(t, <-firstDone, context.Canceled)

	// Give the second caller time to join before the fetch returns.
	time.Sleep(20 * time.Millisecond)
	close(release)

	second := <-secondDone
	require.NoError(t, second.err)
	require.NoError(t, runErr)
	require.Equal(t, 1, second.res.NewActivities)

	entries, err := book.Activities(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)
}
