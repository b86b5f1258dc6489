// Package workbook gives typed access to the regions of the training
// workbook: the activity log, the training plan, weekly progress metrics,
// provider token configuration and the cached provider data sources.
package workbook

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"trainlog/internal/activity"
	"trainlog/internal/logging"
	"trainlog/internal/storage"
)

const (
	RegionActivityLog     = "ActivityLog"
	RegionTrainingPlan    = "TrainingPlan"
	RegionProgressMetrics = "ProgressMetrics"
	RegionConfig          = "Config"
	RegionStravaConfig    = "StravaConfig"
	RegionDataSources     = "FitnessSyncerDataSources"
)

var (
	ErrNotFound      = errors.New("entry not found")
	ErrBrokenHeader  = errors.New("activity log header is missing date or timestamp")
	ErrNoDataSources = errors.New("no data sources saved")
)

// Book reads and writes workbook regions through a storage.Table.
type Book struct {
	table  storage.Table
	codec  activity.Codec
	Logger *log.Logger
}

// New returns a Book that interprets dates and times in loc.
func New(table storage.Table, loc *time.Location) *Book {
	if loc == nil {
		loc = time.UTC
	}
	return &Book{table: table, codec: activity.Codec{Location: loc}}
}

// Location is the reporting time zone used for date and timestamp cells.
func (b *Book) Location() *time.Location {
	return b.codec.Location
}

type logRow struct {
	index int
	cells []string
	entry activity.Entry
}

type activityLog struct {
	layout activity.Layout
	rows   []logRow
	empty  bool
}

func (b *Book) readLog(ctx context.Context) (activityLog, error) {
	rows, err := b.table.Get(ctx, RegionActivityLog)
	if err != nil {
		return activityLog{}, err
	}
	if len(rows) == 0 || blank(rows[0]) {
		return activityLog{layout: activity.DefaultLayout(), empty: true}, nil
	}

	out := activityLog{layout: activity.NewLayout(rows[0])}
	if !out.layout.Has(activity.ColDate) || !out.layout.Has(activity.ColTimestamp) {
		return activityLog{}, ErrBrokenHeader
	}

	seen := make(map[activity.Key]struct{}, len(rows))
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}
		entry, coerced := b.codec.Decode(out.layout.Fields(row))
		if len(coerced) > 0 {
			b.logger().Debug("activity row coerced", "row", i+1, "columns", strings.Join(coerced, ","))
		}
		if !entry.StartedAt.IsZero() {
			key := entry.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
		}
		out.rows = append(out.rows, logRow{index: i + 1, cells: row, entry: entry})
	}
	return out, nil
}

// Activities returns the activity log in stored order. Repeated
// (date, timestamp) keys are collapsed to their first occurrence.
func (b *Book) Activities(ctx context.Context) ([]activity.Entry, error) {
	l, err := b.readLog(ctx)
	if err != nil {
		return nil, fmt.Errorf("read activity log: %w", err)
	}
	entries := make([]activity.Entry, 0, len(l.rows))
	for _, r := range l.rows {
		entries = append(entries, r.entry)
	}
	return entries, nil
}

// ActivitiesBetween returns entries dated within [from, to], compared by
// calendar date. A zero bound is open. Entries without a date are dropped.
func (b *Book) ActivitiesBetween(ctx context.Context, from, to time.Time) ([]activity.Entry, error) {
	entries, err := b.Activities(ctx)
	if err != nil {
		return nil, err
	}
	var lo, hi string
	if !from.IsZero() {
		lo = from.In(b.Location()).Format(activity.DateLayout)
	}
	if !to.IsZero() {
		hi = to.In(b.Location()).Format(activity.DateLayout)
	}

	out := entries[:0]
	for _, e := range entries {
		if e.StartedAt.IsZero() {
			continue
		}
		date := e.Key().Date
		if lo != "" && date < lo {
			continue
		}
		if hi != "" && date > hi {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// MostRecentActivity returns the key with the greatest start time. It does
// not rely on row order. ok is false for an empty log.
func (b *Book) MostRecentActivity(ctx context.Context) (activity.Key, bool, error) {
	l, err := b.readLog(ctx)
	if err != nil {
		return activity.Key{}, false, fmt.Errorf("read activity log: %w", err)
	}
	var latest time.Time
	for _, r := range l.rows {
		if r.entry.StartedAt.After(latest) {
			latest = r.entry.StartedAt
		}
	}
	if latest.IsZero() {
		return activity.Key{}, false, nil
	}
	return activity.Entry{StartedAt: latest}.Key(), true, nil
}

// AppendActivities writes entries to the end of the log, laid out to match
// the stored header. An empty log gets the canonical header first.
func (b *Book) AppendActivities(ctx context.Context, entries []activity.Entry) error {
	if len(entries) == 0 {
		return nil
	}
	rows, err := b.table.Get(ctx, RegionActivityLog)
	if err != nil {
		return fmt.Errorf("read activity log header: %w", err)
	}

	var layout activity.Layout
	switch {
	case len(rows) == 0:
		layout = activity.DefaultLayout()
		if err := b.table.Append(ctx, RegionActivityLog, [][]string{layout.Header()}); err != nil {
			return fmt.Errorf("write activity log header: %w", err)
		}
	case blank(rows[0]):
		layout = activity.DefaultLayout()
		if err := b.table.Update(ctx, RegionActivityLog, 0, [][]string{layout.Header()}); err != nil {
			return fmt.Errorf("write activity log header: %w", err)
		}
	default:
		layout = activity.NewLayout(rows[0])
		if !layout.Has(activity.ColDate) || !layout.Has(activity.ColTimestamp) {
			return ErrBrokenHeader
		}
	}

	out := make([][]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, layout.Row(b.codec.Encode(e)))
	}
	if err := b.table.Append(ctx, RegionActivityLog, out); err != nil {
		return fmt.Errorf("append activities: %w", err)
	}
	return nil
}

// UpdateActivity overwrites the patched fields of the entry stored under
// key. Other cells of the row are left as stored.
func (b *Book) UpdateActivity(ctx context.Context, key activity.Key, patch activity.EntryPatch) (activity.Entry, error) {
	l, err := b.readLog(ctx)
	if err != nil {
		return activity.Entry{}, fmt.Errorf("read activity log: %w", err)
	}
	for _, r := range l.rows {
		if r.entry.StartedAt.IsZero() || r.entry.Key() != key {
			continue
		}
		updated := patch.Apply(r.entry)
		if patch.Empty() {
			return updated, nil
		}

		cells := make([]string, len(l.layout.Header()))
		copy(cells, r.cells)
		if patch.ExerciseType != nil {
			if i, ok := l.layout.Index(activity.ColExerciseType); ok {
				cells[i] = updated.ExerciseType
			}
		}
		if patch.Notes != nil {
			if i, ok := l.layout.Index(activity.ColNotes); ok {
				cells[i] = updated.Notes
			}
		}
		if err := b.table.Update(ctx, RegionActivityLog, r.index, [][]string{cells}); err != nil {
			return activity.Entry{}, fmt.Errorf("update activity %s: %w", key, err)
		}
		return updated, nil
	}
	return activity.Entry{}, fmt.Errorf("%w: %s", ErrNotFound, key)
}

// Encode renders entries as named fields for callers that expose them.
func (b *Book) Encode(entries []activity.Entry) []activity.Fields {
	out := make([]activity.Fields, 0, len(entries))
	for _, e := range entries {
		out = append(out, b.codec.Encode(e))
	}
	return out
}

func (b *Book) logger() *log.Logger {
	return logging.OrDefault(b.Logger)
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func cell(row []string, i int) string {
	if i < len(row) {
		return strings.TrimSpace(row[i])
	}
	return ""
}

func sortByDate[T any](items []T, date func(T) string, desc bool) {
	sort.SliceStable(items, func(i, j int) bool {
		if desc {
			return date(items[i]) > date(items[j])
		}
		return date(items[i]) < date(items[j])
	})
}
