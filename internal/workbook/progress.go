package workbook

import (
	"context"
	"fmt"

	"trainlog/internal/activity"
)

// ProgressHeader is the first row of the progress metrics region.
var ProgressHeader = []string{"Week Start", "Metric Type", "Value"}

// ProgressMetrics returns the weekly aggregates, newest week first.
func (b *Book) ProgressMetrics(ctx context.Context) ([]activity.ProgressMetric, error) {
	rows, err := b.table.Get(ctx, RegionProgressMetrics)
	if err != nil {
		return nil, fmt.Errorf("read progress metrics: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}
	metrics := make([]activity.ProgressMetric, 0, len(rows)-1)
	for _, row := range rows[1:] {
		if blank(row) {
			continue
		}
		metrics = append(metrics, activity.ProgressMetric{
			WeekStart: cell(row, 0),
			Type:      cell(row, 1),
			Value:     cell(row, 2),
		})
	}
	sortByDate(metrics, func(m activity.ProgressMetric) string { return m.WeekStart }, true)
	return metrics, nil
}

// ReplaceProgressMetrics clears the region and writes the header followed
// by metrics.
func (b *Book) ReplaceProgressMetrics(ctx context.Context, metrics []activity.ProgressMetric) error {
	if err := b.table.Clear(ctx, RegionProgressMetrics); err != nil {
		return fmt.Errorf("clear progress metrics: %w", err)
	}
	rows := make([][]string, 0, len(metrics)+1)
	rows = append(rows, append([]string(nil), ProgressHeader...))
	for _, m := range metrics {
		rows = append(rows, progressRow(m))
	}
	if err := b.table.Append(ctx, RegionProgressMetrics, rows); err != nil {
		return fmt.Errorf("write progress metrics: %w", err)
	}
	return nil
}

// UpsertWeekMetrics updates the rows matching each metric's week and type in
// place and appends the rest. It reports how many rows were updated and
// appended.
func (b *Book) UpsertWeekMetrics(ctx context.Context, metrics []activity.ProgressMetric) (updated, appended int, err error) {
	rows, err := b.table.Get(ctx, RegionProgressMetrics)
	if err != nil {
		return 0, 0, fmt.Errorf("read progress metrics: %w", err)
	}

	var pending [][]string
	if len(rows) == 0 {
		pending = append(pending, append([]string(nil), ProgressHeader...))
	}
	for _, m := range metrics {
		at := -1
		for i := 1; i < len(rows); i++ {
			if cell(rows[i], 0) == m.WeekStart && cell(rows[i], 1) == m.Type {
				at = i
				break
			}
		}
		if at < 0 {
			pending = append(pending, progressRow(m))
			appended++
			continue
		}
		if err := b.table.Update(ctx, RegionProgressMetrics, at, [][]string{progressRow(m)}); err != nil {
			return updated, 0, fmt.Errorf("update progress metric %s %s: %w", m.WeekStart, m.Type, err)
		}
		updated++
	}
	if len(pending) > 0 && appended > 0 {
		if err := b.table.Append(ctx, RegionProgressMetrics, pending); err != nil {
			return updated, 0, fmt.Errorf("append progress metrics: %w", err)
		}
	}
	return updated, appended, nil
}

func progressRow(m activity.ProgressMetric) []string {
	return []string{m.WeekStart, m.Type, m.Value}
}
