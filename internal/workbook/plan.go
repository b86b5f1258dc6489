package workbook

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"trainlog/internal/activity"
)

// TrainingPlan returns planned sessions dated within [from, to], sorted by
// date. Zero bounds are open. Rows with an unparsable date are dropped.
// Columns: date, exercise_type, duration_planned_min, duration_planned_max,
// notes.
func (b *Book) TrainingPlan(ctx context.Context, from, to time.Time) ([]activity.PlanEntry, error) {
	rows, err := b.table.Get(ctx, RegionTrainingPlan)
	if err != nil {
		return nil, fmt.Errorf("read training plan: %w", err)
	}
	if len(rows) <= 1 {
		return nil, nil
	}

	loc := b.Location()
	var plan []activity.PlanEntry
	for _, row := range rows[1:] {
		date, err := time.ParseInLocation(activity.DateLayout, cell(row, 0), loc)
		if err != nil {
			continue
		}
		if !from.IsZero() && date.Before(dayOf(from, loc)) {
			continue
		}
		if !to.IsZero() && date.After(dayOf(to, loc)) {
			continue
		}

		entry := activity.PlanEntry{
			Date:         date,
			ExerciseType: cell(row, 1),
			Notes:        cell(row, 4),
		}
		if v, err := strconv.Atoi(cell(row, 2)); err == nil {
			entry.DurationPlannedMin = v
		}
		if v, err := strconv.Atoi(cell(row, 3)); err == nil {
			entry.DurationPlannedMax = &v
		}
		plan = append(plan, entry)
	}

	sortByDate(plan, func(p activity.PlanEntry) string { return p.Date.Format(activity.DateLayout) }, false)
	return plan, nil
}

func dayOf(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}
