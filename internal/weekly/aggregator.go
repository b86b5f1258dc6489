// Package weekly computes per-week running aggregates from the activity log
// and writes them to the progress metrics region.
package weekly

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/log"

	"trainlog/internal/activity"
	"trainlog/internal/logging"
	"trainlog/internal/observability"
	"trainlog/internal/units"
	"trainlog/internal/workbook"
)

const (
	MessageRecomputed = "Weekly metrics recalculated and updated."
	MessageNoRuns     = "no valid runs for week"
)

// Week is the aggregate of one Monday-started week.
type Week struct {
	WeekStart string  `json:"weekStart"`
	Z2Average float64 `json:"z2Average"`
	Pace      string  `json:"pace"`
	Runs      int     `json:"runs"`
}

// Summary describes what a recompute wrote.
type Summary struct {
	Message string `json:"message"`
	Weeks   []Week `json:"weeks"`
}

type Aggregator struct {
	Book   *workbook.Book
	Logger *log.Logger
}

// RecomputeAll rebuilds the whole progress metrics region. Weeks without a
// valid run are left out. The z2 average is rounded to a whole percent.
func (a *Aggregator) RecomputeAll(ctx context.Context) (Summary, error) {
	entries, err := a.Book.Activities(ctx)
	if err != nil {
		return Summary{}, err
	}

	weeks := aggregate(entries, 0)
	metrics := make([]activity.ProgressMetric, 0, 2*len(weeks))
	for _, w := range weeks {
		metrics = append(metrics, w.metrics(0)...)
	}
	if err := a.Book.ReplaceProgressMetrics(ctx, metrics); err != nil {
		return Summary{}, err
	}
	observability.RecordWeeksWritten(len(weeks))
	logging.OrDefault(a.Logger).Info("weekly metrics recomputed", "weeks", len(weeks))
	return Summary{Message: MessageRecomputed, Weeks: weeks}, nil
}

// RecomputeWeek refreshes the two metric rows of the week containing date,
// updating them in place or appending them. The z2 average is rounded to one
// decimal. A week without a valid run writes nothing.
func (a *Aggregator) RecomputeWeek(ctx context.Context, date time.Time) (Summary, error) {
	loc := a.Book.Location()
	target := units.WeekStart(date.In(loc)).Format(activity.DateLayout)

	entries, err := a.Book.Activities(ctx)
	if err != nil {
		return Summary{}, err
	}
	var inWeek []activity.Entry
	for _, e := range entries {
		if !e.StartedAt.IsZero() && units.WeekStart(e.StartedAt.In(loc)).Format(activity.DateLayout) == target {
			inWeek = append(inWeek, e)
		}
	}

	weeks := aggregate(inWeek, 1)
	if len(weeks) == 0 {
		return Summary{Message: MessageNoRuns}, nil
	}
	week := weeks[0]
	updated, appended, err := a.Book.UpsertWeekMetrics(ctx, week.metrics(1))
	if err != nil {
		return Summary{}, err
	}
	observability.RecordWeeksWritten(1)
	logging.OrDefault(a.Logger).Info("weekly metrics updated",
		"week_start", week.WeekStart, "updated", updated, "appended", appended)
	return Summary{
		Message: fmt.Sprintf("Weekly metrics updated for week starting %s.", week.WeekStart),
		Weeks:   weeks,
	}, nil
}

type bucket struct {
	z2Sum   float64
	paceSum float64
	runs    int
}

// aggregate groups valid runs by week start and returns weeks in ascending
// order.
func aggregate(entries []activity.Entry, z2Places int) []Week {
	buckets := make(map[string]*bucket)
	for _, e := range entries {
		if e.StartedAt.IsZero() || !e.IsRun() {
			continue
		}
		z2, ok := e.Z2Percent.Value()
		if !ok {
			continue
		}
		pace, ok := e.Pace.Value()
		if !ok {
			continue
		}
		key := units.WeekStart(e.StartedAt).Format(activity.DateLayout)
		b := buckets[key]
		if b == nil {
			b = &bucket{}
			buckets[key] = b
		}
		b.z2Sum += z2
		b.paceSum += pace.Seconds()
		b.runs++
	}

	weeks := make([]Week, 0, len(buckets))
	for start, b := range buckets {
		meanPace := time.Duration(b.paceSum / float64(b.runs) * float64(time.Second))
		weeks = append(weeks, Week{
			WeekStart: start,
			Z2Average: units.Round(b.z2Sum/float64(b.runs), z2Places),
			Pace:      units.FormatPace(meanPace),
			Runs:      b.runs,
		})
	}
	sort.Slice(weeks, func(i, j int) bool { return weeks[i].WeekStart < weeks[j].WeekStart })
	return weeks
}

func (w Week) metrics(z2Places int) []activity.ProgressMetric {
	return []activity.ProgressMetric{
		{WeekStart: w.WeekStart, Type: activity.MetricWeeklyZ2Average, Value: strconv.FormatFloat(units.Round(w.Z2Average, z2Places), 'f', -1, 64)},
		{WeekStart: w.WeekStart, Type: activity.MetricWeeklyPace, Value: w.Pace},
	}
}
