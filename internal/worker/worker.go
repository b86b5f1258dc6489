// Package worker runs provider syncs on a fixed interval.
package worker

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"trainlog/internal/ingest"
	"trainlog/internal/logging"
)

type Syncer interface {
	Sync(ctx context.Context) (ingest.Result, error)
}

// Job is one named sync the worker repeats.
type Job struct {
	Name   string
	Syncer Syncer
}

type Worker struct {
	Jobs     []Job
	Interval time.Duration
	Logger   *log.Logger
}

// RunOnce syncs every job in order and returns the number of new
// activities. A failing job is logged and does not stop the others; the
// first error is returned.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	var (
		added    int
		firstErr error
	)
	for _, job := range w.Jobs {
		if ctx.Err() != nil {
			return added, ctx.Err()
		}
		res, err := job.Syncer.Sync(ctx)
		if err != nil {
			w.logger().Error("scheduled sync failed", "job", job.Name, "err", err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		added += res.NewActivities
		w.logger().Debug("scheduled sync finished", "job", job.Name, "run", res.RunID, "new", res.NewActivities)
	}
	return added, firstErr
}

// Run calls RunOnce every Interval until ctx is done. A zero interval
// disables the loop.
func (w *Worker) Run(ctx context.Context) {
	if w.Interval <= 0 || len(w.Jobs) == 0 {
		return
	}
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = w.RunOnce(ctx)
		}
	}
}

func (w *Worker) logger() *log.Logger {
	return logging.OrDefault(w.Logger)
}
