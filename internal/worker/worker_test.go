package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"trainlog/internal/ingest"
	"trainlog/internal/logging"
)

type fakeSyncer struct {
	calls atomic.Int32
	added int
	err   error
}

func (f *fakeSyncer) Sync(ctx context.Context) (ingest.Result, error) {
	f.calls.Add(1)
	if f.err != nil {
		return ingest.Result{}, f.err
	}
	return ingest.Result{RunID: "run", NewActivities: f.added}, nil
}

func TestRunOnceContinuesPastFailure(t *testing.T) {
	broken := &fakeSyncer{err: errors.New("provider down")}
	healthy := &fakeSyncer{added: 3}
	w := &Worker{
		Jobs:   []Job{{Name: "fitnesssyncer", Syncer: broken}, {Name: "strava", Syncer: healthy}},
		Logger: logging.Discard(),
	}

	added, err := w.RunOnce(context.Background())
	if err == nil || err.Error() != "provider down" {
		t.Fatalf("expected first error to be returned, got %v", err)
	}
	if added != 3 {
		t.Fatalf("expected 3 new activities, got %d", added)
	}
	if broken.calls.Load() != 1 || healthy.calls.Load() != 1 {
		t.Fatalf("expected each job to run once, got %d and %d", broken.calls.Load(), healthy.calls.Load())
	}
}

func TestRunRepeatsUntilCancelled(t *testing.T) {
	job := &fakeSyncer{added: 1}
	w := &Worker{Jobs: []Job{{Name: "strava", Syncer: job}}, Interval: 5 * time.Millisecond, Logger: logging.Discard()}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for job.calls.Load() < 2 {
		select {
		case <-deadline:
			t.Fatalf("expected at least two runs, got %d", job.calls.Load())
		case <-time.After(time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop after cancel")
	}
}

func TestRunDisabledWithoutInterval(t *testing.T) {
	job := &fakeSyncer{}
	w := &Worker{Jobs: []Job{{Name: "strava", Syncer: job}}}
	w.Run(context.Background())
	if job.calls.Load() != 0 {
		t.Fatalf("expected no runs, got %d", job.calls.Load())
	}
}
