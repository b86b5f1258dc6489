package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"trainlog/internal/activity"
	"trainlog/internal/logging"
	"trainlog/internal/observability"
	"trainlog/internal/weekly"
	"trainlog/internal/workbook"
)

// Fetcher returns the provider's recent records.
type Fetcher interface {
	Fetch(ctx context.Context) ([]activity.Raw, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context) ([]activity.Raw, error)

func (f FetcherFunc) Fetch(ctx context.Context) ([]activity.Raw, error) {
	return f(ctx)
}

// Recomputer rebuilds weekly aggregates after new rows land.
type Recomputer interface {
	RecomputeAll(ctx context.Context) (weekly.Summary, error)
}

// Result reports one sync run.
type Result struct {
	RunID         string      `json:"runId"`
	Provider      string      `json:"provider"`
	Fetched       int         `json:"fetched"`
	NewActivities int         `json:"newActivities"`
	Skipped       FilterStats `json:"-"`
}

// Pipeline runs fetch, dedup, normalize and append for one provider.
type Pipeline struct {
	Provider   string
	Fetcher    Fetcher
	Book       *workbook.Book
	Normalizer Normalizer
	Weekly     Recomputer
	// Source labels entries whose record named no source.
	Source string
	// LogLock serializes pipelines that write the same log. Optional.
	LogLock sync.Locker
	Logger  *log.Logger
	Now     func() time.Time
	// Timeout bounds one shared run. Zero means DefaultSyncTimeout.
	Timeout time.Duration

	group singleflight.Group
}

// DefaultSyncTimeout bounds a run once no caller's context does.
const DefaultSyncTimeout = 5 * time.Minute

// Sync runs the pipeline once. Calls that overlap an in-flight run share
// its result instead of reading the same most-recent marker. The run is
// detached from the caller that started it, so one caller giving up only
// ends its own wait.
func (p *Pipeline) Sync(ctx context.Context) (Result, error) {
	ch := p.group.DoChan(workbook.RegionActivityLog, func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.timeout())
		defer cancel()
		return p.run(runCtx)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case out := <-ch:
		res, _ := out.Val.(Result)
		if out.Shared {
			p.logger().Debug("joined in-flight sync", "provider", p.Provider, "run_id", res.RunID)
		}
		return res, out.Err
	}
}

func (p *Pipeline) timeout() time.Duration {
	if p.Timeout > 0 {
		return p.Timeout
	}
	return DefaultSyncTimeout
}

func (p *Pipeline) run(ctx context.Context) (res Result, err error) {
	if p.Fetcher == nil || p.Book == nil {
		return Result{}, errors.New("ingest pipeline not configured")
	}
	if p.LogLock != nil {
		p.LogLock.Lock()
		defer p.LogLock.Unlock()
	}

	res = Result{RunID: uuid.NewString(), Provider: p.Provider}
	logger := p.logger().With("provider", p.Provider, "run_id", res.RunID)
	defer func() {
		observability.RecordSync(p.Provider, res.NewActivities, p.now(), err)
		if err != nil {
			logger.Error("sync failed", "err", err)
		}
	}()

	raws, err := p.Fetcher.Fetch(ctx)
	if err != nil {
		return res, fmt.Errorf("fetch %s activities: %w", p.Provider, err)
	}
	res.Fetched = len(raws)

	key, ok, err := p.Book.MostRecentActivity(ctx)
	if err != nil {
		return res, err
	}
	var mostRecent *activity.Key
	if ok {
		mostRecent = &key
	}

	admitted, stats := filterNew(raws, mostRecent, p.Book.Location())
	res.Skipped = stats
	observability.RecordSkipped(p.Provider, "undated", stats.Undated)
	observability.RecordSkipped(p.Provider, "generic", stats.Generic)
	observability.RecordSkipped(p.Provider, "already_logged", stats.Stale)

	normalizer := p.Normalizer
	normalizer.Location = p.Book.Location()
	entries := make([]activity.Entry, 0, len(admitted))
	for _, raw := range admitted {
		entry, err := normalizer.Normalize(raw)
		if err != nil {
			logger.Warn("dropping activity", "item_id", raw.ItemID, "err", err)
			continue
		}
		if entry.Source == "" {
			entry.Source = p.Source
		}
		entries = append(entries, entry)
	}

	logger.Info("sync fetched activities",
		"fetched", res.Fetched, "new", len(entries),
		"already_logged", stats.Stale, "generic", stats.Generic, "undated", stats.Undated)
	if len(entries) == 0 {
		return res, nil
	}

	if err := p.Book.AppendActivities(ctx, entries); err != nil {
		return res, err
	}
	res.NewActivities = len(entries)

	if p.Weekly != nil {
		if _, err := p.Weekly.RecomputeAll(ctx); err != nil {
			return res, fmt.Errorf("recompute weekly metrics: %w", err)
		}
	}
	return res, nil
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

func (p *Pipeline) logger() *log.Logger {
	return logging.OrDefault(p.Logger)
}
