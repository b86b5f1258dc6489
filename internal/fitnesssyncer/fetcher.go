package fitnesssyncer

import (
	"context"

	"trainlog/internal/activity"
)

// SourceResolver supplies the data source to sync when none is configured.
type SourceResolver interface {
	DefaultSourceID(ctx context.Context) (string, error)
}

// Fetcher feeds the ingestion pipeline from one data source.
type Fetcher struct {
	Client *Client
	// SourceID wins over Sources when set.
	SourceID string
	Sources  SourceResolver
	Limit    int
}

func (f *Fetcher) ResolveSource(ctx context.Context) (string, error) {
	if f.SourceID != "" || f.Sources == nil {
		return f.SourceID, nil
	}
	return f.Sources.DefaultSourceID(ctx)
}

func (f *Fetcher) Fetch(ctx context.Context) ([]activity.Raw, error) {
	sourceID, err := f.ResolveSource(ctx)
	if err != nil {
		return nil, err
	}
	return f.Client.RecentActivities(ctx, sourceID, f.Limit)
}
