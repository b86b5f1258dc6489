package workbook

import (
	"context"
	"fmt"
)

// DataSource is a provider data source saved for later syncs.
type DataSource struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// SaveDataSources replaces the saved data sources.
func (b *Book) SaveDataSources(ctx context.Context, sources []DataSource) error {
	if err := b.table.Clear(ctx, RegionDataSources); err != nil {
		return fmt.Errorf("clear data sources: %w", err)
	}
	rows := make([][]string, 0, len(sources)+1)
	rows = append(rows, []string{"ID", "Name"})
	for _, s := range sources {
		rows = append(rows, []string{s.ID, s.Name})
	}
	if err := b.table.Append(ctx, RegionDataSources, rows); err != nil {
		return fmt.Errorf("write data sources: %w", err)
	}
	return nil
}

func (b *Book) DataSources(ctx context.Context) ([]DataSource, error) {
	rows, err := b.table.Get(ctx, RegionDataSources)
	if err != nil {
		return nil, fmt.Errorf("read data sources: %w", err)
	}
	var out []DataSource
	for i, row := range rows {
		if i == 0 || cell(row, 0) == "" {
			continue
		}
		out = append(out, DataSource{ID: cell(row, 0), Name: cell(row, 1)})
	}
	return out, nil
}

// DefaultSourceID returns the first saved data source.
func (b *Book) DefaultSourceID(ctx context.Context) (string, error) {
	sources, err := b.DataSources(ctx)
	if err != nil {
		return "", err
	}
	if len(sources) == 0 {
		return "", ErrNoDataSources
	}
	return sources[0].ID, nil
}
