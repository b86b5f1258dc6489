// Package storage provides the tabular store the tracker keeps its data in:
// named regions of string rows that can be read whole, appended to, updated
// in place from a row offset, or cleared.
package storage

import (
	"context"
	"errors"
	"fmt"
)

// Table is the spreadsheet-like store. Row indexes are zero-based and count
// the header row, so row 0 of a region is its header when it has one.
type Table interface {
	Get(ctx context.Context, region string) ([][]string, error)
	Append(ctx context.Context, region string, rows [][]string) error
	Update(ctx context.Context, region string, row int, rows [][]string) error
	Clear(ctx context.Context, region string) error
}

// StoreError wraps a failed read or write against a region.
type StoreError struct {
	Op     string
	Region string
	Err    error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s %s: %v", e.Op, e.Region, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError reports whether err came from a Table backend.
func IsStoreError(err error) bool {
	var storeErr *StoreError
	return errors.As(err, &storeErr)
}

func wrap(op, region string, err error) error {
	if err == nil {
		return nil
	}
	return &StoreError{Op: op, Region: region, Err: err}
}
