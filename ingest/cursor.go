package ingest

import (
	"context"
	"fmt"

	"github.com/rahsheen/rocketjob/sliced"
)

// Row is one projected row from a query cursor, keyed by column name.
type Row map[string]interface{}

// Cursor is the query collaborator: it iterates rows matching its own
// filter with a caller-chosen column projection, ordered by its
// ordering column. The projection may be widened with the ordering
// column even when the caller did not request it.
type Cursor interface {
	// OrderColumn names the column that drives the cursor.
	OrderColumn() string
	// Each calls fn for every matching row, projecting the given
	// columns, in ascending OrderColumn order.
	Each(ctx context.Context, columns []string, fn func(Row) error) error
}

// CursorOptions shapes the record extracted from each row. The
// extractor strategy is chosen at call time: RowFunc when given, a
// scalar for a single requested column, an ordered tuple for several,
// and the ordering column alone when nothing is requested.
type CursorOptions struct {
	Columns []string
	RowFunc func(Row) (interface{}, error)
}

// UploadCursor drives a cursor into the slice writer and returns the
// record count appended.
func (u *Uploader) UploadCursor(ctx context.Context, cursor Cursor, opts CursorOptions) (int64, error) {
	requested := opts.Columns
	if len(requested) == 0 && opts.RowFunc == nil {
		requested = []string{cursor.OrderColumn()}
	}

	extract := chooseExtractor(requested, opts.RowFunc)

	// The projection always carries the ordering column so the cursor
	// can paginate, whether or not the caller asked for it.
	projection := requested
	if !contains(projection, cursor.OrderColumn()) {
		projection = append(append([]string{}, projection...), cursor.OrderColumn())
	}

	writer := sliced.NewWriter(u.store, u.sliceSize)
	count, err := writer.AppendAll(ctx, func(push func(interface{}) error) error {
		return cursor.Each(ctx, projection, func(row Row) error {
			value, err := extract(row)
			if err != nil {
				return err
			}
			return push(value)
		})
	})
	if err != nil {
		return count, fmt.Errorf("upload cursor: %w", err)
	}
	return count, nil
}

func chooseExtractor(columns []string, rowFunc func(Row) (interface{}, error)) func(Row) (interface{}, error) {
	if rowFunc != nil {
		return rowFunc
	}
	if len(columns) == 1 {
		col := columns[0]
		return func(row Row) (interface{}, error) {
			return row[col], nil
		}
	}
	cols := append([]string{}, columns...)
	return func(row Row) (interface{}, error) {
		tuple := make([]interface{}, len(cols))
		for i, col := range cols {
			tuple[i] = row[col]
		}
		return tuple, nil
	}
}

func contains(list []string, want string) bool {
	for _, item := range list {
		if item == want {
			return true
		}
	}
	return false
}
