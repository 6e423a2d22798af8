package sliced

import (
	"context"
	"fmt"

	"github.com/rahsheen/rocketjob/logger"
)

// Writer accumulates records and persists each full batch as a new
// queued slice. No slice spans more than the configured capacity; the
// final partial batch is persisted by Flush. Writer is single-consumer
// like the ingestion pipeline that feeds it.
type Writer struct {
	store    Store
	capacity int
	buf      []Record
	records  int64
	slices   int64
}

const DefaultSliceSize = 100

func NewWriter(store Store, capacity int) *Writer {
	if capacity <= 0 {
		capacity = DefaultSliceSize
	}
	return &Writer{
		store:    store,
		capacity: capacity,
		buf:      make([]Record, 0, capacity),
	}
}

// Append encodes v and buffers it, persisting a slice when the buffer
// reaches capacity.
func (w *Writer) Append(ctx context.Context, v interface{}) error {
	rec, err := NewRecord(v)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return w.AppendRecord(ctx, rec)
}

// AppendRecord buffers an already-encoded record.
func (w *Writer) AppendRecord(ctx context.Context, rec Record) error {
	w.buf = append(w.buf, rec)
	w.records++
	if len(w.buf) >= w.capacity {
		return w.persist(ctx)
	}
	return nil
}

// AppendAll drives a producer callback that pushes records, then
// flushes. Returns the total record count appended by this call.
func (w *Writer) AppendAll(ctx context.Context, producer func(push func(interface{}) error) error) (int64, error) {
	before := w.records
	push := func(v interface{}) error {
		return w.Append(ctx, v)
	}
	if err := producer(push); err != nil {
		return w.records - before, err
	}
	if err := w.Flush(ctx); err != nil {
		return w.records - before, err
	}
	return w.records - before, nil
}

// Flush persists any buffered partial batch as a final slice.
func (w *Writer) Flush(ctx context.Context) error {
	if len(w.buf) == 0 {
		return nil
	}
	return w.persist(ctx)
}

func (w *Writer) persist(ctx context.Context) error {
	batch := make([]Record, len(w.buf))
	copy(batch, w.buf)

	slice, err := w.store.Insert(ctx, batch)
	if err != nil {
		return err
	}

	w.slices++
	w.buf = w.buf[:0]
	logger.Printf("debug-upload", "Persisted slice %d (%d records)", slice.ID, len(batch))
	return nil
}

// RecordCount reports records appended over the writer's lifetime.
func (w *Writer) RecordCount() int64 {
	return w.records
}

// SliceCount reports slices persisted over the writer's lifetime.
func (w *Writer) SliceCount() int64 {
	return w.slices
}
