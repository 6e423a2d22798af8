package sliced

import (
	"context"
	"fmt"
	"testing"
)

func TestWriterBatching(t *testing.T) {
	cases := []struct {
		records  int
		capacity int
		slices   int64
	}{
		{0, 100, 0},
		{1, 100, 1},
		{100, 100, 1},
		{101, 100, 2},
		{250, 100, 3},
		{7, 3, 3},
		{9, 3, 3},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("%dx%d", tc.records, tc.capacity), func(t *testing.T) {
			store := testStore(t)
			ctx := context.Background()
			w := NewWriter(store, tc.capacity)

			for i := 0; i < tc.records; i++ {
				if err := w.Append(ctx, i); err != nil {
					t.Fatal(err)
				}
			}
			if err := w.Flush(ctx); err != nil {
				t.Fatal(err)
			}

			if w.SliceCount() != tc.slices {
				t.Errorf("slices = %d, want %d", w.SliceCount(), tc.slices)
			}
			if w.RecordCount() != int64(tc.records) {
				t.Errorf("records = %d, want %d", w.RecordCount(), tc.records)
			}

			// Every slice stays within capacity and the total matches.
			var total int
			err := store.Scan(ctx, Filter{}, func(s *Slice) error {
				if len(s.Records) > tc.capacity {
					t.Errorf("slice %d holds %d records, capacity %d", s.ID, len(s.Records), tc.capacity)
				}
				total += len(s.Records)
				return nil
			})
			if err != nil {
				t.Fatal(err)
			}
			if total != tc.records {
				t.Errorf("persisted %d records, want %d", total, tc.records)
			}
		})
	}
}

func TestWriterPreservesOrder(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	w := NewWriter(store, 4)

	for i := 0; i < 10; i++ {
		if err := w.Append(ctx, i); err != nil {
			t.Fatal(err)
		}
	}
	if err := w.Flush(ctx); err != nil {
		t.Fatal(err)
	}

	var next int
	err := store.Scan(ctx, Filter{}, func(s *Slice) error {
		for _, rec := range s.Records {
			var v int
			if err := DecodeRecord(rec, &v); err != nil {
				return err
			}
			if v != next {
				t.Fatalf("record %d out of order, want %d", v, next)
			}
			next++
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if next != 10 {
		t.Errorf("replayed %d records, want 10", next)
	}
}

func TestWriterDefaultCapacity(t *testing.T) {
	w := NewWriter(testStore(t), 0)
	if w.capacity != DefaultSliceSize {
		t.Errorf("capacity = %d, want %d", w.capacity, DefaultSliceSize)
	}
}

func TestWriterAppendAll(t *testing.T) {
	store := testStore(t)
	ctx := context.Background()
	w := NewWriter(store, 3)

	n, err := w.AppendAll(ctx, func(push func(interface{}) error) error {
		for i := 0; i < 5; i++ {
			if err := push(fmt.Sprintf("row-%d", i)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("appended %d, want 5", n)
	}
	// AppendAll flushes, so the 2-record remainder is persisted.
	if w.SliceCount() != 2 {
		t.Errorf("slices = %d, want 2", w.SliceCount())
	}
}

func TestWriterAppendAllProducerError(t *testing.T) {
	store := testStore(t)
	w := NewWriter(store, 10)

	wantErr := fmt.Errorf("source exploded")
	n, err := w.AppendAll(context.Background(), func(push func(interface{}) error) error {
		if err := push("one"); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("err = %v, want %v", err, wantErr)
	}
	if n != 1 {
		t.Errorf("appended %d before error, want 1", n)
	}
}
