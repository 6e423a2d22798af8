package ingest

import (
	"context"
	"math"
	"testing"

	"github.com/rahsheen/rocketjob/sliced"
)

func collectRanges(t *testing.T, store sliced.Store) [][2]int64 {
	t.Helper()
	var ranges [][2]int64
	err := store.Scan(context.Background(), sliced.Filter{}, func(s *sliced.Slice) error {
		if len(s.Records) != 1 {
			t.Fatalf("range slice %d holds %d records, want 1", s.ID, len(s.Records))
		}
		var r [2]int64
		if err := sliced.DecodeRecord(s.Records[0], &r); err != nil {
			return err
		}
		ranges = append(ranges, r)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	return ranges
}

func TestUploadRange(t *testing.T) {
	store := testStore(t)
	u := New(store, 100)

	count, err := u.UploadRange(context.Background(), 200, 421)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	want := [][2]int64{{200, 299}, {300, 399}, {400, 421}}
	got := collectRanges(t, store)
	if len(got) != len(want) {
		t.Fatalf("ranges = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("range %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestUploadRangeReverse(t *testing.T) {
	store := testStore(t)
	u := New(store, 100)

	count, err := u.UploadRangeReverse(context.Background(), 200, 421)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	// Insertion order is highest sub-range first, the lowest clamped.
	want := [][2]int64{{322, 421}, {222, 321}, {200, 221}}
	got := collectRanges(t, store)
	if len(got) != len(want) {
		t.Fatalf("ranges = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("range %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestUploadRangeExactMultiple(t *testing.T) {
	store := testStore(t)
	u := New(store, 10)

	count, err := u.UploadRange(context.Background(), 0, 29)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	want := [][2]int64{{0, 9}, {10, 19}, {20, 29}}
	for i, r := range collectRanges(t, store) {
		if r != want[i] {
			t.Errorf("range %d = %v, want %v", i, r, want[i])
		}
	}
}

func TestUploadRangeReverseExactMultiple(t *testing.T) {
	store := testStore(t)
	u := New(store, 10)

	count, err := u.UploadRangeReverse(context.Background(), 0, 29)
	if err != nil {
		t.Fatal(err)
	}
	if count != 3 {
		t.Fatalf("count = %d, want 3", count)
	}

	want := [][2]int64{{20, 29}, {10, 19}, {0, 9}}
	for i, r := range collectRanges(t, store) {
		if r != want[i] {
			t.Errorf("range %d = %v, want %v", i, r, want[i])
		}
	}
}

func TestUploadRangeAtInt64Max(t *testing.T) {
	store := testStore(t)
	u := New(store, 4)

	count, err := u.UploadRange(context.Background(), math.MaxInt64-5, math.MaxInt64)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	want := [][2]int64{
		{math.MaxInt64 - 5, math.MaxInt64 - 2},
		{math.MaxInt64 - 1, math.MaxInt64},
	}
	for i, r := range collectRanges(t, store) {
		if r != want[i] {
			t.Errorf("range %d = %v, want %v", i, r, want[i])
		}
	}
}

func TestUploadRangeReverseAtInt64Min(t *testing.T) {
	store := testStore(t)
	u := New(store, 4)

	count, err := u.UploadRangeReverse(context.Background(), math.MinInt64, math.MinInt64+5)
	if err != nil {
		t.Fatal(err)
	}
	if count != 2 {
		t.Fatalf("count = %d, want 2", count)
	}

	want := [][2]int64{
		{math.MinInt64 + 2, math.MinInt64 + 5},
		{math.MinInt64, math.MinInt64 + 1},
	}
	for i, r := range collectRanges(t, store) {
		if r != want[i] {
			t.Errorf("range %d = %v, want %v", i, r, want[i])
		}
	}
}

func TestUploadRangeSingleValue(t *testing.T) {
	store := testStore(t)
	u := New(store, 100)

	count, err := u.UploadRange(context.Background(), 7, 7)
	if err != nil {
		t.Fatal(err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
	got := collectRanges(t, store)
	if got[0] != [2]int64{7, 7} {
		t.Errorf("range = %v, want [7 7]", got[0])
	}
}

func TestUploadRangeInvalid(t *testing.T) {
	u := New(testStore(t), 100)
	if _, err := u.UploadRange(context.Background(), 10, 5); err == nil {
		t.Fatal("expected error for last below first")
	}
	if _, err := u.UploadRangeReverse(context.Background(), 10, 5); err == nil {
		t.Fatal("expected error for last below first")
	}
}
