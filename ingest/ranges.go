package ingest

import (
	"context"
	"fmt"

	"github.com/rahsheen/rocketjob/logger"
	"github.com/rahsheen/rocketjob/sliced"
)

// UploadRange partitions [first, last] into contiguous sub-ranges of
// slice-size width, one slice per sub-range, each holding exactly one
// [start, end] record. The final sub-range is clamped at last.
// Returns the number of sub-ranges emitted.
func (u *Uploader) UploadRange(ctx context.Context, first, last int64) (int64, error) {
	if last < first {
		return 0, fmt.Errorf("invalid range: last %d below first %d", last, first)
	}

	// Width arithmetic runs on the uint64 span so bounds at the int64
	// extremes cannot wrap.
	width := uint64(u.sliceSize)
	var count int64
	start := first
	for {
		end := last
		if uint64(last)-uint64(start) >= width {
			end = start + int64(width) - 1
		}
		if err := u.insertRangeSlice(ctx, start, end); err != nil {
			return count, err
		}
		count++
		if end == last {
			break
		}
		start = end + 1
	}

	logger.Printf("upload", "Uploaded range [%d, %d]: %d slice(s) of width %d",
		first, last, count, width)
	return count, nil
}

// UploadRangeReverse mirrors UploadRange from the high end downward:
// sub-ranges are emitted highest first, and the final (lowest)
// sub-range is clamped at first.
func (u *Uploader) UploadRangeReverse(ctx context.Context, first, last int64) (int64, error) {
	if last < first {
		return 0, fmt.Errorf("invalid range: last %d below first %d", last, first)
	}

	width := uint64(u.sliceSize)
	var count int64
	end := last
	for {
		start := first
		if uint64(end)-uint64(first) >= width {
			start = end - int64(width) + 1
		}
		if err := u.insertRangeSlice(ctx, start, end); err != nil {
			return count, err
		}
		count++
		if start == first {
			break
		}
		end = start - 1
	}

	logger.Printf("upload", "Uploaded reverse range [%d, %d]: %d slice(s) of width %d",
		first, last, count, width)
	return count, nil
}

func (u *Uploader) insertRangeSlice(ctx context.Context, start, end int64) error {
	rec, err := sliced.NewRecord([2]int64{start, end})
	if err != nil {
		return err
	}
	_, err = u.store.Insert(ctx, []sliced.Record{rec})
	return err
}
