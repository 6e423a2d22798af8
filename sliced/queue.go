package sliced

import (
	"context"
	"errors"
	"fmt"

	"github.com/rahsheen/rocketjob/logger"
)

// ErrNotOwned is returned by Complete and Fail when the slice is not
// running under the given owner: another worker holds it, it was
// requeued out from under the caller, or the ID is unknown.
var ErrNotOwned = errors.New("slice is not running under this owner")

// Queue exposes the claim/requeue protocol over a slice collection.
// Queue holds no state of its own; every call is one atomic operation
// against the store, so any number of workers in any number of
// processes may share one collection with no further coordination.
type Queue struct {
	store Store
}

func NewQueue(store Store) *Queue {
	return &Queue{store: store}
}

func (q *Queue) Store() Store {
	return q.store
}

// Next claims the lowest-ID queued slice for workerID: the slice
// transitions to running with owner and claim time set, and the full
// slice is returned. A nil slice with a nil error means no work is
// available, which is a normal empty result, not an error.
func (q *Queue) Next(ctx context.Context, workerID string) (*Slice, error) {
	if workerID == "" {
		return nil, fmt.Errorf("worker id is required to claim a slice")
	}

	slice, err := q.store.UpdateFirst(ctx,
		Filter{State: StateQueued},
		Change{State: StateRunning, Owner: workerID, Claimed: true},
	)
	if err != nil {
		return nil, err
	}
	if slice != nil {
		logger.Printf("debug-claim", "Slice %d claimed by %s (%d records)",
			slice.ID, workerID, len(slice.Records))
	}
	return slice, nil
}

// Complete transitions a running slice to completed, conditional on
// owner still holding it.
func (q *Queue) Complete(ctx context.Context, id uint64, owner string) error {
	slice, err := q.store.UpdateFirst(ctx,
		Filter{ID: id, State: StateRunning, Owner: owner},
		Change{State: StateCompleted},
	)
	if err != nil {
		return err
	}
	if slice == nil {
		return fmt.Errorf("complete slice %d: %w", id, ErrNotOwned)
	}
	return nil
}

// Fail transitions a running slice to failed and records the failure,
// conditional on owner still holding it. The failure's RecordOffset
// (1-based) pinpoints the offending record; zero means the failure is
// not attributable to one record.
func (q *Queue) Fail(ctx context.Context, id uint64, owner string, failure Failure) error {
	slice, err := q.store.UpdateFirst(ctx,
		Filter{ID: id, State: StateRunning, Owner: owner},
		Change{State: StateFailed, Failure: &failure},
	)
	if err != nil {
		return err
	}
	if slice == nil {
		return fmt.Errorf("fail slice %d: %w", id, ErrNotOwned)
	}
	return nil
}

// RequeueFailed returns every failed slice to queued for retry,
// clearing ownership and the recorded failure. Zero matches is a
// normal result.
func (q *Queue) RequeueFailed(ctx context.Context) (int64, error) {
	count, err := q.store.UpdateAll(ctx,
		Filter{State: StateFailed},
		Change{State: StateQueued},
	)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logger.Printf("requeue", "Requeued %d failed slice(s)", count)
	}
	return count, nil
}

// RequeueRunning returns every running slice whose owner matches
// workerPrefix to queued, clearing ownership. This recovers work
// orphaned by a dead worker process or host: worker identifiers embed
// host and process names, so one prefix covers everything a vanished
// process held. Prefixes that are not disjoint between live workers
// will requeue work that is still being processed.
func (q *Queue) RequeueRunning(ctx context.Context, workerPrefix string) (int64, error) {
	if workerPrefix == "" {
		return 0, fmt.Errorf("worker prefix is required to requeue running slices")
	}

	count, err := q.store.UpdateAll(ctx,
		Filter{State: StateRunning, OwnerPrefix: workerPrefix},
		Change{State: StateQueued},
	)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		logger.Printf("requeue", "Requeued %d running slice(s) owned by %q*", count, workerPrefix)
	}
	return count, nil
}

// EachFailedRecord yields, for every failed slice that recorded a
// record offset, the offending record together with its slice.
// Failures with no offset are skipped here but remain visible through
// Scan and Counts.
func (q *Queue) EachFailedRecord(ctx context.Context, fn func(Record, *Slice) error) error {
	return q.store.Scan(ctx, Filter{State: StateFailed}, func(slice *Slice) error {
		rec, ok := slice.FailedRecord()
		if !ok {
			return nil
		}
		return fn(rec, slice)
	})
}

// Counts tallies slices per state.
type Counts struct {
	Queued    int64 `json:"queued"`
	Running   int64 `json:"running"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

func (c Counts) Total() int64 {
	return c.Queued + c.Running + c.Completed + c.Failed
}

func (q *Queue) Counts(ctx context.Context) (Counts, error) {
	var counts Counts
	for _, pair := range []struct {
		state  State
		target *int64
	}{
		{StateQueued, &counts.Queued},
		{StateRunning, &counts.Running},
		{StateCompleted, &counts.Completed},
		{StateFailed, &counts.Failed},
	} {
		n, err := q.store.Count(ctx, Filter{State: pair.state})
		if err != nil {
			return Counts{}, err
		}
		*pair.target = n
	}
	return counts, nil
}
