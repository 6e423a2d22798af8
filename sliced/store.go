package sliced

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned by Get for an unknown slice ID.
var ErrNotFound = errors.New("slice not found")

// Filter selects slices by identity, state and ownership. Zero fields
// match everything.
type Filter struct {
	// ID pins the filter to one slice when non-zero.
	ID uint64
	// State matches slices in exactly this state when non-empty.
	State State
	// Owner matches the exact owner when non-empty.
	Owner string
	// OwnerPrefix matches owners by string prefix when non-empty.
	// This is how host- or process-scoped recovery addresses every
	// worker it spawned without knowing instance identifiers.
	OwnerPrefix string
}

func (f Filter) matches(s *Slice) bool {
	if f.ID != 0 && s.ID != f.ID {
		return false
	}
	if f.State != "" && s.State != f.State {
		return false
	}
	if f.Owner != "" && s.Owner != f.Owner {
		return false
	}
	if f.OwnerPrefix != "" && !strings.HasPrefix(s.Owner, f.OwnerPrefix) {
		return false
	}
	return true
}

// Change replaces the mutable portion of a slice in one shot: state,
// ownership lease and failure. Records never change. An empty Owner
// with a nil ClaimedAt clears the lease, keeping the two fields in
// lockstep.
type Change struct {
	State   State
	Owner   string
	Claimed bool // stamps ClaimedAt = now and requires Owner != ""
	Failure *Failure
}

// Store is the storage collaborator behind the queue. Every method is
// a single indivisible operation: two concurrent UpdateFirst calls can
// never both observe the same pre-update document. This is the only
// synchronization primitive in the system; no lock manager exists
// above it.
type Store interface {
	// Insert persists records as a new queued slice under the next
	// strictly increasing ID and returns it.
	Insert(ctx context.Context, records []Record) (*Slice, error)

	// Get returns the slice with the given ID, or ErrNotFound.
	Get(ctx context.Context, id uint64) (*Slice, error)

	// UpdateFirst atomically applies change to the lowest-ID slice
	// matching filter and returns the post-update document. A nil
	// slice with a nil error means nothing matched.
	UpdateFirst(ctx context.Context, filter Filter, change Change) (*Slice, error)

	// UpdateAll applies change to every slice matching filter and
	// returns how many changed. Zero matches is not an error.
	UpdateAll(ctx context.Context, filter Filter, change Change) (int64, error)

	// Scan visits matching slices in ascending ID order. Returning an
	// error from fn stops the scan and propagates the error.
	Scan(ctx context.Context, filter Filter, fn func(*Slice) error) error

	// Count reports how many slices match filter without loading
	// their records.
	Count(ctx context.Context, filter Filter) (int64, error)

	Close() error
}
