// Package sliced holds the slice model and the claim/requeue protocol
// that distributes batched work across independent workers. A slice is
// a persisted batch of records with its own lifecycle: it is created
// queued, claimed into running by exactly one worker at a time, and
// finished as completed or failed. Failed and orphaned running slices
// return to queued through explicit recovery calls.
package sliced

import (
	"encoding/json"
	"time"

	"github.com/rahsheen/rocketjob/encoding"
)

// Record is one opaque record payload, persisted as its JSON encoding.
// The ingestion layer places text lines, row projections, or
// [start, end] integer pairs into records; this package never
// interprets them.
type Record = json.RawMessage

// NewRecord encodes an arbitrary value into a Record.
func NewRecord(v interface{}) (Record, error) {
	return encoding.Marshal(v)
}

// DecodeRecord decodes a Record into v.
func DecodeRecord(rec Record, v interface{}) error {
	return encoding.Unmarshal(rec, v)
}

type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

func (s State) Valid() bool {
	switch s {
	case StateQueued, StateRunning, StateCompleted, StateFailed:
		return true
	}
	return false
}

// Failure records the single offending record of a failed slice.
// RecordOffset is 1-based; zero means the failure could not be
// attributed to one record. A slice carries at most one failure:
// processing stops at the first bad record.
type Failure struct {
	Description  string `json:"description"`
	RecordOffset int    `json:"record_offset,omitempty"`
}

// Slice is the persisted unit of claimable work. Records are
// immutable once persisted; only State, Owner, ClaimedAt and Failure
// mutate afterwards. Owner and ClaimedAt are set together and cleared
// together, present exactly while the slice is running.
type Slice struct {
	ID        uint64     `json:"id"`
	Records   []Record   `json:"records"`
	State     State      `json:"state"`
	Owner     string     `json:"owner,omitempty"`
	ClaimedAt *time.Time `json:"claimed_at,omitempty"`
	Failure   *Failure   `json:"failure,omitempty"`
}

// FailedRecord returns the record named by Failure.RecordOffset, or
// false when the slice has no failure, no offset, or the offset is out
// of range.
func (s *Slice) FailedRecord() (Record, bool) {
	if s.Failure == nil || s.Failure.RecordOffset < 1 || s.Failure.RecordOffset > len(s.Records) {
		return nil, false
	}
	return s.Records[s.Failure.RecordOffset-1], true
}
