package sliced

import (
	"context"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble/v2"

	"github.com/rahsheen/rocketjob/encoding"
	"github.com/rahsheen/rocketjob/logger"
)

// Key layout:
//
//	s/<id BE64>          -> slice document (JSON)
//	x/<state byte>/<id>  -> nil (state index, scanned for claims)
//	m/next_id            -> next ID (BE64)
//
// Document and index always move in one pebble batch. A store-level
// mutex serializes mutations so each Store call is one indivisible
// operation against the collection.
type PebbleStore struct {
	db     *pebble.DB
	mu     sync.Mutex
	nextID uint64
	sync   bool
}

type PebbleOptions struct {
	// NoSync trades durability of individual commits for ingest
	// throughput. Claims always sync.
	NoSync       bool
	CacheSizeMB  int64
	MemTableSize int
	ReadOnly     bool
}

var (
	docPrefix  = []byte("s/")
	idxPrefix  = []byte("x/")
	nextIDKey  = []byte("m/next_id")
	stateBytes = map[State]byte{
		StateQueued:    'q',
		StateRunning:   'r',
		StateCompleted: 'c',
		StateFailed:    'f',
	}
)

type pebbleLogger struct{}

func (pebbleLogger) Infof(format string, args ...interface{}) {
	msg := fmt.Sprintf(format, args...)
	if strings.Contains(msg, "sstable") || strings.Contains(msg, "WAL") ||
		strings.Contains(msg, "MANIFEST") || strings.Contains(msg, "compacting") ||
		strings.Contains(msg, "flushing") {
		return
	}
	logger.Printf("debug-pebble", "%s", msg)
}

func (pebbleLogger) Fatalf(format string, args ...interface{}) {
	logger.Fatal(format, args...)
}

func (pebbleLogger) Errorf(format string, args ...interface{}) {
	logger.Printf("pebble", "ERROR: "+format, args...)
}

// OpenPebble creates or opens the slice collection at path.
func OpenPebble(path string, popts PebbleOptions) (*PebbleStore, error) {
	cacheSize := popts.CacheSizeMB << 20
	if cacheSize < 16<<20 {
		cacheSize = 16 << 20
	}
	cache := pebble.NewCache(cacheSize)
	defer cache.Unref()

	opts := &pebble.Options{
		Logger: pebbleLogger{},
		Cache:  cache,
	}
	if popts.MemTableSize > 0 {
		opts.MemTableSize = uint64(popts.MemTableSize)
	}
	if popts.ReadOnly {
		opts.ReadOnly = true
	}

	start := time.Now()
	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open slice store: %w", err)
	}

	s := &PebbleStore{db: db, sync: !popts.NoSync}
	if err := s.loadNextID(); err != nil {
		db.Close()
		return nil, err
	}

	logger.Printf("store", "Slice store opened at %s in %v (next id %d)",
		path, time.Since(start).Round(time.Millisecond), s.nextID)
	return s, nil
}

func (s *PebbleStore) loadNextID() error {
	val, closer, err := s.db.Get(nextIDKey)
	if err == nil {
		s.nextID = binary.BigEndian.Uint64(val)
		closer.Close()
		return nil
	}
	if err != pebble.ErrNotFound {
		return fmt.Errorf("load next id: %w", err)
	}
	s.nextID = 1
	return nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func docKey(id uint64) []byte {
	key := make([]byte, len(docPrefix)+8)
	copy(key, docPrefix)
	binary.BigEndian.PutUint64(key[len(docPrefix):], id)
	return key
}

func idxKey(state State, id uint64) []byte {
	key := make([]byte, len(idxPrefix)+1+1+8)
	copy(key, idxPrefix)
	key[len(idxPrefix)] = stateBytes[state]
	key[len(idxPrefix)+1] = '/'
	binary.BigEndian.PutUint64(key[len(idxPrefix)+2:], id)
	return key
}

func idxBounds(state State) (lower, upper []byte) {
	lower = []byte{'x', '/', stateBytes[state], '/'}
	upper = []byte{'x', '/', stateBytes[state], '/' + 1}
	return lower, upper
}

func idFromIdxKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}

// wopts returns the commit options for ingest writes. State
// transitions do not go through here; see writeLocked.
func (s *PebbleStore) wopts() *pebble.WriteOptions {
	if s.sync {
		return pebble.Sync
	}
	return pebble.NoSync
}

func (s *PebbleStore) Insert(ctx context.Context, records []Record) (*Slice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	slice := &Slice{
		ID:      s.nextID,
		Records: records,
		State:   StateQueued,
	}

	doc, err := encoding.Marshal(slice)
	if err != nil {
		return nil, fmt.Errorf("encode slice %d: %w", slice.ID, err)
	}

	var next [8]byte
	binary.BigEndian.PutUint64(next[:], slice.ID+1)

	batch := s.db.NewBatch()
	batch.Set(docKey(slice.ID), doc, nil)
	batch.Set(idxKey(StateQueued, slice.ID), nil, nil)
	batch.Set(nextIDKey, next[:], nil)

	if err := batch.Commit(s.wopts()); err != nil {
		return nil, fmt.Errorf("persist slice %d: %w", slice.ID, err)
	}

	s.nextID = slice.ID + 1
	return slice, nil
}

func (s *PebbleStore) Get(ctx context.Context, id uint64) (*Slice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	val, closer, err := s.db.Get(docKey(id))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("read slice %d: %w", id, err)
	}
	defer closer.Close()

	var slice Slice
	if err := encoding.Unmarshal(val, &slice); err != nil {
		return nil, fmt.Errorf("decode slice %d: %w", id, err)
	}
	return &slice, nil
}

// getLocked reads without copying through Get's context plumbing.
// Caller holds s.mu.
func (s *PebbleStore) getLocked(id uint64) (*Slice, error) {
	val, closer, err := s.db.Get(docKey(id))
	if err == pebble.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()

	var slice Slice
	if err := encoding.Unmarshal(val, &slice); err != nil {
		return nil, err
	}
	return &slice, nil
}

func applyChange(slice *Slice, change Change) {
	slice.State = change.State
	slice.Owner = change.Owner
	if change.Claimed {
		now := time.Now().UTC()
		slice.ClaimedAt = &now
	} else {
		slice.ClaimedAt = nil
	}
	slice.Failure = change.Failure
}

// writeLocked persists a mutated slice, moving its state index entry.
// Caller holds s.mu.
func (s *PebbleStore) writeLocked(slice *Slice, prevState State) error {
	doc, err := encoding.Marshal(slice)
	if err != nil {
		return fmt.Errorf("encode slice %d: %w", slice.ID, err)
	}

	batch := s.db.NewBatch()
	batch.Set(docKey(slice.ID), doc, nil)
	if prevState != slice.State {
		batch.Delete(idxKey(prevState, slice.ID), nil)
		batch.Set(idxKey(slice.State, slice.ID), nil, nil)
	}

	// State transitions always sync, NoSync or not. A claim commit
	// lost in a crash would resurrect the slice as queued while its
	// worker still holds it.
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("update slice %d: %w", slice.ID, err)
	}
	return nil
}

// eachMatch visits matching slice IDs in ascending order, using the
// state index when the filter pins a state. Caller holds s.mu when
// mutation follows.
func (s *PebbleStore) eachMatch(filter Filter, fn func(*Slice) (stop bool, err error)) error {
	if filter.ID != 0 {
		slice, err := s.getLocked(filter.ID)
		if err == ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		if filter.matches(slice) {
			_, err = fn(slice)
			return err
		}
		return nil
	}

	var opts pebble.IterOptions
	byIndex := filter.State != ""
	if byIndex {
		opts.LowerBound, opts.UpperBound = idxBounds(filter.State)
	} else {
		opts.LowerBound = docPrefix
		opts.UpperBound = []byte("s0") // '0' = '/'+1
	}

	iter, err := s.db.NewIter(&opts)
	if err != nil {
		return fmt.Errorf("iterate slices: %w", err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		var slice *Slice
		if byIndex {
			slice, err = s.getLocked(idFromIdxKey(iter.Key()))
			if err == ErrNotFound {
				continue // stale index entry
			}
			if err != nil {
				return err
			}
		} else {
			slice = &Slice{}
			if err := encoding.Unmarshal(iter.Value(), slice); err != nil {
				return fmt.Errorf("decode slice document: %w", err)
			}
		}

		if !filter.matches(slice) {
			continue
		}
		stop, err := fn(slice)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
	}
	return iter.Error()
}

func (s *PebbleStore) UpdateFirst(ctx context.Context, filter Filter, change Change) (*Slice, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var updated *Slice
	err := s.eachMatch(filter, func(slice *Slice) (bool, error) {
		prev := slice.State
		applyChange(slice, change)
		if err := s.writeLocked(slice, prev); err != nil {
			return true, err
		}
		updated = slice
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *PebbleStore) UpdateAll(ctx context.Context, filter Filter, change Change) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var count int64
	err := s.eachMatch(filter, func(slice *Slice) (bool, error) {
		prev := slice.State
		applyChange(slice, change)
		if err := s.writeLocked(slice, prev); err != nil {
			return true, err
		}
		count++
		return false, nil
	})
	return count, err
}

func (s *PebbleStore) Scan(ctx context.Context, filter Filter, fn func(*Slice) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.eachMatch(filter, func(slice *Slice) (bool, error) {
		return false, fn(slice)
	})
}

func (s *PebbleStore) Count(ctx context.Context, filter Filter) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Pure state filters count index keys without loading documents.
	if filter.State != "" && filter.ID == 0 && filter.Owner == "" && filter.OwnerPrefix == "" {
		lower, upper := idxBounds(filter.State)
		iter, err := s.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
		if err != nil {
			return 0, fmt.Errorf("count slices: %w", err)
		}
		defer iter.Close()

		var count int64
		for iter.First(); iter.Valid(); iter.Next() {
			count++
		}
		return count, iter.Error()
	}

	var count int64
	err := s.eachMatch(filter, func(*Slice) (bool, error) {
		count++
		return false, nil
	})
	return count, err
}
