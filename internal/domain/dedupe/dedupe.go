// Package dedupe drops repeated ingestion requests that carry the same event id.
package dedupe

import (
	"context"
	"sync"
)

// DefaultMaxSize bounds the number of remembered ids when no size is configured.
const DefaultMaxSize = 50000

// State is what Reserve found for an id.
type State int

const (
	// New means the caller now holds the id and must Commit or Release it.
	New State = iota
	// Pending means another request holds the id and its outcome is unknown.
	Pending
	// Applied means an event with the id was recorded.
	Applied
)

func (s State) String() string {
	switch s {
	case New:
		return "new"
	case Pending:
		return "pending"
	case Applied:
		return "applied"
	default:
		return "unknown"
	}
}

// Deduper records event ids so client retries are applied at most once.
// An id is pending between Reserve and Commit, so a retry racing the first
// attempt is never acknowledged before that attempt succeeds.
type Deduper interface {
	// Reserve atomically claims id if it is unknown and reports its state.
	Reserve(ctx context.Context, id string) State

	// Commit marks a reserved id as applied.
	Commit(ctx context.Context, id string)

	// Release forgets id so a request that failed after Reserve can be retried.
	Release(ctx context.Context, id string)

	Size() int64
}

// inMemoryDeduper remembers ids in a map and evicts the oldest when full.
// The ring holds insertion order; a slot is stale when the map entry for its
// id carries a different sequence number (the id was released or re-added).
type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]entry
	ring    []slot
	next    int // ring write position
	seq     uint64
	maxSize int // <= 0 means unbounded
}

type entry struct {
	seq     uint64
	applied bool
}

type slot struct {
	id  string
	seq uint64
}

// NewInMemoryDeduper creates a new in-memory deduper with configuration options.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{maxSize: DefaultMaxSize}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]entry)
	if d.maxSize > 0 {
		d.ring = make([]slot, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) Reserve(_ context.Context, id string) State {
	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.seen[id]; ok {
		if e.applied {
			return Applied
		}
		return Pending
	}

	d.seq++
	if d.maxSize > 0 {
		// Overwriting the slot evicts whatever id was reserved maxSize writes ago.
		old := d.ring[d.next]
		if e, ok := d.seen[old.id]; ok && old.id != "" && e.seq == old.seq {
			delete(d.seen, old.id)
		}
		d.ring[d.next] = slot{id: id, seq: d.seq}
		d.next = (d.next + 1) % d.maxSize
	}
	d.seen[id] = entry{seq: d.seq}
	return New
}

func (d *inMemoryDeduper) Commit(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// An id evicted while pending stays forgotten.
	if e, ok := d.seen[id]; ok {
		e.applied = true
		d.seen[id] = e
	}
}

func (d *inMemoryDeduper) Release(_ context.Context, id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if e, ok := d.seen[id]; ok && !e.applied {
		delete(d.seen, id)
	}
}

// Size returns the number of ids currently remembered.
func (d *inMemoryDeduper) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return int64(len(d.seen))
}
