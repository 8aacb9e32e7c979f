package repository

import (
	"context"
	"math"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/trending/pkg/metrics"
)

// Treap-based, in-memory Store implementation.
//
// Ordering: score DESC, then itemID ASC. The BST comparator treats "less" as
// "ranks earlier", so an in-order walk yields the ranking from best to worst.
// Node priorities are random, which keeps the expected depth logarithmic
// regardless of insertion order. Subtree sizes make rank lookups O(log n).

const defaultMetricsUpdateInterval = 5 * time.Second

// record is the per-item state kept alongside the tree.
type record struct {
	score     float64
	updatedAt time.Time
}

type node struct {
	id    string
	score float64
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

// less returns true if (aScore, aID) ranks before (bScore, bID).
func less(aScore float64, aID string, bScore float64, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score float64, prio uint64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: prio, size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score float64) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		// Rotate the higher-priority child up and keep sinking the target.
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// collectTopN appends up to limit entries in rank order.
func collectTopN(n *node, limit int, records map[string]record, out *[]Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, records, out)
	if len(*out) < limit {
		rec := records[n.id]
		*out = append(*out, Entry{Rank: len(*out) + 1, ItemID: n.id, Score: n.score, UpdatedAt: rec.updatedAt})
	}
	collectTopN(n.right, limit, records, out)
}

// rankOf returns the 1-based position of (score, id), or 0 if absent.
func rankOf(n *node, id string, score float64) int {
	rank := 0
	for n != nil {
		switch {
		case score == n.score && id == n.id:
			return rank + nsize(n.left) + 1
		case less(score, id, n.score, n.id):
			n = n.left
		default:
			rank += nsize(n.left) + 1
			n = n.right
		}
	}
	return 0
}

// last returns the lowest-ranked node.
func last(n *node) *node {
	if n == nil {
		return nil
	}
	for n.right != nil {
		n = n.right
	}
	return n
}

// TreapStore is the default in-process ranked store.
type TreapStore struct {
	mu   sync.RWMutex
	root *node
	byID map[string]record
	rng  *rand.Rand

	seed                  uint64
	seeded                bool
	metricsUpdateInterval time.Duration

	closed   atomic.Bool
	wg       sync.WaitGroup
	stopChan chan struct{}
}

// NewTreapStore constructs a treap store and starts its metrics updater,
// which runs until ctx is done or Close is called.
func NewTreapStore(ctx context.Context, opts ...Option) *TreapStore {
	s := &TreapStore{
		byID:                  make(map[string]record),
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.seeded {
		s.rng = rand.New(rand.NewPCG(s.seed, s.seed^0x9e3779b97f4a7c15)) //nolint:gosec // priorities, not secrets
	} else {
		s.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())) //nolint:gosec // priorities, not secrets
	}

	s.startMetricsUpdater(ctx)
	return s
}

// Upsert implements Store.Upsert in O(log n) expected time.
func (s *TreapStore) Upsert(_ context.Context, itemID string, score float64, at time.Time) error {
	start := time.Now()
	defer func() { metrics.RecordStoreOp(BackendMemory, "upsert", metrics.SinceMs(start)) }()

	if math.IsNaN(score) || math.IsInf(score, 0) {
		return ErrInvalidScore
	}
	if s.closed.Load() {
		return ErrClosed
	}

	s.mu.Lock()
	if old, ok := s.byID[itemID]; ok {
		s.root = deleteNode(s.root, itemID, old.score)
	}
	s.byID[itemID] = record{score: score, updatedAt: at}
	s.root = insert(s.root, itemID, score, s.rng.Uint64())
	s.mu.Unlock()
	return nil
}

// TopN returns the top n entries ordered by score desc.
func (s *TreapStore) TopN(_ context.Context, n int) ([]Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOp(BackendMemory, "top_n", metrics.SinceMs(start)) }()

	if n <= 0 {
		return []Entry{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Entry, 0, min(n, len(s.byID)))
	collectTopN(s.root, n, s.byID, &out)
	return out, nil
}

// Rank returns the position and score for an item in O(log n).
func (s *TreapStore) Rank(_ context.Context, itemID string) (Entry, error) {
	start := time.Now()
	defer func() { metrics.RecordStoreOp(BackendMemory, "rank", metrics.SinceMs(start)) }()

	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[itemID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return Entry{
		Rank:      rankOf(s.root, itemID, rec.score),
		ItemID:    itemID,
		Score:     rec.score,
		UpdatedAt: rec.updatedAt,
	}, nil
}

// Count returns the total number of items.
func (s *TreapStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// TrimToSize drops the lowest-ranked items until at most max remain.
func (s *TreapStore) TrimToSize(_ context.Context, max int) (int, error) {
	if max < 0 {
		max = 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for len(s.byID) > max {
		tail := last(s.root)
		s.root = deleteNode(s.root, tail.id, tail.score)
		delete(s.byID, tail.id)
		removed++
	}
	return removed, nil
}

// RemoveOlderThan drops items whose last write happened before cutoff.
func (s *TreapStore) RemoveOlderThan(_ context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, rec := range s.byID {
		if rec.updatedAt.Before(cutoff) {
			s.root = deleteNode(s.root, id, rec.score)
			delete(s.byID, id)
			removed++
		}
	}
	return removed, nil
}

// Ping reports ErrClosed after Close; the in-memory store is otherwise always reachable.
func (s *TreapStore) Ping(_ context.Context) error {
	if s.closed.Load() {
		return ErrClosed
	}
	return nil
}

// Close stops the background metrics goroutine. Further writes fail with ErrClosed.
func (s *TreapStore) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		close(s.stopChan)
	}
	s.wg.Wait()
	return nil
}

func (s *TreapStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				n, _ := s.Count(ctx)
				metrics.UpdateStoreItems(n)
			}
		}
	}()
}
