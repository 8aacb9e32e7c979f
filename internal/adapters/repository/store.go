// Package repository implements the ranked store: an ordered item -> score
// collection supporting upsert by key and top-K retrieval.
//
// Every implementation orders entries by score descending and breaks ties by
// item id ascending, so repeated reads over unchanged state are identical.
package repository

import (
	"context"
	"time"

	"github.com/okian/trending/internal/domain/model"
)

// Entry is a ranked row.
type Entry = model.ItemScore

// Backend names accepted by New.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQLite = "sqlite"
)

// Store provides read/write access to the ranking state. Implementations are
// safe for concurrent use.
type Store interface {
	// Upsert creates or overwrites the entry for itemID. at is the write time.
	// Concurrent writes for the same id serialize; the last to complete wins.
	Upsert(ctx context.Context, itemID string, score float64, at time.Time) error

	// TopN returns up to n entries, best first, with Rank set.
	// n <= 0 returns an empty slice.
	TopN(ctx context.Context, n int) ([]Entry, error)

	// Rank returns the entry for itemID with its 1-based position.
	// Returns ErrNotFound if the item is unknown.
	Rank(ctx context.Context, itemID string) (Entry, error)

	// Count returns the number of stored items.
	Count(ctx context.Context) (int, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Evictable is implemented by stores that support the opt-in retention policy.
type Evictable interface {
	// TrimToSize removes the lowest-ranked entries beyond max and returns how many were removed.
	TrimToSize(ctx context.Context, max int) (int, error)
	// RemoveOlderThan removes entries last written before cutoff.
	RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// RankedStore is a Store that also supports eviction. All bundled backends satisfy it.
type RankedStore interface {
	Store
	Evictable
}

var (
	_ RankedStore = (*TreapStore)(nil)
	_ RankedStore = (*RedisStore)(nil)
	_ RankedStore = (*SQLiteStore)(nil)
)
