// Package model contains domain models passed between layers.
package model

import "time"

// DefaultWeight is applied when an event does not carry a weight.
const DefaultWeight = 1.0

// Event is a single timestamped, weighted occurrence of activity for an item.
// It is not persisted as such; only the score derived from it is stored.
type Event struct {
	EventID   string  // optional idempotency key supplied by the client
	ItemID    string  // item the activity belongs to
	EventTime int64   // unix seconds when the activity happened
	Weight    float64 // importance of the activity, > 0

	// ReceivedAt, when set, is the decay reference time used instead of the
	// engine clock. Deferred ingestion stamps it when the event is accepted.
	ReceivedAt time.Time
}

// ItemScore is the ranked store's unit: one entry per item.
type ItemScore struct {
	Rank      int // 1-based position in the ranking; 0 when unknown
	ItemID    string
	Score     float64
	UpdatedAt time.Time // when the entry was last written
}
