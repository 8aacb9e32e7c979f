package testevents

import (
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// weightTier is a weight band and how often it is drawn.
type weightTier struct {
	min, span float64
	share     int
}

// Most events are ordinary views; a few are heavy interactions.
var weightTiers = []weightTier{
	{min: 0.1, span: 0.9, share: 50}, // views
	{min: 1.0, span: 2.0, share: 30}, // likes
	{min: 3.0, span: 4.0, share: 15}, // shares
	{min: 7.0, span: 3.0, share: 5},  // purchases
}

// Generator produces synthetic events over a fixed item pool.
type Generator struct {
	rng      *rand.Rand
	numItems int
	maxAge   time.Duration
	now      func() time.Time
}

// NewGenerator returns a generator seeded with seed.
func NewGenerator(seed uint64, numItems int, maxAge time.Duration) *Generator {
	if numItems < 1 {
		numItems = 1
	}
	return &Generator{
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		numItems: numItems,
		maxAge:   maxAge,
		now:      time.Now,
	}
}

// ItemID names the i-th item of the pool.
func ItemID(i int) string { return fmt.Sprintf("item-%05d", i) }

// Next returns one event with a fresh UUID event id.
func (g *Generator) Next() Event {
	ev := Event{
		EventID:   uuid.NewString(),
		ItemID:    ItemID(g.rng.IntN(g.numItems)),
		EventTime: g.now().Unix(),
		Weight:    g.weight(),
	}
	if g.maxAge > 0 {
		ev.EventTime -= g.rng.Int64N(int64(g.maxAge/time.Second) + 1)
	}
	return ev
}

// Generate returns n events.
func (g *Generator) Generate(n int) []Event {
	events := make([]Event, n)
	for i := range events {
		events[i] = g.Next()
	}
	return events
}

func (g *Generator) weight() float64 {
	total := 0
	for _, t := range weightTiers {
		total += t.share
	}
	pick := g.rng.IntN(total)
	for _, t := range weightTiers {
		if pick < t.share {
			return t.min + g.rng.Float64()*t.span
		}
		pick -= t.share
	}
	return 1
}
