// Package trending ranks items by the time-decayed score of their most
// recent event.
//
// Every event overwrites its item's entry, so the ranking reflects only the
// latest event per item, never an accumulation. In write mode the score is
// evaluated once at ingestion and left alone afterwards; in read mode a
// time-invariant key is stored and decayed on each query.
package trending

import (
	"context"
	"time"

	"github.com/okian/trending/internal/domain/decay"
	"github.com/okian/trending/internal/domain/model"
	"github.com/okian/trending/pkg/logger"
	"github.com/okian/trending/pkg/metrics"
)

// DefaultRate is the decay rate per second used when none is configured.
const DefaultRate = 0.0001

// Store is the subset of the ranked store the engine needs.
type Store interface {
	Upsert(ctx context.Context, itemID string, score float64, at time.Time) error
	TopN(ctx context.Context, n int) ([]model.ItemScore, error)
	Rank(ctx context.Context, itemID string) (model.ItemScore, error)
}

// Clock returns the current time.
type Clock func() time.Time

// Engine turns events into ranked scores.
type Engine struct {
	store Store
	rate  float64
	mode  decay.Mode
	now   Clock
	log   logger.Logger
}

// New builds an engine over store. The rate is validated here so that
// ingestion only has to check per-event input.
func New(store Store, opts ...Option) (*Engine, error) {
	e := &Engine{
		store: store,
		rate:  DefaultRate,
		mode:  decay.ModeWrite,
		now:   time.Now,
		log:   logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	if err := decay.Validate(model.DefaultWeight, e.rate); err != nil {
		return nil, invalid("new", "decay_rate", err)
	}
	if e.mode != decay.ModeWrite && e.mode != decay.ModeRead {
		return nil, invalid("new", "decay_mode", ErrInvalidArgument)
	}
	return e, nil
}

// Rate returns the configured decay rate.
func (e *Engine) Rate() float64 { return e.rate }

// Mode returns the configured decay mode.
func (e *Engine) Mode() decay.Mode { return e.mode }

// Now reads the engine clock.
func (e *Engine) Now() time.Time { return e.now() }

// evalSeconds is the decay reference for ev in whole seconds: its ReceivedAt
// stamp if set, otherwise the clock.
func (e *Engine) evalSeconds(ev *model.Event) int64 {
	if !ev.ReceivedAt.IsZero() {
		return ev.ReceivedAt.Unix()
	}
	return e.now().Unix()
}

// Check runs the validation RecordEvent would apply at the current time,
// without writing. Callers that defer recording use it to reject bad input early.
func (e *Engine) Check(ev model.Event) error {
	_, _, err := e.evaluate("check", ev, e.evalSeconds(&ev))
	return err
}

// evaluate returns the decayed score and the value to store for ev at now.
func (e *Engine) evaluate(op string, ev model.Event, now int64) (score, stored float64, err error) { //nolint:gocritic // hugeParam: value semantics match the queue
	if ev.ItemID == "" {
		return 0, 0, invalid(op, "item_id", ErrInvalidArgument)
	}

	score, err = decay.Score(ev.Weight, ev.EventTime, now, e.rate)
	if err != nil {
		field := "weight"
		if decay.Validate(ev.Weight, e.rate) == nil {
			field = "event_time"
		}
		return 0, 0, invalid(op, field, err)
	}

	stored = score
	if e.mode == decay.ModeRead {
		if stored, err = decay.Key(ev.Weight, ev.EventTime, e.rate); err != nil {
			return 0, 0, invalid(op, "weight", err)
		}
	}
	return score, stored, nil
}

// RecordEvent scores ev against its ReceivedAt stamp, or the current time,
// and overwrites the item's entry.
// The returned ItemScore carries the score as evaluated at ingestion.
func (e *Engine) RecordEvent(ctx context.Context, ev model.Event) (model.ItemScore, error) { //nolint:gocritic // hugeParam
	const op = "record_event"
	start := time.Now()

	now := e.evalSeconds(&ev)
	score, stored, err := e.evaluate(op, ev, now)
	if err != nil {
		metrics.RecordEventRejected("invalid_argument")
		return model.ItemScore{}, err
	}

	at := time.Unix(now, 0)
	if err := e.store.Upsert(ctx, ev.ItemID, stored, at); err != nil {
		metrics.RecordEventRejected("store")
		e.log.Error(ctx, "upsert failed", logger.String("item_id", ev.ItemID), logger.Error(err))
		return model.ItemScore{}, storeErr(op, err)
	}

	metrics.RecordEventIngested(score)
	metrics.RecordIngestLatency(metrics.SinceMs(start))
	e.log.Debug(ctx, "event recorded",
		logger.String("item_id", ev.ItemID),
		logger.Int64("event_time", ev.EventTime),
		logger.Float64("weight", ev.Weight),
		logger.Float64("score", score),
	)
	return model.ItemScore{ItemID: ev.ItemID, Score: score, UpdatedAt: at}, nil
}

// GetTrending returns up to count items, highest score first.
// count <= 0 yields an empty list without touching the store.
func (e *Engine) GetTrending(ctx context.Context, count int) ([]model.ItemScore, error) {
	const op = "get_trending"
	start := time.Now()
	defer func() { metrics.RecordQueryLatency(metrics.SinceMs(start)) }()
	metrics.RecordTrendingQuery("top")

	if count <= 0 {
		return []model.ItemScore{}, nil
	}

	items, err := e.store.TopN(ctx, count)
	if err != nil {
		return nil, storeErr(op, err)
	}
	if e.mode == decay.ModeRead {
		now := e.now().Unix()
		for i := range items {
			items[i].Score = decay.FromKey(items[i].Score, now, e.rate)
		}
	}
	return items, nil
}

// Rank looks up a single item's position and score.
func (e *Engine) Rank(ctx context.Context, itemID string) (model.ItemScore, error) {
	const op = "rank"
	start := time.Now()
	defer func() { metrics.RecordQueryLatency(metrics.SinceMs(start)) }()
	metrics.RecordTrendingQuery("rank")

	if itemID == "" {
		return model.ItemScore{}, invalid(op, "item_id", ErrInvalidArgument)
	}

	item, err := e.store.Rank(ctx, itemID)
	if err != nil {
		return model.ItemScore{}, storeErr(op, err)
	}
	if e.mode == decay.ModeRead {
		item.Score = decay.FromKey(item.Score, e.now().Unix(), e.rate)
	}
	return item, nil
}
