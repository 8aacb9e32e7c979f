// Package service assembles the trending engine and its supporting
// components from configuration and exposes the operations the HTTP API needs.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/trending/internal/adapters/mq/queue"
	"github.com/okian/trending/internal/adapters/mq/worker"
	"github.com/okian/trending/internal/adapters/repository"
	"github.com/okian/trending/internal/config"
	"github.com/okian/trending/internal/domain/decay"
	"github.com/okian/trending/internal/domain/dedupe"
	"github.com/okian/trending/internal/domain/eviction"
	"github.com/okian/trending/internal/domain/model"
	"github.com/okian/trending/internal/domain/trending"
	"github.com/okian/trending/pkg/logger"
	"github.com/okian/trending/pkg/metrics"
)

const shutdownTimeout = 30 * time.Second

var (
	// ErrNotStarted is returned by operations called before Start or after Stop.
	ErrNotStarted = errors.New("service not started")
	// ErrInFlight is returned for a retry whose event id is still being
	// recorded by an earlier request. The client should retry later.
	ErrInFlight = errors.New("event with this id is still in flight")
)

// Submission statuses.
const (
	StatusAccepted  = "accepted"
	StatusQueued    = "queued"
	StatusDuplicate = "duplicate"
)

// SubmitResult describes what happened to a submitted event.
type SubmitResult struct {
	Status string
	// Item is set for synchronously recorded events.
	Item model.ItemScore
}

// Duplicate reports whether the event id had been seen before.
func (r SubmitResult) Duplicate() bool { return r.Status == StatusDuplicate }

// Service implements the API dependencies for the trending system.
type Service struct {
	mu sync.RWMutex

	cfg    *config.Config
	logger logger.Logger
	clock  trending.Clock

	store     repository.RankedStore
	ownsStore bool
	engine    *trending.Engine
	deduper   dedupe.Deduper
	queue     *queue.InMemoryQueue
	pool      *worker.Pool
	scheduler *eviction.Scheduler
	evictor   *eviction.Evictor

	started bool
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore injects a ranked store instead of building one from config.
// The caller keeps ownership and must close it.
func WithStore(store repository.RankedStore) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithClock replaces the engine clock.
func WithClock(clock trending.Clock) Option {
	return func(s *Service) {
		s.clock = clock
	}
}

// New constructs a Service. Nothing is allocated until Start.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New()
	}
	s := &Service{cfg: cfg, logger: logger.Nop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start builds every component described by the config.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	s.logger.Info(ctx, "starting trending service...",
		logger.String("backend", s.cfg.StoreBackend),
		logger.String("decay_mode", s.cfg.DecayMode),
		logger.Float64("decay_rate", s.cfg.DecayRate),
		logger.String("ingest_mode", s.cfg.IngestMode),
	)

	if s.store == nil {
		store, err := repository.New(ctx, repository.Config{
			Backend: s.cfg.StoreBackend,
			Redis: repository.RedisConfig{
				Addr:      s.cfg.RedisAddr,
				Password:  s.cfg.RedisPassword,
				DB:        s.cfg.RedisDB,
				Namespace: s.cfg.RedisNamespace,
			},
			SQLitePath: s.cfg.SQLitePath,
		})
		if err != nil {
			return fmt.Errorf("open %s store: %w", s.cfg.StoreBackend, err)
		}
		s.store = store
		s.ownsStore = true
	}

	mode, _ := decay.ParseMode(s.cfg.DecayMode)
	engine, err := trending.New(s.store,
		trending.WithRate(s.cfg.DecayRate),
		trending.WithMode(mode),
		trending.WithClock(s.clock),
		trending.WithLogger(s.logger.Named("engine")),
	)
	if err != nil {
		s.closeStore()
		return err
	}
	s.engine = engine

	if s.cfg.DedupeSize > 0 {
		s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	}

	if s.cfg.IngestMode == config.IngestAsync {
		s.queue = queue.NewInMemoryQueue(queue.WithCapacity(s.cfg.QueueSize))
		s.pool = worker.NewPool(s.cfg.WorkerCount, s.queue, s.engine,
			worker.WithLogger(s.logger),
			worker.WithFailureHook(s.forget),
			worker.WithSuccessHook(s.commit),
		)
		s.pool.Start(context.WithoutCancel(ctx))
	}

	if s.cfg.EvictionEnabled() {
		s.evictor, err = eviction.NewEvictor(s.store, eviction.Policy{
			MaxItems: s.cfg.EvictionMaxItems,
			MaxAge:   s.cfg.EvictionMaxAge(),
		}, eviction.WithLogger(s.logger.Named("eviction")))
		if err == nil {
			s.scheduler, err = eviction.NewScheduler(s.evictor, s.cfg.EvictionSchedule, s.logger.Named("eviction"))
		}
		if err == nil {
			err = s.scheduler.Start(context.WithoutCancel(ctx))
		}
		if err != nil {
			s.stopLocked(ctx)
			return err
		}
	}

	s.started = true
	s.logger.Info(ctx, "trending service started")
	return nil
}

// Stop drains the async queue, stops eviction and closes an owned store.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping trending service...")
	s.stopLocked(ctx)
	s.started = false
	s.logger.Info(ctx, "trending service stopped")
}

func (s *Service) stopLocked(ctx context.Context) {
	if s.pool != nil {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		if err := s.pool.Shutdown(sctx); err != nil {
			s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
		}
		cancel()
		s.pool, s.queue = nil, nil
	}
	if s.scheduler != nil {
		s.scheduler.Stop()
		s.scheduler = nil
	}
	s.closeStore()
}

func (s *Service) closeStore() {
	if s.ownsStore && s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Warn(context.Background(), "error closing store", logger.Error(err))
		}
		s.store = nil
		s.ownsStore = false
	}
}

// forget lets a client retry an event whose recording failed.
func (s *Service) forget(ctx context.Context, ev model.Event, _ error) { //nolint:gocritic // hugeParam
	if s.deduper != nil && ev.EventID != "" {
		s.deduper.Release(ctx, ev.EventID)
	}
}

// commit marks an event id applied once its event is in the store.
func (s *Service) commit(ctx context.Context, ev model.Event) { //nolint:gocritic // hugeParam
	if s.deduper != nil && ev.EventID != "" {
		s.deduper.Commit(ctx, ev.EventID)
	}
}

// Submit ingests one event. An event id is reported as a duplicate only after
// an earlier event with that id was recorded; a retry racing that earlier
// request gets ErrInFlight.
func (s *Service) Submit(ctx context.Context, ev model.Event) (SubmitResult, error) { //nolint:gocritic // hugeParam
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.started {
		return SubmitResult{}, ErrNotStarted
	}

	if s.deduper != nil && ev.EventID != "" {
		switch s.deduper.Reserve(ctx, ev.EventID) {
		case dedupe.Applied:
			metrics.RecordEventDuplicate()
			s.logger.Debug(ctx, "duplicate event", logger.String("event_id", ev.EventID))
			return SubmitResult{Status: StatusDuplicate}, nil
		case dedupe.Pending:
			metrics.RecordEventRejected("in_flight")
			return SubmitResult{}, ErrInFlight
		}
	}

	if s.queue == nil {
		item, err := s.engine.RecordEvent(ctx, ev)
		if err != nil {
			s.forget(ctx, ev, err)
			return SubmitResult{}, err
		}
		s.commit(ctx, ev)
		return SubmitResult{Status: StatusAccepted, Item: item}, nil
	}

	// Decay against acceptance time, not the moment a worker gets to it.
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = s.engine.Now()
	}
	if err := s.engine.Check(ev); err != nil {
		s.forget(ctx, ev, err)
		metrics.RecordEventRejected("invalid_argument")
		return SubmitResult{}, err
	}
	if err := s.queue.Enqueue(ctx, ev); err != nil {
		s.forget(ctx, ev, err)
		return SubmitResult{}, fmt.Errorf("enqueue event: %w", err)
	}
	return SubmitResult{Status: StatusQueued}, nil
}

// Trending returns the top count items.
func (s *Service) Trending(ctx context.Context, count int) ([]model.ItemScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.engine.GetTrending(ctx, count)
}

// Rank returns one item's position and score.
func (s *Service) Rank(ctx context.Context, itemID string) (model.ItemScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return model.ItemScore{}, ErrNotStarted
	}
	return s.engine.Rank(ctx, itemID)
}

// Health pings the ranked store.
func (s *Service) Health(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return ErrNotStarted
	}
	return s.store.Ping(ctx)
}

// Evict runs the eviction policy once, outside the schedule.
func (s *Service) Evict(ctx context.Context) (eviction.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return eviction.Result{}, ErrNotStarted
	}
	if s.evictor == nil {
		return eviction.Result{}, nil
	}
	return s.evictor.Run(ctx)
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	stats := map[string]any{
		"started":       s.started,
		"storeBackend":  s.cfg.StoreBackend,
		"decayMode":     s.cfg.DecayMode,
		"decayRate":     s.cfg.DecayRate,
		"ingestMode":    s.cfg.IngestMode,
		"evictionSched": s.cfg.EvictionSchedule,
	}
	if !s.started {
		return stats
	}

	if n, err := s.store.Count(ctx); err == nil {
		stats["totalItems"] = n
		metrics.UpdateStoreItems(n)
	} else {
		stats["storeError"] = err.Error()
	}
	if s.deduper != nil {
		stats["dedupeEntries"] = s.deduper.Size()
	}
	if s.queue != nil {
		stats["queueLength"] = s.queue.Len()
		stats["queueCapacity"] = s.queue.Cap()
		stats["workerCount"] = s.pool.Size()
		stats["processed"] = s.pool.Processed()
	}
	return stats
}
