package eviction

import (
	"context"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/okian/trending/pkg/logger"
)

const stopTimeout = 5 * time.Second

// Scheduler runs an Evictor on a cron schedule. Expressions include a
// leading seconds field, e.g. "0 */5 * * * *".
type Scheduler struct {
	evictor *Evictor
	spec    string
	log     logger.Logger

	mu     sync.Mutex
	cron   *rcron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler parses spec eagerly so bad configuration fails at startup.
func NewScheduler(evictor *Evictor, spec string, l logger.Logger) (*Scheduler, error) {
	if _, err := rcron.NewParser(
		rcron.Second | rcron.Minute | rcron.Hour | rcron.Dom | rcron.Month | rcron.Dow | rcron.Descriptor,
	).Parse(spec); err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %w", ErrInvalidPolicy, spec, err)
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Scheduler{evictor: evictor, spec: spec, log: l}, nil
}

// Start registers the job and starts the cron loop. Runs never overlap.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	c := rcron.New(
		rcron.WithSeconds(),
		rcron.WithChain(rcron.SkipIfStillRunning(rcron.DiscardLogger)),
	)
	if _, err := c.AddFunc(s.spec, s.runOnce); err != nil {
		s.cancel()
		return fmt.Errorf("register eviction job: %w", err)
	}
	c.Start()
	s.cron = c
	s.log.Info(ctx, "eviction scheduler started",
		logger.String("schedule", s.spec),
		logger.Int("max_items", s.evictor.policy.MaxItems),
		logger.Duration("max_age", s.evictor.policy.MaxAge),
	)
	return nil
}

func (s *Scheduler) runOnce() {
	if _, err := s.evictor.Run(s.ctx); err != nil {
		s.log.Error(s.ctx, "eviction run failed", logger.Error(err))
	}
}

// Stop halts the schedule and waits briefly for an in-flight run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.mu.Unlock()

	if c == nil {
		return
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(stopTimeout):
		s.log.Warn(context.Background(), "stop timeout waiting for eviction run")
	}
	cancel()
}
