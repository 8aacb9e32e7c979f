// Package worker drains the ingestion queue into the trending engine.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"slices"
	"strconv"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/trending/internal/domain/model"
	"github.com/okian/trending/pkg/logger"
	"github.com/okian/trending/pkg/metrics"
)

// Event is what workers read off the queue.
type Event = model.Event

// Recorder applies one event to the ranking.
type Recorder interface {
	RecordEvent(ctx context.Context, ev model.Event) (model.ItemScore, error)
}

// Source is the receive side of a queue.
type Source interface {
	Dequeue() <-chan Event
}

// FailureHook is told about events a worker could not record.
type FailureHook func(ctx context.Context, ev Event, err error)

// SuccessHook is told about events a worker recorded.
type SuccessHook func(ctx context.Context, ev Event)

// InMemoryWorker records events from a Source until it is closed.
type InMemoryWorker struct {
	source    Source
	recorder  Recorder
	name      string
	onFailure FailureHook
	onSuccess SuccessHook
	logger    logger.Logger

	processed *atomic.Int64
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(source Source, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		source:    source,
		recorder:  recorder,
		name:      "worker",
		logger:    logger.Nop(),
		processed: &atomic.Int64{},
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run processes events until the source channel is closed or ctx is done.
// Events still buffered when the source closes are drained first.
func (w *InMemoryWorker) Run(ctx context.Context) {
	events := w.source.Dequeue()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			metrics.RecordQueueDequeue()
			if err := w.process(ctx, ev); err != nil {
				w.logger.Error(ctx, "error processing event", logger.Error(err))
			}
		}
	}
}

// Processed returns how many events this worker recorded successfully.
func (w *InMemoryWorker) Processed() int64 { return w.processed.Load() }

func (w *InMemoryWorker) process(ctx context.Context, ev Event) error { //nolint:gocritic // hugeParam: value from channel
	start := time.Now()
	defer func() { metrics.RecordWorkerProcessingLatency(metrics.SinceMs(start)) }()

	if _, err := w.recorder.RecordEvent(ctx, ev); err != nil {
		metrics.RecordWorkerError()
		if w.onFailure != nil {
			w.onFailure(ctx, ev, err)
		}
		return fmt.Errorf("record event %q for item %q: %w", ev.EventID, ev.ItemID, err)
	}
	w.processed.Add(1)
	if w.onSuccess != nil {
		w.onSuccess(ctx, ev)
	}
	return nil
}

// Pool runs a fixed set of workers over one source.
type Pool struct {
	workers []*InMemoryWorker
	closer  interface{ Close() error }

	group  *errgroup.Group
	cancel context.CancelFunc
	done   chan struct{}
	logger logger.Logger
}

// NewPool creates workerCount workers. workerCount < 1 means one per CPU.
// If source also implements Close, Shutdown closes it before draining.
func NewPool(workerCount int, source Source, recorder Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		done:    make(chan struct{}),
		logger:  logger.Nop(),
	}
	if c, ok := source.(interface{ Close() error }); ok {
		p.closer = c
	}

	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(source, recorder,
			append(slices.Clip(opts), WithName("worker-"+strconv.Itoa(i)))...)
	}
	if len(p.workers) > 0 {
		p.logger = p.workers[0].logger
	}

	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Processed sums successful records across workers.
func (p *Pool) Processed() int64 {
	var n int64
	for _, w := range p.workers {
		n += w.Processed()
	}
	return n
}

// Start launches every worker. Workers stop when ctx is cancelled or the
// source is closed and drained.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	p.group, ctx = errgroup.WithContext(ctx)
	for _, w := range p.workers {
		p.group.Go(func() error {
			w.Run(ctx)
			return nil
		})
	}
	go func() {
		_ = p.group.Wait()
		close(p.done)
	}()
}

// Shutdown closes the source and waits for workers to drain it. If ctx
// expires first the remaining workers are cancelled and buffered events are lost.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.closer != nil {
		if err := p.closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}
	if p.group == nil {
		return nil
	}

	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		p.cancel()
		<-p.done
		p.logger.Warn(ctx, "worker pool shutdown timed out")
		return fmt.Errorf("worker pool shutdown: %w", ctx.Err())
	}
}
