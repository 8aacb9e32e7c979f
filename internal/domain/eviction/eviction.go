// Package eviction bounds the ranked store by size and by entry age.
//
// Nothing here runs unless a Policy enables at least one bound; the engine
// itself never deletes entries.
package eviction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/trending/pkg/logger"
	"github.com/okian/trending/pkg/metrics"
)

// ErrInvalidPolicy is returned for negative bounds.
var ErrInvalidPolicy = errors.New("invalid eviction policy")

// Policy describes which bounds apply. Zero disables a bound.
type Policy struct {
	MaxItems int
	MaxAge   time.Duration
}

// Enabled reports whether any bound is set.
func (p Policy) Enabled() bool { return p.MaxItems > 0 || p.MaxAge > 0 }

// Validate rejects negative bounds.
func (p Policy) Validate() error {
	if p.MaxItems < 0 {
		return fmt.Errorf("%w: max items %d", ErrInvalidPolicy, p.MaxItems)
	}
	if p.MaxAge < 0 {
		return fmt.Errorf("%w: max age %s", ErrInvalidPolicy, p.MaxAge)
	}
	return nil
}

// Target is the store surface eviction needs.
type Target interface {
	TrimToSize(ctx context.Context, max int) (int, error)
	RemoveOlderThan(ctx context.Context, cutoff time.Time) (int, error)
}

// Result counts what a run removed.
type Result struct {
	Expired int
	Trimmed int
}

// Total is Expired+Trimmed.
func (r Result) Total() int { return r.Expired + r.Trimmed }

// Evictor applies a Policy to a Target.
type Evictor struct {
	target Target
	policy Policy
	now    func() time.Time
	log    logger.Logger
}

// Option configures an Evictor.
type Option func(*Evictor)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Evictor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Evictor) {
		if l != nil {
			e.log = l
		}
	}
}

// NewEvictor validates the policy and builds an Evictor.
func NewEvictor(target Target, policy Policy, opts ...Option) (*Evictor, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	e := &Evictor{target: target, policy: policy, now: time.Now, log: logger.Nop()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Policy returns the configured policy.
func (e *Evictor) Policy() Policy { return e.policy }

// Run expires old entries first, then trims what is left to MaxItems.
func (e *Evictor) Run(ctx context.Context) (Result, error) {
	var res Result
	if !e.policy.Enabled() {
		return res, nil
	}

	if e.policy.MaxAge > 0 {
		n, err := e.target.RemoveOlderThan(ctx, e.now().Add(-e.policy.MaxAge))
		if err != nil {
			metrics.RecordEvictionRun("error")
			return res, fmt.Errorf("expire entries: %w", err)
		}
		res.Expired = n
		metrics.RecordEvicted("age", n)
	}

	if e.policy.MaxItems > 0 {
		n, err := e.target.TrimToSize(ctx, e.policy.MaxItems)
		if err != nil {
			metrics.RecordEvictionRun("error")
			return res, fmt.Errorf("trim entries: %w", err)
		}
		res.Trimmed = n
		metrics.RecordEvicted("size", n)
	}

	metrics.RecordEvictionRun("ok")
	if res.Total() > 0 {
		e.log.Info(ctx, "evicted entries",
			logger.Int("expired", res.Expired),
			logger.Int("trimmed", res.Trimmed),
		)
	}
	return res, nil
}
