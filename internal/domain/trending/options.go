package trending

import (
	"github.com/okian/trending/internal/domain/decay"
	"github.com/okian/trending/pkg/logger"
)

// Option configures an Engine.
type Option func(*Engine)

// WithRate sets the decay rate per second.
func WithRate(rate float64) Option {
	return func(e *Engine) { e.rate = rate }
}

// WithMode selects write-time or read-time decay.
func WithMode(mode decay.Mode) Option {
	return func(e *Engine) {
		if mode != "" {
			e.mode = mode
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(clock Clock) Option {
	return func(e *Engine) {
		if clock != nil {
			e.now = clock
		}
	}
}

// WithLogger sets the engine logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}
