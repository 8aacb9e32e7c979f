package worker

import (
	"github.com/okian/trending/pkg/logger"
)

// Option applies a configuration option to the InMemoryWorker.
type Option func(*InMemoryWorker)

// WithName sets the worker name for identification and logging.
func WithName(name string) Option {
	return func(w *InMemoryWorker) {
		if name != "" {
			w.name = name
		}
	}
}

// WithLogger sets a custom logger for the worker.
func WithLogger(l logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithFailureHook registers a callback for events that could not be recorded.
func WithFailureHook(fn FailureHook) Option {
	return func(w *InMemoryWorker) {
		w.onFailure = fn
	}
}

// WithSuccessHook registers a callback for events that were recorded.
func WithSuccessHook(fn SuccessHook) Option {
	return func(w *InMemoryWorker) {
		w.onSuccess = fn
	}
}
