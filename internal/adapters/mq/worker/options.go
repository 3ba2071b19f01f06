package worker

import (
	"github.com/okian/guardline/pkg/logger"
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

// WithReporter sets where task failures are surfaced.
func WithReporter(r ErrorReporter) Option {
	return func(w *InMemoryWorker) {
		w.reporter = r
	}
}

// PoolOption applies a configuration option to the Pool.
type PoolOption func(*Pool)

// WithQueueCapacity sets the per-shard queue capacity.
func WithQueueCapacity(capacity int) PoolOption {
	return func(p *Pool) {
		if capacity > 0 {
			p.capacity = capacity
		}
	}
}

// WithErrorReporter sets where task failures of every shard are surfaced.
func WithErrorReporter(r ErrorReporter) PoolOption {
	return func(p *Pool) {
		p.reporter = r
	}
}

// WithPoolLogger sets a custom logger for the pool.
func WithPoolLogger(l logger.Logger) PoolOption {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}
