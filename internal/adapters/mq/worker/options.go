package worker

import (
	"github.com/pacelane/stride/pkg/logger"
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
func WithLogger(log logger.Logger) Option {
	return func(w *InMemoryWorker) {
		if log != nil {
			w.logger = log
		}
	}
}

// withBusyTracker wires the pool's active/idle gauge bookkeeping into the
// worker loop.
func withBusyTracker(track func(delta int)) Option {
	return func(w *InMemoryWorker) {
		if track != nil {
			w.busy = track
		}
	}
}
