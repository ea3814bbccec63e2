package engine

import (
	"time"

	"github.com/pacelane/stride/pkg/logger"
)

// Default engine configuration.
const (
	defaultCacheTimeout       = 250 * time.Millisecond
	defaultSourceTimeout      = 5 * time.Second
	defaultRebuildParallelism = 8
)

// Option applies a configuration option to the Engine.
type Option func(*Engine)

// WithCacheTimeout bounds each sorted-score store call.
func WithCacheTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.cacheTimeout = d
		}
	}
}

// WithSourceTimeout bounds each source-of-truth call.
func WithSourceTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sourceTimeout = d
		}
	}
}

// WithRebuildParallelism caps concurrent member aggregations during rebuild.
func WithRebuildParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.rebuildParallelism = n
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(log logger.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}
