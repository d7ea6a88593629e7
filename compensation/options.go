package compensation

import (
	"time"

	"github.com/warp/compensation-engine/logger"
	"github.com/warp/compensation-engine/metrics"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger. Defaults to logger.Nop().
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.log = l
		}
	}
}

// WithMetrics sets the metrics manager. A nil manager records nothing.
func WithMetrics(m *metrics.Manager) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithCalendar sets the rest-day and unknown-pattern policies.
func WithCalendar(c Calendar) Option {
	return func(e *Engine) { e.calendar = c }
}

// WithLocation sets the time zone timestamps are read in.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.loc = loc
		}
	}
}

// WithClock replaces time.Now, which decides "today" for absences.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithFallbackPolicy sets how students without an ownership record are billed.
func WithFallbackPolicy(p FallbackPolicy) Option {
	return func(e *Engine) {
		if p != "" {
			e.fallback = p
		}
	}
}

// WithConcurrency bounds parallel computations in ComputeAllCompensation.
func WithConcurrency(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithInstructorTimeout bounds one instructor's computation in a batch.
func WithInstructorTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithCache sets the result cache. Use NewTieredCache to share a
// process-wide tier between engines.
func WithCache(c Cache) Option {
	return func(e *Engine) {
		if c != nil {
			e.cache = c
		}
	}
}
