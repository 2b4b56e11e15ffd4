package lindex

import (
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/hupe1980/lindex/engine"
)

type options struct {
	cfg              engine.Config
	backgroundN      int
	adjustInterval   time.Duration
	adjustLimiter    *rate.Limiter
	metricsCollector MetricsCollector
	logger           *Logger
}

// Option configures index construction.
type Option func(*options)

// WithWorkers sets the number of foreground workers whose epoch progress is
// tracked for memory reclamation. Operation worker ids must lie in
// [0, n). Default: 1.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.cfg.WorkerN = n
	}
}

// WithBackgroundWorkers sets the number of background adjustment worker
// tasks per round. 0 disables background adjustment entirely; structural
// maintenance then runs only through ForceAdjustment. Default: 0.
func WithBackgroundWorkers(n int) Option {
	return func(o *options) {
		o.backgroundN = n
	}
}

// WithRootErrorBound sets the maximum tolerated prediction error of the
// root routing model over group pivots. The bound is what keeps group
// location a bounded local search instead of a full pivot scan.
func WithRootErrorBound(n int) Option {
	return func(o *options) {
		o.cfg.RootErrorBound = n
	}
}

// WithRootMemoryConstraint caps, in bytes, the memory spent on second-stage
// routing models.
func WithRootMemoryConstraint(bytes int) Option {
	return func(o *options) {
		o.cfg.RootMemoryConstraint = bytes
	}
}

// WithGroupErrorBound sets the maximum tolerated worst-case prediction
// error of a group model over its sorted array. A fit exceeding the bound
// is rejected and triggers a finer partition (a split).
func WithGroupErrorBound(n int) Option {
	return func(o *options) {
		o.cfg.GroupErrorBound = n
	}
}

// WithGroupErrorTolerance sets the mean-error threshold above which a group
// becomes a split candidate after compaction.
func WithGroupErrorTolerance(tol float64) Option {
	return func(o *options) {
		o.cfg.GroupErrorTolerance = tol
	}
}

// WithBufferSizeBound sets the nominal capacity of each group write buffer.
func WithBufferSizeBound(n int) Option {
	return func(o *options) {
		o.cfg.BufferSizeBound = n
	}
}

// WithBufferSizeTolerance sets the slack beyond the buffer size bound
// before a put signals need-for-compaction.
func WithBufferSizeTolerance(n int) Option {
	return func(o *options) {
		o.cfg.BufferSizeTolerance = n
	}
}

// WithBufferCompactThreshold controls how aggressively background rounds
// compact non-full buffers: a buffer holding at least bound/threshold
// entries is compacted opportunistically. Higher values compact earlier.
// A tunable, not a correctness parameter; correctness holds at any
// threshold > 0.
func WithBufferCompactThreshold(n int) Option {
	return func(o *options) {
		o.cfg.BufferCompactThreshold = n
	}
}

// WithMaxGroupSize sets the array size beyond which a group becomes a split
// candidate regardless of model error.
func WithMaxGroupSize(n int) Option {
	return func(o *options) {
		o.cfg.MaxGroupSize = n
	}
}

// WithMinGroupSize sets the array size below which a group is considered
// for merging with its neighbor.
func WithMinGroupSize(n int) Option {
	return func(o *options) {
		o.cfg.MinGroupSize = n
	}
}

// WithAdjustInterval sets the pause between background adjustment rounds.
func WithAdjustInterval(d time.Duration) Option {
	return func(o *options) {
		o.adjustInterval = d
	}
}

// WithAdjustRateLimit paces per-group background adjustment work, bounding
// the compaction pressure background rounds put on the memory subsystem.
// Foreground operations are never rate limited.
func WithAdjustRateLimit(limit rate.Limit, burst int) Option {
	return func(o *options) {
		o.adjustLimiter = rate.NewLimiter(limit, burst)
	}
}

// WithMetricsCollector configures a metrics collector for monitoring
// operations. Pass nil to disable metrics collection.
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger at the given level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		cfg: engine.Config{
			RootErrorBound:         32,
			RootMemoryConstraint:   1 << 20,
			GroupErrorBound:        32,
			GroupErrorTolerance:    8,
			BufferSizeBound:        256,
			BufferSizeTolerance:    32,
			BufferCompactThreshold: 2,
			WorkerN:                1,
		},
		adjustInterval:   engine.DefaultAdjustInterval,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	return o
}
