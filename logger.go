package lindex

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with lindex-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// LogGet logs a point lookup. Negative lookups are normal results and are
// logged at debug level like hits.
func (l *Logger) LogGet(key uint64, found bool) {
	l.Debug("get completed",
		"key", key,
		"found", found,
	)
}

// LogPut logs an insert/overwrite.
func (l *Logger) LogPut(key uint64, retries int, err error) {
	if err != nil {
		l.Error("put failed",
			"key", key,
			"error", err,
		)
	} else if retries > 0 {
		l.Debug("put completed after re-route",
			"key", key,
			"retries", retries,
		)
	} else {
		l.Debug("put completed",
			"key", key,
		)
	}
}

// LogRemove logs a delete.
func (l *Logger) LogRemove(key uint64, found bool) {
	l.Debug("remove completed",
		"key", key,
		"found", found,
	)
}

// LogScan logs a scan or range scan.
func (l *Logger) LogScan(begin uint64, results int) {
	l.Debug("scan completed",
		"begin", begin,
		"results", results,
	)
}

// LogAdjustment logs the outcome of a forced adjustment round.
func (l *Logger) LogAdjustment(structural bool, st Stats) {
	if structural {
		l.Info("adjustment rebuilt root",
			"group_n", st.GroupCount,
			"rmi_2nd_stage_model_n", st.SecondStageModels,
			"avg_group_error", st.AvgGroupError,
			"max_group_error", st.MaxGroupError,
		)
	} else {
		l.Debug("adjustment round without structural change",
			"group_n", st.GroupCount,
		)
	}
}

// LogLeak surfaces an accounting inconsistency at shutdown. It indicates a
// reclamation bug and must be loud even though it is diagnostic only.
func (l *Logger) LogLeak(bytes uint64, overRelease bool) {
	if overRelease {
		l.Error("byte accountant released more than it grabbed",
			"bytes", bytes,
		)
	} else {
		l.Error("leaking bytes at shutdown",
			"bytes", bytes,
		)
	}
}
