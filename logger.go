package rowfresh

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hupe1980/rowfresh/store"
)

// Logger wraps slog.Logger with rowfresh-specific context.
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

// WithTable adds the target table field to the logger.
func (l *Logger) WithTable(table string) *Logger {
	return &Logger{
		Logger: l.Logger.With("table", table),
	}
}

// WithRequestID adds a request ID field to the logger.
func (l *Logger) WithRequestID(id string) *Logger {
	return &Logger{
		Logger: l.Logger.With("request_id", id),
	}
}

// LogGet logs the outcome of one freshened read.
func (l *Logger) LogGet(key store.RowKey, columns int, timedOut bool, d time.Duration, err error) {
	if err != nil {
		l.Error("get failed",
			"key", string(key),
			"columns", columns,
			"duration", d,
			"error", err,
		)
	} else {
		l.Debug("get completed",
			"key", string(key),
			"columns", columns,
			"timed_out", timedOut,
			"duration", d,
		)
	}
}

// LogReread logs a registry reread.
func (l *Logger) LogReread(bindings int, err error) {
	if err != nil {
		l.Error("freshener reread failed", "error", err)
	} else {
		l.Info("freshener reread completed", "bindings", bindings)
	}
}

// engineLogger adapts Logger to the narrow printf-style interface the
// freshen package logs through.
type engineLogger struct {
	l *Logger
}

func (e engineLogger) Debugf(format string, args ...interface{}) {
	e.l.Debug(fmt.Sprintf(format, args...))
}

func (e engineLogger) Infof(format string, args ...interface{}) {
	e.l.Info(fmt.Sprintf(format, args...))
}

func (e engineLogger) Errorf(format string, args ...interface{}) {
	e.l.Error(fmt.Sprintf(format, args...))
}
