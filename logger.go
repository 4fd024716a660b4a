package lodstream

import (
	"context"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"

	"github.com/hupe1980/lodstream/model"
	"github.com/hupe1980/lodstream/stream"
)

// Logger wraps slog.Logger with streaming-specific helpers.
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

	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.DiscardHandler)}
}

// WithModel adds a model field to the logger.
func (l *Logger) WithModel(id model.ModelID) *Logger {
	return &Logger{Logger: l.Logger.With("model", id)}
}

// WithFrame adds a frame field to the logger.
func (l *Logger) WithFrame(frame uint64) *Logger {
	return &Logger{Logger: l.Logger.With("frame", frame)}
}

// LogModelAdded logs a staged model.
func (l *Logger) LogModelAdded(ctx context.Context, path string, id model.ModelID, err error) {
	if err != nil {
		l.ErrorContext(ctx, "add model failed",
			"path", path,
			"error", err,
		)

		return
	}

	l.InfoContext(ctx, "model added",
		"path", path,
		"model", id,
	)
}

// LogReconcile logs one reconcile pass. Quiet frames log at debug level.
func (l *Logger) LogReconcile(ctx context.Context, r ReconcileStats, err error) {
	if err != nil {
		l.ErrorContext(ctx, "reconcile failed",
			"frame", r.Frame,
			"error", err,
		)

		return
	}

	level := slog.LevelDebug
	if r.Failed > 0 {
		level = slog.LevelWarn
	}

	l.Log(ctx, level, "reconcile",
		"frame", r.Frame,
		"committed", r.Committed,
		"failed", r.Failed,
		"cancelled", r.Cancelled,
		"applied", r.Applied,
		"bytes", humanize.IBytes(r.Bytes),
	)
}

// LogLoadFailed logs a job whose read failed.
func (l *Logger) LogLoadFailed(ctx context.Context, job model.Job, err error) {
	l.WarnContext(ctx, "load failed",
		"model", job.Model,
		"node", job.Node,
		"slot", job.Slot,
		"error", err,
	)
}

// LogMeasure logs a throughput measurement.
func (l *Logger) LogMeasure(ctx context.Context, m stream.Measurement) {
	l.InfoContext(ctx, "measurement",
		"duration", m.Duration,
		"bytes", humanize.IBytes(m.Bytes),
		"loads", m.Loads,
		"failures", m.Failures,
		"rate", humanize.IBytes(uint64(m.BytesPerSecond()))+"/s",
	)
}
