package oodb

import (
	"context"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with the field names used across oodb.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger writing JSON lines to stderr at level.
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NewTextLogger creates a Logger writing logfmt style text to stderr at level.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// NoopLogger discards everything.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithSession tags every record with the session id.
func (l *Logger) WithSession(id string) *Logger {
	return &Logger{Logger: l.With("session", id)}
}

// outcome logs msg+" completed" at ok, or msg+" failed" at error level with
// err appended.
func (l *Logger) outcome(ctx context.Context, ok slog.Level, msg string, err error, args ...any) {
	if err != nil {
		l.ErrorContext(ctx, msg+" failed", append(args, "error", err)...)
		return
	}
	l.Log(ctx, ok, msg+" completed", args...)
}

// LogCommit logs a commit.
func (l *Logger) LogCommit(ctx context.Context, commit uint64, written, deleted int, d time.Duration, err error) {
	if err != nil {
		l.outcome(ctx, slog.LevelDebug, "commit", err, "written", written, "deleted", deleted)
		return
	}
	l.outcome(ctx, slog.LevelDebug, "commit", nil,
		"commit", commit,
		"written", written,
		"deleted", deleted,
		"duration", d,
	)
}

// LogRollback logs a rollback.
func (l *Logger) LogRollback(ctx context.Context, discarded int, err error) {
	l.outcome(ctx, slog.LevelDebug, "rollback", err, "discarded", discarded)
}

// LogQuery logs a finished query.
func (l *Logger) LogQuery(ctx context.Context, class string, classes, results int, d time.Duration, err error) {
	if err != nil {
		l.outcome(ctx, slog.LevelDebug, "query", err, "class", class, "classes", classes)
		return
	}
	l.outcome(ctx, slog.LevelDebug, "query", nil,
		"class", class,
		"classes", classes,
		"results", results,
		"duration", d,
	)
}

// LogVacuum logs a vacuum run.
func (l *Logger) LogVacuum(ctx context.Context, pages, records int, err error) {
	if err != nil {
		l.outcome(ctx, slog.LevelInfo, "vacuum", err)
		return
	}
	l.outcome(ctx, slog.LevelInfo, "vacuum", nil, "pages", pages, "records", records)
}
