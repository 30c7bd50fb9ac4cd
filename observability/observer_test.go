package observability

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevel(t *testing.T) {
	tests := []struct {
		level Level
		text  string
		slog  slog.Level
	}{
		{LevelVerbose, "DEBUG", slog.LevelDebug},
		{LevelInfo, "INFO", slog.LevelInfo},
		{LevelWarning, "WARN", slog.LevelWarn},
		{LevelError, "ERROR", slog.LevelError},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.text, tt.level.String())
			assert.Equal(t, tt.slog, tt.level.SlogLevel())
		})
	}
	assert.Equal(t, "TRACE", Level(1).String())
	assert.Equal(t, "FATAL", Level(21).String())
}

func TestMultiObserver(t *testing.T) {
	var a, b Recorder
	multi := NewMultiObserver(&a, nil, &b)

	multi.OnEvent(context.Background(), NewEvent(EventCommitStart, "test", nil))
	multi.OnEvent(context.Background(), NewEvent(EventCommitEnd, "test", nil))

	assert.Equal(t, []EventType{EventCommitStart, EventCommitEnd}, a.Types())
	assert.Equal(t, a.Types(), b.Types())
	assert.Equal(t, 1, b.Count(EventCommitEnd))

	a.Reset()
	assert.Empty(t, a.Events())
}

func TestSlogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	obs := NewSlogObserver(logger)

	obs.OnEvent(context.Background(), NewEvent(EventQueryEnd, "query", map[string]any{"results": 3}))
	out := buf.String()
	assert.Contains(t, out, "query.end")
	assert.Contains(t, out, "source=query")
	assert.Contains(t, out, "results=3")

	buf.Reset()
	obs.OnEvent(context.Background(), Event{Type: EventQueryStart, Level: LevelVerbose})
	assert.Empty(t, buf.String(), "debug events are filtered by an info handler")
}

func TestObserverFunc(t *testing.T) {
	var got EventType
	var obs Observer = ObserverFunc(func(_ context.Context, e Event) { got = e.Type })
	obs.OnEvent(context.Background(), NewEvent(EventRollback, "s", nil))
	assert.Equal(t, EventRollback, got)

	NoOpObserver{}.OnEvent(context.Background(), NewEvent(EventVacuum, "s", nil))
}
