// Package observability delivers database lifecycle events (session, commit,
// rollback, query) to observers. Level values follow OpenTelemetry severity
// numbers.
package observability

import (
	"context"
	"log/slog"
	"time"
)

// Level represents event severity aligned with OTel SeverityNumber ranges.
type Level int

const (
	LevelVerbose Level = 5  // OTel DEBUG (5-8)
	LevelInfo    Level = 9  // OTel INFO (9-12)
	LevelWarning Level = 13 // OTel WARN (13-16)
	LevelError   Level = 17 // OTel ERROR (17-20)
)

// String returns the OTel severity text for the level.
func (l Level) String() string {
	switch {
	case l <= 4:
		return "TRACE"
	case l <= 8:
		return "DEBUG"
	case l <= 12:
		return "INFO"
	case l <= 16:
		return "WARN"
	case l <= 20:
		return "ERROR"
	default:
		return "FATAL"
	}
}

// SlogLevel maps this level to the corresponding slog.Level.
func (l Level) SlogLevel() slog.Level {
	switch {
	case l <= 8:
		return slog.LevelDebug
	case l <= 12:
		return slog.LevelInfo
	case l <= 16:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// EventType identifies the kind of event.
type EventType string

const (
	EventSessionOpen  EventType = "session.open"
	EventSessionClose EventType = "session.close"
	EventCommitStart  EventType = "commit.start"
	EventCommitEnd    EventType = "commit.end"
	EventRollback     EventType = "rollback"
	EventQueryStart   EventType = "query.start"
	EventQueryEnd     EventType = "query.end"
	EventVacuum       EventType = "vacuum"
)

// Event is an observability event.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// NewEvent returns an info event stamped with the current time.
func NewEvent(typ EventType, source string, data map[string]any) Event {
	return Event{Type: typ, Level: LevelInfo, Timestamp: time.Now(), Source: source, Data: data}
}

// Observer receives events.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, event Event)

func (f ObserverFunc) OnEvent(ctx context.Context, event Event) { f(ctx, event) }
