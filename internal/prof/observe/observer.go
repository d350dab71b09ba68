// Package observe carries the profiler's diagnostic events to log/slog.
//
// Subsystems never log directly. They emit an Event to an Observer; the
// runtime wires a SlogObserver (optionally behind a ThrottledObserver) at
// Init. Level values align with OpenTelemetry severity numbers.
package observe

import (
	"context"
	"log/slog"
	"time"
)

// Level represents event severity aligned with OTel SeverityNumber ranges.
type Level int

const (
	LevelVerbose Level = 5  // OTel DEBUG (5-8), maps to slog.LevelDebug
	LevelInfo    Level = 9  // OTel INFO (9-12), maps to slog.LevelInfo
	LevelWarning Level = 13 // OTel WARN (13-16), maps to slog.LevelWarn
	LevelError   Level = 17 // OTel ERROR (17-20), maps to slog.LevelError
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

// EventType identifies the kind of event, e.g. "dispatch.hook.deactivated".
type EventType string

// Event types emitted by the profiler subsystems.
const (
	EventPluginRegistered EventType = "dispatch.plugin.registered"
	EventHookDeactivated  EventType = "dispatch.hook.deactivated"
	EventEnabledChanged   EventType = "dispatch.enabled.changed"
	EventFinalizeStart    EventType = "dispatch.finalize.start"
	EventFinalizeDone     EventType = "dispatch.finalize.done"
	EventHookStats        EventType = "dispatch.hook.stats"
	EventFilterDecision   EventType = "filter.decision"
	EventFilterUnknown    EventType = "filter.unknown_hook"
	EventFilterRecursive  EventType = "filter.recursive"
	EventShadowDegraded   EventType = "shadow.degraded"
	EventSnapshotSaved    EventType = "rtdb.snapshot.saved"
	EventPluginLoaded     EventType = "loader.plugin.loaded"
	EventReplayDone       EventType = "replay.done"
	EventAnalysisError    EventType = "analysis.error"
)

// Event is a diagnostic event. Fields map to OTel LogRecord fields:
// Type→EventName, Level→SeverityNumber, Source→InstrumentationScope,
// Data→Attributes.
type Event struct {
	Type      EventType
	Level     Level
	Timestamp time.Time
	Source    string
	Data      map[string]any
}

// Observer receives events from subsystems.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
}

// Emit stamps and sends an event to obs. A nil observer drops the event.
func Emit(obs Observer, typ EventType, level Level, src string, data map[string]any) {
	if obs == nil {
		return
	}
	obs.OnEvent(context.Background(), Event{
		Type:      typ,
		Level:     level,
		Timestamp: time.Now(),
		Source:    src,
		Data:      data,
	})
}
