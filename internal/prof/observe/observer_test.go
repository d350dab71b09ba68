package observe

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// recorder collects events for assertions.
type recorder struct {
	events []Event
}

func (r *recorder) OnEvent(_ context.Context, e Event) {
	r.events = append(r.events, e)
}

func TestLevelMapping(t *testing.T) {
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
}

func TestSlogObserver(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	obs := NewSlogObserver(logger)

	Emit(obs, EventHookDeactivated, LevelVerbose, "dispatch", map[string]any{
		"plugin": "typedarray",
		"hook":   "literal",
	})

	out := buf.String()
	assert.Contains(t, out, "dispatch.hook.deactivated")
	assert.Contains(t, out, "source=dispatch")
	assert.Contains(t, out, "hook=literal")
	assert.Contains(t, out, "plugin=typedarray")
}

func TestSlogObserver_LevelFiltered(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))

	Emit(NewSlogObserver(logger), EventFilterDecision, LevelVerbose, "filter", nil)

	assert.Empty(t, buf.String())
}

func TestMultiObserver(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	m := NewMultiObserver(a, nil, b)

	Emit(m, EventReplayDone, LevelInfo, "replay", nil)

	assert.Len(t, a.events, 1)
	assert.Len(t, b.events, 1)
}

func TestEmit_NilObserver(t *testing.T) {
	assert.NotPanics(t, func() {
		Emit(nil, EventReplayDone, LevelInfo, "replay", nil)
	})
}

func TestThrottledObserver(t *testing.T) {
	rec := &recorder{}
	obs := NewThrottledObserver(rec, time.Hour, 2)

	for i := 0; i < 5; i++ {
		Emit(obs, EventShadowDegraded, LevelWarning, "shadow", nil)
	}
	for i := 0; i < 3; i++ {
		Emit(obs, EventFilterDecision, LevelVerbose, "filter", nil)
	}

	assert.Len(t, rec.events, 5, "2 warnings + 3 verbose events")
	assert.Equal(t, 3, obs.Dropped(EventShadowDegraded))
	assert.Equal(t, 0, obs.Dropped(EventFilterDecision))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("chatty"))
}
