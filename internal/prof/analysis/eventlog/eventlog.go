// Package eventlog writes one line per dispatched event.
//
// It is the simplest useful analysis and doubles as a tracing aid when
// writing new ones:
//
//	log := eventlog.New(units, os.Stderr, nil)
//	d.Register(log.Plugin(), filter.List{Includes: "main.js"})
package eventlog

import (
	"fmt"
	"io"
	"os"

	"github.com/kolkov/dynprof/internal/prof/dispatch"
	"github.com/kolkov/dynprof/internal/prof/hook"
	"github.com/kolkov/dynprof/internal/prof/source"
)

// Name is the plugin name.
const Name = "eventlog"

// Logger is the event logging plugin.
type Logger struct {
	units *source.Registry
	out   io.Writer
	hooks hook.Set
	lines int
}

// New creates a logger writing to out. hooks selects the logged hooks; an
// empty set logs every hook.
func New(units *source.Registry, out io.Writer, hooks hook.Set) *Logger {
	if units == nil {
		units = source.NewRegistry()
	}
	if out == nil {
		out = os.Stdout
	}
	if hooks.Empty() {
		hooks = hook.AllSet
	}
	return &Logger{units: units, out: out, hooks: hooks}
}

// Plugin returns the dispatcher plugin of the logger.
func (l *Logger) Plugin() *dispatch.Plugin {
	p := &dispatch.Plugin{Name: Name}
	for _, h := range l.hooks.Hooks() {
		p.Hooks.Set(h, l.log)
	}
	p.Hooks.EndExecution = l.end
	return p
}

// Lines returns the number of events logged.
func (l *Logger) Lines() int {
	return l.lines
}

//nolint:errcheck // Error handling omitted for log output
func (l *Logger) log(ev *dispatch.Event) *dispatch.Control {
	l.lines++
	fmt.Fprintf(l.out, "%s @ %s\n", ev.Hook, l.units.ShortLocation(ev.Site()))
	return nil
}

//nolint:errcheck // Error handling omitted for log output
func (l *Logger) end() {
	fmt.Fprintf(l.out, "%s: %d events\n", hook.EndExecution, l.lines)
}
