// Package prof is the public API of the dynamic analysis framework.
//
// See doc.go for detailed documentation and examples.
package prof

import (
	internal "github.com/kolkov/dynprof/internal/prof/api"
	"github.com/kolkov/dynprof/internal/prof/dispatch"
	"github.com/kolkov/dynprof/internal/prof/filter"
	"github.com/kolkov/dynprof/internal/prof/hook"
	"github.com/kolkov/dynprof/internal/prof/loader"
	"github.com/kolkov/dynprof/internal/prof/source"
)

// Types shared with the runtime.
type (
	// Hook identifies one category of intercepted operation.
	Hook = hook.Hook

	// Event carries the arguments of one intercepted operation.
	Event = dispatch.Event

	// Control is what a callback may return to steer the operation.
	Control = dispatch.Control

	// Callback handles one hook.
	Callback = dispatch.Callback

	// Hooks holds a plugin's callbacks, one field per hook.
	Hooks = dispatch.Hooks

	// Plugin is a named set of callbacks.
	Plugin = dispatch.Plugin

	// Filter decides which units and hooks a plugin observes.
	Filter = filter.Filter

	// Predicate adapts a function to Filter.
	Predicate = filter.Predicate

	// Decision is the outcome of filtering one unit.
	Decision = filter.Decision

	// List is the include/exclude list shorthand for a Filter.
	List = filter.List

	// Descriptor describes a source unit.
	Descriptor = source.Descriptor

	// SourceID identifies a registered source unit.
	SourceID = source.ID

	// Host is what an analysis plugin receives when it is loaded.
	Host = loader.Host
)

// Init initializes the default profiler runtime.
//
// Settings come from the file named by DYNPROF_CONFIG and the DYNPROF_*
// environment variables:
//
//	func main() {
//		if err := prof.Init(); err != nil {
//			log.Fatal(err)
//		}
//		defer prof.Fini()
//		// ... rest of program
//	}
//
// Calling Init again starts a fresh session.
func Init() error {
	return internal.Init()
}

// Fini finalizes the default runtime: every plugin's endExecution runs once
// and a summary is printed to stderr. Later calls are no-ops.
func Fini() error {
	return internal.Fini()
}

// Reset starts a fresh session with the same settings, dropping registered
// plugins and collected state. It is intended for tests.
func Reset() error {
	return internal.Reset()
}

// Enable turns dispatching on.
func Enable() {
	internal.Enable()
}

// Disable turns dispatching off. Every hook becomes a no-op until Enable.
//
// Example:
//
//	prof.Disable()
//	// ... code that must not be observed ...
//	prof.Enable()
func Disable() {
	internal.Disable()
}

// Register adds an analysis plugin. f may be nil to observe every unit.
//
// Example:
//
//	prof.Register(&prof.Plugin{
//		Name: "reads",
//		Hooks: prof.Hooks{
//			Read: func(ev *prof.Event) *prof.Control {
//				fmt.Println("read", ev.Name)
//				return nil
//			},
//		},
//	}, prof.List{Excludes: "node_modules"})
func Register(p *Plugin, f Filter) error {
	return internal.Register(p, f)
}

// Use registers built-in analyses by name. See Analyses.
func Use(names ...string) error {
	return internal.Use(names...)
}

// Analyses returns the names of the built-in analyses.
func Analyses() []string {
	return internal.Analyses()
}

// AddSource registers a source unit and announces it to plugins.
func AddSource(d Descriptor) SourceID {
	return internal.AddSource(d)
}

// Dispatch delivers one intercepted operation to the registered plugins and
// returns their merged Control. Event producers call it.
func Dispatch(h Hook, unit SourceID, ev *Event) Control {
	return internal.Dispatch(h, unit, ev)
}

// EndTurn tells the runtime the target program finished a synchronous turn,
// running work plugins deferred until then. It returns how much ran.
func EndTurn() int {
	return internal.EndTurn()
}

// ParseHook returns the hook with the given wire name, e.g. "invokeFun".
func ParseHook(name string) (Hook, bool) {
	return hook.Parse(name)
}

// IncludeAll returns a Decision letting every hook fire.
func IncludeAll() Decision { return filter.IncludeAll() }

// Exclude returns a Decision letting no hook fire.
func Exclude() Decision { return filter.Exclude() }

// Include returns a Decision letting only the named hooks fire.
func Include(names ...string) Decision { return filter.Include(names...) }

// WithResult returns a Control replacing the operation's value.
func WithResult(v any) *Control { return dispatch.WithResult(v) }

// Deactivated returns a Control removing the returning callback for good.
func Deactivated() *Control { return dispatch.Deactivated() }
