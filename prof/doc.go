// Package prof provides a dynamic analysis framework for instrumented
// programs.
//
// An event producer (an instrumenting runtime, or the trace replayer of the
// dynprof tool) reports every intercepted operation of the target program:
// function calls, property reads and writes, literals, conditionals. The
// profiler fans each event out to the analysis plugins registered for it.
// Plugins attach metadata to runtime objects through the shadow store,
// aggregate counts in a hierarchical database and print their results when
// the session ends.
//
// # Quick Start
//
// Replaying a recorded trace through the built-in analyses:
//
//	$ dynprof run --trace trace.yaml --analysis typedarray,branchcov
//
// Writing an analysis against the API:
//
//	package main
//
//	import "github.com/kolkov/dynprof/prof"
//
//	func main() {
//		prof.Init()
//		defer prof.Fini()
//
//		prof.Register(&prof.Plugin{
//			Name: "conditions",
//			Hooks: prof.Hooks{
//				Conditional: func(ev *prof.Event) *prof.Control {
//					fmt.Println("branch at", ev.IID, ev.Result)
//					return nil
//				},
//			},
//		}, nil)
//	}
//
// # API Overview
//
// The package provides functions for:
//   - Session lifecycle: [Init], [Fini], [Reset]
//   - Plugins: [Register], [Use], [Analyses]
//   - Event production: [AddSource], [Dispatch], [EndTurn]
//   - Global switch: [Enable], [Disable]
//   - Version information: [GetInfo], [Version]
//
// # Filters
//
// Every plugin may come with a [Filter] deciding, once per source unit,
// whether the plugin sees the unit's events and which hooks fire for it.
// The [List] shorthand matches units by name or path fragment:
//
//	prof.Register(p, prof.List{Excludes: "node_modules,internal/"})
//
// A filter built with [Predicate] can return [Include] to restrict the hooks:
//
//	prof.Register(p, prof.Predicate(func(d prof.Descriptor) prof.Decision {
//		if d.Internal {
//			return prof.Exclude()
//		}
//		return prof.Include("invokeFun", "literal")
//	}))
//
// On top of per-plugin filters, DYNPROF_SCOPE, DYNPROF_EXCLUDES and the
// "DO NOT INSTRUMENT" source marker keep units away from every plugin, and
// DYNPROF_ENABLED_HOOKS restricts the hooks that fire at all.
//
// # Callbacks
//
// Callbacks run inline, on the producer's goroutine, and may re-enter the
// profiler. A callback returning [Deactivated] is removed for good; one
// returning a Control with Skip or [WithResult] steers the operation.
// Panics are not recovered.
//
// # Examples
//
// See package-level examples in the documentation:
//   - [Example] - Registering a plugin and dispatching events
//   - [Example_deactivate] - One-shot callbacks
//   - [Example_filter] - Per-plugin filtering
package prof
