// Package dispatch fans intercepted operations of the target program out to
// the analysis plugins interested in them.
//
// A Dispatcher owns the live list of hook registrations, the per-plugin
// filter caches, the global enabled flag and the deferred-work queue that
// lets a plugin re-enable analysis after the current synchronous turn.
//
// Execution model: the event producer and every callback run on one logical
// thread. Callbacks may re-enter Dispatch (a hook calling a function produces
// nested events); the dispatcher iterates a snapshot of the registration list,
// so deactivations and registrations made during a fan-out never disturb it.
// Callback panics are not recovered: they propagate into the producer exactly
// as an exception thrown by an inline hook would.
//
// Example:
//
//	d := dispatch.New(units)
//	d.Register(&dispatch.Plugin{
//		Name: "counter",
//		Hooks: dispatch.Hooks{
//			Literal: func(ev *dispatch.Event) *dispatch.Control {
//				n++
//				return nil
//			},
//		},
//	}, nil)
//	d.Dispatch(hook.Literal, unit.ID, &dispatch.Event{IID: 3, Val: arr})
//	d.Finalize()
package dispatch

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/kolkov/dynprof/internal/prof/filter"
	"github.com/kolkov/dynprof/internal/prof/hook"
	"github.com/kolkov/dynprof/internal/prof/observe"
	"github.com/kolkov/dynprof/internal/prof/source"
)

// Errors returned by Register.
var (
	ErrNilPlugin = errors.New("dispatch: nil plugin")
	ErrFinalized = errors.New("dispatch: dispatcher finalized")
)

// registration is one (hook, plugin, callback) triple. Its state only moves
// from active to removed.
type registration struct {
	hook     hook.Hook
	entry    *entry
	callback Callback
	seq      uint64
	removed  bool
}

// entry is a registered plugin with its filter cache.
type entry struct {
	plugin    *Plugin
	eval      *filter.Evaluator
	finalized bool
}

// Dispatcher routes events to registered plugins.
//
// Thread Safety: Dispatch, Register, Finalize and the deferred queue must be
// called from one goroutine at a time. Enabled, SetGloballyEnabled and Stats
// are safe from any goroutine.
type Dispatcher struct {
	units *source.Registry
	obs   observe.Observer

	// allow is the process-wide hook allow-list; restricted is false when
	// no allow-list was configured.
	allow      hook.Set
	restricted bool
	unknown    []string

	// base evaluates the process-wide scope filter, nil when none.
	baseFilter filter.Filter
	base       *filter.Evaluator

	enabled atomic.Bool

	byHook  [hook.Count][]*registration
	entries []*entry
	seq     uint64

	deferred []func()
	stats    [hook.Count]counters

	finalizing bool
	finalized  bool
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithObserver sets the observer receiving diagnostic events.
func WithObserver(obs observe.Observer) Option {
	return func(d *Dispatcher) {
		d.obs = obs
	}
}

// WithEnabledHooks restricts registration to the named hooks. An empty list
// means no restriction. Unknown names are reported when the dispatcher is
// created.
func WithEnabledHooks(names []string) Option {
	return func(d *Dispatcher) {
		if len(names) == 0 {
			return
		}
		d.restricted = true
		for _, n := range names {
			if h, ok := hook.Parse(n); ok {
				d.allow = d.allow.Add(h)
				continue
			}
			d.unknown = append(d.unknown, n)
		}
	}
}

// WithBaseFilter installs a process-wide filter intersected with every
// plugin's decisions, for example a filter.Scope.
func WithBaseFilter(f filter.Filter) Option {
	return func(d *Dispatcher) {
		d.baseFilter = f
	}
}

// New creates an enabled Dispatcher resolving unit ids through units.
func New(units *source.Registry, opts ...Option) *Dispatcher {
	if units == nil {
		units = source.NewRegistry()
	}
	d := &Dispatcher{units: units, obs: observe.NoOpObserver{}}
	for _, opt := range opts {
		opt(d)
	}
	if d.baseFilter != nil {
		d.base = filter.NewEvaluator("scope", d.baseFilter, units.Descriptor, d.obs)
	}
	d.enabled.Store(true)

	if len(d.unknown) > 0 {
		observe.Emit(d.obs, observe.EventFilterUnknown, observe.LevelWarning, "dispatch", map[string]any{
			"allow_list": true,
			"unknown":    d.unknown,
		})
	}
	return d
}

// Units returns the source registry the dispatcher resolves units with.
func (d *Dispatcher) Units() *source.Registry {
	return d.units
}

// Register adds a plugin. One registration is created per implemented hook
// that passes the allow-list, after every registration made before it.
//
// f filters the source units the plugin observes; nil observes every unit.
// A filter.List with both Includes and Excludes is rejected.
func (d *Dispatcher) Register(p *Plugin, f filter.Filter) error {
	if p == nil {
		return ErrNilPlugin
	}
	if d.finalizing || d.finalized {
		return fmt.Errorf("%w: cannot register %q", ErrFinalized, p.Name)
	}
	if err := validate(f); err != nil {
		return fmt.Errorf("dispatch: register %q: %w", p.Name, err)
	}

	e := &entry{
		plugin: p,
		eval:   filter.NewEvaluator(p.Name, f, d.units.Descriptor, d.obs),
	}
	d.entries = append(d.entries, e)

	var registered hook.Set
	for i, cb := range p.Hooks.slots() {
		h := hook.Hook(i)
		if cb == nil || (d.restricted && !d.allow.Has(h)) {
			continue
		}
		d.seq++
		d.byHook[h] = append(d.byHook[h], &registration{
			hook:     h,
			entry:    e,
			callback: cb,
			seq:      d.seq,
		})
		d.stats[h].registered.Add(1)
		d.stats[h].live.Add(1)
		registered = registered.Add(h)
	}

	observe.Emit(d.obs, observe.EventPluginRegistered, observe.LevelVerbose, "dispatch", map[string]any{
		"plugin":   p.Name,
		"hooks":    registered.String(),
		"filtered": f != nil,
	})
	return nil
}

func validate(f filter.Filter) error {
	switch l := f.(type) {
	case filter.List:
		return l.Validate()
	case *filter.List:
		return l.Validate()
	}
	return nil
}

// Dispatch delivers an event to every live registration of h, in
// registration order, skipping plugins whose filter excludes h for unit.
//
// It returns the merged Control of all callbacks: for each field the last
// callback that set it wins. While the dispatcher is disabled Dispatch does
// nothing and returns the zero Control.
//
// A callback returning Deactivate is removed for good; the plugin's other
// hooks keep firing.
func (d *Dispatcher) Dispatch(h hook.Hook, unit source.ID, ev *Event) Control {
	var merged Control
	if !d.enabled.Load() || !h.Valid() {
		return merged
	}

	regs := d.byHook[h]
	if len(regs) == 0 {
		return merged
	}

	if ev == nil {
		ev = &Event{}
	}
	ev.Hook = h
	ev.Unit = unit

	if d.base != nil && !d.baseDecision(unit).Allows(h) {
		d.stats[h].filtered.Add(int64(len(regs)))
		return merged
	}

	for _, r := range regs {
		if r.removed {
			continue
		}
		if !r.entry.eval.Decide(unit).Allows(h) {
			d.stats[h].filtered.Add(1)
			continue
		}

		d.stats[h].fired.Add(1)
		c := r.callback(ev)
		if c == nil {
			continue
		}
		merged.merge(c)
		if c.Deactivate {
			d.deactivate(r)
		}
	}
	return merged
}

// baseDecision applies the scope filter. Units unknown to the registry pass,
// so plugins without a filter still see every unit.
func (d *Dispatcher) baseDecision(unit source.ID) filter.Decision {
	if dec, ok := d.base.Cached(unit); ok {
		return dec
	}
	if _, ok := d.units.Lookup(unit); !ok {
		return filter.IncludeAll()
	}
	return d.base.Decide(unit)
}

// deactivate removes r. The registration slice is replaced, not edited, so
// fan-outs in progress keep iterating their snapshot.
func (d *Dispatcher) deactivate(r *registration) {
	if r.removed {
		return
	}
	r.removed = true

	old := d.byHook[r.hook]
	next := make([]*registration, 0, len(old))
	for _, o := range old {
		if o != r {
			next = append(next, o)
		}
	}
	d.byHook[r.hook] = next
	d.stats[r.hook].live.Add(-1)
	d.stats[r.hook].deactivated.Add(1)

	observe.Emit(d.obs, observe.EventHookDeactivated, observe.LevelVerbose, "dispatch", map[string]any{
		"plugin": r.entry.plugin.Name,
		"hook":   r.hook.String(),
		"seq":    r.seq,
	})
}

// SetGloballyEnabled turns dispatching on or off for every plugin. The
// change applies from the next Dispatch call, nested calls included.
func (d *Dispatcher) SetGloballyEnabled(on bool) {
	if d.enabled.Swap(on) == on {
		return
	}
	observe.Emit(d.obs, observe.EventEnabledChanged, observe.LevelVerbose, "dispatch", map[string]any{
		"enabled": on,
	})
}

// Enabled reports whether dispatching is on.
func (d *Dispatcher) Enabled() bool {
	return d.enabled.Load()
}

// Registrations returns the number of live registrations for h.
func (d *Dispatcher) Registrations(h hook.Hook) int {
	if !h.Valid() {
		return 0
	}
	return len(d.byHook[h])
}

// Plugins returns the names of registered plugins in registration order.
func (d *Dispatcher) Plugins() []string {
	names := make([]string, len(d.entries))
	for i, e := range d.entries {
		names[i] = e.plugin.Name
	}
	return names
}

// Finalize calls every plugin's EndExecution exactly once, in registration
// order. Dispatching keeps working while plugins finalize. Later calls do
// nothing.
func (d *Dispatcher) Finalize() {
	if d.finalizing || d.finalized {
		return
	}
	d.finalizing = true
	defer func() {
		d.finalizing = false
		d.finalized = true
	}()

	observe.Emit(d.obs, observe.EventFinalizeStart, observe.LevelVerbose, "dispatch", map[string]any{
		"plugins": len(d.entries),
	})

	for _, e := range d.entries {
		if e.finalized {
			continue
		}
		e.finalized = true
		if e.plugin.Hooks.EndExecution != nil {
			e.plugin.Hooks.EndExecution()
		}
	}

	for _, s := range d.Stats() {
		observe.Emit(d.obs, observe.EventHookStats, observe.LevelVerbose, "dispatch", map[string]any{
			"hook":        s.Hook.String(),
			"registered":  s.Registered,
			"live":        s.Live,
			"fired":       s.Fired,
			"filtered":    s.Filtered,
			"deactivated": s.Deactivated,
		})
	}
	observe.Emit(d.obs, observe.EventFinalizeDone, observe.LevelVerbose, "dispatch", nil)
}

// Finalized reports whether Finalize has completed.
func (d *Dispatcher) Finalized() bool {
	return d.finalized
}
