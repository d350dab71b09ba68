package filter

import (
	"github.com/kolkov/dynprof/internal/prof/observe"
	"github.com/kolkov/dynprof/internal/prof/source"
)

// Lookup resolves a unit id to its descriptor.
type Lookup func(id source.ID) (source.Descriptor, bool)

// Evaluator computes and caches one filter's decisions per unit.
//
// Thread Safety: NOT safe for concurrent use. Evaluators run on the
// dispatcher's single logical thread.
type Evaluator struct {
	name      string
	filter    Filter
	lookup    Lookup
	obs       observe.Observer
	decisions map[source.ID]Decision

	// evaluating is set while the filter runs. A filter that triggers events
	// re-enters Decide; those nested units are excluded and not cached.
	evaluating bool
}

// NewEvaluator returns an evaluator for the filter of the named plugin.
// A nil filter includes every hook of every unit.
func NewEvaluator(name string, f Filter, lookup Lookup, obs observe.Observer) *Evaluator {
	return &Evaluator{
		name:      name,
		filter:    f,
		lookup:    lookup,
		obs:       obs,
		decisions: make(map[source.ID]Decision),
	}
}

// Unconditional reports whether the evaluator has no filter.
func (e *Evaluator) Unconditional() bool {
	return e.filter == nil
}

// Decide returns the cached decision for unit, evaluating the filter on the
// first call for that unit. The filter is never invoked twice for a unit.
//
// Units the lookup does not know are excluded without caching, so a unit
// registered later is still evaluated. A panicking filter propagates the
// panic and leaves nothing cached.
func (e *Evaluator) Decide(unit source.ID) Decision {
	if e.filter == nil {
		return IncludeAll()
	}
	if d, ok := e.decisions[unit]; ok {
		return d
	}

	desc, ok := e.lookup(unit)
	if !ok {
		return Exclude()
	}

	if e.evaluating {
		observe.Emit(e.obs, observe.EventFilterRecursive, observe.LevelVerbose, "filter", map[string]any{
			"plugin": e.name,
			"unit":   desc.Name,
		})
		return Exclude()
	}

	e.evaluating = true
	defer func() { e.evaluating = false }()

	d := e.filter.Decide(desc)
	e.decisions[unit] = d

	observe.Emit(e.obs, observe.EventFilterDecision, observe.LevelVerbose, "filter", map[string]any{
		"plugin":   e.name,
		"unit":     desc.Name,
		"decision": d.String(),
	})
	if len(d.Unknown()) > 0 {
		observe.Emit(e.obs, observe.EventFilterUnknown, observe.LevelWarning, "filter", map[string]any{
			"plugin":  e.name,
			"unit":    desc.Name,
			"unknown": d.Unknown(),
		})
	}
	return d
}

// Cached returns the decision cached for unit, if any.
func (e *Evaluator) Cached(unit source.ID) (Decision, bool) {
	d, ok := e.decisions[unit]
	return d, ok
}

// Len returns the number of cached decisions.
func (e *Evaluator) Len() int {
	return len(e.decisions)
}
