// Package filter decides which source units, and which hooks within them,
// each analysis plugin observes.
//
// A Filter maps a source.Descriptor to a Decision. Filters are pure: the
// Evaluator asks a plugin's filter once per unit, on the first event from
// that unit, and caches the Decision for the unit's lifetime.
package filter

import (
	"github.com/kolkov/dynprof/internal/prof/hook"
	"github.com/kolkov/dynprof/internal/prof/source"
)

type mode uint8

const (
	modeExclude mode = iota
	modeAll
	modeSome
)

// Decision is the outcome of filtering one unit: exclude it, include every
// hook, or include only a subset of hooks.
//
// The zero Decision excludes.
type Decision struct {
	mode    mode
	hooks   hook.Set
	unknown []string
}

// Exclude returns a Decision that lets no hook fire.
func Exclude() Decision {
	return Decision{mode: modeExclude}
}

// IncludeAll returns a Decision that lets every hook fire.
func IncludeAll() Decision {
	return Decision{mode: modeAll}
}

// Bool maps true to IncludeAll and false to Exclude.
func Bool(include bool) Decision {
	if include {
		return IncludeAll()
	}
	return Exclude()
}

// IncludeHooks returns a Decision that lets only the given hooks fire.
func IncludeHooks(hooks ...hook.Hook) Decision {
	return includeSet(hook.SetOf(hooks...))
}

// Include returns a Decision that lets only the named hooks fire.
//
// Names that are not hooks are ignored and reported by Unknown. An empty
// list, or a list with no valid hook name, excludes the unit.
func Include(names ...string) Decision {
	var set hook.Set
	var unknown []string
	for _, n := range names {
		if h, ok := hook.Parse(n); ok {
			set = set.Add(h)
			continue
		}
		unknown = append(unknown, n)
	}
	d := includeSet(set)
	d.unknown = unknown
	return d
}

func includeSet(set hook.Set) Decision {
	if set.Empty() {
		return Exclude()
	}
	return Decision{mode: modeSome, hooks: set}
}

// Allows reports whether hook h may fire under d.
func (d Decision) Allows(h hook.Hook) bool {
	switch d.mode {
	case modeAll:
		return h.Valid()
	case modeSome:
		return d.hooks.Has(h)
	default:
		return false
	}
}

// Excluded reports whether no hook may fire.
func (d Decision) Excluded() bool {
	return d.mode == modeExclude
}

// IncludesAll reports whether every hook may fire.
func (d Decision) IncludesAll() bool {
	return d.mode == modeAll
}

// Hooks returns the set of hooks allowed by d.
func (d Decision) Hooks() hook.Set {
	switch d.mode {
	case modeAll:
		return hook.AllSet
	case modeSome:
		return d.hooks
	default:
		return 0
	}
}

// Unknown returns the names passed to Include that were not hooks.
func (d Decision) Unknown() []string {
	return d.unknown
}

// Intersect returns the Decision allowing only hooks allowed by both.
func (d Decision) Intersect(o Decision) Decision {
	switch {
	case d.mode == modeExclude || o.mode == modeExclude:
		return Exclude()
	case d.mode == modeAll:
		return o
	case o.mode == modeAll:
		return d
	default:
		return includeSet(d.hooks & o.hooks)
	}
}

// String describes the decision for logs.
func (d Decision) String() string {
	switch d.mode {
	case modeAll:
		return "include-all"
	case modeSome:
		return "include[" + d.hooks.String() + "]"
	default:
		return "exclude"
	}
}

// Filter decides which hooks fire for a unit.
type Filter interface {
	Decide(d source.Descriptor) Decision
}

// Predicate adapts a function to Filter.
type Predicate func(d source.Descriptor) Decision

// Decide calls p.
func (p Predicate) Decide(d source.Descriptor) Decision {
	return p(d)
}
