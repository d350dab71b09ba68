package api

import (
	"errors"
	"fmt"
	"slices"

	"github.com/kolkov/dynprof/internal/prof/analysis/branchcov"
	"github.com/kolkov/dynprof/internal/prof/analysis/eventlog"
	"github.com/kolkov/dynprof/internal/prof/analysis/literal"
	"github.com/kolkov/dynprof/internal/prof/analysis/typedarray"
	"github.com/kolkov/dynprof/internal/prof/dispatch"
	"github.com/kolkov/dynprof/internal/prof/filter"
)

// ErrUnknownAnalysis is returned by Use for names that are not built in.
var ErrUnknownAnalysis = errors.New("unknown analysis")

// builder creates a built-in analysis plugin for a runtime.
type builder func(r *Runtime) (*dispatch.Plugin, filter.Filter)

var builtins = map[string]builder{
	typedarray.Name: func(r *Runtime) (*dispatch.Plugin, filter.Filter) {
		a := typedarray.New(r.shadow,
			typedarray.WithThreshold(int64(r.cfg.Threshold)),
			typedarray.WithRegistry(r.units),
			typedarray.WithOutput(r.out),
		)
		return a.Plugin(), nil
	},
	branchcov.Name: func(r *Runtime) (*dispatch.Plugin, filter.Filter) {
		return branchcov.New(r.db, r.units, r.out, branchcov.WithObserver(r.obs)).Plugin(), nil
	},
	literal.Name: func(r *Runtime) (*dispatch.Plugin, filter.Filter) {
		return literal.New(r.units, r.out).Plugin(), nil
	},
	eventlog.Name: func(r *Runtime) (*dispatch.Plugin, filter.Filter) {
		// The dispatcher allow-list already narrows what reaches the logger.
		return eventlog.New(r.units, r.out, 0).Plugin(), nil
	},
}

// Analyses returns the names of the built-in analyses, sorted.
func Analyses() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Use registers the named built-in analyses in order.
func (r *Runtime) Use(names ...string) error {
	for _, name := range names {
		build, ok := builtins[name]
		if !ok {
			return fmt.Errorf("%w: %q (available: %v)", ErrUnknownAnalysis, name, Analyses())
		}
		p, f := build(r)
		if err := r.Register(p, f); err != nil {
			return fmt.Errorf("failed to register %s: %w", name, err)
		}
	}
	return nil
}
