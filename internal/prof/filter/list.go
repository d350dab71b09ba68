package filter

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kolkov/dynprof/internal/prof/config"
	"github.com/kolkov/dynprof/internal/prof/hook"
	"github.com/kolkov/dynprof/internal/prof/source"
)

// ErrConflictingLists is returned when a List sets both Includes and Excludes.
var ErrConflictingLists = errors.New("filter: includes and excludes are mutually exclusive")

// List is the structured filter shorthand.
//
// Includes and Excludes are comma-separated lists whose tokens are either
// hook names or source name fragments. With Includes, a unit whose name
// contains a source fragment is included entirely; any other unit is
// included for the listed hooks only (and excluded when no hook is listed).
// Excludes is the negative form. Includes applies to internal units like any
// other unit; otherwise internal units are excluded unless Internal is set.
type List struct {
	Includes string `yaml:"includes,omitempty"`
	Excludes string `yaml:"excludes,omitempty"`
	Internal bool   `yaml:"internal,omitempty"`
}

// Validate reports a List that sets both Includes and Excludes.
func (l List) Validate() error {
	if strings.TrimSpace(l.Includes) != "" && strings.TrimSpace(l.Excludes) != "" {
		return fmt.Errorf("%w: includes=%q excludes=%q", ErrConflictingLists, l.Includes, l.Excludes)
	}
	return nil
}

// Decide implements Filter.
func (l List) Decide(d source.Descriptor) Decision {
	if strings.TrimSpace(l.Includes) == "" && d.Internal && !l.Internal {
		return Exclude()
	}

	switch {
	case strings.TrimSpace(l.Includes) != "":
		hooks, fragments := hook.ParseList(l.Includes)
		if matchesAny(d, fragments) {
			return IncludeAll()
		}
		return includeSet(hooks)

	case strings.TrimSpace(l.Excludes) != "":
		hooks, fragments := hook.ParseList(l.Excludes)
		if matchesAny(d, fragments) {
			return Exclude()
		}
		if hooks.Empty() {
			return IncludeAll()
		}
		return includeSet(hook.AllSet &^ hooks)

	default:
		return IncludeAll()
	}
}

func matchesAny(d source.Descriptor, fragments []string) bool {
	for _, f := range fragments {
		if strings.Contains(d.Name, f) || (d.Path != "" && strings.Contains(d.Path, f)) {
			return true
		}
	}
	return false
}

// Marker excludes a unit from instrumentation when it appears near the top of
// the unit's text.
const Marker = "DO NOT INSTRUMENT"

// markerWindow is how many leading bytes are searched for Marker.
const markerWindow = 1000

// Scope is the process-wide base filter applied before any plugin filter.
type Scope struct {
	// Mode is one of config.ScopeAll, config.ScopeModule, config.ScopeApp.
	Mode string

	// Excludes are name or path fragments of units never instrumented.
	Excludes []string

	// IgnoreMarker disables the Marker check.
	IgnoreMarker bool
}

// ScopeFromConfig builds the base filter from runtime settings.
func ScopeFromConfig(cfg *config.Config) Scope {
	return Scope{Mode: cfg.Scope, Excludes: cfg.Excludes, IgnoreMarker: cfg.IgnoreMarker}
}

// Decide implements Filter.
func (s Scope) Decide(d source.Descriptor) Decision {
	if !s.IgnoreMarker && hasMarker(d.Text) {
		return Exclude()
	}
	switch s.Mode {
	case config.ScopeModule:
		if d.Internal {
			return Exclude()
		}
	case config.ScopeApp:
		if d.Internal || strings.Contains(d.Path, "node_modules") || strings.Contains(d.Name, "node_modules") {
			return Exclude()
		}
	}
	if matchesAny(d, s.Excludes) {
		return Exclude()
	}
	return IncludeAll()
}

func hasMarker(text string) bool {
	if len(text) > markerWindow {
		text = text[:markerWindow]
	}
	return strings.Contains(text, Marker)
}
