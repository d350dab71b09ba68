// Package literal reports every literal the target program creates, with
// the declared fields of object literals.
package literal

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/kolkov/dynprof/internal/prof/dispatch"
	"github.com/kolkov/dynprof/internal/prof/source"
	"github.com/kolkov/dynprof/internal/prof/value"
)

// Name is the plugin name.
const Name = "literal"

// KindObjectLiteral is the literal kind whose source text is parsed.
const KindObjectLiteral = "ObjectLiteral"

// Observation is one reported literal.
type Observation struct {
	Site            source.GIID
	Location        string
	Type            string
	Kind            string
	HasGetterSetter bool

	// Fields is nil unless Kind is KindObjectLiteral and its source parsed.
	Fields []string
}

// Analysis is the literal inspection plugin.
type Analysis struct {
	units *source.Registry
	out   io.Writer
	seen  []Observation
}

// New creates the analysis. Locations and snippets come from units.
func New(units *source.Registry, out io.Writer) *Analysis {
	if units == nil {
		units = source.NewRegistry()
	}
	if out == nil {
		out = os.Stdout
	}
	return &Analysis{units: units, out: out}
}

// Plugin returns the dispatcher plugin of the analysis.
func (a *Analysis) Plugin() *dispatch.Plugin {
	return &dispatch.Plugin{
		Name:  Name,
		Hooks: dispatch.Hooks{Literal: a.literal},
	}
}

// Observations returns the literals reported so far.
func (a *Analysis) Observations() []Observation {
	return a.seen
}

//nolint:errcheck // Error handling omitted for report output formatting
func (a *Analysis) literal(ev *dispatch.Event) *dispatch.Control {
	site := ev.Site()
	if span, ok := a.units.Span(site); ok && span.IsModuleStart() {
		return nil
	}

	obs := Observation{
		Site:     site,
		Location: a.units.Location(site),
		Type:     value.TypeOf(ev.Val),
		Kind:     ev.Kind,
	}
	if ev.Kind == KindObjectLiteral {
		if text, ok := a.units.Snippet(site); ok {
			if shape, err := ParseObjectLiteral(context.Background(), text); err == nil {
				obs.Fields = shape.Fields
				obs.HasGetterSetter = shape.HasGetterSetter
			}
		}
	}
	a.seen = append(a.seen, obs)

	fields := "undefined"
	if obs.Fields != nil {
		b, _ := json.Marshal(obs.Fields)
		fields = string(b)
	}
	fmt.Fprintf(a.out, "%s %s %t %s %s\n", obs.Location, obs.Type, obs.HasGetterSetter, obs.Kind, fields)
	return nil
}
