// Package branchcov counts how often each conditional took its true and
// false branch.
package branchcov

import (
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/kolkov/dynprof/internal/prof/dispatch"
	"github.com/kolkov/dynprof/internal/prof/observe"
	"github.com/kolkov/dynprof/internal/prof/rtdb"
	"github.com/kolkov/dynprof/internal/prof/source"
	"github.com/kolkov/dynprof/internal/prof/value"
)

// Name is the plugin name.
const Name = "branchcov"

// Path segments in the aggregation database. Counts live under
// (Root, True|False, site).
const (
	Root  = Name
	True  = "true"
	False = "false"
)

// Analysis is the branch coverage plugin.
type Analysis struct {
	db    *rtdb.DB
	units *source.Registry
	out   io.Writer
	obs   observe.Observer

	sites map[string]source.GIID
}

// Option configures an Analysis.
type Option func(*Analysis)

// WithObserver sets where failed counter updates are reported.
func WithObserver(obs observe.Observer) Option {
	return func(a *Analysis) {
		a.obs = obs
	}
}

// New creates an analysis counting into db. A nil db gets a private one.
func New(db *rtdb.DB, units *source.Registry, out io.Writer, opts ...Option) *Analysis {
	if db == nil {
		db = rtdb.New()
	}
	if out == nil {
		out = os.Stdout
	}
	a := &Analysis{db: db, units: units, out: out, sites: make(map[string]source.GIID)}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Plugin returns the dispatcher plugin of the analysis.
func (a *Analysis) Plugin() *dispatch.Plugin {
	return &dispatch.Plugin{
		Name: Name,
		Hooks: dispatch.Hooks{
			Conditional:  a.conditional,
			EndExecution: a.endExecution,
		},
	}
}

func (a *Analysis) conditional(ev *dispatch.Event) *dispatch.Control {
	site := ev.Site()
	key := site.String()
	a.sites[key] = site

	branch := False
	if value.Truthy(ev.Result) {
		branch = True
	}
	if _, err := a.db.IncrementCount(Root, branch, key); err != nil {
		observe.Emit(a.obs, observe.EventAnalysisError, observe.LevelWarning, Name, map[string]any{
			"site":  key,
			"error": err.Error(),
		})
	}
	return nil
}

// Counts returns how often the conditional at site evaluated to true and to
// false.
func (a *Analysis) Counts(site source.GIID) (taken, notTaken int64) {
	key := site.String()
	t, _ := a.db.Count(Root, True, key)
	f, _ := a.db.Count(Root, False, key)
	return t.Count, f.Count
}

//nolint:errcheck // Error handling omitted for report output formatting
func (a *Analysis) endExecution() {
	sites := make([]source.GIID, 0, len(a.sites))
	for _, s := range a.sites {
		sites = append(sites, s)
	}
	slices.SortFunc(sites, source.GIID.Compare)

	for _, branch := range []string{True, False} {
		label := "True"
		if branch == False {
			label = "False"
		}
		for _, site := range sites {
			c, ok := a.db.Count(Root, branch, site.String())
			if !ok {
				continue
			}
			fmt.Fprintf(a.out, "%s branch taken at %s %d times\n", label, a.location(site), c.Count)
		}
	}
}

func (a *Analysis) location(site source.GIID) string {
	if a.units == nil {
		return "(" + site.String() + ")"
	}
	return a.units.Location(site)
}
