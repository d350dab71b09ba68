// Package typedarray finds arrays that could be replaced by fixed-width
// numeric containers (typed arrays).
//
// Every array created by a literal or by the Array constructor is followed
// through the shadow store. At the end of execution the analysis groups the
// arrays by creation site and reports, for sites with enough activity, the
// containers every element ever stored would fit into, together with the
// features (methods, named properties, typeof) that stand in the way of a
// mechanical refactoring.
//
// Example:
//
//	store := shadowmem.New()
//	ta := typedarray.New(store, typedarray.WithRegistry(units))
//	d.Register(ta.Plugin(), nil)
//	...
//	d.Finalize() // prints the report
package typedarray

import (
	"io"
	"os"
	"strconv"

	"github.com/kolkov/dynprof/internal/prof/dispatch"
	"github.com/kolkov/dynprof/internal/prof/shadowmem"
	"github.com/kolkov/dynprof/internal/prof/source"
	"github.com/kolkov/dynprof/internal/prof/value"
)

// Name is the plugin name.
const Name = "typedarray"

// DefaultThreshold is the operation count a site must exceed to be reported.
const DefaultThreshold = 1000

// recordKey is the shadow slot holding an array's *Record.
type recordKey struct{}

// Analysis is the Array-Shape Advisor.
type Analysis struct {
	store     *shadowmem.Store
	units     *source.Registry
	threshold int64
	out       io.Writer

	// sites lists the records created at each site, in creation order.
	sites map[source.GIID][]*Record
}

// Option configures an Analysis.
type Option func(*Analysis)

// WithThreshold sets the significance threshold.
func WithThreshold(n int64) Option {
	return func(a *Analysis) {
		a.threshold = n
	}
}

// WithOutput sets where EndExecution writes the report. Default os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(a *Analysis) {
		a.out = w
	}
}

// WithRegistry sets the registry used to print locations.
func WithRegistry(units *source.Registry) Option {
	return func(a *Analysis) {
		a.units = units
	}
}

// New creates an analysis keeping its records in store.
func New(store *shadowmem.Store, opts ...Option) *Analysis {
	if store == nil {
		store = shadowmem.New()
	}
	a := &Analysis{
		store:     store,
		threshold: DefaultThreshold,
		out:       os.Stdout,
		sites:     make(map[source.GIID][]*Record),
	}
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
			Literal:      a.literal,
			InvokeFun:    a.invokeFun,
			PutFieldPre:  a.putFieldPre,
			GetField:     a.getField,
			Unary:        a.unary,
			EndExecution: a.endExecution,
		},
	}
}

// Record returns the record of a tracked array.
func (a *Analysis) Record(v any) (*Record, bool) {
	if !value.IsArray(v) {
		return nil, false
	}
	r, ok := a.store.Get(v).Get(recordKey{})
	if !ok {
		return nil, false
	}
	return r.(*Record), true
}

// track starts following arr unless it is already followed.
func (a *Analysis) track(arr any, site source.GIID) {
	rec := a.store.GetOrCreate(arr)
	if _, ok := rec.Get(recordKey{}); ok {
		return
	}
	r := newRecord(site)
	rec.Set(recordKey{}, r)
	a.sites[site] = append(a.sites[site], r)
}

func (a *Analysis) literal(ev *dispatch.Event) *dispatch.Control {
	if value.IsArray(ev.Val) {
		a.track(ev.Val, ev.Site())
	}
	return nil
}

func (a *Analysis) invokeFun(ev *dispatch.Event) *dispatch.Control {
	if ev.F == value.ArrayConstructor && value.IsArray(ev.Result) {
		a.track(ev.Result, ev.Site())
	}

	r, ok := a.Record(ev.Base)
	if !ok {
		return nil
	}
	f, _ := ev.F.(*value.Object)

	switch f {
	case value.ArrayPush:
		r.ReadOnly = false
		r.Methods["push"] = struct{}{}
		// invokeFun follows the call: the pushed elements are the last ones.
		start := ev.Base.(*value.Object).Len() - len(ev.Args)
		if start < 0 {
			start = 0
		}
		if len(ev.Args) == 0 {
			r.Count++
		}
		for i, arg := range ev.Args {
			r.write(start+i, arg)
		}
	case value.ArrayPop:
		r.ReadOnly = false
		r.Methods["pop"] = struct{}{}
		r.Count++
	default:
		r.Methods[methodName(f)] = struct{}{}
		r.Count++
	}
	return nil
}

func methodName(f *value.Object) string {
	if f == nil || f.Name == "" {
		return "<anonymous>"
	}
	return f.Name
}

func (a *Analysis) putFieldPre(ev *dispatch.Event) *dispatch.Control {
	r, ok := a.Record(ev.Base)
	if !ok {
		return nil
	}
	if i, isIndex := offset(ev.Offset); isIndex {
		r.write(i, ev.Val)
		return nil
	}
	r.PropsSet[value.PropertyKey(ev.Offset)] = struct{}{}
	r.ReadOnly = false
	return nil
}

func (a *Analysis) getField(ev *dispatch.Event) *dispatch.Control {
	r, ok := a.Record(ev.Base)
	if !ok {
		return nil
	}
	r.Count++
	if _, isIndex := offset(ev.Offset); !isIndex {
		r.PropsGet[value.PropertyKey(ev.Offset)] = struct{}{}
	}
	return nil
}

func (a *Analysis) unary(ev *dispatch.Event) *dispatch.Control {
	if ev.Op != "typeof" {
		return nil
	}
	r, ok := a.Record(ev.Left)
	if !ok {
		return nil
	}
	r.Typeof = true
	r.Count++
	return nil
}

// offset classifies a property offset. Non-negative integral numbers and
// their canonical decimal strings are indices; everything else is a name.
func offset(v any) (int, bool) {
	if i, ok := value.Index(v); ok {
		return i, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	i, err := strconv.Atoi(s)
	if err != nil || i < 0 || strconv.Itoa(i) != s {
		return 0, false
	}
	return i, true
}

func (a *Analysis) endExecution() {
	a.Report().Format(a.out)
}

// location formats a site for the report.
func (a *Analysis) location(site source.GIID) string {
	if a.units == nil {
		return "(" + site.String() + ")"
	}
	return a.units.Location(site)
}
