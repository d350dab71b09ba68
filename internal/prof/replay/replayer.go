package replay

import (
	"context"
	"fmt"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/kolkov/dynprof/internal/prof/dispatch"
	"github.com/kolkov/dynprof/internal/prof/hook"
	"github.com/kolkov/dynprof/internal/prof/observe"
	"github.com/kolkov/dynprof/internal/prof/source"
	"github.com/kolkov/dynprof/internal/prof/value"
)

// Stats summarizes a replay.
type Stats struct {
	// Events is the number of dispatched events, repeats included.
	Events int

	// Units is the number of source units registered.
	Units int

	// Deferred is the number of deferred functions run between turns.
	Deferred int

	// Skipped counts operations a plugin asked to skip.
	Skipped int
}

// Replayer plays traces into a Dispatcher.
//
// The replayer also stands in for the target program's heap: stores seen in
// putFieldPre and the effects of Array.prototype.push and pop are applied to
// the replayed objects, so analyses observe consistent array lengths.
type Replayer struct {
	d   *dispatch.Dispatcher
	obs observe.Observer
}

// Option configures a Replayer.
type Option func(*Replayer)

// WithObserver sets the observer notified when a replay completes.
func WithObserver(obs observe.Observer) Option {
	return func(r *Replayer) {
		r.obs = obs
	}
}

// New creates a replayer feeding d.
func New(d *dispatch.Dispatcher, opts ...Option) *Replayer {
	r := &Replayer{d: d, obs: observe.NoOpObserver{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// run is the state of one replay.
type run struct {
	tr    *Trace
	units map[int]source.ID
	heap  *heap
	stats Stats
}

// Run replays tr. It does not finalize the dispatcher.
//
// The context is checked between events; a canceled replay returns the
// stats so far with the context error.
func (r *Replayer) Run(ctx context.Context, tr *Trace) (Stats, error) {
	st := &run{tr: tr, units: make(map[int]source.ID), heap: newHeap()}

	for i := range tr.Sources {
		if _, err := r.addSource(ctx, st, &tr.Sources[i]); err != nil {
			return st.stats, err
		}
	}

	for _, loc := range tr.Locations {
		unit, ok := st.units[loc.Unit]
		if !ok {
			return st.stats, declError(tr.File, loc.Line,
				fmt.Sprintf("location refers to unknown unit %d", loc.Unit),
				`Declare the unit under "sources"`)
		}
		if len(loc.Span) != 4 {
			return st.stats, declError(tr.File, loc.Line,
				fmt.Sprintf("span has %d numbers, want 4", len(loc.Span)),
				"Write spans as [startLine, startCol, endLine, endCol]")
		}
		r.d.Units().AddLocation(source.GIID{Unit: unit, IID: loc.IID}, source.Span{
			StartLine: loc.Span[0],
			StartCol:  loc.Span[1],
			EndLine:   loc.Span[2],
			EndCol:    loc.Span[3],
		})
	}

	for i := range tr.Events {
		if err := ctx.Err(); err != nil {
			return st.stats, err
		}
		if err := r.event(ctx, st, i, &tr.Events[i]); err != nil {
			return st.stats, err
		}
	}

	observe.Emit(r.obs, observe.EventReplayDone, observe.LevelInfo, "replay", map[string]any{
		"file":     tr.File,
		"events":   st.stats.Events,
		"units":    st.stats.Units,
		"deferred": st.stats.Deferred,
	})
	return st.stats, nil
}

func (r *Replayer) addSource(ctx context.Context, st *run, spec *SourceSpec) (source.ID, error) {
	if spec.ID <= 0 {
		return 0, declError(st.tr.File, spec.Line,
			fmt.Sprintf("source id %d is not positive", spec.ID),
			"Number sources from 1")
	}
	if _, dup := st.units[spec.ID]; dup {
		return 0, declError(st.tr.File, spec.Line,
			fmt.Sprintf("source %d declared twice", spec.ID), "")
	}

	desc := source.Descriptor{
		Name:     spec.Name,
		Path:     spec.Path,
		Internal: spec.Internal,
		Text:     spec.Text,
	}
	if spec.URL != "" && spec.Text == "" {
		loaded, err := source.Load(ctx, spec.URL)
		if err != nil {
			return 0, declError(st.tr.File, spec.Line, err.Error(),
				"Check the url or inline the source with \"text\"")
		}
		desc.Text = loaded.Text
		if desc.Name == "" {
			desc.Name = loaded.Name
		}
		if desc.Path == "" {
			desc.Path = loaded.Path
		}
	}

	u := r.d.Units().Add(desc)
	st.units[spec.ID] = u.ID
	st.stats.Units++
	return u.ID, nil
}

func (r *Replayer) event(ctx context.Context, st *run, i int, spec *EventSpec) error {
	file := st.tr.File

	h, ok := hook.Parse(spec.Hook)
	if !ok {
		suggestion := "Use a hook name such as literal, invokeFun or putFieldPre"
		if spec.Hook == hook.EndExecution {
			suggestion = "endExecution runs when the profiler finalizes, remove the event"
		}
		return eventError(file, i, spec.Line, fmt.Sprintf("unknown hook %q", spec.Hook), suggestion)
	}

	ev := &dispatch.Event{
		IID:             spec.IID,
		Name:            spec.Name,
		Op:              spec.Op,
		Kind:            spec.Kind,
		IsComputed:      spec.IsComputed,
		IsOpAssign:      spec.IsOpAssign,
		IsMethodCall:    spec.IsMethodCall,
		IsConstructor:   spec.IsConstructor,
		IsMethod:        spec.IsMethod,
		IsGlobal:        spec.IsGlobal,
		IsForIn:         spec.IsForIn,
		IsRejected:      spec.IsRejected,
		HasGetterSetter: spec.HasGetterSetter,
	}

	var unit source.ID
	if h == hook.NewSource {
		if spec.Source == nil {
			return eventError(file, i, spec.Line, "newSource event without source",
				"Add a source mapping with id and name")
		}
		id, err := r.addSource(ctx, st, spec.Source)
		if err != nil {
			return err
		}
		d, _ := r.d.Units().Descriptor(id)
		ev.Source = &d
		unit = id
	} else {
		unit, ok = st.units[spec.Unit]
		if !ok {
			return eventError(file, i, spec.Line, fmt.Sprintf("unknown unit %d", spec.Unit),
				`Declare the unit under "sources" or with a newSource event`)
		}
	}

	if err := st.resolve(spec, ev); err != nil {
		return eventError(file, i, spec.Line, err.Error(), "")
	}

	repeat := max(spec.Repeat, 1)
	resultGiven := spec.Result.Kind != 0
	for range repeat {
		if h == hook.InvokeFun {
			applyCall(ev, resultGiven)
		}

		ctrl := r.d.Dispatch(h, unit, ev)
		st.stats.Events++
		if ctrl.Skip {
			st.stats.Skipped++
		}
		if h == hook.PutFieldPre && !ctrl.Skip {
			val := ev.Val
			if ctrl.HasResult {
				val = ctrl.Result
			}
			applyStore(ev.Base, ev.Offset, val)
		}

		// One event is one synchronous turn.
		st.stats.Deferred += r.d.RunDeferred()
	}
	return nil
}

// resolve fills the value fields of ev. Values are resolved once per event,
// so repeats reuse the same objects.
func (st *run) resolve(spec *EventSpec, ev *dispatch.Event) error {
	fields := []struct {
		name string
		node *yaml.Node
		dst  *any
	}{
		{"base", &spec.Base, &ev.Base},
		{"offset", &spec.Offset, &ev.Offset},
		{"val", &spec.Val, &ev.Val},
		{"f", &spec.F, &ev.F},
		{"result", &spec.Result, &ev.Result},
		{"left", &spec.Left, &ev.Left},
		{"right", &spec.Right, &ev.Right},
		{"exception", &spec.Exception, &ev.Exception},
	}
	for _, f := range fields {
		v, err := st.heap.resolve(f.node)
		if err != nil {
			return fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = v
	}

	args, err := st.heap.list(&spec.Args)
	if err != nil {
		return fmt.Errorf("args: %w", err)
	}
	ev.Args = args
	return nil
}

// applyCall performs the array builtins invokeFun reports after the fact.
func applyCall(ev *dispatch.Event, resultGiven bool) {
	arr, ok := value.AsArray(ev.Base)
	if !ok || arr.Frozen() {
		return
	}
	switch ev.F {
	case value.ArrayPush:
		arr.Elements = append(arr.Elements, ev.Args...)
		if !resultGiven {
			ev.Result = float64(len(arr.Elements))
		}
	case value.ArrayPop:
		var popped any = value.Undefined
		if n := len(arr.Elements); n > 0 {
			popped = arr.Elements[n-1]
			arr.Elements = arr.Elements[:n-1]
		}
		if !resultGiven {
			ev.Result = popped
		}
	}
}

// applyStore performs base[offset] = val on a replayed object.
func applyStore(base, offset, val any) {
	o, ok := base.(*value.Object)
	if !ok {
		return
	}
	if o.IsArray() {
		if i, ok := value.Index(offset); ok {
			o.SetIndex(i, val)
			return
		}
		if s, ok := offset.(string); ok {
			if i, err := strconv.Atoi(s); err == nil && i >= 0 && strconv.Itoa(i) == s {
				o.SetIndex(i, val)
				return
			}
		}
	}
	o.SetProp(value.PropertyKey(offset), val)
}
