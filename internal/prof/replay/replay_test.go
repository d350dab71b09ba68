package replay

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/dynprof/internal/prof/analysis/typedarray"
	"github.com/kolkov/dynprof/internal/prof/dispatch"
	"github.com/kolkov/dynprof/internal/prof/hook"
	"github.com/kolkov/dynprof/internal/prof/observe"
	"github.com/kolkov/dynprof/internal/prof/shadowmem"
	"github.com/kolkov/dynprof/internal/prof/source"
	"github.com/kolkov/dynprof/internal/prof/value"
)

type recorder struct {
	mu     sync.Mutex
	events []observe.Event
}

func (r *recorder) OnEvent(_ context.Context, e observe.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func decode(t *testing.T, doc string) *Trace {
	t.Helper()
	tr, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	return tr
}

// capture registers a plugin remembering the last value seen by literal.
func capture(t *testing.T, d *dispatch.Dispatcher) **value.Object {
	t.Helper()
	var last *value.Object
	require.NoError(t, d.Register(&dispatch.Plugin{
		Name: "capture",
		Hooks: dispatch.Hooks{
			Literal: func(ev *dispatch.Event) *dispatch.Control {
				last, _ = ev.Val.(*value.Object)
				return nil
			},
		},
	}, nil))
	return &last
}

const pushTrace = `
sources:
  - id: 1
    name: main.js
    path: /app/main.js
    text: "var a = [];\nfor (var i = 0; i <= 1000; i++) a.push(7);\n"
locations:
  - {unit: 1, iid: 3, span: [1, 9, 1, 11]}
events:
  - {hook: literal, unit: 1, iid: 3, val: {new: 1, kind: array}}
  - {hook: invokeFun, unit: 1, iid: 9, f: {builtin: Array.prototype.push}, base: {ref: 1}, args: [7], isMethod: true, repeat: 1001}
`

// TestRun_TypedArrayReport replays a push loop end to end through the
// array-shape advisor.
func TestRun_TypedArrayReport(t *testing.T) {
	units := source.NewRegistry()
	d := dispatch.New(units)
	out := &bytes.Buffer{}
	ta := typedarray.New(shadowmem.New(), typedarray.WithRegistry(units), typedarray.WithOutput(out))
	require.NoError(t, d.Register(ta.Plugin(), nil))

	stats, err := New(d).Run(context.Background(), decode(t, pushTrace))
	require.NoError(t, err)
	assert.Equal(t, 1002, stats.Events)
	assert.Equal(t, 1, stats.Units)

	d.Finalize()

	rep := ta.Report()
	require.Len(t, rep.Sites, 1)
	site := rep.Sites[0]
	assert.Equal(t, int64(1001), site.Count)
	assert.Equal(t, []int{1000}, site.MaxIndices)
	assert.Equal(t, []string{"push"}, site.Methods)
	assert.Equal(t, typedarray.AllKinds, site.Kinds)
	assert.Equal(t, "(/app/main.js:1:9:1:11)", site.Location)
	assert.Contains(t, out.String(), "[****]typedArray: 1")

	t.Logf("report:\n%s", out.String())
}

func TestRun_AppliesStores(t *testing.T) {
	d := dispatch.New(source.NewRegistry())
	arr := capture(t, d)

	_, err := New(d).Run(context.Background(), decode(t, `
sources: [{id: 1, name: a.js}]
events:
  - {hook: literal, unit: 1, iid: 1, val: {new: 1, kind: array, elements: [1]}}
  - {hook: putFieldPre, unit: 1, iid: 2, base: {ref: 1}, offset: 2, val: 1.5}
  - {hook: putFieldPre, unit: 1, iid: 3, base: {ref: 1}, offset: "3", val: x}
  - {hook: putFieldPre, unit: 1, iid: 4, base: {ref: 1}, offset: foo, val: true}
  - {hook: putField, unit: 1, iid: 5, base: {ref: 1}, offset: 0, val: 99}
`))
	require.NoError(t, err)

	require.NotNil(t, *arr)
	assert.Equal(t, []any{1.0, value.Undefined, 1.5, "x"}, (*arr).Elements)
	assert.Equal(t, true, (*arr).Props["foo"])
}

// TestRun_SparseStores verifies far out index stores do not materialize
// every slot up to the index.
func TestRun_SparseStores(t *testing.T) {
	d := dispatch.New(source.NewRegistry())
	arr := capture(t, d)

	_, err := New(d).Run(context.Background(), decode(t, `
sources: [{id: 1, name: a.js}]
events:
  - {hook: literal, unit: 1, iid: 1, val: {new: 1, kind: array, elements: [1]}}
  - {hook: putFieldPre, unit: 1, iid: 2, base: {ref: 1}, offset: 2000000000, val: 1}
  - {hook: putFieldPre, unit: 1, iid: 3, base: {ref: 1}, offset: "9000000000", val: 2}
`))
	require.NoError(t, err)

	require.NotNil(t, *arr)
	assert.Equal(t, 1, (*arr).Len())
	assert.Equal(t, 1.0, (*arr).Props["2000000000"])
	assert.Equal(t, 2.0, (*arr).Props["9000000000"])
}

// TestRun_ControlSteersStores verifies Skip and Result returned from
// putFieldPre change what is stored.
func TestRun_ControlSteersStores(t *testing.T) {
	d := dispatch.New(source.NewRegistry())
	arr := capture(t, d)
	require.NoError(t, d.Register(&dispatch.Plugin{
		Name: "steer",
		Hooks: dispatch.Hooks{
			PutFieldPre: func(ev *dispatch.Event) *dispatch.Control {
				if ev.Offset == 0.0 {
					return &dispatch.Control{Skip: true}
				}
				return dispatch.WithResult(42.0)
			},
		},
	}, nil))

	stats, err := New(d).Run(context.Background(), decode(t, `
sources: [{id: 1, name: a.js}]
events:
  - {hook: literal, unit: 1, iid: 1, val: {new: 1, kind: array}}
  - {hook: putFieldPre, unit: 1, iid: 2, base: {ref: 1}, offset: 0, val: 1}
  - {hook: putFieldPre, unit: 1, iid: 3, base: {ref: 1}, offset: 1, val: 2}
`))
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Skipped)
	assert.Equal(t, []any{value.Undefined, 42.0}, (*arr).Elements)
}

func TestRun_PushPopResults(t *testing.T) {
	d := dispatch.New(source.NewRegistry())
	var results []any
	require.NoError(t, d.Register(&dispatch.Plugin{
		Name: "calls",
		Hooks: dispatch.Hooks{
			InvokeFun: func(ev *dispatch.Event) *dispatch.Control {
				results = append(results, ev.Result)
				return nil
			},
		},
	}, nil))

	_, err := New(d).Run(context.Background(), decode(t, `
sources: [{id: 1, name: a.js}]
events:
  - {hook: literal, unit: 1, iid: 1, val: {new: 1, kind: array, elements: [5]}}
  - {hook: invokeFun, unit: 1, iid: 2, f: {builtin: Array.prototype.push}, base: {ref: 1}, args: [6, 7]}
  - {hook: invokeFun, unit: 1, iid: 3, f: {builtin: Array.prototype.pop}, base: {ref: 1}}
  - {hook: invokeFun, unit: 1, iid: 4, f: {builtin: Array.prototype.pop}, base: {ref: 1}, result: 0}
  - {hook: invokeFun, unit: 1, iid: 5, f: {builtin: Array.prototype.pop}, base: {new: 2, kind: array}}
`))
	require.NoError(t, err)
	assert.Equal(t, []any{3.0, 7.0, 0.0, value.Undefined}, results)
}

// TestRun_DeferredPerEvent verifies the deferred queue drains after every
// event, so a plugin suspending analysis misses only the rest of its turn.
func TestRun_DeferredPerEvent(t *testing.T) {
	d := dispatch.New(source.NewRegistry())
	var seen []int
	require.NoError(t, d.Register(&dispatch.Plugin{
		Name: "suspend",
		Hooks: dispatch.Hooks{
			Return: func(ev *dispatch.Event) *dispatch.Control {
				d.SuspendForTurn()
				return dispatch.Deactivated()
			},
			Read: func(ev *dispatch.Event) *dispatch.Control {
				seen = append(seen, ev.IID)
				return nil
			},
		},
	}, nil))

	stats, err := New(d).Run(context.Background(), decode(t, `
sources: [{id: 1, name: a.js}]
events:
  - {hook: read, unit: 1, iid: 1, name: x}
  - {hook: _return, unit: 1, iid: 2}
  - {hook: read, unit: 1, iid: 3, name: x}
  - {hook: _return, unit: 1, iid: 4}
`))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3}, seen)
	assert.Equal(t, 1, stats.Deferred)
	assert.True(t, d.Enabled())
	assert.Zero(t, d.Pending())
}

func TestRun_NewSourceEvent(t *testing.T) {
	units := source.NewRegistry()
	d := dispatch.New(units)
	var names []string
	var reads []source.ID
	require.NoError(t, d.Register(&dispatch.Plugin{
		Name: "sources",
		Hooks: dispatch.Hooks{
			NewSource: func(ev *dispatch.Event) *dispatch.Control {
				names = append(names, ev.Source.Name)
				return nil
			},
			Read: func(ev *dispatch.Event) *dispatch.Control {
				reads = append(reads, ev.Unit)
				return nil
			},
		},
	}, nil))

	stats, err := New(d).Run(context.Background(), decode(t, `
events:
  - {hook: newSource, source: {id: 4, name: "eval at 1:1", text: "x"}}
  - {hook: read, unit: 4, iid: 1, name: x}
`))
	require.NoError(t, err)
	assert.Equal(t, []string{"eval at 1:1"}, names)
	require.Len(t, reads, 1)
	assert.Equal(t, 1, stats.Units)

	desc, ok := units.Descriptor(reads[0])
	require.True(t, ok)
	assert.Equal(t, "x", desc.Text)
}

func TestRun_SourceURL(t *testing.T) {
	file := filepath.Join(t.TempDir(), "lib.js")
	require.NoError(t, os.WriteFile(file, []byte("var y = [];"), 0o600))

	units := source.NewRegistry()
	d := dispatch.New(units)
	tr := &Trace{Sources: []SourceSpec{{ID: 1, URL: file, Internal: true}}}

	_, err := New(d).Run(context.Background(), tr)
	require.NoError(t, err)

	desc, ok := units.Descriptor(1)
	require.True(t, ok)
	assert.Equal(t, "lib.js", desc.Name)
	assert.Equal(t, "var y = [];", desc.Text)
	assert.True(t, desc.Internal)
}

func TestRun_Errors(t *testing.T) {
	tests := []struct {
		name       string
		doc        string
		event      int
		line       int
		message    string
		suggestion string
	}{
		{
			name:       "unknown hook",
			doc:        "sources: [{id: 1}]\nevents:\n  - {hook: bogus, unit: 1}\n",
			event:      0,
			line:       3,
			message:    `unknown hook "bogus"`,
			suggestion: "hook name",
		},
		{
			name:       "end execution event",
			doc:        "events:\n  - {hook: endExecution}\n",
			event:      0,
			line:       2,
			message:    "unknown hook",
			suggestion: "finalizes",
		},
		{
			name:       "unknown unit",
			doc:        "sources: [{id: 1}]\nevents:\n  - {hook: read, unit: 1}\n  - {hook: read, unit: 7}\n",
			event:      1,
			line:       4,
			message:    "unknown unit 7",
			suggestion: "sources",
		},
		{
			name:    "undeclared reference",
			doc:     "sources: [{id: 1}]\nevents:\n  - {hook: getField, unit: 1, base: {ref: 3}}\n",
			event:   0,
			line:    3,
			message: "base: line 3: reference to undeclared object 3",
		},
		{
			name:    "object declared twice",
			doc:     "sources: [{id: 1}]\nevents:\n  - {hook: literal, unit: 1, val: {new: 1}}\n  - {hook: literal, unit: 1, val: {new: 1}}\n",
			event:   1,
			line:    4,
			message: "object 1 declared twice",
		},
		{
			name:    "unknown builtin",
			doc:     "sources: [{id: 1}]\nevents:\n  - {hook: invokeFun, unit: 1, f: {builtin: Array.prototype.fly}}\n",
			event:   0,
			line:    3,
			message: `unknown builtin "Array.prototype.fly"`,
		},
		{
			name:    "args not a list",
			doc:     "sources: [{id: 1}]\nevents:\n  - {hook: invokeFun, unit: 1, args: 3}\n",
			event:   0,
			line:    3,
			message: "args must be a list",
		},
		{
			name:       "short span",
			doc:        "sources: [{id: 1}]\nlocations:\n  - {unit: 1, iid: 2, span: [1, 2]}\n",
			event:      -1,
			line:       3,
			message:    "span has 2 numbers, want 4",
			suggestion: "startLine",
		},
		{
			name:    "duplicate source",
			doc:     "sources:\n  - {id: 1}\n  - {id: 1}\n",
			event:   -1,
			line:    3,
			message: "source 1 declared twice",
		},
		{
			name:    "source id zero",
			doc:     "sources:\n  - {name: a.js}\n",
			event:   -1,
			line:    2,
			message: "not positive",
		},
		{
			name:       "newSource without source",
			doc:        "events:\n  - {hook: newSource}\n",
			event:      0,
			line:       2,
			message:    "without source",
			suggestion: "source mapping",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := dispatch.New(source.NewRegistry())
			_, err := New(d).Run(context.Background(), decode(t, tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidTrace)

			var te *TraceError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, tt.event, te.Event)
			assert.Equal(t, tt.line, te.Line)
			assert.Contains(t, te.Message, tt.message)
			if tt.suggestion != "" {
				assert.Contains(t, te.Suggestion, tt.suggestion)
			}
			t.Logf("%v", err)
		})
	}
}

func TestRun_Canceled(t *testing.T) {
	d := dispatch.New(source.NewRegistry())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stats, err := New(d).Run(ctx, decode(t, pushTrace))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stats.Events)
	assert.Equal(t, 1, stats.Units)
}

func TestRun_EmitsDone(t *testing.T) {
	rec := &recorder{}
	d := dispatch.New(source.NewRegistry())

	_, err := New(d, WithObserver(rec)).Run(context.Background(), decode(t, pushTrace))
	require.NoError(t, err)

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 1)
	assert.Equal(t, observe.EventReplayDone, rec.events[0].Type)
	assert.Equal(t, 1002, rec.events[0].Data["events"])
}

func TestTraceError_Format(t *testing.T) {
	err := &TraceError{File: "trace.yaml", Line: 14, Event: 3, Message: "unknown unit 7", Suggestion: `Declare the unit under "sources"`}
	assert.Equal(t, "trace.yaml:14: event 3: unknown unit 7\n\nSuggestion: Declare the unit under \"sources\"", err.Error())

	err = &TraceError{Event: -1, Message: "bad"}
	assert.Equal(t, "<trace>: bad", err.Error())
}

func TestDecode(t *testing.T) {
	tr := decode(t, pushTrace)
	require.Len(t, tr.Sources, 1)
	require.Len(t, tr.Locations, 1)
	require.Len(t, tr.Events, 2)

	assert.Equal(t, 3, tr.Sources[0].Line)
	assert.Equal(t, []int{1, 9, 1, 11}, tr.Locations[0].Span)
	assert.Equal(t, 1001, tr.Events[1].Repeat)
	assert.True(t, tr.Events[1].IsMethod)
	assert.Equal(t, 10, tr.Events[0].Line)

	empty, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, empty.Events)

	_, err = Decode(strings.NewReader("evnts: []"))
	assert.ErrorIs(t, err, ErrInvalidTrace)
}

func TestLoadFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "trace.yaml")
	require.NoError(t, os.WriteFile(file, []byte(pushTrace), 0o600))

	tr, err := LoadFile(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, file, tr.File)
	assert.Len(t, tr.Events, 2)

	_, err = LoadFile(context.Background(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("events: {"), 0o600))
	_, err = LoadFile(context.Background(), bad)
	var te *TraceError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, bad, te.File)
}

func TestResolve(t *testing.T) {
	tr := decode(t, `
events:
  - hook: invokeFun
    args:
      - 1
      - 2.5
      - str
      - "12"
      - true
      - null
      - {undefined: true}
      - {builtin: Array}
      - {new: 1, kind: function, name: f}
      - {new: 2, props: {self: {ref: 2}, n: 1}}
      - [1, [2]]
      - {ref: 1}
`)
	h := newHeap()
	args, err := h.list(&tr.Events[0].Args)
	require.NoError(t, err)
	require.Len(t, args, 12)

	assert.Equal(t, 1.0, args[0])
	assert.Equal(t, 2.5, args[1])
	assert.Equal(t, "str", args[2])
	assert.Equal(t, "12", args[3])
	assert.Equal(t, true, args[4])
	assert.Nil(t, args[5])
	assert.Equal(t, value.Undefined, args[6])
	assert.Same(t, value.ArrayConstructor, args[7])

	fn := args[8].(*value.Object)
	assert.Equal(t, value.KindFunction, fn.Kind())
	assert.Equal(t, "f", fn.Name)

	obj := args[9].(*value.Object)
	assert.Same(t, obj, obj.Props["self"])
	assert.Equal(t, 1.0, obj.Props["n"])

	nested := args[10].(*value.Object)
	require.True(t, nested.IsArray())
	assert.True(t, value.IsArray(nested.Elements[1]))

	assert.Same(t, fn, args[11])

	_, err = h.resolve(&tr.Events[0].Base)
	assert.NoError(t, err, "absent value")
}

func TestRun_HookParse(t *testing.T) {
	// Every wire name must be accepted in a trace.
	for _, h := range hook.All() {
		if h == hook.NewSource {
			continue
		}
		d := dispatch.New(source.NewRegistry())
		tr := &Trace{
			Sources: []SourceSpec{{ID: 1, Name: "a.js"}},
			Events:  []EventSpec{{Hook: h.String(), Unit: 1}},
		}
		_, err := New(d).Run(context.Background(), tr)
		assert.NoError(t, err, h.String())
	}
}
