package loader

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"plugin"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/dynprof/internal/prof/dispatch"
	"github.com/kolkov/dynprof/internal/prof/filter"
	"github.com/kolkov/dynprof/internal/prof/hook"
	"github.com/kolkov/dynprof/internal/prof/observe"
	"github.com/kolkov/dynprof/internal/prof/source"
)

// fakePlugin serves symbols from a map.
type fakePlugin map[string]plugin.Symbol

func (f fakePlugin) Lookup(name string) (plugin.Symbol, error) {
	sym, ok := f[name]
	if !ok {
		return nil, errors.New("plugin: symbol " + name + " not found")
	}
	return sym, nil
}

type recorder struct {
	mu     sync.Mutex
	events []observe.Event
}

func (r *recorder) OnEvent(_ context.Context, e observe.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func analysis(h *Host) (*dispatch.Plugin, filter.Filter) {
	return &dispatch.Plugin{
		Name: "counter",
		Hooks: dispatch.Hooks{
			Literal: func(ev *dispatch.Event) *dispatch.Control {
				h.Out.Write([]byte("literal\n")) //nolint:errcheck // test output
				return nil
			},
		},
	}, filter.Predicate(func(d source.Descriptor) filter.Decision {
		return filter.Bool(!d.Internal)
	})
}

func TestOpen_MissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.so")

	_, err := Open(path)
	require.Error(t, err)

	var le *LoadError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, path, le.Path)
	assert.Contains(t, err.Error(), path)
	t.Logf("%v", err)
}

func TestFromSymbols(t *testing.T) {
	version := "v1.3.0"
	fn := analysis
	factory := Factory(analysis)

	tests := []struct {
		name string
		syms fakePlugin
		want error
	}{
		{"func and string pointer", fakePlugin{SymbolAPIVersion: &version, SymbolAnalysis: analysis}, nil},
		{"func variable", fakePlugin{SymbolAPIVersion: &version, SymbolAnalysis: &fn}, nil},
		{"factory variable", fakePlugin{SymbolAPIVersion: "v1.0.0", SymbolAnalysis: &factory}, nil},
		{"missing version", fakePlugin{SymbolAnalysis: analysis}, ErrMissingSymbol},
		{"missing analysis", fakePlugin{SymbolAPIVersion: &version}, ErrMissingSymbol},
		{"version type", fakePlugin{SymbolAPIVersion: 1, SymbolAnalysis: analysis}, ErrSymbolType},
		{"analysis type", fakePlugin{SymbolAPIVersion: &version, SymbolAnalysis: func() {}}, ErrSymbolType},
		{"major mismatch", fakePlugin{SymbolAPIVersion: "v2.0.0", SymbolAnalysis: analysis}, ErrIncompatibleAPI},
		{"not semver", fakePlugin{SymbolAPIVersion: "1.0", SymbolAnalysis: analysis}, ErrInvalidVersion},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := fromSymbols("x.so", tt.syms)
			if tt.want == nil {
				require.NoError(t, err)
				assert.Equal(t, "x.so", a.Path)
				return
			}
			assert.ErrorIs(t, err, tt.want)
			var le *LoadError
			require.True(t, errors.As(err, &le))
			assert.Equal(t, "x.so", le.Path)
		})
	}
}

func TestCheckVersion(t *testing.T) {
	assert.NoError(t, CheckVersion(APIVersion))
	assert.NoError(t, CheckVersion("v1.99.3"))
	assert.ErrorIs(t, CheckVersion("v0.9.0"), ErrIncompatibleAPI)
	assert.ErrorIs(t, CheckVersion(""), ErrInvalidVersion)
}

func TestAnalysis_Register(t *testing.T) {
	units := source.NewRegistry()
	unit := units.Add(source.Descriptor{Name: "a.js"}).ID
	lib := units.Add(source.Descriptor{Name: "lib.js", Internal: true}).ID
	d := dispatch.New(units)
	out := &bytes.Buffer{}
	rec := &recorder{}

	a, err := fromSymbols("counter.so", fakePlugin{SymbolAPIVersion: "v1.0.0", SymbolAnalysis: analysis})
	require.NoError(t, err)
	require.NoError(t, a.Register(&Host{Dispatcher: d, Units: units, Out: out, Observer: rec}))

	assert.Equal(t, []string{"counter"}, d.Plugins())
	d.Dispatch(hook.Literal, unit, &dispatch.Event{IID: 1})
	d.Dispatch(hook.Literal, lib, &dispatch.Event{IID: 1})
	assert.Equal(t, "literal\n", out.String())

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.events, 1)
	assert.Equal(t, observe.EventPluginLoaded, rec.events[0].Type)
	assert.Equal(t, "counter", rec.events[0].Data["plugin"])
}

func TestAnalysis_RegisterNilPlugin(t *testing.T) {
	nilFactory := func(*Host) (*dispatch.Plugin, filter.Filter) { return nil, nil }
	a, err := fromSymbols("nil.so", fakePlugin{SymbolAPIVersion: "v1.0.0", SymbolAnalysis: nilFactory})
	require.NoError(t, err)

	err = a.Register(&Host{Dispatcher: dispatch.New(source.NewRegistry())})
	assert.ErrorIs(t, err, ErrNilAnalysisPlugin)
}

func TestAnalysis_RegisterAfterFinalize(t *testing.T) {
	d := dispatch.New(source.NewRegistry())
	d.Finalize()

	a, err := fromSymbols("late.so", fakePlugin{SymbolAPIVersion: "v1.0.0", SymbolAnalysis: analysis})
	require.NoError(t, err)

	err = a.Register(&Host{Dispatcher: d, Out: &bytes.Buffer{}})
	assert.ErrorIs(t, err, dispatch.ErrFinalized)
}
