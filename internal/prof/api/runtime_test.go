package api

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kolkov/dynprof/internal/prof/analysis/branchcov"
	"github.com/kolkov/dynprof/internal/prof/analysis/typedarray"
	"github.com/kolkov/dynprof/internal/prof/config"
	"github.com/kolkov/dynprof/internal/prof/dispatch"
	"github.com/kolkov/dynprof/internal/prof/hook"
	"github.com/kolkov/dynprof/internal/prof/observe"
	"github.com/kolkov/dynprof/internal/prof/rtdb"
	"github.com/kolkov/dynprof/internal/prof/source"
	"github.com/kolkov/dynprof/internal/prof/value"
)

type testRuntime struct {
	*Runtime
	report *bytes.Buffer
	out    *bytes.Buffer
}

func newTestRuntime(t *testing.T, mutate func(*config.Config)) *testRuntime {
	t.Helper()
	cfg := config.Default()
	if mutate != nil {
		mutate(&cfg)
	}
	report, out := &bytes.Buffer{}, &bytes.Buffer{}
	rt, err := NewRuntime(context.Background(),
		WithConfig(&cfg),
		WithObserver(observe.NoOpObserver{}),
		WithReportWriter(report),
		WithOutput(out),
	)
	require.NoError(t, err)
	return &testRuntime{Runtime: rt, report: report, out: out}
}

// pushLoop plays n single-element pushes onto a literal array at iid 3.
func pushLoop(rt *Runtime, unit source.ID, n int) {
	arr := value.NewArray()
	rt.Dispatch(hook.Literal, unit, &dispatch.Event{IID: 3, Val: arr})
	for i := 0; i < n; i++ {
		arr.Elements = append(arr.Elements, 7.0)
		rt.Dispatch(hook.InvokeFun, unit, &dispatch.Event{
			IID: 9, F: value.ArrayPush, Base: arr, Args: []any{7.0}, IsMethod: true,
		})
		rt.EndTurn()
	}
}

func TestRuntime_EndToEnd(t *testing.T) {
	rt := newTestRuntime(t, func(c *config.Config) { c.Threshold = 10 })
	require.NoError(t, rt.Use(typedarray.Name, branchcov.Name))

	unit := rt.AddSource(source.Descriptor{Name: "main.js", Path: "/app/main.js"}).ID
	rt.Units().AddLocation(source.GIID{Unit: unit, IID: 3}, source.Span{StartLine: 1, StartCol: 9, EndLine: 1, EndCol: 11})

	pushLoop(rt.Runtime, unit, 20)
	rt.Dispatch(hook.Conditional, unit, &dispatch.Event{IID: 12, Result: true})
	rt.Dispatch(hook.Conditional, unit, &dispatch.Event{IID: 12, Result: 0.0})

	sum, err := rt.Fini(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{typedarray.Name, branchcov.Name}, sum.Plugins)
	assert.Equal(t, 1, sum.Units)
	assert.Equal(t, int64(23), sum.Fired)
	assert.Equal(t, 2, sum.Leaves)
	assert.False(t, rt.Enabled(), "disabled after Fini")

	out := rt.out.String()
	assert.Contains(t, out, "location: (/app/main.js:1:9:1:11)")
	assert.Contains(t, out, "[****]typedArray: 1")
	assert.Contains(t, out, "True branch taken at")

	report := rt.report.String()
	assert.Contains(t, report, "Dynamic Analysis Report")
	assert.Contains(t, report, rt.RunID().String())
	assert.Contains(t, report, "Plugins:  typedarray, branchcov")
	assert.Contains(t, report, "Events:   23 dispatched, 0 filtered")

	t.Logf("analysis output:\n%s", out)
	t.Logf("summary:\n%s", report)
}

func TestRuntime_FiniOnce(t *testing.T) {
	rt := newTestRuntime(t, nil)
	ends := 0
	require.NoError(t, rt.Register(&dispatch.Plugin{
		Name:  "end",
		Hooks: dispatch.Hooks{EndExecution: func() { ends++ }},
	}, nil))

	first, err := rt.Fini(context.Background())
	require.NoError(t, err)
	second, err := rt.Fini(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, ends)
	assert.Equal(t, first.RunID, second.RunID)
	assert.Equal(t, 1, strings.Count(rt.report.String(), "Dynamic Analysis Report"))
}

func TestRuntime_UseUnknown(t *testing.T) {
	rt := newTestRuntime(t, nil)
	err := rt.Use("heapgraph")
	assert.ErrorIs(t, err, ErrUnknownAnalysis)
	assert.Contains(t, err.Error(), "typedarray")
}

func TestRuntime_UseAfterFini(t *testing.T) {
	rt := newTestRuntime(t, nil)
	_, err := rt.Fini(context.Background())
	require.NoError(t, err)

	assert.ErrorIs(t, rt.Use(branchcov.Name), dispatch.ErrFinalized)
}

func TestAnalyses(t *testing.T) {
	assert.Equal(t, []string{"branchcov", "eventlog", "literal", "typedarray"}, Analyses())
}

// TestRuntime_Snapshot verifies the aggregation DB is saved under the run id.
func TestRuntime_Snapshot(t *testing.T) {
	dir := t.TempDir()
	rt := newTestRuntime(t, func(c *config.Config) { c.SnapshotDir = dir })
	require.NoError(t, rt.Use(branchcov.Name))

	unit := rt.AddSource(source.Descriptor{Name: "a.js"}).ID
	for i := 0; i < 3; i++ {
		rt.Dispatch(hook.Conditional, unit, &dispatch.Event{IID: 4, Result: true})
	}

	sum, err := rt.Fini(context.Background())
	require.NoError(t, err)
	assert.Equal(t, dir, sum.Snapshot)
	assert.Contains(t, rt.report.String(), "Snapshot: "+dir)

	bdb, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	require.NoError(t, err)
	defer bdb.Close()

	loaded, err := rtdb.Load(context.Background(), bdb, rt.RunID().String())
	require.NoError(t, err)
	c, ok := loaded.Count(branchcov.Root, branchcov.True, source.GIID{Unit: unit, IID: 4}.String())
	require.True(t, ok)
	assert.Equal(t, int64(3), c.Count)
}

func TestRuntime_ScopeAndAllowList(t *testing.T) {
	rt := newTestRuntime(t, func(c *config.Config) {
		c.Scope = config.ScopeModule
		c.EnabledHooks = []string{"read"}
	})
	var reads, writes []source.ID
	require.NoError(t, rt.Register(&dispatch.Plugin{
		Name: "rw",
		Hooks: dispatch.Hooks{
			Read:  func(ev *dispatch.Event) *dispatch.Control { reads = append(reads, ev.Unit); return nil },
			Write: func(ev *dispatch.Event) *dispatch.Control { writes = append(writes, ev.Unit); return nil },
		},
	}, nil))

	app := rt.AddSource(source.Descriptor{Name: "app.js"}).ID
	lib := rt.AddSource(source.Descriptor{Name: "node:internal", Internal: true}).ID

	rt.Dispatch(hook.Read, app, &dispatch.Event{IID: 1})
	rt.Dispatch(hook.Read, lib, &dispatch.Event{IID: 1})
	rt.Dispatch(hook.Write, app, &dispatch.Event{IID: 2})

	assert.Equal(t, []source.ID{app}, reads)
	assert.Empty(t, writes)
}

func TestRuntime_EnableDisable(t *testing.T) {
	rt := newTestRuntime(t, nil)
	n := 0
	require.NoError(t, rt.Register(&dispatch.Plugin{
		Name:  "count",
		Hooks: dispatch.Hooks{Read: func(*dispatch.Event) *dispatch.Control { n++; return nil }},
	}, nil))
	unit := rt.AddSource(source.Descriptor{Name: "a.js"}).ID

	rt.Disable()
	rt.Dispatch(hook.Read, unit, nil)
	rt.Enable()
	rt.Dispatch(hook.Read, unit, nil)

	assert.Equal(t, 1, n)
}

func TestRuntime_NewSourceAnnounced(t *testing.T) {
	rt := newTestRuntime(t, nil)
	var names []string
	require.NoError(t, rt.Register(&dispatch.Plugin{
		Name: "sources",
		Hooks: dispatch.Hooks{NewSource: func(ev *dispatch.Event) *dispatch.Control {
			names = append(names, ev.Source.Name)
			return nil
		}},
	}, nil))

	rt.AddSource(source.Descriptor{Name: "a.js", Text: "1"})
	rt.AddSource(source.Descriptor{Name: "b.js", Text: "2"})
	assert.Equal(t, []string{"a.js", "b.js"}, names)
}

func TestNewRuntime_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Scope = "everything"

	_, err := NewRuntime(context.Background(), WithConfig(&cfg))
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
}

func TestNewRuntime_FromEnvironment(t *testing.T) {
	t.Setenv(config.EnvConfig, "")
	t.Setenv(config.EnvThreshold, "5")
	t.Setenv(config.EnvScope, config.ScopeApp)

	rt, err := NewRuntime(context.Background(), WithObserver(observe.NoOpObserver{}))
	require.NoError(t, err)
	assert.Equal(t, 5, rt.Config().Threshold)
	assert.Equal(t, config.ScopeApp, rt.Config().Scope)
}

func TestNewRuntime_DistinctRunIDs(t *testing.T) {
	a := newTestRuntime(t, nil)
	b := newTestRuntime(t, nil)
	assert.NotEqual(t, a.RunID(), b.RunID())
}

func TestRuntime_Host(t *testing.T) {
	rt := newTestRuntime(t, nil)
	h := rt.Host()

	assert.Same(t, rt.Dispatcher(), h.Dispatcher)
	assert.Same(t, rt.Units(), h.Units)
	assert.Same(t, rt.Shadow(), h.Shadow)
	assert.Same(t, rt.DB(), h.DB)
	assert.Equal(t, rt.Output(), h.Out)
}

func TestRuntime_LoadPluginMissing(t *testing.T) {
	rt := newTestRuntime(t, nil)
	err := rt.LoadPlugin("/nonexistent/analysis.so")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "/nonexistent/analysis.so")
}

func TestSummary_Format(t *testing.T) {
	s := Summary{
		Plugins:       []string{"typedarray"},
		Units:         2,
		Hooks:         []dispatch.HookStats{{Hook: hook.InvokeFun, Fired: 1001, Deactivated: 1}, {Hook: hook.Read}},
		Fired:         1001,
		Filtered:      4,
		ShadowRecords: 3,
		Degraded:      2,
		Leaves:        6,
	}
	out := s.String()

	assert.True(t, strings.HasPrefix(out, "\n==================\nDynamic Analysis Report\n"))
	assert.Contains(t, out, "Events:   1001 dispatched, 4 filtered\n")
	assert.Contains(t, out, "invokeFun")
	assert.Contains(t, out, "1001 fired, 1 deactivated\n")
	assert.NotContains(t, out, "read ")
	assert.Contains(t, out, "Shadow:   3 record(s), WARNING: 2 unshared\n")
	assert.Contains(t, out, "DB:       6 leaf value(s)\n")
	assert.NotContains(t, out, "Snapshot:")

	empty := (&Summary{}).String()
	assert.Contains(t, empty, "Plugins:  (none)")
}
