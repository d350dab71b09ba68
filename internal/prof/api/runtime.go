// Package api provides the profiler runtime behind the public prof facade.
//
// A Runtime bundles everything one profiling session needs: the source
// registry, the hook dispatcher, the shadow metadata store and the
// aggregation database, all wired from a config.Config. The package also
// keeps a process-wide default Runtime for the facade's Init/Fini entry
// points; tools that want isolation create their own with NewRuntime.
//
// Lifecycle:
//
//	rt, err := api.NewRuntime(ctx)
//	rt.Use(typedarray.Name)
//	... event producer calls rt.Dispatch ...
//	rt.Fini(ctx) // runs endExecution, snapshots, prints the summary
package api

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/kolkov/dynprof/internal/prof/config"
	"github.com/kolkov/dynprof/internal/prof/dispatch"
	"github.com/kolkov/dynprof/internal/prof/filter"
	"github.com/kolkov/dynprof/internal/prof/hook"
	"github.com/kolkov/dynprof/internal/prof/loader"
	"github.com/kolkov/dynprof/internal/prof/observe"
	"github.com/kolkov/dynprof/internal/prof/rtdb"
	"github.com/kolkov/dynprof/internal/prof/shadowmem"
	"github.com/kolkov/dynprof/internal/prof/source"
)

// Runtime is one profiling session.
//
// Thread Safety: like the Dispatcher it wraps, a Runtime is driven from one
// goroutine. Enable, Disable and Enabled are safe from any goroutine.
type Runtime struct {
	cfg   *config.Config
	runID uuid.UUID

	units      *source.Registry
	dispatcher *dispatch.Dispatcher
	shadow     *shadowmem.Store
	db         *rtdb.DB
	obs        observe.Observer

	report io.Writer
	out    io.Writer

	finiOnce sync.Once
	summary  Summary
	finiErr  error
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithConfig uses cfg instead of resolving DYNPROF_CONFIG and the environment.
func WithConfig(cfg *config.Config) Option {
	return func(r *Runtime) {
		r.cfg = cfg
	}
}

// WithObserver sets the observer of every subsystem. The default logs to
// stderr through slog at the configured level.
func WithObserver(obs observe.Observer) Option {
	return func(r *Runtime) {
		r.obs = obs
	}
}

// WithReportWriter sets where Fini prints the summary banner. Default os.Stderr.
func WithReportWriter(w io.Writer) Option {
	return func(r *Runtime) {
		r.report = w
	}
}

// WithOutput sets where built-in analyses print their results. Default os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(r *Runtime) {
		r.out = w
	}
}

// NewRuntime creates a runtime. Without WithConfig the effective config is
// resolved from DYNPROF_CONFIG and the DYNPROF_* environment.
func NewRuntime(ctx context.Context, opts ...Option) (*Runtime, error) {
	r := &Runtime{
		report: os.Stderr,
		out:    os.Stdout,
	}
	for _, opt := range opts {
		opt(r)
	}

	if r.cfg == nil {
		cfg, err := config.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		r.cfg = cfg
	} else if err := r.cfg.Validate(); err != nil {
		return nil, err
	}

	if r.obs == nil {
		handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: observe.ParseLevel(r.cfg.LogLevel),
		})
		r.obs = observe.NewSlogObserver(slog.New(handler))
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to create run id: %w", err)
	}
	r.runID = id

	r.units = source.NewRegistry()
	r.dispatcher = dispatch.New(r.units,
		dispatch.WithObserver(r.obs),
		dispatch.WithEnabledHooks(r.cfg.EnabledHooks),
		dispatch.WithBaseFilter(filter.ScopeFromConfig(r.cfg)),
	)
	r.shadow = shadowmem.New(
		shadowmem.WithSideTableLimit(r.cfg.SideTableLimit),
		shadowmem.WithObserver(r.obs),
	)
	r.db = rtdb.New()
	return r, nil
}

// RunID identifies the session in reports and snapshots.
func (r *Runtime) RunID() uuid.UUID { return r.runID }

// Config returns the effective configuration.
func (r *Runtime) Config() *config.Config { return r.cfg }

// Units returns the source registry.
func (r *Runtime) Units() *source.Registry { return r.units }

// Dispatcher returns the hook dispatcher.
func (r *Runtime) Dispatcher() *dispatch.Dispatcher { return r.dispatcher }

// Shadow returns the shadow metadata store.
func (r *Runtime) Shadow() *shadowmem.Store { return r.shadow }

// DB returns the aggregation database.
func (r *Runtime) DB() *rtdb.DB { return r.db }

// Observer returns the diagnostic observer.
func (r *Runtime) Observer() observe.Observer { return r.obs }

// Output returns the writer analyses print to.
func (r *Runtime) Output() io.Writer { return r.out }

// Host returns the view of the runtime handed to loaded plugins.
func (r *Runtime) Host() *loader.Host {
	return &loader.Host{
		Dispatcher: r.dispatcher,
		Units:      r.units,
		Shadow:     r.shadow,
		DB:         r.db,
		Out:        r.out,
		Observer:   r.obs,
	}
}

// Register adds a plugin with an optional filter.
func (r *Runtime) Register(p *dispatch.Plugin, f filter.Filter) error {
	return r.dispatcher.Register(p, f)
}

// LoadPlugin opens an analysis plugin file and registers it.
func (r *Runtime) LoadPlugin(path string) error {
	a, err := loader.Open(path)
	if err != nil {
		return err
	}
	return a.Register(r.Host())
}

// AddSource registers a source unit and announces it on the newSource hook.
func (r *Runtime) AddSource(d source.Descriptor) *source.Unit {
	u := r.units.Add(d)
	r.dispatcher.Dispatch(hook.NewSource, u.ID, &dispatch.Event{Source: &u.Descriptor})
	return u
}

// Dispatch forwards one intercepted operation to the plugins.
func (r *Runtime) Dispatch(h hook.Hook, unit source.ID, ev *dispatch.Event) dispatch.Control {
	return r.dispatcher.Dispatch(h, unit, ev)
}

// EndTurn runs the work deferred during the synchronous turn that just ended.
func (r *Runtime) EndTurn() int {
	return r.dispatcher.RunDeferred()
}

// Enable turns dispatching on.
//
// Thread Safety: Safe for concurrent calls.
func (r *Runtime) Enable() { r.dispatcher.SetGloballyEnabled(true) }

// Disable turns dispatching off. Hooks become no-ops until Enable.
//
// Thread Safety: Safe for concurrent calls.
func (r *Runtime) Disable() { r.dispatcher.SetGloballyEnabled(false) }

// Enabled reports whether dispatching is on.
func (r *Runtime) Enabled() bool { return r.dispatcher.Enabled() }

// Fini finalizes the session: every plugin's endExecution runs, the
// aggregation DB is saved when a snapshot directory is configured, and the
// summary banner is printed.
//
// Only the first call does anything; later calls return the first result.
func (r *Runtime) Fini(ctx context.Context) (Summary, error) {
	r.finiOnce.Do(func() {
		r.dispatcher.Finalize()
		r.Disable()

		r.summary = r.collect()
		if dir := r.cfg.SnapshotDir; dir != "" {
			r.finiErr = r.snapshot(ctx, dir)
			if r.finiErr == nil {
				r.summary.Snapshot = dir
			}
		}
		r.summary.Format(r.report)
	})
	return r.summary, r.finiErr
}

// snapshot saves the aggregation DB under the run id.
func (r *Runtime) snapshot(ctx context.Context, dir string) error {
	bdb, err := badger.Open(badger.DefaultOptions(dir).WithLogger(nil))
	if err != nil {
		return fmt.Errorf("failed to open snapshot dir %s: %w", dir, err)
	}
	defer bdb.Close()

	prefix := r.runID.String()
	if err := r.db.Save(ctx, bdb, prefix); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	observe.Emit(r.obs, observe.EventSnapshotSaved, observe.LevelInfo, "api", map[string]any{
		"dir":    dir,
		"prefix": prefix,
		"leaves": r.db.Len(),
	})
	return nil
}
