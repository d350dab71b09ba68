package api

import (
	"context"
	"errors"
	"sync"

	"github.com/kolkov/dynprof/internal/prof/config"
	"github.com/kolkov/dynprof/internal/prof/dispatch"
	"github.com/kolkov/dynprof/internal/prof/filter"
	"github.com/kolkov/dynprof/internal/prof/hook"
	"github.com/kolkov/dynprof/internal/prof/source"
)

// ErrNotInitialized is returned by the package-level functions before Init.
var ErrNotInitialized = errors.New("profiler not initialized")

// Process-wide default runtime used by the facade.
var (
	defaultMu sync.Mutex
	def       *Runtime
)

// Init creates the default runtime from the resolved config.
//
// Calling Init again replaces the default runtime with a fresh one; the old
// one is not finalized.
//
// Example:
//
//	func main() {
//		if err := api.Init(); err != nil {
//			log.Fatal(err)
//		}
//		defer api.Fini()
//	}
func Init(opts ...Option) error {
	rt, err := NewRuntime(context.Background(), opts...)
	if err != nil {
		return err
	}
	defaultMu.Lock()
	def = rt
	defaultMu.Unlock()
	return nil
}

// Default returns the default runtime, or nil before Init.
func Default() *Runtime {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	return def
}

// Fini finalizes the default runtime and prints its summary to stderr.
// It is a no-op before Init and after the first call.
func Fini() error {
	rt := Default()
	if rt == nil {
		return nil
	}
	_, err := rt.Fini(context.Background())
	return err
}

// Reset replaces the default runtime with a fresh one using the same config.
// Registered plugins, sources, shadow records and DB contents are dropped.
//
// Thread Safety: NOT safe for concurrent use with the dispatch entry points.
func Reset() error {
	rt := Default()
	if rt == nil {
		return ErrNotInitialized
	}
	cfg := *rt.cfg
	return Init(WithConfig(&cfg), WithObserver(rt.obs), WithReportWriter(rt.report), WithOutput(rt.out))
}

// Enable turns dispatching on for the default runtime.
func Enable() {
	if rt := Default(); rt != nil {
		rt.Enable()
	}
}

// Disable turns dispatching off for the default runtime.
func Disable() {
	if rt := Default(); rt != nil {
		rt.Disable()
	}
}

// Register adds a plugin to the default runtime.
func Register(p *dispatch.Plugin, f filter.Filter) error {
	rt := Default()
	if rt == nil {
		return ErrNotInitialized
	}
	return rt.Register(p, f)
}

// Use registers built-in analyses with the default runtime.
func Use(names ...string) error {
	rt := Default()
	if rt == nil {
		return ErrNotInitialized
	}
	return rt.Use(names...)
}

// AddSource registers a unit with the default runtime. It returns the zero
// ID before Init.
func AddSource(d source.Descriptor) source.ID {
	rt := Default()
	if rt == nil {
		return 0
	}
	return rt.AddSource(d).ID
}

// Dispatch forwards an event to the default runtime.
func Dispatch(h hook.Hook, unit source.ID, ev *dispatch.Event) dispatch.Control {
	rt := Default()
	if rt == nil {
		return dispatch.Control{}
	}
	return rt.Dispatch(h, unit, ev)
}

// EndTurn runs deferred work on the default runtime.
func EndTurn() int {
	rt := Default()
	if rt == nil {
		return 0
	}
	return rt.EndTurn()
}

// DefaultConfig returns the config defaults, for callers building a Config
// to pass to WithConfig.
func DefaultConfig() *config.Config {
	cfg := config.Default()
	return &cfg
}
