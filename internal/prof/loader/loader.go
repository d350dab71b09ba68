// Package loader loads analysis plugins built with -buildmode=plugin.
//
// A plugin exports two symbols:
//
//	var APIVersion = "v1.0.0"
//
//	func Analysis(h *loader.Host) (*dispatch.Plugin, filter.Filter) {
//		return &dispatch.Plugin{Name: "mine", Hooks: ...}, nil
//	}
//
// APIVersion must share its major version with the host's APIVersion. Any
// problem opening or validating a plugin is reported as a *LoadError naming
// the plugin path.
package loader

import (
	"errors"
	"fmt"
	"io"
	"plugin"

	"golang.org/x/mod/semver"

	"github.com/kolkov/dynprof/internal/prof/dispatch"
	"github.com/kolkov/dynprof/internal/prof/filter"
	"github.com/kolkov/dynprof/internal/prof/observe"
	"github.com/kolkov/dynprof/internal/prof/rtdb"
	"github.com/kolkov/dynprof/internal/prof/shadowmem"
	"github.com/kolkov/dynprof/internal/prof/source"
)

// APIVersion is the plugin interface version of this host.
const APIVersion = "v1.0.0"

// Symbol names looked up in a plugin.
const (
	SymbolAnalysis   = "Analysis"
	SymbolAPIVersion = "APIVersion"
)

// Errors wrapped by LoadError.
var (
	ErrMissingSymbol     = errors.New("missing symbol")
	ErrSymbolType        = errors.New("symbol has the wrong type")
	ErrInvalidVersion    = errors.New("invalid API version")
	ErrIncompatibleAPI   = errors.New("incompatible API version")
	ErrNilAnalysisPlugin = errors.New("analysis returned a nil plugin")
)

// LoadError reports a plugin that could not be loaded.
type LoadError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	return fmt.Sprintf("failed to load analysis plugin %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *LoadError) Unwrap() error {
	return e.Err
}

// Host is what the profiler hands a plugin when instantiating it.
type Host struct {
	Dispatcher *dispatch.Dispatcher
	Units      *source.Registry
	Shadow     *shadowmem.Store
	DB         *rtdb.DB
	Out        io.Writer
	Observer   observe.Observer
}

// Factory is the type of the Analysis symbol.
type Factory func(h *Host) (*dispatch.Plugin, filter.Filter)

// Analysis is a loaded, not yet registered plugin.
type Analysis struct {
	Path    string
	Version string

	factory Factory
}

// symbols is the lookup surface of *plugin.Plugin.
type symbols interface {
	Lookup(name string) (plugin.Symbol, error)
}

// Open loads the plugin at path and validates its symbols.
func Open(path string) (*Analysis, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return fromSymbols(path, p)
}

func fromSymbols(path string, p symbols) (*Analysis, error) {
	version, err := lookupVersion(p)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	if err := CheckVersion(version); err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	factory, err := lookupFactory(p)
	if err != nil {
		return nil, &LoadError{Path: path, Err: err}
	}
	return &Analysis{Path: path, Version: version, factory: factory}, nil
}

func lookupVersion(p symbols) (string, error) {
	sym, err := p.Lookup(SymbolAPIVersion)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrMissingSymbol, SymbolAPIVersion)
	}
	switch v := sym.(type) {
	case *string:
		return *v, nil
	case string:
		return v, nil
	}
	return "", fmt.Errorf("%w: %s is %T, want string", ErrSymbolType, SymbolAPIVersion, sym)
}

func lookupFactory(p symbols) (Factory, error) {
	sym, err := p.Lookup(SymbolAnalysis)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMissingSymbol, SymbolAnalysis)
	}
	// A func declaration yields the func; a var yields a pointer to it.
	switch f := sym.(type) {
	case func(*Host) (*dispatch.Plugin, filter.Filter):
		return f, nil
	case *func(*Host) (*dispatch.Plugin, filter.Filter):
		if f != nil && *f != nil {
			return *f, nil
		}
	case Factory:
		return f, nil
	case *Factory:
		if f != nil && *f != nil {
			return *f, nil
		}
	}
	return nil, fmt.Errorf("%w: %s is %T, want func(*loader.Host) (*dispatch.Plugin, filter.Filter)",
		ErrSymbolType, SymbolAnalysis, sym)
}

// CheckVersion reports whether a plugin built against version v can run in
// this host.
func CheckVersion(v string) error {
	if !semver.IsValid(v) {
		return fmt.Errorf("%w: %q", ErrInvalidVersion, v)
	}
	if semver.Major(v) != semver.Major(APIVersion) {
		return fmt.Errorf("%w: plugin %s, host %s", ErrIncompatibleAPI, v, APIVersion)
	}
	return nil
}

// Register instantiates the analysis and registers it with h.Dispatcher.
func (a *Analysis) Register(h *Host) error {
	p, f := a.factory(h)
	if p == nil {
		return &LoadError{Path: a.Path, Err: ErrNilAnalysisPlugin}
	}
	if err := h.Dispatcher.Register(p, f); err != nil {
		return &LoadError{Path: a.Path, Err: err}
	}
	observe.Emit(h.Observer, observe.EventPluginLoaded, observe.LevelInfo, "loader", map[string]any{
		"path":    a.Path,
		"plugin":  p.Name,
		"version": a.Version,
	})
	return nil
}
