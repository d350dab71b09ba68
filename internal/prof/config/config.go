// Package config loads profiler settings from YAML files and the environment.
//
// Precedence, lowest first: Default, the file named by DYNPROF_CONFIG (or an
// explicit Load), then the DYNPROF_* environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/viant/afs"
	"gopkg.in/yaml.v3"
)

// Environment variables read by FromEnv.
const (
	EnvEnabledHooks = "DYNPROF_ENABLED_HOOKS"
	EnvScope        = "DYNPROF_SCOPE"
	EnvExcludes     = "DYNPROF_EXCLUDES"
	EnvLogLevel     = "DYNPROF_LOG_LEVEL"
	EnvConfig       = "DYNPROF_CONFIG"
	EnvThreshold    = "DYNPROF_THRESHOLD"
	EnvSnapshotDir  = "DYNPROF_SNAPSHOT_DIR"
)

// Scope values.
const (
	ScopeAll    = "all"
	ScopeModule = "module"
	ScopeApp    = "app"
)

const (
	defaultThreshold     = 1000
	defaultSideTableSize = 1 << 16
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// Config holds runtime settings.
type Config struct {
	// EnabledHooks is the process-wide hook allow-list. Empty means no
	// restriction.
	EnabledHooks []string `yaml:"enabled_hooks,omitempty"`

	// Scope selects which units are instrumented at all: all, module
	// (no internal units) or app (no internal units, no node_modules).
	Scope string `yaml:"scope,omitempty"`

	// Excludes lists name substrings of units that are never instrumented.
	Excludes []string `yaml:"excludes,omitempty"`

	// IgnoreMarker disables the "DO NOT INSTRUMENT" source marker check.
	IgnoreMarker bool `yaml:"ignore_marker,omitempty"`

	// LogLevel is a slog level name.
	LogLevel string `yaml:"log_level,omitempty"`

	// Threshold is the significance threshold of the array-shape report.
	Threshold int `yaml:"threshold,omitempty"`

	// SnapshotDir, when set, is a badger directory the aggregation DB is
	// saved to at Fini.
	SnapshotDir string `yaml:"snapshot_dir,omitempty"`

	// SideTableLimit bounds the shadow store's strong side table.
	SideTableLimit int `yaml:"side_table_limit,omitempty"`
}

// Default returns a Config with the runtime defaults.
func Default() Config {
	return Config{
		Scope:          ScopeAll,
		LogLevel:       "info",
		Threshold:      defaultThreshold,
		SideTableLimit: defaultSideTableSize,
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if len(source.EnabledHooks) > 0 {
		c.EnabledHooks = source.EnabledHooks
	}
	if source.Scope != "" {
		c.Scope = source.Scope
	}
	if len(source.Excludes) > 0 {
		c.Excludes = source.Excludes
	}
	if source.IgnoreMarker {
		c.IgnoreMarker = true
	}
	if source.LogLevel != "" {
		c.LogLevel = source.LogLevel
	}
	if source.Threshold > 0 {
		c.Threshold = source.Threshold
	}
	if source.SnapshotDir != "" {
		c.SnapshotDir = source.SnapshotDir
	}
	if source.SideTableLimit > 0 {
		c.SideTableLimit = source.SideTableLimit
	}
}

// Validate checks enumerated fields.
func (c *Config) Validate() error {
	switch c.Scope {
	case ScopeAll, ScopeModule, ScopeApp:
	default:
		return fmt.Errorf("%w: scope %q (want all, module or app)", ErrInvalidConfig, c.Scope)
	}
	if c.Threshold < 0 {
		return fmt.Errorf("%w: negative threshold %d", ErrInvalidConfig, c.Threshold)
	}
	return nil
}

// Parse decodes YAML config data and merges it over the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	var loaded Config
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.Merge(&loaded)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads a YAML config file from a path or URL and merges it over the
// defaults.
func Load(ctx context.Context, url string) (*Config, error) {
	data, err := afs.New().DownloadWithURL(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// FromEnv overlays DYNPROF_* environment variables onto c.
func (c *Config) FromEnv() error {
	return c.fromLookup(os.LookupEnv)
}

func (c *Config) fromLookup(lookup func(string) (string, bool)) error {
	var env Config
	if v, ok := lookup(EnvEnabledHooks); ok && v != "" {
		env.EnabledHooks = splitList(v)
	}
	if v, ok := lookup(EnvScope); ok {
		env.Scope = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvExcludes); ok && v != "" {
		env.Excludes = splitList(v)
	}
	if v, ok := lookup(EnvLogLevel); ok {
		env.LogLevel = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvThreshold); ok && v != "" {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, EnvThreshold, v, err)
		}
		env.Threshold = n
	}
	if v, ok := lookup(EnvSnapshotDir); ok {
		env.SnapshotDir = strings.TrimSpace(v)
	}
	c.Merge(&env)
	return c.Validate()
}

// Resolve builds the effective config: defaults, then the DYNPROF_CONFIG
// file if set, then the environment.
func Resolve(ctx context.Context) (*Config, error) {
	cfg := Default()
	if path, ok := os.LookupEnv(EnvConfig); ok && path != "" {
		loaded, err := Load(ctx, path)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}
	if err := cfg.FromEnv(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// splitList splits a comma-separated list, dropping empty entries.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
