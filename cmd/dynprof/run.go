package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kolkov/dynprof/internal/prof/analysis/typedarray"
	"github.com/kolkov/dynprof/internal/prof/api"
	"github.com/kolkov/dynprof/internal/prof/config"
	"github.com/kolkov/dynprof/internal/prof/observe"
	"github.com/kolkov/dynprof/internal/prof/replay"
)

// runOptions are the flags of the run command.
type runOptions struct {
	trace        string
	analyses     []string
	plugins      []string
	configFile   string
	threshold    int
	snapshot     string
	scope        string
	enabledHooks []string
	logLevel     string
}

// newRunCommand implements 'dynprof run'.
//
// Flow:
//  1. Resolve the config (file, environment, then flags)
//  2. Create a runtime and register built-in analyses and plugins
//  3. Replay the trace, one synchronous turn per event
//  4. Finalize: analyses print results, the summary goes to stderr
//
// Example:
//
//	dynprof run --trace trace.yaml --analysis typedarray --threshold 100
func newRunCommand(stdout, stderr io.Writer) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run --trace FILE",
		Short: "Replay a trace through analyses",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := resolveConfig(cmd, opts)
			if err != nil {
				return err
			}
			return run(cmd.Context(), opts, cfg, stdout, stderr)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.trace, "trace", "", "trace file path or URL")
	f.StringSliceVar(&opts.analyses, "analysis", []string{typedarray.Name}, "built-in analyses to run: "+strings.Join(api.Analyses(), ", "))
	f.StringSliceVar(&opts.plugins, "plugin", nil, "analysis plugin (.so) to load, repeatable")
	f.StringVar(&opts.configFile, "config", "", "YAML config file (default $"+config.EnvConfig+")")
	f.IntVar(&opts.threshold, "threshold", 0, "significance threshold of the typed-array report")
	f.StringVar(&opts.snapshot, "snapshot", "", "badger directory to save the aggregation DB to")
	f.StringVar(&opts.scope, "scope", "", "instrumented units: all, module or app")
	f.StringSliceVar(&opts.enabledHooks, "enabled-hooks", nil, "hook allow-list")
	f.StringVar(&opts.logLevel, "log-level", "", "diagnostic log level: debug, info, warn, error")
	_ = cmd.MarkFlagRequired("trace")

	return cmd
}

// resolveConfig layers defaults, the config file, the environment and the
// flags that were set explicitly.
func resolveConfig(cmd *cobra.Command, opts *runOptions) (*config.Config, error) {
	ctx := cmd.Context()

	var cfg *config.Config
	if opts.configFile != "" {
		loaded, err := config.Load(ctx, opts.configFile)
		if err != nil {
			return nil, err
		}
		if err := loaded.FromEnv(); err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		resolved, err := config.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		cfg = resolved
	}

	flags := cmd.Flags()
	if flags.Changed("threshold") {
		cfg.Threshold = opts.threshold
	}
	if flags.Changed("snapshot") {
		cfg.SnapshotDir = opts.snapshot
	}
	if flags.Changed("scope") {
		cfg.Scope = opts.scope
	}
	if flags.Changed("enabled-hooks") {
		cfg.EnabledHooks = opts.enabledHooks
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = opts.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func run(ctx context.Context, opts *runOptions, cfg *config.Config, stdout, stderr io.Writer) error {
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{
		Level: observe.ParseLevel(cfg.LogLevel),
	}))

	rt, err := api.NewRuntime(ctx,
		api.WithConfig(cfg),
		api.WithObserver(observe.NewSlogObserver(logger)),
		api.WithOutput(stdout),
		api.WithReportWriter(stderr),
	)
	if err != nil {
		return err
	}

	if err := rt.Use(opts.analyses...); err != nil {
		return err
	}
	for _, path := range opts.plugins {
		if err := rt.LoadPlugin(path); err != nil {
			return err
		}
	}

	tr, err := replay.LoadFile(ctx, opts.trace)
	if err != nil {
		return err
	}
	if _, err := replay.New(rt.Dispatcher(), replay.WithObserver(rt.Observer())).Run(ctx, tr); err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}

	_, err = rt.Fini(ctx)
	return err
}
