package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kolkov/dynprof/internal/prof/hook"
	"github.com/kolkov/dynprof/prof"
)

// newRootCommand builds the command tree. Output goes to stdout and stderr so
// tests can capture it.
func newRootCommand(stdout, stderr io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:   "dynprof",
		Short: "Dynamic analysis of recorded program traces",
		Long: `dynprof replays recorded event traces of a target program through
analysis plugins: the typed-array advisor, branch coverage, literal
inspection, an event logger, or your own plugins built with
-buildmode=plugin.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.AddCommand(
		newRunCommand(stdout, stderr),
		newHooksCommand(stdout),
		newVersionCommand(stdout),
	)
	return root
}

func newHooksCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "hooks",
		Short: "List hook names accepted in traces, filters and DYNPROF_ENABLED_HOOKS",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, h := range hook.All() {
				fmt.Fprintln(stdout, h) //nolint:errcheck // best effort CLI output
			}
			fmt.Fprintln(stdout, hook.EndExecution) //nolint:errcheck // best effort CLI output
			return nil
		},
	}
}

func newVersionCommand(stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := prof.GetInfo()
			fmt.Fprintf(stdout, "dynprof version %s (plugin API %s)\n", info.Version, info.PluginAPI) //nolint:errcheck // best effort CLI output
			return nil
		},
	}
}
