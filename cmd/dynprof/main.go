// Command dynprof runs dynamic analyses over recorded event traces.
//
// A trace stands in for an instrumented run of the target program: it lists
// the source units and the intercepted operations in order. dynprof replays
// it through the profiler runtime with the selected built-in analyses and
// any analysis plugins, then prints their results.
//
// Usage:
//
//	dynprof run --trace trace.yaml                          # typed-array advisor
//	dynprof run --trace trace.yaml --analysis branchcov,literal
//	dynprof run --trace trace.yaml --plugin ./myanalysis.so
//	dynprof run --trace s3://bucket/trace.yaml --snapshot ./snap
//	dynprof hooks                                            # list hook names
//	dynprof version
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(os.Stdout, os.Stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
