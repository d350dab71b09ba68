package api

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"

	"github.com/kolkov/dynprof/internal/prof/dispatch"
)

// Summary describes a finished session.
type Summary struct {
	RunID   uuid.UUID
	Plugins []string
	Units   int
	Hooks   []dispatch.HookStats

	// Fired and Filtered total the per-hook counters.
	Fired    int64
	Filtered int64

	ShadowRecords int
	Degraded      int64
	Leaves        int

	// Snapshot is the badger directory the DB was saved to, if any.
	Snapshot string
}

func (r *Runtime) collect() Summary {
	s := Summary{
		RunID:         r.runID,
		Plugins:       r.dispatcher.Plugins(),
		Units:         r.units.Len(),
		Hooks:         r.dispatcher.Stats(),
		ShadowRecords: r.shadow.Len(),
		Degraded:      r.shadow.Degraded(),
		Leaves:        r.db.Len(),
	}
	for _, h := range s.Hooks {
		s.Fired += h.Fired
		s.Filtered += h.Filtered
	}
	return s
}

// Format writes the summary banner.
//
// Output format:
//
//	==================
//	Dynamic Analysis Report
//	==================
//	Run:      0192f1c4-...
//	Plugins:  typedarray, branchcov
//	Units:    2
//	Events:   3002 dispatched, 12 filtered
//	  invokeFun      1001 fired
//	Shadow:   4 record(s)
//	DB:       6 leaf value(s)
//	==================
//
//nolint:errcheck // Error handling omitted for report output formatting
func (s *Summary) Format(w io.Writer) {
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "Dynamic Analysis Report\n")
	fmt.Fprintf(w, "==================\n")
	fmt.Fprintf(w, "Run:      %s\n", s.RunID)

	if len(s.Plugins) == 0 {
		fmt.Fprintf(w, "Plugins:  (none)\n")
	} else {
		fmt.Fprintf(w, "Plugins:  %s\n", strings.Join(s.Plugins, ", "))
	}
	fmt.Fprintf(w, "Units:    %d\n", s.Units)
	fmt.Fprintf(w, "Events:   %d dispatched, %d filtered\n", s.Fired, s.Filtered)
	for _, h := range s.Hooks {
		if h.Fired == 0 {
			continue
		}
		fmt.Fprintf(w, "  %-18s %d fired", h.Hook, h.Fired)
		if h.Deactivated > 0 {
			fmt.Fprintf(w, ", %d deactivated", h.Deactivated)
		}
		fmt.Fprintf(w, "\n")
	}

	fmt.Fprintf(w, "Shadow:   %d record(s)", s.ShadowRecords)
	if s.Degraded > 0 {
		fmt.Fprintf(w, ", WARNING: %d unshared", s.Degraded)
	}
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "DB:       %d leaf value(s)\n", s.Leaves)
	if s.Snapshot != "" {
		fmt.Fprintf(w, "Snapshot: %s (prefix %s)\n", s.Snapshot, s.RunID)
	}
	fmt.Fprintf(w, "==================\n\n")
}

// String returns the formatted summary.
func (s *Summary) String() string {
	var buf strings.Builder
	s.Format(&buf)
	return buf.String()
}
