package dispatch

import (
	"sync/atomic"

	"github.com/kolkov/dynprof/internal/prof/hook"
)

// counters tracks activity of one hook.
type counters struct {
	registered  atomic.Int64
	live        atomic.Int64
	fired       atomic.Int64
	filtered    atomic.Int64
	deactivated atomic.Int64
}

// HookStats is a snapshot of one hook's activity.
type HookStats struct {
	Hook hook.Hook

	// Registered counts registrations ever created for the hook.
	Registered int64

	// Live counts registrations not yet deactivated.
	Live int

	// Fired counts callback invocations.
	Fired int64

	// Filtered counts invocations skipped by a filter decision.
	Filtered int64

	// Deactivated counts registrations removed by their callback.
	Deactivated int64
}

// Stats returns per-hook statistics for every hook that was ever registered,
// in canonical hook order. It only reads atomic counters and may run
// concurrently with Dispatch.
func (d *Dispatcher) Stats() []HookStats {
	var out []HookStats
	for i := range d.stats {
		c := &d.stats[i]
		registered := c.registered.Load()
		if registered == 0 {
			continue
		}
		out = append(out, HookStats{
			Hook:        hook.Hook(i),
			Registered:  registered,
			Live:        int(c.live.Load()),
			Fired:       c.fired.Load(),
			Filtered:    c.filtered.Load(),
			Deactivated: c.deactivated.Load(),
		})
	}
	return out
}
