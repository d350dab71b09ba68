package observe

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// MultiObserver fans out events to multiple observers.
type MultiObserver struct {
	observers []Observer
}

// NewMultiObserver creates a MultiObserver that forwards events to all
// non-nil observers.
func NewMultiObserver(observers ...Observer) *MultiObserver {
	filtered := make([]Observer, 0, len(observers))
	for _, obs := range observers {
		if obs != nil {
			filtered = append(filtered, obs)
		}
	}
	return &MultiObserver{observers: filtered}
}

func (m *MultiObserver) OnEvent(ctx context.Context, event Event) {
	for _, obs := range m.observers {
		obs.OnEvent(ctx, event)
	}
}

// NoOpObserver discards all events.
type NoOpObserver struct{}

func (NoOpObserver) OnEvent(ctx context.Context, event Event) {}

// ThrottledObserver rate-limits warning and error events per event type.
// Events below LevelWarning pass through unthrottled; they are already
// filtered by the logger level.
type ThrottledObserver struct {
	next  Observer
	every time.Duration
	burst int

	mu       sync.Mutex
	limiters map[EventType]*rate.Limiter
	dropped  map[EventType]int
}

// NewThrottledObserver allows burst events of each warning type, then one
// per interval.
func NewThrottledObserver(next Observer, every time.Duration, burst int) *ThrottledObserver {
	return &ThrottledObserver{
		next:     next,
		every:    every,
		burst:    burst,
		limiters: make(map[EventType]*rate.Limiter),
		dropped:  make(map[EventType]int),
	}
}

func (o *ThrottledObserver) OnEvent(ctx context.Context, event Event) {
	if event.Level < LevelWarning {
		o.next.OnEvent(ctx, event)
		return
	}

	o.mu.Lock()
	lim, ok := o.limiters[event.Type]
	if !ok {
		lim = rate.NewLimiter(rate.Every(o.every), o.burst)
		o.limiters[event.Type] = lim
	}
	allowed := lim.Allow()
	suppressed := 0
	if allowed {
		suppressed = o.dropped[event.Type]
		o.dropped[event.Type] = 0
	} else {
		o.dropped[event.Type]++
	}
	o.mu.Unlock()

	if !allowed {
		return
	}
	if suppressed > 0 {
		data := make(map[string]any, len(event.Data)+1)
		for k, v := range event.Data {
			data[k] = v
		}
		data["suppressed"] = suppressed
		event.Data = data
	}
	o.next.OnEvent(ctx, event)
}

// Dropped returns how many events of a type are currently suppressed.
func (o *ThrottledObserver) Dropped(typ EventType) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.dropped[typ]
}
