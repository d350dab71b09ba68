package shadowmem

import (
	"reflect"
	"runtime"
	"sync"
	"time"
	"weak"

	"github.com/kolkov/dynprof/internal/prof/observe"
	"github.com/kolkov/dynprof/internal/prof/value"
)

// DefaultSideTableLimit bounds the side table for non-object reference values.
const DefaultSideTableLimit = 1 << 16

// degradedEvery is the minimum interval between shadow.degraded warnings.
const degradedEvery = 10 * time.Second

// sideKey identifies a non-object reference value by type and address.
type sideKey struct {
	typ  reflect.Type
	addr uintptr
}

// sideEntry keeps the value alive so its address cannot be reused while the
// record exists.
type sideEntry struct {
	ref    any
	record *Record
}

// Store maps value identities to Records.
//
// Thread Safety: safe for concurrent use. See the package documentation.
type Store struct {
	mu sync.Mutex

	// objects holds records of target-program objects. Keys do not keep
	// objects alive; a cleanup removes the entry once the object is gone.
	objects map[weak.Pointer[value.Object]]*Record

	side      map[sideKey]sideEntry
	sideLimit int

	degraded int64
	obs      observe.Observer
}

// Option configures a Store.
type Option func(*Store)

// WithSideTableLimit sets how many non-object values the side table tracks.
// Values <= 0 keep the default.
func WithSideTableLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.sideLimit = n
		}
	}
}

// WithObserver sets the observer receiving shadow.degraded warnings. The
// observer is rate limited per event type.
func WithObserver(obs observe.Observer) Option {
	return func(s *Store) {
		if obs != nil {
			s.obs = observe.NewThrottledObserver(obs, degradedEvery, 1)
		}
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		objects:   make(map[weak.Pointer[value.Object]]*Record),
		side:      make(map[sideKey]sideEntry),
		sideLimit: DefaultSideTableLimit,
		obs:       observe.NoOpObserver{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrCreate returns the record of v, creating it on first use.
//
// Returns:
//   - nil for primitives and other values without identity
//   - the shared record of v otherwise, or an unshared one when the side
//     table is full
//
// Example:
//
//	rec := store.GetOrCreate(arr)
//	rec.Set(siteKey{}, site)
func (s *Store) GetOrCreate(v any) *Record {
	if o, ok := v.(*value.Object); ok {
		if o == nil {
			return nil
		}
		return s.object(o, true)
	}
	key, ok := identity(v)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.side[key]; ok {
		return e.record
	}
	if len(s.side) >= s.sideLimit {
		return s.degrade(key.typ.String(), "side table full")
	}
	r := newRecord(true)
	s.side[key] = sideEntry{ref: v, record: r}
	return r
}

// Get returns the record of v, or nil if v has none.
func (s *Store) Get(v any) *Record {
	if o, ok := v.(*value.Object); ok {
		if o == nil {
			return nil
		}
		return s.object(o, false)
	}
	key, ok := identity(v)
	if !ok {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.side[key].record
}

func (s *Store) object(o *value.Object, create bool) *Record {
	wp := weak.Make(o)

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.objects[wp]; ok {
		return r
	}
	if !create {
		return nil
	}
	// A frozen object cannot take a new attachment; one attached before
	// freezing stays valid.
	if o.Frozen() {
		return s.degrade(o.Kind().String(), "frozen")
	}
	r := newRecord(true)
	s.objects[wp] = r
	runtime.AddCleanup(o, s.forget, wp)
	return r
}

// degrade counts a refused attachment and returns an unshared record.
// Callers hold s.mu.
func (s *Store) degrade(typ, reason string) *Record {
	s.degraded++
	observe.Emit(s.obs, observe.EventShadowDegraded, observe.LevelWarning, "shadowmem", map[string]any{
		"type":     typ,
		"reason":   reason,
		"limit":    s.sideLimit,
		"degraded": s.degraded,
	})
	return newRecord(false)
}

// forget runs on a runtime goroutine after an object was collected.
func (s *Store) forget(wp weak.Pointer[value.Object]) {
	s.mu.Lock()
	delete(s.objects, wp)
	s.mu.Unlock()
}

// identity returns the side-table key of a non-object reference value.
func identity(v any) (sideKey, bool) {
	if v == nil || value.IsPrimitive(v) {
		return sideKey{}, false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Chan, reflect.Func, reflect.UnsafePointer:
		if rv.IsNil() {
			return sideKey{}, false
		}
		return sideKey{typ: rv.Type(), addr: rv.Pointer()}, true
	default:
		return sideKey{}, false
	}
}

// Len returns the number of live records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects) + len(s.side)
}

// Degraded returns how many unshared records were handed out.
func (s *Store) Degraded() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.degraded
}

// Reset forgets every record.
//
// Cleanups registered for earlier objects still run; they find nothing to
// delete.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = make(map[weak.Pointer[value.Object]]*Record)
	s.side = make(map[sideKey]sideEntry)
	s.degraded = 0
}
