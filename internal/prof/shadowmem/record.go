package shadowmem

// Record holds the metadata slots attached to one value.
//
// A nil *Record is the "no record" value returned for primitives; every
// method treats it as an empty, read-only record.
type Record struct {
	slots  map[any]any
	shared bool
}

func newRecord(shared bool) *Record {
	return &Record{shared: shared}
}

// Get returns the slot stored under key.
func (r *Record) Get(key any) (any, bool) {
	if r == nil || r.slots == nil {
		return nil, false
	}
	v, ok := r.slots[key]
	return v, ok
}

// Set stores v under key. Setting on a nil record does nothing.
func (r *Record) Set(key, v any) {
	if r == nil {
		return
	}
	if r.slots == nil {
		r.slots = make(map[any]any, 1)
	}
	r.slots[key] = v
}

// Delete removes the slot stored under key.
func (r *Record) Delete(key any) {
	if r == nil {
		return
	}
	delete(r.slots, key)
}

// Len returns the number of slots.
func (r *Record) Len() int {
	if r == nil {
		return 0
	}
	return len(r.slots)
}

// Shared reports whether later lookups of the same value return this record.
// It is false for nil records and for records handed out while the store was
// degraded.
func (r *Record) Shared() bool {
	return r != nil && r.shared
}

// Slot returns the *T stored under key, creating it with init on first use.
//
// A nil record cannot hold the slot: Slot then returns a fresh value from
// init (or nil when init is nil). A slot of another type under the same key
// is replaced.
//
// Example:
//
//	type counterKey struct{}
//	n := shadowmem.Slot(rec, counterKey{}, func() *int { return new(int) })
//	*n++
func Slot[T any](r *Record, key any, init func() *T) *T {
	if v, ok := r.Get(key); ok {
		if t, ok := v.(*T); ok {
			return t
		}
	}
	if init == nil {
		return nil
	}
	t := init()
	r.Set(key, t)
	return t
}
