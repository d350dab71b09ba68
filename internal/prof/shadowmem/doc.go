// Package shadowmem attaches analysis metadata to values of the target
// program without changing them.
//
// Shadow memory is how an analysis remembers things about a runtime value:
// the Array-Shape Advisor, for example, needs to know which allocation site
// created an array every time that array is later read or written. The store
// maps the identity of a value to a Record, a small slot map keyed by
// analysis-private keys.
//
// # Overview
//
// For every reference value an analysis asks about, the store keeps one
// Record for as long as the value is alive:
//   - *value.Object values are tracked weakly. The record does not keep the
//     object alive and is dropped after the object is collected.
//   - Other Go reference kinds (pointers, maps, channels, funcs) are tracked
//     in a bounded side table keyed by address.
//   - Primitives (numbers, strings, booleans, nil, value.Undefined) have no
//     identity and never get a record.
//
// # Usage
//
//	store := shadowmem.New()
//
//	type siteKey struct{}
//	rec := store.GetOrCreate(arr)
//	rec.Set(siteKey{}, site)
//
//	// Later, on an access to the same array:
//	if site, ok := store.Get(arr).Get(siteKey{}); ok {
//	    ...
//	}
//
// Record methods are nil-safe, so callers can chain Get without checking for
// primitives first. Slot is the typed variant for mutable per-value state:
//
//	st := shadowmem.Slot(rec, stateKey{}, func() *state { return &state{} })
//
// # Degradation
//
// When the side table is full, or an object without a record is frozen,
// GetOrCreate still returns a usable record, but it is not shared: a later
// lookup of the same value gets a different one. Record.Shared reports this,
// and the store emits a rate-limited shadow.degraded warning. The store never panics on an unsupported value.
//
// # Thread Safety
//
// Analyses use the store from the dispatcher's logical thread. The store
// itself takes a mutex because cleanups of collected objects run on a runtime
// goroutine. Records are not synchronized.
package shadowmem
