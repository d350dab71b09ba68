// Package source keeps track of the source units loaded by the target
// program and maps instruction ids back to source locations.
//
// Units are deduplicated by descriptor: two Add calls with the same name, path,
// internal flag and text yield the same Unit. Identity is a 64-bit HighwayHash
// of those fields, so a unit is created exactly once however many times a
// producer announces it.
//
// Usage:
//
//	reg := source.NewRegistry()
//	u := reg.Add(source.Descriptor{Name: "main.js", Text: src})
//	reg.AddLocation(source.GIID{Unit: u.ID, IID: 5}, source.Span{StartLine: 1, StartCol: 1})
//	fmt.Println(reg.Location(source.GIID{Unit: u.ID, IID: 5}))
package source

import (
	"fmt"
	"sync"

	"github.com/minio/highwayhash"
)

// ID identifies a source unit. The zero ID is never assigned.
type ID uint32

// Descriptor is what filters see of a source unit.
type Descriptor struct {
	// Name is the display name, usually the file name or an eval label.
	Name string

	// Path is the absolute path or URL the unit was loaded from.
	Path string

	// Internal marks host or library code as opposed to user code.
	Internal bool

	// Text is the raw source text.
	Text string
}

// Unit is an immutable loaded source unit.
type Unit struct {
	ID ID
	Descriptor

	hash uint64
}

// Hash returns the content hash the unit was deduplicated by.
func (u *Unit) Hash() uint64 {
	return u.hash
}

// hashKey is the fixed 32-byte HighwayHash key.
var hashKey = []byte("dynprof-source-unit-identity-key")

// contentHash hashes every descriptor field.
func contentHash(d Descriptor) (uint64, error) {
	h, err := highwayhash.New64(hashKey)
	if err != nil {
		return 0, err
	}
	internal := byte(0)
	if d.Internal {
		internal = 1
	}
	h.Write([]byte(d.Name))         //nolint:errcheck // hash.Hash writes never fail
	h.Write([]byte{0})              //nolint:errcheck
	h.Write([]byte(d.Path))         //nolint:errcheck
	h.Write([]byte{0, internal, 0}) //nolint:errcheck
	h.Write([]byte(d.Text))         //nolint:errcheck
	return h.Sum64(), nil
}

// Registry stores source units and instruction locations.
//
// Thread Safety: all methods are safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	units     []*Unit // indexed by ID-1
	byHash    map[uint64]*Unit
	locations map[GIID]Span
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byHash:    make(map[uint64]*Unit),
		locations: make(map[GIID]Span),
	}
}

// Add registers a unit and returns it. If a unit with an identical descriptor
// was added before, that unit is returned instead.
func (r *Registry) Add(d Descriptor) *Unit {
	sum, err := contentHash(d)
	if err != nil {
		// The key length is fixed, New64 cannot fail.
		panic(fmt.Sprintf("source: highwayhash: %v", err))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if u, ok := r.byHash[sum]; ok && u.Descriptor == d {
		return u
	}

	u := &Unit{ID: ID(len(r.units) + 1), Descriptor: d, hash: sum}
	r.units = append(r.units, u)
	if _, taken := r.byHash[sum]; !taken {
		r.byHash[sum] = u
	}
	return u
}

// Lookup returns the unit with the given id.
func (r *Registry) Lookup(id ID) (*Unit, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id == 0 || int(id) > len(r.units) {
		return nil, false
	}
	return r.units[id-1], true
}

// Descriptor returns the descriptor of the unit with the given id.
func (r *Registry) Descriptor(id ID) (Descriptor, bool) {
	u, ok := r.Lookup(id)
	if !ok {
		return Descriptor{}, false
	}
	return u.Descriptor, true
}

// Len returns the number of registered units.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.units)
}

// Units returns all units in registration order.
func (r *Registry) Units() []*Unit {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Unit, len(r.units))
	copy(out, r.units)
	return out
}
