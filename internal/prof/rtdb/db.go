// Package rtdb is the profiler's hierarchical aggregation database: a tree of
// values addressed by tuples of opaque path segments.
//
// Analyses use it to accumulate counters keyed by whatever tuple suits them,
// for example (site, "true") for branch coverage:
//
//	db := rtdb.New()
//	db.IncrementCount(site.String(), "true")
//	c, ok := db.Count(site.String(), "true")
//
// Reads of a path that was never written report absence, never a zero value,
// so callers can tell "never observed" from "observed zero times".
//
// Thread Safety: NOT safe for concurrent use. The database is mutated from the
// dispatcher's logical thread only.
package rtdb

import (
	"errors"
	"fmt"
	"sort"
)

// ErrNotCounter is returned by IncrementCount when the leaf holds a value
// that is not a counter.
var ErrNotCounter = errors.New("rtdb: value is not a counter")

// Counter is a monotonic leaf value maintained by IncrementCount.
type Counter struct {
	Count int64
}

type node struct {
	value    any
	hasValue bool
	children map[string]*node
}

// DB is the aggregation tree.
type DB struct {
	root   node
	leaves int
}

// New returns an empty DB.
func New() *DB {
	return &DB{}
}

// lookup walks path. With create set it adds missing nodes.
func (db *DB) lookup(path []string, create bool) *node {
	n := &db.root
	for _, seg := range path {
		next, ok := n.children[seg]
		if !ok {
			if !create {
				return nil
			}
			if n.children == nil {
				n.children = make(map[string]*node)
			}
			next = &node{}
			n.children[seg] = next
		}
		n = next
	}
	return n
}

// Get returns the value stored at path. Counter leaves are returned as
// *Counter.
func (db *DB) Get(path ...string) (any, bool) {
	n := db.lookup(path, false)
	if n == nil || !n.hasValue {
		return nil, false
	}
	return n.value, true
}

// Set stores v at path, creating intermediate nodes and replacing any value
// already there. Setting a *Counter or Counter resets that counter.
func (db *DB) Set(v any, path ...string) {
	n := db.lookup(path, true)
	if c, ok := v.(Counter); ok {
		v = &c
	}
	if !n.hasValue {
		db.leaves++
	}
	n.value = v
	n.hasValue = true
}

// IncrementCount adds one to the counter at path, creating it with a count of
// one when the path holds no value. It returns the updated counter.
func (db *DB) IncrementCount(path ...string) (Counter, error) {
	n := db.lookup(path, true)
	if !n.hasValue {
		n.value = &Counter{Count: 1}
		n.hasValue = true
		db.leaves++
		return Counter{Count: 1}, nil
	}
	c, ok := n.value.(*Counter)
	if !ok || c == nil {
		return Counter{}, fmt.Errorf("%w: %v holds %T", ErrNotCounter, path, n.value)
	}
	c.Count++
	return *c, nil
}

// Count returns the counter at path.
func (db *DB) Count(path ...string) (Counter, bool) {
	v, ok := db.Get(path...)
	if !ok {
		return Counter{}, false
	}
	c, ok := v.(*Counter)
	if !ok || c == nil {
		return Counter{}, false
	}
	return *c, true
}

// Children returns the sorted child segments of path.
func (db *DB) Children(path ...string) []string {
	n := db.lookup(path, false)
	if n == nil {
		return nil
	}
	return sortedKeys(n.children)
}

// Len returns the number of stored values.
func (db *DB) Len() int {
	return db.leaves
}

// Walk calls fn for every stored value, parents before children and siblings
// in sorted order. The path slice is reused between calls. Walk stops at the
// first error fn returns.
func (db *DB) Walk(fn func(path []string, v any) error) error {
	return walk(&db.root, nil, fn)
}

func walk(n *node, path []string, fn func([]string, any) error) error {
	if n.hasValue {
		if err := fn(path, n.value); err != nil {
			return err
		}
	}
	for _, k := range sortedKeys(n.children) {
		if err := walk(n.children[k], append(path, k), fn); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[string]*node) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
