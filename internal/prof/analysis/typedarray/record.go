package typedarray

import (
	"sort"

	"github.com/kolkov/dynprof/internal/prof/source"
	"github.com/kolkov/dynprof/internal/prof/value"
)

// Record is the shape history of one array instance.
type Record struct {
	// Site is where the array was created.
	Site source.GIID

	// Count is the number of operations observed on the array.
	Count int64

	// MaxIndex is the largest index written; valid when HasIndexedWrite.
	MaxIndex        int
	HasIndexedWrite bool

	// NonNumeric is set once a non-number was stored at an index. It is
	// never cleared.
	NonNumeric bool

	// ReadOnly holds until the array is first mutated.
	ReadOnly bool

	// Kinds are the containers every stored element fits.
	Kinds Kinds

	Methods  map[string]struct{}
	PropsSet map[string]struct{}
	PropsGet map[string]struct{}

	// Typeof is set when typeof was applied to the array.
	Typeof bool
}

func newRecord(site source.GIID) *Record {
	return &Record{
		Site:     site,
		ReadOnly: true,
		Kinds:    AllKinds,
		Methods:  make(map[string]struct{}),
		PropsSet: make(map[string]struct{}),
		PropsGet: make(map[string]struct{}),
	}
}

// write records a store of v at index i.
func (r *Record) write(i int, v any) {
	r.Count++
	r.ReadOnly = false
	if !r.HasIndexedWrite || i > r.MaxIndex {
		r.MaxIndex = i
	}
	r.HasIndexedWrite = true

	if r.NonNumeric {
		return
	}
	num, ok := value.Number(v)
	if !ok {
		r.NonNumeric = true
		return
	}
	r.Kinds = r.Kinds.Narrow(num)
}

func sortedSet(m map[string]struct{}) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
