package typedarray

import (
	"math"
	"strings"
)

// Kind is a fixed-width numeric container an array may be narrowed to.
type Kind uint8

// Container kinds, in report order.
const (
	Uint8 Kind = iota
	Uint8Clamped
	Uint16
	Uint32
	Int8
	Int16
	Int32
	Float32
	Float64

	numKinds
)

var kindNames = [numKinds]string{
	Uint8:        "Uint8Array",
	Uint8Clamped: "Uint8ClampedArray",
	Uint16:       "Uint16Array",
	Uint32:       "Uint32Array",
	Int8:         "Int8Array",
	Int16:        "Int16Array",
	Int32:        "Int32Array",
	Float32:      "Float32Array",
	Float64:      "Float64Array",
}

func (k Kind) String() string {
	if k >= numKinds {
		return "unknown"
	}
	return kindNames[k]
}

// Fits reports whether v survives a store into a one-element container of
// kind k unchanged. NaN never fits.
func (k Kind) Fits(v float64) bool {
	return k.store(v) == v
}

// store returns the value read back after storing v, with typed-array
// conversion semantics.
func (k Kind) store(v float64) float64 {
	switch k {
	case Uint8:
		return wrap(v, 8, false)
	case Uint8Clamped:
		return clamp(v)
	case Uint16:
		return wrap(v, 16, false)
	case Uint32:
		return wrap(v, 32, false)
	case Int8:
		return wrap(v, 8, true)
	case Int16:
		return wrap(v, 16, true)
	case Int32:
		return wrap(v, 32, true)
	case Float32:
		return float64(float32(v))
	default:
		return v
	}
}

// wrap truncates v and reduces it modulo 2^bits.
func wrap(v float64, bits int, signed bool) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	m := math.Exp2(float64(bits))
	n := math.Mod(math.Trunc(v), m)
	if n < 0 {
		n += m
	}
	if signed && n >= m/2 {
		n -= m
	}
	return n
}

// clamp saturates v to [0, 255] and rounds half to even.
func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return math.RoundToEven(v)
}

// Kinds is a set of container kinds. Eligibility only shrinks.
type Kinds uint16

// AllKinds has every container kind.
const AllKinds = Kinds(1)<<numKinds - 1

// Has reports whether k is in the set.
func (s Kinds) Has(k Kind) bool {
	return k < numKinds && s&(1<<k) != 0
}

// Clear returns s without k.
func (s Kinds) Clear(k Kind) Kinds {
	return s &^ (1 << k)
}

// Intersect returns the kinds in both sets.
func (s Kinds) Intersect(o Kinds) Kinds {
	return s & o
}

// Narrow clears every kind v does not fit.
func (s Kinds) Narrow(v float64) Kinds {
	for k := Kind(0); k < numKinds; k++ {
		if s.Has(k) && !k.Fits(v) {
			s = s.Clear(k)
		}
	}
	return s
}

// Kinds lists the set in report order.
func (s Kinds) Kinds() []Kind {
	var out []Kind
	for k := Kind(0); k < numKinds; k++ {
		if s.Has(k) {
			out = append(out, k)
		}
	}
	return out
}

// Names lists the container names in report order.
func (s Kinds) Names() []string {
	kinds := s.Kinds()
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.String()
	}
	return names
}

func (s Kinds) String() string {
	return "[" + strings.Join(s.Names(), " ") + "]"
}
