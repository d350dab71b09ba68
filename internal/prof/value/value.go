// Package value models the runtime values of the target program as seen by
// analyses.
//
// Primitive values are plain Go values: float64 (and any Go integer or float
// type, normalized by Number), string, bool, nil for null and Undefined.
// Reference values are *Object. Object identity is pointer identity, which is
// what the shadow store keys on.
package value

import (
	"math"
	"slices"
	"strconv"
)

// Kind is the kind of a reference value.
type Kind uint8

const (
	// KindObject is a plain object.
	KindObject Kind = iota
	// KindArray is an array.
	KindArray
	// KindFunction is a function, including builtins.
	KindFunction
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindObject:
		return "object"
	case KindArray:
		return "array"
	case KindFunction:
		return "function"
	default:
		return "unknown"
	}
}

// undefinedType is the type of Undefined.
type undefinedType struct{}

func (undefinedType) String() string { return "undefined" }

// Undefined is the target program's undefined value.
var Undefined = undefinedType{}

// Object is a reference value of the target program.
type Object struct {
	kind Kind

	// Name is the function name for KindFunction.
	Name string

	// Elements holds array elements for KindArray.
	Elements []any

	// Props holds named properties.
	Props map[string]any

	frozen bool
}

// NewArray returns an array holding elems.
func NewArray(elems ...any) *Object {
	return &Object{kind: KindArray, Elements: elems}
}

// NewObject returns an empty plain object.
func NewObject() *Object {
	return &Object{kind: KindObject}
}

// NewFunction returns a function object with the given name.
func NewFunction(name string) *Object {
	return &Object{kind: KindFunction, Name: name}
}

// Kind returns the object's kind.
func (o *Object) Kind() Kind {
	return o.kind
}

// IsArray reports whether o is an array.
func (o *Object) IsArray() bool {
	return o != nil && o.kind == KindArray
}

// Len returns the array length, or 0 for non-arrays.
func (o *Object) Len() int {
	if !o.IsArray() {
		return 0
	}
	return len(o.Elements)
}

// Freeze makes the object non-extensible.
func (o *Object) Freeze() {
	o.frozen = true
}

// Frozen reports whether Freeze was called.
func (o *Object) Frozen() bool {
	return o.frozen
}

// MaxDenseGap is how far past the end an index store may grow Elements.
// Stores further out are sparse: they land in Props under the index's decimal
// string and do not change Len.
const MaxDenseGap = 1 << 16

// SetIndex stores v at index i, growing the array with Undefined as needed.
func (o *Object) SetIndex(i int, v any) {
	if o.frozen || i < 0 {
		return
	}
	n := len(o.Elements)
	if i < n {
		o.Elements[i] = v
		return
	}
	if i-n >= MaxDenseGap {
		o.SetProp(strconv.Itoa(i), v)
		return
	}
	o.Elements = slices.Grow(o.Elements, i+1-n)
	for len(o.Elements) < i {
		o.Elements = append(o.Elements, Undefined)
	}
	o.Elements = append(o.Elements, v)
	if o.Props != nil {
		delete(o.Props, strconv.Itoa(i))
	}
}

// SetProp stores a named property.
func (o *Object) SetProp(name string, v any) {
	if o.frozen {
		return
	}
	if o.Props == nil {
		o.Props = make(map[string]any)
	}
	o.Props[name] = v
}

// IsArray reports whether v is an array object.
func IsArray(v any) bool {
	o, ok := v.(*Object)
	return ok && o.IsArray()
}

// AsArray returns v as an array object.
func AsArray(v any) (*Object, bool) {
	o, ok := v.(*Object)
	if !ok || !o.IsArray() {
		return nil, false
	}
	return o, true
}

// Number returns v as a float64 when v is a numeric primitive.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}

// Index returns v as an array index when v is a non-negative integral number.
func Index(v any) (int, bool) {
	n, ok := Number(v)
	if !ok || n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
		return 0, false
	}
	return int(n), true
}

// PropertyKey returns the property name an offset denotes.
//
// Strings are returned as is; numbers use their shortest decimal form.
func PropertyKey(v any) string {
	switch k := v.(type) {
	case string:
		return k
	case nil:
		return "null"
	}
	if n, ok := Number(v); ok {
		return strconv.FormatFloat(n, 'g', -1, 64)
	}
	if v == Undefined {
		return "undefined"
	}
	return ""
}

// IsPrimitive reports whether v carries no identity.
func IsPrimitive(v any) bool {
	switch v.(type) {
	case nil, bool, string, undefinedType:
		return true
	}
	_, ok := Number(v)
	return ok
}

// TypeOf returns the result of the typeof operator for v.
func TypeOf(v any) string {
	switch x := v.(type) {
	case nil:
		return "object"
	case undefinedType:
		return "undefined"
	case bool:
		return "boolean"
	case string:
		return "string"
	case *Object:
		if x.kind == KindFunction {
			return "function"
		}
		return "object"
	}
	if _, ok := Number(v); ok {
		return "number"
	}
	return "object"
}

// Truthy reports whether v converts to true in a boolean context.
func Truthy(v any) bool {
	switch x := v.(type) {
	case nil, undefinedType:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case *Object:
		return x != nil
	}
	if n, ok := Number(v); ok {
		return n != 0 && !math.IsNaN(n)
	}
	return true
}
