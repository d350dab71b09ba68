// Package hook enumerates the named extension points an event producer can
// call into.
//
// Every intercepted operation of the target program maps to exactly one Hook.
// The wire name of a hook (its String form) is the stable identifier shared by
// event producers, plugins, filter lists and the DYNPROF_ENABLED_HOOKS
// allow-list.
package hook

import (
	"strings"
)

// Hook identifies one category of intercepted operation.
type Hook uint8

// Hook values. The order is the canonical order used when listing hooks.
const (
	FunctionEnter Hook = iota
	FunctionExit
	InvokeFunPre
	InvokeFun
	BuiltinEnter
	BuiltinExit
	Literal
	DeclarePre
	Declare
	Read
	Write
	GetFieldPre
	GetField
	PutFieldPre
	PutField
	UnaryPre
	Unary
	BinaryPre
	Binary
	Conditional
	EvalPre
	EvalPost
	EvalFunctionPre
	EvalFunctionPost
	AsyncFunctionEnter
	AsyncFunctionExit
	ForObject
	Return
	AwaitPre
	AwaitPost
	StartExpression
	EndExpression
	StartStatement
	EndStatement
	NewSource

	// Count is the number of dispatchable hooks.
	Count
)

// EndExecution is the wire name of the finalization slot. It is not a
// dispatchable hook: the dispatcher calls it once from Finalize.
const EndExecution = "endExecution"

var names = [Count]string{
	FunctionEnter:      "functionEnter",
	FunctionExit:       "functionExit",
	InvokeFunPre:       "invokeFunPre",
	InvokeFun:          "invokeFun",
	BuiltinEnter:       "builtinEnter",
	BuiltinExit:        "builtinExit",
	Literal:            "literal",
	DeclarePre:         "declarePre",
	Declare:            "declare",
	Read:               "read",
	Write:              "write",
	GetFieldPre:        "getFieldPre",
	GetField:           "getField",
	PutFieldPre:        "putFieldPre",
	PutField:           "putField",
	UnaryPre:           "unaryPre",
	Unary:              "unary",
	BinaryPre:          "binaryPre",
	Binary:             "binary",
	Conditional:        "conditional",
	EvalPre:            "evalPre",
	EvalPost:           "evalPost",
	EvalFunctionPre:    "evalFunctionPre",
	EvalFunctionPost:   "evalFunctionPost",
	AsyncFunctionEnter: "asyncFunctionEnter",
	AsyncFunctionExit:  "asyncFunctionExit",
	ForObject:          "forObject",
	Return:             "_return",
	AwaitPre:           "awaitPre",
	AwaitPost:          "awaitPost",
	StartExpression:    "startExpression",
	EndExpression:      "endExpression",
	StartStatement:     "startStatement",
	EndStatement:       "endStatement",
	NewSource:          "newSource",
}

var byName = func() map[string]Hook {
	m := make(map[string]Hook, Count)
	for h := Hook(0); h < Count; h++ {
		m[names[h]] = h
	}
	return m
}()

// String returns the wire name of the hook.
func (h Hook) String() string {
	if h >= Count {
		return "unknown"
	}
	return names[h]
}

// Valid reports whether h is a dispatchable hook.
func (h Hook) Valid() bool {
	return h < Count
}

// Parse returns the hook with the given wire name.
func Parse(name string) (Hook, bool) {
	h, ok := byName[strings.TrimSpace(name)]
	return h, ok
}

// All returns every dispatchable hook in canonical order.
func All() []Hook {
	out := make([]Hook, Count)
	for h := Hook(0); h < Count; h++ {
		out[h] = h
	}
	return out
}

// Set is a bitset of hooks.
type Set uint64

// AllSet contains every dispatchable hook.
const AllSet = Set(1)<<Count - 1

// SetOf returns a set holding the given hooks.
func SetOf(hooks ...Hook) Set {
	var s Set
	for _, h := range hooks {
		s = s.Add(h)
	}
	return s
}

// Add returns s with h added.
func (s Set) Add(h Hook) Set {
	if !h.Valid() {
		return s
	}
	return s | 1<<h
}

// Has reports whether h is in s.
func (s Set) Has(h Hook) bool {
	return h.Valid() && s&(1<<h) != 0
}

// Empty reports whether s holds no hook.
func (s Set) Empty() bool {
	return s == 0
}

// Hooks returns the members of s in canonical order.
func (s Set) Hooks() []Hook {
	var out []Hook
	for h := Hook(0); h < Count; h++ {
		if s.Has(h) {
			out = append(out, h)
		}
	}
	return out
}

// String returns the comma-separated wire names of the members of s.
func (s Set) String() string {
	hooks := s.Hooks()
	parts := make([]string, len(hooks))
	for i, h := range hooks {
		parts[i] = h.String()
	}
	return strings.Join(parts, ",")
}

// ParseList parses a comma-separated list of hook names.
//
// Empty tokens are skipped. Tokens that are not hook names are returned in
// unknown, in input order, so callers can report them.
func ParseList(list string) (set Set, unknown []string) {
	for _, tok := range strings.Split(list, ",") {
		tok = strings.TrimSpace(tok)
		if tok == "" {
			continue
		}
		if h, ok := Parse(tok); ok {
			set = set.Add(h)
			continue
		}
		unknown = append(unknown, tok)
	}
	return set, unknown
}
