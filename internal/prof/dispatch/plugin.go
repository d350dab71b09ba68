package dispatch

import (
	"github.com/kolkov/dynprof/internal/prof/hook"
)

// Hooks is the capability set of an analysis: one optional callback slot per
// hook. A nil slot means the analysis is not interested in that hook.
type Hooks struct {
	FunctionEnter      Callback
	FunctionExit       Callback
	InvokeFunPre       Callback
	InvokeFun          Callback
	BuiltinEnter       Callback
	BuiltinExit        Callback
	Literal            Callback
	DeclarePre         Callback
	Declare            Callback
	Read               Callback
	Write              Callback
	GetFieldPre        Callback
	GetField           Callback
	PutFieldPre        Callback
	PutField           Callback
	UnaryPre           Callback
	Unary              Callback
	BinaryPre          Callback
	Binary             Callback
	Conditional        Callback
	EvalPre            Callback
	EvalPost           Callback
	EvalFunctionPre    Callback
	EvalFunctionPost   Callback
	AsyncFunctionEnter Callback
	AsyncFunctionExit  Callback
	ForObject          Callback
	Return             Callback
	AwaitPre           Callback
	AwaitPost          Callback
	StartExpression    Callback
	EndExpression      Callback
	StartStatement     Callback
	EndStatement       Callback
	NewSource          Callback

	// EndExecution runs once from Finalize.
	EndExecution func()
}

// slotPtrs returns the callback slots indexed by hook.
func (h *Hooks) slotPtrs() [hook.Count]*Callback {
	return [hook.Count]*Callback{
		hook.FunctionEnter:      &h.FunctionEnter,
		hook.FunctionExit:       &h.FunctionExit,
		hook.InvokeFunPre:       &h.InvokeFunPre,
		hook.InvokeFun:          &h.InvokeFun,
		hook.BuiltinEnter:       &h.BuiltinEnter,
		hook.BuiltinExit:        &h.BuiltinExit,
		hook.Literal:            &h.Literal,
		hook.DeclarePre:         &h.DeclarePre,
		hook.Declare:            &h.Declare,
		hook.Read:               &h.Read,
		hook.Write:              &h.Write,
		hook.GetFieldPre:        &h.GetFieldPre,
		hook.GetField:           &h.GetField,
		hook.PutFieldPre:        &h.PutFieldPre,
		hook.PutField:           &h.PutField,
		hook.UnaryPre:           &h.UnaryPre,
		hook.Unary:              &h.Unary,
		hook.BinaryPre:          &h.BinaryPre,
		hook.Binary:             &h.Binary,
		hook.Conditional:        &h.Conditional,
		hook.EvalPre:            &h.EvalPre,
		hook.EvalPost:           &h.EvalPost,
		hook.EvalFunctionPre:    &h.EvalFunctionPre,
		hook.EvalFunctionPost:   &h.EvalFunctionPost,
		hook.AsyncFunctionEnter: &h.AsyncFunctionEnter,
		hook.AsyncFunctionExit:  &h.AsyncFunctionExit,
		hook.ForObject:          &h.ForObject,
		hook.Return:             &h.Return,
		hook.AwaitPre:           &h.AwaitPre,
		hook.AwaitPost:          &h.AwaitPost,
		hook.StartExpression:    &h.StartExpression,
		hook.EndExpression:      &h.EndExpression,
		hook.StartStatement:     &h.StartStatement,
		hook.EndStatement:       &h.EndStatement,
		hook.NewSource:          &h.NewSource,
	}
}

// slots returns the callbacks indexed by hook.
func (h *Hooks) slots() [hook.Count]Callback {
	var out [hook.Count]Callback
	for i, p := range h.slotPtrs() {
		out[i] = *p
	}
	return out
}

// Set installs cb as the callback of hk. Invalid hooks are ignored.
func (h *Hooks) Set(hk hook.Hook, cb Callback) {
	if hk.Valid() {
		*h.slotPtrs()[hk] = cb
	}
}

// Get returns the callback of hk.
func (h *Hooks) Get(hk hook.Hook) Callback {
	if !hk.Valid() {
		return nil
	}
	return *h.slotPtrs()[hk]
}

// Implemented returns the set of hooks with a non-nil slot.
func (h *Hooks) Implemented() hook.Set {
	var set hook.Set
	for i, cb := range h.slots() {
		if cb != nil {
			set = set.Add(hook.Hook(i))
		}
	}
	return set
}

// Plugin is an analysis registered with a Dispatcher.
type Plugin struct {
	// Name identifies the plugin in logs and stats.
	Name string

	Hooks Hooks
}
