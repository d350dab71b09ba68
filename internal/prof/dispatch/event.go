package dispatch

import (
	"github.com/kolkov/dynprof/internal/prof/hook"
	"github.com/kolkov/dynprof/internal/prof/source"
)

// Event carries the arguments of one intercepted operation.
//
// Every hook has a fixed argument contract; fields a hook does not use are
// left zero. The dispatcher fills Hook and Unit before calling callbacks.
//
//	functionEnter       IID, F, Base (this), Args
//	functionExit        IID, Val (return value), Exception
//	invokeFunPre        IID, F, Base, Args, IsConstructor, IsMethod
//	invokeFun           as invokeFunPre, plus Result
//	builtinEnter/Exit   Name, F, Base, Args (Exit: Result, Exception)
//	literal             IID, Val, HasGetterSetter, Kind (e.g. "ArrayLiteral")
//	declarePre/declare  IID, Name, Kind
//	read/write          IID, Name, Val, IsGlobal
//	getFieldPre         IID, Base, Offset, IsComputed, IsOpAssign, IsMethodCall
//	getField            as getFieldPre, plus Val
//	putFieldPre/Field   IID, Base, Offset, Val, IsComputed, IsOpAssign
//	unaryPre/unary      IID, Op, Left (unary: Result)
//	binaryPre/binary    IID, Op, Left, Right, IsOpAssign (binary: Result)
//	conditional         IID, Result
//	evalPre/evalPost    IID, Val (the evaluated string)
//	evalFunctionPre/Post Args (Post: Result)
//	asyncFunctionEnter  IID; asyncFunctionExit adds Result, Exception
//	forObject           IID, IsForIn
//	_return             IID, Val
//	awaitPre/awaitPost  IID, Val (awaitPost: Result, IsRejected)
//	start/endExpression IID, Kind (end: Result)
//	start/endStatement  IID, Kind
//	newSource           Source
type Event struct {
	Hook hook.Hook
	Unit source.ID
	IID  int

	Base      any
	Offset    any
	Val       any
	F         any
	Args      []any
	Result    any
	Left      any
	Right     any
	Exception any

	Name string
	Op   string
	Kind string

	IsComputed      bool
	IsOpAssign      bool
	IsMethodCall    bool
	IsConstructor   bool
	IsMethod        bool
	IsGlobal        bool
	IsForIn         bool
	IsRejected      bool
	HasGetterSetter bool

	Source *source.Descriptor
}

// Site returns the global instruction id of the event.
func (e *Event) Site() source.GIID {
	return source.GIID{Unit: e.Unit, IID: e.IID}
}

// Control is what a callback may return to steer the intercepted operation.
type Control struct {
	// Result replaces the operation's value when HasResult is set.
	Result    any
	HasResult bool

	// Skip asks the producer to skip the operation.
	Skip bool

	// Deactivate permanently removes the returning registration.
	Deactivate bool
}

// WithResult returns a Control replacing the operation's value.
func WithResult(v any) *Control {
	return &Control{Result: v, HasResult: true}
}

// Deactivated returns a Control removing the returning registration.
func Deactivated() *Control {
	return &Control{Deactivate: true}
}

// merge folds c into m, last writer wins per field. Only fields a callback
// set are written.
func (m *Control) merge(c *Control) {
	if c.HasResult {
		m.Result = c.Result
		m.HasResult = true
	}
	if c.Skip {
		m.Skip = true
	}
	if c.Deactivate {
		m.Deactivate = true
	}
}

// Callback handles one hook. A nil return means no control.
type Callback func(ev *Event) *Control
