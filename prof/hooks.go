package prof

import "github.com/kolkov/dynprof/internal/prof/hook"

// Hook values.
const (
	FunctionEnter      = hook.FunctionEnter
	FunctionExit       = hook.FunctionExit
	InvokeFunPre       = hook.InvokeFunPre
	InvokeFun          = hook.InvokeFun
	BuiltinEnter       = hook.BuiltinEnter
	BuiltinExit        = hook.BuiltinExit
	Literal            = hook.Literal
	DeclarePre         = hook.DeclarePre
	Declare            = hook.Declare
	Read               = hook.Read
	Write              = hook.Write
	GetFieldPre        = hook.GetFieldPre
	GetField           = hook.GetField
	PutFieldPre        = hook.PutFieldPre
	PutField           = hook.PutField
	UnaryPre           = hook.UnaryPre
	Unary              = hook.Unary
	BinaryPre          = hook.BinaryPre
	Binary             = hook.Binary
	Conditional        = hook.Conditional
	EvalPre            = hook.EvalPre
	EvalPost           = hook.EvalPost
	EvalFunctionPre    = hook.EvalFunctionPre
	EvalFunctionPost   = hook.EvalFunctionPost
	AsyncFunctionEnter = hook.AsyncFunctionEnter
	AsyncFunctionExit  = hook.AsyncFunctionExit
	ForObject          = hook.ForObject
	Return             = hook.Return
	AwaitPre           = hook.AwaitPre
	AwaitPost          = hook.AwaitPost
	StartExpression    = hook.StartExpression
	EndExpression      = hook.EndExpression
	StartStatement     = hook.StartStatement
	EndStatement       = hook.EndStatement
	NewSource          = hook.NewSource
)
