package value

// Builtin functions analyses compare against by identity.
var (
	ArrayConstructor = NewFunction("Array")
	ArrayPush        = NewFunction("push")
	ArrayPop         = NewFunction("pop")
	ArraySlice       = NewFunction("slice")
	ArrayConcat      = NewFunction("concat")
	ArrayJoin        = NewFunction("join")
	ArrayIndexOf     = NewFunction("indexOf")
	ArrayShift       = NewFunction("shift")
	ArraySplice      = NewFunction("splice")
	ArrayForEach     = NewFunction("forEach")
	ArrayMap         = NewFunction("map")
)

var builtins = map[string]*Object{
	"Array":                   ArrayConstructor,
	"Array.prototype.push":    ArrayPush,
	"Array.prototype.pop":     ArrayPop,
	"Array.prototype.slice":   ArraySlice,
	"Array.prototype.concat":  ArrayConcat,
	"Array.prototype.join":    ArrayJoin,
	"Array.prototype.indexOf": ArrayIndexOf,
	"Array.prototype.shift":   ArrayShift,
	"Array.prototype.splice":  ArraySplice,
	"Array.prototype.forEach": ArrayForEach,
	"Array.prototype.map":     ArrayMap,
}

// Builtin returns the builtin function registered under a qualified name
// such as "Array.prototype.push".
func Builtin(name string) (*Object, bool) {
	f, ok := builtins[name]
	return f, ok
}
