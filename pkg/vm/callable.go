package vm

import (
	"github.com/cmtristano/koji/pkg/bytecode"
	"github.com/cmtristano/koji/pkg/class"
	"github.com/cmtristano/koji/pkg/value"
)

// Closure wraps a compiled Prototype as a first-class callable value
// (spec.md §4.7's CLOSURE opcode). koji's class operator table has a fixed
// ten slots (UNM..SET) with no CALL member, so CALL/MCALL special-case a
// closure object by its class (as resolveMethod special-cases a table
// receiver for its metatable fallback), rather than growing the operator
// table.
type Closure struct {
	class.Object
	Proto *bytecode.Prototype
}

// NewClosureClass creates the class backing every Closure value. Its Dtor
// releases the wrapped Prototype's reference.
func NewClosureClass(classClass *class.Class) *class.Class {
	cls := class.NewBuiltinClass(classClass, "function")
	cls.Dtor = func(_ class.Machine, obj *class.Object) {
		closureFromValue(obj.Value()).Proto.Release()
	}
	return cls
}

func newClosure(cls *class.Class, proto *bytecode.Prototype) *Closure {
	proto.Retain()
	cl := &Closure{Proto: proto}
	cl.Refs = 1
	cl.Class = cls
	return cl
}

// closureFromValue recovers the Closure stored in v. The caller must
// already know v is an object of the closure class.
func closureFromValue(v value.Value) *Closure { return (*Closure)(v.AsObject()) }

// HostFn is a function registered from Go via pkg/koji's StaticFunction,
// called directly by CALL/MCALL without pushing a bytecode Frame.
type HostFn func(m *VM, args []value.Value) value.Value

// HostFunc is the callable object wrapping a HostFn (spec.md §6
// static_function: "register a host function accessible from scripts by
// identifier").
type HostFunc struct {
	class.Object
	Name             string
	MinArgs, MaxArgs int
	Fn               HostFn
}

// NewHostFuncClass creates the class backing every HostFunc value.
func NewHostFuncClass(classClass *class.Class) *class.Class {
	return class.NewBuiltinClass(classClass, "hostfunction")
}

func newHostFunc(cls *class.Class, name string, min, max int, fn HostFn) *HostFunc {
	h := &HostFunc{Name: name, MinArgs: min, MaxArgs: max, Fn: fn}
	h.Refs = 1
	h.Class = cls
	return h
}

// hostFuncFromValue recovers the HostFunc stored in v. The caller must
// already know v is an object of the host-function class.
func hostFuncFromValue(v value.Value) *HostFunc { return (*HostFunc)(v.AsObject()) }
