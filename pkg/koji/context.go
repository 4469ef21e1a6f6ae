// Package koji is the host embedding API: constructing a Context, loading
// koji source, running it, and exchanging values with a running program
// via a small value stack (spec.md §6). This is the surface a Go program
// embedding koji links against; cmd/koji's CLI is itself just a client of
// this package.
package koji

import (
	"fmt"
	"os"

	"github.com/pkg/errors"

	"github.com/cmtristano/koji/pkg/bytecode"
	"github.com/cmtristano/koji/pkg/class"
	"github.com/cmtristano/koji/pkg/compiler"
	"github.com/cmtristano/koji/pkg/kstring"
	"github.com/cmtristano/koji/pkg/ktable"
	"github.com/cmtristano/koji/pkg/lexer"
	"github.com/cmtristano/koji/pkg/value"
	"github.com/cmtristano/koji/pkg/vm"
)

// Type identifies the kind of value occupying a stack slot, returned by
// ValueType (spec.md §6).
type Type int

const (
	TypeNil Type = iota
	TypeBool
	TypeNumber
	TypeString
	TypeTable
	TypeFunction
	TypeOther
)

func (t Type) String() string {
	switch t {
	case TypeNil:
		return "nil"
	case TypeBool:
		return "bool"
	case TypeNumber:
		return "number"
	case TypeString:
		return "string"
	case TypeTable:
		return "table"
	case TypeFunction:
		return "function"
	default:
		return "other"
	}
}

// StaticFunction is a host callback registered into a Context and called
// from koji scripts by name (spec.md §6 "static_function": "register a
// host function accessible from scripts by identifier"). It receives the
// host's own Context so it can push its result(s) the same way script code
// would, and returns the number of values it pushed.
type StaticFunction func(ctx *Context) (nresults int, err error)

// Context is one koji host session: a VM plus an explicit value stack the
// host and running scripts exchange values through, mirroring the
// reference embedding API's "stack-based" host interface (spec.md §6).
type Context struct {
	vm    *vm.VM
	stack []value.Value
}

// Open allocates a fresh Context with an empty global namespace.
func Open() *Context {
	return &Context{vm: vm.New()}
}

// Close releases every class and value the Context's VM owns. The Context
// must not be used afterward.
func (ctx *Context) Close() {
	ctx.vm.Close()
}

// LoadString compiles source (named for diagnostics and stack traces) into
// a runnable program without executing it.
func (ctx *Context) LoadString(name, source string) (*bytecode.Prototype, error) {
	lex := lexer.New(name, source)
	c := compiler.New(lex, ctx.vm.ClassString, ctx.vm.ClassTable)
	proto, err := c.Compile(name)
	if err != nil {
		return nil, err
	}
	return proto, nil
}

// LoadFile reads path from disk and compiles it, wrapping any I/O failure
// (a missing file, a permission error) as a host-collaborator failure
// distinct from a koji compile error.
func (ctx *Context) LoadFile(path string) (*bytecode.Prototype, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "koji: reading source file")
	}
	return ctx.LoadString(path, string(src))
}

// Load is an alias for LoadFile, matching the reference embedding API's
// "load a program" entry point (spec.md §6).
func (ctx *Context) Load(path string) (*bytecode.Prototype, error) {
	return ctx.LoadFile(path)
}

// Disassemble renders proto as human-readable bytecode, formatting
// constants (strings in particular) the same way OPDEBUG displays them.
func (ctx *Context) Disassemble(proto *bytecode.Prototype) string {
	return proto.Disassemble(ctx.vm.Display)
}

// EnableDebugger attaches an interactive breakpoint/step debugger
// (pkg/vm's Debugger) to ctx's VM, pausing before the first instruction
// of the next Run call.
func (ctx *Context) EnableDebugger() *vm.Debugger {
	d := vm.NewDebugger(ctx.vm)
	d.Enable()
	d.SetStepMode(true)
	ctx.vm.Debugger = d
	return d
}

// Run executes proto to completion. A script-level THROW or other runtime
// fault surfaces as the returned error (spec.md §7); a host-collaborator
// failure from inside a registered StaticFunction is wrapped the same way
// LoadFile wraps a read failure.
func (ctx *Context) Run(proto *bytecode.Prototype) error {
	if err := ctx.vm.Run(proto); err != nil {
		return err
	}
	return nil
}

// StaticFunction registers fn as a global callable under name, accepting
// between minArgs and maxArgs arguments inclusive (maxArgs < 0 means
// unbounded). The callback receives ctx's own Context, so it reads its
// arguments and pushes its results through the same stack API script code
// would use.
func (ctx *Context) StaticFunction(name string, minArgs, maxArgs int, fn StaticFunction) {
	ctx.vm.RegisterFunc(name, minArgs, maxArgs, func(m *vm.VM, args []value.Value) value.Value {
		base := len(ctx.stack)
		ctx.stack = append(ctx.stack, args...)
		n, err := fn(ctx)
		if err != nil {
			ctx.stack = ctx.stack[:base]
			m.Throw("%s", errors.Wrap(err, name).Error())
		}
		result := value.Nil()
		if n > 0 {
			result = ctx.stack[len(ctx.stack)-1]
		}
		ctx.stack = ctx.stack[:base]
		return result
	})
}

// --- the host-side value stack -----------------------------------------
//
// A StaticFunction callback and the host code driving Run share this
// stack to pass arguments in and results back out, the same convention
// the reference C embedding API uses instead of Go-native function
// signatures (spec.md §6).

func (ctx *Context) PushNil()         { ctx.stack = append(ctx.stack, value.Nil()) }
func (ctx *Context) PushBool(b bool)  { ctx.stack = append(ctx.stack, value.Bool(b)) }
func (ctx *Context) PushNumber(n float64) {
	ctx.stack = append(ctx.stack, value.Number(n))
}

func (ctx *Context) PushString(s string) {
	str := kstring.New(ctx.vm.ClassString, s)
	ctx.stack = append(ctx.stack, str.Value())
}

func (ctx *Context) PushStringf(format string, args ...any) {
	ctx.PushString(fmt.Sprintf(format, args...))
}

// Pop removes and discards the top n values.
func (ctx *Context) Pop(n int) {
	ctx.stack = ctx.stack[:len(ctx.stack)-n]
}

// Top returns the idx-th value from the top of the stack (0 is the very
// top), without removing it.
func (ctx *Context) Top(idx int) value.Value {
	return ctx.stack[len(ctx.stack)-1-idx]
}

// ValueType reports the kind of value idx slots from the top (0 is the
// top).
func (ctx *Context) ValueType(idx int) Type {
	v := ctx.Top(idx)
	switch {
	case v.IsNil():
		return TypeNil
	case v.IsBool():
		return TypeBool
	case v.IsNumber():
		return TypeNumber
	case v.IsObject():
		switch class.FromValue(v).Class {
		case ctx.vm.ClassString:
			return TypeString
		case ctx.vm.ClassTable:
			return TypeTable
		case ctx.vm.ClassClosure, ctx.vm.ClassHostFunc:
			return TypeFunction
		default:
			return TypeOther
		}
	default:
		return TypeOther
	}
}

// ToNumber returns the numeric value idx slots from the top, or 0 if it
// isn't a number.
func (ctx *Context) ToNumber(idx int) float64 {
	v := ctx.Top(idx)
	if !v.IsNumber() {
		return 0
	}
	return v.AsNumber()
}

// GetString returns the string content idx slots from the top, or "" if
// it isn't a string.
func (ctx *Context) GetString(idx int) string {
	v := ctx.Top(idx)
	if ctx.ValueType(idx) != TypeString {
		return ""
	}
	return kstring.FromValue(v).Chars
}

// StringLen returns the byte length of the string idx slots from the top.
func (ctx *Context) StringLen(idx int) int {
	return len(ctx.GetString(idx))
}

// TableSize returns the live key count of the table idx slots from the
// top, or 0 if it isn't a table.
func (ctx *Context) TableSize(idx int) int {
	if ctx.ValueType(idx) != TypeTable {
		return 0
	}
	return int(ktable.FromValue(ctx.Top(idx)).Size())
}

// StackDepth returns the number of values currently on the stack, used by
// a variadic StaticFunction (like print) to find how many arguments it
// was called with.
func (ctx *Context) StackDepth() int { return len(ctx.stack) }

// PushStringTable pushes a new table populated with items, indexed
// 0, 1, 2, ... — koji has no separate array type, so a host builtin that
// needs to return a sequence of strings (regexFindAll, say) returns a
// table keyed by position instead.
func (ctx *Context) PushStringTable(items []string) {
	tbl := ktable.New(ctx.vm.ClassTable)
	for i, s := range items {
		tbl.Set(ctx.vm, value.Number(float64(i)), kstring.New(ctx.vm.ClassString, s).Value())
	}
	ctx.stack = append(ctx.stack, tbl.Value())
}

// Display renders the value idx slots from the top the same way OPDEBUG
// prints it.
func (ctx *Context) Display(idx int) string { return ctx.vm.Display(ctx.Top(idx)) }
