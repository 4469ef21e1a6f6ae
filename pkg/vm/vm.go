// Package vm implements koji's register-based bytecode interpreter: the
// dispatch loop that walks a compiled bytecode.Prototype's instructions,
// maintaining a flat value stack sliced into one window per active call
// frame (spec.md §4.7).
package vm

import (
	"fmt"
	"math"

	"github.com/cmtristano/koji/pkg/bytecode"
	"github.com/cmtristano/koji/pkg/class"
	"github.com/cmtristano/koji/pkg/kstring"
	"github.com/cmtristano/koji/pkg/ktable"
	"github.com/cmtristano/koji/pkg/value"
)

// Frame is one active call's bookkeeping: which prototype it is executing,
// where in the flat stack its registers begin, and where its eventual
// return value must be written back in the caller's window.
type Frame struct {
	Proto     *bytecode.Prototype
	Closure   *Closure
	PC        int
	Base      int
	Receiver  value.Value
	ResultAbs int // absolute stack index the caller reads this call's result from; -1 for the outermost frame
	Selector  string
}

// VM is one koji execution context: the frame stack, the flat register
// stack backing every frame's window, the global table, and the builtin
// classes every value's operators are dispatched through.
type VM struct {
	Frames []Frame
	Stack  []value.Value

	Globals *ktable.Table

	// Debugger, when non-nil, is consulted before every dispatched
	// instruction (pkg/vm/debugger.go).
	Debugger *Debugger

	ClassClass    *class.Class
	ClassString   *class.Class
	ClassTable    *class.Class
	ClassClosure  *class.Class
	ClassHostFunc *class.Class
}

// New allocates a VM with its builtin classes and an empty global table.
func New() *VM {
	cc := class.NewClassClass()
	vm := &VM{ClassClass: cc}
	vm.ClassString = kstring.NewClass(cc)
	vm.ClassTable = ktable.NewClass(cc)
	vm.ClassClosure = NewClosureClass(cc)
	vm.ClassHostFunc = NewHostFuncClass(cc)
	vm.Globals = ktable.New(vm.ClassTable)
	return vm
}

// Close releases every reference the VM itself holds: the global table,
// the four builtin classes, and last the class-class fixpoint. The
// class-class's self-link is never walked (class.Release's documented
// exception), so that final release does not recurse into itself.
func (vm *VM) Close() {
	class.ReleaseValue(vm, vm.Globals.Value())
	class.Release(vm, &vm.ClassString.Object)
	class.Release(vm, &vm.ClassTable.Object)
	class.Release(vm, &vm.ClassClosure.Object)
	class.Release(vm, &vm.ClassHostFunc.Object)
	class.Release(vm, &vm.ClassClass.Object)
}

// RegisterFunc exposes fn to scripts as globals.<name> (spec.md §6
// static_function), wrapping it as a HostFunc value stored in the globals
// table the same way a script-level global assignment would.
func (vm *VM) RegisterFunc(name string, minArgs, maxArgs int, fn HostFn) {
	hf := newHostFunc(vm.ClassHostFunc, name, minArgs, maxArgs, fn)
	key := kstring.New(vm.ClassString, name)
	vm.Globals.Set(vm, key.Value(), hf.Object.Value())
	class.ReleaseValue(vm, key.Value())
	class.ReleaseValue(vm, hf.Object.Value())
}

// Throw satisfies class.Machine: it aborts the running program with a
// formatted message and the current call stack, unwound by Run's recover.
func (vm *VM) Throw(format string, args ...any) {
	panic(newRuntimeError(fmt.Sprintf(format, args...), vm.captureStack()))
}

func (vm *VM) captureStack() []StackFrame {
	frames := make([]StackFrame, len(vm.Frames))
	for i, f := range vm.Frames {
		frames[i] = StackFrame{Name: f.Proto.Name, Selector: f.Selector, PC: f.PC}
	}
	return frames
}

// Run executes proto as the program's top-level function and returns the
// runtime error raised, if any.
func (vm *VM) Run(proto *bytecode.Prototype) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if rerr, ok := r.(*RuntimeError); ok {
				err = rerr
				return
			}
			panic(r)
		}
	}()

	base := vm.growStack(proto.NLocals)
	vm.Frames = append(vm.Frames, Frame{Proto: proto, Base: base, ResultAbs: -1})
	vm.dispatch()
	return nil
}

// growStack extends the stack by n nil-initialized slots and returns the
// absolute index the new region starts at.
func (vm *VM) growStack(n int) int {
	base := len(vm.Stack)
	for i := 0; i < n; i++ {
		vm.Stack = append(vm.Stack, value.Nil())
	}
	return base
}

func (vm *VM) getAbs(idx int) value.Value { return vm.Stack[idx] }

// setAbs overwrites the stack slot at idx with val, retaining val and
// releasing whatever val previously lived there — in that order, so that
// self-assignment (the new and old values being the same object) never
// drops a refcount to zero before the increment lands.
func (vm *VM) setAbs(idx int, val value.Value) {
	old := vm.Stack[idx]
	class.RetainValue(val)
	vm.Stack[idx] = val
	class.ReleaseValue(vm, old)
}

// getLoc resolves a biased location against frame: a negative location is a
// constant-pool reference, a non-negative one is a register in frame's
// window.
func (vm *VM) getLoc(frame *Frame, loc int32) value.Value {
	if bytecode.IsConst(loc) {
		return frame.Proto.Consts[bytecode.ConstIndex(loc)]
	}
	return vm.getAbs(frame.Base + int(loc))
}

// dispatch runs the fetch/decode/execute loop over vm.Frames until the
// outermost frame returns.
func (vm *VM) dispatch() {
	for len(vm.Frames) > 0 {
		if vm.Debugger != nil && vm.Debugger.ShouldPause() {
			if !vm.Debugger.InteractivePrompt() {
				vm.Throw("execution aborted from debugger")
			}
		}
		frame := &vm.Frames[len(vm.Frames)-1]
		instr := frame.Proto.Instrs[frame.PC]
		frame.PC++
		vm.step(frame, instr)
	}
}

func (vm *VM) step(frame *Frame, instr bytecode.Instruction) {
	base := frame.Base
	switch instr.Op() {
	case bytecode.OPLOADNIL:
		a, bx := instr.A(), instr.Bx()
		for i := a; i <= int(bx); i++ {
			vm.setAbs(base+i, value.Nil())
		}

	case bytecode.OPLOADBOOL:
		vm.setAbs(base+instr.A(), value.Bool(instr.B() != 0))
		frame.PC += int(instr.C())

	case bytecode.OPMOV:
		vm.setAbs(base+instr.A(), vm.getLoc(frame, instr.Bx()))

	case bytecode.OPNEG:
		v := vm.getLoc(frame, instr.Bx())
		vm.setAbs(base+instr.A(), value.Bool(!v.ToBool()))

	case bytecode.OPUNM:
		vm.setAbs(base+instr.A(), vm.unm(vm.getLoc(frame, instr.Bx())))

	case bytecode.OPADD, bytecode.OPSUB, bytecode.OPMUL, bytecode.OPDIV, bytecode.OPMOD:
		lhs := vm.getLoc(frame, instr.B())
		rhs := vm.getLoc(frame, instr.C())
		vm.setAbs(base+instr.A(), vm.arith(instr.Op(), lhs, rhs))

	case bytecode.OPPOW:
		lhs := vm.getLoc(frame, instr.B())
		rhs := vm.getLoc(frame, instr.C())
		if !lhs.IsNumber() || !rhs.IsNumber() {
			vm.Throw("cannot raise a %s value to a %s power", vm.typeName(lhs), vm.typeName(rhs))
		}
		vm.setAbs(base+instr.A(), value.Number(math.Pow(lhs.AsNumber(), rhs.AsNumber())))

	case bytecode.OPTESTSET:
		cond := vm.getLoc(frame, instr.B())
		if cond.ToBool() == (instr.C() != 0) {
			vm.setAbs(base+instr.A(), cond)
		} else {
			frame.PC++
		}

	case bytecode.OPTEST:
		v := vm.getAbs(base + instr.A())
		if v.ToBool() != (instr.Bx() != 0) {
			frame.PC++
		}

	case bytecode.OPJUMP:
		frame.PC += int(instr.BxJump())

	case bytecode.OPEQ, bytecode.OPLT, bytecode.OPLTE:
		lhs := vm.getAbs(base + instr.A())
		rhs := vm.getLoc(frame, instr.B())
		want := instr.C() != 0
		var got bool
		switch instr.Op() {
		case bytecode.OPEQ:
			got = vm.valuesEqual(lhs, rhs)
		case bytecode.OPLT:
			got = vm.compareOrdinal(lhs, rhs) < 0
		default:
			got = vm.compareOrdinal(lhs, rhs) <= 0
		}
		if got != want {
			frame.PC++
		}

	case bytecode.OPCLOSURE:
		child := frame.Proto.Protos[instr.Bx()]
		cl := newClosure(vm.ClassClosure, child)
		vm.setAbs(base+instr.A(), cl.Object.Value())
		class.ReleaseValue(vm, cl.Object.Value())

	case bytecode.OPGETGLOB:
		key := frame.Proto.Consts[bytecode.ConstIndex(instr.Bx())]
		vm.setAbs(base+instr.A(), vm.Globals.Get(vm, key))

	case bytecode.OPSETGLOB:
		key := frame.Proto.Consts[bytecode.ConstIndex(instr.Bx())]
		vm.Globals.Set(vm, key, vm.getAbs(base+instr.A()))

	case bytecode.OPNEWTABLE:
		t := ktable.New(vm.ClassTable)
		vm.setAbs(base+instr.A(), t.Value())
		class.ReleaseValue(vm, t.Value())

	case bytecode.OPGET:
		recv := vm.getLoc(frame, instr.B())
		key := vm.getLoc(frame, instr.C())
		vm.setAbs(base+instr.A(), vm.get(recv, key))

	case bytecode.OPSET:
		key := vm.getAbs(base + instr.A())
		recv := vm.getLoc(frame, instr.B())
		val := vm.getLoc(frame, instr.C())
		vm.set(recv, key, val)

	case bytecode.OPCALL:
		argsBase := instr.A()
		callee := vm.getLoc(frame, instr.B())
		argc := int(instr.C())
		vm.call(callee, base+argsBase, argc, value.Nil(), "")

	case bytecode.OPMCALL:
		argsBase := instr.A()
		method := vm.getLoc(frame, instr.B())
		argc := int(instr.C())
		recv := vm.getAbs(base + argsBase - 1)
		callee := vm.resolveMethod(recv, method)
		name := ""
		if method.IsObject() {
			name = kstring.FromValue(method).Chars
		}
		vm.call(callee, base+argsBase, argc, recv, name)

	case bytecode.OPTHIS:
		vm.setAbs(base+instr.A(), frame.Receiver)

	case bytecode.OPRET:
		vm.doReturn(frame, instr.A(), int(instr.Bx()))

	case bytecode.OPTHROW:
		msg := vm.getLoc(frame, instr.Bx())
		vm.Throw("%s", vm.display(msg))

	case bytecode.OPDEBUG:
		a, count := instr.A(), int(instr.Bx())
		parts := make([]string, count)
		for i := 0; i < count; i++ {
			parts[i] = vm.display(vm.getAbs(base + a + i))
		}
		for i, p := range parts {
			if i > 0 {
				fmt.Print(" ")
			}
			fmt.Print(p)
		}
		fmt.Println()

	case bytecode.OPNEXT:
		tv := vm.getLoc(frame, instr.B())
		if !tv.IsObject() || class.FromValue(tv).Class != vm.ClassTable {
			vm.Throw("attempt to iterate a %s value", vm.typeName(tv))
		}
		t := ktable.FromValue(tv)
		prev := vm.getLoc(frame, instr.C())
		if key, ok := t.NextKey(vm, prev); ok {
			vm.setAbs(base+instr.A(), key)
		} else {
			vm.setAbs(base+instr.A(), value.Nil())
		}

	default:
		vm.Throw("unimplemented opcode %s", instr.Op())
	}
}

func (vm *VM) unm(v value.Value) value.Value {
	if v.IsNumber() {
		return value.Number(-v.AsNumber())
	}
	if v.IsObject() {
		obj := class.FromValue(v)
		res := obj.Class.Operators[class.OpUNM](vm, obj, class.OpUNM, value.Nil(), value.Nil())
		return res.Value
	}
	vm.Throw("cannot apply unary minus to a %s value", vm.typeName(v))
	return value.Nil()
}

var arithKind = map[bytecode.Opcode]class.OpKind{
	bytecode.OPADD: class.OpADD,
	bytecode.OPSUB: class.OpSUB,
	bytecode.OPMUL: class.OpMUL,
	bytecode.OPDIV: class.OpDIV,
	bytecode.OPMOD: class.OpMOD,
}

// arith implements ADD/SUB/MUL/DIV/MOD: class-operator dispatch when the
// left operand is an object, else a direct numeric operation (spec.md
// §4.6's arithmetic table).
func (vm *VM) arith(op bytecode.Opcode, lhs, rhs value.Value) value.Value {
	kind := arithKind[op]
	if lhs.IsObject() {
		obj := class.FromValue(lhs)
		res := obj.Class.Operators[kind](vm, obj, kind, value.Nil(), rhs)
		return res.Value
	}
	if !lhs.IsNumber() || !rhs.IsNumber() {
		vm.Throw("cannot apply %s to %s and %s", kind, vm.typeName(lhs), vm.typeName(rhs))
	}
	a, b := lhs.AsNumber(), rhs.AsNumber()
	switch op {
	case bytecode.OPADD:
		return value.Number(a + b)
	case bytecode.OPSUB:
		return value.Number(a - b)
	case bytecode.OPMUL:
		return value.Number(a * b)
	case bytecode.OPDIV:
		return value.Number(a / b)
	default: // OPMOD
		ai, bi := int64(math.Trunc(a)), int64(math.Trunc(b))
		if bi == 0 {
			vm.Throw("modulo by zero")
		}
		return value.Number(float64(ai % bi))
	}
}

// valuesEqual implements EQ's runtime semantics: nil==nil, bool/number
// compared by value, same-class objects via their COMPARE operator,
// anything else (mismatched kinds, different-class objects) unequal.
func (vm *VM) valuesEqual(a, b value.Value) bool {
	switch {
	case a.IsNil() || b.IsNil():
		return a.IsNil() && b.IsNil()
	case a.IsBool() || b.IsBool():
		return a.IsBool() && b.IsBool() && a.AsBool() == b.AsBool()
	case a.IsNumber() && b.IsNumber():
		return a.AsNumber() == b.AsNumber()
	case a.IsObject() && b.IsObject():
		objA, objB := class.FromValue(a), class.FromValue(b)
		if objA.Class != objB.Class {
			return false
		}
		res := objA.Class.Operators[class.OpCOMPARE](vm, objA, class.OpCOMPARE, b, value.Nil())
		return res.Compare == 0
	default:
		return false
	}
}

// compareOrdinal implements LT/LTE's runtime ordering: numbers compare
// numerically, same-class objects via their COMPARE operator; anything
// else is a runtime error (spec.md §4.6: ordering is only defined between
// two numbers or two objects of the same class).
func (vm *VM) compareOrdinal(a, b value.Value) int32 {
	if a.IsNumber() && b.IsNumber() {
		switch {
		case a.AsNumber() < b.AsNumber():
			return -1
		case a.AsNumber() > b.AsNumber():
			return 1
		default:
			return 0
		}
	}
	if a.IsObject() && b.IsObject() {
		objA, objB := class.FromValue(a), class.FromValue(b)
		if objA.Class == objB.Class {
			res := objA.Class.Operators[class.OpCOMPARE](vm, objA, class.OpCOMPARE, b, value.Nil())
			return res.Compare
		}
	}
	vm.Throw("cannot compare a %s value with a %s value", vm.typeName(a), vm.typeName(b))
	return 0
}

func (vm *VM) get(recv, key value.Value) value.Value {
	if !recv.IsObject() {
		vm.Throw("attempt to index a %s value", vm.typeName(recv))
	}
	obj := class.FromValue(recv)
	res := obj.Class.Operators[class.OpGET](vm, obj, class.OpGET, key, value.Nil())
	return res.Value
}

func (vm *VM) set(recv, key, val value.Value) {
	if !recv.IsObject() {
		vm.Throw("attempt to index a %s value", vm.typeName(recv))
	}
	obj := class.FromValue(recv)
	obj.Class.Operators[class.OpSET](vm, obj, class.OpSET, key, val)
}

// resolveMethod looks up method on recv's class GET operator first, then
// (for a table receiver whose GET came back nil) its metatable — the
// inheritance fallback spec.md §9 describes.
func (vm *VM) resolveMethod(recv, method value.Value) value.Value {
	if !recv.IsObject() {
		vm.Throw("attempt to call a method on a %s value", vm.typeName(recv))
	}
	obj := class.FromValue(recv)
	callee := vm.get(recv, method)
	if callee.IsNil() && obj.Class == vm.ClassTable {
		t := ktable.FromValue(recv)
		if t.Metatable != nil {
			callee = t.Metatable.Get(vm, method)
		}
	}
	return callee
}

// call dispatches a CALL/MCALL against callee: pushes a new bytecode Frame
// for a Closure, or runs a HostFunc synchronously in place. argsAbs is the
// absolute stack index the caller's argument registers (and the eventual
// result) occupy.
func (vm *VM) call(callee value.Value, argsAbs, argc int, receiver value.Value, selector string) {
	if !callee.IsObject() {
		vm.Throw("attempt to call a %s value", vm.typeName(callee))
	}
	obj := class.FromValue(callee)

	switch obj.Class {
	case vm.ClassClosure:
		cl := closureFromValue(callee)
		proto := cl.Proto
		newBase := vm.growStack(proto.NLocals)
		n := argc
		if n > proto.NArgs {
			n = proto.NArgs
		}
		for i := 0; i < n; i++ {
			arg := vm.getAbs(argsAbs + i)
			class.RetainValue(arg)
			vm.Stack[newBase+i] = arg
		}
		vm.Frames = append(vm.Frames, Frame{
			Proto:     proto,
			Closure:   cl,
			Base:      newBase,
			Receiver:  receiver,
			ResultAbs: argsAbs,
			Selector:  selector,
		})

	case vm.ClassHostFunc:
		hf := hostFuncFromValue(callee)
		if argc < hf.MinArgs || (hf.MaxArgs >= 0 && argc > hf.MaxArgs) {
			vm.Throw("%s expects between %d and %d arguments, got %d", hf.Name, hf.MinArgs, hf.MaxArgs, argc)
		}
		args := make([]value.Value, argc)
		for i := range args {
			args[i] = vm.getAbs(argsAbs + i)
		}
		result := hf.Fn(vm, args)
		vm.setAbs(argsAbs, result)

	default:
		vm.Throw("attempt to call a %s value", vm.typeName(callee))
	}
}

// doReturn implements RET: captures R(A) (or nil, if count is 0) as the
// frame's result, releases every register the frame owns, pops it, and
// writes the result back into the caller's window.
func (vm *VM) doReturn(frame *Frame, a, count int) {
	result := value.Nil()
	if count > 0 {
		result = vm.getAbs(frame.Base + a)
	}
	class.RetainValue(result) // survive the frame-teardown release loop below

	for i := frame.Base; i < frame.Base+frame.Proto.NLocals; i++ {
		class.ReleaseValue(vm, vm.Stack[i])
	}
	vm.Stack = vm.Stack[:frame.Base]

	resultAbs := frame.ResultAbs
	vm.Frames = vm.Frames[:len(vm.Frames)-1]

	if resultAbs < 0 {
		// The outermost frame returned; nothing left to write back into.
		class.ReleaseValue(vm, result)
		return
	}
	vm.setAbs(resultAbs, result)
	class.ReleaseValue(vm, result)
}

// TypeName returns koji's user-facing type name for v, exposed for hosts
// embedding the VM via pkg/koji.
func (vm *VM) TypeName(v value.Value) string { return vm.typeName(v) }

// Display renders v the way OPDEBUG prints it, exposed for hosts
// embedding the VM via pkg/koji (e.g. the print builtin in pkg/stdlib).
func (vm *VM) Display(v value.Value) string { return vm.display(v) }

// typeName returns koji's user-facing type name for v.
func (vm *VM) typeName(v value.Value) string {
	if !v.IsObject() {
		return value.TypeName(v, nil)
	}
	return class.FromValue(v).Class.Name
}

// display renders v the way OPDEBUG and THROW's non-string operand print
// it: strings unquoted, other values by type name or content.
func (vm *VM) display(v value.Value) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		return fmt.Sprintf("%t", v.AsBool())
	case v.IsNumber():
		return formatNumber(v.AsNumber())
	case v.IsObject():
		obj := class.FromValue(v)
		switch obj.Class {
		case vm.ClassString:
			return kstring.FromValue(v).Chars
		case vm.ClassTable:
			return fmt.Sprintf("table: %p", obj)
		case vm.ClassClosure:
			return fmt.Sprintf("function: %s", closureFromValue(v).Proto.Name)
		case vm.ClassHostFunc:
			return fmt.Sprintf("function: %s", hostFuncFromValue(v).Name)
		default:
			return fmt.Sprintf("%s: %p", obj.Class.Name, obj)
		}
	}
	return "<unknown>"
}

func formatNumber(n float64) string {
	if n == math.Trunc(n) && !math.IsInf(n, 0) {
		return fmt.Sprintf("%d", int64(n))
	}
	return fmt.Sprintf("%g", n)
}
