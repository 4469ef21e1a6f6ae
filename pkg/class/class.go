// Package class implements koji's per-type operator dispatch table: the
// mechanism every polymorphic VM operation (arithmetic, comparison, hash,
// indexed get/set, destruction) goes through for object-shaped values.
//
// This mirrors kclass.h/kclass.c in the reference implementation: every
// heap object begins with an Object header (refcount + class pointer); the
// class is itself an object whose own class is the "class" class, a
// fixpoint record seeded with enough references that the normal
// decrement-to-zero path never frees it prematurely (spec.md §3, §9).
package class

import (
	"unsafe"

	"github.com/cmtristano/koji/pkg/value"
)

// Object is the header every koji heap object begins with: a reference
// count and a pointer to the object's class. Concrete object types (string,
// table, closure) embed Object as their first field, the Go analogue of the
// reference implementation's "header followed by type-specific data"
// contiguous allocation — Go gives us neither manual layout nor a need for
// it, so the trailing payload becomes ordinary embedded/owned fields
// instead of a flexible array member.
type Object struct {
	Refs  int32
	Class *Class
}

// Value boxes obj as a value.Value of object shape.
func (obj *Object) Value() value.Value { return value.Object(unsafe.Pointer(obj)) }

// FromValue recovers the Object header boxed inside v. v must satisfy
// IsObject, and must have been produced by boxing a type whose first field
// is Object (every koji object type).
func FromValue(v value.Value) *Object { return (*Object)(v.AsObject()) }

// OpKind enumerates the ten operator slots every class carries.
type OpKind int

const (
	OpUNM OpKind = iota
	OpADD
	OpSUB
	OpMUL
	OpDIV
	OpMOD
	OpCOMPARE
	OpHASH
	OpGET
	OpSET
	opCount
)

func (k OpKind) String() string {
	switch k {
	case OpUNM:
		return "unary minus"
	case OpADD:
		return "add"
	case OpSUB:
		return "subtract"
	case OpMUL:
		return "multiply"
	case OpDIV:
		return "divide"
	case OpMOD:
		return "modulo"
	case OpCOMPARE:
		return "compare"
	case OpHASH:
		return "hash"
	case OpGET:
		return "get"
	case OpSET:
		return "set"
	default:
		return "unknown"
	}
}

// OpResult is the union of everything a class operator may return: a value
// for the arithmetic/get/set slots, a signed compare ordinal, or a 64-bit
// hash (spec.md §3's op_result). Only one field is meaningful per slot.
type OpResult struct {
	Value   value.Value
	Compare int32
	Hash    uint64
}

// Machine is the minimal surface a class operator needs from the running
// VM: the ability to abort execution with a formatted runtime error. It is
// satisfied by *vm.VM; defining it here (rather than importing package vm)
// is what breaks the class <-> vm import cycle that a literal translation
// of the C `struct vm *vm` parameter would otherwise create.
type Machine interface {
	Throw(format string, args ...any)
}

// OpFunc is the signature of a class operator: spec.md §3's
// `fn(vm, *object, op_id, arg1, arg2) -> op_result`. A well-behaved OpFunc
// either returns a result or calls m.Throw, which never returns (it unwinds
// to VM.Run's recover).
type OpFunc func(m Machine, obj *Object, op OpKind, arg1, arg2 value.Value) OpResult

// DtorFunc runs when an object's reference count reaches zero. It is
// responsible for releasing any resources the object owns (for a table,
// releasing every key/value it holds).
type DtorFunc func(m Machine, obj *Object)

// Class is the per-type operator dispatch table described by spec.md §3/§4.2.
type Class struct {
	Object
	Name      string
	Dtor      DtorFunc
	Operators [opCount]OpFunc
}

// invalidOp is installed in every slot a class does not override. Calling it
// raises "cannot apply <op> to <type>", exactly spec.md §4.2's wording.
func invalidOp(m Machine, obj *Object, op OpKind, _, _ value.Value) OpResult {
	name := "<unknown>"
	if obj != nil && obj.Class != nil {
		name = obj.Class.Name
	}
	m.Throw("cannot apply %s to %s", op, name)
	return OpResult{}
}

// DefaultCompare orders objects first by class identity, then by object
// identity — an arbitrary but total and stable order, as spec.md §4.2
// requires. The VM only invokes a class's COMPARE operator once it has
// established that both operands are objects (see the VM's valuesEqual and
// compareOrdinal).
func DefaultCompare(_ Machine, obj *Object, _ OpKind, arg1, _ value.Value) OpResult {
	other := FromValue(arg1)
	return OpResult{Compare: comparePointers(obj.Class, obj, other.Class, other)}
}

func comparePointers(clsA *Class, a *Object, clsB *Class, b *Object) int32 {
	if clsA != clsB {
		if uintptr(unsafe.Pointer(clsA)) < uintptr(unsafe.Pointer(clsB)) {
			return -1
		}
		return 1
	}
	if a == b {
		return 0
	}
	if uintptr(unsafe.Pointer(a)) < uintptr(unsafe.Pointer(b)) {
		return -1
	}
	return 1
}

// DefaultHash mixes the object's own pointer bits — the fallback for any
// class that doesn't hash its content (spec.md §4.2).
func DefaultHash(_ Machine, obj *Object, _ OpKind, _, _ value.Value) OpResult {
	return OpResult{Hash: value.Mix64(uint64(uintptr(unsafe.Pointer(obj))))}
}

// NewClassClass creates the "class" class: the fixpoint whose own Class
// field points to itself. Its reference count starts at 1 — the
// self-reference — and is bumped once for every builtin class created
// against it via NewBuiltinClass. Only external holders (those bumps, plus
// one final explicit Release the VM issues on Close) ever decrement it;
// Release special-cases the fixpoint so the self-link is never walked.
func NewClassClass() *Class {
	c := &Class{Name: "class"}
	c.Refs = 1
	c.Class = c
	installDefaults(c)
	return c
}

// NewBuiltinClass creates a new class instance of classClass, pre-wired with
// the default compare/hash and invalid-operator stubs everywhere else —
// "the shared root for strings, tables, and any user-defined class" that
// spec.md §4.2 describes. Callers override individual Operators slots
// afterwards (kstring.NewClass, ktable.NewClass).
func NewBuiltinClass(classClass *Class, name string) *Class {
	c := &Class{Name: name}
	c.Refs = 1
	c.Class = classClass
	classClass.Refs++
	installDefaults(c)
	return c
}

func installDefaults(c *Class) {
	for i := range c.Operators {
		c.Operators[i] = invalidOp
	}
	c.Operators[OpCOMPARE] = DefaultCompare
	c.Operators[OpHASH] = DefaultHash
	c.Dtor = func(Machine, *Object) {}
}

// Retain bumps obj's reference count. Called whenever a Value carrying obj
// is copied into a register, constant slot, or table entry.
func Retain(obj *Object) {
	if obj != nil {
		obj.Refs++
	}
}

// Release drops obj's reference count by one; at zero it runs the class
// destructor and then releases the class's own reference, possibly
// recursively freeing the class itself (spec.md §3 "Entity lifecycles").
//
// The one exception is the class-class fixpoint: when obj IS its own class
// object (obj.Class == obj, modulo the Object/Class embedding), releasing
// the owning class would mean releasing obj again, looping forever. That
// self-link is never walked; only external Release calls against the
// class-class ever retire its last reference.
func Release(m Machine, obj *Object) {
	if obj == nil {
		return
	}
	obj.Refs--
	if obj.Refs > 0 {
		return
	}
	cls := obj.Class
	if cls.Dtor != nil {
		cls.Dtor(m, obj)
	}
	if &cls.Object != obj {
		Release(m, &cls.Object)
	}
}

// RetainValue bumps the refcount of v's object, if v is object-shaped.
func RetainValue(v value.Value) {
	if v.IsObject() {
		Retain(FromValue(v))
	}
}

// ReleaseValue releases v's object, if v is object-shaped.
func ReleaseValue(m Machine, v value.Value) {
	if v.IsObject() {
		Release(m, FromValue(v))
	}
}
