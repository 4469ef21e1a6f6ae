// Package kstring implements koji's string type: an immutable byte sequence
// wired into the class system (spec.md §4.3). Unlike the reference C
// implementation, which lays out the header, length and inline character
// buffer in one contiguous allocation, koji carries the bytes as an
// ordinary Go string field — Go strings are themselves immutable
// length-prefixed byte sequences, so this is a direct idiomatic translation
// rather than a behavioral change.
package kstring

import (
	"fmt"
	"math"

	"github.com/cmtristano/koji/pkg/class"
	"github.com/cmtristano/koji/pkg/value"
)

// String is a koji string object: an Object header plus its immutable
// content.
type String struct {
	class.Object
	Chars string
}

// New allocates a new String of cls (which must be the class this package's
// NewClass produced) wrapping s, with a reference count of one.
func New(cls *class.Class, s string) *String {
	str := &String{Chars: s}
	str.Refs = 1
	str.Class = cls
	return str
}

// Value boxes str as a value.Value.
func (str *String) Value() value.Value { return str.Object.Value() }

// FromValue recovers the String stored in v. The caller must already know v
// is an object of the string class.
func FromValue(v value.Value) *String { return (*String)(v.AsObject()) }

// NewClass builds koji's string class: ADD concatenates, MUL repeats, GET
// indexes a byte, COMPARE is lexicographic, HASH is content-based, and SET
// is left as the invalid-operator stub (strings are immutable).
func NewClass(classClass *class.Class) *class.Class {
	cls := class.NewBuiltinClass(classClass, "string")
	cls.Operators[class.OpADD] = opAdd
	cls.Operators[class.OpMUL] = opMul
	cls.Operators[class.OpCOMPARE] = opCompare
	cls.Operators[class.OpHASH] = opHash
	cls.Operators[class.OpGET] = opGet
	cls.Dtor = func(class.Machine, *class.Object) {}
	return cls
}

func self(obj *class.Object) *String { return FromValue(obj.Value()) }

// opAdd implements spec.md §4.3 ADD: fails if rhs is not a string, else
// allocates the concatenation of both operands' bytes.
func opAdd(m class.Machine, obj *class.Object, _ class.OpKind, _, arg2 value.Value) class.OpResult {
	lhs := self(obj)
	if !arg2.IsObject() || class.FromValue(arg2).Class != obj.Class {
		m.Throw("cannot concatenate a string with a %s value", typeName(arg2, obj.Class))
	}
	rhs := FromValue(arg2)
	out := New(obj.Class, lhs.Chars+rhs.Chars)
	return class.OpResult{Value: out.Value()}
}

// opMul implements spec.md §4.3 MUL: repeats lhs ⌊n⌋ times. A negative count
// is a runtime error (spec.md §7).
func opMul(m class.Machine, obj *class.Object, _ class.OpKind, _, arg2 value.Value) class.OpResult {
	lhs := self(obj)
	if !arg2.IsNumber() {
		m.Throw("cannot multiply a string by a %s value", typeName(arg2, obj.Class))
	}
	n := int64(math.Trunc(arg2.AsNumber()))
	if n < 0 {
		m.Throw("cannot multiply a string by a negative number")
	}
	out := New(obj.Class, repeat(lhs.Chars, n))
	return class.OpResult{Value: out.Value()}
}

func repeat(s string, n int64) string {
	if n == 0 {
		return ""
	}
	buf := make([]byte, 0, int64(len(s))*n)
	for i := int64(0); i < n; i++ {
		buf = append(buf, s...)
	}
	return string(buf)
}

// opCompare implements spec.md §4.3 COMPARE: lexicographic, length-then-
// memcmp tiebreak (Go's built-in string < already gives byte-lexicographic
// order, which is what memcmp over the content does too).
func opCompare(m class.Machine, obj *class.Object, _ class.OpKind, arg1, _ value.Value) class.OpResult {
	lhs := self(obj)
	if !arg1.IsObject() || class.FromValue(arg1).Class != obj.Class {
		m.Throw("cannot compare a string with a %s value", typeName(arg1, obj.Class))
	}
	rhs := FromValue(arg1)
	switch {
	case lhs.Chars < rhs.Chars:
		return class.OpResult{Compare: -1}
	case lhs.Chars > rhs.Chars:
		return class.OpResult{Compare: 1}
	default:
		return class.OpResult{Compare: 0}
	}
}

// opHash implements spec.md §4.3/§4.7: strings hash their content via the
// Murmur2-style mix, seed 0.
func opHash(_ class.Machine, obj *class.Object, _ class.OpKind, _, _ value.Value) class.OpResult {
	return class.OpResult{Hash: Hash(self(obj).Chars)}
}

// Hash returns the content hash of s, used both by the string class's HASH
// operator and directly by the compiler/table code that needs to hash a
// string without boxing it first.
func Hash(s string) uint64 {
	return value.Murmur2Bytes([]byte(s), 0)
}

// opGet implements spec.md §4.3 GET: returns the i-th byte as a number.
func opGet(m class.Machine, obj *class.Object, _ class.OpKind, arg1, _ value.Value) class.OpResult {
	s := self(obj)
	if !arg1.IsNumber() {
		m.Throw("string index must be a number")
	}
	i := int64(math.Trunc(arg1.AsNumber()))
	if i < 0 || i >= int64(len(s.Chars)) {
		m.Throw("string index %d out of range (length %d)", i, len(s.Chars))
	}
	return class.OpResult{Value: value.Number(float64(s.Chars[i]))}
}

func typeName(v value.Value, stringClass *class.Class) string {
	switch {
	case v.IsNil():
		return "nil"
	case v.IsBool():
		return "bool"
	case v.IsNumber():
		return "number"
	default:
		obj := class.FromValue(v)
		if obj.Class == stringClass {
			return "string"
		}
		return obj.Class.Name
	}
}

// Quoted renders s double-quoted with Go escaping. OP_DEBUG and the
// disassembler do not use it: they print string contents unquoted.
func Quoted(s string) string { return fmt.Sprintf("%q", s) }
