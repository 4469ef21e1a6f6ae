// Package ktable implements koji's table type: an open-addressed,
// linear-probe hash map keyed and valued by value.Value (spec.md §4.4).
package ktable

import (
	"github.com/cmtristano/koji/pkg/class"
	"github.com/cmtristano/koji/pkg/value"
)

// DefaultCapacity is the initial slot count for a freshly-created table
// (spec.md §3).
const DefaultCapacity = 16

// loadFactorNum/loadFactorDen express the 80% growth trigger as an integer
// ratio, avoiding float comparison on the hot insertion path.
const loadFactorNum, loadFactorDen = 4, 5

const growthFactor = 2

// pair is one key/value slot. An empty slot has a nil key (spec.md §3: "Keys
// with tag nil mark empty slots; inserting nil is illegal").
type pair struct {
	key, val value.Value
}

// Table is a koji table object.
type Table struct {
	class.Object
	pairs []pair
	size  int32 // count of non-empty (non-nil-key) slots

	// Metatable backs method lookup fallback for MCALL (spec.md §4.7,
	// §9 "inheritance ... lookup method on receiver, fall back to
	// metatable"). It is nil for most tables.
	Metatable *Table
}

// New allocates a new, empty table of cls with DefaultCapacity slots.
func New(cls *class.Class) *Table {
	t := &Table{pairs: make([]pair, DefaultCapacity)}
	for i := range t.pairs {
		t.pairs[i].key = value.Nil()
	}
	t.Refs = 1
	t.Class = cls
	return t
}

// Value boxes t as a value.Value.
func (t *Table) Value() value.Value { return t.Object.Value() }

// FromValue recovers the Table stored in v. The caller must already know v
// is an object of the table class.
func FromValue(v value.Value) *Table { return (*Table)(v.AsObject()) }

// Size returns the number of live key/value pairs.
func (t *Table) Size() int32 { return t.size }

// Machine is the subset of class.Machine a table needs to hash/compare its
// keys — hashing and equality for object keys (i.e. strings) go through the
// class system, which in turn may need to abort execution.
type Machine = class.Machine

// hashValue computes the probe-chain hash for v, delegating to the class
// hash operator for objects and bit-mixing the raw pattern for primitives
// (spec.md §3 "Hash: vm_value_hash").
func hashValue(m Machine, v value.Value) uint64 {
	if v.IsObject() {
		obj := class.FromValue(v)
		return obj.Class.Operators[class.OpHASH](m, obj, class.OpHASH, value.Nil(), value.Nil()).Hash
	}
	return value.Mix64(v.Bits())
}

// equalValues implements spec.md §3's key equality: nil==nil, else bitwise,
// with strings compared by content (via the string class's COMPARE
// operator, which every string-shaped object carries).
func equalValues(m Machine, a, b value.Value) bool {
	if a.IsNil() && b.IsNil() {
		return true
	}
	if a.IsObject() && b.IsObject() {
		objA := class.FromValue(a)
		objB := class.FromValue(b)
		if objA.Class == objB.Class {
			res := objA.Class.Operators[class.OpCOMPARE](m, objA, class.OpCOMPARE, b, value.Nil())
			return res.Compare == 0
		}
	}
	return a.Bits() == b.Bits()
}

// find walks the probe chain for key starting at its hash, returning the
// slot index of either an existing entry for key or the first empty slot
// encountered, and whether an existing entry was found.
func (t *Table) find(m Machine, key value.Value) (idx int, found bool) {
	cap := len(t.pairs)
	h := int(hashValue(m, key) % uint64(cap))
	for i := 0; i < cap; i++ {
		slot := (h + i) % cap
		if t.pairs[slot].key.IsNil() {
			return slot, false
		}
		if equalValues(m, t.pairs[slot].key, key) {
			return slot, true
		}
	}
	// Unreachable as long as the load factor is kept under 1.0 by grow.
	return -1, false
}

// Get implements spec.md §4.4 get(k): returns the stored value, or nil if
// absent.
func (t *Table) Get(m Machine, key value.Value) value.Value {
	idx, found := t.find(m, key)
	if !found {
		return value.Nil()
	}
	return t.pairs[idx].val
}

// Set implements spec.md §4.4 set(k,v): inserts or overwrites, growing the
// backing array once the load factor exceeds 80%. Inserting a nil key is a
// programming error in the VM (the compiler/VM never emits one); Set treats
// it as a throw rather than silently corrupting the table.
func (t *Table) Set(m Machine, key, val value.Value) {
	if key.IsNil() {
		m.Throw("table key must not be nil")
	}
	idx, found := t.find(m, key)
	if !found {
		t.size++
	} else {
		class.ReleaseValue(m, t.pairs[idx].val)
	}
	class.RetainValue(key)
	class.RetainValue(val)
	if found {
		class.ReleaseValue(m, t.pairs[idx].key)
	}
	t.pairs[idx].key = key
	t.pairs[idx].val = val

	if int64(t.size)*loadFactorDen > int64(len(t.pairs))*loadFactorNum {
		t.grow(m)
	}
}

// grow doubles the backing array and re-inserts every live pair, exactly as
// spec.md §4.4 describes ("doubles capacity and re-hashes").
func (t *Table) grow(m Machine) {
	old := t.pairs
	t.pairs = make([]pair, len(old)*growthFactor)
	for i := range t.pairs {
		t.pairs[i].key = value.Nil()
	}
	for _, p := range old {
		if p.key.IsNil() {
			continue
		}
		idx, _ := t.find(m, p.key)
		t.pairs[idx] = p
	}
}

// NewClass builds koji's table class: GET/SET forward to Get/Set, HASH uses
// the default identity-style hash (spec.md §4.4: "iteration and length are
// not exposed via operators").
func NewClass(classClass *class.Class) *class.Class {
	cls := class.NewBuiltinClass(classClass, "table")
	cls.Operators[class.OpGET] = opGet
	cls.Operators[class.OpSET] = opSet
	cls.Dtor = dtor
	return cls
}

func opGet(m class.Machine, obj *class.Object, _ class.OpKind, arg1, _ value.Value) class.OpResult {
	t := FromValue(obj.Value())
	return class.OpResult{Value: t.Get(m, arg1)}
}

func opSet(m class.Machine, obj *class.Object, _ class.OpKind, arg1, arg2 value.Value) class.OpResult {
	t := FromValue(obj.Value())
	t.Set(m, arg1, arg2)
	return class.OpResult{}
}

// dtor releases every key and value the table holds before the table
// header itself is reclaimed (spec.md §3 "Objects ... class destructor is
// invoked, which deallocates the object").
func dtor(m class.Machine, obj *class.Object) {
	t := FromValue(obj.Value())
	for _, p := range t.pairs {
		if p.key.IsNil() {
			continue
		}
		class.ReleaseValue(m, p.key)
		class.ReleaseValue(m, p.val)
	}
}

// NextKey implements the VM's OPNEXT: given the key returned by the
// previous call (or nil to start), returns the following live key in slot
// order, or ok=false once every slot has been visited. Used to compile
// `for (var k in t)` without adding per-table iterator state.
func (t *Table) NextKey(m Machine, prev value.Value) (value.Value, bool) {
	start := 0
	if !prev.IsNil() {
		idx, found := t.find(m, prev)
		if !found {
			return value.Nil(), false
		}
		start = idx + 1
	}
	for i := start; i < len(t.pairs); i++ {
		if !t.pairs[i].key.IsNil() {
			return t.pairs[i].key, true
		}
	}
	return value.Nil(), false
}
