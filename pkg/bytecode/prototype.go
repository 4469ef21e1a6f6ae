package bytecode

import (
	"github.com/cmtristano/koji/pkg/value"
)

// Prototype is a compiled function: its constant pool, instruction vector,
// and the prototypes of any function literals nested inside it (spec.md
// §3). A compiled program is itself a Prototype with no arguments, the
// implicit top-level function.
//
// Prototypes are reference counted and co-owned by the parent prototype
// that lists them in Protos and by every closure wrapping them; a VM frame
// running a prototype takes no reference of its own. Releasing a prototype
// releases every child in Protos.
type Prototype struct {
	Refs int32

	Name string

	Consts []value.Value
	Instrs []Instruction
	Protos []*Prototype

	// NArgs is the number of leading locals the caller's arguments are
	// copied into.
	NArgs int
	// NLocals is the high-water mark of register usage: 1 + the largest A
	// operand any emitted instruction writes (spec.md §8 "Register
	// high-water").
	NLocals int
}

// New allocates an empty, one-referenced Prototype.
func New(name string) *Prototype {
	return &Prototype{Name: name, Refs: 1}
}

// Retain bumps p's reference count.
func (p *Prototype) Retain() {
	if p != nil {
		p.Refs++
	}
}

// Release drops p's reference count; at zero, every nested prototype is
// released in turn (spec.md §3 "Child prototypes are released when the
// parent is released").
func (p *Prototype) Release() {
	if p == nil {
		return
	}
	p.Refs--
	if p.Refs > 0 {
		return
	}
	for _, child := range p.Protos {
		child.Release()
	}
}

// AddProto appends child to p's nested prototype list and returns its
// index, the operand CLOSURE uses to reference it.
func (p *Prototype) AddProto(child *Prototype) int {
	p.Protos = append(p.Protos, child)
	return len(p.Protos) - 1
}

// Emit appends instr to p's instruction vector and returns its index, used
// by the compiler to remember jump-patch sites.
func (p *Prototype) Emit(instr Instruction) int {
	p.Instrs = append(p.Instrs, instr)
	return len(p.Instrs) - 1
}

// Patch overwrites the instruction at idx, used to back-patch a jump once
// its target is known.
func (p *Prototype) Patch(idx int, instr Instruction) {
	p.Instrs[idx] = instr
}

// NextInstrIndex returns the index the next Emit call will use, i.e. the
// would-be jump target for "here".
func (p *Prototype) NextInstrIndex() int { return len(p.Instrs) }

// GrowLocals raises NLocals to at least n, used whenever the compiler
// reserves a register numbered n-1 or higher.
func (p *Prototype) GrowLocals(n int) {
	if n > p.NLocals {
		p.NLocals = n
	}
}
