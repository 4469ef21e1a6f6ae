package compiler

import "github.com/cmtristano/koji/pkg/bytecode"

// exprKind tags the lazy expression representation koji's single-pass
// compiler uses instead of building an AST (spec.md §4.6). An expr is
// "closed" into a register only when its value is actually needed; until
// then arithmetic and comparisons on constant operands fold in place.
type exprKind int

const (
	kindNil exprKind = iota
	kindBool
	kindNumber
	kindString
	kindLocation
	kindEq
	kindLt
	kindLte
)

// lvalue records how to write back to an expr that was parsed from an
// assignable position (a bare identifier, `globals.x`, or a `.`/`[]`
// accessor). nil on every expr that isn't assignable.
type lvalue struct {
	isLocal bool
	reg     int // register, when isLocal

	isGlobal bool
	keyConst int32 // biased constant location of the global/member name

	isMember bool
	baseReg  int   // register holding the receiver/table
	keyLoc   int32 // biased location (register or constant) of the member key
}

// expr is koji's lazy expression value: a tagged union of the four literal
// kinds, a materialized register/constant location, or an unmaterialized
// comparison, plus the open short-circuit jump lists spec.md §4.6
// describes.
type expr struct {
	kind exprKind

	boolVal bool
	numVal  float64
	strVal  string

	loc int32 // kindLocation: biased register/constant location

	// lhsLoc is always a plain register (the VM's EQ/LT/LTE read R(A) with
	// A unbiased, per spec.md §4.5's instruction argument range); rhsLoc is
	// a general biased register-or-constant location.
	lhsLoc, rhsLoc int32
	positive       bool // comparisons: true is the un-negated sense (==, <, <=)

	// trueJumps/falseJumps are instruction indices of pending JUMP
	// instructions participating in an in-progress && / || chain, not yet
	// patched to their destination.
	trueJumps, falseJumps []int

	lv *lvalue
}

func exprNil() *expr                { return &expr{kind: kindNil} }
func exprBool(b bool) *expr         { return &expr{kind: kindBool, boolVal: b} }
func exprNumber(n float64) *expr    { return &expr{kind: kindNumber, numVal: n} }
func exprString(s string) *expr     { return &expr{kind: kindString, strVal: s} }
func exprLocation(loc int32) *expr  { return &expr{kind: kindLocation, loc: loc} }
func exprCompare(kind exprKind, lhs, rhs int32) *expr {
	return &expr{kind: kind, lhsLoc: lhs, rhsLoc: rhs, positive: true}
}

// isConst reports whether e is a compile-time-known literal with no
// pending branch bookkeeping.
func (e *expr) isConst() bool {
	if len(e.trueJumps) > 0 || len(e.falseJumps) > 0 {
		return false
	}
	switch e.kind {
	case kindNil, kindBool, kindNumber, kindString:
		return true
	default:
		return false
	}
}

// pending reports whether e still carries an open short-circuit branch
// that must be resolved before e's value can be read as an ordinary
// location.
func (e *expr) pending() bool { return len(e.trueJumps) > 0 || len(e.falseJumps) > 0 }

// constTruth returns e's truthiness, valid only when isConst().
func (e *expr) constTruth() bool {
	switch e.kind {
	case kindNil:
		return false
	case kindBool:
		return e.boolVal
	default:
		return true // numbers and strings are always truthy (spec.md §3 ToBool)
	}
}

// compareOp returns the Opcode that implements e's comparison kind.
func (e *expr) compareOp() bytecode.Opcode {
	switch e.kind {
	case kindEq:
		return bytecode.OPEQ
	case kindLt:
		return bytecode.OPLT
	default:
		return bytecode.OPLTE
	}
}
