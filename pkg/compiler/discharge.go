package compiler

import "github.com/cmtristano/koji/pkg/bytecode"

// toLoc returns a biased location for e's value without necessarily
// allocating a fresh register: constants return their constant location,
// an already-materialized location expression returns its register, and
// anything else (a pending comparison or short-circuit expression) is
// discharged into a new temporary.
func (c *Compiler) toLoc(e *expr) int32 {
	switch {
	case e.pending():
		reg := c.allocTemp()
		c.dischargeTo(e, reg)
		return int32(reg)
	case e.kind == kindNumber:
		return c.internNumber(e.numVal)
	case e.kind == kindString:
		return c.internString(e.strVal)
	case e.kind == kindLocation:
		return e.loc
	default:
		reg := c.allocTemp()
		c.dischargeTo(e, reg)
		return int32(reg)
	}
}

// toRegister is like toLoc but guarantees the result is a register, never
// a constant location — required wherever an instruction's A operand (the
// plain, unbiased register field) must hold the value.
func (c *Compiler) toRegister(e *expr) int {
	loc := c.toLoc(e)
	if bytecode.IsConst(loc) {
		reg := c.allocTemp()
		c.emitMov(reg, loc)
		return reg
	}
	return int(loc)
}

// dischargeTo materializes e's value into register target, implementing
// spec.md §4.6's "Closing an expression": the chain's tail operand is
// branched on and every open branch is resolved with a LOADBOOL pair, so
// the result is always a bool. No TESTSET is emitted or rewritten.
func (c *Compiler) dischargeTo(e *expr, target int) {
	if !e.pending() {
		c.dischargeSimple(e, target)
		return
	}

	// A short-circuit chain is open. Its last-evaluated operand is
	// whatever dischargeSimple would materialize right now (a TESTSET
	// already "set" this tentatively for the register case, or nothing was
	// set yet for a bare comparison/literal tail) — in both cases emit the
	// final value now, then let pending jumps land on either side of it.
	tailTestSet := c.lastTestSetFor(e, target)

	if tailTestSet {
		// The tail was already emitted as a TESTSET A,B,C with A equal to
		// target; it both sets the register and
		// participates in the branch. Any still-open jumps from the other
		// side fall through to just past it.
		end := c.here()
		c.patchJumps(e.trueJumps, end)
		c.patchJumps(e.falseJumps, end)
		return
	}

	// The tail is a plain comparison or literal with no register side
	// effect: synthesize it, then the LOADBOOL pair.
	tail := *e
	tail.trueJumps, tail.falseJumps = nil, nil
	tailJump := c.branchOn(&tail, true)
	falseLabel := c.here()
	c.emit(bytecode.EncodeABC(bytecode.OPLOADBOOL, target, 0, 1))
	trueLabel := c.here()
	c.emit(bytecode.EncodeABC(bytecode.OPLOADBOOL, target, 1, 0))
	end := c.here()

	c.patchJumps(e.falseJumps, falseLabel)
	c.patchJumps(e.trueJumps, trueLabel)
	c.patchJump(tailJump, trueLabel)
	_ = end
}

// lastTestSetFor is a hook for the (uncommon) case where the final operand
// of a short-circuit chain is already sitting in a register and was
// emitted via TESTSET rather than a plain TEST — koji's simplified
// short-circuit compiler (see extendAnd and extendOr) always emits plain
// TEST, so this always returns false; the hook exists so dischargeTo's
// structure matches the spec's description even though this
// implementation does not need the TESTSET-rewrite optimization to be
// correct.
func (c *Compiler) lastTestSetFor(e *expr, target int) bool {
	_ = e
	_ = target
	return false
}

func (c *Compiler) dischargeSimple(e *expr, target int) {
	switch e.kind {
	case kindNil:
		c.emit(bytecode.EncodeABx(bytecode.OPLOADNIL, target, int32(target)))
	case kindBool:
		c.emit(bytecode.EncodeABC(bytecode.OPLOADBOOL, target, b2i32(e.boolVal), 0))
	case kindNumber:
		c.emitMov(target, c.internNumber(e.numVal))
	case kindString:
		c.emitMov(target, c.internString(e.strVal))
	case kindLocation:
		c.emitMov(target, e.loc)
	case kindEq, kindLt, kindLte:
		c.emitCompareToBool(e, target)
	}
}

// emitCompareToBool materializes a single (non-short-circuited) comparison
// as a boolean in target: compare, conditionally jump past a "false" load,
// otherwise fall into it and skip the "true" load (spec.md §4.6 "Closing
// an expression").
func (c *Compiler) emitCompareToBool(e *expr, target int) {
	c.emit(bytecode.EncodeABC(e.compareOp(), int(e.lhsLoc), e.rhsLoc, b2i32(e.positive)))
	jumpIfTrue := c.emitJump()

	c.emit(bytecode.EncodeABC(bytecode.OPLOADBOOL, target, 0, 1))
	c.emit(bytecode.EncodeABC(bytecode.OPLOADBOOL, target, 1, 0))
	c.patchJump(jumpIfTrue, c.here()-1)
}

func b2i32(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
