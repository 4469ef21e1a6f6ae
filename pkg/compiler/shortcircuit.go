package compiler

import "github.com/cmtristano/koji/pkg/bytecode"

// testLocForBranch returns a register holding e's truthiness test operand
// (TEST's A field is a plain register — see spec.md §4.5's argument
// range), materializing a comparison or constant into one first when
// needed.
func (c *Compiler) testLocForBranch(e *expr) (reg int, isCompare bool) {
	if e.kind == kindEq || e.kind == kindLt || e.kind == kindLte {
		return 0, true
	}
	return c.toRegister(e), false
}

// branchOn emits the test for e and a following JUMP, returning the jump's
// instruction index. branchWhenTrue selects whether the jump fires when e
// is truthy (true) or falsy (false).
func (c *Compiler) branchOn(e *expr, branchWhenTrue bool) int {
	if reg, isCompare := c.testLocForBranch(e); !isCompare {
		c.emit(bytecode.EncodeABx(bytecode.OPTEST, reg, b2i32(branchWhenTrue)))
		return c.emitJump()
	}
	c.emit(bytecode.EncodeABC(e.compareOp(), int(e.lhsLoc), e.rhsLoc, b2i32(e.positive == branchWhenTrue)))
	return c.emitJump()
}

// extendAnd implements spec.md §4.6's `&&` short-circuit rule: lhs must be
// true to continue, so a false result branches away; any of lhs's
// already-open true-jumps (from an enclosing `||`) must be redirected here
// since true alone wasn't enough to decide the whole expression.
func (c *Compiler) extendAnd(lhs *expr) {
	c.patchJumps(lhs.trueJumps, c.here())
	lhs.trueJumps = nil
	idx := c.branchOn(lhs, false)
	lhs.falseJumps = append(lhs.falseJumps, idx)
}

// mergeAnd combines lhs's pending false-jumps (the exits for "lhs was
// false") with rhs's own, carrying rhs's value and true-jumps forward as
// the chain's new tail.
func (c *Compiler) mergeAnd(lhs, rhs *expr) *expr {
	rhs.falseJumps = append(lhs.falseJumps, rhs.falseJumps...)
	return rhs
}

// extendOr is extendAnd's mirror for `||`.
func (c *Compiler) extendOr(lhs *expr) {
	c.patchJumps(lhs.falseJumps, c.here())
	lhs.falseJumps = nil
	idx := c.branchOn(lhs, true)
	lhs.trueJumps = append(lhs.trueJumps, idx)
}

func (c *Compiler) mergeOr(lhs, rhs *expr) *expr {
	rhs.trueJumps = append(lhs.trueJumps, rhs.trueJumps...)
	return rhs
}
