package compiler

import "github.com/cmtristano/koji/pkg/bytecode"

// negate implements unary `!`. A constant folds immediately; a comparison
// flips its sense in place; a pending short-circuit chain swaps its true
// and false exits and negates its tail operand (De Morgan); anything else
// is materialized into a register and logically negated with NEG.
func (c *Compiler) negate(e *expr) *expr {
	if e.pending() {
		trueJumps, falseJumps := e.trueJumps, e.falseJumps
		e.trueJumps, e.falseJumps = nil, nil
		n := c.negate(e)
		n.trueJumps, n.falseJumps = falseJumps, trueJumps
		return n
	}
	switch e.kind {
	case kindNil:
		return exprBool(true)
	case kindBool:
		return exprBool(!e.boolVal)
	case kindNumber, kindString:
		return exprBool(false)
	case kindEq, kindLt, kindLte:
		e.positive = !e.positive
		return e
	default:
		reg := c.allocTemp()
		c.emit(bytecode.EncodeABx(bytecode.OPNEG, reg, c.toLoc(e)))
		return exprLocation(int32(reg))
	}
}

// negateArith implements unary `-`, always materializing via UNM (which
// dispatches to a class UNM operator for objects).
func (c *Compiler) negateArith(e *expr) *expr {
	reg := c.allocTemp()
	c.emit(bytecode.EncodeABx(bytecode.OPUNM, reg, c.toLoc(e)))
	return exprLocation(int32(reg))
}
