package compiler

import (
	"strings"

	"github.com/cmtristano/koji/pkg/bytecode"
	"github.com/cmtristano/koji/pkg/lexer"
)

// binPrec is the precedence-climb table (spec.md §4.6 "Binary operator
// precedence"), ascending so a higher number binds tighter.
var binPrec = map[lexer.TokenType]int{
	lexer.TokenOrOr:   1,
	lexer.TokenAndAnd: 2,
	lexer.TokenEq:     3,
	lexer.TokenNeq:    3,
	lexer.TokenLt:     4,
	lexer.TokenLte:    4,
	lexer.TokenGt:     4,
	lexer.TokenGte:    4,
	lexer.TokenPipe:   5,
	lexer.TokenCaret:  6,
	lexer.TokenAmp:    7,
	lexer.TokenShl:    8,
	lexer.TokenShr:    8,
	lexer.TokenPlus:   9,
	lexer.TokenMinus:  9,
	lexer.TokenStar:   10,
	lexer.TokenSlash:  10,
	lexer.TokenPercent: 10,
}

func (c *Compiler) parseBinary(minPrec int) *expr {
	lhs := c.parseUnary()
	for {
		prec, ok := binPrec[c.cur.Type]
		if !ok || prec < minPrec {
			return lhs
		}
		op := c.cur.Type
		c.advance()

		if op == lexer.TokenAndAnd {
			lhs = c.parseAndChain(lhs, prec)
			continue
		}
		if op == lexer.TokenOrOr {
			lhs = c.parseOrChain(lhs, prec)
			continue
		}

		rhs := c.parseBinary(prec + 1)
		lhs = c.applyBinary(op, lhs, rhs)
	}
}

// parseAndChain/parseOrChain implement spec.md §4.6's rule that `&&`/`||`
// fold outright when the lhs is already a known constant, and otherwise
// extend the open short-circuit jump lists rather than materializing lhs.
func (c *Compiler) parseAndChain(lhs *expr, prec int) *expr {
	if lhs.isConst() {
		truthy := lhs.constTruth()
		rhs := c.parseBinary(prec + 1)
		if !truthy {
			return exprBool(false)
		}
		return rhs
	}
	c.extendAnd(lhs)
	rhs := c.parseBinary(prec + 1)
	return c.mergeAnd(lhs, rhs)
}

func (c *Compiler) parseOrChain(lhs *expr, prec int) *expr {
	if lhs.isConst() {
		truthy := lhs.constTruth()
		rhs := c.parseBinary(prec + 1)
		if truthy {
			return exprBool(true)
		}
		return rhs
	}
	c.extendOr(lhs)
	rhs := c.parseBinary(prec + 1)
	return c.mergeOr(lhs, rhs)
}

func (c *Compiler) applyBinary(op lexer.TokenType, lhs, rhs *expr) *expr {
	switch op {
	case lexer.TokenEq:
		return c.compileEquality(lhs, rhs, true)
	case lexer.TokenNeq:
		return c.compileEquality(lhs, rhs, false)
	case lexer.TokenLt, lexer.TokenLte, lexer.TokenGt, lexer.TokenGte:
		return c.compileOrdering(op, lhs, rhs)
	case lexer.TokenPlus:
		return c.compileAdd(lhs, rhs)
	case lexer.TokenMinus:
		return c.compileArith(bytecode.OPSUB, lhs, rhs, func(a, b float64) float64 { return a - b })
	case lexer.TokenStar:
		return c.compileMul(lhs, rhs)
	case lexer.TokenSlash:
		return c.compileArith(bytecode.OPDIV, lhs, rhs, func(a, b float64) float64 { return a / b })
	case lexer.TokenPercent:
		return c.compileMod(lhs, rhs)
	case lexer.TokenPipe, lexer.TokenCaret, lexer.TokenAmp, lexer.TokenShl, lexer.TokenShr:
		return c.compileBitwise(op, lhs, rhs)
	default:
		c.fail("unsupported operator %q", op.String())
		panic("unreachable")
	}
}

func (c *Compiler) requireArithmetic(lhs, rhs *expr) {
	if isNilOrBoolConst(lhs) || isNilOrBoolConst(rhs) {
		c.fail("invalid operand type for arithmetic operator")
	}
}

func (c *Compiler) compileAdd(lhs, rhs *expr) *expr {
	if n1, ok1 := asNumber(lhs); ok1 {
		if n2, ok2 := asNumber(rhs); ok2 {
			return exprNumber(n1 + n2)
		}
	}
	if s1, ok1 := asString(lhs); ok1 {
		if s2, ok2 := asString(rhs); ok2 {
			return exprString(s1 + s2)
		}
	}
	// Mixed string/location operands don't fold: the location's runtime
	// type isn't known until ADD dispatches through the class operator.
	c.requireArithmetic(lhs, rhs)
	return c.emitArith(bytecode.OPADD, lhs, rhs)
}

func (c *Compiler) compileMul(lhs, rhs *expr) *expr {
	if s, okS := asString(lhs); okS {
		if n, okN := asNumber(rhs); okN {
			return exprString(repeatString(s, n))
		}
	}
	if s, okS := asString(rhs); okS {
		if n, okN := asNumber(lhs); okN {
			return exprString(repeatString(s, n))
		}
	}
	if n1, ok1 := asNumber(lhs); ok1 {
		if n2, ok2 := asNumber(rhs); ok2 {
			return exprNumber(n1 * n2)
		}
	}
	c.requireArithmetic(lhs, rhs)
	return c.emitArith(bytecode.OPMUL, lhs, rhs)
}

func repeatString(s string, n float64) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat(s, int(n))
}

func (c *Compiler) compileArith(op bytecode.Opcode, lhs, rhs *expr, fold func(a, b float64) float64) *expr {
	if n1, ok1 := asNumber(lhs); ok1 {
		if n2, ok2 := asNumber(rhs); ok2 {
			return exprNumber(fold(n1, n2))
		}
	}
	c.requireArithmetic(lhs, rhs)
	return c.emitArith(op, lhs, rhs)
}

func (c *Compiler) compileMod(lhs, rhs *expr) *expr {
	if n1, ok1 := asNumber(lhs); ok1 {
		if n2, ok2 := asNumber(rhs); ok2 {
			if int64(n2) == 0 {
				c.fail("modulo by zero")
			}
			return exprNumber(float64(int64(n1) % int64(n2)))
		}
	}
	c.requireArithmetic(lhs, rhs)
	return c.emitArith(bytecode.OPMOD, lhs, rhs)
}

func (c *Compiler) emitArith(op bytecode.Opcode, lhs, rhs *expr) *expr {
	b := c.toLoc(lhs)
	r := c.toLoc(rhs)
	reg := c.allocTemp()
	c.emit(bytecode.EncodeABC(op, reg, b, r))
	return exprLocation(int32(reg))
}

// compileBitwise folds bitwise operators at compile time via 64-bit integer
// truncation. koji's bytecode has no bitwise opcodes (spec.md §4.5's
// instruction table lists none), so a non-constant operand is a compile
// error rather than runtime-dispatched arithmetic.
func (c *Compiler) compileBitwise(op lexer.TokenType, lhs, rhs *expr) *expr {
	n1, ok1 := asNumber(lhs)
	n2, ok2 := asNumber(rhs)
	if !ok1 || !ok2 {
		c.fail("bitwise operator %q requires constant numeric operands", op.String())
	}
	a, b := int64(n1), int64(n2)
	var r int64
	switch op {
	case lexer.TokenPipe:
		r = a | b
	case lexer.TokenCaret:
		r = a ^ b
	case lexer.TokenAmp:
		r = a & b
	case lexer.TokenShl:
		r = a << uint64(b)
	case lexer.TokenShr:
		r = a >> uint64(b)
	}
	return exprNumber(float64(r))
}

func (c *Compiler) compileEquality(lhs, rhs *expr, wantEq bool) *expr {
	if lhs.isConst() && rhs.isConst() {
		return exprBool(constEqual(lhs, rhs) == wantEq)
	}
	lhsReg := c.toRegister(lhs)
	rhsLoc := c.toLoc(rhs)
	return &expr{kind: kindEq, lhsLoc: int32(lhsReg), rhsLoc: rhsLoc, positive: wantEq}
}

func (c *Compiler) compileOrdering(op lexer.TokenType, lhs, rhs *expr) *expr {
	if lhs.isConst() && rhs.isConst() {
		cmp, ok := constOrder(lhs, rhs)
		if !ok {
			c.fail("operands have no defined order")
		}
		return exprBool(orderHolds(op, cmp))
	}

	kind := kindLt
	a, b := lhs, rhs
	switch op {
	case lexer.TokenLt:
		kind, a, b = kindLt, lhs, rhs
	case lexer.TokenLte:
		kind, a, b = kindLte, lhs, rhs
	case lexer.TokenGt:
		kind, a, b = kindLt, rhs, lhs
	case lexer.TokenGte:
		kind, a, b = kindLte, rhs, lhs
	}

	lhsReg := c.toRegister(a)
	rhsLoc := c.toLoc(b)
	return &expr{kind: kind, lhsLoc: int32(lhsReg), rhsLoc: rhsLoc, positive: true}
}

func orderHolds(op lexer.TokenType, cmp int) bool {
	switch op {
	case lexer.TokenLt:
		return cmp < 0
	case lexer.TokenLte:
		return cmp <= 0
	case lexer.TokenGt:
		return cmp > 0
	default: // TokenGte
		return cmp >= 0
	}
}
