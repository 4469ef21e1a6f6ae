package compiler

import (
	"github.com/cmtristano/koji/pkg/bytecode"
	"github.com/cmtristano/koji/pkg/lexer"
)

// compileStatement dispatches on the current token to one of the statement
// forms spec.md §4.6 lists, consuming the statement's trailing terminator.
func (c *Compiler) compileStatement() {
	switch c.cur.Type {
	case lexer.TokenVar:
		c.compileVarDecl()
	case lexer.TokenIf:
		c.compileIf()
	case lexer.TokenWhile:
		c.compileWhile()
	case lexer.TokenDo:
		c.compileDoWhile()
	case lexer.TokenFor:
		c.compileForIn()
	case lexer.TokenReturn:
		c.compileReturn()
	case lexer.TokenThrow:
		c.compileThrow()
	case lexer.TokenDebug:
		c.compileDebug()
	case lexer.TokenLBrace:
		c.compileBlock()
	default:
		c.compileExprStatement()
	}
}

func (c *Compiler) compileBlock() {
	c.expect(lexer.TokenLBrace, "{")
	c.sc.enter()
	for c.cur.Type != lexer.TokenRBrace && c.cur.Type != lexer.TokenEOF {
		c.compileStatement()
	}
	c.sc.leave()
	c.expect(lexer.TokenRBrace, "}")
}

// compileVarDecl parses `var <id> [= expr], ...`.
func (c *Compiler) compileVarDecl() {
	c.advance()
	for {
		name := c.expect(lexer.TokenIdentifier, "variable name").Literal
		reg := c.sc.declare(c.proto, name)
		if c.accept(lexer.TokenAssign) {
			val := c.parseExpr()
			c.emitMov(reg, c.toLoc(val))
		} else {
			c.emit(bytecode.EncodeABx(bytecode.OPLOADNIL, reg, int32(reg)))
		}
		if !c.accept(lexer.TokenComma) {
			break
		}
	}
	c.consumeStatementEnd()
}

// compileCondition parses a parenthesized condition and emits a TEST+JUMP
// that fires when the condition is false, returning the jump's index so
// the caller can patch it to wherever the false branch lands.
func (c *Compiler) compileCondition() int {
	c.expect(lexer.TokenLParen, "(")
	cond := c.parseExpr()
	c.expect(lexer.TokenRParen, ")")
	mark := c.sc.mark()
	reg := c.toRegister(cond)
	c.emit(bytecode.EncodeABx(bytecode.OPTEST, reg, 0)) // take next jump when false
	jumpIfFalse := c.emitJump()
	c.sc.release(mark)
	return jumpIfFalse
}

func (c *Compiler) compileIf() {
	c.advance()
	jumpToElse := c.compileCondition()
	c.compileStatementAsBlock()

	if c.cur.Type == lexer.TokenElse {
		jumpToEnd := c.emitJump()
		c.patchJump(jumpToElse, c.here())
		c.advance()
		if c.cur.Type == lexer.TokenIf {
			c.compileIf()
		} else {
			c.compileStatementAsBlock()
		}
		c.patchJump(jumpToEnd, c.here())
	} else {
		c.patchJump(jumpToElse, c.here())
	}
}

// compileStatementAsBlock compiles a single statement as a new lexical
// scope, matching `{ ... }`'s scoping even for a bare single statement.
func (c *Compiler) compileStatementAsBlock() {
	c.sc.enter()
	c.compileStatement()
	c.sc.leave()
}

func (c *Compiler) compileWhile() {
	c.advance()
	top := c.here()
	jumpOut := c.compileCondition()
	c.compileStatementAsBlock()
	c.patchJump(c.emitJump(), top)
	c.patchJump(jumpOut, c.here())
}

func (c *Compiler) compileDoWhile() {
	c.advance()
	top := c.here()
	c.compileStatementAsBlock()
	c.expect(lexer.TokenWhile, "while")
	c.expect(lexer.TokenLParen, "(")
	cond := c.parseExpr()
	c.expect(lexer.TokenRParen, ")")
	mark := c.sc.mark()
	reg := c.toRegister(cond)
	c.emit(bytecode.EncodeABx(bytecode.OPTEST, reg, 1))
	jumpBackToTop := c.emitJump()
	c.sc.release(mark)
	c.patchJump(jumpBackToTop, top)
	c.consumeStatementEnd()
}

// compileForIn implements `for (var <id> in expr) block` over a table
// value. It walks the table's live key slots with the host-only OPNEXT
// opcode, which plays the role a from-scratch VM `next`-style builtin
// would (supplement: spec.md §4.6 only requires this construct to parse,
// not to execute against any particular value kind).
func (c *Compiler) compileForIn() {
	c.advance()
	c.expect(lexer.TokenLParen, "(")
	c.expect(lexer.TokenVar, "var")
	name := c.expect(lexer.TokenIdentifier, "loop variable").Literal
	c.expect(lexer.TokenIn, "in")
	tableVal := c.parseExpr()
	c.expect(lexer.TokenRParen, ")")

	c.sc.enter()
	tableReg := c.sc.declare(c.proto, "")
	c.emitMov(tableReg, c.toLoc(tableVal))

	loopVarReg := c.sc.declare(c.proto, name)
	c.emit(bytecode.EncodeABx(bytecode.OPLOADNIL, loopVarReg, int32(loopVarReg)))

	// nilReg holds nil for an identity check against the loop variable.
	// OPTEST branches on truthiness, which would misread the live key
	// `false` as exhaustion; OPNEXT signals exhaustion with nil
	// specifically, so the check here must be nil-equality, not truthiness.
	nilReg := c.sc.declare(c.proto, "")
	c.emit(bytecode.EncodeABx(bytecode.OPLOADNIL, nilReg, int32(nilReg)))

	top := c.here()
	c.emit(bytecode.EncodeABC(bytecode.OPNEXT, loopVarReg, int32(tableReg), int32(loopVarReg)))
	c.emit(bytecode.EncodeABC(bytecode.OPEQ, loopVarReg, int32(nilReg), 1)) // take next jump when exhausted (nil)
	jumpOut := c.emitJump()

	c.compileStatementAsBlock()

	c.patchJump(c.emitJump(), top)
	c.patchJump(jumpOut, c.here())
	c.sc.leave()
}

func (c *Compiler) compileReturn() {
	c.advance()
	if c.atStatementEnd() {
		c.emitRet(0, 0)
		c.consumeStatementEnd()
		return
	}
	mark := c.sc.mark()
	base := c.sc.temp
	count := 0
	for {
		reg := c.allocTemp()
		valMark := c.sc.mark()
		val := c.parseExpr()
		c.emitMov(reg, c.toLoc(val))
		c.sc.release(valMark)
		count++
		if !c.accept(lexer.TokenComma) {
			break
		}
	}
	c.emitRet(base, count)
	c.sc.release(mark)
	c.consumeStatementEnd()
}

func (c *Compiler) compileThrow() {
	c.advance()
	val := c.parseExpr()
	loc := c.toLoc(val)
	c.emit(bytecode.EncodeABx(bytecode.OPTHROW, 0, loc))
	c.consumeStatementEnd()
}

func (c *Compiler) compileDebug() {
	c.advance()
	c.expect(lexer.TokenLParen, "(")
	base := c.sc.temp
	count := 0
	if c.cur.Type != lexer.TokenRParen {
		for {
			reg := c.allocTemp()
			valMark := c.sc.mark()
			val := c.parseExpr()
			c.emitMov(reg, c.toLoc(val))
			c.sc.release(valMark)
			count++
			if !c.accept(lexer.TokenComma) {
				break
			}
		}
	}
	c.expect(lexer.TokenRParen, ")")
	c.emit(bytecode.EncodeABx(bytecode.OPDEBUG, base, int32(count)))
	c.consumeStatementEnd()
}

// compileExprStatement parses an expression; if it is immediately followed
// by an assignment operator and the expression carries an lvalue, it
// compiles an assignment instead of discarding the value.
func (c *Compiler) compileExprStatement() {
	e := c.parseExpr()
	switch c.cur.Type {
	case lexer.TokenAssign:
		c.advance()
		c.assign(e, c.parseExpr())
	case lexer.TokenPlusEq, lexer.TokenMinusEq, lexer.TokenStarEq, lexer.TokenSlashEq:
		op := c.cur.Type
		c.advance()
		rhs := c.parseExpr()
		combined := c.applyBinary(compoundOp(op), e, rhs)
		c.assign(e, combined)
	default:
		c.toLoc(e)
	}
	c.consumeStatementEnd()
}

func compoundOp(op lexer.TokenType) lexer.TokenType {
	switch op {
	case lexer.TokenPlusEq:
		return lexer.TokenPlus
	case lexer.TokenMinusEq:
		return lexer.TokenMinus
	case lexer.TokenStarEq:
		return lexer.TokenStar
	default:
		return lexer.TokenSlash
	}
}

// assign writes val into the lvalue carried by target, reporting a compile
// error for any expression that isn't assignable (spec.md §4.6 "Errors":
// "lvalue that is not a local or indexing accessor").
func (c *Compiler) assign(target *expr, val *expr) {
	if target.lv == nil {
		c.fail("invalid assignment target")
	}
	lv := target.lv
	switch {
	case lv.isLocal:
		c.emitMov(lv.reg, c.toLoc(val))
	case lv.isGlobal:
		reg := c.toRegister(val)
		c.emit(bytecode.EncodeABx(bytecode.OPSETGLOB, reg, lv.keyConst))
	case lv.isMember:
		keyReg := c.toRegister(exprLocation(lv.keyLoc))
		valLoc := c.toLoc(val)
		c.emit(bytecode.EncodeABC(bytecode.OPSET, keyReg, int32(lv.baseReg), valLoc))
	default:
		c.fail("invalid assignment target")
	}
}
