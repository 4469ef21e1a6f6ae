package compiler

import (
	"github.com/cmtristano/koji/pkg/bytecode"
	"github.com/cmtristano/koji/pkg/lexer"
)

// parseExpr parses one full expression at the lowest precedence level.
func (c *Compiler) parseExpr() *expr { return c.parseBinary(1) }

func (c *Compiler) parseUnary() *expr {
	switch c.cur.Type {
	case lexer.TokenBang:
		c.advance()
		return c.negate(c.parseUnary())
	case lexer.TokenMinus:
		c.advance()
		e := c.parseUnary()
		if n, ok := asNumber(e); ok {
			return exprNumber(-n)
		}
		return c.negateArith(e)
	default:
		return c.parsePostfix()
	}
}

// parsePostfix parses a primary expression followed by any chain of member
// access (`.ident`, `[expr]`) and call (`(args)`) suffixes.
func (c *Compiler) parsePostfix() *expr {
	e := c.parsePrimary()
	for {
		switch c.cur.Type {
		case lexer.TokenDot:
			c.advance()
			name := c.expect(lexer.TokenIdentifier, "member name").Literal
			if c.cur.Type == lexer.TokenLParen {
				e = c.parseCall(e, name)
			} else {
				e = c.memberAccess(e, exprLocation(c.internString(name)))
			}
		case lexer.TokenLBracket:
			c.advance()
			key := c.parseExpr()
			c.expect(lexer.TokenRBracket, "]")
			e = c.memberAccess(e, key)
		case lexer.TokenLParen:
			e = c.parseCall(e, "")
		default:
			return e
		}
	}
}

// memberAccess builds a GET of recv[key], carrying an lvalue so the result
// can also appear on an assignment's left-hand side.
func (c *Compiler) memberAccess(recv *expr, key *expr) *expr {
	baseReg := c.toRegister(recv)
	keyLoc := c.toLoc(key)
	reg := c.allocTemp()
	c.emit(bytecode.EncodeABC(bytecode.OPGET, reg, int32(baseReg), keyLoc))
	result := exprLocation(int32(reg))
	result.lv = &lvalue{isMember: true, baseReg: baseReg, keyLoc: keyLoc}
	return result
}

// parseCall parses a parenthesized argument list and emits a call. method,
// when non-empty, names an MCALL's method against recv's current value
// (already materialized as the receiver register); otherwise recv itself
// must hold a closure and a plain CALL is emitted.
func (c *Compiler) parseCall(recv *expr, method string) *expr {
	c.expect(lexer.TokenLParen, "(")

	// Reserve one register for the receiver/closure, then pack arguments
	// into the immediately following, contiguous registers.
	recvSlot := c.allocTemp()
	c.emitMov(recvSlot, c.toLoc(recv))
	argsBase := recvSlot + 1

	argc := 0
	if c.cur.Type != lexer.TokenRParen {
		for {
			argReg := c.allocTemp()
			argMark := c.sc.mark()
			c.emitMov(argReg, c.toLoc(c.parseExpr()))
			c.sc.release(argMark)
			argc++
			if !c.accept(lexer.TokenComma) {
				break
			}
		}
	}
	c.expect(lexer.TokenRParen, ")")

	if method != "" {
		methodLoc := c.internString(method)
		c.emit(bytecode.EncodeABC(bytecode.OPMCALL, argsBase, methodLoc, int32(argc)))
	} else {
		c.emit(bytecode.EncodeABC(bytecode.OPCALL, argsBase, int32(recvSlot), int32(argc)))
	}
	// The call's result lands at its args-start register (spec.md §4.7's
	// CALL/MCALL write their return value where the argument list began).
	return exprLocation(int32(argsBase))
}

func (c *Compiler) parsePrimary() *expr {
	tok := c.cur
	switch tok.Type {
	case lexer.TokenNil:
		c.advance()
		return exprNil()
	case lexer.TokenTrue:
		c.advance()
		return exprBool(true)
	case lexer.TokenFalse:
		c.advance()
		return exprBool(false)
	case lexer.TokenNumber:
		c.advance()
		return exprNumber(tok.Number)
	case lexer.TokenString:
		c.advance()
		return exprString(tok.Literal)
	case lexer.TokenThis:
		c.advance()
		reg := c.allocTemp()
		c.emit(bytecode.EncodeABx(bytecode.OPTHIS, reg, 0))
		return exprLocation(int32(reg))
	case lexer.TokenGlobals:
		return c.parseGlobalsAccess()
	case lexer.TokenIdentifier:
		c.advance()
		return c.resolveIdentifier(tok.Literal)
	case lexer.TokenLParen:
		c.advance()
		e := c.parseExpr()
		c.expect(lexer.TokenRParen, ")")
		return e
	case lexer.TokenLBrace:
		return c.parseTableLiteral()
	case lexer.TokenFunc:
		return c.parseFunctionLiteral()
	default:
		c.fail("unexpected token %q", tok.Literal)
		panic("unreachable")
	}
}

// parseGlobalsAccess implements the Open Question resolution: `globals` is
// only legal immediately followed by `.ident` or `[const-string]`, compiling
// directly to GETGLOB/SETGLOB with that name as the key constant.
func (c *Compiler) parseGlobalsAccess() *expr {
	c.advance()
	var key int32
	switch c.cur.Type {
	case lexer.TokenDot:
		c.advance()
		name := c.expect(lexer.TokenIdentifier, "global name").Literal
		key = c.internString(name)
	case lexer.TokenLBracket:
		c.advance()
		if c.cur.Type != lexer.TokenString {
			c.fail("globals must be indexed by a constant name")
		}
		name := c.cur.Literal
		c.advance()
		c.expect(lexer.TokenRBracket, "]")
		key = c.internString(name)
	default:
		c.fail("globals must be indexed by a constant name")
	}

	reg := c.allocTemp()
	c.emit(bytecode.EncodeABx(bytecode.OPGETGLOB, reg, key))
	result := exprLocation(int32(reg))
	result.lv = &lvalue{isGlobal: true, keyConst: key}
	return result
}

// resolveIdentifier looks name up as a local first, falling back to an
// implicit global access (spec.md never requires declaring a global before
// reading it; the globals table is a plain hash map the GETGLOB/SETGLOB
// opcodes index directly).
func (c *Compiler) resolveIdentifier(name string) *expr {
	if reg, ok := c.sc.resolve(name); ok {
		result := exprLocation(int32(reg))
		result.lv = &lvalue{isLocal: true, reg: reg}
		return result
	}

	key := c.internString(name)
	reg := c.allocTemp()
	c.emit(bytecode.EncodeABx(bytecode.OPGETGLOB, reg, key))
	result := exprLocation(int32(reg))
	result.lv = &lvalue{isGlobal: true, keyConst: key}
	return result
}

// parseTableLiteral implements `{ key1: value1, ..., valueN }`: keyed
// entries use explicit syntax; positional entries auto-assign integer keys
// starting at 0, and an error is raised if a positional entry follows any
// keyed one (spec.md §4.6 "Table literal").
func (c *Compiler) parseTableLiteral() *expr {
	c.expect(lexer.TokenLBrace, "{")
	tableReg := c.allocTemp()
	c.emit(bytecode.EncodeABx(bytecode.OPNEWTABLE, tableReg, 0))

	nextIndex := 0
	sawKeyed := false
	for c.cur.Type != lexer.TokenRBrace {
		keyExpr, valExpr := c.parseTableEntry(&nextIndex, &sawKeyed)
		keyReg := c.toRegister(keyExpr)
		valLoc := c.toLoc(valExpr)
		c.emit(bytecode.EncodeABC(bytecode.OPSET, keyReg, int32(tableReg), valLoc))
		if !c.accept(lexer.TokenComma) {
			break
		}
	}
	c.expect(lexer.TokenRBrace, "}")
	return exprLocation(int32(tableReg))
}

func (c *Compiler) parseTableEntry(nextIndex *int, sawKeyed *bool) (key, val *expr) {
	if c.cur.Type == lexer.TokenIdentifier {
		// ident ':' value, unless the identifier is actually a bare
		// positional expression (no following colon).
		save := c.cur
		name := c.cur.Literal
		c.advance()
		if c.accept(lexer.TokenColon) {
			*sawKeyed = true
			return exprString(name), c.parseExpr()
		}
		// Not a keyed entry after all: re-parse the identifier as the
		// start of a positional expression.
		if *sawKeyed {
			c.fail("positional table entry after keyed entry")
		}
		idx := *nextIndex
		*nextIndex++
		val := c.continueExprFromIdentifier(save)
		return exprNumber(float64(idx)), val
	}
	if c.cur.Type == lexer.TokenLBracket {
		c.advance()
		k := c.parseExpr()
		c.expect(lexer.TokenRBracket, "]")
		c.expect(lexer.TokenColon, ":")
		*sawKeyed = true
		return k, c.parseExpr()
	}
	if *sawKeyed {
		c.fail("positional table entry after keyed entry")
	}
	idx := *nextIndex
	*nextIndex++
	return exprNumber(float64(idx)), c.parseExpr()
}

// continueExprFromIdentifier resumes expression parsing given an
// identifier token already consumed as a primary (used when a table
// literal's lookahead for `ident:` turns out not to be a keyed entry).
func (c *Compiler) continueExprFromIdentifier(tok lexer.Token) *expr {
	e := c.resolveIdentifier(tok.Literal)
	e = c.postfixFrom(e)
	return c.binaryFrom(e, 1)
}

func (c *Compiler) postfixFrom(e *expr) *expr {
	for {
		switch c.cur.Type {
		case lexer.TokenDot:
			c.advance()
			name := c.expect(lexer.TokenIdentifier, "member name").Literal
			if c.cur.Type == lexer.TokenLParen {
				e = c.parseCall(e, name)
			} else {
				e = c.memberAccess(e, exprLocation(c.internString(name)))
			}
		case lexer.TokenLBracket:
			c.advance()
			key := c.parseExpr()
			c.expect(lexer.TokenRBracket, "]")
			e = c.memberAccess(e, key)
		case lexer.TokenLParen:
			e = c.parseCall(e, "")
		default:
			return e
		}
	}
}

func (c *Compiler) binaryFrom(lhs *expr, minPrec int) *expr {
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

// parseFunctionLiteral parses `func(params){body}` / `func(params)=>expr`,
// compiling the body into a fresh nested Prototype (spec.md §4.6 "Function
// compilation").
func (c *Compiler) parseFunctionLiteral() *expr {
	c.advance() // 'func'
	c.expect(lexer.TokenLParen, "(")

	child := bytecode.New("")
	childIdx := c.proto.AddProto(child)

	c.protoStack = append(c.protoStack, c.proto)
	c.scopeStack = append(c.scopeStack, c.sc)
	c.proto = child
	c.sc = newScope()
	numConsts, strConsts := c.numConsts, c.strConsts
	c.numConsts, c.strConsts = make(map[uint64]int32), make(map[string]int32)

	if c.cur.Type != lexer.TokenRParen {
		for {
			name := c.expect(lexer.TokenIdentifier, "parameter name").Literal
			c.sc.declare(c.proto, name)
			child.NArgs++
			if !c.accept(lexer.TokenComma) {
				break
			}
		}
	}
	c.expect(lexer.TokenRParen, ")")

	if c.accept(lexer.TokenArrow) {
		val := c.parseExpr()
		loc := c.toLoc(val)
		c.emitMov(0, loc)
		c.emitRet(0, 1)
	} else {
		c.expect(lexer.TokenLBrace, "{")
		for c.cur.Type != lexer.TokenRBrace && c.cur.Type != lexer.TokenEOF {
			c.compileStatement()
		}
		c.expect(lexer.TokenRBrace, "}")
		c.emitRet(0, 0)
	}

	c.proto = c.protoStack[len(c.protoStack)-1]
	c.protoStack = c.protoStack[:len(c.protoStack)-1]
	c.sc = c.scopeStack[len(c.scopeStack)-1]
	c.scopeStack = c.scopeStack[:len(c.scopeStack)-1]
	c.numConsts, c.strConsts = numConsts, strConsts

	reg := c.allocTemp()
	c.emit(bytecode.EncodeABx(bytecode.OPCLOSURE, reg, int32(childIdx)))
	return exprLocation(int32(reg))
}
