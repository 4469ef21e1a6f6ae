// Package compiler implements koji's single-pass recursive-descent
// compiler: it consumes the lexer's token stream and emits bytecode
// directly into a bytecode.Prototype, without ever building an
// intermediate syntax tree (spec.md §4.6).
package compiler

import (
	"math"

	"github.com/cmtristano/koji/pkg/bytecode"
	"github.com/cmtristano/koji/pkg/class"
	"github.com/cmtristano/koji/pkg/kstring"
	"github.com/cmtristano/koji/pkg/lexer"
	"github.com/cmtristano/koji/pkg/value"
)

// Compiler holds all state for one compilation: the lexer, the prototype
// currently being emitted into, the stack of enclosing prototypes (for
// nested function literals), and the locals/temporaries scope.
type Compiler struct {
	lex *lexer.Lexer
	cur lexer.Token

	proto      *bytecode.Prototype
	protoStack []*bytecode.Prototype
	scopeStack []*scope
	sc         *scope

	classString *class.Class
	classTable  *class.Class

	numConsts map[uint64]int32
	strConsts map[string]int32
}

// New creates a Compiler reading from lex, interning string constants
// against classString and creating table literals against classTable.
func New(lex *lexer.Lexer, classString, classTable *class.Class) *Compiler {
	c := &Compiler{lex: lex, classString: classString, classTable: classTable}
	c.cur = lex.NextToken()
	return c
}

// Compile parses the full token stream as a top-level program and returns
// its compiled Prototype. Any lexical, syntactic, or semantic fault aborts
// via panic/recover and is returned as a *Error (spec.md §4.6 "Errors").
func (c *Compiler) Compile(name string) (proto *bytecode.Prototype, err error) {
	defer func() {
		if r := recover(); r != nil {
			if cerr, ok := r.(*Error); ok {
				err = cerr
				return
			}
			if lerr, ok := r.(*lexer.Error); ok {
				err = &Error{Loc: lerr.Loc, Message: lerr.Message}
				return
			}
			panic(r)
		}
	}()

	c.proto = bytecode.New(name)
	c.numConsts = make(map[uint64]int32)
	c.strConsts = make(map[string]int32)
	c.sc = newScope()

	for c.cur.Type != lexer.TokenEOF {
		c.compileStatement()
	}
	c.emitRet(0, 0)
	return c.proto, nil
}

func (c *Compiler) advance() { c.cur = c.lex.NextToken() }

func (c *Compiler) expect(tt lexer.TokenType, what string) lexer.Token {
	if c.cur.Type != tt {
		c.fail("expected %s, got %q", what, c.cur.Literal)
	}
	tok := c.cur
	c.advance()
	return tok
}

func (c *Compiler) accept(tt lexer.TokenType) bool {
	if c.cur.Type == tt {
		c.advance()
		return true
	}
	return false
}

// atStatementEnd reports whether the current token legally ends a
// statement: a semicolon, a closing brace, end of stream, or a preceding
// newline (spec.md §4.6 "End of statement").
func (c *Compiler) atStatementEnd() bool {
	return c.cur.Type == lexer.TokenSemi || c.cur.Type == lexer.TokenRBrace ||
		c.cur.Type == lexer.TokenEOF || c.cur.Newline
}

func (c *Compiler) consumeStatementEnd() {
	if c.cur.Type == lexer.TokenSemi {
		c.advance()
		return
	}
	if !c.atStatementEnd() {
		c.fail("expected end of statement, got %q", c.cur.Literal)
	}
}

// --- emission helpers -------------------------------------------------

func (c *Compiler) emit(instr bytecode.Instruction) int { return c.proto.Emit(instr) }

func (c *Compiler) emitMov(dst int, src int32) {
	if src >= 0 && int(src) == dst {
		return
	}
	c.emit(bytecode.EncodeABx(bytecode.OPMOV, dst, src))
}

func (c *Compiler) emitRet(start, count int) {
	c.emit(bytecode.EncodeABx(bytecode.OPRET, start, int32(count)))
}

// emitJump emits an unpatched JUMP and returns its index.
func (c *Compiler) emitJump() int { return c.emit(bytecode.EncodeBx(bytecode.OPJUMP, 0)) }

func (c *Compiler) patchJump(idx int, target int) {
	offset := int32(target - (idx + 1))
	c.proto.Patch(idx, bytecode.EncodeBx(bytecode.OPJUMP, offset))
}

func (c *Compiler) patchJumps(idxs []int, target int) {
	for _, idx := range idxs {
		c.patchJump(idx, target)
	}
}

func (c *Compiler) here() int { return c.proto.NextInstrIndex() }

func (c *Compiler) allocTemp() int { return c.sc.allocTemp(c.proto) }

// --- constant interning --------------------------------------------------

// internNumber returns the biased constant location of n, reusing an
// existing slot when the bit pattern already appears in the pool (spec.md
// §3 "Constants are interned by structural equality").
func (c *Compiler) internNumber(n float64) int32 {
	bits := math.Float64bits(n)
	if loc, ok := c.numConsts[bits]; ok {
		return loc
	}
	idx := len(c.proto.Consts)
	c.proto.Consts = append(c.proto.Consts, value.Number(n))
	loc := bytecode.BiasConst(idx)
	c.numConsts[bits] = loc
	return loc
}

// internString returns the biased constant location of s, creating and
// interning a kstring.String the first time s's content is seen.
func (c *Compiler) internString(s string) int32 {
	if loc, ok := c.strConsts[s]; ok {
		return loc
	}
	str := kstring.New(c.classString, s)
	idx := len(c.proto.Consts)
	c.proto.Consts = append(c.proto.Consts, str.Value())
	loc := bytecode.BiasConst(idx)
	c.strConsts[s] = loc
	return loc
}
