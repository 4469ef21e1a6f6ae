// Package bytecode defines koji's instruction format and the Prototype
// record the compiler emits into and the VM executes.
//
// Unlike a stack machine, koji is register-based: every instruction names
// its operands as locations in the current frame's slice of the value
// stack, biased so that non-negative locations are registers and negative
// locations are constant-pool indices (constant_index = -loc-1). A single
// 32-bit word carries an opcode plus up to three operands, packed one of
// four ways depending on what the opcode needs:
//
//	op:6 | A:8 | B:9 | C:9   three register/constant operands (ABC)
//	op:6 | A:8 | Bx:18       one register/constant operand plus a signed
//	                         18-bit extended operand (ABx)
//	op:6 | Bx:26             a signed jump offset, no register operand (Bx)
//
// The "two-operand ignored" shape the spec lists is just ABx with B unused.
package bytecode

import "fmt"

// Opcode is a koji instruction's operation code.
type Opcode uint8

const (
	// OPLOADNIL sets R(A..=Bx) to nil.
	OPLOADNIL Opcode = iota
	// OPLOADBOOL sets R(A) to bool(B) and skips C instructions.
	OPLOADBOOL
	// OPMOV copies R(Bx) (register or constant) into R(A).
	OPMOV
	// OPNEG writes the logical negation of R(Bx) into R(A).
	OPNEG
	// OPUNM writes the arithmetic negation of R(Bx) into R(A), via the
	// operand's class UNM operator if it is an object.
	OPUNM
	// OPADD writes R(B) + R(C) into R(A).
	OPADD
	// OPSUB writes R(B) - R(C) into R(A).
	OPSUB
	// OPMUL writes R(B) * R(C) into R(A).
	OPMUL
	// OPDIV writes R(B) / R(C) into R(A).
	OPDIV
	// OPMOD writes R(B) % R(C) into R(A), truncating both operands to i64
	// first.
	OPMOD
	// OPTESTSET conditionally moves R(B) into R(A) and branches.
	OPTESTSET
	// OPTEST branches on whether bool(R(A)) equals Bx.
	OPTEST
	// OPJUMP adds Bx to the program counter unconditionally.
	OPJUMP
	// OPEQ compares R(A) and R(B) for equality and branches against C.
	OPEQ
	// OPLT compares R(A) < R(B) and branches against C.
	OPLT
	// OPLTE compares R(A) <= R(B) and branches against C.
	OPLTE
	// OPCLOSURE writes a new closure over child prototype #Bx into R(A).
	OPCLOSURE
	// OPGETGLOB writes globals[K(Bx)] into R(A).
	OPGETGLOB
	// OPSETGLOB writes R(A) into globals[K(Bx)].
	OPSETGLOB
	// OPNEWTABLE writes a freshly allocated table into R(A).
	OPNEWTABLE
	// OPGET writes R(B)[R(C)] into R(A), via the receiver's class GET
	// operator.
	OPGET
	// OPSET writes R(C) into R(B)[R(A)], via the receiver's class SET
	// operator.
	OPSET
	// OPCALL calls the closure in R(B) with C arguments starting at R(A).
	OPCALL
	// OPMCALL calls the method named R(B) on receiver R(A-1), with C
	// arguments starting at R(A).
	OPMCALL
	// OPTHIS writes the current frame's receiver into R(A).
	OPTHIS
	// OPRET hands R(A) (nil when Bx is 0) to the caller's result slot and
	// pops the frame; values after the first of a multi-value return are
	// discarded.
	OPRET
	// OPTHROW raises a runtime error whose message is the string in R(Bx).
	OPTHROW
	// OPDEBUG prints R(A..A+Bx) as a diagnostic.
	OPDEBUG
	// OPPOW raises R(B) to the power R(C). Neither the compiler nor any
	// builtin emits it; the VM executes it if it appears in a prototype.
	OPPOW
	// OPNEXT writes the table R(B)'s live key following R(C) into R(A) (nil
	// to start, nil again once exhausted). Backs `for (var k in t)`; no
	// surface spelling reaches it directly.
	OPNEXT

	opCount
)

var opcodeNames = [opCount]string{
	OPLOADNIL:  "LOADNIL",
	OPLOADBOOL: "LOADBOOL",
	OPMOV:      "MOV",
	OPNEG:      "NEG",
	OPUNM:      "UNM",
	OPADD:      "ADD",
	OPSUB:      "SUB",
	OPMUL:      "MUL",
	OPDIV:      "DIV",
	OPMOD:      "MOD",
	OPTESTSET:  "TESTSET",
	OPTEST:     "TEST",
	OPJUMP:     "JUMP",
	OPEQ:       "EQ",
	OPLT:       "LT",
	OPLTE:      "LTE",
	OPCLOSURE:  "CLOSURE",
	OPGETGLOB:  "GETGLOB",
	OPSETGLOB:  "SETGLOB",
	OPNEWTABLE: "NEWTABLE",
	OPGET:      "GET",
	OPSET:      "SET",
	OPCALL:     "CALL",
	OPMCALL:    "MCALL",
	OPTHIS:     "THIS",
	OPRET:      "RET",
	OPTHROW:    "THROW",
	OPDEBUG:    "DEBUG",
	OPPOW:      "POW",
	OPNEXT:     "NEXT",
}

func (op Opcode) String() string {
	if int(op) < len(opcodeNames) && opcodeNames[op] != "" {
		return opcodeNames[op]
	}
	return fmt.Sprintf("OP(%d)", op)
}

// Operand range limits (spec.md §4.5).
const (
	MaxA  = 255
	MinBC = -256
	MaxBC = 255
	MinBx = -131072
	MaxBx = 131071
)

// Instruction is one packed 32-bit koji instruction. Decoding always
// extracts all three operand shapes; which ones are meaningful depends on
// the opcode, exactly as in the reference bit layout.
type Instruction uint32

const (
	shiftOp = 26
	maskOp  = 0x3f

	shiftA = 18
	maskA  = 0xff

	shiftB = 9
	maskB  = 0x1ff

	maskC = 0x1ff

	maskBx = 0x3ffff
)

// EncodeABC packs an opcode with three register/constant operands.
func EncodeABC(op Opcode, a int, b, c int32) Instruction {
	return Instruction(uint32(op)<<shiftOp | uint32(a&maskA)<<shiftA |
		uint32(b&maskB)<<shiftB | uint32(c&maskC))
}

// EncodeABx packs an opcode with one register/constant operand A and a wider
// signed operand Bx.
func EncodeABx(op Opcode, a int, bx int32) Instruction {
	return Instruction(uint32(op)<<shiftOp | uint32(a&maskA)<<shiftA | uint32(bx&maskBx))
}

// EncodeBx packs an opcode with only a signed jump-offset operand.
func EncodeBx(op Opcode, bx int32) Instruction {
	return Instruction(uint32(op)<<shiftOp | uint32(bx&0x3ffffff))
}

// Op extracts the opcode.
func (i Instruction) Op() Opcode { return Opcode(uint32(i) >> shiftOp & maskOp) }

// A extracts the ABC/ABx operand A, an unsigned register index.
func (i Instruction) A() int { return int(uint32(i) >> shiftA & maskA) }

// B extracts the ABC operand B as a signed 9-bit location.
func (i Instruction) B() int32 { return signExtend(uint32(i)>>shiftB&maskB, 9) }

// C extracts the ABC operand C as a signed 9-bit location.
func (i Instruction) C() int32 { return signExtend(uint32(i)&maskC, 9) }

// Bx extracts the ABx operand Bx as a signed 18-bit location.
func (i Instruction) Bx() int32 { return signExtend(uint32(i)&maskBx, 18) }

// BxJump extracts the Bx-only encoding's 26-bit signed jump offset.
func (i Instruction) BxJump() int32 { return signExtend(uint32(i)&0x3ffffff, 26) }

func signExtend(bits uint32, width uint) int32 {
	shift := 32 - width
	return int32(bits<<shift) >> shift
}

// IsConst reports whether a biased location refers to the constant pool
// rather than a register (spec.md §3: "negative values refer to constants").
func IsConst(loc int32) bool { return loc < 0 }

// ConstIndex converts a negative biased location into a constant-pool index.
func ConstIndex(loc int32) int { return int(-loc - 1) }

// BiasConst converts a constant-pool index into its biased negative
// location.
func BiasConst(index int) int32 { return int32(-index - 1) }
