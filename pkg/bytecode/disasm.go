package bytecode

import (
	"fmt"
	"strings"

	"github.com/cmtristano/koji/pkg/value"
)

// ConstFormatter renders a constant for disassembly; the bytecode package
// itself has no knowledge of object shapes (strings, tables), so the
// caller supplies one (pkg/vm wires in kstring-aware formatting).
type ConstFormatter func(v value.Value) string

// Disassemble renders p and every nested prototype as human-readable text,
// one instruction per line, in the traditional "offset  OP  operands"
// layout used for bytecode listings.
func (p *Prototype) Disassemble(fmtConst ConstFormatter) string {
	var b strings.Builder
	p.disassemble(&b, fmtConst, 0)
	return b.String()
}

func (p *Prototype) disassemble(b *strings.Builder, fmtConst ConstFormatter, depth int) {
	indent := strings.Repeat("  ", depth)
	fmt.Fprintf(b, "%sprototype %q (%d args, %d locals, %d consts)\n",
		indent, p.Name, p.NArgs, p.NLocals, len(p.Consts))

	for i, instr := range p.Instrs {
		fmt.Fprintf(b, "%s%4d  %s\n", indent, i, FormatInstr(instr, p, fmtConst))
	}

	for i, child := range p.Protos {
		fmt.Fprintf(b, "%s-- proto #%d --\n", indent, i)
		child.disassemble(b, fmtConst, depth+1)
	}
}

// FormatInstr renders a single instruction the same way Disassemble does,
// for callers (pkg/vm's Debugger) that want to print one instruction at a
// time rather than a whole prototype.
func FormatInstr(instr Instruction, p *Prototype, fmtConst ConstFormatter) string {
	op := instr.Op()
	switch op {
	case OPLOADNIL, OPMOV, OPNEG, OPUNM, OPCLOSURE, OPGETGLOB, OPSETGLOB,
		OPNEWTABLE, OPRET, OPTHROW, OPDEBUG:
		return fmt.Sprintf("%-8s A=%d Bx=%s", op, instr.A(), locString(instr.Bx(), p, fmtConst))
	case OPLOADBOOL, OPADD, OPSUB, OPMUL, OPDIV, OPMOD, OPTESTSET, OPEQ,
		OPLT, OPLTE, OPGET, OPSET, OPCALL, OPMCALL, OPPOW, OPNEXT:
		return fmt.Sprintf("%-8s A=%d B=%s C=%d", op, instr.A(), locString(instr.B(), p, fmtConst), instr.C())
	case OPTEST:
		return fmt.Sprintf("%-8s A=%d Bx=%d", op, instr.A(), instr.Bx())
	case OPJUMP:
		return fmt.Sprintf("%-8s Bx=%d", op, instr.BxJump())
	case OPTHIS:
		return fmt.Sprintf("%-8s A=%d", op, instr.A())
	default:
		return fmt.Sprintf("%-8s (raw=0x%08x)", op, uint32(instr))
	}
}

func locString(loc int32, p *Prototype, fmtConst ConstFormatter) string {
	if !IsConst(loc) {
		return fmt.Sprintf("R%d", loc)
	}
	idx := ConstIndex(loc)
	if idx < 0 || idx >= len(p.Consts) {
		return fmt.Sprintf("K%d<out-of-range>", idx)
	}
	if fmtConst != nil {
		return fmt.Sprintf("K%d(%s)", idx, fmtConst(p.Consts[idx]))
	}
	return fmt.Sprintf("K%d", idx)
}
