package amd64

import (
	"fmt"

	"github.com/ktstephano-successor/dbtcore/hreg"
)

// AluOp is the closed set of AMD64 two-operand ALU opcodes the selector
// emits, modeled on original_source/priv/host-amd64/hdefs.c's AMD64AluOp
// tag. hdefs.c's tag also carries ADC/SBB (add/sub-with-carry), but no IR
// BinOp in this module's catalogue produces a carry-using arithmetic op
// (that belongs to a guest front end's flag-thunk lowering, out of scope
// per spec.md §1), so this set only covers what the selector actually
// tiles.
type AluOp uint8

const (
	AluAdd AluOp = iota
	AluSub
	AluAnd
	AluOr
	AluXor
	AluCmp
	AluTest
)

func (op AluOp) String() string {
	switch op {
	case AluAdd:
		return "add"
	case AluSub:
		return "sub"
	case AluAnd:
		return "and"
	case AluOr:
		return "or"
	case AluXor:
		return "xor"
	case AluCmp:
		return "cmp"
	case AluTest:
		return "test"
	default:
		return fmt.Sprintf("aluop(%d)", uint8(op))
	}
}

// ShiftOp is the closed set of shift/rotate opcodes.
type ShiftOp uint8

const (
	ShiftShl ShiftOp = iota
	ShiftShrU
	ShiftSarS
)

func (op ShiftOp) String() string {
	switch op {
	case ShiftShl:
		return "shl"
	case ShiftShrU:
		return "shr"
	case ShiftSarS:
		return "sar"
	default:
		return fmt.Sprintf("shiftop(%d)", uint8(op))
	}
}

// CC is the AMD64 condition-code set used by Jcc/SetCC/CMovCC, numbered to
// match the ISA's 4-bit condition field (original_source/priv/host-amd64/
// hdefs.c: AMD64CondCode).
type CC uint8

const (
	CCO  CC = iota // overflow
	CCNO           // not overflow
	CCB            // below (unsigned <)
	CCNB           // not below
	CCZ            // zero / equal
	CCNZ           // not zero / not equal
	CCBE           // below-or-equal (unsigned <=)
	CCNBE
	CCS // sign
	CCNS
	CCP // parity
	CCNP
	CCL  // less (signed <)
	CCNL
	CCLE // less-or-equal (signed <=)
	CCNLE
)

func (cc CC) String() string {
	names := [...]string{"o", "no", "b", "nb", "z", "nz", "be", "nbe", "s", "ns", "p", "np", "l", "nl", "le", "nle"}
	if int(cc) < len(names) {
		return names[cc]
	}
	return fmt.Sprintf("cc(%d)", uint8(cc))
}

// Negate returns the condition that holds exactly when cc does not.
func (cc CC) Negate() CC { return cc ^ 1 }

// Width is the operation width in bytes the selector picked for an
// instruction (1, 2, 4, or 8; 8 always requires REX.W).
type Width uint8

// FAluOp is the closed set of scalar-double SSE2 ALU opcodes.
type FAluOp uint8

const (
	FAluAdd FAluOp = iota
	FAluSub
	FAluMul
	FAluDiv
)

func (op FAluOp) String() string {
	switch op {
	case FAluAdd:
		return "addsd"
	case FAluSub:
		return "subsd"
	case FAluMul:
		return "mulsd"
	case FAluDiv:
		return "divsd"
	default:
		return fmt.Sprintf("faluop(%d)", uint8(op))
	}
}

// MovQDir selects which way IMovQ moves the raw 64 bits between a GPR and
// an XMM register (used to lower OpReinterpF64asI64/OpReinterpI64asF64).
type MovQDir uint8

const (
	MovQToXMM MovQDir = iota
	MovQToGPR
)

// InstrTag discriminates Instr's closed instruction-list, modeled directly
// on VEX's AMD64Instr C tagged union (original_source/priv/host-amd64/
// hdefs.c), per spec.md §9's preference for "dense integer discrimination...
// over virtual dispatch" in the host-instruction representation. hdefs.c's
// union also carries Push/Pop tags, used there by the stack-discipline
// parts of a guest front end's call/return lowering; nothing in this
// module's own operations (spec.md §4) ever needs the host stack to grow
// or shrink, so those tags have no tile here.
type InstrTag uint8

const (
	IAluRMI InstrTag = iota // dst := dst `op` src   (src: RMI, dst: reg)
	IAluMR                  // mem  := mem  `op` src  (src: reg; store-class alu)
	IShift                  // dst := dst `shiftop` (imm8 | %cl)
	IMovRR                  // zero/sign-extending or plain reg-reg move
	IMovImm                 // movabs (64-bit imm) or movl (32-bit imm, zero-extends)
	ILoad                   // dst := *addr
	IStore                  // *addr := src
	ILea                    // dst := &addr (address computation, no memory access)
	ICmp                    // flags := cmp(a, b)
	ITest                   // flags := test(a, b)
	ISetCC                  // dst8 := cc ? 1 : 0
	ICMovCC                 // dst := cc ? src : dst
	IJmp                    // unconditional branch, backpatchable displacement
	IJcc                    // conditional branch, backpatchable displacement
	ICallIndirect           // call *r11 (r11 pre-loaded with the callee address)
	IRet                    // tail return to the dispatch trampoline
	IDiv    // rdx:rax op src -> quotient in rax, remainder in rdx
	IFAluRR  // scalar-double SSE2 ALU: dst := dst `faluop` src
	IFCmp    // ucomisd: flags := cmp(a, b), NaN-aware (sets PF on unordered)
	IFMovRR  // movsd between XMM regs or XMM<->mem
	IFMovQ   // movq: 64 raw bits between a GPR and an XMM register
	IUnary   // dst := `unaryop` dst (not/neg, in place)
	ICdq     // sign-extend rax into rdx (cdq, or cqo at width 8, ahead of IDiv)
	ICvtI2F  // cvtsi2sd: dst(xmm) := (double)src(gpr)
	ICvtF2I  // cvttsd2si: dst(gpr) := (int64)src(xmm), truncating
	IMul     // two-operand imul: dst := dst * src
	ILabel   // zero-width marker: defines the branch target named by Target
)

// UnaryOp is the closed set of single-operand integer ALU opcodes.
type UnaryOp uint8

const (
	UnaryNot UnaryOp = iota
	UnaryNeg
)

func (op UnaryOp) String() string {
	if op == UnaryNot {
		return "not"
	}
	return "neg"
}

// MoveExt selects the extension discipline for IMovRR between differing
// widths (VEX's MOVZX8/16/32 and MOVSX8/16/32 families collapsed to one
// field plus a signed flag).
type MoveExt uint8

const (
	ExtNone MoveExt = iota // same width, plain move
	ExtZero
	ExtSign
)

// Instr is one selected-but-not-yet-allocated AMD64 instruction. Only the
// fields relevant to Tag are meaningful; this mirrors the C union's layout
// discipline without actually overlapping storage, which is unnecessary in
// Go and would only obscure which fields a given Tag reads.
type Instr struct {
	Tag InstrTag

	Alu   AluOp
	Shift ShiftOp
	CC    CC
	Ext   MoveExt
	FAlu  FAluOp
	MovQ  MovQDir
	Unary UnaryOp

	// SrcW is the source operand's width for a widening IMovRR (Ext ==
	// ExtZero/ExtSign); W holds the destination width in that case.
	SrcW Width

	W Width // 1, 2, 4, or 8

	// Register operands. Dst is always the sole write (except IStore, where
	// Dst is unused and Mem is the write target; and ICmp/ITest, which write
	// only flags).
	Dst hreg.Reg
	Src RMI // reg | mem | imm, per InstrTag

	// ShiftAmt: RI (register %cl or immediate); used only by IShift.
	ShiftAmt RI

	// Mem: used by ILoad/IStore/ILea/IAluMR in place of Src.Mem.
	Mem AMode

	// Imm64: full 64-bit immediate for IMovImm when it cannot fit in 32
	// bits (forces movabs rather than movl).
	Imm64 uint64

	// Target: for IJmp/IJcc, the id of the ILabel this branch targets; for
	// ILabel itself, the id it defines. Ids are assigned by the selector and
	// resolved to byte offsets by the assembler's two-pass backpatching
	// (spec.md §4.4), which tolerates instructions being dropped (e.g. move
	// coalescing) between selection and encoding since ids, not instruction
	// indices or byte offsets, are what travels through regalloc.
	Target  int
	IsCall  bool // IJmp: true for a tail call vs. a dispatch-trampoline jump
	DivIsU  bool // IDiv: true for unsigned division
}

// Defs returns the registers this instruction writes, for the register
// allocator's def/use analysis (spec.md §4.3).
func (in Instr) Defs() []hreg.Reg {
	switch in.Tag {
	case IAluRMI, IMovRR, IMovImm, ILoad, ILea, ISetCC, ICMovCC, IFAluRR, IFMovQ, IFMovRR,
		IUnary, IMul, ICvtI2F, ICvtF2I:
		return []hreg.Reg{in.Dst}
	case IDiv:
		return []hreg.Reg{PInt(RAX), PInt(RDX)} // quotient, remainder
	case ICdq:
		return []hreg.Reg{PInt(RDX)}
	default:
		return nil
	}
}

// Uses returns the registers this instruction reads.
func (in Instr) Uses() []hreg.Reg {
	var regs []hreg.Reg
	switch in.Tag {
	case IAluRMI:
		regs = append(regs, in.Dst)
		regs = append(regs, in.Src.Regs()...)
	case IAluMR:
		regs = append(regs, in.Mem.Regs()...)
		regs = append(regs, in.Src.Regs()...)
	case IShift:
		regs = append(regs, in.Dst)
		regs = append(regs, in.ShiftAmt.Regs()...)
	case IMovRR:
		regs = append(regs, in.Src.Regs()...)
	case ILoad, ILea:
		regs = append(regs, in.Mem.Regs()...)
	case IStore:
		regs = append(regs, in.Mem.Regs()...)
		regs = append(regs, in.Src.Regs()...)
	case ICmp, ITest:
		regs = append(regs, in.Dst)
		regs = append(regs, in.Src.Regs()...)
	case ICMovCC:
		regs = append(regs, in.Dst)
		regs = append(regs, in.Src.Regs()...)
	case IDiv:
		regs = append(regs, PInt(RAX), PInt(RDX))
		regs = append(regs, in.Src.Regs()...)
	case IFAluRR, IFCmp:
		regs = append(regs, in.Dst)
		regs = append(regs, in.Src.Regs()...)
	case IFMovRR:
		regs = append(regs, in.Src.Regs()...)
	case IFMovQ:
		regs = append(regs, in.Src.Regs()...)
	case IUnary:
		regs = append(regs, in.Dst)
	case IMul:
		regs = append(regs, in.Dst)
		regs = append(regs, in.Src.Regs()...)
	case ICdq:
		regs = append(regs, PInt(RAX))
	case ICvtI2F, ICvtF2I:
		regs = append(regs, in.Src.Regs()...)
	}
	return regs
}

// MapRegs rewrites every register this instruction reads or writes via
// remap, returning a new Instr. Used by the register allocator once it has
// assigned physical registers to virtuals (spec.md §4.3 "map_regs").
func (in Instr) MapRegs(remap func(hreg.Reg) hreg.Reg) Instr {
	out := in
	out.Dst = remap(in.Dst)
	out.Src = in.Src.mapRegs(remap)
	out.Mem = in.Mem.mapRegs(remap)
	out.ShiftAmt = in.ShiftAmt.mapRegs(remap)
	return out
}

// IsMove reports whether this instruction is a plain register-to-register
// copy, eligible for the allocator's move-coalescing pass (spec.md §4.3).
func (in Instr) IsMove() (hreg.Reg, hreg.Reg, bool) {
	if in.Tag == IMovRR && in.Ext == ExtNone && in.Src.Tag == OperandReg {
		return in.Dst, in.Src.Reg, true
	}
	if in.Tag == IFMovRR && in.Src.Tag == OperandReg {
		return in.Dst, in.Src.Reg, true
	}
	return hreg.Reg{}, hreg.Reg{}, false
}

func (in Instr) String() string {
	switch in.Tag {
	case IAluRMI:
		return fmt.Sprintf("%s%d %s, %s", in.Alu, in.W*8, in.Src, RegName(in.Dst))
	case IAluMR:
		return fmt.Sprintf("%s%d %s, %s", in.Alu, in.W*8, RegName(in.Src.Reg), in.Mem)
	case IShift:
		return fmt.Sprintf("%s%d %s, %s", in.Shift, in.W*8, in.ShiftAmt, RegName(in.Dst))
	case IMovRR:
		return fmt.Sprintf("mov(%d) %s, %s", in.Ext, in.Src, RegName(in.Dst))
	case IMovImm:
		return fmt.Sprintf("mov $%#x, %s", in.Imm64, RegName(in.Dst))
	case ILoad:
		return fmt.Sprintf("load%d %s, %s", in.W*8, in.Mem, RegName(in.Dst))
	case IStore:
		return fmt.Sprintf("store%d %s, %s", in.W*8, in.Src, in.Mem)
	case ILea:
		return fmt.Sprintf("lea %s, %s", in.Mem, RegName(in.Dst))
	case ICmp:
		return fmt.Sprintf("cmp %s, %s", in.Src, RegName(in.Dst))
	case ITest:
		return fmt.Sprintf("test %s, %s", in.Src, RegName(in.Dst))
	case ISetCC:
		return fmt.Sprintf("set%s %s", in.CC, RegName(in.Dst))
	case ICMovCC:
		return fmt.Sprintf("cmov%s %s, %s", in.CC, in.Src, RegName(in.Dst))
	case IJmp:
		return fmt.Sprintf("jmp L%d", in.Target)
	case IJcc:
		return fmt.Sprintf("j%s L%d", in.CC, in.Target)
	case ICallIndirect:
		return "call *%r11"
	case IRet:
		return "ret"
	case IDiv:
		kind := "idiv"
		if in.DivIsU {
			kind = "div"
		}
		return fmt.Sprintf("%s%d %s", kind, in.W*8, in.Src)
	case IFAluRR:
		return fmt.Sprintf("%s %s, %s", in.FAlu, in.Src, RegName(in.Dst))
	case IFCmp:
		return fmt.Sprintf("ucomisd %s, %s", in.Src, RegName(in.Dst))
	case IFMovRR:
		return fmt.Sprintf("movsd %s, %s", in.Src, RegName(in.Dst))
	case IFMovQ:
		if in.MovQ == MovQToXMM {
			return fmt.Sprintf("movq %s, %s", in.Src, RegName(in.Dst))
		}
		return fmt.Sprintf("movq %s, %s (to gpr)", in.Src, RegName(in.Dst))
	case IUnary:
		return fmt.Sprintf("%s%d %s", in.Unary, in.W*8, RegName(in.Dst))
	case ICdq:
		if in.W == 8 {
			return "cqo"
		}
		return "cdq"
	case ICvtI2F:
		return fmt.Sprintf("cvtsi2sd %s, %s", in.Src, RegName(in.Dst))
	case ICvtF2I:
		return fmt.Sprintf("cvttsd2si %s, %s", in.Src, RegName(in.Dst))
	case IMul:
		return fmt.Sprintf("imul%d %s, %s", in.W*8, in.Src, RegName(in.Dst))
	case ILabel:
		return fmt.Sprintf("L%d:", in.Target)
	default:
		return fmt.Sprintf("instr?(%d)", in.Tag)
	}
}
