package asmamd64

import (
	"github.com/ktstephano-successor/dbtcore/amd64"
	"github.com/ktstephano-successor/dbtcore/hreg"
)

// maxInstrBytes is spec.md §4.4's per-instruction size bound: "No single
// host instruction may exceed 32 bytes in the emitted stream."
const maxInstrBytes = 32

// Assemble encodes a fully allocated instruction list (every operand a
// physical register — regalloc.Allocate's postcondition) into a
// contiguous, position-independent byte buffer (spec.md §4.4).
//
// Branch displacements are always encoded in the 1-byte (rel8) form —
// spec.md's "Conditional-over-sequence patterns... reserve a 1-byte
// displacement slot" — resolved via amd64.ILabel markers in a single
// forward pass: each IJcc/IJmp either finds its target label already
// placed (backward branch) or gets queued as a patch resolved after the
// sweep completes. A displacement that doesn't fit 8 bits, or a label
// referenced but never defined, is an invariant violation: it means the
// selector produced a branch further than this encoding can express, not
// a condition the caller can recover from.
func Assemble(instrs []amd64.Instr) []byte {
	b := &buf{labels: make(map[int]int)}

	for _, in := range instrs {
		start := len(b.out)
		encodeOne(b, in)
		n := len(b.out) - start
		if n > maxInstrBytes {
			fail("instruction %v encoded to %d bytes, exceeding the %d-byte bound", in, n, maxInstrBytes)
		}
	}

	for _, p := range b.patches {
		target, ok := b.labels[p.label]
		if !ok {
			fail("branch targets label %d, which was never defined", p.label)
		}
		disp := target - p.instrEnd
		if !fits8(int32(disp)) {
			fail("branch displacement %d to label %d overflows the reserved 1-byte field", disp, p.label)
		}
		b.out[p.pos] = byte(int8(disp))
	}

	return b.out
}

// branchTarget resolves or queues a branch instruction's rel8 byte: emits
// a placeholder, and either patches it immediately (the label was already
// placed — a backward branch) or records a patch for Assemble's final pass
// (a forward branch, the common case for side exits).
func (b *buf) branchTarget(label int) {
	pos := len(b.out)
	b.emit8(0) // placeholder
	end := len(b.out)
	if off, ok := b.labels[label]; ok {
		disp := off - end
		if !fits8(int32(disp)) {
			fail("branch displacement %d to label %d overflows the reserved 1-byte field", disp, label)
		}
		b.out[pos] = byte(int8(disp))
		return
	}
	b.patches = append(b.patches, patch{pos: pos, instrEnd: end, label: label})
}

func encodeOne(b *buf, in amd64.Instr) {
	switch in.Tag {
	case amd64.ILabel:
		b.labels[in.Target] = len(b.out)
	case amd64.IAluRMI:
		encodeAluRMI(b, in)
	case amd64.IAluMR:
		encodeAluMR(b, in)
	case amd64.IShift:
		encodeShift(b, in)
	case amd64.IMovRR:
		encodeMovRR(b, in)
	case amd64.IMovImm:
		encodeMovImm(b, in)
	case amd64.ILoad:
		encodeLoad(b, in)
	case amd64.IStore:
		encodeStore(b, in)
	case amd64.ILea:
		encodeLea(b, in)
	case amd64.ICmp:
		encodeCmpTest(b, in, true)
	case amd64.ITest:
		encodeCmpTest(b, in, false)
	case amd64.ISetCC:
		encodeSetCC(b, in)
	case amd64.ICMovCC:
		encodeCMovCC(b, in)
	case amd64.IJmp:
		b.emit8(0xEB)
		b.branchTarget(in.Target)
	case amd64.IJcc:
		b.emit8(0x70 | byte(in.CC))
		b.branchTarget(in.Target)
	case amd64.ICallIndirect:
		encodeCallIndirect(b)
	case amd64.IRet:
		b.emit8(0xC3)
	case amd64.IDiv:
		encodeDiv(b, in)
	case amd64.IFAluRR:
		encodeFAluRR(b, in)
	case amd64.IFCmp:
		encodeFCmp(b, in)
	case amd64.IFMovRR:
		encodeFMovRR(b, in)
	case amd64.IFMovQ:
		encodeFMovQ(b, in)
	case amd64.IUnary:
		encodeUnary(b, in)
	case amd64.ICdq:
		encodeCdq(b, in)
	case amd64.ICvtI2F:
		encodeCvtI2F(b, in)
	case amd64.ICvtF2I:
		encodeCvtF2I(b, in)
	case amd64.IMul:
		encodeMul(b, in)
	default:
		fail("unrecognized instruction tag %d in %v", in.Tag, in)
	}
}

// aluCodes is one AluOp's opcode quadruplet, named exactly as hdefs.c's
// local variables opc/opc_rr/subopc_imm/opc_imma: opc is "op reg, r/m"
// (reads memory), opcRR is "op r/m, reg" (writes memory/register — the
// direction regalloc's destructive dst-in-place convention needs),
// subopcImm is the ModRM /digit for the immediate forms (0x81/0x83).
// hdefs.c's table also carries ADC (/2) and SBB (/3), omitted here along
// with amd64.AluOp's corresponding values: see that type's doc comment.
var aluCodes = map[amd64.AluOp]struct{ opc, opcRR, subopcImm byte }{
	amd64.AluAdd: {0x03, 0x01, 0},
	amd64.AluOr:  {0x0B, 0x09, 1},
	amd64.AluAnd: {0x23, 0x21, 4},
	amd64.AluSub: {0x2B, 0x29, 5},
	amd64.AluXor: {0x33, 0x31, 6},
	amd64.AluCmp: {0x3B, 0x39, 7},
}

// widthPrefixREX emits the 0x66 operand-size override (16-bit) ahead of
// any REX byte, then a REX byte when width is 64-bit, when any operand
// indexes the extended register file (>=8), or when force is set.
// Byte-width opcodes (a distinct opcode, not a prefix) are selected by
// the caller.
func widthPrefixREX(b *buf, w amd64.Width, r, x, bb uint8, force bool) {
	if w == 2 {
		b.emit8(0x66)
	}
	wBit := uint8(0)
	if w == 8 {
		wBit = 1
	}
	if wBit == 1 || r == 1 || x == 1 || bb == 1 || force {
		b.emit8(rex(wBit, r, x, bb))
	}
}

func encodeAluRMI(b *buf, in amd64.Instr) {
	codes := aluCodes[in.Alu]
	dst := in.Dst
	switch in.Src.Tag {
	case amd64.OperandReg:
		src := in.Src.Reg
		widthPrefixREX(b, in.W, amd64.RegBit3(src), 0, amd64.RegBit3(dst), in.W == 1)
		opc := codes.opcRR
		if in.W == 1 {
			opc &^= 1
		}
		b.emit8(opc)
		b.emit8(modRM(3, amd64.RegNum(src), amd64.RegNum(dst)))
	case amd64.OperandMem:
		x, bb := rexForAddr(in.Src.Mem)
		widthPrefixREX(b, in.W, amd64.RegBit3(dst), x, bb, in.W == 1)
		opc := codes.opc
		if in.W == 1 {
			opc &^= 1
		}
		b.emit8(opc)
		b.emitAddr(dst, in.Src.Mem)
	case amd64.OperandImm:
		widthPrefixREX(b, in.W, 0, 0, amd64.RegBit3(dst), in.W == 1)
		if fits8(in.Src.Imm) && in.W != 1 {
			b.emit8(0x83)
			b.emit8(modRM(3, codes.subopcImm, amd64.RegNum(dst)))
			b.emit8(byte(in.Src.Imm))
		} else if in.W == 1 {
			b.emit8(0x80)
			b.emit8(modRM(3, codes.subopcImm, amd64.RegNum(dst)))
			b.emit8(byte(in.Src.Imm))
		} else {
			b.emit8(0x81)
			b.emit8(modRM(3, codes.subopcImm, amd64.RegNum(dst)))
			b.emit32(uint32(in.Src.Imm))
		}
	}
}

func encodeAluMR(b *buf, in amd64.Instr) {
	codes := aluCodes[in.Alu]
	src := in.Src.Reg
	x, bb := rexForAddr(in.Mem)
	widthPrefixREX(b, in.W, amd64.RegBit3(src), x, bb, in.W == 1)
	opc := codes.opcRR
	if in.W == 1 {
		opc &^= 1
	}
	b.emit8(opc)
	b.emitAddr(src, in.Mem)
}

func encodeShift(b *buf, in amd64.Instr) {
	var subopc byte
	switch in.Shift {
	case amd64.ShiftShl:
		subopc = 4
	case amd64.ShiftShrU:
		subopc = 5
	case amd64.ShiftSarS:
		subopc = 7
	}
	widthPrefixREX(b, in.W, 0, 0, amd64.RegBit3(in.Dst), in.W == 1)
	if in.ShiftAmt.Tag == amd64.OperandReg {
		// ShiftAmt is always %cl by construction (isel.lowerShift).
		opc := byte(0xD3)
		if in.W == 1 {
			opc = 0xD2
		}
		b.emit8(opc)
		b.emit8(modRM(3, subopc, amd64.RegNum(in.Dst)))
		return
	}
	opc := byte(0xC1)
	if in.W == 1 {
		opc = 0xC0
	}
	b.emit8(opc)
	b.emit8(modRM(3, subopc, amd64.RegNum(in.Dst)))
	b.emit8(byte(in.ShiftAmt.Imm))
}

func encodeMovRR(b *buf, in amd64.Instr) {
	src := in.Src.Reg
	switch in.Ext {
	case amd64.ExtNone:
		widthPrefixREX(b, in.W, amd64.RegBit3(src), 0, amd64.RegBit3(in.Dst), in.W == 1)
		opc := byte(0x89)
		if in.W == 1 {
			opc = 0x88
		}
		b.emit8(opc)
		b.emit8(modRM(3, amd64.RegNum(src), amd64.RegNum(in.Dst)))
	case amd64.ExtZero:
		if in.SrcW == 4 && in.W == 8 {
			// A plain 32-bit mov zero-extends the upper 32 bits for free.
			widthPrefixREX(b, 4, amd64.RegBit3(src), 0, amd64.RegBit3(in.Dst), false)
			b.emit8(0x89)
			b.emit8(modRM(3, amd64.RegNum(src), amd64.RegNum(in.Dst)))
			return
		}
		widthPrefixREX(b, in.W, amd64.RegBit3(in.Dst), 0, amd64.RegBit3(src), false)
		b.emit8(0x0F)
		if in.SrcW == 1 {
			b.emit8(0xB6)
		} else {
			b.emit8(0xB7)
		}
		b.emit8(modRM(3, amd64.RegNum(in.Dst), amd64.RegNum(src)))
	case amd64.ExtSign:
		if in.SrcW == 4 {
			b.emit8(rex(1, amd64.RegBit3(in.Dst), 0, amd64.RegBit3(src)))
			b.emit8(0x63)
			b.emit8(modRM(3, amd64.RegNum(in.Dst), amd64.RegNum(src)))
			return
		}
		widthPrefixREX(b, in.W, amd64.RegBit3(in.Dst), 0, amd64.RegBit3(src), false)
		b.emit8(0x0F)
		if in.SrcW == 1 {
			b.emit8(0xBE)
		} else {
			b.emit8(0xBF)
		}
		b.emit8(modRM(3, amd64.RegNum(in.Dst), amd64.RegNum(src)))
	}
}

// fitsSignExtend32 reports whether v's sign-extension from 32 to 64 bits
// reproduces v — the movl-vs-movabs boundary spec.md §4.4 names.
func fitsSignExtend32(v uint64) bool {
	return int64(int32(int64(v))) == int64(v)
}

func encodeMovImm(b *buf, in amd64.Instr) {
	if in.W == 8 {
		if fitsSignExtend32(in.Imm64) {
			b.emit8(rex(1, 0, 0, amd64.RegBit3(in.Dst)))
			b.emit8(0xC7)
			b.emit8(modRM(3, 0, amd64.RegNum(in.Dst)))
			b.emit32(uint32(in.Imm64))
			return
		}
		b.emit8(rex(1, 0, 0, amd64.RegBit3(in.Dst)))
		b.emit8(0xB8 + amd64.RegNum(in.Dst))
		b.emit64(in.Imm64)
		return
	}
	if amd64.RegBit3(in.Dst) == 1 {
		b.emit8(rex(0, 0, 0, 1))
	}
	switch in.W {
	case 1:
		b.emit8(0xB0 + amd64.RegNum(in.Dst))
		b.emit8(byte(in.Imm64))
	case 2:
		b.emit8(0x66)
		b.emit8(0xB8 + amd64.RegNum(in.Dst))
		var tmp [2]byte
		tmp[0] = byte(in.Imm64)
		tmp[1] = byte(in.Imm64 >> 8)
		b.out = append(b.out, tmp[:]...)
	default: // 4: zero-extends to 64 bits implicitly
		b.emit8(0xB8 + amd64.RegNum(in.Dst))
		b.emit32(uint32(in.Imm64))
	}
}

// encodeLoad/encodeStore carry both GPR and XMM traffic (isel's lowerStmt
// emits plain IStore/ILoad for F64 Get/Put/Store/Load alike, since spec.md's
// addressing-mode matcher is register-class-agnostic); the opcode family is
// chosen by the register's class rather than by a separate instruction tag.
func encodeLoad(b *buf, in amd64.Instr) {
	x, bb := rexForAddr(in.Mem)
	if in.Dst.Class() == amd64.Flt64 {
		b.emit8(0xF2)
		if amd64.RegBit3(in.Dst) == 1 || x == 1 || bb == 1 {
			b.emit8(rex(0, amd64.RegBit3(in.Dst), x, bb))
		}
		b.emit8(0x0F)
		b.emit8(0x10)
		b.emitAddr(in.Dst, in.Mem)
		return
	}
	switch in.W {
	case 8:
		b.emit8(rex(1, amd64.RegBit3(in.Dst), x, bb))
		b.emit8(0x8B)
	case 4:
		widthPrefixREX(b, 4, amd64.RegBit3(in.Dst), x, bb, false)
		b.emit8(0x8B)
	case 1, 2:
		widthPrefixREX(b, 4, amd64.RegBit3(in.Dst), x, bb, false)
		b.emit8(0x0F)
		if in.W == 1 {
			b.emit8(0xB6)
		} else {
			b.emit8(0xB7)
		}
	}
	b.emitAddr(in.Dst, in.Mem)
}

func encodeStore(b *buf, in amd64.Instr) {
	src := in.Src.Reg
	x, bb := rexForAddr(in.Mem)
	if src.Class() == amd64.Flt64 {
		b.emit8(0xF2)
		if amd64.RegBit3(src) == 1 || x == 1 || bb == 1 {
			b.emit8(rex(0, amd64.RegBit3(src), x, bb))
		}
		b.emit8(0x0F)
		b.emit8(0x11)
		b.emitAddr(src, in.Mem)
		return
	}
	widthPrefixREX(b, in.W, amd64.RegBit3(src), x, bb, in.W == 1)
	opc := byte(0x89)
	if in.W == 1 {
		opc = 0x88
	}
	b.emit8(opc)
	b.emitAddr(src, in.Mem)
}

func encodeLea(b *buf, in amd64.Instr) {
	x, bb := rexForAddr(in.Mem)
	b.emit8(rex(1, amd64.RegBit3(in.Dst), x, bb))
	b.emit8(0x8D)
	b.emitAddr(in.Dst, in.Mem)
}

// encodeCmpTest handles ICmp (isCmp) and ITest: both read Dst and Src and
// write only flags. Src is reg or imm in every sequence the selector
// actually emits (spec.md §4.2's lowerOperand never produces a memory
// comparison operand). ICmp goes through encodeAluRMI, which also
// encodes a memory Src; ITest encodes any non-register Src as an
// immediate.
func encodeCmpTest(b *buf, in amd64.Instr, isCmp bool) {
	if !isCmp {
		switch in.Src.Tag {
		case amd64.OperandReg:
			src := in.Src.Reg
			widthPrefixREX(b, in.W, amd64.RegBit3(src), 0, amd64.RegBit3(in.Dst), in.W == 1)
			opc := byte(0x85)
			if in.W == 1 {
				opc = 0x84
			}
			b.emit8(opc)
			b.emit8(modRM(3, amd64.RegNum(src), amd64.RegNum(in.Dst)))
		default:
			widthPrefixREX(b, in.W, 0, 0, amd64.RegBit3(in.Dst), in.W == 1)
			opc := byte(0xF7)
			if in.W == 1 {
				opc = 0xF6
			}
			b.emit8(opc)
			b.emit8(modRM(3, 0, amd64.RegNum(in.Dst)))
			if in.W == 1 {
				b.emit8(byte(in.Src.Imm))
			} else {
				b.emit32(uint32(in.Src.Imm))
			}
		}
		return
	}
	encodeAluRMI(b, amd64.Instr{Tag: amd64.IAluRMI, Alu: amd64.AluCmp, Dst: in.Dst, Src: in.Src, W: in.W})
}

func encodeSetCC(b *buf, in amd64.Instr) {
	if amd64.RegBit3(in.Dst) == 1 {
		b.emit8(rex(0, 0, 0, 1))
	} else {
		b.emit8(rex(0, 0, 0, 0))
	}
	b.emit8(0x0F)
	b.emit8(0x90 + byte(in.CC))
	b.emit8(modRM(3, 0, amd64.RegNum(in.Dst)))
}

func encodeCMovCC(b *buf, in amd64.Instr) {
	switch in.Src.Tag {
	case amd64.OperandReg:
		src := in.Src.Reg
		b.emit8(rex(1, amd64.RegBit3(in.Dst), 0, amd64.RegBit3(src)))
		b.emit8(0x0F)
		b.emit8(0x40 + byte(in.CC))
		b.emit8(modRM(3, amd64.RegNum(in.Dst), amd64.RegNum(src)))
	case amd64.OperandMem:
		x, bb := rexForAddr(in.Src.Mem)
		b.emit8(rex(1, amd64.RegBit3(in.Dst), x, bb))
		b.emit8(0x0F)
		b.emit8(0x40 + byte(in.CC))
		b.emitAddr(in.Dst, in.Src.Mem)
	}
}

func encodeCallIndirect(b *buf) {
	r11 := amd64.PInt(amd64.R11)
	b.emit8(rex(0, 0, 0, amd64.RegBit3(r11)))
	b.emit8(0xFF)
	b.emit8(modRM(3, 2, amd64.RegNum(r11)))
}

func encodeDiv(b *buf, in amd64.Instr) {
	subopc := byte(6)
	if !in.DivIsU {
		subopc = 7
	}
	switch in.Src.Tag {
	case amd64.OperandReg:
		src := in.Src.Reg
		widthPrefixREX(b, in.W, 0, 0, amd64.RegBit3(src), in.W == 1)
		opc := byte(0xF7)
		if in.W == 1 {
			opc = 0xF6
		}
		b.emit8(opc)
		b.emit8(modRM(3, subopc, amd64.RegNum(src)))
	case amd64.OperandMem:
		x, bb := rexForAddr(in.Src.Mem)
		widthPrefixREX(b, in.W, 0, x, bb, in.W == 1)
		opc := byte(0xF7)
		if in.W == 1 {
			opc = 0xF6
		}
		b.emit8(opc)
		b.emitAddr(hreg.PReg(in.Src.Mem.Base.Class(), uint32(subopc)), in.Src.Mem)
	}
}

func encodeCdq(b *buf, in amd64.Instr) {
	if in.W == 8 {
		b.emit8(rex(1, 0, 0, 0))
	}
	b.emit8(0x99)
}

func encodeMul(b *buf, in amd64.Instr) {
	src := in.Src.Reg
	widthPrefixREX(b, in.W, amd64.RegBit3(in.Dst), 0, amd64.RegBit3(src), false)
	b.emit8(0x0F)
	b.emit8(0xAF)
	b.emit8(modRM(3, amd64.RegNum(in.Dst), amd64.RegNum(src)))
}

func encodeUnary(b *buf, in amd64.Instr) {
	subopc := byte(2) // not
	if in.Unary == amd64.UnaryNeg {
		subopc = 3
	}
	widthPrefixREX(b, in.W, 0, 0, amd64.RegBit3(in.Dst), in.W == 1)
	opc := byte(0xF7)
	if in.W == 1 {
		opc = 0xF6
	}
	b.emit8(opc)
	b.emit8(modRM(3, subopc, amd64.RegNum(in.Dst)))
}

// Scalar-double SSE2 forms all share the F2 0F xx encoding shape (or 66 0F
// for ucomisd/movq), REX.W present only for the gpr<->xmm movq's 64-bit
// form and for a 64-bit integer operand of cvtsi2sd (source) or
// cvttsd2si (destination).

func encodeFAluRR(b *buf, in amd64.Instr) {
	src := in.Src.Reg
	b.emit8(0xF2)
	if amd64.RegBit3(in.Dst) == 1 || amd64.RegBit3(src) == 1 {
		b.emit8(rex(0, amd64.RegBit3(in.Dst), 0, amd64.RegBit3(src)))
	}
	b.emit8(0x0F)
	switch in.FAlu {
	case amd64.FAluAdd:
		b.emit8(0x58)
	case amd64.FAluSub:
		b.emit8(0x5C)
	case amd64.FAluMul:
		b.emit8(0x59)
	case amd64.FAluDiv:
		b.emit8(0x5E)
	}
	b.emit8(modRM(3, amd64.RegNum(in.Dst), amd64.RegNum(src)))
}

func encodeFCmp(b *buf, in amd64.Instr) {
	src := in.Src.Reg
	b.emit8(0x66)
	if amd64.RegBit3(in.Dst) == 1 || amd64.RegBit3(src) == 1 {
		b.emit8(rex(0, amd64.RegBit3(in.Dst), 0, amd64.RegBit3(src)))
	}
	b.emit8(0x0F)
	b.emit8(0x2E)
	b.emit8(modRM(3, amd64.RegNum(in.Dst), amd64.RegNum(src)))
}

func encodeFMovRR(b *buf, in amd64.Instr) {
	b.emit8(0xF2)
	switch in.Src.Tag {
	case amd64.OperandReg:
		src := in.Src.Reg
		if amd64.RegBit3(in.Dst) == 1 || amd64.RegBit3(src) == 1 {
			b.emit8(rex(0, amd64.RegBit3(in.Dst), 0, amd64.RegBit3(src)))
		}
		b.emit8(0x0F)
		b.emit8(0x10)
		b.emit8(modRM(3, amd64.RegNum(in.Dst), amd64.RegNum(src)))
	case amd64.OperandMem:
		x, bb := rexForAddr(in.Src.Mem)
		if amd64.RegBit3(in.Dst) == 1 || x == 1 || bb == 1 {
			b.emit8(rex(0, amd64.RegBit3(in.Dst), x, bb))
		}
		b.emit8(0x0F)
		b.emit8(0x10)
		b.emitAddr(in.Dst, in.Src.Mem)
	}
}

// encodeFMovQ moves the raw 64 bits between a GPR and an XMM register
// (0F 6E into xmm, 0F 7E out of xmm — both REX.W, both 66-prefixed).
func encodeFMovQ(b *buf, in amd64.Instr) {
	src := in.Src.Reg
	b.emit8(0x66)
	if in.MovQ == amd64.MovQToXMM {
		b.emit8(rex(1, amd64.RegBit3(in.Dst), 0, amd64.RegBit3(src)))
		b.emit8(0x0F)
		b.emit8(0x6E)
		b.emit8(modRM(3, amd64.RegNum(in.Dst), amd64.RegNum(src)))
		return
	}
	// MovQToGPR: xmm is the source per the instruction's own Src field,
	// but 0F 7E's ModRM reg field names the xmm operand and rm names the
	// GPR destination, the reverse of 6E's direction.
	b.emit8(rex(1, amd64.RegBit3(src), 0, amd64.RegBit3(in.Dst)))
	b.emit8(0x0F)
	b.emit8(0x7E)
	b.emit8(modRM(3, amd64.RegNum(src), amd64.RegNum(in.Dst)))
}

func encodeCvtI2F(b *buf, in amd64.Instr) {
	src := in.Src.Reg
	b.emit8(0xF2)
	w := uint8(0)
	if in.W == 8 {
		w = 1
	}
	b.emit8(rex(w, amd64.RegBit3(in.Dst), 0, amd64.RegBit3(src)))
	b.emit8(0x0F)
	b.emit8(0x2A)
	b.emit8(modRM(3, amd64.RegNum(in.Dst), amd64.RegNum(src)))
}

func encodeCvtF2I(b *buf, in amd64.Instr) {
	src := in.Src.Reg
	b.emit8(0xF2)
	w := uint8(0)
	if in.W == 8 {
		w = 1
	}
	b.emit8(rex(w, amd64.RegBit3(in.Dst), 0, amd64.RegBit3(src)))
	b.emit8(0x0F)
	b.emit8(0x2C)
	b.emit8(modRM(3, amd64.RegNum(in.Dst), amd64.RegNum(src)))
}
