package isel

import (
	"github.com/ktstephano-successor/dbtcore/amd64"
	"github.com/ktstephano-successor/dbtcore/hreg"
	"github.com/ktstephano-successor/dbtcore/ir"
)

// lowerBinop tiles a pure Binop into a host-instruction sequence, per
// spec.md §4.2: "Integer binops → a two-operand host ALU instruction
// whose destination is a fresh virtual register; 3-address IR is
// realized by an explicit move into the destination before the
// operation."
func (s *selector) lowerBinop(b *ir.Binop) hreg.Reg {
	if cc, ok := cmpOpCC(b.Op); ok {
		return s.lowerCompareToBool(b.Op, cc, b.A, b.B)
	}

	switch b.Op {
	case ir.OpAdd8, ir.OpAdd16, ir.OpAdd32, ir.OpAdd64:
		return s.lowerAluRMI(amd64.AluAdd, b.A, b.B)
	case ir.OpSub8, ir.OpSub16, ir.OpSub32, ir.OpSub64:
		return s.lowerAluRMI(amd64.AluSub, b.A, b.B)
	case ir.OpAnd8, ir.OpAnd16, ir.OpAnd32, ir.OpAnd64:
		return s.lowerAluRMI(amd64.AluAnd, b.A, b.B)
	case ir.OpOr8, ir.OpOr16, ir.OpOr32, ir.OpOr64:
		return s.lowerAluRMI(amd64.AluOr, b.A, b.B)
	case ir.OpXor8, ir.OpXor16, ir.OpXor32, ir.OpXor64:
		return s.lowerAluRMI(amd64.AluXor, b.A, b.B)

	case ir.OpMul8, ir.OpMul16, ir.OpMul32, ir.OpMul64:
		return s.lowerMul(b.A, b.B)

	case ir.OpShl32, ir.OpShl64:
		return s.lowerShift(amd64.ShiftShl, b.A, b.B)
	case ir.OpShrU32, ir.OpShrU64:
		return s.lowerShift(amd64.ShiftShrU, b.A, b.B)
	case ir.OpSarS32, ir.OpSarS64:
		return s.lowerShift(amd64.ShiftSarS, b.A, b.B)

	case ir.OpDivU32, ir.OpDivU64:
		return s.lowerDiv(b.A, b.B, true)
	case ir.OpDivS32, ir.OpDivS64:
		return s.lowerDiv(b.A, b.B, false)

	case ir.OpAddF64:
		return s.lowerFAlu(amd64.FAluAdd, b.A, b.B)
	case ir.OpSubF64:
		return s.lowerFAlu(amd64.FAluSub, b.A, b.B)
	case ir.OpMulF64:
		return s.lowerFAlu(amd64.FAluMul, b.A, b.B)
	case ir.OpDivF64:
		return s.lowerFAlu(amd64.FAluDiv, b.A, b.B)

	case ir.OpCmpF64:
		return s.lowerCmpF64(b.A, b.B)

	default:
		fail("isel", "BinOp %v has no AMD64 tile", b.Op)
		panic("unreachable")
	}
}

// lowerAluRMI lowers a two-operand integer ALU op. The IR's 3-address
// shape (dst := a op b) is realized as: move a into a fresh dst vreg,
// then emit dst := dst op b in place (spec.md §4.2).
func (s *selector) lowerAluRMI(op amd64.AluOp, a, b ir.Expr) hreg.Reg {
	w := widthOf(a.Type())
	av := s.lowerExprToReg(a)
	dst := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: dst, Src: amd64.RMIReg(av), W: w})
	bv := s.lowerOperand(b)
	s.emit(amd64.Instr{Tag: amd64.IAluRMI, Alu: op, Dst: dst, Src: bv, W: w})
	return dst
}

// lowerMul lowers integer multiplication via the two-operand IMUL form,
// which (unlike the one-operand form needed for full 128-bit products)
// needs no rax/rdx pinning.
func (s *selector) lowerMul(a, b ir.Expr) hreg.Reg {
	w := widthOf(a.Type())
	av := s.lowerExprToReg(a)
	dst := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: dst, Src: amd64.RMIReg(av), W: w})
	bv := amd64.RMIReg(s.lowerExprToReg(b))
	s.emit(amd64.Instr{Tag: amd64.IMul, Dst: dst, Src: bv, W: w})
	return dst
}

// lowerShift lowers a shift/sar. A non-constant shift amount must be
// materialized physically in %cl, the only register the ISA permits for
// a variable shift count.
func (s *selector) lowerShift(op amd64.ShiftOp, a, amount ir.Expr) hreg.Reg {
	w := widthOf(a.Type())
	av := s.lowerExprToReg(a)
	dst := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: dst, Src: amd64.RMIReg(av), W: w})

	if ce, ok := amount.(ir.ConstExpr); ok {
		mask := uint64(w)*8 - 1
		s.emit(amd64.Instr{Tag: amd64.IShift, Shift: op, Dst: dst, ShiftAmt: amd64.RIImm(int32(ce.C.AsU64() & mask)), W: w})
		return dst
	}
	amtV := s.lowerExprToReg(amount)
	s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: amd64.PInt(amd64.RCX), Src: amd64.RMIReg(amtV), W: 8})
	s.emit(amd64.Instr{Tag: amd64.IShift, Shift: op, Dst: dst, ShiftAmt: amd64.RIReg(amd64.PInt(amd64.RCX)), W: w})
	return dst
}

// lowerDiv lowers integer division via the one-operand IDIV/DIV form,
// which mandates the dividend in rdx:rax and leaves quotient in rax,
// remainder in rdx (spec.md §4.2 "AMD64 integer division uses
// rax/rdx").
func (s *selector) lowerDiv(a, b ir.Expr, unsigned bool) hreg.Reg {
	w := widthOf(a.Type())
	av := s.lowerExprToReg(a)
	s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: amd64.PInt(amd64.RAX), Src: amd64.RMIReg(av), W: w})
	if unsigned {
		s.emit(amd64.Instr{Tag: amd64.IMovImm, Dst: amd64.PInt(amd64.RDX), Imm64: 0})
	} else {
		s.emit(amd64.Instr{Tag: amd64.ICdq, W: w})
	}
	bv := amd64.RMIReg(s.lowerExprToReg(b))
	s.emit(amd64.Instr{Tag: amd64.IDiv, Src: bv, W: w, DivIsU: unsigned})
	dst := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: dst, Src: amd64.RMIReg(amd64.PInt(amd64.RAX)), W: w})
	return dst
}

// lowerFAlu lowers a scalar-double SSE2 ALU op. SSE ALU instructions are
// destructive two-operand forms exactly like the integer ALU tile, so the
// same explicit-move-then-operate shape applies.
func (s *selector) lowerFAlu(op amd64.FAluOp, a, b ir.Expr) hreg.Reg {
	av := s.lowerExprToReg(a)
	dst := s.freshFlt()
	s.emit(amd64.Instr{Tag: amd64.IFMovRR, Dst: dst, Src: amd64.RMIReg(av)})
	bv := s.lowerExprToReg(b)
	s.emit(amd64.Instr{Tag: amd64.IFAluRR, FAlu: op, Dst: dst, Src: amd64.RMIReg(bv)})
	return dst
}

// lowerCmpF64 lowers spec.md's "IEEE unordered-aware compare" to an I32
// result: -1/0/1 per cmpF64, or 1 (unordered/NaN) reproduced via the
// parity flag ucomisd sets on an unordered comparison.
func (s *selector) lowerCmpF64(a, b ir.Expr) hreg.Reg {
	av := s.lowerExprToReg(a)
	bv := s.lowerExprToReg(b)
	s.emit(amd64.Instr{Tag: amd64.IFCmp, Dst: av, Src: amd64.RMIReg(bv)})

	cf := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.ISetCC, CC: amd64.CCB, Dst: cf, W: 1})
	zf := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.ISetCC, CC: amd64.CCZ, Dst: zf, W: 1})
	pf := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.ISetCC, CC: amd64.CCP, Dst: pf, W: 1})

	// ucomisd sets CF for both "below" and "unordered" (a NaN operand), and
	// ZF for both "equal" and "unordered" too; PF is set only on the
	// unordered case, so a true less-than or true equal additionally needs
	// PF clear. The default below already covers both "greater" and
	// "unordered" (cmpF64's "unordered folds to greater" rule), so neither
	// needs its own check.
	notPF := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovImm, Dst: notPF, Imm64: 1})
	s.emit(amd64.Instr{Tag: amd64.IAluRMI, Alu: amd64.AluXor, Dst: notPF, Src: amd64.RMIReg(pf), W: 1})
	lt := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: lt, Src: amd64.RMIReg(cf), W: 1})
	s.emit(amd64.Instr{Tag: amd64.IAluRMI, Alu: amd64.AluAnd, Dst: lt, Src: amd64.RMIReg(notPF), W: 1})
	eq := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: eq, Src: amd64.RMIReg(zf), W: 1})
	s.emit(amd64.Instr{Tag: amd64.IAluRMI, Alu: amd64.AluAnd, Dst: eq, Src: amd64.RMIReg(notPF), W: 1})

	dst := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovImm, Dst: dst, Imm64: 1}) // default: unordered or greater
	s.emit(amd64.Instr{Tag: amd64.ITest, Dst: lt, Src: amd64.RMIReg(lt), W: 1})
	negOne := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovImm, Dst: negOne, Imm64: uint64(int64(-1))})
	s.emit(amd64.Instr{Tag: amd64.ICMovCC, CC: amd64.CCNZ, Dst: dst, Src: amd64.RMIReg(negOne)})
	s.emit(amd64.Instr{Tag: amd64.ITest, Dst: eq, Src: amd64.RMIReg(eq), W: 1})
	zero := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovImm, Dst: zero, Imm64: 0})
	s.emit(amd64.Instr{Tag: amd64.ICMovCC, CC: amd64.CCNZ, Dst: dst, Src: amd64.RMIReg(zero)})
	return dst
}

// lowerCompareToBool lowers an integer comparison used as a value (rather
// than as an Exit/Mux0X guard) to an I32 0/1 result via cmp+setcc+movzx.
func (s *selector) lowerCompareToBool(op ir.BinOp, cc amd64.CC, a, b ir.Expr) hreg.Reg {
	s.lowerCompare(op, a, b)
	byteReg := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.ISetCC, CC: cc, Dst: byteReg, W: 1})
	dst := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: dst, Src: amd64.RMIReg(byteReg), Ext: amd64.ExtZero, SrcW: 1, W: 4})
	return dst
}

func (s *selector) lowerUnop(u *ir.Unop) hreg.Reg {
	switch u.Op {
	case ir.OpNot8, ir.OpNot16, ir.OpNot32, ir.OpNot64:
		return s.lowerUnaryInPlace(amd64.UnaryNot, u.X)
	case ir.OpNeg32, ir.OpNeg64:
		return s.lowerUnaryInPlace(amd64.UnaryNeg, u.X)
	case ir.OpNegF64:
		return s.lowerNegF64(u.X)

	case ir.Op8Uto32, ir.Op16Uto32:
		return s.lowerExtend(u.X, amd64.ExtZero, widthOf(u.Op.ArgType()), widthOf(u.Op.ResultType()))
	case ir.Op8Sto32, ir.Op16Sto32:
		return s.lowerExtend(u.X, amd64.ExtSign, widthOf(u.Op.ArgType()), widthOf(u.Op.ResultType()))
	case ir.Op32Uto64:
		// A plain 32-bit reg-reg move zero-extends to 64 bits implicitly
		// (spec.md §4.4 "32-bit reg-reg moves are used as explicit
		// zero-extend-to-64-bit operations"); ExtZero with source width 4
		// and destination width 8 tells the assembler to use that
		// implicit-zero-extend form.
		return s.lowerExtend(u.X, amd64.ExtZero, 4, 8)
	case ir.Op32Sto64:
		return s.lowerExtend(u.X, amd64.ExtSign, 4, 8)
	case ir.Op64to32, ir.Op32to16, ir.Op32to8, ir.Op16to8:
		// Narrowing is a no-op at the register level: the value already
		// carries the narrower width in its low bits; downstream tiles
		// consult the IR type for the width to operate at.
		return s.lowerExprToReg(u.X)

	case ir.OpReinterpF64asI64:
		src := s.lowerExprToReg(u.X)
		dst := s.freshInt()
		s.emit(amd64.Instr{Tag: amd64.IFMovQ, Dst: dst, Src: amd64.RMIReg(src), MovQ: amd64.MovQToGPR})
		return dst
	case ir.OpReinterpI64asF64:
		src := s.lowerExprToReg(u.X)
		dst := s.freshFlt()
		s.emit(amd64.Instr{Tag: amd64.IFMovQ, Dst: dst, Src: amd64.RMIReg(src), MovQ: amd64.MovQToXMM})
		return dst
	case ir.OpI32StoF64:
		src := s.lowerExprToReg(u.X)
		dst := s.freshFlt()
		s.emit(amd64.Instr{Tag: amd64.ICvtI2F, Dst: dst, Src: amd64.RMIReg(src), W: 4})
		return dst
	case ir.OpF64toI32S:
		src := s.lowerExprToReg(u.X)
		dst := s.freshInt()
		s.emit(amd64.Instr{Tag: amd64.ICvtF2I, Dst: dst, Src: amd64.RMIReg(src), W: 4})
		return dst

	default:
		fail("isel", "UnOp %v has no AMD64 tile", u.Op)
		panic("unreachable")
	}
}

func (s *selector) lowerUnaryInPlace(op amd64.UnaryOp, x ir.Expr) hreg.Reg {
	w := widthOf(x.Type())
	xv := s.lowerExprToReg(x)
	dst := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: dst, Src: amd64.RMIReg(xv), W: w})
	s.emit(amd64.Instr{Tag: amd64.IUnary, Unary: op, Dst: dst, W: w})
	return dst
}

// lowerExtend lowers a widen conversion via a movzx/movsx, or a plain
// 32-bit move for the implicit-zero-extend case (spec.md §4.4).
func (s *selector) lowerExtend(x ir.Expr, ext amd64.MoveExt, srcW, dstW amd64.Width) hreg.Reg {
	xv := s.lowerExprToReg(x)
	dst := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: dst, Src: amd64.RMIReg(xv), Ext: ext, SrcW: srcW, W: dstW})
	return dst
}

// lowerNegF64 negates a double by flipping its sign bit through a GPR,
// since there is no single-operand SSE2 negate instruction.
func (s *selector) lowerNegF64(x ir.Expr) hreg.Reg {
	xv := s.lowerExprToReg(x)
	bits := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IFMovQ, Dst: bits, Src: amd64.RMIReg(xv), MovQ: amd64.MovQToGPR})
	// XOR with the sign bit (1<<63) cannot fit a 32-bit sign-extended
	// immediate, so materialize it and XOR against a register instead.
	signBit := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovImm, Dst: signBit, Imm64: 1 << 63, W: 8})
	s.emit(amd64.Instr{Tag: amd64.IAluRMI, Alu: amd64.AluXor, Dst: bits, Src: amd64.RMIReg(signBit), W: 8})
	dst := s.freshFlt()
	s.emit(amd64.Instr{Tag: amd64.IFMovQ, Dst: dst, Src: amd64.RMIReg(bits), MovQ: amd64.MovQToXMM})
	return dst
}
