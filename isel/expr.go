package isel

import (
	"github.com/ktstephano-successor/dbtcore/amd64"
	"github.com/ktstephano-successor/dbtcore/hreg"
	"github.com/ktstephano-successor/dbtcore/ir"
)

// lowerExprToReg lowers e and returns the (virtual or, for a Tmp already
// bound, previously chosen) register holding its value.
func (s *selector) lowerExprToReg(e ir.Expr) hreg.Reg {
	switch x := e.(type) {
	case ir.Tmp:
		if r, ok := s.tmpVal[x.ID]; ok {
			return r
		}
		fail("isel", "use of t%d before its defining statement (front-end bug, should have been caught by ir.Check)", x.ID)

	case ir.ConstExpr:
		return s.lowerConst(x.C)

	case *ir.Get:
		return s.lowerGet(x.Offset, x.Ty)

	case *ir.GetI:
		fail("isel", "GetI is not supported by the AMD64 selector: indexed guest-state regions require a front-end-specific layout this module does not have visibility into")

	case *ir.Binop:
		return s.lowerBinop(x)

	case *ir.Unop:
		return s.lowerUnop(x)

	case *ir.Load:
		return s.lowerLoad(x)

	case *ir.CCall:
		return s.lowerCCall(x)

	case *ir.Mux0X:
		return s.lowerMux0X(x)
	}
	fail("isel", "unrecognized IR expression %T", e)
	panic("unreachable")
}

// lowerOperand lowers e to an RMI, preferring an immediate for a small
// constant and a register otherwise — used for the second operand of ALU
// and compare tiles where the ISA allows an immediate directly.
func (s *selector) lowerOperand(e ir.Expr) amd64.RMI {
	if ce, ok := e.(ir.ConstExpr); ok && !ce.C.Type().IsFloat() {
		v := ce.C.AsU64()
		if ce.C.Type() != ir.I64 || int64(int32(v)) == int64(v) {
			return amd64.RMIImm(int32(v))
		}
	}
	return amd64.RMIReg(s.lowerExprToReg(e))
}

func (s *selector) lowerConst(c ir.Const) hreg.Reg {
	if c.Type().IsFloat() {
		bitsReg := s.freshInt()
		s.emit(amd64.Instr{Tag: amd64.IMovImm, Dst: bitsReg, Imm64: c.AsU64(), W: 8})
		dst := s.freshFlt()
		s.emit(amd64.Instr{Tag: amd64.IFMovQ, Dst: dst, Src: amd64.RMIReg(bitsReg), MovQ: amd64.MovQToXMM})
		return dst
	}
	dst := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovImm, Dst: dst, Imm64: c.AsU64(), W: 8})
	return dst
}

// lowerGet reads a fixed guest-state offset via the guest-state pointer
// register.
func (s *selector) lowerGet(offset int32, ty ir.Type) hreg.Reg {
	mem := amd64.NewAModeIR(offset, amd64.PInt(amd64.GSPReg))
	if ty.IsFloat() {
		dst := s.freshFlt()
		s.emit(amd64.Instr{Tag: amd64.ILoad, Dst: dst, Mem: mem, W: widthOf(ty)})
		return dst
	}
	dst := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.ILoad, Dst: dst, Mem: mem, W: widthOf(ty)})
	return dst
}

func (s *selector) lowerLoad(l *ir.Load) hreg.Reg {
	mem := s.lowerAddr(l.Addr)
	if l.Ty.IsFloat() {
		dst := s.freshFlt()
		s.emit(amd64.Instr{Tag: amd64.ILoad, Dst: dst, Mem: mem, W: widthOf(l.Ty)})
		return dst
	}
	dst := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.ILoad, Dst: dst, Mem: mem, W: widthOf(l.Ty)})
	return dst
}

// lowerAddr is the addressing-mode matcher: it folds `Add(base, Const)`
// into IR(imm32, base) and `Add(base, Shl(index, Const<=3))` into
// IRRS(0, base, index, scale), in either operand order. Any other Add
// becomes a two-register IRRS with scale 0, and a non-Add address a
// base-only AMode with zero displacement. An outer `+ Const` around a
// scaled-index sum is not folded into the same AMode: the inner sum is
// computed into a register that serves as the base (spec.md §4.2
// "Load/Store").
func (s *selector) lowerAddr(addr ir.Expr) amd64.AMode {
	bin, ok := addr.(*ir.Binop)
	if !ok || !isAddOp(bin.Op) {
		base := s.lowerExprToReg(addr)
		return amd64.NewAModeIR(0, base)
	}

	// Add(base, Const) -> IR(imm32, base)
	if ce, ok := bin.B.(ir.ConstExpr); ok {
		base := s.lowerExprToReg(bin.A)
		return amd64.NewAModeIR(int32(ce.C.AsU64()), base)
	}
	if ce, ok := bin.A.(ir.ConstExpr); ok {
		base := s.lowerExprToReg(bin.B)
		return amd64.NewAModeIR(int32(ce.C.AsU64()), base)
	}

	// Add(base, Shl(index, Const)) -> IRRS(0, base, index, log2Scale)
	if shl, ok := bin.B.(*ir.Binop); ok && isShlOp(shl.Op) {
		if sc, ok := shl.B.(ir.ConstExpr); ok && sc.C.AsU64() <= 3 {
			base := s.lowerExprToReg(bin.A)
			index := s.lowerExprToReg(shl.A)
			return amd64.NewAModeIRRS(0, base, index, uint8(sc.C.AsU64()))
		}
	}
	if shl, ok := bin.A.(*ir.Binop); ok && isShlOp(shl.Op) {
		if sc, ok := shl.B.(ir.ConstExpr); ok && sc.C.AsU64() <= 3 {
			base := s.lowerExprToReg(bin.B)
			index := s.lowerExprToReg(shl.A)
			return amd64.NewAModeIRRS(0, base, index, uint8(sc.C.AsU64()))
		}
	}

	// General sum of two registers: fall back to IRRS with scale 0.
	base := s.lowerExprToReg(bin.A)
	index := s.lowerExprToReg(bin.B)
	return amd64.NewAModeIRRS(0, base, index, 0)
}

func isAddOp(op ir.BinOp) bool {
	switch op {
	case ir.OpAdd32, ir.OpAdd64:
		return true
	default:
		return false
	}
}

func isShlOp(op ir.BinOp) bool { return op == ir.OpShl32 || op == ir.OpShl64 }

func (s *selector) lowerMux0X(m *ir.Mux0X) hreg.Reg {
	thenV := s.lowerExprToReg(m.ThenE)
	elseV := s.lowerExprToReg(m.ElseE)
	cond := s.lowerExprToReg(m.Cond8)
	s.emit(amd64.Instr{Tag: amd64.ITest, Dst: cond, Src: amd64.RMIReg(cond), W: 1})

	w := widthOf(m.Type())
	if m.Type().IsFloat() {
		// dst starts as elseV (the cond!=0 result per spec.md §3 "Mux0X")
		// and cmovz replaces it with thenV when cond==0. A float-class cmov
		// is not part of this module's tile set, so the select runs on both
		// arms' raw bit patterns in GPRs and the chosen bits are moved back
		// into an XMM register.
		thenBits := s.freshInt()
		s.emit(amd64.Instr{Tag: amd64.IFMovQ, Dst: thenBits, Src: amd64.RMIReg(thenV), MovQ: amd64.MovQToGPR})
		elseBits := s.freshInt()
		s.emit(amd64.Instr{Tag: amd64.IFMovQ, Dst: elseBits, Src: amd64.RMIReg(elseV), MovQ: amd64.MovQToGPR})
		dstBits := s.freshInt()
		s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: dstBits, Src: amd64.RMIReg(elseBits), W: 8})
		s.emit(amd64.Instr{Tag: amd64.ICMovCC, CC: amd64.CCZ, Dst: dstBits, Src: amd64.RMIReg(thenBits)})
		dst := s.freshFlt()
		s.emit(amd64.Instr{Tag: amd64.IFMovQ, Dst: dst, Src: amd64.RMIReg(dstBits), MovQ: amd64.MovQToXMM})
		return dst
	}

	dst := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: dst, Src: amd64.RMIReg(elseV), W: w})
	s.emit(amd64.Instr{Tag: amd64.ICMovCC, CC: amd64.CCZ, Dst: dst, Src: amd64.RMIReg(thenV), W: w})
	return dst
}

func (s *selector) lowerCCall(c *ir.CCall) hreg.Reg {
	s.materializeArgs(c.Args)
	s.emit(amd64.Instr{Tag: amd64.IMovImm, Dst: amd64.PInt(amd64.R11), Imm64: c.Addr, W: 8})
	s.emit(amd64.Instr{Tag: amd64.ICallIndirect})
	dst := s.freshInt()
	s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: dst, Src: amd64.RMIReg(amd64.PInt(amd64.RAX)), W: 8})
	return dst
}
