// Package isel implements the instruction selector: it tiles an optimized
// IRBB into an ordered list of AMD64 host instructions over virtual
// registers (spec.md §4.2). The selector is tree-based: a Tmp's value is
// lowered once, at its defining statement, and later reads reuse that
// register. There is no subexpression cache within a statement; a
// subexpression that occurs twice in one tree is lowered twice.
package isel

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/ktstephano-successor/dbtcore/amd64"
	"github.com/ktstephano-successor/dbtcore/hreg"
	"github.com/ktstephano-successor/dbtcore/ir"
	"github.com/ktstephano-successor/dbtcore/txctx"
)

// ErrTooManyArgs is the typed, fail-closed error for a CCall whose
// argument count exceeds the target ABI's register-passing capacity
// (spec.md §4.2 "Arguments exceeding register-passing count are not
// supported; the selector must fail-closed").
var ErrTooManyArgs = errors.New("isel: amd64: CCall argument count exceeds integer-argument register capacity")

// amd64IntArgRegs is the System V AMD64 integer argument-passing order,
// excluding RAX (return value) and registers this module reserves
// (R11 scratch, GSPReg).
var amd64IntArgRegs = []uint32{amd64.RDI, amd64.RSI, amd64.RDX, amd64.RCX, amd64.R8, amd64.R9}

// Result is the selector's output: the instruction list plus bookkeeping
// the allocator and assembler need.
type Result struct {
	Instrs   []amd64.Instr
	JumpKind ir.JumpKind
}

// selector holds one SelectBlock call's mutable state: the virtual
// register namespace, the emitted instruction list so far, per-statement
// value cache, and the condition-code cache (spec.md §4.2 "Flag/condition
// handling").
type selector struct {
	ctx    *txctx.Context
	vregs  *hreg.Allocator
	instrs []amd64.Instr

	// tmpVal memoizes the vreg a Tmp's defining expression already
	// produced, so a later Tmp read in the same or a later statement reuses
	// it rather than re-lowering (temporaries are the spec's inter-statement
	// sharing mechanism; spec.md §4.2).
	tmpVal map[uint32]hreg.Reg

	// ccCache: the IR comparison (keyed by its String() form) whose flags
	// the most recent instruction left set, and the condition code they
	// encode (spec.md §4.2 "condition-code cache"). guardToCC consults it
	// before emitting a cmp for an Exit guard; lowerMux0X does not consult
	// it. Every emit clears it, so a hit needs the same guard to be
	// requested again with no instruction emitted in between.
	ccCache *ccEntry

	// nextLabel hands out monotonic ids for amd64.ILabel/IJcc.Target. Ids,
	// not instruction indices or byte offsets, are what regalloc and the
	// assembler see, since coalescing can drop instructions between here
	// and encoding.
	nextLabel int
}

func (s *selector) newLabel() int {
	id := s.nextLabel
	s.nextLabel++
	return id
}

type ccEntry struct {
	key string // string form of the IR comparison expression driving this CC
	cc  amd64.CC
}

func (s *selector) emit(in amd64.Instr) {
	s.instrs = append(s.instrs, in)
	// Any instruction other than ICmp/ITest/IFCmp that we just appended as
	// part of materializing the same comparison may still be safe; simplest
	// correct rule per spec.md §4.2 is: every emit invalidates the cache,
	// and guardToCC repopulates it right after lowerCompare emits its cmp.
	s.ccCache = nil
}

func (s *selector) freshInt() hreg.Reg { return s.vregs.Fresh(amd64.Int64) }
func (s *selector) freshFlt() hreg.Reg { return s.vregs.Fresh(amd64.Flt64) }

func fail(component, format string, args ...interface{}) {
	panic(&ir.InvariantError{Component: component, Message: fmt.Sprintf(format, args...)})
}

// SelectBlock lowers an optimized IRBB to an AMD64 instruction list using
// virtual registers, except where an instruction or the calling
// convention fixes a physical register: rax/rdx for integer division,
// rcx for a variable shift count, the integer argument registers plus
// r11 and rax around a CCall/Dirty, the return-target and jump-kind
// registers at an exit, and the guest-state pointer for Get/Put.
func SelectBlock(b *ir.BB, ctx *txctx.Context) Result {
	s := &selector{
		ctx:    ctx,
		vregs:  hreg.NewAllocator(),
		tmpVal: make(map[uint32]hreg.Reg),
	}
	ctx.TraceBB(txctx.TraceIR, "isel-input", b)

	for _, stmt := range b.Stmts {
		s.lowerStmt(stmt)
	}
	s.lowerTerminator(b)

	if ctx.Tracing(txctx.TraceSelect) {
		for i, in := range s.instrs {
			ctx.Log.WithField("stage", "isel").Debugf("%3d: %s", i, in)
		}
	}

	return Result{Instrs: s.instrs, JumpKind: b.Jump}
}

func widthOf(t ir.Type) amd64.Width { return amd64.Width(t.Width()) }

func (s *selector) lowerStmt(stmt ir.Stmt) {
	switch st := stmt.(type) {
	case *ir.TmpDef:
		reg := s.lowerExprToReg(st.Expr)
		s.tmpVal[st.ID] = reg

	case *ir.Put:
		s.lowerPut(st.Offset, st.Data)

	case *ir.PutI:
		fail("isel", "PutI is not supported by the AMD64 selector: indexed guest-state regions require a front-end-specific layout this module does not have visibility into")

	case *ir.Store:
		addr := s.lowerAddr(st.Addr)
		src := s.lowerExprToReg(st.Data)
		s.emit(amd64.Instr{Tag: amd64.IStore, Src: amd64.RMIReg(src), Mem: addr, W: widthOf(st.Data.Type())})

	case *ir.Dirty:
		s.lowerDirty(st)

	case *ir.MFence:
		// No IR-visible instruction catalogue entry exists for a bare
		// fence in the AMD64 tile set this module defines; memory ordering
		// on AMD64 is already strong enough that ordinary loads/stores
		// need no fence to preserve the IR's single-threaded semantics
		// within one translated block (spec.md §5 "Strictly single-
		// threaded within one translation").

	case *ir.Exit:
		s.lowerExit(st)

	default:
		fail("isel", "unrecognized IR statement %T", stmt)
	}
}

// lowerPut writes data to guest state at offset, via the guest-state
// pointer register (amd64.GSPReg).
func (s *selector) lowerPut(offset int32, data ir.Expr) {
	mem := amd64.NewAModeIR(offset, amd64.PInt(amd64.GSPReg))
	src := s.lowerExprToReg(data)
	s.emit(amd64.Instr{Tag: amd64.IStore, Src: amd64.RMIReg(src), Mem: mem, W: widthOf(data.Type())})
}

// lowerDirty materializes a Dirty call's arguments into the integer ABI
// registers, loads the callee address into r11, and emits an indirect
// call, identically to CCall except it is never foldable by the optimizer
// and its declared footprint has already been trusted by earlier passes
// (spec.md §9 "Helper-call semantics").
func (s *selector) lowerDirty(d *ir.Dirty) {
	s.materializeArgs(d.Args)
	s.emit(amd64.Instr{Tag: amd64.IMovImm, Dst: amd64.PInt(amd64.R11), Imm64: d.Addr, W: 8})
	s.emit(amd64.Instr{Tag: amd64.ICallIndirect})
	if d.RetTmp >= 0 {
		// The callee's return lands in RAX per the integer ABI; copy it to a
		// fresh vreg so the allocator is free to place it anywhere.
		dst := s.freshInt()
		s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: dst, Src: amd64.RMIReg(amd64.PInt(amd64.RAX)), W: 8})
		s.tmpVal[uint32(d.RetTmp)] = dst
	}
}

// materializeArgs moves each argument's value into the ABI's integer
// argument registers in order, failing closed if there are more arguments
// than the ABI has registers for (spec.md §4.2).
func (s *selector) materializeArgs(args []ir.Expr) {
	if len(args) > len(amd64IntArgRegs) {
		panic(errors.Wrapf(ErrTooManyArgs, "got %d arguments, capacity is %d", len(args), len(amd64IntArgRegs)))
	}
	for i, a := range args {
		v := s.lowerExprToReg(a)
		dstPhys := amd64.PInt(amd64IntArgRegs[i])
		s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: dstPhys, Src: amd64.RMIReg(v), W: 8})
	}
}

// lowerTerminator selects the block's exit: next becomes an unconditional
// tail return carrying the target and jump-kind token in the designated
// registers (spec.md §4.2 "next becomes an unconditional tail return").
func (s *selector) lowerTerminator(b *ir.BB) {
	target := s.lowerExprToReg(b.Next)
	s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: amd64.PInt(amd64.ReturnTargetReg), Src: amd64.RMIReg(target), W: 8})
	s.emit(amd64.Instr{
		Tag:   amd64.IMovImm,
		Dst:   amd64.PInt(amd64.ReturnJumpKindReg),
		Imm64: uint64(b.Jump),
	})
	s.emit(amd64.Instr{Tag: amd64.IRet})
}

// lowerExit selects a mid-block side exit. When the guard holds, control
// must leave the block carrying ex.Target/ex.Jump exactly the way the
// block's own terminator does (lowerTerminator); when it doesn't, execution
// falls through to the next statement. This is an inline trampoline guarded
// by a branch over it, rather than a shared out-of-line table, since the
// selector has no block-boundary view to hang a shared table off of
// (spec.md §4.2 "Exit").
func (s *selector) lowerExit(ex *ir.Exit) {
	cc, negate := s.guardToCC(ex.GuardCond)
	if negate {
		cc = cc.Negate()
	}
	skip := s.newLabel()
	// Branch over the trampoline when the guard does not hold.
	s.emit(amd64.Instr{Tag: amd64.IJcc, CC: cc.Negate(), Target: skip})

	target := s.lowerExprToReg(ir.ConstExpr{C: ex.Target})
	s.emit(amd64.Instr{Tag: amd64.IMovRR, Dst: amd64.PInt(amd64.ReturnTargetReg), Src: amd64.RMIReg(target), W: 8})
	s.emit(amd64.Instr{
		Tag:   amd64.IMovImm,
		Dst:   amd64.PInt(amd64.ReturnJumpKindReg),
		Imm64: uint64(ex.Jump),
	})
	s.emit(amd64.Instr{Tag: amd64.IRet})

	s.emit(amd64.Instr{Tag: amd64.ILabel, Target: skip})
}

// guardToCC lowers an I1 guard expression to a condition code, preferring
// the condition-code cache when the guard is exactly the comparison the
// most recent flags-setting instruction already evaluated (spec.md §4.2).
// The second return value reports whether the condition must be read as
// "guard is false" (used when the IR guard is itself a negation).
func (s *selector) guardToCC(guard ir.Expr) (amd64.CC, bool) {
	switch g := guard.(type) {
	case *ir.Binop:
		if cc, ok := cmpOpCC(g.Op); ok {
			key := g.String()
			if s.ccCache != nil && s.ccCache.key == key {
				return s.ccCache.cc, false
			}
			s.lowerCompare(g.Op, g.A, g.B)
			s.ccCache = &ccEntry{key: key, cc: cc}
			return cc, false
		}
	case *ir.Unop:
		if g.Op == ir.OpNot8 {
			cc, negate := s.guardToCC(g.X)
			return cc, !negate
		}
	}
	// General I1 expression: materialize it and test against zero.
	v := s.lowerExprToReg(guard)
	s.emit(amd64.Instr{Tag: amd64.ITest, Dst: v, Src: amd64.RMIReg(v), W: 1})
	return amd64.CCNZ, false
}

// cmpOpCC maps an IR comparison BinOp to the AMD64 condition it produces
// after a cmp of its two operands (a op b).
func cmpOpCC(op ir.BinOp) (amd64.CC, bool) {
	switch op {
	case ir.OpCmpEQ32, ir.OpCmpEQ64:
		return amd64.CCZ, true
	case ir.OpCmpNE32, ir.OpCmpNE64:
		return amd64.CCNZ, true
	case ir.OpCmpLTU32, ir.OpCmpLTU64:
		return amd64.CCB, true
	case ir.OpCmpLTS32, ir.OpCmpLTS64:
		return amd64.CCL, true
	case ir.OpCmpLEU32, ir.OpCmpLEU64:
		return amd64.CCBE, true
	case ir.OpCmpLES32, ir.OpCmpLES64:
		return amd64.CCLE, true
	default:
		return 0, false
	}
}

// lowerCompare emits the cmp instruction comparing a and b, sized to a's
// IR type.
func (s *selector) lowerCompare(op ir.BinOp, a, b ir.Expr) {
	w := widthOf(a.Type())
	lhs := s.lowerExprToReg(a)
	rhs := s.lowerOperand(b)
	s.emit(amd64.Instr{Tag: amd64.ICmp, Dst: lhs, Src: rhs, W: w})
}
