package isel

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ktstephano-successor/dbtcore/amd64"
	"github.com/ktstephano-successor/dbtcore/ir"
	"github.com/ktstephano-successor/dbtcore/txctx"
)

func constU32(v uint32) ir.Expr { return ir.ConstExpr{C: ir.NewConstU32(v)} }

func TestSelectBlockRegisterMoveAndAdd(t *testing.T) {
	b := ir.NewBB(ir.I64)
	b.DeclareTmp(1, ir.I64)
	b.DeclareTmp(2, ir.I64)
	b.Append(&ir.TmpDef{ID: 1, Expr: &ir.Get{Offset: 0, Ty: ir.I64}})
	b.Append(&ir.TmpDef{ID: 2, Expr: &ir.Binop{Op: ir.OpAdd64, A: ir.Tmp{ID: 1, Ty: ir.I64}, B: ir.ConstExpr{C: ir.NewConstU64(5)}}})
	b.Append(&ir.Put{Offset: 0, Data: ir.Tmp{ID: 2, Ty: ir.I64}})
	b.Next = ir.ConstExpr{C: ir.NewConstU64(0)}
	b.Jump = ir.JumpBoring

	res := SelectBlock(b, txctx.New(nil))
	require.NotEmpty(t, res.Instrs)

	var sawAdd bool
	for _, in := range res.Instrs {
		if in.Tag == amd64.IAluRMI && in.Alu == amd64.AluAdd {
			sawAdd = true
		}
	}
	require.True(t, sawAdd, "expected an add instruction in: %v", res.Instrs)

	last := res.Instrs[len(res.Instrs)-1]
	require.Equal(t, amd64.IRet, last.Tag)
}

func TestSelectBlockSideExit(t *testing.T) {
	b := ir.NewBB(ir.I64)
	b.DeclareTmp(1, ir.I1)
	b.Append(&ir.TmpDef{ID: 1, Expr: &ir.Binop{Op: ir.OpCmpEQ32, A: &ir.Get{Offset: 0, Ty: ir.I32}, B: constU32(0)}})
	b.Append(&ir.Exit{GuardCond: ir.Tmp{ID: 1, Ty: ir.I1}, Jump: ir.JumpBoring, Target: ir.NewConstU64(0xdead)})
	b.Next = ir.ConstExpr{C: ir.NewConstU64(0)}

	res := SelectBlock(b, txctx.New(nil))

	var jccIdx = -1
	for i, in := range res.Instrs {
		if in.Tag == amd64.IJcc {
			jccIdx = i
			break
		}
	}
	require.NotEqual(t, -1, jccIdx, "expected a conditional branch for the side exit")

	// The trampoline after the branch must materialize the exit's own
	// target/jump-kind and return, exactly like the block's terminator does,
	// and a label must close the skip branch somewhere after it.
	var sawRetTarget, sawJumpKind, sawRet, sawLabel bool
	for _, in := range res.Instrs[jccIdx+1:] {
		if in.Tag == amd64.IMovRR && in.Dst.Eq(amd64.PInt(amd64.ReturnTargetReg)) {
			sawRetTarget = true
		}
		if in.Tag == amd64.IMovImm && in.Dst.Eq(amd64.PInt(amd64.ReturnJumpKindReg)) && in.Imm64 == uint64(ir.JumpBoring) {
			sawJumpKind = true
		}
		if in.Tag == amd64.IRet {
			sawRet = true
		}
		if in.Tag == amd64.ILabel {
			sawLabel = true
		}
	}
	require.True(t, sawRetTarget, "expected the side exit to materialize its target into ReturnTargetReg: %v", res.Instrs)
	require.True(t, sawJumpKind, "expected the side exit to materialize its jump-kind into ReturnJumpKindReg: %v", res.Instrs)
	require.True(t, sawRet, "expected the side exit's trampoline to return: %v", res.Instrs)
	require.True(t, sawLabel, "expected a label closing the side exit's skip branch: %v", res.Instrs)

	jcc := res.Instrs[jccIdx]
	var labelIdx = -1
	for i, in := range res.Instrs {
		if in.Tag == amd64.ILabel && in.Target == jcc.Target {
			labelIdx = i
		}
	}
	require.NotEqual(t, -1, labelIdx, "IJcc's Target must name a label id actually defined later in the list")
}

func TestSelectBlockMux0X(t *testing.T) {
	b := ir.NewBB(ir.I64)
	b.DeclareTmp(1, ir.I32)
	b.Append(&ir.TmpDef{ID: 1, Expr: &ir.Mux0X{
		Cond8: &ir.Get{Offset: 0, Ty: ir.I8},
		ThenE: constU32(1),
		ElseE: constU32(2),
	}})
	b.Append(&ir.Put{Offset: 4, Data: ir.Tmp{ID: 1, Ty: ir.I32}})
	b.Next = ir.ConstExpr{C: ir.NewConstU64(0)}

	res := SelectBlock(b, txctx.New(nil))
	var sawCMov bool
	for _, in := range res.Instrs {
		if in.Tag == amd64.ICMovCC {
			sawCMov = true
		}
	}
	require.True(t, sawCMov)
}

func TestSelectBlockCCallTooManyArgsFailsClosed(t *testing.T) {
	args := make([]ir.Expr, 10)
	for i := range args {
		args[i] = constU32(uint32(i))
	}
	b := ir.NewBB(ir.I64)
	b.DeclareTmp(1, ir.I32)
	b.Append(&ir.TmpDef{ID: 1, Expr: &ir.CCall{Callee: "helper", RetType: ir.I32, Args: args}})
	b.Next = ir.ConstExpr{C: ir.NewConstU64(0)}

	require.Panics(t, func() {
		SelectBlock(b, txctx.New(nil))
	})
}

func TestSelectBlockCCallMaterializesResolvedAddr(t *testing.T) {
	b := ir.NewBB(ir.I64)
	b.DeclareTmp(1, ir.I32)
	b.Append(&ir.TmpDef{ID: 1, Expr: &ir.CCall{Callee: "calc_flags", Addr: 0xdeadbeef, RetType: ir.I32, Args: []ir.Expr{constU32(1)}}})
	b.Append(&ir.Put{Offset: 0, Data: ir.Tmp{ID: 1, Ty: ir.I32}})
	b.Next = ir.ConstExpr{C: ir.NewConstU64(0)}

	res := SelectBlock(b, txctx.New(nil))

	var sawR11Load, sawCall bool
	for _, in := range res.Instrs {
		if in.Tag == amd64.IMovImm && in.Dst.Eq(amd64.PInt(amd64.R11)) && in.Imm64 == 0xdeadbeef {
			sawR11Load = true
		}
		if in.Tag == amd64.ICallIndirect {
			sawCall = true
			require.True(t, sawR11Load, "r11 must be loaded with the callee's resolved address before the indirect call")
		}
	}
	require.True(t, sawR11Load, "expected the CCall's resolved Addr to be materialized into r11: %v", res.Instrs)
	require.True(t, sawCall, "expected an indirect call: %v", res.Instrs)
}

func TestSelectBlockLoadStoreAddressingMode(t *testing.T) {
	b := ir.NewBB(ir.I64)
	b.DeclareTmp(1, ir.I64)
	b.DeclareTmp(2, ir.I32)
	b.Append(&ir.TmpDef{ID: 1, Expr: &ir.Get{Offset: 0, Ty: ir.I64}})
	addr := &ir.Binop{Op: ir.OpAdd64, A: ir.Tmp{ID: 1, Ty: ir.I64}, B: ir.ConstExpr{C: ir.NewConstU64(16)}}
	b.Append(&ir.TmpDef{ID: 2, Expr: &ir.Load{End: ir.LittleEndian, Ty: ir.I32, Addr: addr}})
	b.Append(&ir.Put{Offset: 8, Data: ir.Tmp{ID: 2, Ty: ir.I32}})
	b.Next = ir.ConstExpr{C: ir.NewConstU64(0)}

	res := SelectBlock(b, txctx.New(nil))
	var sawLoad bool
	for _, in := range res.Instrs {
		if in.Tag == amd64.ILoad && in.Mem.Tag == amd64.AModeIR && in.Mem.Imm32 == 16 {
			sawLoad = true
		}
	}
	require.True(t, sawLoad, "expected the addressing-mode matcher to fold the +16 displacement: %v", res.Instrs)
}
