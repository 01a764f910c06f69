package ir

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func tmp(id uint32, ty Type) Tmp { return Tmp{ID: id, Ty: ty} }

func TestCheckAcceptsWellTypedBlock(t *testing.T) {
	b := NewBB(I64)
	b.DeclareTmp(1, I32)
	b.DeclareTmp(2, I32)
	b.Append(&TmpDef{ID: 1, Expr: &Get{Offset: 0, Ty: I32}})
	b.Append(&TmpDef{ID: 2, Expr: &Binop{Op: OpAdd32, A: tmp(1, I32), B: ConstExpr{NewConstU32(5)}}})
	b.Append(&Put{Offset: 0, Data: tmp(2, I32)})
	b.Next = ConstExpr{NewConstU64(0x1000)}
	b.Jump = JumpBoring

	require.NotPanics(t, func() { Check(b) })
}

func TestCheckRejectsUseBeforeDef(t *testing.T) {
	b := NewBB(I64)
	b.DeclareTmp(1, I32)
	b.Append(&Put{Offset: 0, Data: tmp(1, I32)}) // t1 never defined
	b.Next = ConstExpr{NewConstU64(0)}

	require.Panics(t, func() { Check(b) })
}

func TestCheckRejectsDoubleAssignment(t *testing.T) {
	b := NewBB(I64)
	b.DeclareTmp(1, I32)
	b.Append(&TmpDef{ID: 1, Expr: ConstExpr{NewConstU32(1)}})
	b.Append(&TmpDef{ID: 1, Expr: ConstExpr{NewConstU32(2)}})
	b.Next = ConstExpr{NewConstU64(0)}

	require.Panics(t, func() { Check(b) })
}

func TestCheckRejectsOperatorTypeMismatch(t *testing.T) {
	b := NewBB(I64)
	b.DeclareTmp(1, I32)
	b.Append(&TmpDef{ID: 1, Expr: &Binop{Op: OpAdd32, A: ConstExpr{NewConstU32(1)}, B: ConstExpr{NewConstU64(2)}}})
	b.Next = ConstExpr{NewConstU64(0)}

	require.Panics(t, func() { Check(b) })
}

func TestCheckRejectsWrongNextType(t *testing.T) {
	b := NewBB(I64)
	b.Next = ConstExpr{NewConstU32(0)} // guest ptr type is I64

	require.Panics(t, func() { Check(b) })
}

func TestCheckRejectsMux0XTypeMismatch(t *testing.T) {
	b := NewBB(I64)
	b.DeclareTmp(1, I32)
	b.Append(&TmpDef{ID: 1, Expr: &Mux0X{
		Cond8: ConstExpr{NewConstU8(0)},
		ThenE: ConstExpr{NewConstU32(1)},
		ElseE: ConstExpr{NewConstU64(2)},
	}})
	b.Next = ConstExpr{NewConstU64(0)}

	require.Panics(t, func() { Check(b) })
}

func TestConstEquality(t *testing.T) {
	require.True(t, NewConstU32(5).Eq(NewConstU32(5)))
	require.False(t, NewConstU32(5).Eq(NewConstU32(6)))
	require.False(t, NewConstU32(5).Eq(NewConstU64(5)))
}

func TestDirtyFootprintOverlap(t *testing.T) {
	d := &Dirty{
		Callee: "helper",
		RetTmp: -1,
		GuestState: []StateFx{
			{Offset: 16, Size: 4, Write: true},
		},
	}
	require.True(t, d.TouchesOffset(18, 4))
	require.False(t, d.TouchesOffset(20, 4))
}
