package regalloc_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ktstephano-successor/dbtcore/amd64"
	"github.com/ktstephano-successor/dbtcore/hreg"
	"github.com/ktstephano-successor/dbtcore/regalloc"
)

func testConfig() regalloc.Config[amd64.Instr] {
	return regalloc.Config[amd64.Instr]{
		Allocable: map[hreg.Class][]hreg.Reg{
			amd64.Int64: amd64.AllocableInt(),
			amd64.Flt64: amd64.AllocableFlt(),
		},
		MakeSpill: func(class hreg.Class, phys hreg.Reg, slot int32) amd64.Instr {
			return amd64.Instr{Tag: amd64.IStore, Mem: amd64.NewAModeIR(slot, amd64.PInt(amd64.RSP)), Src: amd64.RMIReg(phys), W: 8}
		},
		MakeReload: func(class hreg.Class, phys hreg.Reg, slot int32) amd64.Instr {
			return amd64.Instr{Tag: amd64.ILoad, Dst: phys, Mem: amd64.NewAModeIR(slot, amd64.PInt(amd64.RSP)), W: 8}
		},
		SlotSize:  8,
		SpillBase: 0,
	}
}

func noVirtualRegsLeft(t *testing.T, instrs []amd64.Instr) {
	t.Helper()
	for _, in := range instrs {
		for _, r := range in.Defs() {
			require.False(t, r.IsVirtual(), "unallocated virtual register left in %v", in)
		}
		for _, r := range in.Uses() {
			require.False(t, r.IsVirtual(), "unallocated virtual register left in %v", in)
		}
	}
}

func TestAllocateSimpleNoSpill(t *testing.T) {
	va := hreg.VReg(amd64.Int64, 0)
	vb := hreg.VReg(amd64.Int64, 1)
	instrs := []amd64.Instr{
		{Tag: amd64.IMovImm, Dst: va, Imm64: 1, W: 8},
		{Tag: amd64.IMovImm, Dst: vb, Imm64: 2, W: 8},
		{Tag: amd64.IAluRMI, Alu: amd64.AluAdd, Dst: va, Src: amd64.RMIReg(vb), W: 8},
	}

	out := regalloc.Allocate(instrs, testConfig())
	noVirtualRegsLeft(t, out)
	require.Len(t, out, 3, "no spills needed, instruction count should be unchanged")
}

func TestAllocateCoalescesRedundantMoves(t *testing.T) {
	va := hreg.VReg(amd64.Int64, 0)
	vb := hreg.VReg(amd64.Int64, 1)
	instrs := []amd64.Instr{
		{Tag: amd64.IMovImm, Dst: va, Imm64: 42, W: 8},
		{Tag: amd64.IMovRR, Dst: vb, Src: amd64.RMIReg(va), W: 8},
		{Tag: amd64.IAluRMI, Alu: amd64.AluAdd, Dst: vb, Src: amd64.RMIImm(1), W: 8},
	}

	out := regalloc.Allocate(instrs, testConfig())
	noVirtualRegsLeft(t, out)

	// va's only use is the move into vb; with only one live-range each and
	// plenty of free registers, the allocator is free to assign them the
	// same physical register, at which point the copy is a no-op.
	for _, in := range out {
		require.NotEqual(t, amd64.IMovRR, in.Tag, "redundant same-register move should have been coalesced away: %v", out)
	}
}

func TestAllocateIdempotentOnAlreadyAllocatedList(t *testing.T) {
	va := hreg.VReg(amd64.Int64, 0)
	instrs := []amd64.Instr{
		{Tag: amd64.IMovImm, Dst: va, Imm64: 7, W: 8},
	}
	once := regalloc.Allocate(instrs, testConfig())
	twice := regalloc.Allocate(once, testConfig())
	require.Equal(t, once, twice, "re-running allocation over an all-physical instruction list must be a no-op")
}

// TestAllocateSpillsUnderPressure keeps more values simultaneously live
// than the allocable set has registers for, forcing at least one spill
// and a matching reload.
func TestAllocateSpillsUnderPressure(t *testing.T) {
	n := len(amd64.AllocableInt()) + 4
	vregs := make([]hreg.Reg, n)
	var instrs []amd64.Instr
	for i := 0; i < n; i++ {
		vregs[i] = hreg.VReg(amd64.Int64, uint32(i))
		instrs = append(instrs, amd64.Instr{Tag: amd64.IMovImm, Dst: vregs[i], Imm64: uint64(i), W: 8})
	}
	// Keep every one of them live by summing them all into the last.
	acc := vregs[0]
	for i := 1; i < n; i++ {
		instrs = append(instrs, amd64.Instr{Tag: amd64.IAluRMI, Alu: amd64.AluAdd, Dst: acc, Src: amd64.RMIReg(vregs[i]), W: 8})
	}

	out := regalloc.Allocate(instrs, testConfig())
	noVirtualRegsLeft(t, out)

	var sawSpill, sawReload bool
	for _, in := range out {
		if in.Tag == amd64.IStore {
			sawSpill = true
		}
		if in.Tag == amd64.ILoad {
			sawReload = true
		}
	}
	require.True(t, sawSpill, "expected register pressure to force at least one spill")
	require.True(t, sawReload, "expected a spilled value to be reloaded before its use")
}

func TestAllocateReservesMandatoryDivRegisters(t *testing.T) {
	dividend := hreg.VReg(amd64.Int64, 0)
	other := hreg.VReg(amd64.Int64, 1)
	quotient := hreg.VReg(amd64.Int64, 2)
	instrs := []amd64.Instr{
		{Tag: amd64.IMovImm, Dst: dividend, Imm64: 100, W: 8},
		{Tag: amd64.IMovImm, Dst: other, Imm64: 3, W: 8},
		{Tag: amd64.IMovRR, Dst: amd64.PInt(amd64.RAX), Src: amd64.RMIReg(dividend), W: 8},
		{Tag: amd64.ICdq},
		{Tag: amd64.IDiv, DivIsU: false, Src: amd64.RMIReg(other), W: 8},
		{Tag: amd64.IMovRR, Dst: quotient, Src: amd64.RMIReg(amd64.PInt(amd64.RAX)), W: 8},
	}

	out := regalloc.Allocate(instrs, testConfig())
	noVirtualRegsLeft(t, out)

	for i, in := range out {
		if in.Tag == amd64.IDiv {
			require.NotEqual(t, 0, i, "IDiv must be preceded by its dividend setup")
			require.False(t, in.Src.Reg.Eq(amd64.PInt(amd64.RAX)) || in.Src.Reg.Eq(amd64.PInt(amd64.RDX)),
				"the divisor must not be allocated to rax or rdx, got %v", in.Src.Reg)
		}
	}
}
