package asmamd64

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/arch/x86/x86asm"

	"github.com/ktstephano-successor/dbtcore/amd64"
	"github.com/ktstephano-successor/dbtcore/hreg"
	"github.com/ktstephano-successor/dbtcore/ir"
)

// decodeOne round-trip-verifies that code decodes as exactly one valid
// 64-bit-mode instruction consuming the whole buffer (golang.org/x/arch's
// x86asm, SPEC_FULL.md's domain-stack round-trip checker).
func decodeOne(t *testing.T, code []byte) x86asm.Inst {
	t.Helper()
	inst, err := x86asm.Decode(code, 64)
	require.NoError(t, err, "failed to decode %x", code)
	require.Equal(t, len(code), inst.Len, "decoded length mismatch for %x: %s", code, inst)
	return inst
}

func TestAssembleAluRegReg(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	rcx := amd64.PInt(amd64.RCX)
	code := Assemble([]amd64.Instr{
		{Tag: amd64.IAluRMI, Alu: amd64.AluAdd, W: 8, Dst: rax, Src: amd64.RMIReg(rcx)},
		{Tag: amd64.IRet},
	})
	require.NotEmpty(t, code)
	inst := decodeOne(t, code[:len(code)-1])
	require.Equal(t, x86asm.ADD, inst.Op)
	require.Equal(t, byte(0xC3), code[len(code)-1])
}

func TestAssembleAluExtendedRegsNeedREX(t *testing.T) {
	r12 := amd64.PInt(amd64.R12)
	r8 := amd64.PInt(amd64.R8)
	code := Assemble([]amd64.Instr{
		{Tag: amd64.IAluRMI, Alu: amd64.AluXor, W: 8, Dst: r12, Src: amd64.RMIReg(r8)},
	})
	inst := decodeOne(t, code)
	require.Equal(t, x86asm.XOR, inst.Op)
}

func TestAssembleAluImmSmallUsesShortForm(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	code := Assemble([]amd64.Instr{
		{Tag: amd64.IAluRMI, Alu: amd64.AluSub, W: 8, Dst: rax, Src: amd64.RMIImm(5)},
	})
	// 0x83 /5 ib: REX.W + opcode + modrm + 1-byte imm.
	require.Len(t, code, 4)
	inst := decodeOne(t, code)
	require.Equal(t, x86asm.SUB, inst.Op)
}

func TestAssembleAluImmLargeUsesLongForm(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	code := Assemble([]amd64.Instr{
		{Tag: amd64.IAluRMI, Alu: amd64.AluAdd, W: 8, Dst: rax, Src: amd64.RMIImm(1000)},
	})
	// 0x81 /0 id: REX.W + opcode + modrm + 4-byte imm.
	require.Len(t, code, 7)
	decodeOne(t, code)
}

func TestFits8Boundary(t *testing.T) {
	require.True(t, fits8(127))
	require.True(t, fits8(-128))
	require.False(t, fits8(128))
	require.False(t, fits8(-129))
}

func TestAssembleMovImmMovlWhenSignExtendFits(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	code := Assemble([]amd64.Instr{
		{Tag: amd64.IMovImm, W: 8, Dst: rax, Imm64: 0x7fffffff},
	})
	// REX.W + 0xC7 + modrm + 4-byte imm = 7 bytes, not the 10-byte movabs.
	require.Len(t, code, 7)
	decodeOne(t, code)
}

func TestAssembleMovImmMovabsWhenSignExtendOverflows(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	code := Assemble([]amd64.Instr{
		{Tag: amd64.IMovImm, W: 8, Dst: rax, Imm64: 0xdeadbeefcafebabe},
	})
	// REX.W + 0xB8+r + 8-byte imm = 10 bytes (spec.md §8 scenario 5).
	require.Len(t, code, 10)
	inst := decodeOne(t, code)
	require.Equal(t, x86asm.MOV, inst.Op)
}

func TestAssembleLoadStoreAddressingMode(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	rbx := amd64.PInt(amd64.RBX)
	mem := amd64.NewAModeIR(16, rbx)
	code := Assemble([]amd64.Instr{
		{Tag: amd64.ILoad, W: 4, Dst: rax, Mem: mem},
		{Tag: amd64.IStore, W: 4, Src: amd64.RMIReg(rax), Mem: mem},
	})
	require.NotEmpty(t, code)
	inst1, err := x86asm.Decode(code, 64)
	require.NoError(t, err)
	require.Equal(t, x86asm.MOV, inst1.Op)
	decodeOne(t, code[inst1.Len:])
}

func TestAssembleLoadStoreRSPBaseNeedsSIB(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	rsp := amd64.PInt(amd64.RSP)
	mem := amd64.NewAModeIR(8, rsp)
	code := Assemble([]amd64.Instr{
		{Tag: amd64.ILoad, W: 8, Dst: rax, Mem: mem},
	})
	inst := decodeOne(t, code)
	require.Equal(t, x86asm.MOV, inst.Op)
}

func TestAssembleLoadStoreRBPBaseAlwaysHasDisplacement(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	rbp := amd64.PInt(amd64.RBP)
	mem := amd64.NewAModeIR(0, rbp)
	code := Assemble([]amd64.Instr{
		{Tag: amd64.ILoad, W: 8, Dst: rax, Mem: mem},
	})
	// mod=01 rm=101 (rbp) + one displacement byte, never the mod=00 form
	// (which would mean RIP-relative addressing instead).
	require.Len(t, code, 4)
	decodeOne(t, code)
}

func TestAssembleLoadStoreR12BaseNeedsSIB(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	r12 := amd64.PInt(amd64.R12)
	mem := amd64.NewAModeIR(8, r12)
	code := Assemble([]amd64.Instr{
		{Tag: amd64.ILoad, W: 8, Dst: rax, Mem: mem},
	})
	inst := decodeOne(t, code)
	require.Equal(t, x86asm.MOV, inst.Op)
	// r12, like rsp, has rm=100 in its low 3 bits: the ModR/M alone can't
	// name it as a base, so a SIB byte with base=100 is mandatory. REX.B
	// carries the bit that distinguishes r12 from rsp.
	require.Equal(t, byte(0x49), code[0], "expected REX.W and REX.B for r12's extended-register bit")
	require.Equal(t, byte(0x24), code[3], "expected a SIB byte selecting r12 as base with no index")
}

func TestAssembleLoadStoreR13BaseAlwaysHasDisplacement(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	r13 := amd64.PInt(amd64.R13)
	mem := amd64.NewAModeIR(0, r13)
	code := Assemble([]amd64.Instr{
		{Tag: amd64.ILoad, W: 8, Dst: rax, Mem: mem},
	})
	// r13, like rbp, has rm=101 in its low 3 bits: mod=00 there means
	// RIP-relative, so an explicit disp8=0 is required even though the
	// caller asked for a zero displacement.
	require.Len(t, code, 4)
	require.Equal(t, byte(0x49), code[0], "expected REX.W and REX.B for r13's extended-register bit")
	decodeOne(t, code)
}

func TestAssembleLeaIsAlwaysREXW(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	rbx := amd64.PInt(amd64.RBX)
	mem := amd64.NewAModeIRRS(4, rbx, rax, 2)
	code := Assemble([]amd64.Instr{
		{Tag: amd64.ILea, Dst: amd64.PInt(amd64.RCX), Mem: mem},
	})
	require.Equal(t, byte(0x48), code[0]&0xF8, "lea must start with a REX prefix carrying W=1")
	inst := decodeOne(t, code)
	require.Equal(t, x86asm.LEA, inst.Op)
}

func TestAssembleSIBIndexCannotBeRSP(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	rsp := amd64.PInt(amd64.RSP)
	mem := amd64.NewAModeIRRS(0, rax, rsp, 0)
	require.Panics(t, func() {
		Assemble([]amd64.Instr{{Tag: amd64.ILoad, W: 8, Dst: rax, Mem: mem}})
	})
}

func TestAssembleShortJccRoundTrips(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	label := 0
	instrs := []amd64.Instr{
		{Tag: amd64.IJcc, CC: amd64.CCZ, Target: label},
		{Tag: amd64.IAluRMI, Alu: amd64.AluAdd, W: 8, Dst: rax, Src: amd64.RMIImm(1)},
		{Tag: amd64.ILabel, Target: label},
		{Tag: amd64.IRet},
	}
	code := Assemble(instrs)
	jcc := decodeOne(t, code[:2])
	require.Equal(t, x86asm.JE, jcc.Op)
	// The displacement must point exactly at the label's offset, i.e. past
	// the add instruction immediately following the branch.
	require.EqualValues(t, 4, code[1], "expected the branch to skip exactly the 4-byte add")
}

func TestAssembleSideExitTrampolinePattern(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	rdx := amd64.PInt(amd64.RDX)
	skip := 7
	instrs := []amd64.Instr{
		{Tag: amd64.IJcc, CC: amd64.CCNZ, Target: skip},
		{Tag: amd64.IMovImm, W: 8, Dst: amd64.PInt(amd64.ReturnTargetReg), Imm64: 0xdead},
		{Tag: amd64.IMovImm, W: 8, Dst: amd64.PInt(amd64.ReturnJumpKindReg), Imm64: uint64(ir.JumpBoring)},
		{Tag: amd64.IRet},
		{Tag: amd64.ILabel, Target: skip},
		{Tag: amd64.IAluRMI, Alu: amd64.AluAdd, W: 8, Dst: rax, Src: amd64.RMIReg(rdx)},
		{Tag: amd64.IRet},
	}
	code := Assemble(instrs)
	require.NotEmpty(t, code)

	off := 0
	for off < len(code) {
		inst, err := x86asm.Decode(code[off:], 64)
		require.NoError(t, err, "failed to decode at offset %d: %x", off, code[off:])
		off += inst.Len
	}
	require.Equal(t, len(code), off, "every byte of the trampoline must decode as a real instruction")
}

func TestAssembleForwardBranchOverflowPanics(t *testing.T) {
	label := 0
	instrs := []amd64.Instr{
		{Tag: amd64.IJcc, CC: amd64.CCZ, Target: label},
	}
	// Pad with enough bulk (far more than a rel8 can reach) before the
	// label closes, so the reserved 1-byte displacement cannot hold it.
	rax := amd64.PInt(amd64.RAX)
	for i := 0; i < 60; i++ {
		instrs = append(instrs, amd64.Instr{Tag: amd64.IMovImm, W: 8, Dst: rax, Imm64: 0xdeadbeefcafebabe})
	}
	instrs = append(instrs, amd64.Instr{Tag: amd64.ILabel, Target: label})

	require.Panics(t, func() { Assemble(instrs) })
}

func TestAssembleUnresolvedLabelPanics(t *testing.T) {
	instrs := []amd64.Instr{
		{Tag: amd64.IJmp, Target: 99},
		{Tag: amd64.IRet},
	}
	require.Panics(t, func() { Assemble(instrs) })
}

func TestAssembleFloatTile(t *testing.T) {
	xmm0 := amd64.PFlt(amd64.XMM0)
	xmm1 := amd64.PFlt(amd64.XMM1)
	instrs := []amd64.Instr{
		{Tag: amd64.IFAluRR, FAlu: amd64.FAluAdd, Dst: xmm0, Src: amd64.RMIReg(xmm1)},
		{Tag: amd64.IFCmp, Dst: xmm0, Src: amd64.RMIReg(xmm1)},
		{Tag: amd64.IFMovRR, Dst: xmm1, Src: amd64.RMIReg(xmm0)},
	}
	code := Assemble(instrs)
	off := 0
	var ops []x86asm.Op
	for off < len(code) {
		inst, err := x86asm.Decode(code[off:], 64)
		require.NoError(t, err)
		ops = append(ops, inst.Op)
		off += inst.Len
	}
	require.Equal(t, []x86asm.Op{x86asm.ADDSD, x86asm.UCOMISD, x86asm.MOVSD}, ops)
	require.Equal(t, len(code), off)
}

func TestAssembleMovQGPRRoundTrip(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	xmm0 := amd64.PFlt(amd64.XMM0)
	instrs := []amd64.Instr{
		{Tag: amd64.IFMovQ, MovQ: amd64.MovQToXMM, Dst: xmm0, Src: amd64.RMIReg(rax)},
		{Tag: amd64.IFMovQ, MovQ: amd64.MovQToGPR, Dst: rax, Src: amd64.RMIReg(xmm0)},
	}
	code := Assemble(instrs)
	off := 0
	for off < len(code) {
		inst, err := x86asm.Decode(code[off:], 64)
		require.NoError(t, err)
		require.Equal(t, x86asm.MOVQ, inst.Op)
		off += inst.Len
	}
	require.Equal(t, len(code), off)
}

func TestAssembleCvtI2FAndF2I(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	xmm0 := amd64.PFlt(amd64.XMM0)
	instrs := []amd64.Instr{
		{Tag: amd64.ICvtI2F, W: 8, Dst: xmm0, Src: amd64.RMIReg(rax)},
		{Tag: amd64.ICvtF2I, W: 8, Dst: rax, Src: amd64.RMIReg(xmm0)},
	}
	code := Assemble(instrs)
	off := 0
	var ops []x86asm.Op
	for off < len(code) {
		inst, err := x86asm.Decode(code[off:], 64)
		require.NoError(t, err)
		ops = append(ops, inst.Op)
		off += inst.Len
	}
	require.Equal(t, []x86asm.Op{x86asm.CVTSI2SD, x86asm.CVTTSD2SI}, ops)
}

func TestAssembleCallIndirectAndDiv(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	instrs := []amd64.Instr{
		{Tag: amd64.ICallIndirect},
		{Tag: amd64.IDiv, W: 8, DivIsU: false, Src: amd64.RMIReg(rax)},
		{Tag: amd64.ICdq, W: 8},
	}
	code := Assemble(instrs)
	off := 0
	var ops []x86asm.Op
	for off < len(code) {
		inst, err := x86asm.Decode(code[off:], 64)
		require.NoError(t, err)
		ops = append(ops, inst.Op)
		off += inst.Len
	}
	require.Equal(t, []x86asm.Op{x86asm.CALL, x86asm.IDIV, x86asm.CQO}, ops)
}

func TestAssembleEveryInstructionStaysUnderSizeBound(t *testing.T) {
	rax := amd64.PInt(amd64.RAX)
	code := Assemble([]amd64.Instr{
		{Tag: amd64.IMovImm, W: 8, Dst: rax, Imm64: 0xdeadbeefcafebabe},
	})
	require.LessOrEqual(t, len(code), maxInstrBytes)
}

func TestAssembleDeadRegNeverEmitsVirtual(t *testing.T) {
	// Assemble only ever receives Instrs whose operands are physical
	// (regalloc.Allocate's postcondition); RegNum/RegBit3 panic on a
	// virtual register, which doubles as a defense here.
	v := hreg.VReg(amd64.Int64, 0)
	require.Panics(t, func() {
		Assemble([]amd64.Instr{{Tag: amd64.IMovImm, W: 8, Dst: v, Imm64: 1}})
	})
}
