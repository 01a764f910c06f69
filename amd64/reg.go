// Package amd64 holds the AMD64 host model: register numbering,
// addressing modes, and the Instr type that the instruction selector
// (package isel) emits and the assembler (package asmamd64) encodes
// (spec.md §3 "AMD64 as canonical example", §4.2, §4.4).
package amd64

import (
	"fmt"

	"github.com/ktstephano-successor/dbtcore/hreg"
)

// Register classes, per spec.md §3 ("HReg class: Int64, Flt64, Vec128").
const (
	Int64 hreg.Class = iota
	Flt64
	Vec128
)

// Physical integer register file indices. Numbering matches the AMD64 ISA
// so that a register's REX.B/R/X bit is simply (index>>3)&1 and its
// ModRM/SIB field is index&7 (original_source/priv/host-amd64/hdefs.c
// iregNo/iregBit3).
const (
	RAX uint32 = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
	NumIntRegs
)

var intRegNames = [...]string{
	RAX: "rax", RCX: "rcx", RDX: "rdx", RBX: "rbx",
	RSP: "rsp", RBP: "rbp", RSI: "rsi", RDI: "rdi",
	R8: "r8", R9: "r9", R10: "r10", R11: "r11",
	R12: "r12", R13: "r13", R14: "r14", R15: "r15",
}

// Physical XMM register file indices (Flt64/Vec128 share one file, as on
// real AMD64, where scalar doubles and 128-bit vectors both live in XMM).
const (
	XMM0 uint32 = iota
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
	XMM8
	XMM9
	XMM10
	XMM11
	XMM12
	XMM13
	XMM14
	XMM15
	NumXMMRegs
)

// PInt returns the physical Int64 register with the given file index.
func PInt(index uint32) hreg.Reg { return hreg.PReg(Int64, index) }

// PFlt returns the physical Flt64 register (scalar double) with the given
// XMM file index.
func PFlt(index uint32) hreg.Reg { return hreg.PReg(Flt64, index) }

// PVec returns the physical Vec128 register with the given XMM file index.
func PVec(index uint32) hreg.Reg { return hreg.PReg(Vec128, index) }

// RegName renders a physical register's assembly mnemonic; used by
// Instr.String and by the String methods of AMode and the operand types.
func RegName(r hreg.Reg) string {
	if r.IsVirtual() {
		return r.String()
	}
	switch r.Class() {
	case Int64:
		if r.Num() < NumIntRegs {
			return "%" + intRegNames[r.Num()]
		}
	case Flt64, Vec128:
		if r.Num() < NumXMMRegs {
			return fmt.Sprintf("%%xmm%d", r.Num())
		}
	}
	return r.String()
}

// RegNum returns r's ModRM/SIB 3-bit field (the low 3 bits of its file
// index); callers must not pass a virtual register.
func RegNum(r hreg.Reg) uint8 {
	if r.IsVirtual() {
		panic("amd64: RegNum: register has not been allocated to a physical register")
	}
	return uint8(r.Num() & 7)
}

// RegBit3 returns the high bit of r's file index — the REX.R/X/B bit
// (original_source/priv/host-amd64/hdefs.c: iregBit3).
func RegBit3(r hreg.Reg) uint8 {
	if r.IsVirtual() {
		panic("amd64: RegBit3: register has not been allocated to a physical register")
	}
	return uint8((r.Num() >> 3) & 1)
}

// GSPReg is the designated guest-state pointer register: Get/Put/GetI/PutI
// lower to loads/stores off this register, which the host caller loads
// with the address of the guest-state byte array before entering the
// translated block (spec.md §6 "Guest-state layout"). Never allocable.
const GSPReg = R14

// ReturnTargetReg carries the successor guest address out of the block's
// terminating tail return (spec.md §4.2 "`next` becomes an unconditional
// tail return carrying the target in the designated return register").
const ReturnTargetReg = RAX

// ReturnJumpKindReg carries the block's JumpKind wire token alongside
// ReturnTargetReg at the same tail return (spec.md §6 "Jump-kind
// vocabulary (wire-level)").
const ReturnJumpKindReg = RDX

// AllocableInt is the default allocable Int64 register set: all GPRs
// except RSP (stack pointer, never allocable), RBP (frame pointer, kept
// reserved so the assembler's prologue/spill-offset math stays simple),
// R11 (the selector's scratch register for indirect CCall targets,
// spec.md §4.2), and GSPReg (the guest-state pointer, live for the whole
// block and never available for general allocation).
func AllocableInt() []hreg.Reg {
	regs := make([]hreg.Reg, 0, NumIntRegs-4)
	for i := uint32(0); i < NumIntRegs; i++ {
		switch i {
		case RSP, RBP, R11, GSPReg:
			continue
		}
		regs = append(regs, PInt(i))
	}
	return regs
}

// AllocableFlt is the default allocable Flt64/Vec128 register set: all XMM
// registers.
func AllocableFlt() []hreg.Reg {
	regs := make([]hreg.Reg, 0, NumXMMRegs)
	for i := uint32(0); i < NumXMMRegs; i++ {
		regs = append(regs, PFlt(i))
	}
	return regs
}
