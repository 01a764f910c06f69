// Package asmamd64 implements the AMD64 assembler: it turns a fully
// allocated (physical-registers-only) instruction list into a contiguous,
// position-independent byte buffer (spec.md §4.4). The bit-level helpers
// below are ported in semantics, not text, from
// original_source/priv/host-amd64/hdefs.c's mkModRegRM/mkSIB/emit32/emit64/
// fits8bits/doAMode_M/doAMode_R/rexAMode_M/rexAMode_R.
package asmamd64

import (
	"encoding/binary"
	"fmt"

	"github.com/ktstephano-successor/dbtcore/amd64"
	"github.com/ktstephano-successor/dbtcore/hreg"
	"github.com/ktstephano-successor/dbtcore/ir"
)

func fail(format string, args ...interface{}) {
	panic(&ir.InvariantError{Component: "asmamd64", Message: fmt.Sprintf(format, args...)})
}

// modRM packs mod/reg/rm into one ModR/M byte (hdefs.c: mkModRegRM).
func modRM(mod, reg, rm uint8) byte {
	return (mod&3)<<6 | (reg&7)<<3 | (rm & 7)
}

// sib packs scale/index/base into one SIB byte (hdefs.c: mkSIB).
func sib(scale, index, base uint8) byte {
	return (scale&3)<<6 | (index&7)<<3 | (base & 7)
}

// fits8 reports whether v round-trips through a sign-extending 8-bit
// truncation, i.e. whether it fits the rel8/imm8/disp8 short form
// (hdefs.c: fits8bits). spec.md §8's immediate-boundary property
// (-128/+127 short, one beyond long) is exactly this check.
func fits8(v int32) bool {
	return v == (v<<24)>>24
}

// rex builds a REX prefix byte from its four bits (hdefs.c: rexAMode_M/R,
// generalized to an explicit W so 32-bit-width instructions can omit it).
func rex(w, r, x, b uint8) byte {
	return 0x40 | (w&1)<<3 | (r&1)<<2 | (x&1)<<1 | (b & 1)
}

// buf accumulates encoded bytes plus the two bookkeeping structures the
// two-pass label resolution needs: label ids already placed at an offset,
// and branch sites still waiting on one.
type buf struct {
	out    []byte
	labels map[int]int // label id -> byte offset
	// patches: branches whose label wasn't resolved yet when encoded.
	// pos is the offset of the rel8 byte itself; instrEnd is the offset of
	// the byte immediately after it (where the CPU computes rel8 from).
	patches []patch
}

type patch struct {
	pos      int
	instrEnd int
	label    int
}

func (b *buf) emit8(v byte)  { b.out = append(b.out, v) }
func (b *buf) emit32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.out = append(b.out, tmp[:]...)
}
func (b *buf) emit64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.out = append(b.out, tmp[:]...)
}

// emitAddr writes the ModR/M (+SIB, +displacement) bytes addressing mode
// mem with greg in the reg field, following hdefs.c's doAMode_M special-
// casing of RSP/R12 (need a SIB escape) and RBP/R13 (mod=00,rm=101 means
// RIP-relative, so a zero displacement must be written explicitly instead).
func (b *buf) emitAddr(greg hreg.Reg, mem amd64.AMode) {
	g := amd64.RegNum(greg)
	switch mem.Tag {
	case amd64.AModeIR:
		base := amd64.RegNum(mem.Base)
		isSPlike := base == uint8(amd64.RSP)&7 // true for both RSP and R12
		isBPlike := base == uint8(amd64.RBP)&7 // true for both RBP and R13
		switch {
		case mem.Imm32 == 0 && !isSPlike && !isBPlike:
			b.emit8(modRM(0, g, base))
		case fits8(mem.Imm32) && !isSPlike:
			b.emit8(modRM(1, g, base))
			b.emit8(byte(mem.Imm32))
		case !isSPlike:
			b.emit8(modRM(2, g, base))
			b.emit32(uint32(mem.Imm32))
		case fits8(mem.Imm32): // isSPlike: needs a SIB escape, index=100 means none
			b.emit8(modRM(1, g, 4))
			b.emit8(sib(0, 4, base))
			b.emit8(byte(mem.Imm32))
		default: // isSPlike, displacement needs the 32-bit form
			b.emit8(modRM(2, g, 4))
			b.emit8(sib(0, 4, base))
			b.emit32(uint32(mem.Imm32))
		}
	case amd64.AModeIRRS:
		index := amd64.RegNum(mem.Index)
		base := amd64.RegNum(mem.Base)
		if mem.Index.Num() == amd64.RSP && amd64.RegBit3(mem.Index) == 0 {
			fail("SIB addressing mode cannot use %%rsp as an index register: %v", mem)
		}
		if fits8(mem.Imm32) {
			b.emit8(modRM(1, g, 4))
			b.emit8(sib(mem.Scale, index, base))
			b.emit8(byte(mem.Imm32))
		} else {
			b.emit8(modRM(2, g, 4))
			b.emit8(sib(mem.Scale, index, base))
			b.emit32(uint32(mem.Imm32))
		}
	default:
		fail("unknown addressing mode tag %d", mem.Tag)
	}
}

// rexForAddr computes the REX bits an addressing-mode operand contributes:
// X from the index register (IRRS only), B from the base register.
func rexForAddr(mem amd64.AMode) (x, b uint8) {
	if mem.Tag == amd64.AModeIRRS {
		x = amd64.RegBit3(mem.Index)
	}
	b = amd64.RegBit3(mem.Base)
	return
}
