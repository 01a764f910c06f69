package amd64

import (
	"fmt"

	"github.com/ktstephano-successor/dbtcore/hreg"
)

// AModeTag discriminates the two addressing-mode shapes spec.md §3 names:
// "IR(imm32, base)" and "IRRS(imm32, base, index, log2Scale)".
type AModeTag uint8

const (
	AModeIR AModeTag = iota
	AModeIRRS
)

// AMode is AMD64's closed addressing-mode sum type (spec.md §3).
type AMode struct {
	Tag AModeTag

	// IR: Imm32(Base)
	Base hreg.Reg

	// IRRS: Imm32(Base, Index, Scale) — Index used only when Tag == AModeIRRS.
	Index hreg.Reg
	Scale uint8 // log2Scale in {0,1,2,3}

	Imm32 int32
}

// NewAModeIR builds the base-plus-displacement form.
func NewAModeIR(imm32 int32, base hreg.Reg) AMode {
	return AMode{Tag: AModeIR, Base: base, Imm32: imm32}
}

// NewAModeIRRS builds the base+index*scale+displacement form. log2Scale
// must be in {0,1,2,3} (spec.md §3).
func NewAModeIRRS(imm32 int32, base, index hreg.Reg, log2Scale uint8) AMode {
	if log2Scale > 3 {
		panic(fmt.Sprintf("amd64: NewAModeIRRS: log2Scale %d out of range [0,3]", log2Scale))
	}
	return AMode{Tag: AModeIRRS, Base: base, Index: index, Scale: log2Scale, Imm32: imm32}
}

func (a AMode) String() string {
	switch a.Tag {
	case AModeIR:
		return fmt.Sprintf("%d(%s)", a.Imm32, RegName(a.Base))
	case AModeIRRS:
		return fmt.Sprintf("%d(%s,%s,%d)", a.Imm32, RegName(a.Base), RegName(a.Index), 1<<a.Scale)
	default:
		return "amode?"
	}
}

// Regs returns the registers this addressing mode reads (base, and index
// when present), for register-use analysis (spec.md §3 "Operand classes").
func (a AMode) Regs() []hreg.Reg {
	if a.Tag == AModeIRRS {
		return []hreg.Reg{a.Base, a.Index}
	}
	return []hreg.Reg{a.Base}
}

// mapRegs rewrites the registers this AMode reads via remap, used by the
// register allocator's map_regs callback (spec.md §4.3).
func (a AMode) mapRegs(remap func(hreg.Reg) hreg.Reg) AMode {
	out := a
	out.Base = remap(a.Base)
	if a.Tag == AModeIRRS {
		out.Index = remap(a.Index)
	}
	return out
}

// OperandTag discriminates RMI's three shapes.
type OperandTag uint8

const (
	OperandReg OperandTag = iota
	OperandMem
	OperandImm
)

// RMI is "register | memory | immediate" (spec.md §3 "Operand classes"),
// used to restrict what each host-instruction field may hold.
type RMI struct {
	Tag OperandTag
	Reg hreg.Reg
	Mem AMode
	Imm int32
}

func RMIReg(r hreg.Reg) RMI { return RMI{Tag: OperandReg, Reg: r} }
func RMIMem(m AMode) RMI    { return RMI{Tag: OperandMem, Mem: m} }
func RMIImm(imm int32) RMI  { return RMI{Tag: OperandImm, Imm: imm} }

func (o RMI) String() string {
	switch o.Tag {
	case OperandReg:
		return RegName(o.Reg)
	case OperandMem:
		return o.Mem.String()
	case OperandImm:
		return fmt.Sprintf("$%d", o.Imm)
	default:
		return "rmi?"
	}
}

// Regs returns the registers this operand reads.
func (o RMI) Regs() []hreg.Reg {
	switch o.Tag {
	case OperandReg:
		return []hreg.Reg{o.Reg}
	case OperandMem:
		return o.Mem.Regs()
	default:
		return nil
	}
}

func (o RMI) mapRegs(remap func(hreg.Reg) hreg.Reg) RMI {
	switch o.Tag {
	case OperandReg:
		return RMIReg(remap(o.Reg))
	case OperandMem:
		return RMIMem(o.Mem.mapRegs(remap))
	default:
		return o
	}
}

// RM is "register | memory": an RMI restricted to exclude immediates.
type RM struct {
	Tag OperandTag // OperandReg or OperandMem only
	Reg hreg.Reg
	Mem AMode
}

func RMReg(r hreg.Reg) RM { return RM{Tag: OperandReg, Reg: r} }
func RMMem(m AMode) RM    { return RM{Tag: OperandMem, Mem: m} }

func (o RM) String() string {
	if o.Tag == OperandReg {
		return RegName(o.Reg)
	}
	return o.Mem.String()
}

func (o RM) Regs() []hreg.Reg {
	if o.Tag == OperandReg {
		return []hreg.Reg{o.Reg}
	}
	return o.Mem.Regs()
}

func (o RM) mapRegs(remap func(hreg.Reg) hreg.Reg) RM {
	if o.Tag == OperandReg {
		return RMReg(remap(o.Reg))
	}
	return RMMem(o.Mem.mapRegs(remap))
}

func (o RM) asRMI() RMI {
	if o.Tag == OperandReg {
		return RMIReg(o.Reg)
	}
	return RMIMem(o.Mem)
}

// RI is "register | immediate": an RMI restricted to exclude memory.
type RI struct {
	Tag OperandTag // OperandReg or OperandImm only
	Reg hreg.Reg
	Imm int32
}

func RIReg(r hreg.Reg) RI { return RI{Tag: OperandReg, Reg: r} }
func RIImm(imm int32) RI  { return RI{Tag: OperandImm, Imm: imm} }

func (o RI) String() string {
	if o.Tag == OperandReg {
		return RegName(o.Reg)
	}
	return fmt.Sprintf("$%d", o.Imm)
}

func (o RI) Regs() []hreg.Reg {
	if o.Tag == OperandReg {
		return []hreg.Reg{o.Reg}
	}
	return nil
}

func (o RI) mapRegs(remap func(hreg.Reg) hreg.Reg) RI {
	if o.Tag == OperandReg {
		return RIReg(remap(o.Reg))
	}
	return o
}
