package ir

import "fmt"

// Stmt is a side-effecting IR statement; a block's statements execute in
// listed order (spec.md §3). As with Expr, implementations are a closed
// set meant to be switched over exhaustively.
type Stmt interface {
	fmt.Stringer
	isStmt()
}

// TmpDef binds a temporary: `Tmp(ID) := Expr`. It is the unique defining
// statement for ID within its block (spec.md §3 invariant 1).
type TmpDef struct {
	ID   uint32
	Expr Expr
}

func (s *TmpDef) isStmt() {}
func (s *TmpDef) String() string {
	return fmt.Sprintf("t%d = %s", s.ID, s.Expr)
}

// Put writes guest state at a fixed byte offset.
type Put struct {
	Offset int32
	Data   Expr
}

func (s *Put) isStmt() {}
func (s *Put) String() string {
	return fmt.Sprintf("PUT(%d) = %s", s.Offset, s.Data)
}

// PutI is an indexed write into an ArrayDescr region, the dual of GetI.
type PutI struct {
	Descr ArrayDescr
	Ix    Expr // I32
	Bias  int32
	Data  Expr
}

func (s *PutI) isStmt() {}
func (s *PutI) String() string {
	return fmt.Sprintf("PUTI(base=%d,n=%d)[%s,%d] = %s", s.Descr.Base, s.Descr.NumElems, s.Ix, s.Bias, s.Data)
}

// Store is a pure-addressed memory write.
type Store struct {
	End  Endian
	Addr Expr
	Data Expr
}

func (s *Store) isStmt() {}
func (s *Store) String() string {
	return fmt.Sprintf("ST%s(%s) = %s", s.End, s.Addr, s.Data)
}

// MemFx classifies how a Dirty call touches the memory range it declares.
type MemFx uint8

const (
	MemNone MemFx = iota
	MemRead
	MemWrite
	MemModify
)

func (f MemFx) String() string {
	switch f {
	case MemNone:
		return "none"
	case MemRead:
		return "R"
	case MemWrite:
		return "W"
	case MemModify:
		return "M"
	default:
		return fmt.Sprintf("MemFx(%d)", uint8(f))
	}
}

// StateFx declares a single guest-state field Dirty reads or writes, used
// so the optimizer can test footprint intersection against Get/Put/GetI/PutI
// statements (spec.md §3 invariant 5).
type StateFx struct {
	Offset int32
	Size   int32
	Write  bool // false: read, true: write (read+write is two entries)
}

// Dirty is an impure helper call: the only way the pure IR expresses
// effects it cannot otherwise model (spec.md §3). It declares, and must
// declare fully and accurately, every memory range and guest-state field it
// touches (spec.md §3 invariant 5) — the optimizer treats an under-declared
// Dirty as a correctness bug, not something it can safely reorder around.
type Dirty struct {
	Callee string
	// Addr is the helper's host-resolved entry address, exactly as CCall.Addr
	// (spec.md §1: the front end resolves Callee before this module ever
	// sees the block); Callee remains only a debug label.
	Addr uint64
	// MAddr/MSize, when MFx != MemNone, describe the memory range touched.
	MAddr Expr
	MSize int32
	MFx   MemFx
	// GuestState lists every guest-state field this call reads or writes.
	GuestState []StateFx
	// RetTmp, if >= 0, is the temporary the call's return value is bound to.
	RetTmp    int64
	RetType   Type
	Args      []Expr
}

func (s *Dirty) isStmt() {}
func (s *Dirty) String() string {
	ret := ""
	if s.RetTmp >= 0 {
		ret = fmt.Sprintf("t%d = ", s.RetTmp)
	}
	return fmt.Sprintf("%sDIRTY %s(%s) [mFx=%s]", ret, s.Callee, exprSliceString(s.Args), s.MFx)
}

// TouchesOffset reports whether this Dirty statement's declared
// guest-state effects overlap the range [offset, offset+size); its
// declared memory effect is not considered (spec.md §4.1).
func (s *Dirty) TouchesOffset(offset, size int32) bool {
	for _, fx := range s.GuestState {
		if rangesOverlap(fx.Offset, fx.Size, offset, size) {
			return true
		}
	}
	return false
}

func rangesOverlap(off1, sz1, off2, sz2 int32) bool {
	return off1 < off2+sz2 && off2 < off1+sz1
}

// MFence is a memory barrier: never reordered relative to any Load/Store/Dirty.
type MFence struct{}

func (s *MFence) isStmt()      {}
func (s *MFence) String() string { return "MFENCE" }

// JumpKind classifies how control leaves a block, consumed by the host
// dispatcher (spec.md §6 "Jump-kind vocabulary"). The integer values are
// part of the wire contract with the host dispatcher and must stay stable.
type JumpKind uint8

const (
	JumpBoring JumpKind = iota
	JumpCall
	JumpRet
	JumpSyscall
	JumpClientReq
	JumpYield
	JumpEmWarn
	JumpMapFail
	JumpNoDecode
)

func (k JumpKind) String() string {
	switch k {
	case JumpBoring:
		return "Boring"
	case JumpCall:
		return "Call"
	case JumpRet:
		return "Ret"
	case JumpSyscall:
		return "Syscall"
	case JumpClientReq:
		return "ClientReq"
	case JumpYield:
		return "Yield"
	case JumpEmWarn:
		return "EmWarn"
	case JumpMapFail:
		return "MapFail"
	case JumpNoDecode:
		return "NoDecode"
	default:
		return fmt.Sprintf("JumpKind(%d)", uint8(k))
	}
}

// Exit is a mid-block side exit: when GuardCond (an I1) holds, control
// leaves the block toward Target with the given JumpKind; otherwise
// execution falls through to the next statement. Exit is never reorderable
// with prior Puts (spec.md §3).
type Exit struct {
	GuardCond Expr // I1
	Jump      JumpKind
	Target    Const
}

func (s *Exit) isStmt() {}
func (s *Exit) String() string {
	return fmt.Sprintf("if (%s) exit-%s to %s", s.GuardCond, s.Jump, s.Target)
}
