package ir

import (
	"fmt"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

// BB is one IR basic block: a type environment plus an ordered list of
// statements, terminated by a successor expression and a JumpKind
// (spec.md §3 "IR basic block").
type BB struct {
	// TypeEnv maps temporary id to its declared type. Every Tmp use must
	// agree with this map (invariant 3).
	TypeEnv map[uint32]Type

	Stmts []Stmt

	// Next evaluates to the successor guest address; its type must equal
	// GuestPtrType (invariant 4).
	Next Expr
	Jump JumpKind

	// GuestPtrType is the architectural pointer width of the guest this
	// block was decoded from (e.g. I64 for AMD64/ARM64, I32 for ARM).
	GuestPtrType Type
}

// NewBB constructs an empty block for a guest architecture with the given
// pointer width.
func NewBB(guestPtrType Type) *BB {
	return &BB{
		TypeEnv:      make(map[uint32]Type),
		GuestPtrType: guestPtrType,
	}
}

// DeclareTmp registers ty as the type of temporary id. Panics if id was
// already declared with a different type — the front end is expected to
// allocate fresh ids per spec.md's single-assignment invariant.
func (b *BB) DeclareTmp(id uint32, ty Type) {
	if existing, ok := b.TypeEnv[id]; ok && existing != ty {
		panic(fmt.Sprintf("ir: BB.DeclareTmp: t%d redeclared as %v, was %v", id, ty, existing))
	}
	b.TypeEnv[id] = ty
}

// Append adds a statement to the block's linear order.
func (b *BB) Append(s Stmt) {
	b.Stmts = append(b.Stmts, s)
}

// Dump renders the block in a debug-friendly multi-line form, used by the
// pipeline's trace logging instead of a hand-written recursive printer.
func (b *BB) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "IRBB (guestPtr=%v, jump=%v)\n", b.GuestPtrType, b.Jump)
	for i, s := range b.Stmts {
		fmt.Fprintf(&sb, "  %3d: %s\n", i, s)
	}
	fmt.Fprintf(&sb, "  next: %s\n", b.Next)
	if len(b.TypeEnv) > 0 {
		sb.WriteString("  types: ")
		sb.WriteString(spew.Sdump(b.TypeEnv))
	}
	return sb.String()
}
