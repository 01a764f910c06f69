// Package driver implements the middle-end pipeline glue of spec.md §4.5:
// given one already-decoded IRBB (the guest front end is explicitly out of
// scope here — see spec.md §1), it runs the optimizer, selector, register
// allocator, and assembler in order and returns the host byte buffer
// alongside the bookkeeping the host dispatcher and cache-invalidation
// logic need (spec.md §6 "Outputs").
package driver

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/ktstephano-successor/dbtcore/amd64"
	"github.com/ktstephano-successor/dbtcore/asmamd64"
	"github.com/ktstephano-successor/dbtcore/hreg"
	"github.com/ktstephano-successor/dbtcore/ir"
	"github.com/ktstephano-successor/dbtcore/isel"
	"github.com/ktstephano-successor/dbtcore/opt"
	"github.com/ktstephano-successor/dbtcore/regalloc"
	"github.com/ktstephano-successor/dbtcore/txctx"
)

// maxGuestExtents is spec.md §6's "up to 3 (base, length) pairs" bound on
// how many guest byte ranges one translation may report as consumed.
const maxGuestExtents = 3

// GuestExtent is one contiguous range of guest bytes this translation
// consumed, reported so the host's cache-invalidation logic can later
// detect overlap with a write to guest memory (spec.md §4.5).
type GuestExtent struct {
	Base   uint64
	Length uint32
}

// Result is Translate's full output: the position-independent host code,
// the guest ranges it was decoded from, and the terminator classification
// the host dispatcher switches on (spec.md §6 "Jump-kind vocabulary").
type Result struct {
	HostBytes []byte
	Extents   []GuestExtent
	Jump      ir.JumpKind
}

// SpillConfig is adapted rather than left to every caller to reinvent:
// every production translation spills to the same RBP-relative frame
// slot, since RBP is never in AllocableInt's allocable set (amd64.AllocableInt
// reserves it "so the assembler's prologue/spill-offset math stays
// simple") and is never touched by the GSPReg/ReturnTargetReg/
// ReturnJumpKindReg convention either.
func SpillConfig(spillBase int32) regalloc.Config[amd64.Instr] {
	frame := amd64.PInt(amd64.RBP)
	return regalloc.Config[amd64.Instr]{
		Allocable: map[hreg.Class][]hreg.Reg{
			amd64.Int64: amd64.AllocableInt(),
			amd64.Flt64: amd64.AllocableFlt(),
		},
		MakeSpill: func(class hreg.Class, phys hreg.Reg, slot int32) amd64.Instr {
			return amd64.Instr{Tag: amd64.IStore, Mem: amd64.NewAModeIR(slot, frame), Src: amd64.RMIReg(phys), W: 8}
		},
		MakeReload: func(class hreg.Class, phys hreg.Reg, slot int32) amd64.Instr {
			return amd64.Instr{Tag: amd64.ILoad, Dst: phys, Mem: amd64.NewAModeIR(slot, frame), W: 8}
		},
		SlotSize:  8,
		SpillBase: spillBase,
	}
}

// Options configures one Translate call: the allocator's spill/physical-
// register configuration. (The optimizer's specialization hook is threaded
// from ctx.Caps.HelperSpec by Translate itself, not configured here.)
type Options struct {
	RegAlloc regalloc.Config[amd64.Instr]
}

// DefaultOptions bundles SpillConfig(spillBase) the way txctx.New bundles
// its own sane defaults, so a caller with no unusual allocation
// requirements can write driver.Translate(b, extents, ctx, driver.DefaultOptions(0)).
func DefaultOptions(spillBase int32) Options {
	return Options{RegAlloc: SpillConfig(spillBase)}
}

// Translate runs spec.md §4.5's pipeline — optimize, select, allocate,
// assemble — over one already-decoded IRBB and returns the host bytes plus
// the bookkeeping spec.md §6 asks for. extents is the guest-extents list
// the (out-of-scope) front end already computed; Translate validates and
// threads it through unchanged.
//
// Panics (never returns an error) on any spec.md §7 category-2 invariant
// violation: a malformed input IRBB, a tiling failure in the selector, an
// allocation failure, or an assembler overflow. The only user-visible
// outcome that is not a panic is b.Jump == ir.JumpNoDecode, which the
// front end already encoded into b before calling Translate.
func Translate(b *ir.BB, extents []GuestExtent, ctx *txctx.Context, opts Options) Result {
	if len(extents) > maxGuestExtents {
		panic(&ir.InvariantError{Component: "driver", Message: "more than 3 guest extents reported"})
	}

	ir.Check(b)
	ctx.TraceBB(txctx.TraceIR, "input", b)

	b = opt.Run(b, opt.Options{
		HelperSpec: opt.HelperSpec(ctx.Caps.HelperSpec),
		Logger:     ctx.Log,
	})
	ir.Check(b)
	ctx.TraceBB(txctx.TraceIR, "optimized", b)

	sel := isel.SelectBlock(b, ctx)
	if ctx.Tracing(txctx.TraceSelect) {
		ctx.Log.WithField("stage", "select").Debug("\n" + dumpInstrs(sel.Instrs))
	}

	allocated := regalloc.Allocate(sel.Instrs, opts.RegAlloc)
	if ctx.Tracing(txctx.TraceAlloc) {
		ctx.Log.WithField("stage", "alloc").Debug("\n" + dumpInstrs(allocated))
	}

	hostBytes := asmamd64.Assemble(allocated)
	if ctx.Tracing(txctx.TraceAsm) {
		ctx.Log.WithFields(logrus.Fields{"stage": "asm", "bytes": len(hostBytes)}).Debug("assembled")
	}

	return Result{HostBytes: hostBytes, Extents: extents, Jump: sel.JumpKind}
}

func dumpInstrs(instrs []amd64.Instr) string {
	var sb strings.Builder
	for i, in := range instrs {
		fmt.Fprintf(&sb, "%3d: %s\n", i, in)
	}
	return sb.String()
}
