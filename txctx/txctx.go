// Package txctx implements TranslationContext: the single per-call bundle
// of capabilities, knobs, and logging that replaces the global mutable
// state a naive port of this pipeline would otherwise accumulate
// (spec.md §9 "Global mutable state").
package txctx

import (
	"io"

	"github.com/sirupsen/logrus"

	"github.com/ktstephano-successor/dbtcore/ir"
)

// HelperSpec resolves a CCall/Dirty callee name to whatever the optimizer
// or selector needs to know to specialize it; passed straight through to
// opt.Options.HelperSpec by driver.Translate.
type HelperSpec func(name string, retType ir.Type, args []ir.Expr) (ir.Expr, bool)

// Knobs are the translation-time resource limits spec.md §6 calls for, so
// a runaway or adversarial guest block cannot make a single translation
// consume unbounded host resources.
type Knobs struct {
	// GuestMaxInsns bounds how many guest instructions the front end may
	// fold into one IRBB before forcing a block boundary.
	GuestMaxInsns int

	// GuestChaseThresh bounds how many basic blocks the front end's
	// chase-into-next-block decision may follow from one entry point.
	GuestChaseThresh int

	// TraceFlags is a bitmask the pipeline's logging honors to decide
	// which stages emit a Dump() of their IR to the Logger (spec.md §6
	// "trace-flag bitmask"); 0 disables all per-stage tracing.
	TraceFlags uint32
}

const (
	TraceIR     uint32 = 1 << iota // dump input/output IRBB at each stage
	TraceSelect                    // dump selected-but-unallocated instructions
	TraceAlloc                     // dump the instruction list after register allocation
	TraceAsm                       // log the assembled byte count
)

// Capabilities are the host-supplied callbacks a translation may need to
// consult but must never assume the existence of without checking
// (spec.md §6): whether an address is safe to read without faulting, and
// whether chasing into a successor block is permitted right now.
type Capabilities struct {
	// ByteAccessible reports whether size bytes starting at addr are
	// readable in the guest's current memory map. Nil means "the front
	// end making this decision has no such oracle"; callers must treat
	// that as "assume accessible" only where spec.md says that's safe.
	ByteAccessible func(addr uint64, size int) bool

	// ChaseIntoOK reports whether the front end may fold target into the
	// block currently being built rather than ending the block there.
	ChaseIntoOK func(target uint64) bool

	// HelperSpec resolves pure-helper specialization opportunities for
	// the optimizer (spec.md §4.1 "helper-call specialization").
	HelperSpec HelperSpec
}

// Context bundles everything one Translate() call needs: capabilities,
// knobs, and a logger, in place of package-level globals (spec.md §9).
type Context struct {
	Caps  Capabilities
	Knobs Knobs
	Log   *logrus.Entry
}

// New builds a Context with sane defaults: no capability oracles, the
// knob defaults below, and a logrus logger writing to w at InfoLevel (or
// io.Discard if w is nil).
func New(w io.Writer) *Context {
	logger := logrus.New()
	if w == nil {
		logger.SetOutput(io.Discard)
	} else {
		logger.SetOutput(w)
	}
	return &Context{
		Knobs: Knobs{
			GuestMaxInsns:    50,
			GuestChaseThresh: 10,
		},
		Log: logrus.NewEntry(logger),
	}
}

// Tracing reports whether every flag in want is set in the context's
// TraceFlags.
func (c *Context) Tracing(want uint32) bool {
	return c.Knobs.TraceFlags&want == want
}

// TraceBB logs label and b.Dump() at debug level when want is enabled,
// the pipeline stages' common "should I dump my IR" check.
func (c *Context) TraceBB(want uint32, label string, b *ir.BB) {
	if c.Tracing(want) {
		c.Log.WithField("stage", label).Debug("\n" + b.Dump())
	}
}
