// Package opt implements the IR optimizer: purely local rewrites over one
// IRBB at a time (spec.md §4.1). It never introduces new observable state
// writes and never reorders statements whose footprints intersect.
package opt

import (
	"github.com/sirupsen/logrus"

	"github.com/ktstephano-successor/dbtcore/ir"
)

// Options configures a Run. A nil Logger or HelperSpec disables the
// corresponding feature; this mirrors the teacher's nil-checked optional
// debug sink (GVM.debugOut) rather than requiring a no-op stub.
type Options struct {
	HelperSpec HelperSpec
	Logger     *logrus.Entry
}

// Run rewrites b in place and returns it, applying every pass in spec.md
// §4.1: specialization, constant folding and identity collapse (via
// rewriteExpr, applied to every statement and to Next), then dead-Put
// elimination, then dead-temp elimination. The returned block satisfies
// ir.Check if the input did.
func Run(b *ir.BB, opts Options) *ir.BB {
	log := opts.Logger

	for i, s := range b.Stmts {
		b.Stmts[i] = rewriteStmt(s, opts.HelperSpec)
	}
	b.Next = rewriteExpr(b.Next, opts.HelperSpec)

	before := len(b.Stmts)
	b.Stmts = removeDeadPuts(b.Stmts)
	b.Stmts = removeDeadTmps(b.Stmts, b.Next)
	if log != nil && len(b.Stmts) != before {
		log.WithFields(logrus.Fields{
			"before": before,
			"after":  len(b.Stmts),
		}).Debug("opt: removed dead statements")
	}

	return b
}

func rewriteStmt(s ir.Stmt, hs HelperSpec) ir.Stmt {
	switch st := s.(type) {
	case *ir.TmpDef:
		return &ir.TmpDef{ID: st.ID, Expr: rewriteExpr(st.Expr, hs)}
	case *ir.Put:
		return &ir.Put{Offset: st.Offset, Data: rewriteExpr(st.Data, hs)}
	case *ir.PutI:
		return &ir.PutI{Descr: st.Descr, Ix: rewriteExpr(st.Ix, hs), Bias: st.Bias, Data: rewriteExpr(st.Data, hs)}
	case *ir.Store:
		return &ir.Store{End: st.End, Addr: rewriteExpr(st.Addr, hs), Data: rewriteExpr(st.Data, hs)}
	case *ir.Dirty:
		args := make([]ir.Expr, len(st.Args))
		for i, a := range st.Args {
			args[i] = rewriteExpr(a, hs)
		}
		cp := *st
		cp.Args = args
		if st.MAddr != nil {
			cp.MAddr = rewriteExpr(st.MAddr, hs)
		}
		return &cp
	case *ir.Exit:
		return &ir.Exit{GuardCond: rewriteExpr(st.GuardCond, hs), Jump: st.Jump, Target: st.Target}
	case *ir.MFence:
		return st
	default:
		return s
	}
}

// removeDeadTmps drops any `Tmp(id) := e` statement whose id is never used
// by a later statement or by Next, provided e is pure — which every IR
// expression is by construction (spec.md §3: only Dirty is impure, and
// Dirty is a Stmt, never wrapped in a TmpDef-able Expr) (spec.md §4.1
// "Dead-temporary elimination").
func removeDeadTmps(stmts []ir.Stmt, next ir.Expr) []ir.Stmt {
	used := make(map[uint32]bool)
	markUsesInExpr(next, used)

	// Single backward sweep: a TmpDef's uses are only marked live if the
	// TmpDef itself survives, so eliminating t2 := f(t1) also lets t1 go
	// dead in the same pass rather than requiring a fixpoint iteration.
	keep := make([]bool, len(stmts))
	for i := len(stmts) - 1; i >= 0; i-- {
		s := stmts[i]
		if td, ok := s.(*ir.TmpDef); ok && !used[td.ID] {
			continue
		}
		keep[i] = true
		markUsesInStmt(s, used)
	}

	out := make([]ir.Stmt, 0, len(stmts))
	for i, s := range stmts {
		if keep[i] {
			out = append(out, s)
		}
	}
	return out
}

func markUsesInStmt(s ir.Stmt, used map[uint32]bool) {
	switch st := s.(type) {
	case *ir.TmpDef:
		markUsesInExpr(st.Expr, used)
	case *ir.Put:
		markUsesInExpr(st.Data, used)
	case *ir.PutI:
		markUsesInExpr(st.Ix, used)
		markUsesInExpr(st.Data, used)
	case *ir.Store:
		markUsesInExpr(st.Addr, used)
		markUsesInExpr(st.Data, used)
	case *ir.Dirty:
		for _, a := range st.Args {
			markUsesInExpr(a, used)
		}
		if st.MAddr != nil {
			markUsesInExpr(st.MAddr, used)
		}
	case *ir.Exit:
		markUsesInExpr(st.GuardCond, used)
	}
}

func markUsesInExpr(e ir.Expr, used map[uint32]bool) {
	switch x := e.(type) {
	case ir.Tmp:
		used[x.ID] = true
	case *ir.GetI:
		markUsesInExpr(x.Ix, used)
	case *ir.Binop:
		markUsesInExpr(x.A, used)
		markUsesInExpr(x.B, used)
	case *ir.Unop:
		markUsesInExpr(x.X, used)
	case *ir.Load:
		markUsesInExpr(x.Addr, used)
	case *ir.CCall:
		for _, a := range x.Args {
			markUsesInExpr(a, used)
		}
	case *ir.Mux0X:
		markUsesInExpr(x.Cond8, used)
		markUsesInExpr(x.ThenE, used)
		markUsesInExpr(x.ElseE, used)
	}
}
