package opt

import "github.com/ktstephano-successor/dbtcore/ir"

// HelperSpec is the front end's hook to fold architecture-specific helper
// calls when it can see through their arguments (spec.md §4.1). It returns
// a replacement expression and true when it can specialize name(args...),
// or (nil, false) to leave the CCall alone. The returned expression must be
// semantically equivalent to CCall(name, retType, args...).
type HelperSpec func(name string, retType ir.Type, args []ir.Expr) (ir.Expr, bool)

// rewriteExpr returns a semantically equivalent, simplified expression tree
// for e: constants are folded bottom-up, a small set of algebraic
// identities are collapsed, and pure CCalls are offered to helperSpec
// (spec.md §4.1 "Rewrites permitted").
func rewriteExpr(e ir.Expr, helperSpec HelperSpec) ir.Expr {
	switch x := e.(type) {
	case *ir.Get, *ir.GetI, ir.Tmp, ir.ConstExpr:
		return e

	case *ir.Binop:
		a := rewriteExpr(x.A, helperSpec)
		b := rewriteExpr(x.B, helperSpec)
		if ac, ok := a.(ir.ConstExpr); ok {
			if bc, ok := b.(ir.ConstExpr); ok {
				if folded, ok := foldBinop(x.Op, ac.C, bc.C); ok {
					return ir.ConstExpr{C: folded}
				}
			}
		}
		if simplified, ok := collapseBinopIdentity(x.Op, a, b); ok {
			return simplified
		}
		if a == x.A && b == x.B {
			return x
		}
		return &ir.Binop{Op: x.Op, A: a, B: b}

	case *ir.Unop:
		inner := rewriteExpr(x.X, helperSpec)
		if ic, ok := inner.(ir.ConstExpr); ok {
			if folded, ok := foldUnop(x.Op, ic.C); ok {
				return ir.ConstExpr{C: folded}
			}
		}
		if simplified, ok := collapseUnopIdentity(x.Op, inner); ok {
			return simplified
		}
		if inner == x.X {
			return x
		}
		return &ir.Unop{Op: x.Op, X: inner}

	case *ir.Load:
		addr := rewriteExpr(x.Addr, helperSpec)
		if addr == x.Addr {
			return x
		}
		return &ir.Load{End: x.End, Ty: x.Ty, Addr: addr}

	case *ir.CCall:
		args := make([]ir.Expr, len(x.Args))
		changed := false
		for i, a := range x.Args {
			args[i] = rewriteExpr(a, helperSpec)
			if args[i] != a {
				changed = true
			}
		}
		if helperSpec != nil {
			if specialized, ok := helperSpec(x.Callee, x.RetType, args); ok {
				return specialized
			}
		}
		if !changed {
			return x
		}
		return &ir.CCall{Callee: x.Callee, Addr: x.Addr, RetType: x.RetType, Args: args, Defined: x.Defined}

	case *ir.Mux0X:
		cond := rewriteExpr(x.Cond8, helperSpec)
		then := rewriteExpr(x.ThenE, helperSpec)
		els := rewriteExpr(x.ElseE, helperSpec)
		if cc, ok := cond.(ir.ConstExpr); ok {
			if cc.C.AsU64() == 0 {
				return then
			}
			return els
		}
		if cond == x.Cond8 && then == x.ThenE && els == x.ElseE {
			return x
		}
		return &ir.Mux0X{Cond8: cond, ThenE: then, ElseE: els}

	default:
		return e
	}
}

// collapseBinopIdentity implements spec.md §4.1's "Identity collapses":
// Add x 0, Mul x 1, And x 0, Or x 0, shifts by 0. Each is checked against
// the concrete result type so a collapse never changes the expression's
// static type.
func collapseBinopIdentity(op ir.BinOp, a, b ir.Expr) (ir.Expr, bool) {
	isZero := func(e ir.Expr) bool {
		c, ok := e.(ir.ConstExpr)
		return ok && c.C.AsU64() == 0
	}
	isOne := func(e ir.Expr) bool {
		c, ok := e.(ir.ConstExpr)
		return ok && c.C.AsU64() == 1
	}
	switch op {
	case ir.OpAdd8, ir.OpAdd16, ir.OpAdd32, ir.OpAdd64:
		if isZero(b) {
			return a, true
		}
		if isZero(a) {
			return b, true
		}
	case ir.OpSub8, ir.OpSub16, ir.OpSub32, ir.OpSub64:
		if isZero(b) {
			return a, true
		}
	case ir.OpMul8, ir.OpMul16, ir.OpMul32, ir.OpMul64:
		if isOne(b) {
			return a, true
		}
		if isOne(a) {
			return b, true
		}
	case ir.OpAnd8, ir.OpAnd16, ir.OpAnd32, ir.OpAnd64:
		if isZero(a) {
			return a, true
		}
		if isZero(b) {
			return b, true
		}
	case ir.OpOr8, ir.OpOr16, ir.OpOr32, ir.OpOr64:
		if isZero(b) {
			return a, true
		}
		if isZero(a) {
			return b, true
		}
	case ir.OpXor8, ir.OpXor16, ir.OpXor32, ir.OpXor64:
		if isZero(b) {
			return a, true
		}
	case ir.OpShl32, ir.OpShrU32, ir.OpSarS32, ir.OpShl64, ir.OpShrU64, ir.OpSarS64:
		if isZero(b) {
			return a, true
		}
	}
	return nil, false
}

// collapseUnopIdentity implements "double negations" and "narrow-widen
// round-trips" (spec.md §4.1).
func collapseUnopIdentity(op ir.UnOp, x ir.Expr) (ir.Expr, bool) {
	inner, ok := x.(*ir.Unop)
	if !ok {
		return nil, false
	}
	switch {
	case op == ir.OpNot32 && inner.Op == ir.OpNot32,
		op == ir.OpNot64 && inner.Op == ir.OpNot64,
		op == ir.OpNeg32 && inner.Op == ir.OpNeg32,
		op == ir.OpNeg64 && inner.Op == ir.OpNeg64:
		return inner.X, true
	case op == ir.Op64to32 && inner.Op == ir.Op32Uto64:
		return inner.X, true
	case op == ir.Op64to32 && inner.Op == ir.Op32Sto64:
		return inner.X, true
	case op == ir.Op32to16 && inner.Op == ir.Op16Uto32:
		return inner.X, true
	case op == ir.Op32to16 && inner.Op == ir.Op16Sto32:
		return inner.X, true
	case op == ir.Op32to8 && inner.Op == ir.Op8Uto32:
		return inner.X, true
	case op == ir.Op32to8 && inner.Op == ir.Op8Sto32:
		return inner.X, true
	case op == ir.OpReinterpI64asF64 && inner.Op == ir.OpReinterpF64asI64:
		return inner.X, true
	case op == ir.OpReinterpF64asI64 && inner.Op == ir.OpReinterpI64asF64:
		return inner.X, true
	}
	return nil, false
}
