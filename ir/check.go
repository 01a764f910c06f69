package ir

import "fmt"

// InvariantError is panicked by Check when an IRBB violates one of the
// invariants in spec.md §3/§8. These are programmer (front-end) bugs, never
// user-visible errors (spec.md §7 category 2): callers are expected to let
// this panic propagate, not recover and continue.
type InvariantError struct {
	Component string
	Message   string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("ir: invariant violation in %s: %s", e.Component, e.Message)
}

func fail(format string, args ...any) {
	panic(&InvariantError{Component: "ir.Check", Message: fmt.Sprintf(format, args...)})
}

// Check verifies a BB against the invariants spec.md §3 and §8 require of
// every IRBB produced by a front end or rewritten by the optimizer:
//
//  1. every Tmp use has a defining statement earlier in the list;
//  2. (implied by 1, since statements are linear — see spec.md §3 invariant 2)
//  3. expression types are consistent with operator signatures and with the
//     type declared for any Tmp they are assigned to;
//  4. Next has type GuestPtrType;
//  5. every Dirty statement's declared footprint is well-formed.
//
// Check panics (via InvariantError) on the first violation found; it never
// returns an error value, matching spec.md §7's classification of invariant
// violations as unrecoverable.
func Check(b *BB) {
	defined := make(map[uint32]Type)

	for i, s := range b.Stmts {
		switch st := s.(type) {
		case *TmpDef:
			checkExpr(st.Expr, defined, i)
			declTy, ok := b.TypeEnv[st.ID]
			if !ok {
				fail("statement %d: t%d assigned but not present in TypeEnv", i, st.ID)
			}
			if declTy != st.Expr.Type() {
				fail("statement %d: t%d declared %v but assigned expr of type %v", i, st.ID, declTy, st.Expr.Type())
			}
			if _, already := defined[st.ID]; already {
				fail("statement %d: t%d assigned more than once (SSA violation)", i, st.ID)
			}
			defined[st.ID] = declTy
		case *Put:
			checkExpr(st.Data, defined, i)
		case *PutI:
			checkExpr(st.Ix, defined, i)
			if st.Ix.Type() != I32 {
				fail("statement %d: PutI index must be I32, got %v", i, st.Ix.Type())
			}
			checkExpr(st.Data, defined, i)
			if st.Data.Type() != st.Descr.ElemType {
				fail("statement %d: PutI data type %v does not match descriptor elem type %v", i, st.Data.Type(), st.Descr.ElemType)
			}
		case *Store:
			checkExpr(st.Addr, defined, i)
			checkExpr(st.Data, defined, i)
		case *Dirty:
			for _, a := range st.Args {
				checkExpr(a, defined, i)
			}
			if st.MFx != MemNone {
				if st.MAddr == nil {
					fail("statement %d: Dirty declares MFx=%v but has no MAddr", i, st.MFx)
				}
				checkExpr(st.MAddr, defined, i)
				if st.MSize <= 0 {
					fail("statement %d: Dirty declares non-positive MSize %d", i, st.MSize)
				}
			}
			if st.RetTmp >= 0 {
				declTy, ok := b.TypeEnv[uint32(st.RetTmp)]
				if !ok || declTy != st.RetType {
					fail("statement %d: Dirty RetTmp t%d type mismatch", i, st.RetTmp)
				}
				defined[uint32(st.RetTmp)] = declTy
			}
		case *MFence:
			// no operands
		case *Exit:
			checkExpr(st.GuardCond, defined, i)
			if st.GuardCond.Type() != I1 {
				fail("statement %d: Exit guard must be I1, got %v", i, st.GuardCond.Type())
			}
		default:
			fail("statement %d: unknown statement kind %T", i, s)
		}
	}

	if b.Next == nil {
		fail("block has nil Next expression")
	}
	checkExpr(b.Next, defined, len(b.Stmts))
	if b.Next.Type() != b.GuestPtrType {
		fail("block Next has type %v, want guest pointer type %v", b.Next.Type(), b.GuestPtrType)
	}
}

// checkExpr walks e verifying every Tmp reference is dominated by its
// defining statement (spec.md §3 invariants 1-2: "statements are linear, so
// the defining statement appears earlier in the list") and that operator
// argument types match their declared signatures (invariant 3).
func checkExpr(e Expr, defined map[uint32]Type, atStmt int) {
	switch x := e.(type) {
	case *Get:
		// no operands
	case *GetI:
		checkExpr(x.Ix, defined, atStmt)
		if x.Ix.Type() != I32 {
			fail("statement %d: GetI index must be I32, got %v", atStmt, x.Ix.Type())
		}
	case Tmp:
		ty, ok := defined[x.ID]
		if !ok {
			fail("statement %d: use of t%d before its definition (or undefined)", atStmt, x.ID)
		}
		if ty != x.Ty {
			fail("statement %d: t%d used at type %v but defined at type %v", atStmt, x.ID, x.Ty, ty)
		}
	case *Binop:
		checkExpr(x.A, defined, atStmt)
		checkExpr(x.B, defined, atStmt)
		want := x.Op.ArgType()
		if x.A.Type() != want || x.B.Type() != want {
			fail("statement %d: %v expects args of type %v, got (%v,%v)", atStmt, x.Op, want, x.A.Type(), x.B.Type())
		}
	case *Unop:
		checkExpr(x.X, defined, atStmt)
		if x.X.Type() != x.Op.ArgType() {
			fail("statement %d: %v expects arg of type %v, got %v", atStmt, x.Op, x.Op.ArgType(), x.X.Type())
		}
	case *Load:
		checkExpr(x.Addr, defined, atStmt)
	case ConstExpr:
		// no operands
	case *CCall:
		for _, a := range x.Args {
			checkExpr(a, defined, atStmt)
		}
	case *Mux0X:
		checkExpr(x.Cond8, defined, atStmt)
		if x.Cond8.Type() != I8 {
			fail("statement %d: Mux0X condition must be I8, got %v", atStmt, x.Cond8.Type())
		}
		checkExpr(x.ThenE, defined, atStmt)
		checkExpr(x.ElseE, defined, atStmt)
		if x.ThenE.Type() != x.ElseE.Type() {
			fail("statement %d: Mux0X arms have mismatched types %v vs %v", atStmt, x.ThenE.Type(), x.ElseE.Type())
		}
	default:
		fail("statement %d: unknown expr kind %T", atStmt, e)
	}
}
