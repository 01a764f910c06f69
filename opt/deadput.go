package opt

import "github.com/ktstephano-successor/dbtcore/ir"

type pendingPut struct {
	index int32
	size  int32
}

// removeDeadPuts implements spec.md §4.1's "Dead-Put elimination": a
// Put(offset, _) that is killed by a later Put of the same offset and
// equal-or-wider width, with no intervening read of that offset and no
// intervening dirty call reading it, may be removed.
//
// A single forward sweep tracks, per offset, the most recent not-yet-known-
// dead Put; any statement that could observe guest state (a Get at that
// offset, a GetI of unknown aliasing, a Dirty reading state, MFence, or an
// Exit, which must see every prior Put per spec.md §3) invalidates the
// pending entry for the offsets it could read.
func removeDeadPuts(stmts []ir.Stmt) []ir.Stmt {
	pending := make(map[int32]pendingPut)
	dead := make([]bool, len(stmts))

	invalidate := func(offset, size int32) {
		for poff, p := range pending {
			if rangesOverlap(poff, p.size, offset, size) {
				delete(pending, poff)
			}
		}
	}
	invalidateAll := func() {
		pending = make(map[int32]pendingPut)
	}
	scanReads := func(e ir.Expr) {
		walkGets(e, invalidate)
	}

	for i, s := range stmts {
		idx32 := int32(i)
		switch st := s.(type) {
		case *ir.TmpDef:
			scanReads(st.Expr)
		case *ir.Put:
			scanReads(st.Data)
			size := int32(st.Data.Type().Width())
			if prev, ok := pending[st.Offset]; ok && size >= prev.size {
				dead[prev.index] = true
			}
			pending[st.Offset] = pendingPut{index: idx32, size: size}
		case *ir.PutI:
			scanReads(st.Ix)
			scanReads(st.Data)
			// Indexed writes may alias any fixed offset; conservative.
			invalidateAll()
		case *ir.Store:
			scanReads(st.Addr)
			scanReads(st.Data)
		case *ir.Dirty:
			for _, a := range st.Args {
				scanReads(a)
			}
			if st.MAddr != nil {
				scanReads(st.MAddr)
			}
			for _, fx := range st.GuestState {
				invalidate(fx.Offset, fx.Size)
			}
		case *ir.MFence:
			invalidateAll()
		case *ir.Exit:
			scanReads(st.GuardCond)
			// A side exit must observe every Put executed so far.
			invalidateAll()
		}
	}

	out := make([]ir.Stmt, 0, len(stmts))
	for i, s := range stmts {
		if !dead[i] {
			out = append(out, s)
		}
	}
	return out
}

func rangesOverlap(off1, sz1, off2, sz2 int32) bool {
	return off1 < off2+sz2 && off2 < off1+sz1
}

// walkGets invokes fn(offset, size) for every Get this expression reads,
// including Gets nested under GetI's index expression. A GetI reports its
// whole descriptor region, since which element it reads is not known.
func walkGets(e ir.Expr, fn func(offset, size int32)) {
	switch x := e.(type) {
	case *ir.Get:
		fn(x.Offset, int32(x.Ty.Width()))
	case *ir.GetI:
		fn(x.Descr.Base, int32(x.Descr.NumElems*x.Descr.ElemType.Width()))
		walkGets(x.Ix, fn)
	case *ir.Binop:
		walkGets(x.A, fn)
		walkGets(x.B, fn)
	case *ir.Unop:
		walkGets(x.X, fn)
	case *ir.Load:
		walkGets(x.Addr, fn)
	case *ir.CCall:
		for _, a := range x.Args {
			walkGets(a, fn)
		}
	case *ir.Mux0X:
		walkGets(x.Cond8, fn)
		walkGets(x.ThenE, fn)
		walkGets(x.ElseE, fn)
	}
}
