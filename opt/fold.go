package opt

import (
	"math"

	"github.com/ktstephano-successor/dbtcore/ir"
)

// foldBinop evaluates a Binop whose operands are both ConstExpr, returning
// the folded constant and true, or ir.Const{} and false when a division's
// divisor is zero (the operation is left unfolded) or op has no
// constant-folding rule registered (the latter never happens for the
// closed catalogue in ir.BinOp, but keeps the function total rather than
// panicking on a catalogue gap introduced later).
func foldBinop(op ir.BinOp, a, b ir.Const) (ir.Const, bool) {
	switch op {
	case ir.OpAdd8:
		return ir.NewConstU8(uint8(a.AsU64()) + uint8(b.AsU64())), true
	case ir.OpAdd16:
		return ir.NewConstU16(uint16(a.AsU64()) + uint16(b.AsU64())), true
	case ir.OpAdd32:
		return ir.NewConstU32(uint32(a.AsU64()) + uint32(b.AsU64())), true
	case ir.OpAdd64:
		return ir.NewConstU64(a.AsU64() + b.AsU64()), true
	case ir.OpSub8:
		return ir.NewConstU8(uint8(a.AsU64()) - uint8(b.AsU64())), true
	case ir.OpSub16:
		return ir.NewConstU16(uint16(a.AsU64()) - uint16(b.AsU64())), true
	case ir.OpSub32:
		return ir.NewConstU32(uint32(a.AsU64()) - uint32(b.AsU64())), true
	case ir.OpSub64:
		return ir.NewConstU64(a.AsU64() - b.AsU64()), true
	case ir.OpMul8:
		return ir.NewConstU8(uint8(a.AsU64()) * uint8(b.AsU64())), true
	case ir.OpMul16:
		return ir.NewConstU16(uint16(a.AsU64()) * uint16(b.AsU64())), true
	case ir.OpMul32:
		return ir.NewConstU32(uint32(a.AsU64()) * uint32(b.AsU64())), true
	case ir.OpMul64:
		return ir.NewConstU64(a.AsU64() * b.AsU64()), true
	case ir.OpDivU32:
		if uint32(b.AsU64()) == 0 {
			return ir.Const{}, false
		}
		return ir.NewConstU32(uint32(a.AsU64()) / uint32(b.AsU64())), true
	case ir.OpDivU64:
		if b.AsU64() == 0 {
			return ir.Const{}, false
		}
		return ir.NewConstU64(a.AsU64() / b.AsU64()), true
	case ir.OpDivS32:
		if int32(b.AsU64()) == 0 {
			return ir.Const{}, false
		}
		return ir.NewConstU32(uint32(int32(a.AsU64()) / int32(b.AsU64()))), true
	case ir.OpDivS64:
		if int64(b.AsU64()) == 0 {
			return ir.Const{}, false
		}
		return ir.NewConstU64(uint64(int64(a.AsU64()) / int64(b.AsU64()))), true
	case ir.OpAnd8:
		return ir.NewConstU8(uint8(a.AsU64()) & uint8(b.AsU64())), true
	case ir.OpAnd16:
		return ir.NewConstU16(uint16(a.AsU64()) & uint16(b.AsU64())), true
	case ir.OpAnd32:
		return ir.NewConstU32(uint32(a.AsU64()) & uint32(b.AsU64())), true
	case ir.OpAnd64:
		return ir.NewConstU64(a.AsU64() & b.AsU64()), true
	case ir.OpOr8:
		return ir.NewConstU8(uint8(a.AsU64()) | uint8(b.AsU64())), true
	case ir.OpOr16:
		return ir.NewConstU16(uint16(a.AsU64()) | uint16(b.AsU64())), true
	case ir.OpOr32:
		return ir.NewConstU32(uint32(a.AsU64()) | uint32(b.AsU64())), true
	case ir.OpOr64:
		return ir.NewConstU64(a.AsU64() | b.AsU64()), true
	case ir.OpXor8:
		return ir.NewConstU8(uint8(a.AsU64()) ^ uint8(b.AsU64())), true
	case ir.OpXor16:
		return ir.NewConstU16(uint16(a.AsU64()) ^ uint16(b.AsU64())), true
	case ir.OpXor32:
		return ir.NewConstU32(uint32(a.AsU64()) ^ uint32(b.AsU64())), true
	case ir.OpXor64:
		return ir.NewConstU64(a.AsU64() ^ b.AsU64()), true
	case ir.OpShl32:
		return ir.NewConstU32(uint32(a.AsU64()) << (uint32(b.AsU64()) & 31)), true
	case ir.OpShl64:
		return ir.NewConstU64(a.AsU64() << (b.AsU64() & 63)), true
	case ir.OpShrU32:
		return ir.NewConstU32(uint32(a.AsU64()) >> (uint32(b.AsU64()) & 31)), true
	case ir.OpShrU64:
		return ir.NewConstU64(a.AsU64() >> (b.AsU64() & 63)), true
	case ir.OpSarS32:
		return ir.NewConstU32(uint32(int32(a.AsU64()) >> (uint32(b.AsU64()) & 31))), true
	case ir.OpSarS64:
		return ir.NewConstU64(uint64(int64(a.AsU64()) >> (b.AsU64() & 63))), true
	case ir.OpCmpEQ32:
		return ir.NewConstU1(uint32(a.AsU64()) == uint32(b.AsU64())), true
	case ir.OpCmpEQ64:
		return ir.NewConstU1(a.AsU64() == b.AsU64()), true
	case ir.OpCmpNE32:
		return ir.NewConstU1(uint32(a.AsU64()) != uint32(b.AsU64())), true
	case ir.OpCmpNE64:
		return ir.NewConstU1(a.AsU64() != b.AsU64()), true
	case ir.OpCmpLTU32:
		return ir.NewConstU1(uint32(a.AsU64()) < uint32(b.AsU64())), true
	case ir.OpCmpLTU64:
		return ir.NewConstU1(a.AsU64() < b.AsU64()), true
	case ir.OpCmpLTS32:
		return ir.NewConstU1(int32(a.AsU64()) < int32(b.AsU64())), true
	case ir.OpCmpLTS64:
		return ir.NewConstU1(int64(a.AsU64()) < int64(b.AsU64())), true
	case ir.OpCmpLEU32:
		return ir.NewConstU1(uint32(a.AsU64()) <= uint32(b.AsU64())), true
	case ir.OpCmpLEU64:
		return ir.NewConstU1(a.AsU64() <= b.AsU64()), true
	case ir.OpCmpLES32:
		return ir.NewConstU1(int32(a.AsU64()) <= int32(b.AsU64())), true
	case ir.OpCmpLES64:
		return ir.NewConstU1(int64(a.AsU64()) <= int64(b.AsU64())), true
	case ir.OpAddF64:
		return ir.NewConstF64(a.AsF64() + b.AsF64()), true
	case ir.OpSubF64:
		return ir.NewConstF64(a.AsF64() - b.AsF64()), true
	case ir.OpMulF64:
		return ir.NewConstF64(a.AsF64() * b.AsF64()), true
	case ir.OpDivF64:
		if b.AsF64() == 0 {
			return ir.Const{}, false
		}
		return ir.NewConstF64(a.AsF64() / b.AsF64()), true
	case ir.OpCmpF64:
		return ir.NewConstU32(uint32(cmpF64(a.AsF64(), b.AsF64()))), true
	default:
		return ir.Const{}, false
	}
}

// cmpF64 mirrors the ordered 3-way compare spec.md describes for cmpf
// (negative/0/positive), matching IEEE total order for non-NaN operands.
func cmpF64(a, b float64) int32 {
	switch {
	case math.IsNaN(a) || math.IsNaN(b):
		return 1 // unordered folds to "greater", conservative and stable
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func foldUnop(op ir.UnOp, a ir.Const) (ir.Const, bool) {
	switch op {
	case ir.OpNot8:
		return ir.NewConstU8(^uint8(a.AsU64())), true
	case ir.OpNot16:
		return ir.NewConstU16(^uint16(a.AsU64())), true
	case ir.OpNot32:
		return ir.NewConstU32(^uint32(a.AsU64())), true
	case ir.OpNot64:
		return ir.NewConstU64(^a.AsU64()), true
	case ir.OpNeg32:
		return ir.NewConstU32(uint32(-int32(a.AsU64()))), true
	case ir.OpNeg64:
		return ir.NewConstU64(uint64(-int64(a.AsU64()))), true
	case ir.OpNegF64:
		return ir.NewConstF64(-a.AsF64()), true
	case ir.Op8Uto32:
		return ir.NewConstU32(uint32(uint8(a.AsU64()))), true
	case ir.Op8Sto32:
		return ir.NewConstU32(uint32(int32(int8(uint8(a.AsU64()))))), true
	case ir.Op16Uto32:
		return ir.NewConstU32(uint32(uint16(a.AsU64()))), true
	case ir.Op16Sto32:
		return ir.NewConstU32(uint32(int32(int16(uint16(a.AsU64()))))), true
	case ir.Op32Uto64:
		return ir.NewConstU64(uint64(uint32(a.AsU64()))), true
	case ir.Op32Sto64:
		return ir.NewConstU64(uint64(int64(int32(uint32(a.AsU64()))))), true
	case ir.Op64to32:
		return ir.NewConstU32(uint32(a.AsU64())), true
	case ir.Op32to16:
		return ir.NewConstU16(uint16(a.AsU64())), true
	case ir.Op32to8:
		return ir.NewConstU8(uint8(a.AsU64())), true
	case ir.Op16to8:
		return ir.NewConstU8(uint8(a.AsU64())), true
	case ir.OpReinterpF64asI64:
		return ir.NewConstU64(a.AsU64()), true
	case ir.OpReinterpI64asF64:
		return ir.NewConstF64i(a.AsU64()), true
	case ir.OpI32StoF64:
		return ir.NewConstF64(float64(int32(a.AsU64()))), true
	case ir.OpF64toI32S:
		return ir.NewConstU32(uint32(int32(a.AsF64()))), true
	default:
		return ir.Const{}, false
	}
}
