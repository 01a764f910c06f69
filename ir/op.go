package ir

import "fmt"

// BinOp is the closed catalogue of pure binary IR operators (spec.md §3).
// Names follow the "Op<Width>" convention used throughout the front-end
// corpus this spec was distilled from (e.g. armg_calculate_* helpers
// operate on explicitly widthed values).
type BinOp uint16

const (
	OpAdd8 BinOp = iota
	OpAdd16
	OpAdd32
	OpAdd64
	OpSub8
	OpSub16
	OpSub32
	OpSub64
	OpMul8
	OpMul16
	OpMul32
	OpMul64
	OpDivU32
	OpDivU64
	OpDivS32
	OpDivS64

	OpAnd8
	OpAnd16
	OpAnd32
	OpAnd64
	OpOr8
	OpOr16
	OpOr32
	OpOr64
	OpXor8
	OpXor16
	OpXor32
	OpXor64

	OpShl32
	OpShl64
	OpShrU32 // logical right shift
	OpShrU64
	OpSarS32 // arithmetic right shift
	OpSarS64

	OpCmpEQ32
	OpCmpEQ64
	OpCmpNE32
	OpCmpNE64
	OpCmpLTU32
	OpCmpLTU64
	OpCmpLTS32
	OpCmpLTS64
	OpCmpLEU32
	OpCmpLEU64
	OpCmpLES32
	OpCmpLES64

	OpAddF64
	OpSubF64
	OpMulF64
	OpDivF64
	OpCmpF64 // IEEE unordered-aware compare, result I32 (spec.md condition set)
)

// UnOp is the closed catalogue of pure unary IR operators: bitwise NOT,
// widen/narrow conversions, and int<->float conversions (spec.md §3).
type UnOp uint16

const (
	OpNot8 UnOp = iota
	OpNot16
	OpNot32
	OpNot64

	OpNeg32
	OpNeg64
	OpNegF64

	Op8Uto32  // zero-extend
	Op8Sto32  // sign-extend
	Op16Uto32
	Op16Sto32
	Op32Uto64
	Op32Sto64
	Op64to32 // narrow, truncating
	Op32to16
	Op32to8
	Op16to8

	OpReinterpF64asI64
	OpReinterpI64asF64
	OpI32StoF64 // int-to-float
	OpF64toI32S // float-to-int, truncating
)

var binOpNames = map[BinOp]string{
	OpAdd8: "Add8", OpAdd16: "Add16", OpAdd32: "Add32", OpAdd64: "Add64",
	OpSub8: "Sub8", OpSub16: "Sub16", OpSub32: "Sub32", OpSub64: "Sub64",
	OpMul8: "Mul8", OpMul16: "Mul16", OpMul32: "Mul32", OpMul64: "Mul64",
	OpDivU32: "DivU32", OpDivU64: "DivU64", OpDivS32: "DivS32", OpDivS64: "DivS64",
	OpAnd8: "And8", OpAnd16: "And16", OpAnd32: "And32", OpAnd64: "And64",
	OpOr8: "Or8", OpOr16: "Or16", OpOr32: "Or32", OpOr64: "Or64",
	OpXor8: "Xor8", OpXor16: "Xor16", OpXor32: "Xor32", OpXor64: "Xor64",
	OpShl32: "Shl32", OpShl64: "Shl64",
	OpShrU32: "ShrU32", OpShrU64: "ShrU64",
	OpSarS32: "SarS32", OpSarS64: "SarS64",
	OpCmpEQ32: "CmpEQ32", OpCmpEQ64: "CmpEQ64",
	OpCmpNE32: "CmpNE32", OpCmpNE64: "CmpNE64",
	OpCmpLTU32: "CmpLTU32", OpCmpLTU64: "CmpLTU64",
	OpCmpLTS32: "CmpLTS32", OpCmpLTS64: "CmpLTS64",
	OpCmpLEU32: "CmpLEU32", OpCmpLEU64: "CmpLEU64",
	OpCmpLES32: "CmpLES32", OpCmpLES64: "CmpLES64",
	OpAddF64: "AddF64", OpSubF64: "SubF64", OpMulF64: "MulF64", OpDivF64: "DivF64",
	OpCmpF64: "CmpF64",
}

func (op BinOp) String() string {
	if s, ok := binOpNames[op]; ok {
		return s
	}
	return fmt.Sprintf("BinOp(%d)", uint16(op))
}

var unOpNames = map[UnOp]string{
	OpNot8: "Not8", OpNot16: "Not16", OpNot32: "Not32", OpNot64: "Not64",
	OpNeg32: "Neg32", OpNeg64: "Neg64", OpNegF64: "NegF64",
	Op8Uto32: "8Uto32", Op8Sto32: "8Sto32",
	Op16Uto32: "16Uto32", Op16Sto32: "16Sto32",
	Op32Uto64: "32Uto64", Op32Sto64: "32Sto64",
	Op64to32: "64to32", Op32to16: "32to16", Op32to8: "32to8", Op16to8: "16to8",
	OpReinterpF64asI64: "ReinterpF64asI64", OpReinterpI64asF64: "ReinterpI64asF64",
	OpI32StoF64: "I32StoF64", OpF64toI32S: "F64toI32S",
}

func (op UnOp) String() string {
	if s, ok := unOpNames[op]; ok {
		return s
	}
	return fmt.Sprintf("UnOp(%d)", uint16(op))
}

// binOpSig describes a binary operator's argument/result types, used by the
// type checker (spec.md §3 invariant 3) and by the optimizer's constant
// folder.
type binOpSig struct {
	arg, result Type
}

var binOpSigs = map[BinOp]binOpSig{
	OpAdd8: {I8, I8}, OpAdd16: {I16, I16}, OpAdd32: {I32, I32}, OpAdd64: {I64, I64},
	OpSub8: {I8, I8}, OpSub16: {I16, I16}, OpSub32: {I32, I32}, OpSub64: {I64, I64},
	OpMul8: {I8, I8}, OpMul16: {I16, I16}, OpMul32: {I32, I32}, OpMul64: {I64, I64},
	OpDivU32: {I32, I32}, OpDivU64: {I64, I64}, OpDivS32: {I32, I32}, OpDivS64: {I64, I64},
	OpAnd8: {I8, I8}, OpAnd16: {I16, I16}, OpAnd32: {I32, I32}, OpAnd64: {I64, I64},
	OpOr8: {I8, I8}, OpOr16: {I16, I16}, OpOr32: {I32, I32}, OpOr64: {I64, I64},
	OpXor8: {I8, I8}, OpXor16: {I16, I16}, OpXor32: {I32, I32}, OpXor64: {I64, I64},
	OpShl32: {I32, I32}, OpShl64: {I64, I64},
	OpShrU32: {I32, I32}, OpShrU64: {I64, I64},
	OpSarS32: {I32, I32}, OpSarS64: {I64, I64},
	OpCmpEQ32: {I32, I1}, OpCmpEQ64: {I64, I1},
	OpCmpNE32: {I32, I1}, OpCmpNE64: {I64, I1},
	OpCmpLTU32: {I32, I1}, OpCmpLTU64: {I64, I1},
	OpCmpLTS32: {I32, I1}, OpCmpLTS64: {I64, I1},
	OpCmpLEU32: {I32, I1}, OpCmpLEU64: {I64, I1},
	OpCmpLES32: {I32, I1}, OpCmpLES64: {I64, I1},
	OpAddF64: {F64, F64}, OpSubF64: {F64, F64}, OpMulF64: {F64, F64}, OpDivF64: {F64, F64},
	OpCmpF64: {F64, I32},
}

// ArgType returns the type both operands of op must have.
func (op BinOp) ArgType() Type { return mustBinOpSig(op).arg }

// ResultType returns op's result type.
func (op BinOp) ResultType() Type { return mustBinOpSig(op).result }

func mustBinOpSig(op BinOp) binOpSig {
	sig, ok := binOpSigs[op]
	if !ok {
		panic(fmt.Sprintf("ir: unknown BinOp %v", op))
	}
	return sig
}

type unOpSig struct {
	arg, result Type
}

var unOpSigs = map[UnOp]unOpSig{
	OpNot8: {I8, I8}, OpNot16: {I16, I16}, OpNot32: {I32, I32}, OpNot64: {I64, I64},
	OpNeg32: {I32, I32}, OpNeg64: {I64, I64}, OpNegF64: {F64, F64},
	Op8Uto32: {I8, I32}, Op8Sto32: {I8, I32},
	Op16Uto32: {I16, I32}, Op16Sto32: {I16, I32},
	Op32Uto64: {I32, I64}, Op32Sto64: {I32, I64},
	Op64to32: {I64, I32}, Op32to16: {I32, I16}, Op32to8: {I32, I8}, Op16to8: {I16, I8},
	OpReinterpF64asI64: {F64, I64}, OpReinterpI64asF64: {I64, F64},
	OpI32StoF64: {I32, F64}, OpF64toI32S: {F64, I32},
}

func (op UnOp) ArgType() Type { return mustUnOpSig(op).arg }

func (op UnOp) ResultType() Type { return mustUnOpSig(op).result }

func mustUnOpSig(op UnOp) unOpSig {
	sig, ok := unOpSigs[op]
	if !ok {
		panic(fmt.Sprintf("ir: unknown UnOp %v", op))
	}
	return sig
}
