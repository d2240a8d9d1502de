package interp

import (
	"fmt"
	"math"

	"github.com/wasmkit/modrunner/wasm"
)

// Value is a single typed interpreter value. All four numeric types
// share one 64-bit payload; the accessor must match Type.
type Value struct {
	Type wasm.ValType
	bits uint64
}

func I32Value(v int32) Value {
	return Value{Type: wasm.ValI32, bits: uint64(uint32(v))}
}

func I64Value(v int64) Value {
	return Value{Type: wasm.ValI64, bits: uint64(v)}
}

func F32Value(v float32) Value {
	return Value{Type: wasm.ValF32, bits: uint64(math.Float32bits(v))}
}

func F64Value(v float64) Value {
	return Value{Type: wasm.ValF64, bits: math.Float64bits(v)}
}

func (v Value) I32() int32   { return int32(uint32(v.bits)) }
func (v Value) I64() int64   { return int64(v.bits) }
func (v Value) F32() float32 { return math.Float32frombits(uint32(v.bits)) }
func (v Value) F64() float64 { return math.Float64frombits(v.bits) }

// Bits exposes the raw payload. Used by memory stores and tests.
func (v Value) Bits() uint64 { return v.bits }

// AsI32 coerces any numeric value to int32 the way an embedder
// coerces a call result: i64 truncates, floats cast through their
// native type.
func (v Value) AsI32() int32 {
	switch v.Type {
	case wasm.ValI32:
		return v.I32()
	case wasm.ValI64:
		return int32(v.I64())
	case wasm.ValF32:
		return int32(v.F32())
	case wasm.ValF64:
		return int32(v.F64())
	}
	return 0
}

func (v Value) String() string {
	switch v.Type {
	case wasm.ValI32:
		return fmt.Sprintf("i32:%d", v.I32())
	case wasm.ValI64:
		return fmt.Sprintf("i64:%d", v.I64())
	case wasm.ValF32:
		return fmt.Sprintf("f32:%g", v.F32())
	case wasm.ValF64:
		return fmt.Sprintf("f64:%g", v.F64())
	}
	return fmt.Sprintf("unknown:%#x", v.bits)
}

// ZeroValue returns the zero of the given type.
func ZeroValue(t wasm.ValType) Value {
	return Value{Type: t}
}
