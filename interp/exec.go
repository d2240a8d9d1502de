package interp

import (
	"encoding/binary"
	"math"
	"math/bits"

	"github.com/wasmkit/modrunner/wasm"
)

// execMemory handles the load and store opcodes (0x28..0x3E).
func (t *Thread) execMemory(f *frame, op byte) error {
	if _, err := f.r.u32(); err != nil { // alignment hint, unused
		return err
	}
	offset, err := f.r.u32()
	if err != nil {
		return err
	}

	mem := t.env.Instance.Memory

	if op >= wasm.OpI32Store {
		val := t.pop()
		base := uint32(t.pop().I32())
		ea := uint64(base) + uint64(offset)
		size := storeWidth(op)
		if ea+uint64(size) > uint64(len(mem)) {
			return trap("memory access out of bounds at %d+%d", ea, size)
		}
		buf := mem[ea : ea+uint64(size)]
		switch op {
		case wasm.OpI32Store, wasm.OpF32Store:
			binary.LittleEndian.PutUint32(buf, uint32(val.bits))
		case wasm.OpI64Store, wasm.OpF64Store:
			binary.LittleEndian.PutUint64(buf, val.bits)
		case wasm.OpI32Store8, wasm.OpI64Store8:
			buf[0] = byte(val.bits)
		case wasm.OpI32Store16, wasm.OpI64Store16:
			binary.LittleEndian.PutUint16(buf, uint16(val.bits))
		case wasm.OpI64Store32:
			binary.LittleEndian.PutUint32(buf, uint32(val.bits))
		}
		return nil
	}

	base := uint32(t.pop().I32())
	ea := uint64(base) + uint64(offset)
	size := loadWidth(op)
	if ea+uint64(size) > uint64(len(mem)) {
		return trap("memory access out of bounds at %d+%d", ea, size)
	}
	buf := mem[ea : ea+uint64(size)]

	switch op {
	case wasm.OpI32Load:
		t.push(I32Value(int32(binary.LittleEndian.Uint32(buf))))
	case wasm.OpI64Load:
		t.push(I64Value(int64(binary.LittleEndian.Uint64(buf))))
	case wasm.OpF32Load:
		t.push(Value{Type: wasm.ValF32, bits: uint64(binary.LittleEndian.Uint32(buf))})
	case wasm.OpF64Load:
		t.push(Value{Type: wasm.ValF64, bits: binary.LittleEndian.Uint64(buf)})
	case wasm.OpI32Load8S:
		t.push(I32Value(int32(int8(buf[0]))))
	case wasm.OpI32Load8U:
		t.push(I32Value(int32(uint32(buf[0]))))
	case wasm.OpI32Load16S:
		t.push(I32Value(int32(int16(binary.LittleEndian.Uint16(buf)))))
	case wasm.OpI32Load16U:
		t.push(I32Value(int32(uint32(binary.LittleEndian.Uint16(buf)))))
	case wasm.OpI64Load8S:
		t.push(I64Value(int64(int8(buf[0]))))
	case wasm.OpI64Load8U:
		t.push(I64Value(int64(uint64(buf[0]))))
	case wasm.OpI64Load16S:
		t.push(I64Value(int64(int16(binary.LittleEndian.Uint16(buf)))))
	case wasm.OpI64Load16U:
		t.push(I64Value(int64(uint64(binary.LittleEndian.Uint16(buf)))))
	case wasm.OpI64Load32S:
		t.push(I64Value(int64(int32(binary.LittleEndian.Uint32(buf)))))
	case wasm.OpI64Load32U:
		t.push(I64Value(int64(uint64(binary.LittleEndian.Uint32(buf)))))
	}
	return nil
}

func loadWidth(op byte) int {
	switch op {
	case wasm.OpI32Load, wasm.OpF32Load, wasm.OpI64Load32S, wasm.OpI64Load32U:
		return 4
	case wasm.OpI64Load, wasm.OpF64Load:
		return 8
	case wasm.OpI32Load8S, wasm.OpI32Load8U, wasm.OpI64Load8S, wasm.OpI64Load8U:
		return 1
	}
	return 2
}

func storeWidth(op byte) int {
	switch op {
	case wasm.OpI32Store, wasm.OpF32Store, wasm.OpI64Store32:
		return 4
	case wasm.OpI64Store, wasm.OpF64Store:
		return 8
	case wasm.OpI32Store8, wasm.OpI64Store8:
		return 1
	}
	return 2
}

func boolValue(b bool) Value {
	if b {
		return I32Value(1)
	}
	return I32Value(0)
}

// execNumeric handles the plain numeric opcodes (0x45..0xBF).
func (t *Thread) execNumeric(op byte) error {
	switch op {
	// i32 comparisons
	case wasm.OpI32Eqz:
		t.push(boolValue(t.pop().I32() == 0))
	case wasm.OpI32Eq:
		b, a := t.pop().I32(), t.pop().I32()
		t.push(boolValue(a == b))
	case wasm.OpI32Ne:
		b, a := t.pop().I32(), t.pop().I32()
		t.push(boolValue(a != b))
	case wasm.OpI32LtS:
		b, a := t.pop().I32(), t.pop().I32()
		t.push(boolValue(a < b))
	case wasm.OpI32LtU:
		b, a := uint32(t.pop().I32()), uint32(t.pop().I32())
		t.push(boolValue(a < b))
	case wasm.OpI32GtS:
		b, a := t.pop().I32(), t.pop().I32()
		t.push(boolValue(a > b))
	case wasm.OpI32GtU:
		b, a := uint32(t.pop().I32()), uint32(t.pop().I32())
		t.push(boolValue(a > b))
	case wasm.OpI32LeS:
		b, a := t.pop().I32(), t.pop().I32()
		t.push(boolValue(a <= b))
	case wasm.OpI32LeU:
		b, a := uint32(t.pop().I32()), uint32(t.pop().I32())
		t.push(boolValue(a <= b))
	case wasm.OpI32GeS:
		b, a := t.pop().I32(), t.pop().I32()
		t.push(boolValue(a >= b))
	case wasm.OpI32GeU:
		b, a := uint32(t.pop().I32()), uint32(t.pop().I32())
		t.push(boolValue(a >= b))

	// i64 comparisons
	case wasm.OpI64Eqz:
		t.push(boolValue(t.pop().I64() == 0))
	case wasm.OpI64Eq:
		b, a := t.pop().I64(), t.pop().I64()
		t.push(boolValue(a == b))
	case wasm.OpI64Ne:
		b, a := t.pop().I64(), t.pop().I64()
		t.push(boolValue(a != b))
	case wasm.OpI64LtS:
		b, a := t.pop().I64(), t.pop().I64()
		t.push(boolValue(a < b))
	case wasm.OpI64LtU:
		b, a := uint64(t.pop().I64()), uint64(t.pop().I64())
		t.push(boolValue(a < b))
	case wasm.OpI64GtS:
		b, a := t.pop().I64(), t.pop().I64()
		t.push(boolValue(a > b))
	case wasm.OpI64GtU:
		b, a := uint64(t.pop().I64()), uint64(t.pop().I64())
		t.push(boolValue(a > b))
	case wasm.OpI64LeS:
		b, a := t.pop().I64(), t.pop().I64()
		t.push(boolValue(a <= b))
	case wasm.OpI64LeU:
		b, a := uint64(t.pop().I64()), uint64(t.pop().I64())
		t.push(boolValue(a <= b))
	case wasm.OpI64GeS:
		b, a := t.pop().I64(), t.pop().I64()
		t.push(boolValue(a >= b))
	case wasm.OpI64GeU:
		b, a := uint64(t.pop().I64()), uint64(t.pop().I64())
		t.push(boolValue(a >= b))

	// f32 comparisons
	case wasm.OpF32Eq:
		b, a := t.pop().F32(), t.pop().F32()
		t.push(boolValue(a == b))
	case wasm.OpF32Ne:
		b, a := t.pop().F32(), t.pop().F32()
		t.push(boolValue(a != b))
	case wasm.OpF32Lt:
		b, a := t.pop().F32(), t.pop().F32()
		t.push(boolValue(a < b))
	case wasm.OpF32Gt:
		b, a := t.pop().F32(), t.pop().F32()
		t.push(boolValue(a > b))
	case wasm.OpF32Le:
		b, a := t.pop().F32(), t.pop().F32()
		t.push(boolValue(a <= b))
	case wasm.OpF32Ge:
		b, a := t.pop().F32(), t.pop().F32()
		t.push(boolValue(a >= b))

	// f64 comparisons
	case wasm.OpF64Eq:
		b, a := t.pop().F64(), t.pop().F64()
		t.push(boolValue(a == b))
	case wasm.OpF64Ne:
		b, a := t.pop().F64(), t.pop().F64()
		t.push(boolValue(a != b))
	case wasm.OpF64Lt:
		b, a := t.pop().F64(), t.pop().F64()
		t.push(boolValue(a < b))
	case wasm.OpF64Gt:
		b, a := t.pop().F64(), t.pop().F64()
		t.push(boolValue(a > b))
	case wasm.OpF64Le:
		b, a := t.pop().F64(), t.pop().F64()
		t.push(boolValue(a <= b))
	case wasm.OpF64Ge:
		b, a := t.pop().F64(), t.pop().F64()
		t.push(boolValue(a >= b))

	// i32 arithmetic
	case wasm.OpI32Clz:
		t.push(I32Value(int32(bits.LeadingZeros32(uint32(t.pop().I32())))))
	case wasm.OpI32Ctz:
		t.push(I32Value(int32(bits.TrailingZeros32(uint32(t.pop().I32())))))
	case wasm.OpI32Popcnt:
		t.push(I32Value(int32(bits.OnesCount32(uint32(t.pop().I32())))))
	case wasm.OpI32Add:
		b, a := t.pop().I32(), t.pop().I32()
		t.push(I32Value(a + b))
	case wasm.OpI32Sub:
		b, a := t.pop().I32(), t.pop().I32()
		t.push(I32Value(a - b))
	case wasm.OpI32Mul:
		b, a := t.pop().I32(), t.pop().I32()
		t.push(I32Value(a * b))
	case wasm.OpI32DivS:
		b, a := t.pop().I32(), t.pop().I32()
		if b == 0 {
			return trap("integer divide by zero")
		}
		if a == math.MinInt32 && b == -1 {
			return trap("integer overflow")
		}
		t.push(I32Value(a / b))
	case wasm.OpI32DivU:
		b, a := uint32(t.pop().I32()), uint32(t.pop().I32())
		if b == 0 {
			return trap("integer divide by zero")
		}
		t.push(I32Value(int32(a / b)))
	case wasm.OpI32RemS:
		b, a := t.pop().I32(), t.pop().I32()
		if b == 0 {
			return trap("integer divide by zero")
		}
		if a == math.MinInt32 && b == -1 {
			t.push(I32Value(0))
		} else {
			t.push(I32Value(a % b))
		}
	case wasm.OpI32RemU:
		b, a := uint32(t.pop().I32()), uint32(t.pop().I32())
		if b == 0 {
			return trap("integer divide by zero")
		}
		t.push(I32Value(int32(a % b)))
	case wasm.OpI32And:
		b, a := t.pop().I32(), t.pop().I32()
		t.push(I32Value(a & b))
	case wasm.OpI32Or:
		b, a := t.pop().I32(), t.pop().I32()
		t.push(I32Value(a | b))
	case wasm.OpI32Xor:
		b, a := t.pop().I32(), t.pop().I32()
		t.push(I32Value(a ^ b))
	case wasm.OpI32Shl:
		b, a := uint32(t.pop().I32()), t.pop().I32()
		t.push(I32Value(a << (b % 32)))
	case wasm.OpI32ShrS:
		b, a := uint32(t.pop().I32()), t.pop().I32()
		t.push(I32Value(a >> (b % 32)))
	case wasm.OpI32ShrU:
		b, a := uint32(t.pop().I32()), uint32(t.pop().I32())
		t.push(I32Value(int32(a >> (b % 32))))
	case wasm.OpI32Rotl:
		b, a := t.pop().I32(), uint32(t.pop().I32())
		t.push(I32Value(int32(bits.RotateLeft32(a, int(b)))))
	case wasm.OpI32Rotr:
		b, a := t.pop().I32(), uint32(t.pop().I32())
		t.push(I32Value(int32(bits.RotateLeft32(a, -int(b)))))

	// i64 arithmetic
	case wasm.OpI64Clz:
		t.push(I64Value(int64(bits.LeadingZeros64(uint64(t.pop().I64())))))
	case wasm.OpI64Ctz:
		t.push(I64Value(int64(bits.TrailingZeros64(uint64(t.pop().I64())))))
	case wasm.OpI64Popcnt:
		t.push(I64Value(int64(bits.OnesCount64(uint64(t.pop().I64())))))
	case wasm.OpI64Add:
		b, a := t.pop().I64(), t.pop().I64()
		t.push(I64Value(a + b))
	case wasm.OpI64Sub:
		b, a := t.pop().I64(), t.pop().I64()
		t.push(I64Value(a - b))
	case wasm.OpI64Mul:
		b, a := t.pop().I64(), t.pop().I64()
		t.push(I64Value(a * b))
	case wasm.OpI64DivS:
		b, a := t.pop().I64(), t.pop().I64()
		if b == 0 {
			return trap("integer divide by zero")
		}
		if a == math.MinInt64 && b == -1 {
			return trap("integer overflow")
		}
		t.push(I64Value(a / b))
	case wasm.OpI64DivU:
		b, a := uint64(t.pop().I64()), uint64(t.pop().I64())
		if b == 0 {
			return trap("integer divide by zero")
		}
		t.push(I64Value(int64(a / b)))
	case wasm.OpI64RemS:
		b, a := t.pop().I64(), t.pop().I64()
		if b == 0 {
			return trap("integer divide by zero")
		}
		if a == math.MinInt64 && b == -1 {
			t.push(I64Value(0))
		} else {
			t.push(I64Value(a % b))
		}
	case wasm.OpI64RemU:
		b, a := uint64(t.pop().I64()), uint64(t.pop().I64())
		if b == 0 {
			return trap("integer divide by zero")
		}
		t.push(I64Value(int64(a % b)))
	case wasm.OpI64And:
		b, a := t.pop().I64(), t.pop().I64()
		t.push(I64Value(a & b))
	case wasm.OpI64Or:
		b, a := t.pop().I64(), t.pop().I64()
		t.push(I64Value(a | b))
	case wasm.OpI64Xor:
		b, a := t.pop().I64(), t.pop().I64()
		t.push(I64Value(a ^ b))
	case wasm.OpI64Shl:
		b, a := uint64(t.pop().I64()), t.pop().I64()
		t.push(I64Value(a << (b % 64)))
	case wasm.OpI64ShrS:
		b, a := uint64(t.pop().I64()), t.pop().I64()
		t.push(I64Value(a >> (b % 64)))
	case wasm.OpI64ShrU:
		b, a := uint64(t.pop().I64()), uint64(t.pop().I64())
		t.push(I64Value(int64(a >> (b % 64))))
	case wasm.OpI64Rotl:
		b, a := t.pop().I64(), uint64(t.pop().I64())
		t.push(I64Value(int64(bits.RotateLeft64(a, int(b)))))
	case wasm.OpI64Rotr:
		b, a := t.pop().I64(), uint64(t.pop().I64())
		t.push(I64Value(int64(bits.RotateLeft64(a, -int(b)))))

	// f32 arithmetic
	case wasm.OpF32Abs:
		t.push(F32Value(float32(math.Abs(float64(t.pop().F32())))))
	case wasm.OpF32Neg:
		t.push(F32Value(-t.pop().F32()))
	case wasm.OpF32Ceil:
		t.push(F32Value(float32(math.Ceil(float64(t.pop().F32())))))
	case wasm.OpF32Floor:
		t.push(F32Value(float32(math.Floor(float64(t.pop().F32())))))
	case wasm.OpF32Trunc:
		t.push(F32Value(float32(math.Trunc(float64(t.pop().F32())))))
	case wasm.OpF32Nearest:
		t.push(F32Value(float32(math.RoundToEven(float64(t.pop().F32())))))
	case wasm.OpF32Sqrt:
		t.push(F32Value(float32(math.Sqrt(float64(t.pop().F32())))))
	case wasm.OpF32Add:
		b, a := t.pop().F32(), t.pop().F32()
		t.push(F32Value(a + b))
	case wasm.OpF32Sub:
		b, a := t.pop().F32(), t.pop().F32()
		t.push(F32Value(a - b))
	case wasm.OpF32Mul:
		b, a := t.pop().F32(), t.pop().F32()
		t.push(F32Value(a * b))
	case wasm.OpF32Div:
		b, a := t.pop().F32(), t.pop().F32()
		t.push(F32Value(a / b))
	case wasm.OpF32Min:
		b, a := t.pop().F32(), t.pop().F32()
		t.push(F32Value(float32(math.Min(float64(a), float64(b)))))
	case wasm.OpF32Max:
		b, a := t.pop().F32(), t.pop().F32()
		t.push(F32Value(float32(math.Max(float64(a), float64(b)))))
	case wasm.OpF32Copysign:
		b, a := t.pop().F32(), t.pop().F32()
		t.push(F32Value(float32(math.Copysign(float64(a), float64(b)))))

	// f64 arithmetic
	case wasm.OpF64Abs:
		t.push(F64Value(math.Abs(t.pop().F64())))
	case wasm.OpF64Neg:
		t.push(F64Value(-t.pop().F64()))
	case wasm.OpF64Ceil:
		t.push(F64Value(math.Ceil(t.pop().F64())))
	case wasm.OpF64Floor:
		t.push(F64Value(math.Floor(t.pop().F64())))
	case wasm.OpF64Trunc:
		t.push(F64Value(math.Trunc(t.pop().F64())))
	case wasm.OpF64Nearest:
		t.push(F64Value(math.RoundToEven(t.pop().F64())))
	case wasm.OpF64Sqrt:
		t.push(F64Value(math.Sqrt(t.pop().F64())))
	case wasm.OpF64Add:
		b, a := t.pop().F64(), t.pop().F64()
		t.push(F64Value(a + b))
	case wasm.OpF64Sub:
		b, a := t.pop().F64(), t.pop().F64()
		t.push(F64Value(a - b))
	case wasm.OpF64Mul:
		b, a := t.pop().F64(), t.pop().F64()
		t.push(F64Value(a * b))
	case wasm.OpF64Div:
		b, a := t.pop().F64(), t.pop().F64()
		t.push(F64Value(a / b))
	case wasm.OpF64Min:
		b, a := t.pop().F64(), t.pop().F64()
		t.push(F64Value(math.Min(a, b)))
	case wasm.OpF64Max:
		b, a := t.pop().F64(), t.pop().F64()
		t.push(F64Value(math.Max(a, b)))
	case wasm.OpF64Copysign:
		b, a := t.pop().F64(), t.pop().F64()
		t.push(F64Value(math.Copysign(a, b)))

	default:
		return t.execConvert(op)
	}
	return nil
}

// execConvert handles the conversion opcodes (0xA7..0xBF).
func (t *Thread) execConvert(op byte) error {
	switch op {
	case wasm.OpI32WrapI64:
		t.push(I32Value(int32(t.pop().I64())))

	case wasm.OpI32TruncF32S:
		v, err := truncS32(float64(t.pop().F32()))
		if err != nil {
			return err
		}
		t.push(I32Value(v))
	case wasm.OpI32TruncF32U:
		v, err := truncU32(float64(t.pop().F32()))
		if err != nil {
			return err
		}
		t.push(I32Value(int32(v)))
	case wasm.OpI32TruncF64S:
		v, err := truncS32(t.pop().F64())
		if err != nil {
			return err
		}
		t.push(I32Value(v))
	case wasm.OpI32TruncF64U:
		v, err := truncU32(t.pop().F64())
		if err != nil {
			return err
		}
		t.push(I32Value(int32(v)))

	case wasm.OpI64ExtendI32S:
		t.push(I64Value(int64(t.pop().I32())))
	case wasm.OpI64ExtendI32U:
		t.push(I64Value(int64(uint32(t.pop().I32()))))

	case wasm.OpI64TruncF32S:
		v, err := truncS64(float64(t.pop().F32()))
		if err != nil {
			return err
		}
		t.push(I64Value(v))
	case wasm.OpI64TruncF32U:
		v, err := truncU64(float64(t.pop().F32()))
		if err != nil {
			return err
		}
		t.push(I64Value(int64(v)))
	case wasm.OpI64TruncF64S:
		v, err := truncS64(t.pop().F64())
		if err != nil {
			return err
		}
		t.push(I64Value(v))
	case wasm.OpI64TruncF64U:
		v, err := truncU64(t.pop().F64())
		if err != nil {
			return err
		}
		t.push(I64Value(int64(v)))

	case wasm.OpF32ConvertI32S:
		t.push(F32Value(float32(t.pop().I32())))
	case wasm.OpF32ConvertI32U:
		t.push(F32Value(float32(uint32(t.pop().I32()))))
	case wasm.OpF32ConvertI64S:
		t.push(F32Value(float32(t.pop().I64())))
	case wasm.OpF32ConvertI64U:
		t.push(F32Value(float32(uint64(t.pop().I64()))))
	case wasm.OpF32DemoteF64:
		t.push(F32Value(float32(t.pop().F64())))

	case wasm.OpF64ConvertI32S:
		t.push(F64Value(float64(t.pop().I32())))
	case wasm.OpF64ConvertI32U:
		t.push(F64Value(float64(uint32(t.pop().I32()))))
	case wasm.OpF64ConvertI64S:
		t.push(F64Value(float64(t.pop().I64())))
	case wasm.OpF64ConvertI64U:
		t.push(F64Value(float64(uint64(t.pop().I64()))))
	case wasm.OpF64PromoteF32:
		t.push(F64Value(float64(t.pop().F32())))

	case wasm.OpI32ReinterpretF32:
		v := t.pop()
		t.push(Value{Type: wasm.ValI32, bits: v.bits})
	case wasm.OpI64ReinterpretF64:
		v := t.pop()
		t.push(Value{Type: wasm.ValI64, bits: v.bits})
	case wasm.OpF32ReinterpretI32:
		v := t.pop()
		t.push(Value{Type: wasm.ValF32, bits: v.bits})
	case wasm.OpF64ReinterpretI64:
		v := t.pop()
		t.push(Value{Type: wasm.ValF64, bits: v.bits})

	default:
		return trap("unknown opcode %#x", op)
	}
	return nil
}

func truncS32(f float64) (int32, error) {
	if math.IsNaN(f) {
		return 0, trap("invalid conversion to integer")
	}
	tf := math.Trunc(f)
	if tf >= 2147483648 || tf < -2147483648 {
		return 0, trap("integer overflow")
	}
	return int32(tf), nil
}

func truncU32(f float64) (uint32, error) {
	if math.IsNaN(f) {
		return 0, trap("invalid conversion to integer")
	}
	tf := math.Trunc(f)
	if tf >= 4294967296 || tf <= -1 {
		return 0, trap("integer overflow")
	}
	return uint32(tf), nil
}

func truncS64(f float64) (int64, error) {
	if math.IsNaN(f) {
		return 0, trap("invalid conversion to integer")
	}
	tf := math.Trunc(f)
	if tf >= 9223372036854775808.0 || tf < -9223372036854775808.0 {
		return 0, trap("integer overflow")
	}
	return int64(tf), nil
}

func truncU64(f float64) (uint64, error) {
	if math.IsNaN(f) {
		return 0, trap("invalid conversion to integer")
	}
	tf := math.Trunc(f)
	if tf >= 18446744073709551616.0 || tf <= -1 {
		return 0, trap("integer overflow")
	}
	return uint64(tf), nil
}
