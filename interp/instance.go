package interp

import (
	"fmt"

	"github.com/wasmkit/modrunner/wasm"
)

// Instance holds the mutable runtime state the interpreter executes
// against: linear memory and globals. It is independent of any
// compiled instance, so interpreted runs never disturb engine state.
type Instance struct {
	Module  *wasm.Module
	Memory  []byte
	Globals []Value

	// MemSize mirrors len(Memory). Kept separately so memory.grow can
	// report the old size in pages without re-deriving it.
	MemSize uint32
}

// Env bundles everything a thread needs to execute a function.
type Env struct {
	Module   *wasm.Module
	Instance *Instance
	Origin   wasm.Origin
}

// NewInstance builds a transient instance for the module: linear
// memory sized to the declared minimum and globals evaluated from
// their init expressions.
func NewInstance(m *wasm.Module) (*Instance, error) {
	inst := &Instance{Module: m}

	memSize := m.MinMemSize()
	if memSize > 0 {
		inst.Memory = make([]byte, memSize)
		inst.MemSize = uint32(memSize)
	}

	inst.Globals = make([]Value, 0, len(m.Globals))
	for i, g := range m.Globals {
		v, err := evalInitExpr(inst, g.Init, g.Type.ValType)
		if err != nil {
			return nil, fmt.Errorf("global %d: %w", i, err)
		}
		inst.Globals = append(inst.Globals, v)
	}

	for i, seg := range m.Data {
		if seg.MemIdx != 0 {
			return nil, fmt.Errorf("data segment %d: memory index %d not supported", i, seg.MemIdx)
		}
		off, err := evalInitExpr(inst, seg.Offset, wasm.ValI32)
		if err != nil {
			return nil, fmt.Errorf("data segment %d offset: %w", i, err)
		}
		start := uint64(uint32(off.I32()))
		end := start + uint64(len(seg.Init))
		if end > uint64(len(inst.Memory)) {
			return nil, fmt.Errorf("data segment %d [%d, %d) exceeds memory size %d", i, start, end, len(inst.Memory))
		}
		copy(inst.Memory[start:end], seg.Init)
	}

	return inst, nil
}

// NewEnv builds an execution environment over a fresh transient
// instance of the module.
func NewEnv(m *wasm.Module) (*Env, error) {
	inst, err := NewInstance(m)
	if err != nil {
		return nil, err
	}
	return &Env{Module: m, Instance: inst, Origin: m.Origin}, nil
}

// funcMeta resolves a declared (non-imported) function to its type
// and body. funcIndex is in the module's function index space.
func (inst *Instance) funcMeta(funcIndex uint32) (*wasm.FuncType, *wasm.FuncBody, error) {
	m := inst.Module
	imported := uint32(m.NumImportedFuncs())
	if funcIndex < imported {
		return nil, nil, fmt.Errorf("function %d is imported and has no body", funcIndex)
	}
	local := funcIndex - imported
	if local >= uint32(len(m.Code)) {
		return nil, nil, fmt.Errorf("function index %d out of range (%d functions)", funcIndex, m.NumFunctions())
	}
	ft := m.GetFuncType(funcIndex)
	if ft == nil {
		return nil, nil, fmt.Errorf("function %d has no type", funcIndex)
	}
	fb := &m.Code[local]
	if fb.CodeEnd > fb.CodeStart {
		// Decoded bodies alias the module's raw buffer; re-validate
		// the recorded range before handing the bytes to execution.
		code, err := m.FunctionBody(int(local))
		if err != nil {
			return nil, nil, err
		}
		return ft, &wasm.FuncBody{
			Locals:    fb.Locals,
			Code:      code,
			CodeStart: fb.CodeStart,
			CodeEnd:   fb.CodeEnd,
		}, nil
	}
	return ft, fb, nil
}

// evalInitExpr evaluates a constant initializer expression. Only the
// const opcodes and global.get over already-initialized globals are
// accepted, matching decode-time restrictions.
func evalInitExpr(inst *Instance, expr []byte, want wasm.ValType) (Value, error) {
	if len(expr) < 2 || expr[len(expr)-1] != wasm.OpEnd {
		return Value{}, fmt.Errorf("malformed init expression")
	}
	r := newCodeReader(expr[:len(expr)-1])
	op, err := r.byte()
	if err != nil {
		return Value{}, err
	}

	var v Value
	switch op {
	case wasm.OpI32Const:
		n, err := r.s32()
		if err != nil {
			return Value{}, err
		}
		v = I32Value(n)
	case wasm.OpI64Const:
		n, err := r.s64()
		if err != nil {
			return Value{}, err
		}
		v = I64Value(n)
	case wasm.OpF32Const:
		bits, err := r.u32le()
		if err != nil {
			return Value{}, err
		}
		v = Value{Type: wasm.ValF32, bits: uint64(bits)}
	case wasm.OpF64Const:
		bits, err := r.u64le()
		if err != nil {
			return Value{}, err
		}
		v = Value{Type: wasm.ValF64, bits: bits}
	case wasm.OpGlobalGet:
		idx, err := r.u32()
		if err != nil {
			return Value{}, err
		}
		if idx >= uint32(len(inst.Globals)) {
			return Value{}, fmt.Errorf("init expression references global %d before initialization", idx)
		}
		v = inst.Globals[idx]
	default:
		return Value{}, fmt.Errorf("opcode %#x not allowed in init expression", op)
	}

	if r.remaining() != 0 {
		return Value{}, fmt.Errorf("trailing bytes in init expression")
	}
	if v.Type != want {
		return Value{}, fmt.Errorf("init expression yields %v, want %v", v.Type, want)
	}
	return v, nil
}
