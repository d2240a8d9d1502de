package interp

import (
	"fmt"

	"github.com/wasmkit/modrunner/wasm"
)

// VerifyBody checks the body of a declared function before it is
// interpreted: every opcode must be known, immediates must decode and
// stay in bounds, branch depths must target an enclosing block, and
// the control structure must be balanced. Operand stack typing is left
// to execution, which traps on underflow.
func VerifyBody(m *wasm.Module, funcIndex uint32) error {
	imported := uint32(m.NumImportedFuncs())
	if funcIndex < imported || funcIndex-imported >= uint32(len(m.Code)) {
		return fmt.Errorf("function index %d has no body", funcIndex)
	}
	body := &m.Code[funcIndex-imported]
	ft := m.GetFuncType(funcIndex)
	if ft == nil {
		return fmt.Errorf("function %d has no type", funcIndex)
	}

	numLocals := uint32(len(ft.Params))
	for _, l := range body.Locals {
		numLocals += l.Count
	}
	numGlobals := uint32(m.NumImportedGlobals() + len(m.Globals))
	numFuncs := uint32(m.NumFunctions())
	hasMemory := m.NumImportedMemories()+len(m.Memories) > 0

	r := newCodeReader(body.Code)
	depth := 1 // the implicit function block

	for {
		op, err := r.byte()
		if err != nil {
			return fmt.Errorf("body not terminated")
		}

		switch op {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			bt, err := r.byte()
			if err != nil {
				return err
			}
			if !validBlockType(bt) {
				return fmt.Errorf("offset %d: invalid block type %#x", r.pc-1, bt)
			}
			depth++

		case wasm.OpElse:
			if depth < 2 {
				return fmt.Errorf("offset %d: else outside if", r.pc-1)
			}

		case wasm.OpEnd:
			depth--
			if depth == 0 {
				if r.remaining() != 0 {
					return fmt.Errorf("offset %d: code after final end", r.pc)
				}
				return nil
			}

		case wasm.OpBr, wasm.OpBrIf:
			label, err := r.u32()
			if err != nil {
				return err
			}
			if label >= uint32(depth) {
				return fmt.Errorf("branch depth %d exceeds nesting %d", label, depth)
			}

		case wasm.OpBrTable:
			n, err := r.u32()
			if err != nil {
				return err
			}
			for i := uint32(0); i <= n; i++ {
				label, err := r.u32()
				if err != nil {
					return err
				}
				if label >= uint32(depth) {
					return fmt.Errorf("br_table depth %d exceeds nesting %d", label, depth)
				}
			}

		case wasm.OpCall:
			idx, err := r.u32()
			if err != nil {
				return err
			}
			if idx >= numFuncs {
				return fmt.Errorf("call to invalid function index %d", idx)
			}
			if idx < imported {
				return fmt.Errorf("call to imported function %d", idx)
			}

		case wasm.OpCallIndirect:
			return fmt.Errorf("offset %d: call_indirect is not supported", r.pc-1)

		case wasm.OpReturn, wasm.OpUnreachable, wasm.OpNop, wasm.OpDrop, wasm.OpSelect:
			// no immediates

		case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
			idx, err := r.u32()
			if err != nil {
				return err
			}
			if idx >= numLocals {
				return fmt.Errorf("local index %d out of range (%d locals)", idx, numLocals)
			}

		case wasm.OpGlobalGet, wasm.OpGlobalSet:
			idx, err := r.u32()
			if err != nil {
				return err
			}
			if idx >= numGlobals {
				return fmt.Errorf("global index %d out of range (%d globals)", idx, numGlobals)
			}

		case wasm.OpMemorySize, wasm.OpMemoryGrow:
			b, err := r.byte()
			if err != nil {
				return err
			}
			if b != 0 {
				return fmt.Errorf("offset %d: nonzero memory index %#x", r.pc-1, b)
			}
			if !hasMemory {
				return fmt.Errorf("memory instruction without memory")
			}

		case wasm.OpI32Const:
			if _, err := r.s32(); err != nil {
				return err
			}
		case wasm.OpI64Const:
			if _, err := r.s64(); err != nil {
				return err
			}
		case wasm.OpF32Const:
			if _, err := r.u32le(); err != nil {
				return err
			}
		case wasm.OpF64Const:
			if _, err := r.u64le(); err != nil {
				return err
			}

		default:
			if op >= wasm.OpI32Load && op <= wasm.OpI64Store32 {
				if _, err := r.u32(); err != nil { // alignment hint
					return err
				}
				if _, err := r.u32(); err != nil { // offset
					return err
				}
				if !hasMemory {
					return fmt.Errorf("memory instruction %#x without memory", op)
				}
				continue
			}
			if op >= wasm.OpI32Eqz && op <= wasm.OpF64ReinterpretI64 {
				continue // plain numeric, no immediates
			}
			return fmt.Errorf("offset %d: unknown opcode %#x", r.pc-1, op)
		}
	}
}

func validBlockType(bt byte) bool {
	switch bt {
	case wasm.BlockTypeEmpty, byte(wasm.ValI32), byte(wasm.ValI64), byte(wasm.ValF32), byte(wasm.ValF64):
		return true
	}
	return false
}

// skipImmediates consumes the immediates of op without interpreting
// them. Used when scanning forward for a matching else or end.
func skipImmediates(r *codeReader, op byte) error {
	switch op {
	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
		_, err := r.byte()
		return err
	case wasm.OpBr, wasm.OpBrIf, wasm.OpCall,
		wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee,
		wasm.OpGlobalGet, wasm.OpGlobalSet:
		_, err := r.u32()
		return err
	case wasm.OpBrTable:
		n, err := r.u32()
		if err != nil {
			return err
		}
		for i := uint32(0); i <= n; i++ {
			if _, err := r.u32(); err != nil {
				return err
			}
		}
		return nil
	case wasm.OpMemorySize, wasm.OpMemoryGrow:
		_, err := r.byte()
		return err
	case wasm.OpI32Const:
		_, err := r.s32()
		return err
	case wasm.OpI64Const:
		_, err := r.s64()
		return err
	case wasm.OpF32Const:
		_, err := r.u32le()
		return err
	case wasm.OpF64Const:
		_, err := r.u64le()
		return err
	}
	if op >= wasm.OpI32Load && op <= wasm.OpI64Store32 {
		if _, err := r.u32(); err != nil {
			return err
		}
		_, err := r.u32()
		return err
	}
	return nil
}
