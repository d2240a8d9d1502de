package wasm_test

import (
	"strings"
	"testing"

	"github.com/wasmkit/modrunner/wasm"
)

func TestValidate_OK(t *testing.T) {
	if err := const42Module().Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

func TestValidate_BadTypeIndex(t *testing.T) {
	m := &wasm.Module{
		Funcs: []uint32{3},
		Code:  []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}},
	}
	err := m.Validate()
	if err == nil || !strings.Contains(err.Error(), "invalid type index") {
		t.Fatalf("expected type index error, got %v", err)
	}
}

func TestValidate_BadExportIndex(t *testing.T) {
	m := const42Module()
	m.Exports = append(m.Exports, wasm.Export{Name: "ghost", Kind: wasm.KindFunc, Idx: 9})
	err := m.Validate()
	if err == nil || !strings.Contains(err.Error(), "invalid function index") {
		t.Fatalf("expected function index error, got %v", err)
	}
}

func TestValidate_DuplicateExport(t *testing.T) {
	m := const42Module()
	m.Exports = append(m.Exports, wasm.Export{Name: "main", Kind: wasm.KindFunc, Idx: 0})
	err := m.Validate()
	if err == nil || !strings.Contains(err.Error(), "duplicate export") {
		t.Fatalf("expected duplicate export error, got %v", err)
	}
}

func TestValidate_StartSignature(t *testing.T) {
	m := &wasm.Module{}
	typeIdx := m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}})
	m.Funcs = []uint32{typeIdx}
	m.Code = []wasm.FuncBody{{Code: []byte{wasm.OpI32Const, 0, wasm.OpEnd}}}
	start := uint32(0)
	m.Start = &start

	err := m.Validate()
	if err == nil || !strings.Contains(err.Error(), "start function") {
		t.Fatalf("expected start signature error, got %v", err)
	}
}

func TestValidate_CodeCountMismatch(t *testing.T) {
	m := const42Module()
	m.Code = nil
	err := m.Validate()
	if err == nil || !strings.Contains(err.Error(), "code section") {
		t.Fatalf("expected code count error, got %v", err)
	}
}

func TestValidate_MemoryLimits(t *testing.T) {
	badMax := uint32(1)
	m := &wasm.Module{
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 2, Max: &badMax}}},
	}
	err := m.Validate()
	if err == nil || !strings.Contains(err.Error(), "below min") {
		t.Fatalf("expected limits error, got %v", err)
	}

	m = &wasm.Module{
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: wasm.MemoryMaxPages + 1}}},
	}
	err = m.Validate()
	if err == nil || !strings.Contains(err.Error(), "exceeds maximum") {
		t.Fatalf("expected max pages error, got %v", err)
	}
}

func TestParseModuleValidate(t *testing.T) {
	if _, err := wasm.ParseModuleValidate(const42Module().Encode(), wasm.OriginWasm); err != nil {
		t.Fatalf("ParseModuleValidate: %v", err)
	}

	m := const42Module()
	m.Exports[0].Idx = 5
	if _, err := wasm.ParseModuleValidate(m.Encode(), wasm.OriginWasm); err == nil {
		t.Fatal("expected validation error")
	}
}
