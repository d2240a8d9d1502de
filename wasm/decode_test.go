package wasm_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/wasmkit/modrunner/wasm"
)

// const42Module builds a module with a single exported function that
// returns the constant 42.
func const42Module() *wasm.Module {
	m := &wasm.Module{}
	typeIdx := m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}})
	m.Funcs = []uint32{typeIdx}
	m.Code = []wasm.FuncBody{{
		Code: []byte{wasm.OpI32Const, 42, wasm.OpEnd},
	}}
	m.Exports = []wasm.Export{{Name: "main", Kind: wasm.KindFunc, Idx: 0}}
	return m
}

func TestParseModule_RoundTrip(t *testing.T) {
	data := const42Module().Encode()

	m, err := wasm.ParseModule(data, wasm.OriginWasm)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	if len(m.Types) != 1 {
		t.Fatalf("types: got %d, want 1", len(m.Types))
	}
	if len(m.Types[0].Results) != 1 || m.Types[0].Results[0] != wasm.ValI32 {
		t.Errorf("type 0: got %v", m.Types[0])
	}
	if len(m.Funcs) != 1 || m.Funcs[0] != 0 {
		t.Errorf("funcs: got %v", m.Funcs)
	}
	if len(m.Exports) != 1 || m.Exports[0].Name != "main" || m.Exports[0].Kind != wasm.KindFunc {
		t.Errorf("exports: got %v", m.Exports)
	}
	if m.Origin != wasm.OriginWasm {
		t.Errorf("origin: got %v", m.Origin)
	}

	want := []byte{wasm.OpI32Const, 42, wasm.OpEnd}
	if !bytes.Equal(m.Code[0].Code, want) {
		t.Errorf("body: got %v, want %v", m.Code[0].Code, want)
	}
}

func TestParseModule_BodyRangeAliasesBuffer(t *testing.T) {
	data := const42Module().Encode()

	m, err := wasm.ParseModule(data, wasm.OriginWasm)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	body, err := m.FunctionBody(0)
	if err != nil {
		t.Fatalf("FunctionBody: %v", err)
	}
	if !bytes.Equal(body, m.Code[0].Code) {
		t.Errorf("FunctionBody disagrees with Code: %v vs %v", body, m.Code[0].Code)
	}
	// The recorded range must point back into the original buffer.
	if !bytes.Equal(data[m.Code[0].CodeStart:m.Code[0].CodeEnd], body) {
		t.Error("body range does not re-slice the raw buffer")
	}
}

func TestParseModule_Deterministic(t *testing.T) {
	data := const42Module().Encode()

	m1, err := wasm.ParseModule(data, wasm.OriginWasm)
	if err != nil {
		t.Fatalf("first parse: %v", err)
	}
	m2, err := wasm.ParseModule(data, wasm.OriginWasm)
	if err != nil {
		t.Fatalf("second parse: %v", err)
	}

	if len(m1.Funcs) != len(m2.Funcs) {
		t.Errorf("function counts differ: %d vs %d", len(m1.Funcs), len(m2.Funcs))
	}
	if len(m1.Exports) != len(m2.Exports) {
		t.Fatalf("export counts differ: %d vs %d", len(m1.Exports), len(m2.Exports))
	}
	for i := range m1.Exports {
		if m1.Exports[i].Name != m2.Exports[i].Name {
			t.Errorf("export %d name differs: %q vs %q", i, m1.Exports[i].Name, m2.Exports[i].Name)
		}
	}
}

func TestParseModule_InvalidMagic(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x00, 0x01, 0x00, 0x00, 0x00}
	_, err := wasm.ParseModule(data, wasm.OriginWasm)
	if err != wasm.ErrInvalidMagic {
		t.Errorf("expected ErrInvalidMagic, got %v", err)
	}
}

func TestParseModule_InvalidVersion(t *testing.T) {
	data := []byte{0x00, 0x61, 0x73, 0x6d, 0x02, 0x00, 0x00, 0x00}
	_, err := wasm.ParseModule(data, wasm.OriginWasm)
	if err != wasm.ErrInvalidVersion {
		t.Errorf("expected ErrInvalidVersion, got %v", err)
	}
}

func TestParseModule_Truncated(t *testing.T) {
	data := const42Module().Encode()

	for _, n := range []int{1, 4, 9, len(data) - 1} {
		if _, err := wasm.ParseModule(data[:n], wasm.OriginWasm); err == nil {
			t.Errorf("expected error for %d-byte prefix", n)
		}
	}
}

func TestParseModule_SectionOutOfOrder(t *testing.T) {
	// Export section (7) followed by type section (1).
	data := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x07, 0x01, 0x00, // empty export section
		0x01, 0x01, 0x00, // empty type section
	}
	_, err := wasm.ParseModule(data, wasm.OriginWasm)
	if err == nil {
		t.Fatal("expected error for out-of-order sections")
	}
	if !strings.Contains(err.Error(), "out of order") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseModule_ImportsDecoded(t *testing.T) {
	m := &wasm.Module{}
	typeIdx := m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI32}})
	m.Imports = []wasm.Import{{
		Module: "env",
		Name:   "log",
		Desc:   wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: typeIdx},
	}}
	data := m.Encode()

	got, err := wasm.ParseModule(data, wasm.OriginWasm)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if len(got.Imports) != 1 {
		t.Fatalf("imports: got %d, want 1", len(got.Imports))
	}
	if got.Imports[0].Module != "env" || got.Imports[0].Name != "log" {
		t.Errorf("import: got %s.%s", got.Imports[0].Module, got.Imports[0].Name)
	}
	if got.NumImportedFuncs() != 1 {
		t.Errorf("NumImportedFuncs: got %d", got.NumImportedFuncs())
	}
}

func TestParseModule_MemoryAndGlobals(t *testing.T) {
	max := uint32(4)
	m := &wasm.Module{
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 2, Max: &max}}},
		Globals: []wasm.Global{{
			Type: wasm.GlobalType{ValType: wasm.ValI32, Mutable: true},
			Init: []byte{wasm.OpI32Const, 7, wasm.OpEnd},
		}},
	}
	data := m.Encode()

	got, err := wasm.ParseModule(data, wasm.OriginWasm)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	if got.MinMemoryPages() != 2 {
		t.Errorf("MinMemoryPages: got %d, want 2", got.MinMemoryPages())
	}
	if got.MinMemSize() != 2*wasm.PageSize {
		t.Errorf("MinMemSize: got %d, want %d", got.MinMemSize(), 2*wasm.PageSize)
	}
	if len(got.Globals) != 1 || !got.Globals[0].Type.Mutable {
		t.Fatalf("globals: got %+v", got.Globals)
	}
	if !bytes.Equal(got.Globals[0].Init, []byte{wasm.OpI32Const, 7, wasm.OpEnd}) {
		t.Errorf("global init: got %v", got.Globals[0].Init)
	}
}

func TestParseModule_BodyNotTerminated(t *testing.T) {
	m := &wasm.Module{}
	typeIdx := m.AddType(wasm.FuncType{})
	m.Funcs = []uint32{typeIdx}
	m.Code = []wasm.FuncBody{{Code: []byte{wasm.OpNop}}} // missing end
	data := m.Encode()

	_, err := wasm.ParseModule(data, wasm.OriginWasm)
	if err == nil {
		t.Fatal("expected error for unterminated body")
	}
	if !strings.Contains(err.Error(), "not terminated") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestParseModule_GetFuncType(t *testing.T) {
	m := &wasm.Module{}
	t0 := m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}})
	t1 := m.AddType(wasm.FuncType{Params: []wasm.ValType{wasm.ValI64}})
	m.Imports = []wasm.Import{{
		Module: "env", Name: "f",
		Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: t1},
	}}
	m.Funcs = []uint32{t0}
	m.Code = []wasm.FuncBody{{Code: []byte{wasm.OpI32Const, 1, wasm.OpEnd}}}

	data := m.Encode()
	got, err := wasm.ParseModule(data, wasm.OriginWasm)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}

	// Index 0 is the import, index 1 the declared function.
	if ft := got.GetFuncType(0); ft == nil || len(ft.Params) != 1 {
		t.Errorf("func 0 type: got %+v", ft)
	}
	if ft := got.GetFuncType(1); ft == nil || len(ft.Results) != 1 {
		t.Errorf("func 1 type: got %+v", ft)
	}
	if ft := got.GetFuncType(2); ft != nil {
		t.Errorf("func 2 type: expected nil, got %+v", ft)
	}
}
