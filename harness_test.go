package modrunner_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	modrunner "github.com/wasmkit/modrunner"
	harnerrors "github.com/wasmkit/modrunner/errors"
	"github.com/wasmkit/modrunner/interp"
	"github.com/wasmkit/modrunner/wasm"
)

// constModule builds a module exporting "main" returning the given
// constant.
func constModule(value int32) *wasm.Module {
	m := &wasm.Module{}
	typeIdx := m.AddType(wasm.FuncType{Results: []wasm.ValType{wasm.ValI32}})
	m.Funcs = []uint32{typeIdx}
	m.Code = []wasm.FuncBody{{
		Code: []byte{wasm.OpI32Const, byte(value), wasm.OpEnd},
	}}
	m.Exports = []wasm.Export{{Name: "main", Kind: wasm.KindFunc, Idx: 0}}
	return m
}

func trapModule() *wasm.Module {
	m := constModule(0)
	m.Code[0].Code = []byte{wasm.OpUnreachable, wasm.OpEnd}
	return m
}

func newHarness(t *testing.T) (*modrunner.Harness, context.Context) {
	t.Helper()
	ctx := context.Background()
	h, err := modrunner.New(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { _ = h.Close(ctx) })
	return h, ctx
}

func TestCompileAndRun_ReturnsConstant(t *testing.T) {
	h, ctx := newHarness(t)

	v, err := h.CompileAndRun(ctx, constModule(42).Encode(), false)
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)
}

func TestCompileAndRun_DecodeError(t *testing.T) {
	h, ctx := newHarness(t)

	v, err := h.CompileAndRun(ctx, []byte{0x00, 0x61, 0x73}, false)
	assert.Equal(t, int32(-1), v)
	require.Error(t, err)

	var he *harnerrors.Error
	require.ErrorAs(t, err, &he)
	assert.Equal(t, harnerrors.KindInvalidData, he.Kind)
}

func TestInstantiate_RejectsImports(t *testing.T) {
	h, ctx := newHarness(t)

	m := constModule(1)
	importType := m.AddType(wasm.FuncType{})
	m.Imports = []wasm.Import{{
		Module: "env", Name: "ext",
		Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: importType},
	}}
	m.Exports[0].Idx = 1 // shifted by the imported function

	_, err := h.Instantiate(ctx, m)
	require.Error(t, err)
	assert.ErrorContains(t, err, "module has imports")
}

func TestInstantiate_RejectsNoExports(t *testing.T) {
	h, ctx := newHarness(t)

	m := constModule(1)
	m.Exports = nil

	_, err := h.Instantiate(ctx, m)
	require.Error(t, err)
	assert.ErrorContains(t, err, "module has no exports")
}

// A module violating both preconditions reports both violations, not
// just the first.
func TestInstantiate_ReportsBothViolations(t *testing.T) {
	h, ctx := newHarness(t)

	m := constModule(1)
	importType := m.AddType(wasm.FuncType{})
	m.Imports = []wasm.Import{{
		Module: "env", Name: "ext",
		Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: importType},
	}}
	m.Exports = nil

	_, err := h.Instantiate(ctx, m)
	require.Error(t, err)
	assert.ErrorContains(t, err, "module has imports")
	assert.ErrorContains(t, err, "module has no exports")
}

func TestExecute_ModesAgree(t *testing.T) {
	h, ctx := newHarness(t)
	m := constModule(42)

	compiled, err := h.Execute(ctx, m, modrunner.ModeCompiled, "main")
	require.NoError(t, err)
	interpreted, err := h.Execute(ctx, m, modrunner.ModeInterpreted, "main")
	require.NoError(t, err)

	assert.Equal(t, compiled, interpreted)
	assert.Equal(t, int32(42), compiled.Value)
	assert.False(t, compiled.Trapped)
}

func TestExecute_InterpretedTrapIsNotAnError(t *testing.T) {
	h, ctx := newHarness(t)

	out, err := h.Execute(ctx, trapModule(), modrunner.ModeInterpreted, "main")
	require.NoError(t, err)
	assert.True(t, out.Trapped)
	assert.Equal(t, modrunner.TrapValue, out.Value)
}

func TestExecute_CompiledTrapIsAnError(t *testing.T) {
	h, ctx := newHarness(t)

	out, err := h.Execute(ctx, trapModule(), modrunner.ModeCompiled, "main")
	require.Error(t, err)
	assert.Equal(t, int32(-1), out.Value)

	var he *harnerrors.Error
	require.ErrorAs(t, err, &he)
	assert.Equal(t, harnerrors.KindNullResult, he.Kind)
}

func TestExecute_AbsentExport(t *testing.T) {
	h, ctx := newHarness(t)
	m := constModule(1)

	for _, mode := range []modrunner.Mode{modrunner.ModeCompiled, modrunner.ModeInterpreted} {
		out, err := h.Execute(ctx, m, mode, "missing")
		require.Error(t, err, "mode %v", mode)
		assert.Equal(t, int32(-1), out.Value, "mode %v", mode)
		assert.ErrorIs(t, err, harnerrors.NoSuchExport("missing"), "mode %v", mode)
	}
}

func TestInterpret_VerifyFailureNeverRuns(t *testing.T) {
	h, _ := newHarness(t)

	m := constModule(1)
	m.Code[0].Code = []byte{0xFF, wasm.OpEnd} // unknown opcode

	v, err := h.Interpret(m, 0, nil)
	assert.Equal(t, int32(-1), v)
	require.Error(t, err)

	var he *harnerrors.Error
	require.ErrorAs(t, err, &he)
	assert.Equal(t, harnerrors.KindVerifyFailed, he.Kind)
	assert.ErrorContains(t, err, "function 0 did not verify")
}

func TestInterpret_FuncIndexOutOfRange(t *testing.T) {
	h, _ := newHarness(t)

	v, err := h.Interpret(constModule(1), 7, nil)
	assert.Equal(t, int32(-1), v)
	require.Error(t, err)

	var he *harnerrors.Error
	require.ErrorAs(t, err, &he)
	assert.Equal(t, harnerrors.KindOutOfRange, he.Kind)
}

func TestInterpret_TrapReturnsSentinel(t *testing.T) {
	h, _ := newHarness(t)

	v, err := h.Interpret(trapModule(), 0, nil)
	require.NoError(t, err)
	assert.Equal(t, modrunner.TrapValue, v)
}

func TestInterpret_StackUnderflowIsATrap(t *testing.T) {
	h, _ := newHarness(t)

	// Passes structural verification but pops an empty operand stack.
	m := constModule(0)
	m.Code[0].Code = []byte{wasm.OpI32Add, wasm.OpEnd}

	v, err := h.Interpret(m, 0, nil)
	require.NoError(t, err)
	assert.Equal(t, modrunner.TrapValue, v)
}

func TestInterpret_ArgMismatchIsInvokeFault(t *testing.T) {
	h, _ := newHarness(t)

	v, err := h.Interpret(constModule(7), 0, []interp.Value{interp.I32Value(1)})
	assert.Equal(t, int32(-1), v)
	require.Error(t, err)
	require.ErrorIs(t, err, harnerrors.InvalidArguments(nil))

	var he *harnerrors.Error
	require.ErrorAs(t, err, &he)
	assert.Equal(t, harnerrors.PhaseInvoke, he.Phase)
	assert.Equal(t, harnerrors.KindBadArguments, he.Kind)
}

func TestInterpret_StepBoundExceeded(t *testing.T) {
	h, _ := newHarness(t)

	m := constModule(0)
	m.Code[0].Code = []byte{
		wasm.OpLoop, wasm.BlockTypeEmpty,
		wasm.OpBr, 0,
		wasm.OpEnd,
		wasm.OpI32Const, 0,
		wasm.OpEnd,
	}

	v, err := h.Interpret(m, 0, nil)
	assert.Equal(t, int32(-1), v)
	require.Error(t, err)
	assert.ErrorContains(t, err, "step bound")
}

func TestCallExportedFunction_VoidResultFailsCoercion(t *testing.T) {
	h, ctx := newHarness(t)

	m := &wasm.Module{}
	typeIdx := m.AddType(wasm.FuncType{})
	m.Funcs = []uint32{typeIdx}
	m.Code = []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}}
	m.Exports = []wasm.Export{{Name: "noop", Kind: wasm.KindFunc, Idx: 0}}

	inst, err := h.Instantiate(ctx, m)
	require.NoError(t, err)
	defer inst.Close(ctx)

	v, err := h.CallExportedFunction(ctx, inst, "noop", nil, false)
	assert.Equal(t, int32(-1), v)
	require.Error(t, err)

	var he *harnerrors.Error
	require.ErrorAs(t, err, &he)
	assert.Equal(t, harnerrors.KindNotNumber, he.Kind)
}

func TestCallExportedFunction_WithArgs(t *testing.T) {
	h, ctx := newHarness(t)

	m := &wasm.Module{}
	typeIdx := m.AddType(wasm.FuncType{
		Params:  []wasm.ValType{wasm.ValI32, wasm.ValI32},
		Results: []wasm.ValType{wasm.ValI32},
	})
	m.Funcs = []uint32{typeIdx}
	m.Code = []wasm.FuncBody{{Code: []byte{
		wasm.OpLocalGet, 0,
		wasm.OpLocalGet, 1,
		wasm.OpI32Add,
		wasm.OpEnd,
	}}}
	m.Exports = []wasm.Export{{Name: "add", Kind: wasm.KindFunc, Idx: 0}}

	inst, err := h.Instantiate(ctx, m)
	require.NoError(t, err)
	defer inst.Close(ctx)

	v, err := h.CallExportedFunction(ctx, inst, "add", []uint64{19, 23}, false)
	require.NoError(t, err)
	assert.Equal(t, int32(42), v)
}

func TestCompileAndRun_AsmOriginUsesCallerEntry(t *testing.T) {
	h, ctx := newHarness(t)

	m := constModule(7)
	m.Exports[0].Name = "caller"

	v, err := h.CompileAndRun(ctx, m.Encode(), true)
	require.NoError(t, err)
	assert.Equal(t, int32(7), v)

	// The same module under a wasm origin looks for "main" instead.
	v, err = h.CompileAndRun(ctx, m.Encode(), false)
	assert.Equal(t, int32(-1), v)
	require.Error(t, err)
	assert.ErrorIs(t, err, harnerrors.NoSuchExport("main"))
}

func TestExecute_I64ResultCoerced(t *testing.T) {
	h, ctx := newHarness(t)

	m := constModule(0)
	m.Types[0].Results[0] = wasm.ValI64
	m.Code[0].Code = []byte{wasm.OpI64Const, 42, wasm.OpEnd}

	compiled, err := h.Execute(ctx, m, modrunner.ModeCompiled, "main")
	require.NoError(t, err)
	interpreted, err := h.Execute(ctx, m, modrunner.ModeInterpreted, "main")
	require.NoError(t, err)

	assert.Equal(t, int32(42), compiled.Value)
	assert.Equal(t, compiled, interpreted)
}

func TestErrorTaxonomy(t *testing.T) {
	// Faults compare by phase and kind through errors.Is.
	err := harnerrors.NoSuchExport("foo")
	assert.True(t, errors.Is(err, harnerrors.NoSuchExport("bar")))
	assert.False(t, errors.Is(err, harnerrors.NotNumber()))
}
