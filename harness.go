package modrunner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/wasmkit/modrunner/engine"
	harnerrors "github.com/wasmkit/modrunner/errors"
	"github.com/wasmkit/modrunner/interp"
	"github.com/wasmkit/modrunner/wasm"
)

// Entry points called by the run helpers, by origin.
const (
	entryWasm  = "main"
	entryAsmJS = "caller"
)

// Mode selects how Execute runs a module.
type Mode int

const (
	// ModeCompiled compiles the module on the engine and calls the
	// entry export.
	ModeCompiled Mode = iota
	// ModeInterpreted runs the entry function on a transient
	// interpreter instance.
	ModeInterpreted
)

func (m Mode) String() string {
	switch m {
	case ModeCompiled:
		return "compiled"
	case ModeInterpreted:
		return "interpreted"
	}
	return "unknown"
}

// Harness drives test modules through the compiled engine or the
// interpreter. One harness can run any number of modules; Close
// releases the engine and everything instantiated on it.
type Harness struct {
	eng *engine.Engine
	log *zap.Logger
}

// New creates a harness with a no-op logger.
func New(ctx context.Context) (*Harness, error) {
	return NewWithLogger(ctx, nil)
}

// NewWithLogger creates a harness logging through l. A nil l falls
// back to a no-op logger.
func NewWithLogger(ctx context.Context, l *zap.Logger) (*Harness, error) {
	if l == nil {
		l = zap.NewNop()
	}
	eng, err := engine.New(ctx)
	if err != nil {
		return nil, err
	}
	return &Harness{eng: eng, log: l}, nil
}

// Close releases the engine and all its instances.
func (h *Harness) Close(ctx context.Context) error {
	return h.eng.Close(ctx)
}

// DecodeModule parses a binary module, tagging it with its origin.
func (h *Harness) DecodeModule(data []byte, origin wasm.Origin) (*wasm.Module, error) {
	m, err := wasm.ParseModuleValidate(data, origin)
	if err != nil {
		h.log.Debug("decode failed", zap.Error(err))
		return nil, harnerrors.Decode(err)
	}
	h.log.Debug("module decoded",
		zap.Stringer("origin", origin),
		zap.Int("functions", m.NumFunctions()),
		zap.Int("exports", len(m.Exports)))
	return m, nil
}

// Instantiate checks the module preconditions and instantiates it on
// the engine. Modules with imports or without exports are rejected.
func (h *Harness) Instantiate(ctx context.Context, m *wasm.Module) (*engine.Instance, error) {
	if err := checkPreconditions(m); err != nil {
		return nil, err
	}
	return h.eng.CompileAndInstantiate(ctx, m)
}

// CallExportedFunction resolves and calls the named export, coercing
// the result to int32. asmStyle selects the direct lookup used for
// asm.js-origin instances.
func (h *Harness) CallExportedFunction(ctx context.Context, inst *engine.Instance, name string, args []uint64, asmStyle bool) (int32, error) {
	fn, err := inst.ResolveExport(name, asmStyle)
	if err != nil {
		return failedValue, err
	}
	results, err := fn.Call(ctx, args...)
	if err != nil {
		h.log.Debug("call failed", zap.String("export", name), zap.Error(err))
		return failedValue, harnerrors.NullInvocation(err)
	}
	return coerceCallResult(fn, results)
}

// CompileAndRun decodes the binary, instantiates it, and calls its
// entry export with no arguments. The entry is "main" for wasm
// modules and "caller" for asm.js translations.
func (h *Harness) CompileAndRun(ctx context.Context, data []byte, asmJS bool) (int32, error) {
	origin := wasm.OriginWasm
	entry := entryWasm
	if asmJS {
		origin = wasm.OriginAsmJS
		entry = entryAsmJS
	}

	m, err := h.DecodeModule(data, origin)
	if err != nil {
		return failedValue, err
	}
	inst, err := h.Instantiate(ctx, m)
	if err != nil {
		return failedValue, err
	}
	defer inst.Close(ctx)

	return h.CallExportedFunction(ctx, inst, entry, nil, asmJS)
}

// Interpret runs funcIndex on a transient interpreter instance. A
// trap is not an error: the call returns TrapValue with a nil error.
// Exhausting the interpreter's step bound is an error.
func (h *Harness) Interpret(m *wasm.Module, funcIndex uint32, args []interp.Value) (int32, error) {
	if err := checkPreconditions(m); err != nil {
		return failedValue, err
	}

	imported := uint32(m.NumImportedFuncs())
	if funcIndex < imported || funcIndex >= uint32(m.NumFunctions()) {
		return failedValue, harnerrors.FuncIndexOutOfRange(int(funcIndex), m.NumFunctions())
	}

	if err := interp.VerifyBody(m, funcIndex); err != nil {
		h.log.Debug("body verification failed", zap.Uint32("func", funcIndex), zap.Error(err))
		return failedValue, harnerrors.VerifyFailed(int(funcIndex), err)
	}

	env, err := interp.NewEnv(m)
	if err != nil {
		return failedValue, harnerrors.Instantiation(err)
	}

	thread := interp.New(env).Thread(0)
	thread.Reset()
	if err := thread.PushFrame(funcIndex, args); err != nil {
		return failedValue, harnerrors.InvalidArguments(err)
	}

	switch thread.Run() {
	case interp.Finished:
		return thread.ReturnValue().AsI32(), nil
	case interp.Trapped:
		h.log.Debug("interpreted run trapped",
			zap.Uint32("func", funcIndex),
			zap.String("reason", thread.TrapReason()))
		return TrapValue, nil
	default:
		return failedValue, harnerrors.StepBoundExceeded()
	}
}

// executor is one of the two ways Execute can run an entry function.
type executor interface {
	run(ctx context.Context, h *Harness, m *wasm.Module, entry string) (Outcome, error)
}

// Execute runs the named entry export in the given mode. Compiled and
// interpreted runs of the same non-trapping function yield the same
// Outcome.
func (h *Harness) Execute(ctx context.Context, m *wasm.Module, mode Mode, entry string) (Outcome, error) {
	var ex executor
	switch mode {
	case ModeCompiled:
		ex = compiledExecutor{}
	case ModeInterpreted:
		ex = interpretedExecutor{}
	default:
		return Outcome{Value: failedValue}, fmt.Errorf("unknown execution mode %d", mode)
	}
	return ex.run(ctx, h, m, entry)
}

type compiledExecutor struct{}

func (compiledExecutor) run(ctx context.Context, h *Harness, m *wasm.Module, entry string) (Outcome, error) {
	inst, err := h.Instantiate(ctx, m)
	if err != nil {
		return Outcome{Value: failedValue}, err
	}
	defer inst.Close(ctx)

	v, err := h.CallExportedFunction(ctx, inst, entry, nil, m.Origin == wasm.OriginAsmJS)
	if err != nil {
		return Outcome{Value: failedValue}, err
	}
	return Outcome{Value: v}, nil
}

type interpretedExecutor struct{}

func (interpretedExecutor) run(_ context.Context, h *Harness, m *wasm.Module, entry string) (Outcome, error) {
	if err := checkPreconditions(m); err != nil {
		return Outcome{Value: failedValue}, err
	}

	funcIndex, ok := findFuncExport(m, entry)
	if !ok {
		return Outcome{Value: failedValue}, harnerrors.NoSuchExport(entry)
	}

	v, err := h.Interpret(m, funcIndex, nil)
	if err != nil {
		return Outcome{Value: failedValue}, err
	}
	if v == TrapValue {
		return Outcome{Value: TrapValue, Trapped: true}, nil
	}
	return Outcome{Value: v}, nil
}

func findFuncExport(m *wasm.Module, name string) (uint32, bool) {
	for _, exp := range m.Exports {
		if exp.Name == name && exp.Kind == wasm.KindFunc {
			return exp.Idx, true
		}
	}
	return 0, false
}
