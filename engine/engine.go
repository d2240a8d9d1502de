package engine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	harnerrors "github.com/wasmkit/modrunner/errors"
	"github.com/wasmkit/modrunner/wasm"
)

// Engine compiles and instantiates modules on a wazero runtime. A
// single engine can host many instances; each gets a unique name so
// repeated instantiations of the same module never collide.
type Engine struct {
	rt      wazero.Runtime
	nameSeq atomic.Uint64
}

// Config holds configuration for engine creation.
type Config struct {
	// MemoryLimitPages caps instance memory in 64KB pages.
	// 0 means the wazero default.
	MemoryLimitPages uint32
}

// New creates an engine with default configuration.
func New(ctx context.Context) (*Engine, error) {
	return NewWithConfig(ctx, nil)
}

// NewWithConfig creates an engine with custom configuration.
func NewWithConfig(ctx context.Context, cfg *Config) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if cfg != nil && cfg.MemoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(cfg.MemoryLimitPages)
	}
	return &Engine{rt: wazero.NewRuntimeWithConfig(ctx, runtimeCfg)}, nil
}

// Close releases the runtime and every instance created from it.
func (e *Engine) Close(ctx context.Context) error {
	return e.rt.Close(ctx)
}

// Instance is a compiled, instantiated module hosted by the engine.
type Instance struct {
	mod    api.Module
	origin wasm.Origin
}

// CompileAndInstantiate compiles the module's binary and instantiates
// it. The module's start function, if any, runs during instantiation.
func (e *Engine) CompileAndInstantiate(ctx context.Context, m *wasm.Module) (*Instance, error) {
	raw := m.Raw
	if raw == nil {
		raw = m.Encode()
	}

	compiled, err := e.rt.CompileModule(ctx, raw)
	if err != nil {
		Logger().Debug("compile failed", zap.Error(err))
		return nil, harnerrors.Compile(err)
	}

	name := fmt.Sprintf("mod-%d", e.nameSeq.Add(1))
	mod, err := e.rt.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName(name))
	if err != nil {
		Logger().Debug("instantiation failed", zap.String("name", name), zap.Error(err))
		return nil, harnerrors.Instantiation(err)
	}

	Logger().Debug("module instantiated", zap.String("name", name))
	return &Instance{mod: mod, origin: m.Origin}, nil
}

// Module returns the underlying wazero module.
func (i *Instance) Module() api.Module { return i.mod }

// Origin reports the origin the instance was built from.
func (i *Instance) Origin() wasm.Origin { return i.origin }

// Close releases the instance.
func (i *Instance) Close(ctx context.Context) error {
	return i.mod.Close(ctx)
}

// ResolveExport looks up an exported function by name.
//
// With asmStyle the lookup goes directly against the instance, the
// way scripted callers poke at an asm.js module object. Without it
// the name must be an own property of the exports surface before the
// function is fetched.
func (i *Instance) ResolveExport(name string, asmStyle bool) (api.Function, error) {
	if !asmStyle {
		if _, ok := i.mod.ExportedFunctionDefinitions()[name]; !ok {
			return nil, harnerrors.NoSuchExport(name)
		}
	}
	fn := i.mod.ExportedFunction(name)
	if fn == nil {
		return nil, harnerrors.NoSuchExport(name)
	}
	return fn, nil
}
