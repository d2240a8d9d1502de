// Package modrunner runs WebAssembly test modules end to end: decode,
// precondition checks, and execution through either a compiled engine
// or a bytecode interpreter.
//
// The harness exists for test drivers that feed it small standalone
// modules and assert on an int32 result. Runnable modules must be
// self-contained: no imports, at least one export. Violations of both
// rules are reported together.
//
//	h, err := modrunner.New(ctx)
//	defer h.Close(ctx)
//	v, err := h.CompileAndRun(ctx, wasmBytes, false)
//
// CompileAndRun calls the module's "main" export ("caller" for asm.js
// translations) and coerces the result to int32. Execute offers the
// same run under an explicit Mode, so the compiled engine (package
// engine, backed by wazero) and the interpreter (package interp) can
// be compared on the same module.
//
// The two paths report traps differently on purpose. A compiled trap
// surfaces as an invocation error. An interpreted trap is a valid
// outcome: Interpret returns TrapValue with a nil error, so drivers
// probing trap behavior need no error plumbing.
package modrunner
