// Package interp is a direct bytecode interpreter for core
// WebAssembly function bodies.
//
// The interpreter executes against a transient Instance whose linear
// memory and globals are built from the module alone, so interpreted
// runs never touch compiled-engine state. Bodies are checked with
// VerifyBody before execution; the evaluation loop assumes immediates
// decode and indices are in bounds, and only raises runtime traps
// (unreachable, division by zero, out-of-bounds access, invalid
// float-to-int conversion).
//
// Typical use:
//
//	env, err := interp.NewEnv(m)
//	it := interp.New(env)
//	th := it.Thread(0)
//	th.Reset()
//	th.PushFrame(funcIndex, args)
//	switch th.Run() {
//	case interp.Finished:
//		// th.ReturnValue()
//	case interp.Trapped:
//		// th.TrapReason()
//	case interp.Paused:
//		// step bound exhausted
//	}
//
// Run executes at most StepBound instructions per call and pauses
// when the bound is exhausted, so runaway loops cannot hang a test
// driver. call_indirect is not supported; VerifyBody rejects it.
package interp
