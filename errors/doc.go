// Package errors provides structured fault types for the module harness.
//
// Every harness-detected fault carries a Phase (which orchestration step
// failed) and a Kind (what went wrong), so callers can match faults with
// errors.Is without parsing messages:
//
//	_, err := h.CompileAndRun(ctx, raw, false)
//	if errors.Is(err, &harnesserrors.Error{Phase: PhaseInstantiate, Kind: KindHasImports}) {
//	    // module brought its own imports
//	}
//
// Runtime traps are deliberately absent from this taxonomy: a trap is a
// defined outcome of bytecode execution, not a harness fault.
package errors
