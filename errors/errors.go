package errors

import (
	"fmt"
	"strings"
)

// Phase indicates which harness step the fault occurred in.
type Phase string

const (
	PhaseDecode      Phase = "decode"      // module bytes to structure
	PhaseInstantiate Phase = "instantiate" // compile + instance creation
	PhaseVerify      Phase = "verify"      // per-function body verification
	PhaseInterpret   Phase = "interpret"   // interpreter thread execution
	PhaseInvoke      Phase = "invoke"      // host call of a compiled export
)

// Kind categorizes the fault.
type Kind string

const (
	KindInvalidData   Kind = "invalid_data"
	KindHasImports    Kind = "has_imports"
	KindNoExports     Kind = "no_exports"
	KindCompile       Kind = "compile"
	KindInstantiation Kind = "instantiation"
	KindNotFound      Kind = "not_found"
	KindNullResult    Kind = "null_result"
	KindBadArguments  Kind = "bad_arguments"
	KindNotNumber     Kind = "not_number"
	KindVerifyFailed  Kind = "verify_failed"
	KindStepBound     Kind = "step_bound"
	KindOutOfRange    Kind = "out_of_range"
)

// Error is the structured fault type used throughout the harness.
// A trap is not an Error: traps are valid program outcomes and are
// reported through the result value, never through this type.
type Error struct {
	Cause  error
	Phase  Phase
	Kind   Kind
	Detail string
}

// Error implements the error interface.
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by phase and kind.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Convenience constructors for the harness fault taxonomy.
// Detail strings carry the exact messages the harness reports.

// Decode creates a module decode fault.
func Decode(cause error) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidData,
		Detail: "module decode failed",
		Cause:  cause,
	}
}

// HasImports reports the import-free precondition violation.
func HasImports(count int) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindHasImports,
		Detail: fmt.Sprintf("module has imports (%d)", count),
	}
}

// NoExports reports the at-least-one-export precondition violation.
func NoExports() *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindNoExports,
		Detail: "module has no exports",
	}
}

// Compile creates a compilation fault.
func Compile(cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindCompile,
		Detail: "compile functions",
		Cause:  cause,
	}
}

// Instantiation creates an instance creation fault.
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseInstantiate,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// NoSuchExport reports a missing entry point on the export surface.
func NoSuchExport(name string) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("no such export %q", name),
	}
}

// NullInvocation reports an invocation that produced no value.
func NullInvocation(cause error) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindNullResult,
		Detail: "invocation was null",
		Cause:  cause,
	}
}

// InvalidArguments reports an entry invocation rejected before
// execution because the arguments do not match the signature.
func InvalidArguments(cause error) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindBadArguments,
		Detail: "invalid arguments for entry function",
		Cause:  cause,
	}
}

// NotNumber reports a non-numeric return value from a host call.
func NotNumber() *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindNotNumber,
		Detail: "return value should be number",
	}
}

// VerifyFailed reports a function body that failed verification.
func VerifyFailed(funcIndex int, cause error) *Error {
	return &Error{
		Phase:  PhaseVerify,
		Kind:   KindVerifyFailed,
		Detail: fmt.Sprintf("function %d did not verify", funcIndex),
		Cause:  cause,
	}
}

// StepBoundExceeded reports interpreter step budget exhaustion.
func StepBoundExceeded() *Error {
	return &Error{
		Phase:  PhaseInterpret,
		Kind:   KindStepBound,
		Detail: "interpreter did not finish execution within its step bound",
	}
}

// FuncIndexOutOfRange reports an interpreted entry point outside the
// module's function index space.
func FuncIndexOutOfRange(index, count int) *Error {
	return &Error{
		Phase:  PhaseInterpret,
		Kind:   KindOutOfRange,
		Detail: fmt.Sprintf("function index %d out of range (module has %d functions)", index, count),
	}
}
