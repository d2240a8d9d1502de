package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorFormat(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "phase and kind only",
			err:  &Error{Phase: PhaseInvoke, Kind: KindNotNumber},
			want: "[invoke] not_number",
		},
		{
			name: "with detail",
			err:  NoExports(),
			want: "[instantiate] no_exports: module has no exports",
		},
		{
			name: "with cause",
			err:  Decode(stderrors.New("invalid wasm magic number")),
			want: "[decode] invalid_data: module decode failed (caused by: invalid wasm magic number)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestErrorIs(t *testing.T) {
	err := HasImports(3)

	if !stderrors.Is(err, &Error{Phase: PhaseInstantiate, Kind: KindHasImports}) {
		t.Error("expected Is to match on phase and kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseInstantiate, Kind: KindNoExports}) {
		t.Error("expected Is to reject different kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseDecode, Kind: KindHasImports}) {
		t.Error("expected Is to reject different phase")
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := stderrors.New("underlying")
	err := NullInvocation(cause)

	if !stderrors.Is(err, cause) {
		t.Error("expected Is to find wrapped cause")
	}
	if got := stderrors.Unwrap(err); got != cause {
		t.Errorf("Unwrap() = %v, want %v", got, cause)
	}
}

func TestWrappedThroughFmt(t *testing.T) {
	inner := VerifyFailed(2, stderrors.New("unknown opcode 0xff"))
	outer := fmt.Errorf("interpret: %w", inner)

	var target *Error
	if !stderrors.As(outer, &target) {
		t.Fatal("expected As to find *Error through fmt wrapping")
	}
	if target.Kind != KindVerifyFailed {
		t.Errorf("kind = %s, want %s", target.Kind, KindVerifyFailed)
	}
}

func TestConstructorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{HasImports(1), "module has imports"},
		{NoExports(), "module has no exports"},
		{NoSuchExport("main"), `no such export "main"`},
		{NullInvocation(nil), "invocation was null"},
		{NotNumber(), "return value should be number"},
		{VerifyFailed(0, nil), "did not verify"},
		{StepBoundExceeded(), "interpreter did not finish execution within its step bound"},
		{FuncIndexOutOfRange(9, 2), "function index 9 out of range"},
	}

	for _, tt := range tests {
		if !strings.Contains(tt.err.Error(), tt.want) {
			t.Errorf("%v does not contain %q", tt.err, tt.want)
		}
	}
}
