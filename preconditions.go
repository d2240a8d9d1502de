package modrunner

import (
	"go.uber.org/multierr"

	harnerrors "github.com/wasmkit/modrunner/errors"
	"github.com/wasmkit/modrunner/wasm"
)

// checkPreconditions enforces what a runnable test module must look
// like: nothing to link against and at least one export to call. Both
// checks always run so a module violating both reports both.
func checkPreconditions(m *wasm.Module) error {
	var err error
	if len(m.Imports) > 0 {
		err = multierr.Append(err, harnerrors.HasImports(len(m.Imports)))
	}
	if len(m.Exports) == 0 {
		err = multierr.Append(err, harnerrors.NoExports())
	}
	return err
}
