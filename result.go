package modrunner

import (
	"math"

	"github.com/tetratelabs/wazero/api"

	harnerrors "github.com/wasmkit/modrunner/errors"
)

// TrapValue is the sentinel an interpreted run reports when the
// function traps. Distinguishable from ordinary results in tests
// without threading a separate flag through every caller.
const TrapValue int32 = -559038737 // 0xdeadbeef

// failedValue is returned alongside a non-nil error.
const failedValue int32 = -1

// Outcome is the result of Execute: the coerced return value and
// whether the function trapped instead of returning.
type Outcome struct {
	Value   int32
	Trapped bool
}

// coerceCallResult converts a wazero call result to int32. Functions
// returning nothing or a non-numeric type fail the coercion.
func coerceCallResult(fn api.Function, results []uint64) (int32, error) {
	types := fn.Definition().ResultTypes()
	if len(types) == 0 || len(results) == 0 {
		return failedValue, harnerrors.NotNumber()
	}
	switch types[0] {
	case api.ValueTypeI32:
		return int32(uint32(results[0])), nil
	case api.ValueTypeI64:
		return int32(int64(results[0])), nil
	case api.ValueTypeF32:
		return int32(math.Float32frombits(uint32(results[0]))), nil
	case api.ValueTypeF64:
		return int32(math.Float64frombits(results[0])), nil
	}
	return failedValue, harnerrors.NotNumber()
}
