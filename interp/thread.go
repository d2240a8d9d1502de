package interp

import (
	"fmt"

	"github.com/wasmkit/modrunner/wasm"
)

// State describes where a thread is in its lifecycle.
type State int

const (
	// Stopped means the thread has no work: either freshly created,
	// reset, or its frame stack was never pushed.
	Stopped State = iota
	Running
	// Finished means the pushed function ran to completion; the result
	// is available via ReturnValue.
	Finished
	// Trapped means execution hit a runtime trap; see TrapReason.
	Trapped
	// Paused means Run returned because the step bound was exhausted
	// before the function completed.
	Paused
)

func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Finished:
		return "finished"
	case Trapped:
		return "trapped"
	case Paused:
		return "paused"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// DefaultStepBound caps how many instructions Run executes before
// pausing. Large enough for test workloads, small enough that an
// infinite loop pauses quickly.
const DefaultStepBound = 1 << 20

type trapError struct {
	reason string
}

func (t *trapError) Error() string { return "trap: " + t.reason }

func trap(format string, args ...any) error {
	return &trapError{reason: fmt.Sprintf(format, args...)}
}

// errUnderflow is raised when a body pops more values than it pushed.
// Verification is structural and does not type the operand stack, so
// execution keeps this guard and reports the underflow as a trap.
var errUnderflow = &trapError{reason: "operand stack underflow"}

// ctrlFrame is one entry of a frame's control stack. The implicit
// function block occupies index 0.
type ctrlFrame struct {
	op        byte // OpBlock, OpLoop, or OpIf
	blockType byte // BlockTypeEmpty or a value type byte
	startPC   int  // loop continuation target
	stackBase int
}

type frame struct {
	fn     uint32
	ft     *wasm.FuncType
	locals []Value
	r      *codeReader
	ctrl   []ctrlFrame
	base   int // operand stack height at entry
}

// Thread executes function frames against an instance. A thread is
// not safe for concurrent use.
type Thread struct {
	env    *Env
	stack  []Value
	frames []*frame
	state  State
	result Value
	trap   string

	// StepBound limits the number of instructions a single Run call
	// executes. Zero means DefaultStepBound.
	StepBound int
}

func (t *Thread) State() State { return t.state }

// ReturnValue reports the result of the completed function. Only
// meaningful when State is Finished.
func (t *Thread) ReturnValue() Value { return t.result }

// TrapReason reports why the thread trapped. Empty unless State is
// Trapped.
func (t *Thread) TrapReason() string { return t.trap }

// Reset clears all frames and returns the thread to Stopped. Instance
// state (memory, globals) is left untouched.
func (t *Thread) Reset() {
	t.stack = t.stack[:0]
	t.frames = t.frames[:0]
	t.state = Stopped
	t.result = Value{}
	t.trap = ""
}

// PushFrame prepares funcIndex for execution with the given arguments.
// The argument count and types must match the function signature.
func (t *Thread) PushFrame(funcIndex uint32, args []Value) error {
	ft, body, err := t.env.Instance.funcMeta(funcIndex)
	if err != nil {
		return err
	}
	if len(args) != len(ft.Params) {
		return fmt.Errorf("function %d takes %d arguments, got %d", funcIndex, len(ft.Params), len(args))
	}
	for i, a := range args {
		if a.Type != ft.Params[i] {
			return fmt.Errorf("argument %d: have %v, want %v", i, a.Type, ft.Params[i])
		}
	}
	t.frames = append(t.frames, t.newFrame(funcIndex, ft, body, args))
	return nil
}

func (t *Thread) newFrame(funcIndex uint32, ft *wasm.FuncType, body *wasm.FuncBody, args []Value) *frame {
	locals := make([]Value, 0, len(args)+8)
	locals = append(locals, args...)
	for _, l := range body.Locals {
		for i := uint32(0); i < l.Count; i++ {
			locals = append(locals, ZeroValue(l.ValType))
		}
	}

	bt := wasm.BlockTypeEmpty
	if len(ft.Results) == 1 {
		bt = byte(ft.Results[0])
	}
	return &frame{
		fn:     funcIndex,
		ft:     ft,
		locals: locals,
		r:      newCodeReader(body.Code),
		ctrl:   []ctrlFrame{{op: wasm.OpBlock, blockType: bt, stackBase: len(t.stack)}},
		base:   len(t.stack),
	}
}

// Run executes until the frame stack drains, a trap occurs, or the
// step bound is exhausted, and returns the resulting state.
func (t *Thread) Run() State {
	if len(t.frames) == 0 {
		t.state = Stopped
		return t.state
	}

	bound := t.StepBound
	if bound <= 0 {
		bound = DefaultStepBound
	}

	t.state = Running
	for steps := 0; steps < bound; steps++ {
		if len(t.frames) == 0 {
			t.state = Finished
			return t.state
		}
		if err := t.safeStep(); err != nil {
			t.state = Trapped
			if te, ok := err.(*trapError); ok {
				t.trap = te.reason
			} else {
				t.trap = err.Error()
			}
			return t.state
		}
	}

	if len(t.frames) == 0 {
		t.state = Finished
	} else {
		t.state = Paused
	}
	return t.state
}

// safeStep runs one instruction, converting an operand stack
// underflow into a trap instead of letting it take the process down.
func (t *Thread) safeStep() (err error) {
	defer func() {
		if r := recover(); r != nil {
			te, ok := r.(*trapError)
			if !ok {
				panic(r)
			}
			err = te
		}
	}()
	return t.step()
}

func (t *Thread) push(v Value) { t.stack = append(t.stack, v) }

func (t *Thread) pop() Value {
	if len(t.stack) <= t.top().base {
		panic(errUnderflow)
	}
	v := t.stack[len(t.stack)-1]
	t.stack = t.stack[:len(t.stack)-1]
	return v
}

func (t *Thread) peek() Value {
	if len(t.stack) <= t.top().base {
		panic(errUnderflow)
	}
	return t.stack[len(t.stack)-1]
}

func (t *Thread) top() *frame { return t.frames[len(t.frames)-1] }

// finishFrame pops the current frame, moving its result (if any) to
// the caller's operand stack. When the last frame finishes the result
// is latched for ReturnValue.
func (t *Thread) finishFrame() {
	f := t.top()
	var result Value
	if len(f.ft.Results) == 1 {
		result = t.pop()
	}
	if len(t.stack) < f.base {
		panic(errUnderflow)
	}
	t.stack = t.stack[:f.base]
	t.frames = t.frames[:len(t.frames)-1]
	if len(t.frames) == 0 {
		t.result = result
	} else if len(f.ft.Results) == 1 {
		t.push(result)
	}
}

// branchTo transfers control to the label'th enclosing block. Loops
// continue from their start; blocks and ifs exit past their end.
func (t *Thread) branchTo(f *frame, label int) error {
	idx := len(f.ctrl) - 1 - label
	target := f.ctrl[idx]

	if target.op == wasm.OpLoop {
		if len(t.stack) < target.stackBase {
			panic(errUnderflow)
		}
		f.ctrl = f.ctrl[:idx+1]
		t.stack = t.stack[:target.stackBase]
		f.r.pc = target.startPC
		return nil
	}

	var result Value
	hasResult := target.blockType != wasm.BlockTypeEmpty
	if hasResult {
		result = t.pop()
	}

	// Skip forward past the end that closes label+1 nesting levels.
	depth := label + 1
	for depth > 0 {
		op, err := f.r.byte()
		if err != nil {
			return err
		}
		switch op {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			depth++
			if _, err := f.r.byte(); err != nil {
				return err
			}
		case wasm.OpEnd:
			depth--
		default:
			if err := skipImmediates(f.r, op); err != nil {
				return err
			}
		}
	}

	if len(t.stack) < target.stackBase {
		panic(errUnderflow)
	}
	f.ctrl = f.ctrl[:idx]
	t.stack = t.stack[:target.stackBase]
	if hasResult {
		t.push(result)
	}
	if len(f.ctrl) == 0 {
		t.finishFrame()
	}
	return nil
}

// skipToElseOrEnd scans forward from a false if condition. It stops
// after the matching else (returning true) or after the matching end
// (returning false).
func (t *Thread) skipToElseOrEnd(f *frame) (bool, error) {
	depth := 0
	for {
		op, err := f.r.byte()
		if err != nil {
			return false, err
		}
		switch op {
		case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
			depth++
			if _, err := f.r.byte(); err != nil {
				return false, err
			}
		case wasm.OpElse:
			if depth == 0 {
				return true, nil
			}
		case wasm.OpEnd:
			if depth == 0 {
				return false, nil
			}
			depth--
		default:
			if err := skipImmediates(f.r, op); err != nil {
				return false, err
			}
		}
	}
}

// step executes a single instruction of the current frame.
func (t *Thread) step() error {
	f := t.top()
	op, err := f.r.byte()
	if err != nil {
		return err
	}

	switch op {
	case wasm.OpUnreachable:
		return trap("unreachable")

	case wasm.OpNop:

	case wasm.OpBlock:
		bt, err := f.r.byte()
		if err != nil {
			return err
		}
		f.ctrl = append(f.ctrl, ctrlFrame{op: wasm.OpBlock, blockType: bt, stackBase: len(t.stack)})

	case wasm.OpLoop:
		bt, err := f.r.byte()
		if err != nil {
			return err
		}
		f.ctrl = append(f.ctrl, ctrlFrame{op: wasm.OpLoop, blockType: bt, startPC: f.r.pc, stackBase: len(t.stack)})

	case wasm.OpIf:
		bt, err := f.r.byte()
		if err != nil {
			return err
		}
		cond := t.pop().I32()
		entry := ctrlFrame{op: wasm.OpIf, blockType: bt, stackBase: len(t.stack)}
		if cond != 0 {
			f.ctrl = append(f.ctrl, entry)
			break
		}
		hasElse, err := t.skipToElseOrEnd(f)
		if err != nil {
			return err
		}
		if hasElse {
			f.ctrl = append(f.ctrl, entry)
		}

	case wasm.OpElse:
		// The then branch finished; exit the if block.
		return t.branchTo(f, 0)

	case wasm.OpEnd:
		f.ctrl = f.ctrl[:len(f.ctrl)-1]
		if len(f.ctrl) == 0 {
			t.finishFrame()
		}

	case wasm.OpBr:
		label, err := f.r.u32()
		if err != nil {
			return err
		}
		return t.branchTo(f, int(label))

	case wasm.OpBrIf:
		label, err := f.r.u32()
		if err != nil {
			return err
		}
		if t.pop().I32() != 0 {
			return t.branchTo(f, int(label))
		}

	case wasm.OpBrTable:
		n, err := f.r.u32()
		if err != nil {
			return err
		}
		labels := make([]uint32, n+1)
		for i := range labels {
			if labels[i], err = f.r.u32(); err != nil {
				return err
			}
		}
		idx := uint32(t.pop().I32())
		if idx >= n {
			idx = n // default label
		}
		return t.branchTo(f, int(labels[idx]))

	case wasm.OpReturn:
		t.finishFrame()

	case wasm.OpCall:
		idx, err := f.r.u32()
		if err != nil {
			return err
		}
		ft, body, err := t.env.Instance.funcMeta(idx)
		if err != nil {
			return trap("%v", err)
		}
		args := make([]Value, len(ft.Params))
		for i := len(args) - 1; i >= 0; i-- {
			args[i] = t.pop()
		}
		t.frames = append(t.frames, t.newFrame(idx, ft, body, args))

	case wasm.OpDrop:
		t.pop()

	case wasm.OpSelect:
		cond := t.pop().I32()
		b := t.pop()
		a := t.pop()
		if cond != 0 {
			t.push(a)
		} else {
			t.push(b)
		}

	case wasm.OpLocalGet:
		idx, err := f.r.u32()
		if err != nil {
			return err
		}
		t.push(f.locals[idx])

	case wasm.OpLocalSet:
		idx, err := f.r.u32()
		if err != nil {
			return err
		}
		f.locals[idx] = t.pop()

	case wasm.OpLocalTee:
		idx, err := f.r.u32()
		if err != nil {
			return err
		}
		f.locals[idx] = t.peek()

	case wasm.OpGlobalGet:
		idx, err := f.r.u32()
		if err != nil {
			return err
		}
		t.push(t.env.Instance.Globals[idx])

	case wasm.OpGlobalSet:
		idx, err := f.r.u32()
		if err != nil {
			return err
		}
		t.env.Instance.Globals[idx] = t.pop()

	case wasm.OpMemorySize:
		if _, err := f.r.byte(); err != nil {
			return err
		}
		t.push(I32Value(int32(uint32(len(t.env.Instance.Memory)) / wasm.PageSize)))

	case wasm.OpMemoryGrow:
		if _, err := f.r.byte(); err != nil {
			return err
		}
		delta := uint32(t.pop().I32())
		t.push(I32Value(t.growMemory(delta)))

	case wasm.OpI32Const:
		v, err := f.r.s32()
		if err != nil {
			return err
		}
		t.push(I32Value(v))

	case wasm.OpI64Const:
		v, err := f.r.s64()
		if err != nil {
			return err
		}
		t.push(I64Value(v))

	case wasm.OpF32Const:
		bits, err := f.r.u32le()
		if err != nil {
			return err
		}
		t.push(Value{Type: wasm.ValF32, bits: uint64(bits)})

	case wasm.OpF64Const:
		bits, err := f.r.u64le()
		if err != nil {
			return err
		}
		t.push(Value{Type: wasm.ValF64, bits: bits})

	default:
		if op >= wasm.OpI32Load && op <= wasm.OpI64Store32 {
			return t.execMemory(f, op)
		}
		return t.execNumeric(op)
	}
	return nil
}

// growMemory grows linear memory by delta pages, returning the old
// size in pages or -1 if the limit would be exceeded.
func (t *Thread) growMemory(delta uint32) int32 {
	inst := t.env.Instance
	oldPages := uint32(len(inst.Memory)) / wasm.PageSize
	newPages := uint64(oldPages) + uint64(delta)

	maxPages := uint64(wasm.MemoryMaxPages)
	if len(inst.Module.Memories) > 0 && inst.Module.Memories[0].Limits.Max != nil {
		maxPages = uint64(*inst.Module.Memories[0].Limits.Max)
	}
	if newPages > maxPages {
		return -1
	}

	inst.Memory = append(inst.Memory, make([]byte, delta*wasm.PageSize)...)
	inst.MemSize = uint32(len(inst.Memory))
	return int32(oldPages)
}
