package wasm

import "fmt"

// Origin tags the source dialect a module was produced from. The harness
// uses it to pick entry-point conventions and the export surface shape.
type Origin byte

const (
	// OriginWasm marks a module decoded from the primary binary dialect.
	OriginWasm Origin = iota

	// OriginAsmJS marks a module translated from the asm.js dialect.
	OriginAsmJS
)

func (o Origin) String() string {
	switch o {
	case OriginWasm:
		return "wasm"
	case OriginAsmJS:
		return "asmjs"
	default:
		return "unknown"
	}
}

// Module is a decoded, validated description of a bytecode program unit.
// It is immutable after ParseModule returns and owned by the caller that
// requested decoding.
type Module struct {
	Types    []FuncType
	Imports  []Import
	Funcs    []uint32 // Type indices for declared functions
	Tables   []TableType
	Memories []MemoryType
	Globals  []Global
	Exports  []Export
	Start    *uint32
	Elements []Element
	Code     []FuncBody
	Data     []DataSegment

	// Origin records the source dialect the module was decoded with.
	Origin Origin

	// Raw is the original module byte buffer. Function bodies in Code
	// alias into it; it must not be mutated after decode.
	Raw []byte
}

// FuncType represents a function signature with parameter and result types.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// ValType represents a value type.
// See constants.go for ValI32, ValI64, ValF32, ValF64.
type ValType byte

func (v ValType) String() string {
	switch v {
	case ValI32:
		return "i32"
	case ValI64:
		return "i64"
	case ValF32:
		return "f32"
	case ValF64:
		return "f64"
	case ValFuncRef:
		return "funcref"
	default:
		return "unknown"
	}
}

// IsNumeric reports whether the value type carries a numeric value.
func (v ValType) IsNumeric() bool {
	switch v {
	case ValI32, ValI64, ValF32, ValF64:
		return true
	default:
		return false
	}
}

// Import represents an imported function, table, memory, or global.
type Import struct {
	Desc   ImportDesc
	Module string
	Name   string
}

// ImportDesc describes an imported item.
// Kind uses KindFunc, KindTable, KindMemory, or KindGlobal constants.
type ImportDesc struct {
	Table   *TableType
	Memory  *MemoryType
	Global  *GlobalType
	TypeIdx uint32
	Kind    byte
}

// TableType describes a table with element type and size limits.
type TableType struct {
	Limits   Limits
	ElemType byte
}

// MemoryType describes a linear memory with size limits.
type MemoryType struct {
	Limits Limits
}

// Limits describes size constraints for tables and memories.
type Limits struct {
	Max *uint32
	Min uint32
}

// GlobalType describes a global variable's type and mutability.
type GlobalType struct {
	ValType ValType
	Mutable bool
}

// Global represents a global variable with type and initialization.
type Global struct {
	Type GlobalType
	Init []byte // Raw init expression bytes including end opcode
}

// Export describes an exported item.
// Kind uses KindFunc, KindTable, KindMemory, or KindGlobal constants.
type Export struct {
	Name string
	Kind byte
	Idx  uint32
}

// Element represents an active element segment.
type Element struct {
	Offset   []byte // Raw offset expression bytes including end opcode
	FuncIdxs []uint32
	TableIdx uint32
}

// FuncBody represents a function's local declarations and bytecode.
// Code aliases the module's Raw buffer; CodeStart/CodeEnd record its
// byte range so callers can re-slice without copying.
type FuncBody struct {
	Locals    []LocalEntry
	Code      []byte
	CodeStart uint32
	CodeEnd   uint32
}

// LocalEntry represents a group of local variables with the same type.
type LocalEntry struct {
	Count   uint32
	ValType ValType
}

// DataSegment represents an active data segment.
type DataSegment struct {
	Offset []byte // Raw offset expression bytes including end opcode
	Init   []byte
	MemIdx uint32
}

// NumImportedFuncs returns the number of imported functions.
func (m *Module) NumImportedFuncs() int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc {
			count++
		}
	}
	return count
}

// NumImportedGlobals returns the number of imported globals.
func (m *Module) NumImportedGlobals() int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindGlobal {
			count++
		}
	}
	return count
}

// NumImportedTables returns the number of imported tables.
func (m *Module) NumImportedTables() int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindTable {
			count++
		}
	}
	return count
}

// NumImportedMemories returns the number of imported memories.
func (m *Module) NumImportedMemories() int {
	count := 0
	for _, imp := range m.Imports {
		if imp.Desc.Kind == KindMemory {
			count++
		}
	}
	return count
}

// NumFunctions returns the size of the function index space.
func (m *Module) NumFunctions() int {
	return m.NumImportedFuncs() + len(m.Funcs)
}

// GetFuncType returns the type of a function by its index in the function
// index space, or nil if the index is out of range.
func (m *Module) GetFuncType(funcIdx uint32) *FuncType {
	numImported := uint32(m.NumImportedFuncs())
	if funcIdx < numImported {
		for i, imp := range m.Imports {
			if imp.Desc.Kind == KindFunc {
				if funcIdx == 0 {
					return m.typeAt(m.Imports[i].Desc.TypeIdx)
				}
				funcIdx--
			}
		}
	}
	localIdx := funcIdx - numImported
	if int(localIdx) >= len(m.Funcs) {
		return nil
	}
	return m.typeAt(m.Funcs[localIdx])
}

func (m *Module) typeAt(typeIdx uint32) *FuncType {
	if int(typeIdx) >= len(m.Types) {
		return nil
	}
	return &m.Types[typeIdx]
}

// MinMemoryPages returns the module's minimum memory requirement in pages.
// Modules without a declared memory require zero pages.
func (m *Module) MinMemoryPages() uint32 {
	if len(m.Memories) == 0 {
		return 0
	}
	return m.Memories[0].Limits.Min
}

// MinMemSize returns the minimum memory requirement in bytes.
func (m *Module) MinMemSize() uint32 {
	return m.MinMemoryPages() * PageSize
}

// FunctionBody returns the bytecode for the i-th declared function as a
// view into the module's raw buffer, re-validating the recorded byte
// range against the buffer length.
func (m *Module) FunctionBody(i int) ([]byte, error) {
	if i < 0 || i >= len(m.Code) {
		return nil, fmt.Errorf("no body for function %d (module has %d bodies)", i, len(m.Code))
	}
	body := &m.Code[i]
	if body.CodeEnd < body.CodeStart || int(body.CodeEnd) > len(m.Raw) {
		return nil, fmt.Errorf("function %d body range [%d, %d) exceeds buffer length %d",
			i, body.CodeStart, body.CodeEnd, len(m.Raw))
	}
	return m.Raw[body.CodeStart:body.CodeEnd], nil
}

// AddType adds a function type and returns its index, reusing an existing
// equal type if present.
func (m *Module) AddType(ft FuncType) uint32 {
	for i, t := range m.Types {
		if typesEqual(t, ft) {
			return uint32(i)
		}
	}
	idx := uint32(len(m.Types))
	m.Types = append(m.Types, ft)
	return idx
}

func typesEqual(a, b FuncType) bool {
	if len(a.Params) != len(b.Params) || len(a.Results) != len(b.Results) {
		return false
	}
	for i := range a.Params {
		if a.Params[i] != b.Params[i] {
			return false
		}
	}
	for i := range a.Results {
		if a.Results[i] != b.Results[i] {
			return false
		}
	}
	return true
}
