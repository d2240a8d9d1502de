package wasm

import (
	"errors"
	"fmt"
	"io"

	"github.com/wasmkit/modrunner/wasm/internal/binary"
)

// Parsing errors returned by ParseModule.
var (
	ErrInvalidMagic   = errors.New("invalid wasm magic number")
	ErrInvalidVersion = errors.New("invalid wasm version")
)

// ParseModule parses a binary module. The origin tag is recorded on the
// result; it does not change how the bytes are decoded. Function bodies
// in the returned module alias data, which must not be mutated afterwards.
//
// ParseModule validates module structure only. Function bodies are not
// verified here; the harness defers per-function verification to the
// point where a body is about to run.
func ParseModule(data []byte, origin Origin) (*Module, error) {
	r := binary.NewReader(data)

	// Check magic number
	magic, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if magic != Magic {
		return nil, ErrInvalidMagic
	}

	// Check version
	version, err := r.ReadU32LE()
	if err != nil {
		return nil, r.WrapError("header", err)
	}
	if version != Version {
		return nil, ErrInvalidVersion
	}

	m := &Module{Origin: origin, Raw: data}

	// Non-custom sections must appear in ascending ID order.
	var lastSection byte

	for {
		sectionID, err := r.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, r.WrapError("section header", err)
		}

		if sectionID != SectionCustom {
			if sectionID > SectionData {
				return nil, fmt.Errorf("unknown section id %d", sectionID)
			}
			if sectionID <= lastSection {
				return nil, fmt.Errorf("section %d appears out of order", sectionID)
			}
			lastSection = sectionID
		}

		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, r.WrapError("section size", err)
		}

		// Absolute offset of the section payload, needed to record
		// function body ranges against the whole buffer.
		base := r.Position()

		sectionData, err := r.ReadBytes(int(sectionSize))
		if err != nil {
			return nil, r.WrapError("section data", err)
		}

		sr := binary.NewReader(sectionData)

		switch sectionID {
		case SectionCustom:
			// Custom sections carry tool metadata the harness never
			// consumes; skip the payload.
		case SectionType:
			err = parseTypeSection(sr, m)
		case SectionImport:
			err = parseImportSection(sr, m)
		case SectionFunction:
			err = parseFunctionSection(sr, m)
		case SectionTable:
			err = parseTableSection(sr, m)
		case SectionMemory:
			err = parseMemorySection(sr, m)
		case SectionGlobal:
			err = parseGlobalSection(sr, m)
		case SectionExport:
			err = parseExportSection(sr, m)
		case SectionStart:
			err = parseStartSection(sr, m)
		case SectionElement:
			err = parseElementSection(sr, m)
		case SectionCode:
			err = parseCodeSection(sr, m, uint32(base))
		case SectionData:
			err = parseDataSection(sr, m)
		}
		if err != nil {
			return nil, fmt.Errorf("section %d: %w", sectionID, err)
		}

		if sr.Len() != 0 && sectionID != SectionCustom {
			return nil, fmt.Errorf("section %d: %d trailing bytes", sectionID, sr.Len())
		}
	}

	return m, nil
}

func parseValType(r *binary.Reader) (ValType, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, err
	}
	vt := ValType(b)
	switch vt {
	case ValI32, ValI64, ValF32, ValF64:
		return vt, nil
	default:
		return 0, fmt.Errorf("invalid value type 0x%02x", b)
	}
}

func parseTypeSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}

	m.Types = make([]FuncType, 0, count)
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return err
		}
		if form != FuncTypeByte {
			return fmt.Errorf("type %d: expected func type 0x60, got 0x%02x", i, form)
		}

		var ft FuncType
		if ft.Params, err = parseValTypes(r); err != nil {
			return fmt.Errorf("type %d params: %w", i, err)
		}
		if ft.Results, err = parseValTypes(r); err != nil {
			return fmt.Errorf("type %d results: %w", i, err)
		}
		m.Types = append(m.Types, ft)
	}
	return nil
}

func parseValTypes(r *binary.Reader) ([]ValType, error) {
	count, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	types := make([]ValType, 0, count)
	for i := uint32(0); i < count; i++ {
		vt, err := parseValType(r)
		if err != nil {
			return nil, err
		}
		types = append(types, vt)
	}
	return types, nil
}

func parseImportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		var imp Import
		if imp.Module, err = r.ReadName(); err != nil {
			return fmt.Errorf("import %d module: %w", i, err)
		}
		if imp.Name, err = r.ReadName(); err != nil {
			return fmt.Errorf("import %d name: %w", i, err)
		}

		kind, err := r.ReadByte()
		if err != nil {
			return err
		}
		imp.Desc.Kind = kind

		switch kind {
		case KindFunc:
			if imp.Desc.TypeIdx, err = r.ReadU32(); err != nil {
				return err
			}
		case KindTable:
			tt, err := parseTableType(r)
			if err != nil {
				return err
			}
			imp.Desc.Table = &tt
		case KindMemory:
			mt, err := parseMemoryType(r)
			if err != nil {
				return err
			}
			imp.Desc.Memory = &mt
		case KindGlobal:
			gt, err := parseGlobalType(r)
			if err != nil {
				return err
			}
			imp.Desc.Global = &gt
		default:
			return fmt.Errorf("import %d: invalid kind %d", i, kind)
		}

		m.Imports = append(m.Imports, imp)
	}
	return nil
}

func parseFunctionSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}

	m.Funcs = make([]uint32, 0, count)
	for i := uint32(0); i < count; i++ {
		typeIdx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.Funcs = append(m.Funcs, typeIdx)
	}
	return nil
}

func parseTableType(r *binary.Reader) (TableType, error) {
	var tt TableType
	elemType, err := r.ReadByte()
	if err != nil {
		return tt, err
	}
	if ValType(elemType) != ValFuncRef {
		return tt, fmt.Errorf("invalid table element type 0x%02x", elemType)
	}
	tt.ElemType = elemType
	tt.Limits, err = parseLimits(r)
	return tt, err
}

func parseTableSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		tt, err := parseTableType(r)
		if err != nil {
			return fmt.Errorf("table %d: %w", i, err)
		}
		m.Tables = append(m.Tables, tt)
	}
	return nil
}

func parseMemoryType(r *binary.Reader) (MemoryType, error) {
	limits, err := parseLimits(r)
	return MemoryType{Limits: limits}, err
}

func parseMemorySection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		mt, err := parseMemoryType(r)
		if err != nil {
			return fmt.Errorf("memory %d: %w", i, err)
		}
		m.Memories = append(m.Memories, mt)
	}
	return nil
}

func parseLimits(r *binary.Reader) (Limits, error) {
	var l Limits
	flags, err := r.ReadByte()
	if err != nil {
		return l, err
	}
	if flags&^LimitsHasMax != 0 {
		return l, fmt.Errorf("invalid limits flags 0x%02x", flags)
	}

	if l.Min, err = r.ReadU32(); err != nil {
		return l, err
	}
	if flags&LimitsHasMax != 0 {
		max, err := r.ReadU32()
		if err != nil {
			return l, err
		}
		l.Max = &max
	}
	return l, nil
}

func parseGlobalType(r *binary.Reader) (GlobalType, error) {
	var gt GlobalType
	vt, err := parseValType(r)
	if err != nil {
		return gt, err
	}
	gt.ValType = vt

	mut, err := r.ReadByte()
	if err != nil {
		return gt, err
	}
	if mut > 1 {
		return gt, fmt.Errorf("invalid mutability flag %d", mut)
	}
	gt.Mutable = mut == 1
	return gt, nil
}

func parseGlobalSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		gt, err := parseGlobalType(r)
		if err != nil {
			return fmt.Errorf("global %d: %w", i, err)
		}
		init, err := parseInitExpr(r)
		if err != nil {
			return fmt.Errorf("global %d init: %w", i, err)
		}
		m.Globals = append(m.Globals, Global{Type: gt, Init: init})
	}
	return nil
}

// parseInitExpr consumes a constant expression up to and including its
// end opcode, returning the raw bytes.
func parseInitExpr(r *binary.Reader) ([]byte, error) {
	start := r.Position()
	op, err := r.ReadByte()
	if err != nil {
		return nil, err
	}

	switch op {
	case OpI32Const:
		if _, err := r.ReadS32(); err != nil {
			return nil, err
		}
	case OpI64Const:
		for {
			b, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			if b&0x80 == 0 {
				break
			}
		}
	case OpF32Const:
		if _, err := r.ReadBytes(4); err != nil {
			return nil, err
		}
	case OpF64Const:
		if _, err := r.ReadBytes(8); err != nil {
			return nil, err
		}
	case OpGlobalGet:
		if _, err := r.ReadU32(); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("invalid init expression opcode 0x%02x", op)
	}

	end, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if end != OpEnd {
		return nil, fmt.Errorf("init expression not terminated by end, got 0x%02x", end)
	}

	// Re-slice the consumed bytes out of the section buffer.
	expr := r.Window(start, r.Position()-start)
	if expr == nil {
		return nil, fmt.Errorf("init expression window at %d out of bounds", start)
	}
	return expr, nil
}

func parseExportSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}

	m.Exports = make([]Export, 0, count)
	for i := uint32(0); i < count; i++ {
		var exp Export
		if exp.Name, err = r.ReadName(); err != nil {
			return fmt.Errorf("export %d name: %w", i, err)
		}
		if exp.Kind, err = r.ReadByte(); err != nil {
			return err
		}
		if exp.Kind > KindGlobal {
			return fmt.Errorf("export %d (%s): invalid kind %d", i, exp.Name, exp.Kind)
		}
		if exp.Idx, err = r.ReadU32(); err != nil {
			return err
		}
		m.Exports = append(m.Exports, exp)
	}
	return nil
}

func parseStartSection(r *binary.Reader, m *Module) error {
	idx, err := r.ReadU32()
	if err != nil {
		return err
	}
	m.Start = &idx
	return nil
}

func parseElementSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		var elem Element
		if elem.TableIdx, err = r.ReadU32(); err != nil {
			return err
		}
		if elem.TableIdx != 0 {
			return fmt.Errorf("element %d: only table 0 is supported, got %d", i, elem.TableIdx)
		}
		if elem.Offset, err = parseInitExpr(r); err != nil {
			return fmt.Errorf("element %d offset: %w", i, err)
		}

		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		elem.FuncIdxs = make([]uint32, 0, n)
		for j := uint32(0); j < n; j++ {
			idx, err := r.ReadU32()
			if err != nil {
				return err
			}
			elem.FuncIdxs = append(elem.FuncIdxs, idx)
		}
		m.Elements = append(m.Elements, elem)
	}
	return nil
}

// parseCodeSection parses function bodies. base is the absolute offset of
// the section payload within the module buffer; each body's instruction
// range is recorded against the whole buffer so it can be re-sliced
// without copying.
func parseCodeSection(r *binary.Reader, m *Module, base uint32) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}

	m.Code = make([]FuncBody, 0, count)
	for i := uint32(0); i < count; i++ {
		bodySize, err := r.ReadU32()
		if err != nil {
			return err
		}
		bodyEnd := r.Position() + int(bodySize)

		var body FuncBody
		localGroups, err := r.ReadU32()
		if err != nil {
			return err
		}
		for j := uint32(0); j < localGroups; j++ {
			var entry LocalEntry
			if entry.Count, err = r.ReadU32(); err != nil {
				return err
			}
			if entry.ValType, err = parseValType(r); err != nil {
				return fmt.Errorf("body %d locals: %w", i, err)
			}
			body.Locals = append(body.Locals, entry)
		}

		codeLen := bodyEnd - r.Position()
		if codeLen < 1 {
			return fmt.Errorf("body %d: declared size too small for locals", i)
		}
		body.CodeStart = base + uint32(r.Position())
		body.CodeEnd = base + uint32(bodyEnd)
		if body.Code, err = r.ReadBytes(codeLen); err != nil {
			return err
		}
		if body.Code[len(body.Code)-1] != OpEnd {
			return fmt.Errorf("body %d: not terminated by end opcode", i)
		}
		m.Code = append(m.Code, body)
	}
	return nil
}

func parseDataSection(r *binary.Reader, m *Module) error {
	count, err := r.ReadU32()
	if err != nil {
		return err
	}

	for i := uint32(0); i < count; i++ {
		var seg DataSegment
		if seg.MemIdx, err = r.ReadU32(); err != nil {
			return err
		}
		if seg.MemIdx != 0 {
			return fmt.Errorf("data segment %d: only memory 0 is supported, got %d", i, seg.MemIdx)
		}
		if seg.Offset, err = parseInitExpr(r); err != nil {
			return fmt.Errorf("data segment %d offset: %w", i, err)
		}

		n, err := r.ReadU32()
		if err != nil {
			return err
		}
		if seg.Init, err = r.ReadBytes(int(n)); err != nil {
			return err
		}
		m.Data = append(m.Data, seg)
	}
	return nil
}
