package interp

import (
	"encoding/binary"
	"errors"
)

var (
	errUnexpectedEOF = errors.New("unexpected end of code")
	errLEBOverflow   = errors.New("integer representation too long")
)

// codeReader walks a function body. The program counter is exposed so
// the thread can record and restore positions across branches.
type codeReader struct {
	code []byte
	pc   int
}

func newCodeReader(code []byte) *codeReader {
	return &codeReader{code: code}
}

func (r *codeReader) remaining() int { return len(r.code) - r.pc }

func (r *codeReader) byte() (byte, error) {
	if r.pc >= len(r.code) {
		return 0, errUnexpectedEOF
	}
	b := r.code[r.pc]
	r.pc++
	return b, nil
}

func (r *codeReader) u32() (uint32, error) {
	var result uint32
	var shift uint
	for {
		b, err := r.byte()
		if err != nil {
			return 0, err
		}
		if shift == 28 && b > 0x0F {
			return 0, errLEBOverflow
		}
		result |= uint32(b&0x7F) << shift
		if b&0x80 == 0 {
			return result, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, errLEBOverflow
		}
	}
}

func (r *codeReader) s32() (int32, error) {
	var result int32
	var shift uint
	for {
		b, err := r.byte()
		if err != nil {
			return 0, err
		}
		result |= int32(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 32 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
		if shift >= 35 {
			return 0, errLEBOverflow
		}
	}
}

func (r *codeReader) s64() (int64, error) {
	var result int64
	var shift uint
	for {
		b, err := r.byte()
		if err != nil {
			return 0, err
		}
		result |= int64(b&0x7F) << shift
		shift += 7
		if b&0x80 == 0 {
			if shift < 64 && b&0x40 != 0 {
				result |= -1 << shift
			}
			return result, nil
		}
		if shift >= 70 {
			return 0, errLEBOverflow
		}
	}
}

func (r *codeReader) u32le() (uint32, error) {
	if r.remaining() < 4 {
		return 0, errUnexpectedEOF
	}
	v := binary.LittleEndian.Uint32(r.code[r.pc:])
	r.pc += 4
	return v, nil
}

func (r *codeReader) u64le() (uint64, error) {
	if r.remaining() < 8 {
		return 0, errUnexpectedEOF
	}
	v := binary.LittleEndian.Uint64(r.code[r.pc:])
	r.pc += 8
	return v, nil
}
