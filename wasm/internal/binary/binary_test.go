package binary

import (
	"errors"
	"io"
	"testing"
)

func TestReaderReadByte(t *testing.T) {
	data := []byte{0x01, 0x02, 0x03}
	r := NewReader(data)

	for i, want := range data {
		if r.Position() != i {
			t.Errorf("position before read %d: got %d, want %d", i, r.Position(), i)
		}
		b, err := r.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte %d: %v", i, err)
		}
		if b != want {
			t.Errorf("ReadByte %d: got 0x%02x, want 0x%02x", i, b, want)
		}
	}

	_, err := r.ReadByte()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected EOF, got %v", err)
	}
}

func TestReaderReadBytes(t *testing.T) {
	r := NewReader([]byte{0x01, 0x02, 0x03, 0x04, 0x05})

	got, err := r.ReadBytes(3)
	if err != nil {
		t.Fatalf("ReadBytes: %v", err)
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("ReadBytes: got %v, want [1 2 3]", got)
	}
	if r.Position() != 3 {
		t.Errorf("position: got %d, want 3", r.Position())
	}

	if _, err := r.ReadBytes(10); err == nil {
		t.Error("expected error for reading past EOF")
	}
}

func TestReaderReadU32(t *testing.T) {
	tests := []struct {
		encoded []byte
		want    uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x01}, 1},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xff, 0x01}, 255},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xFFFFFFFF},
	}

	for _, tt := range tests {
		r := NewReader(tt.encoded)
		got, err := r.ReadU32()
		if err != nil {
			t.Errorf("ReadU32(%v): %v", tt.encoded, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadU32(%v): got %d, want %d", tt.encoded, got, tt.want)
		}
	}
}

func TestReaderReadU32Overflow(t *testing.T) {
	tests := [][]byte{
		{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}, // continuation past 5 bytes
		{0xff, 0xff, 0xff, 0xff, 0x7f},       // spare bits in the fifth byte
		{0x80, 0x80, 0x80, 0x80, 0x10},       // lowest spare bit set
	}
	for _, encoded := range tests {
		r := NewReader(encoded)
		if _, err := r.ReadU32(); !errors.Is(err, ErrOverflow) {
			t.Errorf("ReadU32(%v): expected ErrOverflow, got %v", encoded, err)
		}
	}
}

func TestReaderReadS32(t *testing.T) {
	tests := []struct {
		encoded []byte
		want    int32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x2A}, 42},
		{[]byte{0x7f}, -1},
		{[]byte{0x80, 0x7f}, -128},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x07}, 2147483647},
		{[]byte{0x80, 0x80, 0x80, 0x80, 0x78}, -2147483648},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x7f}, -1},
	}

	for _, tt := range tests {
		r := NewReader(tt.encoded)
		got, err := r.ReadS32()
		if err != nil {
			t.Errorf("ReadS32(%v): %v", tt.encoded, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ReadS32(%v): got %d, want %d", tt.encoded, got, tt.want)
		}
	}
}

func TestReaderReadS32Overflow(t *testing.T) {
	tests := [][]byte{
		{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}, // continuation past 5 bytes
		{0xff, 0xff, 0xff, 0xff, 0x0f},       // spare bits disagree with sign
		{0x80, 0x80, 0x80, 0x80, 0x70},       // spare bits set on positive value
	}
	for _, encoded := range tests {
		r := NewReader(encoded)
		if _, err := r.ReadS32(); !errors.Is(err, ErrOverflow) {
			t.Errorf("ReadS32(%v): expected ErrOverflow, got %v", encoded, err)
		}
	}
}

func TestReaderReadName(t *testing.T) {
	r := NewReader([]byte{0x04, 'm', 'a', 'i', 'n'})
	name, err := r.ReadName()
	if err != nil {
		t.Fatalf("ReadName: %v", err)
	}
	if name != "main" {
		t.Errorf("ReadName: got %q, want %q", name, "main")
	}
}

func TestReaderReadNameInvalidUTF8(t *testing.T) {
	r := NewReader([]byte{0x02, 0xff, 0xfe})
	if _, err := r.ReadName(); err == nil {
		t.Error("expected error for invalid UTF-8 name")
	}
}

func TestReaderReadU32LE(t *testing.T) {
	r := NewReader([]byte{0x00, 0x61, 0x73, 0x6d})
	got, err := r.ReadU32LE()
	if err != nil {
		t.Fatalf("ReadU32LE: %v", err)
	}
	if got != 0x6d736100 {
		t.Errorf("ReadU32LE: got 0x%08x, want 0x6d736100", got)
	}
}

func TestWriterRoundTrip(t *testing.T) {
	w := NewWriter()
	w.WriteU32LE(0x6d736100)
	w.WriteU32(624485)
	w.WriteS32(-42)
	w.WriteName("caller")
	w.Byte(0x0b)

	r := NewReader(w.Bytes())
	if v, _ := r.ReadU32LE(); v != 0x6d736100 {
		t.Errorf("magic: got 0x%08x", v)
	}
	if v, _ := r.ReadU32(); v != 624485 {
		t.Errorf("u32: got %d", v)
	}
	if v, _ := r.ReadS32(); v != -42 {
		t.Errorf("s32: got %d", v)
	}
	if v, _ := r.ReadName(); v != "caller" {
		t.Errorf("name: got %q", v)
	}
	if v, _ := r.ReadByte(); v != 0x0b {
		t.Errorf("byte: got 0x%02x", v)
	}
	if r.Len() != 0 {
		t.Errorf("unread bytes: %d", r.Len())
	}
}

func TestParseErrorFormat(t *testing.T) {
	r := NewReader(nil)
	err := r.WrapError("code section", io.ErrUnexpectedEOF)

	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatal("expected *ParseError")
	}
	if pe.Section != "code section" {
		t.Errorf("section: got %q", pe.Section)
	}
	if !errors.Is(err, io.ErrUnexpectedEOF) {
		t.Error("expected wrapped cause to match")
	}
}
