// Package bytewriter implements the append-only binary buffer described
// in spec.md §4.A: little-endian fixed-width primitives, a byte-count
// prefixed variable-width integer, and bounded-at-index patching for
// deferred fixups. The emission helpers (emitByte/emitBytes/emitU32/
// emitU64, putU32/putU64) are adapted from the teacher's CodeGen byte
// helpers in std/compiler/backend.go.
package bytewriter

import (
	"github.com/latticeforge/vbcc/internal/diag"
)

// Writer is an append-only growable byte buffer.
type Writer struct {
	buf []byte
}

// New returns an empty Writer.
func New() *Writer { return &Writer{} }

// Bytes returns the accumulated buffer. The caller must not retain a
// reference across further writes; Bytes shares the backing array.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the current buffer length, i.e. the offset the next write
// will start at.
func (w *Writer) Len() int { return len(w.buf) }

// U8 appends a single byte and returns its offset.
func (w *Writer) U8(v uint8) int {
	off := len(w.buf)
	w.buf = append(w.buf, v)
	return off
}

// U16 appends a little-endian uint16 and returns its starting offset.
func (w *Writer) U16(v uint16) int {
	off := len(w.buf)
	w.buf = append(w.buf, byte(v), byte(v>>8))
	return off
}

// U32 appends a little-endian uint32 and returns its starting offset.
func (w *Writer) U32(v uint32) int {
	off := len(w.buf)
	w.buf = append(w.buf, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
	return off
}

// U64 appends a little-endian uint64 and returns its starting offset.
func (w *Writer) U64(v uint64) int {
	off := len(w.buf)
	w.buf = append(w.buf,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
	return off
}

// Raw appends a raw byte slice and returns its starting offset.
func (w *Writer) Raw(b []byte) int {
	off := len(w.buf)
	w.buf = append(w.buf, b...)
	return off
}

// VarUint appends a single byte giving the value's byte width (1, 2, 4,
// or 8), followed by the value in that width, little-endian. width must
// be one of {1,2,4,8} and v must fit in it.
func (w *Writer) VarUint(v uint64, width int) (int, error) {
	switch width {
	case 1:
		if v > 0xFF {
			return 0, diag.New(diag.EncodingError, diag.Loc{}, "var_uint: value %d does not fit in 1 byte", v)
		}
	case 2:
		if v > 0xFFFF {
			return 0, diag.New(diag.EncodingError, diag.Loc{}, "var_uint: value %d does not fit in 2 bytes", v)
		}
	case 4:
		if v > 0xFFFFFFFF {
			return 0, diag.New(diag.EncodingError, diag.Loc{}, "var_uint: value %d does not fit in 4 bytes", v)
		}
	case 8:
		// any uint64 fits
	default:
		return 0, diag.New(diag.EncodingError, diag.Loc{}, "var_uint: invalid width %d", width)
	}
	off := w.U8(uint8(width))
	switch width {
	case 1:
		w.U8(uint8(v))
	case 2:
		w.U16(uint16(v))
	case 4:
		w.U32(uint32(v))
	case 8:
		w.U64(v)
	}
	return off, nil
}

// PatchAt overwrites width bytes at offset without moving the cursor.
// offset+width must lie within the already-written buffer.
func (w *Writer) PatchAt(offset int, value uint64, width int) error {
	if offset < 0 || offset+width > len(w.buf) {
		return diag.New(diag.EncodingError, diag.Loc{}, "patch_at: offset %d width %d out of bounds (len %d)", offset, width, len(w.buf))
	}
	switch width {
	case 1:
		w.buf[offset] = byte(value)
	case 2:
		w.buf[offset] = byte(value)
		w.buf[offset+1] = byte(value >> 8)
	case 4:
		w.buf[offset] = byte(value)
		w.buf[offset+1] = byte(value >> 8)
		w.buf[offset+2] = byte(value >> 16)
		w.buf[offset+3] = byte(value >> 24)
	case 8:
		for i := 0; i < 8; i++ {
			w.buf[offset+i] = byte(value >> (8 * uint(i)))
		}
	default:
		return diag.New(diag.EncodingError, diag.Loc{}, "patch_at: invalid width %d", width)
	}
	return nil
}

// AlignTo pads the buffer with zero bytes until its length is a multiple
// of n, returning the number of padding bytes written.
func (w *Writer) AlignTo(n int) int {
	if n <= 0 {
		return 0
	}
	pad := (n - len(w.buf)%n) % n
	for i := 0; i < pad; i++ {
		w.buf = append(w.buf, 0)
	}
	return pad
}

// GetU32 reads a little-endian uint32 back out of an already-written
// region — used when a patch needs to read-modify-write (e.g. adding a
// base address to a previously emitted relative offset).
func GetU32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// GetU64 reads a little-endian uint64 back out of an already-written region.
func GetU64(b []byte) uint64 {
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

// PutU32 writes v little-endian into b, which must have length >= 4.
func PutU32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// PutU64 writes v little-endian into b, which must have length >= 8.
func PutU64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * uint(i)))
	}
}
