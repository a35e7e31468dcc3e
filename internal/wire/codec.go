// Package wire implements the primitive SFTP wire types: fixed-width
// big-endian integers, length-prefixed binary-safe strings, and
// back-patched sub-blocks, per draft-ietf-secsh-filexfer section 3.
package wire

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// ErrShortBuffer is returned by any Take* call that would read past the
// end of the remaining buffer.
var ErrShortBuffer = errors.New("sftp: short buffer")

// Writer accumulates an encoded packet body. The zero value is usable;
// Grow can be used to pre-size the backing buffer.
type Writer struct {
	b []byte
	// marks holds the offsets of open sub-blocks, for BeginSub/EndSub.
	marks []int
}

// Grow pre-allocates capacity for n additional bytes.
func (w *Writer) Grow(n int) { w.b = append(make([]byte, 0, len(w.b)+n), w.b...) }

// Bytes returns the encoded buffer accumulated so far.
func (w *Writer) Bytes() []byte { return w.b }

// Len reports the number of bytes written so far.
func (w *Writer) Len() int { return len(w.b) }

// PutUint8 appends a single byte.
func (w *Writer) PutUint8(v uint8) { w.b = append(w.b, v) }

// PutUint16 appends a big-endian uint16.
func (w *Writer) PutUint16(v uint16) {
	w.b = append(w.b, byte(v>>8), byte(v))
}

// PutUint32 appends a big-endian uint32.
func (w *Writer) PutUint32(v uint32) {
	w.b = append(w.b, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// PutUint64 appends a big-endian uint64.
func (w *Writer) PutUint64(v uint64) {
	w.PutUint32(uint32(v >> 32))
	w.PutUint32(uint32(v))
}

// PutString appends a uint32 length prefix followed by the raw,
// binary-safe bytes of s.
func (w *Writer) PutString(s string) {
	w.PutUint32(uint32(len(s)))
	w.b = append(w.b, s...)
}

// PutBytes appends a uint32 length prefix followed by b.
func (w *Writer) PutBytes(b []byte) {
	w.PutUint32(uint32(len(b)))
	w.b = append(w.b, b...)
}

// BeginSub reserves a uint32 length placeholder and opens a nested
// sub-block; EndSub back-patches the placeholder with the number of
// bytes written since this call.
func (w *Writer) BeginSub() {
	w.marks = append(w.marks, len(w.b))
	w.PutUint32(0)
}

// EndSub closes the most recently opened sub-block, back-patching its
// length placeholder. It panics if no sub-block is open, which is a
// programmer error (mismatched Begin/EndSub), not a wire error.
func (w *Writer) EndSub() {
	n := len(w.marks)
	if n == 0 {
		panic("wire: EndSub without matching BeginSub")
	}
	mark := w.marks[n-1]
	w.marks = w.marks[:n-1]
	length := uint32(len(w.b) - mark - 4)
	binary.BigEndian.PutUint32(w.b[mark:mark+4], length)
}

// Reader decodes primitive SFTP wire types from a byte slice, failing
// safely (ErrShortBuffer) on any read past the end of the buffer rather
// than panicking, per spec.md's BAD_MESSAGE contract.
type Reader struct {
	b []byte
}

// NewReader wraps b for sequential decoding. b is not copied; the
// caller must keep it alive for the Reader's lifetime.
func NewReader(b []byte) *Reader { return &Reader{b: b} }

// Remaining returns the number of undecoded bytes left in the buffer.
func (r *Reader) Remaining() int { return len(r.b) }

// Rest returns, and consumes, every remaining byte.
func (r *Reader) Rest() []byte {
	b := r.b
	r.b = nil
	return b
}

func (r *Reader) take(n int) ([]byte, error) {
	if len(r.b) < n {
		return nil, ErrShortBuffer
	}
	b := r.b[:n]
	r.b = r.b[n:]
	return b, nil
}

// TakeUint8 decodes a single byte.
func (r *Reader) TakeUint8() (uint8, error) {
	b, err := r.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// TakeUint16 decodes a big-endian uint16.
func (r *Reader) TakeUint16() (uint16, error) {
	b, err := r.take(2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

// TakeUint32 decodes a big-endian uint32.
func (r *Reader) TakeUint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// TakeUint64 decodes a big-endian uint64.
func (r *Reader) TakeUint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(b), nil
}

// TakeString decodes a uint32-length-prefixed, binary-safe string.
func (r *Reader) TakeString() (string, error) {
	n, err := r.TakeUint32()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PeekString reads the first length-prefixed string off the buffer
// without consuming it, leaving the Reader's cursor untouched for a
// later real decode. Used where a string needs inspecting before a
// decision on how (or whether) to consume the rest of the body.
func (r *Reader) PeekString() (string, bool) {
	if len(r.b) < 4 {
		return "", false
	}
	n := binary.BigEndian.Uint32(r.b)
	if uint32(len(r.b)-4) < n {
		return "", false
	}
	return string(r.b[4 : 4+n]), true
}

// TakeBytes decodes a uint32-length-prefixed byte string.
func (r *Reader) TakeBytes() ([]byte, error) {
	n, err := r.TakeUint32()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}
