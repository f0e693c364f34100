// Package serial implements the little-endian primitive encoding used for
// backend-independent resource payloads, with consumption tracking so that
// callers can require a payload to be read exactly to its end.
package serial

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrOverrun is returned when a read goes past the end of the payload.
var ErrOverrun = errors.New("serial: read past end of payload")

// Reader consumes a byte slice front to back.
type Reader struct {
	buf []byte
	off int
}

// NewReader returns a Reader over buf. The slice is not copied.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Len returns the total payload length.
func (r *Reader) Len() int { return len(r.buf) }

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int { return r.off }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.buf) - r.off }

// Done reports whether the payload has been fully consumed.
func (r *Reader) Done() bool { return r.off == len(r.buf) }

func (r *Reader) take(n int) ([]byte, error) {
	if n < 0 || n > r.Remaining() {
		return nil, fmt.Errorf("%w: need %d bytes at offset %d, %d left", ErrOverrun, n, r.off, r.Remaining())
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b, nil
}

// Uint32 reads a little-endian uint32.
func (r *Reader) Uint32() (uint32, error) {
	b, err := r.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// Uint64 reads a little-endian uint64.
func (r *Reader) Uint64() (uint64, error) {
	b, err := r.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// Bytes reads the next n bytes. The returned slice aliases the payload.
func (r *Reader) Bytes(n int) ([]byte, error) {
	return r.take(n)
}

// ReadString reads a uint32 length followed by that many bytes.
func (r *Reader) ReadString() (string, error) {
	n, err := r.Uint32()
	if err != nil {
		return "", err
	}
	if uint64(n) > math.MaxInt32 {
		return "", fmt.Errorf("%w: string length %d", ErrOverrun, n)
	}
	b, err := r.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Rest consumes and returns every unread byte.
func (r *Reader) Rest() []byte {
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}

// Writer builds a payload in memory.
type Writer struct {
	buf []byte
}

// Len returns the number of bytes written.
func (w *Writer) Len() int { return len(w.buf) }

// Bytes returns the written payload.
func (w *Writer) Bytes() []byte { return w.buf }

// PutUint32 appends a little-endian uint32.
func (w *Writer) PutUint32(v uint32) {
	w.buf = binary.LittleEndian.AppendUint32(w.buf, v)
}

// PutUint64 appends a little-endian uint64.
func (w *Writer) PutUint64(v uint64) {
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

// Write appends p. It never fails.
func (w *Writer) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// PutBytes appends p.
func (w *Writer) PutBytes(p []byte) {
	w.buf = append(w.buf, p...)
}

// PutString appends a uint32 length followed by the bytes of s.
func (w *Writer) PutString(s string) {
	w.PutUint32(uint32(len(s))) //nolint:gosec // payload strings are short
	w.buf = append(w.buf, s...)
}

// Pad appends zero bytes until the length is a multiple of align.
func (w *Writer) Pad(align int) {
	for len(w.buf)%align != 0 {
		w.buf = append(w.buf, 0)
	}
}
