// Package wire implements the length-prefixed little-endian datagram framing
// shared by every connection on the bus, plus a typed cursor for reading and
// writing the primitive field encodings used throughout the cluster.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// MaxDatagramBytes bounds a single framed payload to guard against a
// corrupt or hostile length prefix forcing an unbounded allocation.
const MaxDatagramBytes = 4 << 20

// ErrDatagramTooLarge is returned when a length prefix exceeds MaxDatagramBytes.
var ErrDatagramTooLarge = errors.New("wire: datagram exceeds maximum size")

// ErrShortBuffer is returned when a read operation runs past the end of a
// decode buffer.
var ErrShortBuffer = errors.New("wire: short buffer")

// ReadFrame reads one u16-length-prefixed payload from r.
func ReadFrame(r io.Reader) ([]byte, error) {
	var lengthBuf [2]byte
	if _, err := io.ReadFull(r, lengthBuf[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint16(lengthBuf[:])
	if int(length) > MaxDatagramBytes {
		return nil, ErrDatagramTooLarge
	}
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}

// WriteFrame writes payload to w prefixed with its u16 little-endian length.
func WriteFrame(w io.Writer, payload []byte) error {
	if len(payload) > 0xFFFF {
		return fmt.Errorf("wire: payload of %d bytes exceeds u16 frame length", len(payload))
	}
	var lengthBuf [2]byte
	binary.LittleEndian.PutUint16(lengthBuf[:], uint16(len(payload)))
	if _, err := w.Write(lengthBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(payload)
	return err
}

// Writer accumulates a datagram payload using the primitive little-endian
// encodings defined by the wire format.
type Writer struct {
	buf []byte
}

// NewWriter returns a writer with a buffer pre-sized for typical datagrams.
func NewWriter() *Writer {
	return &Writer{buf: make([]byte, 0, 64)}
}

// Bytes returns the accumulated payload.
func (w *Writer) Bytes() []byte { return w.buf }

// Len reports the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// PutUint8 appends a single byte.
func (w *Writer) PutUint8(v uint8) *Writer {
	w.buf = append(w.buf, v)
	return w
}

// PutUint16 appends a little-endian u16.
func (w *Writer) PutUint16(v uint16) *Writer {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
	return w
}

// PutUint32 appends a little-endian u32.
func (w *Writer) PutUint32(v uint32) *Writer {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
	return w
}

// PutUint64 appends a little-endian u64.
func (w *Writer) PutUint64(v uint64) *Writer {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
	return w
}

// PutString appends a u16-length-prefixed UTF-8 string.
func (w *Writer) PutString(s string) *Writer {
	w.PutUint16(uint16(len(s)))
	w.buf = append(w.buf, s...)
	return w
}

// PutBytes appends a u16-length-prefixed raw byte slice.
func (w *Writer) PutBytes(b []byte) *Writer {
	w.PutUint16(uint16(len(b)))
	w.buf = append(w.buf, b...)
	return w
}

// PutRaw appends b verbatim, with no length prefix.
func (w *Writer) PutRaw(b []byte) *Writer {
	w.buf = append(w.buf, b...)
	return w
}

// Cursor reads primitive values off a byte slice, advancing an internal
// offset. Every accessor returns ErrShortBuffer rather than panicking so
// that a truncated or malicious datagram degrades to a dropped message
// (§7 decode-failure policy) instead of crashing the dispatch loop.
type Cursor struct {
	buf []byte
	off int
}

// NewCursor wraps buf for sequential reads starting at offset zero.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Remaining reports how many bytes are left to read.
func (c *Cursor) Remaining() int { return len(c.buf) - c.off }

// Offset reports the current read offset.
func (c *Cursor) Offset() int { return c.off }

// Rest returns every byte not yet consumed.
func (c *Cursor) Rest() []byte { return c.buf[c.off:] }

func (c *Cursor) need(n int) error {
	if c.Remaining() < n {
		return ErrShortBuffer
	}
	return nil
}

// Uint8 reads a single byte.
func (c *Cursor) Uint8() (uint8, error) {
	if err := c.need(1); err != nil {
		return 0, err
	}
	v := c.buf[c.off]
	c.off++
	return v, nil
}

// Uint16 reads a little-endian u16.
func (c *Cursor) Uint16() (uint16, error) {
	if err := c.need(2); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint16(c.buf[c.off:])
	c.off += 2
	return v, nil
}

// Uint32 reads a little-endian u32.
func (c *Cursor) Uint32() (uint32, error) {
	if err := c.need(4); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint32(c.buf[c.off:])
	c.off += 4
	return v, nil
}

// Uint64 reads a little-endian u64.
func (c *Cursor) Uint64() (uint64, error) {
	if err := c.need(8); err != nil {
		return 0, err
	}
	v := binary.LittleEndian.Uint64(c.buf[c.off:])
	c.off += 8
	return v, nil
}

// String reads a u16-length-prefixed UTF-8 string.
func (c *Cursor) String() (string, error) {
	n, err := c.Uint16()
	if err != nil {
		return "", err
	}
	if err := c.need(int(n)); err != nil {
		return "", err
	}
	s := string(c.buf[c.off : c.off+int(n)])
	c.off += int(n)
	return s, nil
}

// Bytes reads a u16-length-prefixed raw byte slice, returned as a copy so
// callers may retain it past the lifetime of the decode buffer.
func (c *Cursor) Bytes() ([]byte, error) {
	n, err := c.Uint16()
	if err != nil {
		return nil, err
	}
	if err := c.need(int(n)); err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, c.buf[c.off:c.off+int(n)])
	c.off += int(n)
	return out, nil
}

// Skip advances the cursor by n bytes without interpreting them.
func (c *Cursor) Skip(n int) error {
	if err := c.need(n); err != nil {
		return err
	}
	c.off += n
	return nil
}

// Slice returns the raw bytes between two offsets previously obtained from
// Offset, without advancing the cursor. Used by callers that need to
// capture a field's packed encoding verbatim rather than its decoded value.
func (c *Cursor) Slice(start, end int) []byte {
	return c.buf[start:end]
}
