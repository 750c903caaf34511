package util

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

// ErrShortBuffer is recorded by WireReader when a field extends past the end of the input
var ErrShortBuffer = errors.New("unexpected end of buffer")

// --------------------------------------------------------------------------
// Writers
// --------------------------------------------------------------------------

// AppendUvarint appends v as a base-128 varint
func AppendUvarint(dst []byte, v uint64) []byte {
	return binary.AppendUvarint(dst, v)
}

// AppendVarint appends v as a zig-zag encoded varint
func AppendVarint(dst []byte, v int64) []byte {
	return binary.AppendVarint(dst, v)
}

// AppendFloat64 appends the IEEE 754 bits of v, little endian
func AppendFloat64(dst []byte, v float64) []byte {
	return binary.LittleEndian.AppendUint64(dst, math.Float64bits(v))
}

// AppendBytes appends a varint length prefix followed by p
func AppendBytes(dst []byte, p []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(p)))
	return append(dst, p...)
}

// AppendString appends a varint length prefix followed by s
func AppendString(dst []byte, s string) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(s)))
	return append(dst, s...)
}

// AppendOptBytes appends a presence byte and, if p is not nil, the length prefixed bytes.
// This keeps the difference between a nil and an empty value.
func AppendOptBytes(dst []byte, p []byte) []byte {
	if p == nil {
		return append(dst, 0)
	}
	return AppendBytes(append(dst, 1), p)
}

// AppendBool appends a single byte 0 or 1
func AppendBool(dst []byte, b bool) []byte {
	if b {
		return append(dst, 1)
	}
	return append(dst, 0)
}

// --------------------------------------------------------------------------
// Reader
// --------------------------------------------------------------------------

// WireReader consumes fields written by the Append functions.
// The first error sticks: all following reads return zero values and Err reports it.
type WireReader struct {
	buf []byte
	err error
}

// NewWireReader creates a reader over b. The reader never modifies b.
func NewWireReader(b []byte) *WireReader {
	return &WireReader{buf: b}
}

// Err returns the first error encountered
func (r *WireReader) Err() error {
	return r.err
}

// Len returns the number of unread bytes
func (r *WireReader) Len() int {
	return len(r.buf)
}

// Fail records err unless an earlier error is already recorded
func (r *WireReader) Fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *WireReader) Byte() byte {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 1 {
		r.err = ErrShortBuffer
		return 0
	}
	b := r.buf[0]
	r.buf = r.buf[1:]
	return b
}

func (r *WireReader) Bool() bool {
	switch r.Byte() {
	case 0:
		return false
	case 1:
		return true
	default:
		r.Fail(fmt.Errorf("invalid bool encoding"))
		return false
	}
}

func (r *WireReader) Uvarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Uvarint(r.buf)
	if n <= 0 {
		r.err = ErrVarint
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *WireReader) Varint() int64 {
	if r.err != nil {
		return 0
	}
	v, n := binary.Varint(r.buf)
	if n <= 0 {
		r.err = ErrVarint
		return 0
	}
	r.buf = r.buf[n:]
	return v
}

func (r *WireReader) Float64() float64 {
	if r.err != nil {
		return 0
	}
	if len(r.buf) < 8 {
		r.err = ErrShortBuffer
		return 0
	}
	v := math.Float64frombits(binary.LittleEndian.Uint64(r.buf))
	r.buf = r.buf[8:]
	return v
}

// Count reads a varint element count. Every element occupies at least one byte,
// so a count larger than the remaining input is rejected before anything is allocated.
func (r *WireReader) Count() int {
	n := r.Uvarint()
	if r.err == nil && n > uint64(len(r.buf)) {
		r.err = fmt.Errorf("element count %d exceeds remaining input: %w", n, ErrShortBuffer)
		return 0
	}
	return int(n)
}

// Bytes reads a length prefixed byte slice. The result is a copy.
func (r *WireReader) Bytes() []byte {
	n := r.Uvarint()
	if r.err != nil {
		return nil
	}
	if n > uint64(len(r.buf)) {
		r.err = ErrShortBuffer
		return nil
	}
	out := make([]byte, n)
	copy(out, r.buf[:n])
	r.buf = r.buf[n:]
	return out
}

// OptBytes reads a value written by AppendOptBytes
func (r *WireReader) OptBytes() []byte {
	if !r.Bool() {
		return nil
	}
	return r.Bytes()
}

func (r *WireReader) String() string {
	return string(r.Bytes())
}
