package util

import (
	"encoding/binary"
	"errors"
	"math"
)

// MaxVarintLen32 is the maximum length of a varint encoded uint32
const MaxVarintLen32 = 5

// ErrVarint is returned for truncated varints and varints that do not fit into 32 bits
var ErrVarint = errors.New("malformed varint")

// AppendUvarint32 appends the base-128 encoding of v to dst.
// The encoding of 0 is the single byte 0x00.
func AppendUvarint32(dst []byte, v uint32) []byte {
	return binary.AppendUvarint(dst, uint64(v))
}

// PutUvarint32 encodes v into buf and returns the number of bytes written.
// buf must have room for at least MaxVarintLen32 bytes.
func PutUvarint32(buf []byte, v uint32) int {
	return binary.PutUvarint(buf, uint64(v))
}

// Uvarint32 decodes a varint from the start of src.
// It returns the value and the number of bytes consumed.
func Uvarint32(src []byte) (uint32, int, error) {
	v, n := binary.Uvarint(src)
	if n <= 0 || n > MaxVarintLen32 || v > math.MaxUint32 {
		return 0, 0, ErrVarint
	}
	return uint32(v), n, nil
}

// UvarintLen32 returns the number of bytes needed to encode v
func UvarintLen32(v uint32) int {
	n := 1
	for v >= 0x80 {
		v >>= 7
		n++
	}
	return n
}
